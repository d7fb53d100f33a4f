package threadpool

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
)

// Handle is the read side of a submitted job's outcome.
//
// A Handle is fulfilled exactly once, by the worker that ran the job. It can be read any
// number of times by its owner; every read returns the same value and error.
// Handles are safe for concurrent readers.
type Handle[R any] struct {
	id  uuid.UUID
	seq uint64 // assigned under the queue lock at push time

	done      chan struct{}
	fulfilled atomic.Bool

	value R
	err   error
}

func newHandle[R any](id uuid.UUID) *Handle[R] {
	return &Handle[R]{id: id, done: make(chan struct{})}
}

// fulfil publishes the outcome and wakes every reader.
// A second call is a programming error and panics.
func (h *Handle[R]) fulfil(v R, err error) {
	if !h.fulfilled.CompareAndSwap(false, true) {
		panic(Namespace + ": handle " + h.id.String() + " fulfilled twice")
	}
	h.value, h.err = v, err
	close(h.done)
}

// Get blocks until the job has finished and returns its value and error.
// If the job never runs (a pool with zero threads that is never shut down), Get blocks forever;
// use Wait to bound the wait.
func (h *Handle[R]) Get() (R, error) {
	<-h.done
	return h.value, h.err
}

// Wait is Get bounded by ctx. When ctx is done first, it returns the zero value and ctx.Err();
// the job itself is not affected and the handle can be read again later.
func (h *Handle[R]) Wait(ctx context.Context) (R, error) {
	select {
	case <-h.done:
		return h.value, h.err
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}

// Done returns a channel that is closed once the outcome is available.
func (h *Handle[R]) Done() <-chan struct{} { return h.done }

// Ready reports whether the outcome is available without blocking.
func (h *Handle[R]) Ready() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// ID returns the job identifier, also used in log entries and tagged errors.
func (h *Handle[R]) ID() uuid.UUID { return h.id }

// Seq returns the job's position in the pool's submission order, starting at zero.
func (h *Handle[R]) Seq() uint64 { return h.seq }
