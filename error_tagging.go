package threadpool

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// JobMetaError exposes correlation metadata for a job failure.
// Errors returned by Handle.Get implement it when the pool was built WithErrorTagging.
type JobMetaError interface {
	error
	Unwrap() error
	JobID() uuid.UUID
	JobSeq() uint64
}

type jobTaggedError struct {
	err error
	id  uuid.UUID
	seq uint64
}

func newJobTaggedError(err error, id uuid.UUID, seq uint64) error {
	if err == nil {
		return nil
	}
	return &jobTaggedError{err: err, id: id, seq: seq}
}

func (e *jobTaggedError) Error() string    { return e.err.Error() }
func (e *jobTaggedError) Unwrap() error    { return e.err }
func (e *jobTaggedError) JobID() uuid.UUID { return e.id }
func (e *jobTaggedError) JobSeq() uint64   { return e.seq }

func (e *jobTaggedError) Format(s fmt.State, verb rune) {
	switch verb {
	case 'v':
		if s.Flag('+') {
			_, _ = fmt.Fprintf(s, "job(seq=%d,id=%s): %+v", e.seq, e.id, e.err)
			return
		}
		fallthrough
	case 's':
		_, _ = fmt.Fprint(s, e.Error())
	case 'q':
		_, _ = fmt.Fprintf(s, "%q", e.Error())
	}
}

// ExtractJobID returns the job ID from err if present.
func ExtractJobID(err error) (uuid.UUID, bool) {
	var jme JobMetaError
	if errors.As(err, &jme) {
		return jme.JobID(), true
	}
	return uuid.Nil, false
}

// ExtractJobSeq returns the job sequence number from err if present.
func ExtractJobSeq(err error) (uint64, bool) {
	var jme JobMetaError
	if errors.As(err, &jme) {
		return jme.JobSeq(), true
	}
	return 0, false
}
