package threadpool

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubCell is a cell that only carries metadata; tests never run it.
type stubCell struct {
	jobMeta
	label int
}

func (s *stubCell) meta() *jobMeta           { return &s.jobMeta }
func (s *stubCell) setSeq(seq uint64)        { s.seq = seq }
func (s *stubCell) run(_ *zap.Logger) status { return statusSucceeded }
func (s *stubCell) abandon(error)            {}

func TestJobQueue_FIFOAndSequence(t *testing.T) {
	q := newJobQueue()
	for i := 0; i < 10; i++ {
		require.NoError(t, q.push(newStub(i)))
	}
	require.Equal(t, 10, q.len())

	for i := 0; i < 10; i++ {
		c, ok := q.pop()
		require.True(t, ok)
		s := c.(*stubCell)
		require.Equal(t, i, s.label)
		require.Equal(t, uint64(i), s.seq)
	}
	require.Equal(t, 0, q.len())
}

func TestJobQueue_PopBlocksUntilPush(t *testing.T) {
	q := newJobQueue()

	got := make(chan cell, 1)
	go func() {
		c, _ := q.pop()
		got <- c
	}()

	select {
	case <-got:
		t.Fatalf("pop returned on an empty queue")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, q.push(newStub(1)))

	select {
	case c := <-got:
		require.Equal(t, 1, c.(*stubCell).label)
	case <-time.After(time.Second):
		t.Fatalf("pop did not wake after push")
	}
}

func TestJobQueue_StopDrainsBeforeExit(t *testing.T) {
	q := newJobQueue()
	require.NoError(t, q.push(newStub(0)))
	require.NoError(t, q.push(newStub(1)))

	require.True(t, q.stop())
	require.False(t, q.stop(), "second stop must report it did nothing")
	require.True(t, q.isStopped())

	require.ErrorIs(t, q.push(newStub(2)), ErrPoolStopped)

	for i := 0; i < 2; i++ {
		c, ok := q.pop()
		require.True(t, ok, "queued cells must still be handed out after stop")
		require.Equal(t, i, c.(*stubCell).label)
	}

	c, ok := q.pop()
	require.False(t, ok)
	require.Nil(t, c)
}

func TestJobQueue_StopWakesAllWaiters(t *testing.T) {
	q := newJobQueue()

	const waiters = 8
	var wg sync.WaitGroup
	wg.Add(waiters)
	for i := 0; i < waiters; i++ {
		go func() {
			defer wg.Done()
			_, ok := q.pop()
			if ok {
				t.Errorf("pop returned a cell from an empty stopped queue")
			}
		}()
	}

	time.Sleep(20 * time.Millisecond)
	q.stop()

	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("stop did not wake all waiting pops")
	}
}

func TestJobQueue_TakeAll(t *testing.T) {
	q := newJobQueue()
	for i := 0; i < 3; i++ {
		require.NoError(t, q.push(newStub(i)))
	}

	all := q.takeAll()
	require.Len(t, all, 3)
	require.Equal(t, 0, q.len())
	for i, c := range all {
		require.Equal(t, i, c.(*stubCell).label)
	}
}

func TestJobQueue_ConcurrentPushersKeepUniqueSequence(t *testing.T) {
	q := newJobQueue()

	const pushers, each = 8, 100
	var wg sync.WaitGroup
	wg.Add(pushers)
	for p := 0; p < pushers; p++ {
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				_ = q.push(newStub(i))
			}
		}()
	}
	wg.Wait()

	seen := make(map[uint64]bool, pushers*each)
	var last uint64
	for i := 0; i < pushers*each; i++ {
		c, ok := q.pop()
		require.True(t, ok)
		seq := c.meta().seq
		require.False(t, seen[seq], "duplicate seq %d", seq)
		if i > 0 {
			require.Greater(t, seq, last, "cells must come out in sequence order")
		}
		seen[seq] = true
		last = seq
	}
}

func newStub(label int) *stubCell { return &stubCell{label: label} }
