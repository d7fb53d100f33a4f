package threadpool

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// status is the way a job finished, as observed by the worker.
type status int

const (
	statusExited status = iota // runtime.Goexit inside the task
	statusSucceeded
	statusFailed
	statusPanicked
)

// jobMeta is the bookkeeping shared by every cell regardless of its result type.
type jobMeta struct {
	id         uuid.UUID
	seq        uint64
	enqueuedAt time.Time
}

// cell is a queued job with its outcome slot, erased of its result type so that
// jobs of different types can share one queue.
type cell interface {
	meta() *jobMeta
	setSeq(seq uint64)
	// run executes the task and publishes its outcome into the handle.
	run(log *zap.Logger) status
	// abandon publishes err without running the task.
	abandon(err error)
}

type taskCell[R any] struct {
	jobMeta
	task    Task[R]
	handle  *Handle[R]
	tagging bool
}

func newTaskCell[R any](t Task[R], tagging bool) *taskCell[R] {
	id := uuid.New()
	return &taskCell[R]{
		jobMeta: jobMeta{id: id},
		task:    t,
		handle:  newHandle[R](id),
		tagging: tagging,
	}
}

func (c *taskCell[R]) meta() *jobMeta { return &c.jobMeta }

func (c *taskCell[R]) setSeq(seq uint64) {
	c.seq = seq
	c.handle.seq = seq
}

func (c *taskCell[R]) run(log *zap.Logger) (st status) {
	var (
		result   R
		err      error
		returned bool
	)

	defer func() {
		if rec := recover(); rec != nil {
			var zero R
			result = zero
			err = fmt.Errorf("%w: %v", ErrTaskPanicked, rec)
			st = statusPanicked
			log.Error("task panicked",
				zap.Stringer("job", c.id),
				zap.Uint64("seq", c.seq),
				zap.Any("panic", rec),
				zap.Stack("stack"),
			)
		} else if !returned {
			err = ErrTaskExited
			log.Warn("task called runtime.Goexit", zap.Stringer("job", c.id), zap.Uint64("seq", c.seq))
		}
		c.publish(result, err)
	}()

	result, err = c.task()
	returned = true
	if err != nil {
		return statusFailed
	}
	return statusSucceeded
}

func (c *taskCell[R]) abandon(err error) {
	var zero R
	c.publish(zero, err)
}

func (c *taskCell[R]) publish(v R, err error) {
	if err != nil && c.tagging {
		err = newJobTaggedError(err, c.id, c.seq)
	}
	// drop the task so that whatever it captured can be collected while the handle lives on
	c.task = nil
	c.handle.fulfil(v, err)
}
