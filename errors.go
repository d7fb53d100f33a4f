package threadpool

import "errors"

const Namespace = "threadpool"

var (
	ErrPoolStopped   = errors.New(Namespace + ": cannot submit a job to a stopped pool")
	ErrNilTask       = errors.New(Namespace + ": cannot submit a nil task")
	ErrTaskPanicked  = errors.New(Namespace + ": task execution panicked")
	ErrTaskExited    = errors.New(Namespace + ": task exited its goroutine before returning")
	ErrInvalidConfig = errors.New(Namespace + ": invalid configuration")
	ErrInvalidState  = errors.New(Namespace + ": pool was not created by New")
)
