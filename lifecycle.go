package threadpool

import (
	"sync"
)

// lifecycleCoordinator encapsulates the shutdown sequence for a Pool.
// It is a wiring helper: it doesn't own the queue or the workers; it orchestrates
// stopping, joining, and abandoning in a deterministic order.
//
// Close() is safe for concurrent calls; the sequence executes exactly once and
// every caller returns only after it has completed.
type lifecycleCoordinator struct {
	// stopIntake sets the stop flag under the queue lock and wakes all workers.
	stopIntake func()
	// workers is joined after intake has stopped; workers drain the queue before exiting.
	workers *sync.WaitGroup
	// abandonRemaining resolves whatever is still queued once no worker is left to run it.
	abandonRemaining func()
	onStopping       func()
	onStopped        func()

	once sync.Once
}

func newLifecycleCoordinator(
	stopIntake func(),
	workers *sync.WaitGroup,
	abandonRemaining func(),
	onStopping func(),
	onStopped func(),
) *lifecycleCoordinator {
	return &lifecycleCoordinator{
		stopIntake:       stopIntake,
		workers:          workers,
		abandonRemaining: abandonRemaining,
		onStopping:       onStopping,
		onStopped:        onStopped,
	}
}

// Close executes the shutdown sequence exactly once:
// 1) notify stopping
// 2) stop intake: Submit fails from here on, waiting workers wake up
// 3) join workers; each exits only when the queue is empty
// 4) abandon cells still queued (only possible with zero workers)
// 5) notify stopped
func (lc *lifecycleCoordinator) Close() {
	lc.once.Do(func() {
		if lc.onStopping != nil {
			lc.onStopping()
		}
		if lc.stopIntake != nil {
			lc.stopIntake()
		}
		if lc.workers != nil {
			lc.workers.Wait()
		}
		if lc.abandonRemaining != nil {
			lc.abandonRemaining()
		}
		if lc.onStopped != nil {
			lc.onStopped()
		}
	})
}
