package threadpool

import "sync"

// jobQueue is an unbounded FIFO of cells guarded by one mutex and one condition variable.
// The stop flag lives under the same lock so that a worker never observes "empty and stopped"
// while a push is in progress.
type jobQueue struct {
	mu      sync.Mutex
	cond    *sync.Cond
	items   []cell
	nextSeq uint64
	stopped bool
}

func newJobQueue() *jobQueue {
	q := &jobQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push appends c and wakes one waiting worker.
// It fails with ErrPoolStopped once stop has been called; c is not queued in that case.
func (q *jobQueue) push(c cell) error {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return ErrPoolStopped
	}
	c.setSeq(q.nextSeq)
	q.nextSeq++
	q.items = append(q.items, c)
	q.mu.Unlock()

	q.cond.Signal()
	return nil
}

// pop blocks until a cell is available or the queue is stopped and empty.
// Queued cells are handed out even after stop, which is what makes shutdown drain.
func (q *jobQueue) pop() (cell, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for len(q.items) == 0 && !q.stopped {
		q.cond.Wait()
	}
	if len(q.items) == 0 {
		return nil, false
	}

	c := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return c, true
}

// stop sets the stop flag and wakes every waiting worker.
// It reports whether this call was the one that stopped the queue.
func (q *jobQueue) stop() bool {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return false
	}
	q.stopped = true
	q.mu.Unlock()

	q.cond.Broadcast()
	return true
}

// takeAll removes and returns every queued cell.
func (q *jobQueue) takeAll() []cell {
	q.mu.Lock()
	defer q.mu.Unlock()

	items := q.items
	q.items = nil
	return items
}

func (q *jobQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *jobQueue) isStopped() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.stopped
}
