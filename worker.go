package threadpool

import (
	"time"

	"go.uber.org/zap"
)

type worker struct {
	id   int
	core *core
	log  *zap.Logger
}

func newWorker(id int, c *core) *worker {
	return &worker{id: id, core: c, log: c.log.With(zap.Int("worker", id))}
}

// loop pops and runs cells until the queue is stopped and empty.
//
// Task panics are contained by the cell. runtime.Goexit cannot be contained: it unwinds this
// goroutine whatever we do, so the deferred check starts a replacement to keep the pool at
// its configured size.
func (w *worker) loop() {
	finished := false
	defer func() {
		if !finished {
			w.log.Warn("worker goroutine terminated by its task, starting a replacement")
			w.core.spawn(w.id)
		}
		w.core.workers.Done()
	}()

	w.log.Debug("worker started")
	for {
		c, ok := w.core.queue.pop()
		if !ok {
			break
		}
		w.execute(c)
	}
	finished = true
	w.log.Debug("worker exited")
}

func (w *worker) execute(c cell) {
	inst := w.core.inst
	m := c.meta()

	inst.queued.Add(-1)
	inst.waitSeconds.Record(time.Since(m.enqueuedAt).Seconds())

	w.core.running.Add(1)
	inst.running.Add(1)
	start := time.Now()
	st := statusExited

	defer func() {
		w.core.running.Add(-1)
		inst.running.Add(-1)
		inst.runSeconds.Record(time.Since(start).Seconds())
		inst.record(st)
	}()

	st = c.run(w.log)
}
