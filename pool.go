package threadpool

import (
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ygrebnov/errorc"
	"go.uber.org/zap"
)

// Pool runs submitted jobs on a fixed number of worker goroutines.
// Pool is a concrete struct; methods are safe for concurrent use.
//
// Jobs start in submission order across all submitters. With more than one thread,
// completion order is not guaranteed.
//
// A Pool that becomes unreachable without Shutdown is shut down by the runtime,
// so its workers are never left running. Call Shutdown explicitly to wait for queued jobs.
//
// Create pools with New. The zero value has no workers and no queue: Submit and Enqueue
// return ErrInvalidState, Shutdown does nothing and Stopped reports true.
type Pool struct {
	// noCopy prevents accidental copying of the pool.
	//go:nocopy
	nc noCopy

	c *core
}

// noCopy is a vet-recognized marker to discourage copying types with this field embedded.
// It works with the "-copylocks" analyzer via the presence of Lock/Unlock methods.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// core is everything workers touch. Workers hold *core, never *Pool,
// which keeps *Pool collectable while workers are parked.
type core struct {
	cfg     *config
	threads uint
	log     *zap.Logger
	inst    *instruments

	queue   *jobQueue
	workers sync.WaitGroup
	running atomic.Int64

	lc *lifecycleCoordinator
}

// New creates a pool with exactly threads workers and starts them.
//
// threads may be zero: the pool then accepts jobs but never runs them, and Shutdown
// resolves their handles with ErrPoolStopped. See DefaultThreads for a hardware-based value.
func New(threads uint, opts ...Option) (*Pool, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	c := &core{
		cfg:     &cfg,
		threads: threads,
		log:     cfg.Logger.Named(cfg.Name),
		inst:    newInstruments(cfg.Metrics, cfg.Name),
		queue:   newJobQueue(),
	}
	c.lc = newLifecycleCoordinator(
		func() { c.queue.stop() },
		&c.workers,
		c.abandonRemaining,
		func() { c.log.Info("pool stopping", zap.Int("pending", c.queue.len())) },
		func() { c.log.Info("pool stopped") },
	)

	for i := 0; i < int(threads); i++ {
		c.spawn(i)
	}
	c.log.Info("pool started", zap.Uint("threads", threads))

	p := &Pool{c: c}
	runtime.AddCleanup(p, func(c *core) { go c.shutdown() }, c)
	return p, nil
}

// spawn starts worker id. The WaitGroup is incremented before the goroutine exists so that
// a replacement started from a dying worker's defer is accounted for before that worker's Done.
func (c *core) spawn(id int) {
	c.workers.Add(1)
	go newWorker(id, c).loop()
}

// enqueue pushes cl. The queued gauge is raised before the push so that a worker popping
// the cell right away never drives it below zero.
func (c *core) enqueue(cl cell) error {
	cl.meta().enqueuedAt = time.Now()
	c.inst.queued.Add(1)
	if err := c.queue.push(cl); err != nil {
		c.inst.queued.Add(-1)
		c.inst.rejected.Add(1)
		return errorc.With(err, errorc.String("pool", c.cfg.Name))
	}
	c.inst.submitted.Add(1)
	return nil
}

func (c *core) shutdown() { c.lc.Close() }

// abandonRemaining resolves cells that no worker will ever pop.
// After workers are joined the queue can only be non-empty when the pool has zero threads.
func (c *core) abandonRemaining() {
	left := c.queue.takeAll()
	if len(left) == 0 {
		return
	}
	c.log.Warn("abandoning jobs queued on a pool without workers", zap.Int("jobs", len(left)))
	for _, cl := range left {
		c.inst.queued.Add(-1)
		c.inst.failed.Add(1)
		cl.abandon(errorc.With(
			ErrPoolStopped,
			errorc.String("pool", c.cfg.Name),
			errorc.String("reason", "no workers to run job "+strconv.FormatUint(cl.meta().seq, 10)),
		))
	}
}

func (p *Pool) valid() bool { return p != nil && p.c != nil }

// Submit queues t on p and returns its handle immediately.
//
// Semantics:
// - Safe for concurrent use by multiple goroutines; never blocks beyond a short critical section.
// - Returns ErrNilTask for a nil task and ErrInvalidState for a pool not created by New.
// - Returns an error wrapping ErrPoolStopped once Shutdown has started; the task is not queued.
// - A panic inside t is recovered and reported by the handle as an error wrapping ErrTaskPanicked.
//
// Submit is a function rather than a method because methods cannot have type parameters.
func Submit[R any](p *Pool, t Task[R]) (*Handle[R], error) {
	if t == nil {
		return nil, ErrNilTask
	}
	if !p.valid() {
		return nil, ErrInvalidState
	}
	tc := newTaskCell[R](t, p.c.cfg.ErrorTagging)
	if err := p.c.enqueue(tc); err != nil {
		return nil, err
	}
	return tc.handle, nil
}

// Enqueue queues fn without returning a handle.
// Rejection rules are those of Submit. A panic inside fn is recovered and logged.
func (p *Pool) Enqueue(fn func()) error {
	if fn == nil {
		return ErrNilTask
	}
	_, err := Submit(p, TaskError[struct{}](func() error { fn(); return nil }))
	return err
}

// Shutdown stops accepting jobs, lets workers finish everything already queued,
// and returns once every worker has exited.
//
// Semantics:
// - Idempotent and safe for concurrent use; every caller returns after shutdown has completed.
// - Does not cancel anything: queued jobs still run.
// - Must not be called from inside a job of the same pool: it would wait for itself.
func (p *Pool) Shutdown() {
	if p.valid() {
		p.c.shutdown()
	}
}

// Threads returns the fixed number of workers.
func (p *Pool) Threads() uint {
	if !p.valid() {
		return 0
	}
	return p.c.threads
}

// Pending returns the number of queued jobs that have not started yet.
func (p *Pool) Pending() int {
	if !p.valid() {
		return 0
	}
	return p.c.queue.len()
}

// Running returns the number of jobs executing right now.
func (p *Pool) Running() int {
	if !p.valid() {
		return 0
	}
	return int(p.c.running.Load())
}

// Stopped reports whether Shutdown has started. A pool not created by New is always stopped.
func (p *Pool) Stopped() bool {
	if !p.valid() {
		return true
	}
	return p.c.queue.isStopped()
}

// Name returns the pool name set by WithName.
func (p *Pool) Name() string {
	if !p.valid() {
		return ""
	}
	return p.c.cfg.Name
}
