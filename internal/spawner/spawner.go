// Package spawner feeds demo jobs into a pool: each job sleeps for a random duration and
// reports how long it took, and one job per wave may kill the process.
package spawner

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/ygrebnov/threadpool"
	"github.com/ygrebnov/threadpool/internal/fault"
)

// CrashJob is the job number carried by the crash job. Regular jobs are numbered from zero.
const CrashJob = -1

// Config controls job durations and the crash job's fault.
type Config struct {
	MinSleep time.Duration
	MaxSleep time.Duration
	Crash    fault.Kind
	// Seed seeds the duration generator; zero picks a time-based seed.
	Seed int64
}

// Report is the outcome of one job.
type Report struct {
	Job     int
	ID      uuid.UUID
	Seq     uint64
	Slept   time.Duration
	Elapsed time.Duration
	Err     error
}

// Spawner submits numbered jobs to a caller-owned pool and remembers their handles until Collect.
type Spawner struct {
	pool  *threadpool.Pool
	cfg   Config
	log   *zap.Logger
	crash func(fault.Kind)

	mu      sync.Mutex
	rng     *rand.Rand
	next    int
	pending []pending
}

// pending is a submitted job whose report has not been collected yet.
type pending struct {
	job   int
	slept time.Duration
	h     *threadpool.Handle[Report]
}

// Option configures a Spawner.
type Option func(*Spawner)

// WithCrashFunc replaces fault.Trigger as the crash job's action.
func WithCrashFunc(fn func(fault.Kind)) Option {
	return func(s *Spawner) { s.crash = fn }
}

// New returns a Spawner submitting to p.
func New(p *threadpool.Pool, cfg Config, log *zap.Logger, opts ...Option) *Spawner {
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	if log == nil {
		log = zap.NewNop()
	}
	s := &Spawner{
		pool:  p,
		cfg:   cfg,
		log:   log,
		crash: fault.Trigger,
		rng:   rand.New(rand.NewPCG(uint64(seed), uint64(seed)>>1)),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Spawn submits count jobs. The job at index crashAt, if any, is the crash job; a negative
// crashAt spawns none. Spawn stops at the first rejected submission and returns its error.
func (s *Spawner) Spawn(count, crashAt int) error {
	s.log.Info("adding new jobs to the pool", zap.Int("count", count), zap.Int("crash_at", crashAt))

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := 0; i < count; i++ {
		number := CrashJob
		if i != crashAt {
			number = s.next
			s.next++
		}
		sleep := s.draw()
		h, err := threadpool.Submit(s.pool, s.job(number, sleep))
		if err != nil {
			return err
		}
		s.pending = append(s.pending, pending{job: number, slept: sleep, h: h})
	}
	return nil
}

// Waves calls Spawn waves times, at most once per interval, until ctx is done.
func (s *Spawner) Waves(ctx context.Context, waves, count, crashAt int, interval time.Duration) error {
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	lim := rate.NewLimiter(limit, 1)

	for w := 0; w < waves; w++ {
		if err := lim.Wait(ctx); err != nil {
			return err
		}
		s.log.Debug("spawning wave", zap.Int("wave", w))
		if err := s.Spawn(count, crashAt); err != nil {
			return err
		}
	}
	return nil
}

// Collect waits for every job spawned since the previous Collect and returns their reports in
// submission order. A job's own failure is reported in Report.Err; the returned error is set only
// when ctx ends first.
func (s *Spawner) Collect(ctx context.Context) ([]Report, error) {
	s.mu.Lock()
	jobs := s.pending
	s.pending = nil
	s.mu.Unlock()

	reports := make([]Report, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	for i, j := range jobs {
		g.Go(func() error {
			if _, err := j.h.Wait(gctx); err != nil && !j.h.Ready() {
				return err
			}
			r, err := j.h.Get()
			r.Job, r.Slept = j.job, j.slept
			r.ID, r.Seq, r.Err = j.h.ID(), j.h.Seq(), err
			reports[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// draw returns a duration in [MinSleep, MaxSleep). Callers hold s.mu.
func (s *Spawner) draw() time.Duration {
	span := int64(s.cfg.MaxSleep - s.cfg.MinSleep)
	if span <= 0 {
		return s.cfg.MinSleep
	}
	return s.cfg.MinSleep + time.Duration(s.rng.Int64N(span))
}

func (s *Spawner) job(number int, sleep time.Duration) threadpool.Task[Report] {
	log := s.log.With(zap.Int("job", number))
	return func() (Report, error) {
		log.Info("doing job")

		start := time.Now()
		time.Sleep(sleep)
		elapsed := time.Since(start)

		log.Info("job done", zap.Duration("took", elapsed))

		if number == CrashJob {
			log.Warn("crash job is terminating the process", zap.Stringer("fault", s.cfg.Crash))
			_ = log.Sync()
			s.crash(s.cfg.Crash)
		}
		return Report{Job: number, Slept: sleep, Elapsed: elapsed}, nil
	}
}
