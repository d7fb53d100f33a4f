package threadpool_test

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ygrebnov/threadpool"
	"github.com/ygrebnov/threadpool/metrics"
)

func newPool(t *testing.T, threads uint, opts ...threadpool.Option) *threadpool.Pool {
	t.Helper()
	opts = append([]threadpool.Option{threadpool.WithLogger(zaptest.NewLogger(t))}, opts...)
	p, err := threadpool.New(threads, opts...)
	require.NoError(t, err)
	return p
}

func TestPool_AllJobsComplete(t *testing.T) {
	for _, threads := range []uint{1, 2, 4, 8} {
		t.Run(fmt.Sprintf("threads=%d", threads), func(t *testing.T) {
			p := newPool(t, threads)
			defer p.Shutdown()
			require.Equal(t, threads, p.Threads())

			const jobs = 100
			var ran atomic.Int64
			handles := make([]*threadpool.Handle[int], 0, jobs)
			for i := 0; i < jobs; i++ {
				h, err := threadpool.Submit(p, threadpool.TaskValue(func() int {
					ran.Add(1)
					return i
				}))
				require.NoError(t, err)
				handles = append(handles, h)
			}

			for i, h := range handles {
				v, err := h.Get()
				require.NoError(t, err)
				require.Equal(t, i, v)
			}
			require.Equal(t, int64(jobs), ran.Load())
		})
	}
}

func TestPool_ZeroThreadsQueuesWithoutRunning(t *testing.T) {
	p := newPool(t, 0)

	var ran atomic.Bool
	handles := make([]*threadpool.Handle[struct{}], 0, 3)
	for i := 0; i < 3; i++ {
		h, err := threadpool.Submit(p, threadpool.TaskError[struct{}](func() error {
			ran.Store(true)
			return nil
		}))
		require.NoError(t, err, "a zero-thread pool still accepts jobs")
		handles = append(handles, h)
	}

	time.Sleep(50 * time.Millisecond)
	require.Equal(t, 3, p.Pending())
	for _, h := range handles {
		require.False(t, h.Ready())
	}

	p.Shutdown()

	require.False(t, ran.Load())
	require.Equal(t, 0, p.Pending())
	for _, h := range handles {
		_, err := h.Get()
		require.ErrorIs(t, err, threadpool.ErrPoolStopped)
	}
}

func TestPool_SingleWorkerRunsInSubmissionOrder(t *testing.T) {
	p := newPool(t, 1)

	gate := make(chan struct{})
	_, err := threadpool.Submit(p, threadpool.TaskError[struct{}](func() error {
		<-gate
		return nil
	}))
	require.NoError(t, err)

	const jobs = 20
	var (
		mu    sync.Mutex
		order []int
	)
	var prevSeq uint64
	for i := 0; i < jobs; i++ {
		h, err := threadpool.Submit(p, threadpool.TaskError[struct{}](func() error {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
			return nil
		}))
		require.NoError(t, err)
		require.Greater(t, h.Seq(), prevSeq)
		prevSeq = h.Seq()
	}

	close(gate)
	p.Shutdown()

	want := make([]int, jobs)
	for i := range want {
		want[i] = i
	}
	require.Equal(t, want, order)
}

func TestPool_SubmitAfterShutdownIsRejected(t *testing.T) {
	mp := metrics.NewBasicProvider()
	p := newPool(t, 2, threadpool.WithName("late"), threadpool.WithMetrics(mp))
	p.Shutdown()
	require.True(t, p.Stopped())

	h, err := threadpool.Submit(p, threadpool.TaskValue(func() int { return 1 }))
	require.ErrorIs(t, err, threadpool.ErrPoolStopped)
	require.Nil(t, h)

	require.ErrorIs(t, p.Enqueue(func() {}), threadpool.ErrPoolStopped)
	require.Equal(t, 0, p.Pending())
	require.Equal(t, int64(2), counter(mp, "jobs_rejected"))
	require.Equal(t, int64(0), counter(mp, "jobs_submitted"))
}

func TestPool_NilTask(t *testing.T) {
	p := newPool(t, 1)
	defer p.Shutdown()

	_, err := threadpool.Submit[int](p, nil)
	require.ErrorIs(t, err, threadpool.ErrNilTask)
	require.ErrorIs(t, p.Enqueue(nil), threadpool.ErrNilTask)
}

func TestPool_ShutdownDrainsQueuedJobs(t *testing.T) {
	p := newPool(t, 2)

	const jobs = 5
	var done [jobs]atomic.Bool
	handles := make([]*threadpool.Handle[int], 0, jobs)
	for i := 0; i < jobs; i++ {
		h, err := threadpool.Submit(p, threadpool.TaskValue(func() int {
			time.Sleep(20 * time.Millisecond)
			done[i].Store(true)
			return i * i
		}))
		require.NoError(t, err)
		handles = append(handles, h)
	}

	p.Shutdown()

	for i := range done {
		require.True(t, done[i].Load(), "job %d did not run before Shutdown returned", i)
		require.True(t, handles[i].Ready())
		v, err := handles[i].Get()
		require.NoError(t, err)
		require.Equal(t, i*i, v)
	}
}

func TestPool_ShutdownWaitsForRunningJob(t *testing.T) {
	p := newPool(t, 1)

	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, p.Enqueue(func() {
		close(started)
		<-release
	}))
	<-started

	stopped := make(chan struct{})
	go func() {
		p.Shutdown()
		close(stopped)
	}()

	select {
	case <-stopped:
		t.Fatalf("Shutdown returned while a job was still running")
	case <-time.After(50 * time.Millisecond):
	}
	require.Eventually(t, p.Stopped, time.Second, 5*time.Millisecond)

	_, err := threadpool.Submit(p, threadpool.TaskValue(func() int { return 0 }))
	require.ErrorIs(t, err, threadpool.ErrPoolStopped, "intake closes as soon as Shutdown starts")

	close(release)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatalf("Shutdown did not return after the running job finished")
	}
}

func TestPool_FailureDoesNotAffectLaterJobs(t *testing.T) {
	p := newPool(t, 1)
	defer p.Shutdown()

	boom := errors.New("boom")
	h1, err := threadpool.Submit(p, threadpool.TaskError[int](func() error { return boom }))
	require.NoError(t, err)
	h2, err := threadpool.Submit(p, threadpool.TaskValue(func() int { return 2 }))
	require.NoError(t, err)

	_, err = h1.Get()
	require.Same(t, boom, err, "task errors are returned unchanged")

	v, err := h2.Get()
	require.NoError(t, err)
	require.Equal(t, 2, v)
}

func TestPool_PanicIsRecoveredIntoError(t *testing.T) {
	mp := metrics.NewBasicProvider()
	p := newPool(t, 1, threadpool.WithMetrics(mp))

	h, err := threadpool.Submit(p, threadpool.TaskValue(func() int { panic("kaboom") }))
	require.NoError(t, err)
	after, err := threadpool.Submit(p, threadpool.TaskValue(func() string { return "still here" }))
	require.NoError(t, err)

	v, err := h.Get()
	require.Zero(t, v)
	require.ErrorIs(t, err, threadpool.ErrTaskPanicked)
	require.Contains(t, err.Error(), "kaboom")

	s, err := after.Get()
	require.NoError(t, err)
	require.Equal(t, "still here", s)

	p.Shutdown()
	require.Equal(t, int64(1), counter(mp, "jobs_panicked"))
	require.Equal(t, int64(1), counter(mp, "jobs_succeeded"))
}

func TestPool_GoexitReplacesWorker(t *testing.T) {
	p := newPool(t, 1)

	h, err := threadpool.Submit(p, threadpool.TaskError[int](func() error {
		runtime.Goexit()
		return nil
	}))
	require.NoError(t, err)

	_, err = h.Get()
	require.ErrorIs(t, err, threadpool.ErrTaskExited)

	next, err := threadpool.Submit(p, threadpool.TaskValue(func() int { return 5 }))
	require.NoError(t, err)

	v, err := next.Wait(timeoutCtx(t, time.Second))
	require.NoError(t, err, "the single worker must have been replaced")
	require.Equal(t, 5, v)

	p.Shutdown()
}

func TestPool_ConcurrentSubmitters(t *testing.T) {
	p := newPool(t, 4)

	const submitters, each = 8, 50
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seqs = make(map[uint64]bool, submitters*each)
		sum  atomic.Int64
	)
	wg.Add(submitters)
	for s := 0; s < submitters; s++ {
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				h, err := threadpool.Submit(p, threadpool.TaskValue(func() int64 {
					sum.Add(1)
					return 1
				}))
				if err != nil {
					t.Errorf("submit: %v", err)
					return
				}
				mu.Lock()
				seqs[h.Seq()] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	p.Shutdown()

	require.Len(t, seqs, submitters*each, "every job must get a distinct sequence number")
	require.Equal(t, int64(submitters*each), sum.Load())
}

func TestPool_ShutdownIsIdempotent(t *testing.T) {
	p := newPool(t, 3)
	require.NoError(t, p.Enqueue(func() { time.Sleep(10 * time.Millisecond) }))

	var wg sync.WaitGroup
	wg.Add(10)
	for i := 0; i < 10; i++ {
		go func() {
			defer wg.Done()
			p.Shutdown()
		}()
	}
	wg.Wait()

	require.NotPanics(t, p.Shutdown)
	require.True(t, p.Stopped())
}

func TestPool_Introspection(t *testing.T) {
	p := newPool(t, 1, threadpool.WithName("inspect"))
	require.Equal(t, "inspect", p.Name())

	started := make(chan struct{})
	release := make(chan struct{})
	require.NoError(t, p.Enqueue(func() {
		close(started)
		<-release
	}))
	<-started
	require.NoError(t, p.Enqueue(func() {}))
	require.NoError(t, p.Enqueue(func() {}))

	require.Equal(t, 1, p.Running())
	require.Equal(t, 2, p.Pending())
	require.False(t, p.Stopped())

	close(release)
	p.Shutdown()
	require.Equal(t, 0, p.Running())
	require.Equal(t, 0, p.Pending())
}

func TestPool_Metrics(t *testing.T) {
	mp := metrics.NewBasicProvider()
	p := newPool(t, 2, threadpool.WithMetrics(mp))

	boom := errors.New("boom")
	for i := 0; i < 3; i++ {
		_, err := threadpool.Submit(p, threadpool.TaskValue(func() int { return i }))
		require.NoError(t, err)
	}
	for i := 0; i < 2; i++ {
		_, err := threadpool.Submit(p, threadpool.TaskError[int](func() error { return boom }))
		require.NoError(t, err)
	}
	_, err := threadpool.Submit(p, threadpool.TaskValue(func() int { panic("x") }))
	require.NoError(t, err)

	p.Shutdown()

	require.Equal(t, int64(6), counter(mp, "jobs_submitted"))
	require.Equal(t, int64(3), counter(mp, "jobs_succeeded"))
	require.Equal(t, int64(2), counter(mp, "jobs_failed"))
	require.Equal(t, int64(1), counter(mp, "jobs_panicked"))
	require.Equal(t, int64(0), updown(mp, "jobs_queued"))
	require.Equal(t, int64(0), updown(mp, "jobs_running"))
	require.Equal(t, int64(6), histogram(mp, "job_run_seconds").Count)
	require.Equal(t, int64(6), histogram(mp, "job_wait_seconds").Count)
}

func TestPool_ErrorTagging(t *testing.T) {
	p := newPool(t, 1, threadpool.WithErrorTagging())
	defer p.Shutdown()

	boom := errors.New("boom")
	_, err := threadpool.Submit(p, threadpool.TaskValue(func() int { return 0 }))
	require.NoError(t, err)
	h, err := threadpool.Submit(p, threadpool.TaskError[int](func() error { return boom }))
	require.NoError(t, err)

	_, err = h.Get()
	require.ErrorIs(t, err, boom)

	id, ok := threadpool.ExtractJobID(err)
	require.True(t, ok)
	require.Equal(t, h.ID(), id)

	seq, ok := threadpool.ExtractJobSeq(err)
	require.True(t, ok)
	require.Equal(t, h.Seq(), seq)

	require.Contains(t, fmt.Sprintf("%+v", err), fmt.Sprintf("seq=%d", seq))
	require.Equal(t, "boom", fmt.Sprintf("%v", err))
}

func TestPool_ErrorTaggingDisabledByDefault(t *testing.T) {
	p := newPool(t, 1)
	defer p.Shutdown()

	h, err := threadpool.Submit(p, threadpool.TaskError[int](func() error { return errors.New("plain") }))
	require.NoError(t, err)

	_, err = h.Get()
	_, ok := threadpool.ExtractJobID(err)
	require.False(t, ok)
}

// TestPool_UnreachablePoolIsShutDown checks that dropping the last reference to a pool
// stops its workers without an explicit Shutdown.
func TestPool_UnreachablePoolIsShutDown(t *testing.T) {
	mp := metrics.NewBasicProvider()
	logs := dropPool(t, mp)

	require.Eventually(t, func() bool {
		runtime.GC()
		return logs.FilterMessage("pool stopped").Len() == 1
	}, 5*time.Second, 20*time.Millisecond)

	require.Equal(t, int64(1), counter(mp, "jobs_succeeded"))
	require.Equal(t, int64(0), updown(mp, "jobs_queued"))
}

// dropPool starts a pool, hands it one job and lets the pool go out of scope.
//
//go:noinline
func dropPool(t *testing.T, mp *metrics.BasicProvider) *observer.ObservedLogs {
	core, logs := observer.New(zapcore.InfoLevel)
	p, err := threadpool.New(4, threadpool.WithMetrics(mp), threadpool.WithLogger(zap.New(core)))
	require.NoError(t, err)
	h, err := threadpool.Submit(p, threadpool.TaskValue(func() int { return 1 }))
	require.NoError(t, err)
	_, _ = h.Get()
	return logs
}

func timeoutCtx(t *testing.T, d time.Duration) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	t.Cleanup(cancel)
	return ctx
}

func counter(p *metrics.BasicProvider, name string) int64 {
	return p.Counter(name).(*metrics.BasicCounter).Snapshot()
}

func updown(p *metrics.BasicProvider, name string) int64 {
	return p.UpDownCounter(name).(*metrics.BasicUpDownCounter).Snapshot()
}

func histogram(p *metrics.BasicProvider, name string) metrics.HistSnapshot {
	return p.Histogram(name).(*metrics.BasicHistogram).Snapshot()
}

// lowWater tracks the smallest value an up-down counter ever reached.
type lowWater struct {
	cur, min atomic.Int64
}

func (l *lowWater) Add(n int64) {
	v := l.cur.Add(n)
	for {
		m := l.min.Load()
		if v >= m || l.min.CompareAndSwap(m, v) {
			return
		}
	}
}

type queuedWatcher struct {
	*metrics.BasicProvider
	queued *lowWater
}

func (w queuedWatcher) UpDownCounter(name string, opts ...metrics.InstrumentOption) metrics.UpDownCounter {
	if name == "jobs_queued" {
		return w.queued
	}
	return w.BasicProvider.UpDownCounter(name, opts...)
}

func TestPool_QueuedGaugeNeverNegative(t *testing.T) {
	w := queuedWatcher{BasicProvider: metrics.NewBasicProvider(), queued: &lowWater{}}
	p := newPool(t, 8, threadpool.WithMetrics(w))

	const submitters, each = 8, 2_000
	var wg sync.WaitGroup
	wg.Add(submitters)
	for s := 0; s < submitters; s++ {
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				if err := p.Enqueue(func() {}); err != nil {
					t.Errorf("enqueue: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
	p.Shutdown()

	require.Zero(t, w.queued.min.Load(), "jobs_queued dropped below zero")
	require.Zero(t, w.queued.cur.Load())
	require.Equal(t, int64(submitters*each), counter(w.BasicProvider, "jobs_submitted"))
}

func TestPool_RejectedJobLeavesQueuedGaugeAlone(t *testing.T) {
	mp := metrics.NewBasicProvider()
	p := newPool(t, 1, threadpool.WithMetrics(mp))
	p.Shutdown()

	require.ErrorIs(t, p.Enqueue(func() {}), threadpool.ErrPoolStopped)
	require.Equal(t, int64(0), updown(mp, "jobs_queued"))
	require.Equal(t, int64(1), counter(mp, "jobs_rejected"))
	require.Equal(t, int64(0), counter(mp, "jobs_submitted"))
}

func TestPool_ZeroValue(t *testing.T) {
	var p threadpool.Pool

	_, err := threadpool.Submit(&p, threadpool.TaskValue(func() int { return 1 }))
	require.ErrorIs(t, err, threadpool.ErrInvalidState)
	require.ErrorIs(t, p.Enqueue(func() {}), threadpool.ErrInvalidState)

	_, err = threadpool.RunAll(&p, []threadpool.Task[int]{threadpool.TaskValue(func() int { return 1 })})
	require.ErrorIs(t, err, threadpool.ErrInvalidState)

	require.NotPanics(t, p.Shutdown)
	require.True(t, p.Stopped())
	require.Zero(t, p.Threads())
	require.Zero(t, p.Pending())
	require.Zero(t, p.Running())
	require.Empty(t, p.Name())

	var nilPool *threadpool.Pool
	_, err = threadpool.Submit(nilPool, threadpool.TaskValue(func() int { return 1 }))
	require.ErrorIs(t, err, threadpool.ErrInvalidState)
}
