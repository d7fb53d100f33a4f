package threadpool

import (
	"github.com/ygrebnov/threadpool/metrics"
)

// instruments are the pool's metrics, created once per pool from the configured provider.
type instruments struct {
	submitted metrics.Counter
	rejected  metrics.Counter
	succeeded metrics.Counter
	failed    metrics.Counter
	panicked  metrics.Counter

	queued  metrics.UpDownCounter
	running metrics.UpDownCounter

	waitSeconds metrics.Histogram
	runSeconds  metrics.Histogram
}

func newInstruments(p metrics.Provider, pool string) *instruments {
	attrs := metrics.WithAttributes(map[string]string{"pool": pool})
	count := metrics.WithUnit("1")
	seconds := metrics.WithUnit("seconds")

	return &instruments{
		submitted: p.Counter("jobs_submitted", attrs, count,
			metrics.WithDescription("Jobs accepted into the queue.")),
		rejected: p.Counter("jobs_rejected", attrs, count,
			metrics.WithDescription("Jobs refused because the pool was stopping or stopped.")),
		succeeded: p.Counter("jobs_succeeded", attrs, count,
			metrics.WithDescription("Jobs that returned a nil error.")),
		failed: p.Counter("jobs_failed", attrs, count,
			metrics.WithDescription("Jobs that returned an error or exited their goroutine.")),
		panicked: p.Counter("jobs_panicked", attrs, count,
			metrics.WithDescription("Jobs whose panic was recovered into an error.")),
		queued: p.UpDownCounter("jobs_queued", attrs, count,
			metrics.WithDescription("Jobs waiting in the queue.")),
		running: p.UpDownCounter("jobs_running", attrs, count,
			metrics.WithDescription("Jobs currently executing.")),
		waitSeconds: p.Histogram("job_wait_seconds", attrs, seconds,
			metrics.WithDescription("Time between submission and the start of execution.")),
		runSeconds: p.Histogram("job_run_seconds", attrs, seconds,
			metrics.WithDescription("Job execution time.")),
	}
}

func (i *instruments) record(st status) {
	switch st {
	case statusSucceeded:
		i.succeeded.Add(1)
	case statusPanicked:
		i.panicked.Add(1)
	default:
		i.failed.Add(1)
	}
}
