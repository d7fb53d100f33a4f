// Package threadpool provides a fixed-size pool of worker goroutines that run submitted
// jobs asynchronously and hand back a handle for each job's outcome.
//
// Constructor
//   - New(threads, opts ...Option): starts exactly threads workers. Zero is allowed and
//     yields a pool that queues jobs without running them.
//   - DefaultThreads(divisor): detected CPUs divided by divisor, at least one.
//
// Defaults
// Unless overridden, the following defaults apply to a newly created pool:
//   - Name: "pool"
//   - Logger: zap.NewNop()
//   - Metrics: metrics.NoopProvider
//   - ErrorTagging: false
//
// Submitting
//   - Submit(p, task) returns a *Handle[R] immediately; the job is queued in FIFO order.
//   - p.Enqueue(fn) is the fire-and-forget form.
//   - RunAll, Map and ForEach submit a batch and wait for it in submission order.
//
// Outcomes
// Handle.Get blocks until the job finishes and returns its value and error. A task that
// returns an error or panics affects only its own handle; the worker keeps serving the queue.
// Panics surface as errors wrapping ErrTaskPanicked.
//
// Faults that terminate the process (fatal signals, unrecovered panics on goroutines the
// task starts itself, runtime fatal errors) are not contained by the pool.
//
// Shutdown
// Shutdown stops intake, lets workers drain every queued job, and joins them. It is
// idempotent. Submit fails with ErrPoolStopped from the moment Shutdown starts.
// There is no cancellation of queued or running jobs.
//
// Pools must come from New. A zero-value Pool rejects work with ErrInvalidState.
package threadpool
