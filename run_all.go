package threadpool

import (
	"errors"
)

// RunAll submits tasks to p and waits for every one that was accepted.
// The caller owns p's lifecycle; RunAll never shuts it down.
//
// Semantics:
// - Results are returned in submission order. A failed task leaves the zero value of R in its slot.
// - Submission stops at the first rejected task (the pool is stopping); that rejection and
//   every task error are returned as errors.Join. Results of rejected tasks are omitted.
// - Blocks until all accepted tasks have finished.
func RunAll[R any](p *Pool, tasks []Task[R]) ([]R, error) {
	handles, submitErr := submitAll[R](p, tasks)
	return collect[R](handles, submitErr)
}

// submitAll submits tasks in order until one is rejected.
func submitAll[R any](p *Pool, tasks []Task[R]) ([]*Handle[R], error) {
	handles := make([]*Handle[R], 0, len(tasks))
	for _, t := range tasks {
		h, err := Submit(p, t)
		if err != nil {
			return handles, err
		}
		handles = append(handles, h)
	}
	return handles, nil
}

// collect waits for each handle in order and aggregates errors.
func collect[R any](handles []*Handle[R], submitErr error) ([]R, error) {
	results := make([]R, len(handles))
	errs := make([]error, 0, len(handles)+1)
	for i, h := range handles {
		r, err := h.Get()
		if err != nil {
			errs = append(errs, err)
			continue
		}
		results[i] = r
	}
	if submitErr != nil {
		errs = append(errs, submitErr)
	}
	return results, errors.Join(errs...)
}
