package threadpool

// Map runs fn for every item on p and returns the results in item order with the aggregated error.
// Semantics follow RunAll: the caller owns p, and a stopping pool ends submission early.
func Map[T, R any](p *Pool, items []T, fn func(T) (R, error)) ([]R, error) {
	if len(items) == 0 {
		return nil, nil
	}
	tasks := make([]Task[R], 0, len(items))
	for i := range items {
		tasks = append(tasks, Bind(fn, items[i]))
	}
	return RunAll[R](p, tasks)
}
