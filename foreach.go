package threadpool

// ForEach applies fn to each item on p and returns the aggregated error (errors.Join) or nil.
func ForEach[T any](p *Pool, items []T, fn func(T) error) error {
	if len(items) == 0 {
		return nil
	}
	tasks := make([]Task[struct{}], 0, len(items))
	for i := range items {
		item := items[i]
		tasks = append(tasks, TaskError[struct{}](func() error { return fn(item) }))
	}
	_, err := RunAll[struct{}](p, tasks)
	return err
}
