package threadpool

// Task is the canonical job shape accepted by Submit.
// It takes no arguments and returns a result of type R and an error.
// Use TaskFunc / TaskValue / TaskError to adapt common function signatures,
// and Bind / Bind2 to defer a call with its arguments already chosen.
//
// Example:
//
//	t := Bind(strconv.Atoi, "42")
//	h, err := Submit(p, t)
type Task[R any] func() (R, error)

// TaskFunc adapts func() (R, error) to Task[R].
func TaskFunc[R any](fn func() (R, error)) Task[R] { return Task[R](fn) }

// TaskValue adapts func() R to Task[R].
func TaskValue[R any](fn func() R) Task[R] {
	if fn == nil {
		return nil
	}
	return func() (R, error) { return fn(), nil }
}

// TaskError adapts func() error to Task[R].
// The returned Task yields the zero value of R alongside the error.
func TaskError[R any](fn func() error) Task[R] {
	if fn == nil {
		return nil
	}
	return func() (R, error) { var zero R; return zero, fn() }
}

// Bind defers fn(a). The argument is captured when Bind is called, not when the task runs.
func Bind[A, R any](fn func(A) (R, error), a A) Task[R] {
	if fn == nil {
		return nil
	}
	return func() (R, error) { return fn(a) }
}

// Bind2 defers fn(a, b). Arguments are captured when Bind2 is called.
func Bind2[A, B, R any](fn func(A, B) (R, error), a A, b B) Task[R] {
	if fn == nil {
		return nil
	}
	return func() (R, error) { return fn(a, b) }
}
