package threadpool

import (
	"runtime"
	"strings"

	"github.com/ygrebnov/errorc"
	"go.uber.org/zap"

	"github.com/ygrebnov/threadpool/metrics"
)

// config holds Pool configuration.
type config struct {
	// Name identifies the pool in logs and metrics.
	// Default: "pool"
	Name string

	// Logger receives the pool's structured log entries. The pool names it after Name.
	// Default: zap.NewNop()
	Logger *zap.Logger

	// Metrics constructs the pool's instruments.
	// Default: metrics.NoopProvider
	Metrics metrics.Provider

	// ErrorTagging wraps task errors with job metadata (ID and sequence number).
	// When disabled, Handle.Get returns the exact error value the task returned.
	// Default: false (disabled).
	ErrorTagging bool
}

// defaultConfig centralizes default values for config.
func defaultConfig() config {
	return config{
		Name:         "pool",
		Logger:       zap.NewNop(),
		Metrics:      metrics.NewNoopProvider(),
		ErrorTagging: false,
	}
}

// validateConfig checks invariants the options cannot enforce one by one.
func validateConfig(cfg *config) error {
	if cfg.Logger == nil {
		return errorc.With(ErrInvalidConfig, errorc.String("logger", "must not be nil"))
	}
	if cfg.Metrics == nil {
		return errorc.With(ErrInvalidConfig, errorc.String("metrics", "must not be nil"))
	}
	return nil
}

// Option configures a Pool. Use New(threads, opts...) to construct a Pool via options.
type Option func(*config) error

// WithName sets the pool name used in logs and metric attributes.
func WithName(name string) Option {
	return func(cfg *config) error {
		name = strings.TrimSpace(name)
		if name == "" {
			return errorc.With(ErrInvalidConfig, errorc.String("name", "WithName requires a non-empty name"))
		}
		cfg.Name = name
		return nil
	}
}

// WithLogger sets the logger used by the pool and its workers.
func WithLogger(l *zap.Logger) Option {
	return func(cfg *config) error {
		if l == nil {
			return errorc.With(ErrInvalidConfig, errorc.String("logger", "WithLogger requires a non-nil logger"))
		}
		cfg.Logger = l
		return nil
	}
}

// WithMetrics sets the metrics provider used to create the pool's instruments.
func WithMetrics(p metrics.Provider) Option {
	return func(cfg *config) error {
		if p == nil {
			return errorc.With(ErrInvalidConfig, errorc.String("metrics", "WithMetrics requires a non-nil provider"))
		}
		cfg.Metrics = p
		return nil
	}
}

// WithErrorTagging enables wrapping task errors with job metadata (ID and sequence number).
func WithErrorTagging() Option {
	return func(cfg *config) error { cfg.ErrorTagging = true; return nil }
}

// DefaultThreads returns the number of detected CPUs divided by divisor, never less than one.
// A divisor of zero is treated as one.
//
// Applications that share the machine with a latency-sensitive thread (a render loop,
// an event dispatcher) commonly pass 2 to leave half of the cores to it.
func DefaultThreads(divisor uint) uint {
	if divisor == 0 {
		divisor = 1
	}
	n := uint(runtime.NumCPU()) / divisor
	if n == 0 {
		return 1
	}
	return n
}
