// Package config defines the configuration of the jobpool command.
//
// # Configuration Structure
//
//	Config
//	├── Pool        - worker pool size and naming
//	├── Jobs        - demo jobs: count, durations, crash job, waves
//	├── Log         - level, encoding, optional rotating file
//	├── Metrics     - Prometheus endpoint
//	└── Supervisor  - restart policy for "jobpool supervise"
//
// Values are layered, lowest first: struct defaults (default tags), an optional YAML file,
// JOBPOOL_* environment variables (JOBPOOL_POOL_THREADS, JOBPOOL_JOBS_CRASH_AT, ...),
// and command-line flags.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/spf13/viper"
	"github.com/ygrebnov/errorc"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/ygrebnov/threadpool"
	"github.com/ygrebnov/threadpool/internal/fault"
)

// EnvPrefix prefixes environment variable overrides.
const EnvPrefix = "JOBPOOL"

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("jobpool: invalid configuration")

// Config is the effective jobpool configuration.
type Config struct {
	Pool       Pool       `yaml:"pool" mapstructure:"pool"`
	Jobs       Jobs       `yaml:"jobs" mapstructure:"jobs"`
	Log        Log        `yaml:"log" mapstructure:"log"`
	Metrics    Metrics    `yaml:"metrics" mapstructure:"metrics"`
	Supervisor Supervisor `yaml:"supervisor" mapstructure:"supervisor"`
}

// Pool configures the worker pool.
type Pool struct {
	Name string `yaml:"name" mapstructure:"name" default:"jobpool"`
	// Threads is the exact worker count. Negative means DefaultThreads(Divisor); zero is a pool
	// that queues jobs and never runs them.
	Threads int `yaml:"threads" mapstructure:"threads" default:"-1"`
	// Divisor splits the detected CPUs when Threads is negative.
	Divisor      uint `yaml:"divisor" mapstructure:"divisor" default:"2"`
	ErrorTagging bool `yaml:"error_tagging" mapstructure:"error_tagging"`
}

// Jobs configures the demo jobs spawned by "jobpool run".
type Jobs struct {
	Count int `yaml:"count" mapstructure:"count" default:"10"`
	// CrashAt is the index, within each wave, of the job that kills the process. Negative disables it.
	CrashAt int `yaml:"crash_at" mapstructure:"crash_at" default:"-1"`
	// Crash is the fault the crash job triggers: terminate, abort or nil-deref.
	Crash    string        `yaml:"crash" mapstructure:"crash" default:"terminate"`
	MinSleep time.Duration `yaml:"min_sleep" mapstructure:"min_sleep" default:"100ms"`
	MaxSleep time.Duration `yaml:"max_sleep" mapstructure:"max_sleep" default:"1s"`
	Waves    int           `yaml:"waves" mapstructure:"waves" default:"1"`
	Interval time.Duration `yaml:"interval" mapstructure:"interval" default:"1s"`
	// Seed seeds the sleep generator. Zero picks a time-based seed.
	Seed int64 `yaml:"seed" mapstructure:"seed"`
}

// Log configures the process logger.
type Log struct {
	Level  string `yaml:"level" mapstructure:"level" default:"info"`
	Format string `yaml:"format" mapstructure:"format" default:"console"`
	// File, when set, receives a JSON copy of every entry, rotated by size.
	File       string `yaml:"file" mapstructure:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb" default:"10"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups" default:"3"`
	MaxAgeDays int    `yaml:"max_age_days" mapstructure:"max_age_days" default:"7"`
}

// Metrics configures the Prometheus endpoint. An empty Addr disables it.
type Metrics struct {
	Addr string `yaml:"addr" mapstructure:"addr"`
	Path string `yaml:"path" mapstructure:"path" default:"/metrics"`
}

// Supervisor configures restarts of the supervised child.
type Supervisor struct {
	MaxRestarts     uint          `yaml:"max_restarts" mapstructure:"max_restarts" default:"5"`
	InitialInterval time.Duration `yaml:"initial_interval" mapstructure:"initial_interval" default:"500ms"`
	MaxInterval     time.Duration `yaml:"max_interval" mapstructure:"max_interval" default:"10s"`
}

// Default returns a Config with every default applied.
func Default() *Config {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		// default tags are static; a failure here is a programming error
		panic(fmt.Sprintf("config: applying defaults: %v", err))
	}
	return cfg
}

// NewViper returns a viper instance preloaded with the defaults and wired to JOBPOOL_* variables.
// Every key is known to viper from the start, so environment overrides apply to all of them.
func NewViper() (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	base, err := Default().YAML()
	if err != nil {
		return nil, err
	}
	v.SetConfigType("yaml")
	if err := v.MergeConfig(bytes.NewReader(base)); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}
	return v, nil
}

// Load merges the optional YAML file at path into v, decodes the result and validates it.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
	}

	cfg := Default()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid field, joined.
func (c *Config) Validate() error {
	var errs []error
	invalid := func(field, msg string) {
		errs = append(errs, errorc.With(ErrInvalid, errorc.String(field, msg)))
	}

	if strings.TrimSpace(c.Pool.Name) == "" {
		invalid("pool.name", "must not be empty")
	}
	if c.Pool.Threads < -1 {
		invalid("pool.threads", "must be -1 (auto) or a worker count")
	}
	if c.Pool.Divisor == 0 {
		invalid("pool.divisor", "must be at least 1")
	}

	if c.Jobs.Count < 0 {
		invalid("jobs.count", "must not be negative")
	}
	if c.Jobs.CrashAt < -1 {
		invalid("jobs.crash_at", "must be -1 (disabled) or a job index")
	}
	if _, err := fault.ParseKind(c.Jobs.Crash); err != nil {
		invalid("jobs.crash", err.Error())
	}
	if c.Jobs.MinSleep < 0 {
		invalid("jobs.min_sleep", "must not be negative")
	}
	if c.Jobs.MaxSleep <= c.Jobs.MinSleep {
		invalid("jobs.max_sleep", "must be greater than jobs.min_sleep")
	}
	if c.Jobs.Waves < 1 {
		invalid("jobs.waves", "must be at least 1")
	}
	if c.Jobs.Interval < 0 {
		invalid("jobs.interval", "must not be negative")
	}

	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		invalid("log.level", err.Error())
	}
	if c.Log.Format != "console" && c.Log.Format != "json" {
		invalid("log.format", "must be console or json")
	}

	if c.Metrics.Addr != "" && !strings.HasPrefix(c.Metrics.Path, "/") {
		invalid("metrics.path", "must start with /")
	}

	if c.Supervisor.InitialInterval <= 0 || c.Supervisor.MaxInterval < c.Supervisor.InitialInterval {
		invalid("supervisor.initial_interval", "must be positive and not above supervisor.max_interval")
	}

	return errors.Join(errs...)
}

// Threads resolves the worker count handed to threadpool.New.
func (c *Config) Threads() uint {
	if c.Pool.Threads < 0 {
		return threadpool.DefaultThreads(c.Pool.Divisor)
	}
	return uint(c.Pool.Threads)
}

// CrashKind returns the parsed Jobs.Crash. Validate guarantees it parses.
func (c *Config) CrashKind() fault.Kind {
	k, _ := fault.ParseKind(c.Jobs.Crash)
	return k
}

// YAML renders the configuration.
func (c *Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return out, nil
}
