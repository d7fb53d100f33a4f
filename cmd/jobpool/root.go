package main

import (
	"fmt"

	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/ygrebnov/threadpool/internal/config"
)

// app carries what every subcommand shares: the viper instance the flags are bound to
// and the optional config file path.
type app struct {
	v       *viper.Viper
	cfgFile string
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:          "jobpool",
		Short:        "Run demo jobs on a fixed-size worker pool",
		Long:         "jobpool spawns sleeping jobs on a fixed-size worker pool, reports how long each took,\nand can crash the process from inside a job to exercise supervisor restarts.",
		Version:      getVersion(),
		SilenceUsage: true,
	}

	v, err := config.NewViper()
	if err != nil {
		// defaults are static YAML; failing to load them is a programming error
		panic(err)
	}
	a.v = v

	fs := root.PersistentFlags()
	fs.StringVar(&a.cfgFile, "config", "", "YAML config file")
	if err := bindFlags(fs, v); err != nil {
		panic(err)
	}

	root.AddCommand(
		newRunCmd(a),
		newSuperviseCmd(a),
		newConfigCmd(a),
		newVersionCmd(),
	)
	return root
}

// load resolves the effective configuration from defaults, file, environment and flags.
func (a *app) load() (*config.Config, error) {
	return config.Load(a.v, a.cfgFile)
}

// bindFlags registers one flag per configurable key, with defaults taken from config.Default,
// and binds each to its viper key.
func bindFlags(fs *flag.FlagSet, v *viper.Viper) error {
	d := config.Default()

	fs.String("name", d.Pool.Name, "pool name used in logs and metrics")
	fs.Int("threads", d.Pool.Threads, "worker count; -1 uses detected CPUs / divisor, 0 runs nothing")
	fs.Uint("divisor", d.Pool.Divisor, "CPU divisor used when threads is -1")
	fs.Bool("error-tagging", d.Pool.ErrorTagging, "tag job errors with job id and sequence")

	fs.Int("jobs", d.Jobs.Count, "jobs per wave")
	fs.Int("crash-at", d.Jobs.CrashAt, "index of the crash job within each wave; -1 disables it")
	fs.String("crash", d.Jobs.Crash, "fault the crash job triggers: terminate, abort or nil-deref")
	fs.Duration("min-sleep", d.Jobs.MinSleep, "shortest job duration")
	fs.Duration("max-sleep", d.Jobs.MaxSleep, "longest job duration (exclusive)")
	fs.Int("waves", d.Jobs.Waves, "number of job waves")
	fs.Duration("interval", d.Jobs.Interval, "minimum time between waves")
	fs.Int64("seed", d.Jobs.Seed, "job duration seed; 0 is time based")

	fs.String("log-level", d.Log.Level, "log level")
	fs.String("log-format", d.Log.Format, "log encoding: console or json")
	fs.String("log-file", d.Log.File, "also log JSON to this rotated file")

	fs.String("metrics-addr", d.Metrics.Addr, "serve Prometheus metrics on this address")
	fs.String("metrics-path", d.Metrics.Path, "Prometheus metrics path")

	fs.Uint("max-restarts", d.Supervisor.MaxRestarts, "restarts allowed by supervise")

	keys := map[string]string{
		"name":          "pool.name",
		"threads":       "pool.threads",
		"divisor":       "pool.divisor",
		"error-tagging": "pool.error_tagging",
		"jobs":          "jobs.count",
		"crash-at":      "jobs.crash_at",
		"crash":         "jobs.crash",
		"min-sleep":     "jobs.min_sleep",
		"max-sleep":     "jobs.max_sleep",
		"waves":         "jobs.waves",
		"interval":      "jobs.interval",
		"seed":          "jobs.seed",
		"log-level":     "log.level",
		"log-format":    "log.format",
		"log-file":      "log.file",
		"metrics-addr":  "metrics.addr",
		"metrics-path":  "metrics.path",
		"max-restarts":  "supervisor.max_restarts",
	}
	for name, key := range keys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return fmt.Errorf("binding flag %s: %w", name, err)
		}
	}
	return nil
}
