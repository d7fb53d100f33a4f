package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ygrebnov/threadpool"
	"github.com/ygrebnov/threadpool/internal/config"
	"github.com/ygrebnov/threadpool/internal/logging"
	"github.com/ygrebnov/threadpool/internal/spawner"
	"github.com/ygrebnov/threadpool/internal/supervisor"
	"github.com/ygrebnov/threadpool/metrics"
	mprom "github.com/ygrebnov/threadpool/metrics/prometheus"
)

func newRunCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Spawn job waves on a pool, wait for them and print a summary",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.load()
			if err != nil {
				return err
			}

			log, closeLog, err := logging.New(cfg.Log, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer func() { _ = closeLog() }()
			defer zap.ReplaceGlobals(log)()

			if attempt := supervisor.Attempt(); disarmOnRestart(cfg, attempt) {
				log.Info("restarted by supervisor, crash job disarmed", zap.Int("attempt", attempt))
			}

			// SIGTERM keeps its default disposition: a terminating job must kill the process.
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			return run(ctx, cfg, log, cmd.OutOrStdout())
		},
	}
}

// disarmOnRestart disables the crash job when this process is a supervisor restart.
// It reports whether a crash job was disarmed.
func disarmOnRestart(cfg *config.Config, attempt int) bool {
	if attempt <= 1 || cfg.Jobs.CrashAt < 0 {
		return false
	}
	cfg.Jobs.CrashAt = -1
	return true
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger, out io.Writer) error {
	basic := metrics.NewBasicProvider()
	provider := metrics.Provider(basic)

	if cfg.Metrics.Addr != "" {
		reg := prom.NewRegistry()
		reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		exporter := mprom.NewProvider(reg, mprom.Options{})
		provider = metrics.NewTeeProvider(basic, exporter)

		_, stopServer, err := serveMetrics(cfg.Metrics, reg, log)
		if err != nil {
			return err
		}
		defer stopServer()
		defer func() {
			if err := exporter.Err(); err != nil {
				log.Warn("some pool metrics were not exported", zap.Error(err))
			}
		}()
	}

	opts := []threadpool.Option{
		threadpool.WithName(cfg.Pool.Name),
		threadpool.WithLogger(log),
		threadpool.WithMetrics(provider),
	}
	if cfg.Pool.ErrorTagging {
		opts = append(opts, threadpool.WithErrorTagging())
	}

	threads := cfg.Threads()
	pool, err := threadpool.New(threads, opts...)
	if err != nil {
		return err
	}
	if threads == 0 {
		log.Warn("pool has no workers; queued jobs will be abandoned at shutdown")
	}

	sp := spawner.New(pool, spawner.Config{
		MinSleep: cfg.Jobs.MinSleep,
		MaxSleep: cfg.Jobs.MaxSleep,
		Crash:    cfg.CrashKind(),
		Seed:     cfg.Jobs.Seed,
	}, log)

	start := time.Now()
	waveErr := sp.Waves(ctx, cfg.Jobs.Waves, cfg.Jobs.Count, cfg.Jobs.CrashAt, cfg.Jobs.Interval)
	if errors.Is(waveErr, context.Canceled) {
		log.Info("interrupted, draining queued jobs")
		waveErr = nil
	}

	// Shutdown drains the queue, so every handle is resolved once it returns.
	pool.Shutdown()
	reports, err := sp.Collect(context.Background())
	if err != nil {
		return err
	}

	printSummary(out, summarize(reports, threads, time.Since(start)), basic.Values())
	return waveErr
}

// serveMetrics starts the Prometheus endpoint and returns its bound address and a function that stops it.
func serveMetrics(cfg config.Metrics, reg *prom.Registry, log *zap.Logger) (string, func(), error) {
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return "", nil, fmt.Errorf("metrics listener: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle(cfg.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics server", zap.Error(err))
		}
	}()
	log.Info("serving metrics", zap.String("addr", ln.Addr().String()), zap.String("path", cfg.Path))

	return ln.Addr().String(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
	}, nil
}
