package main

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"os/signal"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/ygrebnov/threadpool/internal/logging"
	"github.com/ygrebnov/threadpool/internal/supervisor"
)

func newSuperviseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "supervise [flags]",
		Short: "Run \"jobpool run\" as a child process and restart it when it dies",
		Long: "supervise starts \"jobpool run\" with the same flags and restarts it with exponential backoff\n" +
			"whenever it is killed by a signal or exits with a non-zero status.\n" +
			"Restarted children run without the crash job, so a recovered run can exit cleanly.",
		Args: cobra.NoArgs,
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
			log = log.Named("supervisor")

			self, err := os.Executable()
			if err != nil {
				return fmt.Errorf("locating own executable: %w", err)
			}
			childArgs := runArgs(cmd.Flags())

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, unix.SIGTERM)
			defer stop()

			sup := supervisor.New(supervisor.Config{
				MaxRestarts:     cfg.Supervisor.MaxRestarts,
				InitialInterval: cfg.Supervisor.InitialInterval,
				MaxInterval:     cfg.Supervisor.MaxInterval,
			}, log, func(ctx context.Context) *exec.Cmd {
				c := exec.CommandContext(ctx, self, childArgs...)
				c.Stdout, c.Stderr = cmd.OutOrStdout(), cmd.ErrOrStderr()
				return c
			})

			runs, err := sup.Run(ctx)
			printRuns(cmd, runs)
			if err != nil {
				log.Error("supervision ended", zap.Error(err))
			}
			return err
		},
	}
}

// runArgs rebuilds the "run" command line from the flags set on this invocation,
// wherever they appeared relative to the subcommand name.
func runArgs(fs *flag.FlagSet) []string {
	args := []string{"run"}
	fs.Visit(func(f *flag.Flag) {
		args = append(args, "--"+f.Name+"="+f.Value.String())
	})
	return args
}

func printRuns(cmd *cobra.Command, runs []supervisor.Run) {
	w := cmd.OutOrStdout()
	for _, r := range runs {
		if r.Clean() {
			_, _ = color.New(color.FgGreen).Fprintf(w, "run %d: clean exit after %s\n", r.Attempt, r.Duration)
			continue
		}
		cause := fmt.Sprintf("exit status %d", r.ExitCode)
		if r.Signal != "" {
			cause = "killed by " + r.Signal
		}
		_, _ = color.New(color.FgRed).Fprintf(w, "run %d: %s after %s\n", r.Attempt, cause, r.Duration)
	}
}
