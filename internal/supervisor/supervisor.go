// Package supervisor restarts a child process that dies, with exponential backoff.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

var (
	// ErrChildFailed is wrapped by the error of every unclean child exit.
	ErrChildFailed = errors.New("supervisor: child failed")
	// ErrGaveUp is returned once the restart budget is spent.
	ErrGaveUp = errors.New("supervisor: giving up")
)

// AttemptEnv is set in every child's environment to its 1-based attempt number.
const AttemptEnv = "SUPERVISOR_ATTEMPT"

// Attempt returns the attempt number the supervisor gave this process, or 0 when the process
// was not started by a Supervisor.
func Attempt() int {
	n, err := strconv.Atoi(os.Getenv(AttemptEnv))
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// Config is the restart policy.
type Config struct {
	// MaxRestarts bounds restarts after the first run.
	MaxRestarts     uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

// Run describes one child execution.
type Run struct {
	Attempt  int
	ExitCode int
	// Signal names the signal that killed the child, empty if it exited.
	Signal   string
	Duration time.Duration
}

// Clean reports whether the child exited with status zero.
func (r Run) Clean() bool { return r.ExitCode == 0 && r.Signal == "" }

// Supervisor starts commands built by a factory until one exits cleanly.
type Supervisor struct {
	cfg     Config
	log     *zap.Logger
	command func(ctx context.Context) *exec.Cmd
}

// New returns a Supervisor. command is called once per attempt and must return a fresh, unstarted Cmd.
// The supervisor adds AttemptEnv to the command's environment.
func New(cfg Config, log *zap.Logger, command func(ctx context.Context) *exec.Cmd) *Supervisor {
	if log == nil {
		log = zap.NewNop()
	}
	return &Supervisor{cfg: cfg, log: log, command: command}
}

// Run supervises until the child exits cleanly, the restart budget is spent, the child cannot be
// started, or ctx ends. It returns every run in order.
func (s *Supervisor) Run(ctx context.Context) ([]Run, error) {
	var runs []Run

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.cfg.InitialInterval
	b.MaxInterval = s.cfg.MaxInterval

	op := func() (Run, error) {
		r, err := s.once(ctx, len(runs)+1)
		runs = append(runs, r)
		return r, err
	}
	notify := func(err error, next time.Duration) {
		s.log.Warn("restarting child", zap.Error(err), zap.Duration("in", next))
	}

	_, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(b),
		backoff.WithMaxTries(s.cfg.MaxRestarts+1),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(notify),
	)
	if err == nil {
		return runs, nil
	}
	if errors.Is(err, ErrChildFailed) {
		return runs, fmt.Errorf("%w after %d runs: %w", ErrGaveUp, len(runs), err)
	}
	return runs, err
}

// once runs one child to completion and classifies its exit.
func (s *Supervisor) once(ctx context.Context, attempt int) (Run, error) {
	r := Run{Attempt: attempt, ExitCode: -1}
	if err := ctx.Err(); err != nil {
		return r, backoff.Permanent(err)
	}

	cmd := s.command(ctx)
	if cmd.Env == nil {
		cmd.Env = os.Environ()
	}
	cmd.Env = append(cmd.Env, AttemptEnv+"="+strconv.Itoa(attempt))
	log := s.log.With(zap.Int("attempt", attempt))
	log.Info("starting child", zap.String("path", cmd.Path), zap.Strings("args", cmd.Args[1:]))

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return r, backoff.Permanent(fmt.Errorf("starting child: %w", err))
	}
	waitErr := cmd.Wait()
	r.Duration = time.Since(start)

	var exitErr *exec.ExitError
	switch {
	case waitErr == nil:
		r.ExitCode = 0
		log.Info("child exited cleanly", zap.Duration("ran", r.Duration))
		return r, nil
	case ctx.Err() != nil:
		return r, backoff.Permanent(ctx.Err())
	case errors.As(waitErr, &exitErr):
		r.ExitCode = exitErr.ExitCode()
		if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
			r.Signal = unix.SignalName(ws.Signal())
		}
	default:
		return r, backoff.Permanent(fmt.Errorf("waiting for child: %w", waitErr))
	}

	log.Error("child died",
		zap.Int("exit_code", r.ExitCode),
		zap.String("signal", r.Signal),
		zap.Duration("ran", r.Duration),
	)
	if r.Signal != "" {
		return r, fmt.Errorf("%w: killed by %s", ErrChildFailed, r.Signal)
	}
	return r, fmt.Errorf("%w: exit status %d", ErrChildFailed, r.ExitCode)
}
