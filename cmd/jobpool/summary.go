package main

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/fatih/color"

	"github.com/ygrebnov/threadpool"
	"github.com/ygrebnov/threadpool/internal/spawner"
	"github.com/ygrebnov/threadpool/metrics"
)

type summary struct {
	threads   uint
	wall      time.Duration
	jobs      int
	succeeded int
	abandoned int
	failed    []spawner.Report
	slowest   spawner.Report
	busy      time.Duration
}

func summarize(reports []spawner.Report, threads uint, wall time.Duration) summary {
	s := summary{threads: threads, wall: wall, jobs: len(reports)}
	for _, r := range reports {
		switch {
		case r.Err == nil:
			s.succeeded++
			s.busy += r.Elapsed
			if r.Elapsed > s.slowest.Elapsed {
				s.slowest = r
			}
		case errors.Is(r.Err, threadpool.ErrPoolStopped):
			s.abandoned++
		default:
			s.failed = append(s.failed, r)
		}
	}
	return s
}

func printSummary(w io.Writer, s summary, v metrics.Values) {
	bold := color.New(color.Bold)
	ok := color.New(color.FgGreen)
	bad := color.New(color.FgRed)
	dim := color.New(color.Faint)

	_, _ = bold.Fprintf(w, "%d jobs on %d threads in %s\n", s.jobs, s.threads, s.wall.Round(time.Millisecond))
	_, _ = ok.Fprintf(w, "  succeeded  %d\n", s.succeeded)
	if n := len(s.failed); n > 0 {
		_, _ = bad.Fprintf(w, "  failed     %d\n", n)
		for _, r := range s.failed {
			_, _ = bad.Fprintf(w, "    job %d (seq %d): %v\n", r.Job, r.Seq, r.Err)
		}
	}
	if s.abandoned > 0 {
		_, _ = bad.Fprintf(w, "  abandoned  %d\n", s.abandoned)
	}
	if s.succeeded > 0 {
		_, _ = fmt.Fprintf(w, "  slowest    job %d, %s\n", s.slowest.Job, s.slowest.Elapsed.Round(time.Millisecond))
		if s.threads > 0 && s.wall > 0 {
			util := float64(s.busy) / (float64(s.wall) * float64(s.threads)) * 100
			_, _ = fmt.Fprintf(w, "  busy       %.0f%% of worker time\n", util)
		}
	}

	names := make([]string, 0, len(v.Counters))
	for name := range v.Counters {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		_, _ = dim.Fprintf(w, "  %-16s %d\n", name, v.Counters[name])
	}
	if h, ok := v.Histograms["job_wait_seconds"]; ok && h.Count > 0 {
		_, _ = dim.Fprintf(w, "  %-16s mean %.3fs, max %.3fs\n", "queue wait", h.Mean, h.Max)
	}
}
