package flaky

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Exec runs one attempt of the command and returns its combined output.
// A non-nil error with output means the command ran and exited non-zero.
type Exec func(ctx context.Context, dir string, argv []string) ([]byte, error)

// Runner repeats the configured command and aggregates failures.
type Runner struct {
	cfg      Config
	patterns []*regexp.Regexp
	exec     Exec
	logger   zerolog.Logger
	now      func() time.Time
}

// NewRunner validates cfg. A nil exec runs the command through os/exec.
func NewRunner(cfg Config, exec Exec, logger zerolog.Logger) (*Runner, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	patterns, err := compilePatterns(cfg.FailPatterns)
	if err != nil {
		return nil, err
	}
	if exec == nil {
		exec = osExec
	}
	return &Runner{cfg: cfg, patterns: patterns, exec: exec, logger: logger, now: time.Now}, nil
}

// Run executes the command up to cfg.Runs times. Cancelling ctx stops after
// the current attempt and reports what was collected so far.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	argv := strings.Fields(r.cfg.Command)
	rep := &Report{Command: r.cfg.Command, StartedAt: r.now().UTC()}
	counts := make(map[string]int)

	for i := 1; i <= r.cfg.Runs; i++ {
		if ctx.Err() != nil {
			rep.Interrupted = true
			break
		}
		start := r.now()
		out, failed, err := r.attempt(ctx, argv)
		if err != nil {
			return nil, fmt.Errorf("run %d: %w", i, err)
		}
		if ctx.Err() != nil {
			rep.Interrupted = true
			break
		}
		rep.Runs++

		names := failures(out, r.patterns)
		for _, name := range names {
			counts[name]++
		}
		switch {
		case failed && len(names) == 0:
			rep.Unattributed++
			r.logger.Warn().Int("run", i).Msg("command failed without a recognised test failure")
		case !failed && len(names) == 0:
			rep.CleanRuns++
		}
		r.logger.Info().
			Int("run", i).
			Int("of", r.cfg.Runs).
			Int("failures", len(names)).
			Dur("took", r.now().Sub(start)).
			Msg("run finished")

		if r.cfg.StopOnClean && !failed && len(names) == 0 {
			break
		}
	}

	rep.classify(counts)
	rep.FinishedAt = r.now().UTC()
	return rep, nil
}

func (r *Runner) attempt(ctx context.Context, argv []string) ([]byte, bool, error) {
	runCtx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()
	out, err := r.exec(runCtx, r.cfg.Dir, argv)
	if err == nil {
		return out, false, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) || errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		if runCtx.Err() != nil && ctx.Err() == nil {
			r.logger.Warn().Dur("timeout", r.cfg.Timeout).Msg("run timed out")
		}
		return out, true, nil
	}
	return nil, false, err
}

func osExec(ctx context.Context, dir string, argv []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.WaitDelay = 5 * time.Second
	return cmd.CombinedOutput()
}
