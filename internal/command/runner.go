// Package command executes external commands with bounded retries and
// structured failure reporting.
package command

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/benbjohnson/clock"

	"agentkeeper/internal/logger"
)

// Result carries the captured output of a command run.
type Result struct {
	Stdout   string
	Stderr   string
	Attempts int
}

// CommandError reports a command that kept failing after all retries.
type CommandError struct {
	Context  string
	Attempts int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s: command failed after %d attempts: %v", e.Context, e.Attempts, e.Err)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += fmt.Sprintf(" (stderr: %s)", s)
	}
	return msg
}

func (e *CommandError) Unwrap() error {
	return e.Err
}

// Options tunes retry behavior. Zero values fall back to the defaults.
type Options struct {
	// Retries is the total number of attempts, not the number of
	// attempts after the first.
	Retries int
	// Delay is the pause between attempts.
	Delay time.Duration
	// AttemptTimeout bounds a single attempt so a hung command cannot
	// stall a monitoring tick indefinitely. Zero disables the bound.
	AttemptTimeout time.Duration
	// Redact lists values that must never appear in log output or error
	// messages, such as credentials embedded in a command line.
	Redact []string
}

const (
	defaultRetries = 3
	defaultDelay   = 5 * time.Second
)

type execFunc func(ctx context.Context, argv []string) (stdout, stderr string, err error)

// Runner runs external commands with the configured retry policy.
type Runner struct {
	opts Options
	clk  clock.Clock
	exec execFunc
}

// NewRunner creates a Runner with the given options.
func NewRunner(opts Options) *Runner {
	if opts.Retries <= 0 {
		opts.Retries = defaultRetries
	}
	if opts.Delay <= 0 {
		opts.Delay = defaultDelay
	}
	return &Runner{
		opts: opts,
		clk:  clock.New(),
		exec: runOSCommand,
	}
}

// Run executes argv, retrying on failure. Every attempt is logged with its
// captured output. After the last failed attempt it returns a *CommandError
// naming errContext. Cancelling ctx aborts the wait between attempts; an
// attempt already in flight is left to finish its timeout.
func (r *Runner) Run(ctx context.Context, argv []string, errContext string) (Result, error) {
	if len(argv) == 0 {
		return Result{}, fmt.Errorf("%s: empty command", errContext)
	}

	log := logger.WithComponent("command")
	cmdline := r.redact(strings.Join(argv, " "))

	var lastErr error
	var lastStderr string

	for attempt := 1; attempt <= r.opts.Retries; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return Result{}, ctx.Err()
			case <-r.clk.After(r.opts.Delay):
			}
		}

		attemptCtx := ctx
		cancel := func() {}
		if r.opts.AttemptTimeout > 0 {
			attemptCtx, cancel = context.WithTimeout(ctx, r.opts.AttemptTimeout)
		}
		stdout, stderr, err := r.exec(attemptCtx, argv)
		cancel()

		if err == nil {
			log.Info().
				Str("cmd", cmdline).
				Int("attempt", attempt).
				Str("stdout", r.redact(strings.TrimSpace(stdout))).
				Str("stderr", r.redact(strings.TrimSpace(stderr))).
				Msg("Command succeeded")
			return Result{Stdout: stdout, Stderr: stderr, Attempts: attempt}, nil
		}

		lastErr = err
		lastStderr = stderr
		log.Error().
			Err(err).
			Str("cmd", cmdline).
			Int("attempt", attempt).
			Int("retries", r.opts.Retries).
			Str("stdout", r.redact(strings.TrimSpace(stdout))).
			Str("stderr", r.redact(strings.TrimSpace(stderr))).
			Msg("Command failed")

		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
	}

	return Result{Attempts: r.opts.Retries}, &CommandError{
		Context:  errContext,
		Attempts: r.opts.Retries,
		Stderr:   r.redact(lastStderr),
		Err:      lastErr,
	}
}

// redact masks configured secret values. The error path goes through here
// too because CommandError.Stderr ends up in log lines.
func (r *Runner) redact(s string) string {
	for _, v := range r.opts.Redact {
		if v != "" {
			s = strings.ReplaceAll(s, v, "****")
		}
	}
	return s
}

func runOSCommand(ctx context.Context, argv []string) (string, string, error) {
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}
