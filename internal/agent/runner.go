// Package agent invokes the external code-generation agent CLI as a
// subprocess. The agent's final answer arrives on stdout and is captured;
// its interactive chatter arrives on stderr and is forwarded to the user.
package agent

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"
	"time"
)

// Diagnostics receives structured diagnostic lines about agent invocations.
// *logging.Sink satisfies this.
type Diagnostics interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)
}

// Runner spawns the agent CLI with (model, title, prompt), retrying failed
// invocations with exponential backoff. A Runner is owned by the single loop
// goroutine; only Cancel may be called from another goroutine.
type Runner struct {
	command     string
	maxRetries  int
	backoffBase time.Duration
	logger      *slog.Logger
	diag        Diagnostics

	// stderr of the child is forwarded here line by line (user-visible
	// chatter). Defaults to os.Stderr.
	stderrOut io.Writer

	mu   sync.Mutex
	proc *exec.Cmd
}

// NewRunner creates a runner for the given agent command.
func NewRunner(command string, maxRetries int, backoffBase time.Duration, logger *slog.Logger, diag Diagnostics) *Runner {
	return &Runner{
		command:     command,
		maxRetries:  maxRetries,
		backoffBase: backoffBase,
		logger:      logger,
		diag:        diag,
		stderrOut:   os.Stderr,
	}
}

// SetStderrWriter redirects the child's forwarded stderr stream.
func (r *Runner) SetStderrWriter(w io.Writer) {
	r.stderrOut = w
}

// Run invokes the agent and returns its captured final answer. Any failure
// (spawn error, non-zero exit, signal termination) is retried up to
// maxRetries attempts; before attempt k (k>1) the runner sleeps
// backoffBase × 2^(k-2), interruptible by ctx. After exhausting retries the
// last failure is returned; the caller decides how to react.
func (r *Runner) Run(ctx context.Context, model, title, prompt string) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		if attempt > 1 {
			delay := r.backoffBase * time.Duration(1<<(attempt-2))
			r.logger.Debug("backing off before retry", "attempt", attempt, "delay", delay)

			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := ctx.Err(); err != nil {
			return "", err
		}

		r.diag.Infof("invoking agent: model=%s title=%q attempt=%d/%d", model, title, attempt, r.maxRetries)

		output, err := r.invoke(ctx, model, title, prompt)
		if err == nil {
			r.diag.Infof("agent succeeded: title=%q attempt=%d output_bytes=%d", title, attempt, len(output))
			return output, nil
		}

		lastErr = err
		r.logger.Warn("agent invocation failed", "title", title, "attempt", attempt, "error", err)
		r.diag.Warnf("agent attempt %d/%d failed: %v", attempt, r.maxRetries, err)
	}

	r.diag.Errorf("agent invocation exhausted %d attempts: title=%q last error: %v", r.maxRetries, title, lastErr)
	return "", fmt.Errorf("agent invocation failed after %d attempts: %w", r.maxRetries, lastErr)
}

// Cancel requests best-effort termination of any in-flight invocation. The
// whole process group is killed so helpers spawned by the agent that inherit
// the stderr pipe die with it; otherwise the pipe stays open and the stderr
// drain never finishes. Tolerates the process having already exited.
func (r *Runner) Cancel() {
	r.mu.Lock()
	proc := r.proc
	r.mu.Unlock()

	if proc != nil && proc.Process != nil {
		_ = terminate(proc)
	}
}

// invoke performs a single agent invocation.
func (r *Runner) invoke(ctx context.Context, model, title, prompt string) (string, error) {
	cmd := exec.CommandContext(ctx, r.command, "run", "--model", model, "--title", title, prompt)
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return terminate(cmd) }
	// Bounds Wait when the child exits leaving pipe data unread.
	cmd.WaitDelay = 10 * time.Second

	var stdout bytes.Buffer
	cmd.Stdout = &stdout

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return "", fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return "", fmt.Errorf("failed to start agent process: %w", err)
	}

	r.mu.Lock()
	r.proc = cmd
	r.mu.Unlock()

	stderrDone := make(chan struct{})
	go r.forwardStderr(stderr, stderrDone)

	<-stderrDone
	waitErr := cmd.Wait()

	r.mu.Lock()
	r.proc = nil
	r.mu.Unlock()

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			// Exit code retained for diagnostics only; all non-zero exits and
			// signal terminations classify the same way.
			if code := exitErr.ExitCode(); code >= 0 {
				return "", fmt.Errorf("agent exited with code %d", code)
			}
			return "", fmt.Errorf("agent terminated by signal: %w", waitErr)
		}
		return "", fmt.Errorf("agent process failed: %w", waitErr)
	}

	return stdout.String(), nil
}

// forwardStderr streams the child's stderr lines to the user-visible stream.
func (r *Runner) forwardStderr(stderr io.Reader, done chan<- struct{}) {
	defer close(done)

	scanner := bufio.NewScanner(stderr)
	scanner.Buffer(make([]byte, 4096), 1024*1024) // 1MB max line length

	for scanner.Scan() {
		line := scanner.Text()
		fmt.Fprintln(r.stderrOut, line)
		r.logger.Debug("agent stderr", "line", line)
	}

	if err := scanner.Err(); err != nil && err != io.EOF {
		r.logger.Warn("error reading agent stderr", "error", err)
	}
}
