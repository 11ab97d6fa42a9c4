// Package runner starts external tools, enforces timeouts and reports
// progress while they run.
package runner

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/trobanga/enzflow/internal/lib"
	"github.com/trobanga/enzflow/internal/registry"
)

// DefaultPollInterval is the completion polling granularity
const DefaultPollInterval = time.Second

// ProgressSink persists the running step's progress message
type ProgressSink interface {
	Report(ctx context.Context, message string) error
}

// ProgressFunc adapts a function to ProgressSink
type ProgressFunc func(ctx context.Context, message string) error

// Report calls f
func (f ProgressFunc) Report(ctx context.Context, message string) error {
	return f(ctx, message)
}

// Executor runs one external command; *Runner is the production implementation
type Executor interface {
	Run(ctx context.Context, cmd Command, timeout time.Duration, sink ProgressSink) (exitCode int, timedOut bool, err error)
}

// Runner executes commands and keeps them registered while they run
type Runner struct {
	Registry     *registry.Registry
	Logger       *lib.Logger
	PollInterval time.Duration
	Grace        time.Duration // Interrupt grace period before killing

	// checkInterval overrides CheckInterval (tests)
	checkInterval func(int64) time.Duration
}

// New returns a runner bound to reg
func New(reg *registry.Registry, logger *lib.Logger) *Runner {
	return &Runner{
		Registry:     reg,
		Logger:       logger,
		PollInterval: DefaultPollInterval,
		Grace:        registry.DefaultGrace,
	}
}

// Run starts cmd and waits for it to exit, time out, or be interrupted.
//
// On normal exit it returns the exit code. When timeout elapses the process
// group is killed and (-1, true) is returned. When ctx is cancelled the
// process is asked to stop, killed after the grace period, and (-1, false)
// is returned. err is set when the process could not be started, including
// when ctx was already cancelled before the start.
func (r *Runner) Run(ctx context.Context, cmd Command, timeout time.Duration, sink ProgressSink) (exitCode int, timedOut bool, err error) {
	if err := ctx.Err(); err != nil {
		return -1, false, err
	}
	if timeout <= 0 {
		timeout = Unbounded
	}

	stdout, err := openLog(cmd.StdoutPath)
	if err != nil {
		return -1, false, err
	}
	defer closeQuietly(stdout)

	stderr, err := openLog(cmd.StderrPath)
	if err != nil {
		return -1, false, err
	}
	defer closeQuietly(stderr)

	execCmd := exec.Command(cmd.Name, cmd.Args...)
	execCmd.Dir = cmd.Dir
	execCmd.Env = append(os.Environ(), cmd.Env...)
	execCmd.Stdout = stdout
	execCmd.Stderr = stderr
	execCmd.SysProcAttr = processGroupAttr()

	lib.LogToolCall(r.Logger, cmd.Name, cmd.Args)

	if err := execCmd.Start(); err != nil {
		return -1, false, lib.ErrToolUnavailable(cmd.Name, err)
	}

	proc := newProcess(execCmd)
	r.Registry.Register(proc)
	defer r.Registry.Unregister(proc)

	poll := r.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	intervalFn := CheckInterval
	if r.checkInterval != nil {
		intervalFn = r.checkInterval
	}
	checkEvery := intervalFn(cmd.InputSize)

	start := time.Now()
	lastCheck := start
	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-proc.Done():
			return proc.exitCode(), false, nil

		case <-ctx.Done():
			r.Logger.Warn("Interrupt requested, stopping tool", "tool", cmd.Name, "pid", proc.Pid())
			registry.StopProcess(proc, r.Grace, r.Logger)
			<-proc.Done()
			return -1, false, nil

		case now := <-ticker.C:
			elapsed := now.Sub(start)
			if elapsed > timeout {
				r.Logger.Warn("Tool timed out, killing", "tool", cmd.Name, "timeout", timeout, "elapsed", elapsed)
				_ = proc.Kill()
				<-proc.Done()
				return -1, true, nil
			}

			if sink != nil && cmd.Label != "" && now.Sub(lastCheck) >= checkEvery {
				lastCheck = now
				if err := sink.Report(ctx, ProgressText(cmd.Label, elapsed)); err != nil {
					r.Logger.Warn("Failed to persist progress", "tool", cmd.Name, "error", err)
				}
			}
		}
	}
}

func openLog(path string) (io.WriteCloser, error) {
	if path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	return f, nil
}

func closeQuietly(c io.WriteCloser) {
	if c != nil {
		_ = c.Close()
	}
}
