//go:build unix

package queue

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"

	"github.com/trobanga/enzflow/internal/lib"
	"github.com/trobanga/enzflow/internal/services"
)

// ProcessLauncher runs each admitted job in its own detached process:
//
//	enzflow [args] job process <job_id> --detached
//
// The child survives the caller and writes its output under the job's logs
// directory.
type ProcessLauncher struct {
	Executable string
	Args       []string
	Workspace  services.Workspace
	Logger     *lib.Logger
}

// NewProcessLauncher launches jobs with the running binary. args are passed
// before the subcommand, typically --config.
func NewProcessLauncher(ws services.Workspace, logger *lib.Logger, args ...string) (*ProcessLauncher, error) {
	exe, err := os.Executable()
	if err != nil {
		return nil, fmt.Errorf("resolve executable: %w", err)
	}
	return &ProcessLauncher{Executable: exe, Args: args, Workspace: ws, Logger: logger}, nil
}

// StdoutPath is where the child's stdout goes
func (l *ProcessLauncher) StdoutPath(jobID string) string {
	return filepath.Join(l.Workspace.LogsDir(jobID), "process.stdout.log")
}

// StderrPath is where the child's stderr goes
func (l *ProcessLauncher) StderrPath(jobID string) string {
	return filepath.Join(l.Workspace.LogsDir(jobID), "process.stderr.log")
}

// Launch starts the child and returns its pid once it is running
func (l *ProcessLauncher) Launch(ctx context.Context, jobID string) (int, error) {
	if err := l.Workspace.EnsureJobDirs(jobID); err != nil {
		return 0, err
	}

	stdoutFile, err := os.Create(l.StdoutPath(jobID))
	if err != nil {
		return 0, fmt.Errorf("create stdout log: %w", err)
	}
	defer func() { _ = stdoutFile.Close() }()
	stderrFile, err := os.Create(l.StderrPath(jobID))
	if err != nil {
		return 0, fmt.Errorf("create stderr log: %w", err)
	}
	defer func() { _ = stderrFile.Close() }()

	args := append(append([]string{}, l.Args...), "job", "process", jobID, "--detached")
	// The child outlives ctx.
	cmd := exec.Command(l.Executable, args...)
	cmd.Stdout = stdoutFile
	cmd.Stderr = stderrFile
	cmd.Env = os.Environ()
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start job process: %w", err)
	}

	pid := cmd.Process.Pid
	go func() {
		err := cmd.Wait()
		if l.Logger != nil {
			l.Logger.Debug("Job process exited", "job_id", jobID, "pid", pid, "error", err)
		}
	}()
	return pid, nil
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return p.Signal(syscall.Signal(0)) == nil
}
