//go:build unix

package runner

import (
	"os/exec"
	"syscall"
)

// process wraps a started command for the registry
type process struct {
	cmd  *exec.Cmd
	done chan struct{}
	code int
}

func newProcess(cmd *exec.Cmd) *process {
	p := &process{cmd: cmd, done: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		if cmd.ProcessState != nil {
			p.code = cmd.ProcessState.ExitCode()
		} else {
			p.code = -1
		}
		close(p.done)
	}()
	return p
}

func processGroupAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setpgid: true}
}

func (p *process) Pid() int { return p.cmd.Process.Pid }

// Terminate sends SIGTERM to the whole process group
func (p *process) Terminate() error {
	return syscall.Kill(-p.Pid(), syscall.SIGTERM)
}

// Kill sends SIGKILL to the whole process group
func (p *process) Kill() error {
	return syscall.Kill(-p.Pid(), syscall.SIGKILL)
}

func (p *process) Done() <-chan struct{} { return p.done }

// exitCode is only valid once Done is closed
func (p *process) exitCode() int { return p.code }
