// Package supervisor runs the node as a single child worker: it launches it,
// bounds its runtime, restarts it, and stops it cleanly on shutdown.
//
// # Security Model
//
// The command and arguments come from the configuration file and are executed
// directly, without a shell. The update hook is the only shell command minerd
// runs. Configuration files have the same trust level as a Makefile.
package supervisor

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// ProcessRunner creates and starts processes
type ProcessRunner interface {
	Start(ctx context.Context, config WorkerConfig) (Process, error)
}

// Process represents a running process
type Process interface {
	PID() int
	Wait() error
	Signal(sig os.Signal) error
	Stdout() io.ReadCloser
	Stderr() io.ReadCloser
}

// ExecRunner implements ProcessRunner using os/exec
type ExecRunner struct{}

// NewExecRunner creates a new ExecRunner
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Start starts the worker in its own process group. Cancelling ctx kills the
// whole group; the supervisor only cancels after its own termination protocol.
func (r *ExecRunner) Start(ctx context.Context, config WorkerConfig) (Process, error) {
	cmd := exec.CommandContext(ctx, config.Command, config.Args...)
	cmd.Dir = config.Dir

	cmd.Env = os.Environ()
	for k, v := range config.Env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	// Own pipes rather than cmd.StdoutPipe: Wait must not close the read
	// side while grandchildren are still writing.
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		stdoutR.Close()
		stdoutW.Close()
		return nil, fmt.Errorf("creating stderr pipe: %w", err)
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	p := &execProcess{cmd: cmd, stdout: stdoutR, stderr: stderrR}
	cmd.Cancel = func() error {
		return p.Signal(syscall.SIGKILL)
	}

	err = cmd.Start()
	// The child holds its own copies of the write ends.
	stdoutW.Close()
	stderrW.Close()
	if err != nil {
		stdoutR.Close()
		stderrR.Close()
		return nil, fmt.Errorf("starting process: %w", err)
	}

	return p, nil
}

// execProcess wraps exec.Cmd to implement Process interface
type execProcess struct {
	cmd    *exec.Cmd
	stdout *os.File
	stderr *os.File
}

func (p *execProcess) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *execProcess) Wait() error {
	return p.cmd.Wait()
}

// Signal delivers sig to the worker's whole process group
func (p *execProcess) Signal(sig os.Signal) error {
	if p.cmd.Process == nil {
		return nil
	}
	s, ok := sig.(syscall.Signal)
	if !ok {
		return p.cmd.Process.Signal(sig)
	}

	// Setpgid makes the leader's pid the group id. The group outlives a
	// reaped leader while any member is left, so this still reaches them.
	return unix.Kill(-p.cmd.Process.Pid, s)
}

func (p *execProcess) Stdout() io.ReadCloser {
	return p.stdout
}

func (p *execProcess) Stderr() io.ReadCloser {
	return p.stderr
}

// exitCode extracts the exit status from a Wait error. Death by signal is
// reported as the negative signal number, e.g. -9 for SIGKILL.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	exitErr, ok := err.(*exec.ExitError)
	if !ok {
		return 1
	}
	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok {
		if status.Signaled() {
			return -int(status.Signal())
		}
		return status.ExitStatus()
	}
	return exitErr.ExitCode()
}
