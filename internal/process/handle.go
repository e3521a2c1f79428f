package process

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// Handle wraps a started OS process. It is created by the supervisor when a
// command starts and is only touched by that instance's monitor goroutine and
// the stop path; state bookkeeping lives in the supervisor loop.
type Handle struct {
	cmd     *exec.Cmd
	started time.Time
	closers []io.Closer
}

// Launch configures and starts the command for spec. Output streams are
// attached to stdout/stderr writers (capture ring plus rotated files); the
// child runs in its own process group so the whole tree can be signaled.
func Launch(spec *Spec, env []string, stdout, stderr io.Writer) (*Handle, error) {
	cmd := spec.BuildCommand()
	if spec.WorkDir != "" {
		cmd.Dir = spec.WorkDir
	}
	if len(env) > 0 {
		cmd.Env = env
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var closers []io.Closer
	if stdout != nil {
		cmd.Stdout = stdout
	} else {
		null, err := os.OpenFile(os.DevNull, os.O_RDWR, 0)
		if err == nil {
			cmd.Stdout = null
			closers = append(closers, null)
		}
	}
	if stderr != nil {
		cmd.Stderr = stderr
	} else if cmd.Stdout != nil && stdout == nil {
		cmd.Stderr = cmd.Stdout
	}

	if err := cmd.Start(); err != nil {
		for _, c := range closers {
			_ = c.Close()
		}
		return nil, &LaunchError{Name: spec.Name, Err: err}
	}
	return &Handle{cmd: cmd, started: time.Now(), closers: closers}, nil
}

// PID returns the process id of the started command.
func (h *Handle) PID() int {
	if h == nil || h.cmd == nil || h.cmd.Process == nil {
		return 0
	}
	return h.cmd.Process.Pid
}

// StartedAt returns the launch timestamp.
func (h *Handle) StartedAt() time.Time { return h.started }

// Wait blocks until the process exits and returns its exit error, if any.
// It must be called exactly once, by the monitor goroutine.
func (h *Handle) Wait() error {
	err := h.cmd.Wait()
	for _, c := range h.closers {
		_ = c.Close()
	}
	return err
}

// Signal sends sig to the whole process group.
func (h *Handle) Signal(sig syscall.Signal) error {
	pid := h.PID()
	if pid == 0 {
		return nil
	}
	return syscall.Kill(-pid, sig)
}

// Terminate sends SIGTERM to the process group.
func (h *Handle) Terminate() error { return h.Signal(syscall.SIGTERM) }

// Kill sends SIGKILL to the process group.
func (h *Handle) Kill() error { return h.Signal(syscall.SIGKILL) }

// ExitCode extracts the exit code from a Wait error. It returns -1 when the
// process was killed by a signal or the error is not an exit status.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		if status, ok := ee.Sys().(syscall.WaitStatus); ok {
			if status.Signaled() {
				return -1
			}
			return status.ExitStatus()
		}
		return ee.ExitCode()
	}
	return -1
}

// ExitSignal extracts the terminating signal name from a Wait error, or "".
func ExitSignal(err error) string {
	if err == nil {
		return ""
	}
	var ee *exec.ExitError
	if errors.As(err, &ee) {
		if status, ok := ee.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return status.Signal().String()
		}
	}
	return ""
}

// ParseSignal maps a config signal name to a syscall.Signal, defaulting to
// SIGTERM for the empty string and unknown names.
func ParseSignal(name string) syscall.Signal {
	switch name {
	case "", "SIGTERM", "TERM":
		return syscall.SIGTERM
	case "SIGINT", "INT":
		return syscall.SIGINT
	case "SIGQUIT", "QUIT":
		return syscall.SIGQUIT
	case "SIGHUP", "HUP":
		return syscall.SIGHUP
	case "SIGKILL", "KILL":
		return syscall.SIGKILL
	default:
		return syscall.SIGTERM
	}
}
