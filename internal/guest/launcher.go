package guest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"syscall"

	"golang.org/x/sys/unix"
)

// Instance is a running guest.
type Instance interface {
	// Terminate asks the guest to stop. It does not wait for the exit.
	Terminate() error
	// Wait blocks until the guest process has exited.
	Wait() error
}

// Launcher starts guests as QEMU subprocesses.
type Launcher struct {
	Paths Paths

	// Stdout and Stderr receive the hypervisor's own output. Nil discards it.
	Stdout io.Writer
	Stderr io.Writer

	Logger *slog.Logger
}

func (l *Launcher) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

// Command returns the argv used to launch t.
func (l *Launcher) Command(t Type) []string {
	argv := []string{l.Paths.Hypervisor}
	if l.Paths.UseSudo {
		argv = append([]string{"sudo"}, argv...)
	}
	return append(argv, Args(t, l.Paths)...)
}

// CommandLine renders the launch command for display.
func (l *Launcher) CommandLine(t Type) string {
	return strings.Join(l.Command(t), " ")
}

// Start launches t. The process is placed in its own process group so that
// Terminate reaches QEMU as well as a sudo wrapper.
func (l *Launcher) Start(ctx context.Context, t Type) (Instance, error) {
	if l.Paths.Hypervisor == "" {
		return nil, fmt.Errorf("start guest %s: no hypervisor configured", t)
	}

	argv := l.Command(t)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = l.Stdout
	cmd.Stderr = l.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return signalGroup(cmd.Process.Pid, unix.SIGTERM)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start guest %s: %w", t, err)
	}

	l.logger().Debug("started guest", "type", t, "pid", cmd.Process.Pid)

	p := &process{cmd: cmd, done: make(chan struct{})}
	go p.reap()
	return p, nil
}

type process struct {
	cmd *exec.Cmd

	once    sync.Once
	done    chan struct{}
	waitErr error
}

func (p *process) reap() {
	p.waitErr = p.cmd.Wait()
	close(p.done)
}

func (p *process) Terminate() error {
	var err error
	p.once.Do(func() {
		select {
		case <-p.done:
			return
		default:
		}
		err = signalGroup(p.cmd.Process.Pid, unix.SIGTERM)
	})
	return err
}

func (p *process) Wait() error {
	<-p.done
	var exitErr *exec.ExitError
	if errors.As(p.waitErr, &exitErr) && !exitErr.Exited() {
		// Killed by our own signal.
		return nil
	}
	return p.waitErr
}

// signalGroup signals the process group led by pid, falling back to the
// process alone when the group cannot be signalled.
func signalGroup(pid int, sig syscall.Signal) error {
	if err := unix.Kill(-pid, sig); err == nil {
		return nil
	}
	if err := unix.Kill(pid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("signal %d: %w", pid, err)
	}
	return nil
}
