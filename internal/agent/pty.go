package agent

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
)

const (
	defaultCols      = 120
	defaultRows      = 40
	defaultKillGrace = 5 * time.Second
)

// PTYSpawner starts an interactive shell attached to a pseudo-terminal.
type PTYSpawner struct {
	// Shell is the shell binary; DefaultShell() is used when empty.
	Shell string
	// ShellArgs are passed to the shell.
	ShellArgs []string
	// KillGrace is how long Kill waits after SIGHUP before sending SIGKILL.
	KillGrace time.Duration
}

// DefaultShell returns $SHELL, falling back to /bin/bash.
func DefaultShell() string {
	if sh := os.Getenv("SHELL"); sh != "" {
		return sh
	}
	return "/bin/bash"
}

// Spawn starts the shell in opts.Dir with opts.Env.
func (s *PTYSpawner) Spawn(ctx context.Context, opts SpawnOptions) (Process, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	shell := s.Shell
	if shell == "" {
		shell = DefaultShell()
	}

	cmd := exec.Command(shell, s.ShellArgs...)
	cmd.Dir = opts.Dir
	cmd.Env = opts.Env

	cols, rows := opts.Cols, opts.Rows
	if cols == 0 {
		cols = defaultCols
	}
	if rows == 0 {
		rows = defaultRows
	}

	tty, err := pty.StartWithSize(cmd, &pty.Winsize{Cols: cols, Rows: rows})
	if err != nil {
		return nil, fmt.Errorf("failed to start %s in %s: %w", shell, opts.Dir, err)
	}

	grace := s.KillGrace
	if grace <= 0 {
		grace = defaultKillGrace
	}

	return &ptyProcess{
		cmd:       cmd,
		tty:       tty,
		killGrace: grace,
		done:      make(chan struct{}),
	}, nil
}

type ptyProcess struct {
	cmd       *exec.Cmd
	tty       *os.File
	killGrace time.Duration
	done      chan struct{}
	waitOnce  sync.Once
	closeOnce sync.Once
	code      int
	waitErr   error
}

func (p *ptyProcess) Read(b []byte) (int, error) {
	return p.tty.Read(b)
}

func (p *ptyProcess) Write(b []byte) (int, error) {
	return p.tty.Write(b)
}

func (p *ptyProcess) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *ptyProcess) Wait() (int, error) {
	p.waitOnce.Do(func() {
		defer close(p.done)
		err := p.cmd.Wait()
		if err == nil {
			p.code = 0
			return
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			p.code = exitErr.ExitCode()
			return
		}
		p.code = -1
		p.waitErr = err
	})
	return p.code, p.waitErr
}

// Kill hangs up the shell, which an interactive shell honours where it would
// ignore SIGTERM, and escalates to SIGKILL after the grace period.
func (p *ptyProcess) Kill() error {
	if p.cmd.Process == nil {
		return errors.New("process not started")
	}
	if err := p.cmd.Process.Signal(syscall.SIGHUP); err != nil {
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}
		return p.cmd.Process.Kill()
	}

	go func() {
		select {
		case <-p.done:
		case <-time.After(p.killGrace):
			p.cmd.Process.Kill()
		}
	}()
	return nil
}

func (p *ptyProcess) Close() error {
	var err error
	p.closeOnce.Do(func() {
		err = p.tty.Close()
	})
	return err
}
