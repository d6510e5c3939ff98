package shell

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/creack/pty"
	"golang.org/x/sys/unix"
)

type ptyProcess struct {
	*os.File
	cmd    *exec.Cmd
	exited chan struct{}
}

func startPTY(_ context.Context, opts Options) (process, error) {
	shell := opts.Shell
	if shell == "" {
		shell = "/bin/sh"
	}
	var args []string
	if filepath.Base(shell) == "bash" {
		// Startup files would replace the prompt used to track the cwd, and
		// readline would echo input regardless of the terminal mode.
		args = []string{"--norc", "--noprofile", "--noediting"}
	}

	// The shell outlives the request that created it.
	cmd := exec.Command(shell, args...)
	cmd.Env = append(os.Environ(), "TERM=dumb", "PS1="+promptPS1, "PROMPT_COMMAND=")
	if home, err := os.UserHomeDir(); err == nil {
		cmd.Dir = home
	}

	f, err := pty.StartWithSize(cmd, &pty.Winsize{Rows: opts.Rows, Cols: opts.Cols})
	if err != nil {
		return nil, fmt.Errorf("start pty: %w", err)
	}
	if err := disableEcho(f); err != nil {
		opts.Logger.Debug("disable pty echo", "error", err)
	}

	p := &ptyProcess{File: f, cmd: cmd, exited: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		close(p.exited)
	}()
	return p, nil
}

// Hangup signals the shell's process group, then kills it if it is still
// running after grace.
func (p *ptyProcess) Hangup(grace time.Duration) error {
	pid := p.cmd.Process.Pid
	// pty.Start puts the shell in its own session, so its pgid is its pid.
	if err := unix.Kill(-pid, unix.SIGHUP); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("shell: hangup %d: %w", pid, err)
	}

	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-p.exited:
	case <-timer.C:
		_ = unix.Kill(-pid, unix.SIGKILL)
		<-p.exited
	}
	return p.File.Close()
}
