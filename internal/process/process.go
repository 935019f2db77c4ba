// Package process launches melt command lines outside the agent's process
// tree and inspects the OS process table.
package process

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
)

// ErrNoPID is returned when a launch did not yield a process id.
var ErrNoPID = errors.New("launch returned no process id")

// Launcher starts a shell command line detached from the caller and returns
// its process id without waiting for it.
type Launcher interface {
	Launch(ctx context.Context, cmdline string) (int, error)
}

// Lister reports the ids of running processes for a binary.
type Lister interface {
	RunningPIDs(ctx context.Context, binary string) ([]int, error)
}

// DetachedLauncher is the production Launcher. The started process gets its
// own session (or process group on Windows) so it survives the agent.
type DetachedLauncher struct {
	logger *slog.Logger
}

func NewDetachedLauncher(logger *slog.Logger) *DetachedLauncher {
	return &DetachedLauncher{logger: logger}
}

// Launch starts cmdline in the background. The context only bounds the start
// itself; cancelling it later does not touch the running process.
func (l *DetachedLauncher) Launch(ctx context.Context, cmdline string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	cmd := detachedCommand(cmdline)
	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("start detached: %w", err)
	}

	pid := 0
	if cmd.Process != nil {
		pid = cmd.Process.Pid
	}
	if pid <= 0 {
		return 0, ErrNoPID
	}

	// Reap the child; an unreaped zombie stays in the process table.
	go func() {
		err := cmd.Wait()
		if l.logger != nil {
			l.logger.Debug("detached process exited", "pid", pid, "error", err)
		}
	}()

	if l.logger != nil {
		l.logger.Info("detached process started", "pid", pid)
	}
	return pid, nil
}

// Shell runs cmdline in the foreground through the platform shell and returns
// its standard output. It blocks until the process exits.
func Shell(ctx context.Context, cmdline string) ([]byte, error) {
	cmd := shellCommand(ctx, cmdline)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return out, fmt.Errorf("command exited %d: %s", exitErr.ExitCode(), truncate(string(exitErr.Stderr), 512))
		}
		return out, err
	}
	return out, nil
}

// Flatten joins a multi-line command built with shell line continuations into
// a single line.
func Flatten(cmdline string) string {
	return strings.ReplaceAll(cmdline, " \\\n", " ")
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}
