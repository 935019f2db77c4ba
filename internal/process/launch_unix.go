//go:build !windows

package process

import (
	"context"
	"os/exec"
	"syscall"
)

// detachedCommand execs the command line in place of the shell, so the pid of
// the started process is the pid of melt itself. Standard input and output are
// left nil and therefore bound to the null device.
func detachedCommand(cmdline string) *exec.Cmd {
	cmd := exec.Command("/bin/sh", "-c", "exec "+cmdline)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	return cmd
}

func shellCommand(ctx context.Context, cmdline string) *exec.Cmd {
	return exec.CommandContext(ctx, "/bin/sh", "-c", cmdline)
}
