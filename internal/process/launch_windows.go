//go:build windows

package process

import (
	"context"
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"
)

// detachedCommand runs the command line through cmd.exe without a console and
// in its own process group. cmd.exe does not understand line continuations,
// so the command is flattened first.
func detachedCommand(cmdline string) *exec.Cmd {
	cmd := exec.Command("cmd.exe")
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CmdLine:       "cmd.exe /C " + Flatten(cmdline),
		CreationFlags: windows.DETACHED_PROCESS | windows.CREATE_NEW_PROCESS_GROUP,
		HideWindow:    true,
	}
	return cmd
}

func shellCommand(ctx context.Context, cmdline string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, "cmd.exe")
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CmdLine:    "cmd.exe /C " + Flatten(cmdline),
		HideWindow: true,
	}
	return cmd
}
