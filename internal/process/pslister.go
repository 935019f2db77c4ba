package process

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"
	"strings"

	"github.com/shirou/gopsutil/v4/process"
)

// PSLister lists processes through gopsutil. A process matches a binary when
// its name equals the binary's base name (with or without .exe) or, for an
// absolute binary path, when its command line mentions that path. The second
// rule also catches the cmd.exe wrapper used on Windows. Zombies never match.
type PSLister struct{}

func NewPSLister() *PSLister {
	return &PSLister{}
}

func (PSLister) RunningPIDs(ctx context.Context, binary string) ([]int, error) {
	procs, err := process.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("list processes: %w", err)
	}

	base := strings.TrimSuffix(filepath.Base(binary), ".exe")
	absolute := filepath.IsAbs(binary)

	var pids []int
	for _, p := range procs {
		if !matches(ctx, p, base, binary, absolute) {
			continue
		}
		if status, err := p.StatusWithContext(ctx); err == nil && slices.Contains(status, process.Zombie) {
			continue
		}
		pids = append(pids, int(p.Pid))
	}
	return pids, nil
}

func matches(ctx context.Context, p *process.Process, base, binary string, absolute bool) bool {
	if name, err := p.NameWithContext(ctx); err == nil {
		if strings.TrimSuffix(name, ".exe") == base {
			return true
		}
	}
	if !absolute {
		return false
	}
	cmdline, err := p.CmdlineWithContext(ctx)
	if err != nil {
		return false
	}
	return strings.Contains(cmdline, binary)
}

// ContainsPID reports whether pid is in pids.
func ContainsPID(pids []int, pid int) bool {
	return slices.Contains(pids, pid)
}
