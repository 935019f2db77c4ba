// Package render launches compiled melt commands in the background and
// reports their progress from the log melt writes to stderr.
package render

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
)

var (
	// ErrNothingToRender is returned when the target compiled to an empty
	// command.
	ErrNothingToRender = errors.New("nothing to render")
	// ErrLaunchFailed is returned when the detached process could not be
	// started or reported no pid.
	ErrLaunchFailed = errors.New("render launch failed")
)

// Handle identifies one launched render.
type Handle struct {
	PID     int    `json:"pid"`
	LogPath string `json:"log_path"`
	RunID   string `json:"run_id"`
	Command string `json:"command,omitempty"`
}

// Slot is the per-session record of the last launched render.
type Slot struct {
	PID   int    `json:"pid"`
	RunID string `json:"run_id"`
}

// SessionStore keeps one Slot per session. Implementations resolve the
// session from the context. A nil SessionStore is valid; callers then have to
// pass explicit handles when polling.
type SessionStore interface {
	Load(ctx context.Context) (Slot, bool, error)
	Save(ctx context.Context, slot Slot) error
	Clear(ctx context.Context) error
}

// ProgressLogPath returns where the render with runID writes its progress.
func ProgressLogPath(tmpDir, runID string) string {
	return filepath.Join(tmpDir, "log_"+runID+".txt")
}

// RunIDFromLogPath reverses ProgressLogPath. It returns "" for paths that do
// not follow the naming scheme.
func RunIDFromLogPath(path string) string {
	base := filepath.Base(path)
	if !strings.HasPrefix(base, "log_") || !strings.HasSuffix(base, ".txt") {
		return ""
	}
	return strings.TrimSuffix(strings.TrimPrefix(base, "log_"), ".txt")
}
