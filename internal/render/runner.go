package render

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/google/uuid"

	"github.com/heimdex/heimdex-render/internal/logging"
	"github.com/heimdex/heimdex-render/internal/melt"
	"github.com/heimdex/heimdex-render/internal/process"
)

// Runner compiles a builder target and starts it detached.
type Runner struct {
	builder  *melt.Builder
	launcher process.Launcher
	sessions SessionStore
	logger   *slog.Logger
	newID    func() string
}

func NewRunner(b *melt.Builder, launcher process.Launcher, sessions SessionStore, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		builder:  b,
		launcher: launcher,
		sessions: sessions,
		logger:   logging.WithComponent(logger, "render"),
		newID:    uuid.NewString,
	}
}

// Render launches the main target.
func (r *Runner) Render(ctx context.Context) (Handle, error) {
	return r.RenderTarget(ctx, melt.DefaultTarget)
}

// RenderTarget compiles target, which drains the builder, and launches it
// with stderr redirected to a fresh progress log. On success the session slot
// records the run; on failure it is cleared and the returned handle has no
// pid.
func (r *Runner) RenderTarget(ctx context.Context, target string) (Handle, error) {
	cfg := r.builder.Config()
	runID := r.newID()
	logPath := ProgressLogPath(cfg.TmpDir, runID)
	logger := logging.WithTarget(logging.WithRunID(r.logger, runID), targetName(target))

	cmd := r.builder.CommandOutput(target)
	if cmd == "" {
		return Handle{}, ErrNothingToRender
	}
	cmd += " \\\n2> \"" + logPath + "\""

	if err := os.MkdirAll(cfg.TmpDir, 0o755); err != nil {
		return Handle{}, fmt.Errorf("create tmp dir: %w", err)
	}

	pid, err := r.launcher.Launch(ctx, cmd)
	r.journal(cfg, "Command:\n"+cmd)
	r.journal(cfg, "Start PID: "+strconv.Itoa(pid))
	if err != nil || pid <= 0 {
		logger.Error("render launch failed", "error", err)
		if r.sessions != nil {
			if cerr := r.sessions.Clear(ctx); cerr != nil {
				logger.Warn("failed to clear session slot", "error", cerr)
			}
		}
		if err == nil {
			err = process.ErrNoPID
		}
		return Handle{LogPath: logPath, RunID: runID, Command: cmd}, fmt.Errorf("%w: %v", ErrLaunchFailed, err)
	}

	if r.sessions != nil {
		if err := r.sessions.Save(ctx, Slot{PID: pid, RunID: runID}); err != nil {
			logger.Warn("failed to save session slot", "error", err)
		}
	}

	logger.Info("render started", "pid", pid, "log_path", logging.SanitizePath(logPath))
	return Handle{PID: pid, LogPath: logPath, RunID: runID, Command: cmd}, nil
}

func (r *Runner) journal(cfg melt.Config, msg string) {
	if !cfg.Logging {
		return
	}
	if err := r.builder.Journal().Record(0, msg); err != nil {
		r.logger.Warn("failed to write journal", "error", err)
	}
}

func targetName(target string) string {
	if target == "" {
		return melt.DefaultTarget
	}
	return target
}
