package render

import (
	"context"
	"log/slog"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/heimdex/heimdex-render/internal/logging"
	"github.com/heimdex/heimdex-render/internal/melt"
	"github.com/heimdex/heimdex-render/internal/process"
)

// DefaultSettleDelay is how long a render at 99% is given to finish writing
// before it is reported complete.
const DefaultSettleDelay = 2 * time.Second

var progressPattern = regexp.MustCompile(`percentage:(?:\s+)(\d+)`)

// Tracker turns progress logs and the process table into a percentage.
type Tracker struct {
	tmpDir   string
	meltPath string
	logging  bool
	journal  logging.Journal
	lister   process.Lister
	sessions SessionStore
	settle   time.Duration
	logger   *slog.Logger
}

func NewTracker(cfg melt.Config, lister process.Lister, sessions SessionStore, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		tmpDir:   cfg.TmpDir,
		meltPath: cfg.MeltPath,
		logging:  cfg.Logging,
		journal:  logging.Discard,
		lister:   lister,
		sessions: sessions,
		settle:   DefaultSettleDelay,
		logger:   logging.WithComponent(logger, "progress"),
	}
}

// SetSettleDelay overrides DefaultSettleDelay.
func (t *Tracker) SetSettleDelay(d time.Duration) {
	t.settle = d
}

// SetJournal records the listed pids when logging is enabled.
func (t *Tracker) SetJournal(j logging.Journal) {
	if j == nil {
		j = logging.Discard
	}
	t.journal = j
}

// Poll reports the progress of a render. Empty handle fields are filled from
// the session slot. ok is false when no progress log is known or it does not
// exist. A render that reached 99% or whose process is gone reports 100; at
// 100 the log is deleted and the session slot released, so the next poll
// reports nothing.
func (t *Tracker) Poll(ctx context.Context, h Handle) (percent int, ok bool) {
	var (
		slot     Slot
		haveSlot bool
	)
	loadSlot := func() {
		if haveSlot || t.sessions == nil {
			return
		}
		s, found, err := t.sessions.Load(ctx)
		if err != nil {
			t.logger.Warn("failed to load session slot", "error", err)
			return
		}
		if found {
			slot, haveSlot = s, true
		}
	}

	logPath := h.LogPath
	if logPath == "" {
		loadSlot()
		if !haveSlot || slot.RunID == "" {
			return 0, false
		}
		logPath = ProgressLogPath(t.tmpDir, slot.RunID)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		return 0, false
	}
	percent = lastPercentage(data)

	if percent >= 99 {
		timer := time.NewTimer(t.settle)
		select {
		case <-ctx.Done():
			timer.Stop()
			return percent, true
		case <-timer.C:
		}
		percent = 100
	}

	pid := h.PID
	if pid == 0 {
		loadSlot()
		pid = slot.PID
	}
	if pid > 0 && percent < 100 {
		if !t.running(ctx, pid) {
			percent = 100
		}
	}

	if percent == 100 {
		t.finish(ctx, logPath, &slot, haveSlot)
	}
	return percent, true
}

// Peek reads the progress of the render named by h without the settle delay
// and without removing the log or touching the session slot. done is true once
// the render reached 99% or its process is gone. ok is false when h names no
// readable log.
func (t *Tracker) Peek(ctx context.Context, h Handle) (percent int, done, ok bool) {
	if h.LogPath == "" {
		return 0, false, false
	}
	data, err := os.ReadFile(h.LogPath)
	if err != nil {
		return 0, false, false
	}
	percent = lastPercentage(data)
	if percent >= 99 {
		return percent, true, true
	}
	if h.PID > 0 && !t.running(ctx, h.PID) {
		return percent, true, true
	}
	return percent, false, true
}

func (t *Tracker) running(ctx context.Context, pid int) bool {
	pids, err := t.lister.RunningPIDs(ctx, t.meltPath)
	if err != nil {
		t.logger.Warn("process listing failed, skipping liveness check", "pid", pid, "error", err)
		return true
	}
	if t.logging {
		strs := make([]string, len(pids))
		for i, p := range pids {
			strs[i] = strconv.Itoa(p)
		}
		if err := t.journal.Record(0, "PIDS: "+strings.Join(strs, " ")); err != nil {
			t.logger.Warn("failed to write journal", "error", err)
		}
	}
	return process.ContainsPID(pids, pid)
}

// finish removes the log and releases the session slot when it still points
// at this log.
func (t *Tracker) finish(ctx context.Context, logPath string, slot *Slot, haveSlot bool) {
	if err := os.Remove(logPath); err != nil && !os.IsNotExist(err) {
		t.logger.Warn("failed to remove progress log", "path", logging.SanitizePath(logPath), "error", err)
	}
	if t.sessions == nil {
		return
	}
	if !haveSlot {
		s, found, err := t.sessions.Load(ctx)
		if err != nil || !found {
			return
		}
		*slot = s
	}
	if slot.RunID == "" || slot.RunID != RunIDFromLogPath(logPath) {
		return
	}
	if err := t.sessions.Clear(ctx); err != nil {
		t.logger.Warn("failed to clear session slot", "error", err)
	}
}

func lastPercentage(data []byte) int {
	matches := progressPattern.FindAllSubmatch(data, -1)
	if len(matches) == 0 {
		return 0
	}
	v, err := strconv.Atoi(string(matches[len(matches)-1][1]))
	if err != nil {
		return 0
	}
	return v
}
