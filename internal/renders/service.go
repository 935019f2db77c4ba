package renders

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/heimdex/heimdex-render/internal/render"
	"github.com/heimdex/heimdex-render/internal/session"
)

var ErrNotFound = errors.New("render not found")

// Launcher starts a compiled target. *render.Runner satisfies it.
type Launcher interface {
	RenderTarget(ctx context.Context, target string) (render.Handle, error)
}

// Poller reports render progress. *render.Tracker satisfies it.
type Poller interface {
	Poll(ctx context.Context, h render.Handle) (int, bool)
}

// Tracker is a Poller that can also read progress without consuming the
// completion a session poller is waiting for. *render.Tracker satisfies it.
type Tracker interface {
	Poller
	Peek(ctx context.Context, h render.Handle) (percent int, done, ok bool)
}

// Service keeps a history of renders and polls them by id, so any number of
// renders can be followed independently of the session slot.
type Service struct {
	repo    Repository
	tracker Tracker
	logger  *slog.Logger
	now     func() time.Time
}

func NewService(repo Repository, tracker Tracker, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, tracker: tracker, logger: logger, now: time.Now}
}

// Start launches target and records the attempt. A failed launch is stored
// with status failed and returned together with the error.
func (s *Service) Start(ctx context.Context, launcher Launcher, target, outputPath string) (*Render, error) {
	h, launchErr := launcher.RenderTarget(ctx, target)
	if errors.Is(launchErr, render.ErrNothingToRender) {
		return nil, launchErr
	}
	if launchErr != nil && h.RunID == "" {
		return nil, launchErr
	}

	now := s.now().UTC()
	rd := &Render{
		ID:         h.RunID,
		Target:     target,
		PID:        h.PID,
		LogPath:    h.LogPath,
		Command:    h.Command,
		OutputPath: outputPath,
		SessionID:  session.IDFromContext(ctx),
		Status:     StatusRunning,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if launchErr != nil {
		rd.Status = StatusFailed
		rd.Error = launchErr.Error()
	}

	if err := s.repo.CreateRender(ctx, rd); err != nil {
		return nil, fmt.Errorf("record render: %w", err)
	}
	return rd, launchErr
}

func (s *Service) Get(ctx context.Context, id string) (*Render, error) {
	rd, err := s.repo.GetRender(ctx, id)
	if err != nil {
		return nil, err
	}
	if rd == nil {
		return nil, ErrNotFound
	}
	return rd, nil
}

func (s *Service) List(ctx context.Context, limit int) ([]*Render, error) {
	return s.repo.ListRenders(ctx, limit)
}

// Poll refreshes a running render from its progress log. A render whose log
// is already gone has been reconciled by an earlier poll and is completed.
func (s *Service) Poll(ctx context.Context, id string) (*Render, error) {
	rd, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rd.Done() {
		return rd, nil
	}

	// Poll under the owning session so a finished render releases the slot
	// of whoever started it.
	owner := ctx
	if rd.SessionID != "" {
		owner = session.WithID(ctx, rd.SessionID)
	}
	percent, ok := s.tracker.Poll(owner, handleOf(rd))
	if !ok || percent >= 100 {
		return s.complete(ctx, rd)
	}

	if percent != rd.Progress {
		if err := s.repo.UpdateProgress(ctx, rd.ID, percent); err != nil {
			return nil, fmt.Errorf("update progress: %w", err)
		}
		rd.Progress = percent
	}
	return rd, nil
}

// Refresh updates a running render from its progress log without deleting
// the log or releasing a session slot, so a client following the render
// through its session still sees it reach 100. The log is left for that
// client's next poll.
func (s *Service) Refresh(ctx context.Context, id string) (*Render, error) {
	rd, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rd.Done() {
		return rd, nil
	}

	percent, done, ok := s.tracker.Peek(ctx, handleOf(rd))
	if !ok || done {
		return s.complete(ctx, rd)
	}
	if percent != rd.Progress {
		if err := s.repo.UpdateProgress(ctx, rd.ID, percent); err != nil {
			return nil, fmt.Errorf("update progress: %w", err)
		}
		rd.Progress = percent
	}
	return rd, nil
}

func handleOf(rd *Render) render.Handle {
	return render.Handle{PID: rd.PID, LogPath: rd.LogPath, RunID: rd.ID}
}

func (s *Service) complete(ctx context.Context, rd *Render) (*Render, error) {
	if err := s.repo.UpdateProgress(ctx, rd.ID, 100); err != nil {
		return nil, fmt.Errorf("update progress: %w", err)
	}
	if err := s.repo.UpdateStatus(ctx, rd.ID, StatusCompleted, ""); err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}
	rd.Progress = 100
	rd.Status = StatusCompleted
	s.logger.Info("render completed", "run_id", rd.ID, "pid", rd.PID)
	return rd, nil
}
