package renders

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// Monitor polls every running render in the background so history rows
// reach a final status without a client asking.
type Monitor struct {
	service      *Service
	repo         Repository
	logger       *slog.Logger
	pollInterval time.Duration
	running      atomic.Bool
	paused       atomic.Bool
}

func NewMonitor(service *Service, repo Repository, interval time.Duration, logger *slog.Logger) *Monitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Monitor{
		service:      service,
		repo:         repo,
		logger:       logger,
		pollInterval: interval,
	}
}

func (m *Monitor) Start(ctx context.Context) {
	if m.running.Swap(true) {
		return
	}

	m.logger.Info("render monitor started", "interval", m.pollInterval)

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("render monitor stopping")
			m.running.Store(false)
			return
		case <-ticker.C:
			if !m.paused.Load() {
				m.sweep(ctx)
			}
		}
	}
}

func (m *Monitor) Pause() {
	m.paused.Store(true)
	m.logger.Info("render monitor paused")
}

func (m *Monitor) Resume() {
	m.paused.Store(false)
	m.logger.Info("render monitor resumed")
}

func (m *Monitor) IsPaused() bool {
	return m.paused.Load()
}

func (m *Monitor) IsRunning() bool {
	return m.running.Load()
}

// sweepWorkers bounds how many renders one sweep refreshes at once.
const sweepWorkers = 4

func (m *Monitor) sweep(ctx context.Context) {
	running, err := m.repo.ListRunning(ctx)
	if err != nil {
		m.logger.Error("failed to list running renders", "error", err)
		return
	}

	sem := make(chan struct{}, sweepWorkers)
	var wg sync.WaitGroup
	for _, rd := range running {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()
			if _, err := m.service.Refresh(ctx, id); err != nil {
				m.logger.Warn("failed to refresh render", "run_id", id, "error", err)
			}
		}(rd.ID)
	}
	wg.Wait()
}

// ActiveCount returns the number of renders still marked running.
func (m *Monitor) ActiveCount(ctx context.Context) int {
	running, err := m.repo.ListRunning(ctx)
	if err != nil {
		return 0
	}
	return len(running)
}
