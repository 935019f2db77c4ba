package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/heimdex/heimdex-render/internal/doctor"
	"github.com/heimdex/heimdex-render/internal/logging"
	"github.com/heimdex/heimdex-render/internal/melt"
	"github.com/heimdex/heimdex-render/internal/playback"
	"github.com/heimdex/heimdex-render/internal/process"
	"github.com/heimdex/heimdex-render/internal/render"
	"github.com/heimdex/heimdex-render/internal/renders"
	"github.com/heimdex/heimdex-render/internal/session"
)

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// ConfigStore holds the bearer token under the "auth_token" key.
type ConfigStore interface {
	GetConfig(ctx context.Context, key string) (string, error)
}

type ServerConfig struct {
	Port       int
	Melt       melt.Config
	Journal    logging.Journal
	Launcher   process.Launcher
	Tracker    renders.Poller
	Sessions   render.SessionStore
	Cookies    *session.CookieManager
	Renders    *renders.Service
	Monitor    *renders.Monitor
	Doctor     *doctor.CachedDoctor
	Playback   playback.PlaybackService
	Repository ConfigStore
	Logger     *slog.Logger
	StartTime  time.Time
	Version    string

	// NewBuilder overrides how each request gets a fresh builder.
	NewBuilder func() *melt.Builder
}

func (cfg ServerConfig) builder() *melt.Builder {
	if cfg.NewBuilder != nil {
		return cfg.NewBuilder()
	}
	return melt.NewBuilder(cfg.Melt, cfg.Logger).SetJournal(cfg.Journal)
}

func NewServer(cfg ServerConfig) *Server {
	router := NewRouter(cfg)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("127.0.0.1:%d", cfg.Port),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
