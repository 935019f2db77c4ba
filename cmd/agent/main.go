package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/heimdex/heimdex-render/internal/api"
	"github.com/heimdex/heimdex-render/internal/config"
	"github.com/heimdex/heimdex-render/internal/db"
	"github.com/heimdex/heimdex-render/internal/doctor"
	"github.com/heimdex/heimdex-render/internal/logging"
	"github.com/heimdex/heimdex-render/internal/playback"
	"github.com/heimdex/heimdex-render/internal/process"
	"github.com/heimdex/heimdex-render/internal/render"
	"github.com/heimdex/heimdex-render/internal/renders"
	"github.com/heimdex/heimdex-render/internal/session"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("fatal error: %v", err)
	}
}

func run() error {
	startTime := time.Now()

	cfg, err := config.New()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	meltCfg := cfg.Melt()

	if err := os.MkdirAll(cfg.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}
	if err := os.MkdirAll(meltCfg.TmpDir, 0755); err != nil {
		return fmt.Errorf("failed to create tmp dir: %w", err)
	}

	logger := logging.NewLogger(cfg.LogLevel())
	logger.Info("starting melt render agent",
		"version", config.Version,
		"data_dir", logging.SanitizePath(cfg.DataDir()),
		"melt_path", meltCfg.MeltPath,
		"config_file", cfg.Source(),
	)

	database, err := db.New(cfg.DBPath(), logger)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	defer database.Close()

	repo := renders.NewRepository(database.Conn())

	authToken, err := ensureAuthToken(repo)
	if err != nil {
		return fmt.Errorf("failed to ensure auth token: %w", err)
	}

	fmt.Println()
	fmt.Println("╔═══════════════════════════════════════════════════════════╗")
	fmt.Printf("║                 MELT RENDER AGENT v%-22s ║\n", config.Version)
	fmt.Println("╠═══════════════════════════════════════════════════════════╣")
	fmt.Printf("║  API URL:    http://127.0.0.1:%-27d ║\n", cfg.Port())
	fmt.Printf("║  Auth Token: %-45s ║\n", authToken)
	fmt.Printf("║  Melt:       %-45s ║\n", meltCfg.MeltPath)
	fmt.Println("╚═══════════════════════════════════════════════════════════╝")
	fmt.Println()

	meltDoctor := doctor.NewCachedDoctor(doctor.NewMeltProber(meltCfg.MeltPath), logger)
	if caps, err := meltDoctor.Refresh(context.Background()); err != nil {
		logger.Warn("melt not usable, renders will fail until it is installed", "error", err)
	} else {
		logger.Info("melt detected", "version", caps.Version, "avformat", caps.HasAvformat)
	}

	journal := logging.NewFileSink(meltCfg.TmpDir, meltCfg.MaxLogSize, meltCfg.DateFormat)

	var (
		sessions render.SessionStore
		cookies  *session.CookieManager
	)
	if meltCfg.SessionEnabled {
		sessions = session.NewSQLiteStore(database.Conn())
		cookies = session.NewCookieManager(cfg.SessionSecret(), logger)
		if cfg.SessionSecret() == "" {
			logger.Warn("no session secret configured, cookies will not survive a restart")
		}
	}

	tracker := render.NewTracker(meltCfg, process.NewPSLister(), sessions, logger)
	tracker.SetSettleDelay(cfg.SettleDelay())
	tracker.SetJournal(journal)

	renderSvc := renders.NewService(repo, tracker, logger)
	monitor := renders.NewMonitor(renderSvc, repo, cfg.PollInterval(), logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go monitor.Start(ctx)

	apiServer := api.NewServer(api.ServerConfig{
		Port:       cfg.Port(),
		Melt:       meltCfg,
		Journal:    journal,
		Launcher:   process.NewDetachedLauncher(logger),
		Tracker:    tracker,
		Sessions:   sessions,
		Cookies:    cookies,
		Renders:    renderSvc,
		Monitor:    monitor,
		Doctor:     meltDoctor,
		Playback:   playback.NewServer(logger),
		Repository: repo,
		Logger:     logger,
		StartTime:  startTime,
		Version:    config.Version,
	})

	go func() {
		if err := apiServer.Start(); err != nil {
			logger.Error("HTTP server error", "error", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	logger.Info("received shutdown signal", "signal", sig)

	logger.Info("initiating graceful shutdown")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := apiServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shutdown HTTP server", "error", err)
	}

	logger.Info("shutdown complete", "renders_running", monitor.ActiveCount(shutdownCtx))
	return nil
}

func ensureAuthToken(repo renders.Repository) (string, error) {
	ctx := context.Background()

	existing, err := repo.GetConfig(ctx, "auth_token")
	if err == nil && existing != "" {
		return existing, nil
	}

	tokenBytes := make([]byte, 32)
	if _, err := rand.Read(tokenBytes); err != nil {
		return "", err
	}
	token := hex.EncodeToString(tokenBytes)

	if err := repo.SetConfig(ctx, "auth_token", token); err != nil {
		return "", err
	}

	return token, nil
}
