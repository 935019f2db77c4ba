package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/heimdex/heimdex-render/internal/melt"
	"github.com/heimdex/heimdex-render/internal/playback"
	"github.com/heimdex/heimdex-render/internal/project"
	"github.com/heimdex/heimdex-render/internal/render"
	"github.com/heimdex/heimdex-render/internal/renders"
	"github.com/heimdex/heimdex-render/internal/session"
)

const maxBodyBytes = 1 << 20

var validate = validator.New()

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Repository, cfg.Logger))
		if cfg.Cookies != nil {
			r.Use(cfg.Cookies.Middleware)
			r.Use(SessionTagMiddleware)
		}

		r.Get("/status", statusHandler(cfg))
		r.Get("/profiles", profilesHandler())
		r.Post("/commands", commandsHandler(cfg))
		r.Post("/renders", startRenderHandler(cfg))
		r.Get("/renders", listRendersHandler(cfg))
		r.Get("/renders/{id}", getRenderHandler(cfg))
		r.Get("/renders/{id}/output", renderOutputHandler(cfg))
		r.Get("/progress", progressHandler(cfg))
		r.Post("/clips/properties", clipPropertiesHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:  "ok",
			Version: cfg.Version,
			UptimeS: uptime,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := StatusResponse{
			State:     "idle",
			MeltPath:  cfg.Melt.MeltPath,
			SessionID: session.IDFromContext(r.Context()),
		}
		if cfg.Monitor != nil {
			resp.RendersActive = cfg.Monitor.ActiveCount(r.Context())
			if cfg.Monitor.IsPaused() {
				resp.State = "paused"
			}
		}
		if resp.RendersActive > 0 && resp.State == "idle" {
			resp.State = "rendering"
		}
		if cfg.Doctor != nil {
			if caps, err := cfg.Doctor.Get(r.Context()); err == nil && caps != nil {
				resp.Melt = &MeltStatusResponse{
					Version:     caps.Version,
					HasAvformat: caps.HasAvformat,
					LastProbeAt: caps.ProbedAt.Format(time.RFC3339),
				}
			} else if resp.State == "idle" {
				resp.State = "error"
			}
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func profilesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]any{
			"profiles":    melt.Profiles(),
			"transitions": melt.Transitions(),
		})
	}
}

// decodeProject reads a project body and applies it to a fresh builder. It
// writes the error response itself and returns ok=false on failure.
func decodeProject(cfg ServerConfig, w http.ResponseWriter, r *http.Request) (*project.Document, *melt.Builder, []string, bool) {
	doc, err := project.Decode(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
		return nil, nil, nil, false
	}

	b := cfg.builder()
	warnings, err := doc.Apply(b)
	if err != nil {
		if errors.Is(err, melt.ErrUnsupportedTransition) {
			msg := err.Error() + "; supported: " + strings.Join(melt.Transitions(), ", ")
			WriteError(w, http.StatusBadRequest, msg, "UNSUPPORTED_TRANSITION")
		} else {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
		}
		return nil, nil, nil, false
	}
	return doc, b, warnings, true
}

func commandsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, b, warnings, ok := decodeProject(cfg, w, r)
		if !ok {
			return
		}

		b.CreateCommands()
		WriteJSON(w, http.StatusOK, CommandsResponse{
			Commands: b.Commands(),
			Targets:  b.Targets(),
			Warnings: warnings,
		})
	}
}

func startRenderHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doc, b, warnings, ok := decodeProject(cfg, w, r)
		if !ok {
			return
		}

		target := r.URL.Query().Get("target")
		if target == "" {
			target = melt.DefaultTarget
		}

		logger := RequestLogger(cfg.Logger, r)
		runner := render.NewRunner(b, cfg.Launcher, cfg.Sessions, logger)
		rd, err := cfg.Renders.Start(r.Context(), runner, target, doc.OutputPath(target))
		if rd != nil {
			tagRun(r, rd.ID)
		}
		switch {
		case errors.Is(err, render.ErrNothingToRender):
			WriteError(w, http.StatusUnprocessableEntity, "target "+target+" has nothing to render", "NOTHING_TO_RENDER")
			return
		case errors.Is(err, render.ErrLaunchFailed):
			WriteError(w, http.StatusBadGateway, err.Error(), "LAUNCH_FAILED")
			return
		case err != nil:
			logger.Error("failed to start render", "error", err)
			WriteError(w, http.StatusInternalServerError, "failed to start render", "INTERNAL_ERROR")
			return
		}

		resp := RenderToResponse(rd)
		resp.Warnings = warnings
		WriteJSON(w, http.StatusCreated, resp)
	}
}

func listRendersHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 50
		if l := r.URL.Query().Get("limit"); l != "" {
			if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
				limit = parsed
			}
		}

		list, err := cfg.Renders.List(r.Context(), limit)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list renders", "INTERNAL_ERROR")
			return
		}

		resp := RendersResponse{Renders: make([]RenderResponse, len(list))}
		for i, rd := range list {
			resp.Renders[i] = RenderToResponse(rd)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getRenderHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			WriteError(w, http.StatusBadRequest, "render id required", "BAD_REQUEST")
			return
		}

		tagRun(r, id)
		rd, err := cfg.Renders.Poll(r.Context(), id)
		if errors.Is(err, renders.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "render not found", "NOT_FOUND")
			return
		}
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}

		WriteJSON(w, http.StatusOK, RenderToResponse(rd))
	}
}

func renderOutputHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		tagRun(r, id)
		rd, err := cfg.Renders.Get(r.Context(), id)
		if errors.Is(err, renders.ErrNotFound) {
			WriteError(w, http.StatusNotFound, "render not found", "NOT_FOUND")
			return
		}
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
			return
		}
		if rd.Status != renders.StatusCompleted || rd.OutputPath == "" {
			WriteError(w, http.StatusConflict, "render output not available", "NOT_READY")
			return
		}
		if cfg.Playback == nil {
			WriteError(w, http.StatusNotImplemented, "output serving disabled", "NOT_IMPLEMENTED")
			return
		}

		if err := cfg.Playback.ServeFile(w, r, rd.OutputPath); err != nil {
			if errors.Is(err, playback.ErrNotFound) {
				WriteError(w, http.StatusNotFound, "output file missing", "NOT_FOUND")
				return
			}
			RequestLogger(cfg.Logger, r).Error("output serving failed", "error", err, "run_id", rd.ID)
			WriteError(w, http.StatusInternalServerError, "failed to serve output", "INTERNAL_ERROR")
		}
	}
}

// progressHandler polls the session's last render, or the render named by
// the log and pid query parameters.
func progressHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := render.Handle{LogPath: r.URL.Query().Get("log")}
		if p := r.URL.Query().Get("pid"); p != "" {
			pid, err := strconv.Atoi(p)
			if err != nil || pid < 0 {
				WriteError(w, http.StatusBadRequest, "pid must be a non-negative integer", "BAD_REQUEST")
				return
			}
			h.PID = pid
		}

		if h.LogPath != "" {
			tagRun(r, render.RunIDFromLogPath(h.LogPath))
		}
		percent, ok := cfg.Tracker.Poll(r.Context(), h)
		if !ok {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		WriteJSON(w, http.StatusOK, ProgressResponse{Percent: percent})
	}
}

func clipPropertiesHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req ProbeRequest
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if err := validate.Struct(req); err != nil {
			WriteError(w, http.StatusBadRequest, "path is required", "BAD_REQUEST")
			return
		}

		props := cfg.builder().ClipProperties(r.Context(), req.Path)
		WriteJSON(w, http.StatusOK, ProbeResponse{Path: req.Path, Properties: props})
	}
}
