package api

import (
	"time"

	"github.com/heimdex/heimdex-render/internal/renders"
)

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	UptimeS int64  `json:"uptime_s"`
}

type StatusResponse struct {
	State         string              `json:"state"`
	RendersActive int                 `json:"renders_active"`
	MeltPath      string              `json:"melt_path"`
	SessionID     string              `json:"session_id"`
	Melt          *MeltStatusResponse `json:"melt,omitempty"`
}

type MeltStatusResponse struct {
	Version     string `json:"version"`
	HasAvformat bool   `json:"has_avformat"`
	LastProbeAt string `json:"last_probe_at"`
}

type CommandsResponse struct {
	Commands map[string]string `json:"commands"`
	Targets  []string          `json:"targets"`
	Warnings []string          `json:"warnings,omitempty"`
}

type RenderResponse struct {
	ID         string   `json:"id"`
	Target     string   `json:"target"`
	PID        int      `json:"pid"`
	LogPath    string   `json:"log_path"`
	OutputPath string   `json:"output_path,omitempty"`
	Status     string   `json:"status"`
	Progress   int      `json:"progress"`
	Error      string   `json:"error,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
	CreatedAt  string   `json:"created_at"`
	UpdatedAt  string   `json:"updated_at"`
}

type RendersResponse struct {
	Renders []RenderResponse `json:"renders"`
}

type ProgressResponse struct {
	Percent int `json:"percent"`
}

type ProbeRequest struct {
	Path string `json:"path" validate:"required"`
}

type ProbeResponse struct {
	Path       string            `json:"path"`
	Properties map[string]string `json:"properties"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func RenderToResponse(r *renders.Render) RenderResponse {
	return RenderResponse{
		ID:         r.ID,
		Target:     r.Target,
		PID:        r.PID,
		LogPath:    r.LogPath,
		OutputPath: r.OutputPath,
		Status:     r.Status,
		Progress:   r.Progress,
		Error:      r.Error,
		CreatedAt:  r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  r.UpdatedAt.Format(time.RFC3339),
	}
}
