package renders

import "time"

const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Render is one launched melt process and what is known about it.
type Render struct {
	ID         string    `json:"id"`
	Target     string    `json:"target"`
	PID        int       `json:"pid"`
	LogPath    string    `json:"log_path"`
	Command    string    `json:"command"`
	OutputPath string    `json:"output_path,omitempty"`
	SessionID  string    `json:"session_id,omitempty"`
	Status     string    `json:"status"`
	Progress   int       `json:"progress"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Done reports whether the render reached a final status.
func (r *Render) Done() bool {
	return r.Status == StatusCompleted || r.Status == StatusFailed
}
