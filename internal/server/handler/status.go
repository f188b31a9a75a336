package handler

import (
	"net/http"
	"time"
)

// StatusHandler serves the backend status (mode, uptime, storage drivers)
// for the dashboard.
type StatusHandler struct {
	Mode      string
	StartedAt time.Time
	Backends  map[string]string
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode string, startedAt time.Time, backends map[string]string) *StatusHandler {
	return &StatusHandler{Mode: mode, StartedAt: startedAt, Backends: backends}
}

// GetStatus responds with the current backend mode and uptime.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":           h.Mode,
		"started_at":     h.StartedAt.UTC().Format(time.RFC3339),
		"uptime_seconds": int64(time.Since(h.StartedAt).Seconds()),
		"backends":       h.Backends,
	})
}
