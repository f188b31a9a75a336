package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// PipelineHandler serves background job trigger endpoints.
type PipelineHandler struct {
	logger    *slog.Logger
	archiveCh chan<- struct{} // when non-nil, sending triggers one archive run
}

// NewPipelineHandler creates a PipelineHandler with the given logger.
func NewPipelineHandler(logger *slog.Logger) *PipelineHandler {
	return &PipelineHandler{logger: logHandler(logger, "pipeline")}
}

// WithArchiveTrigger sets the channel to send on when an archive run is
// requested. The archive cron loop must receive from this channel.
func (h *PipelineHandler) WithArchiveTrigger(ch chan<- struct{}) *PipelineHandler {
	h.archiveCh = ch
	return h
}

// TriggerArchive enqueues one archive run. The send is non-blocking, so a
// request made while a trigger is pending is coalesced into it.
// POST /api/archives/run
func (h *PipelineHandler) TriggerArchive(w http.ResponseWriter, r *http.Request) {
	if h.archiveCh == nil {
		writeError(w, http.StatusServiceUnavailable, "archive job is not running in this process")
		return
	}

	h.logger.InfoContext(r.Context(), "archive run requested")
	select {
	case h.archiveCh <- struct{}{}:
	default:
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":       "accepted",
		"message":      "archive run enqueued",
		"requested_at": time.Now().UTC().Format(time.RFC3339),
	})
}
