package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/qxwatch/internal/domain"
)

// ArchiveLister lists archived event objects and past archive runs.
type ArchiveLister interface {
	List(ctx context.Context) ([]domain.BlobInfo, error)
	History(ctx context.Context, limit int) ([]domain.AuditEntry, error)
}

// ArchiveHandler serves the archive listing and run history.
type ArchiveHandler struct {
	archives ArchiveLister
	logger   *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler.
func NewArchiveHandler(archives ArchiveLister, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{archives: archives, logger: logHandler(logger, "archives")}
}

// ListArchives returns archive objects, newest first.
// GET /api/archives
func (h *ArchiveHandler) ListArchives(w http.ResponseWriter, r *http.Request) {
	objects, err := h.archives.List(r.Context())
	if err != nil {
		writeErr(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"archives": objects})
}

// GetHistory returns the most recent archive runs.
// GET /api/archives/history?limit=20
func (h *ArchiveHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	runs, err := h.archives.History(r.Context(), queryInt(r, "limit", 20))
	if err != nil {
		writeErr(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}
