package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/qxwatch/internal/domain"
	"github.com/alanyoungcy/qxwatch/internal/whale"
)

// ThresholdSettings is the slice of service.SettingsService the handler
// needs.
type ThresholdSettings interface {
	Thresholds() whale.Settings
	SetThresholds(ctx context.Context, entries []domain.Threshold) (domain.Confirmation, error)
	SetDefault(ctx context.Context, amount int64) (domain.Confirmation, error)
}

// SettingsHandler serves the whale threshold settings.
type SettingsHandler struct {
	settings ThresholdSettings
	logger   *slog.Logger
}

// NewSettingsHandler creates a SettingsHandler.
func NewSettingsHandler(settings ThresholdSettings, logger *slog.Logger) *SettingsHandler {
	return &SettingsHandler{settings: settings, logger: logHandler(logger, "settings")}
}

// GetThresholds returns the per-token thresholds and the default.
// GET /api/settings/thresholds
func (h *SettingsHandler) GetThresholds(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.settings.Thresholds())
}

type thresholdsRequest struct {
	Thresholds []domain.Threshold `json:"thresholds"`
}

// UpdateThresholds replaces the per-token thresholds.
// PUT /api/settings/thresholds
func (h *SettingsHandler) UpdateThresholds(w http.ResponseWriter, r *http.Request) {
	var req thresholdsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErr(w, r, h.logger, err)
		return
	}
	conf, err := h.settings.SetThresholds(r.Context(), req.Thresholds)
	h.respond(w, r, conf, err)
}

type defaultRequest struct {
	Amount int64 `json:"amount"`
}

// UpdateDefault sets the threshold used for tokens without an entry.
// PUT /api/settings/default-threshold
func (h *SettingsHandler) UpdateDefault(w http.ResponseWriter, r *http.Request) {
	var req defaultRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErr(w, r, h.logger, err)
		return
	}
	conf, err := h.settings.SetDefault(r.Context(), req.Amount)
	h.respond(w, r, conf, err)
}

func (h *SettingsHandler) respond(w http.ResponseWriter, r *http.Request, conf domain.Confirmation, err error) {
	if err != nil {
		writeErr(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"confirmation": conf,
		"settings":     h.settings.Thresholds(),
	})
}
