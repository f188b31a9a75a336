package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/qxwatch/internal/crypto"
	"github.com/alanyoungcy/qxwatch/internal/domain"
	"github.com/alanyoungcy/qxwatch/internal/pipeline"
)

// Ingester accepts raw webhook bodies.
type Ingester interface {
	Ingest(ctx context.Context, body []byte) (pipeline.IngestResult, error)
}

// WebhookHandler receives QX events from the upstream indexer.
type WebhookHandler struct {
	ingest Ingester
	auth   *crypto.HMACAuth
	logger *slog.Logger
}

// WebhookOption configures a WebhookHandler.
type WebhookOption func(*WebhookHandler)

// WithSignature requires every delivery to carry a valid HMAC signature.
func WithSignature(auth *crypto.HMACAuth) WebhookOption {
	return func(h *WebhookHandler) { h.auth = auth }
}

// NewWebhookHandler creates a WebhookHandler.
func NewWebhookHandler(ingest Ingester, logger *slog.Logger, opts ...WebhookOption) *WebhookHandler {
	h := &WebhookHandler{ingest: ingest, logger: logHandler(logger, "webhook")}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Receive stores the posted envelope or envelope array.
// POST /api/webhook/qx
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		h.fail(w, r, http.StatusRequestEntityTooLarge, err)
		return
	}

	if h.auth != nil {
		if err := h.auth.Verify(body, r.Header.Get(crypto.TimestampHeader), r.Header.Get(crypto.SignatureHeader)); err != nil {
			h.fail(w, r, http.StatusUnauthorized, err)
			return
		}
	}

	res, err := h.ingest.Ingest(r.Context(), body)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, domain.ErrInvalidPayload) {
			status = http.StatusBadRequest
		}
		h.fail(w, r, status, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *WebhookHandler) fail(w http.ResponseWriter, r *http.Request, status int, err error) {
	h.logger.ErrorContext(r.Context(), "webhook ingestion failed",
		slog.Int("status", status),
		slog.String("error", err.Error()),
	)
	writeJSON(w, status, map[string]any{"success": false, "error": err.Error()})
}
