package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/qxwatch/internal/platform/qubic"
	"github.com/alanyoungcy/qxwatch/internal/service"
)

// WalletManager is the slice of service.WalletService the handler needs.
type WalletManager interface {
	List(ctx context.Context, q service.WalletQuery) (service.WalletPage, error)
	Detail(ctx context.Context, address string) (service.WalletDetail, error)
	Analyze(ctx context.Context, address string) (qubic.Analysis, error)
	SetLabels(ctx context.Context, address string, labels []string) ([]string, error)
	AddLabel(ctx context.Context, address, label string) ([]string, error)
	UpdateLabel(ctx context.Context, address string, index int, label string) ([]string, error)
	RemoveLabel(ctx context.Context, address string, index int) ([]string, error)
}

// WalletHandler serves the wallets view, wallet detail and label editing.
type WalletHandler struct {
	wallets WalletManager
	logger  *slog.Logger
}

// NewWalletHandler creates a WalletHandler.
func NewWalletHandler(wallets WalletManager, logger *slog.Logger) *WalletHandler {
	return &WalletHandler{wallets: wallets, logger: logHandler(logger, "wallets")}
}

// ListWallets returns a filtered, sorted page of wallets.
// GET /api/wallets?search&segment&sort&page&page_size
func (h *WalletHandler) ListWallets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	page, err := h.wallets.List(r.Context(), service.WalletQuery{
		Search:   q.Get("search"),
		Segment:  q.Get("segment"),
		Sort:     q.Get("sort"),
		Page:     max(queryInt(r, "page", 0), 0),
		PageSize: queryInt(r, "page_size", 0),
	})
	if err != nil {
		writeErr(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// GetWallet returns the wallet row with its most recent events.
// GET /api/wallets/{address}
func (h *WalletHandler) GetWallet(w http.ResponseWriter, r *http.Request) {
	detail, err := h.wallets.Detail(r.Context(), r.PathValue("address"))
	if err != nil {
		writeErr(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// AnalyzeWallet fetches live balance, asset and network data for the wallet.
// A failed lookup still returns the partial analysis alongside the error.
// GET /api/wallets/{address}/analysis
func (h *WalletHandler) AnalyzeWallet(w http.ResponseWriter, r *http.Request) {
	res, err := h.wallets.Analyze(r.Context(), r.PathValue("address"))
	if err != nil {
		status := errorStatus(err)
		if status == http.StatusNotFound || res.Address == "" {
			writeErr(w, r, h.logger, err)
			return
		}
		h.logger.WarnContext(r.Context(), "wallet analysis failed",
			slog.String("address", res.Address),
			slog.String("error", err.Error()),
		)
		writeJSON(w, status, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type labelsRequest struct {
	Labels []string `json:"labels"`
}

type labelRequest struct {
	Label string `json:"label"`
}

// SetLabels replaces every label on the wallet.
// PUT /api/wallets/{address}/labels
func (h *WalletHandler) SetLabels(w http.ResponseWriter, r *http.Request) {
	var req labelsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErr(w, r, h.logger, err)
		return
	}
	h.respondLabels(w, r)(h.wallets.SetLabels(r.Context(), r.PathValue("address"), req.Labels))
}

// AddLabel appends one label.
// POST /api/wallets/{address}/labels
func (h *WalletHandler) AddLabel(w http.ResponseWriter, r *http.Request) {
	var req labelRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErr(w, r, h.logger, err)
		return
	}
	h.respondLabels(w, r)(h.wallets.AddLabel(r.Context(), r.PathValue("address"), req.Label))
}

// UpdateLabel rewrites the label at index.
// PATCH /api/wallets/{address}/labels/{index}
func (h *WalletHandler) UpdateLabel(w http.ResponseWriter, r *http.Request) {
	index, err := intParam(r.PathValue("index"), "label index")
	if err != nil {
		writeErr(w, r, h.logger, err)
		return
	}
	var req labelRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeErr(w, r, h.logger, err)
		return
	}
	h.respondLabels(w, r)(h.wallets.UpdateLabel(r.Context(), r.PathValue("address"), index, req.Label))
}

// RemoveLabel deletes the label at index.
// DELETE /api/wallets/{address}/labels/{index}
func (h *WalletHandler) RemoveLabel(w http.ResponseWriter, r *http.Request) {
	index, err := intParam(r.PathValue("index"), "label index")
	if err != nil {
		writeErr(w, r, h.logger, err)
		return
	}
	h.respondLabels(w, r)(h.wallets.RemoveLabel(r.Context(), r.PathValue("address"), index))
}

func (h *WalletHandler) respondLabels(w http.ResponseWriter, r *http.Request) func([]string, error) {
	return func(labels []string, err error) {
		if err != nil {
			writeErr(w, r, h.logger, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"address": r.PathValue("address"),
			"labels":  labels,
		})
	}
}
