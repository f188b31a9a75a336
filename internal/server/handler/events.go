package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/qxwatch/internal/domain"
	"github.com/alanyoungcy/qxwatch/internal/query"
	"github.com/alanyoungcy/qxwatch/internal/service"
	"github.com/alanyoungcy/qxwatch/internal/timeline"
)

// EventReader is the slice of service.EventService the handler needs.
type EventReader interface {
	Events(ctx context.Context, st query.State) (query.Page, error)
	Chart(ctx context.Context, r timeline.Range) (service.Chart, error)
	KPI(ctx context.Context) (service.KPIStats, error)
	Overview(ctx context.Context) (service.Overview, error)
	Tokens(ctx context.Context) ([]string, error)
}

// StreamReader replays the durable event stream.
type StreamReader interface {
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error)
}

const (
	defaultStreamCount = 100
	maxStreamCount     = 1000
)

// EventHandler serves the events view and its aggregates.
type EventHandler struct {
	events   EventReader
	stream   StreamReader
	pageSize int
	logger   *slog.Logger
}

// NewEventHandler creates an EventHandler. stream may be nil, in which case
// the replay endpoint reports 404.
func NewEventHandler(events EventReader, stream StreamReader, pageSize int, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		events:   events,
		stream:   stream,
		pageSize: pageSize,
		logger:   logHandler(logger, "events"),
	}
}

// ListEvents returns one orchestrated page.
// GET /api/events?search&token&type&time&page&page_size
func (h *EventHandler) ListEvents(w http.ResponseWriter, r *http.Request) {
	st := query.ParseState(r.URL.Query(), h.pageSize)
	page, err := h.events.Events(r.Context(), st)
	if err != nil {
		writeErr(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// GetChart returns the time-bucketed volume chart.
// GET /api/events/chart?range=
func (h *EventHandler) GetChart(w http.ResponseWriter, r *http.Request) {
	chart, err := h.events.Chart(r.Context(), timeline.ParseRange(r.URL.Query().Get("range")))
	if err != nil {
		writeErr(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, chart)
}

// GetKPI returns the headline statistics.
// GET /api/events/kpi
func (h *EventHandler) GetKPI(w http.ResponseWriter, r *http.Request) {
	kpi, err := h.events.KPI(r.Context())
	if err != nil {
		writeErr(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, kpi)
}

// GetOverview returns the headline whale, top wallets and live events.
// GET /api/overview
func (h *EventHandler) GetOverview(w http.ResponseWriter, r *http.Request) {
	ov, err := h.events.Overview(r.Context())
	if err != nil {
		writeErr(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ov)
}

// ListTokens returns every token seen, base tokens first.
// GET /api/tokens
func (h *EventHandler) ListTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := h.events.Tokens(r.Context())
	if err != nil {
		writeErr(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tokens": tokens})
}

type streamEntry struct {
	ID      string          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// ReplayStream returns stream entries after the given id so a reconnecting
// client can catch up on missed events.
// GET /api/events/stream?after=&count=
func (h *EventHandler) ReplayStream(w http.ResponseWriter, r *http.Request) {
	if h.stream == nil {
		writeError(w, http.StatusNotFound, "event stream is not enabled")
		return
	}
	after := r.URL.Query().Get("after")
	if after == "" {
		after = "0"
	}
	count := queryInt(r, "count", defaultStreamCount)
	if count <= 0 {
		count = defaultStreamCount
	}
	count = min(count, maxStreamCount)

	msgs, err := h.stream.StreamRead(r.Context(), domain.StreamEvents, after, count)
	if err != nil {
		writeErr(w, r, h.logger, err)
		return
	}

	entries := make([]streamEntry, 0, len(msgs))
	for _, m := range msgs {
		payload := json.RawMessage(m.Payload)
		if !json.Valid(payload) {
			continue
		}
		entries = append(entries, streamEntry{ID: m.ID, Payload: payload})
	}
	last := after
	if len(entries) > 0 {
		last = entries[len(entries)-1].ID
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries, "last_id": last})
}
