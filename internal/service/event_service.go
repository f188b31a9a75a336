package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/qxwatch/internal/domain"
	"github.com/alanyoungcy/qxwatch/internal/query"
	"github.com/alanyoungcy/qxwatch/internal/timeline"
)

// EventService serves the event views. Results are cached until the next
// invalidation; views that depend on the wall clock bypass the cache.
type EventService struct {
	orch   *query.Orchestrator
	cache  domain.QueryCache
	loc    *time.Location
	now    func() time.Time
	logger *slog.Logger
}

// NewEventService creates an EventService. loc sets chart label time zone.
func NewEventService(orch *query.Orchestrator, cache domain.QueryCache, loc *time.Location, logger *slog.Logger) *EventService {
	if loc == nil {
		loc = time.UTC
	}
	return &EventService{
		orch:   orch,
		cache:  cache,
		loc:    loc,
		now:    func() time.Time { return time.Now().UTC() },
		logger: logger.With(slog.String("component", "event_service")),
	}
}

// Events returns one page for st.
func (s *EventService) Events(ctx context.Context, st query.State) (query.Page, error) {
	key := fmt.Sprintf("events:%q:%q:%q:%q:%d:%d", st.Search, st.Token, st.Type, st.Time, st.PageIndex, st.PageSize)
	cacheable := st.TimeWindow() == 0

	var page query.Page
	if cacheable && s.cached(ctx, key, &page) {
		return page, nil
	}

	page, err := s.orch.Run(ctx, st, s.now())
	if err != nil {
		return query.Page{}, fmt.Errorf("event_service: events: %w", err)
	}
	if page.Events == nil {
		page.Events = []domain.AnnotatedEvent{}
	}
	if cacheable {
		s.store(ctx, key, page)
	}
	return page, nil
}

// Chart is the activity chart payload.
type Chart struct {
	Range  timeline.Range  `json:"range"`
	Slots  []timeline.Slot `json:"slots"`
	Totals timeline.Totals `json:"totals"`
}

// Chart buckets every event for r.
func (s *EventService) Chart(ctx context.Context, r timeline.Range) (Chart, error) {
	now := s.now()
	events, err := s.orch.ScanAll(ctx, query.NewState(0), now)
	if err != nil {
		return Chart{}, fmt.Errorf("event_service: chart: %w", err)
	}
	display := make([]domain.DisplayEvent, len(events))
	for i, e := range events {
		display[i] = e.DisplayEvent
	}
	slots := timeline.Bucket(display, r, now, s.loc)
	return Chart{Range: timeline.ParseRange(string(r)), Slots: slots, Totals: timeline.Summarize(slots)}, nil
}

// KPI returns the headline counters.
func (s *EventService) KPI(ctx context.Context) (KPIStats, error) {
	var stats KPIStats
	if s.cached(ctx, "kpi", &stats) {
		return stats, nil
	}
	now := s.now()
	events, err := s.orch.ScanAll(ctx, query.NewState(0), now)
	if err != nil {
		return KPIStats{}, fmt.Errorf("event_service: kpi: %w", err)
	}
	stats = ComputeKPI(events, now)
	s.store(ctx, "kpi", stats)
	return stats, nil
}

// Overview returns the landing page payload.
func (s *EventService) Overview(ctx context.Context) (Overview, error) {
	var ov Overview
	if s.cached(ctx, "overview", &ov) {
		return ov, nil
	}
	events, err := s.orch.ScanAll(ctx, query.NewState(0), s.now())
	if err != nil {
		return Overview{}, fmt.Errorf("event_service: overview: %w", err)
	}
	ov = BuildOverview(events)
	s.store(ctx, "overview", ov)
	return ov, nil
}

// Tokens lists every token, base tokens first.
func (s *EventService) Tokens(ctx context.Context) ([]string, error) {
	var tokens []string
	if s.cached(ctx, "tokens", &tokens) {
		return tokens, nil
	}
	events, err := s.orch.ScanAll(ctx, query.NewState(0), s.now())
	if err != nil {
		return nil, fmt.Errorf("event_service: tokens: %w", err)
	}
	tokens = UniqueTokens(events)
	s.store(ctx, "tokens", tokens)
	return tokens, nil
}

// Invalidate drops every cached view.
func (s *EventService) Invalidate(ctx context.Context) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Invalidate(ctx)
}

func (s *EventService) cached(ctx context.Context, key string, dst any) bool {
	if s.cache == nil {
		return false
	}
	hit, err := s.cache.Get(ctx, key, dst)
	if err != nil {
		s.logger.WarnContext(ctx, "cache read failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return false
	}
	return hit
}

func (s *EventService) store(ctx context.Context, key string, v any) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, key, v); err != nil {
		s.logger.WarnContext(ctx, "cache write failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}
