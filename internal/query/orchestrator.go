package query

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/alanyoungcy/qxwatch/internal/display"
	"github.com/alanyoungcy/qxwatch/internal/domain"
	"github.com/alanyoungcy/qxwatch/internal/whale"
)

// SnapshotSource hands out the current whale thresholds. *whale.Registry
// satisfies it.
type SnapshotSource interface {
	Snapshot() whale.Snapshot
}

// Page is one page of annotated events.
type Page struct {
	Events     []domain.AnnotatedEvent `json:"events"`
	Total      int64                   `json:"total"`
	PageIndex  int                     `json:"pageIndex"`
	PageSize   int                     `json:"pageSize"`
	TotalPages int                     `json:"totalPages"`
	Strategy   Strategy                `json:"strategy"`
}

// Orchestrator runs a State against the event store.
type Orchestrator struct {
	source     domain.EventSource
	scan       domain.EventSource
	mirrored   bool
	thresholds SnapshotSource
	batchSize  int
	logger     *slog.Logger
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithScanSource reads full scans from src instead of the primary store
// while src holds as many rows as the primary. A lagging or failing src is
// bypassed for that scan.
func WithScanSource(src domain.EventSource) Option {
	return func(o *Orchestrator) {
		if src != nil {
			o.scan = src
			o.mirrored = true
		}
	}
}

// WithBatchSize sets the row cap per range request during full scans.
func WithBatchSize(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.batchSize = n
		}
	}
}

// NewOrchestrator creates an Orchestrator over source.
func NewOrchestrator(source domain.EventSource, thresholds SnapshotSource, logger *slog.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		source:     source,
		scan:       source,
		thresholds: thresholds,
		batchSize:  DefaultBatchSize,
		logger:     logger.With(slog.String("component", "query_orchestrator")),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run fetches the page described by st. now anchors relative times and the
// time filter.
func (o *Orchestrator) Run(ctx context.Context, st State, now time.Time) (Page, error) {
	strategy := Decide(st)
	page, err := o.execute(ctx, st, strategy, now)
	if err != nil {
		return Page{}, err
	}
	o.logger.DebugContext(ctx, "events page served",
		slog.String("strategy", strategy.String()),
		slog.Int64("total", page.Total),
		slog.Int("page", page.PageIndex),
	)
	return page, nil
}

// ScanAll returns every event matching st, annotated and sorted newest
// first. Charts and the overview use it.
func (o *Orchestrator) ScanAll(ctx context.Context, st State, now time.Time) ([]domain.AnnotatedEvent, error) {
	src, err := o.scanSource(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := FetchAll(ctx, src, domain.EventFilter{}, o.batchSize)
	if err != nil {
		return nil, err
	}
	classifier := whale.NewClassifier(o.thresholds.Snapshot())
	annotated := classifier.Annotate(display.ToDisplayEvents(rows, now))

	m := newMatcher(st, now)
	filtered := annotated[:0]
	for _, e := range annotated {
		if m.match(e) {
			filtered = append(filtered, e)
		}
	}
	slices.SortStableFunc(filtered, func(a, b domain.AnnotatedEvent) int {
		return cmp.Compare(b.TimestampMs, a.TimestampMs)
	})
	return filtered, nil
}

// scanSource picks the mirror when it is in step with the primary store.
func (o *Orchestrator) scanSource(ctx context.Context) (domain.EventSource, error) {
	if !o.mirrored {
		return o.source, nil
	}
	want, err := o.source.Count(ctx, domain.EventFilter{})
	if err != nil {
		return nil, fmt.Errorf("query: count primary: %w", err)
	}
	got, err := o.scan.Count(ctx, domain.EventFilter{})
	switch {
	case err != nil:
		o.logger.WarnContext(ctx, "scan mirror unavailable, reading primary",
			slog.String("error", err.Error()),
		)
		return o.source, nil
	case got != want:
		o.logger.WarnContext(ctx, "scan mirror out of step, reading primary",
			slog.Int64("mirror", got),
			slog.Int64("primary", want),
		)
		return o.source, nil
	}
	return o.scan, nil
}

func (o *Orchestrator) execute(ctx context.Context, st State, strategy Strategy, now time.Time) (Page, error) {
	if st.PageSize <= 0 {
		st.PageSize = DefaultPageSize
	}
	st.PageSize = min(st.PageSize, MaxPageSize)
	st.PageIndex = min(max(st.PageIndex, 0), MaxPageIndex)
	page := Page{PageIndex: st.PageIndex, PageSize: st.PageSize, Strategy: strategy}

	switch strategy {
	case StrategyScan:
		all, err := o.ScanAll(ctx, st, now)
		if err != nil {
			return Page{}, fmt.Errorf("query: scan: %w", err)
		}
		page.Total = int64(len(all))
		start := st.PageIndex * st.PageSize
		if start < len(all) {
			page.Events = all[start:min(start+st.PageSize, len(all))]
		}

	case StrategyFiltered, StrategyPlain:
		filter := domain.EventFilter{}
		if strategy == StrategyFiltered {
			filter = ServerFilter(st, now)
		}
		total, err := o.source.Count(ctx, filter)
		if err != nil {
			return Page{}, fmt.Errorf("query: count: %w", err)
		}
		start := st.PageIndex * st.PageSize
		rows, err := o.source.FetchRange(ctx, filter, start, start+st.PageSize-1)
		if err != nil {
			return Page{}, fmt.Errorf("query: fetch page: %w", err)
		}
		classifier := whale.NewClassifier(o.thresholds.Snapshot())
		page.Total = total
		page.Events = classifier.Annotate(display.ToDisplayEvents(rows, now))
	}

	if page.Events == nil {
		page.Events = []domain.AnnotatedEvent{}
	}
	page.TotalPages = int((page.Total + int64(st.PageSize) - 1) / int64(st.PageSize))
	return page, nil
}
