package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/qxwatch/internal/domain"
)

// Invalidator drops every cached query result whenever the events table
// changes and tells connected clients to refetch. Bursts of changes inside
// the debounce window collapse into one invalidation.
type Invalidator struct {
	feed     domain.ChangeFeed
	cache    domain.QueryCache
	bus      domain.SignalBus
	debounce time.Duration
	logger   *slog.Logger
}

// NewInvalidator creates an Invalidator. bus may be nil.
func NewInvalidator(feed domain.ChangeFeed, cache domain.QueryCache, bus domain.SignalBus, debounce time.Duration, logger *slog.Logger) *Invalidator {
	return &Invalidator{
		feed:     feed,
		cache:    cache,
		bus:      bus,
		debounce: debounce,
		logger:   logger.With(slog.String("component", "invalidator")),
	}
}

// Run consumes the change feed until ctx is cancelled or the feed closes.
func (v *Invalidator) Run(ctx context.Context) error {
	changes, err := v.feed.Changes(ctx)
	if err != nil {
		return fmt.Errorf("pipeline: subscribe change feed: %w", err)
	}
	v.logger.Info("invalidator started", slog.Duration("debounce", v.debounce))

	var (
		pending *domain.Change
		timer   *time.Timer
		fire    <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()

		case c, ok := <-changes:
			if !ok {
				if pending != nil {
					v.Invalidate(ctx, *pending)
				}
				return nil
			}
			if v.debounce <= 0 {
				v.Invalidate(ctx, c)
				continue
			}
			pending = &c
			if timer == nil {
				timer = time.NewTimer(v.debounce)
				fire = timer.C
			}

		case <-fire:
			timer, fire = nil, nil
			if pending != nil {
				v.Invalidate(ctx, *pending)
				pending = nil
			}
		}
	}
}

// Invalidate drops the query cache and publishes the change on the
// invalidation channel.
func (v *Invalidator) Invalidate(ctx context.Context, c domain.Change) {
	if err := v.cache.Invalidate(ctx); err != nil {
		v.logger.ErrorContext(ctx, "cache invalidation failed", slog.String("error", err.Error()))
	}
	if v.bus == nil {
		return
	}
	payload, err := json.Marshal(c)
	if err != nil {
		return
	}
	if err := v.bus.Publish(ctx, domain.ChannelInvalidate, payload); err != nil {
		v.logger.WarnContext(ctx, "publish invalidation failed", slog.String("error", err.Error()))
	}
}
