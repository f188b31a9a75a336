package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/qxwatch/internal/domain"
	"github.com/alanyoungcy/qxwatch/internal/whale"
)

// SettingsService exposes the whale thresholds. Every change drops cached
// views, since whale flags are computed at read time, and is broadcast on
// the settings channel.
type SettingsService struct {
	registry *whale.Registry
	cache    domain.QueryCache
	bus      domain.SignalBus
	logger   *slog.Logger
	stop     func()
}

// NewSettingsService creates a SettingsService and registers its observer
// on registry. Call Close to detach it.
func NewSettingsService(registry *whale.Registry, cache domain.QueryCache, bus domain.SignalBus, logger *slog.Logger) *SettingsService {
	s := &SettingsService{
		registry: registry,
		cache:    cache,
		bus:      bus,
		logger:   logger.With(slog.String("component", "settings_service")),
	}
	s.stop = registry.Subscribe(s.onChange)
	return s
}

// Thresholds returns the current settings.
func (s *SettingsService) Thresholds() whale.Settings {
	return s.registry.Snapshot().Settings()
}

// SetThresholds replaces the per-token thresholds.
func (s *SettingsService) SetThresholds(ctx context.Context, entries []domain.Threshold) (domain.Confirmation, error) {
	return s.registry.SetThresholds(ctx, entries)
}

// SetDefault replaces the default threshold.
func (s *SettingsService) SetDefault(ctx context.Context, amount int64) (domain.Confirmation, error) {
	return s.registry.SetDefault(ctx, amount)
}

// Close detaches the registry observer.
func (s *SettingsService) Close() {
	s.stop()
}

func (s *SettingsService) onChange(snap whale.Snapshot) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if s.cache != nil {
		if err := s.cache.Invalidate(ctx); err != nil {
			s.logger.WarnContext(ctx, "cache invalidation after settings change failed", slog.String("error", err.Error()))
		}
	}
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(snap.Settings())
	if err != nil {
		return
	}
	if err := s.bus.Publish(ctx, domain.ChannelSettings, payload); err != nil {
		s.logger.WarnContext(ctx, "publish settings change failed", slog.String("error", err.Error()))
	}
}
