package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	s3blob "github.com/alanyoungcy/qxwatch/internal/blob/s3"
	"github.com/alanyoungcy/qxwatch/internal/crypto"
	"github.com/alanyoungcy/qxwatch/internal/domain"
	"github.com/alanyoungcy/qxwatch/internal/pipeline"
	"github.com/alanyoungcy/qxwatch/internal/query"
	"github.com/alanyoungcy/qxwatch/internal/server"
	"github.com/alanyoungcy/qxwatch/internal/server/handler"
	"github.com/alanyoungcy/qxwatch/internal/server/ws"
	"github.com/alanyoungcy/qxwatch/internal/service"
	"github.com/alanyoungcy/qxwatch/internal/whale"
)

// routeSet selects which groups of routes the HTTP server exposes.
type routeSet struct {
	dashboard bool // events, wallets, settings, archives and /ws
	webhook   bool // POST /api/webhook/qx
	// archiveTrigger enables POST /api/archives/run when the archive job runs
	// in the same process.
	archiveTrigger chan<- struct{}
}

// APIMode serves the dashboard API and live channels and keeps the query
// cache in step with new rows.
func (a *App) APIMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting api mode")

	registry, err := a.loadRegistry(ctx, deps)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startHTTPServer(ctx, g, deps, registry, routeSet{dashboard: true}); err != nil {
		return err
	}
	a.startInvalidator(ctx, g, deps)
	return g.Wait()
}

// IngestMode only accepts webhook deliveries. Threshold changes made by an
// API process are picked up from the settings channel.
func (a *App) IngestMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting ingest mode")

	registry, err := a.loadRegistry(ctx, deps)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	a.followSettings(ctx, g, deps, registry)
	if err := a.startHTTPServer(ctx, g, deps, registry, routeSet{webhook: true}); err != nil {
		return err
	}
	return g.Wait()
}

// ArchiveMode runs the archive job on its cron schedule.
func (a *App) ArchiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting archive mode")

	g, ctx := errgroup.WithContext(ctx)
	if err := a.startArchiver(ctx, g, deps, nil); err != nil {
		return err
	}
	return g.Wait()
}

// FullMode runs every component in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	registry, err := a.loadRegistry(ctx, deps)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	routes := routeSet{dashboard: true, webhook: true}
	if deps.Archiver != nil {
		trigger := make(chan struct{}, 1)
		if err := a.startArchiver(ctx, g, deps, trigger); err != nil {
			return err
		}
		routes.archiveTrigger = trigger
	} else {
		a.logger.WarnContext(ctx, "archive: no blob storage configured, archive job disabled")
	}

	if err := a.startHTTPServer(ctx, g, deps, registry, routes); err != nil {
		return err
	}
	a.startInvalidator(ctx, g, deps)
	return g.Wait()
}

func (a *App) loadRegistry(ctx context.Context, deps *Dependencies) (*whale.Registry, error) {
	registry := whale.NewRegistry(deps.Settings, a.logger, whale.WithSeedDefault(a.cfg.Whale.DefaultThreshold))
	if err := registry.Load(ctx); err != nil {
		return nil, fmt.Errorf("app: load thresholds: %w", err)
	}
	return registry, nil
}

// followSettings reloads the registry whenever another process announces a
// settings change.
func (a *App) followSettings(ctx context.Context, g *errgroup.Group, deps *Dependencies, registry *whale.Registry) {
	g.Go(func() error {
		msgs, err := deps.SignalBus.Subscribe(ctx, domain.ChannelSettings)
		if err != nil {
			return fmt.Errorf("settings follower: %w", err)
		}
		for range msgs {
			if err := registry.Load(ctx); err != nil {
				a.logger.WarnContext(ctx, "settings reload failed", slog.String("error", err.Error()))
			}
		}
		return nil
	})
}

func (a *App) startInvalidator(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	inv := pipeline.NewInvalidator(deps.Changes, deps.QueryCache, deps.SignalBus, a.cfg.Events.InvalidateDebounce.Duration, a.logger)
	g.Go(func() error {
		if err := inv.Run(ctx); err != nil && ctx.Err() == nil {
			return fmt.Errorf("invalidator: %w", err)
		}
		return nil
	})
}

func (a *App) startArchiver(ctx context.Context, g *errgroup.Group, deps *Dependencies, trigger <-chan struct{}) error {
	if deps.Archiver == nil {
		return fmt.Errorf("app: archive mode requires blob storage (set s3.bucket)")
	}
	archiver := pipeline.NewArchiver(deps.Archiver, deps.LockManager, deps.Notifier, a.cfg.Archive.RetentionDays, a.logger).
		WithTriggerChannel(trigger)
	g.Go(func() error {
		if err := archiver.RunCron(ctx, a.cfg.Archive.Cron); err != nil && ctx.Err() == nil {
			return err
		}
		return nil
	})
	return nil
}

// startHTTPServer adds the HTTP server goroutines to the given errgroup. The
// server is shut down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, registry *whale.Registry, routes routeSet) error {
	startedAt := time.Now().UTC()
	handlers := server.Handlers{
		Health: handler.NewHealthHandler(deps.Checks, a.logger),
		Status: handler.NewStatusHandler(a.cfg.Mode, startedAt, deps.Backends),
	}

	var hub *ws.Hub
	if routes.dashboard {
		loc, err := time.LoadLocation(a.cfg.Events.Timezone)
		if err != nil {
			return fmt.Errorf("app: events timezone: %w", err)
		}
		opts := []query.Option{query.WithBatchSize(a.cfg.Events.BatchSize)}
		if deps.Scan != nil {
			opts = append(opts, query.WithScanSource(deps.Scan))
		}
		orch := query.NewOrchestrator(deps.Events, registry, a.logger, opts...)

		settingsSvc := service.NewSettingsService(registry, deps.QueryCache, deps.SignalBus, a.logger)
		g.Go(func() error {
			<-ctx.Done()
			settingsSvc.Close()
			return nil
		})

		labels := service.NewLabelStore(deps.Settings)
		handlers.Events = handler.NewEventHandler(
			service.NewEventService(orch, deps.QueryCache, loc, a.logger),
			deps.SignalBus, a.cfg.Events.PageSize, a.logger,
		)
		handlers.Wallets = handler.NewWalletHandler(
			service.NewWalletService(deps.Wallets, deps.Events, labels, registry, deps.Analyzer, deps.SignalBus, a.logger),
			a.logger,
		)
		handlers.Settings = handler.NewSettingsHandler(settingsSvc, a.logger)
		handlers.Archives = handler.NewArchiveHandler(service.NewArchiveService(deps.BlobReader, deps.Audit, s3blob.ArchivePrefix), a.logger)

		hub = ws.NewHub(deps.SignalBus, a.logger, ws.Config{Mode: a.cfg.Mode, StartedAt: startedAt, Origins: a.cfg.Server.CORSOrigins})
		g.Go(func() error {
			if err := hub.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		})
	}

	if routes.webhook {
		opts := []pipeline.IngestOption{
			pipeline.WithNotifier(deps.Notifier, a.cfg.Notify.ExplorerURL),
			pipeline.WithDedup(a.cfg.Server.WebhookDedupWindow.Duration),
		}
		if deps.Mirror != nil {
			opts = append(opts, pipeline.WithMirror(deps.Mirror))
		}
		ingestor := pipeline.NewIngestor(deps.Events, deps.Wallets, registry, deps.SignalBus, a.logger, opts...)
		var hookOpts []handler.WebhookOption
		if secret := a.cfg.Server.WebhookSecret; secret != "" {
			hookOpts = append(hookOpts, handler.WithSignature(crypto.NewHMACAuth(secret)))
		}
		handlers.Webhook = handler.NewWebhookHandler(ingestor, a.logger, hookOpts...)
	}

	if routes.archiveTrigger != nil {
		handlers.Pipeline = handler.NewPipelineHandler(a.logger).WithArchiveTrigger(routes.archiveTrigger)
	}

	srv := server.NewServer(server.Config{
		Port:              a.cfg.Server.Port,
		CORSOrigins:       a.cfg.Server.CORSOrigins,
		APIKey:            a.cfg.Server.APIKey,
		WebhookRateLimit:  a.cfg.Server.WebhookRateLimit,
		WebhookRateWindow: a.cfg.Server.WebhookRateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
	return nil
}
