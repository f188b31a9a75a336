// Package app assembles qxwatch from its configuration: Wire builds the
// stores, caches, buses and clients, and each run mode starts the goroutines
// that mode serves under one errgroup.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/alanyoungcy/qxwatch/internal/config"
)

type modeFunc func(a *App, ctx context.Context, deps *Dependencies) error

// runModes maps config mode names to their entry points.
var runModes = map[string]modeFunc{
	"api":     (*App).APIMode,
	"ingest":  (*App).IngestMode,
	"archive": (*App).ArchiveMode,
	"full":    (*App).FullMode,
}

// Modes lists the accepted mode names in sorted order.
func Modes() []string {
	return slices.Sorted(maps.Keys(runModes))
}

// App owns the configuration and the cleanup hooks registered while wiring.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates an App.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{cfg: cfg, logger: logger.With(slog.String("component", "app"))}
}

// Run wires dependencies for the configured mode and blocks until ctx is
// cancelled or a component fails. An unknown mode is rejected before any
// connection is opened.
func (a *App) Run(ctx context.Context) error {
	name := strings.ToLower(strings.TrimSpace(a.cfg.Mode))
	run, ok := runModes[name]
	if !ok {
		return fmt.Errorf("app: unsupported mode %q (want one of %s)", a.cfg.Mode, strings.Join(Modes(), ", "))
	}

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	a.logger.InfoContext(ctx, "running",
		slog.String("mode", name),
		slog.String("driver", a.cfg.Driver),
		slog.Any("backends", deps.Backends),
	)
	return run(a, ctx, deps)
}

// Close runs cleanup hooks newest first. Later calls do nothing.
func (a *App) Close() {
	if len(a.closers) == 0 {
		return
	}
	a.logger.Info("releasing resources", slog.Int("hooks", len(a.closers)))
	for _, closeFn := range slices.Backward(a.closers) {
		closeFn()
	}
	a.closers = nil
}
