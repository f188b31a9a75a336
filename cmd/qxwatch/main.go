// Command qxwatch serves the QX on-chain event dashboard backend. Flags pick
// the config file and optionally override the run mode; -check validates
// the configuration and exits.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/alanyoungcy/qxwatch/internal/app"
	"github.com/alanyoungcy/qxwatch/internal/config"
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		configPath = flag.String("config", os.Getenv("QXWATCH_CONFIG"), "path to a TOML config file (optional)")
		mode       = flag.String("mode", "", "override the run mode: "+strings.Join(app.Modes(), ", "))
		checkOnly  = flag.Bool("check", false, "validate the configuration and exit")
	)
	flag.Parse()

	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("load config", slog.String("path", *configPath), slog.String("error", err.Error()))
		return 1
	}
	if *mode != "" {
		cfg.Mode = *mode
	}
	level.Set(parseLevel(cfg.LogLevel))

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		return 1
	}
	if *checkOnly {
		fmt.Fprintln(os.Stdout, "configuration ok")
		return 0
	}

	logger.Info("qxwatch starting",
		slog.String("mode", cfg.Mode),
		slog.Any("settings", config.RedactedConfig(cfg)),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application := app.New(cfg, logger)
	defer application.Close()

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("qxwatch exited", slog.String("error", err.Error()))
		return 1
	}
	logger.Info("qxwatch stopped")
	return 0
}

func parseLevel(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return l
}
