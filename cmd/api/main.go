package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"keygate/internal/config"
	"keygate/internal/infrastructure"
	"keygate/internal/logger"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}

	logger.Init(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := infrastructure.Bootstrap(ctx, cfg)
	if err != nil {
		slog.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	slog.Info("keygate is running", "store", cfg.StoreProvider, "bus", cfg.BusProvider)
	if err := app.Run(ctx); err != nil {
		slog.Error("server stopped with error", "error", err)
		cleanup()
		os.Exit(1)
	}
	slog.Info("keygate stopped")
}
