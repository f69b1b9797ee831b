package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"keygate/internal/config"
	"keygate/internal/logger"
	"keygate/internal/store"
)

func main() {
	cfg, err := config.New()
	if err != nil {
		slog.Error("config error", "error", err)
		os.Exit(1)
	}
	logger.Init(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})

	if cfg.StoreProvider != "postgres" {
		slog.Error("migrations only apply to the postgres store", "store", cfg.StoreProvider)
		os.Exit(1)
	}

	flag.Parse()
	args := flag.Args()

	if len(args) < 1 {
		fmt.Println("Error: migration command is required")
		fmt.Println("Usage: go run ./cmd/migrate [command]")
		fmt.Println("Commands: up, down, status, redo")
		os.Exit(1)
	}

	command := args[0]

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	if err := store.RunMigrations(ctx, cfg.DSN(), command); err != nil {
		slog.Error("migration failed", "command", command, "error", err)
		os.Exit(1)
	}

	fmt.Println("Migration finished successfully")
}
