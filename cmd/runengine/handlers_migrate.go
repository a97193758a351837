package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/workflowai/runengine/internal/config"
	"github.com/workflowai/runengine/internal/store"
)

// runMigrate loads configuration, opens the store and applies the
// schema.
func runMigrate(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	pgStore, err := store.Open(cfg.Store.ConnectionString, store.DefaultConfig())
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer pgStore.Close()

	if err := pgStore.Migrate(ctx); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	slog.Info("schema applied")
	return nil
}
