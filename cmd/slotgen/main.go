// Command slotgen materialises delivery slots from the active weekly
// templates. It is meant to run daily from cron against the Postgres store.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"time"

	"wallquote/backend/internal/config"
	"wallquote/backend/internal/domain"
	"wallquote/backend/internal/logging"
	"wallquote/backend/internal/service"
	pgstore "wallquote/backend/internal/store/postgres"
)

func main() {
	days := flag.Int("days", 7, "number of days to generate, starting tomorrow")
	cleanup := flag.Bool("cleanup", false, "delete past auto-generated slots that have no orders")
	timeout := flag.Duration("timeout", time.Minute, "overall deadline for the run")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Init(logging.Options{
		Component: "wallquote-slotgen",
		FilePath:  cfg.Log.File,
		Level:     cfg.Log.Level,
		MaxSizeMB: cfg.Log.MaxSizeMB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	result, err := generate(ctx, cfg, domain.SlotGenerationRequest{Days: *days, CleanupPast: *cleanup}, logger)
	if err != nil {
		logger.Error("slot generation failed", "error", err)
		os.Exit(1)
	}
	logger.Info("slot generation complete", "created", result.Created, "skipped", result.Skipped, "cleaned", result.Cleaned)
}

func generate(ctx context.Context, cfg config.Config, req domain.SlotGenerationRequest, logger *slog.Logger) (domain.SlotGenerationResult, error) {
	if cfg.Database.URL == "" {
		return domain.SlotGenerationResult{}, errors.New("database.url required")
	}
	pg, err := pgstore.New(ctx, cfg.Database.URL)
	if err != nil {
		return domain.SlotGenerationResult{}, err
	}
	defer pg.Close()
	if err := pg.EnsureSchema(ctx); err != nil {
		return domain.SlotGenerationResult{}, err
	}

	svc := service.New(pg, service.Options{Logger: logger})
	return svc.GenerateScheduledSlots(ctx, req)
}
