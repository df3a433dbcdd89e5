package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wallquote/backend/internal/booking"
	"wallquote/backend/internal/cache"
	"wallquote/backend/internal/config"
	"wallquote/backend/internal/httpapi"
	"wallquote/backend/internal/logging"
	"wallquote/backend/internal/pricing"
	"wallquote/backend/internal/service"
	"wallquote/backend/internal/store"
	"wallquote/backend/internal/store/memory"
	pgstore "wallquote/backend/internal/store/postgres"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Init(logging.Options{
		Component: "wallquote-server",
		FilePath:  cfg.Log.File,
		Level:     cfg.Log.Level,
		MaxSizeMB: cfg.Log.MaxSizeMB,
	})
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	repo, closers, err := openRepository(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		for _, closeFn := range closers {
			if err := closeFn(); err != nil {
				logger.Warn("close error", "error", err)
			}
		}
	}()

	zoneCache, cacheCloser := openZoneCache(ctx, cfg, logger)
	if cacheCloser != nil {
		closers = append(closers, cacheCloser)
	}

	zones, err := loadZones(cfg, logger)
	if err != nil {
		return err
	}

	svc := service.New(repo, service.Options{
		Zones:        zones,
		ZoneCache:    zoneCache,
		ZoneCacheTTL: cfg.Redis.ZoneTTL,
		Dispatcher:   booking.NewDispatcher(newBooker(cfg, logger), cfg.Booking.Timeout, logging.New("booking")),
		Logger:       logging.New("service"),
	})
	auth := httpapi.NewAuthManager(ctx, cfg.Auth.Secret, cfg.Auth.TokenTTL, repo)
	api := httpapi.New(svc, auth, cfg.HTTP.AllowedOrigin)

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
		IdleTimeout:       cfg.HTTP.IdleTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("wallquote backend listening", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case err := <-serveErr:
		if err != nil {
			return err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("shutdown error", "error", err)
	}
	logger.Info("server stopped")
	return nil
}

// openRepository refuses to fall back to memory when a database URL is set.
func openRepository(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Repository, []func() error, error) {
	if cfg.Database.URL == "" {
		logger.Info("repository: in-memory")
		return memory.NewSeeded(), nil, nil
	}

	pg, err := pgstore.New(ctx, cfg.Database.URL)
	if err != nil {
		return nil, nil, err
	}
	if err := pg.EnsureSchema(ctx); err != nil {
		_ = pg.Close()
		return nil, nil, err
	}
	logger.Info("repository: postgres")
	return pg, []func() error{pg.Close}, nil
}

func openZoneCache(ctx context.Context, cfg config.Config, logger *slog.Logger) (cache.ZoneCache, func() error) {
	if cfg.Redis.Addr == "" {
		logger.Info("zone cache: noop")
		return cache.NoopZoneCache{}, nil
	}
	redisCache := cache.NewRedisZoneCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err := redisCache.Ping(ctx); err != nil {
		logger.Warn("redis unavailable, using noop zone cache", "error", err)
		_ = redisCache.Close()
		return cache.NoopZoneCache{}, nil
	}
	logger.Info("zone cache: redis", "addr", cfg.Redis.Addr)
	return redisCache, redisCache.Close
}

func loadZones(cfg config.Config, logger *slog.Logger) (*pricing.ZoneResolver, error) {
	if cfg.Zones.File == "" {
		logger.Info("zone table: built-in")
		return pricing.NewZoneResolver(nil), nil
	}
	table, err := pricing.LoadZoneTable(cfg.Zones.File)
	if err != nil {
		return nil, err
	}
	logger.Info("zone table loaded", "file", cfg.Zones.File, "entries", table.Len())
	return pricing.NewZoneResolver(table), nil
}

func newBooker(cfg config.Config, logger *slog.Logger) booking.Booker {
	if !cfg.Booking.Enabled {
		logger.Info("transport automation disabled")
		return booking.NoopBooker{}
	}
	s := cfg.Booking.Sender
	return booking.NewChromeBooker(booking.ChromeOptions{
		PortalURL: cfg.Booking.PortalURL,
		Username:  cfg.Booking.Username,
		Password:  cfg.Booking.Password,
		TestMode:  cfg.Booking.TestMode,
		ExecPath:  cfg.Booking.ChromePath,
		Sender: booking.Sender{
			Company:      s.Company,
			Phone:        s.Phone,
			Salesperson:  s.Salesperson,
			Email:        s.Email,
			PickupName:   s.PickupName,
			PickupNo:     s.PickupNo,
			PickupStreet: s.PickupStreet,
			PickupSuburb: s.PickupSuburb,
		},
	}, logging.New("booking"))
}
