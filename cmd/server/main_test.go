package main

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"wallquote/backend/internal/booking"
	"wallquote/backend/internal/cache"
	"wallquote/backend/internal/config"
	"wallquote/backend/internal/store/memory"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestOpenRepositoryDefaultsToMemory(t *testing.T) {
	repo, closers, err := openRepository(context.Background(), config.Config{}, quietLogger())
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	if _, ok := repo.(*memory.Store); !ok {
		t.Fatalf("expected in-memory store, got %T", repo)
	}
	if len(closers) != 0 {
		t.Fatalf("memory store needs no closers")
	}
}

func TestOpenZoneCacheWithoutRedis(t *testing.T) {
	zc, closer := openZoneCache(context.Background(), config.Config{}, quietLogger())
	if _, ok := zc.(cache.NoopZoneCache); !ok {
		t.Fatalf("expected noop cache, got %T", zc)
	}
	if closer != nil {
		t.Fatalf("noop cache needs no closer")
	}
}

func TestLoadZonesFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zones.yaml")
	data := []byte("zones:\n  - postcode: \"5690\"\n    suburb: Ceduna\n    steel_zone: regional\n    zone: \"5\"\n")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write zones: %v", err)
	}

	var cfg config.Config
	cfg.Zones.File = path
	resolver, err := loadZones(cfg, quietLogger())
	if err != nil {
		t.Fatalf("load zones: %v", err)
	}
	quote := resolver.Resolve("5690", false)
	if !quote.POA {
		t.Fatalf("expected zone 5 to be POA, got %+v", quote)
	}

	cfg.Zones.File = filepath.Join(t.TempDir(), "missing.yaml")
	if _, err := loadZones(cfg, quietLogger()); err == nil {
		t.Fatalf("expected missing zone file to fail startup")
	}
}

func TestNewBookerRespectsEnabledFlag(t *testing.T) {
	var cfg config.Config
	if _, ok := newBooker(cfg, quietLogger()).(booking.NoopBooker); !ok {
		t.Fatalf("expected noop booker when automation disabled")
	}

	cfg.Booking.Enabled = true
	cfg.Booking.Username = "portal"
	cfg.Booking.Password = "secret"
	if _, ok := newBooker(cfg, quietLogger()).(*booking.ChromeBooker); !ok {
		t.Fatalf("expected chrome booker when automation enabled")
	}
}
