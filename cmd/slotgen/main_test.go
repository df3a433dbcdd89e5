package main

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"wallquote/backend/internal/config"
	"wallquote/backend/internal/domain"
)

func TestGenerateRequiresDatabase(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	_, err := generate(context.Background(), config.Config{}, domain.SlotGenerationRequest{Days: 7}, logger)
	if err == nil {
		t.Fatalf("expected slot generation without a database to fail")
	}
}
