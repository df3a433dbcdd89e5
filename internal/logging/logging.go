package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

type ctxKey struct{}

type Options struct {
	Component  string
	FilePath   string
	Level      string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var (
	once sync.Once
	base *slog.Logger
)

// Init configures the global logger once. An empty FilePath logs to stdout only.
func Init(opts Options) *slog.Logger {
	once.Do(func() {
		base = build(os.Stdout, opts)
	})
	return base
}

func build(stdout io.Writer, opts Options) *slog.Logger {
	if opts.Component == "" {
		opts.Component = "wallquote"
	}
	out := stdout
	if opts.FilePath != "" {
		_ = os.MkdirAll(filepath.Dir(opts.FilePath), 0o755)
		rot := &lumberjack.Logger{
			Filename:   opts.FilePath,
			MaxSize:    positiveOr(opts.MaxSizeMB, 50),
			MaxBackups: positiveOr(opts.MaxBackups, 3),
			MaxAge:     positiveOr(opts.MaxAgeDays, 7),
		}
		out = io.MultiWriter(stdout, rot)
	}

	h := slog.NewJSONHandler(out, &slog.HandlerOptions{Level: ParseLevel(opts.Level)})
	return slog.New(h).With("component", opts.Component)
}

// Base returns the global logger, initialising a stdout-only one if needed.
func Base() *slog.Logger {
	return Init(Options{Component: "wallquote"})
}

// New returns a child logger that reuses the global handler.
func New(component string) *slog.Logger {
	return Base().With("module", component)
}

func WithCtx(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromCtx fetches a request-scoped logger or falls back to the global one.
func FromCtx(ctx context.Context) *slog.Logger {
	if v := ctx.Value(ctxKey{}); v != nil {
		if l, ok := v.(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return Base()
}

func ParseLevel(raw string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func positiveOr(v int, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}
