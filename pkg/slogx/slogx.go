package slogx

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

type Config struct {
	Service string
	Version string
	Env     string // e.g. "dev", "prod"
	Level   string // e.g. "debug", "info", "warn", "error"
	Format  string // e.g. "json", "text", "pretty"

	// Output defaults to os.Stdout.
	Output io.Writer
}

// New returns a configured slog.Logger instance and installs it as the
// process default.
func New(cfg Config) *slog.Logger {
	logger := slog.New(NewHandler(cfg)).With(
		"service", cfg.Service,
		"version", cfg.Version,
		"env", cfg.Env,
	)

	slog.SetDefault(logger)
	return logger
}

// NewHandler builds the handler New uses without touching the default
// logger. Embedders that own their logging setup wrap this instead.
func NewHandler(cfg Config) slog.Handler {
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	level := ParseLevel(cfg.Level)

	switch strings.ToLower(cfg.Format) {
	case "pretty", "tint":
		return tint.NewHandler(out, &tint.Options{
			AddSource:  cfg.Env == "dev",
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	case "text":
		return slog.NewTextHandler(out, &slog.HandlerOptions{
			AddSource: cfg.Env == "dev", // Add source info in dev mode
			Level:     level,
		})
	default:
		return slog.NewJSONHandler(out, &slog.HandlerOptions{
			AddSource: cfg.Env == "dev",
			Level:     level,
		})
	}
}

// ParseLevel maps a string to slog.Level.
func ParseLevel(lvl string) slog.Level {
	switch strings.ToLower(lvl) {
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

// Discard returns a logger that drops everything. Handy as a default for
// optional logger fields and in tests.
func Discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}
