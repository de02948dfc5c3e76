// Package logger builds the application's slog.Logger from environment
// configuration: JSON output for production aggregation, text for local
// development.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Config holds logger settings sourced from the environment.
type Config struct {
	Level  string `env:"LOG_LEVEL" envDefault:"info"`  // debug, info, warn, error
	Format string `env:"LOG_FORMAT" envDefault:"json"` // json or text
}

// New returns a configured *slog.Logger writing to stdout. Static attrs are
// attached to every record (service name, environment, and the like).
// Panics on an unknown level or format so misconfiguration stops startup
// instead of silently logging at the wrong level.
func New(cfg Config, attrs ...slog.Attr) *slog.Logger {
	return NewWithOutput(cfg, os.Stdout, attrs...)
}

// NewWithOutput is New with a custom output destination, for tests.
func NewWithOutput(cfg Config, w io.Writer, attrs ...slog.Attr) *slog.Logger {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "json", "":
		handler = slog.NewJSONHandler(w, opts)
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		panic(fmt.Sprintf("logger: unknown format %q", cfg.Format))
	}

	if len(attrs) > 0 {
		handler = handler.WithAttrs(attrs)
	}
	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info", "":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		panic(fmt.Sprintf("logger: unknown level %q", level))
	}
}
