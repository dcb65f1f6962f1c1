// Package logger configures the application's structured logger.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/dan-solli/casegen/pkg/config"
)

// ParseLevel maps a configured level name to a slog level (case-insensitive).
// The bool is false for unknown names.
func ParseLevel(name string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}

// Setup creates a logger writing to w (stderr when nil) in the configured
// format and installs it as the slog default. Unknown levels fall back to info
// with a warning.
func Setup(cfg config.LogConfig, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}

	level, ok := ParseLevel(cfg.Level)
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	if !ok {
		logger.Warn("invalid log level configured, using default level",
			"configured_level", cfg.Level,
			"default_level", "info")
	}

	slog.SetDefault(logger)
	return logger
}
