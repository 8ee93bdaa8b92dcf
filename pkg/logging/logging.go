// Package logging configures the process-wide slog logger: JSON lines to
// stderr, optional rotating disk file, and sensitive-key redaction.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/homelead/askdb/pkg/config"
	"github.com/homelead/askdb/pkg/redact"
)

// Rotation limits for the disk log.
const (
	maxLogSizeMB  = 5
	maxLogBackups = 3
)

// Setup installs the default slog logger according to cfg.
func Setup(cfg config.LoggingConfig) {
	slog.SetDefault(slog.New(NewHandler(os.Stderr, cfg)))
}

// NewHandler builds the JSON handler writing to w and, when configured,
// also to a rotating file.
func NewHandler(w io.Writer, cfg config.LoggingConfig) slog.Handler {
	if cfg.FilePath != "" {
		w = io.MultiWriter(w, &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    maxLogSizeMB,
			MaxBackups: maxLogBackups,
		})
	}

	return slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       ParseLevel(cfg.Level),
		ReplaceAttr: redactAttr,
	})
}

// ParseLevel maps a config level string to a slog.Level. Unknown values
// fall back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// redactAttr replaces values of sensitive attribute keys so that ad-hoc log
// calls cannot leak credentials even when a caller logs a raw config struct.
func redactAttr(_ []string, a slog.Attr) slog.Attr {
	if redact.Key(a.Key) {
		return slog.String(a.Key, redact.Redacted)
	}
	return a
}
