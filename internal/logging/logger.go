package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Init configures the global slog logger.
// JSON output is used when format is "json" or ENVIRONMENT=production,
// otherwise the human-readable text handler.
func Init(level, format string) {
	slog.SetDefault(New(os.Stderr, level, format))
}

// New builds a logger without installing it as the default.
func New(w io.Writer, level, format string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if strings.EqualFold(format, "json") || env == "production" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// ParseLevel maps a config string to a slog level. Unknown values mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// Component returns a logger tagged with the owning subsystem.
func Component(name string) *slog.Logger {
	return slog.Default().With("component", name)
}

// WithEntity scopes a logger to a single synced entity.
func WithEntity(logger *slog.Logger, kind, id string) *slog.Logger {
	return logger.With(
		"entity_kind", kind,
		"entity_id", id,
	)
}

// Discard is a logger that drops everything; handy for tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
