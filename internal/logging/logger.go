package logging

import (
	"log/slog"
	"os"
	"strings"
)

// Init configures the global slog logger.
// In production (ENVIRONMENT=production) it uses JSON output for log aggregation.
// Otherwise it uses the human-readable text handler.
func Init() {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))

	var handler slog.Handler
	if env == "production" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})
	}

	slog.SetDefault(slog.New(handler))
}

// WithComponent returns a logger tagged with the emitting subsystem.
func WithComponent(component string) *slog.Logger {
	return slog.With("component", component)
}

// WithEntry returns a logger scoped to a single cache entry.
// Only the cache key and context type are attached; never subject identifiers or payloads.
func WithEntry(logger *slog.Logger, key, contextType string) *slog.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return logger.With(
		"entry_key", key,
		"context_type", contextType,
	)
}
