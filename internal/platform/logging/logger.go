// Package logging configures the process-wide slog logger.
package logging

import (
	"log/slog"
	"os"

	"github.com/briankwest/imglink/internal/platform/correlation"
)

// InitLogger installs the default slog logger. Level is one of "debug",
// "info", "warn", "error"; format is "json" or "text". Unknown values fall
// back to info/text. The handler chain includes correlation-ID stamping.
func InitLogger(level, format string) {
	opts := &slog.HandlerOptions{Level: parseLevel(level)}

	var handler slog.Handler
	switch format {
	case "json":
		handler = slog.NewJSONHandler(os.Stdout, opts)
	default:
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	slog.SetDefault(slog.New(correlation.NewHandler(handler)))
}

func parseLevel(level string) slog.Level {
	switch level {
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
