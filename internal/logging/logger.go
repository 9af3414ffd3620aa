package logging

import (
	"log/slog"
	"os"
	"strings"
)

// New builds the process-wide structured logger. Level is configurable via
// HASHPASS_LOG_LEVEL (DEBUG, INFO, WARN, ERROR), defaulting to INFO.
func New(levelName string) *slog.Logger {
	var level slog.Level
	switch strings.ToUpper(levelName) {
	case "DEBUG":
		level = slog.LevelDebug
	case "WARN", "WARNING":
		level = slog.LevelWarn
	case "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}
