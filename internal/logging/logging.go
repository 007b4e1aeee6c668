// Package logging sets up the process logger: human-readable text on
// stderr, optionally fanned out to a JSON file for machine parsing.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

// Setup builds the logger. When file is empty, only stderr is used.
// The returned cleanup closes the log file.
func Setup(level, file string) (*slog.Logger, func() error) {
	lvl := parseLevel(level)
	stderrHandler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	if file == "" {
		return slog.New(stderrHandler), func() error { return nil }
	}

	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		logger := slog.New(stderrHandler)
		logger.Warn("log file unavailable, using stderr only", "file", file, "error", err)
		return logger, func() error { return nil }
	}
	fileHandler := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: lvl})
	return slog.New(slogmulti.Fanout(stderrHandler, fileHandler)), f.Close
}

// NewWithWriters builds a dual-output logger over explicit writers, for
// tests.
func NewWithWriters(stderr, file io.Writer, level string) *slog.Logger {
	lvl := parseLevel(level)
	return slog.New(slogmulti.Fanout(
		slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: lvl}),
		slog.NewJSONHandler(file, &slog.HandlerOptions{Level: lvl}),
	))
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
