// Package logging configures the process-wide slog logger.
//
//	logging.Init(os.Stderr, slog.LevelInfo, false)
//	log := logging.Component("receiver")
//	log.Info("listening", "addr", addr)
package logging

import (
	"io"
	"log/slog"
	"os"
)

// Logger is the global logger instance.
var Logger *slog.Logger

// Init installs a text or JSON handler writing to w as the global and
// default logger. Debug level adds source locations.
func Init(w io.Writer, level slog.Level, jsonFormat bool) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelDebug,
	}

	var handler slog.Handler
	if jsonFormat {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return InitWithHandler(handler)
}

// InitWithHandler installs a custom handler, mostly for tests.
func InitWithHandler(handler slog.Handler) *slog.Logger {
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
	return Logger
}

// Component returns a logger tagged with component=name.
func Component(name string) *slog.Logger {
	if Logger == nil {
		Init(os.Stderr, slog.LevelInfo, false)
	}
	return Logger.With("component", name)
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
