// Package logging sets up the runtime's structured logger: a colorized
// text handler for TTY/dev use, with optional lumberjack-backed file
// rotation for production use.
package logging

import (
	"io"
	"log/slog"
	"os"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

const (
	DefaultMaxSizeMB  = 10
	DefaultMaxBackups = 3
	DefaultMaxAgeDays = 7
)

// Config describes where the runtime activity log goes and how it rotates.
// If Path is empty, logs go to stderr uncolored-and-unrotated unless Color
// is set, in which case stderr gets the color handler.
type Config struct {
	Path       string
	Level      slog.Level
	Color      bool
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// New builds a *slog.Logger per cfg and sets it as slog's default: a single
// process-wide logger configured once at startup.
func New(cfg Config) *slog.Logger {
	var w io.Writer = os.Stderr
	if cfg.Path != "" {
		w = &lj.Logger{
			Filename:   cfg.Path,
			MaxSize:    valOr(cfg.MaxSizeMB, DefaultMaxSizeMB),
			MaxBackups: valOr(cfg.MaxBackups, DefaultMaxBackups),
			MaxAge:     valOr(cfg.MaxAgeDays, DefaultMaxAgeDays),
			Compress:   cfg.Compress,
		}
	}

	opts := &slog.HandlerOptions{Level: cfg.Level}
	var handler slog.Handler
	if cfg.Color && cfg.Path == "" {
		handler = NewColorTextHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

func valOr(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
