// Package logger holds the component loggers. The TUI owns the terminal,
// so records go to a rotating file unless a command asks for stderr.
package logger

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Component loggers; all discard until Init is called.
var (
	Main     = discard()
	API      = discard()
	Cache    = discard()
	Dispatch = discard()
	Store    = discard()
	TUI      = discard()
)

// Options configures Init
type Options struct {
	Level  string // debug, info, warn, error
	Format string // "json" or "text"
	// File is the log file path; empty writes to Stderr instead
	File   string
	Stderr bool
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ParseLevel maps a level name to a slog level, defaulting to info
func ParseLevel(s string) slog.Level {
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

// Init configures the component loggers. The returned closer flushes the
// rotating file and is a no-op for stderr.
func Init(opts Options) (io.Closer, error) {
	hopts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}

	var (
		w      io.Writer = os.Stderr
		closer io.Closer = nopCloser{}
	)
	if opts.File != "" && !opts.Stderr {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return nil, err
		}
		rotating := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    10, // MB
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
		w, closer = rotating, rotating
	}

	var h slog.Handler
	switch {
	case opts.Format == "json":
		h = slog.NewJSONHandler(w, hopts)
	case w == os.Stderr:
		h = newPrettyHandler(os.Stderr, hopts)
	default:
		h = slog.NewTextHandler(w, hopts)
	}
	setBase(slog.New(h))
	return closer, nil
}

func setBase(base *slog.Logger) {
	Main = base.With("component", "main")
	API = base.With("component", "api")
	Cache = base.With("component", "cache")
	Dispatch = base.With("component", "dispatch")
	Store = base.With("component", "store")
	TUI = base.With("component", "tui")
}
