package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

const (
	ansiReset  = "\033[0m"
	ansiDim    = "\033[2m"
	ansiBold   = "\033[1m"
	ansiGray   = "\033[90m"
	ansiGreen  = "\033[32m"
	ansiYellow = "\033[33m"
	ansiRed    = "\033[31m"
	ansiCyan   = "\033[36m"
)

// prettyHandler writes one aligned line per record for CLI --verbose runs
type prettyHandler struct {
	w        io.Writer
	opts     *slog.HandlerOptions
	mu       *sync.Mutex
	preAttrs []slog.Attr
	color    bool
}

func newPrettyHandler(w io.Writer, opts *slog.HandlerOptions) *prettyHandler {
	return &prettyHandler{
		w:     w,
		opts:  opts,
		mu:    &sync.Mutex{},
		color: isColorEnabled(w),
	}
}

// isColorEnabled respects NO_COLOR and TERM=dumb and only colors real terminals
func isColorEnabled(w io.Writer) bool {
	if os.Getenv("NO_COLOR") != "" || os.Getenv("TERM") == "dumb" {
		return false
	}
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}

func (h *prettyHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

func (h *prettyHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cp := *h
	cp.preAttrs = append(h.preAttrs[:len(h.preAttrs):len(h.preAttrs)], attrs...)
	return &cp
}

func (h *prettyHandler) WithGroup(_ string) slog.Handler {
	return h
}

func (h *prettyHandler) Handle(_ context.Context, r slog.Record) error {
	component := ""
	var extra []slog.Attr
	collect := func(a slog.Attr) bool {
		if a.Key == "component" {
			component = a.Value.String()
		} else {
			extra = append(extra, a)
		}
		return true
	}
	for _, a := range h.preAttrs {
		collect(a)
	}
	r.Attrs(collect)

	col := func(code, s string) string {
		if h.color {
			return code + s + ansiReset
		}
		return s
	}

	var b strings.Builder
	b.WriteString(col(ansiDim+ansiGray, r.Time.Format("15:04:05.000")))
	b.WriteString("  ")

	switch {
	case r.Level < slog.LevelInfo:
		b.WriteString(col(ansiGray, "DBG"))
	case r.Level < slog.LevelWarn:
		b.WriteString(col(ansiGreen+ansiBold, "INF"))
	case r.Level < slog.LevelError:
		b.WriteString(col(ansiYellow+ansiBold, "WRN"))
	default:
		b.WriteString(col(ansiRed+ansiBold, "ERR"))
	}
	b.WriteString("  ")
	b.WriteString(col(ansiCyan, fmt.Sprintf("%-8s", component)))
	b.WriteString("  ")
	b.WriteString(r.Message)

	for _, a := range extra {
		b.WriteString("  ")
		b.WriteString(col(ansiDim, a.Key))
		b.WriteByte('=')
		v := fmt.Sprintf("%v", a.Value.Resolve().Any())
		if a.Key == "error" {
			b.WriteString(col(ansiRed, v))
		} else {
			b.WriteString(v)
		}
	}
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, b.String())
	return err
}
