// Package logging configures the process-wide slog logger and keeps a few
// printf-style helpers for places that only need a line of output.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
	"time"

	"github.com/lmittmann/tint"
)

var disabled atomic.Bool

// Options selects the handler installed by Setup.
type Options struct {
	Level  string // debug, info, warn, error
	Format string // pretty, text, json
	Output io.Writer
}

// ParseLevel maps a level name to a slog level. Unknown names are info.
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

// NewHandler builds the handler for opts.
func NewHandler(opts Options) slog.Handler {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	level := ParseLevel(opts.Level)

	var h slog.Handler
	switch strings.ToLower(opts.Format) {
	case "json":
		h = slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})
	case "text":
		h = slog.NewTextHandler(out, &slog.HandlerOptions{Level: level})
	default:
		h = tint.NewHandler(out, &tint.Options{
			Level:      level,
			TimeFormat: time.Kitchen,
		})
	}
	return switchHandler{h}
}

// Setup installs the handler for opts as the slog default.
func Setup(opts Options) *slog.Logger {
	l := slog.New(NewHandler(opts))
	slog.SetDefault(l)
	return l
}

// SetQuiet turns all logging off, or back on.
func SetQuiet(q bool) {
	disabled.Store(q)
}

// switchHandler drops every record while logging is disabled.
type switchHandler struct {
	slog.Handler
}

func (h switchHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return !disabled.Load() && h.Handler.Enabled(ctx, level)
}

func (h switchHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return switchHandler{h.Handler.WithAttrs(attrs)}
}

func (h switchHandler) WithGroup(name string) slog.Handler {
	return switchHandler{h.Handler.WithGroup(name)}
}

// Info logs an info message
func Info(v ...any) {
	slog.Info(fmt.Sprint(v...))
}

// Infof logs a formatted info message
func Infof(format string, v ...any) {
	slog.Info(fmt.Sprintf(format, v...))
}

// Warnf logs a formatted warning message
func Warnf(format string, v ...any) {
	slog.Warn(fmt.Sprintf(format, v...))
}

// Errorf logs a formatted error message
func Errorf(format string, v ...any) {
	slog.Error(fmt.Sprintf(format, v...))
}

// Debugf logs a formatted debug message
func Debugf(format string, v ...any) {
	slog.Debug(fmt.Sprintf(format, v...))
}
