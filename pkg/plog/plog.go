// Package plog provides the process-wide structured logger for tarvault.
// Records at INFO and below are written to stdout while WARNING and above
// go to stderr, so scheduled runs can separate routine output from
// actionable noise.
package plog

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LevelNotice sits between INFO and WARN. It is used for per-file
// operational events (ADD, DELETE) that are too chatty for INFO.
const LevelNotice = slog.Level(2)

// levelVar holds the process-wide minimum log level.
var levelVar = new(slog.LevelVar)

// splitHandler is a slog.Handler that routes records to different handlers
// based on the record's level. INFO and below go to one handler, WARNING
// and above to another.
type splitHandler struct {
	outHandler slog.Handler
	errHandler slog.Handler
}

// Enabled checks the record level against the global minimum level.
func (h *splitHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= levelVar.Level()
}

// Handle dispatches the record to the appropriate handler.
func (h *splitHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level >= slog.LevelWarn {
		return h.errHandler.Handle(ctx, r)
	}
	return h.outHandler.Handle(ctx, r)
}

// WithAttrs returns a new splitHandler with the given attributes added.
func (h *splitHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &splitHandler{
		outHandler: h.outHandler.WithAttrs(attrs),
		errHandler: h.errHandler.WithAttrs(attrs),
	}
}

// WithGroup returns a new splitHandler with the given group.
func (h *splitHandler) WithGroup(name string) slog.Handler {
	return &splitHandler{
		outHandler: h.outHandler.WithGroup(name),
		errHandler: h.errHandler.WithGroup(name),
	}
}

var defaultLogger *slog.Logger

// handlerOptions renders the custom NOTICE level with its proper name
// instead of slog's default "INFO+2".
func handlerOptions() *slog.HandlerOptions {
	return &slog.HandlerOptions{
		Level: levelVar,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelNotice {
					a.Value = slog.StringValue("NOTICE")
				}
			}
			return a
		},
	}
}

func init() {
	defaultLogger = slog.New(&splitHandler{
		outHandler: slog.NewTextHandler(os.Stdout, handlerOptions()),
		errHandler: slog.NewTextHandler(os.Stderr, handlerOptions()),
	})
}

// SetOutput redirects all log output to w, primarily for testing.
func SetOutput(w io.Writer) {
	defaultLogger = slog.New(slog.NewTextHandler(w, handlerOptions()))
}

// SetLevel sets the minimum level emitted by the global logger.
func SetLevel(level slog.Level) {
	levelVar.Set(level)
}

// LevelFromString maps a configuration string to a slog level.
// Unknown strings fall back to INFO.
func LevelFromString(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "notice":
		return LevelNotice
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Debug logs a debug message.
func Debug(msg string, args ...any) {
	defaultLogger.Debug(msg, args...)
}

// Notice logs a per-item operational event.
func Notice(msg string, args ...any) {
	defaultLogger.Log(context.Background(), LevelNotice, msg, args...)
}

// Info logs an informational message.
func Info(msg string, args ...any) {
	defaultLogger.Info(msg, args...)
}

// Warn logs a warning message.
func Warn(msg string, args ...any) {
	defaultLogger.Warn(msg, args...)
}

// Error logs an error message.
func Error(msg string, args ...any) {
	defaultLogger.Error(msg, args...)
}
