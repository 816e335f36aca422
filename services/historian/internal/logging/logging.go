// Package logging wraps log/slog so every historian component logs with the
// same handler and a "component" attribute.
//
//	logging.Init(slog.LevelInfo, false)
//	log := logging.Component("scheduler")
//	log.Info("run finished", "lane", "days", "key", "2019-04-23")
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Logger is the global logger instance.
var Logger *slog.Logger

// root is the handler component loggers resolve on every record, so loggers
// created in package vars pick up a later Init.
var root atomic.Pointer[slog.Handler]

// Init initializes the global logger. JSON output is meant for production,
// text output for local runs.
func Init(level slog.Level, jsonFormat bool) {
	InitWithWriter(os.Stdout, level, jsonFormat)
}

// InitWithWriter is Init with a custom destination, used by tests.
func InitWithWriter(w io.Writer, level slog.Level, jsonFormat bool) {
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var handler slog.Handler
	if jsonFormat {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	root.Store(&handler)
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

// Component returns a logger tagged with the component name.
func Component(name string) *slog.Logger {
	if root.Load() == nil {
		Init(slog.LevelInfo, false)
	}
	return slog.New(lateHandler{}).With("component", name)
}

// lateHandler replays its attributes and groups onto the current root
// handler.
type lateHandler struct {
	ops []func(slog.Handler) slog.Handler
}

func (h lateHandler) resolve() slog.Handler {
	out := *root.Load()
	for _, op := range h.ops {
		out = op(out)
	}
	return out
}

func (h lateHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return (*root.Load()).Enabled(ctx, level)
}

func (h lateHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.resolve().Handle(ctx, r)
}

func (h lateHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return h.with(func(next slog.Handler) slog.Handler { return next.WithAttrs(attrs) })
}

func (h lateHandler) WithGroup(name string) slog.Handler {
	return h.with(func(next slog.Handler) slog.Handler { return next.WithGroup(name) })
}

func (h lateHandler) with(op func(slog.Handler) slog.Handler) lateHandler {
	ops := make([]func(slog.Handler) slog.Handler, 0, len(h.ops)+1)
	return lateHandler{ops: append(append(ops, h.ops...), op)}
}

// ParseLevel maps debug/info/warn/error to a slog level. Unknown values
// fall back to info.
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
