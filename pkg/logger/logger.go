package logger

import (
	"log/slog"
	"os"
	"sync/atomic"
)

// Component-tagged logging helpers. Call sites pass a short component name
// ("chat", "history", "functions", ...) and an optional field map.

var level = &slog.LevelVar{}

var log atomic.Pointer[slog.Logger]

func init() {
	level.Set(slog.LevelInfo)
	log.Store(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// SetDebug enables or disables debug-level output.
func SetDebug(on bool) {
	if on {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}
}

// SetOutput replaces the logger backend. Used by tests to silence output.
func SetOutput(l *slog.Logger) {
	log.Store(l)
}

func fieldsToAttrs(component string, fields map[string]any) []any {
	attrs := make([]any, 0, 2+2*len(fields))
	attrs = append(attrs, "component", component)
	for k, v := range fields {
		attrs = append(attrs, k, v)
	}
	return attrs
}

func DebugCF(component, msg string, fields map[string]any) {
	log.Load().Debug(msg, fieldsToAttrs(component, fields)...)
}

func InfoCF(component, msg string, fields map[string]any) {
	log.Load().Info(msg, fieldsToAttrs(component, fields)...)
}

func WarnCF(component, msg string, fields map[string]any) {
	log.Load().Warn(msg, fieldsToAttrs(component, fields)...)
}

func ErrorCF(component, msg string, fields map[string]any) {
	log.Load().Error(msg, fieldsToAttrs(component, fields)...)
}
