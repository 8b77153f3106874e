package logging

import (
	"sort"

	"go.uber.org/zap"
)

// Logger is the narrow logging surface used by the client core.
// channel names the subsystem emitting the line ("audit", "retry", ...).
type Logger interface {
	Info(channel, message string, fields map[string]any)
	Warn(channel, message string, fields map[string]any)
	Error(channel, message string, fields map[string]any)
	Debug(channel, message string, fields map[string]any)
}

type zapLogger struct {
	log *zap.Logger
}

// NewZap adapts a zap logger. A nil logger yields Nop().
func NewZap(log *zap.Logger) Logger {
	if log == nil {
		return Nop()
	}
	return &zapLogger{log: log}
}

func (l *zapLogger) Info(channel, message string, fields map[string]any) {
	l.log.Named(channel).Info(message, toZap(fields)...)
}

func (l *zapLogger) Warn(channel, message string, fields map[string]any) {
	l.log.Named(channel).Warn(message, toZap(fields)...)
}

func (l *zapLogger) Error(channel, message string, fields map[string]any) {
	l.log.Named(channel).Error(message, toZap(fields)...)
}

func (l *zapLogger) Debug(channel, message string, fields map[string]any) {
	l.log.Named(channel).Debug(message, toZap(fields)...)
}

func toZap(fields map[string]any) []zap.Field {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		if err, ok := fields[k].(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, fields[k]))
	}
	return out
}

type nopLogger struct{}

// Nop returns a Logger that discards everything.
func Nop() Logger { return nopLogger{} }

func (nopLogger) Info(string, string, map[string]any)  {}
func (nopLogger) Warn(string, string, map[string]any)  {}
func (nopLogger) Error(string, string, map[string]any) {}
func (nopLogger) Debug(string, string, map[string]any) {}
