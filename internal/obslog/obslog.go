// Package obslog is the structured-logging context plumbing shared by the
// sender, the runners, and the state transactions: a common Logger
// interface, a zap-backed implementation, and a no-op fallback so library
// code never has to nil-check a missing logger.
package obslog

import (
	"context"

	"go.uber.org/zap"
)

// Logger is the logging surface every package in this module depends on.
type Logger interface {
	Info(args ...any)
	Infof(format string, args ...any)

	Warn(args ...any)
	Warnf(format string, args ...any)

	Error(args ...any)
	Errorf(format string, args ...any)

	Debug(args ...any)
	Debugf(format string, args ...any)

	WithFields(fields ...any) Logger

	Sync() error
}

// ZapLogger adapts *zap.SugaredLogger to Logger.
type ZapLogger struct {
	sugar *zap.SugaredLogger
}

// NewZapLogger builds a ZapLogger from an already-constructed zap logger.
func NewZapLogger(z *zap.Logger) *ZapLogger {
	return &ZapLogger{sugar: z.Sugar()}
}

// NewProductionZapLogger builds the default JSON production zap config,
// the same baseline the rest of the pack's services start from.
func NewProductionZapLogger() (*ZapLogger, error) {
	z, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}

	return NewZapLogger(z), nil
}

func (l *ZapLogger) Info(args ...any)             { l.sugar.Info(args...) }
func (l *ZapLogger) Infof(format string, args ...any)  { l.sugar.Infof(format, args...) }
func (l *ZapLogger) Warn(args ...any)             { l.sugar.Warn(args...) }
func (l *ZapLogger) Warnf(format string, args ...any)  { l.sugar.Warnf(format, args...) }
func (l *ZapLogger) Error(args ...any)            { l.sugar.Error(args...) }
func (l *ZapLogger) Errorf(format string, args ...any) { l.sugar.Errorf(format, args...) }
func (l *ZapLogger) Debug(args ...any)            { l.sugar.Debug(args...) }
func (l *ZapLogger) Debugf(format string, args ...any) { l.sugar.Debugf(format, args...) }

// WithFields returns a derived logger carrying additional key/value pairs,
// matching zap's SugaredLogger.With convention (alternating key, value).
//
//nolint:ireturn
func (l *ZapLogger) WithFields(fields ...any) Logger {
	return &ZapLogger{sugar: l.sugar.With(fields...)}
}

// Sync flushes any buffered log entries.
func (l *ZapLogger) Sync() error {
	return l.sugar.Sync()
}

// NoneLogger discards everything. Used when no logger is bound to the
// context, so callers never need a nil check before logging.
type NoneLogger struct{}

func (NoneLogger) Info(args ...any)             {}
func (NoneLogger) Infof(format string, args ...any)  {}
func (NoneLogger) Warn(args ...any)             {}
func (NoneLogger) Warnf(format string, args ...any)  {}
func (NoneLogger) Error(args ...any)            {}
func (NoneLogger) Errorf(format string, args ...any) {}
func (NoneLogger) Debug(args ...any)            {}
func (NoneLogger) Debugf(format string, args ...any) {}

//nolint:ireturn
func (l NoneLogger) WithFields(fields ...any) Logger { return l }
func (NoneLogger) Sync() error                       { return nil }

type loggerContextKey struct{}

// ContextWithLogger binds logger to ctx.
func ContextWithLogger(ctx context.Context, logger Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey{}, logger)
}

// FromContext extracts the bound Logger, or a NoneLogger when none is bound.
//
//nolint:ireturn
func FromContext(ctx context.Context) Logger {
	if logger, ok := ctx.Value(loggerContextKey{}).(Logger); ok {
		return logger
	}

	return NoneLogger{}
}
