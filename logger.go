package tcpclient

import (
	"log/slog"

	"go.uber.org/zap"
)

// Logger is the interface for structured logging.
// It is designed to be compatible with *slog.Logger from the standard library.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// defaultLogger returns the default slog logger from the standard library.
func defaultLogger() Logger {
	return slog.Default()
}

// ZapLogger adapts a zap logger to Logger. Arguments are treated as
// alternating keys and values, as with zap's sugared "w" methods.
func ZapLogger(l *zap.Logger) Logger {
	return &zapLogger{s: l.Sugar()}
}

type zapLogger struct {
	s *zap.SugaredLogger
}

func (l *zapLogger) Debug(msg string, args ...any) {
	l.s.Debugw(msg, args...)
}

func (l *zapLogger) Info(msg string, args ...any) {
	l.s.Infow(msg, args...)
}

func (l *zapLogger) Warn(msg string, args ...any) {
	l.s.Warnw(msg, args...)
}

func (l *zapLogger) Error(msg string, args ...any) {
	l.s.Errorw(msg, args...)
}

// attrLogger prefixes every record with fixed key-value pairs.
type attrLogger struct {
	Logger
	attrs []any
}

// withAttrs returns l with args attached to every record.
func withAttrs(l Logger, args ...any) Logger {
	switch v := l.(type) {
	case *slog.Logger:
		return v.With(args...)
	case *zapLogger:
		return &zapLogger{s: v.s.With(args...)}
	case *attrLogger:
		return &attrLogger{Logger: v.Logger, attrs: append(append([]any(nil), v.attrs...), args...)}
	}
	return &attrLogger{Logger: l, attrs: args}
}

func withTarget(l Logger, target Target) Logger {
	return withAttrs(l, "target", target.String())
}

func (l *attrLogger) args(args []any) []any {
	return append(append([]any(nil), l.attrs...), args...)
}

func (l *attrLogger) Debug(msg string, args ...any) {
	l.Logger.Debug(msg, l.args(args)...)
}

func (l *attrLogger) Info(msg string, args ...any) {
	l.Logger.Info(msg, l.args(args)...)
}

func (l *attrLogger) Warn(msg string, args ...any) {
	l.Logger.Warn(msg, l.args(args)...)
}

func (l *attrLogger) Error(msg string, args ...any) {
	l.Logger.Error(msg, l.args(args)...)
}
