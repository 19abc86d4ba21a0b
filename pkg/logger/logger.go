// Package logger provides a zap-based application logger. Log calls take a
// context so the active trace id lands on every line.
package logger

import (
	"context"
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level aliases the zap level.
type Level = zapcore.Level

const (
	LevelDebug = zapcore.DebugLevel
	LevelInfo  = zapcore.InfoLevel
	LevelWarn  = zapcore.WarnLevel
	LevelError = zapcore.ErrorLevel
)

// TraceIDFn extracts the trace id from the context, or "" when absent.
type TraceIDFn func(ctx context.Context) string

// Logger writes structured JSON log lines.
type Logger struct {
	sl      *zap.SugaredLogger
	traceID TraceIDFn
}

// New creates a Logger writing to w at the given level, tagged with the
// service name. traceIDFn may be nil.
func New(w io.Writer, level Level, service string, traceIDFn TraceIDFn) *Logger {
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "ts"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(cfg), zapcore.AddSync(w), level)
	zl := zap.New(core).With(zap.String("service", service))
	return &Logger{sl: zl.Sugar(), traceID: traceIDFn}
}

// Debug logs at debug level.
func (l *Logger) Debug(ctx context.Context, msg string, kv ...any) {
	l.sl.Debugw(msg, l.args(ctx, kv)...)
}

// Info logs at info level.
func (l *Logger) Info(ctx context.Context, msg string, kv ...any) {
	l.sl.Infow(msg, l.args(ctx, kv)...)
}

// Warn logs at warn level.
func (l *Logger) Warn(ctx context.Context, msg string, kv ...any) {
	l.sl.Warnw(msg, l.args(ctx, kv)...)
}

// Error logs at error level.
func (l *Logger) Error(ctx context.Context, msg string, kv ...any) {
	l.sl.Errorw(msg, l.args(ctx, kv)...)
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.sl.Sync()
}

func (l *Logger) args(ctx context.Context, kv []any) []any {
	if l.traceID == nil {
		return kv
	}
	if tid := l.traceID(ctx); tid != "" {
		kv = append(kv, "trace_id", tid)
	}
	return kv
}
