// Package logger provides a zap-based application logger.
package logger

import (
	"context"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Level is the minimum severity a Logger writes.
type Level = zapcore.Level

const (
	LevelDebug = zapcore.DebugLevel
	LevelInfo  = zapcore.InfoLevel
	LevelWarn  = zapcore.WarnLevel
	LevelError = zapcore.ErrorLevel
)

// TraceIDFn extracts a trace id from a context. It returns "" when there is
// none.
type TraceIDFn func(ctx context.Context) string

// Logger writes structured JSON lines tagged with the service name and, when
// available, the trace id of the calling context.
type Logger struct {
	s       *zap.SugaredLogger
	traceID TraceIDFn
}

// New constructs a Logger writing to w.
func New(w io.Writer, min Level, service string, traceID TraceIDFn) *Logger {
	enc := zap.NewProductionEncoderConfig()
	enc.TimeKey = "timestamp"
	enc.EncodeTime = zapcore.RFC3339NanoTimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(enc), zapcore.AddSync(w), min)
	z := zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1)).With(zap.String("service", service))
	return &Logger{s: z.Sugar(), traceID: traceID}
}

// Nop returns a Logger that discards everything.
func Nop() *Logger {
	return &Logger{s: zap.NewNop().Sugar()}
}

// ParseLevel maps "debug", "info", "warn" or "error" to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, errors.Newf("unknown log level %q", s)
}

// With returns a Logger that adds the key/value pairs to every line.
func (l *Logger) With(keysAndValues ...any) *Logger {
	return &Logger{s: l.s.With(keysAndValues...), traceID: l.traceID}
}

// Debug writes a debug line with the given key/value pairs.
func (l *Logger) Debug(ctx context.Context, msg string, keysAndValues ...any) {
	l.s.Debugw(msg, l.fields(ctx, keysAndValues)...)
}

// Info writes an info line.
func (l *Logger) Info(ctx context.Context, msg string, keysAndValues ...any) {
	l.s.Infow(msg, l.fields(ctx, keysAndValues)...)
}

// Warn writes a warning line.
func (l *Logger) Warn(ctx context.Context, msg string, keysAndValues ...any) {
	l.s.Warnw(msg, l.fields(ctx, keysAndValues)...)
}

// Error writes an error line.
func (l *Logger) Error(ctx context.Context, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, l.fields(ctx, keysAndValues)...)
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.s.Sync()
}

func (l *Logger) fields(ctx context.Context, kv []any) []any {
	if l.traceID == nil || ctx == nil {
		return kv
	}
	if id := l.traceID(ctx); id != "" {
		out := make([]any, len(kv), len(kv)+2)
		copy(out, kv)
		return append(out, "trace_id", id)
	}
	return kv
}
