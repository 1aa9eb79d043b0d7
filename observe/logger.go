package observe

import (
	"context"
	"io"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Logger is a minimal structured logging interface.
//
// Contract:
// - Concurrency: implementations must be safe for concurrent use.
// - Context: the span in ctx, if any, is attached to the entry.
// - Errors: logging must be best-effort and must not panic.
type Logger interface {
	Info(ctx context.Context, msg string, fields ...Field)
	Warn(ctx context.Context, msg string, fields ...Field)
	Error(ctx context.Context, msg string, fields ...Field)
	Debug(ctx context.Context, msg string, fields ...Field)

	// With returns a logger that adds fields to every entry.
	With(fields ...Field) Logger
}

// Field represents a structured log field.
type Field struct {
	Key   string
	Value any
}

// F is shorthand for Field{Key: key, Value: value}.
func F(key string, value any) Field {
	return Field{Key: key, Value: value}
}

// ParseLogLevel parses a string log level. Unknown or empty strings mean info.
func ParseLogLevel(s string) zerolog.Level {
	if s == "" {
		return zerolog.InfoLevel
	}
	lvl, err := zerolog.ParseLevel(s)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

// zeroLogger is a JSON structured logger backed by zerolog.
type zeroLogger struct {
	zl zerolog.Logger
}

// NewLogger creates a new structured logger with the given level, writing
// JSON lines to stderr.
func NewLogger(level string) Logger {
	return NewLoggerWithWriter(level, os.Stderr)
}

// NewLoggerWithWriter creates a new structured logger with a custom writer.
func NewLoggerWithWriter(level string, w io.Writer) Logger {
	zl := zerolog.New(w).
		Level(ParseLogLevel(level)).
		With().
		Timestamp().
		Logger()
	return &zeroLogger{zl: zl}
}

// NopLogger returns a logger that discards everything.
func NopLogger() Logger {
	return &zeroLogger{zl: zerolog.Nop()}
}

// Zerolog returns the zerolog.Logger behind l, for libraries such as hlog
// that take one directly. Loggers from other packages get zerolog.Nop().
func Zerolog(l Logger) zerolog.Logger {
	if zl, ok := l.(*zeroLogger); ok {
		return zl.zl
	}
	return zerolog.Nop()
}

func (l *zeroLogger) With(fields ...Field) Logger {
	c := l.zl.With()
	for _, f := range fields {
		if isRedactedField(f.Key) {
			c = c.Str(f.Key, redacted)
			continue
		}
		switch v := f.Value.(type) {
		case error:
			c = c.AnErr(f.Key, v)
		case string:
			c = c.Str(f.Key, v)
		default:
			c = c.Interface(f.Key, v)
		}
	}
	return &zeroLogger{zl: c.Logger()}
}

func (l *zeroLogger) Info(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, l.zl.Info(), msg, fields)
}

func (l *zeroLogger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, l.zl.Warn(), msg, fields)
}

func (l *zeroLogger) Error(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, l.zl.Error(), msg, fields)
}

func (l *zeroLogger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, l.zl.Debug(), msg, fields)
}

const redacted = "[REDACTED]"

func (l *zeroLogger) log(ctx context.Context, e *zerolog.Event, msg string, fields []Field) {
	// Disabled level
	if e == nil {
		return
	}

	if ctx != nil {
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			e = e.Str("trace_id", sc.TraceID().String()).Str("span_id", sc.SpanID().String())
		}
	}

	for _, f := range fields {
		if isRedactedField(f.Key) {
			e = e.Str(f.Key, redacted)
			continue
		}
		switch v := f.Value.(type) {
		case error:
			e = e.AnErr(f.Key, v)
		case string:
			e = e.Str(f.Key, v)
		case time.Duration:
			e = e.Dur(f.Key, v)
		case int:
			e = e.Int(f.Key, v)
		case int64:
			e = e.Int64(f.Key, v)
		case bool:
			e = e.Bool(f.Key, v)
		case float64:
			e = e.Float64(f.Key, v)
		default:
			e = e.Interface(f.Key, v)
		}
	}

	e.Msg(msg)
}

// RedactedFields lists field keys whose values are never written. Submitted
// content is user data; the rest may hold credentials. Matching ignores case.
var RedactedFields = []string{
	"content",
	"password",
	"secret",
	"token",
	"api_key",
	"apikey",
	"authorization",
	"credential",
}

func isRedactedField(key string) bool {
	return slices.ContainsFunc(RedactedFields, func(f string) bool {
		return strings.EqualFold(f, key)
	})
}

// Ensure zeroLogger implements Logger
var _ Logger = (*zeroLogger)(nil)
