package logging

import (
	"context"
)

type contextKey int

const (
	loggerKey contextKey = iota
	connIDKey
)

// WithConnIDCtx returns a new context carrying the connection id.
func WithConnIDCtx(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, connIDKey, id)
}

// ConnIDFromCtx extracts the connection id from the context.
func ConnIDFromCtx(ctx context.Context) string {
	if id, ok := ctx.Value(connIDKey).(string); ok {
		return id
	}
	return ""
}

// WithLoggerCtx returns a new context with the logger attached.
func WithLoggerCtx(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// LoggerFromCtx returns the logger from context, or nil if not set.
func LoggerFromCtx(ctx context.Context) *Logger {
	l, _ := ctx.Value(loggerKey).(*Logger)
	return l
}

// FromCtx returns the logger attached to ctx. Without one it falls back to the
// global logger, scoped to the context's connection id when present.
func FromCtx(ctx context.Context) *Logger {
	if l := LoggerFromCtx(ctx); l != nil {
		return l
	}
	l := Global()
	if id := ConnIDFromCtx(ctx); id != "" {
		l = l.WithConn(id)
	}
	return l
}
