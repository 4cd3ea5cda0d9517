package logging

import "context"

type contextKey int

const (
	runIDKey contextKey = iota
	loggerKey
)

// WithRunID returns a context carrying the purge run ID.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey, id)
}

// RunIDFromCtx returns the run ID stored in ctx, or "".
func RunIDFromCtx(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey).(string)
	return id
}

// WithLogger returns a context carrying l.
func WithLogger(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromCtx returns the logger attached to ctx, falling back to base and then
// to the global logger. The run ID from ctx, if any, is stamped on the result.
func FromCtx(ctx context.Context, base *Logger) *Logger {
	l, _ := ctx.Value(loggerKey).(*Logger)
	if l == nil {
		l = base
	}
	if l == nil {
		l = Global()
	}
	if id := RunIDFromCtx(ctx); id != "" && id != l.runID {
		l = l.WithRunID(id)
	}
	return l
}
