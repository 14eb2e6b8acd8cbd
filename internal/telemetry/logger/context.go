package logger

import "context"

type contextKey string

const (
	loggerKey contextKey = "muxd.logger"
	connIDKey contextKey = "muxd.conn_id"
)

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, loggerKey, l)
}

// FromContext extracts the logger from context, or the default logger.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(loggerKey).(Logger); ok {
		return l
	}
	return Default()
}

// WithConnID tags the context with the id of the connection being served.
func WithConnID(ctx context.Context, id uint64) context.Context {
	return context.WithValue(ctx, connIDKey, id)
}

// ConnIDFromContext returns the connection id, if any.
func ConnIDFromContext(ctx context.Context) (uint64, bool) {
	id, ok := ctx.Value(connIDKey).(uint64)
	return id, ok
}

// L returns the context logger with conn_id attached when present.
func L(ctx context.Context) Logger {
	l := FromContext(ctx)
	if id, ok := ConnIDFromContext(ctx); ok {
		l = l.With("conn_id", id)
	}
	return l
}
