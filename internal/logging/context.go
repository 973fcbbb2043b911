package logging

import (
	"context"
)

type loggerKey struct{}

// WithLogger stores a logger on the context so request-scoped fields travel
// with it through the handler chain.
func WithLogger(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, loggerKey{}, logger)
}

// FromContext returns the logger stored by WithLogger, or a plain text
// logger at info level when the context carries none.
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*Logger); ok {
		return logger
	}
	return New(Config{Level: "info", Format: "text"})
}
