package alarm

import (
	"context"
	"log/slog"
)

// Caller places an emergency phone call.
type Caller interface {
	// Call dials number and reports whether the call was placed.
	Call(ctx context.Context, number string) bool
}

// LogCaller simulates calls by logging them.
type LogCaller struct {
	Logger *slog.Logger
}

// Call implements Caller. Empty numbers are never dialed.
func (c LogCaller) Call(ctx context.Context, number string) bool {
	if number == "" {
		return false
	}
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.WarnContext(ctx, "calling external number", "number", number)
	return true
}

// CallerFunc adapts a function to Caller.
type CallerFunc func(ctx context.Context, number string) bool

// Call implements Caller.
func (f CallerFunc) Call(ctx context.Context, number string) bool { return f(ctx, number) }
