// Package logging defines the structured, context-aware logger used across
// the playground backend.
package logging

import "context"

// Logger takes a message plus alternating key/value pairs, e.g.
//
//	log.Info(ctx, "share issued", "resourceId", id, "mode", mode)
type Logger interface {
	Debug(ctx context.Context, msg string, args ...any)
	Info(ctx context.Context, msg string, args ...any)
	Warn(ctx context.Context, msg string, args ...any)
	Error(ctx context.Context, msg string, args ...any)
	// With returns a child logger that always carries the given pairs.
	With(args ...any) Logger
}
