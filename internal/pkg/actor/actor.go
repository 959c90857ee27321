package actor

import "context"

type ctxKey struct{}

// System is recorded when no caller identity is attached (batch jobs, tests).
const System = "system"

// WithActor attaches the caller identity stamped on ledger events.
func WithActor(ctx context.Context, who string) context.Context {
	if who == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, who)
}

// From returns the caller identity, or System.
func From(ctx context.Context) string {
	if ctx == nil {
		return System
	}
	if who, ok := ctx.Value(ctxKey{}).(string); ok && who != "" {
		return who
	}
	return System
}
