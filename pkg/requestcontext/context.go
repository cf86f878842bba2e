// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// The registries are deterministic state machines: every transition stamps
// times from the request-scoped clock, never from the wall clock directly.
// Middleware pins the time once per request; tests inject it with WithTime.
// The caller address plays the role the host ledger's transaction sender
// would, set by middleware and consumed by services.
package requestcontext

import (
	"context"
	"time"

	"tokengate/pkg/domain"
)

type (
	callerKey      struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
	adminKey       struct{}
)

// Caller retrieves the caller address from the context.
// Returns the zero address if not set.
func Caller(ctx context.Context) domain.Address {
	if addr, ok := ctx.Value(callerKey{}).(domain.Address); ok {
		return addr
	}
	return domain.ZeroAddress
}

// WithCaller injects a caller address into the context.
func WithCaller(ctx context.Context, addr domain.Address) context.Context {
	return context.WithValue(ctx, callerKey{}, addr)
}

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok {
		return id
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() for non-HTTP contexts (workers, CLI).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(requestTimeKey{}).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context. Used by the request-time
// middleware and by service tests that need deterministic transitions.
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, requestTimeKey{}, t)
}

// IsAdmin reports whether the request carries verified administrator
// credentials.
func IsAdmin(ctx context.Context) bool {
	if v, ok := ctx.Value(adminKey{}).(bool); ok {
		return v
	}
	return false
}

// WithAdmin marks the context as administrator-authenticated.
func WithAdmin(ctx context.Context, admin bool) context.Context {
	return context.WithValue(ctx, adminKey{}, admin)
}
