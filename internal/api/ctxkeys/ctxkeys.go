// Package ctxkeys holds the request context keys shared by middleware and
// handlers. It is a leaf package so both can import it without a cycle.
package ctxkeys

import "context"

// Key is the named type for all API context keys. context.Value compares
// type and value, so these never collide with plain string keys.
type Key string

const (
	// Email is the authenticated staff member's email, set by the auth middleware.
	Email Key = "email"

	// SessionID identifies the session behind the bearer token.
	SessionID Key = "session_id"

	// Provider is the identity provider the session was opened with.
	Provider Key = "provider"
)

// WithValue adds a ctxkeys.Key value to the context.
func WithValue(ctx context.Context, key Key, value string) context.Context {
	return context.WithValue(ctx, key, value)
}

// Value returns the string stored under key, or "" when absent.
func Value(ctx context.Context, key Key) string {
	v, _ := ctx.Value(key).(string)
	return v
}
