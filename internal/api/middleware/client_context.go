package middleware

import (
	"context"
	"time"
)

// clientContextKey is the context key for authenticated client information.
type clientContextKey struct{}

// ClientContext contains the authenticated caller of a write request.
// The authentication middleware adds it after a successful API key check.
type ClientContext struct {
	// ClientID is the ID part of the presented key, e.g. "scoreboard-feed".
	ClientID string

	// Name is the human-readable key name from configuration.
	Name string

	// AuthTime is when authentication succeeded.
	AuthTime time.Time
}

// GetClientContext extracts client context from the request context.
// Returns (context, true) if authenticated, (empty, false) if not found.
func GetClientContext(ctx context.Context) (ClientContext, bool) {
	clientCtx, ok := ctx.Value(clientContextKey{}).(ClientContext)

	return clientCtx, ok
}

// SetClientContext returns a copy of ctx carrying clientCtx.
func SetClientContext(ctx context.Context, clientCtx ClientContext) context.Context {
	return context.WithValue(ctx, clientContextKey{}, clientCtx)
}
