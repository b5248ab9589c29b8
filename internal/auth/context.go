package auth

import (
	"context"
)

type contextKey string

const contextKeySessionID contextKey = "session_id"

// WithSessionID attaches the web session id to ctx.
func WithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, contextKeySessionID, sessionID)
}

// SessionIDFromContext returns the web session id, or "" when the request has none.
func SessionIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(contextKeySessionID).(string)
	return s
}
