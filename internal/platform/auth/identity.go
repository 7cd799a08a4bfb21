package auth

import (
	"context"
	"strings"
)

// Identity describes the caller as asserted by the upstream identity proxy.
// Authentication itself happens outside this service; by the time a request
// reaches us the proxy has validated the session and stamped these headers.
type Identity struct {
	UID   string
	Email string
	Admin bool
}

type identityContextKey struct{}

// WithIdentity stores the identity on the request context.
func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, identityContextKey{}, identity)
}

// IdentityFromContext retrieves the identity when present.
func IdentityFromContext(ctx context.Context) (*Identity, bool) {
	if ctx == nil {
		return nil, false
	}
	identity, ok := ctx.Value(identityContextKey{}).(*Identity)
	if !ok || identity == nil || strings.TrimSpace(identity.UID) == "" {
		return nil, false
	}
	return identity, true
}
