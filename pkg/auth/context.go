package auth

import "context"

type identityKey struct{}

// WithIdentity stores the authenticated identity in ctx.
func WithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the authenticated identity, or nil.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey{}).(*Identity)
	return id
}

// Allowed reports whether the caller in ctx holds scope. Requests that
// did not pass through Middleware carry no identity and are refused.
func Allowed(ctx context.Context, scope string) bool {
	return IdentityFromContext(ctx).Has(scope)
}
