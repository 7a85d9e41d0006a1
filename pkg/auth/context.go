package auth

import "context"

type contextKey string

const principalKey contextKey = "principal"

// WithPrincipal returns a context carrying the request's verified identity
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

// PrincipalFrom extracts the identity placed by WithPrincipal
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}
