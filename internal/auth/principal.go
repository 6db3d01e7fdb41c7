package auth

import (
	"context"
	"slices"
	"time"
)

// Principal is the staff member behind a verified token.
type Principal struct {
	Subject   string
	Scopes    []string
	ExpiresAt time.Time
}

// Can reports whether the token granted scope.
func (p Principal) Can(scope string) bool {
	return slices.Contains(p.Scopes, scope)
}

type principalKey struct{}

// WithPrincipal stores p on ctx.
func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the Principal stored by WithPrincipal.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
