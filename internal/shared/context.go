package shared

import "context"

// Principal is the authenticated actor initiating an operation.
type Principal struct {
	ID    string
	Roles []string
}

// Authenticated reports whether the principal carries a usable identity.
func (p *Principal) Authenticated() bool {
	return p != nil && p.ID != ""
}

type principalContextKey struct{}

// ContextWithPrincipal stores the principal in context.
func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

// PrincipalFromContext extracts the principal from context.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalContextKey{}).(*Principal)
	return p
}
