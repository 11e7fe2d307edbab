package auth

import "context"

type principalKey struct{}

// ContextWithPrincipal returns a child context carrying p. A principal
// without an identity is not stored.
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	if p.Identity == nil {
		return ctx
	}
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext reports the principal resolved for this request.
func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	if ctx == nil {
		return Principal{}, false
	}
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}

// SubjectFromContext returns the resolved identity id, or "" for anonymous
// requests.
func SubjectFromContext(ctx context.Context) string {
	if p, ok := PrincipalFromContext(ctx); ok {
		return p.Identity.ID.String()
	}
	return ""
}
