// pkg/authn/context.go
package authn

import (
	"context"
)

// AuthContext is the verified identity for one request. It is built once by
// the Verify middleware and read-only afterwards: guards and handlers receive
// it by value and never mutate it.
type AuthContext struct {
	Token    string         // raw bearer token as presented
	Issuer   string         // iss claim
	ClientID string         // azp / client_id claim, if present
	Subject  string         // sub claim; empty for some machine tokens
	Audience []string       // aud claim
	Scopes   []string       // space-delimited "scope" claim, split
	Claims   map[string]any // private claims, as parsed
}

// HasScope reports whether the token carries the given scope.
func (a AuthContext) HasScope(scope string) bool {
	for _, s := range a.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

type ctxKey struct{}

// WithAuth stores the AuthContext in ctx.
func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, ctxKey{}, ac)
}

// FromContext extracts the AuthContext. The second return is false when the
// request never passed through Verify (public endpoints).
func FromContext(ctx context.Context) (AuthContext, bool) {
	v, ok := ctx.Value(ctxKey{}).(AuthContext)
	return v, ok
}
