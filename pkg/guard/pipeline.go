// pkg/guard/pipeline.go
package guard

import (
	"context"

	"tandem/pkg/authn"
	"tandem/pkg/problems"
)

// Handler is a fully-bound business handler: dependencies are captured at
// construction, input and identity arrive per request.
type Handler[In, Out any] func(ctx context.Context, ac authn.AuthContext, in In) (Out, error)

// OrgIDFunc extracts the target organization id from an operation's input.
type OrgIDFunc[In any] func(in In) string

// Requirements declares what the pipeline enforces before a handler runs.
type Requirements struct {
	Scopes []string // all must be granted on the token
	Roles  []string // at least one must be held in the target org; empty = any member
}

// Wrap prefixes h with the authorization pipeline. Order is fixed: the scope
// check is free and context-independent, the role check costs a directory
// round trip, so a caller failing the cheaper check never pays for (or
// observes) the more expensive one. The handler's input and output shapes
// pass through unchanged.
//
// orgID may be nil for operations that target the caller rather than an
// organization; such operations get the scope check only.
func Wrap[In, Out any](req Requirements, orgID OrgIDFunc[In], roles RoleGuard, h Handler[In, Out]) Handler[In, Out] {
	return func(ctx context.Context, ac authn.AuthContext, in In) (Out, error) {
		var zero Out
		if err := CheckScopes(ac.Scopes, req.Scopes); err != nil {
			return zero, err
		}
		if orgID != nil {
			id := orgID(in)
			if id == "" {
				return zero, problems.Validation("organization_id is required")
			}
			if _, err := roles.Check(ctx, id, ac.Subject, req.Roles); err != nil {
				return zero, err
			}
		}
		return h(ctx, ac, in)
	}
}
