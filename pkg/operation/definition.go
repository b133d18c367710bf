// pkg/operation/definition.go
package operation

import (
	"context"
	"encoding/json"
	"strings"

	"tandem/pkg/authn"
	"tandem/pkg/guard"
	"tandem/pkg/problems"
)

// Input is implemented by every operation input struct. Validate runs after
// decoding and before any guard, so schema failures never trigger a
// directory lookup.
type Input interface {
	Validate() error
}

// Spec declares one operation: transport metadata, authorization
// requirements, and the JSON schema surfaced on the tool listing and the
// OpenAPI document.
type Spec struct {
	Name        string // dotted id, e.g. "crm.contacts.create"
	Summary     string
	Method      string // HTTP method on the RPC surface
	Path        string // route under the RPC surface, e.g. /v1/orgs/{organization_id}
	Scopes      []string
	Roles       []string // empty = any member of the target org
	InputSchema map[string]any
}

// Definition is a registered operation with its type-erased invoke path.
// Both transport surfaces call Invoke, so guards and handler run identically
// (and exactly once) regardless of how the call arrived.
type Definition struct {
	Spec
	orgScoped bool
	orgIDOf   func(raw json.RawMessage) string
	invoke    func(ctx context.Context, ac authn.AuthContext, raw json.RawMessage) (any, error)
}

// Define builds a Definition from a typed handler. The guard pipeline is
// composed here, once, at registration time: scope check, then role check
// against the org id extracted from the input, then h.
//
// orgID may be nil for caller-scoped operations (no tenant target); those
// get the scope check only.
func Define[In Input, Out any](spec Spec, rg guard.RoleGuard, orgID guard.OrgIDFunc[In], h guard.Handler[In, Out]) Definition {
	wrapped := guard.Wrap(guard.Requirements{Scopes: spec.Scopes, Roles: spec.Roles}, orgID, rg, h)
	d := Definition{Spec: spec, orgScoped: orgID != nil}
	d.invoke = func(ctx context.Context, ac authn.AuthContext, raw json.RawMessage) (any, error) {
		in, err := decode[In](raw)
		if err != nil {
			return nil, err
		}
		return wrapped(ctx, ac, in)
	}
	if orgID != nil {
		d.orgIDOf = func(raw json.RawMessage) string {
			in, err := decode[In](raw)
			if err != nil {
				return ""
			}
			return orgID(in)
		}
	}
	return d
}

// Invoke decodes and validates raw input, then runs the wrapped handler.
func (d Definition) Invoke(ctx context.Context, ac authn.AuthContext, raw json.RawMessage) (any, error) {
	return d.invoke(ctx, ac, raw)
}

// OrgID extracts the target org id from raw input for audit purposes.
// Empty for caller-scoped operations.
func (d Definition) OrgID(raw json.RawMessage) string {
	if d.orgIDOf == nil {
		return ""
	}
	return d.orgIDOf(raw)
}

func decode[In Input](raw json.RawMessage) (In, error) {
	var in In
	if len(raw) == 0 {
		raw = []byte("{}")
	}
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		return in, problems.Validation(err.Error())
	}
	if err := in.Validate(); err != nil {
		return in, problems.Validation(err.Error())
	}
	return in, nil
}
