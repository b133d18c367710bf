// pkg/guard/roles.go
package guard

import (
	"context"
	"errors"

	"tandem/pkg/directory"
	"tandem/pkg/problems"
)

// RoleGuard checks a caller's role inside one organization. Lookups go to
// the directory on every call; roles are never cached.
type RoleGuard struct {
	Dir directory.Service
}

// Check returns the caller's roles in the organization when at least one is
// in validRoles.
//
// A caller with no membership record gets not_found, never forbidden: from
// the outside, an org the caller cannot access is indistinguishable from an
// org that does not exist, so org ids cannot be enumerated by probing.
func (g RoleGuard) Check(ctx context.Context, orgID, userID string, validRoles []string) ([]string, error) {
	if userID == "" {
		return nil, problems.Forbidden("token has no subject")
	}
	mm, err := g.Dir.OrgMembership(ctx, orgID, userID)
	if err != nil {
		if errors.Is(err, directory.ErrNotFound) {
			return nil, problems.NotFound("organization not found")
		}
		return nil, problems.Internal("membership lookup failed", err)
	}
	if len(validRoles) == 0 {
		return []string{mm.Role}, nil
	}
	for _, r := range validRoles {
		if mm.Role == r {
			return []string{mm.Role}, nil
		}
	}
	return nil, problems.Forbidden("role " + mm.Role + " not permitted")
}
