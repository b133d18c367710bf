// pkg/directory/service.go
package directory

import (
	"context"
	"errors"
)

// ErrNotFound signals that the directory holds no record for the lookup:
// unknown organization, unknown user, or no membership linking the two.
var ErrNotFound = errors.New("directory: not found")

// Service is the identity-provider API the gateway depends on. Role lookups
// go through it on every request; nothing here is cached by callers.
type Service interface {
	// Organization fetches one organization by id.
	Organization(ctx context.Context, orgID string) (Organization, error)
	// OrgMembership returns the user's membership in the organization, or
	// ErrNotFound when the user has no membership record there.
	OrgMembership(ctx context.Context, orgID, userID string) (Membership, error)
	// ListMemberships returns every membership the user holds.
	ListMemberships(ctx context.Context, userID string) ([]Membership, error)
	// ListOrgMembers returns every membership of the organization.
	ListOrgMembers(ctx context.Context, orgID string) ([]Membership, error)

	// Org- and user-scoped metadata, used for downstream credential
	// overrides and default-organization bookkeeping.
	OrgMetadata(ctx context.Context, orgID string) (map[string]any, error)
	SetOrgMetadata(ctx context.Context, orgID string, patch map[string]any) error
	UserMetadata(ctx context.Context, userID string) (map[string]any, error)
	SetUserMetadata(ctx context.Context, userID string, patch map[string]any) error
}
