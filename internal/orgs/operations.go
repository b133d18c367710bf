// internal/orgs/operations.go
package orgs

import (
	"context"
	"errors"

	"tandem/pkg/authn"
	"tandem/pkg/credentials"
	"tandem/pkg/directory"
	"tandem/pkg/guard"
	"tandem/pkg/operation"
	"tandem/pkg/problems"
)

// Scope and role names used across the org operations.
const (
	ScopeRead  = "read:org"
	ScopeWrite = "write:org"
)

var anyRole = []string(nil)             // any member
var adminRoles = []string{"owner", "admin"}

const defaultOrgMetaKey = "default_organization_id"

// Deps are the collaborators org operations need.
type Deps struct {
	Dir   directory.Service
	Roles guard.RoleGuard
}

// Definitions returns the org-management operations.
func Definitions(d Deps) []operation.Definition {
	return []operation.Definition{
		listDef(d),
		getDef(d),
		membersDef(d),
		defaultGetDef(d),
		defaultSetDef(d),
		credentialsSetDef(d),
	}
}

type emptyInput struct{}

func (emptyInput) Validate() error { return nil }

type orgInput struct {
	OrganizationID string `json:"organization_id"`
}

func (in orgInput) Validate() error {
	if in.OrganizationID == "" {
		return errors.New("organization_id is required")
	}
	return nil
}

// OrgRef is an organization paired with the caller's role in it.
type OrgRef struct {
	Organization directory.Organization `json:"organization"`
	Role         string                 `json:"role"`
}

func listDef(d Deps) operation.Definition {
	return operation.Define(operation.Spec{
		Name:        "orgs.list",
		Summary:     "List the organizations the caller belongs to",
		Method:      "GET",
		Path:        "/v1/orgs",
		Scopes:      []string{ScopeRead},
		InputSchema: operation.ObjectSchema("No input.", map[string]any{}),
	}, d.Roles, nil, func(ctx context.Context, ac authn.AuthContext, _ emptyInput) ([]OrgRef, error) {
		if ac.Subject == "" {
			return nil, problems.Forbidden("token has no subject")
		}
		memberships, err := d.Dir.ListMemberships(ctx, ac.Subject)
		if err != nil {
			return nil, problems.Internal("membership lookup failed", err)
		}
		out := []OrgRef{}
		for _, mm := range memberships {
			org, err := d.Dir.Organization(ctx, mm.OrganizationID)
			if err != nil {
				return nil, problems.Internal("organization lookup failed", err)
			}
			out = append(out, OrgRef{Organization: org, Role: mm.Role})
		}
		return out, nil
	})
}

func getDef(d Deps) operation.Definition {
	return operation.Define(operation.Spec{
		Name:    "orgs.get",
		Summary: "Get one organization",
		Method:  "GET",
		Path:    "/v1/orgs/{organization_id}",
		Scopes:  []string{ScopeRead},
		Roles:   anyRole,
		InputSchema: operation.ObjectSchema("", map[string]any{
			"organization_id": operation.StringProp("Target organization id."),
		}, "organization_id"),
	}, d.Roles, func(in orgInput) string { return in.OrganizationID },
		func(ctx context.Context, ac authn.AuthContext, in orgInput) (directory.Organization, error) {
			org, err := d.Dir.Organization(ctx, in.OrganizationID)
			if err != nil {
				if errors.Is(err, directory.ErrNotFound) {
					return directory.Organization{}, problems.NotFound("organization not found")
				}
				return directory.Organization{}, problems.Internal("organization lookup failed", err)
			}
			// Credential material never leaves through the read surface.
			org.Metadata = redactMetadata(org.Metadata)
			return org, nil
		})
}

func redactMetadata(meta map[string]any) map[string]any {
	if meta == nil {
		return nil
	}
	out := map[string]any{}
	for k, v := range meta {
		if k == credentials.MetaKeyMemory || k == credentials.MetaKeyCRM {
			continue
		}
		out[k] = v
	}
	return out
}

func membersDef(d Deps) operation.Definition {
	return operation.Define(operation.Spec{
		Name:    "orgs.members.list",
		Summary: "List members of an organization",
		Method:  "GET",
		Path:    "/v1/orgs/{organization_id}/members",
		Scopes:  []string{ScopeRead},
		Roles:   adminRoles,
		InputSchema: operation.ObjectSchema("", map[string]any{
			"organization_id": operation.StringProp("Target organization id."),
		}, "organization_id"),
	}, d.Roles, func(in orgInput) string { return in.OrganizationID },
		func(ctx context.Context, ac authn.AuthContext, in orgInput) ([]directory.Membership, error) {
			members, err := d.Dir.ListOrgMembers(ctx, in.OrganizationID)
			if err != nil {
				return nil, problems.Internal("member lookup failed", err)
			}
			return members, nil
		})
}

// DefaultOrg is the caller's stored default organization, if any.
type DefaultOrg struct {
	OrganizationID string `json:"organization_id,omitempty"`
}

func defaultGetDef(d Deps) operation.Definition {
	return operation.Define(operation.Spec{
		Name:        "orgs.default.get",
		Summary:     "Get the caller's default organization",
		Method:      "GET",
		Path:        "/v1/me/default-org",
		Scopes:      []string{ScopeRead},
		InputSchema: operation.ObjectSchema("No input.", map[string]any{}),
	}, d.Roles, nil, func(ctx context.Context, ac authn.AuthContext, _ emptyInput) (DefaultOrg, error) {
		if ac.Subject == "" {
			return DefaultOrg{}, problems.Forbidden("token has no subject")
		}
		meta, err := d.Dir.UserMetadata(ctx, ac.Subject)
		if err != nil {
			return DefaultOrg{}, problems.Internal("user metadata lookup failed", err)
		}
		id, _ := meta[defaultOrgMetaKey].(string)
		return DefaultOrg{OrganizationID: id}, nil
	})
}

func defaultSetDef(d Deps) operation.Definition {
	// Org-scoped on purpose: setting a default org requires membership in
	// it, so a caller cannot probe org ids through this write either.
	return operation.Define(operation.Spec{
		Name:    "orgs.default.set",
		Summary: "Set the caller's default organization",
		Method:  "POST",
		Path:    "/v1/me/default-org",
		Scopes:  []string{ScopeWrite},
		Roles:   anyRole,
		InputSchema: operation.ObjectSchema("", map[string]any{
			"organization_id": operation.StringProp("Organization to make the default."),
		}, "organization_id"),
	}, d.Roles, func(in orgInput) string { return in.OrganizationID },
		func(ctx context.Context, ac authn.AuthContext, in orgInput) (DefaultOrg, error) {
			patch := map[string]any{defaultOrgMetaKey: in.OrganizationID}
			if err := d.Dir.SetUserMetadata(ctx, ac.Subject, patch); err != nil {
				return DefaultOrg{}, problems.Internal("user metadata update failed", err)
			}
			return DefaultOrg{OrganizationID: in.OrganizationID}, nil
		})
}

type credentialInput struct {
	OrganizationID string `json:"organization_id"`
	Vendor         string `json:"vendor"` // "memory" | "crm"
	BaseURL        string `json:"base_url"`
	APIKey         string `json:"api_key"`
}

func (in credentialInput) Validate() error {
	if in.OrganizationID == "" {
		return errors.New("organization_id is required")
	}
	if in.Vendor != "memory" && in.Vendor != "crm" {
		return errors.New(`vendor must be "memory" or "crm"`)
	}
	if in.APIKey == "" {
		return errors.New("api_key is required")
	}
	return nil
}

type credentialResult struct {
	Vendor  string `json:"vendor"`
	Updated bool   `json:"updated"`
}

func credentialsSetDef(d Deps) operation.Definition {
	return operation.Define(operation.Spec{
		Name:    "orgs.credentials.set",
		Summary: "Store an organization-specific downstream credential override",
		Method:  "PUT",
		Path:    "/v1/orgs/{organization_id}/credentials",
		Scopes:  []string{ScopeWrite},
		Roles:   adminRoles,
		InputSchema: operation.ObjectSchema("", map[string]any{
			"organization_id": operation.StringProp("Target organization id."),
			"vendor":          map[string]any{"type": "string", "enum": []string{"memory", "crm"}},
			"base_url":        operation.StringProp("Override base URL; empty keeps the default."),
			"api_key":         operation.StringProp("Vendor API key."),
		}, "organization_id", "vendor", "api_key"),
	}, d.Roles, func(in credentialInput) string { return in.OrganizationID },
		func(ctx context.Context, ac authn.AuthContext, in credentialInput) (credentialResult, error) {
			key := credentials.MetaKeyMemory
			if in.Vendor == "crm" {
				key = credentials.MetaKeyCRM
			}
			patch := map[string]any{
				key: map[string]any{"base_url": in.BaseURL, "api_key": in.APIKey},
			}
			if err := d.Dir.SetOrgMetadata(ctx, in.OrganizationID, patch); err != nil {
				return credentialResult{}, problems.Internal("metadata update failed", err)
			}
			return credentialResult{Vendor: in.Vendor, Updated: true}, nil
		})
}
