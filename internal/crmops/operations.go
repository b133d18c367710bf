// internal/crmops/operations.go
package crmops

import (
	"context"
	"errors"

	"tandem/pkg/authn"
	"tandem/pkg/credentials"
	"tandem/pkg/crm"
	"tandem/pkg/guard"
	"tandem/pkg/jsonquery"
	"tandem/pkg/operation"
	"tandem/pkg/problems"
)

const (
	ScopeRead  = "read:crm"
	ScopeWrite = "write:crm"
)

var adminRoles = []string{"owner", "admin"}

// objectTypes maps the vendor object type to the plural segment used in
// operation names and paths.
var objectTypes = []struct {
	singular string
	plural   string
}{
	{"contact", "contacts"},
	{"company", "companies"},
	{"deal", "deals"},
	{"task", "tasks"},
}

// Deps are the collaborators CRM operations need.
type Deps struct {
	CRM   credentials.CRMResolver
	Roles guard.RoleGuard
}

// Definitions returns the full CRM operation set: five CRUD operations per
// object type plus cross-object search and note creation.
func Definitions(d Deps) []operation.Definition {
	var defs []operation.Definition
	for _, ot := range objectTypes {
		defs = append(defs,
			createDef(d, ot.singular, ot.plural),
			getDef(d, ot.singular, ot.plural),
			listDef(d, ot.singular, ot.plural),
			updateDef(d, ot.singular, ot.plural),
			deleteDef(d, ot.singular, ot.plural),
		)
	}
	defs = append(defs, searchDef(d), noteCreateDef(d))
	return defs
}

type createInput struct {
	OrganizationID string     `json:"organization_id"`
	Fields         crm.Record `json:"fields"`
}

func (in createInput) Validate() error {
	if in.OrganizationID == "" {
		return errors.New("organization_id is required")
	}
	if len(in.Fields) == 0 {
		return errors.New("fields is required")
	}
	return nil
}

type recordInput struct {
	OrganizationID string `json:"organization_id"`
	RecordID       string `json:"record_id"`
}

func (in recordInput) Validate() error {
	if in.OrganizationID == "" {
		return errors.New("organization_id is required")
	}
	if in.RecordID == "" {
		return errors.New("record_id is required")
	}
	return nil
}

type listInput struct {
	OrganizationID string `json:"organization_id"`
	Limit          int    `json:"limit,omitempty"`
	Cursor         string `json:"cursor,omitempty"`
	Filter         string `json:"filter,omitempty"` // JMESPath over the record array
}

func (in listInput) Validate() error {
	if in.OrganizationID == "" {
		return errors.New("organization_id is required")
	}
	if in.Limit < 0 {
		return errors.New("limit must be non-negative")
	}
	return nil
}

type updateInput struct {
	OrganizationID string     `json:"organization_id"`
	RecordID       string     `json:"record_id"`
	Fields         crm.Record `json:"fields"`
}

func (in updateInput) Validate() error {
	if in.OrganizationID == "" {
		return errors.New("organization_id is required")
	}
	if in.RecordID == "" {
		return errors.New("record_id is required")
	}
	if len(in.Fields) == 0 {
		return errors.New("fields is required")
	}
	return nil
}

var orgProp = operation.StringProp("Target organization id.")

func createDef(d Deps, singular, plural string) operation.Definition {
	return operation.Define(operation.Spec{
		Name:    "crm." + plural + ".create",
		Summary: "Create a " + singular,
		Method:  "POST",
		Path:    "/v1/orgs/{organization_id}/crm/" + plural,
		Scopes:  []string{ScopeWrite},
		InputSchema: operation.ObjectSchema("", map[string]any{
			"organization_id": orgProp,
			"fields":          map[string]any{"type": "object", "description": "Vendor-defined " + singular + " fields."},
		}, "organization_id", "fields"),
	}, d.Roles, func(in createInput) string { return in.OrganizationID },
		func(ctx context.Context, ac authn.AuthContext, in createInput) (crm.Record, error) {
			cli, err := d.CRM.Resolve(ctx, in.OrganizationID)
			if err != nil {
				return nil, err
			}
			rec, err := cli.CreateRecord(ctx, singular, in.Fields)
			if err != nil {
				return nil, problems.Internal(singular+" create failed", err)
			}
			return rec, nil
		})
}

func getDef(d Deps, singular, plural string) operation.Definition {
	return operation.Define(operation.Spec{
		Name:    "crm." + plural + ".get",
		Summary: "Get a " + singular,
		Method:  "GET",
		Path:    "/v1/orgs/{organization_id}/crm/" + plural + "/{record_id}",
		Scopes:  []string{ScopeRead},
		InputSchema: operation.ObjectSchema("", map[string]any{
			"organization_id": orgProp,
			"record_id":       operation.StringProp("Record id."),
		}, "organization_id", "record_id"),
	}, d.Roles, func(in recordInput) string { return in.OrganizationID },
		func(ctx context.Context, ac authn.AuthContext, in recordInput) (crm.Record, error) {
			cli, err := d.CRM.Resolve(ctx, in.OrganizationID)
			if err != nil {
				return nil, err
			}
			rec, err := cli.GetRecord(ctx, singular, in.RecordID)
			if err != nil {
				return nil, problems.Internal(singular+" fetch failed", err)
			}
			return rec, nil
		})
}

type listOutput struct {
	Records any    `json:"records"`
	Cursor  string `json:"cursor,omitempty"`
}

func listDef(d Deps, singular, plural string) operation.Definition {
	return operation.Define(operation.Spec{
		Name:    "crm." + plural + ".list",
		Summary: "List " + plural,
		Method:  "GET",
		Path:    "/v1/orgs/{organization_id}/crm/" + plural,
		Scopes:  []string{ScopeRead},
		InputSchema: operation.ObjectSchema("", map[string]any{
			"organization_id": orgProp,
			"limit":           operation.IntProp("Max records, default 25."),
			"cursor":          operation.StringProp("Continuation cursor from a previous page."),
			"filter":          operation.StringProp("Optional JMESPath expression applied to the record array."),
		}, "organization_id"),
	}, d.Roles, func(in listInput) string { return in.OrganizationID },
		func(ctx context.Context, ac authn.AuthContext, in listInput) (listOutput, error) {
			cli, err := d.CRM.Resolve(ctx, in.OrganizationID)
			if err != nil {
				return listOutput{}, err
			}
			limit := in.Limit
			if limit == 0 {
				limit = 25
			}
			page, err := cli.ListRecords(ctx, singular, limit, in.Cursor)
			if err != nil {
				return listOutput{}, problems.Internal(singular+" list failed", err)
			}
			if in.Filter != "" {
				filtered, ferr := jsonquery.Apply(in.Filter, page.Records)
				if ferr != nil {
					return listOutput{}, problems.Validation(ferr.Error())
				}
				return listOutput{Records: filtered, Cursor: page.Cursor}, nil
			}
			return listOutput{Records: page.Records, Cursor: page.Cursor}, nil
		})
}

func updateDef(d Deps, singular, plural string) operation.Definition {
	return operation.Define(operation.Spec{
		Name:    "crm." + plural + ".update",
		Summary: "Update a " + singular,
		Method:  "PATCH",
		Path:    "/v1/orgs/{organization_id}/crm/" + plural + "/{record_id}",
		Scopes:  []string{ScopeWrite},
		InputSchema: operation.ObjectSchema("", map[string]any{
			"organization_id": orgProp,
			"record_id":       operation.StringProp("Record id."),
			"fields":          map[string]any{"type": "object", "description": "Fields to change."},
		}, "organization_id", "record_id", "fields"),
	}, d.Roles, func(in updateInput) string { return in.OrganizationID },
		func(ctx context.Context, ac authn.AuthContext, in updateInput) (crm.Record, error) {
			cli, err := d.CRM.Resolve(ctx, in.OrganizationID)
			if err != nil {
				return nil, err
			}
			rec, err := cli.UpdateRecord(ctx, singular, in.RecordID, in.Fields)
			if err != nil {
				return nil, problems.Internal(singular+" update failed", err)
			}
			return rec, nil
		})
}

type deleted struct {
	Deleted bool `json:"deleted"`
}

func deleteDef(d Deps, singular, plural string) operation.Definition {
	return operation.Define(operation.Spec{
		Name:    "crm." + plural + ".delete",
		Summary: "Delete a " + singular,
		Method:  "DELETE",
		Path:    "/v1/orgs/{organization_id}/crm/" + plural + "/{record_id}",
		Scopes:  []string{ScopeWrite},
		Roles:   adminRoles,
		InputSchema: operation.ObjectSchema("", map[string]any{
			"organization_id": orgProp,
			"record_id":       operation.StringProp("Record id."),
		}, "organization_id", "record_id"),
	}, d.Roles, func(in recordInput) string { return in.OrganizationID },
		func(ctx context.Context, ac authn.AuthContext, in recordInput) (deleted, error) {
			cli, err := d.CRM.Resolve(ctx, in.OrganizationID)
			if err != nil {
				return deleted{}, err
			}
			if err := cli.DeleteRecord(ctx, singular, in.RecordID); err != nil {
				return deleted{}, problems.Internal(singular+" delete failed", err)
			}
			return deleted{Deleted: true}, nil
		})
}

type searchInput struct {
	OrganizationID string `json:"organization_id"`
	ObjectType     string `json:"object_type"`
	Query          string `json:"query"`
	Limit          int    `json:"limit,omitempty"`
}

func (in searchInput) Validate() error {
	if in.OrganizationID == "" {
		return errors.New("organization_id is required")
	}
	if in.Query == "" {
		return errors.New("query is required")
	}
	if in.ObjectType != "" && !knownObjectType(in.ObjectType) {
		return errors.New("unknown object_type")
	}
	if in.Limit < 0 {
		return errors.New("limit must be non-negative")
	}
	return nil
}

func knownObjectType(t string) bool {
	for _, ot := range objectTypes {
		if ot.singular == t {
			return true
		}
	}
	return false
}

func searchDef(d Deps) operation.Definition {
	return operation.Define(operation.Spec{
		Name:    "crm.search",
		Summary: "Search CRM records",
		Method:  "POST",
		Path:    "/v1/orgs/{organization_id}/crm/search",
		Scopes:  []string{ScopeRead},
		InputSchema: operation.ObjectSchema("", map[string]any{
			"organization_id": orgProp,
			"object_type":     operation.StringProp("Restrict to one object type; empty searches all."),
			"query":           operation.StringProp("Search query."),
			"limit":           operation.IntProp("Max records, default 25."),
		}, "organization_id", "query"),
	}, d.Roles, func(in searchInput) string { return in.OrganizationID },
		func(ctx context.Context, ac authn.AuthContext, in searchInput) (listOutput, error) {
			cli, err := d.CRM.Resolve(ctx, in.OrganizationID)
			if err != nil {
				return listOutput{}, err
			}
			limit := in.Limit
			if limit == 0 {
				limit = 25
			}
			page, err := cli.Search(ctx, in.ObjectType, in.Query, limit)
			if err != nil {
				return listOutput{}, problems.Internal("crm search failed", err)
			}
			return listOutput{Records: page.Records, Cursor: page.Cursor}, nil
		})
}

type noteInput struct {
	OrganizationID string `json:"organization_id"`
	ParentType     string `json:"parent_type"`
	ParentID       string `json:"parent_id"`
	Title          string `json:"title,omitempty"`
	Content        string `json:"content"`
}

func (in noteInput) Validate() error {
	if in.OrganizationID == "" {
		return errors.New("organization_id is required")
	}
	if !knownObjectType(in.ParentType) {
		return errors.New("unknown parent_type")
	}
	if in.ParentID == "" {
		return errors.New("parent_id is required")
	}
	if in.Content == "" {
		return errors.New("content is required")
	}
	return nil
}

func noteCreateDef(d Deps) operation.Definition {
	return operation.Define(operation.Spec{
		Name:    "crm.notes.create",
		Summary: "Attach a note to a CRM record",
		Method:  "POST",
		Path:    "/v1/orgs/{organization_id}/crm/notes",
		Scopes:  []string{ScopeWrite},
		InputSchema: operation.ObjectSchema("", map[string]any{
			"organization_id": orgProp,
			"parent_type":     operation.StringProp("Object type of the parent record."),
			"parent_id":       operation.StringProp("Parent record id."),
			"title":           operation.StringProp("Optional note title."),
			"content":         operation.StringProp("Note body."),
		}, "organization_id", "parent_type", "parent_id", "content"),
	}, d.Roles, func(in noteInput) string { return in.OrganizationID },
		func(ctx context.Context, ac authn.AuthContext, in noteInput) (crm.Record, error) {
			cli, err := d.CRM.Resolve(ctx, in.OrganizationID)
			if err != nil {
				return nil, err
			}
			rec, err := cli.CreateNote(ctx, in.ParentType, in.ParentID, in.Title, in.Content)
			if err != nil {
				return nil, problems.Internal("note create failed", err)
			}
			return rec, nil
		})
}
