// internal/memory/operations.go
package memory

import (
	"context"
	"errors"

	"tandem/pkg/authn"
	"tandem/pkg/credentials"
	"tandem/pkg/guard"
	"tandem/pkg/jsonquery"
	"tandem/pkg/memgraph"
	"tandem/pkg/operation"
	"tandem/pkg/problems"
)

const (
	ScopeRead  = "read:memory"
	ScopeWrite = "write:memory"
)

var adminRoles = []string{"owner", "admin"}

// Deps are the collaborators graph-memory operations need. Each invocation
// resolves a client for the target org; the org id doubles as the graph
// group id, so one org can never read another's graph.
type Deps struct {
	Memory credentials.MemoryResolver
	Roles  guard.RoleGuard
}

// Definitions returns the graph-memory operations.
func Definitions(d Deps) []operation.Definition {
	return []operation.Definition{
		addDef(d),
		searchDef(d),
		episodesListDef(d),
		episodesGetDef(d),
		episodesDeleteDef(d),
		edgesDeleteDef(d),
	}
}

type addInput struct {
	OrganizationID string         `json:"organization_id"`
	Name           string         `json:"name,omitempty"`
	Body           string         `json:"body"`
	Source         string         `json:"source,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

func (in addInput) Validate() error {
	if in.OrganizationID == "" {
		return errors.New("organization_id is required")
	}
	if in.Body == "" {
		return errors.New("body is required")
	}
	return nil
}

func addDef(d Deps) operation.Definition {
	return operation.Define(operation.Spec{
		Name:    "memory.add",
		Summary: "Ingest an episode into the organization's memory graph",
		Method:  "POST",
		Path:    "/v1/orgs/{organization_id}/memory",
		Scopes:  []string{ScopeWrite},
		InputSchema: operation.ObjectSchema("", map[string]any{
			"organization_id": operation.StringProp("Target organization id."),
			"name":            operation.StringProp("Optional episode name."),
			"body":            operation.StringProp("Episode content."),
			"source":          operation.StringProp("Source label, e.g. chat or email."),
			"metadata":        map[string]any{"type": "object"},
		}, "organization_id", "body"),
	}, d.Roles, func(in addInput) string { return in.OrganizationID },
		func(ctx context.Context, ac authn.AuthContext, in addInput) (memgraph.Episode, error) {
			cli, err := d.Memory.Resolve(ctx, in.OrganizationID)
			if err != nil {
				return memgraph.Episode{}, err
			}
			ep, err := cli.AddEpisode(ctx, memgraph.Episode{
				GroupID:  in.OrganizationID,
				Name:     in.Name,
				Body:     in.Body,
				Source:   in.Source,
				Metadata: in.Metadata,
			})
			if err != nil {
				return memgraph.Episode{}, problems.Internal("memory add failed", err)
			}
			return ep, nil
		})
}

type searchInput struct {
	OrganizationID string `json:"organization_id"`
	Query          string `json:"query"`
	Limit          int    `json:"limit,omitempty"`
	Filter         string `json:"filter,omitempty"` // JMESPath over the result array
}

func (in searchInput) Validate() error {
	if in.OrganizationID == "" {
		return errors.New("organization_id is required")
	}
	if in.Query == "" {
		return errors.New("query is required")
	}
	if in.Limit < 0 {
		return errors.New("limit must be non-negative")
	}
	return nil
}

type searchOutput struct {
	Results any `json:"results"`
}

func searchDef(d Deps) operation.Definition {
	return operation.Define(operation.Spec{
		Name:    "memory.search",
		Summary: "Search the organization's memory graph",
		Method:  "POST",
		Path:    "/v1/orgs/{organization_id}/memory/search",
		Scopes:  []string{ScopeRead},
		InputSchema: operation.ObjectSchema("", map[string]any{
			"organization_id": operation.StringProp("Target organization id."),
			"query":           operation.StringProp("Natural-language query."),
			"limit":           operation.IntProp("Max results, default 10."),
			"filter":          operation.StringProp("Optional JMESPath expression applied to the result array."),
		}, "organization_id", "query"),
	}, d.Roles, func(in searchInput) string { return in.OrganizationID },
		func(ctx context.Context, ac authn.AuthContext, in searchInput) (searchOutput, error) {
			cli, err := d.Memory.Resolve(ctx, in.OrganizationID)
			if err != nil {
				return searchOutput{}, err
			}
			limit := in.Limit
			if limit == 0 {
				limit = 10
			}
			results, err := cli.Search(ctx, in.OrganizationID, in.Query, limit)
			if err != nil {
				return searchOutput{}, problems.Internal("memory search failed", err)
			}
			if in.Filter != "" {
				filtered, ferr := jsonquery.Apply(in.Filter, results)
				if ferr != nil {
					return searchOutput{}, problems.Validation(ferr.Error())
				}
				return searchOutput{Results: filtered}, nil
			}
			return searchOutput{Results: results}, nil
		})
}

type listInput struct {
	OrganizationID string `json:"organization_id"`
	Limit          int    `json:"limit,omitempty"`
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

func episodesListDef(d Deps) operation.Definition {
	return operation.Define(operation.Spec{
		Name:    "memory.episodes.list",
		Summary: "List recent episodes",
		Method:  "GET",
		Path:    "/v1/orgs/{organization_id}/memory/episodes",
		Scopes:  []string{ScopeRead},
		InputSchema: operation.ObjectSchema("", map[string]any{
			"organization_id": operation.StringProp("Target organization id."),
			"limit":           operation.IntProp("Max episodes, default 20."),
		}, "organization_id"),
	}, d.Roles, func(in listInput) string { return in.OrganizationID },
		func(ctx context.Context, ac authn.AuthContext, in listInput) ([]memgraph.Episode, error) {
			cli, err := d.Memory.Resolve(ctx, in.OrganizationID)
			if err != nil {
				return nil, err
			}
			limit := in.Limit
			if limit == 0 {
				limit = 20
			}
			eps, err := cli.ListEpisodes(ctx, in.OrganizationID, limit)
			if err != nil {
				return nil, problems.Internal("episode list failed", err)
			}
			return eps, nil
		})
}

type episodeInput struct {
	OrganizationID string `json:"organization_id"`
	EpisodeID      string `json:"episode_id"`
}

func (in episodeInput) Validate() error {
	if in.OrganizationID == "" {
		return errors.New("organization_id is required")
	}
	if in.EpisodeID == "" {
		return errors.New("episode_id is required")
	}
	return nil
}

var episodeSchema = operation.ObjectSchema("", map[string]any{
	"organization_id": operation.StringProp("Target organization id."),
	"episode_id":      operation.StringProp("Episode id."),
}, "organization_id", "episode_id")

func episodesGetDef(d Deps) operation.Definition {
	return operation.Define(operation.Spec{
		Name:        "memory.episodes.get",
		Summary:     "Fetch one episode",
		Method:      "GET",
		Path:        "/v1/orgs/{organization_id}/memory/episodes/{episode_id}",
		Scopes:      []string{ScopeRead},
		InputSchema: episodeSchema,
	}, d.Roles, func(in episodeInput) string { return in.OrganizationID },
		func(ctx context.Context, ac authn.AuthContext, in episodeInput) (memgraph.Episode, error) {
			cli, err := d.Memory.Resolve(ctx, in.OrganizationID)
			if err != nil {
				return memgraph.Episode{}, err
			}
			ep, err := cli.GetEpisode(ctx, in.EpisodeID)
			if err != nil {
				return memgraph.Episode{}, problems.Internal("episode fetch failed", err)
			}
			return ep, nil
		})
}

type deleted struct {
	Deleted bool `json:"deleted"`
}

func episodesDeleteDef(d Deps) operation.Definition {
	return operation.Define(operation.Spec{
		Name:        "memory.episodes.delete",
		Summary:     "Delete an episode",
		Method:      "DELETE",
		Path:        "/v1/orgs/{organization_id}/memory/episodes/{episode_id}",
		Scopes:      []string{ScopeWrite},
		Roles:       adminRoles,
		InputSchema: episodeSchema,
	}, d.Roles, func(in episodeInput) string { return in.OrganizationID },
		func(ctx context.Context, ac authn.AuthContext, in episodeInput) (deleted, error) {
			cli, err := d.Memory.Resolve(ctx, in.OrganizationID)
			if err != nil {
				return deleted{}, err
			}
			if err := cli.DeleteEpisode(ctx, in.EpisodeID); err != nil {
				return deleted{}, problems.Internal("episode delete failed", err)
			}
			return deleted{Deleted: true}, nil
		})
}

type edgeInput struct {
	OrganizationID string `json:"organization_id"`
	EdgeUUID       string `json:"edge_uuid"`
}

func (in edgeInput) Validate() error {
	if in.OrganizationID == "" {
		return errors.New("organization_id is required")
	}
	if in.EdgeUUID == "" {
		return errors.New("edge_uuid is required")
	}
	return nil
}

func edgesDeleteDef(d Deps) operation.Definition {
	return operation.Define(operation.Spec{
		Name:    "memory.edges.delete",
		Summary: "Delete an entity edge from the graph",
		Method:  "DELETE",
		Path:    "/v1/orgs/{organization_id}/memory/edges/{edge_uuid}",
		Scopes:  []string{ScopeWrite},
		Roles:   adminRoles,
		InputSchema: operation.ObjectSchema("", map[string]any{
			"organization_id": operation.StringProp("Target organization id."),
			"edge_uuid":       operation.StringProp("Entity edge uuid."),
		}, "organization_id", "edge_uuid"),
	}, d.Roles, func(in edgeInput) string { return in.OrganizationID },
		func(ctx context.Context, ac authn.AuthContext, in edgeInput) (deleted, error) {
			cli, err := d.Memory.Resolve(ctx, in.OrganizationID)
			if err != nil {
				return deleted{}, err
			}
			if err := cli.DeleteEntityEdge(ctx, in.EdgeUUID); err != nil {
				return deleted{}, problems.Internal("edge delete failed", err)
			}
			return deleted{Deleted: true}, nil
		})
}
