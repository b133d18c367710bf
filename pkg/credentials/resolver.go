// pkg/credentials/resolver.go
package credentials

import (
	"context"
	"fmt"

	"tandem/pkg/crm"
	"tandem/pkg/directory"
	"tandem/pkg/memgraph"
	"tandem/pkg/problems"
)

// Metadata keys under which an organization stores a downstream override:
//
//	memory_service: {base_url: "...", api_key: "..."}
//	crm_service:    {base_url: "...", api_key: "..."}
const (
	MetaKeyMemory = "memory_service"
	MetaKeyCRM    = "crm_service"
)

// Override is a tenant-specific downstream credential parsed from org
// metadata.
type Override struct {
	BaseURL string
	APIKey  string
}

// MemoryResolver yields a graph-memory client bound to one organization's
// credentials. Resolution is fresh per call; nothing is memoized.
type MemoryResolver interface {
	Resolve(ctx context.Context, orgID string) (*memgraph.Client, error)
}

// CRMResolver yields a CRM client bound to one organization's credentials.
type CRMResolver interface {
	Resolve(ctx context.Context, orgID string) (*crm.Client, error)
}

// parseOverride reads one vendor override out of org metadata. Returns nil
// when the org has no entry for the key (the normal default path). An entry
// without an api_key is a configuration error: resolution must fail rather
// than fall through to an unauthenticated client.
func parseOverride(meta map[string]any, key string) (*Override, error) {
	raw, ok := meta[key]
	if !ok || raw == nil {
		return nil, nil
	}
	m, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("metadata %s: not an object", key)
	}
	ov := &Override{}
	ov.BaseURL, _ = m["base_url"].(string)
	ov.APIKey, _ = m["api_key"].(string)
	if ov.APIKey == "" {
		return nil, fmt.Errorf("metadata %s: missing api_key", key)
	}
	return ov, nil
}

// StaticMemory always returns the process-wide default client.
type StaticMemory struct {
	Client *memgraph.Client
}

func (s StaticMemory) Resolve(ctx context.Context, orgID string) (*memgraph.Client, error) {
	if s.Client == nil {
		return nil, problems.Internal("memory service not configured", nil)
	}
	return s.Client, nil
}

// DirectoryMemory resolves an org-specific override from directory metadata,
// falling back to the default client when the org has none.
type DirectoryMemory struct {
	Dir     directory.Service
	Default *memgraph.Client
}

func (r DirectoryMemory) Resolve(ctx context.Context, orgID string) (*memgraph.Client, error) {
	meta, err := r.Dir.OrgMetadata(ctx, orgID)
	if err != nil {
		return nil, problems.Internal("credential lookup failed", err)
	}
	ov, err := parseOverride(meta, MetaKeyMemory)
	if err != nil {
		return nil, problems.Internal(err.Error(), nil)
	}
	if ov == nil {
		return StaticMemory{Client: r.Default}.Resolve(ctx, orgID)
	}
	base := ov.BaseURL
	if base == "" && r.Default != nil {
		base = r.Default.BaseURL()
	}
	return memgraph.New(base, ov.APIKey), nil
}

// StaticCRM always returns the process-wide default client.
type StaticCRM struct {
	Client *crm.Client
}

func (s StaticCRM) Resolve(ctx context.Context, orgID string) (*crm.Client, error) {
	if s.Client == nil {
		return nil, problems.Internal("crm service not configured", nil)
	}
	return s.Client, nil
}

// DirectoryCRM resolves an org-specific CRM override from directory metadata.
type DirectoryCRM struct {
	Dir     directory.Service
	Default *crm.Client
}

func (r DirectoryCRM) Resolve(ctx context.Context, orgID string) (*crm.Client, error) {
	meta, err := r.Dir.OrgMetadata(ctx, orgID)
	if err != nil {
		return nil, problems.Internal("credential lookup failed", err)
	}
	ov, err := parseOverride(meta, MetaKeyCRM)
	if err != nil {
		return nil, problems.Internal(err.Error(), nil)
	}
	if ov == nil {
		return StaticCRM{Client: r.Default}.Resolve(ctx, orgID)
	}
	base := ov.BaseURL
	if base == "" && r.Default != nil {
		base = r.Default.BaseURL()
	}
	return crm.New(base, ov.APIKey), nil
}
