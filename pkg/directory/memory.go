// pkg/directory/memory.go
package directory

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// memService is an in-memory Service for dev and tests, optionally seeded
// from a YAML file.
type memService struct {
	log *zap.SugaredLogger

	mu       sync.RWMutex
	orgs     map[string]Organization
	members  map[string]Membership // key: orgID + ":" + userID
	userMeta map[string]map[string]any
}

type seedFile struct {
	Organizations []struct {
		ID       string         `yaml:"id"`
		Name     string         `yaml:"name"`
		Slug     string         `yaml:"slug"`
		Metadata map[string]any `yaml:"metadata"`
	} `yaml:"organizations"`
	Memberships []struct {
		OrganizationID string `yaml:"organization_id"`
		UserID         string `yaml:"user_id"`
		Role           string `yaml:"role"`
	} `yaml:"memberships"`
	Users []struct {
		ID       string         `yaml:"id"`
		Metadata map[string]any `yaml:"metadata"`
	} `yaml:"users"`
}

// NewMemory returns an empty in-memory directory.
func NewMemory(log *zap.SugaredLogger) *Memory {
	return &Memory{memService{
		log:      log,
		orgs:     map[string]Organization{},
		members:  map[string]Membership{},
		userMeta: map[string]map[string]any{},
	}}
}

// Memory exposes the in-memory Service plus seeding helpers used by dev
// bring-up and tests.
type Memory struct {
	memService
}

// NewMemoryFromSeed loads a YAML seed file into a fresh in-memory directory.
func NewMemoryFromSeed(path string, log *zap.SugaredLogger) (*Memory, error) {
	m := NewMemory(log)
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("directory seed: %w", err)
	}
	var seed seedFile
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("directory seed: %w", err)
	}
	for _, o := range seed.Organizations {
		m.PutOrganization(Organization{ID: o.ID, Name: o.Name, Slug: o.Slug, Metadata: o.Metadata})
	}
	for _, mm := range seed.Memberships {
		m.PutMembership(Membership{OrganizationID: mm.OrganizationID, UserID: mm.UserID, Role: mm.Role})
	}
	for _, u := range seed.Users {
		m.userMeta[u.ID] = u.Metadata
	}
	log.Infow("directory seeded", "orgs", len(seed.Organizations), "memberships", len(seed.Memberships))
	return m, nil
}

func (m *Memory) PutOrganization(org Organization) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orgs[org.ID] = org
}

func (m *Memory) PutMembership(mm Membership) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.members[mm.OrganizationID+":"+mm.UserID] = mm
}

func (m *memService) Organization(ctx context.Context, orgID string) (Organization, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	org, ok := m.orgs[orgID]
	if !ok {
		return Organization{}, ErrNotFound
	}
	return org, nil
}

func (m *memService) OrgMembership(ctx context.Context, orgID, userID string) (Membership, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	mm, ok := m.members[orgID+":"+userID]
	if !ok {
		return Membership{}, ErrNotFound
	}
	return mm, nil
}

func (m *memService) ListMemberships(ctx context.Context, userID string) ([]Membership, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Membership
	for _, mm := range m.members {
		if mm.UserID == userID {
			out = append(out, mm)
		}
	}
	return out, nil
}

func (m *memService) ListOrgMembers(ctx context.Context, orgID string) ([]Membership, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Membership
	for _, mm := range m.members {
		if mm.OrganizationID == orgID {
			out = append(out, mm)
		}
	}
	return out, nil
}

func (m *memService) OrgMetadata(ctx context.Context, orgID string) (map[string]any, error) {
	org, err := m.Organization(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return org.Metadata, nil
}

func (m *memService) SetOrgMetadata(ctx context.Context, orgID string, patch map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	org, ok := m.orgs[orgID]
	if !ok {
		return ErrNotFound
	}
	// Readers hold the returned metadata map past the lock; patch a copy.
	meta := make(map[string]any, len(org.Metadata)+len(patch))
	for k, v := range org.Metadata {
		meta[k] = v
	}
	for k, v := range patch {
		meta[k] = v
	}
	org.Metadata = meta
	m.orgs[orgID] = org
	return nil
}

func (m *memService) UserMetadata(ctx context.Context, userID string) (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	meta, ok := m.userMeta[userID]
	if !ok {
		return map[string]any{}, nil
	}
	return meta, nil
}

func (m *memService) SetUserMetadata(ctx context.Context, userID string, patch map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	meta := make(map[string]any, len(m.userMeta[userID])+len(patch))
	for k, v := range m.userMeta[userID] {
		meta[k] = v
	}
	for k, v := range patch {
		meta[k] = v
	}
	m.userMeta[userID] = meta
	return nil
}
