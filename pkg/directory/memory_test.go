package directory

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"tandem/pkg/logger"
)

const seedYAML = `
organizations:
  - id: org_t1
    name: Acme
    slug: acme
    metadata:
      crm_service:
        base_url: https://crm.t1.example
        api_key: k1
memberships:
  - organization_id: org_t1
    user_id: user_1
    role: owner
users:
  - id: user_1
    metadata:
      default_organization_id: org_t1
`

func TestMemoryFromSeed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seed.yaml")
	if err := os.WriteFile(path, []byte(seedYAML), 0o600); err != nil {
		t.Fatal(err)
	}
	dir, err := NewMemoryFromSeed(path, logger.Nop())
	if err != nil {
		t.Fatalf("NewMemoryFromSeed() error = %v", err)
	}
	ctx := context.Background()

	org, err := dir.Organization(ctx, "org_t1")
	if err != nil {
		t.Fatalf("Organization() error = %v", err)
	}
	if org.Name != "Acme" || org.Slug != "acme" {
		t.Errorf("org = %+v", org)
	}
	crmMeta, _ := org.Metadata["crm_service"].(map[string]any)
	if crmMeta["api_key"] != "k1" {
		t.Errorf("metadata = %v", org.Metadata)
	}

	mm, err := dir.OrgMembership(ctx, "org_t1", "user_1")
	if err != nil || mm.Role != "owner" {
		t.Errorf("membership = %+v, err %v", mm, err)
	}

	meta, err := dir.UserMetadata(ctx, "user_1")
	if err != nil || meta["default_organization_id"] != "org_t1" {
		t.Errorf("user metadata = %v, err %v", meta, err)
	}
}

func TestMemoryMetadataPatchMerges(t *testing.T) {
	dir := NewMemory(logger.Nop())
	dir.PutOrganization(Organization{ID: "org_a", Metadata: map[string]any{"keep": true}})
	if err := dir.SetOrgMetadata(context.Background(), "org_a", map[string]any{"new": 1}); err != nil {
		t.Fatal(err)
	}
	meta, _ := dir.OrgMetadata(context.Background(), "org_a")
	if meta["keep"] != true || meta["new"] != 1 {
		t.Errorf("meta = %v", meta)
	}
	if err := dir.SetOrgMetadata(context.Background(), "org_missing", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMemoryListMemberships(t *testing.T) {
	dir := NewMemory(logger.Nop())
	dir.PutOrganization(Organization{ID: "org_a"})
	dir.PutOrganization(Organization{ID: "org_b"})
	dir.PutMembership(Membership{OrganizationID: "org_a", UserID: "u", Role: "member"})
	dir.PutMembership(Membership{OrganizationID: "org_b", UserID: "u", Role: "admin"})
	dir.PutMembership(Membership{OrganizationID: "org_a", UserID: "other", Role: "owner"})

	mine, err := dir.ListMemberships(context.Background(), "u")
	if err != nil || len(mine) != 2 {
		t.Errorf("memberships = %v, err %v", mine, err)
	}
	members, err := dir.ListOrgMembers(context.Background(), "org_a")
	if err != nil || len(members) != 2 {
		t.Errorf("members = %v, err %v", members, err)
	}
}

func TestMetadataPatchDoesNotMutateSnapshots(t *testing.T) {
	dir := NewMemory(logger.Nop())
	dir.PutOrganization(Organization{ID: "org_a", Metadata: map[string]any{"keep": true}})
	dir.userMeta["u1"] = map[string]any{"theme": "dark"}

	orgSnap, err := dir.OrgMetadata(context.Background(), "org_a")
	if err != nil {
		t.Fatal(err)
	}
	userSnap, err := dir.UserMetadata(context.Background(), "u1")
	if err != nil {
		t.Fatal(err)
	}

	// A snapshot handed to a caller (e.g. a credential resolution in
	// flight) must not change underneath it when a patch lands.
	if err := dir.SetOrgMetadata(context.Background(), "org_a", map[string]any{"new": 1}); err != nil {
		t.Fatal(err)
	}
	if err := dir.SetUserMetadata(context.Background(), "u1", map[string]any{"theme": "light"}); err != nil {
		t.Fatal(err)
	}

	if _, leaked := orgSnap["new"]; leaked {
		t.Error("org snapshot mutated by a later patch")
	}
	if userSnap["theme"] != "dark" {
		t.Errorf("user snapshot mutated: theme = %v", userSnap["theme"])
	}

	meta, _ := dir.OrgMetadata(context.Background(), "org_a")
	if meta["keep"] != true || meta["new"] != 1 {
		t.Errorf("patched metadata = %v", meta)
	}
}
