package credentials

import (
	"context"
	"errors"
	"testing"

	"tandem/pkg/crm"
	"tandem/pkg/directory"
	"tandem/pkg/logger"
	"tandem/pkg/memgraph"
	"tandem/pkg/problems"
)

func seededDir(t *testing.T) *directory.Memory {
	t.Helper()
	dir := directory.NewMemory(logger.Nop())
	dir.PutOrganization(directory.Organization{ID: "org_plain", Name: "Plain"})
	dir.PutOrganization(directory.Organization{
		ID:   "org_t3",
		Name: "Override",
		Metadata: map[string]any{
			MetaKeyCRM: map[string]any{
				"base_url": "https://crm.t3.example",
				"api_key":  "k3",
			},
		},
	})
	dir.PutOrganization(directory.Organization{
		ID:   "org_broken",
		Name: "Broken",
		Metadata: map[string]any{
			MetaKeyMemory: map[string]any{"base_url": "https://mem.broken.example"},
		},
	})
	return dir
}

// failingDir errors on every metadata lookup.
type failingDir struct {
	directory.Service
}

func (failingDir) OrgMetadata(ctx context.Context, orgID string) (map[string]any, error) {
	return nil, errors.New("directory down")
}

func TestDirectoryCRMResolve(t *testing.T) {
	def := crm.New("https://crm.default.example", "default-key")
	r := DirectoryCRM{Dir: seededDir(t), Default: def}

	t.Run("no override falls back to default client", func(t *testing.T) {
		cli, err := r.Resolve(context.Background(), "org_plain")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if cli != def {
			t.Error("expected the process default client")
		}
	})

	t.Run("override yields a client bound to the override", func(t *testing.T) {
		cli, err := r.Resolve(context.Background(), "org_t3")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if cli == def {
			t.Fatal("expected an org-specific client")
		}
		if cli.BaseURL() != "https://crm.t3.example" {
			t.Errorf("BaseURL = %q, want override URL", cli.BaseURL())
		}
	})

	t.Run("directory failure is internal", func(t *testing.T) {
		broken := DirectoryCRM{Dir: failingDir{}, Default: def}
		_, err := broken.Resolve(context.Background(), "org_plain")
		if problems.KindOf(err) != problems.KindInternal {
			t.Errorf("kind = %v, want internal", problems.KindOf(err))
		}
	})
}

func TestDirectoryMemoryResolve(t *testing.T) {
	def := memgraph.New("https://mem.default.example", "default-key")
	r := DirectoryMemory{Dir: seededDir(t), Default: def}

	t.Run("override without api_key fails rather than degrading", func(t *testing.T) {
		_, err := r.Resolve(context.Background(), "org_broken")
		if problems.KindOf(err) != problems.KindInternal {
			t.Errorf("kind = %v, want internal", problems.KindOf(err))
		}
	})

	t.Run("no default configured fails resolution", func(t *testing.T) {
		bare := DirectoryMemory{Dir: seededDir(t)}
		_, err := bare.Resolve(context.Background(), "org_plain")
		if problems.KindOf(err) != problems.KindInternal {
			t.Errorf("kind = %v, want internal", problems.KindOf(err))
		}
	})
}

func TestStaticResolvers(t *testing.T) {
	mem := memgraph.New("https://mem.example", "k")
	if cli, err := (StaticMemory{Client: mem}).Resolve(context.Background(), "org_x"); err != nil || cli != mem {
		t.Errorf("StaticMemory.Resolve = (%v, %v), want default client", cli, err)
	}
	if _, err := (StaticCRM{}).Resolve(context.Background(), "org_x"); problems.KindOf(err) != problems.KindInternal {
		t.Error("unconfigured static resolver should fail internal")
	}
}
