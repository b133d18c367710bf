package directory

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"tandem/pkg/logger"
)

func remoteFixture(t *testing.T, handler http.HandlerFunc) Service {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewRemote(srv.URL, "secret-key", logger.Nop())
}

func TestRemoteOrgMembership(t *testing.T) {
	var gotAuth, gotPath string
	d := remoteFixture(t, func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path + "?" + r.URL.RawQuery
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": []map[string]any{
				{"organization_id": "org_t1", "user_id": "user_1", "role": "member"},
			},
		})
	})
	mm, err := d.OrgMembership(context.Background(), "org_t1", "user_1")
	if err != nil {
		t.Fatalf("OrgMembership() error = %v", err)
	}
	if mm.Role != "member" {
		t.Errorf("role = %q", mm.Role)
	}
	if gotAuth != "Bearer secret-key" {
		t.Errorf("auth header = %q", gotAuth)
	}
	want := "/v1/organization_memberships?organization_id=org_t1&user_id=user_1"
	if gotPath != want {
		t.Errorf("path = %q, want %q", gotPath, want)
	}
}

func TestRemoteNoMembershipIsNotFound(t *testing.T) {
	d := remoteFixture(t, func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"data": []any{}})
	})
	_, err := d.OrgMembership(context.Background(), "org_t1", "user_ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRemote404IsNotFound(t *testing.T) {
	d := remoteFixture(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusNotFound)
	})
	_, err := d.Organization(context.Background(), "org_ghost")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestRemoteServerErrorIsOpaque(t *testing.T) {
	d := remoteFixture(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})
	_, err := d.Organization(context.Background(), "org_t1")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want non-notfound failure", err)
	}
}

func TestRemoteMetadataPatch(t *testing.T) {
	var gotMethod string
	var gotBody map[string]any
	d := remoteFixture(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("{}"))
	})
	err := d.SetOrgMetadata(context.Background(), "org_t1", map[string]any{"k": "v"})
	if err != nil {
		t.Fatalf("SetOrgMetadata() error = %v", err)
	}
	if gotMethod != http.MethodPatch {
		t.Errorf("method = %q", gotMethod)
	}
	meta, _ := gotBody["metadata"].(map[string]any)
	if meta["k"] != "v" {
		t.Errorf("body = %v", gotBody)
	}
}
