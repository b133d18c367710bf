package operation

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"tandem/pkg/authn"
	"tandem/pkg/directory"
	"tandem/pkg/guard"
	"tandem/pkg/logger"
)

type echoInput struct {
	OrganizationID string `json:"organization_id"`
	Message        string `json:"message"`
}

func (in echoInput) Validate() error {
	if in.OrganizationID == "" {
		return errors.New("organization_id is required")
	}
	if in.Message == "" {
		return errors.New("message is required")
	}
	return nil
}

type echoOutput struct {
	Echo  string `json:"echo"`
	Actor string `json:"actor"`
}

type countingDir struct {
	directory.Service
	membershipCalls int
}

func (c *countingDir) OrgMembership(ctx context.Context, orgID, userID string) (directory.Membership, error) {
	c.membershipCalls++
	return c.Service.OrgMembership(ctx, orgID, userID)
}

type fixture struct {
	dir          *countingDir
	handlerCalls int
	router       chi.Router
}

// withAuth stands in for the JWT middleware: tests inject the AuthContext
// directly instead of minting tokens.
func withAuth(ac authn.AuthContext) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(authn.WithAuth(r.Context(), ac)))
		})
	}
}

func newFixture(t *testing.T, ac authn.AuthContext) *fixture {
	t.Helper()
	mem := directory.NewMemory(logger.Nop())
	mem.PutOrganization(directory.Organization{ID: "org_t1", Name: "Acme"})
	mem.PutMembership(directory.Membership{OrganizationID: "org_t1", UserID: "user_member", Role: "member"})
	f := &fixture{dir: &countingDir{Service: mem}}

	def := Define(Spec{
		Name:    "test.echo",
		Summary: "Echo a message",
		Method:  "POST",
		Path:    "/v1/orgs/{organization_id}/echo",
		Scopes:  []string{"read:org"},
		InputSchema: ObjectSchema("", map[string]any{
			"organization_id": StringProp("org"),
			"message":         StringProp("msg"),
		}, "organization_id", "message"),
	}, guard.RoleGuard{Dir: f.dir}, func(in echoInput) string { return in.OrganizationID },
		func(ctx context.Context, ac authn.AuthContext, in echoInput) (echoOutput, error) {
			f.handlerCalls++
			return echoOutput{Echo: in.Message, Actor: ac.Subject}, nil
		})

	reg := NewRegistry()
	reg.Register(def)

	r := chi.NewRouter()
	r.Use(withAuth(ac))
	MountRPC(r, reg, nil)
	MountTools(r, reg, nil)
	f.router = r
	return f
}

func doJSON(t *testing.T, router chi.Router, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRPCAndToolSurfacesAgree(t *testing.T) {
	ac := authn.AuthContext{Subject: "user_member", Scopes: []string{"read:org"}}
	f := newFixture(t, ac)

	rpc := doJSON(t, f.router, "POST", "/v1/orgs/org_t1/echo", map[string]any{"message": "hi"})
	if rpc.Code != http.StatusOK {
		t.Fatalf("rpc status = %d, body %s", rpc.Code, rpc.Body)
	}
	var rpcOut map[string]any
	if err := json.Unmarshal(rpc.Body.Bytes(), &rpcOut); err != nil {
		t.Fatal(err)
	}

	tool := doJSON(t, f.router, "POST", "/v1/tools/call", map[string]any{
		"name":      "test.echo",
		"arguments": map[string]any{"organization_id": "org_t1", "message": "hi"},
	})
	if tool.Code != http.StatusOK {
		t.Fatalf("tool status = %d, body %s", tool.Code, tool.Body)
	}
	var env ToolResult
	if err := json.Unmarshal(tool.Body.Bytes(), &env); err != nil {
		t.Fatal(err)
	}
	if env.IsError || len(env.Content) != 1 || env.Content[0].Type != "text" {
		t.Fatalf("unexpected envelope: %+v", env)
	}
	var toolOut map[string]any
	if err := json.Unmarshal([]byte(env.Content[0].Text), &toolOut); err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(rpcOut, toolOut) {
		t.Errorf("surfaces disagree: rpc %v, tool %v", rpcOut, toolOut)
	}
	if f.handlerCalls != 2 {
		t.Errorf("handler calls = %d, want 2 (once per surface)", f.handlerCalls)
	}
}

func TestRPCMissingScope(t *testing.T) {
	f := newFixture(t, authn.AuthContext{Subject: "user_member"})
	w := doJSON(t, f.router, "POST", "/v1/orgs/org_t1/echo", map[string]any{"message": "hi"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", w.Code)
	}
	if f.dir.membershipCalls != 0 {
		t.Errorf("membership lookups = %d, want 0", f.dir.membershipCalls)
	}
	if f.handlerCalls != 0 {
		t.Errorf("handler calls = %d, want 0", f.handlerCalls)
	}
}

func TestRPCNonMemberIsNotFound(t *testing.T) {
	f := newFixture(t, authn.AuthContext{Subject: "user_stranger", Scopes: []string{"read:org"}})
	w := doJSON(t, f.router, "POST", "/v1/orgs/org_t1/echo", map[string]any{"message": "hi"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
	if f.handlerCalls != 0 {
		t.Errorf("handler calls = %d, want 0", f.handlerCalls)
	}
}

func TestValidationRunsBeforeGuards(t *testing.T) {
	// The caller has no scopes, but a schema-invalid input must fail 400
	// before the scope check gets a chance to say 403.
	f := newFixture(t, authn.AuthContext{Subject: "user_member"})
	w := doJSON(t, f.router, "POST", "/v1/tools/call", map[string]any{
		"name":      "test.echo",
		"arguments": map[string]any{"organization_id": "org_t1", "bogus": true},
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body %s", w.Code, w.Body)
	}
	if f.dir.membershipCalls != 0 {
		t.Errorf("membership lookups = %d, want 0", f.dir.membershipCalls)
	}
}

func TestToolErrorEnvelope(t *testing.T) {
	f := newFixture(t, authn.AuthContext{Subject: "user_stranger", Scopes: []string{"read:org"}})
	w := doJSON(t, f.router, "POST", "/v1/tools/call", map[string]any{
		"name":      "test.echo",
		"arguments": map[string]any{"organization_id": "org_t1", "message": "hi"},
	})
	var env ToolResult
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatal(err)
	}
	if !env.IsError {
		t.Fatal("expected isError envelope")
	}
	if !strings.Contains(env.Content[0].Text, "404") {
		t.Errorf("error text should carry the status: %s", env.Content[0].Text)
	}
}

func TestUnknownTool(t *testing.T) {
	f := newFixture(t, authn.AuthContext{Subject: "user_member", Scopes: []string{"read:org"}})
	w := doJSON(t, f.router, "POST", "/v1/tools/call", map[string]any{"name": "nope"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestToolListing(t *testing.T) {
	f := newFixture(t, authn.AuthContext{Subject: "user_member"})
	w := doJSON(t, f.router, "GET", "/v1/tools", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var out struct {
		Tools []ToolDescriptor `json:"tools"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if len(out.Tools) != 1 || out.Tools[0].Name != "test.echo" {
		t.Errorf("tools = %+v", out.Tools)
	}
	if out.Tools[0].InputSchema == nil {
		t.Error("missing input schema")
	}
}

func TestRegistryDuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic on duplicate registration")
		}
	}()
	reg := NewRegistry()
	d := Definition{Spec: Spec{Name: "dup"}}
	reg.Register(d, d)
}

type itemsInput struct {
	OrganizationID string `json:"organization_id"`
	Cursor         string `json:"cursor,omitempty"`
	Limit          int    `json:"limit,omitempty"`
	Verbose        bool   `json:"verbose,omitempty"`
}

func (in itemsInput) Validate() error {
	if in.OrganizationID == "" {
		return errors.New("organization_id is required")
	}
	return nil
}

func newListFixture(t *testing.T, ac authn.AuthContext) (chi.Router, *itemsInput) {
	t.Helper()
	mem := directory.NewMemory(logger.Nop())
	mem.PutOrganization(directory.Organization{ID: "org_t1"})
	mem.PutMembership(directory.Membership{OrganizationID: "org_t1", UserID: "user_member", Role: "member"})

	var got itemsInput
	def := Define(Spec{
		Name:   "test.items.list",
		Method: "GET",
		Path:   "/v1/orgs/{organization_id}/items",
		Scopes: []string{"read:org"},
		InputSchema: ObjectSchema("", map[string]any{
			"organization_id": StringProp("org"),
			"cursor":          StringProp("opaque continuation cursor"),
			"limit":           IntProp("max items"),
			"verbose":         map[string]any{"type": "boolean"},
		}, "organization_id"),
	}, guard.RoleGuard{Dir: mem}, func(in itemsInput) string { return in.OrganizationID },
		func(ctx context.Context, ac authn.AuthContext, in itemsInput) (itemsInput, error) {
			got = in
			return in, nil
		})

	reg := NewRegistry()
	reg.Register(def)
	r := chi.NewRouter()
	r.Use(withAuth(ac))
	MountRPC(r, reg, nil)
	return r, &got
}

func TestQueryCoercionFollowsSchema(t *testing.T) {
	ac := authn.AuthContext{Subject: "user_member", Scopes: []string{"read:org"}}
	router, got := newListFixture(t, ac)

	// A vendor-issued cursor can be all digits; its schema type is string,
	// so it must survive the query string untouched.
	w := doJSON(t, router, "GET", "/v1/orgs/org_t1/items?cursor=12345&limit=5&verbose=true", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	if got.Cursor != "12345" {
		t.Errorf("cursor = %q, want the raw string", got.Cursor)
	}
	if got.Limit != 5 {
		t.Errorf("limit = %d, want 5", got.Limit)
	}
	if !got.Verbose {
		t.Error("verbose flag not coerced to bool")
	}
}

func TestQueryUndeclaredFieldStaysString(t *testing.T) {
	ac := authn.AuthContext{Subject: "user_member", Scopes: []string{"read:org"}}
	router, _ := newListFixture(t, ac)

	// Numeric-looking value on a field the schema does not declare: it must
	// stay a string so DisallowUnknownFields reports it as unknown, not as a
	// type mismatch.
	w := doJSON(t, router, "GET", "/v1/orgs/org_t1/items?bogus=42", nil)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), "bogus") {
		t.Errorf("body = %s, want the unknown field named", w.Body)
	}
}

type errReader struct{}

func (errReader) Read([]byte) (int, error) { return 0, errors.New("client went away") }

func TestBodyReadErrorIsNotReportedAsTooLarge(t *testing.T) {
	ac := authn.AuthContext{Subject: "user_member", Scopes: []string{"read:org"}}
	f := newFixture(t, ac)

	req := httptest.NewRequest("POST", "/v1/orgs/org_t1/echo", errReader{})
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	body := w.Body.String()
	if strings.Contains(body, "too large") {
		t.Errorf("read failure misreported as size limit: %s", body)
	}
	if !strings.Contains(body, "read failed") {
		t.Errorf("body = %s, want a read failure detail", body)
	}
}

func TestOversizeBodyIsTooLarge(t *testing.T) {
	ac := authn.AuthContext{Subject: "user_member", Scopes: []string{"read:org"}}
	f := newFixture(t, ac)

	big := bytes.Repeat([]byte("a"), 1<<20+1)
	req := httptest.NewRequest("POST", "/v1/orgs/org_t1/echo", bytes.NewReader(big))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if !strings.Contains(w.Body.String(), "too large") {
		t.Errorf("body = %s, want the size limit named", w.Body)
	}
}

func TestToolListingEmptyRegistryIsArray(t *testing.T) {
	r := chi.NewRouter()
	r.Use(withAuth(authn.AuthContext{Subject: "user_member"}))
	MountTools(r, NewRegistry(), nil)

	w := doJSON(t, r, "GET", "/v1/tools", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var out map[string]json.RawMessage
	if err := json.Unmarshal(w.Body.Bytes(), &out); err != nil {
		t.Fatal(err)
	}
	if string(out["tools"]) != "[]" {
		t.Errorf("tools = %s, want an empty array", out["tools"])
	}
}
