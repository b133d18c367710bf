// pkg/operation/http.go
package operation

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"tandem/pkg/audit"
	"tandem/pkg/authn"
	"tandem/pkg/middleware"
	"tandem/pkg/problems"
)

// MountRPC registers one route per operation on the router. Each route
// decodes the request into the operation's input (path params, query
// params, then JSON body), pulls the AuthContext from the request context,
// and dispatches through Definition.Invoke.
func MountRPC(r chi.Router, reg *Registry, rec *audit.Recorder) {
	for _, d := range reg.All() {
		d := d
		r.Method(d.Method, d.Path, rpcHandler(d, rec))
	}
}

func rpcHandler(d Definition, rec *audit.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ac, ok := authn.FromContext(r.Context())
		if !ok {
			problems.Write(w, problems.Unauthorized("missing auth context"))
			return
		}
		raw, err := buildRPCInput(w, r, d.InputSchema)
		if err != nil {
			problems.Write(w, err)
			return
		}
		start := time.Now()
		out, err := d.Invoke(r.Context(), ac, raw)
		status := http.StatusOK
		if err != nil {
			status = problems.Status(problems.KindOf(err))
			problems.Write(w, err)
		} else {
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(out)
		}
		observe(r, d, rec, "rpc", ac.Subject, d.OrgID(raw), status, start)
	}
}

// buildRPCInput merges chi path params, query params, and (for mutating
// methods) the JSON body into one object for decoding. Body fields win over
// query params, which win over path params.
func buildRPCInput(w http.ResponseWriter, r *http.Request, schema map[string]any) (json.RawMessage, error) {
	merged := map[string]any{}
	if rc := chi.RouteContext(r.Context()); rc != nil {
		for i, k := range rc.URLParams.Keys {
			if k == "*" {
				continue
			}
			merged[k] = rc.URLParams.Values[i]
		}
	}
	for k, vs := range r.URL.Query() {
		if len(vs) > 0 {
			merged[k] = coerce(vs[0], propType(schema, k))
		}
	}
	if r.Method != http.MethodGet && r.Body != nil {
		b, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			var mbe *http.MaxBytesError
			if errors.As(err, &mbe) {
				return nil, problems.Validation("request body too large")
			}
			return nil, problems.Validation("request body read failed: " + err.Error())
		}
		if len(b) > 0 {
			var body map[string]any
			if err := json.Unmarshal(b, &body); err != nil {
				return nil, problems.Validation("request body must be a JSON object")
			}
			for k, v := range body {
				merged[k] = v
			}
		}
	}
	raw, err := json.Marshal(merged)
	if err != nil {
		return nil, problems.Validation(err.Error())
	}
	return raw, nil
}

// coerce turns a query-string value into the JSON type the input schema
// declares for the field. Undeclared or string fields stay strings: an
// opaque cursor can look numeric. Path params are never coerced.
func coerce(s, typ string) any {
	switch typ {
	case "boolean":
		if s == "true" || s == "false" {
			return s == "true"
		}
	case "integer":
		if n, err := strconv.Atoi(s); err == nil {
			return n
		}
	}
	return s
}

// propType looks up the declared schema type of one input property.
func propType(schema map[string]any, name string) string {
	props, _ := schema["properties"].(map[string]any)
	p, _ := props[name].(map[string]any)
	t, _ := p["type"].(string)
	return t
}

func observe(r *http.Request, d Definition, rec *audit.Recorder, surface, sub, orgID string, status int, start time.Time) {
	invocations.WithLabelValues(d.Name, surface, strconv.Itoa(status)).Inc()
	duration.WithLabelValues(d.Name, surface).Observe(time.Since(start).Seconds())
	reqID := ""
	if v := r.Context().Value(middleware.CtxKeyRequestID); v != nil {
		reqID, _ = v.(string)
	}
	rec.Record(r.Context(), audit.Event{
		Operation:  d.Name,
		Surface:    surface,
		OrgID:      orgID,
		ActorSub:   sub,
		RequestID:  reqID,
		StatusCode: status,
		Duration:   time.Since(start),
		StartedAt:  start,
	})
}

// ToolDescriptor is one entry on the tool listing.
type ToolDescriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"inputSchema"`
}

// ToolContent is a single block inside a tool result envelope.
type ToolContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// ToolResult is the uniform envelope returned by the tool surface. Business
// output is serialized to JSON text; failures set IsError and carry the
// problem document as text.
type ToolResult struct {
	Content []ToolContent `json:"content"`
	IsError bool          `json:"isError,omitempty"`
}

// MountTools registers the tool listing and call endpoints.
func MountTools(r chi.Router, reg *Registry, rec *audit.Recorder) {
	r.Get("/v1/tools", func(w http.ResponseWriter, _ *http.Request) {
		tools := []ToolDescriptor{}
		for _, d := range reg.All() {
			schema := d.InputSchema
			if schema == nil {
				schema = map[string]any{"type": "object"}
			}
			tools = append(tools, ToolDescriptor{Name: d.Name, Description: d.Summary, InputSchema: schema})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"tools": tools})
	})
	r.Post("/v1/tools/call", toolCallHandler(reg, rec))
}

func toolCallHandler(reg *Registry, rec *audit.Recorder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ac, ok := authn.FromContext(r.Context())
		if !ok {
			problems.Write(w, problems.Unauthorized("missing auth context"))
			return
		}
		var call struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := json.NewDecoder(r.Body).Decode(&call); err != nil {
			problems.Write(w, problems.Validation("request body must be a JSON object"))
			return
		}
		d, found := reg.Lookup(call.Name)
		if !found {
			problems.Write(w, problems.NotFound(fmt.Sprintf("unknown tool %q", call.Name)))
			return
		}
		start := time.Now()
		out, err := d.Invoke(r.Context(), ac, call.Arguments)
		status := http.StatusOK
		var result ToolResult
		if err != nil {
			status = problems.Status(problems.KindOf(err))
			result = errorResult(err)
		} else {
			b, merr := json.Marshal(out)
			if merr != nil {
				status = http.StatusBadGateway
				result = errorResult(problems.Internal("result serialization failed", merr))
			} else {
				result = ToolResult{Content: []ToolContent{{Type: "text", Text: string(b)}}}
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(result)
		observe(r, d, rec, "tool", ac.Subject, d.OrgID(call.Arguments), status, start)
	}
}

func errorResult(err error) ToolResult {
	k := problems.KindOf(err)
	doc := map[string]any{
		"error":  strings.TrimSpace(err.Error()),
		"status": problems.Status(k),
	}
	b, _ := json.Marshal(doc)
	return ToolResult{Content: []ToolContent{{Type: "text", Text: string(b)}}, IsError: true}
}
