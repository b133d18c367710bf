// pkg/openapi/builder.go
package openapi

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Operation represents a single HTTP operation to surface in the OpenAPI
// document.
type Operation struct {
	Method      string
	Path        string
	OperationID string
	Summary     string
	Scopes      []string
	Input       map[string]any // JSON schema of the request body / params
}

// Registry collects operations and renders a minimal OpenAPI 3.1 document.
type Registry struct {
	ops []Operation
}

func NewRegistry() *Registry { return &Registry{} }

func (r *Registry) Register(op Operation) {
	if op.Method != "" {
		op.Method = strings.ToLower(op.Method)
	}
	r.ops = append(r.ops, op)
}

// Build produces the document. Schemas are inlined; the security scheme
// mirrors the gateway's bearer-token requirement.
func (r *Registry) Build(serviceName, version, serverURL string) map[string]any {
	paths := map[string]any{}
	for _, op := range r.ops {
		if _, ok := paths[op.Path]; !ok {
			paths[op.Path] = map[string]any{}
		}
		m := map[string]any{
			"operationId": op.OperationID,
			"summary":     op.Summary,
			"responses":   map[string]any{"200": map[string]any{"description": "OK"}},
		}
		if len(op.Scopes) > 0 {
			m["x-required-scopes"] = op.Scopes
		}
		if op.Input != nil && op.Method != "get" {
			m["requestBody"] = map[string]any{
				"content": map[string]any{
					"application/json": map[string]any{"schema": op.Input},
				},
			}
		}
		paths[op.Path].(map[string]any)[op.Method] = m
	}
	return map[string]any{
		"openapi": "3.1.0",
		"info":    map[string]any{"title": serviceName, "version": version},
		"servers": []map[string]any{{"url": serverURL}},
		"paths":   paths,
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"bearer": map[string]any{
					"type":   "http",
					"scheme": "bearer",
				},
			},
		},
		"security": []map[string]any{{"bearer": []string{}}},
	}
}

// ServeHandler returns an HTTP handler that serves the built document.
func (r *Registry) ServeHandler(serviceName, version, serverURL string) http.HandlerFunc {
	doc := r.Build(serviceName, version, serverURL)
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(doc)
	}
}
