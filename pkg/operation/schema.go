// pkg/operation/schema.go
package operation

// ObjectSchema builds a JSON schema for an object input. Used by operation
// packages to declare tool/OpenAPI input shapes without hand-writing the
// envelope every time.
func ObjectSchema(description string, props map[string]any, required ...string) map[string]any {
	s := map[string]any{
		"type":                 "object",
		"properties":           props,
		"additionalProperties": false,
	}
	if description != "" {
		s["description"] = description
	}
	if len(required) > 0 {
		s["required"] = required
	}
	return s
}

// StringProp is a shorthand for a string property schema.
func StringProp(description string) map[string]any {
	return map[string]any{"type": "string", "description": description}
}

// IntProp is a shorthand for an integer property schema.
func IntProp(description string) map[string]any {
	return map[string]any{"type": "integer", "description": description}
}
