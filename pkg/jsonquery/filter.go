// pkg/jsonquery/filter.go
package jsonquery

import (
	"encoding/json"
	"fmt"

	jmes "github.com/jmespath/go-jmespath"
)

// Apply evaluates a JMESPath expression against v. The value is round-tripped
// through JSON first so typed structs behave like the plain maps JMESPath
// expects.
func Apply(expr string, v any) (any, error) {
	compiled, err := jmes.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("invalid filter expression: %w", err)
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var plain any
	if err := json.Unmarshal(b, &plain); err != nil {
		return nil, err
	}
	out, err := compiled.Search(plain)
	if err != nil {
		return nil, fmt.Errorf("filter evaluation failed: %w", err)
	}
	return out, nil
}
