// pkg/operation/registry.go
package operation

import (
	"fmt"
	"sort"
)

// Registry is the immutable set of operations, built once at startup.
type Registry struct {
	defs   []Definition
	byName map[string]Definition
}

func NewRegistry() *Registry {
	return &Registry{byName: map[string]Definition{}}
}

// Register adds definitions. Duplicate names are a wiring bug and panic at
// startup rather than surfacing at request time.
func (r *Registry) Register(defs ...Definition) {
	for _, d := range defs {
		if _, exists := r.byName[d.Name]; exists {
			panic(fmt.Sprintf("operation %q registered twice", d.Name))
		}
		r.byName[d.Name] = d
		r.defs = append(r.defs, d)
	}
}

// Lookup finds an operation by its dotted name.
func (r *Registry) Lookup(name string) (Definition, bool) {
	d, ok := r.byName[name]
	return d, ok
}

// All returns definitions sorted by name.
func (r *Registry) All() []Definition {
	out := make([]Definition, len(r.defs))
	copy(out, r.defs)
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
