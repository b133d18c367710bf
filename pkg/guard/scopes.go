// pkg/guard/scopes.go
package guard

import (
	"strings"

	"tandem/pkg/problems"
)

// CheckScopes verifies that granted covers every required scope. It is pure
// and runs before any network call: a caller missing a scope never causes a
// directory lookup or reaches a downstream service.
func CheckScopes(granted, required []string) error {
	if len(required) == 0 {
		return nil
	}
	have := make(map[string]struct{}, len(granted))
	for _, s := range granted {
		have[s] = struct{}{}
	}
	var missing []string
	for _, s := range required {
		if _, ok := have[s]; !ok {
			missing = append(missing, s)
		}
	}
	if len(missing) > 0 {
		return problems.Forbidden("missing scope " + strings.Join(missing, " "))
	}
	return nil
}
