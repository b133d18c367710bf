// pkg/directory/model.go
package directory

// Organization is a tenant record as the directory reports it.
type Organization struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Slug     string         `json:"slug,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// Membership links a user to an organization with exactly one role.
type Membership struct {
	OrganizationID string `json:"organization_id"`
	UserID         string `json:"user_id"`
	Role           string `json:"role"`
}
