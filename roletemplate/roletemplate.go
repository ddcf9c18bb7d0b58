// Package roletemplate defines the RoleTemplate entity — a named,
// reusable bundle of permission templates — and its store interface.
package roletemplate

import (
	"time"

	"github.com/xraph/aegis/grant"
	"github.com/xraph/aegis/id"
)

// RoleTemplate is an assignable bundle of permission templates.
// Assigning one to a subject materializes grants; the template itself
// is never mutated by assignment. System templates are immutable.
type RoleTemplate struct {
	ID          id.RoleID            `json:"id" db:"id"`
	TenantID    string               `json:"tenant_id" db:"tenant_id"`
	AppID       string               `json:"app_id" db:"app_id"`
	Name        string               `json:"name" db:"name"`
	Slug        string               `json:"slug" db:"slug"`
	Description string               `json:"description,omitempty" db:"description"`
	IsSystem    bool                 `json:"is_system" db:"is_system"`
	Templates   []PermissionTemplate `json:"templates" db:"-"`
	Metadata    map[string]any       `json:"metadata,omitempty" db:"metadata"`
	CreatedAt   time.Time            `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time            `json:"updated_at" db:"updated_at"`
}

// PermissionTemplate names one permission the template carries, the
// resource type it applies to ("" for all types), and the constraints
// copied onto the materialized grant.
type PermissionTemplate struct {
	Action       string             `json:"action"`
	ResourceType string             `json:"resource_type,omitempty"`
	Constraints  []grant.Constraint `json:"constraints,omitempty"`
}

// ResourceTypes returns the distinct resource types the template
// touches, in first-appearance order.
func (r *RoleTemplate) ResourceTypes() []string {
	seen := make(map[string]struct{}, len(r.Templates))
	var out []string
	for _, t := range r.Templates {
		if _, ok := seen[t.ResourceType]; ok {
			continue
		}
		seen[t.ResourceType] = struct{}{}
		out = append(out, t.ResourceType)
	}
	return out
}

// ListFilter contains filters for listing role templates.
type ListFilter struct {
	TenantID string `json:"tenant_id,omitempty"`
	IsSystem *bool  `json:"is_system,omitempty"`
	Search   string `json:"search,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}
