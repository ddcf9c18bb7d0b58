package roletemplate

import (
	"context"

	"github.com/xraph/aegis/id"
)

// Store defines persistence operations for role templates.
type Store interface {
	// CreateRoleTemplate persists a new role template.
	CreateRoleTemplate(ctx context.Context, r *RoleTemplate) error

	// GetRoleTemplate retrieves a role template by ID.
	GetRoleTemplate(ctx context.Context, roleID id.RoleID) (*RoleTemplate, error)

	// GetRoleTemplateBySlug retrieves a role template by tenant and slug.
	GetRoleTemplateBySlug(ctx context.Context, tenantID, slug string) (*RoleTemplate, error)

	// UpdateRoleTemplate persists changes to a role template.
	UpdateRoleTemplate(ctx context.Context, r *RoleTemplate) error

	// DeleteRoleTemplate removes a role template by ID.
	DeleteRoleTemplate(ctx context.Context, roleID id.RoleID) error

	// ListRoleTemplates returns role templates matching the filter.
	ListRoleTemplates(ctx context.Context, filter *ListFilter) ([]*RoleTemplate, error)

	// CountRoleTemplates returns the number of role templates matching the filter.
	CountRoleTemplates(ctx context.Context, filter *ListFilter) (int64, error)

	// DeleteRoleTemplatesByTenant removes all role templates for a tenant.
	DeleteRoleTemplatesByTenant(ctx context.Context, tenantID string) error
}
