package aegis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/aegis/bitset"
	"github.com/xraph/aegis/grant"
	"github.com/xraph/aegis/id"
	"github.com/xraph/aegis/roletemplate"
)

// CreateRoleTemplate validates and persists a new role template. Every
// template action must be a registered permission name; the slug must
// be unique within the tenant.
func (e *Engine) CreateRoleTemplate(ctx context.Context, r *roletemplate.RoleTemplate) error {
	if r.Name == "" || r.Slug == "" {
		return errors.New("aegis: role template name and slug are required")
	}
	for _, t := range r.Templates {
		if _, err := e.catalog.BitOf(t.Action); err != nil {
			return fmt.Errorf("%w: %q", ErrUnknownPermission, t.Action)
		}
	}
	if existing, err := e.store.GetRoleTemplateBySlug(ctx, r.TenantID, r.Slug); err == nil && existing != nil {
		return fmt.Errorf("%w: %q", ErrDuplicateRole, r.Slug)
	}

	if r.ID.IsNil() {
		r.ID = id.NewRoleID()
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	if err := e.store.CreateRoleTemplate(ctx, r); err != nil {
		return fmt.Errorf("aegis create role template: %w", err)
	}
	return nil
}

// GetRoleTemplate retrieves a role template by ID.
func (e *Engine) GetRoleTemplate(ctx context.Context, roleID id.RoleID) (*roletemplate.RoleTemplate, error) {
	r, err := e.store.GetRoleTemplate(ctx, roleID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrRoleNotFound, roleID)
	}
	return r, nil
}

// GetRoleTemplateBySlug retrieves a role template by tenant and slug.
func (e *Engine) GetRoleTemplateBySlug(ctx context.Context, tenantID, slug string) (*roletemplate.RoleTemplate, error) {
	r, err := e.store.GetRoleTemplateBySlug(ctx, tenantID, slug)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrRoleNotFound, slug)
	}
	return r, nil
}

// UpdateRoleTemplate persists changes to a role template. System
// templates are immutable.
func (e *Engine) UpdateRoleTemplate(ctx context.Context, r *roletemplate.RoleTemplate) error {
	stored, err := e.store.GetRoleTemplate(ctx, r.ID)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrRoleNotFound, r.ID)
	}
	if stored.IsSystem {
		return fmt.Errorf("%w: %q", ErrImmutableRole, stored.Slug)
	}
	for _, t := range r.Templates {
		if _, err := e.catalog.BitOf(t.Action); err != nil {
			return fmt.Errorf("%w: %q", ErrUnknownPermission, t.Action)
		}
	}
	r.UpdatedAt = time.Now().UTC()
	if err := e.store.UpdateRoleTemplate(ctx, r); err != nil {
		return fmt.Errorf("aegis update role template: %w", err)
	}
	return nil
}

// DeleteRoleTemplate removes a role template. System templates are
// immutable. Grants already materialized from the template survive.
func (e *Engine) DeleteRoleTemplate(ctx context.Context, roleID id.RoleID) error {
	stored, err := e.store.GetRoleTemplate(ctx, roleID)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrRoleNotFound, roleID)
	}
	if stored.IsSystem {
		return fmt.Errorf("%w: %q", ErrImmutableRole, stored.Slug)
	}
	if err := e.store.DeleteRoleTemplate(ctx, roleID); err != nil {
		return fmt.Errorf("aegis delete role template: %w", err)
	}
	return nil
}

// ListRoleTemplates returns role templates matching the filter.
func (e *Engine) ListRoleTemplates(ctx context.Context, filter *roletemplate.ListFilter) ([]*roletemplate.RoleTemplate, error) {
	return e.store.ListRoleTemplates(ctx, filter)
}

// AssignRole materializes grants for a role template: per resource type
// the template touches, the template's permission bits are unioned into
// the subject's grant at {subject, tenant, resource type, no instance}.
// Re-assigning the same role is idempotent — bits union into the
// existing grant, never a duplicate row.
func (e *Engine) AssignRole(ctx context.Context, subjectID, tenantID, slug string, expiresAt *time.Time) ([]id.GrantID, error) {
	if subjectID == "" {
		return nil, errors.New("aegis: subject id is required")
	}
	role, err := e.store.GetRoleTemplateBySlug(ctx, tenantID, slug)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrRoleNotFound, slug)
	}

	grantIDs := make([]id.GrantID, 0, 1)
	for _, resourceType := range role.ResourceTypes() {
		bits, constraints, err := e.roleBitsFor(role, resourceType)
		if err != nil {
			return nil, err
		}
		gid, err := e.upsertUnion(ctx, subjectID, tenantID, resourceType, "", bits, constraints, expiresAt, "role:"+slug)
		if err != nil {
			return nil, err
		}
		grantIDs = append(grantIDs, gid)

		if e.hooks != nil {
			if g, gerr := e.store.GetGrant(ctx, gid); gerr == nil {
				e.hooks.EmitRoleAssigned(ctx, role, g)
			}
		}
	}

	if e.cache != nil {
		e.cache.InvalidateSubject(ctx, tenantID, subjectID)
	}
	return grantIDs, nil
}

// RevokeRole clears a role template's permission bits from the
// subject's matching grants. A grant left with no bits is revoked
// outright; bits contributed by other roles survive.
func (e *Engine) RevokeRole(ctx context.Context, subjectID, tenantID, slug string) error {
	role, err := e.store.GetRoleTemplateBySlug(ctx, tenantID, slug)
	if err != nil {
		return fmt.Errorf("%w: %q", ErrRoleNotFound, slug)
	}

	now := time.Now().UTC()
	for _, resourceType := range role.ResourceTypes() {
		bits, _, err := e.roleBitsFor(role, resourceType)
		if err != nil {
			return err
		}
		if err := e.clearBits(ctx, subjectID, tenantID, resourceType, bits, now); err != nil {
			return err
		}
	}

	if e.cache != nil {
		e.cache.InvalidateSubject(ctx, tenantID, subjectID)
	}
	if e.hooks != nil {
		e.hooks.EmitRoleRevoked(ctx, role, subjectID)
	}
	return nil
}

// RevokeGrant revokes a single grant directly.
func (e *Engine) RevokeGrant(ctx context.Context, grantID id.GrantID) error {
	g, err := e.store.GetGrant(ctx, grantID)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrGrantNotFound, grantID)
	}
	if err := e.store.RevokeGrant(ctx, grantID, time.Now().UTC()); err != nil {
		return fmt.Errorf("aegis revoke grant: %w", err)
	}
	if e.cache != nil {
		e.cache.InvalidateSubject(ctx, g.TenantID, g.SubjectID)
	}
	if e.hooks != nil {
		e.hooks.EmitGrantRevoked(ctx, grantID)
	}
	return nil
}

// roleBitsFor unions the bits and collects the constraints of every
// template entry bound to one resource type.
func (e *Engine) roleBitsFor(role *roletemplate.RoleTemplate, resourceType string) (bitset.Bits, []grant.Constraint, error) {
	bits := bitset.Zero
	var constraints []grant.Constraint
	for _, t := range role.Templates {
		if t.ResourceType != resourceType {
			continue
		}
		bit, err := e.catalog.BitOf(t.Action)
		if err != nil {
			return bitset.Zero, nil, fmt.Errorf("%w: %q", ErrUnknownPermission, t.Action)
		}
		bits = bits.Set(bit, true)
		constraints = append(constraints, t.Constraints...)
	}
	return bits, constraints, nil
}

// upsertUnion unions bits into the subject's grant at the given scope,
// creating the grant if none is live. On version conflict the read-
// modify-write is retried a bounded number of times, then surfaces
// ErrConflict.
func (e *Engine) upsertUnion(ctx context.Context, subjectID, tenantID, resourceType, resourceID string, bits bitset.Bits, constraints []grant.Constraint, expiresAt *time.Time, grantedBy string) (id.GrantID, error) {
	q := &grant.ScopeQuery{SubjectID: grant.Eq(subjectID)}
	if tenantID != "" {
		q.TenantID = grant.Eq(tenantID)
	}
	if resourceType != "" {
		q.ResourceType = grant.Eq(resourceType)
	}
	if resourceID != "" {
		q.ResourceID = grant.Eq(resourceID)
	}

	var lastErr error
	for attempt := 0; attempt < e.config.retries(); attempt++ {
		now := time.Now().UTC()
		existing, err := e.store.FindGrants(ctx, q)
		if err != nil {
			return id.GrantID{}, fmt.Errorf("aegis find grants: %w", err)
		}

		var target *grant.Grant
		for _, g := range existing {
			if g.ValidAt(now) {
				target = g
				break
			}
		}

		if target == nil {
			target = &grant.Grant{
				ID:           id.NewGrantID(),
				TenantID:     tenantID,
				SubjectID:    subjectID,
				ResourceType: resourceType,
				ResourceID:   resourceID,
				Bits:         bits,
				Constraints:  constraints,
				GrantedBy:    grantedBy,
				ExpiresAt:    expiresAt,
			}
		} else {
			target.Bits = bitset.Union(target.Bits, bits)
			target.Constraints = mergeConstraints(target.Constraints, constraints)
			if expiresAt != nil {
				target.ExpiresAt = expiresAt
			}
		}

		err = e.store.UpsertGrant(ctx, target)
		if err == nil {
			return target.ID, nil
		}
		if !errors.Is(err, grant.ErrVersionConflict) {
			return id.GrantID{}, fmt.Errorf("aegis upsert grant: %w", err)
		}
		lastErr = err
	}
	return id.GrantID{}, fmt.Errorf("%w: %v", ErrConflict, lastErr)
}

// clearBits removes bits from every live grant at the given scope,
// revoking grants left empty. Retried per grant on version conflict.
func (e *Engine) clearBits(ctx context.Context, subjectID, tenantID, resourceType string, bits bitset.Bits, now time.Time) error {
	q := &grant.ScopeQuery{SubjectID: grant.Eq(subjectID)}
	if tenantID != "" {
		q.TenantID = grant.Eq(tenantID)
	}
	if resourceType != "" {
		q.ResourceType = grant.Eq(resourceType)
	}

	var lastErr error
	for attempt := 0; attempt < e.config.retries(); attempt++ {
		existing, err := e.store.FindGrants(ctx, q)
		if err != nil {
			return fmt.Errorf("aegis find grants: %w", err)
		}

		conflicted := false
		for _, g := range existing {
			if !g.ValidAt(now) {
				continue
			}
			remaining := bitset.Difference(g.Bits, bits)
			if remaining == g.Bits {
				continue
			}
			if remaining.IsZero() {
				if err := e.store.RevokeGrant(ctx, g.ID, now); err != nil {
					return fmt.Errorf("aegis revoke grant: %w", err)
				}
				continue
			}
			g.Bits = remaining
			if err := e.store.UpsertGrant(ctx, g); err != nil {
				if errors.Is(err, grant.ErrVersionConflict) {
					conflicted = true
					lastErr = err
					continue
				}
				return fmt.Errorf("aegis upsert grant: %w", err)
			}
		}
		if !conflicted {
			return nil
		}
	}
	return fmt.Errorf("%w: %v", ErrConflict, lastErr)
}

// mergeConstraints appends constraints not already present, comparing
// by type and value.
func mergeConstraints(existing, incoming []grant.Constraint) []grant.Constraint {
	for _, c := range incoming {
		dup := false
		for _, have := range existing {
			if have.Type == c.Type && have.Value == c.Value {
				dup = true
				break
			}
		}
		if !dup {
			existing = append(existing, c)
		}
	}
	return existing
}
