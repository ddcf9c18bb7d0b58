// Package postgres provides a PostgreSQL implementation of the Aegis
// composite store using grove ORM with Go-based migrations.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/aegis/decisionlog"
	"github.com/xraph/aegis/grant"
	"github.com/xraph/aegis/id"
	"github.com/xraph/aegis/invitation"
	"github.com/xraph/aegis/roletemplate"
	"github.com/xraph/aegis/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// errNotFound is the sentinel for missing entities.
var errNotFound = fmt.Errorf("not found")

// Store is a PostgreSQL implementation of the composite Aegis store.
type Store struct {
	db   *grove.DB
	pgdb *pgdriver.PgDB
}

// New creates a new PostgreSQL store.
func New(db *grove.DB) *Store {
	return &Store{
		db:   db,
		pgdb: pgdriver.Unwrap(db),
	}
}

// Migrate runs programmatic migrations via the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pgdb)
	if err != nil {
		return fmt.Errorf("aegis: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("aegis: migration failed: %w", err)
	}
	return nil
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ──────────────────────────────────────────────────
// Grant operations
// ──────────────────────────────────────────────────

// UpsertGrant inserts a grant at Version 0 or updates it guarded by the
// version the caller read. The guarded UPDATE is the optimistic
// concurrency point: zero rows affected means another writer won.
func (s *Store) UpsertGrant(ctx context.Context, g *grant.Grant) error {
	now := time.Now().UTC()

	if g.Version == 0 {
		g.Version = 1
		g.CreatedAt = now
		g.UpdatedAt = now
		m := grantToModel(g)
		if _, err := s.pgdb.NewInsert(m).Exec(ctx); err != nil {
			return fmt.Errorf("aegis: insert grant: %w", err)
		}
		return nil
	}

	readVersion := g.Version
	g.Version = readVersion + 1
	g.UpdatedAt = now
	m := grantToModel(g)
	res, err := s.pgdb.NewUpdate(m).
		Where("id = ?", m.ID).
		Where("version = ?", readVersion).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("aegis: update grant: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("aegis: update grant rows: %w", err)
	}
	if n == 0 {
		g.Version = readVersion
		return fmt.Errorf("grant %s at version %d: %w", g.ID, readVersion, grant.ErrVersionConflict)
	}
	return nil
}

func (s *Store) GetGrant(ctx context.Context, grantID id.GrantID) (*grant.Grant, error) {
	m := new(grantModel)
	err := s.pgdb.NewSelect(m).Where("id = ?", grantID.String()).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("grant %s: %w", grantID, errNotFound)
		}
		return nil, fmt.Errorf("aegis: get grant: %w", err)
	}
	return grantFromModel(m), nil
}

func (s *Store) FindGrants(ctx context.Context, q *grant.ScopeQuery) ([]*grant.Grant, error) {
	var models []grantModel
	sel := s.pgdb.NewSelect(&models).OrderExpr("created_at ASC")
	if q != nil {
		sel = sel.Where("subject_id = ?", scopeValue(q.SubjectID)).
			Where("tenant_id = ?", scopeValue(q.TenantID)).
			Where("resource_type = ?", scopeValue(q.ResourceType)).
			Where("resource_id = ?", scopeValue(q.ResourceID))
	}
	if err := sel.Scan(ctx); err != nil {
		return nil, fmt.Errorf("aegis: find grants: %w", err)
	}
	result := make([]*grant.Grant, len(models))
	for i := range models {
		result[i] = grantFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) RevokeGrant(ctx context.Context, grantID id.GrantID, at time.Time) error {
	g, err := s.GetGrant(ctx, grantID)
	if err != nil {
		return err
	}
	expires := at.UTC()
	g.ExpiresAt = &expires
	g.Version++
	g.UpdatedAt = time.Now().UTC()
	m := grantToModel(g)
	if _, err := s.pgdb.NewUpdate(m).WherePK().Exec(ctx); err != nil {
		return fmt.Errorf("aegis: revoke grant: %w", err)
	}
	return nil
}

func (s *Store) ListGrants(ctx context.Context, filter *grant.ListFilter) ([]*grant.Grant, error) {
	var models []grantModel
	q := s.pgdb.NewSelect(&models).OrderExpr("created_at ASC")
	if filter != nil {
		if filter.TenantID != "" {
			q = q.Where("tenant_id = ?", filter.TenantID)
		}
		if filter.SubjectID != "" {
			q = q.Where("subject_id = ?", filter.SubjectID)
		}
		if filter.ResourceType != "" {
			q = q.Where("resource_type = ?", filter.ResourceType)
		}
		if filter.ResourceID != "" {
			q = q.Where("resource_id = ?", filter.ResourceID)
		}
		if !filter.IncludeDead {
			q = q.Where("deleted_at IS NULL").
				Where("(expires_at IS NULL OR expires_at > ?)", time.Now().UTC())
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("aegis: list grants: %w", err)
	}
	result := make([]*grant.Grant, len(models))
	for i := range models {
		result[i] = grantFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountGrants(ctx context.Context, filter *grant.ListFilter) (int64, error) {
	q := s.pgdb.NewSelect((*grantModel)(nil))
	if filter != nil {
		if filter.TenantID != "" {
			q = q.Where("tenant_id = ?", filter.TenantID)
		}
		if filter.SubjectID != "" {
			q = q.Where("subject_id = ?", filter.SubjectID)
		}
		if filter.ResourceType != "" {
			q = q.Where("resource_type = ?", filter.ResourceType)
		}
		if filter.ResourceID != "" {
			q = q.Where("resource_id = ?", filter.ResourceID)
		}
		if !filter.IncludeDead {
			q = q.Where("deleted_at IS NULL").
				Where("(expires_at IS NULL OR expires_at > ?)", time.Now().UTC())
		}
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("aegis: count grants: %w", err)
	}
	return count, nil
}

func (s *Store) DeleteGrantsByTenant(ctx context.Context, tenantID string) error {
	_, err := s.pgdb.NewDelete((*grantModel)(nil)).
		Where("tenant_id = ?", tenantID).Exec(ctx)
	if err != nil {
		return fmt.Errorf("aegis: delete grants by tenant: %w", err)
	}
	return nil
}

// scopeValue maps a ScopeQuery dimension to its stored column value:
// nil selects the stored null (empty string), non-nil an exact match.
func scopeValue(dim *string) string {
	if dim == nil {
		return ""
	}
	return *dim
}

// ──────────────────────────────────────────────────
// Role template operations
// ──────────────────────────────────────────────────

func (s *Store) CreateRoleTemplate(ctx context.Context, r *roletemplate.RoleTemplate) error {
	m := roleTemplateToModel(r)
	if _, err := s.pgdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("aegis: create role template: %w", err)
	}
	return nil
}

func (s *Store) GetRoleTemplate(ctx context.Context, roleID id.RoleID) (*roletemplate.RoleTemplate, error) {
	m := new(roleTemplateModel)
	err := s.pgdb.NewSelect(m).Where("id = ?", roleID.String()).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("role template %s: %w", roleID, errNotFound)
		}
		return nil, fmt.Errorf("aegis: get role template: %w", err)
	}
	return roleTemplateFromModel(m), nil
}

func (s *Store) GetRoleTemplateBySlug(ctx context.Context, tenantID, slug string) (*roletemplate.RoleTemplate, error) {
	m := new(roleTemplateModel)
	err := s.pgdb.NewSelect(m).
		Where("tenant_id = ?", tenantID).
		Where("slug = ?", slug).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("role template slug %q: %w", slug, errNotFound)
		}
		return nil, fmt.Errorf("aegis: get role template by slug: %w", err)
	}
	return roleTemplateFromModel(m), nil
}

func (s *Store) UpdateRoleTemplate(ctx context.Context, r *roletemplate.RoleTemplate) error {
	r.UpdatedAt = time.Now().UTC()
	m := roleTemplateToModel(r)
	_, err := s.pgdb.NewUpdate(m).WherePK().Exec(ctx)
	if err != nil {
		return fmt.Errorf("aegis: update role template: %w", err)
	}
	return nil
}

func (s *Store) DeleteRoleTemplate(ctx context.Context, roleID id.RoleID) error {
	_, err := s.pgdb.NewDelete((*roleTemplateModel)(nil)).
		Where("id = ?", roleID.String()).Exec(ctx)
	if err != nil {
		return fmt.Errorf("aegis: delete role template: %w", err)
	}
	return nil
}

func (s *Store) ListRoleTemplates(ctx context.Context, filter *roletemplate.ListFilter) ([]*roletemplate.RoleTemplate, error) {
	var models []roleTemplateModel
	q := s.pgdb.NewSelect(&models).OrderExpr("created_at ASC")
	if filter != nil {
		if filter.TenantID != "" {
			q = q.Where("tenant_id = ?", filter.TenantID)
		}
		if filter.IsSystem != nil {
			q = q.Where("is_system = ?", *filter.IsSystem)
		}
		if filter.Search != "" {
			q = q.Where("LOWER(name) LIKE LOWER(?)", "%"+filter.Search+"%")
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("aegis: list role templates: %w", err)
	}
	result := make([]*roletemplate.RoleTemplate, len(models))
	for i := range models {
		result[i] = roleTemplateFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountRoleTemplates(ctx context.Context, filter *roletemplate.ListFilter) (int64, error) {
	q := s.pgdb.NewSelect((*roleTemplateModel)(nil))
	if filter != nil {
		if filter.TenantID != "" {
			q = q.Where("tenant_id = ?", filter.TenantID)
		}
		if filter.IsSystem != nil {
			q = q.Where("is_system = ?", *filter.IsSystem)
		}
		if filter.Search != "" {
			q = q.Where("LOWER(name) LIKE LOWER(?)", "%"+filter.Search+"%")
		}
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("aegis: count role templates: %w", err)
	}
	return count, nil
}

func (s *Store) DeleteRoleTemplatesByTenant(ctx context.Context, tenantID string) error {
	_, err := s.pgdb.NewDelete((*roleTemplateModel)(nil)).
		Where("tenant_id = ?", tenantID).Exec(ctx)
	if err != nil {
		return fmt.Errorf("aegis: delete role templates by tenant: %w", err)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Invitation operations
// ──────────────────────────────────────────────────

func (s *Store) CreateInvitation(ctx context.Context, inv *invitation.Invitation) error {
	m := invitationToModel(inv)
	if _, err := s.pgdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("aegis: create invitation: %w", err)
	}
	return nil
}

func (s *Store) GetInvitation(ctx context.Context, invID id.InvitationID) (*invitation.Invitation, error) {
	m := new(invitationModel)
	err := s.pgdb.NewSelect(m).Where("id = ?", invID.String()).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("invitation %s: %w", invID, errNotFound)
		}
		return nil, fmt.Errorf("aegis: get invitation: %w", err)
	}
	return invitationFromModel(m), nil
}

func (s *Store) GetInvitationByToken(ctx context.Context, token string) (*invitation.Invitation, error) {
	m := new(invitationModel)
	err := s.pgdb.NewSelect(m).Where("token = ?", token).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("invitation token: %w", errNotFound)
		}
		return nil, fmt.Errorf("aegis: get invitation by token: %w", err)
	}
	return invitationFromModel(m), nil
}

// TransitionStatus is a guarded UPDATE on the status column. The WHERE
// on the expected "from" status makes it a compare-and-swap: of any
// number of concurrent transitions, only one affects a row.
func (s *Store) TransitionStatus(ctx context.Context, invID id.InvitationID, from, to invitation.Status, at time.Time) error {
	inv, err := s.GetInvitation(ctx, invID)
	if err != nil {
		return err
	}
	responded := at.UTC()
	inv.Status = to
	inv.RespondedAt = &responded
	inv.UpdatedAt = time.Now().UTC()
	m := invitationToModel(inv)
	res, err := s.pgdb.NewUpdate(m).
		Where("id = ?", m.ID).
		Where("status = ?", string(from)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("aegis: transition invitation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("aegis: transition invitation rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("invitation %s from %s: %w", invID, from, invitation.ErrStaleTransition)
	}
	return nil
}

func (s *Store) SetInvitationGrant(ctx context.Context, invID id.InvitationID, grantID id.GrantID) error {
	inv, err := s.GetInvitation(ctx, invID)
	if err != nil {
		return err
	}
	inv.GrantID = grantID
	inv.UpdatedAt = time.Now().UTC()
	m := invitationToModel(inv)
	if _, err := s.pgdb.NewUpdate(m).WherePK().Exec(ctx); err != nil {
		return fmt.Errorf("aegis: set invitation grant: %w", err)
	}
	return nil
}

func (s *Store) ListInvitations(ctx context.Context, filter *invitation.ListFilter) ([]*invitation.Invitation, error) {
	var models []invitationModel
	q := s.pgdb.NewSelect(&models).OrderExpr("created_at ASC")
	if filter != nil {
		if filter.TenantID != "" {
			q = q.Where("tenant_id = ?", filter.TenantID)
		}
		if filter.ResourceType != "" {
			q = q.Where("resource_type = ?", filter.ResourceType)
		}
		if filter.ResourceID != "" {
			q = q.Where("resource_id = ?", filter.ResourceID)
		}
		if filter.InviteeID != "" {
			q = q.Where("invitee_id = ?", filter.InviteeID)
		}
		if filter.Status != "" {
			q = q.Where("status = ?", string(filter.Status))
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("aegis: list invitations: %w", err)
	}
	result := make([]*invitation.Invitation, len(models))
	for i := range models {
		result[i] = invitationFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountInvitations(ctx context.Context, filter *invitation.ListFilter) (int64, error) {
	q := s.pgdb.NewSelect((*invitationModel)(nil))
	if filter != nil {
		if filter.TenantID != "" {
			q = q.Where("tenant_id = ?", filter.TenantID)
		}
		if filter.ResourceType != "" {
			q = q.Where("resource_type = ?", filter.ResourceType)
		}
		if filter.ResourceID != "" {
			q = q.Where("resource_id = ?", filter.ResourceID)
		}
		if filter.InviteeID != "" {
			q = q.Where("invitee_id = ?", filter.InviteeID)
		}
		if filter.Status != "" {
			q = q.Where("status = ?", string(filter.Status))
		}
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("aegis: count invitations: %w", err)
	}
	return count, nil
}

func (s *Store) DeleteInvitationsByTenant(ctx context.Context, tenantID string) error {
	_, err := s.pgdb.NewDelete((*invitationModel)(nil)).
		Where("tenant_id = ?", tenantID).Exec(ctx)
	if err != nil {
		return fmt.Errorf("aegis: delete invitations by tenant: %w", err)
	}
	return nil
}

// ──────────────────────────────────────────────────
// Decision log operations
// ──────────────────────────────────────────────────

func (s *Store) CreateDecisionLog(ctx context.Context, e *decisionlog.Entry) error {
	m := decisionLogToModel(e)
	if _, err := s.pgdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("aegis: create decision log: %w", err)
	}
	return nil
}

func (s *Store) GetDecisionLog(ctx context.Context, logID id.DecisionLogID) (*decisionlog.Entry, error) {
	m := new(decisionLogModel)
	err := s.pgdb.NewSelect(m).Where("id = ?", logID.String()).Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("decision log %s: %w", logID, errNotFound)
		}
		return nil, fmt.Errorf("aegis: get decision log: %w", err)
	}
	return decisionLogFromModel(m), nil
}

func (s *Store) ListDecisionLogs(ctx context.Context, filter *decisionlog.QueryFilter) ([]*decisionlog.Entry, error) {
	var models []decisionLogModel
	q := s.pgdb.NewSelect(&models).OrderExpr("created_at DESC")
	if filter != nil {
		if filter.TenantID != "" {
			q = q.Where("tenant_id = ?", filter.TenantID)
		}
		if filter.SubjectID != "" {
			q = q.Where("subject_id = ?", filter.SubjectID)
		}
		if filter.ResourceType != "" {
			q = q.Where("resource_type = ?", filter.ResourceType)
		}
		if filter.ResourceID != "" {
			q = q.Where("resource_id = ?", filter.ResourceID)
		}
		if filter.Permission != "" {
			q = q.Where("permission = ?", filter.Permission)
		}
		if filter.Granted != nil {
			q = q.Where("granted = ?", *filter.Granted)
		}
		if filter.After != nil {
			q = q.Where("created_at >= ?", *filter.After)
		}
		if filter.Before != nil {
			q = q.Where("created_at <= ?", *filter.Before)
		}
		if filter.Limit > 0 {
			q = q.Limit(filter.Limit)
		}
		if filter.Offset > 0 {
			q = q.Offset(filter.Offset)
		}
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("aegis: list decision logs: %w", err)
	}
	result := make([]*decisionlog.Entry, len(models))
	for i := range models {
		result[i] = decisionLogFromModel(&models[i])
	}
	return result, nil
}

func (s *Store) CountDecisionLogs(ctx context.Context, filter *decisionlog.QueryFilter) (int64, error) {
	q := s.pgdb.NewSelect((*decisionLogModel)(nil))
	if filter != nil {
		if filter.TenantID != "" {
			q = q.Where("tenant_id = ?", filter.TenantID)
		}
		if filter.SubjectID != "" {
			q = q.Where("subject_id = ?", filter.SubjectID)
		}
		if filter.ResourceType != "" {
			q = q.Where("resource_type = ?", filter.ResourceType)
		}
		if filter.ResourceID != "" {
			q = q.Where("resource_id = ?", filter.ResourceID)
		}
		if filter.Permission != "" {
			q = q.Where("permission = ?", filter.Permission)
		}
		if filter.Granted != nil {
			q = q.Where("granted = ?", *filter.Granted)
		}
		if filter.After != nil {
			q = q.Where("created_at >= ?", *filter.After)
		}
		if filter.Before != nil {
			q = q.Where("created_at <= ?", *filter.Before)
		}
	}
	count, err := q.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("aegis: count decision logs: %w", err)
	}
	return count, nil
}

func (s *Store) PurgeDecisionLogs(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.pgdb.NewDelete((*decisionLogModel)(nil)).
		Where("created_at < ?", before).Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("aegis: purge decision logs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("aegis: purge decision logs rows: %w", err)
	}
	return n, nil
}

func (s *Store) DeleteDecisionLogsByTenant(ctx context.Context, tenantID string) error {
	_, err := s.pgdb.NewDelete((*decisionLogModel)(nil)).
		Where("tenant_id = ?", tenantID).Exec(ctx)
	if err != nil {
		return fmt.Errorf("aegis: delete decision logs by tenant: %w", err)
	}
	return nil
}
