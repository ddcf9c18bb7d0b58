// Package sqlite provides a SQLite implementation of the Aegis
// composite store, suitable for embedded and single-node deployments.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
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

// Store is a SQLite implementation of the composite Aegis store.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// Migrate runs programmatic migrations via the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
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

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// ──────────────────────────────────────────────────
// Grant operations
// ──────────────────────────────────────────────────

// UpsertGrant inserts a grant at Version 0 or updates it guarded by the
// version the caller read. Zero rows affected on the guarded UPDATE
// means another writer won the race.
func (s *Store) UpsertGrant(ctx context.Context, g *grant.Grant) error {
	now := time.Now().UTC()

	if g.Version == 0 {
		g.Version = 1
		g.CreatedAt = now
		g.UpdatedAt = now
		m, err := grantToModel(g)
		if err != nil {
			return fmt.Errorf("aegis: insert grant: %w", err)
		}
		if _, err := s.sdb.NewInsert(m).Exec(ctx); err != nil {
			return fmt.Errorf("aegis: insert grant: %w", err)
		}
		return nil
	}

	readVersion := g.Version
	g.Version = readVersion + 1
	g.UpdatedAt = now
	m, err := grantToModel(g)
	if err != nil {
		return fmt.Errorf("aegis: update grant: %w", err)
	}
	res, err := s.sdb.NewUpdate(m).
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
	err := s.sdb.NewSelect(m).Where("id = ?", grantID.String()).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("grant %s: %w", grantID, errNotFound)
		}
		return nil, fmt.Errorf("aegis: get grant: %w", err)
	}
	g, err := grantFromModel(m)
	if err != nil {
		return nil, fmt.Errorf("aegis: get grant: %w", err)
	}
	return g, nil
}

func (s *Store) FindGrants(ctx context.Context, q *grant.ScopeQuery) ([]*grant.Grant, error) {
	var models []grantModel
	sel := s.sdb.NewSelect(&models).OrderExpr("created_at ASC")
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
		g, err := grantFromModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("aegis: find grants: %w", err)
		}
		result[i] = g
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
	m, err := grantToModel(g)
	if err != nil {
		return fmt.Errorf("aegis: revoke grant: %w", err)
	}
	if _, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx); err != nil {
		return fmt.Errorf("aegis: revoke grant: %w", err)
	}
	return nil
}

func (s *Store) ListGrants(ctx context.Context, filter *grant.ListFilter) ([]*grant.Grant, error) {
	var models []grantModel
	q := s.sdb.NewSelect(&models).OrderExpr("created_at ASC")
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
		g, err := grantFromModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("aegis: list grants: %w", err)
		}
		result[i] = g
	}
	return result, nil
}

func (s *Store) CountGrants(ctx context.Context, filter *grant.ListFilter) (int64, error) {
	q := s.sdb.NewSelect((*grantModel)(nil))
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
	_, err := s.sdb.NewDelete((*grantModel)(nil)).
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
	m, err := roleTemplateToModel(r)
	if err != nil {
		return fmt.Errorf("aegis: create role template: %w", err)
	}
	if _, err := s.sdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("aegis: create role template: %w", err)
	}
	return nil
}

func (s *Store) GetRoleTemplate(ctx context.Context, roleID id.RoleID) (*roletemplate.RoleTemplate, error) {
	m := new(roleTemplateModel)
	err := s.sdb.NewSelect(m).Where("id = ?", roleID.String()).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("role template %s: %w", roleID, errNotFound)
		}
		return nil, fmt.Errorf("aegis: get role template: %w", err)
	}
	r, err := roleTemplateFromModel(m)
	if err != nil {
		return nil, fmt.Errorf("aegis: get role template: %w", err)
	}
	return r, nil
}

func (s *Store) GetRoleTemplateBySlug(ctx context.Context, tenantID, slug string) (*roletemplate.RoleTemplate, error) {
	m := new(roleTemplateModel)
	err := s.sdb.NewSelect(m).
		Where("tenant_id = ?", tenantID).
		Where("slug = ?", slug).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("role template slug %q: %w", slug, errNotFound)
		}
		return nil, fmt.Errorf("aegis: get role template by slug: %w", err)
	}
	r, err := roleTemplateFromModel(m)
	if err != nil {
		return nil, fmt.Errorf("aegis: get role template by slug: %w", err)
	}
	return r, nil
}

func (s *Store) UpdateRoleTemplate(ctx context.Context, r *roletemplate.RoleTemplate) error {
	r.UpdatedAt = time.Now().UTC()
	m, err := roleTemplateToModel(r)
	if err != nil {
		return fmt.Errorf("aegis: update role template: %w", err)
	}
	if _, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx); err != nil {
		return fmt.Errorf("aegis: update role template: %w", err)
	}
	return nil
}

func (s *Store) DeleteRoleTemplate(ctx context.Context, roleID id.RoleID) error {
	_, err := s.sdb.NewDelete((*roleTemplateModel)(nil)).
		Where("id = ?", roleID.String()).Exec(ctx)
	if err != nil {
		return fmt.Errorf("aegis: delete role template: %w", err)
	}
	return nil
}

func (s *Store) ListRoleTemplates(ctx context.Context, filter *roletemplate.ListFilter) ([]*roletemplate.RoleTemplate, error) {
	var models []roleTemplateModel
	q := s.sdb.NewSelect(&models).OrderExpr("created_at ASC")
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
		r, err := roleTemplateFromModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("aegis: list role templates: %w", err)
		}
		result[i] = r
	}
	return result, nil
}

func (s *Store) CountRoleTemplates(ctx context.Context, filter *roletemplate.ListFilter) (int64, error) {
	q := s.sdb.NewSelect((*roleTemplateModel)(nil))
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
	_, err := s.sdb.NewDelete((*roleTemplateModel)(nil)).
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
	m, err := invitationToModel(inv)
	if err != nil {
		return fmt.Errorf("aegis: create invitation: %w", err)
	}
	if _, err := s.sdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("aegis: create invitation: %w", err)
	}
	return nil
}

func (s *Store) GetInvitation(ctx context.Context, invID id.InvitationID) (*invitation.Invitation, error) {
	m := new(invitationModel)
	err := s.sdb.NewSelect(m).Where("id = ?", invID.String()).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("invitation %s: %w", invID, errNotFound)
		}
		return nil, fmt.Errorf("aegis: get invitation: %w", err)
	}
	inv, err := invitationFromModel(m)
	if err != nil {
		return nil, fmt.Errorf("aegis: get invitation: %w", err)
	}
	return inv, nil
}

func (s *Store) GetInvitationByToken(ctx context.Context, token string) (*invitation.Invitation, error) {
	m := new(invitationModel)
	err := s.sdb.NewSelect(m).Where("token = ?", token).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("invitation token: %w", errNotFound)
		}
		return nil, fmt.Errorf("aegis: get invitation by token: %w", err)
	}
	inv, err := invitationFromModel(m)
	if err != nil {
		return nil, fmt.Errorf("aegis: get invitation by token: %w", err)
	}
	return inv, nil
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
	m, err := invitationToModel(inv)
	if err != nil {
		return fmt.Errorf("aegis: transition invitation: %w", err)
	}
	res, err := s.sdb.NewUpdate(m).
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
	m, err := invitationToModel(inv)
	if err != nil {
		return fmt.Errorf("aegis: set invitation grant: %w", err)
	}
	if _, err := s.sdb.NewUpdate(m).WherePK().Exec(ctx); err != nil {
		return fmt.Errorf("aegis: set invitation grant: %w", err)
	}
	return nil
}

func (s *Store) ListInvitations(ctx context.Context, filter *invitation.ListFilter) ([]*invitation.Invitation, error) {
	var models []invitationModel
	q := s.sdb.NewSelect(&models).OrderExpr("created_at ASC")
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
		inv, err := invitationFromModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("aegis: list invitations: %w", err)
		}
		result[i] = inv
	}
	return result, nil
}

func (s *Store) CountInvitations(ctx context.Context, filter *invitation.ListFilter) (int64, error) {
	q := s.sdb.NewSelect((*invitationModel)(nil))
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
	_, err := s.sdb.NewDelete((*invitationModel)(nil)).
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
	m, err := decisionLogToModel(e)
	if err != nil {
		return fmt.Errorf("aegis: create decision log: %w", err)
	}
	if _, err := s.sdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("aegis: create decision log: %w", err)
	}
	return nil
}

func (s *Store) GetDecisionLog(ctx context.Context, logID id.DecisionLogID) (*decisionlog.Entry, error) {
	m := new(decisionLogModel)
	err := s.sdb.NewSelect(m).Where("id = ?", logID.String()).Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("decision log %s: %w", logID, errNotFound)
		}
		return nil, fmt.Errorf("aegis: get decision log: %w", err)
	}
	e, err := decisionLogFromModel(m)
	if err != nil {
		return nil, fmt.Errorf("aegis: get decision log: %w", err)
	}
	return e, nil
}

func (s *Store) ListDecisionLogs(ctx context.Context, filter *decisionlog.QueryFilter) ([]*decisionlog.Entry, error) {
	var models []decisionLogModel
	q := s.sdb.NewSelect(&models).OrderExpr("created_at DESC")
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
		e, err := decisionLogFromModel(&models[i])
		if err != nil {
			return nil, fmt.Errorf("aegis: list decision logs: %w", err)
		}
		result[i] = e
	}
	return result, nil
}

func (s *Store) CountDecisionLogs(ctx context.Context, filter *decisionlog.QueryFilter) (int64, error) {
	q := s.sdb.NewSelect((*decisionLogModel)(nil))
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
	res, err := s.sdb.NewDelete((*decisionLogModel)(nil)).
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
	_, err := s.sdb.NewDelete((*decisionLogModel)(nil)).
		Where("tenant_id = ?", tenantID).Exec(ctx)
	if err != nil {
		return fmt.Errorf("aegis: delete decision logs by tenant: %w", err)
	}
	return nil
}
