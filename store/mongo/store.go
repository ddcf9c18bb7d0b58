// Package mongo provides a MongoDB implementation of the Aegis
// composite store backed by grove's mongo driver.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	mongod "go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/aegis/decisionlog"
	"github.com/xraph/aegis/grant"
	"github.com/xraph/aegis/id"
	"github.com/xraph/aegis/invitation"
	"github.com/xraph/aegis/roletemplate"
	"github.com/xraph/aegis/store"
)

// Collection name constants.
const (
	colGrants        = "aegis_grants"
	colRoleTemplates = "aegis_role_templates"
	colInvitations   = "aegis_invitations"
	colDecisionLogs  = "aegis_decision_logs"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// errNotFound is the sentinel for missing entities.
var errNotFound = fmt.Errorf("not found")

// Store is a MongoDB implementation of the composite Aegis store.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// Migrate creates indexes for all aegis collections.
func (s *Store) Migrate(ctx context.Context) error {
	indexes := migrationIndexes()
	for col, models := range indexes {
		if len(models) == 0 {
			continue
		}
		_, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models)
		if err != nil {
			return fmt.Errorf("aegis/mongo: migrate %s indexes: %w", col, err)
		}
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

func now() time.Time {
	return time.Now().UTC()
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongod.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all aegis collections.
func migrationIndexes() map[string][]mongod.IndexModel {
	return map[string][]mongod.IndexModel{
		colGrants: {
			{Keys: bson.D{
				{Key: "subject_id", Value: 1},
				{Key: "tenant_id", Value: 1},
				{Key: "resource_type", Value: 1},
				{Key: "resource_id", Value: 1},
			}},
			{Keys: bson.D{{Key: "tenant_id", Value: 1}}},
			{Keys: bson.D{{Key: "expires_at", Value: 1}}},
		},
		colRoleTemplates: {
			{
				Keys:    bson.D{{Key: "tenant_id", Value: 1}, {Key: "slug", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "tenant_id", Value: 1}}},
		},
		colInvitations: {
			{
				Keys:    bson.D{{Key: "token", Value: 1}},
				Options: options.Index().SetUnique(true),
			},
			{Keys: bson.D{{Key: "tenant_id", Value: 1}}},
			{Keys: bson.D{{Key: "resource_type", Value: 1}, {Key: "resource_id", Value: 1}}},
			{Keys: bson.D{{Key: "invitee_id", Value: 1}, {Key: "status", Value: 1}}},
		},
		colDecisionLogs: {
			{Keys: bson.D{{Key: "tenant_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "subject_id", Value: 1}, {Key: "created_at", Value: -1}}},
			{Keys: bson.D{{Key: "created_at", Value: -1}}},
		},
	}
}

// ──────────────────────────────────────────────────
// Grant operations
// ──────────────────────────────────────────────────

// UpsertGrant inserts a grant at Version 0 or updates it guarded by the
// version the caller read. A filter miss on the guarded update means
// another writer won the race.
func (s *Store) UpsertGrant(ctx context.Context, g *grant.Grant) error {
	t := now()

	if g.Version == 0 {
		g.Version = 1
		g.CreatedAt = t
		g.UpdatedAt = t
		m := grantToModel(g)
		if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
			return fmt.Errorf("aegis: insert grant: %w", err)
		}
		return nil
	}

	readVersion := g.Version
	g.Version = readVersion + 1
	g.UpdatedAt = t
	m := grantToModel(g)
	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID, "version": readVersion}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("aegis: update grant: %w", err)
	}
	if res.MatchedCount() == 0 {
		g.Version = readVersion
		return fmt.Errorf("grant %s at version %d: %w", g.ID, readVersion, grant.ErrVersionConflict)
	}
	return nil
}

func (s *Store) GetGrant(ctx context.Context, grantID id.GrantID) (*grant.Grant, error) {
	var m grantModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": grantID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("grant %s: %w", grantID, errNotFound)
		}
		return nil, fmt.Errorf("aegis: get grant: %w", err)
	}
	return grantFromModel(&m), nil
}

func (s *Store) FindGrants(ctx context.Context, q *grant.ScopeQuery) ([]*grant.Grant, error) {
	var models []grantModel
	f := bson.M{}
	if q != nil {
		f["subject_id"] = scopeValue(q.SubjectID)
		f["tenant_id"] = scopeValue(q.TenantID)
		f["resource_type"] = scopeValue(q.ResourceType)
		f["resource_id"] = scopeValue(q.ResourceID)
	}
	err := s.mdb.NewFind(&models).
		Filter(f).
		Sort(bson.D{{Key: "created_at", Value: 1}}).
		Scan(ctx)
	if err != nil {
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
	g.UpdatedAt = now()
	m := grantToModel(g)
	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("aegis: revoke grant: %w", err)
	}
	if res.MatchedCount() == 0 {
		return fmt.Errorf("grant %s: %w", grantID, errNotFound)
	}
	return nil
}

// liveGrantFilter adds clauses excluding soft-deleted and expired rows.
func liveGrantFilter(f bson.M) bson.M {
	f["deleted_at"] = nil
	f["$or"] = []bson.M{
		{"expires_at": nil},
		{"expires_at": bson.M{"$gt": now()}},
	}
	return f
}

func grantListFilter(filter *grant.ListFilter) bson.M {
	f := bson.M{}
	if filter == nil {
		return f
	}
	if filter.TenantID != "" {
		f["tenant_id"] = filter.TenantID
	}
	if filter.SubjectID != "" {
		f["subject_id"] = filter.SubjectID
	}
	if filter.ResourceType != "" {
		f["resource_type"] = filter.ResourceType
	}
	if filter.ResourceID != "" {
		f["resource_id"] = filter.ResourceID
	}
	if !filter.IncludeDead {
		f = liveGrantFilter(f)
	}
	return f
}

func (s *Store) ListGrants(ctx context.Context, filter *grant.ListFilter) ([]*grant.Grant, error) {
	var models []grantModel
	q := s.mdb.NewFind(&models).
		Filter(grantListFilter(filter)).
		Sort(bson.D{{Key: "created_at", Value: 1}})
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
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
	count, err := s.mdb.NewFind((*grantModel)(nil)).
		Filter(grantListFilter(filter)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("aegis: count grants: %w", err)
	}
	return count, nil
}

func (s *Store) DeleteGrantsByTenant(ctx context.Context, tenantID string) error {
	_, err := s.mdb.NewDelete((*grantModel)(nil)).
		Many().
		Filter(bson.M{"tenant_id": tenantID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("aegis: delete grants by tenant: %w", err)
	}
	return nil
}

// scopeValue maps a ScopeQuery dimension to its stored field value:
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
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("aegis: create role template: %w", err)
	}
	return nil
}

func (s *Store) GetRoleTemplate(ctx context.Context, roleID id.RoleID) (*roletemplate.RoleTemplate, error) {
	var m roleTemplateModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": roleID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("role template %s: %w", roleID, errNotFound)
		}
		return nil, fmt.Errorf("aegis: get role template: %w", err)
	}
	return roleTemplateFromModel(&m), nil
}

func (s *Store) GetRoleTemplateBySlug(ctx context.Context, tenantID, slug string) (*roletemplate.RoleTemplate, error) {
	var m roleTemplateModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"tenant_id": tenantID, "slug": slug}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("role template slug %q: %w", slug, errNotFound)
		}
		return nil, fmt.Errorf("aegis: get role template by slug: %w", err)
	}
	return roleTemplateFromModel(&m), nil
}

func (s *Store) UpdateRoleTemplate(ctx context.Context, r *roletemplate.RoleTemplate) error {
	r.UpdatedAt = now()
	m := roleTemplateToModel(r)
	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("aegis: update role template: %w", err)
	}
	if res.MatchedCount() == 0 {
		return fmt.Errorf("role template %s: %w", r.ID, errNotFound)
	}
	return nil
}

func (s *Store) DeleteRoleTemplate(ctx context.Context, roleID id.RoleID) error {
	_, err := s.mdb.NewDelete((*roleTemplateModel)(nil)).
		Filter(bson.M{"_id": roleID.String()}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("aegis: delete role template: %w", err)
	}
	return nil
}

func roleTemplateListFilter(filter *roletemplate.ListFilter) bson.M {
	f := bson.M{}
	if filter == nil {
		return f
	}
	if filter.TenantID != "" {
		f["tenant_id"] = filter.TenantID
	}
	if filter.IsSystem != nil {
		f["is_system"] = *filter.IsSystem
	}
	if filter.Search != "" {
		f["name"] = bson.M{"$regex": filter.Search, "$options": "i"}
	}
	return f
}

func (s *Store) ListRoleTemplates(ctx context.Context, filter *roletemplate.ListFilter) ([]*roletemplate.RoleTemplate, error) {
	var models []roleTemplateModel
	q := s.mdb.NewFind(&models).
		Filter(roleTemplateListFilter(filter)).
		Sort(bson.D{{Key: "created_at", Value: 1}})
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
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
	count, err := s.mdb.NewFind((*roleTemplateModel)(nil)).
		Filter(roleTemplateListFilter(filter)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("aegis: count role templates: %w", err)
	}
	return count, nil
}

func (s *Store) DeleteRoleTemplatesByTenant(ctx context.Context, tenantID string) error {
	_, err := s.mdb.NewDelete((*roleTemplateModel)(nil)).
		Many().
		Filter(bson.M{"tenant_id": tenantID}).
		Exec(ctx)
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
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("aegis: create invitation: %w", err)
	}
	return nil
}

func (s *Store) GetInvitation(ctx context.Context, invID id.InvitationID) (*invitation.Invitation, error) {
	var m invitationModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": invID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("invitation %s: %w", invID, errNotFound)
		}
		return nil, fmt.Errorf("aegis: get invitation: %w", err)
	}
	return invitationFromModel(&m), nil
}

func (s *Store) GetInvitationByToken(ctx context.Context, token string) (*invitation.Invitation, error) {
	var m invitationModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"token": token}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("invitation token: %w", errNotFound)
		}
		return nil, fmt.Errorf("aegis: get invitation by token: %w", err)
	}
	return invitationFromModel(&m), nil
}

// TransitionStatus is a guarded update on the status field. The filter
// on the expected "from" status makes it a compare-and-swap: of any
// number of concurrent transitions, only one matches a document.
func (s *Store) TransitionStatus(ctx context.Context, invID id.InvitationID, from, to invitation.Status, at time.Time) error {
	inv, err := s.GetInvitation(ctx, invID)
	if err != nil {
		return err
	}
	responded := at.UTC()
	inv.Status = to
	inv.RespondedAt = &responded
	inv.UpdatedAt = now()
	m := invitationToModel(inv)
	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID, "status": string(from)}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("aegis: transition invitation: %w", err)
	}
	if res.MatchedCount() == 0 {
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
	inv.UpdatedAt = now()
	m := invitationToModel(inv)
	res, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.ID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("aegis: set invitation grant: %w", err)
	}
	if res.MatchedCount() == 0 {
		return fmt.Errorf("invitation %s: %w", invID, errNotFound)
	}
	return nil
}

func invitationListFilter(filter *invitation.ListFilter) bson.M {
	f := bson.M{}
	if filter == nil {
		return f
	}
	if filter.TenantID != "" {
		f["tenant_id"] = filter.TenantID
	}
	if filter.ResourceType != "" {
		f["resource_type"] = filter.ResourceType
	}
	if filter.ResourceID != "" {
		f["resource_id"] = filter.ResourceID
	}
	if filter.InviteeID != "" {
		f["invitee_id"] = filter.InviteeID
	}
	if filter.Status != "" {
		f["status"] = string(filter.Status)
	}
	return f
}

func (s *Store) ListInvitations(ctx context.Context, filter *invitation.ListFilter) ([]*invitation.Invitation, error) {
	var models []invitationModel
	q := s.mdb.NewFind(&models).
		Filter(invitationListFilter(filter)).
		Sort(bson.D{{Key: "created_at", Value: 1}})
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
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
	count, err := s.mdb.NewFind((*invitationModel)(nil)).
		Filter(invitationListFilter(filter)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("aegis: count invitations: %w", err)
	}
	return count, nil
}

func (s *Store) DeleteInvitationsByTenant(ctx context.Context, tenantID string) error {
	_, err := s.mdb.NewDelete((*invitationModel)(nil)).
		Many().
		Filter(bson.M{"tenant_id": tenantID}).
		Exec(ctx)
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
	if _, err := s.mdb.NewInsert(m).Exec(ctx); err != nil {
		return fmt.Errorf("aegis: create decision log: %w", err)
	}
	return nil
}

func (s *Store) GetDecisionLog(ctx context.Context, logID id.DecisionLogID) (*decisionlog.Entry, error) {
	var m decisionLogModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": logID.String()}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, fmt.Errorf("decision log %s: %w", logID, errNotFound)
		}
		return nil, fmt.Errorf("aegis: get decision log: %w", err)
	}
	return decisionLogFromModel(&m), nil
}

func decisionLogQueryFilter(filter *decisionlog.QueryFilter) bson.M {
	f := bson.M{}
	if filter == nil {
		return f
	}
	if filter.TenantID != "" {
		f["tenant_id"] = filter.TenantID
	}
	if filter.SubjectID != "" {
		f["subject_id"] = filter.SubjectID
	}
	if filter.ResourceType != "" {
		f["resource_type"] = filter.ResourceType
	}
	if filter.ResourceID != "" {
		f["resource_id"] = filter.ResourceID
	}
	if filter.Permission != "" {
		f["permission"] = filter.Permission
	}
	if filter.Granted != nil {
		f["granted"] = *filter.Granted
	}
	if filter.After != nil || filter.Before != nil {
		dateFilter := bson.M{}
		if filter.After != nil {
			dateFilter["$gte"] = *filter.After
		}
		if filter.Before != nil {
			dateFilter["$lte"] = *filter.Before
		}
		f["created_at"] = dateFilter
	}
	return f
}

func (s *Store) ListDecisionLogs(ctx context.Context, filter *decisionlog.QueryFilter) ([]*decisionlog.Entry, error) {
	var models []decisionLogModel
	q := s.mdb.NewFind(&models).
		Filter(decisionLogQueryFilter(filter)).
		Sort(bson.D{{Key: "created_at", Value: -1}})
	if filter != nil {
		if filter.Limit > 0 {
			q = q.Limit(int64(filter.Limit))
		}
		if filter.Offset > 0 {
			q = q.Skip(int64(filter.Offset))
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
	count, err := s.mdb.NewFind((*decisionLogModel)(nil)).
		Filter(decisionLogQueryFilter(filter)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("aegis: count decision logs: %w", err)
	}
	return count, nil
}

func (s *Store) PurgeDecisionLogs(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.mdb.NewDelete((*decisionLogModel)(nil)).
		Many().
		Filter(bson.M{"created_at": bson.M{"$lt": before}}).
		Exec(ctx)
	if err != nil {
		return 0, fmt.Errorf("aegis: purge decision logs: %w", err)
	}
	return res.DeletedCount(), nil
}

func (s *Store) DeleteDecisionLogsByTenant(ctx context.Context, tenantID string) error {
	_, err := s.mdb.NewDelete((*decisionLogModel)(nil)).
		Many().
		Filter(bson.M{"tenant_id": tenantID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("aegis: delete decision logs by tenant: %w", err)
	}
	return nil
}
