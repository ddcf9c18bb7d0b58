// Package memory provides an in-memory implementation of the Aegis composite
// store. It is intended for testing and development.
package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/xraph/aegis/decisionlog"
	"github.com/xraph/aegis/grant"
	"github.com/xraph/aegis/id"
	"github.com/xraph/aegis/invitation"
	"github.com/xraph/aegis/roletemplate"
)

// Compile-time interface checks.
var (
	_ grant.Store        = (*Store)(nil)
	_ roletemplate.Store = (*Store)(nil)
	_ invitation.Store   = (*Store)(nil)
	_ decisionlog.Store  = (*Store)(nil)
)

// Store is a thread-safe in-memory store for all Aegis entities.
type Store struct {
	mu sync.RWMutex

	grants        map[string]*grant.Grant
	roles         map[string]*roletemplate.RoleTemplate
	invitations   map[string]*invitation.Invitation
	invTokens     map[string]string // token -> invitation ID
	decisionLogs  map[string]*decisionlog.Entry
	decisionOrder []string // insertion order for stable listings
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		grants:       make(map[string]*grant.Grant),
		roles:        make(map[string]*roletemplate.RoleTemplate),
		invitations:  make(map[string]*invitation.Invitation),
		invTokens:    make(map[string]string),
		decisionLogs: make(map[string]*decisionlog.Entry),
	}
}

// Migrate is a no-op for the memory store.
func (s *Store) Migrate(_ context.Context) error { return nil }

// Ping is a no-op for the memory store.
func (s *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (s *Store) Close() error { return nil }

// ──────────────────────────────────────────────────
// Grant Store
// ──────────────────────────────────────────────────

func (s *Store) UpsertGrant(_ context.Context, g *grant.Grant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	key := g.ID.String()
	stored, ok := s.grants[key]
	if !ok {
		g.Version = 1
		g.CreatedAt = now
		g.UpdatedAt = now
		s.grants[key] = copyGrant(g)
		return nil
	}

	if stored.Version != g.Version {
		return fmt.Errorf("grant %s: stored version %d, got %d: %w",
			g.ID, stored.Version, g.Version, grant.ErrVersionConflict)
	}
	g.Version = stored.Version + 1
	g.CreatedAt = stored.CreatedAt
	g.UpdatedAt = now
	s.grants[key] = copyGrant(g)
	return nil
}

func (s *Store) GetGrant(_ context.Context, grantID id.GrantID) (*grant.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.grants[grantID.String()]
	if !ok {
		return nil, fmt.Errorf("grant %s: %w", grantID, errNotFound)
	}
	return copyGrant(g), nil
}

func (s *Store) FindGrants(_ context.Context, q *grant.ScopeQuery) ([]*grant.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*grant.Grant
	for _, g := range s.grants {
		if q == nil || q.Matches(g) {
			result = append(result, copyGrant(g))
		}
	}
	return result, nil
}

func (s *Store) RevokeGrant(_ context.Context, grantID id.GrantID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.grants[grantID.String()]
	if !ok {
		return fmt.Errorf("grant %s: %w", grantID, errNotFound)
	}
	at = at.UTC()
	g.ExpiresAt = &at
	g.Version++
	g.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) ListGrants(_ context.Context, filter *grant.ListFilter) ([]*grant.Grant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	now := time.Now().UTC()
	result := make([]*grant.Grant, 0, len(s.grants))
	for _, g := range s.grants {
		if filter != nil {
			if filter.TenantID != "" && g.TenantID != filter.TenantID {
				continue
			}
			if filter.SubjectID != "" && g.SubjectID != filter.SubjectID {
				continue
			}
			if filter.ResourceType != "" && g.ResourceType != filter.ResourceType {
				continue
			}
			if filter.ResourceID != "" && g.ResourceID != filter.ResourceID {
				continue
			}
			if !filter.IncludeDead && !g.ValidAt(now) {
				continue
			}
		}
		result = append(result, copyGrant(g))
	}
	return applyPagination(result, paginationOptsGrant(filter)), nil
}

func (s *Store) CountGrants(ctx context.Context, filter *grant.ListFilter) (int64, error) {
	list, err := s.ListGrants(ctx, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(list)), nil
}

func (s *Store) DeleteGrantsByTenant(_ context.Context, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, g := range s.grants {
		if g.TenantID == tenantID {
			delete(s.grants, k)
		}
	}
	return nil
}

// ──────────────────────────────────────────────────
// Role Template Store
// ──────────────────────────────────────────────────

func (s *Store) CreateRoleTemplate(_ context.Context, r *roletemplate.RoleTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roles[r.ID.String()] = copyRoleTemplate(r)
	return nil
}

func (s *Store) GetRoleTemplate(_ context.Context, roleID id.RoleID) (*roletemplate.RoleTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[roleID.String()]
	if !ok {
		return nil, fmt.Errorf("role template %s: %w", roleID, errNotFound)
	}
	return copyRoleTemplate(r), nil
}

func (s *Store) GetRoleTemplateBySlug(_ context.Context, tenantID, slug string) (*roletemplate.RoleTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.roles {
		if r.TenantID == tenantID && r.Slug == slug {
			return copyRoleTemplate(r), nil
		}
	}
	return nil, fmt.Errorf("role template slug %q: %w", slug, errNotFound)
}

func (s *Store) UpdateRoleTemplate(_ context.Context, r *roletemplate.RoleTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[r.ID.String()]; !ok {
		return fmt.Errorf("role template %s: %w", r.ID, errNotFound)
	}
	s.roles[r.ID.String()] = copyRoleTemplate(r)
	return nil
}

func (s *Store) DeleteRoleTemplate(_ context.Context, roleID id.RoleID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.roles, roleID.String())
	return nil
}

func (s *Store) ListRoleTemplates(_ context.Context, filter *roletemplate.ListFilter) ([]*roletemplate.RoleTemplate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*roletemplate.RoleTemplate, 0, len(s.roles))
	for _, r := range s.roles {
		if filter != nil {
			if filter.TenantID != "" && r.TenantID != filter.TenantID {
				continue
			}
			if filter.IsSystem != nil && r.IsSystem != *filter.IsSystem {
				continue
			}
			if filter.Search != "" && !strings.Contains(strings.ToLower(r.Name), strings.ToLower(filter.Search)) {
				continue
			}
		}
		result = append(result, copyRoleTemplate(r))
	}
	return applyPagination(result, paginationOptsRole(filter)), nil
}

func (s *Store) CountRoleTemplates(ctx context.Context, filter *roletemplate.ListFilter) (int64, error) {
	list, err := s.ListRoleTemplates(ctx, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(list)), nil
}

func (s *Store) DeleteRoleTemplatesByTenant(_ context.Context, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, r := range s.roles {
		if r.TenantID == tenantID {
			delete(s.roles, k)
		}
	}
	return nil
}

// ──────────────────────────────────────────────────
// Invitation Store
// ──────────────────────────────────────────────────

func (s *Store) CreateInvitation(_ context.Context, inv *invitation.Invitation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.invitations[inv.ID.String()] = copyInvitation(inv)
	if inv.Token != "" {
		s.invTokens[inv.Token] = inv.ID.String()
	}
	return nil
}

func (s *Store) GetInvitation(_ context.Context, invID id.InvitationID) (*invitation.Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	inv, ok := s.invitations[invID.String()]
	if !ok {
		return nil, fmt.Errorf("invitation %s: %w", invID, errNotFound)
	}
	return copyInvitation(inv), nil
}

func (s *Store) GetInvitationByToken(_ context.Context, token string) (*invitation.Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key, ok := s.invTokens[token]
	if !ok {
		return nil, fmt.Errorf("invitation token: %w", errNotFound)
	}
	inv, ok := s.invitations[key]
	if !ok {
		return nil, fmt.Errorf("invitation token: %w", errNotFound)
	}
	return copyInvitation(inv), nil
}

func (s *Store) TransitionStatus(_ context.Context, invID id.InvitationID, from, to invitation.Status, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invitations[invID.String()]
	if !ok {
		return fmt.Errorf("invitation %s: %w", invID, errNotFound)
	}
	if inv.Status != from {
		return fmt.Errorf("invitation %s: status %s, expected %s: %w",
			invID, inv.Status, from, invitation.ErrStaleTransition)
	}
	at = at.UTC()
	inv.Status = to
	inv.RespondedAt = &at
	inv.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) SetInvitationGrant(_ context.Context, invID id.InvitationID, grantID id.GrantID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	inv, ok := s.invitations[invID.String()]
	if !ok {
		return fmt.Errorf("invitation %s: %w", invID, errNotFound)
	}
	inv.GrantID = grantID
	inv.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) ListInvitations(_ context.Context, filter *invitation.ListFilter) ([]*invitation.Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*invitation.Invitation, 0, len(s.invitations))
	for _, inv := range s.invitations {
		if filter != nil {
			if filter.TenantID != "" && inv.TenantID != filter.TenantID {
				continue
			}
			if filter.ResourceType != "" && inv.ResourceType != filter.ResourceType {
				continue
			}
			if filter.ResourceID != "" && inv.ResourceID != filter.ResourceID {
				continue
			}
			if filter.InviteeID != "" && inv.InviteeID != filter.InviteeID {
				continue
			}
			if filter.Status != "" && inv.Status != filter.Status {
				continue
			}
		}
		result = append(result, copyInvitation(inv))
	}
	return applyPagination(result, paginationOptsInv(filter)), nil
}

func (s *Store) CountInvitations(ctx context.Context, filter *invitation.ListFilter) (int64, error) {
	list, err := s.ListInvitations(ctx, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(list)), nil
}

func (s *Store) DeleteInvitationsByTenant(_ context.Context, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, inv := range s.invitations {
		if inv.TenantID == tenantID {
			delete(s.invitations, k)
			delete(s.invTokens, inv.Token)
		}
	}
	return nil
}

// ──────────────────────────────────────────────────
// Decision Log Store
// ──────────────────────────────────────────────────

func (s *Store) CreateDecisionLog(_ context.Context, e *decisionlog.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := e.ID.String()
	s.decisionLogs[key] = copyDecisionLog(e)
	s.decisionOrder = append(s.decisionOrder, key)
	return nil
}

func (s *Store) GetDecisionLog(_ context.Context, logID id.DecisionLogID) (*decisionlog.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.decisionLogs[logID.String()]
	if !ok {
		return nil, fmt.Errorf("decision log %s: %w", logID, errNotFound)
	}
	return copyDecisionLog(e), nil
}

func (s *Store) ListDecisionLogs(_ context.Context, filter *decisionlog.QueryFilter) ([]*decisionlog.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*decisionlog.Entry, 0, len(s.decisionLogs))
	for _, key := range s.decisionOrder {
		e, ok := s.decisionLogs[key]
		if !ok {
			continue
		}
		if filter != nil {
			if filter.TenantID != "" && e.TenantID != filter.TenantID {
				continue
			}
			if filter.SubjectID != "" && e.SubjectID != filter.SubjectID {
				continue
			}
			if filter.ResourceType != "" && e.ResourceType != filter.ResourceType {
				continue
			}
			if filter.ResourceID != "" && e.ResourceID != filter.ResourceID {
				continue
			}
			if filter.Permission != "" && e.Permission != filter.Permission {
				continue
			}
			if filter.Granted != nil && e.Granted != *filter.Granted {
				continue
			}
			if filter.After != nil && e.CreatedAt.Before(*filter.After) {
				continue
			}
			if filter.Before != nil && e.CreatedAt.After(*filter.Before) {
				continue
			}
		}
		result = append(result, copyDecisionLog(e))
	}
	return applyPagination(result, paginationOptsDL(filter)), nil
}

func (s *Store) CountDecisionLogs(ctx context.Context, filter *decisionlog.QueryFilter) (int64, error) {
	list, err := s.ListDecisionLogs(ctx, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(list)), nil
}

func (s *Store) PurgeDecisionLogs(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var count int64
	kept := s.decisionOrder[:0]
	for _, key := range s.decisionOrder {
		e, ok := s.decisionLogs[key]
		if !ok {
			continue
		}
		if e.CreatedAt.Before(before) {
			delete(s.decisionLogs, key)
			count++
			continue
		}
		kept = append(kept, key)
	}
	s.decisionOrder = kept
	return count, nil
}

func (s *Store) DeleteDecisionLogsByTenant(_ context.Context, tenantID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.decisionOrder[:0]
	for _, key := range s.decisionOrder {
		e, ok := s.decisionLogs[key]
		if !ok {
			continue
		}
		if e.TenantID == tenantID {
			delete(s.decisionLogs, key)
			continue
		}
		kept = append(kept, key)
	}
	s.decisionOrder = kept
	return nil
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

var errNotFound = fmt.Errorf("not found")

func copyGrant(g *grant.Grant) *grant.Grant {
	c := *g
	if g.Constraints != nil {
		c.Constraints = make([]grant.Constraint, len(g.Constraints))
		copy(c.Constraints, g.Constraints)
	}
	return &c
}

func copyRoleTemplate(r *roletemplate.RoleTemplate) *roletemplate.RoleTemplate {
	c := *r
	if r.Templates != nil {
		c.Templates = make([]roletemplate.PermissionTemplate, len(r.Templates))
		copy(c.Templates, r.Templates)
	}
	return &c
}

func copyInvitation(inv *invitation.Invitation) *invitation.Invitation {
	c := *inv
	if inv.Constraints != nil {
		c.Constraints = make([]grant.Constraint, len(inv.Constraints))
		copy(c.Constraints, inv.Constraints)
	}
	return &c
}

func copyDecisionLog(e *decisionlog.Entry) *decisionlog.Entry {
	c := *e
	return &c
}

// Pagination helpers.
type pagOpts struct{ limit, offset int }

func applyPagination[T any](items []*T, p pagOpts) []*T {
	if p.offset > 0 && p.offset < len(items) {
		items = items[p.offset:]
	} else if p.offset >= len(items) && p.offset > 0 {
		return nil
	}
	if p.limit > 0 && p.limit < len(items) {
		items = items[:p.limit]
	}
	return items
}

func paginationOptsGrant(f *grant.ListFilter) pagOpts {
	if f == nil {
		return pagOpts{}
	}
	return pagOpts{limit: f.Limit, offset: f.Offset}
}

func paginationOptsRole(f *roletemplate.ListFilter) pagOpts {
	if f == nil {
		return pagOpts{}
	}
	return pagOpts{limit: f.Limit, offset: f.Offset}
}

func paginationOptsInv(f *invitation.ListFilter) pagOpts {
	if f == nil {
		return pagOpts{}
	}
	return pagOpts{limit: f.Limit, offset: f.Offset}
}

func paginationOptsDL(f *decisionlog.QueryFilter) pagOpts {
	if f == nil {
		return pagOpts{}
	}
	return pagOpts{limit: f.Limit, offset: f.Offset}
}
