// Package grant defines the Grant entity — the unit of stored
// authorization state — and its store interface.
package grant

import (
	"time"

	"github.com/xraph/aegis/bitset"
	"github.com/xraph/aegis/id"
)

// Grant is one row of authorization state. Its scope is the combination
// of subject, tenant, resource type, and resource instance; an empty
// string in any of those fields means "not bound to that dimension"
// (a default grant, a global grant, and so on).
//
// Grants are never physically deleted. Revocation sets ExpiresAt to the
// revocation time; validity is derived, not stored.
type Grant struct {
	ID           id.GrantID         `json:"id" db:"id"`
	TenantID     string             `json:"tenant_id,omitempty" db:"tenant_id"`
	AppID        string             `json:"app_id,omitempty" db:"app_id"`
	SubjectID    string             `json:"subject_id,omitempty" db:"subject_id"`
	ResourceType string             `json:"resource_type,omitempty" db:"resource_type"`
	ResourceID   string             `json:"resource_id,omitempty" db:"resource_id"`
	Bits         bitset.Bits        `json:"bits" db:"-"`
	Constraints  []Constraint       `json:"constraints,omitempty" db:"-"`
	GrantedBy    string             `json:"granted_by,omitempty" db:"granted_by"`
	ExpiresAt    *time.Time         `json:"expires_at,omitempty" db:"expires_at"`
	DeletedAt    *time.Time         `json:"deleted_at,omitempty" db:"deleted_at"`
	Version      int64              `json:"version" db:"version"`
	Metadata     map[string]any     `json:"metadata,omitempty" db:"metadata"`
	CreatedAt    time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time          `json:"updated_at" db:"updated_at"`
}

// ValidAt reports whether the grant is live at the given instant:
// not soft-deleted and not expired. A grant whose ExpiresAt equals now
// is already invalid; a nil ExpiresAt never expires.
func (g *Grant) ValidAt(now time.Time) bool {
	if g.DeletedAt != nil {
		return false
	}
	if g.ExpiresAt != nil && !now.Before(*g.ExpiresAt) {
		return false
	}
	return true
}

// Constraint is a conditional restriction on a grant, evaluated against
// the request context at resolution time. An expired constraint no
// longer binds. The (Type, Value, ExpiresAt) triple is the canonical
// serialized shape.
type Constraint struct {
	Type      string     `json:"type"`
	Value     string     `json:"value"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// ActiveAt reports whether the constraint still binds at the given instant.
func (c Constraint) ActiveAt(now time.Time) bool {
	return c.ExpiresAt == nil || now.Before(*c.ExpiresAt)
}

// ScopeQuery selects grants by exact scope. Each dimension matches
// either an exact stored value (non-nil pointer) or the stored null
// (nil pointer, i.e. the empty string in the row).
type ScopeQuery struct {
	SubjectID    *string `json:"subject_id,omitempty"`
	TenantID     *string `json:"tenant_id,omitempty"`
	ResourceType *string `json:"resource_type,omitempty"`
	ResourceID   *string `json:"resource_id,omitempty"`
}

// Matches reports whether a grant's stored scope satisfies the query.
func (q *ScopeQuery) Matches(g *Grant) bool {
	return matchDim(q.SubjectID, g.SubjectID) &&
		matchDim(q.TenantID, g.TenantID) &&
		matchDim(q.ResourceType, g.ResourceType) &&
		matchDim(q.ResourceID, g.ResourceID)
}

func matchDim(want *string, stored string) bool {
	if want == nil {
		return stored == ""
	}
	return stored == *want
}

// Eq wraps a value for use in a ScopeQuery dimension.
func Eq(s string) *string { return &s }

// ListFilter contains filters for administrative grant listing.
// Unlike ScopeQuery, an empty field here means "any".
type ListFilter struct {
	TenantID     string `json:"tenant_id,omitempty"`
	SubjectID    string `json:"subject_id,omitempty"`
	ResourceType string `json:"resource_type,omitempty"`
	ResourceID   string `json:"resource_id,omitempty"`
	IncludeDead  bool   `json:"include_dead,omitempty"`
	Limit        int    `json:"limit,omitempty"`
	Offset       int    `json:"offset,omitempty"`
}
