package grant

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/aegis/id"
)

// ErrVersionConflict is returned by UpsertGrant when the stored version
// does not match the version the caller read. The caller re-reads and
// reapplies its delta.
var ErrVersionConflict = errors.New("grant: version conflict")

// Store defines persistence operations for grants.
//
// UpsertGrant is the single write primitive and is atomic per row:
// a grant is either fully written or not written at all. Optimistic
// concurrency is enforced through Grant.Version — an update whose
// Version does not match the stored row fails with ErrVersionConflict.
type Store interface {
	// UpsertGrant inserts a new grant (Version 0) or updates an
	// existing one, bumping Version by one on success.
	UpsertGrant(ctx context.Context, g *Grant) error

	// GetGrant retrieves a grant by ID.
	GetGrant(ctx context.Context, grantID id.GrantID) (*Grant, error)

	// FindGrants returns all grants whose stored scope exactly
	// satisfies the query, including expired and soft-deleted rows —
	// validity filtering is the resolver's job.
	FindGrants(ctx context.Context, q *ScopeQuery) ([]*Grant, error)

	// RevokeGrant sets ExpiresAt to the given instant.
	RevokeGrant(ctx context.Context, grantID id.GrantID, at time.Time) error

	// ListGrants returns grants matching the administrative filter.
	ListGrants(ctx context.Context, filter *ListFilter) ([]*Grant, error)

	// CountGrants returns the number of grants matching the filter.
	CountGrants(ctx context.Context, filter *ListFilter) (int64, error)

	// DeleteGrantsByTenant removes all grants for a tenant.
	DeleteGrantsByTenant(ctx context.Context, tenantID string) error
}
