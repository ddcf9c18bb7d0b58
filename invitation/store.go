package invitation

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/aegis/id"
)

// ErrStaleTransition is returned by TransitionStatus when the stored
// status no longer matches the expected "from" state. The engine maps
// this to its state-machine error.
var ErrStaleTransition = errors.New("invitation: stale status transition")

// Store defines persistence operations for invitations.
//
// TransitionStatus is the single point of state change and must be an
// atomic compare-and-swap on the status column: of any number of
// concurrent callers moving the same invitation out of Pending,
// exactly one succeeds.
type Store interface {
	// CreateInvitation persists a new invitation.
	CreateInvitation(ctx context.Context, inv *Invitation) error

	// GetInvitation retrieves an invitation by ID.
	GetInvitation(ctx context.Context, invID id.InvitationID) (*Invitation, error)

	// GetInvitationByToken retrieves an invitation by its share token.
	GetInvitationByToken(ctx context.Context, token string) (*Invitation, error)

	// TransitionStatus atomically moves an invitation from one status
	// to another, recording the response time. Fails with
	// ErrStaleTransition if the stored status is not "from".
	TransitionStatus(ctx context.Context, invID id.InvitationID, from, to Status, at time.Time) error

	// SetInvitationGrant records the grant materialized on acceptance.
	SetInvitationGrant(ctx context.Context, invID id.InvitationID, grantID id.GrantID) error

	// ListInvitations returns invitations matching the filter.
	ListInvitations(ctx context.Context, filter *ListFilter) ([]*Invitation, error)

	// CountInvitations returns the number of invitations matching the filter.
	CountInvitations(ctx context.Context, filter *ListFilter) (int64, error)

	// DeleteInvitationsByTenant removes all invitations for a tenant.
	DeleteInvitationsByTenant(ctx context.Context, tenantID string) error
}
