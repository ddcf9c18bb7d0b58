package aegis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/xraph/aegis/grant"
	"github.com/xraph/aegis/id"
	"github.com/xraph/aegis/invitation"
)

// CreateInvitationRequest is the input to CreateInvitation.
type CreateInvitationRequest struct {
	TenantID     string `json:"tenant_id,omitempty"`
	ResourceType string `json:"resource_type"`
	ResourceID   string `json:"resource_id"`

	// InviteeID identifies a known subject; InviteeEmail invites by
	// address, resolved to a subject at acceptance time. One of the
	// two is required.
	InviteeID    string `json:"invitee_id,omitempty"`
	InviteeEmail string `json:"invitee_email,omitempty"`

	// Permissions are stable permission names shared with the invitee.
	Permissions []string           `json:"permissions"`
	Constraints []grant.Constraint `json:"constraints,omitempty"`

	// ExpiresAt bounds the acceptance window; nil uses the configured
	// invitation TTL.
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	// RequiresAcceptance false means the share takes effect
	// immediately: the invitation is accepted and its grant
	// materialized synchronously, with no token exchange.
	RequiresAcceptance bool `json:"requires_acceptance"`

	InvitedBy string `json:"invited_by,omitempty"`
}

// CreateInvitation opens a share offer for a resource. The returned
// invitation carries the token the invitee redeems; when
// RequiresAcceptance is false it is already accepted and its grant
// live.
func (e *Engine) CreateInvitation(ctx context.Context, req *CreateInvitationRequest) (*invitation.Invitation, error) {
	if req.ResourceType == "" || req.ResourceID == "" {
		return nil, errors.New("aegis: invitation resource type and id are required")
	}
	if req.InviteeID == "" && req.InviteeEmail == "" {
		return nil, errors.New("aegis: invitation needs an invitee id or email")
	}
	if !req.RequiresAcceptance && req.InviteeID == "" {
		return nil, errors.New("aegis: auto-accepted invitation needs an invitee id")
	}

	bits, err := e.catalog.BitsOf(req.Permissions...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnknownPermission, err)
	}

	if e.directory != nil {
		exists, err := e.directory.ResourceExists(ctx, req.ResourceType, req.ResourceID)
		if err != nil {
			return nil, fmt.Errorf("aegis resource lookup: %w", err)
		}
		if !exists {
			return nil, fmt.Errorf("aegis: resource %s/%s not found", req.ResourceType, req.ResourceID)
		}
	}

	scope := scopeFromContext(ctx)
	tenantID := req.TenantID
	if tenantID == "" {
		tenantID = scope.tenantID
	}

	now := time.Now().UTC()
	expiresAt := req.ExpiresAt
	if expiresAt == nil {
		t := now.Add(e.config.invitationTTL())
		expiresAt = &t
	}

	inv := &invitation.Invitation{
		ID:                 id.NewInvitationID(),
		TenantID:           tenantID,
		AppID:              scope.appID,
		ResourceType:       req.ResourceType,
		ResourceID:         req.ResourceID,
		InviteeID:          req.InviteeID,
		InviteeEmail:       req.InviteeEmail,
		Bits:               bits,
		Constraints:        req.Constraints,
		RequiresAcceptance: req.RequiresAcceptance,
		Status:             invitation.StatusPending,
		Token:              uuid.NewString(),
		InvitedBy:          req.InvitedBy,
		ExpiresAt:          expiresAt,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if err := e.store.CreateInvitation(ctx, inv); err != nil {
		return nil, fmt.Errorf("aegis create invitation: %w", err)
	}
	if e.hooks != nil {
		e.hooks.EmitInvitationCreated(ctx, inv)
	}

	if !req.RequiresAcceptance {
		if _, err := e.acceptPending(ctx, inv, inv.InviteeID); err != nil {
			return nil, err
		}
		return e.store.GetInvitation(ctx, inv.ID)
	}
	return inv, nil
}

// GetInvitation retrieves an invitation by ID, lazily expiring it when
// its acceptance window has lapsed.
func (e *Engine) GetInvitation(ctx context.Context, invID id.InvitationID) (*invitation.Invitation, error) {
	inv, err := e.store.GetInvitation(ctx, invID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvitationNotFound, invID)
	}
	return e.lazyExpire(ctx, inv)
}

// GetInvitationByToken retrieves an invitation by its share token,
// lazily expiring it when its acceptance window has lapsed.
func (e *Engine) GetInvitationByToken(ctx context.Context, token string) (*invitation.Invitation, error) {
	inv, err := e.store.GetInvitationByToken(ctx, token)
	if err != nil {
		return nil, ErrInvitationNotFound
	}
	return e.lazyExpire(ctx, inv)
}

// AcceptInvitation redeems a share token and materializes the offered
// grant. subjectID resolves email invitations; it is ignored when the
// invitation already names an invitee. Acceptance happens exactly once:
// of any number of concurrent calls with the same token, one wins and
// the rest fail with ErrInvalidState.
func (e *Engine) AcceptInvitation(ctx context.Context, token, subjectID string) (*grant.Grant, error) {
	inv, err := e.store.GetInvitationByToken(ctx, token)
	if err != nil {
		return nil, ErrInvitationNotFound
	}

	now := time.Now().UTC()
	if inv.Status == invitation.StatusPending && inv.ExpiredAt(now) {
		e.expirePending(ctx, inv)
		return nil, fmt.Errorf("%w: %s", ErrInvitationExpired, inv.ID)
	}
	if inv.Status != invitation.StatusPending {
		return nil, fmt.Errorf("%w: status %s", ErrInvalidState, inv.Status)
	}

	invitee := inv.InviteeID
	if invitee == "" {
		invitee = subjectID
	}
	if invitee == "" {
		return nil, errors.New("aegis: accepting subject id is required for email invitations")
	}

	return e.acceptPending(ctx, inv, invitee)
}

// acceptPending performs the pending→accepted transition and grant
// materialization. The status CAS is the exactly-once gate; the grant
// is written only after winning it.
func (e *Engine) acceptPending(ctx context.Context, inv *invitation.Invitation, invitee string) (*grant.Grant, error) {
	now := time.Now().UTC()
	err := e.store.TransitionStatus(ctx, inv.ID, invitation.StatusPending, invitation.StatusAccepted, now)
	if err != nil {
		if errors.Is(err, invitation.ErrStaleTransition) {
			return nil, fmt.Errorf("%w: invitation already settled", ErrInvalidState)
		}
		return nil, fmt.Errorf("aegis accept invitation: %w", err)
	}

	gid, err := e.upsertUnion(ctx, invitee, inv.TenantID, inv.ResourceType, inv.ResourceID,
		inv.Bits, inv.Constraints, nil, "invitation:"+inv.ID.String())
	if err != nil {
		return nil, err
	}
	if err := e.store.SetInvitationGrant(ctx, inv.ID, gid); err != nil {
		return nil, fmt.Errorf("aegis record invitation grant: %w", err)
	}

	g, err := e.store.GetGrant(ctx, gid)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrGrantNotFound, gid)
	}
	if e.cache != nil {
		e.cache.InvalidateSubject(ctx, inv.TenantID, invitee)
	}
	if e.hooks != nil {
		accepted := *inv
		accepted.Status = invitation.StatusAccepted
		accepted.GrantID = gid
		e.hooks.EmitInvitationAccepted(ctx, &accepted, g)
	}
	return g, nil
}

// DeclineInvitation declines a pending share token. No grant is created.
func (e *Engine) DeclineInvitation(ctx context.Context, token string) error {
	inv, err := e.store.GetInvitationByToken(ctx, token)
	if err != nil {
		return ErrInvitationNotFound
	}
	return e.closePending(ctx, inv, invitation.StatusDeclined)
}

// CancelInvitation withdraws a pending invitation by ID. No grant is
// created.
func (e *Engine) CancelInvitation(ctx context.Context, invID id.InvitationID) error {
	inv, err := e.store.GetInvitation(ctx, invID)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvitationNotFound, invID)
	}
	return e.closePending(ctx, inv, invitation.StatusCancelled)
}

// ListInvitations returns invitations matching the filter.
func (e *Engine) ListInvitations(ctx context.Context, filter *invitation.ListFilter) ([]*invitation.Invitation, error) {
	return e.store.ListInvitations(ctx, filter)
}

func (e *Engine) closePending(ctx context.Context, inv *invitation.Invitation, to invitation.Status) error {
	now := time.Now().UTC()
	if inv.Status == invitation.StatusPending && inv.ExpiredAt(now) {
		e.expirePending(ctx, inv)
		return fmt.Errorf("%w: %s", ErrInvitationExpired, inv.ID)
	}
	if inv.Status != invitation.StatusPending {
		return fmt.Errorf("%w: status %s", ErrInvalidState, inv.Status)
	}

	err := e.store.TransitionStatus(ctx, inv.ID, invitation.StatusPending, to, now)
	if err != nil {
		if errors.Is(err, invitation.ErrStaleTransition) {
			return fmt.Errorf("%w: invitation already settled", ErrInvalidState)
		}
		return fmt.Errorf("aegis close invitation: %w", err)
	}
	if e.hooks != nil {
		closed := *inv
		closed.Status = to
		e.hooks.EmitInvitationClosed(ctx, &closed)
	}
	return nil
}

// lazyExpire transitions a pending invitation whose window has lapsed
// to expired. There is no background sweep; expiration is observed by
// whichever read or transition touches the invitation first.
func (e *Engine) lazyExpire(ctx context.Context, inv *invitation.Invitation) (*invitation.Invitation, error) {
	if inv.Status != invitation.StatusPending || !inv.ExpiredAt(time.Now().UTC()) {
		return inv, nil
	}
	e.expirePending(ctx, inv)
	return e.store.GetInvitation(ctx, inv.ID)
}

// expirePending moves a lapsed pending invitation to expired. Losing
// the CAS means another caller already settled it; that outcome stands.
func (e *Engine) expirePending(ctx context.Context, inv *invitation.Invitation) {
	err := e.store.TransitionStatus(ctx, inv.ID, invitation.StatusPending, invitation.StatusExpired, time.Now().UTC())
	if err != nil && !errors.Is(err, invitation.ErrStaleTransition) {
		e.logger.Warn("invitation expiry failed",
			"invitation", inv.ID.String(),
			"error", err.Error(),
		)
	}
	if err == nil && e.hooks != nil {
		expired := *inv
		expired.Status = invitation.StatusExpired
		e.hooks.EmitInvitationClosed(ctx, &expired)
	}
}
