// Package invitation defines the Invitation entity — a pending share
// offer on a resource — and its store interface.
package invitation

import (
	"time"

	"github.com/xraph/aegis/bitset"
	"github.com/xraph/aegis/grant"
	"github.com/xraph/aegis/id"
)

// Status is the invitation lifecycle state.
type Status string

const (
	// StatusPending means the offer awaits a response.
	StatusPending Status = "pending"

	// StatusAccepted means the offer was accepted and a grant was materialized.
	StatusAccepted Status = "accepted"

	// StatusDeclined means the invitee declined the offer.
	StatusDeclined Status = "declined"

	// StatusExpired means the offer lapsed before a response.
	StatusExpired Status = "expired"

	// StatusCancelled means the inviter withdrew the offer.
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the status admits no further transition.
func (s Status) Terminal() bool {
	return s != StatusPending
}

// Invitation is a share offer for one resource. It leaves Pending
// exactly once; acceptance materializes exactly one grant.
type Invitation struct {
	ID                 id.InvitationID    `json:"id" db:"id"`
	TenantID           string             `json:"tenant_id,omitempty" db:"tenant_id"`
	AppID              string             `json:"app_id,omitempty" db:"app_id"`
	ResourceType       string             `json:"resource_type" db:"resource_type"`
	ResourceID         string             `json:"resource_id" db:"resource_id"`
	InviteeID          string             `json:"invitee_id,omitempty" db:"invitee_id"`
	InviteeEmail       string             `json:"invitee_email,omitempty" db:"invitee_email"`
	Bits               bitset.Bits        `json:"bits" db:"-"`
	Constraints        []grant.Constraint `json:"constraints,omitempty" db:"-"`
	RequiresAcceptance bool               `json:"requires_acceptance" db:"requires_acceptance"`
	Status             Status             `json:"status" db:"status"`
	Token              string             `json:"token,omitempty" db:"token"`
	InvitedBy          string             `json:"invited_by,omitempty" db:"invited_by"`
	GrantID            id.GrantID         `json:"grant_id,omitempty" db:"grant_id"`
	ExpiresAt          *time.Time         `json:"expires_at,omitempty" db:"expires_at"`
	RespondedAt        *time.Time         `json:"responded_at,omitempty" db:"responded_at"`
	CreatedAt          time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time          `json:"updated_at" db:"updated_at"`
}

// ExpiredAt reports whether the offer window has lapsed at the given
// instant. ExpiresAt equal to now counts as lapsed.
func (i *Invitation) ExpiredAt(now time.Time) bool {
	return i.ExpiresAt != nil && !now.Before(*i.ExpiresAt)
}

// ListFilter contains filters for listing invitations.
type ListFilter struct {
	TenantID     string `json:"tenant_id,omitempty"`
	ResourceType string `json:"resource_type,omitempty"`
	ResourceID   string `json:"resource_id,omitempty"`
	InviteeID    string `json:"invitee_id,omitempty"`
	Status       Status `json:"status,omitempty"`
	Limit        int    `json:"limit,omitempty"`
	Offset       int    `json:"offset,omitempty"`
}
