// Package hook defines the extension hook system for Aegis.
// Hooks are notified of lifecycle events (decision made, role assigned,
// invitation accepted, etc.) and can react — logging, metrics, tracing.
//
// Each lifecycle event is a separate interface so hooks opt in only
// to the events they care about.
package hook

import (
	"context"

	"github.com/xraph/aegis/grant"
	"github.com/xraph/aegis/id"
	"github.com/xraph/aegis/invitation"
	"github.com/xraph/aegis/roletemplate"
)

// Hook is the base interface all hooks must implement.
type Hook interface {
	// Name returns a unique human-readable name for the hook.
	Name() string
}

// BeforeEvaluate is called before a resolution is evaluated.
// The req parameter is *aegis.EvaluateRequest (passed as any to avoid
// an import cycle).
type BeforeEvaluate interface {
	OnBeforeEvaluate(ctx context.Context, req any) error
}

// AfterEvaluate is called after a resolution completes. The req
// parameter is *aegis.EvaluateRequest; dec is *aegis.Decision.
type AfterEvaluate interface {
	OnAfterEvaluate(ctx context.Context, req, dec any) error
}

// RoleAssigned is called after a role template materializes a grant.
type RoleAssigned interface {
	OnRoleAssigned(ctx context.Context, r *roletemplate.RoleTemplate, g *grant.Grant) error
}

// RoleRevoked is called after a role assignment is revoked.
type RoleRevoked interface {
	OnRoleRevoked(ctx context.Context, r *roletemplate.RoleTemplate, subjectID string) error
}

// GrantRevoked is called after a grant is revoked directly.
type GrantRevoked interface {
	OnGrantRevoked(ctx context.Context, grantID id.GrantID) error
}

// InvitationCreated is called after an invitation is created.
type InvitationCreated interface {
	OnInvitationCreated(ctx context.Context, inv *invitation.Invitation) error
}

// InvitationAccepted is called after an invitation is accepted and its
// grant materialized.
type InvitationAccepted interface {
	OnInvitationAccepted(ctx context.Context, inv *invitation.Invitation, g *grant.Grant) error
}

// InvitationClosed is called after an invitation reaches a terminal
// state other than accepted (declined, cancelled, expired).
type InvitationClosed interface {
	OnInvitationClosed(ctx context.Context, inv *invitation.Invitation) error
}

// Shutdown is called when the engine stops.
type Shutdown interface {
	OnShutdown(ctx context.Context) error
}
