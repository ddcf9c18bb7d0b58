package hook

import (
	"context"
	"log/slog"

	"github.com/xraph/aegis/grant"
	"github.com/xraph/aegis/id"
	"github.com/xraph/aegis/invitation"
	"github.com/xraph/aegis/roletemplate"
)

// Named entry types pair a hook with its name for logging.

type beforeEvaluateEntry struct {
	name string
	hook BeforeEvaluate
}
type afterEvaluateEntry struct {
	name string
	hook AfterEvaluate
}
type roleAssignedEntry struct {
	name string
	hook RoleAssigned
}
type roleRevokedEntry struct {
	name string
	hook RoleRevoked
}
type grantRevokedEntry struct {
	name string
	hook GrantRevoked
}
type invitationCreatedEntry struct {
	name string
	hook InvitationCreated
}
type invitationAcceptedEntry struct {
	name string
	hook InvitationAccepted
}
type invitationClosedEntry struct {
	name string
	hook InvitationClosed
}
type shutdownEntry struct {
	name string
	hook Shutdown
}

// Registry holds registered hooks and dispatches lifecycle events.
// It type-caches hooks at registration time so emit calls iterate
// only over hooks implementing the relevant event.
type Registry struct {
	hooks  []Hook
	logger *slog.Logger

	beforeEvaluate     []beforeEvaluateEntry
	afterEvaluate      []afterEvaluateEntry
	roleAssigned       []roleAssignedEntry
	roleRevoked        []roleRevokedEntry
	grantRevoked       []grantRevokedEntry
	invitationCreated  []invitationCreatedEntry
	invitationAccepted []invitationAcceptedEntry
	invitationClosed   []invitationClosedEntry
	shutdown           []shutdownEntry
}

// NewRegistry creates a hook registry with the given logger.
func NewRegistry(logger *slog.Logger) *Registry {
	return &Registry{logger: logger}
}

// Register adds a hook and type-asserts it into all applicable event
// caches. Hooks are notified in registration order.
func (r *Registry) Register(h Hook) {
	r.hooks = append(r.hooks, h)
	name := h.Name()

	if e, ok := h.(BeforeEvaluate); ok {
		r.beforeEvaluate = append(r.beforeEvaluate, beforeEvaluateEntry{name, e})
	}
	if e, ok := h.(AfterEvaluate); ok {
		r.afterEvaluate = append(r.afterEvaluate, afterEvaluateEntry{name, e})
	}
	if e, ok := h.(RoleAssigned); ok {
		r.roleAssigned = append(r.roleAssigned, roleAssignedEntry{name, e})
	}
	if e, ok := h.(RoleRevoked); ok {
		r.roleRevoked = append(r.roleRevoked, roleRevokedEntry{name, e})
	}
	if e, ok := h.(GrantRevoked); ok {
		r.grantRevoked = append(r.grantRevoked, grantRevokedEntry{name, e})
	}
	if e, ok := h.(InvitationCreated); ok {
		r.invitationCreated = append(r.invitationCreated, invitationCreatedEntry{name, e})
	}
	if e, ok := h.(InvitationAccepted); ok {
		r.invitationAccepted = append(r.invitationAccepted, invitationAcceptedEntry{name, e})
	}
	if e, ok := h.(InvitationClosed); ok {
		r.invitationClosed = append(r.invitationClosed, invitationClosedEntry{name, e})
	}
	if e, ok := h.(Shutdown); ok {
		r.shutdown = append(r.shutdown, shutdownEntry{name, e})
	}
}

// Hooks returns all registered hooks.
func (r *Registry) Hooks() []Hook { return r.hooks }

// EmitBeforeEvaluate notifies all hooks that implement BeforeEvaluate.
func (r *Registry) EmitBeforeEvaluate(ctx context.Context, req any) {
	for _, e := range r.beforeEvaluate {
		if err := e.hook.OnBeforeEvaluate(ctx, req); err != nil {
			r.logHookError("OnBeforeEvaluate", e.name, err)
		}
	}
}

// EmitAfterEvaluate notifies all hooks that implement AfterEvaluate.
func (r *Registry) EmitAfterEvaluate(ctx context.Context, req, dec any) {
	for _, e := range r.afterEvaluate {
		if err := e.hook.OnAfterEvaluate(ctx, req, dec); err != nil {
			r.logHookError("OnAfterEvaluate", e.name, err)
		}
	}
}

// EmitRoleAssigned notifies all hooks that implement RoleAssigned.
func (r *Registry) EmitRoleAssigned(ctx context.Context, rt *roletemplate.RoleTemplate, g *grant.Grant) {
	for _, e := range r.roleAssigned {
		if err := e.hook.OnRoleAssigned(ctx, rt, g); err != nil {
			r.logHookError("OnRoleAssigned", e.name, err)
		}
	}
}

// EmitRoleRevoked notifies all hooks that implement RoleRevoked.
func (r *Registry) EmitRoleRevoked(ctx context.Context, rt *roletemplate.RoleTemplate, subjectID string) {
	for _, e := range r.roleRevoked {
		if err := e.hook.OnRoleRevoked(ctx, rt, subjectID); err != nil {
			r.logHookError("OnRoleRevoked", e.name, err)
		}
	}
}

// EmitGrantRevoked notifies all hooks that implement GrantRevoked.
func (r *Registry) EmitGrantRevoked(ctx context.Context, grantID id.GrantID) {
	for _, e := range r.grantRevoked {
		if err := e.hook.OnGrantRevoked(ctx, grantID); err != nil {
			r.logHookError("OnGrantRevoked", e.name, err)
		}
	}
}

// EmitInvitationCreated notifies all hooks that implement InvitationCreated.
func (r *Registry) EmitInvitationCreated(ctx context.Context, inv *invitation.Invitation) {
	for _, e := range r.invitationCreated {
		if err := e.hook.OnInvitationCreated(ctx, inv); err != nil {
			r.logHookError("OnInvitationCreated", e.name, err)
		}
	}
}

// EmitInvitationAccepted notifies all hooks that implement InvitationAccepted.
func (r *Registry) EmitInvitationAccepted(ctx context.Context, inv *invitation.Invitation, g *grant.Grant) {
	for _, e := range r.invitationAccepted {
		if err := e.hook.OnInvitationAccepted(ctx, inv, g); err != nil {
			r.logHookError("OnInvitationAccepted", e.name, err)
		}
	}
}

// EmitInvitationClosed notifies all hooks that implement InvitationClosed.
func (r *Registry) EmitInvitationClosed(ctx context.Context, inv *invitation.Invitation) {
	for _, e := range r.invitationClosed {
		if err := e.hook.OnInvitationClosed(ctx, inv); err != nil {
			r.logHookError("OnInvitationClosed", e.name, err)
		}
	}
}

// EmitShutdown notifies all hooks that implement Shutdown.
func (r *Registry) EmitShutdown(ctx context.Context) {
	for _, e := range r.shutdown {
		if err := e.hook.OnShutdown(ctx); err != nil {
			r.logHookError("OnShutdown", e.name, err)
		}
	}
}

// logHookError logs a warning when a lifecycle hook returns an error.
// Errors from hooks are never propagated — they must not block the pipeline.
func (r *Registry) logHookError(event, hookName string, err error) {
	r.logger.Warn("hook error",
		slog.String("event", event),
		slog.String("hook", hookName),
		slog.String("error", err.Error()),
	)
}
