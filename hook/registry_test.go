package hook

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/xraph/aegis/grant"
	"github.com/xraph/aegis/id"
	"github.com/xraph/aegis/invitation"
	"github.com/xraph/aegis/roletemplate"
)

// recorder implements several event interfaces and counts calls.
type recorder struct {
	name string
	err  error

	roleAssigned   int
	grantRevoked   int
	invCreated     int
	invAccepted    int
	invClosed      int
	beforeEvaluate int
	shutdowns      int
}

func (r *recorder) Name() string { return r.name }

func (r *recorder) OnBeforeEvaluate(_ context.Context, _ any) error {
	r.beforeEvaluate++
	return r.err
}

func (r *recorder) OnRoleAssigned(_ context.Context, _ *roletemplate.RoleTemplate, _ *grant.Grant) error {
	r.roleAssigned++
	return r.err
}

func (r *recorder) OnGrantRevoked(_ context.Context, _ id.GrantID) error {
	r.grantRevoked++
	return r.err
}

func (r *recorder) OnInvitationCreated(_ context.Context, _ *invitation.Invitation) error {
	r.invCreated++
	return r.err
}

func (r *recorder) OnInvitationAccepted(_ context.Context, _ *invitation.Invitation, _ *grant.Grant) error {
	r.invAccepted++
	return r.err
}

func (r *recorder) OnInvitationClosed(_ context.Context, _ *invitation.Invitation) error {
	r.invClosed++
	return r.err
}

func (r *recorder) OnShutdown(_ context.Context) error {
	r.shutdowns++
	return r.err
}

// nameOnly implements no event interfaces at all.
type nameOnly struct{}

func (nameOnly) Name() string { return "name-only" }

func testRegistry() *Registry {
	return NewRegistry(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestRegistry_Dispatch(t *testing.T) {
	ctx := context.Background()
	reg := testRegistry()

	h := &recorder{name: "recorder"}
	reg.Register(h)
	reg.Register(nameOnly{})

	if len(reg.Hooks()) != 2 {
		t.Fatalf("expected 2 hooks, got %d", len(reg.Hooks()))
	}

	reg.EmitBeforeEvaluate(ctx, nil)
	reg.EmitRoleAssigned(ctx, &roletemplate.RoleTemplate{}, &grant.Grant{})
	reg.EmitGrantRevoked(ctx, id.NewGrantID())
	reg.EmitInvitationCreated(ctx, &invitation.Invitation{})
	reg.EmitInvitationAccepted(ctx, &invitation.Invitation{}, &grant.Grant{})
	reg.EmitInvitationClosed(ctx, &invitation.Invitation{})
	reg.EmitShutdown(ctx)

	if h.beforeEvaluate != 1 || h.roleAssigned != 1 || h.grantRevoked != 1 ||
		h.invCreated != 1 || h.invAccepted != 1 || h.invClosed != 1 || h.shutdowns != 1 {
		t.Fatalf("unexpected call counts: %+v", h)
	}
}

func TestRegistry_ErrorsDoNotPropagate(t *testing.T) {
	ctx := context.Background()
	reg := testRegistry()

	failing := &recorder{name: "failing", err: errors.New("boom")}
	healthy := &recorder{name: "healthy"}
	reg.Register(failing)
	reg.Register(healthy)

	// A failing hook is logged and skipped; later hooks still run.
	reg.EmitShutdown(ctx)
	if failing.shutdowns != 1 || healthy.shutdowns != 1 {
		t.Fatalf("expected both hooks notified, got failing=%d healthy=%d",
			failing.shutdowns, healthy.shutdowns)
	}
}

func TestRegistry_Order(t *testing.T) {
	ctx := context.Background()
	reg := testRegistry()

	var order []string
	a := &orderedHook{name: "a", order: &order}
	b := &orderedHook{name: "b", order: &order}
	reg.Register(a)
	reg.Register(b)

	reg.EmitShutdown(ctx)
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Fatalf("expected registration order, got %v", order)
	}
}

type orderedHook struct {
	name  string
	order *[]string
}

func (h *orderedHook) Name() string { return h.name }

func (h *orderedHook) OnShutdown(_ context.Context) error {
	*h.order = append(*h.order, h.name)
	return nil
}
