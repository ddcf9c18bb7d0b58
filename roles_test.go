package aegis

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/aegis/grant"
	"github.com/xraph/aegis/id"
	"github.com/xraph/aegis/roletemplate"
)

func seedRole(t *testing.T, eng *Engine, r *roletemplate.RoleTemplate) *roletemplate.RoleTemplate {
	t.Helper()
	if err := eng.CreateRoleTemplate(context.Background(), r); err != nil {
		t.Fatal(err)
	}
	return r
}

func editorTemplate(tenantID string) *roletemplate.RoleTemplate {
	return &roletemplate.RoleTemplate{
		TenantID: tenantID,
		Name:     "Editor",
		Slug:     "editor",
		Templates: []roletemplate.PermissionTemplate{
			{Action: "content.read", ResourceType: "post"},
			{Action: "content.write", ResourceType: "post"},
		},
	}
}

func TestCreateRoleTemplate_UnknownPermission(t *testing.T) {
	eng, _ := newTestEngine(t)
	err := eng.CreateRoleTemplate(context.Background(), &roletemplate.RoleTemplate{
		TenantID:  "t1",
		Name:      "Broken",
		Slug:      "broken",
		Templates: []roletemplate.PermissionTemplate{{Action: "content.frobnicate"}},
	})
	if !errors.Is(err, ErrUnknownPermission) {
		t.Fatalf("expected ErrUnknownPermission, got %v", err)
	}
}

func TestCreateRoleTemplate_DuplicateSlug(t *testing.T) {
	eng, _ := newTestEngine(t)
	seedRole(t, eng, editorTemplate("t1"))

	err := eng.CreateRoleTemplate(context.Background(), editorTemplate("t1"))
	if !errors.Is(err, ErrDuplicateRole) {
		t.Fatalf("expected ErrDuplicateRole, got %v", err)
	}

	// Same slug in another tenant is fine.
	if err := eng.CreateRoleTemplate(context.Background(), editorTemplate("t2")); err != nil {
		t.Fatalf("expected distinct tenant to allow slug reuse, got %v", err)
	}
}

func TestUpdateRoleTemplate_SystemImmutable(t *testing.T) {
	eng, _ := newTestEngine(t)
	r := seedRole(t, eng, &roletemplate.RoleTemplate{
		TenantID:  "t1",
		Name:      "Admin",
		Slug:      "admin",
		IsSystem:  true,
		Templates: []roletemplate.PermissionTemplate{{Action: "content.read"}},
	})

	r.Name = "Renamed"
	if err := eng.UpdateRoleTemplate(context.Background(), r); !errors.Is(err, ErrImmutableRole) {
		t.Fatalf("expected ErrImmutableRole on update, got %v", err)
	}
	if err := eng.DeleteRoleTemplate(context.Background(), r.ID); !errors.Is(err, ErrImmutableRole) {
		t.Fatalf("expected ErrImmutableRole on delete, got %v", err)
	}
}

func TestAssignRole_MaterializesGrant(t *testing.T) {
	ctx := WithTenant(context.Background(), "app1", "t1")
	eng, s := newTestEngine(t)
	seedRole(t, eng, editorTemplate("t1"))

	grantIDs, err := eng.AssignRole(ctx, "u1", "t1", "editor", nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(grantIDs) != 1 {
		t.Fatalf("expected 1 grant, got %d", len(grantIDs))
	}

	g, err := s.GetGrant(ctx, grantIDs[0])
	if err != nil {
		t.Fatal(err)
	}
	if g.SubjectID != "u1" || g.TenantID != "t1" || g.ResourceType != "post" || g.ResourceID != "" {
		t.Fatalf("unexpected grant scope: %+v", g)
	}
	if g.GrantedBy != "role:editor" {
		t.Fatalf("expected granted_by role:editor, got %q", g.GrantedBy)
	}

	ok, err := eng.CanI(ctx, "u1", "content.write", "post", "p1")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected assigned role to grant write")
	}
}

func TestAssignRole_Idempotent(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)
	seedRole(t, eng, editorTemplate("t1"))

	first, err := eng.AssignRole(ctx, "u1", "t1", "editor", nil)
	if err != nil {
		t.Fatal(err)
	}
	second, err := eng.AssignRole(ctx, "u1", "t1", "editor", nil)
	if err != nil {
		t.Fatal(err)
	}
	if first[0].String() != second[0].String() {
		t.Fatalf("expected re-assignment to reuse grant %s, got %s", first[0], second[0])
	}

	n, err := s.CountGrants(ctx, &grant.ListFilter{SubjectID: "u1", TenantID: "t1"})
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected a single grant row, got %d", n)
	}
}

func TestAssignRole_UnknownSlug(t *testing.T) {
	eng, _ := newTestEngine(t)
	_, err := eng.AssignRole(context.Background(), "u1", "t1", "missing", nil)
	if !errors.Is(err, ErrRoleNotFound) {
		t.Fatalf("expected ErrRoleNotFound, got %v", err)
	}
}

func TestRevokeRole_EmptiedGrantIsRevoked(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)
	seedRole(t, eng, editorTemplate("t1"))

	if _, err := eng.AssignRole(ctx, "u1", "t1", "editor", nil); err != nil {
		t.Fatal(err)
	}
	if err := eng.RevokeRole(ctx, "u1", "t1", "editor"); err != nil {
		t.Fatal(err)
	}

	// The grant held only editor bits, so revocation empties and
	// retires it: resolution falls back to silence, not a deny.
	dec, err := eng.Evaluate(ctx, &EvaluateRequest{
		SubjectID:    "u1",
		TenantID:     "t1",
		ResourceType: "post",
		Permission:   "content.read",
	})
	if err != nil {
		t.Fatal(err)
	}
	if dec.Reason != ReasonNoApplicableGrant {
		t.Fatalf("expected silence after full revoke, got %+v", dec)
	}
}

func TestRevokeRole_OtherRoleBitsSurvive(t *testing.T) {
	ctx := WithTenant(context.Background(), "app1", "t1")
	eng, _ := newTestEngine(t)
	seedRole(t, eng, editorTemplate("t1"))
	seedRole(t, eng, &roletemplate.RoleTemplate{
		TenantID:  "t1",
		Name:      "Sharer",
		Slug:      "sharer",
		Templates: []roletemplate.PermissionTemplate{{Action: "content.share", ResourceType: "post"}},
	})

	if _, err := eng.AssignRole(ctx, "u1", "t1", "editor", nil); err != nil {
		t.Fatal(err)
	}
	if _, err := eng.AssignRole(ctx, "u1", "t1", "sharer", nil); err != nil {
		t.Fatal(err)
	}
	if err := eng.RevokeRole(ctx, "u1", "t1", "editor"); err != nil {
		t.Fatal(err)
	}

	// Sharer's bit survives in the grant.
	ok, err := eng.CanI(ctx, "u1", "content.share", "post", "p1")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected share to survive editor revocation")
	}

	// The grant is still live with read cleared, which reads as an
	// explicit deny at its layer.
	dec, err := eng.Evaluate(ctx, &EvaluateRequest{
		SubjectID:    "u1",
		TenantID:     "t1",
		ResourceType: "post",
		Permission:   "content.read",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !dec.ExplicitDeny {
		t.Fatalf("expected cleared bit on live grant to deny, got %+v", dec)
	}
}

func TestRevokeGrant(t *testing.T) {
	ctx := WithTenant(context.Background(), "app1", "t1")
	eng, _ := newTestEngine(t)
	seedRole(t, eng, editorTemplate("t1"))

	grantIDs, err := eng.AssignRole(ctx, "u1", "t1", "editor", nil)
	if err != nil {
		t.Fatal(err)
	}
	if err := eng.RevokeGrant(ctx, grantIDs[0]); err != nil {
		t.Fatal(err)
	}

	ok, err := eng.CanI(ctx, "u1", "content.read", "post", "p1")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected revoked grant to stop granting")
	}

	if err := eng.RevokeGrant(ctx, id.NewGrantID()); !errors.Is(err, ErrGrantNotFound) {
		t.Fatalf("expected ErrGrantNotFound, got %v", err)
	}
}
