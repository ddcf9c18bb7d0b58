package aegis

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/xraph/aegis/bitset"
	"github.com/xraph/aegis/grant"
)

func TestConstraintEvaluator(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ev := DefaultConstraintEvaluator()

	cc := &ConstraintContext{
		SubjectID:  "u1",
		TenantID:   "t1",
		OwnerID:    "u1",
		Now:        now,
		Attributes: map[string]any{"ip": "10.0.1.7", "plan": "pro"},
	}

	cases := []struct {
		name       string
		constraint grant.Constraint
		want       bool
	}{
		{"owner match", grant.Constraint{Type: ConstraintOwnerOnly}, true},
		{"subject match", grant.Constraint{Type: ConstraintSubjectEquals, Value: "u1"}, true},
		{"subject mismatch", grant.Constraint{Type: ConstraintSubjectEquals, Value: "u2"}, false},
		{"tenant match", grant.Constraint{Type: ConstraintTenantEquals, Value: "t1"}, true},
		{"tenant mismatch", grant.Constraint{Type: ConstraintTenantEquals, Value: "t2"}, false},
		{"ip in cidr", grant.Constraint{Type: ConstraintIPInCIDR, Value: "10.0.0.0/16"}, true},
		{"ip in cidr list", grant.Constraint{Type: ConstraintIPInCIDR, Value: "192.168.0.0/24, 10.0.0.0/16"}, true},
		{"ip outside cidr", grant.Constraint{Type: ConstraintIPInCIDR, Value: "192.168.0.0/24"}, false},
		{"time before holds", grant.Constraint{Type: ConstraintTimeBefore, Value: "2026-06-01T00:00:00Z"}, true},
		{"time before lapsed", grant.Constraint{Type: ConstraintTimeBefore, Value: "2026-01-01T00:00:00Z"}, false},
		{"time after holds", grant.Constraint{Type: ConstraintTimeAfter, Value: "2026-01-01T00:00:00Z"}, true},
		{"time after pending", grant.Constraint{Type: ConstraintTimeAfter, Value: "2026-06-01T00:00:00Z"}, false},
		{"attribute match", grant.Constraint{Type: ConstraintAttributeEquals, Value: "plan=pro"}, true},
		{"attribute mismatch", grant.Constraint{Type: ConstraintAttributeEquals, Value: "plan=free"}, false},
		{"attribute absent", grant.Constraint{Type: ConstraintAttributeEquals, Value: "region=eu"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ev.Evaluate(context.Background(), []grant.Constraint{tc.constraint}, cc)
			if err != nil {
				t.Fatal(err)
			}
			if got != tc.want {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}

func TestConstraintEvaluator_AllMustHold(t *testing.T) {
	now := time.Now().UTC()
	ev := DefaultConstraintEvaluator()
	cc := &ConstraintContext{SubjectID: "u1", TenantID: "t1", Now: now}

	ok, err := ev.Evaluate(context.Background(), []grant.Constraint{
		{Type: ConstraintSubjectEquals, Value: "u1"},
		{Type: ConstraintTenantEquals, Value: "t2"},
	}, cc)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("one failing constraint must fail the list")
	}

	ok, err = ev.Evaluate(context.Background(), nil, cc)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("empty constraint list is unconditionally true")
	}
}

func TestConstraintEvaluator_ExpiredConstraintInert(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Hour)
	ev := DefaultConstraintEvaluator()
	cc := &ConstraintContext{SubjectID: "u1", Now: now}

	// A lapsed constraint no longer binds, even a failing one.
	ok, err := ev.Evaluate(context.Background(), []grant.Constraint{
		{Type: ConstraintSubjectEquals, Value: "u2", ExpiresAt: &past},
	}, cc)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expired constraint must not bind")
	}
}

func TestConstraintEvaluator_Malformed(t *testing.T) {
	now := time.Now().UTC()
	ev := DefaultConstraintEvaluator()
	cc := &ConstraintContext{SubjectID: "u1", Now: now}

	for _, c := range []grant.Constraint{
		{Type: "no_such_type"},
		{Type: ConstraintTimeBefore, Value: "not-a-time"},
		{Type: ConstraintAttributeEquals, Value: "missing-separator"},
	} {
		if _, err := ev.Evaluate(context.Background(), []grant.Constraint{c}, cc); !errors.Is(err, ErrInvalidConstraint) {
			t.Fatalf("constraint %+v: expected ErrInvalidConstraint, got %v", c, err)
		}
	}
}

// staticDirectory is a stub resource directory with one fixed owner.
type staticDirectory struct{ owner string }

func (d staticDirectory) ResourceExists(_ context.Context, _, _ string) (bool, error) {
	return true, nil
}

func (d staticDirectory) ResourceOwner(_ context.Context, _, _ string) (string, error) {
	return d.owner, nil
}

func TestEvaluate_OwnerOnlyConstraint(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t, WithDirectory(staticDirectory{owner: "u_owner"}))

	// Type-wide default grant restricted to the resource owner.
	seedGrant(t, s, &grant.Grant{
		ResourceType: "post",
		Bits:         bitset.Of(bitDelete),
		Constraints:  []grant.Constraint{{Type: ConstraintOwnerOnly}},
	})

	ok, err := eng.CanI(ctx, "u_owner", "content.delete", "post", "p1")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected owner to hold the grant")
	}

	ok, err = eng.CanI(ctx, "u_other", "content.delete", "post", "p1")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected non-owner to be silent")
	}
}
