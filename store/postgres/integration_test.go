//go:build integration

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/xraph/grove/drivers/pgdriver"

	"github.com/xraph/aegis/bitset"
	"github.com/xraph/aegis/grant"
	"github.com/xraph/aegis/id"
	"github.com/xraph/aegis/invitation"
)

// startPostgres spins up a disposable postgres container and returns a
// migrated store bound to it.
func startPostgres(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()

	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("aegis"),
		tcpostgres.WithUsername("aegis"),
		tcpostgres.WithPassword("aegis"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	testcontainers.CleanupContainer(t, ctr)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	dsn, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	db, err := pgdriver.Open(dsn)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s := New(db)
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestPostgresGrantRoundTrip(t *testing.T) {
	s := startPostgres(t)
	ctx := context.Background()

	g := &grant.Grant{
		ID:           id.NewGrantID(),
		TenantID:     "t1",
		SubjectID:    "u1",
		ResourceType: "document",
		ResourceID:   "d1",
		Bits:         bitset.Of(0, 3, 70),
		Constraints: []grant.Constraint{
			{Type: "owner_only", Value: "true"},
		},
		GrantedBy: "admin",
	}
	if err := s.UpsertGrant(ctx, g); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if g.Version != 1 {
		t.Fatalf("version = %d, want 1", g.Version)
	}

	got, err := s.GetGrant(ctx, g.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Bits != g.Bits {
		t.Errorf("bits = %+v, want %+v", got.Bits, g.Bits)
	}
	if len(got.Constraints) != 1 || got.Constraints[0].Type != "owner_only" {
		t.Errorf("constraints = %+v", got.Constraints)
	}

	found, err := s.FindGrants(ctx, &grant.ScopeQuery{
		SubjectID:    grant.Eq("u1"),
		TenantID:     grant.Eq("t1"),
		ResourceType: grant.Eq("document"),
		ResourceID:   grant.Eq("d1"),
	})
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if len(found) != 1 {
		t.Fatalf("found %d grants, want 1", len(found))
	}
}

func TestPostgresVersionConflict(t *testing.T) {
	s := startPostgres(t)
	ctx := context.Background()

	g := &grant.Grant{
		ID:        id.NewGrantID(),
		TenantID:  "t1",
		SubjectID: "u1",
		Bits:      bitset.Of(1),
	}
	if err := s.UpsertGrant(ctx, g); err != nil {
		t.Fatal(err)
	}

	stale, err := s.GetGrant(ctx, g.ID)
	if err != nil {
		t.Fatal(err)
	}

	// First writer advances the row.
	g.Bits = bitset.Of(1, 2)
	if err := s.UpsertGrant(ctx, g); err != nil {
		t.Fatal(err)
	}

	// Stale writer must lose.
	stale.Bits = bitset.Of(1, 3)
	err = s.UpsertGrant(ctx, stale)
	if !errors.Is(err, grant.ErrVersionConflict) {
		t.Fatalf("err = %v, want ErrVersionConflict", err)
	}
}

func TestPostgresInvitationCAS(t *testing.T) {
	s := startPostgres(t)
	ctx := context.Background()

	inv := &invitation.Invitation{
		ID:                 id.NewInvitationID(),
		TenantID:           "t1",
		ResourceType:       "document",
		ResourceID:         "d1",
		InviteeID:          "u2",
		Bits:               bitset.Of(0),
		RequiresAcceptance: true,
		Status:             invitation.StatusPending,
		Token:              "tok-cas",
		CreatedAt:          time.Now().UTC(),
		UpdatedAt:          time.Now().UTC(),
	}
	if err := s.CreateInvitation(ctx, inv); err != nil {
		t.Fatal(err)
	}

	at := time.Now().UTC()
	if err := s.TransitionStatus(ctx, inv.ID, invitation.StatusPending, invitation.StatusAccepted, at); err != nil {
		t.Fatalf("first transition: %v", err)
	}

	err := s.TransitionStatus(ctx, inv.ID, invitation.StatusPending, invitation.StatusDeclined, at)
	if !errors.Is(err, invitation.ErrStaleTransition) {
		t.Fatalf("err = %v, want ErrStaleTransition", err)
	}

	got, err := s.GetInvitation(ctx, inv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != invitation.StatusAccepted {
		t.Fatalf("status = %s, want accepted", got.Status)
	}
}
