package aegis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/aegis/invitation"
)

func shareRequest() *CreateInvitationRequest {
	return &CreateInvitationRequest{
		TenantID:           "t1",
		ResourceType:       "post",
		ResourceID:         "p1",
		InviteeEmail:       "someone@example.com",
		Permissions:        []string{"content.read", "content.share"},
		RequiresAcceptance: true,
		InvitedBy:          "u_owner",
	}
}

func TestCreateInvitation_Validation(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	req := shareRequest()
	req.ResourceID = ""
	if _, err := eng.CreateInvitation(ctx, req); err == nil {
		t.Fatal("expected error for missing resource")
	}

	req = shareRequest()
	req.InviteeEmail = ""
	if _, err := eng.CreateInvitation(ctx, req); err == nil {
		t.Fatal("expected error for missing invitee")
	}

	req = shareRequest()
	req.Permissions = []string{"content.frobnicate"}
	if _, err := eng.CreateInvitation(ctx, req); !errors.Is(err, ErrUnknownPermission) {
		t.Fatalf("expected ErrUnknownPermission, got %v", err)
	}

	req = shareRequest()
	req.RequiresAcceptance = false
	if _, err := eng.CreateInvitation(ctx, req); err == nil {
		t.Fatal("expected error for auto-accept without invitee id")
	}
}

func TestInvitationLifecycle_Accept(t *testing.T) {
	ctx := WithTenant(context.Background(), "app1", "t1")
	eng, _ := newTestEngine(t)

	inv, err := eng.CreateInvitation(ctx, shareRequest())
	if err != nil {
		t.Fatal(err)
	}
	if inv.Status != invitation.StatusPending {
		t.Fatalf("expected pending, got %s", inv.Status)
	}
	if inv.Token == "" {
		t.Fatal("expected a share token")
	}
	if inv.ExpiresAt == nil {
		t.Fatal("expected default acceptance window")
	}

	g, err := eng.AcceptInvitation(ctx, inv.Token, "u2")
	if err != nil {
		t.Fatal(err)
	}
	if g.SubjectID != "u2" || g.ResourceType != "post" || g.ResourceID != "p1" {
		t.Fatalf("unexpected grant scope: %+v", g)
	}

	got, err := eng.GetInvitation(ctx, inv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != invitation.StatusAccepted {
		t.Fatalf("expected accepted, got %s", got.Status)
	}
	if got.GrantID.IsNil() {
		t.Fatal("expected accepted invitation to record its grant")
	}

	ok, err := eng.CanI(ctx, "u2", "content.share", "post", "p1")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected shared permission to hold")
	}
	ok, err = eng.CanI(ctx, "u2", "content.share", "post", "other")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("share must be bound to the invited instance")
	}
}

func TestInvitation_AutoAccept(t *testing.T) {
	ctx := WithTenant(context.Background(), "app1", "t1")
	eng, _ := newTestEngine(t)

	req := shareRequest()
	req.InviteeEmail = ""
	req.InviteeID = "u3"
	req.RequiresAcceptance = false

	inv, err := eng.CreateInvitation(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if inv.Status != invitation.StatusAccepted {
		t.Fatalf("expected auto-accepted, got %s", inv.Status)
	}
	if inv.GrantID.IsNil() {
		t.Fatal("expected materialized grant")
	}

	ok, err := eng.CanI(ctx, "u3", "content.read", "post", "p1")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected auto-accepted share to grant immediately")
	}
}

func TestInvitation_DeclineAndCancel(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	inv, err := eng.CreateInvitation(ctx, shareRequest())
	if err != nil {
		t.Fatal(err)
	}
	if err := eng.DeclineInvitation(ctx, inv.Token); err != nil {
		t.Fatal(err)
	}

	// A settled invitation admits no further transitions.
	if _, err := eng.AcceptInvitation(ctx, inv.Token, "u2"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState after decline, got %v", err)
	}
	if err := eng.DeclineInvitation(ctx, inv.Token); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState on double decline, got %v", err)
	}

	inv2, err := eng.CreateInvitation(ctx, shareRequest())
	if err != nil {
		t.Fatal(err)
	}
	if err := eng.CancelInvitation(ctx, inv2.ID); err != nil {
		t.Fatal(err)
	}
	got, err := eng.GetInvitation(ctx, inv2.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != invitation.StatusCancelled {
		t.Fatalf("expected cancelled, got %s", got.Status)
	}
}

func TestInvitation_LazyExpiry(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	past := time.Now().UTC().Add(-time.Minute)
	req := shareRequest()
	req.ExpiresAt = &past

	inv, err := eng.CreateInvitation(ctx, req)
	if err != nil {
		t.Fatal(err)
	}

	// There is no background sweep; the first read observes the lapse.
	got, err := eng.GetInvitationByToken(ctx, inv.Token)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != invitation.StatusExpired {
		t.Fatalf("expected expired on read, got %s", got.Status)
	}

	if _, err := eng.AcceptInvitation(ctx, inv.Token, "u2"); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState for settled invitation, got %v", err)
	}
}

func TestInvitation_AcceptLapsedPending(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	past := time.Now().UTC().Add(-time.Minute)
	req := shareRequest()
	req.ExpiresAt = &past

	inv, err := eng.CreateInvitation(ctx, req)
	if err != nil {
		t.Fatal(err)
	}

	// Accepting a still-pending but lapsed invitation expires it.
	if _, err := eng.AcceptInvitation(ctx, inv.Token, "u2"); !errors.Is(err, ErrInvitationExpired) {
		t.Fatalf("expected ErrInvitationExpired, got %v", err)
	}
	got, err := eng.GetInvitation(ctx, inv.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != invitation.StatusExpired {
		t.Fatalf("expected expired, got %s", got.Status)
	}
}

func TestInvitation_ConcurrentAcceptOnce(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	inv, err := eng.CreateInvitation(ctx, shareRequest())
	if err != nil {
		t.Fatal(err)
	}

	const racers = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	accepted := 0

	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := eng.AcceptInvitation(ctx, inv.Token, "u2"); err == nil {
				mu.Lock()
				accepted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if accepted != 1 {
		t.Fatalf("expected exactly one acceptance, got %d", accepted)
	}
}

func TestInvitation_UnknownToken(t *testing.T) {
	eng, _ := newTestEngine(t)
	if _, err := eng.AcceptInvitation(context.Background(), "nope", "u2"); !errors.Is(err, ErrInvitationNotFound) {
		t.Fatalf("expected ErrInvitationNotFound, got %v", err)
	}
}
