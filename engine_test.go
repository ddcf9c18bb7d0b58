package aegis

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/aegis/bitset"
	"github.com/xraph/aegis/catalog"
	"github.com/xraph/aegis/decisionlog"
	"github.com/xraph/aegis/grant"
	"github.com/xraph/aegis/id"
	"github.com/xraph/aegis/store/memory"
)

// Bit positions follow registration order in testCatalog.
const (
	bitRead = iota
	bitWrite
	bitDelete
	bitShare
)

func testCatalog(t *testing.T) *catalog.Catalog {
	t.Helper()
	c := catalog.New()
	c.MustRegister("content.read", "content")
	c.MustRegister("content.write", "content")
	c.MustRegister("content.delete", "content")
	c.MustRegister("content.share", "content")
	return c
}

func newTestEngine(t *testing.T, opts ...Option) (*Engine, *memory.Store) {
	t.Helper()
	s := memory.New()
	all := append([]Option{WithStore(s), WithCatalog(testCatalog(t))}, opts...)
	eng, err := NewEngine(all...)
	if err != nil {
		t.Fatal(err)
	}
	return eng, s
}

func seedGrant(t *testing.T, s *memory.Store, g *grant.Grant) *grant.Grant {
	t.Helper()
	if g.ID.IsNil() {
		g.ID = id.NewGrantID()
	}
	if err := s.UpsertGrant(context.Background(), g); err != nil {
		t.Fatal(err)
	}
	return g
}

func TestNewEngine_RequiresStore(t *testing.T) {
	_, err := NewEngine()
	if err == nil {
		t.Fatal("expected error when store is nil")
	}
}

func TestEvaluate_NoApplicableGrant(t *testing.T) {
	ctx := context.Background()
	eng, _ := newTestEngine(t)

	dec, err := eng.Evaluate(ctx, &EvaluateRequest{
		SubjectID:    "u1",
		TenantID:     "t1",
		ResourceType: "post",
		ResourceID:   "p1",
		Permission:   "content.read",
	})
	if err != nil {
		t.Fatal(err)
	}
	if dec.Granted || dec.ExplicitDeny {
		t.Fatalf("expected silence, got %+v", dec)
	}
	if dec.Reason != ReasonNoApplicableGrant {
		t.Fatalf("expected reason %s, got %s", ReasonNoApplicableGrant, dec.Reason)
	}
	if dec.Source != "" {
		t.Fatalf("expected no source, got %s", dec.Source)
	}
}

func TestEvaluate_TenantUserGrant(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)

	seedGrant(t, s, &grant.Grant{
		SubjectID: "u1",
		TenantID:  "t1",
		Bits:      bitset.Of(bitRead, bitWrite),
	})

	dec, err := eng.Evaluate(ctx, &EvaluateRequest{
		SubjectID:  "u1",
		TenantID:   "t1",
		Permission: "content.read",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !dec.Granted {
		t.Fatalf("expected granted, got %+v", dec)
	}
	if dec.Source != LayerTenantUser {
		t.Fatalf("expected source %s, got %s", LayerTenantUser, dec.Source)
	}

	// The same grant leaves delete cleared: an explicit deny, not silence.
	dec, err = eng.Evaluate(ctx, &EvaluateRequest{
		SubjectID:  "u1",
		TenantID:   "t1",
		Permission: "content.delete",
	})
	if err != nil {
		t.Fatal(err)
	}
	if dec.Granted || !dec.ExplicitDeny {
		t.Fatalf("expected explicit deny, got %+v", dec)
	}
	if dec.Reason != ReasonExplicitDeny {
		t.Fatalf("expected reason %s, got %s", ReasonExplicitDeny, dec.Reason)
	}
}

func TestEvaluate_HigherLayerDenyOverrides(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)

	// Tenant-wide grant allows read.
	seedGrant(t, s, &grant.Grant{
		SubjectID: "u1",
		TenantID:  "t1",
		Bits:      bitset.Of(bitRead),
	})
	// Instance-level grant exists but has read cleared.
	seedGrant(t, s, &grant.Grant{
		SubjectID:    "u1",
		TenantID:     "t1",
		ResourceType: "post",
		ResourceID:   "p1",
		Bits:         bitset.Of(bitWrite),
	})

	dec, err := eng.Evaluate(ctx, &EvaluateRequest{
		SubjectID:    "u1",
		TenantID:     "t1",
		ResourceType: "post",
		ResourceID:   "p1",
		Permission:   "content.read",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !dec.ExplicitDeny {
		t.Fatalf("expected instance deny to override tenant allow, got %+v", dec)
	}
	if dec.Source != LayerResourceUser {
		t.Fatalf("expected source %s, got %s", LayerResourceUser, dec.Source)
	}

	// Without the instance in scope the tenant grant decides.
	dec, err = eng.Evaluate(ctx, &EvaluateRequest{
		SubjectID:  "u1",
		TenantID:   "t1",
		Permission: "content.read",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !dec.Granted || dec.Source != LayerTenantUser {
		t.Fatalf("expected tenant grant to decide, got %+v", dec)
	}
}

func TestEvaluate_SystemOverrideWins(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)

	// Instance-level deny.
	seedGrant(t, s, &grant.Grant{
		SubjectID:    "u1",
		TenantID:     "t1",
		ResourceType: "post",
		ResourceID:   "p1",
		Bits:         bitset.Of(bitWrite),
	})
	// Subject-global override with read set outranks everything.
	seedGrant(t, s, &grant.Grant{
		SubjectID: "u1",
		Bits:      bitset.Of(bitRead),
	})

	dec, err := eng.Evaluate(ctx, &EvaluateRequest{
		SubjectID:    "u1",
		TenantID:     "t1",
		ResourceType: "post",
		ResourceID:   "p1",
		Permission:   "content.read",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !dec.Granted {
		t.Fatalf("expected override to grant, got %+v", dec)
	}
	if dec.Source != LayerSystemOverride {
		t.Fatalf("expected source %s, got %s", LayerSystemOverride, dec.Source)
	}
}

func TestEvaluate_ExpiredGrantIsSilent(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)

	past := time.Now().UTC().Add(-time.Minute)
	seedGrant(t, s, &grant.Grant{
		SubjectID: "u1",
		TenantID:  "t1",
		Bits:      bitset.Of(bitRead),
		ExpiresAt: &past,
	})

	dec, err := eng.Evaluate(ctx, &EvaluateRequest{
		SubjectID:  "u1",
		TenantID:   "t1",
		Permission: "content.read",
	})
	if err != nil {
		t.Fatal(err)
	}
	if dec.Reason != ReasonNoApplicableGrant {
		t.Fatalf("expected expired grant to be silent, got %+v", dec)
	}
}

func TestEvaluate_ExpiryIsExclusive(t *testing.T) {
	// A grant whose ExpiresAt has been reached is already invalid.
	now := time.Now().UTC()
	g := &grant.Grant{ExpiresAt: &now}
	if g.ValidAt(now) {
		t.Fatal("grant at its expiry instant must be invalid")
	}
	if !g.ValidAt(now.Add(-time.Nanosecond)) {
		t.Fatal("grant just before expiry must be valid")
	}
}

func TestEvaluate_ConstraintUnmetIsSilent(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)

	// Tenant-wide allow underneath.
	seedGrant(t, s, &grant.Grant{
		SubjectID: "u1",
		TenantID:  "t1",
		Bits:      bitset.Of(bitRead),
	})
	// Instance deny bound to a different subject: constraint unmet, so
	// the layer stays silent instead of denying.
	seedGrant(t, s, &grant.Grant{
		SubjectID:    "u1",
		TenantID:     "t1",
		ResourceType: "post",
		ResourceID:   "p1",
		Bits:         bitset.Of(bitWrite),
		Constraints:  []grant.Constraint{{Type: ConstraintSubjectEquals, Value: "someone-else"}},
	})

	dec, err := eng.Evaluate(ctx, &EvaluateRequest{
		SubjectID:    "u1",
		TenantID:     "t1",
		ResourceType: "post",
		ResourceID:   "p1",
		Permission:   "content.read",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !dec.Granted || dec.Source != LayerTenantUser {
		t.Fatalf("expected fall-through to tenant grant, got %+v", dec)
	}
}

func TestEvaluate_TenantFallbackForTypeScopes(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)

	// Tenant-null type-scoped grant applies to tenant-bound requests too.
	seedGrant(t, s, &grant.Grant{
		SubjectID:    "u1",
		ResourceType: "post",
		Bits:         bitset.Of(bitRead),
	})

	dec, err := eng.Evaluate(ctx, &EvaluateRequest{
		SubjectID:    "u1",
		TenantID:     "t1",
		ResourceType: "post",
		Permission:   "content.read",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !dec.Granted || dec.Source != LayerContentTypeUser {
		t.Fatalf("expected tenant-null grant to apply, got %+v", dec)
	}
}

func TestEvaluate_UnionWithinLayer(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)

	// Two grants at the same layer: one holds read, one does not.
	// A bit set by any grant is set for the layer.
	seedGrant(t, s, &grant.Grant{
		SubjectID:    "u1",
		ResourceType: "post",
		Bits:         bitset.Of(bitWrite),
	})
	seedGrant(t, s, &grant.Grant{
		SubjectID:    "u1",
		TenantID:     "t1",
		ResourceType: "post",
		Bits:         bitset.Of(bitRead),
	})

	dec, err := eng.Evaluate(ctx, &EvaluateRequest{
		SubjectID:    "u1",
		TenantID:     "t1",
		ResourceType: "post",
		Permission:   "content.read",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !dec.Granted || dec.Source != LayerContentTypeUser {
		t.Fatalf("expected union to grant, got %+v", dec)
	}
}

func TestEvaluate_UnknownPermission(t *testing.T) {
	eng, _ := newTestEngine(t)
	_, err := eng.Evaluate(context.Background(), &EvaluateRequest{
		SubjectID:  "u1",
		Permission: "content.frobnicate",
	})
	if !errors.Is(err, ErrUnknownPermission) {
		t.Fatalf("expected ErrUnknownPermission, got %v", err)
	}
}

func TestEvaluate_RequiresSubject(t *testing.T) {
	eng, _ := newTestEngine(t)
	_, err := eng.Evaluate(context.Background(), &EvaluateRequest{Permission: "content.read"})
	if err == nil {
		t.Fatal("expected error for missing subject")
	}
}

func TestEvaluate_TenantFromContext(t *testing.T) {
	ctx := WithTenant(context.Background(), "app1", "t1")
	eng, s := newTestEngine(t)

	seedGrant(t, s, &grant.Grant{
		SubjectID: "u1",
		TenantID:  "t1",
		Bits:      bitset.Of(bitRead),
	})

	dec, err := eng.Evaluate(ctx, &EvaluateRequest{
		SubjectID:  "u1",
		Permission: "content.read",
	})
	if err != nil {
		t.Fatal(err)
	}
	if !dec.Granted || dec.Source != LayerTenantUser {
		t.Fatalf("expected context tenant to bind, got %+v", dec)
	}
}

func TestEnforce(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)

	seedGrant(t, s, &grant.Grant{
		SubjectID: "u1",
		TenantID:  "t1",
		Bits:      bitset.Of(bitRead),
	})

	err := eng.Enforce(ctx, &EvaluateRequest{SubjectID: "u1", TenantID: "t1", Permission: "content.read"})
	if err != nil {
		t.Fatal(err)
	}

	err = eng.Enforce(ctx, &EvaluateRequest{SubjectID: "u2", TenantID: "t1", Permission: "content.read"})
	if !errors.Is(err, ErrAccessDenied) {
		t.Fatalf("expected ErrAccessDenied, got %v", err)
	}
}

func TestCanI(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)

	seedGrant(t, s, &grant.Grant{
		SubjectID:    "u1",
		ResourceType: "post",
		ResourceID:   "p1",
		Bits:         bitset.Of(bitRead),
	})

	ok, err := eng.CanI(ctx, "u1", "content.read", "post", "p1")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected allowed")
	}

	ok, err = eng.CanI(ctx, "u1", "content.read", "post", "p2")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected denied for other instance")
	}
}

func TestEvaluateBatch(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)

	seedGrant(t, s, &grant.Grant{
		SubjectID: "u1",
		TenantID:  "t1",
		Bits:      bitset.Of(bitRead),
	})

	decs, err := eng.EvaluateBatch(ctx, []*EvaluateRequest{
		{SubjectID: "u1", TenantID: "t1", Permission: "content.read"},
		{SubjectID: "u1", TenantID: "t1", Permission: "content.write"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(decs) != 2 {
		t.Fatalf("expected 2 decisions, got %d", len(decs))
	}
	if !decs[0].Granted {
		t.Fatal("expected first decision granted")
	}
	if decs[1].Granted {
		t.Fatal("expected second decision denied")
	}
}

func TestEvaluate_RecordsDecisionLog(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)

	if _, err := eng.Evaluate(ctx, &EvaluateRequest{
		SubjectID:  "u1",
		TenantID:   "t1",
		Permission: "content.read",
	}); err != nil {
		t.Fatal(err)
	}

	entries, err := s.ListDecisionLogs(ctx, &decisionlog.QueryFilter{SubjectID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 decision log entry, got %d", len(entries))
	}
	if entries[0].Granted {
		t.Fatal("expected logged decision to be denied")
	}
	if entries[0].Reason != string(ReasonNoApplicableGrant) {
		t.Fatalf("unexpected logged reason %q", entries[0].Reason)
	}
}

func TestEvaluate_DecisionLogDisabled(t *testing.T) {
	ctx := context.Background()
	off := false
	eng, s := newTestEngine(t, WithConfig(Config{EnableDecisionLog: &off}))

	if _, err := eng.Evaluate(ctx, &EvaluateRequest{
		SubjectID:  "u1",
		Permission: "content.read",
	}); err != nil {
		t.Fatal(err)
	}

	n, err := s.CountDecisionLogs(ctx, &decisionlog.QueryFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("expected no decision log entries, got %d", n)
	}
}

func TestExplain_TraceCoversAllLayers(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t)

	seedGrant(t, s, &grant.Grant{
		SubjectID: "u1",
		TenantID:  "t1",
		Bits:      bitset.Of(bitRead),
	})

	trace, err := eng.Explain(ctx, &EvaluateRequest{
		SubjectID:    "u1",
		TenantID:     "t1",
		ResourceType: "post",
		ResourceID:   "p1",
		Permission:   "content.read",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(trace.Layers) != len(Layers()) {
		t.Fatalf("expected %d layer results, got %d", len(Layers()), len(trace.Layers))
	}
	for i, lr := range trace.Layers {
		if lr.Priority != i {
			t.Fatalf("layer %s out of order: priority %d at index %d", lr.Layer, lr.Priority, i)
		}
	}
	winner := trace.Winning()
	if winner == nil || winner.Layer != LayerTenantUser {
		t.Fatalf("expected tenant_user to win, got %+v", winner)
	}
	if !trace.Decision.Granted {
		t.Fatalf("expected granted decision, got %+v", trace.Decision)
	}
	if winner.GrantID.IsNil() {
		t.Fatal("winning layer should name its grant")
	}
}

// mapCache is a minimal Cache for exercising the caching path without
// importing the cache package (which depends on this one).
type mapCache struct {
	mu      sync.Mutex
	entries map[string]Decision
}

func newMapCache() *mapCache { return &mapCache{entries: make(map[string]Decision)} }

func (c *mapCache) key(tenantID string, req *EvaluateRequest) string {
	return tenantID + "|" + req.SubjectID + "|" + req.ResourceType + "|" + req.ResourceID + "|" + req.Permission
}

func (c *mapCache) Get(_ context.Context, tenantID string, req *EvaluateRequest) (*Decision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	dec, ok := c.entries[c.key(tenantID, req)]
	if !ok {
		return nil, false
	}
	return &dec, true
}

func (c *mapCache) Set(_ context.Context, tenantID string, req *EvaluateRequest, dec *Decision) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[c.key(tenantID, req)] = *dec
}

func (c *mapCache) InvalidateTenant(_ context.Context, _ string)     {}
func (c *mapCache) InvalidateSubject(_ context.Context, _, _ string) {}

func TestEvaluate_CachedDecision(t *testing.T) {
	ctx := context.Background()
	eng, s := newTestEngine(t, WithCache(newMapCache()), WithConfig(Config{CacheTTL: time.Minute}))

	seedGrant(t, s, &grant.Grant{
		SubjectID: "u1",
		TenantID:  "t1",
		Bits:      bitset.Of(bitRead),
	})

	req := &EvaluateRequest{SubjectID: "u1", TenantID: "t1", Permission: "content.read"}
	dec, err := eng.Evaluate(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if !dec.Granted {
		t.Fatal("expected granted")
	}

	// Mutating the store does not affect the cached decision until
	// the subject is invalidated.
	if err := s.DeleteGrantsByTenant(ctx, "t1"); err != nil {
		t.Fatal(err)
	}
	dec, err = eng.Evaluate(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if !dec.Granted {
		t.Fatal("expected cached grant")
	}
}
