package cache

import (
	"context"
	"testing"
	"time"

	"github.com/xraph/aegis"
)

func TestMemoryCacheHitMiss(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(WithTTL(time.Minute))

	req := &aegis.EvaluateRequest{
		SubjectID:    "u1",
		Permission:   "content.read",
		ResourceType: "post",
		ResourceID:   "p1",
	}
	dec := &aegis.Decision{Granted: true, Reason: aegis.ReasonGranted}

	// Miss
	_, ok := c.Get(ctx, "t1", req)
	if ok {
		t.Fatal("expected cache miss")
	}

	// Set + Hit
	c.Set(ctx, "t1", req, dec)
	got, ok := c.Get(ctx, "t1", req)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if !got.Granted {
		t.Fatal("expected granted")
	}
}

func TestMemoryCacheTTLExpiry(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(WithTTL(1 * time.Millisecond))

	req := &aegis.EvaluateRequest{SubjectID: "u1", Permission: "content.read"}
	c.Set(ctx, "t1", req, &aegis.Decision{Granted: true})
	time.Sleep(5 * time.Millisecond)

	_, ok := c.Get(ctx, "t1", req)
	if ok {
		t.Fatal("expected cache miss after TTL expiry")
	}
}

func TestMemoryCacheInvalidateTenant(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	req1 := &aegis.EvaluateRequest{SubjectID: "u1", Permission: "content.read", ResourceType: "post", ResourceID: "p1"}
	req2 := &aegis.EvaluateRequest{SubjectID: "u2", Permission: "content.update", ResourceType: "post", ResourceID: "p2"}

	c.Set(ctx, "t1", req1, &aegis.Decision{Granted: true})
	c.Set(ctx, "t1", req2, &aegis.Decision{Granted: false})
	c.Set(ctx, "t2", req1, &aegis.Decision{Granted: true})

	c.InvalidateTenant(ctx, "t1")

	if _, ok := c.Get(ctx, "t1", req1); ok {
		t.Fatal("t1 req1 should be invalidated")
	}
	if _, ok := c.Get(ctx, "t1", req2); ok {
		t.Fatal("t1 req2 should be invalidated")
	}
	if _, ok := c.Get(ctx, "t2", req1); !ok {
		t.Fatal("t2 req1 should still be cached")
	}
}

func TestMemoryCacheInvalidateSubject(t *testing.T) {
	ctx := context.Background()
	c := NewMemory()

	req1 := &aegis.EvaluateRequest{SubjectID: "u1", Permission: "content.read", ResourceType: "post", ResourceID: "p1"}
	req2 := &aegis.EvaluateRequest{SubjectID: "u2", Permission: "content.read", ResourceType: "post", ResourceID: "p1"}

	c.Set(ctx, "t1", req1, &aegis.Decision{Granted: true})
	c.Set(ctx, "t1", req2, &aegis.Decision{Granted: true})

	c.InvalidateSubject(ctx, "t1", "u1")

	if _, ok := c.Get(ctx, "t1", req1); ok {
		t.Fatal("u1 should be invalidated")
	}
	if _, ok := c.Get(ctx, "t1", req2); !ok {
		t.Fatal("u2 should still be cached")
	}
}

func TestMemoryCacheMaxSize(t *testing.T) {
	ctx := context.Background()
	c := NewMemory(WithMaxSize(2))

	for i := 0; i < 5; i++ {
		req := &aegis.EvaluateRequest{
			SubjectID:    "u1",
			Permission:   "content.read",
			ResourceType: "post",
			ResourceID:   string(rune('a' + i)),
		}
		c.Set(ctx, "t1", req, &aegis.Decision{Granted: true})
	}

	if size := c.Len(); size > 2 {
		t.Fatalf("expected max 2 entries, got %d", size)
	}
}
