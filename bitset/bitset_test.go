package bitset_test

import (
	"testing"

	"github.com/xraph/aegis/bitset"
)

func TestSetHasRoundTrip(t *testing.T) {
	for p := 0; p < bitset.MaxPositions; p++ {
		b := bitset.Zero.Set(p, true)
		if !b.Has(p) {
			t.Fatalf("position %d: expected set bit", p)
		}
		b = b.Set(p, false)
		if b.Has(p) {
			t.Fatalf("position %d: expected cleared bit", p)
		}
		if !b.IsZero() {
			t.Fatalf("position %d: expected zero set after clear", p)
		}
	}
}

func TestSetIdempotent(t *testing.T) {
	for _, p := range []int{0, 1, 63, 64, 65, 127} {
		once := bitset.Zero.Set(p, true)
		twice := once.Set(p, true)
		if once != twice {
			t.Errorf("position %d: double set changed value", p)
		}
		cleared := once.Set(p, false)
		clearedTwice := cleared.Set(p, false)
		if cleared != clearedTwice {
			t.Errorf("position %d: double clear changed value", p)
		}
	}
}

func TestWordBoundary(t *testing.T) {
	b := bitset.Of(63, 64)
	if b.Lo != 1<<63 {
		t.Errorf("expected only bit 63 in Lo, got %#x", b.Lo)
	}
	if b.Hi != 1 {
		t.Errorf("expected only bit 0 in Hi, got %#x", b.Hi)
	}
}

func TestOutOfRange(t *testing.T) {
	b := bitset.Zero.Set(-1, true).Set(128, true).Set(4096, true)
	if !b.IsZero() {
		t.Errorf("out-of-range positions must be ignored, got %+v", b)
	}
	if b.Has(-1) || b.Has(128) {
		t.Error("out-of-range Has must be false")
	}
}

func TestUnionIntersect(t *testing.T) {
	a := bitset.Of(0, 5, 70)
	b := bitset.Of(5, 64, 70)

	u := bitset.Union(a, b)
	for _, p := range []int{0, 5, 64, 70} {
		if !u.Has(p) {
			t.Errorf("union missing position %d", p)
		}
	}

	i := bitset.Intersect(a, b)
	if !i.Has(5) || !i.Has(70) {
		t.Error("intersect missing shared positions")
	}
	if i.Has(0) || i.Has(64) {
		t.Error("intersect contains unshared positions")
	}

	d := bitset.Difference(a, b)
	if !d.Has(0) || d.Has(5) || d.Has(70) {
		t.Errorf("difference wrong: %v", d.Positions())
	}
}

func TestHasAllHasAny(t *testing.T) {
	have := bitset.Of(1, 2, 100)
	if !have.HasAll(bitset.Of(1, 100)) {
		t.Error("expected HasAll for subset")
	}
	if have.HasAll(bitset.Of(1, 3)) {
		t.Error("expected !HasAll when a bit is missing")
	}
	if !have.HasAny(bitset.Of(3, 100)) {
		t.Error("expected HasAny for overlapping set")
	}
	if have.HasAny(bitset.Of(3, 99)) {
		t.Error("expected !HasAny for disjoint set")
	}
	if have.HasAny(bitset.Zero) {
		t.Error("expected !HasAny for empty required set")
	}
}

func TestPositions(t *testing.T) {
	want := []int{0, 63, 64, 127}
	got := bitset.Of(want...).Positions()
	if len(got) != len(want) {
		t.Fatalf("expected %d positions, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("position %d: expected %d, got %d", i, want[i], got[i])
		}
	}
}
