// Package bitset implements the 128-bit permission set used by grants.
//
// A permission set is two 64-bit words: word Lo holds bit positions 0–63
// and word Hi holds positions 64–127. All operations are pure value
// arithmetic — no allocation, no I/O, no errors.
package bitset

// MaxPositions is the number of addressable bit positions.
const MaxPositions = 128

// Bits is a set of up to 128 permission bits.
type Bits struct {
	Lo uint64 `json:"lo"`
	Hi uint64 `json:"hi"`
}

// Zero is the empty set.
var Zero Bits

// Of returns a set with the given positions set. Positions outside
// [0, MaxPositions) are ignored.
func Of(positions ...int) Bits {
	var b Bits
	for _, p := range positions {
		b = b.Set(p, true)
	}
	return b
}

// Has reports whether the bit at position p is set.
func (b Bits) Has(p int) bool {
	if p < 0 || p >= MaxPositions {
		return false
	}
	if p < 64 {
		return b.Lo&(1<<uint(p)) != 0
	}
	return b.Hi&(1<<uint(p-64)) != 0
}

// Set returns a copy of b with the bit at position p set or cleared.
// Positions outside [0, MaxPositions) leave b unchanged.
func (b Bits) Set(p int, value bool) Bits {
	if p < 0 || p >= MaxPositions {
		return b
	}
	if p < 64 {
		mask := uint64(1) << uint(p)
		if value {
			b.Lo |= mask
		} else {
			b.Lo &^= mask
		}
		return b
	}
	mask := uint64(1) << uint(p-64)
	if value {
		b.Hi |= mask
	} else {
		b.Hi &^= mask
	}
	return b
}

// Union returns the set of bits present in either a or b.
func Union(a, b Bits) Bits {
	return Bits{Lo: a.Lo | b.Lo, Hi: a.Hi | b.Hi}
}

// Intersect returns the set of bits present in both a and b.
func Intersect(a, b Bits) Bits {
	return Bits{Lo: a.Lo & b.Lo, Hi: a.Hi & b.Hi}
}

// Difference returns the bits of a that are not in b.
func Difference(a, b Bits) Bits {
	return Bits{Lo: a.Lo &^ b.Lo, Hi: a.Hi &^ b.Hi}
}

// HasAll reports whether every bit of required is present in b.
func (b Bits) HasAll(required Bits) bool {
	return b.Lo&required.Lo == required.Lo && b.Hi&required.Hi == required.Hi
}

// HasAny reports whether at least one bit of required is present in b.
func (b Bits) HasAny(required Bits) bool {
	return b.Lo&required.Lo != 0 || b.Hi&required.Hi != 0
}

// IsZero reports whether no bits are set.
func (b Bits) IsZero() bool {
	return b.Lo == 0 && b.Hi == 0
}

// Positions returns the set bit positions in ascending order.
func (b Bits) Positions() []int {
	var out []int
	for p := 0; p < MaxPositions; p++ {
		if b.Has(p) {
			out = append(out, p)
		}
	}
	return out
}
