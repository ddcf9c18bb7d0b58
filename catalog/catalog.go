// Package catalog implements the append-only permission registry.
//
// Every permission kind is bound to a stable bit position in [0, 128) at
// process startup. Positions are assigned in registration order and never
// reused; an alias maps a second name onto an already-assigned position.
// The catalog is mutated during startup registration only and is safe for
// concurrent reads afterwards.
package catalog

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/xraph/aegis/bitset"
)

var (
	// ErrFull is returned when all 128 bit positions are assigned.
	ErrFull = errors.New("catalog: no bit positions remain")

	// ErrDuplicate is returned when a name is already registered.
	ErrDuplicate = errors.New("catalog: name already registered")

	// ErrUnknown is returned when a permission name is not registered.
	ErrUnknown = errors.New("catalog: unknown permission")
)

// Kind is one registered permission: a stable name, a category label,
// and the bit position it resolves to.
type Kind struct {
	Name     string `json:"name"`
	Category string `json:"category"`
	Bit      int    `json:"bit"`
}

// Catalog maps permission names to bit positions.
type Catalog struct {
	mu     sync.RWMutex
	byName map[string]Kind
	byBit  [bitset.MaxPositions][]string
	next   int
}

// New creates an empty catalog.
func New() *Catalog {
	return &Catalog{byName: make(map[string]Kind)}
}

// Register assigns the next free bit position to a new permission name.
// Registering an existing name fails with ErrDuplicate regardless of
// category; positions are never renumbered.
func (c *Catalog) Register(name, category string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.byName[name]; ok {
		return 0, fmt.Errorf("%w: %q", ErrDuplicate, name)
	}
	if c.next >= bitset.MaxPositions {
		return 0, fmt.Errorf("%w: %q", ErrFull, name)
	}

	bit := c.next
	c.next++
	c.byName[name] = Kind{Name: name, Category: category, Bit: bit}
	c.byBit[bit] = append(c.byBit[bit], name)
	return bit, nil
}

// MustRegister is like Register but panics on error. Use for static
// startup registration of the platform's permission table.
func (c *Catalog) MustRegister(name, category string) int {
	bit, err := c.Register(name, category)
	if err != nil {
		panic(fmt.Sprintf("catalog: register %q: %v", name, err))
	}
	return bit
}

// Alias registers a second name that resolves to the same bit position as
// an existing permission. The alias inherits the canonical category and
// behaves identically in every operation.
func (c *Catalog) Alias(alias, canonical string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.byName[alias]; ok {
		return 0, fmt.Errorf("%w: %q", ErrDuplicate, alias)
	}
	target, ok := c.byName[canonical]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknown, canonical)
	}

	c.byName[alias] = Kind{Name: alias, Category: target.Category, Bit: target.Bit}
	c.byBit[target.Bit] = append(c.byBit[target.Bit], alias)
	return target.Bit, nil
}

// MustAlias is like Alias but panics on error.
func (c *Catalog) MustAlias(alias, canonical string) int {
	bit, err := c.Alias(alias, canonical)
	if err != nil {
		panic(fmt.Sprintf("catalog: alias %q -> %q: %v", alias, canonical, err))
	}
	return bit
}

// BitOf resolves a permission name to its bit position.
func (c *Catalog) BitOf(name string) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	k, ok := c.byName[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknown, name)
	}
	return k.Bit, nil
}

// Lookup returns the registered Kind for a name.
func (c *Catalog) Lookup(name string) (Kind, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	k, ok := c.byName[name]
	if !ok {
		return Kind{}, fmt.Errorf("%w: %q", ErrUnknown, name)
	}
	return k, nil
}

// AllOf returns every registered kind in a category, aliases included,
// ordered by bit position then name.
func (c *Catalog) AllOf(category string) []Kind {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []Kind
	for _, k := range c.byName {
		if k.Category == category {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Bit != out[j].Bit {
			return out[i].Bit < out[j].Bit
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// BitsOf resolves several permission names into one bit set.
func (c *Catalog) BitsOf(names ...string) (bitset.Bits, error) {
	var b bitset.Bits
	for _, name := range names {
		bit, err := c.BitOf(name)
		if err != nil {
			return bitset.Zero, err
		}
		b = b.Set(bit, true)
	}
	return b, nil
}

// NamesOf returns the registered names whose bits are present in b.
// For an aliased bit every name is included.
func (c *Catalog) NamesOf(b bitset.Bits) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []string
	for bit := 0; bit < bitset.MaxPositions; bit++ {
		if b.Has(bit) {
			out = append(out, c.byBit[bit]...)
		}
	}
	return out
}

// Len returns the number of assigned bit positions (aliases excluded).
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.next
}

// ──────────────────────────────────────────────────
// Process-wide default catalog
// ──────────────────────────────────────────────────

// Default is the process-wide catalog used when an engine is not given
// its own. Populate it with Register/Alias calls at startup.
var Default = New()

// Register registers a permission in the default catalog.
func Register(name, category string) (int, error) { return Default.Register(name, category) }

// MustRegister registers a permission in the default catalog, panicking on error.
func MustRegister(name, category string) int { return Default.MustRegister(name, category) }

// Alias registers an alias in the default catalog.
func Alias(alias, canonical string) (int, error) { return Default.Alias(alias, canonical) }

// BitOf resolves a name against the default catalog.
func BitOf(name string) (int, error) { return Default.BitOf(name) }
