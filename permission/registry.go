package permission

import (
	"errors"
	"fmt"
	"math/bits"
	"sync"
)

// RootName names the reserved root grant in permission lists.
const RootName = "*"

var (
	ErrFrozen    = errors.New("permission: registry is frozen")
	ErrDuplicate = errors.New("permission: name already registered")
	ErrFull      = errors.New("permission: no free bits")
)

// Registry maps permission names to bit positions. Bits are handed out in registration
// order starting at 0.
type Registry struct {
	root bool

	mu     sync.RWMutex
	byName map[string]int
	// byBit[i] is the name owning bit i, "" when unassigned.
	byBit  [MaxBits]string
	used   int
	frozen bool
}

// NewRegistry creates an empty registry. With root the top bit is held back and bound
// to [RootName], which grants every permission.
func NewRegistry(root bool) *Registry {
	r := &Registry{root: root, byName: make(map[string]int, 8)}
	if root {
		r.byName[RootName] = rootBit
		r.byBit[rootBit] = RootName
	}
	return r
}

const rootBit = MaxBits - 1

func (r *Registry) capacity() int {
	if r.root {
		return MaxBits - 1
	}
	return MaxBits
}

// Register assigns the next free bit to name. A name that is already taken reports
// ErrDuplicate even on a frozen registry.
func (r *Registry) Register(name string) (int, error) {
	if name == "" {
		return -1, errors.New("permission: empty name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	_, taken := r.byName[name]
	switch {
	case taken:
		return -1, fmt.Errorf("%w: %q", ErrDuplicate, name)
	case r.frozen:
		return -1, ErrFrozen
	case r.used >= r.capacity():
		return -1, ErrFull
	}

	bit := r.used
	r.byName[name] = bit
	r.byBit[bit] = name
	r.used++
	return bit, nil
}

// RegisterAll registers names in order and stops at the first failure.
func (r *Registry) RegisterAll(names ...string) error {
	for _, n := range names {
		if _, err := r.Register(n); err != nil {
			return err
		}
	}
	return nil
}

// Bit returns the bit index for name.
func (r *Registry) Bit(name string) (int, bool) {
	r.mu.RLock()
	bit, ok := r.byName[name]
	r.mu.RUnlock()
	return bit, ok
}

// Name returns the permission bound to bit.
func (r *Registry) Name(bit int) (string, bool) {
	if bit < 0 || bit >= MaxBits {
		return "", false
	}
	r.mu.RLock()
	name := r.byBit[bit]
	r.mu.RUnlock()
	return name, name != ""
}

// MaskOf folds names into a mask. Unknown names are skipped.
func (r *Registry) MaskOf(names []string) Mask {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var m Mask
	for _, name := range names {
		if bit, ok := r.byName[name]; ok {
			m = m.Set(bit)
		}
	}
	return m
}

// Names expands m back into permission names in bit order.
func (r *Registry) Names(m Mask) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, bits.OnesCount64(uint64(m)))
	for rest := uint64(m); rest != 0; rest &= rest - 1 {
		if name := r.byBit[bits.TrailingZeros64(rest)]; name != "" {
			out = append(out, name)
		}
	}
	return out
}

// Allows reports whether a holder of names has the required permission.
func (r *Registry) Allows(names []string, required string) bool {
	bit, ok := r.Bit(required)
	if !ok {
		return false
	}
	return r.MaskOf(names).Has(bit, r.root)
}

// Freeze prevents further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Count returns the number of registered permissions, excluding the root grant.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.used
}

// RootBit returns the reserved root bit, or false when the registry has none.
func (r *Registry) RootBit() (int, bool) {
	if !r.root {
		return -1, false
	}
	return rootBit, true
}
