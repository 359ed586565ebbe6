package registry

import (
	"strconv"
	"sync"
)

// Handle identifies a registered participant for as long as it stays allocated.
//
// A Handle is an index into an Arena plus the generation the slot had when the
// handle was issued. Releasing the slot bumps the generation, so stale copies
// stop comparing equal to whatever reuses the index later.
//
// The zero value is never issued and is treated as "no identity".
type Handle struct {
	index uint32
	gen   uint32
}

func (h Handle) IsZero() bool { return h.gen == 0 }

func (h Handle) Index() uint32      { return h.index }
func (h Handle) Generation() uint32 { return h.gen }

func (h Handle) String() string {
	if h.IsZero() {
		return "h:none"
	}
	return "h:" + strconv.FormatUint(uint64(h.index), 10) + "." + strconv.FormatUint(uint64(h.gen), 10)
}

// Arena issues Handles. Freed indices are reused with a bumped generation.
//
// Safe for concurrent use: participants may be constructed on any goroutine.
type Arena struct {
	mu   sync.Mutex
	gens []uint32
	live []bool
	free []uint32
}

func NewArena() *Arena { return &Arena{} }

// Alloc returns a fresh handle.
func (a *Arena) Alloc() Handle {
	a.mu.Lock()
	defer a.mu.Unlock()

	if n := len(a.free); n > 0 {
		idx := a.free[n-1]
		a.free = a.free[:n-1]
		a.live[idx] = true
		return Handle{index: idx, gen: a.gens[idx]}
	}
	idx := uint32(len(a.gens))
	a.gens = append(a.gens, 1)
	a.live = append(a.live, true)
	return Handle{index: idx, gen: 1}
}

// Release invalidates h. It reports false if h was not live.
func (a *Arena) Release(h Handle) bool {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.validLocked(h) {
		return false
	}
	a.live[h.index] = false
	a.gens[h.index]++
	if a.gens[h.index] == 0 {
		// Generation wrapped; zero is reserved for the invalid handle.
		a.gens[h.index] = 1
	}
	a.free = append(a.free, h.index)
	return true
}

// Valid reports whether h is currently allocated.
func (a *Arena) Valid(h Handle) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.validLocked(h)
}

// Live returns the number of allocated handles.
func (a *Arena) Live() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.gens) - len(a.free)
}

func (a *Arena) validLocked(h Handle) bool {
	if h.IsZero() || int(h.index) >= len(a.gens) {
		return false
	}
	return a.live[h.index] && a.gens[h.index] == h.gen
}
