package registry

import (
	"errors"
	"fmt"
)

// ErrOutOfRange is returned by positional operations when the index is not
// less than the current count.
var ErrOutOfRange = errors.New("registry: index out of range")

// Entry pairs an identity with the capability it was registered with.
type Entry[T any] struct {
	ID    Handle
	Value T
}

// Registry is an identity-keyed ordered collection of entries.
//
// Identities are unique when every insertion goes through AddUnique. Insertion
// order holds until a swap-back removal moves the tail entry into a hole.
//
// Registry is not safe for concurrent use; callers that share one across
// goroutines bring their own lock (see worker.Coordinator).
type Registry[T any] struct {
	entries []Entry[T]
}

func New[T any](capacity int) *Registry[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Registry[T]{entries: make([]Entry[T], 0, capacity)}
}

func (r *Registry[T]) Len() int { return len(r.entries) }

// At returns the entry at position i. ok is false when i is outside [0, Len()).
func (r *Registry[T]) At(i int) (e Entry[T], ok bool) {
	if i < 0 || i >= len(r.entries) {
		return e, false
	}
	return r.entries[i], true
}

// Add appends unconditionally.
func (r *Registry[T]) Add(e Entry[T]) {
	r.entries = append(r.entries, e)
}

// AddUnique appends e unless an entry with the same identity exists.
func (r *Registry[T]) AddUnique(e Entry[T]) bool {
	if r.IndexOf(e.ID) >= 0 {
		return false
	}
	r.entries = append(r.entries, e)
	return true
}

// Remove deletes the entry with identity id, shifting later entries down so
// survivors keep their relative order.
func (r *Registry[T]) Remove(id Handle) bool {
	i := r.IndexOf(id)
	if i < 0 {
		return false
	}
	copy(r.entries[i:], r.entries[i+1:])
	r.truncate(len(r.entries) - 1)
	return true
}

// RemoveSwapBack deletes the entry with identity id by moving the last entry
// into its slot.
func (r *Registry[T]) RemoveSwapBack(id Handle) bool {
	i := r.IndexOf(id)
	if i < 0 {
		return false
	}
	r.swapBack(i)
	return true
}

// RemoveAtWithReorder is RemoveSwapBack addressed by position.
func (r *Registry[T]) RemoveAtWithReorder(index int) error {
	if index < 0 || index >= len(r.entries) {
		return fmt.Errorf("%w: index %d, count %d", ErrOutOfRange, index, len(r.entries))
	}
	r.swapBack(index)
	return nil
}

func (r *Registry[T]) Contains(id Handle) bool { return r.IndexOf(id) >= 0 }

// IndexOf returns the position of id, or -1.
func (r *Registry[T]) IndexOf(id Handle) int {
	for i := range r.entries {
		if r.entries[i].ID == id {
			return i
		}
	}
	return -1
}

func (r *Registry[T]) GetByID(id Handle) (e Entry[T], ok bool) {
	i := r.IndexOf(id)
	if i < 0 {
		return e, false
	}
	return r.entries[i], true
}

// Snapshot copies the current entries.
func (r *Registry[T]) Snapshot() []Entry[T] {
	if len(r.entries) == 0 {
		return nil
	}
	out := make([]Entry[T], len(r.entries))
	copy(out, r.entries)
	return out
}

func (r *Registry[T]) Clear() { r.truncate(0) }

func (r *Registry[T]) swapBack(i int) {
	last := len(r.entries) - 1
	if i != last {
		r.entries[i] = r.entries[last]
	}
	r.truncate(last)
}

// truncate shrinks to n and zeroes the dropped tail so removed capabilities
// can be collected.
func (r *Registry[T]) truncate(n int) {
	var zero Entry[T]
	for i := n; i < len(r.entries); i++ {
		r.entries[i] = zero
	}
	r.entries = r.entries[:n]
}
