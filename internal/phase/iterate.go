package phase

import "framesched/internal/registry"

// Source is positional read access to a registry.
type Source[T any] interface {
	Len() int
	At(i int) (registry.Entry[T], bool)
}

// Batch adapts a fixed slice of entries to Source.
type Batch[T any] []registry.Entry[T]

func (b Batch[T]) Len() int { return len(b) }

func (b Batch[T]) At(i int) (e registry.Entry[T], ok bool) {
	if i < 0 || i >= len(b) {
		return e, false
	}
	return b[i], true
}

// Iterate calls call for each entry of src by position and passes every fault
// to report exactly once. A fault never stops the walk.
//
// The count is re-read on every step, so callbacks may add to or remove from
// src while it is being walked. With swap-back removal that is best effort: an
// entry moved into an already visited slot is skipped for this pass, and an
// entry appended during the pass is visited.
func Iterate[T any](p Phase, src Source[T], call func(T) error, report func(*Fault)) (visited, faults int) {
	for i := 0; i < src.Len(); i++ {
		e, ok := src.At(i)
		if !ok {
			break
		}
		visited++
		v := e.Value
		if f := Invoke(p, e.ID, func() error { return call(v) }); f != nil {
			faults++
			if report != nil {
				report(f)
			}
		}
	}
	return visited, faults
}
