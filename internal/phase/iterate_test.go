package phase

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"framesched/internal/registry"
)

type step func() error

func build(n int) (*registry.Arena, *registry.Registry[step], []registry.Handle) {
	a := registry.NewArena()
	r := registry.New[step](n)
	hs := make([]registry.Handle, n)
	for i := range hs {
		hs[i] = a.Alloc()
	}
	return a, r, hs
}

func TestIterateContinuesAfterFault(t *testing.T) {
	for _, mode := range []string{"error", "panic"} {
		t.Run(mode, func(t *testing.T) {
			const n, k = 5, 2
			_, r, hs := build(n)
			var ran []int
			for i := 0; i < n; i++ {
				i := i
				r.Add(registry.Entry[step]{ID: hs[i], Value: func() error {
					ran = append(ran, i)
					if i == k {
						if mode == "panic" {
							panic("boom")
						}
						return errors.New("boom")
					}
					return nil
				}})
			}

			var reported []*Fault
			visited, faults := Iterate[step](Update, r, func(s step) error { return s() }, func(f *Fault) {
				reported = append(reported, f)
			})

			assert.Equal(t, []int{0, 1, 2, 3, 4}, ran)
			assert.Equal(t, n, visited)
			assert.Equal(t, 1, faults)
			require.Len(t, reported, 1)
			assert.Equal(t, hs[k], reported[0].ID)
			assert.Equal(t, Update, reported[0].Phase)
			if mode == "panic" {
				assert.Equal(t, "boom", reported[0].Panic)
				assert.NotEmpty(t, reported[0].Stack)
			} else {
				assert.EqualError(t, reported[0].Unwrap(), "boom")
			}
			assert.Equal(t, n, r.Len(), "failing entry must stay registered")
		})
	}
}

func TestIterateToleratesReentrantRemoval(t *testing.T) {
	_, r, hs := build(4)
	calls := map[int]int{}
	for i := 0; i < 4; i++ {
		i := i
		r.Add(registry.Entry[step]{ID: hs[i], Value: func() error {
			calls[i]++
			if i == 0 {
				// Removing ourselves moves the tail into slot 0, which was already visited.
				r.RemoveSwapBack(hs[0])
			}
			return nil
		}})
	}

	visited, faults := Iterate[step](LateUpdate, r, func(s step) error { return s() }, nil)
	assert.Equal(t, 0, faults)
	assert.Equal(t, 3, visited)
	assert.Equal(t, 1, calls[0])
	assert.Equal(t, 0, calls[3], "entry swapped into a visited slot is skipped this pass")
	assert.Equal(t, 3, r.Len())
}

func TestIterateSeesAppendedEntries(t *testing.T) {
	a, r, hs := build(1)
	late := a.Alloc()
	lateRan := false
	r.Add(registry.Entry[step]{ID: hs[0], Value: func() error {
		r.AddUnique(registry.Entry[step]{ID: late, Value: func() error { lateRan = true; return nil }})
		return nil
	}})

	visited, _ := Iterate[step](Update, r, func(s step) error { return s() }, nil)
	assert.Equal(t, 2, visited)
	assert.True(t, lateRan)
}

func TestBatchSource(t *testing.T) {
	a := registry.NewArena()
	b := Batch[int]{{ID: a.Alloc(), Value: 1}, {ID: a.Alloc(), Value: 2}}
	sum := 0
	Iterate[int](SeparateThreadUpdate, b, func(v int) error { sum += v; return nil }, nil)
	assert.Equal(t, 3, sum)
	_, ok := b.At(2)
	assert.False(t, ok)
}

func TestFaultError(t *testing.T) {
	a := registry.NewArena()
	h := a.Alloc()
	f := Invoke(FixedUpdate, h, func() error { return errors.New("nope") })
	require.NotNil(t, f)
	assert.Contains(t, f.Error(), "fixed_update")
	assert.Contains(t, f.Error(), "nope")
	assert.Nil(t, Invoke(FixedUpdate, h, func() error { return nil }))
}
