package registry

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fill(t *testing.T, a *Arena, r *Registry[string], names ...string) []Handle {
	t.Helper()
	hs := make([]Handle, 0, len(names))
	for _, n := range names {
		h := a.Alloc()
		require.True(t, r.AddUnique(Entry[string]{ID: h, Value: n}))
		hs = append(hs, h)
	}
	return hs
}

func values(r *Registry[string]) []string {
	out := make([]string, 0, r.Len())
	for i := 0; i < r.Len(); i++ {
		e, _ := r.At(i)
		out = append(out, e.Value)
	}
	return out
}

func TestAddUniqueRejectsDuplicateIdentity(t *testing.T) {
	a := NewArena()
	r := New[string](0)
	h := a.Alloc()

	assert.True(t, r.AddUnique(Entry[string]{ID: h, Value: "first"}))
	for i := 0; i < 3; i++ {
		assert.False(t, r.AddUnique(Entry[string]{ID: h, Value: "again"}))
	}
	assert.Equal(t, 1, r.Len())
	e, ok := r.GetByID(h)
	require.True(t, ok)
	assert.Equal(t, "first", e.Value)
}

func TestAddAllowsDuplicates(t *testing.T) {
	a := NewArena()
	r := New[string](2)
	h := a.Alloc()
	r.Add(Entry[string]{ID: h, Value: "x"})
	r.Add(Entry[string]{ID: h, Value: "y"})
	assert.Equal(t, 2, r.Len())
	assert.Equal(t, 0, r.IndexOf(h))
}

func TestRemoveSwapBackEveryPosition(t *testing.T) {
	names := []string{"a", "b", "c", "d"}
	for pos := range names {
		a := NewArena()
		r := New[string](0)
		hs := fill(t, a, r, names...)

		require.True(t, r.RemoveSwapBack(hs[pos]), "pos %d", pos)
		assert.Equal(t, len(names)-1, r.Len(), "pos %d", pos)
		assert.False(t, r.Contains(hs[pos]), "pos %d", pos)
		for i, h := range hs {
			if i != pos {
				assert.True(t, r.Contains(h), "pos %d survivor %d", pos, i)
			}
		}
	}
}

func TestRemoveSwapBackMovesTail(t *testing.T) {
	a := NewArena()
	r := New[string](0)
	hs := fill(t, a, r, "a", "b", "c", "d")

	require.True(t, r.RemoveSwapBack(hs[1]))
	assert.Equal(t, []string{"a", "d", "c"}, values(r))
	assert.False(t, r.RemoveSwapBack(hs[1]))
}

func TestRemovePreservesOrder(t *testing.T) {
	a := NewArena()
	r := New[string](0)
	hs := fill(t, a, r, "a", "b", "c", "d")

	require.True(t, r.Remove(hs[1]))
	assert.Equal(t, []string{"a", "c", "d"}, values(r))
	assert.False(t, r.Remove(hs[1]))
}

func TestRemoveAtWithReorderOutOfRange(t *testing.T) {
	a := NewArena()
	r := New[string](0)
	fill(t, a, r, "a", "b")

	for _, idx := range []int{2, 3, -1} {
		err := r.RemoveAtWithReorder(idx)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrOutOfRange))
		assert.Equal(t, 2, r.Len())
	}
	assert.Equal(t, []string{"a", "b"}, values(r))

	require.NoError(t, r.RemoveAtWithReorder(0))
	assert.Equal(t, []string{"b"}, values(r))
}

func TestLookups(t *testing.T) {
	a := NewArena()
	r := New[string](0)
	hs := fill(t, a, r, "a", "b")
	stranger := a.Alloc()

	assert.Equal(t, 1, r.IndexOf(hs[1]))
	assert.Equal(t, -1, r.IndexOf(stranger))
	_, ok := r.GetByID(stranger)
	assert.False(t, ok)
	_, ok = r.At(5)
	assert.False(t, ok)

	snap := r.Snapshot()
	r.Clear()
	assert.Equal(t, 0, r.Len())
	assert.Len(t, snap, 2)
}

func TestArenaGenerations(t *testing.T) {
	a := NewArena()
	h1 := a.Alloc()
	assert.False(t, h1.IsZero())
	assert.True(t, a.Valid(h1))

	require.True(t, a.Release(h1))
	assert.False(t, a.Valid(h1))
	assert.False(t, a.Release(h1))

	h2 := a.Alloc()
	assert.Equal(t, h1.Index(), h2.Index())
	assert.NotEqual(t, h1, h2)
	assert.Equal(t, 1, a.Live())
	assert.False(t, a.Valid(Handle{}))
}
