package mapping_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/treediff/pkg/mapping"
	"github.com/Sumatoshi-tech/treediff/pkg/tree"
)

func TestStore_AddAndLookup(t *testing.T) {
	t.Parallel()

	src := tree.New("A", "1")
	dst := tree.New("A", "1")
	other := tree.New("B", "")

	store := mapping.NewStore()
	require.NoError(t, store.Add(src, dst))

	assert.True(t, store.HasSrc(src))
	assert.True(t, store.HasDst(dst))
	assert.False(t, store.HasSrc(dst))
	assert.Same(t, dst, store.Dst(src))
	assert.Same(t, src, store.Src(dst))
	assert.Nil(t, store.Dst(other))
	assert.True(t, store.AreMapped(src, dst))
	assert.False(t, store.AreMapped(src, other))
	assert.Equal(t, 1, store.Size())
}

func TestStore_ConflictLeavesStoreUnchanged(t *testing.T) {
	t.Parallel()

	a1, a2 := tree.New("A", "1"), tree.New("A", "2")
	b1, b2 := tree.New("A", "1"), tree.New("A", "2")

	store := mapping.NewStore()
	require.NoError(t, store.Add(a1, b1))

	err := store.Add(a1, b2)
	require.ErrorIs(t, err, mapping.ErrConflict)

	var conflict *mapping.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.True(t, conflict.SrcSide)
	assert.Same(t, b1, conflict.Existing)

	err = store.Add(a2, b1)
	require.ErrorAs(t, err, &conflict)
	assert.False(t, conflict.SrcSide)
	assert.Same(t, a1, conflict.Existing)
	assert.Contains(t, err.Error(), "destination A(1) already mapped")

	assert.Equal(t, 1, store.Size())
	assert.False(t, store.HasSrc(a2))
	assert.False(t, store.HasDst(b2))
}

func TestStore_RemoveFreesBothSides(t *testing.T) {
	t.Parallel()

	a, b, c := tree.New("A", ""), tree.New("A", ""), tree.New("A", "")

	store := mapping.NewStore()
	require.NoError(t, store.Add(a, b))
	require.ErrorIs(t, store.Remove(a, c), mapping.ErrNotMapped)
	require.NoError(t, store.Remove(a, b))

	assert.Equal(t, 0, store.Size())
	require.NoError(t, store.Add(a, c))
	require.NoError(t, store.Add(c, b))
}

func TestStore_PairsInInsertionOrder(t *testing.T) {
	t.Parallel()

	store := mapping.NewStore()

	var want []string

	for idx := range 5 {
		label := fmt.Sprint(idx)
		require.NoError(t, store.Add(tree.New("S", label), tree.New("D", label)))
		want = append(want, label)
	}

	var got []string

	for src, dst := range store.Pairs() {
		assert.Equal(t, src.Label, dst.Label)
		got = append(got, src.Label)
	}

	assert.Equal(t, want, got)

	// Early break is honored.
	count := 0
	for range store.Pairs() {
		count++

		break
	}

	assert.Equal(t, 1, count)
}

func TestStore_ConcurrentAddKeepsBijection(t *testing.T) {
	t.Parallel()

	const workers = 16

	src := tree.New("S", "")
	dsts := make([]*tree.Node, workers)

	for idx := range dsts {
		dsts[idx] = tree.New("D", fmt.Sprint(idx))
	}

	store := mapping.NewStore()

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
	)

	for idx := range workers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			if store.Add(src, dsts[idx]) == nil {
				mu.Lock()
				successes++
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, store.Size())
}
