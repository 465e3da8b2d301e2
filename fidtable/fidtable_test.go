package fidtable

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAcquireSkipsZero(t *testing.T) {
	tab := New[string](256)
	id, err := tab.Acquire("a")
	require.NoError(t, err)
	assert.Equal(t, uint32(1), id)

	_, ok := tab.Lookup(0)
	assert.False(t, ok)
}

func TestAcquireSequentialAndReuse(t *testing.T) {
	tab := New[int](256)
	var ids []uint32
	for i := 0; i < 10; i++ {
		id, err := tab.Acquire(i)
		require.NoError(t, err)
		ids = append(ids, id)
	}
	assert.Equal(t, []uint32{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, ids)

	// Freeing rewinds the cursor; the lowest freed id is reused first.
	require.NoError(t, tab.Release(7))
	require.NoError(t, tab.Release(3))
	id, err := tab.Acquire(100)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), id)
	id, err = tab.Acquire(101)
	require.NoError(t, err)
	assert.Equal(t, uint32(7), id)
	id, err = tab.Acquire(102)
	require.NoError(t, err)
	assert.Equal(t, uint32(11), id)
}

func TestLookupAndRelease(t *testing.T) {
	tab := New[string](64)
	id, err := tab.Acquire("hello")
	require.NoError(t, err)

	v, ok := tab.Lookup(id)
	require.True(t, ok)
	assert.Equal(t, "hello", v)

	require.NoError(t, tab.Release(id))
	_, ok = tab.Lookup(id)
	assert.False(t, ok)

	assert.ErrorIs(t, tab.Release(id), ErrBadID)
	assert.ErrorIs(t, tab.Release(9999), ErrBadID)
}

func TestGrowth(t *testing.T) {
	tab := New[int](1024)
	for i := 1; i < 1000; i++ {
		id, err := tab.Acquire(i)
		require.NoError(t, err)
		assert.Equal(t, uint32(i), id)
	}
	assert.Equal(t, 999, tab.Count())

	// Values survive the grows.
	for i := 1; i < 1000; i++ {
		v, ok := tab.Lookup(uint32(i))
		require.True(t, ok)
		assert.Equal(t, i, v)
	}
}

func TestTableFull(t *testing.T) {
	tab := New[int](64)
	for i := 1; i < 64; i++ {
		_, err := tab.Acquire(i)
		require.NoError(t, err)
	}
	_, err := tab.Acquire(64)
	assert.ErrorIs(t, err, ErrTableFull)

	// Freeing makes room again.
	require.NoError(t, tab.Release(30))
	id, err := tab.Acquire(64)
	require.NoError(t, err)
	assert.Equal(t, uint32(30), id)
}

func TestForEach(t *testing.T) {
	tab := New[int](64)
	for i := 0; i < 5; i++ {
		_, err := tab.Acquire(i * 10)
		require.NoError(t, err)
	}
	require.NoError(t, tab.Release(2))

	seen := make(map[uint32]int)
	tab.ForEach(func(id uint32, v int) { seen[id] = v })
	assert.Equal(t, map[uint32]int{1: 0, 3: 20, 4: 30, 5: 40}, seen)
}
