// Package fidtable implements the id allocator behind SMB file handles: a
// dense slot array paired with a free bitmap and a rotating start cursor,
// growing in powers of two up to a fixed ceiling.
package fidtable

import (
	"errors"
	"math/bits"
	"sync"
)

// InitialSize is the slot capacity of a fresh table.
const InitialSize = 64

var (
	ErrTableFull = errors.New("fid table full")
	ErrBadID     = errors.New("id outside fid table")
)

// Table hands out dense uint32 ids and stores one value per id. The zero
// id is never allocated; clients treat fid 0 specially in several legacy
// requests.
type Table[T any] struct {
	mu       sync.Mutex
	slots    []T
	bitmap   []uint64
	startPos int
	maxIDs   int
}

// New creates a table that will grow up to maxIDs slots.
func New[T any](maxIDs int) *Table[T] {
	size := InitialSize
	if size > maxIDs {
		size = maxIDs
	}
	return &Table[T]{
		slots:    make([]T, size),
		bitmap:   make([]uint64, (size+63)/64),
		startPos: 1,
		maxIDs:   maxIDs,
	}
}

// findNextZero returns the first clear bit at or after from, or size if
// every bit from there on is set.
func findNextZero(bitmap []uint64, size, from int) int {
	if from >= size {
		return size
	}
	word := from / 64
	// Mask off bits below the cursor in the first word.
	cur := bitmap[word] | (1<<(uint(from)%64) - 1)
	for {
		if cur != ^uint64(0) {
			id := word*64 + bits.TrailingZeros64(^cur)
			if id >= size {
				return size
			}
			return id
		}
		word++
		if word >= len(bitmap) {
			return size
		}
		cur = bitmap[word]
	}
}

// grow doubles the table towards maxIDs. Caller holds the lock.
func (t *Table[T]) grow() error {
	size := len(t.slots) * 2
	if size > t.maxIDs {
		size = t.maxIDs
	}
	if size <= len(t.slots) {
		return ErrTableFull
	}
	slots := make([]T, size)
	copy(slots, t.slots)
	bitmap := make([]uint64, (size+63)/64)
	copy(bitmap, t.bitmap)
	t.slots = slots
	t.bitmap = bitmap
	return nil
}

// Acquire allocates the lowest free id at or after the cursor and binds v
// to it.
func (t *Table[T]) Acquire(v T) (uint32, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for {
		id := findNextZero(t.bitmap, len(t.slots), t.startPos)
		if id < len(t.slots) {
			t.bitmap[id/64] |= 1 << (uint(id) % 64)
			t.startPos = id + 1
			t.slots[id] = v
			return uint32(id), nil
		}
		if err := t.grow(); err != nil {
			return 0, err
		}
	}
}

// Lookup returns the value bound to id.
func (t *Table[T]) Lookup(id uint32) (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var zero T
	i := int(id)
	if i >= len(t.slots) || t.bitmap[i/64]&(1<<(uint(i)%64)) == 0 {
		return zero, false
	}
	return t.slots[i], true
}

// Release frees id and rewinds the cursor so the id is reused before
// higher ones.
func (t *Table[T]) Release(id uint32) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	var zero T
	i := int(id)
	if i >= len(t.slots) || t.bitmap[i/64]&(1<<(uint(i)%64)) == 0 {
		return ErrBadID
	}
	t.bitmap[i/64] &^= 1 << (uint(i) % 64)
	t.slots[i] = zero
	if i < t.startPos {
		t.startPos = i
	}
	return nil
}

// ForEach calls fn for every bound id while holding the table lock; fn
// must not call back into the table.
func (t *Table[T]) ForEach(fn func(id uint32, v T)) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for i := range t.slots {
		if t.bitmap[i/64]&(1<<(uint(i)%64)) > 0 {
			fn(uint32(i), t.slots[i])
		}
	}
}

// Count returns the number of bound ids.
func (t *Table[T]) Count() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := 0
	for _, w := range t.bitmap {
		n += bits.OnesCount64(w)
	}
	return n
}
