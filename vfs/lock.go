package vfs

import (
	"sync"
)

// LockOwner identifies who holds a byte-range lock. Conflicts are checked
// between different owners; an owner never conflicts with itself on
// unlock lookups.
type LockOwner struct {
	Session uint64
	Fid     uint32
	PID     uint32
}

// ByteLock is one byte-range lock. A zero-length lock locks nothing but
// still occupies a registry slot, as clients use it for probing.
type ByteLock struct {
	Owner  LockOwner
	Offset uint64
	Length uint64
	Shared bool
}

func (l *ByteLock) overlaps(off, length uint64) bool {
	if l.Length == 0 || length == 0 {
		return false
	}
	return l.Offset < off+length && off < l.Offset+l.Length
}

// LockRegistry tracks byte-range locks per file identity (device and
// inode). A shared lock blocks writes, an exclusive lock blocks both
// directions; conflicts fail immediately, the protocol engine owns any
// timeout-driven retry.
type LockRegistry struct {
	mu    sync.Mutex
	files map[fileKey][]ByteLock
}

type fileKey struct {
	dev uint64
	ino uint64
}

func NewLockRegistry() *LockRegistry {
	return &LockRegistry{files: make(map[fileKey][]ByteLock)}
}

// Lock adds a byte-range lock, failing with ErrLockConflict if any
// existing lock of another owner conflicts, or any lock of the same range
// exists exclusively.
func (r *LockRegistry) Lock(dev, ino uint64, lock ByteLock) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fileKey{dev, ino}
	for i := range r.files[key] {
		held := &r.files[key][i]
		if !held.overlaps(lock.Offset, lock.Length) {
			continue
		}
		if held.Shared && lock.Shared {
			continue
		}
		if held.Owner == lock.Owner && held.Shared == lock.Shared {
			continue
		}
		return ErrLockConflict
	}
	r.files[key] = append(r.files[key], lock)
	return nil
}

// Unlock removes the lock exactly matching owner, offset and length.
func (r *LockRegistry) Unlock(dev, ino uint64, owner LockOwner, off, length uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fileKey{dev, ino}
	locks := r.files[key]
	for i := range locks {
		l := &locks[i]
		if l.Owner == owner && l.Offset == off && l.Length == length {
			r.files[key] = append(locks[:i], locks[i+1:]...)
			if len(r.files[key]) == 0 {
				delete(r.files, key)
			}
			return true
		}
	}
	return false
}

// CheckRead reports whether owner may read the range: only exclusive
// locks of other owners conflict.
func (r *LockRegistry) CheckRead(dev, ino uint64, owner LockOwner, off, length uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.files[fileKey{dev, ino}] {
		held := &r.files[fileKey{dev, ino}][i]
		if held.Owner != owner && !held.Shared && held.overlaps(off, length) {
			return ErrLockConflict
		}
	}
	return nil
}

// CheckWrite reports whether owner may write the range: any lock of
// another owner conflicts.
func (r *LockRegistry) CheckWrite(dev, ino uint64, owner LockOwner, off, length uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.files[fileKey{dev, ino}] {
		held := &r.files[fileKey{dev, ino}][i]
		if held.Owner != owner && held.overlaps(off, length) {
			return ErrLockConflict
		}
	}
	return nil
}

// ReleaseOwner drops every lock held by owner, used on handle close and
// on process exit.
func (r *LockRegistry) ReleaseOwner(owner LockOwner) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, locks := range r.files {
		kept := locks[:0]
		for _, l := range locks {
			if l.Owner != owner {
				kept = append(kept, l)
			}
		}
		if len(kept) == 0 {
			delete(r.files, key)
		} else {
			r.files[key] = kept
		}
	}
}

// ReleaseSession drops every lock held by any fid of the session.
func (r *LockRegistry) ReleaseSession(session uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, locks := range r.files {
		kept := locks[:0]
		for _, l := range locks {
			if l.Owner.Session != session {
				kept = append(kept, l)
			}
		}
		if len(kept) == 0 {
			delete(r.files, key)
		} else {
			r.files[key] = kept
		}
	}
}
