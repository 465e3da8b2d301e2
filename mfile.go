package main

import (
	"strings"
	"sync"
)

// mfile is the per-inode anchor shared by every open of the same file. It
// carries the oplock state, the delete-on-close verdict and the set of opens
// used for sharing-mode checks and level-II break fan-out.
type mfile struct {
	dev uint64
	ino uint64

	mu            sync.Mutex
	path          string // share-relative, kept current across renames
	refCount      int
	deletePending bool
	opens         map[*open]struct{}
}

type mfileKey struct {
	dev uint64
	ino uint64
}

// mfileRegistry maps file identities to their mfile anchors. One registry
// per server; entries exist only while at least one open references them.
type mfileRegistry struct {
	mu    sync.Mutex
	files map[mfileKey]*mfile
}

func newMfileRegistry() *mfileRegistry {
	return &mfileRegistry{files: make(map[mfileKey]*mfile)}
}

// acquire returns the anchor for the given identity, creating it on first
// use, and bumps its reference count.
func (r *mfileRegistry) acquire(dev, ino uint64, path string) *mfile {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := mfileKey{dev, ino}
	m, ok := r.files[key]
	if !ok {
		m = &mfile{
			dev:   dev,
			ino:   ino,
			path:  path,
			opens: make(map[*open]struct{}),
		}
		r.files[key] = m
	}
	m.mu.Lock()
	m.refCount++
	m.mu.Unlock()
	return m
}

// release drops one reference and discards the anchor when the last open
// lets go. It reports whether the entry was removed.
func (r *mfileRegistry) release(m *mfile) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	m.mu.Lock()
	m.refCount--
	last := m.refCount == 0
	m.mu.Unlock()

	if last {
		delete(r.files, mfileKey{m.dev, m.ino})
	}
	return last
}

// lookup finds an anchor by identity without changing its reference count.
func (r *mfileRegistry) lookup(dev, ino uint64) (*mfile, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.files[mfileKey{dev, ino}]
	return m, ok
}

// hasOpenDescendant reports whether any registered file lives strictly
// below dir. Renaming or removing a directory with open descendants is
// rejected rather than leaving their paths dangling.
func (r *mfileRegistry) hasOpenDescendant(dir string) bool {
	prefix := strings.TrimSuffix(dir, "/") + "/"

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, m := range r.files {
		m.mu.Lock()
		below := strings.HasPrefix(m.path, prefix)
		m.mu.Unlock()
		if below {
			return true
		}
	}
	return false
}

// rename updates the anchor's recorded path after a successful rename.
func (m *mfile) rename(newPath string) {
	m.mu.Lock()
	m.path = newPath
	m.mu.Unlock()
}

// addOpen registers an open against the anchor after the sharing-mode check
// passed. Caller holds m.mu through the check and the insert.
func (m *mfile) addOpen(fp *open) {
	m.opens[fp] = struct{}{}
}

// removeOpen takes an open out of the set and reports whether it was the
// last one, in which case a pending delete fires.
func (m *mfile) removeOpen(fp *open) (last, deletePending bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.opens, fp)
	return len(m.opens) == 0, m.deletePending
}

// checkSharing verifies the desired access and share mode of a new open
// against every existing open of the same file.
func (m *mfile) checkSharing(desiredAccess, shareAccess uint32) bool {
	const readMask = fileGenericRead
	const writeMask = fileGenericWrite
	const deleteMask = fileGenericDelete

	for fp := range m.opens {
		if desiredAccess&readMask > 0 && fp.shareAccess&shareRead == 0 {
			return false
		}
		if desiredAccess&writeMask > 0 && fp.shareAccess&shareWrite == 0 {
			return false
		}
		if desiredAccess&deleteMask > 0 && fp.shareAccess&shareDelete == 0 {
			return false
		}
		if fp.grantedAccess&readMask > 0 && shareAccess&shareRead == 0 {
			return false
		}
		if fp.grantedAccess&writeMask > 0 && shareAccess&shareWrite == 0 {
			return false
		}
		if fp.grantedAccess&deleteMask > 0 && shareAccess&shareDelete == 0 {
			return false
		}
	}
	return true
}
