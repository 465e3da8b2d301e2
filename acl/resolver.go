package acl

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Identity kinds for resolver lookups.
const (
	SidOwner = iota
	SidGroup
)

// Resolver maps POSIX ids to SIDs and back. Implementations may consult an
// external identity service; lookups that cannot be mapped return
// ErrUnresolved and callers fall back to the share defaults.
type Resolver interface {
	SIDFromID(id uint32, sidType int) (SID, error)
	IDFromSID(sid *SID, sidType int) (uint32, error)
}

// LocalResolver maps ids through the S-1-5-88 NFS domains without any
// external lookups. It accepts the Samba-style S-1-22 domains on the
// reverse path.
type LocalResolver struct{}

func (LocalResolver) SIDFromID(id uint32, sidType int) (SID, error) {
	if sidType == SidGroup {
		return UnixGroupSID(id), nil
	}
	return UnixUserSID(id), nil
}

func (LocalResolver) IDFromSID(sid *SID, sidType int) (uint32, error) {
	id, ok := UnixID(sid, sidType == SidGroup)
	if !ok {
		return 0, ErrUnresolved
	}
	return id, nil
}

// CachingResolver memoizes another resolver. Lookups are keyed by the
// textual descriptor sent to the upcall ("oi:1000", "gs:S-1-5-21-...");
// concurrent lookups of the same key share one upcall. Failed lookups are
// not cached, a later retry may succeed once the identity service knows
// the mapping.
type CachingResolver struct {
	next   Resolver
	flight singleflight.Group

	mu   sync.RWMutex
	sids map[string]SID
	ids  map[string]uint32
}

func NewCachingResolver(next Resolver) *CachingResolver {
	return &CachingResolver{
		next: next,
		sids: make(map[string]SID),
		ids:  make(map[string]uint32),
	}
}

func idKey(id uint32, sidType int) string {
	if sidType == SidGroup {
		return fmt.Sprintf("gi:%d", id)
	}
	return fmt.Sprintf("oi:%d", id)
}

func sidKey(sid *SID, sidType int) string {
	if sidType == SidGroup {
		return "gs:" + sid.String()
	}
	return "os:" + sid.String()
}

func (r *CachingResolver) SIDFromID(id uint32, sidType int) (SID, error) {
	key := idKey(id, sidType)
	r.mu.RLock()
	sid, ok := r.sids[key]
	r.mu.RUnlock()
	if ok {
		return sid, nil
	}

	v, err, _ := r.flight.Do(key, func() (interface{}, error) {
		sid, err := r.next.SIDFromID(id, sidType)
		if err != nil {
			return SID{}, err
		}
		r.mu.Lock()
		r.sids[key] = sid
		r.mu.Unlock()
		return sid, nil
	})
	if err != nil {
		return SID{}, err
	}
	return v.(SID), nil
}

func (r *CachingResolver) IDFromSID(sid *SID, sidType int) (uint32, error) {
	key := sidKey(sid, sidType)
	r.mu.RLock()
	id, ok := r.ids[key]
	r.mu.RUnlock()
	if ok {
		return id, nil
	}

	v, err, _ := r.flight.Do(key, func() (interface{}, error) {
		id, err := r.next.IDFromSID(sid, sidType)
		if err != nil {
			return uint32(0), err
		}
		r.mu.Lock()
		r.ids[key] = id
		r.mu.Unlock()
		return id, nil
	})
	if err != nil {
		return 0, err
	}
	return v.(uint32), nil
}
