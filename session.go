package main

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/vstarodubtsev/cifsd/fidtable"
	"github.com/vstarodubtsev/cifsd/smb"
)

const (
	// maxSessionFids bounds the per-session volatile fid table.
	maxSessionFids = 65536

	// maxPersistentIDs bounds the global persistent open table.
	maxPersistentIDs = 1 << 20
)

var (
	errSessionNotFound = errors.New("session not found")
	errTooManySessions = errors.New("too many sessions on connection")
)

// session is one authenticated user on a connection. It owns the volatile
// fid table, the tree connects, the directory searches and the signer.
type session struct {
	uid      uint16
	globalID uint64
	user     string
	domain   string
	guest    bool

	connection *connection
	signer     *smb.Signer
	fids       *fidtable.Table[*open]

	creationTime time.Time

	mu         sync.Mutex
	trees      map[uint16]*treeConnect
	nextTID    uint16
	searches   map[uint16]*search
	nextSearch uint16
	idleTime   time.Time
}

// registerSession allocates a session on the connection. The caller fills
// in the identity once authentication concludes.
func (s *server) registerSession(c *connection) (*session, error) {
	var gid [8]byte
	rand.Read(gid[:])

	ss := &session{
		globalID:     binary.LittleEndian.Uint64(gid[:]),
		connection:   c,
		fids:         fidtable.New[*open](maxSessionFids),
		trees:        make(map[uint16]*treeConnect),
		searches:     make(map[uint16]*search),
		creationTime: time.Now(),
		idleTime:     time.Now(),
	}

	c.mu.Lock()
	uid := c.nextUID
	found := false
	for i := 0; i < 0x10000; i++ {
		uid++
		if uid == 0 || uid == 0xffff {
			continue
		}
		if _, taken := c.sessions[uid]; !taken {
			found = true
			break
		}
	}
	if !found {
		c.mu.Unlock()
		return nil, errTooManySessions
	}
	c.nextUID = uid
	ss.uid = uid
	c.sessions[uid] = ss
	c.mu.Unlock()

	s.mu.Lock()
	s.globalSessionTable[ss.globalID] = ss
	s.stats.sOpens++
	s.mu.Unlock()

	return ss, nil
}

// findSession resolves a header UID on the connection.
func (c *connection) findSession(uid uint16) (*session, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ss, ok := c.sessions[uid]
	return ss, ok
}

// deregisterSession logs the session off: every open, search and tree
// connect goes with it.
func (s *server) deregisterSession(ss *session) {
	ss.mu.Lock()
	trees := make([]*treeConnect, 0, len(ss.trees))
	for _, tc := range ss.trees {
		trees = append(trees, tc)
	}
	ss.trees = make(map[uint16]*treeConnect)
	ss.mu.Unlock()

	for _, tc := range trees {
		s.closeTreeConnect(ss, tc)
	}

	ss.connection.mu.Lock()
	delete(ss.connection.sessions, ss.uid)
	ss.connection.mu.Unlock()

	s.mu.Lock()
	delete(s.globalSessionTable, ss.globalID)
	s.stats.sOpens--
	s.mu.Unlock()

	s.locks.ReleaseSession(ss.globalID)
}

// touch refreshes the session idle timer.
func (ss *session) touch() {
	ss.mu.Lock()
	ss.idleTime = time.Now()
	ss.mu.Unlock()
}

// closeSearch drops one directory search.
func (ss *session) closeSearch(id uint16) bool {
	ss.mu.Lock()
	sr, ok := ss.searches[id]
	delete(ss.searches, id)
	ss.mu.Unlock()
	if ok {
		sr.close()
	}
	return ok
}

// registerSearch binds a fresh directory search to a search id.
func (ss *session) registerSearch(sr *search) uint16 {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	id := ss.nextSearch
	for {
		id++
		if id == 0 {
			continue
		}
		if _, taken := ss.searches[id]; !taken {
			break
		}
	}
	ss.nextSearch = id
	sr.id = id
	ss.searches[id] = sr
	return id
}

// findSearch resolves a search id.
func (ss *session) findSearch(id uint16) (*search, bool) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	sr, ok := ss.searches[id]
	return sr, ok
}
