package main

import (
	"errors"
	"time"
)

var (
	errNoShare       = errors.New("no share name provided")
	errNoTreeConnect = errors.New("tree already disconnected")
	errTooManyTrees  = errors.New("too many tree connects")
)

// treeConnect binds a session to a share. IPC$ trees carry no filesystem;
// their opens are pipe transports.
type treeConnect struct {
	tid          uint16
	session      *session
	share        *share // nil for IPC$
	ipc          bool
	maxAccess    uint32
	creationTime time.Time
}

// registerTreeConnect allocates a tree id on the session.
func (ss *session) registerTreeConnect(tc *treeConnect) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()

	tid := ss.nextTID
	found := false
	for i := 0; i < 0x10000; i++ {
		tid++
		if tid == 0 || tid == 0xffff {
			continue
		}
		if _, taken := ss.trees[tid]; !taken {
			found = true
			break
		}
	}
	if !found {
		return errTooManyTrees
	}
	ss.nextTID = tid
	tc.tid = tid
	tc.session = ss
	tc.creationTime = time.Now()
	ss.trees[tid] = tc
	return nil
}

// findTree resolves a header TID on the session.
func (ss *session) findTree(tid uint16) (*treeConnect, bool) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	tc, ok := ss.trees[tid]
	return tc, ok
}

// closeTreeConnect disconnects a tree, closing every open and search that
// still references it.
func (s *server) closeTreeConnect(ss *session, tc *treeConnect) {
	ss.mu.Lock()
	delete(ss.trees, tc.tid)
	var searches []*search
	for id, sr := range ss.searches {
		if sr.tree == tc {
			searches = append(searches, sr)
			delete(ss.searches, id)
		}
	}
	ss.mu.Unlock()

	for _, sr := range searches {
		sr.close()
	}

	var opens []*open
	ss.fids.ForEach(func(id uint32, fp *open) {
		if fp.tree == tc {
			opens = append(opens, fp)
		}
	})
	for _, fp := range opens {
		s.closeOpen(ss, fp)
	}

	if tc.share != nil {
		tc.share.release()
	}
}
