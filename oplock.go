package main

import (
	"time"

	"github.com/vstarodubtsev/cifsd/smb"
)

const (
	opNone int = iota
	opHeld
	opBreaking
)

// oplockBreakTimeout bounds how long the server waits for a client to
// acknowledge an exclusive or batch break. A client that never answers
// loses the oplock.
const oplockBreakTimeout = 10 * time.Second

// grantOplock decides the oplock level of a fresh open of fp.mfp. It breaks
// a conflicting exclusive or batch holder first and blocks until the break
// completes. Returns the wire level to report in the create response.
func (s *server) grantOplock(fp *open, wantOplock, wantBatch bool) uint8 {
	m := fp.mfp

	m.mu.Lock()
	holder := s.exclusiveHolder(m)
	alone := len(m.opens) == 1
	m.mu.Unlock()

	if holder != nil && holder != fp {
		s.breakOplock(holder, smb.OPLOCK_LEVEL_II)
	}

	if !wantOplock {
		return smb.OPLOCK_NONE
	}

	level := uint8(smb.OPLOCK_LEVEL_II)
	if alone {
		level = smb.OPLOCK_EXCLUSIVE
		if wantBatch {
			level = smb.OPLOCK_BATCH
		}
	}

	fp.mu.Lock()
	fp.oplock = level
	fp.opState = opHeld
	fp.mu.Unlock()
	return level
}

// exclusiveHolder returns the open holding an exclusive or batch oplock on
// m, if any. Caller holds m.mu.
func (s *server) exclusiveHolder(m *mfile) *open {
	for other := range m.opens {
		other.mu.Lock()
		exclusive := other.opState != opNone &&
			(other.oplock == smb.OPLOCK_EXCLUSIVE || other.oplock == smb.OPLOCK_BATCH)
		other.mu.Unlock()
		if exclusive {
			return other
		}
	}
	return nil
}

// breakOplock downgrades fp's oplock to newLevel. An exclusive or batch
// break sends a notification and waits for the LockingAndX acknowledgement;
// a level-II break is a one-way notification.
func (s *server) breakOplock(fp *open, newLevel uint8) {
	fp.mu.Lock()
	switch fp.opState {
	case opNone:
		fp.mu.Unlock()
		return
	case opBreaking:
		// Another request already started the break; wait for it below.
	case opHeld:
		if fp.oplock == smb.OPLOCK_LEVEL_II {
			// Level-II breaks go straight to none and need no ack.
			fp.oplock = smb.OPLOCK_NONE
			fp.opState = opNone
			fp.mu.Unlock()
			fp.session.connection.send(smb.EncodeOplockBreak(fp.tree.tid, uint16(fp.fid), smb.OPLOCK_NONE))
			return
		}
		fp.opState = opBreaking
		fp.mu.Unlock()
		fp.session.connection.send(smb.EncodeOplockBreak(fp.tree.tid, uint16(fp.fid), newLevel))
		fp.mu.Lock()
	}

	deadline := time.Now().Add(oplockBreakTimeout)
	for fp.opState == opBreaking {
		if time.Now().After(deadline) {
			// The client never acknowledged; revoke the oplock.
			fp.oplock = smb.OPLOCK_NONE
			fp.opState = opNone
			break
		}
		waitCondTimeout(fp, deadline)
	}
	fp.mu.Unlock()
}

// waitCondTimeout waits on fp.cond, waking itself at the deadline so the
// breaking loop can re-check. Caller holds fp.mu.
func waitCondTimeout(fp *open, deadline time.Time) {
	timer := time.AfterFunc(time.Until(deadline), func() {
		fp.mu.Lock()
		fp.cond.Broadcast()
		fp.mu.Unlock()
	})
	fp.cond.Wait()
	timer.Stop()
}

// ackOplockBreak consumes the client's LockingAndX break acknowledgement.
func (s *server) ackOplockBreak(fp *open, newLevel uint8) {
	fp.mu.Lock()
	if fp.opState == opBreaking {
		switch newLevel {
		case smb.OPLOCK_LEVEL_II:
			fp.oplock = smb.OPLOCK_LEVEL_II
			fp.opState = opHeld
		default:
			fp.oplock = smb.OPLOCK_NONE
			fp.opState = opNone
		}
		fp.cond.Broadcast()
	}
	fp.mu.Unlock()
}

// releaseOplock drops whatever oplock fp holds without notifying anyone,
// used on close.
func (s *server) releaseOplock(fp *open) {
	fp.mu.Lock()
	fp.oplock = smb.OPLOCK_NONE
	if fp.opState == opBreaking {
		fp.cond.Broadcast()
	}
	fp.opState = opNone
	fp.mu.Unlock()
}

// breakLevel2 notifies every level-II holder of m other than writer before
// a write or truncate lands. Notifications are one-way.
func (s *server) breakLevel2(m *mfile, writer *open) {
	m.mu.Lock()
	var holders []*open
	for other := range m.opens {
		if other == writer {
			continue
		}
		other.mu.Lock()
		if other.opState == opHeld && other.oplock == smb.OPLOCK_LEVEL_II {
			other.oplock = smb.OPLOCK_NONE
			other.opState = opNone
			holders = append(holders, other)
		}
		other.mu.Unlock()
	}
	m.mu.Unlock()

	for _, other := range holders {
		other.session.connection.send(smb.EncodeOplockBreak(other.tree.tid, uint16(other.fid), smb.OPLOCK_NONE))
	}
}
