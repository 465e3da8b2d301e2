package main

import (
	"errors"
	"os"
	"sync"
	"time"

	"github.com/vstarodubtsev/cifsd/rpc"
	"github.com/vstarodubtsev/cifsd/smb"
	"github.com/vstarodubtsev/cifsd/vfs"
)

const (
	// Access masks folded for sharing-mode checks.
	fileGenericRead   = smb.FILE_READ_DATA | smb.FILE_EXECUTE
	fileGenericWrite  = smb.FILE_WRITE_DATA | smb.FILE_APPEND_DATA
	fileGenericDelete = smb.DELETE

	shareRead   = smb.FILE_SHARE_READ
	shareWrite  = smb.FILE_SHARE_WRITE
	shareDelete = smb.FILE_SHARE_DELETE
)

const (
	fpActive int = iota
	fpFreeing
)

// freeWaitTimeout bounds how long a close waits for in-flight users of the
// handle to drain before giving up.
const freeWaitTimeout = 10 * time.Second

var (
	errBadFid     = errors.New("no such file handle")
	errFileClosed = errors.New("file handle is being closed")
)

// open is one file handle. Disk opens carry an os.File, an mfile anchor and
// an optional alternate-stream name; IPC opens carry a pipe transport
// instead. The cond serializes close against in-flight requests and carries
// oplock break acknowledgements.
type open struct {
	fid          uint32
	persistentID uint32
	session      *session
	tree         *treeConnect

	// Disk opens.
	mfp    *mfile
	file   *os.File
	path   string // share-relative
	stream string // ADS name, empty for the unnamed stream
	pid    uint32

	// IPC opens.
	pipe rpc.Transport
	name string // pipe name as requested

	grantedAccess uint32
	shareAccess   uint32
	createOptions uint32
	attributes    uint32
	directory     bool
	deleteOnClose bool

	mu      sync.Mutex
	cond    *sync.Cond
	state   int
	users   int
	oplock  uint8 // smb.OPLOCK_* wire level
	opState int

	openedAt time.Time
}

func newOpen(ss *session, tc *treeConnect) *open {
	fp := &open{
		session:  ss,
		tree:     tc,
		openedAt: time.Now(),
	}
	fp.cond = sync.NewCond(&fp.mu)
	return fp
}

// lockOwner returns the byte-range lock identity of this handle.
func (fp *open) lockOwner(pid uint32) vfs.LockOwner {
	return vfs.LockOwner{
		Session: fp.session.globalID,
		Fid:     fp.fid,
		PID:     pid,
	}
}

// get pins the handle for one request. It fails once a close has marked the
// handle freeing.
func (fp *open) get() error {
	fp.mu.Lock()
	defer fp.mu.Unlock()
	if fp.state != fpActive {
		return errFileClosed
	}
	fp.users++
	return nil
}

// put releases one pin and wakes a waiting close.
func (fp *open) put() {
	fp.mu.Lock()
	fp.users--
	if fp.users == 0 {
		fp.cond.Broadcast()
	}
	fp.mu.Unlock()
}

// markFreeing flips the handle to freeing and waits for pinned users to
// drain. A handle stuck past the bound indicates a lost put; that is a bug
// worth dying for rather than corrupting the table.
func (fp *open) markFreeing() error {
	fp.mu.Lock()
	defer fp.mu.Unlock()

	if fp.state != fpActive {
		return errFileClosed
	}
	fp.state = fpFreeing

	deadline := time.Now().Add(freeWaitTimeout)
	for fp.users > 0 {
		waitCond(fp.cond, deadline, "file handle users did not drain")
	}
	return nil
}

// waitCond waits on c until it is signalled, panicking if the deadline
// passes first. Caller holds the cond's lock.
func waitCond(c *sync.Cond, deadline time.Time, msg string) {
	done := make(chan struct{})
	go func() {
		select {
		case <-done:
		case <-time.After(time.Until(deadline)):
			panic(msg)
		}
	}()
	c.Wait()
	close(done)
}

// lookupOpen resolves a wire fid on the session and pins the handle. The
// caller must put() it when done.
func (ss *session) lookupOpen(fid uint16) (*open, error) {
	fp, ok := ss.fids.Lookup(uint32(fid))
	if !ok {
		return nil, errBadFid
	}
	if err := fp.get(); err != nil {
		return nil, err
	}
	return fp, nil
}

// installOpen binds the handle into the session fid table and the global
// persistent table. Disk handles must already be registered on their mfile
// anchor, under the same lock as the sharing-mode check.
func (s *server) installOpen(ss *session, fp *open) error {
	fid, err := ss.fids.Acquire(fp)
	if err != nil {
		return err
	}
	fp.fid = fid

	pid, err := s.persistent.Acquire(&durableState{
		fp:       fp,
		owner:    ss.user,
		openedAt: fp.openedAt,
	})
	if err != nil {
		ss.fids.Release(fid)
		return err
	}
	fp.persistentID = pid

	s.mu.Lock()
	s.stats.fOpens++
	s.mu.Unlock()
	return nil
}

// closeOpen tears the handle down: drains users, releases byte-range locks
// and the oplock, fires delete-on-close on the last open, and returns the
// ids to their tables.
func (s *server) closeOpen(ss *session, fp *open) error {
	if err := fp.markFreeing(); err != nil {
		return err
	}

	ss.fids.Release(fp.fid)
	s.persistent.Release(fp.persistentID)

	if fp.pipe != nil {
		fp.pipe.Close()
		s.mu.Lock()
		s.stats.fOpens--
		s.mu.Unlock()
		return nil
	}

	if fp.mfp != nil {
		s.locks.ReleaseOwner(fp.lockOwner(fp.pid))
		s.releaseOplock(fp)

		last, deletePending := fp.mfp.removeOpen(fp)
		if last && (deletePending || fp.deleteOnClose) {
			s.removeOnClose(fp)
		}
		s.inodes.release(fp.mfp)
	}

	var err error
	if fp.file != nil {
		err = fp.file.Close()
	}

	s.mu.Lock()
	s.stats.fOpens--
	s.mu.Unlock()
	return err
}

// removeOnClose deletes the file or stream behind a handle whose last open
// carried the delete disposition.
func (s *server) removeOnClose(fp *open) {
	fs := fp.tree.share.fs
	var err error
	switch {
	case fp.stream != "":
		err = fs.RemoveStream(fp.path, fp.stream)
	case fp.directory:
		err = fs.Rmdir(fp.path)
	default:
		err = fs.Unlink(fp.path)
	}
	if err != nil {
		s.debugf("delete on close of %s failed: %v", fp.path, err)
	}
}

// durableState is the global persistent table entry for one open: enough to
// identify the handle and its owner across the control surface.
type durableState struct {
	fp       *open
	owner    string
	openedAt time.Time
}
