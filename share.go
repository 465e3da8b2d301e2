package main

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/vstarodubtsev/cifsd/smb"
	"github.com/vstarodubtsev/cifsd/stores"
	"github.com/vstarodubtsev/cifsd/vfs"
)

const maxShareUses = 256

var (
	errShareExists      = errors.New("share already registered")
	errShareUnavailable = errors.New("share currently unavailable")
)

// share is one exported directory tree. The policy fields come from the
// share store; the vfs confines every path to the root.
type share struct {
	name     string
	remark   string
	writable bool
	users    []string
	fs       *vfs.FS

	createdAt time.Time
	volumeID  uint64
	maxUses   int

	mu   sync.Mutex
	uses int
}

// registerShare adds a new disk share to the server. The share root must
// exist and be a directory.
func (s *server) registerShare(st stores.Share) error {
	s.mu.Lock()
	_, exists := s.shareList[st.Name]
	caseless := s.caseless
	s.mu.Unlock()
	if exists {
		return errShareExists
	}

	sh := &share{
		name:     st.Name,
		remark:   st.Remark,
		writable: st.Writable,
		users:    st.Users,
		fs:       vfs.New(st.Path, caseless),
		maxUses:  maxShareUses,
	}

	root, err := sh.fs.Stat(".")
	if err != nil {
		return err
	}
	if !root.IsDir() {
		return errShareUnavailable
	}
	sh.createdAt = root.CreationTime

	vid := make([]byte, 8)
	rand.Read(vid)
	sh.volumeID = binary.LittleEndian.Uint64(vid)

	s.mu.Lock()
	s.shareList[st.Name] = sh
	s.mu.Unlock()

	return nil
}

// unregisterShare removes a share. Trees connected to it keep working until
// they disconnect.
func (s *server) unregisterShare(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sh, ok := s.shareList[name]
	if !ok {
		return false
	}
	delete(s.shareList, sh.name)
	return true
}

// findShare looks up a share by its case-insensitive name.
func (s *server) findShare(name string) (*share, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for n, sh := range s.shareList {
		if equalFold(n, name) {
			return sh, true
		}
	}
	return nil, false
}

// allows reports whether the user may connect to this share.
func (sh *share) allows(user string) bool {
	if len(sh.users) == 0 {
		return true
	}
	for _, u := range sh.users {
		if equalFold(u, user) {
			return true
		}
	}
	return false
}

// maximalAccess returns the access mask granted on tree connect.
func (sh *share) maximalAccess() uint32 {
	access := uint32(smb.FILE_READ_RIGHTS | smb.FILE_EXEC_RIGHTS)
	if sh.writable {
		access |= smb.FILE_WRITE_RIGHTS | smb.DELETE | smb.FILE_DELETE_CHILD
	}
	return access
}

// serialNo derives the share's volume serial number from its volume ID.
func (sh *share) serialNo() uint32 {
	return uint32(sh.volumeID)
}

func (sh *share) acquire() error {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.uses >= sh.maxUses {
		return errShareUnavailable
	}
	sh.uses++
	return nil
}

func (sh *share) release() {
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if sh.uses > 0 {
		sh.uses--
	}
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}
