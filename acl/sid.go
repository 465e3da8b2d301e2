// Package acl translates between POSIX ownership and NT security
// descriptors: SID and DACL wire marshalling, mode folding, and the
// id-to-SID resolver used when clients query or set file security.
package acl

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

const (
	// MaxSubAuthorities caps the subauthority array of a SID.
	MaxSubAuthorities = 15
	// NumAuthorities is the size of the identifier authority field.
	NumAuthorities = 6
	// SidBaseSize is the wire size of a SID with no subauthorities.
	SidBaseSize = 8
)

var (
	ErrSidTooShort = errors.New("buffer too short for SID")
	ErrSidSubAuth  = errors.New("too many SID subauthorities")
	ErrUnresolved  = errors.New("identity not resolved")
)

// SID is an NT security identifier.
type SID struct {
	Revision       uint8
	Authority      [NumAuthorities]byte
	SubAuthorities []uint32
}

// Well-known identities.
var (
	// Everyone is S-1-1-0.
	Everyone = SID{Revision: 1, Authority: [6]byte{0, 0, 0, 0, 0, 1}, SubAuthorities: []uint32{0}}
	// AuthenticatedUsers is S-1-5-11.
	AuthenticatedUsers = SID{Revision: 1, Authority: [6]byte{0, 0, 0, 0, 0, 5}, SubAuthorities: []uint32{11}}
	// UnixUsers is the Samba-style unmapped owner domain S-1-22-1.
	UnixUsers = SID{Revision: 1, Authority: [6]byte{0, 0, 0, 0, 0, 22}, SubAuthorities: []uint32{1}}
	// UnixGroups is the Samba-style unmapped group domain S-1-22-2.
	UnixGroups = SID{Revision: 1, Authority: [6]byte{0, 0, 0, 0, 0, 22}, SubAuthorities: []uint32{2}}
	// NFSUsers is the NFS/Mac-style owner domain S-1-5-88-1.
	NFSUsers = SID{Revision: 1, Authority: [6]byte{0, 0, 0, 0, 0, 5}, SubAuthorities: []uint32{88, 1}}
	// NFSGroups is the NFS/Mac-style group domain S-1-5-88-2.
	NFSGroups = SID{Revision: 1, Authority: [6]byte{0, 0, 0, 0, 0, 5}, SubAuthorities: []uint32{88, 2}}
	// NFSMode is the NFS/Mac-style mode carrier S-1-5-88-3.
	NFSMode = SID{Revision: 1, Authority: [6]byte{0, 0, 0, 0, 0, 5}, SubAuthorities: []uint32{88, 3}}
)

// Size returns the wire size of the SID.
func (s *SID) Size() int {
	return SidBaseSize + 4*len(s.SubAuthorities)
}

// Encode marshals the SID into b and returns the bytes written. The
// identifier authority is big endian, the subauthorities little endian.
func (s *SID) Encode(b []byte) (int, error) {
	if len(s.SubAuthorities) > MaxSubAuthorities {
		return 0, ErrSidSubAuth
	}
	if len(b) < s.Size() {
		return 0, ErrSidTooShort
	}
	b[0] = s.Revision
	b[1] = uint8(len(s.SubAuthorities))
	copy(b[2:8], s.Authority[:])
	for i, sa := range s.SubAuthorities {
		binary.LittleEndian.PutUint32(b[8+4*i:], sa)
	}
	return s.Size(), nil
}

// Decode unmarshals a SID from b.
func (s *SID) Decode(b []byte) error {
	if len(b) < SidBaseSize {
		return ErrSidTooShort
	}
	count := int(b[1])
	if count > MaxSubAuthorities {
		return ErrSidSubAuth
	}
	if len(b) < SidBaseSize+4*count {
		return ErrSidTooShort
	}
	s.Revision = b[0]
	copy(s.Authority[:], b[2:8])
	s.SubAuthorities = make([]uint32, count)
	for i := range s.SubAuthorities {
		s.SubAuthorities[i] = binary.LittleEndian.Uint32(b[8+4*i:])
	}
	return nil
}

// Compare orders two SIDs: revision, then the six authority bytes, then
// the common prefix of the subauthorities. Equal-prefix SIDs of different
// lengths compare equal, matching the ACE match semantics.
func Compare(a, b *SID) int {
	if a.Revision != b.Revision {
		if a.Revision > b.Revision {
			return 1
		}
		return -1
	}
	for i := 0; i < NumAuthorities; i++ {
		if a.Authority[i] != b.Authority[i] {
			if a.Authority[i] > b.Authority[i] {
				return 1
			}
			return -1
		}
	}
	n := len(a.SubAuthorities)
	if len(b.SubAuthorities) < n {
		n = len(b.SubAuthorities)
	}
	for i := 0; i < n; i++ {
		if a.SubAuthorities[i] != b.SubAuthorities[i] {
			if a.SubAuthorities[i] > b.SubAuthorities[i] {
				return 1
			}
			return -1
		}
	}
	return 0
}

// Equal reports whether two SIDs match under Compare, additionally
// requiring the same subauthority count.
func Equal(a, b *SID) bool {
	return len(a.SubAuthorities) == len(b.SubAuthorities) && Compare(a, b) == 0
}

// Clone copies the SID, truncating oversized subauthority arrays.
func (s *SID) Clone() SID {
	out := SID{Revision: s.Revision, Authority: s.Authority}
	n := len(s.SubAuthorities)
	if n > MaxSubAuthorities {
		n = MaxSubAuthorities
	}
	out.SubAuthorities = append([]uint32(nil), s.SubAuthorities[:n]...)
	return out
}

// WithRID appends one relative identifier to a domain SID.
func (s *SID) WithRID(rid uint32) SID {
	out := s.Clone()
	out.SubAuthorities = append(out.SubAuthorities, rid)
	return out
}

// String renders the S-1-... textual form.
func (s *SID) String() string {
	var sb strings.Builder
	auth := uint64(0)
	for _, b := range s.Authority {
		auth = auth<<8 | uint64(b)
	}
	fmt.Fprintf(&sb, "S-%d-%d", s.Revision, auth)
	for _, sa := range s.SubAuthorities {
		fmt.Fprintf(&sb, "-%d", sa)
	}
	return sb.String()
}

// UnixUserSID maps a uid into the S-1-5-88-1 domain.
func UnixUserSID(uid uint32) SID {
	return NFSUsers.WithRID(uid)
}

// UnixGroupSID maps a gid into the S-1-5-88-2 domain.
func UnixGroupSID(gid uint32) SID {
	return NFSGroups.WithRID(gid)
}

// UnixID recovers a uid or gid from a SID in one of the unmapped Unix
// domains. It understands both the two-subauthority Samba form and the
// three-subauthority NFS/Mac form.
func UnixID(s *SID, group bool) (uint32, bool) {
	var domain *SID
	switch len(s.SubAuthorities) {
	case 2:
		domain = &UnixUsers
		if group {
			domain = &UnixGroups
		}
	case 3:
		domain = &NFSUsers
		if group {
			domain = &NFSGroups
		}
	default:
		return 0, false
	}
	if Compare(s, domain) != 0 {
		return 0, false
	}
	return s.SubAuthorities[len(s.SubAuthorities)-1], true
}
