package acl

import (
	"encoding/binary"
	"errors"

	"github.com/vstarodubtsev/cifsd/smb"
)

// ACE types.
const (
	AccessAllowed = 0x00
	AccessDenied  = 0x01
)

// ACL revision stamped into built DACLs.
const ACLRevision = 2

const (
	aclHeaderSize = 8
	aceHeaderSize = 8
	minAceSize    = 16
)

// POSIX permission bit groups.
const (
	ModeRWXU = 0o700
	ModeRWXG = 0o070
	ModeRWXO = 0o007
	ModeRUGO = 0o444
	ModeWUGO = 0o222
	ModeXUGO = 0o111
)

var (
	ErrAclTooShort = errors.New("buffer too short for ACL")
	ErrAceTooSmall = errors.New("ACE size below minimum")
	ErrAccess      = errors.New("access denied by DACL")
)

// ACE is one access control entry.
type ACE struct {
	Type   uint8
	Flags  uint8
	Access uint32
	SID    SID
}

// Size returns the wire size of the ACE.
func (a *ACE) Size() int {
	return aceHeaderSize + a.SID.Size()
}

// Encode marshals the ACE into b and returns the bytes written.
func (a *ACE) Encode(b []byte) (int, error) {
	size := a.Size()
	if len(b) < size {
		return 0, ErrAclTooShort
	}
	b[0] = a.Type
	b[1] = a.Flags
	binary.LittleEndian.PutUint16(b[2:4], uint16(size))
	binary.LittleEndian.PutUint32(b[4:8], a.Access)
	if _, err := a.SID.Encode(b[8:]); err != nil {
		return 0, err
	}
	return size, nil
}

// DACL is a discretionary access control list.
type DACL struct {
	Revision uint8
	ACEs     []ACE
}

// ParseDACL unmarshals an ACL. Each ACE carries its own size; entries
// smaller than the 16-byte minimum or running past the buffer abort the
// parse.
func ParseDACL(b []byte) (*DACL, error) {
	if len(b) < aclHeaderSize {
		return nil, ErrAclTooShort
	}
	size := int(binary.LittleEndian.Uint16(b[2:4]))
	count := int(binary.LittleEndian.Uint32(b[4:8]))
	if size > len(b) {
		return nil, ErrAclTooShort
	}

	d := &DACL{Revision: b[0], ACEs: make([]ACE, 0, count)}
	off := aclHeaderSize
	for i := 0; i < count; i++ {
		if off+minAceSize > size {
			return nil, ErrAceTooSmall
		}
		aceSize := int(binary.LittleEndian.Uint16(b[off+2 : off+4]))
		if aceSize < minAceSize || off+aceSize > size {
			return nil, ErrAceTooSmall
		}
		var ace ACE
		ace.Type = b[off]
		ace.Flags = b[off+1]
		ace.Access = binary.LittleEndian.Uint32(b[off+4 : off+8])
		if err := ace.SID.Decode(b[off+8 : off+aceSize]); err != nil {
			return nil, err
		}
		d.ACEs = append(d.ACEs, ace)
		off += aceSize
	}
	return d, nil
}

// Size returns the wire size of the DACL.
func (d *DACL) Size() int {
	size := aclHeaderSize
	for i := range d.ACEs {
		size += d.ACEs[i].Size()
	}
	return size
}

// Encode marshals the DACL into b and returns the bytes written.
func (d *DACL) Encode(b []byte) (int, error) {
	size := d.Size()
	if len(b) < size {
		return 0, ErrAclTooShort
	}
	b[0] = d.Revision
	b[1] = 0
	binary.LittleEndian.PutUint16(b[2:4], uint16(size))
	binary.LittleEndian.PutUint32(b[4:8], uint32(len(d.ACEs)))
	off := aclHeaderSize
	for i := range d.ACEs {
		n, err := d.ACEs[i].Encode(b[off:])
		if err != nil {
			return 0, err
		}
		off += n
	}
	return size, nil
}

// modeToAccess maps the permission bits selected by mask to NT rights.
func modeToAccess(mode, mask uint32) uint32 {
	mode &= mask
	var access uint32
	if mode&ModeRUGO > 0 {
		access |= smb.FILE_READ_RIGHTS
	}
	if mode&ModeWUGO > 0 {
		access |= smb.FILE_WRITE_RIGHTS
	}
	if mode&ModeXUGO > 0 {
		access |= smb.FILE_EXEC_RIGHTS
	}
	if access == 0 {
		// Minimum rights so the owner can still stat the file.
		access = smb.FILE_READ_ATTRIBUTES | smb.READ_CONTROL | smb.SYNCHRONIZE
	}
	return access
}

// accessToMode folds one ACE into mode. Deny entries clear bits from the
// remaining mask instead, so that later allow entries cannot turn denied
// bits back on; the ACE order therefore matters, deny entries first.
func accessToMode(access uint32, aceType uint8, mode, mask *uint32) {
	if aceType == AccessDenied {
		if access&smb.GENERIC_ALL > 0 {
			*mask &^= ModeRWXU | ModeRWXG | ModeRWXO
		}
		if access&smb.GENERIC_WRITE > 0 || access&smb.FILE_WRITE_RIGHTS == smb.FILE_WRITE_RIGHTS {
			*mask &^= ModeWUGO
		}
		if access&smb.GENERIC_READ > 0 || access&smb.FILE_READ_RIGHTS == smb.FILE_READ_RIGHTS {
			*mask &^= ModeRUGO
		}
		if access&smb.GENERIC_EXECUTE > 0 || access&smb.FILE_EXEC_RIGHTS == smb.FILE_EXEC_RIGHTS {
			*mask &^= ModeXUGO
		}
		return
	}
	if aceType != AccessAllowed {
		return
	}
	if access&smb.GENERIC_ALL > 0 {
		*mode |= (ModeRWXU | ModeRWXG | ModeRWXO) & *mask
		return
	}
	if access&smb.GENERIC_WRITE > 0 || access&smb.FILE_WRITE_RIGHTS == smb.FILE_WRITE_RIGHTS {
		*mode |= ModeWUGO & *mask
	}
	if access&smb.GENERIC_READ > 0 || access&smb.FILE_READ_RIGHTS == smb.FILE_READ_RIGHTS {
		*mode |= ModeRUGO & *mask
	}
	if access&smb.GENERIC_EXECUTE > 0 || access&smb.FILE_EXEC_RIGHTS == smb.FILE_EXEC_RIGHTS {
		*mode |= ModeXUGO & *mask
	}
}

// Mode folds the DACL into POSIX permission bits for the given owner and
// group. A nil DACL grants everything; an empty one grants nothing.
func (d *DACL) Mode(owner, group *SID) uint32 {
	if d == nil {
		return ModeRWXU | ModeRWXG | ModeRWXO
	}
	var mode uint32
	userMask := uint32(ModeRWXU)
	groupMask := uint32(ModeRWXG)
	otherMask := uint32(ModeRWXU | ModeRWXG | ModeRWXO)
	for i := range d.ACEs {
		ace := &d.ACEs[i]
		if Compare(&ace.SID, owner) == 0 {
			accessToMode(ace.Access, ace.Type, &mode, &userMask)
		}
		if Compare(&ace.SID, group) == 0 {
			accessToMode(ace.Access, ace.Type, &mode, &groupMask)
		}
		if Compare(&ace.SID, &Everyone) == 0 {
			accessToMode(ace.Access, ace.Type, &mode, &otherMask)
		}
		if Compare(&ace.SID, &AuthenticatedUsers) == 0 {
			accessToMode(ace.Access, ace.Type, &mode, &otherMask)
		}
	}
	return mode
}

// ChmodDACL builds the three-entry allow DACL expressing mode for owner,
// group and Everyone.
func ChmodDACL(owner, group *SID, mode uint32) *DACL {
	return &DACL{
		Revision: ACLRevision,
		ACEs: []ACE{
			{Type: AccessAllowed, Access: modeToAccess(mode, ModeRWXU), SID: owner.Clone()},
			{Type: AccessAllowed, Access: modeToAccess(mode, ModeRWXG), SID: group.Clone()},
			{Type: AccessAllowed, Access: modeToAccess(mode, ModeRWXO), SID: Everyone.Clone()},
		},
	}
}

// checkACE tests one matching ACE against the desired access mask.
func checkACE(access uint32, aceType uint8, desired uint32) error {
	if aceType == AccessDenied {
		if access&(smb.GENERIC_ALL|smb.MAXIMUM_ALLOWED) > 0 {
			return ErrAccess
		}
		if desired&access&smb.FILE_READ_RIGHTS > 0 ||
			desired&access&smb.FILE_WRITE_RIGHTS > 0 ||
			desired&access&smb.GENERIC_READ > 0 ||
			desired&access&smb.GENERIC_WRITE > 0 {
			return ErrAccess
		}
		return nil
	}
	if aceType != AccessAllowed {
		return ErrAccess
	}
	if access&(smb.GENERIC_ALL|smb.MAXIMUM_ALLOWED) > 0 {
		return nil
	}
	if desired&smb.GENERIC_READ > 0 && access&smb.GENERIC_READ == 0 &&
		access&smb.FILE_READ_RIGHTS != smb.FILE_READ_RIGHTS {
		return ErrAccess
	}
	if desired&smb.GENERIC_WRITE > 0 && access&smb.GENERIC_WRITE == 0 &&
		access&smb.FILE_WRITE_RIGHTS != smb.FILE_WRITE_RIGHTS {
		return ErrAccess
	}
	if desired&smb.FILE_READ_RIGHTS&^access > 0 && access&smb.GENERIC_READ == 0 {
		return ErrAccess
	}
	if desired&smb.FILE_WRITE_RIGHTS&^access > 0 && access&smb.GENERIC_WRITE == 0 {
		return ErrAccess
	}
	return nil
}

// CheckPermission walks the DACL and tests every ACE matching the caller's
// SID against the desired access. No matching ACE means no access.
func (d *DACL) CheckPermission(caller *SID, desired uint32) error {
	if d == nil || len(d.ACEs) == 0 {
		return ErrAccess
	}
	matched := false
	for i := range d.ACEs {
		ace := &d.ACEs[i]
		if Compare(&ace.SID, caller) != 0 {
			continue
		}
		matched = true
		if err := checkACE(ace.Access, ace.Type, desired); err != nil {
			return err
		}
	}
	if !matched {
		return ErrAccess
	}
	return nil
}
