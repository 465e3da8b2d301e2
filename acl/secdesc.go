package acl

import (
	"encoding/binary"
	"errors"
)

// Security descriptor revision and control flags.
const (
	SDRevision = 1

	OwnerDefaulted = 0x0001
	GroupDefaulted = 0x0002
	DaclPresent    = 0x0004
	SelfRelative   = 0x8000
)

// SecurityInformation flags selecting descriptor parts.
const (
	OwnerSecInfo = 0x00000001
	GroupSecInfo = 0x00000002
	DaclSecInfo  = 0x00000004
	SaclSecInfo  = 0x00000008
)

const sdHeaderSize = 20

var ErrBadDescriptor = errors.New("malformed security descriptor")

// SecurityDescriptor is a parsed self-relative NT security descriptor.
// Absent parts are nil.
type SecurityDescriptor struct {
	Type  uint16
	Owner *SID
	Group *SID
	DACL  *DACL
}

// ParseSecurityDescriptor unmarshals a self-relative descriptor.
func ParseSecurityDescriptor(b []byte) (*SecurityDescriptor, error) {
	if len(b) < sdHeaderSize {
		return nil, ErrBadDescriptor
	}
	sd := &SecurityDescriptor{
		Type: binary.LittleEndian.Uint16(b[2:4]),
	}
	ownerOff := int(binary.LittleEndian.Uint32(b[4:8]))
	groupOff := int(binary.LittleEndian.Uint32(b[8:12]))
	daclOff := int(binary.LittleEndian.Uint32(b[16:20]))

	if ownerOff > 0 {
		if ownerOff >= len(b) {
			return nil, ErrBadDescriptor
		}
		sd.Owner = new(SID)
		if err := sd.Owner.Decode(b[ownerOff:]); err != nil {
			return nil, err
		}
	}
	if groupOff > 0 {
		if groupOff >= len(b) {
			return nil, ErrBadDescriptor
		}
		sd.Group = new(SID)
		if err := sd.Group.Decode(b[groupOff:]); err != nil {
			return nil, err
		}
	}
	if daclOff > 0 {
		if daclOff >= len(b) {
			return nil, ErrBadDescriptor
		}
		dacl, err := ParseDACL(b[daclOff:])
		if err != nil {
			return nil, err
		}
		sd.DACL = dacl
	}
	return sd, nil
}

// BuildSecurityDescriptor marshals the parts selected by secInfo into a
// self-relative descriptor. Owner and group present in the descriptor mark
// the corresponding defaulted control bits, matching what a mode-derived
// descriptor is.
func BuildSecurityDescriptor(owner, group *SID, dacl *DACL, secInfo uint32) ([]byte, error) {
	size := sdHeaderSize
	sdType := uint16(SelfRelative)

	ownerOff, groupOff, daclOff := 0, 0, 0
	if secInfo&OwnerSecInfo > 0 && owner != nil {
		ownerOff = size
		size += owner.Size()
		sdType |= OwnerDefaulted
	}
	if secInfo&GroupSecInfo > 0 && group != nil {
		groupOff = size
		size += group.Size()
		sdType |= GroupDefaulted
	}
	if secInfo&DaclSecInfo > 0 && dacl != nil {
		daclOff = size
		size += dacl.Size()
		sdType |= DaclPresent
	}

	b := make([]byte, size)
	b[0] = SDRevision
	binary.LittleEndian.PutUint16(b[2:4], sdType)
	binary.LittleEndian.PutUint32(b[4:8], uint32(ownerOff))
	binary.LittleEndian.PutUint32(b[8:12], uint32(groupOff))
	binary.LittleEndian.PutUint32(b[16:20], uint32(daclOff))

	if ownerOff > 0 {
		if _, err := owner.Encode(b[ownerOff:]); err != nil {
			return nil, err
		}
	}
	if groupOff > 0 {
		if _, err := group.Encode(b[groupOff:]); err != nil {
			return nil, err
		}
	}
	if daclOff > 0 {
		if _, err := dacl.Encode(b[daclOff:]); err != nil {
			return nil, err
		}
	}
	return b, nil
}
