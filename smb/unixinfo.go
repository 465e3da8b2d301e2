package smb

import (
	"encoding/binary"
	"time"

	"github.com/vstarodubtsev/cifsd/utils"
)

// File types of the CIFS Unix extensions.
const (
	UNIX_TYPE_FILE = iota
	UNIX_TYPE_DIR
	UNIX_TYPE_SYMLINK
	UNIX_TYPE_CHARDEV
	UNIX_TYPE_BLKDEV
	UNIX_TYPE_FIFO
	UNIX_TYPE_SOCKET
)

// UnixNoChange marks a numeric field of a set block the client left
// untouched.
const UnixNoChange = 0xffffffffffffffff

// UnixBasicInfo is the 100-byte UNIX_BASIC block shared by the query and
// set levels of the Unix extensions. On the set path, zero times and
// UnixNoChange ids mean the field stays as is.
type UnixBasicInfo struct {
	EndOfFile    uint64
	AllocSize    uint64
	StatusChange time.Time
	LastAccess   time.Time
	LastModify   time.Time
	UID          uint64
	GID          uint64
	Type         uint32
	DevMajor     uint64
	DevMinor     uint64
	UniqueID     uint64
	Permissions  uint64
	Nlinks       uint64
}

func (u *UnixBasicInfo) Encode() []byte {
	b := make([]byte, 100)
	binary.LittleEndian.PutUint64(b[0:8], u.EndOfFile)
	binary.LittleEndian.PutUint64(b[8:16], u.AllocSize)
	binary.LittleEndian.PutUint64(b[16:24], utils.UnixToFiletime(u.StatusChange))
	binary.LittleEndian.PutUint64(b[24:32], utils.UnixToFiletime(u.LastAccess))
	binary.LittleEndian.PutUint64(b[32:40], utils.UnixToFiletime(u.LastModify))
	binary.LittleEndian.PutUint64(b[40:48], u.UID)
	binary.LittleEndian.PutUint64(b[48:56], u.GID)
	binary.LittleEndian.PutUint32(b[56:60], u.Type)
	binary.LittleEndian.PutUint64(b[60:68], u.DevMajor)
	binary.LittleEndian.PutUint64(b[68:76], u.DevMinor)
	binary.LittleEndian.PutUint64(b[76:84], u.UniqueID)
	binary.LittleEndian.PutUint64(b[84:92], u.Permissions)
	binary.LittleEndian.PutUint64(b[92:100], u.Nlinks)
	return b
}

func (u *UnixBasicInfo) Decode(data []byte) error {
	if len(data) < 100 {
		return ErrWrongDataLength
	}
	u.EndOfFile = binary.LittleEndian.Uint64(data[0:8])
	u.AllocSize = binary.LittleEndian.Uint64(data[8:16])
	u.StatusChange = decodeSetTime(data[16:24])
	u.LastAccess = decodeSetTime(data[24:32])
	u.LastModify = decodeSetTime(data[32:40])
	u.UID = binary.LittleEndian.Uint64(data[40:48])
	u.GID = binary.LittleEndian.Uint64(data[48:56])
	u.Type = binary.LittleEndian.Uint32(data[56:60])
	u.DevMajor = binary.LittleEndian.Uint64(data[60:68])
	u.DevMinor = binary.LittleEndian.Uint64(data[68:76])
	u.UniqueID = binary.LittleEndian.Uint64(data[76:84])
	u.Permissions = binary.LittleEndian.Uint64(data[84:92])
	u.Nlinks = binary.LittleEndian.Uint64(data[92:100])
	return nil
}

// EncodeUnixLink marshals a symlink target for the UNIX_LINK query level.
func EncodeUnixLink(target string, unicode bool) []byte {
	if unicode {
		enc := utils.EncodeStringToBytes(target)
		return append(enc, 0, 0)
	}
	return append([]byte(target), 0)
}

// DecodeUnixLink unmarshals the symlink target of the UNIX_LINK set level.
func DecodeUnixLink(data []byte, unicode bool) (string, error) {
	if unicode {
		for i := 0; i+1 < len(data); i += 2 {
			if data[i] == 0 && data[i+1] == 0 {
				return utils.DecodeToString(data[:i]), nil
			}
		}
		return utils.DecodeToString(data), nil
	}
	for i := range data {
		if data[i] == 0 {
			return string(data[:i]), nil
		}
	}
	return string(data), nil
}

// Open flags of the POSIX_OPEN set level.
const (
	SMB_O_RDONLY    = 0x0001
	SMB_O_WRONLY    = 0x0002
	SMB_O_RDWR      = 0x0004
	SMB_O_CREAT     = 0x0010
	SMB_O_EXCL      = 0x0020
	SMB_O_TRUNC     = 0x0040
	SMB_O_APPEND    = 0x0080
	SMB_O_SYNC      = 0x0100
	SMB_O_DIRECTORY = 0x0200
	SMB_O_NOFOLLOW  = 0x0400
	SMB_O_DIRECT    = 0x0800
)

// PosixOpenParams is the POSIX_OPEN request block.
type PosixOpenParams struct {
	Flags       uint32
	PosixFlags  uint32
	Permissions uint64
	Level       uint16
}

func (p *PosixOpenParams) Decode(data []byte) error {
	if len(data) < 18 {
		return ErrWrongDataLength
	}
	p.Flags = binary.LittleEndian.Uint32(data[0:4])
	p.PosixFlags = binary.LittleEndian.Uint32(data[4:8])
	p.Permissions = binary.LittleEndian.Uint64(data[8:16])
	p.Level = binary.LittleEndian.Uint16(data[16:18])
	return nil
}

// PosixOpenResponse is the POSIX_OPEN reply block, optionally followed by
// a UNIX_BASIC block when ReturnedLevel says so.
type PosixOpenResponse struct {
	OplockFlags   uint16
	Fid           uint16
	CreateAction  uint32
	ReturnedLevel uint16
	Info          []byte
}

func (r *PosixOpenResponse) Encode() []byte {
	b := make([]byte, 12, 12+len(r.Info))
	binary.LittleEndian.PutUint16(b[0:2], r.OplockFlags)
	binary.LittleEndian.PutUint16(b[2:4], r.Fid)
	binary.LittleEndian.PutUint32(b[4:8], r.CreateAction)
	binary.LittleEndian.PutUint16(b[8:10], r.ReturnedLevel)
	return append(b, r.Info...)
}

// DecodePosixUnlinkType reads the POSIX_UNLINK type field: 0 for a file,
// 1 for a directory.
func DecodePosixUnlinkType(data []byte) (uint16, error) {
	if len(data) < 2 {
		return 0, ErrWrongDataLength
	}
	return binary.LittleEndian.Uint16(data[0:2]), nil
}

// Unix extension capability bits advertised by QUERY_CIFS_UNIX_INFO.
const (
	CIFS_UNIX_FCNTL_LOCKS_CAP    = 0x0001
	CIFS_UNIX_POSIX_ACLS_CAP     = 0x0002
	CIFS_UNIX_XATTR_CAP          = 0x0004
	CIFS_UNIX_EXTATTR_CAP        = 0x0008
	CIFS_UNIX_POSIX_PATHNAME_CAP = 0x0010
)

// EncodeCifsUnixInfo marshals the QUERY_CIFS_UNIX_INFO block: protocol
// version 1.0 plus the capability mask.
func EncodeCifsUnixInfo(caps uint64) []byte {
	b := make([]byte, 12)
	binary.LittleEndian.PutUint16(b[0:2], 1)
	binary.LittleEndian.PutUint16(b[2:4], 0)
	binary.LittleEndian.PutUint64(b[4:12], caps)
	return b
}
