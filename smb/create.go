package smb

import (
	"encoding/binary"
	"time"

	"github.com/vstarodubtsev/cifsd/utils"
)

const (
	// NT create flags.
	REQUEST_OPLOCK            = 0x00000002
	REQUEST_BATCH_OPLOCK      = 0x00000004
	REQUEST_EXTENDED_RESPONSE = 0x00000010
)

// NTCreateRequest is the NT_CREATE_ANDX request.
type NTCreateRequest struct {
	AndX              AndX
	NameLength        uint16
	Flags             uint32
	RootDirectoryFid  uint32
	DesiredAccess     uint32
	AllocationSize    uint64
	FileAttributes    uint32
	ShareAccess       uint32
	CreateDisposition uint32
	CreateOptions     uint32
	SecurityFlags     uint8
	FileName          string
}

// Decode parses the 24-word NT create request.
func (r *NTCreateRequest) Decode(h Header, words, data []byte) error {
	if len(words) != 48 {
		return ErrWrongParameters
	}
	andx, err := DecodeAndX(words)
	if err != nil {
		return err
	}
	r.AndX = andx
	r.NameLength = binary.LittleEndian.Uint16(words[5:7])
	r.Flags = binary.LittleEndian.Uint32(words[7:11])
	r.RootDirectoryFid = binary.LittleEndian.Uint32(words[11:15])
	r.DesiredAccess = binary.LittleEndian.Uint32(words[15:19])
	r.AllocationSize = binary.LittleEndian.Uint64(words[19:27])
	r.FileAttributes = binary.LittleEndian.Uint32(words[27:31])
	r.ShareAccess = binary.LittleEndian.Uint32(words[31:35])
	r.CreateDisposition = binary.LittleEndian.Uint32(words[35:39])
	r.CreateOptions = binary.LittleEndian.Uint32(words[39:43])
	r.SecurityFlags = words[47]

	if int(r.NameLength) > len(data) {
		return ErrWrongDataLength
	}
	r.FileName = DecodePath(data, h.IsUnicode())
	return nil
}

// WantsOplock reports whether the client requested an exclusive or batch oplock.
func (r *NTCreateRequest) WantsOplock() bool {
	return r.Flags&(REQUEST_OPLOCK|REQUEST_BATCH_OPLOCK) > 0
}

// WantsBatchOplock reports whether the client requested a batch oplock.
func (r *NTCreateRequest) WantsBatchOplock() bool {
	return r.Flags&REQUEST_BATCH_OPLOCK > 0
}

// NTCreateResponse is the NT_CREATE_ANDX response, optionally in the
// extended form carrying maximal access rights.
type NTCreateResponse struct {
	OplockLevel    uint8
	Fid            uint16
	CreateAction   uint32
	CreationTime   time.Time
	LastAccessTime time.Time
	LastWriteTime  time.Time
	ChangeTime     time.Time
	FileAttributes uint32
	AllocationSize uint64
	EndOfFile      uint64
	FileType       uint16
	DeviceState    uint16
	IsDirectory    bool

	// Extended form.
	Extended            bool
	MaximalAccessRights uint32
	GuestMaximalAccess  uint32
}

// Encode writes the 34-word (or 42-word extended) NT create response.
func (r *NTCreateResponse) Encode(resp *Response) error {
	size := 68
	if r.Extended {
		size = 84
	}
	words := make([]byte, size)
	words[4] = r.OplockLevel
	binary.LittleEndian.PutUint16(words[5:7], r.Fid)
	binary.LittleEndian.PutUint32(words[7:11], r.CreateAction)
	binary.LittleEndian.PutUint64(words[11:19], utils.UnixToFiletime(r.CreationTime))
	binary.LittleEndian.PutUint64(words[19:27], utils.UnixToFiletime(r.LastAccessTime))
	binary.LittleEndian.PutUint64(words[27:35], utils.UnixToFiletime(r.LastWriteTime))
	binary.LittleEndian.PutUint64(words[35:43], utils.UnixToFiletime(r.ChangeTime))
	binary.LittleEndian.PutUint32(words[43:47], r.FileAttributes)
	binary.LittleEndian.PutUint64(words[47:55], r.AllocationSize)
	binary.LittleEndian.PutUint64(words[55:63], r.EndOfFile)
	binary.LittleEndian.PutUint16(words[63:65], r.FileType)
	binary.LittleEndian.PutUint16(words[65:67], r.DeviceState)
	if r.IsDirectory {
		words[67] = 1
	}
	if r.Extended {
		// Sixteen reserved bytes, then the access rights pair.
		binary.LittleEndian.PutUint32(words[76:80], r.MaximalAccessRights)
		binary.LittleEndian.PutUint32(words[80:84], r.GuestMaximalAccess)
	}
	return resp.PutBody(words, nil)
}

const (
	// OpenAndX open functions.
	OPENX_FILE_EXISTS_FAIL      = 0x0000
	OPENX_FILE_EXISTS_OPEN      = 0x0001
	OPENX_FILE_EXISTS_TRUNCATE  = 0x0002
	OPENX_FILE_CREATE_IF_ABSENT = 0x0010

	// OpenAndX access modes (low nibble of the Mode word).
	OPENX_MODE_READ   = 0x0000
	OPENX_MODE_WRITE  = 0x0001
	OPENX_MODE_RDWR   = 0x0002
	OPENX_MODE_EXEC   = 0x0003

	// OpenAndX sharing modes (bits 4-6 of the Mode word).
	OPENX_SHARE_COMPAT     = 0x0000
	OPENX_SHARE_DENY_ALL   = 0x0010
	OPENX_SHARE_DENY_WRITE = 0x0020
	OPENX_SHARE_DENY_READ  = 0x0030
	OPENX_SHARE_DENY_NONE  = 0x0040
)

// OpenRequest is the OPEN_ANDX request.
type OpenRequest struct {
	AndX             AndX
	Flags            uint16
	Mode             uint16
	SearchAttributes uint16
	FileAttributes   uint16
	CreationTime     time.Time
	OpenFunction     uint16
	AllocationSize   uint32
	FileName         string
}

// Decode parses the 15-word OpenAndX request.
func (r *OpenRequest) Decode(h Header, words, data []byte) error {
	if len(words) != 30 {
		return ErrWrongParameters
	}
	andx, err := DecodeAndX(words)
	if err != nil {
		return err
	}
	r.AndX = andx
	r.Flags = binary.LittleEndian.Uint16(words[4:6])
	r.Mode = binary.LittleEndian.Uint16(words[6:8])
	r.SearchAttributes = binary.LittleEndian.Uint16(words[8:10])
	r.FileAttributes = binary.LittleEndian.Uint16(words[10:12])
	r.CreationTime = time.Unix(int64(binary.LittleEndian.Uint32(words[12:16])), 0)
	r.OpenFunction = binary.LittleEndian.Uint16(words[16:18])
	r.AllocationSize = binary.LittleEndian.Uint32(words[18:22])
	r.FileName = DecodePath(data, h.IsUnicode())
	return nil
}

// SharingMode returns the sharing bits of the Mode word.
func (r *OpenRequest) SharingMode() uint16 {
	return r.Mode & 0x70
}

// AccessMode returns the access bits of the Mode word.
func (r *OpenRequest) AccessMode() uint16 {
	return r.Mode & 0x07
}

// OpenResponse is the OPEN_ANDX response.
type OpenResponse struct {
	Fid            uint16
	FileAttributes uint16
	LastWriteTime  time.Time
	DataSize       uint32
	GrantedAccess  uint16
	FileType       uint16
	DeviceState    uint16
	Action         uint16
}

// Encode writes the 15-word OpenAndX response.
func (r *OpenResponse) Encode(resp *Response) error {
	words := make([]byte, 30)
	binary.LittleEndian.PutUint16(words[4:6], r.Fid)
	binary.LittleEndian.PutUint16(words[6:8], r.FileAttributes)
	binary.LittleEndian.PutUint32(words[8:12], uint32(r.LastWriteTime.Unix()))
	binary.LittleEndian.PutUint32(words[12:16], r.DataSize)
	binary.LittleEndian.PutUint16(words[16:18], r.GrantedAccess)
	binary.LittleEndian.PutUint16(words[18:20], r.FileType)
	binary.LittleEndian.PutUint16(words[20:22], r.DeviceState)
	binary.LittleEndian.PutUint16(words[22:24], r.Action)
	return resp.PutBody(words, nil)
}

// CloseRequest is the CLOSE request.
type CloseRequest struct {
	Fid           uint16
	LastWriteTime uint32
}

// Decode parses the three-word close request.
func (r *CloseRequest) Decode(words []byte) error {
	if len(words) != 6 {
		return ErrWrongParameters
	}
	r.Fid = binary.LittleEndian.Uint16(words[0:2])
	r.LastWriteTime = binary.LittleEndian.Uint32(words[2:6])
	return nil
}

// FlushRequest is the FLUSH request.
type FlushRequest struct {
	Fid uint16
}

// Decode parses the one-word flush request. A Fid of 0xffff flushes
// everything open on the session.
func (r *FlushRequest) Decode(words []byte) error {
	if len(words) != 2 {
		return ErrWrongParameters
	}
	r.Fid = binary.LittleEndian.Uint16(words[0:2])
	return nil
}

// EchoRequest is the ECHO request.
type EchoRequest struct {
	EchoCount uint16
	Data      []byte
}

// Decode parses the echo request.
func (r *EchoRequest) Decode(words, data []byte) error {
	if len(words) != 2 {
		return ErrWrongParameters
	}
	r.EchoCount = binary.LittleEndian.Uint16(words[0:2])
	r.Data = data
	return nil
}

// EncodeEchoResponse writes one echo reply carrying the sequence number and
// the echoed payload.
func EncodeEchoResponse(resp *Response, seq uint16, data []byte) error {
	words := make([]byte, 2)
	binary.LittleEndian.PutUint16(words, seq)
	return resp.PutBody(words, data)
}
