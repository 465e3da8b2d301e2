package smb

import (
	"encoding/binary"
	"time"

	"github.com/vstarodubtsev/cifsd/utils"
)

const bufferFormatASCII = 0x04

// decodeFormattedPath reads one 0x04-prefixed path string starting at off
// and returns the path plus the offset past its terminator. Unicode strings
// are padded to a two-byte boundary after the format byte.
func decodeFormattedPath(data []byte, off int, unicode bool) (string, int, error) {
	if off >= len(data) || data[off] != bufferFormatASCII {
		return "", 0, ErrWrongDataLength
	}
	off++
	if unicode {
		if off%2 != 0 {
			off++
		}
		for i := off; i+1 < len(data); i += 2 {
			if data[i] == 0 && data[i+1] == 0 {
				return utils.DecodeToString(data[off:i]), i + 2, nil
			}
		}
	} else {
		for i := off; i < len(data); i++ {
			if data[i] == 0 {
				return string(data[off:i]), i + 1, nil
			}
		}
	}
	return "", 0, ErrWrongDataLength
}

// PathRequest covers the single-path commands: create directory, delete
// directory, check directory and query information, whose body is just one
// 0x04-prefixed path.
type PathRequest struct {
	Path string
}

func (r *PathRequest) Decode(h Header, words, data []byte) error {
	if len(words) != 0 {
		return ErrWrongParameters
	}
	path, _, err := decodeFormattedPath(data, 0, h.IsUnicode())
	if err != nil {
		return err
	}
	r.Path = path
	return nil
}

// DeleteRequest is the core DELETE request.
type DeleteRequest struct {
	SearchAttributes uint16
	Path             string
}

func (r *DeleteRequest) Decode(h Header, words, data []byte) error {
	if len(words) != 2 {
		return ErrWrongParameters
	}
	r.SearchAttributes = binary.LittleEndian.Uint16(words)
	path, _, err := decodeFormattedPath(data, 0, h.IsUnicode())
	if err != nil {
		return err
	}
	r.Path = path
	return nil
}

// RenameRequest is the core RENAME request with two formatted paths.
type RenameRequest struct {
	SearchAttributes uint16
	OldPath          string
	NewPath          string
}

func (r *RenameRequest) Decode(h Header, words, data []byte) error {
	if len(words) != 2 {
		return ErrWrongParameters
	}
	r.SearchAttributes = binary.LittleEndian.Uint16(words)
	return decodePathPair(h, data, &r.OldPath, &r.NewPath)
}

// Hard link creation via NT_RENAME.
const SMB_NT_RENAME_SET_LINK_INFO = 0x0103

// NTRenameRequest is the NT_RENAME request, used by clients to create
// hard links.
type NTRenameRequest struct {
	SearchAttributes uint16
	InformationLevel uint16
	OldPath          string
	NewPath          string
}

func (r *NTRenameRequest) Decode(h Header, words, data []byte) error {
	if len(words) != 8 {
		return ErrWrongParameters
	}
	r.SearchAttributes = binary.LittleEndian.Uint16(words[0:2])
	r.InformationLevel = binary.LittleEndian.Uint16(words[2:4])
	return decodePathPair(h, data, &r.OldPath, &r.NewPath)
}

func decodePathPair(h Header, data []byte, oldPath, newPath *string) error {
	unicode := h.IsUnicode()
	p1, next, err := decodeFormattedPath(data, 0, unicode)
	if err != nil {
		return err
	}
	p2, _, err := decodeFormattedPath(data, next, unicode)
	if err != nil {
		return err
	}
	*oldPath = p1
	*newPath = p2
	return nil
}

// QueryInformationResponse is the ten-word core QUERY_INFORMATION response.
type QueryInformationResponse struct {
	FileAttributes uint16
	LastWriteTime  uint32
	FileSize       uint32
}

func (r *QueryInformationResponse) Encode(resp *Response) error {
	words := make([]byte, 20)
	binary.LittleEndian.PutUint16(words[0:2], r.FileAttributes)
	binary.LittleEndian.PutUint32(words[2:6], r.LastWriteTime)
	binary.LittleEndian.PutUint32(words[6:10], r.FileSize)
	return resp.PutBody(words, nil)
}

// SetInformationRequest is the eight-word core SET_INFORMATION request.
type SetInformationRequest struct {
	FileAttributes uint16
	LastWriteTime  uint32
	Path           string
}

func (r *SetInformationRequest) Decode(h Header, words, data []byte) error {
	if len(words) != 16 {
		return ErrWrongParameters
	}
	r.FileAttributes = binary.LittleEndian.Uint16(words[0:2])
	r.LastWriteTime = binary.LittleEndian.Uint32(words[2:6])
	path, _, err := decodeFormattedPath(data, 0, h.IsUnicode())
	if err != nil {
		return err
	}
	r.Path = path
	return nil
}

// QueryInformation2Request is the one-word fid-based QUERY_INFORMATION2
// request.
type QueryInformation2Request struct {
	Fid uint16
}

func (r *QueryInformation2Request) Decode(words []byte) error {
	if len(words) != 2 {
		return ErrWrongParameters
	}
	r.Fid = binary.LittleEndian.Uint16(words)
	return nil
}

// QueryInformation2Response is the eleven-word QUERY_INFORMATION2 response
// carrying DOS date/time pairs.
type QueryInformation2Response struct {
	CreationTime time.Time
	AccessTime   time.Time
	WriteTime    time.Time
	FileSize     uint32
	AllocSize    uint32
	Attributes   uint16
}

func (r *QueryInformation2Response) Encode(resp *Response) error {
	words := make([]byte, 22)
	putDosDateTime(words[0:4], r.CreationTime)
	putDosDateTime(words[4:8], r.AccessTime)
	putDosDateTime(words[8:12], r.WriteTime)
	binary.LittleEndian.PutUint32(words[12:16], r.FileSize)
	binary.LittleEndian.PutUint32(words[16:20], r.AllocSize)
	binary.LittleEndian.PutUint16(words[20:22], r.Attributes)
	return resp.PutBody(words, nil)
}

func putDosDateTime(b []byte, t time.Time) {
	dosTime, dosDate := utils.UnixToDosTime(t)
	binary.LittleEndian.PutUint16(b[0:2], dosDate)
	binary.LittleEndian.PutUint16(b[2:4], dosTime)
}

// SetInformation2Request is the seven-word fid-based SET_INFORMATION2
// request. A zero date/time pair means the field is unchanged.
type SetInformation2Request struct {
	Fid          uint16
	CreationTime time.Time
	AccessTime   time.Time
	WriteTime    time.Time
}

func (r *SetInformation2Request) Decode(words []byte) error {
	if len(words) != 14 {
		return ErrWrongParameters
	}
	r.Fid = binary.LittleEndian.Uint16(words[0:2])
	r.CreationTime = getDosDateTime(words[2:6])
	r.AccessTime = getDosDateTime(words[6:10])
	r.WriteTime = getDosDateTime(words[10:14])
	return nil
}

func getDosDateTime(b []byte) time.Time {
	dosDate := binary.LittleEndian.Uint16(b[0:2])
	dosTime := binary.LittleEndian.Uint16(b[2:4])
	if dosDate == 0 && dosTime == 0 {
		return time.Time{}
	}
	return utils.DosTimeToUnix(dosTime, dosDate)
}

// FindClose2Request is the one-word FIND_CLOSE2 request.
type FindClose2Request struct {
	SearchID uint16
}

func (r *FindClose2Request) Decode(words []byte) error {
	if len(words) != 2 {
		return ErrWrongParameters
	}
	r.SearchID = binary.LittleEndian.Uint16(words)
	return nil
}
