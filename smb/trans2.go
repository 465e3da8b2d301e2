package smb

import (
	"encoding/binary"

	"github.com/vstarodubtsev/cifsd/utils"
)

// Find flags in the FindFirst2/FindNext2 parameter block.
const (
	SMB_SEARCH_CLOSE_AFTER_REQUEST = 0x0001
	SMB_SEARCH_CLOSE_AT_END        = 0x0002
	SMB_SEARCH_RETURN_RESUME       = 0x0004
	SMB_SEARCH_CONTINUE_FROM_LAST  = 0x0008
	SMB_SEARCH_BACKUP_INTENT       = 0x0010
)

// decodeTransPath reads a null-terminated path from a Transaction2
// parameter block. Parameter-block strings carry no format byte and no
// alignment pad.
func decodeTransPath(b []byte, unicode bool) (string, error) {
	if unicode {
		for i := 0; i+1 < len(b); i += 2 {
			if b[i] == 0 && b[i+1] == 0 {
				return utils.DecodeToString(b[:i]), nil
			}
		}
	} else {
		for i := range b {
			if b[i] == 0 {
				return string(b[:i]), nil
			}
		}
	}
	return "", ErrWrongDataLength
}

// QueryPathInfoParams is the TRANS2_QUERY_PATH_INFORMATION parameter block.
type QueryPathInfoParams struct {
	InformationLevel uint16
	Path             string
}

func (p *QueryPathInfoParams) Decode(h Header, params []byte) error {
	if len(params) < 7 {
		return ErrWrongParameters
	}
	p.InformationLevel = binary.LittleEndian.Uint16(params[0:2])
	path, err := decodeTransPath(params[6:], h.IsUnicode())
	if err != nil {
		return err
	}
	p.Path = path
	return nil
}

// SetPathInfoParams is the TRANS2_SET_PATH_INFORMATION parameter block.
type SetPathInfoParams struct {
	InformationLevel uint16
	Path             string
}

func (p *SetPathInfoParams) Decode(h Header, params []byte) error {
	if len(params) < 7 {
		return ErrWrongParameters
	}
	p.InformationLevel = binary.LittleEndian.Uint16(params[0:2])
	path, err := decodeTransPath(params[6:], h.IsUnicode())
	if err != nil {
		return err
	}
	p.Path = path
	return nil
}

// QueryFileInfoParams is the TRANS2_QUERY_FILE_INFORMATION parameter block.
type QueryFileInfoParams struct {
	Fid              uint16
	InformationLevel uint16
}

func (p *QueryFileInfoParams) Decode(params []byte) error {
	if len(params) < 4 {
		return ErrWrongParameters
	}
	p.Fid = binary.LittleEndian.Uint16(params[0:2])
	p.InformationLevel = binary.LittleEndian.Uint16(params[2:4])
	return nil
}

// SetFileInfoParams is the TRANS2_SET_FILE_INFORMATION parameter block.
type SetFileInfoParams struct {
	Fid              uint16
	InformationLevel uint16
}

func (p *SetFileInfoParams) Decode(params []byte) error {
	if len(params) < 4 {
		return ErrWrongParameters
	}
	p.Fid = binary.LittleEndian.Uint16(params[0:2])
	p.InformationLevel = binary.LittleEndian.Uint16(params[2:4])
	return nil
}

// QueryFsInfoParams is the TRANS2_QUERY_FS_INFORMATION parameter block.
type QueryFsInfoParams struct {
	InformationLevel uint16
}

func (p *QueryFsInfoParams) Decode(params []byte) error {
	if len(params) < 2 {
		return ErrWrongParameters
	}
	p.InformationLevel = binary.LittleEndian.Uint16(params[0:2])
	return nil
}

// FindFirstParams is the TRANS2_FIND_FIRST2 parameter block.
type FindFirstParams struct {
	SearchAttributes uint16
	SearchCount      uint16
	Flags            uint16
	InformationLevel uint16
	Pattern          string
}

func (p *FindFirstParams) Decode(h Header, params []byte) error {
	if len(params) < 13 {
		return ErrWrongParameters
	}
	p.SearchAttributes = binary.LittleEndian.Uint16(params[0:2])
	p.SearchCount = binary.LittleEndian.Uint16(params[2:4])
	p.Flags = binary.LittleEndian.Uint16(params[4:6])
	p.InformationLevel = binary.LittleEndian.Uint16(params[6:8])
	pattern, err := decodeTransPath(params[12:], h.IsUnicode())
	if err != nil {
		return err
	}
	p.Pattern = pattern
	return nil
}

// FindNextParams is the TRANS2_FIND_NEXT2 parameter block.
type FindNextParams struct {
	SearchID         uint16
	SearchCount      uint16
	InformationLevel uint16
	ResumeKey        uint32
	Flags            uint16
	Pattern          string
}

func (p *FindNextParams) Decode(h Header, params []byte) error {
	if len(params) < 13 {
		return ErrWrongParameters
	}
	p.SearchID = binary.LittleEndian.Uint16(params[0:2])
	p.SearchCount = binary.LittleEndian.Uint16(params[2:4])
	p.InformationLevel = binary.LittleEndian.Uint16(params[4:6])
	p.ResumeKey = binary.LittleEndian.Uint32(params[6:10])
	p.Flags = binary.LittleEndian.Uint16(params[10:12])
	pattern, err := decodeTransPath(params[12:], h.IsUnicode())
	if err != nil {
		return err
	}
	p.Pattern = pattern
	return nil
}

// FindFirstResultParams is the TRANS2_FIND_FIRST2 response parameter block.
type FindFirstResultParams struct {
	SearchID       uint16
	SearchCount    uint16
	EndOfSearch    bool
	LastNameOffset uint16
}

func (p *FindFirstResultParams) Encode() []byte {
	b := make([]byte, 10)
	binary.LittleEndian.PutUint16(b[0:2], p.SearchID)
	binary.LittleEndian.PutUint16(b[2:4], p.SearchCount)
	if p.EndOfSearch {
		binary.LittleEndian.PutUint16(b[4:6], 1)
	}
	binary.LittleEndian.PutUint16(b[8:10], p.LastNameOffset)
	return b
}

// FindNextResultParams is the TRANS2_FIND_NEXT2 response parameter block.
type FindNextResultParams struct {
	SearchCount    uint16
	EndOfSearch    bool
	LastNameOffset uint16
}

func (p *FindNextResultParams) Encode() []byte {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint16(b[0:2], p.SearchCount)
	if p.EndOfSearch {
		binary.LittleEndian.PutUint16(b[2:4], 1)
	}
	binary.LittleEndian.PutUint16(b[6:8], p.LastNameOffset)
	return b
}

// CreateDirectoryParams is the TRANS2_CREATE_DIRECTORY parameter block.
type CreateDirectoryParams struct {
	Path string
}

func (p *CreateDirectoryParams) Decode(h Header, params []byte) error {
	if len(params) < 5 {
		return ErrWrongParameters
	}
	path, err := decodeTransPath(params[4:], h.IsUnicode())
	if err != nil {
		return err
	}
	p.Path = path
	return nil
}

// GetDfsReferralParams is the TRANS2_GET_DFS_REFERRAL parameter block.
type GetDfsReferralParams struct {
	MaxReferralLevel uint16
	Path             string
}

func (p *GetDfsReferralParams) Decode(h Header, params []byte) error {
	if len(params) < 3 {
		return ErrWrongParameters
	}
	p.MaxReferralLevel = binary.LittleEndian.Uint16(params[0:2])
	path, err := decodeTransPath(params[2:], h.IsUnicode())
	if err != nil {
		return err
	}
	p.Path = path
	return nil
}
