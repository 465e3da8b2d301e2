package smb

import (
	"encoding/binary"

	"github.com/vstarodubtsev/cifsd/utils"
)

// TreeConnectRequest is the TREE_CONNECT_ANDX request.
type TreeConnectRequest struct {
	AndX     AndX
	Flags    uint16
	Password []byte
	Path     string // UNC path, \\server\share
	Service  string
}

// Decode parses the tree connect request.
func (r *TreeConnectRequest) Decode(h Header, words, data []byte) error {
	if len(words) != 8 {
		return ErrWrongParameters
	}
	andx, err := DecodeAndX(words)
	if err != nil {
		return err
	}
	r.AndX = andx
	r.Flags = binary.LittleEndian.Uint16(words[4:6])
	pwLen := int(binary.LittleEndian.Uint16(words[6:8]))
	if pwLen > len(data) {
		return ErrWrongDataLength
	}
	r.Password = data[:pwLen]
	rest := data[pwLen:]

	r.Path = DecodePath(rest, h.IsUnicode())
	if h.IsUnicode() {
		skip := utils.EncodedStringLen(r.Path) + 2
		if len(rest) > 0 && rest[0] == 0 {
			skip++
		}
		if skip < len(rest) {
			r.Service = DecodePath(rest[skip:], false)
		}
	} else if len(r.Path)+1 < len(rest) {
		r.Service = DecodePath(rest[len(r.Path)+1:], false)
	}
	return nil
}

// TreeConnectResponse is the extended TREE_CONNECT_ANDX response.
type TreeConnectResponse struct {
	OptionalSupport          uint16
	MaximalShareAccessRights uint32
	GuestMaximalAccessRights uint32
	Service                  string
	NativeFileSystem         string
}

// Encode writes the seven-word tree connect response into resp.
func (r *TreeConnectResponse) Encode(resp *Response) error {
	words := make([]byte, 14)
	binary.LittleEndian.PutUint16(words[4:6], r.OptionalSupport)
	binary.LittleEndian.PutUint32(words[6:10], r.MaximalShareAccessRights)
	binary.LittleEndian.PutUint32(words[10:14], r.GuestMaximalAccessRights)

	data := make([]byte, 0, len(r.Service)+1+len(r.NativeFileSystem)*2+2)
	data = append(data, []byte(r.Service)...)
	data = append(data, 0)
	if r.NativeFileSystem != "" {
		data = append(data, utils.EncodeStringToBytes(r.NativeFileSystem)...)
		data = append(data, 0, 0)
	}
	return resp.PutBody(words, data)
}

// ShareName extracts the share component from a UNC path of the form
// \\server\share. It returns an empty string if the path is malformed.
func ShareName(path string) string {
	if len(path) < 2 || path[0] != '\\' || path[1] != '\\' {
		return ""
	}
	rest := path[2:]
	for i := 0; i < len(rest); i++ {
		if rest[i] == '\\' {
			if i+1 >= len(rest) {
				return ""
			}
			return rest[i+1:]
		}
	}
	return ""
}

// EncodeTreeDisconnectResponse writes the empty tree disconnect response.
func EncodeTreeDisconnectResponse(resp *Response) error {
	return resp.PutBody(nil, nil)
}
