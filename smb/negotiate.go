package smb

import (
	"encoding/binary"
	"time"

	"github.com/vstarodubtsev/cifsd/utils"
)

const (
	// ChallengeSize is the length of the server challenge sent in the
	// negotiate response.
	ChallengeSize = 8
)

// NegotiateRequest carries the dialect strings offered by the client.
type NegotiateRequest struct {
	Dialects []string
}

// Decode parses the negotiate request byte area: a sequence of
// 0x02-prefixed, null-terminated dialect strings.
func (nr *NegotiateRequest) Decode(words, data []byte) error {
	if len(words) != 0 {
		return ErrWrongParameters
	}
	if len(data) < 2 {
		return ErrWrongDataLength
	}
	if data[0] != 0x02 {
		return ErrWrongArgument
	}

	nr.Dialects = nil
	for len(data) > 0 {
		if data[0] != 0x02 {
			break
		}
		data = data[1:]
		i := 0
		for i < len(data) && data[i] != 0 {
			i++
		}
		nr.Dialects = append(nr.Dialects, string(data[:i]))
		if i == len(data) {
			break
		}
		data = data[i+1:]
	}

	if len(nr.Dialects) == 0 {
		return ErrWrongDataLength
	}
	return nil
}

// BestDialect scans the offered list and returns the index of the best
// dialect the server speaks. SMB2 offers win over NT1; the caller turns an
// SMB2 pick into a dialect-escalation response.
func (nr *NegotiateRequest) BestDialect() (index int, dialect string) {
	index, dialect = -1, ""
	for i, d := range nr.Dialects {
		switch d {
		case SMB_DIALECT_SMB2, SMB_DIALECT_MULTI:
			return i, d
		case SMB_DIALECT_NT1:
			index, dialect = i, d
		}
	}
	return
}

// NegotiateResponse is the NT LM 0.12 negotiate response. When SecurityBlob
// is set the extended-security form is produced: the byte area carries the
// server GUID and the SPNEGO hint token instead of the challenge and domain.
type NegotiateResponse struct {
	DialectIndex  uint16
	SecurityMode  uint8
	MaxMpxCount   uint16
	MaxBufferSize uint32
	MaxRawSize    uint32
	Capabilities  uint32
	SystemTime    time.Time
	Challenge     []byte
	DomainName    string
	ServerGuid    [16]byte
	SecurityBlob  []byte
}

// Encode writes the 17-word negotiate response into resp.
func (nr *NegotiateResponse) Encode(resp *Response) error {
	words := make([]byte, 34)
	binary.LittleEndian.PutUint16(words[0:2], nr.DialectIndex)
	words[2] = nr.SecurityMode
	binary.LittleEndian.PutUint16(words[3:5], nr.MaxMpxCount)
	binary.LittleEndian.PutUint16(words[5:7], 1) // MaxNumberVcs
	binary.LittleEndian.PutUint32(words[7:11], nr.MaxBufferSize)
	binary.LittleEndian.PutUint32(words[11:15], nr.MaxRawSize)
	binary.LittleEndian.PutUint32(words[15:19], 0) // SessionKey
	binary.LittleEndian.PutUint32(words[19:23], nr.Capabilities)
	binary.LittleEndian.PutUint64(words[23:31], utils.UnixToFiletime(nr.SystemTime))
	_, tz := nr.SystemTime.Zone()
	binary.LittleEndian.PutUint16(words[31:33], uint16(int16(tz/60)))

	if nr.SecurityBlob != nil {
		data := make([]byte, 0, 16+len(nr.SecurityBlob))
		data = append(data, nr.ServerGuid[:]...)
		data = append(data, nr.SecurityBlob...)
		return resp.PutBody(words, data)
	}

	words[33] = uint8(len(nr.Challenge))
	data := make([]byte, 0, len(nr.Challenge)+len(nr.DomainName)*2+2)
	data = append(data, nr.Challenge...)
	data = append(data, utils.EncodeStringToBytes(nr.DomainName)...)
	data = append(data, 0, 0)

	return resp.PutBody(words, data)
}

// EncodeDialectOnly writes the short negotiate response used when no
// acceptable dialect was offered: a single DialectIndex word.
func EncodeDialectOnly(resp *Response, index uint16) error {
	words := make([]byte, 2)
	binary.LittleEndian.PutUint16(words, index)
	return resp.PutBody(words, nil)
}
