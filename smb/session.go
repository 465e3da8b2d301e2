package smb

import (
	"encoding/binary"

	"github.com/vstarodubtsev/cifsd/utils"
)

const (
	// AuthRespSize is the length of a classic 24-byte NTLM response.
	AuthRespSize = 24

	// EncPwdSize is the size of the fixed part of an NTLMv2 response.
	EncPwdSize = 16
)

// SessionSetupRequest is the SESSION_SETUP_ANDX request. Two word-count
// variants exist: the classic 13-word form carrying the LM and NT responses
// inline, and the 12-word extended-security form carrying a SPNEGO blob.
type SessionSetupRequest struct {
	AndX          AndX
	MaxBufferSize uint16
	MaxMpxCount   uint16
	VcNumber      uint16
	Capabilities  uint32

	// Classic form.
	CaseInsensitivePassword []byte // LM or LMv2 response
	CaseSensitivePassword   []byte // NT or NTv2 response
	AccountName             string
	PrimaryDomain           string

	// Extended-security form.
	ExtendedSecurity bool
	SecurityBlob     []byte
}

// Decode parses either variant of the session setup request.
func (r *SessionSetupRequest) Decode(h Header, words, data []byte) error {
	switch len(words) {
	case 26: // classic, 13 words
		andx, err := DecodeAndX(words)
		if err != nil {
			return err
		}
		r.AndX = andx
		r.MaxBufferSize = binary.LittleEndian.Uint16(words[4:6])
		r.MaxMpxCount = binary.LittleEndian.Uint16(words[6:8])
		r.VcNumber = binary.LittleEndian.Uint16(words[8:10])
		ciLen := int(binary.LittleEndian.Uint16(words[14:16]))
		csLen := int(binary.LittleEndian.Uint16(words[16:18]))
		r.Capabilities = binary.LittleEndian.Uint32(words[22:26])

		if ciLen+csLen > len(data) {
			return ErrWrongDataLength
		}
		r.CaseInsensitivePassword = data[:ciLen]
		r.CaseSensitivePassword = data[ciLen : ciLen+csLen]

		rest := data[ciLen+csLen:]
		if h.IsUnicode() {
			r.AccountName = DecodePath(rest, true)
			skip := utils.EncodedStringLen(r.AccountName) + 2
			if len(rest) > 0 && rest[0] == 0 {
				skip++
			}
			if skip < len(rest) {
				r.PrimaryDomain = DecodePath(rest[skip:], true)
			}
		} else {
			r.AccountName = DecodePath(rest, false)
			skip := len(r.AccountName) + 1
			if skip < len(rest) {
				r.PrimaryDomain = DecodePath(rest[skip:], false)
			}
		}
		return nil

	case 24: // extended security, 12 words
		andx, err := DecodeAndX(words)
		if err != nil {
			return err
		}
		r.AndX = andx
		r.ExtendedSecurity = true
		r.MaxBufferSize = binary.LittleEndian.Uint16(words[4:6])
		r.MaxMpxCount = binary.LittleEndian.Uint16(words[6:8])
		r.VcNumber = binary.LittleEndian.Uint16(words[8:10])
		blobLen := int(binary.LittleEndian.Uint16(words[14:16]))
		r.Capabilities = binary.LittleEndian.Uint32(words[20:24])

		if blobLen > len(data) {
			return ErrWrongDataLength
		}
		r.SecurityBlob = data[:blobLen]
		return nil
	}

	return ErrWrongParameters
}

// SessionSetupResponse is the SESSION_SETUP_ANDX response.
type SessionSetupResponse struct {
	Action       uint16
	SecurityBlob []byte // non-nil selects the extended-security form
	Extended     bool
}

// Encode writes the response body into resp. The AndX block is patched by
// the chain walker afterwards.
func (r *SessionSetupResponse) Encode(resp *Response) error {
	if r.Extended {
		words := make([]byte, 8)
		binary.LittleEndian.PutUint16(words[4:6], r.Action)
		binary.LittleEndian.PutUint16(words[6:8], uint16(len(r.SecurityBlob)))
		return resp.PutBody(words, r.SecurityBlob)
	}

	words := make([]byte, 6)
	binary.LittleEndian.PutUint16(words[4:6], r.Action)
	return resp.PutBody(words, nil)
}

// LogoffRequest is the LOGOFF_ANDX request.
type LogoffRequest struct {
	AndX AndX
}

// Decode parses the logoff request words.
func (r *LogoffRequest) Decode(words []byte) error {
	andx, err := DecodeAndX(words)
	if err != nil {
		return err
	}
	r.AndX = andx
	return nil
}

// EncodeLogoffResponse writes the two-word logoff response.
func EncodeLogoffResponse(resp *Response) error {
	return resp.PutBody(make([]byte, 4), nil)
}
