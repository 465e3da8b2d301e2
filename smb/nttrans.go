package smb

import (
	"encoding/binary"
)

// NT_TRANSACT functions.
const (
	NT_TRANSACT_CREATE              = 0x0001
	NT_TRANSACT_IOCTL               = 0x0002
	NT_TRANSACT_SET_SECURITY_DESC   = 0x0003
	NT_TRANSACT_NOTIFY_CHANGE       = 0x0004
	NT_TRANSACT_RENAME              = 0x0005
	NT_TRANSACT_QUERY_SECURITY_DESC = 0x0006
)

// NTTransRequest is the SMB_COM_NT_TRANSACT request: like the TRANSACTION
// family but with 32-bit counts and the function in the word area.
type NTTransRequest struct {
	MaxSetupCount     uint8
	MaxParameterCount uint32
	MaxDataCount      uint32
	Function          uint16
	Setup             []uint16
	Parameters        []byte
	Data              []byte
}

// Decode parses an NT_TRANSACT request. msg is the full PDU starting at
// the SMB header.
func (r *NTTransRequest) Decode(msg, words []byte) error {
	if len(words) < 38 {
		return ErrWrongParameters
	}
	setupCount := int(words[35])
	if len(words) != 38+2*setupCount {
		return ErrWrongParameters
	}

	r.MaxSetupCount = words[0]
	r.MaxParameterCount = binary.LittleEndian.Uint32(words[11:15])
	r.MaxDataCount = binary.LittleEndian.Uint32(words[15:19])
	paramCount := int(binary.LittleEndian.Uint32(words[19:23]))
	paramOff := int(binary.LittleEndian.Uint32(words[23:27]))
	dataCount := int(binary.LittleEndian.Uint32(words[27:31]))
	dataOff := int(binary.LittleEndian.Uint32(words[31:35]))
	r.Function = binary.LittleEndian.Uint16(words[36:38])

	r.Setup = make([]uint16, setupCount)
	for i := range r.Setup {
		r.Setup[i] = binary.LittleEndian.Uint16(words[38+2*i:])
	}

	if paramOff+paramCount > len(msg) || dataOff+dataCount > len(msg) {
		return ErrBadOffset
	}
	if paramCount > 0 && paramOff < HeaderSize {
		return ErrBadOffset
	}
	if dataCount > 0 && dataOff < HeaderSize {
		return ErrBadOffset
	}
	r.Parameters = msg[paramOff : paramOff+paramCount]
	r.Data = msg[dataOff : dataOff+dataCount]
	return nil
}

// NTTransResponse is the SMB_COM_NT_TRANSACT response.
type NTTransResponse struct {
	Setup      []uint16
	Parameters []byte
	Data       []byte
}

// Encode writes the eighteen-word (plus setup) NT transaction response
// with the parameter block after a single pad byte and the data block
// right behind it.
func (r *NTTransResponse) Encode(resp *Response) error {
	words := make([]byte, 36+2*len(r.Setup))
	paramOff := resp.BodyOffset() + 1 + len(words) + 2 + 1
	dataOff := paramOff + len(r.Parameters)

	binary.LittleEndian.PutUint32(words[3:7], uint32(len(r.Parameters)))
	binary.LittleEndian.PutUint32(words[7:11], uint32(len(r.Data)))
	binary.LittleEndian.PutUint32(words[11:15], uint32(len(r.Parameters)))
	binary.LittleEndian.PutUint32(words[15:19], uint32(paramOff))
	binary.LittleEndian.PutUint32(words[23:27], uint32(len(r.Data)))
	binary.LittleEndian.PutUint32(words[27:31], uint32(dataOff))
	words[35] = uint8(len(r.Setup))
	for i, s := range r.Setup {
		binary.LittleEndian.PutUint16(words[36+2*i:], s)
	}

	body := make([]byte, 1+len(r.Parameters)+len(r.Data))
	copy(body[1:], r.Parameters)
	copy(body[1+len(r.Parameters):], r.Data)
	return resp.PutBody(words, body)
}

// SecurityParams is the parameter block of the QUERY_SECURITY_DESC and
// SET_SECURITY_DESC functions.
type SecurityParams struct {
	Fid                 uint16
	SecurityInformation uint32
}

func (p *SecurityParams) Decode(params []byte) error {
	if len(params) < 8 {
		return ErrWrongParameters
	}
	p.Fid = binary.LittleEndian.Uint16(params[0:2])
	p.SecurityInformation = binary.LittleEndian.Uint32(params[4:8])
	return nil
}
