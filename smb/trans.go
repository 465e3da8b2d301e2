package smb

import (
	"encoding/binary"

	"github.com/vstarodubtsev/cifsd/utils"
)

// TRANSACTION setup subcommands for named pipes.
const (
	TRANS_SET_NMPIPE_STATE   = 0x0001
	TRANS_RAW_READ_NMPIPE    = 0x0011
	TRANS_QUERY_NMPIPE_STATE = 0x0021
	TRANS_QUERY_NMPIPE_INFO  = 0x0022
	TRANS_PEEK_NMPIPE        = 0x0023
	TRANS_TRANSACT_NMPIPE    = 0x0026
	TRANS_RAW_WRITE_NMPIPE   = 0x0031
	TRANS_READ_NMPIPE        = 0x0036
	TRANS_WRITE_NMPIPE       = 0x0037
	TRANS_WAIT_NMPIPE        = 0x0053
	TRANS_CALL_NMPIPE        = 0x0054
)

// TransRequest is the common shape of TRANSACTION and TRANSACTION2
// requests: a setup area plus parameter and data blocks located by offsets
// counted from the start of the SMB header.
type TransRequest struct {
	TotalParameterCount uint16
	TotalDataCount      uint16
	MaxParameterCount   uint16
	MaxDataCount        uint16
	MaxSetupCount       uint8
	Flags               uint16
	Timeout             uint32
	Setup               []uint16
	Name                string
	Parameters          []byte
	Data                []byte
}

// Decode parses a TRANSACTION family request. msg is the full PDU starting
// at the SMB header; named is true for SMB_COM_TRANSACTION, whose byte area
// begins with the transaction name.
func (r *TransRequest) Decode(h Header, msg, words, data []byte, named bool) error {
	setupCount := 0
	if len(words) >= 28 {
		setupCount = int(words[26])
	}
	if len(words) != 28+2*setupCount {
		return ErrWrongParameters
	}

	r.TotalParameterCount = binary.LittleEndian.Uint16(words[0:2])
	r.TotalDataCount = binary.LittleEndian.Uint16(words[2:4])
	r.MaxParameterCount = binary.LittleEndian.Uint16(words[4:6])
	r.MaxDataCount = binary.LittleEndian.Uint16(words[6:8])
	r.MaxSetupCount = words[8]
	r.Flags = binary.LittleEndian.Uint16(words[10:12])
	r.Timeout = binary.LittleEndian.Uint32(words[12:16])
	paramCount := int(binary.LittleEndian.Uint16(words[18:20]))
	paramOff := int(binary.LittleEndian.Uint16(words[20:22]))
	dataCount := int(binary.LittleEndian.Uint16(words[22:24]))
	dataOff := int(binary.LittleEndian.Uint16(words[24:26]))

	r.Setup = make([]uint16, setupCount)
	for i := range r.Setup {
		r.Setup[i] = binary.LittleEndian.Uint16(words[28+2*i:])
	}

	if named {
		name, err := decodeTransName(h, data)
		if err != nil {
			return err
		}
		r.Name = name
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

// SubCommand returns the first setup word, the subcommand for both pipe
// transactions and Transaction2.
func (r *TransRequest) SubCommand() (uint16, error) {
	if len(r.Setup) == 0 {
		return 0, ErrWrongParameters
	}
	return r.Setup[0], nil
}

// PipeFid returns the fid carried in the second setup word of a pipe
// transaction.
func (r *TransRequest) PipeFid() (uint16, error) {
	if len(r.Setup) < 2 {
		return 0, ErrWrongParameters
	}
	return r.Setup[1], nil
}

func decodeTransName(h Header, data []byte) (string, error) {
	if h.IsUnicode() {
		// Name is padded to a two-byte boundary; the byte area of a
		// transaction request starts at an odd offset.
		if len(data) < 1 {
			return "", ErrWrongDataLength
		}
		data = data[1:]
		for i := 0; i+1 < len(data); i += 2 {
			if data[i] == 0 && data[i+1] == 0 {
				return utils.DecodeToString(data[:i]), nil
			}
		}
	} else {
		for i := range data {
			if data[i] == 0 {
				return string(data[:i]), nil
			}
		}
	}
	return "", ErrWrongDataLength
}

// TransResponse is the common TRANSACTION/TRANSACTION2 response: parameter
// and data blocks with their offsets counted from the SMB header start.
type TransResponse struct {
	Setup      []uint16
	Parameters []byte
	Data       []byte
}

// Encode writes the ten-word (plus setup) transaction response. The
// parameter block is placed right after a single pad byte, the data block
// immediately after the parameters.
func (r *TransResponse) Encode(resp *Response) error {
	words := make([]byte, 20+2*len(r.Setup))
	paramOff := resp.BodyOffset() + 1 + len(words) + 2 + 1
	dataOff := paramOff + len(r.Parameters)

	binary.LittleEndian.PutUint16(words[0:2], uint16(len(r.Parameters)))
	binary.LittleEndian.PutUint16(words[2:4], uint16(len(r.Data)))
	binary.LittleEndian.PutUint16(words[6:8], uint16(len(r.Parameters)))
	binary.LittleEndian.PutUint16(words[8:10], uint16(paramOff))
	binary.LittleEndian.PutUint16(words[12:14], uint16(len(r.Data)))
	binary.LittleEndian.PutUint16(words[14:16], uint16(dataOff))
	words[18] = uint8(len(r.Setup))
	for i, s := range r.Setup {
		binary.LittleEndian.PutUint16(words[20+2*i:], s)
	}

	body := make([]byte, 1+len(r.Parameters)+len(r.Data))
	copy(body[1:], r.Parameters)
	copy(body[1+len(r.Parameters):], r.Data)
	return resp.PutBody(words, body)
}
