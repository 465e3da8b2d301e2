package smb

import (
	"encoding/binary"
)

const (
	// WriteMode bits in the WriteAndX request.
	WRITE_THROUGH_MODE = 0x0001
	WRITE_PIPE_START   = 0x0008
)

// ReadRequest is the READ_ANDX request. The 12-word variant carries the
// high half of the 64-bit offset.
type ReadRequest struct {
	AndX         AndX
	Fid          uint16
	Offset       uint64
	MaxCount     uint32
	MinCount     uint16
}

// Decode parses the 10- or 12-word ReadAndX request.
func (r *ReadRequest) Decode(words []byte) error {
	if len(words) != 20 && len(words) != 24 {
		return ErrWrongParameters
	}
	andx, err := DecodeAndX(words)
	if err != nil {
		return err
	}
	r.AndX = andx
	r.Fid = binary.LittleEndian.Uint16(words[4:6])
	r.Offset = uint64(binary.LittleEndian.Uint32(words[6:10]))
	r.MaxCount = uint32(binary.LittleEndian.Uint16(words[10:12]))
	r.MinCount = binary.LittleEndian.Uint16(words[12:14])
	// MaxCountHigh extends MaxCount for large reads.
	high := binary.LittleEndian.Uint32(words[14:18])
	if high != 0xffffffff {
		r.MaxCount |= high << 16
	}
	if len(words) == 24 {
		r.Offset |= uint64(binary.LittleEndian.Uint32(words[20:24])) << 32
	}
	return nil
}

// EncodeReadResponse writes the 12-word ReadAndX response. The data offset
// in the words refers to the data position counted from the start of the
// SMB header of this response message.
func EncodeReadResponse(resp *Response, data []byte) error {
	words := make([]byte, 24)
	binary.LittleEndian.PutUint16(words[4:6], 0xffff) // Available (pipes only)
	binary.LittleEndian.PutUint16(words[10:12], uint16(len(data)))
	// WordCount byte + 12 words + ByteCount word, relative to this body.
	dataOff := resp.BodyOffset() + 1 + len(words) + 2
	binary.LittleEndian.PutUint16(words[12:14], uint16(dataOff))
	binary.LittleEndian.PutUint16(words[14:16], uint16(len(data)>>16))
	return resp.PutBody(words, data)
}

// WriteRequest is the core WRITE request.
type WriteRequest struct {
	Fid    uint16
	Offset uint32
	Data   []byte
}

// Decode parses the five-word core write request. The byte area carries a
// data-block buffer format byte and a length before the payload.
func (r *WriteRequest) Decode(words, data []byte) error {
	if len(words) != 10 {
		return ErrWrongParameters
	}
	r.Fid = binary.LittleEndian.Uint16(words[0:2])
	count := int(binary.LittleEndian.Uint16(words[2:4]))
	r.Offset = binary.LittleEndian.Uint32(words[4:8])

	if len(data) < 3 || data[0] != 0x01 {
		return ErrWrongDataLength
	}
	dl := int(binary.LittleEndian.Uint16(data[1:3]))
	if dl != count || dl > len(data)-3 {
		return ErrWrongDataLength
	}
	r.Data = data[3 : 3+dl]
	return nil
}

// EncodeWriteResponse writes the one-word core write response.
func EncodeWriteResponse(resp *Response, count uint16) error {
	words := make([]byte, 2)
	binary.LittleEndian.PutUint16(words, count)
	return resp.PutBody(words, nil)
}

// WriteAndXRequest is the WRITE_ANDX request. The 14-word variant carries
// the high half of the 64-bit offset.
type WriteAndXRequest struct {
	AndX      AndX
	Fid       uint16
	Offset    uint64
	WriteMode uint16
	Data      []byte
}

// Decode parses the 12- or 14-word WriteAndX request. msg is the full PDU;
// the data offset in the request is counted from the SMB header start.
func (r *WriteAndXRequest) Decode(msg []byte, words []byte) error {
	if len(words) != 24 && len(words) != 28 {
		return ErrWrongParameters
	}
	andx, err := DecodeAndX(words)
	if err != nil {
		return err
	}
	r.AndX = andx
	r.Fid = binary.LittleEndian.Uint16(words[4:6])
	r.Offset = uint64(binary.LittleEndian.Uint32(words[6:10]))
	r.WriteMode = binary.LittleEndian.Uint16(words[14:16])
	dataLen := int(binary.LittleEndian.Uint16(words[18:20])) |
		int(binary.LittleEndian.Uint16(words[16:18]))<<16
	dataOff := int(binary.LittleEndian.Uint16(words[20:22]))
	if len(words) == 28 {
		r.Offset |= uint64(binary.LittleEndian.Uint32(words[24:28])) << 32
	}

	if dataOff < HeaderSize || dataOff+dataLen > len(msg) {
		return ErrBadOffset
	}
	r.Data = msg[dataOff : dataOff+dataLen]
	return nil
}

// WriteThrough reports whether the client requested write-through semantics.
func (r *WriteAndXRequest) WriteThrough() bool {
	return r.WriteMode&WRITE_THROUGH_MODE > 0
}

// EncodeWriteAndXResponse writes the six-word WriteAndX response.
func EncodeWriteAndXResponse(resp *Response, count int) error {
	words := make([]byte, 12)
	binary.LittleEndian.PutUint16(words[4:6], uint16(count))
	binary.LittleEndian.PutUint16(words[6:8], 0xffff) // Available
	binary.LittleEndian.PutUint16(words[8:10], uint16(count>>16))
	return resp.PutBody(words, nil)
}
