package smb

import (
	"encoding/binary"
)

// LockRange is a single byte range from a LockingAndX request, normalized
// to 64-bit offsets regardless of the on-wire element format.
type LockRange struct {
	PID    uint16
	Offset uint64
	Length uint64
}

// LockingRequest is the LOCKING_ANDX request. The same command carries
// lock/unlock batches from clients and oplock break acknowledgements.
type LockingRequest struct {
	AndX        AndX
	Fid         uint16
	LockType    uint8
	OplockLevel uint8
	Timeout     uint32
	Unlocks     []LockRange
	Locks       []LockRange
}

// Decode parses the eight-word LockingAndX request and its range elements.
func (r *LockingRequest) Decode(words, data []byte) error {
	if len(words) != 16 {
		return ErrWrongParameters
	}
	andx, err := DecodeAndX(words)
	if err != nil {
		return err
	}
	r.AndX = andx
	r.Fid = binary.LittleEndian.Uint16(words[4:6])
	r.LockType = words[6]
	r.OplockLevel = words[7]
	r.Timeout = binary.LittleEndian.Uint32(words[8:12])
	nunlock := int(binary.LittleEndian.Uint16(words[12:14]))
	nlock := int(binary.LittleEndian.Uint16(words[14:16]))

	elemSize := 10
	if r.LockType&LOCKING_ANDX_LARGE_FILES > 0 {
		elemSize = 20
	}
	if (nunlock+nlock)*elemSize > len(data) {
		return ErrWrongDataLength
	}

	r.Unlocks = decodeLockRanges(data, nunlock, elemSize)
	r.Locks = decodeLockRanges(data[nunlock*elemSize:], nlock, elemSize)
	return nil
}

func decodeLockRanges(data []byte, n, elemSize int) []LockRange {
	ranges := make([]LockRange, n)
	for i := 0; i < n; i++ {
		el := data[i*elemSize:]
		ranges[i].PID = binary.LittleEndian.Uint16(el[0:2])
		if elemSize == 20 {
			ranges[i].Offset = uint64(binary.LittleEndian.Uint32(el[4:8]))<<32 |
				uint64(binary.LittleEndian.Uint32(el[8:12]))
			ranges[i].Length = uint64(binary.LittleEndian.Uint32(el[12:16]))<<32 |
				uint64(binary.LittleEndian.Uint32(el[16:20]))
		} else {
			ranges[i].Offset = uint64(binary.LittleEndian.Uint32(el[2:6]))
			ranges[i].Length = uint64(binary.LittleEndian.Uint32(el[6:10]))
		}
	}
	return ranges
}

// Shared reports whether the request asks for shared (read) locks.
func (r *LockingRequest) Shared() bool {
	return r.LockType&LOCKING_ANDX_SHARED_LOCK > 0
}

// OplockAck reports whether the request is an oplock break acknowledgement
// rather than a lock operation.
func (r *LockingRequest) OplockAck() bool {
	return r.LockType&LOCKING_ANDX_OPLOCK_RELEASE > 0
}

// EncodeLockingResponse writes the two-word LockingAndX response.
func EncodeLockingResponse(resp *Response) error {
	return resp.PutBody(make([]byte, 4), nil)
}

// EncodeOplockBreak builds an unsolicited server-to-client oplock break
// notification. It is a LockingAndX "request" PDU sent outside any exchange,
// with Timeout 0 and no ranges.
func EncodeOplockBreak(tid, fid uint16, newLevel uint8) []byte {
	msg := make([]byte, HeaderSize+1+16+2)
	h := NewHeader(msg)
	h.SetCommand(SMB_COM_LOCKING_ANDX)
	h.SetTID(tid)
	h.SetMID(0xffff)

	words := msg[HeaderSize+1:]
	msg[HeaderSize] = 8
	words[0] = SMB_NO_MORE_ANDX_COMMAND
	binary.LittleEndian.PutUint16(words[4:6], fid)
	words[6] = LOCKING_ANDX_OPLOCK_RELEASE
	words[7] = newLevel
	return msg
}
