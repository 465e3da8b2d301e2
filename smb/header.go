package smb

import (
	"encoding/binary"
)

const (
	// HeaderSize is the size of the fixed SMB1 header, excluding the WordCount byte.
	HeaderSize = 32

	// MinMessageSize is the smallest valid PDU: header, WordCount and ByteCount.
	MinMessageSize = HeaderSize + 3
)

// Header extends a raw byte sequence with SMB1 header accessors. The slice
// starts at the protocol magic; the NetBIOS length prefix is not included.
type Header []byte

// NewHeader stamps the protocol magic onto a byte sequence and returns it as a Header.
func NewHeader(data []byte) Header {
	binary.LittleEndian.PutUint32(data[:4], PROTOCOL_ID)
	return Header(data)
}

// CopyFrom copies the fixed header from another header. This is typically done
// when generating a response to a request.
func (h Header) CopyFrom(src Header) {
	copy(h[:HeaderSize], src[:HeaderSize])
}

// IsSmb returns true if the SMB1 signature is detected in the header.
func (h Header) IsSmb() bool {
	return len(h) >= 4 && binary.LittleEndian.Uint32(h[:4]) == PROTOCOL_ID
}

// Validate returns an error if the header is malformed, nil otherwise.
func (h Header) Validate() error {
	if len(h) < MinMessageSize {
		return ErrWrongStructureLength
	}
	if !h.IsSmb() {
		return ErrWrongProtocol
	}
	return nil
}

// Command returns the Command field of the header.
func (h Header) Command() uint8 {
	return h[4]
}

// SetCommand sets the Command field of the header.
func (h Header) SetCommand(command uint8) {
	h[4] = command
}

// Status returns the Status field of the header.
func (h Header) Status() uint32 {
	return binary.LittleEndian.Uint32(h[5:9])
}

// SetStatus sets the Status field of the header.
func (h Header) SetStatus(status uint32) {
	binary.LittleEndian.PutUint32(h[5:9], status)
}

// SetDosError sets the Status field to a legacy DOS error class/code pair.
func (h Header) SetDosError(class uint8, code uint16) {
	h[5] = class
	h[6] = 0
	binary.LittleEndian.PutUint16(h[7:9], code)
}

// Flags returns the Flags field of the header.
func (h Header) Flags() uint8 {
	return h[9]
}

// SetFlags sets the Flags field of the header.
func (h Header) SetFlags(flags uint8) {
	h[9] = flags
}

// IsFlagSet returns true if the given flag is set in the Flags field.
func (h Header) IsFlagSet(flag uint8) bool {
	return h.Flags()&flag > 0
}

// Flags2 returns the Flags2 field of the header.
func (h Header) Flags2() uint16 {
	return binary.LittleEndian.Uint16(h[10:12])
}

// SetFlags2 sets the Flags2 field of the header.
func (h Header) SetFlags2(flags uint16) {
	binary.LittleEndian.PutUint16(h[10:12], flags)
}

// IsFlag2Set returns true if the given flag is set in the Flags2 field.
func (h Header) IsFlag2Set(flag uint16) bool {
	return h.Flags2()&flag > 0
}

// IsUnicode returns true if the request carries UTF-16LE strings.
func (h Header) IsUnicode() bool {
	return h.IsFlag2Set(FLAGS2_UNICODE)
}

// IsCaseless returns true if path lookups should fall back to a
// case-insensitive scan.
func (h Header) IsCaseless() bool {
	return h.IsFlagSet(FLAGS_CASELESS)
}

// PID returns the process ID composed of the PidHigh and PidLow fields.
func (h Header) PID() uint32 {
	high := binary.LittleEndian.Uint16(h[12:14])
	low := binary.LittleEndian.Uint16(h[26:28])
	return uint32(high)<<16 | uint32(low)
}

// SetPID sets the PidHigh and PidLow fields of the header.
func (h Header) SetPID(pid uint32) {
	binary.LittleEndian.PutUint16(h[12:14], uint16(pid>>16))
	binary.LittleEndian.PutUint16(h[26:28], uint16(pid))
}

// Signature returns the SecurityFeatures field of the header.
func (h Header) Signature() []byte {
	return h[14:22]
}

// SetSignature sets the SecurityFeatures field of the header.
func (h Header) SetSignature(sig []byte) {
	copy(h[14:22], sig)
}

// TID returns the tree ID field of the header.
func (h Header) TID() uint16 {
	return binary.LittleEndian.Uint16(h[24:26])
}

// SetTID sets the tree ID field of the header.
func (h Header) SetTID(tid uint16) {
	binary.LittleEndian.PutUint16(h[24:26], tid)
}

// UID returns the virtual user ID field of the header.
func (h Header) UID() uint16 {
	return binary.LittleEndian.Uint16(h[28:30])
}

// SetUID sets the virtual user ID field of the header.
func (h Header) SetUID(uid uint16) {
	binary.LittleEndian.PutUint16(h[28:30], uid)
}

// MID returns the multiplex ID field of the header.
func (h Header) MID() uint16 {
	return binary.LittleEndian.Uint16(h[30:32])
}

// SetMID sets the multiplex ID field of the header.
func (h Header) SetMID(mid uint16) {
	binary.LittleEndian.PutUint16(h[30:32], mid)
}

// WordCount returns the WordCount byte following the fixed header.
func (h Header) WordCount() uint8 {
	return h[32]
}

// SetWordCount sets the WordCount byte following the fixed header.
func (h Header) SetWordCount(wc uint8) {
	h[32] = wc
}
