package rpc

import (
	"bytes"
	"encoding/binary"
	"io"
)

const (
	HeaderSize = 16

	// MaxFragSize bounds a single DCE/RPC fragment in either direction.
	MaxFragSize = 4280
)

var (
	NDR32 = []byte{
		0x04, 0x5d, 0x88, 0x8a, 0xeb, 0x1c, 0xc9, 0x11,
		0x9f, 0xe8, 0x08, 0x00, 0x2b, 0x10, 0x48, 0x60,
	}

	NDR64 = []byte{
		0x33, 0x05, 0x71, 0x71, 0xba, 0xbe, 0x37, 0x49,
		0x83, 0x19, 0xb5, 0xdb, 0xef, 0x9c, 0xcc, 0x36,
	}

	BIND_TIME_FEATURES = []byte{
		0x2c, 0x1c, 0xb7, 0x6c, 0x12, 0x98, 0x40, 0x45,
		0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	}
)

// Interface UUIDs in wire (little-endian) order.
var (
	SRVSVC = []byte{
		0xc8, 0x4f, 0x32, 0x4b, 0x70, 0x16, 0xd3, 0x01,
		0x12, 0x78, 0x5a, 0x47, 0xbf, 0x6e, 0xe1, 0x88,
	}

	WKSSVC = []byte{
		0x98, 0xd0, 0xff, 0x6b, 0x12, 0xa1, 0x10, 0x36,
		0x98, 0x33, 0x46, 0xc3, 0xf8, 0x7e, 0x34, 0x5a,
	}

	LSARPC = []byte{
		0x78, 0x57, 0x34, 0x12, 0x34, 0x12, 0xcd, 0xab,
		0xef, 0x00, 0x01, 0x23, 0x45, 0x67, 0x89, 0xab,
	}

	WINREG = []byte{
		0x01, 0xd0, 0x8c, 0x33, 0x44, 0x22, 0xf1, 0x31,
		0xaa, 0xaa, 0x90, 0x00, 0x38, 0x00, 0x10, 0x03,
	}
)

const (
	// MS-RPC packet types.
	PACKET_TYPE_REQUEST                = 0x00
	PACKET_TYPE_RESPONSE               = 0x02
	PACKET_TYPE_FAULT                  = 0x03
	PACKET_TYPE_BIND                   = 0x0b
	PACKET_TYPE_BIND_ACK               = 0x0c
	PACKET_TYPE_BIND_NAK               = 0x0d
	PACKET_TYPE_ALTER_CONTEXT          = 0x0e
	PACKET_TYPE_ALTER_CONTEXT_RESPONSE = 0x0f
	PACKET_TYPE_AUTH3                  = 0x10
	PACKET_TYPE_SHUTDOWN               = 0x11
	PACKET_TYPE_CANCEL                 = 0x12
	PACKET_TYPE_ORPHANED               = 0x13
)

const (
	// MS-RPC packet flags.
	PFC_FIRST_FRAG          = 0x01
	PFC_LAST_FRAG           = 0x02
	PFC_PENDING_CANCEL      = 0x04
	PFC_SUPPORT_HEADER_SIGN = 0x04
	PFC_CONC_MPX            = 0x10
	PFC_DID_NOT_EXECUTE     = 0x20
	PFC_MAYBE               = 0x40
	PFC_OBJECT_UUID         = 0x80
)

const (
	// Fault status codes.
	NCA_S_OP_RNG_ERROR = 0x1c010002
	NCA_S_UNK_IF       = 0x1c010003
	NCA_S_PROTO_ERROR  = 0x1c01000b
)

// Header represents the header of an MS-RPC packet.
type Header struct {
	RPCVersionMajor    uint8
	RPCVersionMinor    uint8
	PacketType         uint8
	PacketFlags        uint8
	DataRepresentation uint32
	FragLength         uint16
	AuthLength         uint16
	CallID             uint32
}

// Encode implements the Encoder interface.
func (h *Header) Encode(w io.Writer) {
	buf := make([]byte, 16)
	buf[0] = h.RPCVersionMajor
	buf[1] = h.RPCVersionMinor
	buf[2] = h.PacketType
	buf[3] = h.PacketFlags
	binary.LittleEndian.PutUint32(buf[4:8], h.DataRepresentation)
	binary.LittleEndian.PutUint16(buf[8:10], h.FragLength)
	binary.LittleEndian.PutUint16(buf[10:12], h.AuthLength)
	binary.LittleEndian.PutUint32(buf[12:], h.CallID)
	w.Write(buf)
}

// Decode reads and validates the packet header.
func (h *Header) Decode(r io.Reader) error {
	buf := make([]byte, 16)
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}

	h.RPCVersionMajor = buf[0]
	h.RPCVersionMinor = buf[1]
	h.PacketType = buf[2]
	h.PacketFlags = buf[3]
	h.DataRepresentation = binary.LittleEndian.Uint32(buf[4:8])
	h.FragLength = binary.LittleEndian.Uint16(buf[8:10])
	h.AuthLength = binary.LittleEndian.Uint16(buf[10:12])
	h.CallID = binary.LittleEndian.Uint32(buf[12:])

	if h.RPCVersionMajor != 5 || h.RPCVersionMinor != 0 {
		return ErrBadPacket
	}
	return nil
}

// NewHeader returns a standard MS-RPC packet header.
func NewHeader(pt uint8, pf uint8, callID uint32) *Header {
	return &Header{
		RPCVersionMajor:    5,
		RPCVersionMinor:    0,
		PacketType:         pt,
		PacketFlags:        pf,
		DataRepresentation: 0x00000010, // LE byte order, ASCII character format, IEEE float format
		CallID:             callID,
	}
}

// InboundPacket represents a decoded MS-RPC request.
type InboundPacket struct {
	Header  Header
	Bind    *Bind
	Request *Request
	Payload []byte
}

// Read decodes one MS-RPC PDU. Anything past the fixed body of a request is
// kept as the stub payload.
func (ip *InboundPacket) Read(r io.Reader) error {
	if err := ip.Header.Decode(r); err != nil {
		return err
	}

	switch ip.Header.PacketType {
	case PACKET_TYPE_BIND, PACKET_TYPE_ALTER_CONTEXT:
		ip.Bind = &Bind{}
		if err := ip.Bind.Decode(r); err != nil {
			return err
		}
	case PACKET_TYPE_REQUEST:
		ip.Request = &Request{}
		if err := ip.Request.Decode(r); err != nil {
			return err
		}
	default:
		return ErrNotSupported
	}

	var buf bytes.Buffer
	if n, err := buf.ReadFrom(io.LimitReader(r, MaxFragSize)); err == nil && n > 0 {
		ip.Payload = buf.Bytes()
	}
	return nil
}

// OutboundPacket represents an MS-RPC response.
type OutboundPacket struct {
	Header *Header
	Body   Encoder
}

// Write encodes an MS-RPC response and writes it to the provided stream.
func (op *OutboundPacket) Write(w io.Writer) {
	if op == nil || op.Header == nil || op.Body == nil {
		return
	}

	var body bytes.Buffer
	op.Body.Encode(&body)
	op.Header.FragLength = uint16(body.Len()) + HeaderSize
	op.Header.Encode(w)
	w.Write(body.Bytes())
}

// NewFault builds a fault PDU carrying the given status.
func NewFault(callID, status uint32) *OutboundPacket {
	return &OutboundPacket{
		Header: NewHeader(PACKET_TYPE_FAULT, PFC_FIRST_FRAG|PFC_LAST_FRAG|PFC_DID_NOT_EXECUTE, callID),
		Body:   &Fault{Status: status},
	}
}

// Fault is the body of a fault PDU.
type Fault struct {
	Status uint32
}

// Encode implements the Encoder interface.
func (f *Fault) Encode(w io.Writer) {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[8:12], f.Status)
	w.Write(buf)
}
