package rpc

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/vstarodubtsev/cifsd/utils"
)

var (
	ErrNotSupported     = errors.New("operation not supported")
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrInvalidHandle    = errors.New("invalid handle")
	ErrBadPacket        = errors.New("malformed packet")
	ErrBufferFull       = errors.New("pipe buffer full")
	ErrPipeClosed       = errors.New("pipe closed")
)

// Encoder is an interface for encoding outbound MS-RPC packets.
type Encoder interface {
	Encode(w io.Writer)
}

// Decoder is an interface for decoding inbound MS-RPC packets.
type Decoder interface {
	Decode(r io.Reader) error
}

// SyntaxID identifies an interface and its version.
type SyntaxID struct {
	IfUUID         [16]byte
	IfVersionMajor uint16
	IfVersionMinor uint16
}

// Encode implements the Encoder interface.
func (sid *SyntaxID) Encode(w io.Writer) {
	buf := make([]byte, 16)
	copy(buf, sid.IfUUID[:])
	buf = binary.LittleEndian.AppendUint16(buf, sid.IfVersionMajor)
	buf = binary.LittleEndian.AppendUint16(buf, sid.IfVersionMinor)
	w.Write(buf)
}

// Decode implements the Decoder interface.
func (sid *SyntaxID) Decode(r io.Reader) error {
	buf := make([]byte, 20)
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}

	copy(sid.IfUUID[:], buf[:16])
	sid.IfVersionMajor = binary.LittleEndian.Uint16(buf[16:18])
	sid.IfVersionMinor = binary.LittleEndian.Uint16(buf[18:20])
	return nil
}

// Context is one presentation context of a bind request.
type Context struct {
	ContextID        uint16
	AbstractSyntax   *SyntaxID
	TransferSyntaxes []*SyntaxID
}

// Encode implements the Encoder interface.
func (c *Context) Encode(w io.Writer) {
	var buf []byte
	buf = binary.LittleEndian.AppendUint16(buf, c.ContextID)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(c.TransferSyntaxes)))
	w.Write(buf)
	c.AbstractSyntax.Encode(w)
	for _, ts := range c.TransferSyntaxes {
		ts.Encode(w)
	}
}

// Decode implements the Decoder interface.
func (c *Context) Decode(r io.Reader) error {
	buf := make([]byte, 4)
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}

	c.ContextID = binary.LittleEndian.Uint16(buf[:2])
	n := int(binary.LittleEndian.Uint16(buf[2:]))
	if n > 8 {
		return ErrBadPacket
	}
	c.TransferSyntaxes = make([]*SyntaxID, n)
	c.AbstractSyntax = &SyntaxID{}
	if err := c.AbstractSyntax.Decode(r); err != nil {
		return err
	}
	for i := range c.TransferSyntaxes {
		c.TransferSyntaxes[i] = &SyntaxID{}
		if err := c.TransferSyntaxes[i].Decode(r); err != nil {
			return err
		}
	}
	return nil
}

// Bind represents an MS-RPC Bind call.
type Bind struct {
	MaxXmitFrag  uint16
	MaxRecvFrag  uint16
	AssocGroupID uint32
	ContextList  []*Context
}

// Encode implements the Encoder interface.
func (b *Bind) Encode(w io.Writer) {
	var buf []byte
	buf = binary.LittleEndian.AppendUint16(buf, b.MaxXmitFrag)
	buf = binary.LittleEndian.AppendUint16(buf, b.MaxRecvFrag)
	buf = binary.LittleEndian.AppendUint32(buf, b.AssocGroupID)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(b.ContextList)))
	w.Write(buf)
	for _, c := range b.ContextList {
		c.Encode(w)
	}
}

// Decode implements the Decoder interface.
func (b *Bind) Decode(r io.Reader) error {
	buf := make([]byte, 12)
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}

	b.MaxXmitFrag = binary.LittleEndian.Uint16(buf[:2])
	b.MaxRecvFrag = binary.LittleEndian.Uint16(buf[2:4])
	b.AssocGroupID = binary.LittleEndian.Uint32(buf[4:8])
	n := int(binary.LittleEndian.Uint32(buf[8:]))
	if n > 32 {
		return ErrBadPacket
	}
	b.ContextList = make([]*Context, n)
	for i := range b.ContextList {
		b.ContextList[i] = &Context{}
		if err := b.ContextList[i].Decode(r); err != nil {
			return err
		}
	}
	return nil
}

// Interface returns the abstract syntax UUID of the first presentation
// context.
func (b *Bind) Interface() []byte {
	if len(b.ContextList) == 0 || b.ContextList[0].AbstractSyntax == nil {
		return nil
	}
	return b.ContextList[0].AbstractSyntax.IfUUID[:]
}

// Result represents an MS-RPC bind result.
type Result struct {
	DefResult      uint16
	ProviderReason uint16
	TransferSyntax *SyntaxID
}

// Encode implements the Encoder interface.
func (res *Result) Encode(w io.Writer) {
	var buf []byte
	buf = binary.LittleEndian.AppendUint16(buf, res.DefResult)
	buf = binary.LittleEndian.AppendUint16(buf, res.ProviderReason)
	w.Write(buf)
	res.TransferSyntax.Encode(w)
}

// BindAck represents an MS-RPC Bind_ack call.
type BindAck struct {
	MaxXmitFrag  uint16
	MaxRecvFrag  uint16
	AssocGroupID uint32
	PortSpec     string
	ResultList   []*Result
}

// Encode implements the Encoder interface.
func (ba *BindAck) Encode(w io.Writer) {
	var buf []byte
	buf = binary.LittleEndian.AppendUint16(buf, ba.MaxXmitFrag)
	buf = binary.LittleEndian.AppendUint16(buf, ba.MaxRecvFrag)
	buf = binary.LittleEndian.AppendUint32(buf, ba.AssocGroupID)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(ba.PortSpec)+1))
	buf = append(buf, []byte(ba.PortSpec)...)
	buf = append(buf, 0)
	padLen := utils.Roundup(len(buf), 4)
	padding := make([]byte, padLen-len(buf))
	buf = append(buf, padding...)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(ba.ResultList)))
	w.Write(buf)
	for _, res := range ba.ResultList {
		res.Encode(w)
	}
}

// Request represents an MS-RPC Request call.
type Request struct {
	AllocHint uint32
	ContextID uint16
	OpNum     uint16
}

// Encode implements the Encoder interface.
func (req *Request) Encode(w io.Writer) {
	var buf []byte
	buf = binary.LittleEndian.AppendUint32(buf, req.AllocHint)
	buf = binary.LittleEndian.AppendUint16(buf, req.ContextID)
	buf = binary.LittleEndian.AppendUint16(buf, req.OpNum)
	w.Write(buf)
}

// Decode implements the Decoder interface.
func (req *Request) Decode(r io.Reader) error {
	buf := make([]byte, 8)
	if _, err := io.ReadFull(r, buf); err != nil {
		return err
	}

	req.AllocHint = binary.LittleEndian.Uint32(buf[:4])
	req.ContextID = binary.LittleEndian.Uint16(buf[4:6])
	req.OpNum = binary.LittleEndian.Uint16(buf[6:8])
	return nil
}

// Response represents an MS-RPC Response call.
type Response struct {
	AllocHint   uint32
	ContextID   uint16
	CancelCount uint16
}

// Encode implements the Encoder interface.
func (resp *Response) Encode(w io.Writer) {
	var buf []byte
	buf = binary.LittleEndian.AppendUint32(buf, resp.AllocHint)
	buf = binary.LittleEndian.AppendUint16(buf, resp.ContextID)
	buf = binary.LittleEndian.AppendUint16(buf, resp.CancelCount)
	w.Write(buf)
}
