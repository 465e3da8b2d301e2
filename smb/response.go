package smb

import (
	"encoding/binary"
)

// Response is a growing SMB1 response message. The framing layer prepends
// the 4-byte NetBIOS length on send; everything here is counted from the
// protocol magic. A response starts with a copied request header, a zero
// WordCount and a zero ByteCount; handlers replace the body of the command
// currently being processed, and the AndX chain walker moves the body
// cursor forward after each chained command.
type Response struct {
	data    []byte
	bodyOff int
	large   bool
}

// NewResponse allocates a response buffer of the requested class and
// initializes its header from the request.
func NewResponse(req Header, large bool) *Response {
	size := SmallBufferSize
	if large {
		size = LargeBufferSize
	}

	r := &Response{
		data:    make([]byte, MinMessageSize, size),
		bodyOff: HeaderSize,
		large:   large,
	}

	h := NewHeader(r.data)
	h.SetCommand(req.Command())
	h.SetStatus(STATUS_OK)
	h.SetFlags(FLAGS_RESPONSE)
	h.SetFlags2(req.Flags2())
	h.SetPID(req.PID())
	h.SetTID(req.TID())
	h.SetUID(req.UID())
	h.SetMID(req.MID())
	return r
}

// Header returns the response header for in-place updates.
func (r *Response) Header() Header {
	return Header(r.data)
}

// Len returns the current encoded length, the value that goes into the
// NetBIOS length prefix.
func (r *Response) Len() int {
	return len(r.data)
}

// Bytes returns the encoded message.
func (r *Response) Bytes() []byte {
	return r.data
}

// IsLarge reports whether the response uses the large buffer class.
func (r *Response) IsLarge() bool {
	return r.large
}

// Grow promotes a small response buffer to the large class, preserving
// everything written so far. Handlers call it when they discover mid-flight
// that the response will not fit the small class.
func (r *Response) Grow() {
	if r.large {
		return
	}
	data := make([]byte, len(r.data), LargeBufferSize)
	copy(data, r.data)
	r.data = data
	r.large = true
}

// Remaining returns the bytes still available in the buffer.
func (r *Response) Remaining() int {
	return cap(r.data) - r.bodyOff
}

// PutBody writes the body of the current command: WordCount, the parameter
// words, ByteCount and the data bytes. len(words) must be even. The body may
// be rewritten any number of times until the cursor moves on.
func (r *Response) PutBody(words, data []byte) error {
	need := r.bodyOff + 1 + len(words) + 2 + len(data)
	if need > cap(r.data) {
		if r.large {
			return ErrBufferFull
		}
		r.Grow()
		if need > cap(r.data) {
			return ErrBufferFull
		}
	}

	r.data = r.data[:need]
	r.data[r.bodyOff] = uint8(len(words) / 2)
	copy(r.data[r.bodyOff+1:], words)
	bcc := r.bodyOff + 1 + len(words)
	binary.LittleEndian.PutUint16(r.data[bcc:bcc+2], uint16(len(data)))
	copy(r.data[bcc+2:], data)
	return nil
}

// PutError replaces the current command body with an empty one and stamps
// the NT status into the header.
func (r *Response) PutError(status uint32) {
	r.PutBody(nil, nil)
	r.Header().SetStatus(status)
}

// SetAndX patches the AndX block of the current command body. The body must
// have been written with at least two parameter words; the AndX block
// occupies the first four of them.
func (r *Response) SetAndX(next uint8, offset uint16) {
	base := r.bodyOff + 1
	r.data[base] = next
	r.data[base+1] = 0
	binary.LittleEndian.PutUint16(r.data[base+2:base+4], offset)
}

// TerminateAndX stamps the no-more-commands terminator into the current body.
func (r *Response) TerminateAndX() {
	r.SetAndX(SMB_NO_MORE_ANDX_COMMAND, 0)
}

// AdvanceBody moves the body cursor past everything written so far. The next
// PutBody call starts a chained response at the current end of the message.
func (r *Response) AdvanceBody() {
	r.bodyOff = len(r.data)
}

// BodyOffset returns the offset of the current command's WordCount byte.
func (r *Response) BodyOffset() int {
	return r.bodyOff
}
