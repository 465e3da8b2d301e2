package smb

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testHeader() Header {
	h := NewHeader(make([]byte, MinMessageSize))
	h.SetCommand(SMB_COM_ECHO)
	h.SetFlags2(FLAGS2_UNICODE | FLAGS2_NT_STATUS)
	h.SetPID(0x00124567)
	h.SetTID(3)
	h.SetUID(7)
	h.SetMID(42)
	return h
}

func TestHeaderAccessors(t *testing.T) {
	h := testHeader()
	require.NoError(t, h.Validate())

	assert.Equal(t, uint8(SMB_COM_ECHO), h.Command())
	assert.Equal(t, uint32(0x00124567), h.PID())
	assert.Equal(t, uint16(3), h.TID())
	assert.Equal(t, uint16(7), h.UID())
	assert.Equal(t, uint16(42), h.MID())
	assert.True(t, h.IsUnicode())

	h.SetStatus(STATUS_ACCESS_DENIED)
	assert.Equal(t, uint32(STATUS_ACCESS_DENIED), h.Status())
}

func TestHeaderValidate(t *testing.T) {
	assert.Error(t, Header(make([]byte, 10)).Validate())

	bad := make([]byte, MinMessageSize)
	assert.ErrorIs(t, Header(bad).Validate(), ErrWrongProtocol)
}

func TestBody(t *testing.T) {
	msg := make([]byte, MinMessageSize+6)
	NewHeader(msg)
	msg[HeaderSize] = 2 // two parameter words
	binary.LittleEndian.PutUint16(msg[HeaderSize+5:], 1)
	msg[HeaderSize+7] = 0xab

	words, data, err := Body(msg, HeaderSize)
	require.NoError(t, err)
	assert.Len(t, words, 4)
	assert.Equal(t, []byte{0xab}, data)

	_, _, err = Body(msg, len(msg))
	assert.Error(t, err)
}

func TestResponseBody(t *testing.T) {
	resp := NewResponse(testHeader(), false)
	assert.Equal(t, MinMessageSize, resp.Len())

	words := make([]byte, 4)
	data := []byte("hello")
	require.NoError(t, resp.PutBody(words, data))

	msg := resp.Bytes()
	assert.Equal(t, uint8(2), msg[HeaderSize])
	bcc := HeaderSize + 1 + len(words)
	assert.Equal(t, uint16(len(data)), binary.LittleEndian.Uint16(msg[bcc:]))
	assert.Equal(t, data, msg[bcc+2:])

	// A rewritten body replaces the previous one.
	require.NoError(t, resp.PutBody(nil, nil))
	assert.Equal(t, MinMessageSize, resp.Len())
}

func TestResponseChain(t *testing.T) {
	resp := NewResponse(testHeader(), false)

	// First command of the chain: two AndX words plus one extra pair.
	require.NoError(t, resp.PutBody(make([]byte, 8), nil))
	resp.SetAndX(SMB_COM_ECHO, uint16(resp.Len()))
	first := resp.Len()
	resp.AdvanceBody()

	require.NoError(t, resp.PutBody(nil, []byte("x")))
	assert.Equal(t, first, resp.BodyOffset())

	msg := resp.Bytes()
	base := HeaderSize + 1
	assert.Equal(t, uint8(SMB_COM_ECHO), msg[base])
	assert.Equal(t, uint16(first), binary.LittleEndian.Uint16(msg[base+2:]))

	// The chained body decodes at the advertised offset.
	words, data, err := Body(msg, first)
	require.NoError(t, err)
	assert.Empty(t, words)
	assert.Equal(t, []byte("x"), data)
}

func TestResponseGrow(t *testing.T) {
	resp := NewResponse(testHeader(), false)
	payload := make([]byte, SmallBufferSize)

	// Does not fit the small class; PutBody promotes the buffer.
	require.NoError(t, resp.PutBody(nil, payload))
	assert.True(t, resp.IsLarge())

	// The large class is a hard cap.
	err := resp.PutBody(nil, make([]byte, LargeBufferSize))
	assert.ErrorIs(t, err, ErrBufferFull)
}

func TestDecodeAndX(t *testing.T) {
	words := []byte{SMB_COM_ECHO, 0, 0x40, 0x00}
	andx, err := DecodeAndX(words)
	require.NoError(t, err)
	assert.True(t, andx.HasNext())
	assert.Equal(t, uint16(0x40), andx.Offset)

	words[0] = SMB_NO_MORE_ANDX_COMMAND
	andx, err = DecodeAndX(words)
	require.NoError(t, err)
	assert.False(t, andx.HasNext())
}

func TestSignerSequence(t *testing.T) {
	key := []byte("0123456789abcdef")
	server := NewSigner(key, nil)
	client := NewSigner(key, nil)

	msg := make([]byte, MinMessageSize)
	NewHeader(msg)

	client.Sign(msg) // seq 0
	assert.True(t, server.Verify(msg))

	resp := make([]byte, MinMessageSize)
	NewHeader(resp)
	server.Sign(resp) // seq 1
	assert.True(t, client.Verify(resp))

	assert.Equal(t, uint32(2), server.Sequence())
	assert.Equal(t, uint32(2), client.Sequence())
}

func TestSignerRejectsTamper(t *testing.T) {
	signer := NewSigner([]byte("0123456789abcdef"), nil)
	verifier := NewSigner([]byte("0123456789abcdef"), nil)

	msg := make([]byte, MinMessageSize)
	NewHeader(msg)
	signer.Sign(msg)

	msg[len(msg)-1] ^= 0xff
	assert.False(t, verifier.Verify(msg))
}

func TestPathRequestDecode(t *testing.T) {
	h := testHeader()
	h.SetFlags2(0) // ASCII

	data := append([]byte{0x04}, []byte("\\dir\\file.txt\x00")...)
	var req PathRequest
	require.NoError(t, req.Decode(h, nil, data))
	assert.Equal(t, "\\dir\\file.txt", req.Path)

	assert.Error(t, req.Decode(h, nil, []byte("no format byte")))
}

func TestRenameRequestDecode(t *testing.T) {
	h := testHeader()
	h.SetFlags2(0)

	words := make([]byte, 2)
	data := append([]byte{0x04}, []byte("old.txt\x00")...)
	data = append(data, 0x04)
	data = append(data, []byte("new.txt\x00")...)

	var req RenameRequest
	require.NoError(t, req.Decode(h, words, data))
	assert.Equal(t, "old.txt", req.OldPath)
	assert.Equal(t, "new.txt", req.NewPath)
}

func TestFindBuffer(t *testing.T) {
	entry := &FindEntry{
		Name:          "file.txt",
		LastWriteTime: time.Now(),
		EndOfFile:     100,
	}

	fb := NewFindBuffer(SMB_FIND_FILE_DIRECTORY_INFO, false, 1024)
	require.NoError(t, fb.Add(entry))
	require.NoError(t, fb.Add(entry))
	assert.Equal(t, 2, fb.Count())

	data := fb.Bytes()
	first := binary.LittleEndian.Uint32(data[0:4])
	assert.Equal(t, int(first), int(fb.LastNameOffset()))
	// The last entry terminates the chain.
	assert.Zero(t, binary.LittleEndian.Uint32(data[fb.LastNameOffset():]))
}

func TestFindBufferFull(t *testing.T) {
	entry := &FindEntry{Name: "a-rather-long-file-name.txt"}

	fb := NewFindBuffer(SMB_FIND_FILE_BOTH_DIRECTORY_INFO, true, 200)
	require.NoError(t, fb.Add(entry))
	assert.ErrorIs(t, fb.Add(entry), ErrBufferFull)
	assert.Equal(t, 1, fb.Count())
}

func TestFindEntryUnknownLevel(t *testing.T) {
	_, err := (&FindEntry{Name: "x"}).Encode(0x9999, false)
	assert.ErrorIs(t, err, ErrWrongArgument)
}

func TestNTStatusMapping(t *testing.T) {
	assert.Equal(t, uint32(STATUS_ACCESS_DENIED), NTStatus(Status(STATUS_ACCESS_DENIED).Err()))
	assert.Equal(t, uint32(STATUS_OK), NTStatus(nil))
}
