package main

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/vstarodubtsev/cifsd/smb"
)

// maxMessageSize caps an incoming PDU. Anything above the large buffer class
// plus a WriteAndX payload is a framing error, not a legitimate request.
const maxMessageSize = smb.LargeBufferSize + smb.DefaultIOSize

// readMessage reads one SMB message from the TCP connection.
// An SMB message is prepended with a 4-byte header, which encodes the length
// of the message in the lower three bytes.
func readMessage(conn net.Conn) ([]byte, error) {
	buf := make([]byte, 4)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return nil, fmt.Errorf("error reading TCP header: %w", err)
	}
	if buf[0] != 0 {
		return nil, errors.New("first byte is supposed to be zero")
	}

	length := binary.BigEndian.Uint32(buf)
	if length > maxMessageSize {
		return nil, fmt.Errorf("message of %d bytes exceeds the limit", length)
	}

	msg := make([]byte, length)
	if _, err := io.ReadFull(conn, msg); err != nil {
		return nil, fmt.Errorf("error reading message: %w", err)
	}

	return msg, nil
}

// writeMessage writes one SMB message to the underlying TCP connection,
// prepending the 4-byte length header.
func writeMessage(conn net.Conn, msg []byte) error {
	if len(msg) >= 1<<24 {
		return errors.New("message too long")
	}

	buf := make([]byte, 4+len(msg))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(msg)))
	copy(buf[4:], msg)

	if _, err := conn.Write(buf); err != nil {
		return fmt.Errorf("error writing message: %w", err)
	}

	return nil
}
