package rpc

import (
	"context"
	"encoding/binary"

	"github.com/oiweiwei/go-msrpc/ndr"
)

const (
	WKSSVC_NET_WKSTA_GET_INFO = 0x0000
)

// NetWkstaGetInfoRequest represents an MS-RPC NetWkstaGetInfo request.
type NetWkstaGetInfoRequest struct {
	Level uint32
}

// Unmarshal decodes the NetWkstaGetInfo request stub: the level is the last
// dword after the referent server name.
func (req *NetWkstaGetInfoRequest) Unmarshal(buf []byte) error {
	if len(buf) < 4 {
		return ErrBadPacket
	}
	req.Level = binary.LittleEndian.Uint32(buf[len(buf)-4:])
	return nil
}

// NetWkstaGetInfoResponse represents an MS-RPC NetWkstaGetInfo level 100
// response.
type NetWkstaGetInfoResponse struct {
	ComputerName string
	DomainName   string
	Result       uint32
}

// MarshalNDR implements the ndr.Marshaler interface.
func (resp *NetWkstaGetInfoResponse) MarshalNDR(ctx context.Context, w ndr.Writer) error {
	var buf []byte
	buf = binary.LittleEndian.AppendUint32(buf, 100)        // level
	buf = binary.LittleEndian.AppendUint32(buf, 0x00020000) // info referent
	buf = binary.LittleEndian.AppendUint32(buf, 500)        // PLATFORM_ID_NT
	buf = binary.LittleEndian.AppendUint32(buf, 0x00020004)
	buf = binary.LittleEndian.AppendUint32(buf, 0x00020008)
	buf = binary.LittleEndian.AppendUint32(buf, 5) // ver_major
	buf = binary.LittleEndian.AppendUint32(buf, 0) // ver_minor
	buf = appendConformantString(buf, resp.ComputerName)
	buf = appendConformantString(buf, resp.DomainName)
	buf = binary.LittleEndian.AppendUint32(buf, resp.Result)
	_, err := w.Write(buf)
	return err
}
