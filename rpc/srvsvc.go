package rpc

import (
	"context"
	"encoding/binary"

	"github.com/oiweiwei/go-msrpc/ndr"
	"github.com/vstarodubtsev/cifsd/utils"
)

const (
	SRVSVC_NET_SHARE_ENUM_ALL = 0x000f
	SRVSVC_NET_SHARE_GET_INFO = 0x0010
)

const (
	// Share types.
	STYPE_DISKTREE = 0x00000000
	STYPE_PRINTQ   = 0x00000001
	STYPE_DEVICE   = 0x00000002
	STYPE_IPC      = 0x00000003
	STYPE_HIDDEN   = 0x80000000
)

const (
	// Win32 error codes returned in srvsvc stubs.
	WERR_OK                 = 0
	WERR_ACCESS_DENIED      = 5
	WERR_INVALID_PARAMETER  = 87
	WERR_INVALID_LEVEL      = 124
	WERR_NET_NAME_NOT_FOUND = 2310
)

// ShareInfo describes one share for enumeration.
type ShareInfo struct {
	Name    string
	Type    uint32
	Comment string
}

// NetShareGetInfoRequest represents an MS-RPC NetShareGetInfo request.
type NetShareGetInfoRequest struct {
	Server string
	Share  string
	Level  uint32
}

// Unmarshal decodes the NetShareGetInfo request stub.
func (req *NetShareGetInfoRequest) Unmarshal(buf []byte) error {
	var off uint32
	if len(buf) < 16 {
		return ErrBadPacket
	}
	ptr := binary.LittleEndian.Uint32(buf[:4])
	if ptr > 256 {
		off += 4
	}

	srvLength := binary.LittleEndian.Uint32(buf[off+8 : off+12])
	if srvLength == 0 || uint64(off)+12+uint64(srvLength)*2 > uint64(len(buf)) {
		return ErrBadPacket
	}
	req.Server = utils.DecodeToString(buf[off+12 : off+12+srvLength*2-2])
	off += 12 + srvLength*2
	off = uint32(utils.Roundup(int(off), 4))

	if uint64(off)+12 > uint64(len(buf)) {
		return ErrBadPacket
	}
	ptr = binary.LittleEndian.Uint32(buf[off : off+4])
	if ptr > 256 {
		off += 4
	}

	shLength := binary.LittleEndian.Uint32(buf[off+8 : off+12])
	if shLength == 0 || uint64(off)+12+uint64(shLength)*2 > uint64(len(buf)) {
		return ErrBadPacket
	}
	req.Share = utils.DecodeToString(buf[off+12 : off+12+shLength*2-2])
	off += 12 + shLength*2
	off = uint32(utils.Roundup(int(off), 4))
	if uint64(off)+4 > uint64(len(buf)) {
		return ErrBadPacket
	}
	req.Level = binary.LittleEndian.Uint32(buf[off : off+4])
	return nil
}

// NetShareInfo1Response represents an MS-RPC NetShareGetInfo level 1
// response.
type NetShareInfo1Response struct {
	ShareInfo
	Result uint32
}

// MarshalNDR implements the ndr.Marshaler interface.
func (resp *NetShareInfo1Response) MarshalNDR(ctx context.Context, w ndr.Writer) error {
	var buf []byte
	buf = binary.LittleEndian.AppendUint32(buf, 1)
	buf = binary.LittleEndian.AppendUint32(buf, 0x00020004)
	buf = binary.LittleEndian.AppendUint32(buf, 0x00020008)
	buf = binary.LittleEndian.AppendUint32(buf, resp.Type)
	buf = binary.LittleEndian.AppendUint32(buf, 0x0002000c)
	buf = appendConformantString(buf, resp.Name)
	buf = appendConformantString(buf, resp.Comment)
	buf = binary.LittleEndian.AppendUint32(buf, resp.Result)
	_, err := w.Write(buf)
	return err
}

// NetShareEnumAllRequest represents an MS-RPC NetShareEnumAll request.
type NetShareEnumAllRequest struct {
	Server    string
	Level     uint32
	MaxBuffer uint32
}

// Unmarshal decodes the NetShareEnumAll request stub.
func (req *NetShareEnumAllRequest) Unmarshal(buf []byte) error {
	if len(buf) < 20 {
		return ErrBadPacket
	}
	srvLength := binary.LittleEndian.Uint32(buf[12:16])
	if srvLength == 0 || 16+uint64(srvLength)*2 > uint64(len(buf)) {
		return ErrBadPacket
	}
	req.Server = utils.DecodeToString(buf[16 : 16+srvLength*2-2])
	off := 16 + srvLength*2
	off = uint32(utils.Roundup(int(off), 4))
	if uint64(off)+24 > uint64(len(buf)) {
		return ErrBadPacket
	}
	req.Level = binary.LittleEndian.Uint32(buf[off : off+4])
	off += 20
	req.MaxBuffer = binary.LittleEndian.Uint32(buf[off : off+4])
	return nil
}

// NetShareEnumAllResponse represents an MS-RPC NetShareEnumAll level 1
// response.
type NetShareEnumAllResponse struct {
	Shares []ShareInfo
	Result uint32
}

// MarshalNDR implements the ndr.Marshaler interface.
func (resp *NetShareEnumAllResponse) MarshalNDR(ctx context.Context, w ndr.Writer) error {
	var buf []byte
	buf = binary.LittleEndian.AppendUint32(buf, 1)
	buf = binary.LittleEndian.AppendUint32(buf, 1)
	buf = binary.LittleEndian.AppendUint32(buf, 0x0002000c)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(resp.Shares)))
	buf = binary.LittleEndian.AppendUint32(buf, 0x00020010)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(resp.Shares)))
	for i, share := range resp.Shares {
		buf = binary.LittleEndian.AppendUint32(buf, 0x00020014+uint32(i)*8)
		buf = binary.LittleEndian.AppendUint32(buf, share.Type)
		buf = binary.LittleEndian.AppendUint32(buf, 0x00020018+uint32(i)*8)
	}

	for _, share := range resp.Shares {
		buf = appendConformantString(buf, share.Name)
		buf = appendConformantString(buf, share.Comment)
	}

	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(resp.Shares)))
	buf = binary.LittleEndian.AppendUint32(buf, 0x00020014+uint32(len(resp.Shares)*2))
	buf = binary.LittleEndian.AppendUint32(buf, 0)
	buf = binary.LittleEndian.AppendUint32(buf, resp.Result)
	_, err := w.Write(buf)
	return err
}

// appendConformantString appends a conformant varying UTF-16LE string with
// 4-byte tail alignment.
func appendConformantString(buf []byte, s string) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)+1))
	buf = binary.LittleEndian.AppendUint32(buf, 0)
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(s)+1))
	buf = append(buf, utils.EncodeStringToBytes(s)...)
	buf = append(buf, 0, 0)
	padLen := utils.Roundup(len(buf), 4) - len(buf)
	return append(buf, make([]byte, padLen)...)
}
