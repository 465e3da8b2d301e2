package rpc

import (
	"bytes"
	"sync"

	"github.com/oiweiwei/go-msrpc/msrpc/dtyp"
	"github.com/oiweiwei/go-msrpc/msrpc/lsat/lsarpc/v0"
)

// Kind names a well-known named pipe.
type Kind int

const (
	KindSrvsvc Kind = iota
	KindWkssvc
	KindLsarpc
	KindWinreg
	KindLanman
)

// KindForName maps a pipe path as sent by clients to its Kind. Leading
// backslashes and the PIPE prefix are ignored.
func KindForName(name string) (Kind, bool) {
	for len(name) > 0 && name[0] == '\\' {
		name = name[1:]
	}
	if len(name) > 5 && equalFold(name[:5], "pipe\\") {
		name = name[5:]
	}
	switch {
	case equalFold(name, "srvsvc"):
		return KindSrvsvc, true
	case equalFold(name, "wkssvc"):
		return KindWkssvc, true
	case equalFold(name, "lsarpc"):
		return KindLsarpc, true
	case equalFold(name, "winreg"):
		return KindWinreg, true
	case equalFold(name, "lanman"):
		return KindLanman, true
	}
	return 0, false
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// Transport is one open pipe instance. A request fragment goes in with
// Write; the response is drained with Read. Both calls are synchronous.
type Transport interface {
	Write(p []byte) (int, error)
	Read(p []byte) (int, error)
	Close() error
}

// Backend serves pipe opens in-process.
type Backend struct {
	serverName string
	domain     string
	domainSID  *dtyp.SID
	shares     func() []ShareInfo
}

// NewBackend returns a Backend announcing the given names. shares is called
// on every enumeration so the backend sees share-store updates.
func NewBackend(serverName, domain string, shares func() []ShareInfo) *Backend {
	return &Backend{
		serverName: serverName,
		domain:     domain,
		domainSID: &dtyp.SID{
			Revision:          1,
			SubAuthorityCount: 4,
			IDAuthority:       &dtyp.SIDIDAuthority{Value: []byte{0x00, 0x00, 0x00, 0x00, 0x00, 0x05}},
			SubAuthority:      []uint32{21, 0x0cf15d, 0x59ba21, 0x1e6c4d},
		},
		shares: shares,
	}
}

// Open creates a pipe instance of the given kind bound to the caller.
// The LANMAN RAP slot is recognized but not served.
func (b *Backend) Open(kind Kind, user string) (Transport, error) {
	switch kind {
	case KindSrvsvc, KindWkssvc, KindLsarpc, KindWinreg:
		return &pipe{backend: b, kind: kind, user: user}, nil
	case KindLanman:
		return nil, ErrNotSupported
	}
	return nil, ErrNotSupported
}

// pipe is one in-process pipe instance. Responses accumulate in out until
// the client reads them.
type pipe struct {
	backend *Backend
	kind    Kind
	user    string

	mu     sync.Mutex
	out    bytes.Buffer
	opened bool // lsarpc policy handle issued
	closed bool
}

// Write handles one request fragment and queues the response.
func (p *pipe) Write(req []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, ErrPipeClosed
	}
	if len(req) > MaxFragSize {
		return 0, ErrInvalidParameter
	}

	var in InboundPacket
	if err := in.Read(bytes.NewReader(req)); err != nil {
		return 0, err
	}

	var resp *OutboundPacket
	switch in.Header.PacketType {
	case PACKET_TYPE_BIND, PACKET_TYPE_ALTER_CONTEXT:
		resp = NewBindAck(in.Header.CallID, p.portSpec())
	case PACKET_TYPE_REQUEST:
		resp = p.dispatch(&in)
	}
	if resp == nil {
		return 0, ErrNotSupported
	}
	if in.Header.PacketType == PACKET_TYPE_ALTER_CONTEXT {
		resp.Header.PacketType = PACKET_TYPE_ALTER_CONTEXT_RESPONSE
	}

	if p.out.Len() >= MaxFragSize*4 {
		return 0, ErrBufferFull
	}
	resp.Write(&p.out)
	return len(req), nil
}

// Read drains queued response bytes. A short read leaves the rest buffered.
func (p *pipe) Read(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return 0, ErrPipeClosed
	}
	return p.out.Read(buf)
}

// Available reports the number of buffered response bytes.
func (p *pipe) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out.Len()
}

// Close discards the pipe state.
func (p *pipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.out.Reset()
	return nil
}

func (p *pipe) portSpec() string {
	switch p.kind {
	case KindSrvsvc:
		return "\\PIPE\\srvsvc"
	case KindWkssvc:
		return "\\PIPE\\wkssvc"
	case KindLsarpc:
		return "\\PIPE\\lsarpc"
	case KindWinreg:
		return "\\PIPE\\winreg"
	}
	return ""
}

func (p *pipe) dispatch(in *InboundPacket) *OutboundPacket {
	switch p.kind {
	case KindSrvsvc:
		return p.dispatchSrvsvc(in)
	case KindWkssvc:
		return p.dispatchWkssvc(in)
	case KindLsarpc:
		return p.dispatchLsarpc(in)
	case KindWinreg:
		return NewFault(in.Header.CallID, NCA_S_OP_RNG_ERROR)
	}
	return nil
}

func (p *pipe) dispatchSrvsvc(in *InboundPacket) *OutboundPacket {
	callID := in.Header.CallID
	switch in.Request.OpNum {
	case SRVSVC_NET_SHARE_ENUM_ALL:
		var req NetShareEnumAllRequest
		if err := req.Unmarshal(in.Payload); err != nil {
			return NewFault(callID, NCA_S_PROTO_ERROR)
		}
		body := &NetShareEnumAllResponse{Result: WERR_OK}
		if req.Level != 1 {
			body.Result = WERR_INVALID_LEVEL
		} else {
			body.Shares = p.backend.shares()
		}
		return &OutboundPacket{
			Header: NewHeader(PACKET_TYPE_RESPONSE, PFC_FIRST_FRAG|PFC_LAST_FRAG, callID),
			Body:   &ResponseBody{Payload: body},
		}

	case SRVSVC_NET_SHARE_GET_INFO:
		var req NetShareGetInfoRequest
		if err := req.Unmarshal(in.Payload); err != nil {
			return NewFault(callID, NCA_S_PROTO_ERROR)
		}
		body := &NetShareInfo1Response{Result: WERR_NET_NAME_NOT_FOUND}
		if req.Level != 1 {
			body.Result = WERR_INVALID_LEVEL
		} else {
			for _, sh := range p.backend.shares() {
				if equalFold(sh.Name, req.Share) {
					body.ShareInfo = sh
					body.Result = WERR_OK
					break
				}
			}
		}
		return &OutboundPacket{
			Header: NewHeader(PACKET_TYPE_RESPONSE, PFC_FIRST_FRAG|PFC_LAST_FRAG, callID),
			Body:   &ResponseBody{Payload: body},
		}
	}
	return NewFault(callID, NCA_S_OP_RNG_ERROR)
}

func (p *pipe) dispatchWkssvc(in *InboundPacket) *OutboundPacket {
	callID := in.Header.CallID
	if in.Request.OpNum != WKSSVC_NET_WKSTA_GET_INFO {
		return NewFault(callID, NCA_S_OP_RNG_ERROR)
	}
	var req NetWkstaGetInfoRequest
	if err := req.Unmarshal(in.Payload); err != nil {
		return NewFault(callID, NCA_S_PROTO_ERROR)
	}
	body := &NetWkstaGetInfoResponse{
		ComputerName: p.backend.serverName,
		DomainName:   p.backend.domain,
		Result:       WERR_OK,
	}
	if req.Level != 100 {
		body.Result = WERR_INVALID_LEVEL
	}
	return &OutboundPacket{
		Header: NewHeader(PACKET_TYPE_RESPONSE, PFC_FIRST_FRAG|PFC_LAST_FRAG, callID),
		Body:   &ResponseBody{Payload: body},
	}
}

func (p *pipe) dispatchLsarpc(in *InboundPacket) *OutboundPacket {
	callID := in.Header.CallID
	ident := Identity{
		User:      p.user,
		Domain:    p.backend.domain,
		DomainSID: p.backend.domainSID,
		RID:       1000,
	}
	switch in.Request.OpNum {
	case LSA_GET_USER_NAME:
		return NewGetUserNameResponse(callID, ident, 0)
	case LSA_OPEN_POLICY_2:
		p.opened = true
		return NewOpenPolicy2Response(callID, &lsarpc.Handle{}, 0)
	case LSA_LOOKUP_NAMES:
		if !p.opened {
			// STATUS_INVALID_HANDLE
			return NewLookupNamesResponse(callID, ident, 0xc0000008)
		}
		return NewLookupNamesResponse(callID, ident, 0)
	case LSA_CLOSE:
		p.opened = false
		return NewCloseResponse(callID, 0)
	}
	return NewFault(callID, NCA_S_OP_RNG_ERROR)
}
