// Package rpc implements the slice of MS-RPC that file server clients
// exercise over named pipes: bind/bind-ack, srvsvc share enumeration,
// wkssvc workstation info and lsarpc name lookups.
package rpc

import (
	"io"
	"log"

	"github.com/oiweiwei/go-msrpc/msrpc/dtyp"
	"github.com/oiweiwei/go-msrpc/msrpc/lsat/lsarpc/v0"
	"github.com/oiweiwei/go-msrpc/ndr"
)

const (
	LSA_CLOSE         = 0x0000
	LSA_LOOKUP_NAMES  = 0x000e
	LSA_OPEN_POLICY_2 = 0x002c
	LSA_GET_USER_NAME = 0x002d
)

// ResponseBody pairs the fixed response header with an NDR-marshalled stub.
type ResponseBody struct {
	Header  Response
	Payload ndr.Marshaler
}

// Encode implements the Encoder interface.
func (rb *ResponseBody) Encode(w io.Writer) {
	payload, err := ndr.Marshal(rb.Payload)
	if err != nil {
		log.Println("Error encoding response:", err)
		return
	}

	rb.Header.AllocHint = uint32(len(payload))
	rb.Header.Encode(w)
	w.Write(payload)
}

// NewBindAck accepts a bind on the named port with the NDR32 transfer
// syntax.
func NewBindAck(callID uint32, addr string) *OutboundPacket {
	return &OutboundPacket{
		Header: NewHeader(PACKET_TYPE_BIND_ACK, PFC_FIRST_FRAG|PFC_LAST_FRAG, callID),
		Body: &BindAck{
			MaxXmitFrag: MaxFragSize,
			MaxRecvFrag: MaxFragSize,
			PortSpec:    addr,
			ResultList: []*Result{
				{
					TransferSyntax: &SyntaxID{
						IfUUID:         [16]byte(NDR32),
						IfVersionMajor: 2,
						IfVersionMinor: 0,
					},
				},
			},
		},
	}
}

// Identity describes the authenticated caller for lsarpc responses.
type Identity struct {
	User      string
	Domain    string
	DomainSID *dtyp.SID
	RID       uint32
}

// NewGetUserNameResponse answers LsarGetUserName.
func NewGetUserNameResponse(callID uint32, ident Identity, status uint32) *OutboundPacket {
	return &OutboundPacket{
		Header: NewHeader(PACKET_TYPE_RESPONSE, PFC_FIRST_FRAG|PFC_LAST_FRAG, callID),
		Body: &ResponseBody{
			Payload: &lsarpc.GetUserNameResponse{
				UserName: &dtyp.UnicodeString{
					Length:        uint16(len(ident.User) * 2),
					MaximumLength: uint16(len(ident.User) * 2),
					Buffer:        ident.User,
				},
				DomainName: &dtyp.UnicodeString{
					Length:        uint16(len(ident.Domain) * 2),
					MaximumLength: uint16(len(ident.Domain) * 2),
					Buffer:        ident.Domain,
				},
				Return: int32(status),
			},
		},
	}
}

// NewOpenPolicy2Response answers LsarOpenPolicy2 with the given policy
// handle.
func NewOpenPolicy2Response(callID uint32, handle *lsarpc.Handle, status uint32) *OutboundPacket {
	return &OutboundPacket{
		Header: NewHeader(PACKET_TYPE_RESPONSE, PFC_FIRST_FRAG|PFC_LAST_FRAG, callID),
		Body: &ResponseBody{
			Payload: &lsarpc.OpenPolicy2Response{
				Policy: handle,
				Return: int32(status),
			},
		},
	}
}

// NewLookupNamesResponse answers LsarLookupNames, mapping every queried
// name to the caller's RID in the local domain.
func NewLookupNamesResponse(callID uint32, ident Identity, status uint32) *OutboundPacket {
	return &OutboundPacket{
		Header: NewHeader(PACKET_TYPE_RESPONSE, PFC_FIRST_FRAG|PFC_LAST_FRAG, callID),
		Body: &ResponseBody{
			Payload: &lsarpc.LookupNamesResponse{
				ReferencedDomains: &lsarpc.ReferencedDomainList{
					Entries:    1,
					MaxEntries: 32,
					Domains: []*lsarpc.TrustInformation{
						{
							Name: &dtyp.UnicodeString{
								Length:        uint16(len(ident.Domain) * 2),
								MaximumLength: uint16(len(ident.Domain)*2 + 2),
								Buffer:        ident.Domain,
							},
							SID: ident.DomainSID,
						},
					},
				},
				TranslatedSIDs: &lsarpc.TranslatedSIDs{
					Entries: 1,
					SIDs: []*lsarpc.TranslatedSID{
						{
							Use:         lsarpc.SIDNameUseTypeUser,
							RelativeID:  uint32(ident.RID),
							DomainIndex: 0,
						},
					},
				},
				MappedCount: 1,
				Return:      int32(status),
			},
		},
	}
}

// NewCloseResponse answers LsarClose.
func NewCloseResponse(callID uint32, status uint32) *OutboundPacket {
	return &OutboundPacket{
		Header: NewHeader(PACKET_TYPE_RESPONSE, PFC_FIRST_FRAG|PFC_LAST_FRAG, callID),
		Body: &ResponseBody{
			Payload: &lsarpc.CloseResponse{
				Return: int32(status),
			},
		},
	}
}
