// Adapted from https://github.com/hirochachacha/go-smb2
package ntlm

import (
	"github.com/vstarodubtsev/cifsd/utils"
)

// Session is a completed authentication. It carries the exported session
// key and the raw NT response; together they form the MAC key for SMB1
// message signing.
type Session struct {
	user   string
	domain string

	negotiateFlags uint32
	sessionKey     []byte
	ntResponse     []byte

	infoMap map[uint16][]byte
}

// User returns the lowercased account name.
func (s *Session) User() string {
	return s.user
}

// Domain returns the domain the client authenticated against, if any.
func (s *Session) Domain() string {
	return s.domain
}

// SessionKey returns the exported session key.
func (s *Session) SessionKey() []byte {
	return s.sessionKey
}

// NTResponse returns the raw NT challenge response the client sent.
func (s *Session) NTResponse() []byte {
	return s.ntResponse
}

// InfoMap lists the target-info pairs the client echoed back in its NTLMv2
// blob.
type InfoMap struct {
	NbComputerName  string
	NbDomainName    string
	DnsComputerName string
	DnsDomainName   string
	DnsTreeName     string
}

func (s *Session) InfoMap() *InfoMap {
	return &InfoMap{
		NbComputerName:  utils.DecodeToString(s.infoMap[MsvAvNbComputerName]),
		NbDomainName:    utils.DecodeToString(s.infoMap[MsvAvNbDomainName]),
		DnsComputerName: utils.DecodeToString(s.infoMap[MsvAvDnsComputerName]),
		DnsDomainName:   utils.DecodeToString(s.infoMap[MsvAvDnsDomainName]),
		DnsTreeName:     utils.DecodeToString(s.infoMap[MsvAvDnsTreeName]),
	}
}
