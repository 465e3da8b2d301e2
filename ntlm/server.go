// Adapted from https://github.com/hirochachacha/go-smb2
package ntlm

import (
	"bytes"
	"crypto/hmac"
	"crypto/md5"
	"crypto/rand"
	"crypto/rc4"
	"encoding/asn1"
	"encoding/binary"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/vstarodubtsev/cifsd/spnego"
	"github.com/vstarodubtsev/cifsd/utils"
	"golang.org/x/crypto/md4"
)

var (
	ErrLogonFailure  = errors.New("login failure")
	ErrBadMessage    = errors.New("malformed authentication message")
	ErrUnknownUser   = errors.New("unknown user")
	ErrNoCredentials = errors.New("credential is empty")
)

// Server verifies NTLM challenge responses against stored NT hashes. One
// Server is shared by all connections; the per-handshake state (negotiate
// and challenge messages) lives in an Exchange.
type Server struct {
	targetName   string
	targetDomain string

	mu       sync.RWMutex
	accounts map[string][]byte // lowercased user -> NT hash

	mechTypes []asn1.ObjectIdentifier
}

// NewServer returns a Server announcing the given target name and domain.
func NewServer(targetName, targetDomain string) *Server {
	mechTypes := make([]asn1.ObjectIdentifier, 1)
	mechTypes[0] = spnego.NlmpOid
	return &Server{
		targetName:   targetName,
		targetDomain: targetDomain,
		accounts:     make(map[string][]byte),
		mechTypes:    mechTypes,
	}
}

// AddAccount registers a user with a cleartext password. The password is
// hashed immediately and not retained.
func (s *Server) AddAccount(user, password string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[strings.ToLower(user)] = NTHash(password)
}

// AddAccountHash registers a user with a precomputed NT hash.
func (s *Server) AddAccountHash(user string, hash []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accounts[strings.ToLower(user)] = hash
}

// RemoveAccount deletes a user.
func (s *Server) RemoveAccount(user string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.accounts, strings.ToLower(user))
}

// HasAccount reports whether the user is known.
func (s *Server) HasAccount(user string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.accounts[strings.ToLower(user)]
	return ok
}

func (s *Server) hash(user string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.accounts[user]
	return h, ok
}

// Negotiate returns the SPNEGO hint token advertising NTLMSSP.
func (s *Server) Negotiate() ([]byte, error) {
	return spnego.EncodeNegTokenInit2(s.mechTypes)
}

// Exchange holds the state of one extended-security handshake: the raw
// negotiate and challenge messages feed the MIC check of the authenticate
// message.
type Exchange struct {
	server *Server
	nmsg   []byte
	cmsg   []byte
	amsg   []byte

	session *Session
}

// NewExchange starts an extended-security handshake.
func (s *Server) NewExchange() *Exchange {
	return &Exchange{server: s}
}

// Challenge consumes an NTLMSSP negotiate message and produces the
// challenge message.
func (e *Exchange) Challenge(nmsg []byte) (cmsg []byte, err error) {
	//        NegotiateMessage
	//   0-8: Signature
	//  8-12: MessageType
	// 12-16: NegotiateFlags
	// 16-24: DomainNameFields
	// 24-32: WorkstationFields
	// 32-40: Version
	//   40-: Payload

	e.nmsg = nmsg

	if len(nmsg) < 32 {
		return nil, ErrBadMessage
	}

	if !bytes.Equal(nmsg[:8], signature) {
		return nil, ErrBadMessage
	}

	if binary.LittleEndian.Uint32(nmsg[8:12]) != NtLmNegotiate {
		return nil, ErrBadMessage
	}

	flags := binary.LittleEndian.Uint32(nmsg[12:16]) & defaultFlags
	flags |= NTLMSSP_NEGOTIATE_TARGET_INFO
	flags |= NTLMSSP_TARGET_TYPE_SERVER

	//        ChallengeMessage
	//   0-8: Signature
	//  8-12: MessageType
	// 12-20: TargetNameFields
	// 20-24: NegotiateFlags
	// 24-32: ServerChallenge
	// 32-40: _
	// 40-48: TargetInfoFields
	// 48-56: Version
	//   56-: Payload

	off := 48

	if flags&NTLMSSP_NEGOTIATE_VERSION != 0 {
		off += 8
	}

	targetName := utils.EncodeStringToBytes(e.server.targetName)
	targetDomain := utils.EncodeStringToBytes(e.server.targetDomain)
	targetNameLow := utils.EncodeStringToBytes(strings.ToLower(e.server.targetName))

	length := len(targetName)
	if flags&NTLMSSP_NEGOTIATE_TARGET_INFO != 0 {
		length += len(targetName) + 4    // MsvAvNbComputerName
		length += len(targetName) + 4    // MsvAvNbDomainName
		length += len(targetNameLow) + 4 // MsvAvDnsComputerName
		length += len(targetDomain) + 4  // MsvAvDnsDomainName
		length += 8 + 4                  // MsvAvTimestamp
		length += 4                      // MsvAvEOL
	}

	cmsg = make([]byte, off+length)

	copy(cmsg[:8], signature)
	binary.LittleEndian.PutUint32(cmsg[8:12], NtLmChallenge)
	binary.LittleEndian.PutUint32(cmsg[20:24], flags)

	if targetName != nil && flags&NTLMSSP_REQUEST_TARGET != 0 {
		length := copy(cmsg[off:off+len(targetName)], targetName)
		binary.LittleEndian.PutUint16(cmsg[12:14], uint16(length))
		binary.LittleEndian.PutUint16(cmsg[14:16], uint16(length))
		binary.LittleEndian.PutUint32(cmsg[16:20], uint32(off))
		off += length
	}

	if flags&NTLMSSP_NEGOTIATE_TARGET_INFO != 0 {
		offset := off
		binary.LittleEndian.PutUint16(cmsg[offset:offset+2], MsvAvNbComputerName)
		binary.LittleEndian.PutUint16(cmsg[offset+2:offset+4], uint16(len(targetName)))
		copy(cmsg[offset+4:offset+4+len(targetName)], targetName)
		length := 4 + len(targetName)
		offset += length

		binary.LittleEndian.PutUint16(cmsg[offset:offset+2], MsvAvNbDomainName)
		binary.LittleEndian.PutUint16(cmsg[offset+2:offset+4], uint16(len(targetName)))
		copy(cmsg[offset+4:offset+4+len(targetName)], targetName)
		length += 4 + len(targetName)
		offset += 4 + len(targetName)

		binary.LittleEndian.PutUint16(cmsg[offset:offset+2], MsvAvDnsComputerName)
		binary.LittleEndian.PutUint16(cmsg[offset+2:offset+4], uint16(len(targetNameLow)))
		copy(cmsg[offset+4:offset+4+len(targetNameLow)], targetNameLow)
		length += 4 + len(targetNameLow)
		offset += 4 + len(targetNameLow)

		binary.LittleEndian.PutUint16(cmsg[offset:offset+2], MsvAvDnsDomainName)
		binary.LittleEndian.PutUint16(cmsg[offset+2:offset+4], uint16(len(targetDomain)))
		copy(cmsg[offset+4:offset+4+len(targetDomain)], targetDomain)
		length += 4 + len(targetDomain)
		offset += 4 + len(targetDomain)

		binary.LittleEndian.PutUint16(cmsg[offset:offset+2], MsvAvTimestamp)
		binary.LittleEndian.PutUint16(cmsg[offset+2:offset+4], 8)
		binary.LittleEndian.PutUint64(cmsg[offset+4:offset+12], utils.UnixToFiletime(time.Now()))
		length += 12
		offset += 12

		copy(cmsg[offset:offset+4], []byte{0x00, 0x00, 0x00, 0x00}) // AvId: MsvAvEOL, AvLen: 0
		length += 4
		binary.LittleEndian.PutUint16(cmsg[40:42], uint16(length))
		binary.LittleEndian.PutUint16(cmsg[42:44], uint16(length))
		binary.LittleEndian.PutUint32(cmsg[44:48], uint32(off))
	}

	_, err = rand.Read(cmsg[24:32])
	if err != nil {
		return nil, err
	}

	if flags&NTLMSSP_NEGOTIATE_VERSION != 0 {
		copy(cmsg[48:56], version)
	}

	e.cmsg = cmsg

	return cmsg, nil
}

// Authenticate verifies the NTLMSSP authenticate message against the stored
// NT hash of the named user and, on success, derives the session key.
func (e *Exchange) Authenticate(amsg []byte) (err error) {
	//        AuthenticateMessage
	//   0-8: Signature
	//  8-12: MessageType
	// 12-20: LmChallengeResponseFields
	// 20-28: NtChallengeResponseFields
	// 28-36: DomainNameFields
	// 36-44: UserNameFields
	// 44-52: WorkstationFields
	// 52-60: EncryptedRandomSessionKeyFields
	// 60-64: NegotiateFlags
	// 64-72: Version
	// 72-88: MIC
	//   88-: Payload

	if len(amsg) < 64 {
		return ErrBadMessage
	}

	if !bytes.Equal(amsg[:8], signature) {
		return ErrBadMessage
	}

	if binary.LittleEndian.Uint32(amsg[8:12]) != NtLmAuthenticate {
		return ErrBadMessage
	}

	flags := binary.LittleEndian.Uint32(amsg[60:64])

	ntChallengeResponse, err := payloadField(amsg, 20)
	if err != nil {
		return err
	}
	domainName, err := payloadField(amsg, 28)
	if err != nil {
		return err
	}
	userName, err := payloadField(amsg, 36)
	if err != nil {
		return err
	}
	encryptedRandomSessionKey, err := payloadField(amsg, 52)
	if err != nil {
		return err
	}

	if len(userName) == 0 || len(ntChallengeResponse) < EncPwdSize+28 {
		return ErrNoCredentials
	}

	user := strings.ToLower(utils.DecodeToString(userName))
	hash, ok := e.server.hash(user)
	if !ok {
		return ErrUnknownUser
	}

	USER := utils.EncodeStringToBytes(strings.ToUpper(user))
	h := hmac.New(md5.New, ntowfv2Hash(USER, hash, domainName))

	ntlmv2ClientChallenge := ntChallengeResponse[16:]
	serverChallenge := e.cmsg[24:32]
	timeStamp := ntlmv2ClientChallenge[8:16]
	clientChallenge := ntlmv2ClientChallenge[16:24]
	targetInfo := ntlmv2ClientChallenge[28:]

	expected := make([]byte, len(ntChallengeResponse))
	encodeNtlmv2Response(expected, h, serverChallenge, clientChallenge, timeStamp, bytesEncoder(targetInfo))
	if !bytes.Equal(ntChallengeResponse, expected) {
		return ErrLogonFailure
	}

	session := &Session{
		user:           user,
		negotiateFlags: flags,
		ntResponse:     append([]byte(nil), ntChallengeResponse...),
	}
	if len(domainName) != 0 {
		session.domain = utils.DecodeToString(domainName)
	}

	h.Reset()
	h.Write(ntChallengeResponse[:16])
	sessionBaseKey := h.Sum(nil)

	if flags&NTLMSSP_NEGOTIATE_KEY_EXCH != 0 {
		if len(encryptedRandomSessionKey) < 16 {
			return ErrBadMessage
		}
		session.sessionKey = make([]byte, 16)
		cipher, err := rc4.NewCipher(sessionBaseKey)
		if err != nil {
			return err
		}
		cipher.XORKeyStream(session.sessionKey, encryptedRandomSessionKey[:16])
	} else {
		session.sessionKey = sessionBaseKey
	}

	if infoMap, ok := parseAvPairs(targetInfo); ok {
		if avFlags, ok := infoMap[MsvAvFlags]; ok && binary.LittleEndian.Uint32(avFlags)&0x02 != 0 {
			micOff := 64
			if flags&NTLMSSP_NEGOTIATE_VERSION != 0 {
				micOff = 72
			}
			if len(amsg) < micOff+16 {
				return ErrBadMessage
			}
			MIC := make([]byte, 16)
			copy(MIC, amsg[micOff:micOff+16])
			copy(amsg[micOff:micOff+16], zero[:])
			h = hmac.New(md5.New, session.sessionKey)
			h.Write(e.nmsg)
			h.Write(e.cmsg)
			h.Write(amsg)
			if !bytes.Equal(MIC, h.Sum(nil)) {
				return ErrLogonFailure
			}
		}
		session.infoMap = infoMap
	}

	e.session = session
	e.amsg = amsg

	return nil
}

// payloadField carves a length/offset-described buffer out of the message.
// fieldOff points at the 8-byte field descriptor.
func payloadField(msg []byte, fieldOff int) ([]byte, error) {
	length := binary.LittleEndian.Uint16(msg[fieldOff : fieldOff+2])
	maxLength := binary.LittleEndian.Uint16(msg[fieldOff+2 : fieldOff+4])
	if maxLength < length {
		return nil, ErrBadMessage
	}
	offset := binary.LittleEndian.Uint32(msg[fieldOff+4 : fieldOff+8])
	if uint64(offset)+uint64(length) > uint64(len(msg)) {
		return nil, ErrBadMessage
	}
	return msg[offset : offset+uint32(length)], nil
}

// Session returns the authenticated session of a completed exchange.
func (e *Exchange) Session() *Session {
	return e.session
}

// EncPwdSize is the length of the fixed NTProof part of an NTLMv2 response.
const EncPwdSize = 16

// VerifyClassic checks an inline challenge response carried by a
// non-extended session setup against the stored NT hash. ntResp longer than
// 24 bytes is treated as NTLMv2, exactly 24 bytes as classic NTLM. The
// returned session carries the key material for message signing.
func (s *Server) VerifyClassic(user, domain string, challenge, ntResp []byte) (*Session, error) {
	user = strings.ToLower(user)
	hash, ok := s.hash(user)
	if !ok {
		return nil, ErrUnknownUser
	}

	session := &Session{
		user:       user,
		domain:     domain,
		ntResponse: append([]byte(nil), ntResp...),
	}

	switch {
	case len(ntResp) > 24:
		if len(ntResp) < EncPwdSize+28 {
			return nil, ErrBadMessage
		}
		USER := utils.EncodeStringToBytes(strings.ToUpper(user))
		DOMAIN := utils.EncodeStringToBytes(domain)
		h := hmac.New(md5.New, ntowfv2Hash(USER, hash, DOMAIN))

		blob := ntResp[16:]
		expected := make([]byte, len(ntResp))
		encodeNtlmv2Response(expected, h, challenge, blob[16:24], blob[8:16], bytesEncoder(blob[28:]))
		if !bytes.Equal(ntResp, expected) {
			return nil, ErrLogonFailure
		}

		h.Reset()
		h.Write(ntResp[:16])
		session.sessionKey = h.Sum(nil)

	case len(ntResp) == 24:
		expected, err := ntlmv1Response(hash, challenge)
		if err != nil {
			return nil, err
		}
		if !bytes.Equal(ntResp, expected) {
			return nil, ErrLogonFailure
		}

		// The NTLM session base key is MD4 of the NT hash.
		h := md4.New()
		h.Write(hash)
		session.sessionKey = h.Sum(nil)

	default:
		return nil, ErrNoCredentials
	}

	return session, nil
}
