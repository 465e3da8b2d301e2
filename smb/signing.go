package smb

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"sync"
)

const (
	// SignatureSize is the size of the SecurityFeatures field.
	SignatureSize = 8
)

// Signer holds the per-session signing state: the MAC key and the sequence
// counter. The sequence number advances exactly once per signed request and
// once per signed response, in send order.
type Signer struct {
	mu  sync.Mutex
	key []byte
	seq uint32
}

// NewSigner creates a Signer from the session key material. The MAC key is
// the session key followed by the client's NT response, as negotiated during
// session setup.
func NewSigner(sessionKey, ntResponse []byte) *Signer {
	key := make([]byte, 0, len(sessionKey)+len(ntResponse))
	key = append(key, sessionKey...)
	key = append(key, ntResponse...)
	return &Signer{key: key}
}

// mac computes MD5(key || message) with the signature field replaced by the
// little-endian sequence number padded with zeros, returning the first
// eight bytes.
func (s *Signer) mac(msg []byte, seq uint32) []byte {
	var seqField [SignatureSize]byte
	binary.LittleEndian.PutUint32(seqField[:4], seq)

	h := md5.New()
	h.Write(s.key)
	h.Write(msg[:14])
	h.Write(seqField[:])
	h.Write(msg[22:])
	return h.Sum(nil)[:SignatureSize]
}

// Sign stamps the signature of an outgoing message and advances the
// sequence counter.
func (s *Signer) Sign(msg []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	Header(msg).SetSignature(s.mac(msg, s.seq))
	s.seq++
}

// Verify checks the signature of an incoming message and advances the
// sequence counter. It returns false on a mismatch; the counter advances
// either way so that a single corrupt request does not desynchronize the
// session.
func (s *Signer) Verify(msg []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	want := s.mac(msg, s.seq)
	s.seq++
	return bytes.Equal(Header(msg).Signature(), want)
}

// Sequence returns the current sequence number. Used by tests and the
// control surface.
func (s *Signer) Sequence() uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}
