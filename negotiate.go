package main

import (
	"crypto/rand"
	"encoding/asn1"
	"time"

	"github.com/vstarodubtsev/cifsd/smb"
	"github.com/vstarodubtsev/cifsd/spnego"
)

// handleNegotiate picks the dialect and advertises the server's security
// mode and capabilities. SMB2 offers are declined in favor of NT LM 0.12;
// without that dialect the connection gets the bad-dialect response.
func handleNegotiate(s *server, ctx *request, words, data []byte) (smb.AndX, error) {
	var req smb.NegotiateRequest
	if err := req.Decode(words, data); err != nil {
		return noChain, err
	}

	index := -1
	for i, d := range req.Dialects {
		if d == smb.SMB_DIALECT_NT1 {
			index = i
			break
		}
	}
	if index < 0 {
		return noChain, smb.EncodeDialectOnly(ctx.resp, smb.BadDialect)
	}

	c := ctx.conn

	secMode := uint8(smb.SECMODE_USER | smb.SECMODE_ENCRYPT_PWD | smb.SECMODE_SIGN_ENABLED)
	if s.requireSigning() {
		secMode |= smb.SECMODE_SIGN_REQUIRED
	}

	caps := uint32(smb.CAP_UNICODE | smb.CAP_LARGE_FILES | smb.CAP_NT_SMBS |
		smb.CAP_RPC_REMOTE_APIS | smb.CAP_STATUS32 | smb.CAP_LEVEL_II_OPLOCKS |
		smb.CAP_NT_FIND | smb.CAP_LARGE_READ_X | smb.CAP_LARGE_WRITE_X |
		smb.CAP_UNIX)

	nr := smb.NegotiateResponse{
		DialectIndex:  uint16(index),
		SecurityMode:  secMode,
		MaxMpxCount:   c.maxMpx,
		MaxBufferSize: smb.LargeBufferSize,
		MaxRawSize:    smb.DefaultIOSize,
		SystemTime:    time.Now(),
	}

	if ctx.h.IsFlag2Set(smb.FLAGS2_EXT_SEC) {
		caps |= smb.CAP_EXTENDED_SECURITY
		nr.Capabilities = caps
		nr.ServerGuid = [16]byte(s.serverGuid)
		hint, err := spnego.EncodeNegTokenInit2([]asn1.ObjectIdentifier{spnego.NlmpOid})
		if err != nil {
			hint = []byte{}
		}
		nr.SecurityBlob = hint
	} else {
		challenge := make([]byte, smb.ChallengeSize)
		rand.Read(challenge)
		c.mu.Lock()
		c.challenge = challenge
		c.mu.Unlock()

		nr.Capabilities = caps
		nr.Challenge = challenge
		nr.DomainName = s.cfg.Workgroup
	}

	if err := nr.Encode(ctx.resp); err != nil {
		return noChain, err
	}

	c.setPhase(connNegotiated)
	return noChain, nil
}
