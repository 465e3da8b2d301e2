package main

import (
	"encoding/asn1"
	"log"

	"github.com/vstarodubtsev/cifsd/ntlm"
	"github.com/vstarodubtsev/cifsd/smb"
	"github.com/vstarodubtsev/cifsd/spnego"
)

const (
	spnegoAcceptCompleted  = asn1.Enumerated(0)
	spnegoAcceptIncomplete = asn1.Enumerated(1)
)

// actionGuest is the SESSION_SETUP response action bit for guest logons.
const actionGuest = 0x0001

func handleSessionSetup(s *server, ctx *request, words, data []byte) (smb.AndX, error) {
	var req smb.SessionSetupRequest
	if err := req.Decode(ctx.h, words, data); err != nil {
		return noChain, err
	}

	c := ctx.conn
	c.mu.Lock()
	c.maxBuffer = uint32(req.MaxBufferSize)
	c.mu.Unlock()

	if req.ExtendedSecurity {
		return sessionSetupExtended(s, ctx, &req)
	}
	return sessionSetupClassic(s, ctx, &req)
}

// sessionSetupClassic authenticates the 13-word form: the NT response is
// checked against the challenge issued at negotiate. An empty account name
// logs on as guest.
func sessionSetupClassic(s *server, ctx *request, req *smb.SessionSetupRequest) (smb.AndX, error) {
	c := ctx.conn
	c.mu.Lock()
	challenge := c.challenge
	c.mu.Unlock()
	if challenge == nil {
		return noChain, smb.Status(smb.STATUS_INVALID_PARAMETER).Err()
	}

	var (
		auth  *ntlm.Session
		guest bool
	)
	if req.AccountName == "" {
		guest = true
	} else {
		// Accounts created in the database after startup are picked up
		// on first logon.
		if !s.auth.HasAccount(req.AccountName) && s.db != nil {
			if password, err := s.db.GetCredentials(req.AccountName); err == nil {
				s.auth.AddAccount(req.AccountName, password)
			}
		}
		var err error
		auth, err = s.auth.VerifyClassic(req.AccountName, req.PrimaryDomain, challenge, req.CaseSensitivePassword)
		if err != nil {
			s.mu.Lock()
			s.stats.pwErrors++
			s.mu.Unlock()
			log.Printf("Logon failure for %q from %s\n", req.AccountName, c.clientName)
			return noChain, smb.Status(smb.STATUS_LOGON_FAILURE).Err()
		}
	}

	ss, err := s.registerSession(c)
	if err != nil {
		return noChain, err
	}
	ss.guest = guest
	if auth != nil {
		ss.user = auth.User()
		ss.domain = auth.Domain()
		if s.wantSigning(ctx.h) {
			signer := smb.NewSigner(auth.SessionKey(), auth.NTResponse())
			signer.Verify(ctx.msg) // consume sequence 0, this request was unsigned
			ss.signer = signer
		}
	}

	ctx.session = ss
	ctx.resp.Header().SetUID(ss.uid)
	c.setPhase(connActive)

	sr := smb.SessionSetupResponse{}
	if guest {
		sr.Action = actionGuest
	}
	if err := sr.Encode(ctx.resp); err != nil {
		return noChain, err
	}
	return req.AndX, nil
}

// sessionSetupExtended runs the SPNEGO/NTLMSSP exchange: the first leg
// answers the NegTokenInit with a challenge and MORE_PROCESSING_REQUIRED,
// the second consumes the NegTokenResp and completes the logon.
func sessionSetupExtended(s *server, ctx *request, req *smb.SessionSetupRequest) (smb.AndX, error) {
	c := ctx.conn
	c.mu.Lock()
	exchange := c.exchange
	c.mu.Unlock()

	if exchange == nil {
		token := req.SecurityBlob
		if init, err := spnego.DecodeNegTokenInit(token); err == nil {
			token = init.MechToken
		}

		exchange = s.auth.NewExchange()
		cmsg, err := exchange.Challenge(token)
		if err != nil {
			return noChain, smb.Status(smb.STATUS_LOGON_FAILURE).Err()
		}
		blob, err := spnego.EncodeNegTokenResp(spnegoAcceptIncomplete, spnego.NlmpOid, cmsg, nil)
		if err != nil {
			return noChain, err
		}

		ss := ctx.session
		if ss == nil {
			ss, err = s.registerSession(c)
			if err != nil {
				return noChain, err
			}
			ctx.session = ss
		}
		c.mu.Lock()
		c.exchange = exchange
		c.mu.Unlock()

		ctx.resp.Header().SetUID(ss.uid)
		sr := smb.SessionSetupResponse{Extended: true, SecurityBlob: blob}
		if err := sr.Encode(ctx.resp); err != nil {
			return noChain, err
		}
		ctx.resp.Header().SetStatus(smb.STATUS_MORE_PROCESSING_REQUIRED)
		return noChain, nil
	}

	token := req.SecurityBlob
	if resp, err := spnego.DecodeNegTokenResp(token); err == nil {
		token = resp.ResponseToken
	}

	c.mu.Lock()
	c.exchange = nil
	c.mu.Unlock()

	if err := exchange.Authenticate(token); err != nil {
		s.mu.Lock()
		s.stats.pwErrors++
		s.mu.Unlock()
		log.Printf("Logon failure from %s: %v\n", c.clientName, err)
		if ctx.session != nil {
			s.deregisterSession(ctx.session)
			ctx.session = nil
		}
		return noChain, smb.Status(smb.STATUS_LOGON_FAILURE).Err()
	}

	auth := exchange.Session()
	ss := ctx.session
	if ss == nil {
		var err error
		ss, err = s.registerSession(c)
		if err != nil {
			return noChain, err
		}
		ctx.session = ss
	}
	ss.user = auth.User()
	ss.domain = auth.Domain()
	if s.wantSigning(ctx.h) {
		signer := smb.NewSigner(auth.SessionKey(), nil)
		signer.Verify(ctx.msg) // consume sequence 0, this request was unsigned
		ss.signer = signer
	}

	ctx.resp.Header().SetUID(ss.uid)
	c.setPhase(connActive)

	blob, err := spnego.EncodeNegTokenResp(spnegoAcceptCompleted, spnego.NlmpOid, nil, nil)
	if err != nil {
		return noChain, err
	}
	sr := smb.SessionSetupResponse{Extended: true, SecurityBlob: blob}
	if err := sr.Encode(ctx.resp); err != nil {
		return noChain, err
	}
	return req.AndX, nil
}

// wantSigning reports whether the session should sign, from server policy
// and the client's request flags.
func (s *server) wantSigning(h smb.Header) bool {
	return s.requireSigning() || h.IsFlag2Set(smb.FLAGS2_SECURITY_SIGNATURE)
}

func handleLogoff(s *server, ctx *request, words, data []byte) (smb.AndX, error) {
	var req smb.LogoffRequest
	if err := req.Decode(words); err != nil {
		return noChain, err
	}

	s.deregisterSession(ctx.session)
	if err := smb.EncodeLogoffResponse(ctx.resp); err != nil {
		return noChain, err
	}
	return req.AndX, nil
}
