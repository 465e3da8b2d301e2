package main

import (
	"errors"
	"strings"

	"github.com/vstarodubtsev/cifsd/smb"
	"github.com/vstarodubtsev/cifsd/stores"
)

func handleTreeConnect(s *server, ctx *request, words, data []byte) (smb.AndX, error) {
	var req smb.TreeConnectRequest
	if err := req.Decode(ctx.h, words, data); err != nil {
		return noChain, err
	}

	name := smb.ShareName(req.Path)
	if name == "" {
		return noChain, smb.Status(smb.STATUS_BAD_NETWORK_NAME).Err()
	}
	ss := ctx.session

	tc := &treeConnect{}
	tr := smb.TreeConnectResponse{
		OptionalSupport: smb.SMB_SUPPORT_SEARCH_BITS,
	}

	if strings.EqualFold(name, "IPC$") {
		tc.ipc = true
		tc.maxAccess = smb.FILE_READ_RIGHTS | smb.FILE_WRITE_RIGHTS
		tr.Service = smb.ServicePipe
	} else {
		sh, ok := s.findShare(name)
		if !ok {
			return noChain, smb.Status(smb.STATUS_BAD_NETWORK_NAME).Err()
		}
		if !sh.allows(ss.user) {
			return noChain, smb.Status(smb.STATUS_NETWORK_ACCESS_DENIED).Err()
		}
		if err := sh.acquire(); err != nil {
			return noChain, smb.Status(smb.STATUS_NETWORK_ACCESS_DENIED).Err()
		}
		tc.share = sh
		tc.maxAccess = sh.maximalAccess()
		if err := s.applyAccessPolicy(tc, sh.name, ss.user); err != nil {
			sh.release()
			return noChain, err
		}
		tr.Service = smb.ServiceDisk
		tr.NativeFileSystem = smb.NativeFileSystem
	}

	if err := ss.registerTreeConnect(tc); err != nil {
		if tc.share != nil {
			tc.share.release()
		}
		return noChain, err
	}

	tr.MaximalShareAccessRights = tc.maxAccess
	tr.GuestMaximalAccessRights = smb.FILE_READ_RIGHTS

	ctx.tree = tc
	ctx.resp.Header().SetTID(tc.tid)
	if err := tr.Encode(ctx.resp); err != nil {
		return noChain, err
	}
	return req.AndX, nil
}

// applyAccessPolicy narrows the tree's access mask with the per-user
// policy held in the database. Absent policies leave the share config in
// charge.
func (s *server) applyAccessPolicy(tc *treeConnect, shareName, user string) error {
	if s.db == nil {
		return nil
	}
	ar, err := s.db.GetAccessRights(shareName, user)
	if errors.Is(err, stores.ErrNotFound) {
		return nil
	}
	if err != nil {
		s.debugf("access policy lookup for %s on %s: %v", user, shareName, err)
		return nil
	}
	if !ar.ReadAccess {
		return smb.Status(smb.STATUS_NETWORK_ACCESS_DENIED).Err()
	}
	if !ar.WriteAccess {
		tc.maxAccess &^= smb.FILE_WRITE_RIGHTS &^ (smb.READ_CONTROL | smb.SYNCHRONIZE)
	}
	if !ar.DeleteAccess {
		tc.maxAccess &^= smb.DELETE
	}
	return nil
}

func handleTreeDisconnect(s *server, ctx *request, words, data []byte) (smb.AndX, error) {
	s.closeTreeConnect(ctx.session, ctx.tree)
	ctx.tree = nil
	return noChain, smb.EncodeTreeDisconnectResponse(ctx.resp)
}
