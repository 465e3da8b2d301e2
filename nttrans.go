package main

import (
	"encoding/binary"
	"os"

	"github.com/vstarodubtsev/cifsd/acl"
	"github.com/vstarodubtsev/cifsd/smb"
	"github.com/vstarodubtsev/cifsd/vfs"
)

// handleNTTransact serves the NT_TRANSACT functions. Only the security
// descriptor pair is backed by real state; the rest are refused.
func handleNTTransact(s *server, ctx *request, words, data []byte) (smb.AndX, error) {
	var req smb.NTTransRequest
	if err := req.Decode(ctx.msg, words); err != nil {
		return noChain, err
	}

	switch req.Function {
	case smb.NT_TRANSACT_QUERY_SECURITY_DESC:
		return noChain, s.ntQuerySecurity(ctx, &req)
	case smb.NT_TRANSACT_SET_SECURITY_DESC:
		return noChain, s.ntSetSecurity(ctx, &req)
	default:
		return noChain, smb.Status(smb.STATUS_NOT_SUPPORTED).Err()
	}
}

// securityOpen resolves the fid of a security transaction to a disk open.
func securityOpen(ctx *request, params []byte) (*open, *smb.SecurityParams, error) {
	var sp smb.SecurityParams
	if err := sp.Decode(params); err != nil {
		return nil, nil, err
	}
	fp, err := ctx.session.lookupOpen(sp.Fid)
	if err != nil {
		return nil, nil, smb.Status(smb.STATUS_INVALID_HANDLE).Err()
	}
	if fp.pipe != nil || fp.mfp == nil {
		fp.put()
		return nil, nil, smb.Status(smb.STATUS_INVALID_DEVICE_REQUEST).Err()
	}
	return fp, &sp, nil
}

func (s *server) ntQuerySecurity(ctx *request, req *smb.NTTransRequest) error {
	fp, sp, err := securityOpen(ctx, req.Parameters)
	if err != nil {
		return err
	}
	defer fp.put()

	st, err := fp.tree.share.fs.Stat(fp.path)
	if err != nil {
		return err
	}
	sd, err := s.encodeSecurity(st, sp.SecurityInformation)
	if err != nil {
		return err
	}

	lengthParam := make([]byte, 4)
	binary.LittleEndian.PutUint32(lengthParam, uint32(len(sd)))

	tr := smb.NTTransResponse{Parameters: lengthParam}
	if uint32(len(sd)) > req.MaxDataCount {
		// The client retries with the advertised length.
		if err := tr.Encode(ctx.resp); err != nil {
			return err
		}
		ctx.resp.Header().SetStatus(smb.STATUS_BUFFER_TOO_SMALL)
		return nil
	}
	tr.Data = sd
	return tr.Encode(ctx.resp)
}

// encodeSecurity derives a self-relative security descriptor from the
// POSIX identity of a stat: owner and group map through the id resolver
// and the DACL reflects the permission bits.
func (s *server) encodeSecurity(st *vfs.Stat, secInfo uint32) ([]byte, error) {
	owner, err := s.ids.SIDFromID(st.UID, acl.SidOwner)
	if err != nil {
		owner = acl.UnixUserSID(st.UID)
	}
	group, err := s.ids.SIDFromID(st.GID, acl.SidGroup)
	if err != nil {
		group = acl.UnixGroupSID(st.GID)
	}
	var dacl *acl.DACL
	if secInfo&acl.DaclSecInfo > 0 {
		dacl = acl.ChmodDACL(&owner, &group, uint32(st.Mode.Perm()))
	}
	return acl.BuildSecurityDescriptor(&owner, &group, dacl, secInfo)
}

func (s *server) ntSetSecurity(ctx *request, req *smb.NTTransRequest) error {
	fp, sp, err := securityOpen(ctx, req.Parameters)
	if err != nil {
		return err
	}
	defer fp.put()

	if fp.grantedAccess&(smb.WRITE_DAC|smb.WRITE_OWNER) == 0 {
		return smb.Status(smb.STATUS_ACCESS_DENIED).Err()
	}
	sd, err := acl.ParseSecurityDescriptor(req.Data)
	if err != nil {
		return smb.Status(smb.STATUS_INVALID_PARAMETER).Err()
	}
	fs := fp.tree.share.fs
	secInfo := sp.SecurityInformation

	uid, gid := -1, -1
	if secInfo&acl.OwnerSecInfo > 0 && sd.Owner != nil {
		id, err := s.ids.IDFromSID(sd.Owner, acl.SidOwner)
		if err != nil {
			return smb.Status(smb.STATUS_INVALID_OWNER).Err()
		}
		uid = int(id)
	}
	if secInfo&acl.GroupSecInfo > 0 && sd.Group != nil {
		id, err := s.ids.IDFromSID(sd.Group, acl.SidGroup)
		if err != nil {
			return smb.Status(smb.STATUS_INVALID_OWNER).Err()
		}
		gid = int(id)
	}
	if uid != -1 || gid != -1 {
		if err := fs.Chown(fp.path, uid, gid); err != nil {
			return err
		}
	}

	if secInfo&acl.DaclSecInfo > 0 && sd.DACL != nil {
		st, err := fs.Stat(fp.path)
		if err != nil {
			return err
		}
		owner, oerr := s.ids.SIDFromID(st.UID, acl.SidOwner)
		if oerr != nil {
			owner = acl.UnixUserSID(st.UID)
		}
		group, gerr := s.ids.SIDFromID(st.GID, acl.SidGroup)
		if gerr != nil {
			group = acl.UnixGroupSID(st.GID)
		}
		mode := sd.DACL.Mode(&owner, &group)
		if err := fs.Chmod(fp.path, os.FileMode(mode)); err != nil {
			return err
		}
	}

	tr := smb.NTTransResponse{}
	return tr.Encode(ctx.resp)
}
