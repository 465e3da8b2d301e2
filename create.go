package main

import (
	"os"
	"strings"
	"time"

	"github.com/vstarodubtsev/cifsd/rpc"
	"github.com/vstarodubtsev/cifsd/smb"
	"github.com/vstarodubtsev/cifsd/vfs"
)

const (
	// FileType and DeviceState reported for message-mode pipe opens.
	pipeFileType    = 2
	pipeDeviceState = 0x05ff
)

// createParams is the normalized open request shared by NT_CREATE_ANDX and
// OPEN_ANDX: generic access bits already translated, disposition in NT
// terms.
type createParams struct {
	name        string
	access      uint32
	shareAccess uint32
	disposition uint32
	options     uint32
	attrs       uint32
	wantOplock  bool
	wantBatch   bool
}

// translateAccess folds the generic and maximum-allowed bits of a desired
// access mask into specific file rights.
func translateAccess(access, maxAccess uint32) uint32 {
	if access&smb.GENERIC_ALL > 0 {
		access |= smb.FILE_READ_RIGHTS | smb.FILE_WRITE_RIGHTS | smb.FILE_EXEC_RIGHTS |
			smb.DELETE | smb.FILE_DELETE_CHILD
	}
	if access&smb.GENERIC_READ > 0 {
		access |= smb.FILE_READ_RIGHTS
	}
	if access&smb.GENERIC_WRITE > 0 {
		access |= smb.FILE_WRITE_RIGHTS
	}
	if access&smb.GENERIC_EXECUTE > 0 {
		access |= smb.FILE_EXEC_RIGHTS
	}
	if access&smb.MAXIMUM_ALLOWED > 0 {
		access |= maxAccess
	}
	return access &^ (smb.GENERIC_ALL | smb.GENERIC_READ | smb.GENERIC_WRITE |
		smb.GENERIC_EXECUTE | smb.MAXIMUM_ALLOWED)
}

func handleNTCreate(s *server, ctx *request, words, data []byte) (smb.AndX, error) {
	var req smb.NTCreateRequest
	if err := req.Decode(ctx.h, words, data); err != nil {
		return noChain, err
	}

	if ctx.tree.ipc {
		return createPipe(s, ctx, &req)
	}

	p := createParams{
		name:        req.FileName,
		access:      translateAccess(req.DesiredAccess, ctx.tree.maxAccess),
		shareAccess: req.ShareAccess,
		disposition: req.CreateDisposition,
		options:     req.CreateOptions,
		attrs:       req.FileAttributes,
		wantOplock:  req.WantsOplock(),
		wantBatch:   req.WantsBatchOplock(),
	}

	fp, st, action, oplock, err := s.openDisk(ctx, &p)
	if err != nil {
		return noChain, err
	}

	cr := smb.NTCreateResponse{
		OplockLevel:    oplock,
		Fid:            uint16(fp.fid),
		CreateAction:   action,
		CreationTime:   st.CreationTime,
		LastAccessTime: st.Atime,
		LastWriteTime:  st.Mtime,
		ChangeTime:     st.Ctime,
		FileAttributes: st.DosAttrs,
		AllocationSize: st.AllocSize,
		EndOfFile:      st.Size,
		IsDirectory:    fp.directory,
	}
	if fp.stream != "" {
		size, _ := ctx.tree.share.fs.StreamSize(fp.path, fp.stream)
		cr.EndOfFile = uint64(size)
		cr.AllocationSize = uint64(size)
	}
	if req.Flags&smb.REQUEST_EXTENDED_RESPONSE > 0 {
		cr.Extended = true
		cr.MaximalAccessRights = ctx.tree.maxAccess
	}
	if err := cr.Encode(ctx.resp); err != nil {
		return noChain, err
	}
	return req.AndX, nil
}

// createPipe opens a named pipe on the IPC$ tree, backed by an in-process
// DCE/RPC transport.
func createPipe(s *server, ctx *request, req *smb.NTCreateRequest) (smb.AndX, error) {
	name := strings.TrimPrefix(strings.ReplaceAll(req.FileName, "\\", "/"), "/")
	kind, ok := rpc.KindForName(name)
	if !ok {
		return noChain, smb.Status(smb.STATUS_OBJECT_NAME_NOT_FOUND).Err()
	}

	transport, err := s.pipes.Open(kind, ctx.session.user)
	if err != nil {
		return noChain, err
	}

	fp := newOpen(ctx.session, ctx.tree)
	fp.pipe = transport
	fp.name = name
	fp.grantedAccess = translateAccess(req.DesiredAccess, ctx.tree.maxAccess)
	if err := s.installOpen(ctx.session, fp); err != nil {
		transport.Close()
		return noChain, err
	}

	cr := smb.NTCreateResponse{
		Fid:          uint16(fp.fid),
		CreateAction: smb.FILE_OPENED,
		FileType:     pipeFileType,
		DeviceState:  pipeDeviceState,
	}
	if err := cr.Encode(ctx.resp); err != nil {
		return noChain, err
	}
	return req.AndX, nil
}

// openDisk performs the whole disk open: disposition handling, sharing-mode
// check against other opens of the inode, oplock grant and handle
// installation. It returns the installed handle, a fresh stat, the create
// action and the granted oplock level.
func (s *server) openDisk(ctx *request, p *createParams) (*open, *vfs.Stat, uint32, uint8, error) {
	tc := ctx.tree
	fs := tc.share.fs
	status := func(code uint32) (*open, *vfs.Stat, uint32, uint8, error) {
		return nil, nil, 0, 0, smb.Status(code).Err()
	}

	base, stream := vfs.SplitStream(p.name)
	cleaned, err := vfs.Clean(base)
	if err != nil {
		return status(smb.STATUS_OBJECT_PATH_SYNTAX_BAD)
	}

	deleteOnClose := p.options&smb.FILE_DELETE_ON_CLOSE > 0
	if deleteOnClose && p.access&smb.DELETE == 0 {
		return status(smb.STATUS_INVALID_PARAMETER)
	}
	writeBits := uint32(fileGenericWrite | smb.FILE_WRITE_EA | smb.FILE_WRITE_ATTRIBUTES)
	if p.access&writeBits > 0 && tc.maxAccess&smb.FILE_WRITE_DATA == 0 {
		return status(smb.STATUS_ACCESS_DENIED)
	}
	if p.access&(smb.DELETE|smb.FILE_DELETE_CHILD) > 0 && tc.maxAccess&smb.DELETE == 0 {
		return status(smb.STATUS_ACCESS_DENIED)
	}

	st, statErr := fs.Stat(cleaned)
	exists := statErr == nil

	wantDir := p.options&smb.FILE_DIRECTORY_FILE > 0
	if exists && st.IsDir() && p.options&smb.FILE_NON_DIRECTORY_FILE > 0 {
		return status(smb.STATUS_FILE_IS_A_DIRECTORY)
	}
	if exists && !st.IsDir() && wantDir {
		return status(smb.STATUS_NOT_A_DIRECTORY)
	}
	if stream != "" && (wantDir || (exists && st.IsDir())) {
		return status(smb.STATUS_INVALID_PARAMETER)
	}

	// For stream opens the disposition applies to the stream, with the
	// base file created on demand.
	onDisk := exists
	if stream != "" && exists {
		_, serr := fs.StreamSize(cleaned, stream)
		onDisk = serr == nil
	}

	action := uint32(smb.FILE_OPENED)
	created, truncate := false, false
	switch p.disposition {
	case smb.FILE_OPEN:
		if !onDisk {
			return status(smb.STATUS_OBJECT_NAME_NOT_FOUND)
		}
	case smb.FILE_CREATE:
		if onDisk {
			return status(smb.STATUS_OBJECT_NAME_COLLISION)
		}
		created, action = true, smb.FILE_CREATED
	case smb.FILE_OPEN_IF:
		if !onDisk {
			created, action = true, smb.FILE_CREATED
		}
	case smb.FILE_OVERWRITE:
		if !onDisk {
			return status(smb.STATUS_OBJECT_NAME_NOT_FOUND)
		}
		truncate, action = true, smb.FILE_OVERWRITTEN
	case smb.FILE_OVERWRITE_IF:
		if onDisk {
			truncate, action = true, smb.FILE_OVERWRITTEN
		} else {
			created, action = true, smb.FILE_CREATED
		}
	case smb.FILE_SUPERSEDE:
		if onDisk {
			truncate, action = true, smb.FILE_SUPERSEDED
		} else {
			created, action = true, smb.FILE_CREATED
		}
	default:
		return status(smb.STATUS_INVALID_PARAMETER)
	}
	if (created || truncate || deleteOnClose) && tc.maxAccess&smb.FILE_WRITE_DATA == 0 {
		return status(smb.STATUS_ACCESS_DENIED)
	}
	if exists && st.DosAttrs&vfs.AttrReadonly > 0 {
		if deleteOnClose {
			return status(smb.STATUS_CANNOT_DELETE)
		}
		if truncate || p.access&fileGenericWrite > 0 {
			return status(smb.STATUS_ACCESS_DENIED)
		}
	}

	directory := wantDir || (exists && st.IsDir())

	var file *os.File
	switch {
	case directory:
		if created {
			if err := fs.Mkdir(cleaned, 0o755); err != nil {
				return nil, nil, 0, 0, err
			}
		}
		file, err = fs.Open(cleaned, os.O_RDONLY, 0)
		if err != nil {
			return nil, nil, 0, 0, err
		}
	case stream != "":
		if !exists {
			f, err := fs.Open(cleaned, os.O_RDWR|os.O_CREATE, 0o644)
			if err != nil {
				return nil, nil, 0, 0, err
			}
			f.Close()
			fs.SetCreationTime(cleaned, time.Now())
		}
		if created {
			if _, err := fs.WriteStream(cleaned, stream, 0, nil); err != nil {
				return nil, nil, 0, 0, err
			}
		}
	default:
		flags := os.O_RDONLY
		if p.access&fileGenericWrite > 0 {
			flags = os.O_RDWR
		}
		if created {
			flags |= os.O_CREATE
			if p.disposition == smb.FILE_CREATE {
				flags |= os.O_EXCL
			}
		}
		file, err = fs.Open(cleaned, flags, 0o644)
		if err != nil {
			return nil, nil, 0, 0, err
		}
		if created {
			fs.SetCreationTime(cleaned, time.Now())
			if attrs := p.attrs & 0x37; attrs != 0 && attrs != smb.ATTR_NORMAL {
				fs.SetDosAttrs(cleaned, attrs)
			}
		}
	}
	closeFile := func() {
		if file != nil {
			file.Close()
		}
	}

	st, err = fs.Stat(cleaned)
	if err != nil {
		closeFile()
		return nil, nil, 0, 0, err
	}

	fp := newOpen(ctx.session, tc)
	fp.path = cleaned
	fp.stream = stream
	fp.file = file
	fp.pid = ctx.h.PID()
	fp.grantedAccess = p.access
	fp.shareAccess = p.shareAccess
	fp.createOptions = p.options
	fp.attributes = st.DosAttrs
	fp.directory = directory
	fp.deleteOnClose = deleteOnClose

	m := s.inodes.acquire(st.Dev, st.Ino, cleaned)
	fp.mfp = m

	m.mu.Lock()
	if m.deletePending {
		m.mu.Unlock()
		s.inodes.release(m)
		closeFile()
		return status(smb.STATUS_DELETE_PENDING)
	}
	if !m.checkSharing(p.access, p.shareAccess) {
		m.mu.Unlock()
		s.inodes.release(m)
		closeFile()
		return status(smb.STATUS_SHARING_VIOLATION)
	}
	m.addOpen(fp)
	m.mu.Unlock()

	oplock := uint8(smb.OPLOCK_NONE)
	if !directory && stream == "" {
		oplock = s.grantOplock(fp, p.wantOplock, p.wantBatch)
	}

	if truncate {
		s.breakLevel2(m, fp)
		if stream != "" {
			err = fs.TruncateStream(cleaned, stream, 0)
		} else {
			err = file.Truncate(0)
			if err == nil && p.disposition == smb.FILE_SUPERSEDE {
				fs.RemoveAllStreams(cleaned)
			}
		}
		if err != nil {
			s.releaseOplock(fp)
			m.removeOpen(fp)
			s.inodes.release(m)
			closeFile()
			return nil, nil, 0, 0, err
		}
	}

	if err := s.installOpen(ctx.session, fp); err != nil {
		s.releaseOplock(fp)
		m.removeOpen(fp)
		s.inodes.release(m)
		closeFile()
		return nil, nil, 0, 0, err
	}

	if truncate {
		st, _ = fs.Stat(cleaned)
	}
	return fp, st, action, oplock, nil
}

// openFuncToDisposition maps the OpenAndX OpenFunction word to an NT create
// disposition.
func openFuncToDisposition(of uint16) uint32 {
	createIf := of&smb.OPENX_FILE_CREATE_IF_ABSENT > 0
	switch of & 0x0003 {
	case smb.OPENX_FILE_EXISTS_OPEN:
		if createIf {
			return smb.FILE_OPEN_IF
		}
		return smb.FILE_OPEN
	case smb.OPENX_FILE_EXISTS_TRUNCATE:
		if createIf {
			return smb.FILE_OVERWRITE_IF
		}
		return smb.FILE_OVERWRITE
	default:
		if createIf {
			return smb.FILE_CREATE
		}
		return smb.FILE_OPEN
	}
}

func handleOpenAndX(s *server, ctx *request, words, data []byte) (smb.AndX, error) {
	var req smb.OpenRequest
	if err := req.Decode(ctx.h, words, data); err != nil {
		return noChain, err
	}
	if ctx.tree.ipc {
		return noChain, smb.Status(smb.STATUS_INVALID_DEVICE_REQUEST).Err()
	}

	var access uint32
	switch req.AccessMode() {
	case smb.OPENX_MODE_WRITE:
		access = smb.FILE_WRITE_RIGHTS
	case smb.OPENX_MODE_RDWR:
		access = smb.FILE_READ_RIGHTS | smb.FILE_WRITE_RIGHTS
	case smb.OPENX_MODE_EXEC:
		access = smb.FILE_READ_RIGHTS | smb.FILE_EXEC_RIGHTS
	default:
		access = smb.FILE_READ_RIGHTS
	}

	var shareAccess uint32
	switch req.SharingMode() {
	case smb.OPENX_SHARE_DENY_ALL:
		shareAccess = smb.FILE_NO_SHARE
	case smb.OPENX_SHARE_DENY_WRITE:
		shareAccess = smb.FILE_SHARE_READ
	case smb.OPENX_SHARE_DENY_READ:
		shareAccess = smb.FILE_SHARE_WRITE
	default:
		shareAccess = smb.FILE_SHARE_ALL
	}

	p := createParams{
		name:        req.FileName,
		access:      access,
		shareAccess: shareAccess,
		disposition: openFuncToDisposition(req.OpenFunction),
		attrs:       uint32(req.FileAttributes),
	}

	fp, st, action, _, err := s.openDisk(ctx, &p)
	if err != nil {
		return noChain, err
	}

	var openAction uint16
	switch action {
	case smb.FILE_CREATED:
		openAction = 2
	case smb.FILE_OVERWRITTEN, smb.FILE_SUPERSEDED:
		openAction = 3
	default:
		openAction = 1
	}

	or := smb.OpenResponse{
		Fid:            uint16(fp.fid),
		FileAttributes: uint16(st.DosAttrs),
		LastWriteTime:  st.Mtime,
		DataSize:       uint32(st.Size),
		GrantedAccess:  req.Mode,
		Action:         openAction,
	}
	if err := or.Encode(ctx.resp); err != nil {
		return noChain, err
	}
	return req.AndX, nil
}

func handleClose(s *server, ctx *request, words, data []byte) (smb.AndX, error) {
	var req smb.CloseRequest
	if err := req.Decode(words); err != nil {
		return noChain, err
	}

	fp, err := ctx.session.lookupOpen(req.Fid)
	if err != nil {
		return noChain, smb.Status(smb.STATUS_INVALID_HANDLE).Err()
	}
	fp.put()

	if req.LastWriteTime != 0 && req.LastWriteTime != 0xffffffff && fp.file != nil && !fp.directory {
		mtime := time.Unix(int64(req.LastWriteTime), 0)
		ctx.tree.share.fs.SetTimes(fp.path, time.Time{}, mtime, time.Time{})
	}

	if err := s.closeOpen(ctx.session, fp); err != nil {
		return noChain, err
	}
	return noChain, ctx.resp.PutBody(nil, nil)
}

func handleFlush(s *server, ctx *request, words, data []byte) (smb.AndX, error) {
	var req smb.FlushRequest
	if err := req.Decode(words); err != nil {
		return noChain, err
	}

	if req.Fid == 0xffff {
		// Flush everything open on the session.
		ctx.session.fids.ForEach(func(id uint32, fp *open) {
			if fp.file != nil {
				fp.file.Sync()
			}
		})
		return noChain, ctx.resp.PutBody(nil, nil)
	}

	fp, err := ctx.session.lookupOpen(req.Fid)
	if err != nil {
		return noChain, smb.Status(smb.STATUS_INVALID_HANDLE).Err()
	}
	defer fp.put()

	if fp.file != nil {
		if err := fp.file.Sync(); err != nil {
			return noChain, err
		}
	}
	return noChain, ctx.resp.PutBody(nil, nil)
}
