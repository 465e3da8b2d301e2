package main

import (
	"encoding/binary"
	"path"
	"strings"
	"time"

	"github.com/vstarodubtsev/cifsd/smb"
	"github.com/vstarodubtsev/cifsd/vfs"
)

// diskFS resolves the share filesystem of the request's tree; IPC$ trees
// have none.
func diskFS(ctx *request) (*vfs.FS, error) {
	if ctx.tree.ipc || ctx.tree.share == nil {
		return nil, smb.Status(smb.STATUS_INVALID_DEVICE_REQUEST).Err()
	}
	return ctx.tree.share.fs, nil
}

// requireWritable rejects mutating path operations when the tree connect
// carries no write right, either because the share is read-only or because
// a policy stripped it.
func requireWritable(ctx *request) error {
	if ctx.tree.maxAccess&smb.FILE_WRITE_DATA == 0 {
		return smb.Status(smb.STATUS_ACCESS_DENIED).Err()
	}
	return nil
}

// requireDelete guards path deletions the same way.
func requireDelete(ctx *request) error {
	if ctx.tree.maxAccess&smb.DELETE == 0 {
		return smb.Status(smb.STATUS_ACCESS_DENIED).Err()
	}
	return nil
}

// openConflict reports whether the path is itself open or, for
// directories, has an open descendant.
func (s *server) openConflict(fs *vfs.FS, name string) bool {
	st, err := fs.Stat(name)
	if err != nil {
		return false
	}
	if _, open := s.inodes.lookup(st.Dev, st.Ino); open {
		return true
	}
	if st.IsDir() {
		cleaned, err := vfs.Clean(name)
		if err != nil {
			return false
		}
		return s.inodes.hasOpenDescendant(cleaned)
	}
	return false
}

func handleCreateDirectory(s *server, ctx *request, words, data []byte) (smb.AndX, error) {
	fs, err := diskFS(ctx)
	if err != nil {
		return noChain, err
	}
	if err := requireWritable(ctx); err != nil {
		return noChain, err
	}
	var req smb.PathRequest
	if err := req.Decode(ctx.h, words, data); err != nil {
		return noChain, err
	}
	if err := fs.Mkdir(req.Path, 0o755); err != nil {
		return noChain, err
	}
	return noChain, ctx.resp.PutBody(nil, nil)
}

func handleDeleteDirectory(s *server, ctx *request, words, data []byte) (smb.AndX, error) {
	fs, err := diskFS(ctx)
	if err != nil {
		return noChain, err
	}
	if err := requireDelete(ctx); err != nil {
		return noChain, err
	}
	var req smb.PathRequest
	if err := req.Decode(ctx.h, words, data); err != nil {
		return noChain, err
	}
	if s.openConflict(fs, req.Path) {
		return noChain, smb.Status(smb.STATUS_SHARING_VIOLATION).Err()
	}
	if err := fs.Rmdir(req.Path); err != nil {
		return noChain, err
	}
	return noChain, ctx.resp.PutBody(nil, nil)
}

func handleCheckDirectory(s *server, ctx *request, words, data []byte) (smb.AndX, error) {
	fs, err := diskFS(ctx)
	if err != nil {
		return noChain, err
	}
	var req smb.PathRequest
	if err := req.Decode(ctx.h, words, data); err != nil {
		return noChain, err
	}
	st, err := fs.Stat(req.Path)
	if err != nil {
		return noChain, err
	}
	if !st.IsDir() {
		return noChain, smb.Status(smb.STATUS_NOT_A_DIRECTORY).Err()
	}
	return noChain, ctx.resp.PutBody(nil, nil)
}

// hasWildcards reports whether a name component carries DOS search
// metacharacters.
func hasWildcards(name string) bool {
	return strings.ContainsAny(name, "*?<>\"")
}

func (s *server) deleteOne(fs *vfs.FS, name string, attrs uint32) error {
	if attrs&vfs.AttrReadonly > 0 {
		return smb.Status(smb.STATUS_CANNOT_DELETE).Err()
	}
	if s.openConflict(fs, name) {
		return smb.Status(smb.STATUS_SHARING_VIOLATION).Err()
	}
	return fs.Unlink(name)
}

// handleDelete removes files by path. The final component may carry
// wildcards, in which case every matching non-directory goes.
func handleDelete(s *server, ctx *request, words, data []byte) (smb.AndX, error) {
	fs, err := diskFS(ctx)
	if err != nil {
		return noChain, err
	}
	if err := requireDelete(ctx); err != nil {
		return noChain, err
	}
	var req smb.DeleteRequest
	if err := req.Decode(ctx.h, words, data); err != nil {
		return noChain, err
	}

	cleaned, err := vfs.Clean(req.Path)
	if err != nil {
		return noChain, err
	}
	dir, base := path.Split(cleaned)
	if dir == "" {
		dir = "."
	}

	if !hasWildcards(base) {
		st, err := fs.Stat(cleaned)
		if err != nil {
			return noChain, err
		}
		if st.IsDir() {
			return noChain, smb.Status(smb.STATUS_FILE_IS_A_DIRECTORY).Err()
		}
		if err := s.deleteOne(fs, cleaned, st.DosAttrs); err != nil {
			return noChain, err
		}
		return noChain, ctx.resp.PutBody(nil, nil)
	}

	scanner, err := fs.OpenDir(dir)
	if err != nil {
		return noChain, err
	}
	defer scanner.Close()

	deleted := 0
	for {
		st, err := scanner.Next()
		if err != nil {
			break
		}
		if st.IsDir() || !vfs.MatchPattern(st.Name, base) {
			continue
		}
		if err := s.deleteOne(fs, path.Join(dir, st.Name), st.DosAttrs); err != nil {
			return noChain, err
		}
		deleted++
	}
	if deleted == 0 {
		return noChain, smb.Status(smb.STATUS_NO_SUCH_FILE).Err()
	}
	return noChain, ctx.resp.PutBody(nil, nil)
}

// renamePath moves oldName to newName, refusing to move anything that is
// open or holds open descendants.
func (s *server) renamePath(fs *vfs.FS, oldName, newName string) error {
	if s.openConflict(fs, oldName) {
		return smb.Status(smb.STATUS_ACCESS_DENIED).Err()
	}
	if _, err := fs.Stat(newName); err == nil {
		return smb.Status(smb.STATUS_OBJECT_NAME_COLLISION).Err()
	}
	return fs.Rename(oldName, newName)
}

func handleRename(s *server, ctx *request, words, data []byte) (smb.AndX, error) {
	fs, err := diskFS(ctx)
	if err != nil {
		return noChain, err
	}
	if err := requireWritable(ctx); err != nil {
		return noChain, err
	}
	var req smb.RenameRequest
	if err := req.Decode(ctx.h, words, data); err != nil {
		return noChain, err
	}
	if err := s.renamePath(fs, req.OldPath, req.NewPath); err != nil {
		return noChain, err
	}
	return noChain, ctx.resp.PutBody(nil, nil)
}

// handleNTRename serves NT_RENAME: hard-link creation at the link
// information level, a plain rename otherwise.
func handleNTRename(s *server, ctx *request, words, data []byte) (smb.AndX, error) {
	fs, err := diskFS(ctx)
	if err != nil {
		return noChain, err
	}
	if err := requireWritable(ctx); err != nil {
		return noChain, err
	}
	var req smb.NTRenameRequest
	if err := req.Decode(ctx.h, words, data); err != nil {
		return noChain, err
	}

	switch req.InformationLevel {
	case smb.SMB_NT_RENAME_SET_LINK_INFO:
		if _, err := fs.Stat(req.NewPath); err == nil {
			return noChain, smb.Status(smb.STATUS_OBJECT_NAME_COLLISION).Err()
		}
		if err := fs.Link(req.OldPath, req.NewPath); err != nil {
			return noChain, err
		}
	case 0x0104: // move
		if err := s.renamePath(fs, req.OldPath, req.NewPath); err != nil {
			return noChain, err
		}
	default:
		return noChain, smb.Status(smb.STATUS_INVALID_PARAMETER).Err()
	}
	return noChain, ctx.resp.PutBody(nil, nil)
}

func handleQueryInformation(s *server, ctx *request, words, data []byte) (smb.AndX, error) {
	fs, err := diskFS(ctx)
	if err != nil {
		return noChain, err
	}
	var req smb.PathRequest
	if err := req.Decode(ctx.h, words, data); err != nil {
		return noChain, err
	}
	st, err := fs.Stat(req.Path)
	if err != nil {
		return noChain, err
	}
	qr := smb.QueryInformationResponse{
		FileAttributes: uint16(st.DosAttrs),
		LastWriteTime:  uint32(st.Mtime.Unix()),
		FileSize:       uint32(st.Size),
	}
	return noChain, qr.Encode(ctx.resp)
}

func handleSetInformation(s *server, ctx *request, words, data []byte) (smb.AndX, error) {
	fs, err := diskFS(ctx)
	if err != nil {
		return noChain, err
	}
	if err := requireWritable(ctx); err != nil {
		return noChain, err
	}
	var req smb.SetInformationRequest
	if err := req.Decode(ctx.h, words, data); err != nil {
		return noChain, err
	}

	st, err := fs.Stat(req.Path)
	if err != nil {
		return noChain, err
	}
	attrs := uint32(req.FileAttributes) & 0x37
	if attrs != st.DosAttrs&0x37 {
		if st.IsDir() {
			attrs |= vfs.AttrDir
		}
		if err := fs.SetDosAttrs(req.Path, attrs); err != nil {
			return noChain, err
		}
	}
	if req.LastWriteTime != 0 {
		mtime := time.Unix(int64(req.LastWriteTime), 0)
		if err := fs.SetTimes(req.Path, time.Time{}, mtime, time.Time{}); err != nil {
			return noChain, err
		}
	}
	return noChain, ctx.resp.PutBody(nil, nil)
}

func handleQueryInformation2(s *server, ctx *request, words, data []byte) (smb.AndX, error) {
	var req smb.QueryInformation2Request
	if err := req.Decode(words); err != nil {
		return noChain, err
	}
	fs, err := diskFS(ctx)
	if err != nil {
		return noChain, err
	}
	fp, err := ctx.session.lookupOpen(req.Fid)
	if err != nil {
		return noChain, smb.Status(smb.STATUS_INVALID_HANDLE).Err()
	}
	defer fp.put()

	st, err := fs.Stat(fp.path)
	if err != nil {
		return noChain, err
	}
	qr := smb.QueryInformation2Response{
		CreationTime: st.CreationTime,
		AccessTime:   st.Atime,
		WriteTime:    st.Mtime,
		FileSize:     uint32(st.Size),
		AllocSize:    uint32(st.AllocSize),
		Attributes:   uint16(st.DosAttrs),
	}
	return noChain, qr.Encode(ctx.resp)
}

func handleSetInformation2(s *server, ctx *request, words, data []byte) (smb.AndX, error) {
	var req smb.SetInformation2Request
	if err := req.Decode(words); err != nil {
		return noChain, err
	}
	fs, err := diskFS(ctx)
	if err != nil {
		return noChain, err
	}
	if err := requireWritable(ctx); err != nil {
		return noChain, err
	}
	fp, err := ctx.session.lookupOpen(req.Fid)
	if err != nil {
		return noChain, smb.Status(smb.STATUS_INVALID_HANDLE).Err()
	}
	defer fp.put()

	if err := fs.SetTimes(fp.path, req.AccessTime, req.WriteTime, req.CreationTime); err != nil {
		return noChain, err
	}
	return noChain, ctx.resp.PutBody(nil, nil)
}

func handleQueryInformationDisk(s *server, ctx *request, words, data []byte) (smb.AndX, error) {
	fs, err := diskFS(ctx)
	if err != nil {
		return noChain, err
	}
	st, err := fs.StatFS()
	if err != nil {
		return noChain, err
	}

	// The legacy response counts in 16-bit units; scale the allocation
	// unit up until the totals fit.
	blockSize := uint64(st.Bsize)
	perUnit := uint64(1)
	total := uint64(st.Blocks)
	free := uint64(st.Bavail)
	for total > 0xffff && perUnit < 0x8000 {
		perUnit *= 2
		total /= 2
		free /= 2
	}
	if total > 0xffff {
		total = 0xffff
	}
	if free > 0xffff {
		free = 0xffff
	}

	w := make([]byte, 10)
	binary.LittleEndian.PutUint16(w[0:2], uint16(total))
	binary.LittleEndian.PutUint16(w[2:4], uint16(perUnit))
	binary.LittleEndian.PutUint16(w[4:6], uint16(blockSize))
	binary.LittleEndian.PutUint16(w[6:8], uint16(free))
	return noChain, ctx.resp.PutBody(w, nil)
}

func handleFindClose2(s *server, ctx *request, words, data []byte) (smb.AndX, error) {
	var req smb.FindClose2Request
	if err := req.Decode(words); err != nil {
		return noChain, err
	}
	if !ctx.session.closeSearch(req.SearchID) {
		return noChain, smb.Status(smb.STATUS_INVALID_HANDLE).Err()
	}
	return noChain, ctx.resp.PutBody(nil, nil)
}

func handleEcho(s *server, ctx *request, words, data []byte) (smb.AndX, error) {
	var req smb.EchoRequest
	if err := req.Decode(words, data); err != nil {
		return noChain, err
	}
	if req.EchoCount == 0 {
		ctx.noReply = true
		return noChain, nil
	}

	count := req.EchoCount
	if ctx.session != nil && ctx.session.signer != nil {
		// Extra replies would desynchronize the signing sequence.
		count = 1
	}
	for seq := uint16(1); seq < count; seq++ {
		extra := smb.NewResponse(ctx.h, false)
		if err := smb.EncodeEchoResponse(extra, seq, req.Data); err != nil {
			return noChain, err
		}
		ctx.conn.send(extra.Bytes())
	}
	return noChain, smb.EncodeEchoResponse(ctx.resp, count, req.Data)
}

// handleProcessExit closes every handle opened by the header PID on this
// session.
func handleProcessExit(s *server, ctx *request, words, data []byte) (smb.AndX, error) {
	pid := ctx.h.PID()
	var opens []*open
	ctx.session.fids.ForEach(func(id uint32, fp *open) {
		if fp.pid == pid {
			opens = append(opens, fp)
		}
	})
	for _, fp := range opens {
		s.closeOpen(ctx.session, fp)
	}
	return noChain, ctx.resp.PutBody(nil, nil)
}
