package main

import (
	"errors"
	"io"

	"github.com/vstarodubtsev/cifsd/smb"
	"github.com/vstarodubtsev/cifsd/vfs"
)

// pipeAvailable reports buffered bytes left on a pipe transport, for the
// BUFFER_OVERFLOW indication on short pipe reads.
func pipeAvailable(t interface{}) int {
	if p, ok := t.(interface{ Available() int }); ok {
		return p.Available()
	}
	return 0
}

func handleReadAndX(s *server, ctx *request, words, data []byte) (smb.AndX, error) {
	var req smb.ReadRequest
	if err := req.Decode(words); err != nil {
		return noChain, err
	}

	fp, err := ctx.session.lookupOpen(req.Fid)
	if err != nil {
		return noChain, smb.Status(smb.STATUS_INVALID_HANDLE).Err()
	}
	defer fp.put()

	// Cap the read at the space left in the response buffer and at the
	// client's announced receive buffer.
	limit := smb.LargeBufferSize
	ctx.conn.mu.Lock()
	if mb := int(ctx.conn.maxBuffer); mb > 0 && mb < limit {
		limit = mb
	}
	ctx.conn.mu.Unlock()
	max := limit - ctx.resp.BodyOffset() - 64
	if int(req.MaxCount) < max {
		max = int(req.MaxCount)
	}
	if max < 0 {
		max = 0
	}
	buf := make([]byte, max)

	if fp.pipe != nil {
		n, err := fp.pipe.Read(buf)
		if err != nil && err != io.EOF {
			return noChain, err
		}
		if err := smb.EncodeReadResponse(ctx.resp, buf[:n]); err != nil {
			return noChain, err
		}
		if pipeAvailable(fp.pipe) > 0 {
			ctx.resp.Header().SetStatus(smb.STATUS_BUFFER_OVERFLOW)
			return noChain, nil
		}
		return req.AndX, nil
	}

	if fp.grantedAccess&smb.FILE_READ_DATA == 0 {
		return noChain, smb.Status(smb.STATUS_ACCESS_DENIED).Err()
	}
	if fp.directory {
		return noChain, smb.Status(smb.STATUS_FILE_IS_A_DIRECTORY).Err()
	}

	owner := fp.lockOwner(ctx.h.PID())
	if err := s.locks.CheckRead(fp.mfp.dev, fp.mfp.ino, owner, req.Offset, uint64(len(buf))); err != nil {
		return noChain, smb.Status(smb.STATUS_FILE_LOCK_CONFLICT).Err()
	}

	var n int
	if fp.stream != "" {
		n, err = ctx.tree.share.fs.ReadStream(fp.path, fp.stream, int64(req.Offset), buf)
	} else {
		n, err = fp.file.ReadAt(buf, int64(req.Offset))
	}
	if err != nil && err != io.EOF {
		return noChain, err
	}
	if n == 0 && len(buf) > 0 {
		return noChain, smb.Status(smb.STATUS_END_OF_FILE).Err()
	}

	if err := smb.EncodeReadResponse(ctx.resp, buf[:n]); err != nil {
		return noChain, err
	}
	return req.AndX, nil
}

// writeData lands one write on a disk handle: lock check, level-II break
// fan-out, then the stream xattr or the file itself.
func (s *server) writeData(ctx *request, fp *open, off uint64, data []byte) (int, error) {
	if fp.grantedAccess&(smb.FILE_WRITE_DATA|smb.FILE_APPEND_DATA) == 0 {
		return 0, smb.Status(smb.STATUS_ACCESS_DENIED).Err()
	}
	if fp.directory {
		return 0, smb.Status(smb.STATUS_FILE_IS_A_DIRECTORY).Err()
	}

	owner := fp.lockOwner(ctx.h.PID())
	if err := s.locks.CheckWrite(fp.mfp.dev, fp.mfp.ino, owner, off, uint64(len(data))); err != nil {
		return 0, smb.Status(smb.STATUS_FILE_LOCK_CONFLICT).Err()
	}

	s.breakLevel2(fp.mfp, fp)

	if fp.stream != "" {
		return ctx.tree.share.fs.WriteStream(fp.path, fp.stream, int64(off), data)
	}
	return fp.file.WriteAt(data, int64(off))
}

func handleWriteAndX(s *server, ctx *request, words, data []byte) (smb.AndX, error) {
	var req smb.WriteAndXRequest
	if err := req.Decode(ctx.msg, words); err != nil {
		return noChain, err
	}

	fp, err := ctx.session.lookupOpen(req.Fid)
	if err != nil {
		return noChain, smb.Status(smb.STATUS_INVALID_HANDLE).Err()
	}
	defer fp.put()

	if fp.pipe != nil {
		n, err := fp.pipe.Write(req.Data)
		if err != nil {
			return noChain, err
		}
		if err := smb.EncodeWriteAndXResponse(ctx.resp, n); err != nil {
			return noChain, err
		}
		return req.AndX, nil
	}

	n, err := s.writeData(ctx, fp, req.Offset, req.Data)
	if err != nil {
		return noChain, err
	}
	if req.WriteThrough() && fp.file != nil {
		fp.file.Sync()
	}
	if err := smb.EncodeWriteAndXResponse(ctx.resp, n); err != nil {
		return noChain, err
	}
	return req.AndX, nil
}

// handleWrite is the core WRITE command. A zero-length write truncates the
// file at the offset.
func handleWrite(s *server, ctx *request, words, data []byte) (smb.AndX, error) {
	var req smb.WriteRequest
	if err := req.Decode(words, data); err != nil {
		return noChain, err
	}

	fp, err := ctx.session.lookupOpen(req.Fid)
	if err != nil {
		return noChain, smb.Status(smb.STATUS_INVALID_HANDLE).Err()
	}
	defer fp.put()

	if fp.pipe != nil {
		n, err := fp.pipe.Write(req.Data)
		if err != nil {
			return noChain, err
		}
		return noChain, smb.EncodeWriteResponse(ctx.resp, uint16(n))
	}

	if len(req.Data) == 0 {
		if fp.grantedAccess&(smb.FILE_WRITE_DATA|smb.FILE_APPEND_DATA) == 0 {
			return noChain, smb.Status(smb.STATUS_ACCESS_DENIED).Err()
		}
		s.breakLevel2(fp.mfp, fp)
		if fp.stream != "" {
			err = ctx.tree.share.fs.TruncateStream(fp.path, fp.stream, int64(req.Offset))
		} else {
			err = fp.file.Truncate(int64(req.Offset))
		}
		if err != nil {
			return noChain, err
		}
		return noChain, smb.EncodeWriteResponse(ctx.resp, 0)
	}

	n, err := s.writeData(ctx, fp, uint64(req.Offset), req.Data)
	if err != nil {
		return noChain, err
	}
	return noChain, smb.EncodeWriteResponse(ctx.resp, uint16(n))
}

func handleLockingAndX(s *server, ctx *request, words, data []byte) (smb.AndX, error) {
	var req smb.LockingRequest
	if err := req.Decode(words, data); err != nil {
		return noChain, err
	}

	fp, err := ctx.session.lookupOpen(req.Fid)
	if err != nil {
		return noChain, smb.Status(smb.STATUS_INVALID_HANDLE).Err()
	}
	defer fp.put()

	if req.OplockAck() {
		level := uint8(smb.OPLOCK_NONE)
		if req.OplockLevel > 0 {
			level = smb.OPLOCK_LEVEL_II
		}
		s.ackOplockBreak(fp, level)
		// Break acknowledgements get no response.
		ctx.noReply = true
		return noChain, nil
	}

	if req.LockType&(smb.LOCKING_ANDX_CHANGE_LOCKTYPE|smb.LOCKING_ANDX_CANCEL_LOCK) > 0 {
		return noChain, smb.Status(smb.STATUS_NOT_SUPPORTED).Err()
	}
	if fp.mfp == nil {
		return noChain, smb.Status(smb.STATUS_INVALID_HANDLE).Err()
	}
	dev, ino := fp.mfp.dev, fp.mfp.ino

	for _, r := range req.Unlocks {
		owner := fp.lockOwner(uint32(r.PID))
		if !s.locks.Unlock(dev, ino, owner, r.Offset, r.Length) {
			return noChain, smb.Status(smb.STATUS_RANGE_NOT_LOCKED).Err()
		}
	}

	for i, r := range req.Locks {
		owner := fp.lockOwner(uint32(r.PID))
		err := s.locks.Lock(dev, ino, vfs.ByteLock{
			Owner:  owner,
			Offset: r.Offset,
			Length: r.Length,
			Shared: req.Shared(),
		})
		if err != nil {
			// Roll back the locks taken by this request.
			for _, taken := range req.Locks[:i] {
				s.locks.Unlock(dev, ino, fp.lockOwner(uint32(taken.PID)), taken.Offset, taken.Length)
			}
			if errors.Is(err, vfs.ErrLockConflict) {
				return noChain, smb.Status(smb.STATUS_LOCK_NOT_GRANTED).Err()
			}
			return noChain, err
		}
	}

	if err := smb.EncodeLockingResponse(ctx.resp); err != nil {
		return noChain, err
	}
	return req.AndX, nil
}
