package main

import (
	"errors"
	"io"
	"os"
	"path"
	"time"

	"github.com/vstarodubtsev/cifsd/smb"
	"github.com/vstarodubtsev/cifsd/utils"
	"github.com/vstarodubtsev/cifsd/vfs"
)

// eaErrorOffset is the fixed two-byte parameter block of the query and
// set info responses.
var eaErrorOffset = make([]byte, 2)

func handleTransaction2(s *server, ctx *request, words, data []byte) (smb.AndX, error) {
	var treq smb.TransRequest
	if err := treq.Decode(ctx.h, ctx.msg, words, data, false); err != nil {
		return noChain, err
	}
	sub, err := treq.SubCommand()
	if err != nil {
		return noChain, err
	}

	switch sub {
	case smb.TRANS2_FIND_FIRST:
		err = trans2FindFirst(s, ctx, &treq)
	case smb.TRANS2_FIND_NEXT:
		err = trans2FindNext(s, ctx, &treq)
	case smb.TRANS2_QUERY_PATH_INFORMATION:
		err = trans2QueryPathInfo(s, ctx, &treq)
	case smb.TRANS2_QUERY_FILE_INFORMATION:
		err = trans2QueryFileInfo(s, ctx, &treq)
	case smb.TRANS2_SET_PATH_INFORMATION:
		err = trans2SetPathInfo(s, ctx, &treq)
	case smb.TRANS2_SET_FILE_INFORMATION:
		err = trans2SetFileInfo(s, ctx, &treq)
	case smb.TRANS2_QUERY_FS_INFORMATION:
		err = trans2QueryFsInfo(s, ctx, &treq)
	case smb.TRANS2_SET_FS_INFORMATION:
		err = smb.Status(smb.STATUS_NOT_SUPPORTED).Err()
	case smb.TRANS2_CREATE_DIRECTORY:
		err = trans2CreateDirectory(s, ctx, &treq)
	case smb.TRANS2_GET_DFS_REFERRAL:
		err = smb.Status(smb.STATUS_NO_SUCH_DEVICE).Err()
	default:
		err = smb.Status(smb.STATUS_NOT_SUPPORTED).Err()
	}
	return noChain, err
}

func fileInfoFromStat(st *vfs.Stat, name string, deletePending bool) *smb.FileInfo {
	return &smb.FileInfo{
		Name:           name,
		CreationTime:   st.CreationTime,
		LastAccessTime: st.Atime,
		LastWriteTime:  st.Mtime,
		ChangeTime:     st.Ctime,
		EndOfFile:      st.Size,
		AllocationSize: st.AllocSize,
		FileAttributes: st.DosAttrs,
		NumberOfLinks:  st.Nlink,
		FileID:         st.Ino,
		DeletePending:  deletePending,
		Directory:      st.IsDir(),
	}
}

// streamInfoFor builds the FILE_STREAM_INFO chain: the unnamed data
// stream first, then every alternate stream with its xattr-backed size.
func streamInfoFor(fs *vfs.FS, name string, st *vfs.Stat) ([]smb.StreamInfo, error) {
	var out []smb.StreamInfo
	if !st.IsDir() {
		out = append(out, smb.StreamInfo{
			Name:           "::$DATA",
			Size:           st.Size,
			AllocationSize: st.AllocSize,
		})
	}
	names, err := fs.ListStreams(name)
	if err != nil {
		return nil, err
	}
	for _, sn := range names {
		size, err := fs.StreamSize(name, sn)
		if err != nil {
			continue
		}
		out = append(out, smb.StreamInfo{
			Name:           ":" + sn + ":$DATA",
			Size:           uint64(size),
			AllocationSize: uint64(size),
		})
	}
	return out, nil
}

// queryInfoData marshals one query information level for the given file.
// name is the full share-relative path.
func queryInfoData(ctx *request, fs *vfs.FS, level uint16, name string, st *vfs.Stat, deletePending bool) ([]byte, error) {
	fi := fileInfoFromStat(st, path.Base(name), deletePending)
	unicode := ctx.h.IsUnicode()

	switch level {
	case smb.SMB_INFO_STANDARD:
		return fi.EncodeInfoStandard(), nil
	case smb.SMB_QUERY_FILE_BASIC_INFO:
		return fi.EncodeBasicInfo(), nil
	case smb.SMB_QUERY_FILE_STANDARD_INFO:
		return fi.EncodeStandardInfo(), nil
	case smb.SMB_QUERY_FILE_EA_INFO:
		return fi.EncodeEaInfo(), nil
	case smb.SMB_QUERY_FILE_NAME_INFO:
		return fi.EncodeNameInfo(unicode), nil
	case smb.SMB_QUERY_ALT_NAME_INFO:
		if alt := shortName(fi.Name); alt != "" {
			fi.Name = alt
		}
		return fi.EncodeNameInfo(unicode), nil
	case smb.SMB_QUERY_FILE_ALL_INFO:
		return fi.EncodeAllInfo(unicode), nil
	case smb.SMB_QUERY_FILE_INTERNAL_INFO:
		return fi.EncodeInternalInfo(), nil
	case smb.SMB_QUERY_FILE_STREAM_INFO:
		streams, err := streamInfoFor(fs, name, st)
		if err != nil {
			return nil, err
		}
		return smb.EncodeStreamInfo(streams, unicode), nil
	case smb.SMB_QUERY_FILE_UNIX_BASIC:
		return unixBasicFromStat(st).Encode(), nil
	case smb.SMB_QUERY_FILE_UNIX_LINK:
		target, err := fs.Readlink(name)
		if err != nil {
			return nil, err
		}
		return smb.EncodeUnixLink(target, unicode), nil
	default:
		return nil, smb.Status(smb.STATUS_INVALID_LEVEL).Err()
	}
}

func unixBasicFromStat(st *vfs.Stat) *smb.UnixBasicInfo {
	typ := uint32(smb.UNIX_TYPE_FILE)
	switch {
	case st.Mode&os.ModeSymlink != 0:
		typ = smb.UNIX_TYPE_SYMLINK
	case st.IsDir():
		typ = smb.UNIX_TYPE_DIR
	}
	return &smb.UnixBasicInfo{
		EndOfFile:    st.Size,
		AllocSize:    st.AllocSize,
		StatusChange: st.Ctime,
		LastAccess:   st.Atime,
		LastModify:   st.Mtime,
		UID:          uint64(st.UID),
		GID:          uint64(st.GID),
		Type:         typ,
		UniqueID:     st.Ino,
		Permissions:  uint64(st.Mode.Perm()),
		Nlinks:       uint64(st.Nlink),
	}
}

func trans2QueryPathInfo(s *server, ctx *request, treq *smb.TransRequest) error {
	fs, err := diskFS(ctx)
	if err != nil {
		return err
	}
	var p smb.QueryPathInfoParams
	if err := p.Decode(ctx.h, treq.Parameters); err != nil {
		return err
	}

	name, stream := vfs.SplitStream(p.Path)
	st, err := fs.Stat(name)
	if err != nil {
		return err
	}
	if stream != "" {
		size, err := fs.StreamSize(name, stream)
		if err != nil {
			return err
		}
		st.Size = uint64(size)
		st.AllocSize = uint64(size)
	}

	info, err := queryInfoData(ctx, fs, p.InformationLevel, name, st, false)
	if err != nil {
		return err
	}
	tr := smb.TransResponse{Parameters: eaErrorOffset, Data: info}
	return tr.Encode(ctx.resp)
}

func trans2QueryFileInfo(s *server, ctx *request, treq *smb.TransRequest) error {
	fs, err := diskFS(ctx)
	if err != nil {
		return err
	}
	var p smb.QueryFileInfoParams
	if err := p.Decode(treq.Parameters); err != nil {
		return err
	}
	fp, err := ctx.session.lookupOpen(p.Fid)
	if err != nil {
		return smb.Status(smb.STATUS_INVALID_HANDLE).Err()
	}
	defer fp.put()

	st, err := fs.Stat(fp.path)
	if err != nil {
		return err
	}
	if fp.stream != "" {
		size, err := fs.StreamSize(fp.path, fp.stream)
		if err != nil {
			return err
		}
		st.Size = uint64(size)
		st.AllocSize = uint64(size)
	}

	deletePending := false
	if fp.mfp != nil {
		fp.mfp.mu.Lock()
		deletePending = fp.mfp.deletePending
		fp.mfp.mu.Unlock()
	}

	info, err := queryInfoData(ctx, fs, p.InformationLevel, fp.path, st, deletePending)
	if err != nil {
		return err
	}
	tr := smb.TransResponse{Parameters: eaErrorOffset, Data: info}
	return tr.Encode(ctx.resp)
}

// setBasic applies a FILE_BASIC_INFO block to a path.
func setBasic(fs *vfs.FS, name string, data []byte, isDir bool) error {
	var sb smb.SetBasicInfo
	if err := sb.Decode(data); err != nil {
		return err
	}
	if sb.FileAttributes != 0 {
		attrs := sb.FileAttributes & 0x37
		if isDir {
			attrs |= vfs.AttrDir
		}
		if err := fs.SetDosAttrs(name, attrs); err != nil {
			return err
		}
	}
	if !sb.LastAccessTime.IsZero() || !sb.LastWriteTime.IsZero() || !sb.CreationTime.IsZero() {
		if err := fs.SetTimes(name, sb.LastAccessTime, sb.LastWriteTime, sb.CreationTime); err != nil {
			return err
		}
	}
	return nil
}

func trans2SetPathInfo(s *server, ctx *request, treq *smb.TransRequest) error {
	fs, err := diskFS(ctx)
	if err != nil {
		return err
	}
	var p smb.SetPathInfoParams
	if err := p.Decode(ctx.h, treq.Parameters); err != nil {
		return err
	}

	// A posix open may be read-only; every other level mutates.
	if p.InformationLevel != smb.SMB_SET_POSIX_OPEN {
		if err := requireWritable(ctx); err != nil {
			return err
		}
	}

	switch p.InformationLevel {
	case smb.SMB_INFO_STANDARD, smb.SMB_SET_FILE_BASIC_INFO, smb.SMB_SET_FILE_BASIC_INFO2:
		st, err := fs.Stat(p.Path)
		if err != nil {
			return err
		}
		if err := setBasic(fs, p.Path, treq.Data, st.IsDir()); err != nil {
			return err
		}
	case smb.SMB_SET_FILE_END_OF_FILE_INFO, smb.SMB_SET_FILE_END_OF_FILE_INFO2,
		smb.SMB_SET_FILE_ALLOCATION_INFO, smb.SMB_SET_FILE_ALLOCATION_INFO2:
		size, err := smb.DecodeSetSize(treq.Data)
		if err != nil {
			return err
		}
		if err := fs.Truncate(p.Path, int64(size)); err != nil {
			return err
		}
	case smb.SMB_SET_FILE_RENAME_INFORMATION:
		var ri smb.SetRenameInfo
		if err := ri.Decode(treq.Data, ctx.h.IsUnicode()); err != nil {
			return err
		}
		if err := s.setRename(fs, p.Path, ri); err != nil {
			return err
		}
	case smb.SMB_SET_FILE_UNIX_BASIC:
		if err := s.setUnixBasic(fs, p.Path, treq.Data); err != nil {
			return err
		}
	case smb.SMB_SET_FILE_UNIX_LINK:
		target, err := smb.DecodeUnixLink(treq.Data, ctx.h.IsUnicode())
		if err != nil {
			return err
		}
		if err := fs.Symlink(target, p.Path); err != nil {
			return err
		}
	case smb.SMB_SET_FILE_UNIX_HLINK:
		oldPath, err := smb.DecodeUnixLink(treq.Data, ctx.h.IsUnicode())
		if err != nil {
			return err
		}
		if _, err := fs.Stat(p.Path); err == nil {
			return smb.Status(smb.STATUS_OBJECT_NAME_COLLISION).Err()
		}
		if err := fs.Link(oldPath, p.Path); err != nil {
			return err
		}
	case smb.SMB_SET_POSIX_OPEN:
		return s.posixOpen(ctx, fs, p.Path, treq.Data)
	case smb.SMB_SET_POSIX_UNLINK:
		return s.posixUnlink(ctx, fs, p.Path, treq.Data)
	default:
		return smb.Status(smb.STATUS_INVALID_LEVEL).Err()
	}

	tr := smb.TransResponse{Parameters: eaErrorOffset}
	return tr.Encode(ctx.resp)
}

// setUnixBasic applies a UNIX_BASIC set block: permissions, ownership,
// size and times, each only when the client filled the field.
func (s *server) setUnixBasic(fs *vfs.FS, name string, data []byte) error {
	var u smb.UnixBasicInfo
	if err := u.Decode(data); err != nil {
		return err
	}
	if u.Permissions != smb.UnixNoChange {
		if err := fs.Chmod(name, os.FileMode(u.Permissions&0o7777)); err != nil {
			return err
		}
	}
	uid, gid := -1, -1
	if u.UID != smb.UnixNoChange {
		uid = int(u.UID)
	}
	if u.GID != smb.UnixNoChange {
		gid = int(u.GID)
	}
	if uid != -1 || gid != -1 {
		if err := fs.Chown(name, uid, gid); err != nil {
			return err
		}
	}
	if u.EndOfFile != 0 && u.EndOfFile != smb.UnixNoChange {
		if err := fs.Truncate(name, int64(u.EndOfFile)); err != nil {
			return err
		}
	}
	if !u.LastAccess.IsZero() || !u.LastModify.IsZero() {
		if err := fs.SetTimes(name, u.LastAccess, u.LastModify, time.Time{}); err != nil {
			return err
		}
	}
	return nil
}

// posixOpen services the POSIX_OPEN level: an open or create driven by
// O_* style flags instead of an NT disposition.
func (s *server) posixOpen(ctx *request, fs *vfs.FS, name string, data []byte) error {
	var po smb.PosixOpenParams
	if err := po.Decode(data); err != nil {
		return err
	}

	p := createParams{
		name:        name,
		shareAccess: smb.FILE_SHARE_ALL,
	}
	switch {
	case po.PosixFlags&smb.SMB_O_RDWR > 0:
		p.access = smb.FILE_READ_RIGHTS | smb.FILE_WRITE_RIGHTS
	case po.PosixFlags&smb.SMB_O_WRONLY > 0:
		p.access = smb.FILE_WRITE_RIGHTS
	default:
		p.access = smb.FILE_READ_RIGHTS
	}
	if po.PosixFlags&smb.SMB_O_APPEND > 0 {
		p.access |= smb.FILE_APPEND_DATA
	}
	switch {
	case po.PosixFlags&(smb.SMB_O_CREAT|smb.SMB_O_EXCL) == smb.SMB_O_CREAT|smb.SMB_O_EXCL:
		p.disposition = smb.FILE_CREATE
	case po.PosixFlags&(smb.SMB_O_CREAT|smb.SMB_O_TRUNC) == smb.SMB_O_CREAT|smb.SMB_O_TRUNC:
		p.disposition = smb.FILE_OVERWRITE_IF
	case po.PosixFlags&smb.SMB_O_CREAT > 0:
		p.disposition = smb.FILE_OPEN_IF
	case po.PosixFlags&smb.SMB_O_TRUNC > 0:
		p.disposition = smb.FILE_OVERWRITE
	default:
		p.disposition = smb.FILE_OPEN
	}
	if po.PosixFlags&smb.SMB_O_DIRECTORY > 0 {
		p.options = smb.FILE_DIRECTORY_FILE
	}

	fp, st, action, _, err := s.openDisk(ctx, &p)
	if err != nil {
		return err
	}
	if action == smb.FILE_CREATED && po.Permissions != 0 && po.Permissions != smb.UnixNoChange {
		if err := fs.Chmod(fp.path, os.FileMode(po.Permissions&0o7777)); err == nil {
			if st2, err := fs.Stat(fp.path); err == nil {
				st = st2
			}
		}
	}

	pr := smb.PosixOpenResponse{
		Fid:          uint16(fp.fid),
		CreateAction: action,
	}
	if po.Level == smb.SMB_QUERY_FILE_UNIX_BASIC {
		pr.ReturnedLevel = smb.SMB_QUERY_FILE_UNIX_BASIC
		pr.Info = unixBasicFromStat(st).Encode()
	}
	tr := smb.TransResponse{Parameters: eaErrorOffset, Data: pr.Encode()}
	return tr.Encode(ctx.resp)
}

// posixUnlink services the POSIX_UNLINK level. The type field picks file
// or directory semantics.
func (s *server) posixUnlink(ctx *request, fs *vfs.FS, name string, data []byte) error {
	typ, err := smb.DecodePosixUnlinkType(data)
	if err != nil {
		return err
	}
	if err := requireDelete(ctx); err != nil {
		return err
	}
	st, err := fs.Stat(name)
	if err != nil {
		return err
	}
	if s.openConflict(fs, name) {
		return smb.Status(smb.STATUS_SHARING_VIOLATION).Err()
	}
	if typ == 1 {
		if !st.IsDir() {
			return smb.Status(smb.STATUS_NOT_A_DIRECTORY).Err()
		}
		if err := fs.Rmdir(name); err != nil {
			return err
		}
	} else {
		if st.IsDir() {
			return smb.Status(smb.STATUS_FILE_IS_A_DIRECTORY).Err()
		}
		if err := fs.Unlink(name); err != nil {
			return err
		}
	}
	tr := smb.TransResponse{Parameters: eaErrorOffset}
	return tr.Encode(ctx.resp)
}

// setRename applies a FILE_RENAME_INFORMATION block. The new name is
// resolved against the directory of the old one unless it carries a path.
func (s *server) setRename(fs *vfs.FS, oldName string, ri smb.SetRenameInfo) error {
	cleaned, err := vfs.Clean(oldName)
	if err != nil {
		return err
	}
	newName := ri.NewName
	if cleaned2, err := vfs.Clean(newName); err == nil && path.Dir(cleaned2) == "." {
		newName = path.Join(path.Dir(cleaned), cleaned2)
	}

	if _, err := fs.Stat(newName); err == nil {
		if !ri.ReplaceIfExists {
			return smb.Status(smb.STATUS_OBJECT_NAME_COLLISION).Err()
		}
		if s.openConflict(fs, newName) {
			return smb.Status(smb.STATUS_ACCESS_DENIED).Err()
		}
	}
	return fs.Rename(cleaned, newName)
}

// dirEmpty reports whether a directory holds anything besides the dot
// entries.
func dirEmpty(fs *vfs.FS, name string) (bool, error) {
	scanner, err := fs.OpenDir(name)
	if err != nil {
		return false, err
	}
	defer scanner.Close()
	for {
		st, err := scanner.Next()
		if errors.Is(err, io.EOF) {
			return true, nil
		}
		if err != nil {
			return false, err
		}
		if st.Name != "." && st.Name != ".." {
			return false, nil
		}
	}
}

func trans2SetFileInfo(s *server, ctx *request, treq *smb.TransRequest) error {
	fs, err := diskFS(ctx)
	if err != nil {
		return err
	}
	if err := requireWritable(ctx); err != nil {
		return err
	}
	var p smb.SetFileInfoParams
	if err := p.Decode(treq.Parameters); err != nil {
		return err
	}
	fp, err := ctx.session.lookupOpen(p.Fid)
	if err != nil {
		return smb.Status(smb.STATUS_INVALID_HANDLE).Err()
	}
	defer fp.put()

	switch p.InformationLevel {
	case smb.SMB_INFO_STANDARD, smb.SMB_SET_FILE_BASIC_INFO, smb.SMB_SET_FILE_BASIC_INFO2:
		if err := setBasic(fs, fp.path, treq.Data, fp.directory); err != nil {
			return err
		}
	case smb.SMB_SET_FILE_DISPOSITION_INFO, smb.SMB_SET_FILE_DISPOSITION_INFORMATION:
		del, err := smb.DecodeSetDisposition(treq.Data)
		if err != nil {
			return err
		}
		if err := s.setDisposition(fs, fp, del); err != nil {
			return err
		}
	case smb.SMB_SET_FILE_END_OF_FILE_INFO, smb.SMB_SET_FILE_END_OF_FILE_INFO2,
		smb.SMB_SET_FILE_ALLOCATION_INFO, smb.SMB_SET_FILE_ALLOCATION_INFO2:
		size, err := smb.DecodeSetSize(treq.Data)
		if err != nil {
			return err
		}
		if err := s.setFileSize(fp, int64(size)); err != nil {
			return err
		}
	case smb.SMB_SET_FILE_RENAME_INFORMATION:
		var ri smb.SetRenameInfo
		if err := ri.Decode(treq.Data, ctx.h.IsUnicode()); err != nil {
			return err
		}
		if err := s.renameOpen(fs, fp, ri); err != nil {
			return err
		}
	case smb.SMB_SET_FILE_UNIX_BASIC:
		if err := s.setUnixBasic(fs, fp.path, treq.Data); err != nil {
			return err
		}
	default:
		return smb.Status(smb.STATUS_INVALID_LEVEL).Err()
	}

	tr := smb.TransResponse{Parameters: eaErrorOffset}
	return tr.Encode(ctx.resp)
}

// setDisposition marks or clears delete-on-close on the handle's file.
func (s *server) setDisposition(fs *vfs.FS, fp *open, del bool) error {
	if fp.mfp == nil {
		return smb.Status(smb.STATUS_INVALID_HANDLE).Err()
	}
	if del {
		if fp.grantedAccess&smb.DELETE == 0 {
			return smb.Status(smb.STATUS_ACCESS_DENIED).Err()
		}
		st, err := fs.Stat(fp.path)
		if err != nil {
			return err
		}
		if st.DosAttrs&vfs.AttrReadonly > 0 {
			return smb.Status(smb.STATUS_CANNOT_DELETE).Err()
		}
		if st.IsDir() {
			empty, err := dirEmpty(fs, fp.path)
			if err != nil {
				return err
			}
			if !empty {
				return smb.Status(smb.STATUS_DIRECTORY_NOT_EMPTY).Err()
			}
		}
	}
	fp.mfp.mu.Lock()
	fp.mfp.deletePending = del
	fp.mfp.mu.Unlock()
	return nil
}

// setFileSize truncates the handle's stream or file data.
func (s *server) setFileSize(fp *open, size int64) error {
	if fp.grantedAccess&smb.FILE_WRITE_DATA == 0 {
		return smb.Status(smb.STATUS_ACCESS_DENIED).Err()
	}
	if fp.mfp != nil {
		s.breakLevel2(fp.mfp, fp)
	}
	if fp.stream != "" {
		return fp.tree.share.fs.TruncateStream(fp.path, fp.stream, size)
	}
	if fp.file == nil {
		return smb.Status(smb.STATUS_INVALID_HANDLE).Err()
	}
	return fp.file.Truncate(size)
}

// renameOpen renames through an open handle and keeps the mfile anchor
// pointing at the new path so sibling handles follow.
func (s *server) renameOpen(fs *vfs.FS, fp *open, ri smb.SetRenameInfo) error {
	if fp.mfp == nil {
		return smb.Status(smb.STATUS_INVALID_HANDLE).Err()
	}

	cleaned, err := vfs.Clean(fp.path)
	if err != nil {
		return err
	}
	newName := ri.NewName
	if cleaned2, err := vfs.Clean(newName); err == nil && path.Dir(cleaned2) == "." {
		newName = path.Join(path.Dir(cleaned), cleaned2)
	}

	if _, err := fs.Stat(newName); err == nil {
		if !ri.ReplaceIfExists {
			return smb.Status(smb.STATUS_OBJECT_NAME_COLLISION).Err()
		}
		if s.openConflict(fs, newName) {
			return smb.Status(smb.STATUS_ACCESS_DENIED).Err()
		}
	}
	if err := fs.Rename(cleaned, newName); err != nil {
		return err
	}

	cleanedNew, err := vfs.Clean(newName)
	if err != nil {
		cleanedNew = newName
	}
	fp.mfp.rename(cleanedNew)
	fp.mfp.mu.Lock()
	for sib := range fp.mfp.opens {
		sib.path = cleanedNew
	}
	fp.mfp.mu.Unlock()
	return nil
}

func trans2QueryFsInfo(s *server, ctx *request, treq *smb.TransRequest) error {
	fs, err := diskFS(ctx)
	if err != nil {
		return err
	}
	var p smb.QueryFsInfoParams
	if err := p.Decode(treq.Parameters); err != nil {
		return err
	}

	st, err := fs.StatFS()
	if err != nil {
		return err
	}
	sh := ctx.tree.share
	info := smb.FsInfo{
		TotalUnits:     st.Blocks,
		FreeUnits:      st.Bavail,
		SectorsPerUnit: 1,
		BytesPerSector: uint32(st.Bsize),
		SerialNumber:   sh.serialNo(),
		Label:          sh.name,
		FsName:         "NTFS",
		MaxNameLen:     255,
		CreationTime:   sh.createdAt,
	}

	var data []byte
	switch p.InformationLevel {
	case smb.SMB_INFO_ALLOCATION:
		data = info.EncodeInfoAllocation()
	case smb.SMB_INFO_VOLUME:
		data = encodeInfoVolume(info, ctx.h.IsUnicode())
	case smb.SMB_QUERY_FS_VOLUME_INFO:
		data = info.EncodeFsVolumeInfo(ctx.h.IsUnicode())
	case smb.SMB_QUERY_FS_SIZE_INFO:
		data = info.EncodeFsSizeInfo()
	case smb.SMB_QUERY_FS_FULL_SIZE_INFO:
		data = info.EncodeFsFullSizeInfo()
	case smb.SMB_QUERY_FS_DEVICE_INFO:
		data = info.EncodeFsDeviceInfo()
	case smb.SMB_QUERY_FS_ATTRIBUTE_INFO:
		data = info.EncodeFsAttributeInfo(ctx.h.IsUnicode())
	case smb.SMB_QUERY_CIFS_UNIX_INFO:
		data = smb.EncodeCifsUnixInfo(smb.CIFS_UNIX_FCNTL_LOCKS_CAP |
			smb.CIFS_UNIX_XATTR_CAP | smb.CIFS_UNIX_POSIX_PATHNAME_CAP)
	default:
		return smb.Status(smb.STATUS_INVALID_LEVEL).Err()
	}

	tr := smb.TransResponse{Data: data}
	return tr.Encode(ctx.resp)
}

// encodeInfoVolume marshals the legacy SMB_INFO_VOLUME block: a serial
// number, a label length byte and the label.
func encodeInfoVolume(info smb.FsInfo, unicode bool) []byte {
	label := []byte(info.Label)
	if unicode {
		label = utils.EncodeStringToBytes(info.Label)
	}
	b := make([]byte, 5+len(label))
	b[0] = byte(info.SerialNumber)
	b[1] = byte(info.SerialNumber >> 8)
	b[2] = byte(info.SerialNumber >> 16)
	b[3] = byte(info.SerialNumber >> 24)
	b[4] = uint8(len(label))
	copy(b[5:], label)
	return b
}

func trans2CreateDirectory(s *server, ctx *request, treq *smb.TransRequest) error {
	fs, err := diskFS(ctx)
	if err != nil {
		return err
	}
	if err := requireWritable(ctx); err != nil {
		return err
	}
	var p smb.CreateDirectoryParams
	if err := p.Decode(ctx.h, treq.Parameters); err != nil {
		return err
	}
	if err := fs.Mkdir(p.Path, 0o755); err != nil {
		return err
	}
	tr := smb.TransResponse{Parameters: eaErrorOffset}
	return tr.Encode(ctx.resp)
}
