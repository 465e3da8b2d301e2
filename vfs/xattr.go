package vfs

import (
	"encoding/binary"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// Extended attribute names. Alternate data streams live under the user
// namespace with the DosStream prefix; DOS attributes and the creation
// time get one small xattr each.
const (
	xattrStreamPrefix = "user.DosStream."
	xattrDosAttrib    = "user.DOSATTRIB"
	xattrCreationTime = "user.CreationTime"

	// XattrSizeMax mirrors the kernel ceiling for one xattr value and
	// bounds the size of a stored stream.
	XattrSizeMax = 65536
)

func getxattr(local, attr string) ([]byte, error) {
	size, err := unix.Getxattr(local, attr, nil)
	if err != nil {
		return nil, err
	}
	buf := make([]byte, size)
	n, err := unix.Getxattr(local, attr, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

func listxattr(local string) ([]string, error) {
	size, err := unix.Listxattr(local, nil)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, nil
	}
	buf := make([]byte, size)
	n, err := unix.Listxattr(local, buf)
	if err != nil {
		return nil, err
	}
	var names []string
	for _, name := range strings.Split(string(buf[:n]), "\x00") {
		if name != "" {
			names = append(names, name)
		}
	}
	return names, nil
}

func getDosAttrib(local string) (uint32, error) {
	v, err := getxattr(local, xattrDosAttrib)
	if err != nil || len(v) < 4 {
		return 0, err
	}
	return binary.LittleEndian.Uint32(v), nil
}

func setDosAttrib(local string, attrs uint32) error {
	v := make([]byte, 4)
	binary.LittleEndian.PutUint32(v, attrs)
	return unix.Setxattr(local, xattrDosAttrib, v, 0)
}

func getCreationTime(local string) (time.Time, error) {
	v, err := getxattr(local, xattrCreationTime)
	if err != nil {
		return time.Time{}, err
	}
	if len(v) < 8 {
		return time.Time{}, ErrNoStream
	}
	return time.Unix(0, int64(binary.LittleEndian.Uint64(v))), nil
}

func setCreationTime(local string, t time.Time) error {
	v := make([]byte, 8)
	binary.LittleEndian.PutUint64(v, uint64(t.UnixNano()))
	return unix.Setxattr(local, xattrCreationTime, v, 0)
}

// SetDosAttrs stores the DOS attribute bits for a share path.
func (fs *FS) SetDosAttrs(name string, attrs uint32) error {
	local, err := fs.Resolve(name)
	if err != nil {
		return err
	}
	return setDosAttrib(local, attrs)
}

// SetCreationTime stores the creation time for a share path.
func (fs *FS) SetCreationTime(name string, t time.Time) error {
	local, err := fs.Resolve(name)
	if err != nil {
		return err
	}
	return setCreationTime(local, t)
}

// ListStreams returns the alternate data stream names of a file, without
// the xattr prefix.
func (fs *FS) ListStreams(name string) ([]string, error) {
	local, err := fs.Resolve(name)
	if err != nil {
		return nil, err
	}
	attrs, err := listxattr(local)
	if err != nil {
		return nil, err
	}
	var streams []string
	for _, attr := range attrs {
		if strings.HasPrefix(attr, xattrStreamPrefix) {
			streams = append(streams, attr[len(xattrStreamPrefix):])
		}
	}
	return streams, nil
}

// StreamSize returns the size of one alternate data stream.
func (fs *FS) StreamSize(name, stream string) (int64, error) {
	local, err := fs.Resolve(name)
	if err != nil {
		return 0, err
	}
	size, err := unix.Getxattr(local, xattrStreamPrefix+stream, nil)
	if err != nil {
		if err == unix.ENODATA {
			return 0, ErrNoStream
		}
		return 0, err
	}
	return int64(size), nil
}

// ReadStream reads from an alternate data stream at the given offset.
func (fs *FS) ReadStream(name, stream string, off int64, buf []byte) (int, error) {
	local, err := fs.Resolve(name)
	if err != nil {
		return 0, err
	}
	v, err := getxattr(local, xattrStreamPrefix+stream)
	if err != nil {
		if err == unix.ENODATA {
			return 0, ErrNoStream
		}
		return 0, err
	}
	if off >= int64(len(v)) {
		return 0, nil
	}
	return copy(buf, v[off:]), nil
}

// WriteStream writes into an alternate data stream at the given offset,
// zero-filling any gap past the current end.
func (fs *FS) WriteStream(name, stream string, off int64, data []byte) (int, error) {
	local, err := fs.Resolve(name)
	if err != nil {
		return 0, err
	}
	attr := xattrStreamPrefix + stream
	v, err := getxattr(local, attr)
	if err != nil && err != unix.ENODATA {
		return 0, err
	}
	end := off + int64(len(data))
	if end > XattrSizeMax {
		return 0, ErrStreamTooBig
	}
	if end > int64(len(v)) {
		grown := make([]byte, end)
		copy(grown, v)
		v = grown
	}
	copy(v[off:], data)
	if err := unix.Setxattr(local, attr, v, 0); err != nil {
		return 0, err
	}
	return len(data), nil
}

// TruncateStream resizes an alternate data stream, zero-padding growth.
func (fs *FS) TruncateStream(name, stream string, size int64) error {
	local, err := fs.Resolve(name)
	if err != nil {
		return err
	}
	if size > XattrSizeMax {
		return ErrStreamTooBig
	}
	attr := xattrStreamPrefix + stream
	v, err := getxattr(local, attr)
	if err != nil && err != unix.ENODATA {
		return err
	}
	resized := make([]byte, size)
	copy(resized, v)
	return unix.Setxattr(local, attr, resized, 0)
}

// RemoveStream deletes an alternate data stream.
func (fs *FS) RemoveStream(name, stream string) error {
	local, err := fs.Resolve(name)
	if err != nil {
		return err
	}
	if err := unix.Removexattr(local, xattrStreamPrefix+stream); err != nil {
		if err == unix.ENODATA {
			return ErrNoStream
		}
		return err
	}
	return nil
}

// RemoveAllStreams drops every alternate data stream of a file; used when
// the unnamed stream is overwritten by a supersede.
func (fs *FS) RemoveAllStreams(name string) error {
	local, err := fs.Resolve(name)
	if err != nil {
		return err
	}
	attrs, err := listxattr(local)
	if err != nil {
		return err
	}
	for _, attr := range attrs {
		if strings.HasPrefix(attr, xattrStreamPrefix) {
			if err := unix.Removexattr(local, attr); err != nil {
				return err
			}
		}
	}
	return nil
}
