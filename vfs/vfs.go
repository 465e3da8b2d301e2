// Package vfs mediates all filesystem access for a share: path
// confinement, caseless lookup, alternate data streams kept in extended
// attributes, DOS attribute mapping and byte-range locks.
package vfs

import (
	"errors"
	"os"
	"path"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

var (
	ErrBadPath      = errors.New("path escapes the share root")
	ErrLockConflict = errors.New("byte range lock conflict")
	ErrNoStream     = errors.New("no such stream")
	ErrStreamTooBig = errors.New("stream exceeds xattr size limit")
	ErrNotEmpty     = errors.New("directory not empty")
)

// FS is the filesystem view of one share, rooted at a local directory.
// Every path passed to its methods is a share-relative SMB path; FS
// resolves it under the root and refuses escapes.
type FS struct {
	root     string
	caseless bool
}

// New creates a share filesystem over the given root directory.
func New(root string, caseless bool) *FS {
	return &FS{root: path.Clean(root), caseless: caseless}
}

// Root returns the local root directory.
func (fs *FS) Root() string {
	return fs.root
}

// SetCaseless toggles the caseless lookup fallback at runtime.
func (fs *FS) SetCaseless(on bool) {
	fs.caseless = on
}

// Clean converts an SMB path to a clean slash-separated relative path.
// Backslashes are separators on the wire; leading separators are
// stripped.
func Clean(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimLeft(name, "/")
	if name == "" {
		return ".", nil
	}
	cleaned := path.Clean(name)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return "", ErrBadPath
	}
	return cleaned, nil
}

// SplitStream separates an alternate data stream suffix from a path.
// "file.txt:ads" yields ("file.txt", "ads"); the ":$DATA" type suffix is
// dropped.
func SplitStream(name string) (string, string) {
	i := strings.IndexByte(name, ':')
	if i < 0 {
		return name, ""
	}
	stream := name[i+1:]
	if j := strings.IndexByte(stream, ':'); j >= 0 {
		stream = stream[:j]
	}
	return name[:i], stream
}

// Resolve maps an SMB path to a local path under the root. With caseless
// lookup enabled, components that do not exist are retried with a
// case-insensitive scan of their parent.
func (fs *FS) Resolve(name string) (string, error) {
	cleaned, err := Clean(name)
	if err != nil {
		return "", err
	}
	local := path.Join(fs.root, cleaned)
	if !fs.caseless {
		return local, nil
	}
	if _, err := os.Lstat(local); err == nil || !errors.Is(err, os.ErrNotExist) {
		return local, nil
	}
	return fs.resolveCaseless(cleaned)
}

// Stat describes one file the way the protocol needs it: the POSIX stat
// fields plus the DOS attributes and creation time kept in xattrs.
type Stat struct {
	Name         string
	Size         uint64
	AllocSize    uint64
	Ino          uint64
	Dev          uint64
	Nlink        uint32
	Mode         os.FileMode
	UID          uint32
	GID          uint32
	Atime        time.Time
	Mtime        time.Time
	Ctime        time.Time
	CreationTime time.Time
	DosAttrs     uint32
}

// DOS attribute bits stored in the attribute xattr.
const (
	AttrReadonly = 0x0001
	AttrHidden   = 0x0002
	AttrSystem   = 0x0004
	AttrDir      = 0x0010
	AttrArchive  = 0x0020
	AttrNormal   = 0x0080
)

func statFromUnix(name string, st *unix.Stat_t) *Stat {
	return &Stat{
		Name:      name,
		Size:      uint64(st.Size),
		AllocSize: uint64(st.Blocks) * 512,
		Ino:       st.Ino,
		Dev:       uint64(st.Dev),
		Nlink:     uint32(st.Nlink),
		Mode:      os.FileMode(st.Mode & 0o7777),
		UID:       st.Uid,
		GID:       st.Gid,
		Atime:     time.Unix(st.Atim.Sec, st.Atim.Nsec),
		Mtime:     time.Unix(st.Mtim.Sec, st.Mtim.Nsec),
		Ctime:     time.Unix(st.Ctim.Sec, st.Ctim.Nsec),
	}
}

// IsDir reports whether the entry is a directory.
func (s *Stat) IsDir() bool {
	return s.DosAttrs&AttrDir > 0
}

// Stat stats a share path and merges in the xattr-backed attributes.
func (fs *FS) Stat(name string) (*Stat, error) {
	local, err := fs.Resolve(name)
	if err != nil {
		return nil, err
	}
	return fs.statLocal(local)
}

func (fs *FS) statLocal(local string) (*Stat, error) {
	var st unix.Stat_t
	if err := unix.Lstat(local, &st); err != nil {
		return nil, &os.PathError{Op: "lstat", Path: local, Err: err}
	}
	out := statFromUnix(path.Base(local), &st)
	fs.fillDosAttrs(local, out, st.Mode)
	return out, nil
}

func (fs *FS) fillDosAttrs(local string, out *Stat, mode uint32) {
	out.CreationTime = out.Ctime
	if ct, err := getCreationTime(local); err == nil {
		out.CreationTime = ct
	}
	if attrs, err := getDosAttrib(local); err == nil {
		out.DosAttrs = attrs
	}
	if mode&syscall.S_IFMT == syscall.S_IFDIR {
		out.DosAttrs |= AttrDir
	} else if out.DosAttrs == 0 {
		out.DosAttrs = AttrArchive
	}
	if out.Mode&0o200 == 0 {
		out.DosAttrs |= AttrReadonly
	}
}

// Open opens a share path with the given POSIX flags and mode.
func (fs *FS) Open(name string, flags int, mode os.FileMode) (*os.File, error) {
	local, err := fs.Resolve(name)
	if err != nil {
		return nil, err
	}
	return os.OpenFile(local, flags, mode)
}

// Mkdir creates a directory and stamps its creation time.
func (fs *FS) Mkdir(name string, mode os.FileMode) error {
	local, err := fs.Resolve(name)
	if err != nil {
		return err
	}
	if err := os.Mkdir(local, mode); err != nil {
		return err
	}
	setCreationTime(local, time.Now())
	return nil
}

// Rmdir removes an empty directory.
func (fs *FS) Rmdir(name string) error {
	local, err := fs.Resolve(name)
	if err != nil {
		return err
	}
	return os.Remove(local)
}

// Unlink removes a file.
func (fs *FS) Unlink(name string) error {
	local, err := fs.Resolve(name)
	if err != nil {
		return err
	}
	return os.Remove(local)
}

// Rename moves oldName to newName inside the share.
func (fs *FS) Rename(oldName, newName string) error {
	oldLocal, err := fs.Resolve(oldName)
	if err != nil {
		return err
	}
	newLocal, err := fs.Resolve(newName)
	if err != nil {
		return err
	}
	return os.Rename(oldLocal, newLocal)
}

// Link creates a hard link newName to oldName.
func (fs *FS) Link(oldName, newName string) error {
	oldLocal, err := fs.Resolve(oldName)
	if err != nil {
		return err
	}
	newLocal, err := fs.Resolve(newName)
	if err != nil {
		return err
	}
	return os.Link(oldLocal, newLocal)
}

// Symlink creates a symbolic link at linkName pointing at target. The
// target is stored as given, it is resolved client side.
func (fs *FS) Symlink(target, linkName string) error {
	local, err := fs.Resolve(linkName)
	if err != nil {
		return err
	}
	return os.Symlink(target, local)
}

// Readlink reads a symbolic link.
func (fs *FS) Readlink(name string) (string, error) {
	local, err := fs.Resolve(name)
	if err != nil {
		return "", err
	}
	return os.Readlink(local)
}

// Truncate sets the size of a file by path.
func (fs *FS) Truncate(name string, size int64) error {
	local, err := fs.Resolve(name)
	if err != nil {
		return err
	}
	return os.Truncate(local, size)
}

// SetTimes applies the non-zero times to a share path.
func (fs *FS) SetTimes(name string, atime, mtime, creation time.Time) error {
	local, err := fs.Resolve(name)
	if err != nil {
		return err
	}
	if !creation.IsZero() {
		setCreationTime(local, creation)
	}
	if atime.IsZero() && mtime.IsZero() {
		return nil
	}
	ats := unix.Timespec{Nsec: unix.UTIME_OMIT}
	mts := unix.Timespec{Nsec: unix.UTIME_OMIT}
	if !atime.IsZero() {
		ats = unix.NsecToTimespec(atime.UnixNano())
	}
	if !mtime.IsZero() {
		mts = unix.NsecToTimespec(mtime.UnixNano())
	}
	return unix.UtimesNanoAt(unix.AT_FDCWD, local, []unix.Timespec{ats, mts}, 0)
}

// Chmod changes the permission bits of a share path.
func (fs *FS) Chmod(name string, mode os.FileMode) error {
	local, err := fs.Resolve(name)
	if err != nil {
		return err
	}
	return os.Chmod(local, mode)
}

// Chown changes the owner and group of a share path. An id of -1 leaves
// that id unchanged.
func (fs *FS) Chown(name string, uid, gid int) error {
	local, err := fs.Resolve(name)
	if err != nil {
		return err
	}
	return os.Chown(local, uid, gid)
}

// StatFS reports filesystem capacity for the share root.
func (fs *FS) StatFS() (*unix.Statfs_t, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(fs.root, &st); err != nil {
		return nil, err
	}
	return &st, nil
}
