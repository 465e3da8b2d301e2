package vfs

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestClean(t *testing.T) {
	for in, want := range map[string]string{
		"\\dir\\file.txt":     "dir/file.txt",
		"dir/sub/../file":     "dir/file",
		"\\":                  ".",
		"":                    ".",
		"a\\b\\..\\..\\c":     "c",
		"./x":                 "x",
	} {
		got, err := Clean(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	for _, in := range []string{"..", "\\..\\etc", "a/../../b"} {
		_, err := Clean(in)
		assert.ErrorIs(t, err, ErrBadPath, in)
	}
}

func TestSplitStream(t *testing.T) {
	base, stream := SplitStream("file.txt:ads:$DATA")
	assert.Equal(t, "file.txt", base)
	assert.Equal(t, "ads", stream)

	base, stream = SplitStream("plain.txt")
	assert.Equal(t, "plain.txt", base)
	assert.Empty(t, stream)
}

func TestResolveConfinement(t *testing.T) {
	fs := New(t.TempDir(), false)
	_, err := fs.Resolve("..\\outside")
	assert.ErrorIs(t, err, ErrBadPath)

	local, err := fs.Resolve("\\dir\\file")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(fs.Root(), "dir/file"), local)
}

func TestCaselessResolve(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "Mixed", "Case"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "Mixed", "Case", "File.TXT"), []byte("x"), 0o644))

	fs := New(root, true)
	st, err := fs.Stat("mixed\\case\\file.txt")
	require.NoError(t, err)
	assert.Equal(t, "File.TXT", st.Name)

	// Exact matches win without a scan.
	st, err = fs.Stat("Mixed\\Case\\File.TXT")
	require.NoError(t, err)
	assert.Equal(t, "File.TXT", st.Name)

	// Caseless disabled: miss.
	fs.SetCaseless(false)
	_, err = fs.Stat("mixed\\case\\file.txt")
	assert.True(t, os.IsNotExist(err))
}

func TestMatchPattern(t *testing.T) {
	assert.True(t, MatchPattern("anything", "*"))
	assert.True(t, MatchPattern("anything", "*.*"))
	assert.True(t, MatchPattern("file.txt", "*.txt"))
	assert.True(t, MatchPattern("FILE.TXT", "*.txt"))
	assert.False(t, MatchPattern("file.doc", "*.txt"))
	assert.True(t, MatchPattern("abc", "a?c"))
	assert.False(t, MatchPattern("abbc", "a?c"))
	assert.True(t, MatchPattern("file.txt", "<.txt"))
	assert.True(t, MatchPattern("abc", "ab>"))
	assert.True(t, MatchPattern("file.txt", "file\"txt"))
	assert.True(t, MatchPattern("file", "file\""))
}

func needStreams(t *testing.T, fs *FS, name string) {
	t.Helper()
	_, err := fs.WriteStream(name, "probe", 0, []byte("x"))
	if errors.Is(err, unix.ENOTSUP) || errors.Is(err, unix.EOPNOTSUPP) {
		t.Skipf("user xattrs not supported here: %v", err)
	}
	require.NoError(t, err)
	require.NoError(t, fs.RemoveStream(name, "probe"))
}

func TestStreams(t *testing.T) {
	fs := New(t.TempDir(), false)
	require.NoError(t, os.WriteFile(filepath.Join(fs.Root(), "f"), nil, 0o644))
	needStreams(t, fs, "f")

	_, err := fs.WriteStream("f", "meta", 0, []byte("hello"))
	require.NoError(t, err)

	// Sparse write zero-fills the gap.
	_, err = fs.WriteStream("f", "meta", 8, []byte("world"))
	require.NoError(t, err)

	size, err := fs.StreamSize("f", "meta")
	require.NoError(t, err)
	assert.Equal(t, int64(13), size)

	buf := make([]byte, 16)
	n, err := fs.ReadStream("f", "meta", 0, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello\x00\x00\x00world"), buf[:n])

	require.NoError(t, fs.TruncateStream("f", "meta", 5))
	n, err = fs.ReadStream("f", "meta", 0, buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), buf[:n])

	streams, err := fs.ListStreams("f")
	require.NoError(t, err)
	assert.Equal(t, []string{"meta"}, streams)

	require.NoError(t, fs.RemoveStream("f", "meta"))
	_, err = fs.StreamSize("f", "meta")
	assert.ErrorIs(t, err, ErrNoStream)

	_, err = fs.WriteStream("f", "big", XattrSizeMax-1, []byte("xx"))
	assert.ErrorIs(t, err, ErrStreamTooBig)
}

func TestDirScanner(t *testing.T) {
	root := t.TempDir()
	for _, name := range []string{"a.txt", "b.txt", "c.doc"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte("x"), 0o644))
	}
	fs := New(root, false)

	scan, err := fs.OpenDir("\\")
	require.NoError(t, err)
	defer scan.Close()

	var names []string
	for {
		st, err := scan.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, st.Name)
	}
	assert.Len(t, names, 5)
	assert.Equal(t, ".", names[0])
	assert.Equal(t, "..", names[1])
	assert.ElementsMatch(t, []string{"a.txt", "b.txt", "c.doc"}, names[2:])
}

func TestLockRegistry(t *testing.T) {
	r := NewLockRegistry()
	a := LockOwner{Session: 1, Fid: 1, PID: 100}
	b := LockOwner{Session: 1, Fid: 2, PID: 200}

	require.NoError(t, r.Lock(1, 10, ByteLock{Owner: a, Offset: 0, Length: 100}))

	// Exclusive blocks overlapping locks and both I/O directions for others.
	assert.ErrorIs(t, r.Lock(1, 10, ByteLock{Owner: b, Offset: 50, Length: 10}), ErrLockConflict)
	assert.ErrorIs(t, r.CheckRead(1, 10, b, 0, 10), ErrLockConflict)
	assert.ErrorIs(t, r.CheckWrite(1, 10, b, 0, 10), ErrLockConflict)
	assert.NoError(t, r.CheckRead(1, 10, a, 0, 10))

	// Disjoint range is fine; other files are fine.
	require.NoError(t, r.Lock(1, 10, ByteLock{Owner: b, Offset: 100, Length: 10}))
	require.NoError(t, r.Lock(1, 11, ByteLock{Owner: b, Offset: 0, Length: 10}))

	// Shared locks coexist but block writes.
	require.NoError(t, r.Lock(2, 20, ByteLock{Owner: a, Offset: 0, Length: 10, Shared: true}))
	require.NoError(t, r.Lock(2, 20, ByteLock{Owner: b, Offset: 5, Length: 10, Shared: true}))
	assert.NoError(t, r.CheckRead(2, 20, b, 0, 10))
	assert.ErrorIs(t, r.CheckWrite(2, 20, b, 0, 3), ErrLockConflict)

	// Unlock requires an exact match.
	assert.False(t, r.Unlock(1, 10, a, 0, 50))
	assert.True(t, r.Unlock(1, 10, a, 0, 100))
	assert.NoError(t, r.CheckWrite(1, 10, b, 0, 10))

	r.ReleaseOwner(b)
	assert.NoError(t, r.CheckWrite(1, 10, a, 100, 10))
	// a's shared lock survives the release of b.
	assert.ErrorIs(t, r.CheckWrite(2, 20, b, 0, 3), ErrLockConflict)
}
