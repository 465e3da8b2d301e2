package main

import (
	"encoding/binary"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vstarodubtsev/cifsd/ntlm"
	"github.com/vstarodubtsev/cifsd/smb"
	"github.com/vstarodubtsev/cifsd/stores"
)

func testServer(t *testing.T) (*server, string) {
	t.Helper()
	root := t.TempDir()

	bans, err := stores.NewJSONBansStore(t.TempDir())
	require.NoError(t, err)

	auth := ntlm.NewServer("SRV", "WG")
	auth.AddAccount("alice", "secret")

	s := newServer(nil, stores.Config{ServerName: "SRV", Workgroup: "WG"}, auth, bans)
	require.NoError(t, s.registerShare(stores.Share{Name: "pub", Path: root, Writable: true}))
	return s, root
}

// testContext builds a request context on a piped connection with an
// authenticated session and a tree connect to the pub share.
func testContext(t *testing.T, s *server) *request {
	t.Helper()

	client, srvConn := net.Pipe()
	go io.Copy(io.Discard, client)

	c := s.newConnection(srvConn)
	t.Cleanup(func() {
		s.closeConnection(c)
		client.Close()
	})

	ss, err := s.registerSession(c)
	require.NoError(t, err)
	ss.user = "alice"

	sh, ok := s.findShare("pub")
	require.True(t, ok)
	tc := &treeConnect{
		session:      ss,
		share:        sh,
		maxAccess:    sh.maximalAccess(),
		creationTime: time.Now(),
	}
	require.NoError(t, ss.registerTreeConnect(tc))

	h := smb.NewHeader(make([]byte, smb.MinMessageSize))
	h.SetCommand(smb.SMB_COM_NT_CREATE_ANDX)
	h.SetPID(100)
	h.SetUID(ss.uid)
	h.SetTID(tc.tid)

	return &request{
		conn:    c,
		msg:     h,
		h:       h,
		resp:    smb.NewResponse(h, false),
		session: ss,
		tree:    tc,
	}
}

func assertStatus(t *testing.T, err error, code uint32) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, code, smb.NTStatus(err))
}

func TestOpenDispositions(t *testing.T) {
	s, root := testServer(t)
	ctx := testContext(t, s)

	params := func(disposition uint32) *createParams {
		return &createParams{
			name:        "file.txt",
			access:      smb.FILE_READ_RIGHTS | smb.FILE_WRITE_RIGHTS,
			shareAccess: smb.FILE_SHARE_ALL,
			disposition: disposition,
		}
	}

	// FILE_OPEN of a missing file fails.
	_, _, _, _, err := s.openDisk(ctx, params(smb.FILE_OPEN))
	assertStatus(t, err, smb.STATUS_OBJECT_NAME_NOT_FOUND)

	// FILE_CREATE creates it.
	fp, _, action, _, err := s.openDisk(ctx, params(smb.FILE_CREATE))
	require.NoError(t, err)
	assert.Equal(t, uint32(smb.FILE_CREATED), action)
	require.NoError(t, s.closeOpen(ctx.session, fp))

	// A second FILE_CREATE collides.
	_, _, _, _, err = s.openDisk(ctx, params(smb.FILE_CREATE))
	assertStatus(t, err, smb.STATUS_OBJECT_NAME_COLLISION)

	// FILE_OVERWRITE_IF truncates existing content.
	require.NoError(t, os.WriteFile(filepath.Join(root, "file.txt"), []byte("content"), 0o644))
	fp, st, action, _, err := s.openDisk(ctx, params(smb.FILE_OVERWRITE_IF))
	require.NoError(t, err)
	assert.Equal(t, uint32(smb.FILE_OVERWRITTEN), action)
	assert.Zero(t, st.Size)
	require.NoError(t, s.closeOpen(ctx.session, fp))
}

func TestDeleteOnCloseNeedsDeleteAccess(t *testing.T) {
	s, _ := testServer(t)
	ctx := testContext(t, s)

	_, _, _, _, err := s.openDisk(ctx, &createParams{
		name:        "doc.txt",
		access:      smb.FILE_READ_RIGHTS,
		shareAccess: smb.FILE_SHARE_ALL,
		disposition: smb.FILE_CREATE,
		options:     smb.FILE_DELETE_ON_CLOSE,
	})
	assertStatus(t, err, smb.STATUS_INVALID_PARAMETER)
}

func TestDeleteOnClose(t *testing.T) {
	s, root := testServer(t)
	ctx := testContext(t, s)

	fp, _, _, _, err := s.openDisk(ctx, &createParams{
		name:        "doc.txt",
		access:      smb.FILE_READ_RIGHTS | smb.DELETE,
		shareAccess: smb.FILE_SHARE_ALL,
		disposition: smb.FILE_CREATE,
		options:     smb.FILE_DELETE_ON_CLOSE,
	})
	require.NoError(t, err)

	_, err = os.Stat(filepath.Join(root, "doc.txt"))
	require.NoError(t, err)

	require.NoError(t, s.closeOpen(ctx.session, fp))
	_, err = os.Stat(filepath.Join(root, "doc.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestSharingViolation(t *testing.T) {
	s, _ := testServer(t)
	ctx := testContext(t, s)

	first, _, _, _, err := s.openDisk(ctx, &createParams{
		name:        "shared.txt",
		access:      smb.FILE_READ_RIGHTS,
		shareAccess: 0, // no sharing
		disposition: smb.FILE_CREATE,
	})
	require.NoError(t, err)

	_, _, _, _, err = s.openDisk(ctx, &createParams{
		name:        "shared.txt",
		access:      smb.FILE_READ_RIGHTS,
		shareAccess: smb.FILE_SHARE_ALL,
		disposition: smb.FILE_OPEN,
	})
	assertStatus(t, err, smb.STATUS_SHARING_VIOLATION)

	require.NoError(t, s.closeOpen(ctx.session, first))

	second, _, _, _, err := s.openDisk(ctx, &createParams{
		name:        "shared.txt",
		access:      smb.FILE_READ_RIGHTS,
		shareAccess: smb.FILE_SHARE_ALL,
		disposition: smb.FILE_OPEN,
	})
	require.NoError(t, err)
	require.NoError(t, s.closeOpen(ctx.session, second))
}

func TestDeletePendingBlocksOpen(t *testing.T) {
	s, _ := testServer(t)
	ctx := testContext(t, s)

	fp, _, _, _, err := s.openDisk(ctx, &createParams{
		name:        "pending.txt",
		access:      smb.FILE_READ_RIGHTS | smb.DELETE,
		shareAccess: smb.FILE_SHARE_ALL,
		disposition: smb.FILE_CREATE,
	})
	require.NoError(t, err)
	require.NoError(t, s.setDisposition(ctx.tree.share.fs, fp, true))

	_, _, _, _, err = s.openDisk(ctx, &createParams{
		name:        "pending.txt",
		access:      smb.FILE_READ_RIGHTS,
		shareAccess: smb.FILE_SHARE_ALL,
		disposition: smb.FILE_OPEN,
	})
	assertStatus(t, err, smb.STATUS_DELETE_PENDING)

	require.NoError(t, s.closeOpen(ctx.session, fp))
}

func TestRenameBlockedByOpen(t *testing.T) {
	s, _ := testServer(t)
	ctx := testContext(t, s)
	fs := ctx.tree.share.fs

	fp, _, _, _, err := s.openDisk(ctx, &createParams{
		name:        "busy.txt",
		access:      smb.FILE_READ_RIGHTS,
		shareAccess: smb.FILE_SHARE_ALL,
		disposition: smb.FILE_CREATE,
	})
	require.NoError(t, err)

	assertStatus(t, s.renamePath(fs, "busy.txt", "idle.txt"), smb.STATUS_ACCESS_DENIED)

	require.NoError(t, s.closeOpen(ctx.session, fp))
	require.NoError(t, s.renamePath(fs, "busy.txt", "idle.txt"))
}

func TestRenameBlockedByOpenDescendant(t *testing.T) {
	s, _ := testServer(t)
	ctx := testContext(t, s)
	fs := ctx.tree.share.fs

	require.NoError(t, fs.Mkdir("dir", 0o755))
	fp, _, _, _, err := s.openDisk(ctx, &createParams{
		name:        "dir\\inner.txt",
		access:      smb.FILE_READ_RIGHTS,
		shareAccess: smb.FILE_SHARE_ALL,
		disposition: smb.FILE_CREATE,
	})
	require.NoError(t, err)

	assertStatus(t, s.renamePath(fs, "dir", "moved"), smb.STATUS_ACCESS_DENIED)

	require.NoError(t, s.closeOpen(ctx.session, fp))
	require.NoError(t, s.renamePath(fs, "dir", "moved"))
}

func TestOplockGrantAndBreak(t *testing.T) {
	s, _ := testServer(t)
	ctx := testContext(t, s)

	first, _, _, level, err := s.openDisk(ctx, &createParams{
		name:        "locked.txt",
		access:      smb.FILE_READ_RIGHTS,
		shareAccess: smb.FILE_SHARE_ALL,
		disposition: smb.FILE_CREATE,
		wantOplock:  true,
		wantBatch:   true,
	})
	require.NoError(t, err)
	assert.Equal(t, uint8(smb.OPLOCK_BATCH), level)

	// A second open forces a break of the batch oplock and blocks until
	// the holder acknowledges.
	done := make(chan uint8, 1)
	go func() {
		second, _, _, lvl, err := s.openDisk(ctx, &createParams{
			name:        "locked.txt",
			access:      smb.FILE_READ_RIGHTS,
			shareAccess: smb.FILE_SHARE_ALL,
			disposition: smb.FILE_OPEN,
			wantOplock:  true,
		})
		if err == nil {
			s.closeOpen(ctx.session, second)
		}
		done <- lvl
	}()

	require.Eventually(t, func() bool {
		first.mu.Lock()
		defer first.mu.Unlock()
		return first.opState == opBreaking
	}, 2*time.Second, 10*time.Millisecond)
	s.ackOplockBreak(first, smb.OPLOCK_LEVEL_II)

	select {
	case lvl := <-done:
		assert.Equal(t, uint8(smb.OPLOCK_LEVEL_II), lvl)
	case <-time.After(2 * time.Second):
		t.Fatal("second open never completed")
	}

	first.mu.Lock()
	assert.Equal(t, uint8(smb.OPLOCK_LEVEL_II), first.oplock)
	first.mu.Unlock()

	require.NoError(t, s.closeOpen(ctx.session, first))
}

func TestEchoNoReply(t *testing.T) {
	s, _ := testServer(t)
	ctx := testContext(t, s)

	words := make([]byte, 2) // echo count 0
	_, err := handleEcho(s, ctx, words, nil)
	require.NoError(t, err)
	assert.True(t, ctx.noReply)
}

func TestSearchFiltering(t *testing.T) {
	s, root := testServer(t)
	ctx := testContext(t, s)

	for _, name := range []string{"a.txt", "b.txt", "c.log"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte("x"), 0o644))
	}

	scanner, err := ctx.tree.share.fs.OpenDir(".")
	require.NoError(t, err)
	sr := &search{
		tree:    ctx.tree,
		pattern: "*.txt",
		attrs:   0x0016, // hidden, system, directory
		scanner: scanner,
	}
	defer sr.close()

	var names []string
	for {
		st, err := sr.next()
		if err != nil {
			break
		}
		names = append(names, st.Name)
	}
	assert.ElementsMatch(t, []string{"a.txt", "b.txt"}, names)
}

func TestFindBufferResumption(t *testing.T) {
	s, root := testServer(t)
	ctx := testContext(t, s)

	for _, name := range []string{"r1.dat", "r2.dat", "r3.dat"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte("x"), 0o644))
	}

	scanner, err := ctx.tree.share.fs.OpenDir(".")
	require.NoError(t, err)
	sr := &search{
		tree:    ctx.tree,
		pattern: "*.dat",
		scanner: scanner,
	}
	defer sr.close()

	// A block with room for a single entry leaves the next one pending.
	fb := smb.NewFindBuffer(smb.SMB_FIND_FILE_DIRECTORY_INFO, false, 80)
	end, err := fillFindBuffer(sr, fb, 10)
	require.NoError(t, err)
	assert.False(t, end)
	assert.Equal(t, 1, fb.Count())
	require.NotNil(t, sr.pending)

	// The next batch resumes with the pending entry, losing nothing.
	fb = smb.NewFindBuffer(smb.SMB_FIND_FILE_DIRECTORY_INFO, false, 4096)
	end, err = fillFindBuffer(sr, fb, 10)
	require.NoError(t, err)
	assert.True(t, end)
	assert.Equal(t, 2, fb.Count())
}

func TestWildcardDelete(t *testing.T) {
	s, root := testServer(t)
	ctx := testContext(t, s)

	for _, name := range []string{"w1.tmp", "w2.tmp", "keep.txt"} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte("x"), 0o644))
	}

	words := make([]byte, 2) // search attributes 0
	data := append([]byte{0x04}, []byte("*.tmp\x00")...)
	_, err := handleDelete(s, ctx, words, data)
	require.NoError(t, err)

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "keep.txt", entries[0].Name())

	// No match reports no such file.
	_, err = handleDelete(s, ctx, words, data)
	assertStatus(t, err, smb.STATUS_NO_SUCH_FILE)
}

func TestShortNames(t *testing.T) {
	assert.Empty(t, shortName("README"))
	assert.Empty(t, shortName("NOTES.TXT"))
	assert.Empty(t, shortName(".."))

	alt := shortName("longfilename.txt")
	require.NotEmpty(t, alt)
	assert.Contains(t, alt, "~")
	assert.True(t, strings.HasSuffix(alt, ".TXT"), alt)
	assert.NotEqual(t, alt, shortName("longfilenamf.txt"))
}

func TestPosixOpenCreates(t *testing.T) {
	s, root := testServer(t)
	ctx := testContext(t, s)
	fs := ctx.tree.share.fs

	data := make([]byte, 18)
	binary.LittleEndian.PutUint32(data[4:8], smb.SMB_O_CREAT|smb.SMB_O_RDWR)
	binary.LittleEndian.PutUint64(data[8:16], 0o640)
	binary.LittleEndian.PutUint16(data[16:18], smb.SMB_QUERY_FILE_UNIX_BASIC)

	require.NoError(t, s.posixOpen(ctx, fs, "new.txt", data))

	st, err := os.Stat(filepath.Join(root, "new.txt"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o640), st.Mode().Perm())

	// Exclusive create on the existing file fails.
	binary.LittleEndian.PutUint32(data[4:8], smb.SMB_O_CREAT|smb.SMB_O_EXCL|smb.SMB_O_RDWR)
	err = s.posixOpen(ctx, fs, "new.txt", data)
	assertStatus(t, err, smb.STATUS_OBJECT_NAME_COLLISION)
}

func TestPosixUnlink(t *testing.T) {
	s, root := testServer(t)
	ctx := testContext(t, s)
	fs := ctx.tree.share.fs

	require.NoError(t, os.WriteFile(filepath.Join(root, "gone.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))

	fileType := make([]byte, 2)
	err := s.posixUnlink(ctx, fs, "sub", fileType)
	assertStatus(t, err, smb.STATUS_FILE_IS_A_DIRECTORY)

	require.NoError(t, s.posixUnlink(ctx, fs, "gone.txt", fileType))
	_, err = os.Stat(filepath.Join(root, "gone.txt"))
	assert.True(t, os.IsNotExist(err))

	dirType := []byte{1, 0}
	ctx.resp = smb.NewResponse(ctx.h, false)
	require.NoError(t, s.posixUnlink(ctx, fs, "sub", dirType))
	_, err = os.Stat(filepath.Join(root, "sub"))
	assert.True(t, os.IsNotExist(err))
}

func TestAccessMaskBlocksWrites(t *testing.T) {
	s, root := testServer(t)
	ctx := testContext(t, s)
	require.NoError(t, os.WriteFile(filepath.Join(root, "ro.txt"), []byte("x"), 0o644))

	// A policy stripped the write rights off this tree connect.
	ctx.tree.maxAccess &^= smb.FILE_WRITE_RIGHTS &^ (smb.READ_CONTROL | smb.SYNCHRONIZE)

	p := &createParams{
		name:        "ro.txt",
		access:      smb.FILE_READ_RIGHTS | smb.FILE_WRITE_RIGHTS,
		shareAccess: smb.FILE_SHARE_ALL,
		disposition: smb.FILE_OPEN,
	}
	_, _, _, _, err := s.openDisk(ctx, p)
	assertStatus(t, err, smb.STATUS_ACCESS_DENIED)

	// Reading stays allowed.
	p.access = smb.FILE_READ_RIGHTS
	fp, _, _, _, err := s.openDisk(ctx, p)
	require.NoError(t, err)
	require.NoError(t, s.closeOpen(ctx.session, fp))

	// So does deleting: the policy kept the delete right.
	p.access = smb.FILE_READ_RIGHTS | smb.DELETE
	fp, _, _, _, err = s.openDisk(ctx, p)
	require.NoError(t, err)
	require.NoError(t, s.closeOpen(ctx.session, fp))
}
