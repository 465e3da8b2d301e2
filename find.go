package main

import (
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/vstarodubtsev/cifsd/smb"
	"github.com/vstarodubtsev/cifsd/vfs"
)

// search is one directory enumeration held open between FindFirst2 and
// FindNext2 exchanges. pending holds the entry that did not fit in the
// last response block; it opens the next batch.
type search struct {
	id      uint16
	tree    *treeConnect
	pattern string
	attrs   uint16
	scanner *vfs.DirScanner
	pending *vfs.Stat
}

func (sr *search) close() {
	if sr.scanner != nil {
		sr.scanner.Close()
		sr.scanner = nil
	}
}

// wanted applies the DOS search-attribute inclusion bits: hidden, system
// and directory entries only appear when the corresponding bit is set.
func (sr *search) wanted(st *vfs.Stat) bool {
	if !vfs.MatchPattern(st.Name, sr.pattern) {
		return false
	}
	if st.DosAttrs&vfs.AttrHidden > 0 && sr.attrs&vfs.AttrHidden == 0 {
		return false
	}
	if st.DosAttrs&vfs.AttrSystem > 0 && sr.attrs&vfs.AttrSystem == 0 {
		return false
	}
	if st.IsDir() && sr.attrs&vfs.AttrDir == 0 {
		return false
	}
	return true
}

// next returns the next matching entry, or io.EOF when the scan is done.
func (sr *search) next() (*vfs.Stat, error) {
	if sr.pending != nil {
		st := sr.pending
		sr.pending = nil
		return st, nil
	}
	for {
		st, err := sr.scanner.Next()
		if err != nil {
			return nil, err
		}
		if sr.wanted(st) {
			return st, nil
		}
	}
}

func findEntryFromStat(st *vfs.Stat) *smb.FindEntry {
	return &smb.FindEntry{
		Name:           st.Name,
		ShortName:      shortName(st.Name),
		CreationTime:   st.CreationTime,
		LastAccessTime: st.Atime,
		LastWriteTime:  st.Mtime,
		ChangeTime:     st.Ctime,
		EndOfFile:      st.Size,
		AllocationSize: st.AllocSize,
		FileAttributes: st.DosAttrs,
		FileID:         st.Ino,
	}
}

// dos83Special are the characters an 8.3 name may not carry.
const dos83Special = " +,;=[]."

// fitsDos83 reports whether the name already is a valid upper-case 8.3
// name, in which case no alias is needed.
func fitsDos83(name string) bool {
	if strings.Count(name, ".") > 1 {
		return false
	}
	base, ext, _ := strings.Cut(name, ".")
	if base == "" || len(base) > 8 || len(ext) > 3 {
		return false
	}
	for _, r := range name {
		if r >= 'a' && r <= 'z' || r > 0x7f {
			return false
		}
		if r != '.' && strings.ContainsRune(dos83Special, r) {
			return false
		}
	}
	return true
}

// shortName derives an 8.3 alias for a long name: up to five filtered
// upper-case characters, a tilde and a checksum over the full name. Names
// that already fit the old format get no alias.
func shortName(name string) string {
	if name == "." || name == ".." || fitsDos83(name) {
		return ""
	}
	var csum uint16
	for i := 0; i < len(name); i++ {
		csum = csum<<1 + csum>>15 + uint16(name[i])
	}
	dot := strings.LastIndexByte(name, '.')
	base, ext := name, ""
	if dot > 0 {
		base, ext = name[:dot], name[dot+1:]
	}
	var b strings.Builder
	for _, r := range strings.ToUpper(base) {
		if b.Len() >= 5 {
			break
		}
		if r <= 0x7f && !strings.ContainsRune(dos83Special, r) {
			b.WriteRune(r)
		}
	}
	short := fmt.Sprintf("%s~%02X", b.String(), csum&0xff)
	if ext != "" {
		var e strings.Builder
		for _, r := range strings.ToUpper(ext) {
			if e.Len() >= 3 {
				break
			}
			if r <= 0x7f && !strings.ContainsRune(dos83Special, r) {
				e.WriteRune(r)
			}
		}
		if e.Len() > 0 {
			short += "." + e.String()
		}
	}
	return short
}

// fillFindBuffer pulls entries from the search into the response block
// until the block is full, the requested count is reached or the scan
// ends. It reports whether the end of the search was hit.
func fillFindBuffer(sr *search, fb *smb.FindBuffer, limit int) (bool, error) {
	for fb.Count() < limit {
		st, err := sr.next()
		if errors.Is(err, io.EOF) {
			return true, nil
		}
		if err != nil {
			return false, err
		}
		if err := fb.Add(findEntryFromStat(st)); err != nil {
			if errors.Is(err, smb.ErrBufferFull) {
				sr.pending = st
				return false, nil
			}
			return false, err
		}
	}
	return false, nil
}

func findLimit(count uint16) int {
	if count == 0 {
		return maxSessionFids
	}
	return int(count)
}

func trans2FindFirst(s *server, ctx *request, treq *smb.TransRequest) error {
	fs, err := diskFS(ctx)
	if err != nil {
		return err
	}
	var p smb.FindFirstParams
	if err := p.Decode(ctx.h, treq.Parameters); err != nil {
		return err
	}

	cleaned, err := vfs.Clean(p.Pattern)
	if err != nil {
		return err
	}
	dir, pattern := path.Split(cleaned)
	if dir == "" {
		dir = "."
	}
	if pattern == "" {
		pattern = "*"
	}

	scanner, err := fs.OpenDir(dir)
	if err != nil {
		return err
	}

	sr := &search{
		tree:    ctx.tree,
		pattern: pattern,
		attrs:   p.SearchAttributes,
		scanner: scanner,
	}

	fb := smb.NewFindBuffer(p.InformationLevel, ctx.h.IsUnicode(), int(treq.MaxDataCount))
	end, err := fillFindBuffer(sr, fb, findLimit(p.SearchCount))
	if err != nil {
		sr.close()
		if errors.Is(err, smb.ErrWrongArgument) {
			return smb.Status(smb.STATUS_INVALID_LEVEL).Err()
		}
		return err
	}
	if fb.Count() == 0 {
		sr.close()
		return smb.Status(smb.STATUS_NO_SUCH_FILE).Err()
	}

	keepOpen := !end && p.Flags&smb.SMB_SEARCH_CLOSE_AFTER_REQUEST == 0
	if end && p.Flags&smb.SMB_SEARCH_CLOSE_AT_END == 0 &&
		p.Flags&smb.SMB_SEARCH_CLOSE_AFTER_REQUEST == 0 {
		// The client may still issue FindNext2 against a drained scan.
		keepOpen = true
	}

	var sid uint16
	if keepOpen {
		sid = ctx.session.registerSearch(sr)
	} else {
		sr.close()
	}

	rp := smb.FindFirstResultParams{
		SearchID:       sid,
		SearchCount:    uint16(fb.Count()),
		EndOfSearch:    end,
		LastNameOffset: fb.LastNameOffset(),
	}
	tr := smb.TransResponse{Parameters: rp.Encode(), Data: fb.Bytes()}
	return tr.Encode(ctx.resp)
}

func trans2FindNext(s *server, ctx *request, treq *smb.TransRequest) error {
	var p smb.FindNextParams
	if err := p.Decode(ctx.h, treq.Parameters); err != nil {
		return err
	}

	sr, ok := ctx.session.findSearch(p.SearchID)
	if !ok {
		return smb.Status(smb.STATUS_INVALID_HANDLE).Err()
	}

	fb := smb.NewFindBuffer(p.InformationLevel, ctx.h.IsUnicode(), int(treq.MaxDataCount))
	end, err := fillFindBuffer(sr, fb, findLimit(p.SearchCount))
	if err != nil {
		if errors.Is(err, smb.ErrWrongArgument) {
			return smb.Status(smb.STATUS_INVALID_LEVEL).Err()
		}
		return err
	}

	if end && p.Flags&smb.SMB_SEARCH_CLOSE_AT_END > 0 ||
		p.Flags&smb.SMB_SEARCH_CLOSE_AFTER_REQUEST > 0 {
		ctx.session.closeSearch(p.SearchID)
	}

	rp := smb.FindNextResultParams{
		SearchCount:    uint16(fb.Count()),
		EndOfSearch:    end,
		LastNameOffset: fb.LastNameOffset(),
	}
	tr := smb.TransResponse{Parameters: rp.Encode(), Data: fb.Bytes()}
	return tr.Encode(ctx.resp)
}
