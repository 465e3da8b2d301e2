package vfs

import (
	"io"
	"os"
	"path"
	"strings"
)

// direntBatch is how many entries one readdir pass pulls in.
const direntBatch = 128

// DirScanner walks one directory incrementally, batch by batch, so a
// search can stay open across FindFirst and FindNext exchanges.
type DirScanner struct {
	fs      *FS
	smbPath string
	file    *os.File
	pending []os.DirEntry
	eof     bool
	dotSent int
}

// OpenDir starts a scan of a share directory. The synthetic "." and ".."
// entries come first, as clients expect them in listings.
func (fs *FS) OpenDir(name string) (*DirScanner, error) {
	local, err := fs.Resolve(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(local)
	if err != nil {
		return nil, err
	}
	return &DirScanner{fs: fs, smbPath: name, file: f}, nil
}

// Next returns the stat of the next entry, or io.EOF at the end of the
// directory. Entries that vanish between the readdir and the stat are
// skipped.
func (s *DirScanner) Next() (*Stat, error) {
	for {
		name, err := s.nextName()
		if err != nil {
			return nil, err
		}
		st, err := s.fs.statLocal(path.Join(s.file.Name(), name))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		st.Name = name
		return st, nil
	}
}

func (s *DirScanner) nextName() (string, error) {
	if s.dotSent < 2 {
		s.dotSent++
		if s.dotSent == 1 {
			return ".", nil
		}
		return "..", nil
	}
	for len(s.pending) == 0 {
		if s.eof {
			return "", io.EOF
		}
		batch, err := s.file.ReadDir(direntBatch)
		if err == io.EOF || len(batch) == 0 {
			s.eof = true
			continue
		}
		if err != nil {
			return "", err
		}
		s.pending = batch
	}
	name := s.pending[0].Name()
	s.pending = s.pending[1:]
	return name, nil
}

// Close releases the directory handle.
func (s *DirScanner) Close() error {
	return s.file.Close()
}

// MatchPattern tests a name against an SMB search pattern,
// case-insensitively. Besides * and ?, the DOS-era specials map to their
// modern forms: < is *, > is ?, and " matches a dot or the end of the
// name.
func MatchPattern(name, pattern string) bool {
	if pattern == "" || pattern == "*" || pattern == "*.*" {
		return true
	}
	return matchFold(strings.ToLower(name), strings.ToLower(pattern))
}

func matchFold(name, pattern string) bool {
	for len(pattern) > 0 {
		switch pattern[0] {
		case '*', '<':
			if matchFold(name, pattern[1:]) {
				return true
			}
			if len(name) == 0 {
				return false
			}
			name = name[1:]
		case '?', '>':
			if len(name) == 0 {
				return false
			}
			name = name[1:]
			pattern = pattern[1:]
		case '"':
			if len(name) == 0 {
				pattern = pattern[1:]
				continue
			}
			if name[0] != '.' {
				return false
			}
			name = name[1:]
			pattern = pattern[1:]
		default:
			if len(name) == 0 || name[0] != pattern[0] {
				return false
			}
			name = name[1:]
			pattern = pattern[1:]
		}
	}
	return len(name) == 0
}
