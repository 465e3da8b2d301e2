package vfs

import (
	"errors"
	"os"
	"path"
	"strings"
)

// resolveCaseless resolves cleaned under the root one component at a
// time. A component that does not exist verbatim is retried against a
// single directory scan of its parent, matching case-insensitively. An
// unmatched component is kept as written so the caller sees the usual
// not-exist error.
func (fs *FS) resolveCaseless(cleaned string) (string, error) {
	local := fs.root
	for _, comp := range strings.Split(cleaned, "/") {
		next := path.Join(local, comp)
		if _, err := os.Lstat(next); err == nil || !errors.Is(err, os.ErrNotExist) {
			local = next
			continue
		}
		match, err := matchCaseless(local, comp)
		if err != nil || match == "" {
			local = next
			continue
		}
		local = path.Join(local, match)
	}
	return local, nil
}

// matchCaseless scans dir for a name equal to want under Unicode case
// folding. The first match wins.
func matchCaseless(dir, want string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	for _, e := range entries {
		if strings.EqualFold(e.Name(), want) {
			return e.Name(), nil
		}
	}
	return "", nil
}
