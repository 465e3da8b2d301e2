package stores

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Share describes one exported directory.
type Share struct {
	Name     string   `yaml:"name"`
	Path     string   `yaml:"path"`
	Remark   string   `yaml:"remark,omitempty"`
	Writable bool     `yaml:"writable"`
	Users    []string `yaml:"users,omitempty"` // empty allows every account
}

// Allows reports whether the named user may connect to the share.
func (s Share) Allows(user string) bool {
	if len(s.Users) == 0 {
		return true
	}
	for _, u := range s.Users {
		if strings.EqualFold(u, user) {
			return true
		}
	}
	return false
}

type sharesData struct {
	Shares []Share `yaml:"shares,omitempty"`
}

// SharesStore holds the share definitions read from shares.yml.
type SharesStore struct {
	mu     sync.RWMutex
	dir    string
	shares []Share
}

// NewSharesStore loads the share definitions from the given directory.
func NewSharesStore(dir string) (*SharesStore, error) {
	path := filepath.Join(dir, "shares.yml")
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)

	var sd sharesData
	if err := dec.Decode(&sd); err != nil {
		return nil, err
	}

	return &SharesStore{dir: dir, shares: sd.Shares}, nil
}

// Shares returns a snapshot of the share list.
func (ss *SharesStore) Shares() []Share {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	return append([]Share(nil), ss.shares...)
}

// Get looks a share up by name, case-insensitively.
func (ss *SharesStore) Get(name string) (Share, bool) {
	ss.mu.RLock()
	defer ss.mu.RUnlock()
	for _, s := range ss.shares {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return Share{}, false
}

// Register adds or replaces a share and persists the list.
func (ss *SharesStore) Register(s Share) error {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	for i := range ss.shares {
		if strings.EqualFold(ss.shares[i].Name, s.Name) {
			ss.shares[i] = s
			return ss.save()
		}
	}
	ss.shares = append(ss.shares, s)
	return ss.save()
}

// Unregister removes a share and persists the list. It reports whether the
// share existed.
func (ss *SharesStore) Unregister(name string) (bool, error) {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	for i := range ss.shares {
		if strings.EqualFold(ss.shares[i].Name, name) {
			ss.shares = append(ss.shares[:i], ss.shares[i+1:]...)
			return true, ss.save()
		}
	}
	return false, nil
}

func (ss *SharesStore) save() error {
	data, err := yaml.Marshal(sharesData{Shares: ss.shares})
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(ss.dir, "shares.yml"), data, 0600)
}
