package stores

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
)

// BansStore keeps the set of banned client hosts.
type BansStore struct {
	mu   sync.RWMutex
	dir  string
	bans map[string]struct{}
}

// NewJSONBansStore returns an initialized BansStore.
func NewJSONBansStore(dir string) (*BansStore, error) {
	bs := &BansStore{
		dir:  dir,
		bans: make(map[string]struct{}),
	}
	err := bs.load(dir)
	if err != nil {
		return nil, err
	}
	return bs, nil
}

func (bs *BansStore) load(dir string) error {
	var bans []string
	if js, err := os.ReadFile(filepath.Join(dir, "bans.json")); os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return err
	} else if err := json.Unmarshal(js, &bans); err != nil {
		return err
	}
	for _, ban := range bans {
		bs.bans[ban] = struct{}{}
	}
	return nil
}

// Hosts returns a snapshot of the banned host list.
func (bs *BansStore) Hosts() []string {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	hosts := make([]string, 0, len(bs.bans))
	for host := range bs.bans {
		hosts = append(hosts, host)
	}
	return hosts
}

// IsBanned reports whether the host is banned.
func (bs *BansStore) IsBanned(host string) bool {
	bs.mu.RLock()
	defer bs.mu.RUnlock()
	_, ok := bs.bans[host]
	return ok
}

// Ban adds a host and persists the set.
func (bs *BansStore) Ban(host string) error {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	bs.bans[host] = struct{}{}
	return bs.save()
}

// Unban removes a host and persists the set.
func (bs *BansStore) Unban(host string) error {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	delete(bs.bans, host)
	return bs.save()
}

func (bs *BansStore) save() error {
	bans := make([]string, 0, len(bs.bans))
	for host := range bs.bans {
		bans = append(bans, host)
	}
	js, err := json.MarshalIndent(bans, "", "\t")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(bs.dir, "bans.json"), js, 0600)
}
