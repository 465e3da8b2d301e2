package stores

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

type account struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type persistData struct {
	Accounts []account `json:"accounts"`
}

// AccountStore represents a username-password database.
type AccountStore struct {
	mu       sync.RWMutex
	dir      string
	accounts map[string]string
}

// NewJSONAccountStore returns an initialized AccountStore.
func NewJSONAccountStore(dir string) (*AccountStore, error) {
	as := &AccountStore{
		dir:      dir,
		accounts: make(map[string]string),
	}
	err := as.load(dir)
	if err != nil {
		return nil, err
	}
	return as, nil
}

func (as *AccountStore) load(dir string) error {
	var p persistData
	if js, err := os.ReadFile(filepath.Join(dir, "accounts.json")); os.IsNotExist(err) {
		return nil
	} else if err != nil {
		return err
	} else if err := json.Unmarshal(js, &p); err != nil {
		return err
	}
	for _, a := range p.Accounts {
		as.accounts[strings.ToLower(a.Username)] = a.Password
	}
	return nil
}

// Accounts returns a snapshot of the username-password map.
func (as *AccountStore) Accounts() map[string]string {
	as.mu.RLock()
	defer as.mu.RUnlock()
	m := make(map[string]string, len(as.accounts))
	for u, p := range as.accounts {
		m[u] = p
	}
	return m
}

// Has reports whether the user exists.
func (as *AccountStore) Has(username string) bool {
	as.mu.RLock()
	defer as.mu.RUnlock()
	_, ok := as.accounts[strings.ToLower(username)]
	return ok
}

// Add registers or updates an account and persists the store.
func (as *AccountStore) Add(username, password string) error {
	as.mu.Lock()
	defer as.mu.Unlock()
	as.accounts[strings.ToLower(username)] = password
	return as.save()
}

// Remove deletes an account and persists the store. It reports whether the
// account existed.
func (as *AccountStore) Remove(username string) (bool, error) {
	as.mu.Lock()
	defer as.mu.Unlock()
	username = strings.ToLower(username)
	if _, ok := as.accounts[username]; !ok {
		return false, nil
	}
	delete(as.accounts, username)
	return true, as.save()
}

func (as *AccountStore) save() error {
	var p persistData
	for u, pw := range as.accounts {
		p.Accounts = append(p.Accounts, account{Username: u, Password: pw})
	}
	js, err := json.MarshalIndent(p, "", "\t")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(as.dir, "accounts.json"), js, 0600)
}
