package main

import (
	"errors"
	"time"

	"github.com/vstarodubtsev/cifsd/api"
	"github.com/vstarodubtsev/cifsd/stores"
)

// controlBackend glues the HTTP control surface to the server and its
// persistent stores.
type controlBackend struct {
	srv      *server
	shares   *stores.SharesStore
	accounts *stores.AccountStore
}

func (cb *controlBackend) Stats() api.Stats {
	s := cb.srv
	s.mu.Lock()
	defer s.mu.Unlock()
	return api.Stats{
		Uptime:         time.Since(s.stats.start),
		Connections:    len(s.connectionList),
		Sessions:       s.stats.sOpens,
		OpenFiles:      s.stats.fOpens,
		PasswordErrors: s.stats.pwErrors,
		BytesSent:      s.stats.bytesSent,
		BytesReceived:  s.stats.bytesRcvd,
	}
}

// Config returns the running configuration with the secrets blanked.
func (cb *controlBackend) Config() stores.Config {
	cfg := cb.srv.cfg
	cfg.APIPassword = ""
	cfg.Database.Password = ""
	return cfg
}

func (cb *controlBackend) Connections() []api.ConnectionInfo {
	s := cb.srv
	s.mu.Lock()
	conns := make([]*connection, 0, len(s.connectionList))
	for _, c := range s.connectionList {
		conns = append(conns, c)
	}
	s.mu.Unlock()

	infos := make([]api.ConnectionInfo, 0, len(conns))
	for _, c := range conns {
		c.mu.Lock()
		infos = append(infos, api.ConnectionInfo{
			Client:   c.clientName,
			Since:    c.creationTime,
			Sessions: len(c.sessions),
		})
		c.mu.Unlock()
	}
	return infos
}

func (cb *controlBackend) Shares() []stores.Share {
	return cb.shares.Shares()
}

func (cb *controlBackend) RegisterShare(sh stores.Share) error {
	if err := cb.shares.Register(sh); err != nil {
		return err
	}
	cb.srv.unregisterShare(sh.Name)
	return cb.srv.registerShare(sh)
}

func (cb *controlBackend) UnregisterShare(name string) (bool, error) {
	found, err := cb.shares.Unregister(name)
	if err != nil {
		return found, err
	}
	cb.srv.unregisterShare(name)
	return found, nil
}

func (cb *controlBackend) Accounts() []string {
	m := cb.accounts.Accounts()
	names := make([]string, 0, len(m))
	for u := range m {
		names = append(names, u)
	}
	return names
}

func (cb *controlBackend) AddAccount(username, password string) error {
	if err := cb.accounts.Add(username, password); err != nil {
		return err
	}
	if cb.srv.db != nil {
		if err := cb.srv.db.AddAccount(username, password); err != nil {
			return err
		}
	}
	cb.srv.auth.AddAccount(username, password)
	return nil
}

func (cb *controlBackend) RemoveAccount(username string) (bool, error) {
	found, err := cb.accounts.Remove(username)
	if err != nil {
		return found, err
	}
	if cb.srv.db != nil {
		if err := cb.srv.db.RemoveAccount(username); err != nil {
			return found, err
		}
	}
	cb.srv.auth.RemoveAccount(username)
	return found, nil
}

func (cb *controlBackend) SetPolicy(ar stores.AccessRights) error {
	if cb.srv.db == nil {
		return errors.New("no database backend configured")
	}
	return cb.srv.db.SetAccessRights(ar)
}

func (cb *controlBackend) RemovePolicy(shareName, username string) error {
	if cb.srv.db == nil {
		return errors.New("no database backend configured")
	}
	return cb.srv.db.RemoveAccessRights(shareName, username)
}

func (cb *controlBackend) Bans() []string {
	return cb.srv.bans.Hosts()
}

func (cb *controlBackend) Ban(host string) error {
	cb.srv.blockHost(host, "banned by operator")
	return nil
}

func (cb *controlBackend) Unban(host string) error {
	return cb.srv.bans.Unban(host)
}

func (cb *controlBackend) SetCaseless(on bool) {
	cb.srv.setCaseless(on)
}

func (cb *controlBackend) SetDebug(on bool) {
	cb.srv.setDebug(on)
}
