package main

import (
	"log"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vstarodubtsev/cifsd/acl"
	"github.com/vstarodubtsev/cifsd/fidtable"
	"github.com/vstarodubtsev/cifsd/ntlm"
	"github.com/vstarodubtsev/cifsd/rpc"
	"github.com/vstarodubtsev/cifsd/smb"
	"github.com/vstarodubtsev/cifsd/stores"
	"github.com/vstarodubtsev/cifsd/vfs"
)

type serverStats struct {
	start     time.Time
	fOpens    uint32
	sOpens    uint32
	pwErrors  uint32
	bytesSent uint64
	bytesRcvd uint64
}

// server is the aggregate root: every share, connection, session and
// persistent open hangs off it. There is no package-level state.
type server struct {
	cfg        stores.Config
	serverGuid uuid.UUID
	listener   net.Listener

	auth  *ntlm.Server
	pipes *rpc.Backend
	bans  *stores.BansStore
	ids   acl.Resolver
	db    *stores.Database // nil without a database backend

	locks      *vfs.LockRegistry
	inodes     *mfileRegistry
	persistent *fidtable.Table[*durableState]

	mu                 sync.Mutex
	enabled            bool
	debug              bool
	caseless           bool
	stats              serverStats
	shareList          map[string]*share
	connectionList     map[string]*connection
	connectionCount    map[string]int
	globalSessionTable map[uint64]*session
}

func newServer(l net.Listener, cfg stores.Config, auth *ntlm.Server, bans *stores.BansStore) *server {
	s := &server{
		cfg:                cfg,
		serverGuid:         uuid.New(),
		listener:           l,
		auth:               auth,
		bans:               bans,
		ids:                acl.NewCachingResolver(acl.LocalResolver{}),
		locks:              vfs.NewLockRegistry(),
		inodes:             newMfileRegistry(),
		persistent:         fidtable.New[*durableState](maxPersistentIDs),
		enabled:            true,
		caseless:           cfg.CaselessSearch,
		shareList:          make(map[string]*share),
		connectionList:     make(map[string]*connection),
		connectionCount:    make(map[string]int),
		globalSessionTable: make(map[uint64]*session),
	}
	s.stats.start = time.Now()
	s.pipes = rpc.NewBackend(cfg.ServerName, cfg.Workgroup, s.shareInfo)
	return s
}

// shareInfo snapshots the share list for the srvsvc pipe backend.
func (s *server) shareInfo() []rpc.ShareInfo {
	s.mu.Lock()
	defer s.mu.Unlock()

	infos := make([]rpc.ShareInfo, 0, len(s.shareList)+1)
	for _, sh := range s.shareList {
		infos = append(infos, rpc.ShareInfo{
			Name:    sh.name,
			Type:    rpc.STYPE_DISKTREE,
			Comment: sh.remark,
		})
	}
	infos = append(infos, rpc.ShareInfo{
		Name:    "IPC$",
		Type:    rpc.STYPE_IPC | rpc.STYPE_HIDDEN,
		Comment: "IPC Service",
	})
	return infos
}

func (s *server) newConnection(conn net.Conn) *connection {
	c := &connection{
		server:       s,
		conn:         conn,
		clientName:   conn.RemoteAddr().String(),
		creationTime: time.Now(),
		phase:        connInitial,
		maxMpx:       smb.MaxMpxCount,
		sessions:     make(map[uint16]*session),
		inflight:     make(map[uint16]struct{}),
		cancelled:    make(map[uint16]struct{}),
		writeChan:    make(chan []byte),
		closeChan:    make(chan struct{}),
	}
	c.sem = make(chan struct{}, c.maxMpx)

	s.mu.Lock()
	s.connectionList[c.clientName] = c
	s.mu.Unlock()

	go c.sendResponses()

	return c
}

func (s *server) closeConnection(c *connection) {
	c.closeOnce.Do(func() { close(c.closeChan) })
	c.conn.Close()

	c.mu.Lock()
	c.phase = connExiting
	sessions := make([]*session, 0, len(c.sessions))
	for _, ss := range c.sessions {
		sessions = append(sessions, ss)
	}
	c.mu.Unlock()

	for _, ss := range sessions {
		s.deregisterSession(ss)
	}

	s.mu.Lock()
	delete(s.connectionList, c.clientName)
	s.mu.Unlock()
}

// setCaseless flips caseless path resolution on every share.
func (s *server) setCaseless(on bool) {
	s.mu.Lock()
	s.caseless = on
	for _, sh := range s.shareList {
		sh.fs.SetCaseless(on)
	}
	s.mu.Unlock()
}

func (s *server) setDebug(on bool) {
	s.mu.Lock()
	s.debug = on
	s.mu.Unlock()
}

// debugf logs only when the debug flag is on.
func (s *server) debugf(format string, v ...any) {
	s.mu.Lock()
	on := s.debug
	s.mu.Unlock()
	if on {
		log.Printf(format, v...)
	}
}

func (s *server) requireSigning() bool {
	return s.cfg.RequireSigning
}
