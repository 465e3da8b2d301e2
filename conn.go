package main

import (
	"log"
	"net"
	"sync"
	"time"

	"github.com/vstarodubtsev/cifsd/ntlm"
	"github.com/vstarodubtsev/cifsd/smb"
)

const (
	connInitial int = iota
	connNegotiated
	connActive
	connExiting
)

// maxChainDepth bounds an AndX chain. Real clients chain two or three
// commands; anything deeper is hostile.
const maxChainDepth = 8

// connection is one TCP client. PDUs are handled by bounded workers unless
// the session signs, in which case processing is serialized to keep the
// signing sequence aligned with the wire order.
type connection struct {
	server       *server
	conn         net.Conn
	clientName   string
	creationTime time.Time

	mu        sync.Mutex
	phase     int
	maxMpx    uint16
	maxBuffer uint32
	challenge []byte
	exchange  *ntlm.Exchange
	sessions  map[uint16]*session
	nextUID   uint16
	inflight  map[uint16]struct{}
	cancelled map[uint16]struct{}

	sem       chan struct{}
	writeChan chan []byte
	closeChan chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// request is the per-PDU context threaded through the chain walker and the
// handlers. session and tree are carried forward within a chain so that a
// SESSION_SETUP or TREE_CONNECT feeds the commands chained behind it.
type request struct {
	conn    *connection
	msg     []byte
	h       smb.Header
	resp    *smb.Response
	session *session
	tree    *treeConnect
	noReply bool
}

// handlerFunc processes one command body and returns the chain block of the
// request, or noChain for commands that never chain.
type handlerFunc func(s *server, ctx *request, words, data []byte) (smb.AndX, error)

var noChain = smb.AndX{Command: smb.SMB_NO_MORE_ANDX_COMMAND}

type dispatchEntry struct {
	handler     handlerFunc
	phase       int
	needSession bool
	needTree    bool
	large       bool
}

var dispatch = map[uint8]dispatchEntry{
	smb.SMB_COM_NEGOTIATE:          {handler: handleNegotiate, phase: connInitial},
	smb.SMB_COM_SESSION_SETUP_ANDX: {handler: handleSessionSetup, phase: connNegotiated},
	smb.SMB_COM_LOGOFF_ANDX:        {handler: handleLogoff, phase: connActive, needSession: true},
	smb.SMB_COM_TREE_CONNECT_ANDX:  {handler: handleTreeConnect, phase: connActive, needSession: true},
	smb.SMB_COM_TREE_DISCONNECT:    {handler: handleTreeDisconnect, phase: connActive, needSession: true, needTree: true},
	smb.SMB_COM_ECHO:               {handler: handleEcho, phase: connNegotiated},
	smb.SMB_COM_PROCESS_EXIT:       {handler: handleProcessExit, phase: connActive, needSession: true},

	smb.SMB_COM_NT_CREATE_ANDX: {handler: handleNTCreate, phase: connActive, needSession: true, needTree: true},
	smb.SMB_COM_OPEN_ANDX:      {handler: handleOpenAndX, phase: connActive, needSession: true, needTree: true},
	smb.SMB_COM_CLOSE:          {handler: handleClose, phase: connActive, needSession: true, needTree: true},
	smb.SMB_COM_FLUSH:          {handler: handleFlush, phase: connActive, needSession: true},

	smb.SMB_COM_READ_ANDX:    {handler: handleReadAndX, phase: connActive, needSession: true, needTree: true, large: true},
	smb.SMB_COM_WRITE:        {handler: handleWrite, phase: connActive, needSession: true, needTree: true},
	smb.SMB_COM_WRITE_ANDX:   {handler: handleWriteAndX, phase: connActive, needSession: true, needTree: true},
	smb.SMB_COM_LOCKING_ANDX: {handler: handleLockingAndX, phase: connActive, needSession: true, needTree: true},

	smb.SMB_COM_CREATE_DIRECTORY:       {handler: handleCreateDirectory, phase: connActive, needSession: true, needTree: true},
	smb.SMB_COM_DELETE_DIRECTORY:       {handler: handleDeleteDirectory, phase: connActive, needSession: true, needTree: true},
	smb.SMB_COM_CHECK_DIRECTORY:        {handler: handleCheckDirectory, phase: connActive, needSession: true, needTree: true},
	smb.SMB_COM_DELETE:                 {handler: handleDelete, phase: connActive, needSession: true, needTree: true},
	smb.SMB_COM_RENAME:                 {handler: handleRename, phase: connActive, needSession: true, needTree: true},
	smb.SMB_COM_NT_RENAME:              {handler: handleNTRename, phase: connActive, needSession: true, needTree: true},
	smb.SMB_COM_QUERY_INFORMATION:      {handler: handleQueryInformation, phase: connActive, needSession: true, needTree: true},
	smb.SMB_COM_SET_INFORMATION:        {handler: handleSetInformation, phase: connActive, needSession: true, needTree: true},
	smb.SMB_COM_QUERY_INFORMATION2:     {handler: handleQueryInformation2, phase: connActive, needSession: true, needTree: true},
	smb.SMB_COM_SET_INFORMATION2:       {handler: handleSetInformation2, phase: connActive, needSession: true, needTree: true},
	smb.SMB_COM_QUERY_INFORMATION_DISK: {handler: handleQueryInformationDisk, phase: connActive, needSession: true, needTree: true},
	smb.SMB_COM_FIND_CLOSE2:            {handler: handleFindClose2, phase: connActive, needSession: true},

	smb.SMB_COM_TRANSACTION:  {handler: handleTransaction, phase: connActive, needSession: true, needTree: true, large: true},
	smb.SMB_COM_TRANSACTION2: {handler: handleTransaction2, phase: connActive, needSession: true, needTree: true, large: true},
	smb.SMB_COM_NT_TRANSACT:  {handler: handleNTTransact, phase: connActive, needSession: true, needTree: true, large: true},
}

// serve is the connection read loop. It runs on the accept goroutine and
// returns when the client disconnects or sends garbage.
func (c *connection) serve() {
	s := c.server
	defer s.closeConnection(c)

	for {
		msg, err := readMessage(c.conn)
		if err != nil {
			select {
			case <-c.closeChan:
			default:
				s.debugf("connection %s: %v", c.clientName, err)
			}
			c.wg.Wait()
			return
		}

		s.mu.Lock()
		s.stats.bytesRcvd += uint64(len(msg))
		s.mu.Unlock()

		h := smb.Header(msg)
		if err := h.Validate(); err != nil {
			log.Printf("Dropping connection %s: %v\n", c.clientName, err)
			c.wg.Wait()
			return
		}

		if h.Command() == smb.SMB_COM_NT_CANCEL {
			c.cancel(h.MID())
			continue
		}

		ss, _ := c.findSession(h.UID())
		if ss != nil && ss.signer != nil {
			// Signing couples the sequence counter to the wire order
			// of requests and responses, so signed traffic is handled
			// inline instead of on a worker.
			if !ss.signer.Verify(msg) {
				log.Printf("Bad signature from %s, dropping connection\n", c.clientName)
				c.wg.Wait()
				return
			}
			c.handleMessage(msg, ss)
			continue
		}

		select {
		case c.sem <- struct{}{}:
		case <-c.closeChan:
			c.wg.Wait()
			return
		}
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			defer func() { <-c.sem }()
			c.handleMessage(msg, ss)
		}()
	}
}

// handleMessage walks the AndX chain of one PDU and sends the response.
func (c *connection) handleMessage(msg []byte, ss *session) {
	h := smb.Header(msg)
	mid := h.MID()
	c.beginRequest(mid)

	ctx := &request{
		conn:    c,
		msg:     msg,
		h:       h,
		resp:    smb.NewResponse(h, false),
		session: ss,
	}
	if ss != nil {
		ss.touch()
		if tc, ok := ss.findTree(h.TID()); ok {
			ctx.tree = tc
		}
	}

	c.walkChain(ctx)

	if c.endRequest(mid) || ctx.noReply {
		return
	}
	if ctx.session != nil && ctx.session.signer != nil {
		ctx.session.signer.Sign(ctx.resp.Bytes())
	}
	c.send(ctx.resp.Bytes())
}

// walkChain runs the first command of the PDU and every command chained
// behind it, patching the response AndX blocks as it goes.
func (c *connection) walkChain(ctx *request) {
	cmd := ctx.h.Command()
	off := smb.HeaderSize

	for depth := 0; depth < maxChainDepth; depth++ {
		entry, ok := dispatch[cmd]
		if !ok {
			c.server.debugf("unsupported command 0x%02x from %s", cmd, c.clientName)
			ctx.resp.PutError(smb.STATUS_NOT_IMPLEMENTED)
			return
		}
		if status := c.checkDispatch(ctx, entry); status != smb.STATUS_OK {
			ctx.resp.PutError(status)
			return
		}

		words, data, err := smb.Body(ctx.msg, off)
		if err != nil {
			ctx.resp.PutError(smb.STATUS_INVALID_PARAMETER)
			return
		}
		if entry.large {
			ctx.resp.Grow()
		}

		next, err := entry.handler(c.server, ctx, words, data)
		if err != nil {
			ctx.resp.PutError(smb.NTStatus(err))
			return
		}
		if !next.HasNext() {
			return
		}

		// Chain offsets must move forward through the PDU.
		if int(next.Offset) <= off || int(next.Offset) >= len(ctx.msg) {
			ctx.resp.PutError(smb.STATUS_INVALID_PARAMETER)
			return
		}
		ctx.resp.SetAndX(next.Command, uint16(ctx.resp.Len()))
		ctx.resp.AdvanceBody()
		cmd = next.Command
		off = int(next.Offset)
	}

	ctx.resp.PutError(smb.STATUS_INSUFFICIENT_RESOURCES)
}

// checkDispatch enforces the phase machine and the session/tree
// requirements of one command.
func (c *connection) checkDispatch(ctx *request, entry dispatchEntry) uint32 {
	c.mu.Lock()
	phase := c.phase
	c.mu.Unlock()

	if phase == connExiting {
		return smb.STATUS_INVALID_DEVICE_REQUEST
	}
	if phase < entry.phase {
		return smb.STATUS_INVALID_DEVICE_REQUEST
	}
	if entry.needSession && ctx.session == nil {
		return smb.STATUS_USER_SESSION_DELETED
	}
	if entry.needTree && ctx.tree == nil {
		return smb.STATUS_BAD_NETWORK_NAME
	}
	return smb.STATUS_OK
}

// beginRequest registers an in-flight MID for NT_CANCEL tracking.
func (c *connection) beginRequest(mid uint16) {
	c.mu.Lock()
	c.inflight[mid] = struct{}{}
	c.mu.Unlock()
}

// endRequest retires the MID and reports whether it was cancelled, in which
// case no response is sent.
func (c *connection) endRequest(mid uint16) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, mid)
	_, cancelled := c.cancelled[mid]
	delete(c.cancelled, mid)
	return cancelled
}

// cancel marks an in-flight request no-response. NT_CANCEL itself is never
// answered.
func (c *connection) cancel(mid uint16) {
	c.mu.Lock()
	if _, ok := c.inflight[mid]; ok {
		c.cancelled[mid] = struct{}{}
	}
	c.mu.Unlock()
}

// send queues one encoded message for the writer goroutine.
func (c *connection) send(msg []byte) {
	select {
	case c.writeChan <- msg:
	case <-c.closeChan:
	}
}

// sendResponses is the connection writer goroutine: it owns the socket for
// writing and keeps the sent-bytes counter.
func (c *connection) sendResponses() {
	for {
		select {
		case msg := <-c.writeChan:
			if err := writeMessage(c.conn, msg); err != nil {
				c.server.debugf("connection %s write: %v", c.clientName, err)
				c.server.closeConnection(c)
				return
			}
			c.server.mu.Lock()
			c.server.stats.bytesSent += uint64(len(msg))
			c.server.mu.Unlock()
		case <-c.closeChan:
			return
		}
	}
}

// setPhase advances the connection phase machine.
func (c *connection) setPhase(phase int) {
	c.mu.Lock()
	if c.phase < phase {
		c.phase = phase
	}
	c.mu.Unlock()
}

// isStale reports whether the connection has no sessions and has been quiet
// long enough to reap.
func (c *connection) isStale() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sessions) == 0 && time.Since(c.creationTime) > time.Hour
}
