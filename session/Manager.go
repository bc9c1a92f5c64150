/*
File Name:  Manager.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

Session subsystem entry point (spec §4.4, §5). Manager owns the TCP
listener and the shared contact->connection index (byContact); that
index is read and mutated only through the Manager's worker, the
single-owner event loop for this subsystem, so no lock is needed around it.
Per-connection state (handshake, queue, reassembly) belongs to the
Connection itself and is touched only by its own goroutines.
*/

package session

import (
	"net"

	hcrypto "github.com/hsha/lanshare/crypto"
	"github.com/hsha/lanshare/worker"
)

// Manager accepts inbound sessions and dials outbound ones.
type Manager struct {
	identity *hcrypto.Identity
	worker   *worker.Worker

	byContact map[[32]byte]*Connection
	listener  net.Listener

	IsKnownContact IsKnownContact
	OnConnect      func(peerPub [32]byte, known, ok bool)
	OnRecord       func(peerPub [32]byte, plaintext []byte)
	Log            func(module, format string, v ...interface{})
}

// NewManager binds the session listener and starts accepting.
func NewManager(identity *hcrypto.Identity) (*Manager, error) {
	ln, err := net.Listen("tcp4", "0.0.0.0:8890")
	if err != nil {
		return nil, err
	}
	m := &Manager{
		identity:  identity,
		worker:    worker.New(64),
		byContact: make(map[[32]byte]*Connection),
		listener:  ln,
	}
	go m.acceptLoop()
	return m, nil
}

func (m *Manager) acceptLoop() {
	for {
		conn, err := m.listener.Accept()
		if err != nil {
			return // listener closed
		}
		go m.handleAccept(conn)
	}
}

func (m *Manager) handleAccept(rawConn net.Conn) {
	c, known, err := acceptServer(rawConn, m.identity, m.IsKnownContact)
	if err != nil {
		rawConn.Close()
		return
	}
	m.register(c, known)
}

// Dial connects to a peer at addr and performs the client handshake.
func (m *Manager) Dial(addr string) (*Connection, error) {
	rawConn, err := net.Dial("tcp4", addr)
	if err != nil {
		return nil, err
	}
	c, err := dialClient(rawConn, m.identity)
	if err != nil {
		rawConn.Close()
		return nil, err
	}
	m.register(c, true)
	return c, nil
}

// register installs a completed Connection into the shared index (via
// the session worker) and starts its reader/writer goroutines.
func (m *Manager) register(c *Connection, known bool) {
	c.queue = newSendQueue(nil)
	c.log = m.Log
	c.onRecord = func(plaintext []byte) {
		if m.OnRecord != nil {
			m.OnRecord(c.peerPub, plaintext)
		}
	}
	c.onConnect = func(peerPub [32]byte, ok bool) {
		if !ok {
			m.worker.Post(func() {
				delete(m.byContact, peerPub)
			})
		}
		if m.OnConnect != nil {
			m.OnConnect(peerPub, known, ok)
		}
	}

	m.worker.Post(func() {
		m.byContact[c.peerPub] = c
	})

	go c.writerLoop()
	go c.readerLoop()

	if c.onConnect != nil {
		c.onConnect(c.peerPub, true)
	}
}

// ConnectionFor synchronously looks up an established connection by peer
// pubkey. Must not be called from within the session worker itself.
func (m *Manager) ConnectionFor(peerPub [32]byte) *Connection {
	return worker.RunAndWait(m.worker, func() *Connection {
		return m.byContact[peerPub]
	})
}

// Disconnect closes the connection to a peer, if any (spec §5 disconnect(contact)).
func (m *Manager) Disconnect(peerPub [32]byte) {
	c := m.ConnectionFor(peerPub)
	if c != nil {
		c.Close()
	}
}

// Close stops accepting new connections.
func (m *Manager) Close() {
	m.listener.Close()
	m.worker.Close()
}
