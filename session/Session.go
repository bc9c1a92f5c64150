/*
File Name:  Session.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

Mutually authenticated encrypted session (spec §4.4, C4). A Connection
owns one TCP socket, one pair of AEAD directions once the handshake
completes, and the per-connection send queue. Reassembly progress and
the rx nonce are touched only by the reader goroutine and the tx nonce
only by the caller of Send, so they need no lock; the send queue carries
its own mutex, and only the shared index living in Manager goes through
the session Worker.
*/

package session

import (
	"errors"
	"net"
	"sync"

	"github.com/hsha/lanshare/crypto"
	"github.com/hsha/lanshare/protocol"
)

// ServerPort is the fixed TCP port the session listener binds (spec §6).
const ServerPort = 8890

// ListenBacklog is the accept backlog depth (spec §4.4). It is not applied:
// the listener is opened with net.Listen, which uses the OS default backlog.
const ListenBacklog = 10

// State is a connection's position in the handshake/record lifecycle.
type State int

const (
	StateClientUninit State = iota
	StateClientAwaitingSHF
	StateClientComplete
	StateServerAwaitingCH
	StateServerAwaitingCF
	StateServerComplete
	StateError
)

// ErrHandshakeFailed covers any handshake validation failure: bad
// signature, bad transcript, or a malformed handshake message.
var ErrHandshakeFailed = errors.New("session: handshake failed")

// ErrUnknownStreamID is returned when a received record's stream header
// does not carry the reserved file-stream magic (spec §4.5).
var ErrUnknownStreamID = errors.New("session: unexpected stream id")

// Connection is one peer-to-peer session, client or server side.
type Connection struct {
	conn   net.Conn
	state  State
	isServer bool

	identity *crypto.Identity
	peerPub  [32]byte

	tx *crypto.Direction
	rx *crypto.Direction

	queue *sendQueue

	onRecord  func(plaintext []byte)          // dispatched for every decrypted post-handshake record
	onConnect func(peerPub [32]byte, ok bool) // fired exactly once, on completion or fatal error
	log       func(module, format string, v ...interface{})

	closeOnce sync.Once
	closed    bool
	closeMu   sync.Mutex
}

// LocalAddr exposes the connection's local address for discovery/self-detection.
func (c *Connection) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

// PeerPublicKey returns the peer's long-term identity, valid only after handshake completion.
func (c *Connection) PeerPublicKey() [32]byte {
	return c.peerPub
}

// State returns the connection's current lifecycle state.
func (c *Connection) State() State {
	return c.state
}

// Send enqueues a plaintext record: it is tagged with the file-stream
// header by the caller (transfer engine), sealed here, framed, and
// handed to the writer goroutine. Returns true if the queue crossed
// HIGH_WATERMARK as a result (cork signal to the caller).
func (c *Connection) Send(plaintext []byte) (queueFull bool, err error) {
	ciphertext, err := c.tx.Seal(plaintext)
	if err != nil {
		return false, err
	}
	return c.queue.enqueue(ciphertext), nil
}

// SetOnQueueEmpty installs the callback the transfer engine uses to resume
// a corked send task once this connection's queue drains below LOW_WATERMARK.
func (c *Connection) SetOnQueueEmpty(fn func()) {
	c.queue.setOnEmpty(fn)
}

// Close tears down the connection and fires on_connect(peer, false) if the
// handshake had ever reached a terminal success state; safe to call more than once.
func (c *Connection) Close() {
	c.closeOnce.Do(func() {
		c.closeMu.Lock()
		c.closed = true
		c.closeMu.Unlock()
		c.conn.Close()
		c.queue.close()
		if c.onConnect != nil {
			c.onConnect(c.peerPub, false)
		}
	})
}

func (c *Connection) isClosed() bool {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.closed
}

// writeRecord writes one length-prefixed record, blocking until the OS
// accepts it. This blocking call is itself the back-pressure mechanism
// that a non-blocking+would_block event loop simulates explicitly; see
// the send queue's watermark bookkeeping for the application-level signal.
func writeRecord(conn net.Conn, body []byte) error {
	return protocol.WriteRecord(conn, body)
}

// writerLoop drains the send queue onto the socket, honoring
// MAX_BUFFERS_TO_SEND fairness and firing queueEmpty when the backlog
// drops through LOW_WATERMARK.
func (c *Connection) writerLoop() {
	for {
		batch, ok := c.queue.waitBatch(maxBuffersToSend)
		if !ok {
			return // queue closed
		}
		for _, item := range batch {
			if err := writeRecord(c.conn, item); err != nil {
				c.fail(err)
				return
			}
		}
	}
}

// readerLoop reassembles records off the socket and dispatches decrypted
// plaintext to onRecord. Used only after the handshake has completed.
func (c *Connection) readerLoop() {
	fr := protocol.NewFrameReader()
	buf := make([]byte, 65536+64)
	for {
		n, err := c.conn.Read(buf)
		if err != nil {
			if fr.Pending() {
				c.fail(err) // EOF mid record is a protocol error (spec §4.4 Close)
			} else {
				c.fail(nil) // orderly EOF between records
			}
			return
		}
		records, _, err := fr.Feed(buf[:n])
		if err != nil {
			c.fail(err)
			return
		}
		for _, rec := range records {
			plaintext, err := c.rx.Open(rec)
			if err != nil {
				c.fail(err)
				return
			}
			if c.onRecord != nil {
				c.onRecord(plaintext)
			}
		}
	}
}

// fail marks the connection errored, closes it, and fires on_connect(peer, false).
// err may be nil for an orderly close that still needs teardown.
func (c *Connection) fail(err error) {
	c.state = StateError
	if err != nil && c.log != nil {
		c.log("session", "connection closed: %v", err)
	}
	c.Close()
}
