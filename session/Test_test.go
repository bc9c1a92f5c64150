/*
File Name:  Test_test.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner
*/

package session

import (
	"net"
	"testing"
	"time"

	hcrypto "github.com/hsha/lanshare/crypto"
)

type handshakeResult struct {
	conn  *Connection
	known bool
	err   error
}

func TestHandshakeAgreesOnKeysAndIdentity(t *testing.T) {
	clientConn, serverConn := net.Pipe()

	clientID, err := hcrypto.GenerateIdentity()
	if err != nil {
		t.Fatalf("client identity: %v", err)
	}
	serverID, err := hcrypto.GenerateIdentity()
	if err != nil {
		t.Fatalf("server identity: %v", err)
	}

	serverResult := make(chan handshakeResult, 1)
	go func() {
		c, known, err := acceptServer(serverConn, serverID, func(pubkey [32]byte) bool { return true })
		serverResult <- handshakeResult{conn: c, known: known, err: err}
	}()

	clientC, err := dialClient(clientConn, clientID)
	if err != nil {
		t.Fatalf("client handshake failed: %v", err)
	}

	var sr handshakeResult
	select {
	case sr = <-serverResult:
	case <-time.After(2 * time.Second):
		t.Fatal("server handshake did not complete")
	}
	if sr.err != nil {
		t.Fatalf("server handshake failed: %v", sr.err)
	}
	if !sr.known {
		t.Fatalf("expected is_known_contact callback to report known")
	}

	if clientC.PeerPublicKey() != serverID.Public {
		t.Fatalf("client did not learn server's long-term public key")
	}
	if sr.conn.PeerPublicKey() != clientID.Public {
		t.Fatalf("server did not learn client's long-term public key")
	}
	if clientC.state != StateClientComplete {
		t.Fatalf("expected client state complete, got %v", clientC.state)
	}
	if sr.conn.state != StateServerComplete {
		t.Fatalf("expected server state complete, got %v", sr.conn.state)
	}
}

func TestHandshakeRejectsTamperedClientFinishedSignature(t *testing.T) {
	// A client using a different identity than the one embedded in its own
	// transcript (simulated by signing with a mismatched key) must fail
	// verification on the server side. We simulate this indirectly by
	// flipping a byte in the wire-level ClientFinished via a wrapping conn.
	clientConn, serverConn := net.Pipe()

	clientID, _ := hcrypto.GenerateIdentity()
	serverID, _ := hcrypto.GenerateIdentity()

	// WriteRecord issues two writes per record (length, then body), so the
	// 4th write is the ClientFinished body.
	tw := &tamperingConn{Conn: clientConn, tamperAfterWrites: 4}

	serverResult := make(chan handshakeResult, 1)
	go func() {
		c, known, err := acceptServer(serverConn, serverID, func(pubkey [32]byte) bool { return true })
		serverResult <- handshakeResult{conn: c, known: known, err: err}
	}()

	_, err := dialClient(tw, clientID)
	if err != nil {
		// Tampering at this layer may also break the client's own framing;
		// either a client-side or server-side error demonstrates the
		// tamper was not silently accepted.
	}

	select {
	case sr := <-serverResult:
		if sr.err == nil {
			t.Fatalf("expected server to reject tampered handshake")
		}
	case <-time.After(2 * time.Second):
		// client failing first without the server ever completing is also acceptable.
	}
}

// tamperingConn flips the second-to-last byte of the Nth Write call,
// simulating on-wire corruption of a specific handshake message. The last
// byte of a message body is the zero terminator, which decoders never
// read, so the byte before it (the end of the sealed payload) is flipped.
type tamperingConn struct {
	net.Conn
	writes            int
	tamperAfterWrites int
}

func (t *tamperingConn) Write(b []byte) (int, error) {
	t.writes++
	if t.writes == t.tamperAfterWrites && len(b) > 1 {
		tampered := append([]byte(nil), b...)
		tampered[len(tampered)-2] ^= 0xFF
		return t.Conn.Write(tampered)
	}
	return t.Conn.Write(b)
}

func TestSendQueueWatermarks(t *testing.T) {
	q := newSendQueue(nil)

	var full bool
	for i := 0; i < highWatermark; i++ {
		full = q.enqueue([]byte{byte(i)})
	}
	if !full {
		t.Fatalf("expected queue to report full at HIGH_WATERMARK")
	}

	emptied := make(chan struct{}, 1)
	q2 := newSendQueue(func() { emptied <- struct{}{} })
	for i := 0; i < highWatermark; i++ {
		q2.enqueue([]byte{byte(i)})
	}
	// Drain down through LOW_WATERMARK.
	for i := 0; i < highWatermark-lowWatermark+1; i++ {
		q2.waitBatch(1)
	}
	select {
	case <-emptied:
	case <-time.After(time.Second):
		t.Fatalf("expected queueEmpty callback after draining below LOW_WATERMARK")
	}
}
