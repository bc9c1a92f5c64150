/*
File Name:  Handshake.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

Handshake state machine (spec §4.4). dialClient drives the connecting
side through CLIENT_UNINIT -> CLIENT_AWAITING_SHF -> CLIENT_COMPLETE;
acceptServer drives the accepting side through SERVER_AWAITING_CH ->
SERVER_AWAITING_CF -> SERVER_COMPLETE. Both build the same transcript
in the same order so a successful handshake yields byte-identical
finalized hashes on both sides (spec §8 transcript agreement).
*/

package session

import (
	"crypto/rand"
	"fmt"
	"net"

	hcrypto "github.com/hsha/lanshare/crypto"
	"github.com/hsha/lanshare/protocol"
)

// IsKnownContact is the synchronous cross-worker registry query
// (spec §5, §4.4 step 6). It must be answered by a worker other than
// the session worker calling it, to avoid deadlock.
type IsKnownContact func(pubkey [32]byte) bool

func randomBytes32() (out [32]byte) {
	rand.Read(out[:])
	return out
}

// dialClient performs the client side of the handshake over conn and, on
// success, returns a Connection in StateClientComplete. The connection's
// reader/writer goroutines are not started here; the caller does that
// once the handshake result is known.
func dialClient(conn net.Conn, identity *hcrypto.Identity) (*Connection, error) {
	transcript := hcrypto.NewTranscript(protocol.HandshakeContextSeed)

	kexPriv, kexPub, err := hcrypto.GenerateKexKeypair()
	if err != nil {
		return nil, err
	}
	var clientNonce [hcrypto.NonceSize]byte
	rand.Read(clientNonce[:])

	hello := protocol.ClientHello{Random: randomBytes32(), KexKeyShare: kexPub, Nonce: clientNonce}
	if err := protocol.WriteRecord(conn, hello.Encode()); err != nil {
		return nil, err
	}
	transcript.Write(hello.Random[:])
	transcript.Write(hello.KexKeyShare[:])
	transcript.Write(hello.Nonce[:])

	shfBody, err := protocol.ReadRecord(conn)
	if err != nil {
		return nil, err
	}
	shf, err := protocol.DecodeServerHelloFinished(shfBody)
	if err != nil {
		return nil, ErrHandshakeFailed
	}

	rx, tx, err := hcrypto.ClientSessionKeys(kexPriv, kexPub, shf.KexKeyShare)
	if err != nil {
		return nil, ErrHandshakeFailed
	}

	transcript.Write(shf.Random[:])
	transcript.Write(shf.KexKeyShare[:])
	transcript.Write(shf.Nonce[:])

	rxDir, err := hcrypto.NewDirection(rx, shf.Nonce)
	if err != nil {
		return nil, err
	}
	sigBody, err := rxDir.Open(shf.EncryptedSignatureMessage)
	if err != nil {
		return nil, ErrHandshakeFailed
	}
	sigMsg, err := protocol.DecodeSignatureMessage(sigBody)
	if err != nil {
		return nil, ErrHandshakeFailed
	}

	transcript.Write(sigMsg.Pubkey[:])
	if !hcrypto.VerifySignature(sigMsg.Pubkey, transcript.Snapshot(), sigMsg.Signature) {
		return nil, fmt.Errorf("%w: server signature", ErrHandshakeFailed)
	}

	transcript.Write(identity.Public[:])

	txDir, err := hcrypto.NewDirection(tx, clientNonce)
	if err != nil {
		return nil, err
	}

	finalDigest := transcript.Snapshot()
	sigMsgOut := protocol.SignatureMessage{Pubkey: identity.Public, Signature: identity.Sign(finalDigest)}
	encSig, err := txDir.Seal(sigMsgOut.Encode())
	if err != nil {
		return nil, err
	}
	finished := protocol.ClientFinished{EncryptedSignatureMessage: encSig}
	if err := protocol.WriteRecord(conn, finished.Encode()); err != nil {
		return nil, err
	}

	c := &Connection{
		conn:     conn,
		state:    StateClientComplete,
		identity: identity,
		peerPub:  sigMsg.Pubkey,
		tx:       txDir,
		rx:       rxDir,
	}
	return c, nil
}

// acceptServer performs the server side of the handshake over conn.
// isKnown is consulted once the client's identity is known, before the
// connection transitions to SERVER_COMPLETE; per spec §4.4 step 6 a
// negative answer does not abort the handshake, it only marks the
// resulting Connection as unknown for the caller to surface to the UI.
func acceptServer(conn net.Conn, identity *hcrypto.Identity, isKnown IsKnownContact) (c *Connection, known bool, err error) {
	transcript := hcrypto.NewTranscript(protocol.HandshakeContextSeed)

	chBody, err := protocol.ReadRecord(conn)
	if err != nil {
		return nil, false, err
	}
	ch, err := protocol.DecodeClientHello(chBody)
	if err != nil {
		return nil, false, ErrHandshakeFailed
	}
	transcript.Write(ch.Random[:])
	transcript.Write(ch.KexKeyShare[:])
	transcript.Write(ch.Nonce[:])

	kexPriv, kexPub, err := hcrypto.GenerateKexKeypair()
	if err != nil {
		return nil, false, err
	}
	var serverNonce [hcrypto.NonceSize]byte
	rand.Read(serverNonce[:])

	rx, tx, err := hcrypto.ServerSessionKeys(kexPriv, ch.KexKeyShare, kexPub)
	if err != nil {
		return nil, false, ErrHandshakeFailed
	}

	serverRandom := randomBytes32()
	transcript.Write(serverRandom[:])
	transcript.Write(kexPub[:])
	transcript.Write(serverNonce[:])
	transcript.Write(identity.Public[:])

	txDir, err := hcrypto.NewDirection(tx, serverNonce)
	if err != nil {
		return nil, false, err
	}

	snapshot := transcript.Snapshot()
	sigMsg := protocol.SignatureMessage{Pubkey: identity.Public, Signature: identity.Sign(snapshot)}
	encSig, err := txDir.Seal(sigMsg.Encode())
	if err != nil {
		return nil, false, err
	}

	shf := protocol.ServerHelloFinished{
		Random:                    serverRandom,
		KexKeyShare:               kexPub,
		Nonce:                     serverNonce,
		EncryptedSignatureMessage: encSig,
	}
	if err := protocol.WriteRecord(conn, shf.Encode()); err != nil {
		return nil, false, err
	}

	rxDir, err := hcrypto.NewDirection(rx, ch.Nonce)
	if err != nil {
		return nil, false, err
	}

	cfBody, err := protocol.ReadRecord(conn)
	if err != nil {
		return nil, false, err
	}
	cf, err := protocol.DecodeClientFinished(cfBody)
	if err != nil {
		return nil, false, ErrHandshakeFailed
	}

	finalSigBody, err := rxDir.Open(cf.EncryptedSignatureMessage)
	if err != nil {
		return nil, false, ErrHandshakeFailed
	}
	clientSig, err := protocol.DecodeSignatureMessage(finalSigBody)
	if err != nil {
		return nil, false, ErrHandshakeFailed
	}

	transcript.Write(clientSig.Pubkey[:])
	finalDigest := transcript.Snapshot()
	if !hcrypto.VerifySignature(clientSig.Pubkey, finalDigest, clientSig.Signature) {
		return nil, false, fmt.Errorf("%w: client signature", ErrHandshakeFailed)
	}

	conn2 := &Connection{
		conn:     conn,
		state:    StateServerComplete,
		identity: identity,
		peerPub:  clientSig.Pubkey,
		tx:       txDir,
		rx:       rxDir,
		isServer: true,
	}

	known = isKnown != nil && isKnown(clientSig.Pubkey)
	return conn2, known, nil
}
