/*
File Name:  Message Encoding Handshake.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

Tag-encoded bodies exchanged during the session handshake (spec §4.4).
ClientHello travels unencrypted (no AEAD keys exist yet); everything
after it is wrapped in the AEAD channel before being framed.
*/

package protocol

// Field tags for ClientHello.
const (
	tagClientHelloRandom  = 1
	tagClientHelloKex     = 2
	tagClientHelloNonce   = 3
)

// ClientHello is the first handshake message, sent unencrypted by the connecting peer.
type ClientHello struct {
	Random      [32]byte // random bytes fed into the transcript
	KexKeyShare [32]byte // X25519 ephemeral public key
	Nonce       [12]byte // initial tx nonce chosen by the client
}

// Encode serializes a ClientHello.
func (m *ClientHello) Encode() []byte {
	w := NewFieldWriter()
	w.Bytes(tagClientHelloRandom, m.Random[:])
	w.Bytes(tagClientHelloKex, m.KexKeyShare[:])
	w.Bytes(tagClientHelloNonce, m.Nonce[:])
	return w.End()
}

// DecodeClientHello parses a ClientHello body.
func DecodeClientHello(body []byte) (m ClientHello, err error) {
	r := NewFieldReader(body)
	copy(m.Random[:], r.Bytes(tagClientHelloRandom))
	copy(m.KexKeyShare[:], r.Bytes(tagClientHelloKex))
	copy(m.Nonce[:], r.Bytes(tagClientHelloNonce))
	return m, r.Err()
}

// Field tags for SignatureMessage.
const (
	tagSignaturePubkey    = 1
	tagSignatureSignature = 2
)

// SignatureMessage binds a peer's long-term identity to a transcript snapshot or finalization.
type SignatureMessage struct {
	Pubkey    [32]byte // Ed25519 long-term public key
	Signature [64]byte // Ed25519 signature over the transcript hash
}

// Encode serializes a SignatureMessage.
func (m *SignatureMessage) Encode() []byte {
	w := NewFieldWriter()
	w.Bytes(tagSignaturePubkey, m.Pubkey[:])
	w.Bytes(tagSignatureSignature, m.Signature[:])
	return w.End()
}

// DecodeSignatureMessage parses a SignatureMessage body.
func DecodeSignatureMessage(body []byte) (m SignatureMessage, err error) {
	r := NewFieldReader(body)
	copy(m.Pubkey[:], r.Bytes(tagSignaturePubkey))
	copy(m.Signature[:], r.Bytes(tagSignatureSignature))
	return m, r.Err()
}

// Field tags for ServerHelloFinished.
const (
	tagSHFRandom    = 1
	tagSHFKex       = 2
	tagSHFNonce     = 3
	tagSHFEncSigMsg = 4
)

// MaxEncryptedSignatureMessage bounds the embedded ciphertext size (spec §4.4).
const MaxEncryptedSignatureMessage = 2000

// ServerHelloFinished is the server's handshake response.
type ServerHelloFinished struct {
	Random                    [32]byte
	KexKeyShare               [32]byte
	Nonce                     [12]byte // initial server tx nonce, pre-increment
	EncryptedSignatureMessage []byte   // AEAD ciphertext of a SignatureMessage
}

// Encode serializes a ServerHelloFinished.
func (m *ServerHelloFinished) Encode() []byte {
	w := NewFieldWriter()
	w.Bytes(tagSHFRandom, m.Random[:])
	w.Bytes(tagSHFKex, m.KexKeyShare[:])
	w.Bytes(tagSHFNonce, m.Nonce[:])
	w.Bytes(tagSHFEncSigMsg, m.EncryptedSignatureMessage)
	return w.End()
}

// DecodeServerHelloFinished parses a ServerHelloFinished body.
func DecodeServerHelloFinished(body []byte) (m ServerHelloFinished, err error) {
	r := NewFieldReader(body)
	copy(m.Random[:], r.Bytes(tagSHFRandom))
	copy(m.KexKeyShare[:], r.Bytes(tagSHFKex))
	copy(m.Nonce[:], r.Bytes(tagSHFNonce))
	m.EncryptedSignatureMessage = r.Bytes(tagSHFEncSigMsg)
	if err = r.Err(); err != nil {
		return m, err
	}
	if len(m.EncryptedSignatureMessage) > MaxEncryptedSignatureMessage {
		return m, ErrRecordLength
	}
	return m, nil
}

// Field tags for ClientFinished.
const tagCFEncSigMsg = 1

// ClientFinished completes the handshake from the client side.
type ClientFinished struct {
	EncryptedSignatureMessage []byte
}

// Encode serializes a ClientFinished.
func (m *ClientFinished) Encode() []byte {
	w := NewFieldWriter()
	w.Bytes(tagCFEncSigMsg, m.EncryptedSignatureMessage)
	return w.End()
}

// DecodeClientFinished parses a ClientFinished body.
func DecodeClientFinished(body []byte) (m ClientFinished, err error) {
	r := NewFieldReader(body)
	m.EncryptedSignatureMessage = r.Bytes(tagCFEncSigMsg)
	if err = r.Err(); err != nil {
		return m, err
	}
	if len(m.EncryptedSignatureMessage) > MaxEncryptedSignatureMessage {
		return m, ErrRecordLength
	}
	return m, nil
}

// HandshakeContextSeed is fed into the transcript hash before any
// handshake message, by both endpoints. The source preserves this exact
// ASCII value (32 spaces) rather than a zero-filled block for bit-level
// compatibility with deployed peers; see spec §9 Open Questions.
var HandshakeContextSeed = [32]byte{
	' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ',
	' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ', ' ',
}
