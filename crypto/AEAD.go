/*
File Name:  AEAD.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

Per-direction AEAD channel (spec §4.2). Once the handshake derives a
tx/rx key pair, every record on that direction is sealed or opened with
ChaCha20-Poly1305-IETF under an empty additional-data field and a
96-bit nonce that increments as a little-endian counter after each use.
A Direction is single-purpose: one for sending, one for receiving,
never both off the same key.
*/

package crypto

import (
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize and NonceSize match chacha20poly1305.KeySize/NonceSize; named
// locally so callers outside this package never need to import it.
const (
	KeySize   = chacha20poly1305.KeySize
	NonceSize = chacha20poly1305.NonceSize
	TagSize   = chacha20poly1305.Overhead
)

// ErrNonceExhausted is returned once a Direction's nonce counter would wrap.
// Spec §9 treats this as a connection-lifetime bound too distant to hit in
// practice; the check exists only to fail loud rather than silently reuse a nonce.
var ErrNonceExhausted = errors.New("crypto: nonce counter exhausted")

// ErrDecryptFailed means the AEAD tag did not verify. Per spec §4.2 this is
// fatal to the connection; there is no recovery or retry.
var ErrDecryptFailed = errors.New("crypto: decryption failed")

// Direction is one side of a channel: either the encrypt side or the
// decrypt side, never both. It owns its own incrementing nonce counter.
type Direction struct {
	aead  cipherAEAD
	nonce [NonceSize]byte
	used  bool // true once the nonce has been incremented at least once
}

// cipherAEAD is the subset of cipher.AEAD this package relies on.
type cipherAEAD interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
}

// NewDirection constructs a Direction bound to key, with nonce starting
// at startNonce (the value exchanged during the handshake, spec §4.4).
func NewDirection(key [KeySize]byte, startNonce [NonceSize]byte) (*Direction, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, err
	}
	d := &Direction{aead: aead}
	d.nonce = startNonce
	return d, nil
}

// Seal encrypts and authenticates plaintext under the current nonce, then
// increments the nonce. The additional data field is always empty (spec §4.2).
func (d *Direction) Seal(plaintext []byte) (ciphertext []byte, err error) {
	if d.used && isZero(d.nonce) {
		return nil, ErrNonceExhausted
	}
	ciphertext = d.aead.Seal(nil, d.nonce[:], plaintext, nil)
	d.increment()
	return ciphertext, nil
}

// Open authenticates and decrypts ciphertext under the current nonce, then
// increments the nonce regardless of outcome (the peer's send side already
// incremented whether or not the datagram survives the network).
func (d *Direction) Open(ciphertext []byte) (plaintext []byte, err error) {
	if d.used && isZero(d.nonce) {
		return nil, ErrNonceExhausted
	}
	plaintext, err = d.aead.Open(nil, d.nonce[:], ciphertext, nil)
	d.increment()
	if err != nil {
		return nil, ErrDecryptFailed
	}
	return plaintext, nil
}

// increment advances the nonce as a little-endian 96-bit counter.
func (d *Direction) increment() {
	d.used = true
	for i := range d.nonce {
		d.nonce[i]++
		if d.nonce[i] != 0 {
			return
		}
	}
}

func isZero(b [NonceSize]byte) bool {
	var zero [NonceSize]byte
	return subtle.ConstantTimeCompare(b[:], zero[:]) == 1
}
