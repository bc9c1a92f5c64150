/*
File Name:  KeyExchange.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

Ephemeral X25519 key exchange and session-key derivation (spec §4.4).
Each side contributes one ephemeral keypair; the shared point and both
parties' public shares are mixed through BLAKE2b into a pair of 32-byte
keys. The two sides must label the halves oppositely so that the
client's tx key is the server's rx key and vice versa - this mirrors
libsodium's crypto_kx_client/server_session_keys split.
*/

package crypto

import (
	"crypto/rand"
	"errors"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/curve25519"
)

// ErrWeakSharedSecret is returned when the computed shared point is the
// all-zero low-order point, which X25519 can legitimately produce for
// maliciously chosen input. Spec §4.4 treats this as a handshake failure.
var ErrWeakSharedSecret = errors.New("crypto: shared secret is all-zero")

// GenerateKexKeypair creates a fresh ephemeral X25519 keypair.
func GenerateKexKeypair() (priv, pub [32]byte, err error) {
	if _, err = rand.Read(priv[:]); err != nil {
		return priv, pub, err
	}
	pubSlice, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return priv, pub, err
	}
	copy(pub[:], pubSlice)
	return priv, pub, nil
}

// sharedSecret computes the X25519 shared point between priv and peerPub.
func sharedSecret(priv, peerPub [32]byte) (shared [32]byte, err error) {
	out, err := curve25519.X25519(priv[:], peerPub[:])
	if err != nil {
		return shared, err
	}
	copy(shared[:], out)
	if isZero32(shared) {
		return shared, ErrWeakSharedSecret
	}
	return shared, nil
}

// deriveSessionKeys mixes the shared point with both sides' public shares
// (in the fixed order clientPub, serverPub, regardless of caller role) and
// expands to 64 bytes split into two session keys.
func deriveSessionKeys(shared, clientPub, serverPub [32]byte) (k1, k2 [32]byte, err error) {
	h, err := blake2b.New(64, nil)
	if err != nil {
		return k1, k2, err
	}
	h.Write(shared[:])
	h.Write(clientPub[:])
	h.Write(serverPub[:])
	sum := h.Sum(nil)
	copy(k1[:], sum[0:32])
	copy(k2[:], sum[32:64])
	return k1, k2, nil
}

// ClientSessionKeys derives (rx, tx) for the connecting peer.
func ClientSessionKeys(clientPriv, clientPub, serverPub [32]byte) (rx, tx [32]byte, err error) {
	shared, err := sharedSecret(clientPriv, serverPub)
	if err != nil {
		return rx, tx, err
	}
	k1, k2, err := deriveSessionKeys(shared, clientPub, serverPub)
	if err != nil {
		return rx, tx, err
	}
	return k1, k2, nil
}

// ServerSessionKeys derives (rx, tx) for the accepting peer. The halves
// are swapped relative to ClientSessionKeys so the two sides agree:
// server.rx == client.tx and server.tx == client.rx.
func ServerSessionKeys(serverPriv, clientPub, serverPub [32]byte) (rx, tx [32]byte, err error) {
	shared, err := sharedSecret(serverPriv, clientPub)
	if err != nil {
		return rx, tx, err
	}
	k1, k2, err := deriveSessionKeys(shared, clientPub, serverPub)
	if err != nil {
		return rx, tx, err
	}
	return k2, k1, nil
}

func isZero32(b [32]byte) bool {
	var zero [32]byte
	return b == zero
}
