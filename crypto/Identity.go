/*
File Name:  Identity.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

Long-term Ed25519 identity keypairs (spec §4.4). A peer's identity
pubkey is what discovery advertises and what the contact registry keys
on; the private key never leaves this process and is only ever used to
sign a transcript snapshot.
*/

package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
)

// IdentitySignatureSize is the byte length of an Ed25519 signature.
const IdentitySignatureSize = ed25519.SignatureSize

// Identity is a long-term Ed25519 keypair identifying a peer.
type Identity struct {
	Public  [32]byte
	private ed25519.PrivateKey
}

// GenerateIdentity creates a fresh long-term identity keypair.
func GenerateIdentity() (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	id := &Identity{private: priv}
	copy(id.Public[:], pub)
	return id, nil
}

// IdentityFromSeed reconstructs an Identity from a stored 32-byte seed
// (spec §6: the identity keypair is persisted across restarts).
func IdentityFromSeed(seed [32]byte) *Identity {
	priv := ed25519.NewKeyFromSeed(seed[:])
	id := &Identity{private: priv}
	copy(id.Public[:], priv.Public().(ed25519.PublicKey))
	return id
}

// Seed returns the 32-byte seed this identity was generated from, for persistence.
func (id *Identity) Seed() [32]byte {
	var seed [32]byte
	copy(seed[:], id.private.Seed())
	return seed
}

// Sign signs the transcript digest with the long-term private key.
func (id *Identity) Sign(digest [TranscriptSize]byte) [IdentitySignatureSize]byte {
	var sig [IdentitySignatureSize]byte
	copy(sig[:], ed25519.Sign(id.private, digest[:]))
	return sig
}

// VerifySignature checks a peer's signature over a transcript digest
// against their advertised public key (spec §4.4 step 4/6).
func VerifySignature(pubkey [32]byte, digest [TranscriptSize]byte, sig [IdentitySignatureSize]byte) bool {
	return ed25519.Verify(ed25519.PublicKey(pubkey[:]), digest[:], sig[:])
}
