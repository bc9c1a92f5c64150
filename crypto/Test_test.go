/*
File Name:  Test_test.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner
*/

package crypto

import (
	"bytes"
	"testing"
)

func TestDirectionSealOpenRoundTrip(t *testing.T) {
	var key [KeySize]byte
	key[0] = 0xAA
	var start [NonceSize]byte

	tx, err := NewDirection(key, start)
	if err != nil {
		t.Fatalf("new tx direction: %v", err)
	}
	rx, err := NewDirection(key, start)
	if err != nil {
		t.Fatalf("new rx direction: %v", err)
	}

	plaintext := []byte("a message sealed under the channel")
	ciphertext, err := tx.Seal(plaintext)
	if err != nil {
		t.Fatalf("seal failed: %v", err)
	}

	got, err := rx.Open(ciphertext)
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Fatalf("round trip mismatch: got %q, want %q", got, plaintext)
	}
}

func TestDirectionNonceIncrementsAndRejectsReplay(t *testing.T) {
	var key [KeySize]byte
	key[1] = 0xBB
	var start [NonceSize]byte

	tx, _ := NewDirection(key, start)
	rx, _ := NewDirection(key, start)

	first, _ := tx.Seal([]byte("one"))
	second, _ := tx.Seal([]byte("two"))

	if bytes.Equal(first, second) {
		t.Fatalf("two distinct plaintexts produced identical ciphertext: nonce did not advance")
	}

	if _, err := rx.Open(first); err != nil {
		t.Fatalf("open first failed: %v", err)
	}
	// rx's nonce has now advanced past `first`; feeding it `first` again
	// must fail since the nonce no longer matches what sealed it.
	if _, err := rx.Open(first); err != ErrDecryptFailed {
		t.Fatalf("expected replayed record to fail decryption, got %v", err)
	}
}

func TestDirectionOpenRejectsTamperedCiphertext(t *testing.T) {
	var key [KeySize]byte
	key[2] = 0xCC
	var start [NonceSize]byte

	tx, _ := NewDirection(key, start)
	rx, _ := NewDirection(key, start)

	ciphertext, _ := tx.Seal([]byte("integrity matters"))
	tampered := append([]byte(nil), ciphertext...)
	tampered[0] ^= 0xFF

	if _, err := rx.Open(tampered); err != ErrDecryptFailed {
		t.Fatalf("expected ErrDecryptFailed, got %v", err)
	}
}

func TestTranscriptSnapshotDoesNotFinalize(t *testing.T) {
	var seed [32]byte
	tr := NewTranscript(seed)
	tr.Write([]byte("message one"))
	first := tr.Snapshot()

	tr.Write([]byte("message two"))
	second := tr.Snapshot()

	if first == second {
		t.Fatalf("snapshot did not reflect the second write")
	}

	// A fresh transcript fed only "message one" must match the first snapshot.
	tr2 := NewTranscript(seed)
	tr2.Write([]byte("message one"))
	if tr2.Snapshot() != first {
		t.Fatalf("transcript is not deterministic across independent accumulators")
	}
}

func TestSessionKeysAgreeAcrossSides(t *testing.T) {
	clientPriv, clientPub, err := GenerateKexKeypair()
	if err != nil {
		t.Fatalf("client keypair: %v", err)
	}
	serverPriv, serverPub, err := GenerateKexKeypair()
	if err != nil {
		t.Fatalf("server keypair: %v", err)
	}

	clientRx, clientTx, err := ClientSessionKeys(clientPriv, clientPub, serverPub)
	if err != nil {
		t.Fatalf("client session keys: %v", err)
	}
	serverRx, serverTx, err := ServerSessionKeys(serverPriv, clientPub, serverPub)
	if err != nil {
		t.Fatalf("server session keys: %v", err)
	}

	if clientTx != serverRx {
		t.Fatalf("client tx must equal server rx")
	}
	if clientRx != serverTx {
		t.Fatalf("client rx must equal server tx")
	}
}

func TestIdentitySignVerifyRoundTrip(t *testing.T) {
	id, err := GenerateIdentity()
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}

	var digest [TranscriptSize]byte
	digest[0] = 0x42

	sig := id.Sign(digest)
	if !VerifySignature(id.Public, digest, sig) {
		t.Fatalf("signature failed to verify against its own identity")
	}

	var wrongDigest [TranscriptSize]byte
	wrongDigest[0] = 0x43
	if VerifySignature(id.Public, wrongDigest, sig) {
		t.Fatalf("signature verified against a different digest")
	}
}

func TestIdentityFromSeedIsDeterministic(t *testing.T) {
	var seed [32]byte
	seed[5] = 0x99

	a := IdentityFromSeed(seed)
	b := IdentityFromSeed(seed)
	if a.Public != b.Public {
		t.Fatalf("same seed produced different public keys")
	}
	if a.Seed() != seed {
		t.Fatalf("seed did not round trip")
	}
}
