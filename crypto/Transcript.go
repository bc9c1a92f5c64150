/*
File Name:  Transcript.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

Handshake transcript hash (spec §4.4). Both peers feed every handshake
message into the same BLAKE2b-256 accumulator in the same order, then
sign a snapshot of the running hash rather than the final one - this
lets the signature cover "everything up to and including this message"
without closing the accumulator off to what follows. Go's hash.Hash.Sum
already returns the digest without mutating internal state, which is
exactly the non-destructive snapshot the handshake needs.
*/

package crypto

import (
	"hash"

	"golang.org/x/crypto/blake2b"
)

// TranscriptSize is the output width of the transcript hash.
const TranscriptSize = 32

// Transcript accumulates handshake messages into a running BLAKE2b-256 hash.
type Transcript struct {
	h hash.Hash
}

// NewTranscript creates a transcript seeded with the fixed handshake
// context (spec §4.4 step 1, protocol.HandshakeContextSeed).
func NewTranscript(seed [32]byte) *Transcript {
	h, err := blake2b.New256(nil)
	if err != nil {
		// blake2b.New256 only fails for an over-long key; nil key never does.
		panic(err)
	}
	t := &Transcript{h: h}
	t.Write(seed[:])
	return t
}

// Write feeds more transcript bytes into the running hash.
func (t *Transcript) Write(data []byte) {
	t.h.Write(data)
}

// Snapshot returns the current digest without finalizing the accumulator;
// the caller may keep writing afterward.
func (t *Transcript) Snapshot() [TranscriptSize]byte {
	var out [TranscriptSize]byte
	copy(out[:], t.h.Sum(nil))
	return out
}
