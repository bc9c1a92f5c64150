/*
File Name:  Receive.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

Receive side of the transfer engine (spec §4.5). One recvState per peer
tracks RECEIVE_HEADER/RECEIVE_BODY and the currently open `.part` file.
A record arriving with the wrong stream id, or a body record arriving
while RECEIVE_HEADER is expected, is a fatal protocol error.
*/

package transfer

import (
	"errors"
	"os"
	"time"

	"golang.org/x/crypto/blake2b"

	"github.com/hsha/lanshare/protocol"
)

// ErrProtocolViolation covers any record that does not fit the receiver's
// current state (spec §7 peer protocol violation).
var ErrProtocolViolation = errors.New("transfer: protocol violation")

// ErrUnknownStreamID is returned when a record's stream header does not
// carry the reserved file-stream magic (spec §4.5).
var ErrUnknownStreamID = errors.New("transfer: unexpected stream id")

type recvPhase int

const (
	recvPhaseHeader recvPhase = iota
	recvPhaseBody
)

// recvState is one peer's receive-side state machine.
type recvState struct {
	root string // configured receive root

	phase recvPhase

	batchDir        string
	remainingInBatch uint32
	inBatch         bool

	file          *os.File
	partPath      string
	finalRelName  string
	expectedSize  uint64
	receivedBytes uint64
	hasher        hasherResettable

	progress *progressTracker
	log      LogFunc
}

// hasherResettable is the subset of hash.Hash used here, named so a
// fresh BLAKE2b instance can be swapped in per file without importing
// hash.Hash directly into the struct definition twice.
type hasherResettable interface {
	Write([]byte) (int, error)
	Sum([]byte) []byte
}

func newRecvState(root string, progress *progressTracker, log LogFunc) *recvState {
	return &recvState{root: root, progress: progress, log: log}
}

// handleRecord dispatches one decrypted plaintext record to the receive
// state machine. Fatal errors here are the caller's cue to close the connection.
func (r *recvState) handleRecord(plaintext []byte) error {
	header, rest, err := protocol.DecodeHeader(plaintext)
	if err != nil {
		return err
	}
	if header.StreamID != protocol.FileStreamID {
		return ErrUnknownStreamID
	}

	switch r.phase {
	case recvPhaseHeader:
		return r.handleHeaderPhase(header.Type, rest)
	case recvPhaseBody:
		return r.handleBodyPhase(header.Type, rest)
	}
	return ErrProtocolViolation
}

func (r *recvState) handleHeaderPhase(streamType uint16, body []byte) error {
	switch streamType {
	case protocol.StreamTypeList:
		list, err := protocol.DecodeSendFileListHeader(body)
		if err != nil {
			return err
		}
		dir, err := createBatchDir(r.root, time.Now())
		if err != nil {
			return err
		}
		r.batchDir = dir
		r.inBatch = true
		r.remainingInBatch = list.Count
		r.progress.addTotals(int(list.Count), list.TotalSize)
		r.progress.maybeSend(true)
		return nil

	case protocol.StreamTypeHeader:
		header, err := protocol.DecodeSendFileHeader(body)
		if err != nil {
			return err
		}
		if err := sanitizeRelativeName(header.Name); err != nil {
			if r.log != nil {
				r.log("transfer", "rejecting unsafe name %q: %v", header.Name, err)
			}
			return err
		}
		if !r.inBatch {
			r.progress.addTotals(1, header.Size)
		}

		destRoot := r.root
		if r.inBatch {
			destRoot = r.batchDir
		}
		finalPath := joinClean(destRoot, header.Name)
		if err := os.MkdirAll(parentDir(finalPath), 0o755); err != nil {
			return err
		}

		f, partPath, err := createPartFile(finalPath)
		if err != nil {
			if r.log != nil {
				r.log("transfer", "cannot create destination for %q: %v", header.Name, err)
			}
			return nil // local I/O error: log and drop, do not close the connection
		}

		hasher, _ := blake2b.New256(nil)
		r.file = f
		r.partPath = partPath
		r.finalRelName = header.Name
		r.expectedSize = header.Size
		r.receivedBytes = 0
		r.hasher = hasher
		r.phase = recvPhaseBody
		return nil

	default:
		return ErrProtocolViolation
	}
}

func (r *recvState) handleBodyPhase(streamType uint16, body []byte) error {
	switch streamType {
	case protocol.StreamTypeData:
		if _, err := r.file.Write(body); err != nil {
			return err
		}
		r.hasher.Write(body)
		r.receivedBytes += uint64(len(body))
		r.progress.addDoneBytes(uint64(len(body)))
		r.progress.maybeSend(false)
		return nil

	case protocol.StreamTypeTrailer:
		trailer, err := protocol.DecodeSendFileTrailer(body)
		if err != nil {
			return err
		}
		r.file.Close()

		var got [32]byte
		copy(got[:], r.hasher.Sum(nil))

		if r.receivedBytes != r.expectedSize || got != trailer.Checksum {
			if r.log != nil {
				r.log("transfer", "integrity check failed for %q: leaving %s in place", r.finalRelName, r.partPath)
			}
		} else if err := finishReceive(r.partPath); err != nil {
			if r.log != nil {
				r.log("transfer", "renaming %s: %v", r.partPath, err)
			}
		}

		r.progress.addDoneFile()
		r.progress.maybeSend(true)
		if r.inBatch {
			r.remainingInBatch--
			if r.remainingInBatch == 0 {
				r.inBatch = false
				r.batchDir = ""
			}
		}

		r.file = nil
		r.phase = recvPhaseHeader
		return nil

	default:
		return ErrProtocolViolation
	}
}
