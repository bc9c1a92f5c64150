/*
File Name:  Engine.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

Transfer engine entry point (spec §4.5, C5). One Engine serves every
peer: a peer's sendTask is created when its connection is attached, and
its recvState lazily on the first received record. Enqueue and
EnqueueBatch for a peer with no attached connection queue nothing.
*/

package transfer

import (
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/hsha/lanshare/protocol"
	"github.com/hsha/lanshare/session"
)

// ErrBatchNotFlat is returned when a batch directory contains a
// subdirectory; only one level of nesting is ever sent (spec §4.5).
var ErrBatchNotFlat = errors.New("transfer: batch directory is not flat")

// LogFunc mirrors the host application's logging callback signature.
type LogFunc func(module, format string, v ...interface{})

// Engine coordinates send and receive state across all connected peers.
type Engine struct {
	receiveRoot string
	log         LogFunc
	onProgress  func(peer [32]byte, sending bool, snap ProgressSnapshot)

	mu    sync.Mutex
	sends map[[32]byte]*sendTask
	recvs map[[32]byte]*recvState
}

// NewEngine creates a transfer engine rooted at receiveRoot.
func NewEngine(receiveRoot string, log LogFunc, onProgress func(peer [32]byte, sending bool, snap ProgressSnapshot)) *Engine {
	return &Engine{
		receiveRoot: receiveRoot,
		log:         log,
		onProgress:  onProgress,
		sends:       make(map[[32]byte]*sendTask),
		recvs:       make(map[[32]byte]*recvState),
	}
}

// AttachConnection registers a newly completed session so the engine can
// send to and receive from it. Call this from session.Manager's OnConnect.
func (e *Engine) AttachConnection(peer [32]byte, conn *session.Connection) {
	e.mu.Lock()
	defer e.mu.Unlock()
	progress := newProgressTracker(func(snap ProgressSnapshot) {
		if e.onProgress != nil {
			e.onProgress(peer, true, snap)
		}
	})
	e.sends[peer] = newSendTask(peer, conn, progress, e.log)
}

// DetachConnection drops a peer's send task when its connection closes.
func (e *Engine) DetachConnection(peer [32]byte) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t, ok := e.sends[peer]; ok {
		t.close()
		delete(e.sends, peer)
	}
	delete(e.recvs, peer)
}

// HandleRecord routes a decrypted file-stream record to the peer's
// receive state machine. Call this from session.Manager's OnRecord.
func (e *Engine) HandleRecord(peer [32]byte, plaintext []byte) error {
	e.mu.Lock()
	r, ok := e.recvs[peer]
	if !ok {
		progress := newProgressTracker(func(snap ProgressSnapshot) {
			if e.onProgress != nil {
				e.onProgress(peer, false, snap)
			}
		})
		r = newRecvState(e.receiveRoot, progress, e.log)
		e.recvs[peer] = r
	}
	e.mu.Unlock()
	return r.handleRecord(plaintext)
}

// Enqueue queues a single file for peer.
func (e *Engine) Enqueue(peer [32]byte, absolutePath string) {
	t := e.sendTaskFor(peer)
	if t == nil {
		return
	}
	t.enqueue(sendItem{absPath: absolutePath, relName: filepath.Base(absolutePath)})
}

// EnqueueBatch queues a flat directory of files for peer, preceded by a
// SENDFILE_LIST header (spec §4.5). Only one level deep: entries naming
// a subdirectory are rejected before any network activity.
func (e *Engine) EnqueueBatch(peer [32]byte, baseDir string, relativeNames []string) error {
	t := e.sendTaskFor(peer)
	if t == nil {
		return nil
	}

	var total uint64
	var items []sendItem
	for _, name := range relativeNames {
		abs := filepath.Join(baseDir, name)
		info, err := os.Stat(abs)
		if err != nil {
			if e.log != nil {
				e.log("transfer", "skipping unreadable file %q: %v", name, err)
			}
			continue
		}
		if info.IsDir() {
			return ErrBatchNotFlat
		}
		total += uint64(info.Size())
		items = append(items, sendItem{absPath: abs, relName: name, inBatch: true})
	}

	t.enqueue(sendItem{isListHeader: true, list: protocol.SendFileListHeader{
		Count:     uint32(len(items)),
		TotalSize: total,
	}})
	for _, item := range items {
		t.enqueue(item)
	}
	return nil
}

func (e *Engine) sendTaskFor(peer [32]byte) *sendTask {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sends[peer]
}
