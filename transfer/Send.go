/*
File Name:  Send.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

Send side of the transfer engine (spec §4.5). One sendTask per peer
drains a FIFO of items - a batch's SENDFILE_LIST header, then one
SEND_HEADER/SEND_DATA/SEND_TRAILER run per file - onto that peer's
session.Connection. Cork/uncork couples this loop to C4's send queue
depth: a full queue parks the goroutine on a condition variable that
the connection's queue-empty callback signals.
*/

package transfer

import (
	"io"
	"os"
	"sync"

	"golang.org/x/crypto/blake2b"

	"github.com/hsha/lanshare/protocol"
	"github.com/hsha/lanshare/session"
)

// sendChunkSize is the read/write granularity for SENDFILE_DATA records (spec §4.5).
const sendChunkSize = 65536

// sendItem is one unit of work in a peer's outbound queue.
type sendItem struct {
	isListHeader bool
	list         protocol.SendFileListHeader

	absPath string
	relName string
	inBatch bool
}

// sendTask owns one peer's outbound file queue and its cork state.
type sendTask struct {
	peer [32]byte
	conn *session.Connection
	log  LogFunc

	mu     sync.Mutex
	cond   *sync.Cond
	items  []sendItem
	corked bool
	closed bool

	progress *progressTracker
}

func newSendTask(peer [32]byte, conn *session.Connection, progress *progressTracker, log LogFunc) *sendTask {
	t := &sendTask{peer: peer, conn: conn, progress: progress, log: log}
	t.cond = sync.NewCond(&t.mu)
	conn.SetOnQueueEmpty(t.uncork)
	go t.run()
	return t
}

func (t *sendTask) enqueue(item sendItem) {
	t.mu.Lock()
	t.items = append(t.items, item)
	t.cond.Signal()
	t.mu.Unlock()
}

func (t *sendTask) uncork() {
	t.mu.Lock()
	t.corked = false
	t.cond.Signal()
	t.mu.Unlock()
}

func (t *sendTask) close() {
	t.mu.Lock()
	t.closed = true
	t.cond.Broadcast()
	t.mu.Unlock()
}

// next blocks until an item is available and the queue is not corked, or
// the task is closed.
func (t *sendTask) next() (item sendItem, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for (len(t.items) == 0 || t.corked) && !t.closed {
		t.cond.Wait()
	}
	if t.closed && len(t.items) == 0 {
		return sendItem{}, false
	}
	item = t.items[0]
	t.items = t.items[1:]
	return item, true
}

// setCorked marks the task corked after a Connection.Send call reports queue_full.
func (t *sendTask) setCorked() {
	t.mu.Lock()
	t.corked = true
	t.mu.Unlock()
}

func (t *sendTask) run() {
	for {
		item, ok := t.next()
		if !ok {
			return
		}
		if item.isListHeader {
			t.sendListHeader(item.list)
			continue
		}
		t.sendFile(item.absPath, item.relName, item.inBatch)
	}
}

func (t *sendTask) sendListHeader(list protocol.SendFileListHeader) {
	t.emit(protocol.StreamTypeList, list.Encode())
	t.progress.addTotals(int(list.Count), list.TotalSize)
	t.progress.maybeSend(true)
}

func (t *sendTask) sendFile(absPath, relName string, inBatch bool) {
	f, err := os.Open(absPath)
	if err != nil {
		if t.log != nil {
			t.log("transfer", "cannot open %s: %v", absPath, err)
		}
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		if t.log != nil {
			t.log("transfer", "cannot stat %s: %v", absPath, err)
		}
		return
	}
	size := uint64(info.Size())

	header := protocol.SendFileHeader{Name: relName, Size: size}
	t.emit(protocol.StreamTypeHeader, header.Encode())
	if !inBatch {
		t.progress.addTotals(1, size)
	}

	hasher, _ := blake2b.New256(nil)
	buf := make([]byte, sendChunkSize)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			hasher.Write(buf[:n])
			t.emitRaw(protocol.StreamTypeData, buf[:n])
			t.progress.addDoneBytes(uint64(n))
			t.progress.maybeSend(false)

			// Yield between records so a corked queue (checked at the top
			// of next()) is noticed promptly rather than after a long file
			// streams uninterrupted.
			t.checkCork()
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			if t.log != nil {
				t.log("transfer", "reading %s: %v", absPath, err)
			}
			return
		}
	}

	var checksum [32]byte
	copy(checksum[:], hasher.Sum(nil))
	trailer := protocol.SendFileTrailer{Checksum: checksum}
	t.emit(protocol.StreamTypeTrailer, trailer.Encode())

	t.progress.addDoneFile()
	t.progress.maybeSend(true)
}

// checkCork blocks mid-file if the connection's queue has crossed
// HIGH_WATERMARK, resuming once the queue-empty callback clears it.
func (t *sendTask) checkCork() {
	t.mu.Lock()
	for t.corked && !t.closed {
		t.cond.Wait()
	}
	t.mu.Unlock()
}

func (t *sendTask) emit(streamType uint16, body []byte) {
	t.emitRaw(streamType, body)
}

func (t *sendTask) emitRaw(streamType uint16, body []byte) {
	plaintext := append(protocol.EncodeHeader(protocol.Header{StreamID: protocol.FileStreamID, Type: streamType}), body...)
	full, err := t.conn.Send(plaintext)
	if err != nil {
		if t.log != nil {
			t.log("transfer", "send failed: %v", err)
		}
		return
	}
	if full {
		t.setCorked()
	}
}
