/*
File Name:  Filter.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

Filters allow the caller to intercept events. The filter functions must not modify any data.
*/

package core

import (
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/hsha/lanshare/transfer"
)

// Filters contains all functions to install the hook. Use nil for unused.
// The functions are called sequentially and block execution; if the
// filter takes a long time it should start a Go routine.
type Filters struct {
	// OnPeerDiscovered is called once per unique pubkey discovered during
	// a burst (spec §4.3). It may be called again after the peer drops out
	// of a later burst and reappears.
	OnPeerDiscovered func(pubkey [32]byte, host string, port uint16)

	// OnConnect is called when a session handshake with a peer completes
	// or fails (spec §4.4/§7). known reflects is_known_contact at accept time.
	OnConnect func(pubkey [32]byte, known, ok bool)

	// OnProgress is called on every throttled progress update for a
	// send or receive in flight (spec §4.5, §9).
	OnProgress func(pubkey [32]byte, sending bool, snap transfer.ProgressSnapshot)

	// LogError is called for any error.
	LogError func(component, format string, v ...interface{})
}

// initFilters sets any unset filter to a blank function so the rest of
// the engine can call them unconditionally.
func (backend *Backend) initFilters() {
	if backend.Filters.OnPeerDiscovered == nil {
		backend.Filters.OnPeerDiscovered = func(pubkey [32]byte, host string, port uint16) {}
	}
	if backend.Filters.OnConnect == nil {
		backend.Filters.OnConnect = func(pubkey [32]byte, known, ok bool) {}
	}
	if backend.Filters.OnProgress == nil {
		backend.Filters.OnProgress = func(pubkey [32]byte, sending bool, snap transfer.ProgressSnapshot) {}
	}
	if backend.Filters.LogError == nil {
		backend.Filters.LogError = func(component, format string, v ...interface{}) {}
	}
}

// multiWriter duplicates writes to every subscribed writer, keyed by a
// uuid so a caller can unsubscribe later without holding a reference to
// any particular writer slot.
type multiWriter struct {
	writers map[uuid.UUID]io.Writer
	sync.Mutex
}

func newMultiWriter() *multiWriter {
	return &multiWriter{writers: make(map[uuid.UUID]io.Writer)}
}

// Subscribe adds a new writer to the fan-out set.
func (m *multiWriter) Subscribe(writer io.Writer) (id uuid.UUID) {
	m.Lock()
	defer m.Unlock()

	id = uuid.New()
	m.writers[id] = writer

	return id
}

// Unsubscribe removes a writer from the fan-out set.
func (m *multiWriter) Unsubscribe(id uuid.UUID) {
	m.Lock()
	defer m.Unlock()

	delete(m.writers, id)
}

// Write sends p to every subscribed writer. It never returns an error
// from a subscriber; a broken log sink must not break the caller.
func (m *multiWriter) Write(p []byte) (n int, err error) {
	m.Lock()
	defer m.Unlock()

	for _, w := range m.writers {
		w.Write(p)
	}
	return len(p), nil
}
