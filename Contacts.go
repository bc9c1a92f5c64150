/*
File Name:  Contacts.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

Contact registry (spec §4.6, C6). Keeps, per pubkey, the static fields
mirrored from the persistent store alongside the dynamic fields learned
from discovery and the session engine. Mutated only from Backend's
calling goroutine plus is_known_contact queried synchronously from the
session worker, so it carries its own lock rather than routing through
worker.Worker.
*/

package core

import (
	"sync"

	"github.com/hsha/lanshare/store"
)

// ContactState is the dynamic connection state of one contact.
type ContactState int

const (
	StateOffline ContactState = iota
	StateConnecting
	StateConnected
)

// ContactEntry is one row of the contact registry (spec §4.6).
type ContactEntry struct {
	Pubkey [32]byte

	// Static, mirrored from the persistent store.
	DisplayName string
	StaticHost  string
	Known       bool

	// Dynamic, learned from discovery/session and cleared at the start
	// of every new discovery burst (kept only for entries that survive,
	// i.e. ones with Known == true).
	DynamicHost string
	DynamicPort uint16
	State       ContactState
}

// Contacts is the in-memory keyed collection described by spec §4.6.
type Contacts struct {
	mu    sync.Mutex
	store store.Store
	byKey map[[32]byte]*ContactEntry
}

// NewContacts loads the registry from the persistent store.
func NewContacts(backingStore store.Store) (*Contacts, error) {
	c := &Contacts{store: backingStore, byKey: make(map[[32]byte]*ContactEntry)}

	list, err := backingStore.ListContacts()
	if err != nil {
		return nil, err
	}
	for _, sc := range list {
		c.byKey[sc.Pubkey] = &ContactEntry{
			Pubkey:      sc.Pubkey,
			DisplayName: sc.DisplayName,
			StaticHost:  sc.StaticHost,
			Known:       true,
		}
	}
	return c, nil
}

// IsKnown implements session.IsKnownContact.
func (c *Contacts) IsKnown(pubkey [32]byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.byKey[pubkey]
	return ok && entry.Known
}

// List returns a snapshot of every contact, known and dynamic-only.
func (c *Contacts) List() []ContactEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ContactEntry, 0, len(c.byKey))
	for _, entry := range c.byKey {
		out = append(out, *entry)
	}
	return out
}

// Get returns one contact entry, if present.
func (c *Contacts) Get(pubkey [32]byte) (ContactEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.byKey[pubkey]
	if !ok {
		return ContactEntry{}, false
	}
	return *entry, true
}

// AddKnown persists a new known contact and adds it to the registry.
func (c *Contacts) AddKnown(pubkey [32]byte, displayName string) error {
	if err := c.store.AddContact(pubkey, displayName); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.byKey[pubkey] = &ContactEntry{Pubkey: pubkey, DisplayName: displayName, Known: true}
	return nil
}

// Rename updates a known contact's display name in the store and registry.
func (c *Contacts) Rename(pubkey [32]byte, displayName string) error {
	if err := c.store.UpdateContactName(pubkey, displayName); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if entry, ok := c.byKey[pubkey]; ok {
		entry.DisplayName = displayName
	}
	return nil
}

// SetConnectState updates a contact's dynamic connect state, creating a
// dynamic-only entry if the pubkey is not yet known.
func (c *Contacts) SetConnectState(pubkey [32]byte, state ContactState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.byKey[pubkey]
	if !ok {
		entry = &ContactEntry{Pubkey: pubkey}
		c.byKey[pubkey] = entry
	}
	entry.State = state
}

// BeginDiscovery implements the reconciliation rule from spec §4.6: drop
// dynamic-only entries, and clear the dynamic host/port of the rest, in
// preparation for applying a fresh burst's results.
func (c *Contacts) BeginDiscovery() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, entry := range c.byKey {
		if !entry.Known {
			delete(c.byKey, key)
			continue
		}
		entry.DynamicHost = ""
		entry.DynamicPort = 0
	}
}

// ApplyDiscovered records one discovered peer's dynamic host/port,
// creating a dynamic-only entry if the pubkey is not a known contact.
func (c *Contacts) ApplyDiscovered(pubkey [32]byte, host string, port uint16) {
	c.mu.Lock()
	defer c.mu.Unlock()
	entry, ok := c.byKey[pubkey]
	if !ok {
		entry = &ContactEntry{Pubkey: pubkey}
		c.byKey[pubkey] = entry
	}
	entry.DynamicHost = host
	entry.DynamicPort = port
}
