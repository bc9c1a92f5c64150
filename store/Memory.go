/*
File Name:  Memory.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner
*/

package store

import (
	"crypto/ed25519"
	"crypto/rand"
	"sync"
)

// MemoryStore is a simple in-memory Store for testing purposes.
type MemoryStore struct {
	mutex    sync.Mutex
	pub      [32]byte
	seed     [32]byte
	haveKeys bool
	contacts map[[32]byte]Contact
}

// NewMemoryStore creates a properly initialized memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{contacts: make(map[[32]byte]Contact)}
}

// GetKeys returns the long-term identity, generating one on first use.
func (ms *MemoryStore) GetKeys() (pub [32]byte, seed [32]byte, err error) {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()
	if !ms.haveKeys {
		var seedBuf [32]byte
		if _, err := rand.Read(seedBuf[:]); err != nil {
			return pub, seed, err
		}
		priv := ed25519.NewKeyFromSeed(seedBuf[:])
		ms.seed = seedBuf
		copy(ms.pub[:], priv.Public().(ed25519.PublicKey))
		ms.haveKeys = true
	}
	return ms.pub, ms.seed, nil
}

// ListContacts returns every known contact.
func (ms *MemoryStore) ListContacts() ([]Contact, error) {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()
	out := make([]Contact, 0, len(ms.contacts))
	for _, c := range ms.contacts {
		out = append(out, c)
	}
	return out, nil
}

// AddContact inserts a new contact.
func (ms *MemoryStore) AddContact(pubkey [32]byte, displayName string) error {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()
	ms.contacts[pubkey] = Contact{Pubkey: pubkey, DisplayName: displayName}
	return nil
}

// UpdateContactName renames an existing contact.
func (ms *MemoryStore) UpdateContactName(pubkey [32]byte, displayName string) error {
	ms.mutex.Lock()
	defer ms.mutex.Unlock()
	c, ok := ms.contacts[pubkey]
	if !ok {
		c.Pubkey = pubkey
	}
	c.DisplayName = displayName
	ms.contacts[pubkey] = c
	return nil
}
