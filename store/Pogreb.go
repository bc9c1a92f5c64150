/*
File Name:  Pogreb.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner
*/

package store

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"strings"
	"sync"

	"github.com/akrylysov/pogreb"
)

const (
	identityKey   = "identity"
	contactPrefix = "contact:"
)

// PogrebStore is the default Store implementation, backing identity and
// contact persistence with a single embedded Pogreb database file.
type PogrebStore struct {
	mutex sync.Mutex
	db    *pogreb.DB
}

// NewPogrebStore opens (or creates) a Pogreb-backed store at filename.
func NewPogrebStore(filename string) (*PogrebStore, error) {
	pogreb.SetLogger(log.New(io.Discard, "", 0))

	db, err := pogreb.Open(filename, nil)
	if err != nil {
		return nil, err
	}
	return &PogrebStore{db: db}, nil
}

type identityRecord struct {
	Pub  [32]byte
	Seed [32]byte
}

// GetKeys returns the persisted long-term identity, generating and
// storing one on first use.
func (s *PogrebStore) GetKeys() (pub [32]byte, seed [32]byte, err error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	raw, err := s.db.Get([]byte(identityKey))
	if err != nil {
		return pub, seed, err
	}
	if raw != nil {
		var rec identityRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return pub, seed, err
		}
		return rec.Pub, rec.Seed, nil
	}

	var seedBuf [32]byte
	if _, err := rand.Read(seedBuf[:]); err != nil {
		return pub, seed, err
	}
	priv := ed25519.NewKeyFromSeed(seedBuf[:])
	var pubBuf [32]byte
	copy(pubBuf[:], priv.Public().(ed25519.PublicKey))

	rec := identityRecord{Pub: pubBuf, Seed: seedBuf}
	data, err := json.Marshal(rec)
	if err != nil {
		return pub, seed, err
	}
	if err := s.db.Put([]byte(identityKey), data); err != nil {
		return pub, seed, err
	}
	return pubBuf, seedBuf, nil
}

type contactRecord struct {
	Pubkey      string
	DisplayName string
	StaticHost  string
}

func contactKey(pubkey [32]byte) []byte {
	return []byte(contactPrefix + hex.EncodeToString(pubkey[:]))
}

// ListContacts iterates every stored contact record. Pogreb has no
// native prefix scan, so every key is visited and non-contact entries
// (currently just the identity record) are skipped.
func (s *PogrebStore) ListContacts() ([]Contact, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	var out []Contact
	it := s.db.Items()
	for {
		key, value, err := it.Next()
		if err == pogreb.ErrIterationDone {
			break
		}
		if err != nil {
			return nil, err
		}
		if !strings.HasPrefix(string(key), contactPrefix) {
			continue
		}
		var rec contactRecord
		if err := json.Unmarshal(value, &rec); err != nil {
			continue
		}
		pubBytes, err := hex.DecodeString(rec.Pubkey)
		if err != nil || len(pubBytes) != 32 {
			continue
		}
		var pub [32]byte
		copy(pub[:], pubBytes)
		out = append(out, Contact{Pubkey: pub, DisplayName: rec.DisplayName, StaticHost: rec.StaticHost})
	}
	return out, nil
}

func (s *PogrebStore) putContact(c Contact) error {
	rec := contactRecord{Pubkey: hex.EncodeToString(c.Pubkey[:]), DisplayName: c.DisplayName, StaticHost: c.StaticHost}
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Put(contactKey(c.Pubkey), data)
}

// AddContact inserts a new contact record.
func (s *PogrebStore) AddContact(pubkey [32]byte, displayName string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.putContact(Contact{Pubkey: pubkey, DisplayName: displayName})
}

// UpdateContactName renames an existing contact, preserving its static host if known.
func (s *PogrebStore) UpdateContactName(pubkey [32]byte, displayName string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	raw, err := s.db.Get(contactKey(pubkey))
	if err != nil {
		return err
	}
	c := Contact{Pubkey: pubkey}
	if raw != nil {
		var rec contactRecord
		if err := json.Unmarshal(raw, &rec); err == nil {
			c.StaticHost = rec.StaticHost
		}
	}
	c.DisplayName = displayName
	return s.putContact(c)
}

// Close releases the underlying database file.
func (s *PogrebStore) Close() error {
	return s.db.Close()
}
