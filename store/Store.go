/*
File Name:  Store.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

Persistent store contract (spec §6). Out of scope as a design - the
host application may back this with any real database - but the
contact registry (C6) and the long-term identity need a concrete
implementation to be runnable end to end; PogrebStore below is that
default.
*/

package store

// Contact is one entry from the persistent contact list.
type Contact struct {
	Pubkey      [32]byte
	DisplayName string
	StaticHost  string // optional, empty if unknown
}

// Store is the external persistence contract C6 bridges to.
type Store interface {
	// GetKeys returns the long-term Ed25519 keypair seed, generating and
	// persisting one on first use.
	GetKeys() (pub [32]byte, seed [32]byte, err error)

	ListContacts() ([]Contact, error)
	AddContact(pubkey [32]byte, displayName string) error
	UpdateContactName(pubkey [32]byte, displayName string) error
}
