/*
File Name:  ControlAdapter.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

Adapts Backend to controlapi.Backend: hex pubkeys in, typed pubkeys out.
controlapi deliberately knows nothing about [32]byte arrays or this
package's types, so the translation lives here rather than in either.
*/

package core

import (
	"encoding/hex"
	"fmt"

	"github.com/hsha/lanshare/controlapi"
)

// ControlAdapter exposes Backend through the controlapi.Backend interface.
type ControlAdapter struct {
	backend *Backend
}

// NewControlAdapter wraps backend for use with controlapi.NewServer.
func NewControlAdapter(backend *Backend) *ControlAdapter {
	return &ControlAdapter{backend: backend}
}

// ListContacts implements controlapi.Backend.
func (a *ControlAdapter) ListContacts() []controlapi.ContactInfo {
	entries := a.backend.Contacts.List()
	out := make([]controlapi.ContactInfo, 0, len(entries))
	for _, entry := range entries {
		out = append(out, controlapi.ContactInfo{
			Pubkey:      hex.EncodeToString(entry.Pubkey[:]),
			DisplayName: entry.DisplayName,
			Host:        entry.DynamicHost,
			Port:        entry.DynamicPort,
			Connected:   entry.State == StateConnected,
			Known:       entry.Known,
		})
	}
	return out
}

// EnqueueFile implements controlapi.Backend.
func (a *ControlAdapter) EnqueueFile(pubkeyHex, absolutePath string) error {
	pubkey, err := decodePubkey(pubkeyHex)
	if err != nil {
		return err
	}
	return a.backend.EnqueueFile(pubkey, absolutePath)
}

// EnqueueBatch implements controlapi.Backend.
func (a *ControlAdapter) EnqueueBatch(pubkeyHex, baseDir string, relativeNames []string) error {
	pubkey, err := decodePubkey(pubkeyHex)
	if err != nil {
		return err
	}
	return a.backend.EnqueueBatch(pubkey, baseDir, relativeNames)
}

// StartDiscovery implements controlapi.Backend.
func (a *ControlAdapter) StartDiscovery() {
	a.backend.StartDiscovery()
}

func decodePubkey(pubkeyHex string) (pubkey [32]byte, err error) {
	raw, err := hex.DecodeString(pubkeyHex)
	if err != nil {
		return pubkey, fmt.Errorf("core: invalid pubkey %q: %w", pubkeyHex, err)
	}
	if len(raw) != 32 {
		return pubkey, fmt.Errorf("core: pubkey %q has wrong length", pubkeyHex)
	}
	copy(pubkey[:], raw)
	return pubkey, nil
}
