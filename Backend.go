/*
File Name:  Backend.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

Backend wires the three engine subsystems (discovery, session, transfer)
together behind the contact registry, the way Peernet.go wires its
subsystems behind the DHT in the teacher. There is no single-threaded
event loop of its own: each subsystem keeps whatever concurrency model
it already settled on (worker.Worker for session's shared index,
goroutine-per-connection/task everywhere else), and Backend only
installs the callbacks that cross between them.
*/

package core

import (
	"fmt"
	"net"
	"strconv"

	hcrypto "github.com/hsha/lanshare/crypto"
	"github.com/hsha/lanshare/discovery"
	"github.com/hsha/lanshare/session"
	"github.com/hsha/lanshare/store"
	"github.com/hsha/lanshare/transfer"
)

// Backend owns every long-lived subsystem of one running agent.
type Backend struct {
	Config  Config
	Filters Filters
	Stdout  *multiWriter

	Store    store.Store
	Contacts *Contacts

	identity  *hcrypto.Identity
	discovery *discovery.Endpoint
	session   *session.Manager
	transfer  *transfer.Engine
}

// Init constructs and starts every subsystem on an already opened store:
// reads the long-term identity from it (the store generates one on first
// use), loads the contact registry, binds the session listener and
// discovery sockets, and wires their callbacks together. Fatal startup
// errors (spec §7) are returned for the host application to surface.
func Init(config Config, backingStore store.Store, filters Filters) (backend *Backend, err error) {
	backend = &Backend{
		Config:  config,
		Store:   backingStore,
		Stdout:  newMultiWriter(),
		Filters: filters,
	}
	backend.initFilters()

	_, seed, err := backingStore.GetKeys()
	if err != nil {
		return nil, fmt.Errorf("core: reading identity keys: %w", err)
	}
	backend.identity = hcrypto.IdentityFromSeed(seed)

	backend.Contacts, err = NewContacts(backingStore)
	if err != nil {
		return nil, fmt.Errorf("core: loading contacts: %w", err)
	}

	backend.transfer = transfer.NewEngine(config.ReceiveRoot, backend.logTransfer, backend.onProgress)

	backend.session, err = session.NewManager(backend.identity)
	if err != nil {
		return nil, fmt.Errorf("core: starting session listener: %w", err)
	}
	backend.session.IsKnownContact = backend.Contacts.IsKnown
	backend.session.OnConnect = backend.onConnect
	backend.session.OnRecord = backend.onRecord
	backend.session.Log = backend.logSession

	backend.discovery, err = discovery.NewEndpoint(backend.identity, config.ListenTCPPort, backend.logDiscovery)
	if err != nil {
		backend.session.Close()
		return nil, fmt.Errorf("core: starting discovery endpoint: %w", err)
	}

	return backend, nil
}

// StartDiscovery runs one discovery burst and reconciles its results
// into the contact registry (spec §4.3, §4.6).
func (backend *Backend) StartDiscovery() {
	backend.Contacts.BeginDiscovery()
	peers := backend.discovery.Burst(backend.Config.DiscoveryBurstWindow())
	for _, peer := range peers {
		host := peer.IP.String()
		backend.Contacts.ApplyDiscovered(peer.Pubkey, host, peer.Port)
		backend.Filters.OnPeerDiscovered(peer.Pubkey, host, peer.Port)
	}
}

// Connect dials a peer's session port. host may be a bare IP (the
// contact's last known discovery address) or include its own port.
func (backend *Backend) Connect(host string, port uint16) (*session.Connection, error) {
	addr := host
	if _, _, err := net.SplitHostPort(host); err != nil {
		addr = net.JoinHostPort(host, strconv.Itoa(int(port)))
	}
	return backend.session.Dial(addr)
}

// Disconnect closes the session to a peer, if any.
func (backend *Backend) Disconnect(pubkey [32]byte) {
	backend.session.Disconnect(pubkey)
}

// EnqueueFile queues a single file to send to peer (spec §4.5).
func (backend *Backend) EnqueueFile(pubkey [32]byte, absolutePath string) error {
	backend.transfer.Enqueue(pubkey, absolutePath)
	return nil
}

// EnqueueBatch queues a flat directory of files to send to peer (spec §4.5).
func (backend *Backend) EnqueueBatch(pubkey [32]byte, baseDir string, relativeNames []string) error {
	return backend.transfer.EnqueueBatch(pubkey, baseDir, relativeNames)
}

// Close shuts down every subsystem.
func (backend *Backend) Close() {
	backend.discovery.Close()
	backend.session.Close()
}

func (backend *Backend) onConnect(pubkey [32]byte, known, ok bool) {
	if ok {
		backend.Contacts.SetConnectState(pubkey, StateConnected)
		backend.transfer.AttachConnection(pubkey, backend.session.ConnectionFor(pubkey))
	} else {
		backend.Contacts.SetConnectState(pubkey, StateOffline)
		backend.transfer.DetachConnection(pubkey)
	}
	backend.Filters.OnConnect(pubkey, known, ok)
}

func (backend *Backend) onRecord(pubkey [32]byte, plaintext []byte) {
	if err := backend.transfer.HandleRecord(pubkey, plaintext); err != nil {
		backend.Filters.LogError("transfer", "record from %x rejected: %v", pubkey, err)
		backend.session.Disconnect(pubkey)
	}
}

func (backend *Backend) onProgress(pubkey [32]byte, sending bool, snap transfer.ProgressSnapshot) {
	backend.Filters.OnProgress(pubkey, sending, snap)
}

func (backend *Backend) logSession(module, format string, v ...interface{}) {
	backend.Filters.LogError(module, format, v...)
}

func (backend *Backend) logDiscovery(module, format string, v ...interface{}) {
	backend.Filters.LogError(module, format, v...)
}

func (backend *Backend) logTransfer(module, format string, v ...interface{}) {
	backend.Filters.LogError(module, format, v...)
}
