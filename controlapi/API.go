/*
File Name:  API.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

Local control surface for the engine. The desktop UI and the database
of contacts are explicitly out of scope for the engine itself, but
something has to drive enqueue/contacts/progress for any host
application built on top of it; this thin HTTP+WebSocket layer plays
that role without reimplementing the UI, mirroring the shape of the
teacher's own webapi package.
*/

package controlapi

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// ContactInfo is the wire representation of one registry entry.
type ContactInfo struct {
	Pubkey      string `json:"pubkey"`
	DisplayName string `json:"display_name"`
	Host        string `json:"host,omitempty"`
	Port        uint16 `json:"port,omitempty"`
	Connected   bool   `json:"connected"`
	Known       bool   `json:"known"`
}

// Backend is the subset of core functionality the control API calls into.
type Backend interface {
	ListContacts() []ContactInfo
	EnqueueFile(pubkeyHex, absolutePath string) error
	EnqueueBatch(pubkeyHex, baseDir string, relativeNames []string) error
	StartDiscovery()
}

// Server serves the control HTTP API and streams progress over WebSocket.
type Server struct {
	backend  Backend
	router   *mux.Router
	upgrader websocket.Upgrader

	subsMu      sync.Mutex
	subscribers map[chan []byte]struct{}
}

// NewServer builds the control API router bound to backend.
func NewServer(backend Backend) *Server {
	s := &Server{
		backend:     backend,
		router:      mux.NewRouter(),
		subscribers: make(map[chan []byte]struct{}),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     func(r *http.Request) bool { return true }, // local-only control surface
	}

	s.router.HandleFunc("/contacts", s.handleContacts).Methods(http.MethodGet)
	s.router.HandleFunc("/send/file", s.handleSendFile).Methods(http.MethodPost)
	s.router.HandleFunc("/send/batch", s.handleSendBatch).Methods(http.MethodPost)
	s.router.HandleFunc("/discovery/start", s.handleStartDiscovery).Methods(http.MethodPost)
	s.router.HandleFunc("/progress", s.handleProgressStream)

	return s
}

// Router exposes the underlying mux.Router for embedding into a host server.
func (s *Server) Router() http.Handler {
	return s.router
}

// PublishProgress pushes a progress event to all connected WebSocket clients.
func (s *Server) PublishProgress(peerPubkeyHex string, sending bool, totalFiles, doneFiles int, totalBytes, doneBytes uint64) {
	event := progressEvent{
		Pubkey:     peerPubkeyHex,
		Sending:    sending,
		TotalFiles: totalFiles,
		DoneFiles:  doneFiles,
		TotalBytes: totalBytes,
		DoneBytes:  doneBytes,
	}
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for ch := range s.subscribers {
		select {
		case ch <- data:
		default:
			// Slow subscriber: drop rather than block the transfer engine.
		}
	}
}

type progressEvent struct {
	Pubkey     string `json:"pubkey"`
	Sending    bool   `json:"sending"`
	TotalFiles int    `json:"total_files"`
	DoneFiles  int    `json:"done_files"`
	TotalBytes uint64 `json:"total_bytes"`
	DoneBytes  uint64 `json:"done_bytes"`
}

func (s *Server) handleContacts(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.backend.ListContacts())
}

type sendFileRequest struct {
	Pubkey string `json:"pubkey"`
	Path   string `json:"path"`
}

func (s *Server) handleSendFile(w http.ResponseWriter, r *http.Request) {
	var req sendFileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.backend.EnqueueFile(req.Pubkey, req.Path); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

type sendBatchRequest struct {
	Pubkey  string   `json:"pubkey"`
	BaseDir string   `json:"base_dir"`
	Names   []string `json:"names"`
}

func (s *Server) handleSendBatch(w http.ResponseWriter, r *http.Request) {
	var req sendBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := s.backend.EnqueueBatch(req.Pubkey, req.BaseDir, req.Names); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handleStartDiscovery(w http.ResponseWriter, r *http.Request) {
	s.backend.StartDiscovery()
	w.WriteHeader(http.StatusAccepted)
}

// handleProgressStream upgrades to a WebSocket and forwards every
// published progress event until the client disconnects.
func (s *Server) handleProgressStream(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ch := make(chan []byte, 16)
	s.subsMu.Lock()
	s.subscribers[ch] = struct{}{}
	s.subsMu.Unlock()
	defer func() {
		s.subsMu.Lock()
		delete(s.subscribers, ch)
		s.subsMu.Unlock()
	}()

	for data := range ch {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
