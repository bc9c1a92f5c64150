/*
File Name:  Test_test.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner
*/

package controlapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

type fakeBackend struct {
	contacts       []ContactInfo
	enqueuedFile   []string
	enqueuedBatch  []string
	discoveryStart bool
}

func (f *fakeBackend) ListContacts() []ContactInfo { return f.contacts }

func (f *fakeBackend) EnqueueFile(pubkeyHex, absolutePath string) error {
	f.enqueuedFile = append(f.enqueuedFile, pubkeyHex+":"+absolutePath)
	return nil
}

func (f *fakeBackend) EnqueueBatch(pubkeyHex, baseDir string, relativeNames []string) error {
	f.enqueuedBatch = append(f.enqueuedBatch, pubkeyHex+":"+baseDir)
	return nil
}

func (f *fakeBackend) StartDiscovery() { f.discoveryStart = true }

func TestListContacts(t *testing.T) {
	backend := &fakeBackend{contacts: []ContactInfo{{Pubkey: "abcd", DisplayName: "Alice"}}}
	srv := NewServer(backend)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/contacts")
	if err != nil {
		t.Fatalf("GET /contacts failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var got []ContactInfo
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if len(got) != 1 || got[0].DisplayName != "Alice" {
		t.Fatalf("unexpected contacts: %+v", got)
	}
}

func TestSendFileRoute(t *testing.T) {
	backend := &fakeBackend{}
	srv := NewServer(backend)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	body, _ := json.Marshal(sendFileRequest{Pubkey: "abcd", Path: "/tmp/a.bin"})
	resp, err := http.Post(ts.URL+"/send/file", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("POST /send/file failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	if len(backend.enqueuedFile) != 1 || backend.enqueuedFile[0] != "abcd:/tmp/a.bin" {
		t.Fatalf("enqueue not recorded: %+v", backend.enqueuedFile)
	}
}

func TestProgressStreamBroadcastsToSubscriber(t *testing.T) {
	backend := &fakeBackend{}
	srv := NewServer(backend)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/progress"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	defer conn.Close()

	// Give the handler a moment to register the subscriber before publishing.
	time.Sleep(50 * time.Millisecond)
	srv.PublishProgress("abcd", true, 3, 1, 300, 100)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("reading progress event failed: %v", err)
	}

	var event progressEvent
	if err := json.Unmarshal(data, &event); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if event.Pubkey != "abcd" || event.DoneBytes != 100 {
		t.Fatalf("unexpected event: %+v", event)
	}
}
