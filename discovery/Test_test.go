/*
File Name:  Test_test.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner
*/

package discovery

import (
	"net"
	"testing"

	"github.com/hsha/lanshare/protocol"
)

func TestHandleResponseDedupsByPubkey(t *testing.T) {
	e := &Endpoint{
		selfAddr: make(map[string]struct{}),
		seen:     make(map[[32]byte]discoveredEntry),
	}

	var resp protocol.DiscoveryResp
	resp.Pubkey[0] = 0x01
	resp.IP = "192.168.1.77"
	resp.Port = 8890

	body := protocol.EncodeDiscoveryResponse(resp)[protocol.DiscoveryMagicSize:]
	ifi := selectedInterface{index: 3, name: "eth0"}

	e.handleResponse(body, ifi)
	e.handleResponse(body, ifi) // duplicate, must not produce a second entry

	if len(e.seen) != 1 {
		t.Fatalf("expected 1 discovered peer after duplicate response, got %d", len(e.seen))
	}
	entry, ok := e.seen[resp.Pubkey]
	if !ok {
		t.Fatalf("pubkey missing from seen set")
	}
	if entry.peer.Pubkey != resp.Pubkey {
		t.Fatalf("pubkey mismatch")
	}
}

func TestHandleResponseIgnoresSelf(t *testing.T) {
	e := &Endpoint{
		selfAddr: map[string]struct{}{"192.168.1.5": {}},
		seen:     make(map[[32]byte]discoveredEntry),
	}
	e.selfID.Public[0] = 0x02

	var resp protocol.DiscoveryResp
	resp.Pubkey = e.selfID.Public
	resp.IP = "192.168.1.5"
	resp.Port = 8890

	body := protocol.EncodeDiscoveryResponse(resp)[protocol.DiscoveryMagicSize:]
	e.handleResponse(body, selectedInterface{index: 0, name: "eth0"})

	if len(e.seen) != 0 {
		t.Fatalf("expected self-response to be ignored, got %d entries", len(e.seen))
	}
}

// TestHandleResponseDedupKeepsLowestMetric exercises the spec's "keep the
// result whose receiving socket has the lowest OS metric" rule: the same
// peer reported on two local interfaces must survive only under the
// lower-index interface's name, regardless of arrival order.
func TestHandleResponseDedupKeepsLowestMetric(t *testing.T) {
	e := &Endpoint{
		selfAddr: make(map[string]struct{}),
		seen:     make(map[[32]byte]discoveredEntry),
	}

	var resp protocol.DiscoveryResp
	resp.Pubkey[0] = 0x09
	resp.IP = "192.168.1.200"
	resp.Port = 8890
	body := protocol.EncodeDiscoveryResponse(resp)[protocol.DiscoveryMagicSize:]

	high := selectedInterface{index: 5, name: "eth1"}
	low := selectedInterface{index: 1, name: "eth0"}

	// Higher-index interface reports first, then the lower-index one: the
	// lower index must win even though it arrives second.
	e.handleResponse(body, high)
	e.handleResponse(body, low)

	entry, ok := e.seen[resp.Pubkey]
	if !ok {
		t.Fatalf("expected peer to be recorded")
	}
	if entry.index != low.index || entry.peer.IfaceName != low.name {
		t.Fatalf("expected lowest-metric interface %q (index %d) to win, got %q (index %d)",
			low.name, low.index, entry.peer.IfaceName, entry.index)
	}

	// A later, higher-index duplicate must not overwrite the winner.
	e.handleResponse(body, high)
	entry, _ = e.seen[resp.Pubkey]
	if entry.peer.IfaceName != low.name {
		t.Fatalf("higher-metric duplicate must not replace the lowest-metric winner")
	}
}

func TestSelectInterfacesSkipsLoopback(t *testing.T) {
	selected, err := selectInterfaces()
	if err != nil {
		t.Fatalf("selectInterfaces failed: %v", err)
	}
	for _, s := range selected {
		if s.ip.IsLoopback() {
			t.Fatalf("loopback address %s should have been excluded", s.ip)
		}
		if net.IPv4(127, 0, 0, 1).Equal(s.ip) {
			t.Fatalf("unexpected loopback IP in selection")
		}
	}
}
