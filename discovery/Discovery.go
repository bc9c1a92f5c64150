/*
File Name:  Discovery.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

LAN discovery (spec §4.3, C3). One UDP socket is bound per usable
network interface, broadcasting a magic-prefixed request and collecting
magic-prefixed responses from other agents on the same segment. When
several interfaces sit on the same subnet (common with virtual
adapters), only the lowest-metric one is used; net.Interface does not
expose the OS routing metric directly, so interface index is used as
the ordering proxy (lower index wins ties, matching how most stacks
assign metrics in enumeration order).
*/

package discovery

import (
	"net"
	"sync"
	"time"

	"github.com/hsha/lanshare/crypto"
	"github.com/hsha/lanshare/protocol"
)

// DiscoveryUDPPort is the fixed UDP port discovery broadcasts and listens on (spec §6).
const DiscoveryUDPPort = 8891

// maxDatagramSize bounds a single recvfrom buffer.
const maxDatagramSize = 2048

// Peer is one discovered agent, reported once per unique pubkey per burst.
type Peer struct {
	Pubkey    [32]byte
	IP        net.IP
	Port      uint16
	IfaceName string // name of the winning (lowest-metric) receiving interface
}

// LogFunc receives discovery diagnostics, mirroring Filters.LogError's signature.
type LogFunc func(module string, format string, v ...interface{})

// discoveredEntry tracks, for one pubkey, the peer as reported on the
// lowest-index interface seen so far this burst.
type discoveredEntry struct {
	index int
	peer  Peer
}

// Endpoint owns the UDP sockets for every selected local interface.
type Endpoint struct {
	selfID   crypto.Identity
	tcpPort  uint16
	log      LogFunc
	sockets  []*net.UDPConn
	selfAddr map[string]struct{} // bound local addresses, for self-response suppression

	mu   sync.Mutex
	seen map[[32]byte]discoveredEntry // dedup accumulator for the current burst, lowest-index wins
}

// NewEndpoint binds one UDP socket per selected network interface and
// starts its receive loop. tcpPort is advertised in responses as the
// agent's session service port.
func NewEndpoint(identity *crypto.Identity, tcpPort uint16, log LogFunc) (*Endpoint, error) {
	e := &Endpoint{
		selfID:   *identity,
		tcpPort:  tcpPort,
		log:      log,
		selfAddr: make(map[string]struct{}),
		seen:     make(map[[32]byte]discoveredEntry),
	}

	ifaces, err := selectInterfaces()
	if err != nil {
		return nil, err
	}

	for _, ifi := range ifaces {
		conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: ifi.ip, Port: DiscoveryUDPPort})
		if err != nil {
			if log != nil {
				log("discovery", "listen on %s failed: %v", ifi.ip, err)
			}
			continue
		}
		e.selfAddr[ifi.ip.String()] = struct{}{}
		e.sockets = append(e.sockets, conn)
		go e.receiveLoop(conn, ifi)
	}

	return e, nil
}

// selectedInterface is one interface address chosen to bind a discovery socket on.
type selectedInterface struct {
	ip     net.IP
	prefix string
	index  int
	name   string
}

// selectInterfaces enumerates local IPv4 interfaces (spec Non-goals exclude
// IPv6) and keeps, for each distinct subnet, only the lowest-index
// interface bound to it.
func selectInterfaces() ([]selectedInterface, error) {
	ifaceList, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	best := make(map[string]selectedInterface)
	for _, ifi := range ifaceList {
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := ifi.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipnet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipnet.IP.To4()
			if ip4 == nil {
				continue
			}
			key := (&net.IPNet{IP: ip4.Mask(ipnet.Mask), Mask: ipnet.Mask}).String()
			cur, exists := best[key]
			if !exists || ifi.Index < cur.index {
				best[key] = selectedInterface{ip: ip4, prefix: key, index: ifi.Index, name: ifi.Name}
			}
		}
	}

	selected := make([]selectedInterface, 0, len(best))
	for _, s := range best {
		selected = append(selected, s)
	}
	return selected, nil
}

// isSelfAddr reports whether ip is the bound local address of one of our
// own discovery sockets.
func (e *Endpoint) isSelfAddr(ip string) bool {
	_, ok := e.selfAddr[ip]
	return ok
}

// receiveLoop handles both discovery requests (answer with our identity)
// and discovery responses (forwarded to the active burst, if any) arriving
// on one socket. It never blocks the rest of the agent: this goroutine is
// I/O-only and only touches shared state through the mutex-guarded seen map.
func (e *Endpoint) receiveLoop(conn *net.UDPConn, ifi selectedInterface) {
	buf := make([]byte, maxDatagramSize)
	for {
		n, sender, err := conn.ReadFromUDP(buf)
		if err != nil {
			return // socket closed
		}
		datagram := append([]byte(nil), buf[:n]...)

		magic, ok := protocol.PeekDiscoveryMagic(datagram)
		if !ok {
			continue
		}

		switch magic {
		case protocol.DiscoveryReqMagic:
			// spec §4.3: drop requests whose source address exactly equals
			// the bound local address of any owned socket.
			if e.isSelfAddr(sender.IP.String()) {
				continue
			}
			e.respond(conn, sender)
		case protocol.DiscoveryRespMagic:
			e.handleResponse(datagram[protocol.DiscoveryMagicSize:], ifi)
		}
	}
}

// respond answers a discovery request with our own identity and session port.
func (e *Endpoint) respond(conn *net.UDPConn, to *net.UDPAddr) {
	resp := protocol.DiscoveryResp{
		Pubkey: e.selfID.Public,
		IP:     conn.LocalAddr().(*net.UDPAddr).IP.String(),
		Port:   e.tcpPort,
	}
	datagram := protocol.EncodeDiscoveryResponse(resp)
	if _, err := conn.WriteToUDP(datagram, to); err != nil && e.log != nil {
		e.log("discovery", "responding to %s failed: %v", to, err)
	}
}

// handleResponse decodes a response and, if it arrived on a lower-metric
// interface than any prior response from the same pubkey this burst,
// records it as the winning result (spec §4.3 dedup rule).
func (e *Endpoint) handleResponse(body []byte, ifi selectedInterface) {
	resp, err := protocol.DecodeDiscoveryResponse(body)
	if err != nil {
		return
	}
	if _, isSelf := e.selfAddr[resp.IP]; isSelf && resp.Pubkey == e.selfID.Public {
		return
	}

	peer := Peer{
		Pubkey:    resp.Pubkey,
		IP:        net.ParseIP(resp.IP),
		Port:      resp.Port,
		IfaceName: ifi.name,
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if existing, already := e.seen[resp.Pubkey]; already && existing.index <= ifi.index {
		return
	}
	e.seen[resp.Pubkey] = discoveredEntry{index: ifi.index, peer: peer}
}

// Burst sends a discovery request on every bound socket, waits window for
// replies, and returns the deduplicated set of peers seen (spec §4.3:
// DiscoveryBurstWindow defaults to 500ms).
func (e *Endpoint) Burst(window time.Duration) []Peer {
	e.mu.Lock()
	e.seen = make(map[[32]byte]discoveredEntry)
	e.mu.Unlock()

	req := protocol.EncodeDiscoveryRequest()
	broadcastAddr := &net.UDPAddr{IP: net.IPv4bcast, Port: DiscoveryUDPPort}
	for _, conn := range e.sockets {
		if _, err := conn.WriteToUDP(req, broadcastAddr); err != nil && e.log != nil {
			e.log("discovery", "broadcast on %s failed: %v", conn.LocalAddr(), err)
		}
	}

	time.Sleep(window)

	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Peer, 0, len(e.seen))
	for _, entry := range e.seen {
		out = append(out, entry.peer)
	}
	return out
}

// Close releases every bound discovery socket.
func (e *Endpoint) Close() {
	for _, conn := range e.sockets {
		conn.Close()
	}
}
