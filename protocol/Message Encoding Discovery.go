/*
File Name:  Message Encoding Discovery.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

UDP discovery datagrams (spec §4.3, §6). A request is 4 magic bytes and
nothing else; a response is 4 magic bytes followed by a tag-encoded body.
*/

package protocol

import "encoding/binary"

// Discovery magics, little-endian u32 on the wire (spec §6).
const (
	DiscoveryReqMagic  uint32 = 0x48534841 // "HSHA"
	DiscoveryRespMagic uint32 = 0x48534842 // "HSHB"
)

// DiscoveryMagicSize is the byte length of the magic prefix on every discovery datagram.
const DiscoveryMagicSize = 4

// EncodeDiscoveryRequest returns the full request datagram: just the magic.
func EncodeDiscoveryRequest() []byte {
	buf := make([]byte, DiscoveryMagicSize)
	binary.LittleEndian.PutUint32(buf, DiscoveryReqMagic)
	return buf
}

// PeekDiscoveryMagic extracts the magic value from a received datagram, if long enough.
func PeekDiscoveryMagic(datagram []byte) (magic uint32, ok bool) {
	if len(datagram) < DiscoveryMagicSize {
		return 0, false
	}
	return binary.LittleEndian.Uint32(datagram[:DiscoveryMagicSize]), true
}

// Field tags for DiscoveryResp.
const (
	tagDiscoveryRespPubkey = 1
	tagDiscoveryRespIP     = 2
	tagDiscoveryRespPort   = 3
)

// DiscoveryResp is the body following the response magic.
type DiscoveryResp struct {
	Pubkey [32]byte // Ed25519 long-term public key of the responder
	IP     string   // dotted-quad IPv4 address of the bound local socket
	Port   uint16   // TCP service port (8890)
}

// EncodeDiscoveryResponse returns the full response datagram: magic plus tag-encoded body.
func EncodeDiscoveryResponse(resp DiscoveryResp) []byte {
	buf := make([]byte, DiscoveryMagicSize)
	binary.LittleEndian.PutUint32(buf, DiscoveryRespMagic)

	w := NewFieldWriter()
	w.Bytes(tagDiscoveryRespPubkey, resp.Pubkey[:])
	w.String(tagDiscoveryRespIP, resp.IP)
	w.Uint16(tagDiscoveryRespPort, resp.Port)

	return append(buf, w.End()...)
}

// DecodeDiscoveryResponse parses the body following the response magic (caller has already stripped it).
func DecodeDiscoveryResponse(body []byte) (resp DiscoveryResp, err error) {
	r := NewFieldReader(body)
	copy(resp.Pubkey[:], r.Bytes(tagDiscoveryRespPubkey))
	resp.IP = r.String(tagDiscoveryRespIP)
	resp.Port = r.Uint16(tagDiscoveryRespPort)
	return resp, r.Err()
}
