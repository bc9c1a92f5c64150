/*
File Name:  Test_test.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner
*/

package protocol

import (
	"bytes"
	"testing"
)

func TestClientHelloRoundTrip(t *testing.T) {
	var m ClientHello
	m.Random[0] = 0xAA
	m.KexKeyShare[5] = 0xBB
	m.Nonce[3] = 0xCC

	decoded, err := DecodeClientHello(m.Encode())
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded != m {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, m)
	}
}

func TestDecodeToleratesAppendedUnknownTrailingFields(t *testing.T) {
	var m ClientHello
	m.Random[0] = 0x11

	encoded := m.Encode()
	// strip the terminator and append a higher-tag field plus a new terminator
	encoded = encoded[:len(encoded)-1]
	extra := NewFieldWriter()
	extra.Uint8(250, 7) // tag far beyond any field ClientHello knows about
	encoded = append(encoded, extra.End()...)

	decoded, err := DecodeClientHello(encoded)
	if err != nil {
		t.Fatalf("decode should tolerate unknown trailing fields: %v", err)
	}
	if decoded.Random != m.Random {
		t.Fatalf("known fields corrupted by trailing unknown field")
	}
}

// TestDecodeSkipsDeprecatedLowerTag mirrors proto/file.h's SendFileResp,
// which keeps a deprecated tag-1 placeholder ahead of its real tag-3
// field. A reader seeking tag 3 as a uint32 encounters the lower tag 1
// first; since it does not have a declared field for it, it skips one
// value of the SAME type it is currently seeking (uint32) before trying
// again - this is the wire-compatible case, where the deprecated slot
// happens to share the sought field's shape.
func TestDecodeSkipsDeprecatedLowerTag(t *testing.T) {
	w := NewFieldWriter()
	w.Uint32(1, 0xDEADBEEF) // deprecated placeholder, same shape as the field below
	w.Uint32(3, 42)
	body := w.End()

	r := NewFieldReader(body)
	got := r.Uint32(3)
	if err := r.Err(); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got != 42 {
		t.Fatalf("expected skip-then-match to yield 42, got %d", got)
	}
}

func TestDiscoveryRespRoundTrip(t *testing.T) {
	var resp DiscoveryResp
	resp.Pubkey[0] = 0x01
	resp.IP = "192.168.1.50"
	resp.Port = 8890

	datagram := EncodeDiscoveryResponse(resp)
	magic, ok := PeekDiscoveryMagic(datagram)
	if !ok || magic != DiscoveryRespMagic {
		t.Fatalf("expected response magic, got %x ok=%v", magic, ok)
	}

	decoded, err := DecodeDiscoveryResponse(datagram[DiscoveryMagicSize:])
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.IP != resp.IP || decoded.Port != resp.Port || decoded.Pubkey != resp.Pubkey {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, resp)
	}
}

func TestSendFileHeaderRoundTrip(t *testing.T) {
	m := SendFileHeader{Name: "dir/a.bin", Size: 123456}
	decoded, err := DecodeSendFileHeader(m.Encode())
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded != m {
		t.Fatalf("round trip mismatch: got %+v, want %+v", decoded, m)
	}
}

func TestStreamHeaderRoundTrip(t *testing.T) {
	h := Header{StreamID: FileStreamID, Type: StreamTypeData}
	plaintext := append(EncodeHeader(h), []byte("payload")...)

	decoded, rest, err := DecodeHeader(plaintext)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded != h {
		t.Fatalf("header mismatch: got %+v, want %+v", decoded, h)
	}
	if !bytes.Equal(rest, []byte("payload")) {
		t.Fatalf("rest mismatch: got %q", rest)
	}
}

func TestRecordRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	body := []byte("hello record")
	if err := WriteRecord(&buf, body); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	got, err := ReadRecord(&buf)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if !bytes.Equal(got, body) {
		t.Fatalf("round trip mismatch: got %q, want %q", got, body)
	}
}

func TestRecordLengthBounds(t *testing.T) {
	tests := []struct {
		name string
		body []byte
	}{
		{"too short", []byte{1, 2, 3}},
		{"empty", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteRecord(&buf, tt.body); err != ErrRecordLength {
				t.Fatalf("expected ErrRecordLength, got %v", err)
			}
		})
	}

	// Oversized body.
	var buf bytes.Buffer
	if err := WriteRecord(&buf, make([]byte, RecordLengthMax)); err != ErrRecordLength {
		t.Fatalf("expected ErrRecordLength for oversized body, got %v", err)
	}
}

func TestFrameReaderAcrossChunkBoundaries(t *testing.T) {
	var wire bytes.Buffer
	if err := WriteRecord(&wire, []byte("first record")); err != nil {
		t.Fatal(err)
	}
	if err := WriteRecord(&wire, []byte("second one")); err != nil {
		t.Fatal(err)
	}

	data := wire.Bytes()
	fr := NewFrameReader()
	var got [][]byte

	// Feed one byte at a time to exercise partial-length and partial-body reassembly.
	for i := 0; i < len(data); i++ {
		records, consumed, err := fr.Feed(data[i : i+1])
		if err != nil {
			t.Fatalf("unexpected error at byte %d: %v", i, err)
		}
		if consumed != 1 {
			t.Fatalf("expected to consume 1 byte, consumed %d", consumed)
		}
		got = append(got, records...)
	}

	if len(got) != 2 {
		t.Fatalf("expected 2 records, got %d", len(got))
	}
	if string(got[0]) != "first record" || string(got[1]) != "second one" {
		t.Fatalf("unexpected records: %q", got)
	}
	if fr.Pending() {
		t.Fatalf("reader should have no pending partial record after exact consumption")
	}
}

func TestFrameReaderRejectsOutOfRangeLength(t *testing.T) {
	var lenBuf [4]byte
	// 3 is below RecordLengthMin.
	lenBuf[0] = 3
	fr := NewFrameReader()
	_, _, err := fr.Feed(lenBuf[:])
	if err != ErrRecordLength {
		t.Fatalf("expected ErrRecordLength, got %v", err)
	}
}
