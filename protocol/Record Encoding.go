/*
File Name:  Record Encoding.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

Every record on the wire is a 4-byte little-endian length followed by
that many bytes of body: `uint32_le length || body`. The body is either
a handshake message, an AEAD ciphertext wrapping a tag-encoded message,
or (for file data) an AEAD ciphertext wrapping a fixed stream header
plus raw bytes. This file only concerns itself with the length prefix;
everything past it is opaque to the record layer.
*/

package protocol

import (
	"encoding/binary"
	"errors"
	"io"
)

// RecordLengthMin and RecordLengthMax bound a valid record body size (spec invariant I5).
const (
	RecordLengthMin = 4
	RecordLengthMax = 100000 // exclusive upper bound
)

// ErrRecordLength is a fatal protocol violation: the record's declared length is out of bounds.
var ErrRecordLength = errors.New("protocol: record length out of bounds")

// WriteRecord writes a single length-prefixed record to w.
func WriteRecord(w io.Writer, body []byte) error {
	if len(body) < RecordLengthMin || len(body) >= RecordLengthMax {
		return ErrRecordLength
	}
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

// ReadRecord blocks until a single length-prefixed record has been read from r.
func ReadRecord(r io.Reader) (body []byte, err error) {
	var lenBuf [4]byte
	if _, err = io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	length := binary.LittleEndian.Uint32(lenBuf[:])
	if length < RecordLengthMin || length >= RecordLengthMax {
		return nil, ErrRecordLength
	}
	body = make([]byte, length)
	if _, err = io.ReadFull(r, body); err != nil {
		return nil, err
	}
	return body, nil
}

// frameState is the reassembly phase of an incremental FrameReader.
type frameState int

const (
	frameStateLength frameState = iota
	frameStateBody
)

// FrameReader incrementally reassembles length-prefixed records out of
// data arriving in arbitrary-sized chunks from a non-blocking socket.
// It never blocks: Feed absorbs whatever is available and returns
// whichever complete records that yields, carrying partial state
// between calls. This is the Go equivalent of the reassembly fields on
// SessionConnection (read_len_progress/expected_len/body_buffer).
type FrameReader struct {
	state       frameState
	lenBuf      [4]byte
	lenProgress int
	expectedLen uint32
	body        []byte
	bodyPos     int
}

// NewFrameReader creates an empty incremental record reassembler.
func NewFrameReader() *FrameReader {
	return &FrameReader{}
}

// Feed absorbs data (e.g. from one socket-readable notification) and
// returns every record that has become complete, plus the count of bytes
// consumed from data. A non-nil error is always fatal to the connection
// (spec §4.4 Close) and must not be fed again.
func (f *FrameReader) Feed(data []byte) (records [][]byte, consumed int, err error) {
	i := 0
	for i < len(data) {
		switch f.state {
		case frameStateLength:
			n := copy(f.lenBuf[f.lenProgress:], data[i:])
			f.lenProgress += n
			i += n
			if f.lenProgress < 4 {
				continue
			}
			f.expectedLen = binary.LittleEndian.Uint32(f.lenBuf[:])
			if f.expectedLen < RecordLengthMin || f.expectedLen >= RecordLengthMax {
				return records, i, ErrRecordLength
			}
			f.body = make([]byte, f.expectedLen)
			f.bodyPos = 0
			f.state = frameStateBody
		case frameStateBody:
			n := copy(f.body[f.bodyPos:], data[i:])
			f.bodyPos += n
			i += n
			if f.bodyPos < len(f.body) {
				continue
			}
			records = append(records, f.body)
			f.body = nil
			f.bodyPos = 0
			f.lenProgress = 0
			f.state = frameStateLength
		}
	}
	return records, i, nil
}

// Pending reports whether a partial record is currently being reassembled.
// Used to distinguish an orderly EOF between records (silent close) from
// an EOF in the middle of a length or body prefix (logged error, spec §4.4).
func (f *FrameReader) Pending() bool {
	return f.state == frameStateBody || f.lenProgress > 0
}
