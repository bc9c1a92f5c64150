/*
File Name:  Message Encoding Transfer.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

File-stream records (spec §4.5). Every outbound record on the transfer
channel carries a fixed 4-byte stream header inside the AEAD plaintext,
ahead of the tag-encoded body (or, for SENDFILE_DATA, ahead of the raw
file bytes). StreamID 5555 is a reserved magic identifying the
file-stream channel; a future revision could multiplex several streams
over one connection, at which point it becomes a real routing field
(spec §9).
*/

package protocol

import "encoding/binary"

// FileStreamID is the reserved stream identifier for the file-transfer channel.
const FileStreamID uint16 = 5555

// Record types carried after the stream header.
const (
	StreamTypeList    uint16 = 1 // SENDFILE_LIST: batch preamble
	StreamTypeHeader  uint16 = 2 // SENDFILE_HEADER: per-file header
	StreamTypeData    uint16 = 3 // SENDFILE_DATA: raw file bytes
	StreamTypeTrailer uint16 = 4 // SENDFILE_TRAILER: per-file checksum
)

// StreamHeaderSize is the encoded size of Header.
const StreamHeaderSize = 4

// Header prefixes every file-stream record inside the AEAD plaintext.
type Header struct {
	StreamID uint16
	Type     uint16
}

// EncodeHeader serializes the fixed stream header.
func EncodeHeader(h Header) []byte {
	buf := make([]byte, StreamHeaderSize)
	binary.LittleEndian.PutUint16(buf[0:2], h.StreamID)
	binary.LittleEndian.PutUint16(buf[2:4], h.Type)
	return buf
}

// DecodeHeader parses the fixed stream header from the front of plaintext.
// It returns the remaining plaintext (the tag-encoded body or raw data).
func DecodeHeader(plaintext []byte) (h Header, rest []byte, err error) {
	if len(plaintext) < StreamHeaderSize {
		return h, nil, ErrTruncated
	}
	h.StreamID = binary.LittleEndian.Uint16(plaintext[0:2])
	h.Type = binary.LittleEndian.Uint16(plaintext[2:4])
	return h, plaintext[StreamHeaderSize:], nil
}

// Field tags for SendFileListHeader.
const (
	tagListCount = 1
	tagListSize  = 2
)

// SendFileListHeader announces an upcoming batch (spec §4.5 SEND_FILE_LIST_HEADER).
type SendFileListHeader struct {
	Count     uint32
	TotalSize uint64
}

// Encode serializes a SendFileListHeader.
func (m *SendFileListHeader) Encode() []byte {
	w := NewFieldWriter()
	w.Uint32(tagListCount, m.Count)
	w.Uint64(tagListSize, m.TotalSize)
	return w.End()
}

// DecodeSendFileListHeader parses a SendFileListHeader body.
func DecodeSendFileListHeader(body []byte) (m SendFileListHeader, err error) {
	r := NewFieldReader(body)
	m.Count = r.Uint32(tagListCount)
	m.TotalSize = r.Uint64(tagListSize)
	return m, r.Err()
}

// Field tags for SendFileHeader.
const (
	tagFileName = 1
	tagFileSize = 2
)

// SendFileHeader announces one file about to be streamed (spec §4.5 SEND_HEADER).
type SendFileHeader struct {
	Name string // relative name, forward-slash separated
	Size uint64
}

// Encode serializes a SendFileHeader.
func (m *SendFileHeader) Encode() []byte {
	w := NewFieldWriter()
	w.String(tagFileName, m.Name)
	w.Uint64(tagFileSize, m.Size)
	return w.End()
}

// DecodeSendFileHeader parses a SendFileHeader body.
func DecodeSendFileHeader(body []byte) (m SendFileHeader, err error) {
	r := NewFieldReader(body)
	m.Name = r.String(tagFileName)
	m.Size = r.Uint64(tagFileSize)
	return m, r.Err()
}

// Field tags for SendFileTrailer.
const tagTrailerChecksum = 1

// SendFileTrailer closes out a file with its content hash (spec §4.5 SEND_TRAILER).
type SendFileTrailer struct {
	Checksum [32]byte // BLAKE2b-256 of the full file contents
}

// Encode serializes a SendFileTrailer.
func (m *SendFileTrailer) Encode() []byte {
	w := NewFieldWriter()
	w.Bytes(tagTrailerChecksum, m.Checksum[:])
	return w.End()
}

// DecodeSendFileTrailer parses a SendFileTrailer body.
func DecodeSendFileTrailer(body []byte) (m SendFileTrailer, err error) {
	r := NewFieldReader(body)
	copy(m.Checksum[:], r.Bytes(tagTrailerChecksum))
	return m, r.Err()
}
