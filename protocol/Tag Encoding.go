/*
File Name:  Tag Encoding.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

Generic tagged-field encoding used by every message body on the wire.
A body is a sequence of fields, each `tag_id (1 byte) || payload`,
terminated by a zero tag byte. Fields must be written in ascending tag
order; on decode, fields are read in ascending tag order too, which is
what makes the format forward and backward compatible: a reader that
does not know about a trailing tag simply stops before it, and a reader
that expects a tag the writer omitted gets the zero value for it.
*/

package protocol

import (
	"encoding/binary"
	"errors"
)

// ErrTruncated is returned when a read would consume bytes past the end of the body.
var ErrTruncated = errors.New("tag encoding: truncated field")

// FieldWriter builds a tagged-field message body. Fields must be appended
// in ascending tag order; End must be called exactly once to terminate
// the body and obtain the encoded bytes.
type FieldWriter struct {
	buf     []byte
	lastTag uint8
}

// NewFieldWriter creates an empty field writer.
func NewFieldWriter() *FieldWriter {
	return &FieldWriter{}
}

func (w *FieldWriter) tag(id uint8) {
	if id <= w.lastTag {
		panic("protocol: tag encoding requires strictly ascending tag ids")
	}
	w.lastTag = id
	w.buf = append(w.buf, id)
}

// Bool appends a 1-byte boolean field.
func (w *FieldWriter) Bool(id uint8, v bool) {
	w.tag(id)
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

// Uint8 appends a 1-byte field.
func (w *FieldWriter) Uint8(id uint8, v uint8) {
	w.tag(id)
	w.buf = append(w.buf, v)
}

// Uint16 appends a little-endian 2-byte field.
func (w *FieldWriter) Uint16(id uint8, v uint16) {
	w.tag(id)
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

// Uint32 appends a little-endian 4-byte field.
func (w *FieldWriter) Uint32(id uint8, v uint32) {
	w.tag(id)
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

// Uint64 appends a little-endian 8-byte field.
func (w *FieldWriter) Uint64(id uint8, v uint64) {
	w.tag(id)
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	w.buf = append(w.buf, tmp[:]...)
}

// Bytes appends a length-prefixed byte slice field.
func (w *FieldWriter) Bytes(id uint8, v []byte) {
	w.tag(id)
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(len(v)))
	w.buf = append(w.buf, tmp[:]...)
	w.buf = append(w.buf, v...)
}

// String appends a length-prefixed UTF-8 string field.
func (w *FieldWriter) String(id uint8, v string) {
	w.Bytes(id, []byte(v))
}

// OptionalUint32 appends a present-flag followed, if present, by the value.
func (w *FieldWriter) OptionalUint32(id uint8, v *uint32) {
	w.tag(id)
	if v == nil {
		w.buf = append(w.buf, 0)
		return
	}
	w.buf = append(w.buf, 1)
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], *v)
	w.buf = append(w.buf, tmp[:]...)
}

// End terminates the body with the zero tag and returns the encoded bytes.
func (w *FieldWriter) End() []byte {
	return append(w.buf, 0)
}

// FieldReader decodes a tagged-field message body written by FieldWriter.
// Every typed getter implements the ascending-tag-order decode rule from
// the wire format: reading for tag E, a lower tag R < E is treated as a
// stray/older field and is skipped by decoding (and discarding) one value
// of the SAME type as the field being sought - this mirrors the decoder's
// "type-parameterized skip", which always uses the caller's declared type
// rather than the actual (unknown) type of the skipped field. A higher tag
// R > E, or the terminator, means the sought field is absent; the cursor
// is pushed back so later getters still see it.
type FieldReader struct {
	buf []byte
	pos int
	err error
}

// NewFieldReader wraps a decoded record body.
func NewFieldReader(body []byte) *FieldReader {
	return &FieldReader{buf: body}
}

// Err returns the first decode error encountered, if any.
func (r *FieldReader) Err() error {
	return r.err
}

// seek positions the reader on the field matching id, skipping lower
// stray tags along the way via skip. It returns true if the field is
// present (cursor now sits just after the tag byte), false if absent
// (cursor pushed back so later getters see the same tag).
func (r *FieldReader) seek(id uint8, skip func()) bool {
	if r.err != nil {
		return false
	}
	for {
		if r.pos >= len(r.buf) {
			r.err = ErrTruncated
			return false
		}
		realID := r.buf[r.pos]
		r.pos++
		switch {
		case realID == 0:
			r.pos--
			return false
		case realID == id:
			return true
		case realID < id:
			skip()
			if r.err != nil {
				return false
			}
		default: // realID > id
			r.pos--
			return false
		}
	}
}

func (r *FieldReader) need(n int) bool {
	if r.err != nil {
		return false
	}
	if r.pos+n > len(r.buf) {
		r.err = ErrTruncated
		return false
	}
	return true
}

// skipFixed advances the cursor past a fixed-size stray field without
// touching any getter's output parameter.
func (r *FieldReader) skipFixed(n int) {
	if r.need(n) {
		r.pos += n
	}
}

// Bool reads a boolean field, defaulting to false if absent.
func (r *FieldReader) Bool(id uint8) (v bool) {
	if !r.seek(id, func() { r.skipFixed(1) }) {
		return
	}
	if r.need(1) {
		v = r.buf[r.pos] != 0
		r.pos++
	}
	return
}

// Uint8 reads a 1-byte field, defaulting to 0 if absent.
func (r *FieldReader) Uint8(id uint8) (v uint8) {
	if !r.seek(id, func() { r.skipFixed(1) }) {
		return
	}
	if r.need(1) {
		v = r.buf[r.pos]
		r.pos++
	}
	return
}

// Uint16 reads a little-endian 2-byte field, defaulting to 0 if absent.
func (r *FieldReader) Uint16(id uint8) (v uint16) {
	if !r.seek(id, func() { r.skipFixed(2) }) {
		return
	}
	if r.need(2) {
		v = binary.LittleEndian.Uint16(r.buf[r.pos:])
		r.pos += 2
	}
	return
}

// Uint32 reads a little-endian 4-byte field, defaulting to 0 if absent.
func (r *FieldReader) Uint32(id uint8) (v uint32) {
	if !r.seek(id, func() { r.skipFixed(4) }) {
		return
	}
	if r.need(4) {
		v = binary.LittleEndian.Uint32(r.buf[r.pos:])
		r.pos += 4
	}
	return
}

// Uint64 reads a little-endian 8-byte field, defaulting to 0 if absent.
func (r *FieldReader) Uint64(id uint8) (v uint64) {
	if !r.seek(id, func() { r.skipFixed(8) }) {
		return
	}
	if r.need(8) {
		v = binary.LittleEndian.Uint64(r.buf[r.pos:])
		r.pos += 8
	}
	return
}

// skipBytes advances the cursor past a stray length-prefixed field without
// touching any getter's output parameter.
func (r *FieldReader) skipBytes() {
	if !r.need(4) {
		return
	}
	size := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	r.skipFixed(int(size))
}

// Bytes reads a length-prefixed byte slice field, defaulting to nil if absent.
func (r *FieldReader) Bytes(id uint8) (v []byte) {
	if !r.seek(id, r.skipBytes) {
		return
	}
	if !r.need(4) {
		return
	}
	size := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	if !r.need(int(size)) {
		return
	}
	v = make([]byte, size)
	copy(v, r.buf[r.pos:r.pos+int(size)])
	r.pos += int(size)
	return
}

// String reads a length-prefixed UTF-8 string field, defaulting to "" if absent.
func (r *FieldReader) String(id uint8) string {
	return string(r.Bytes(id))
}

// skipOptionalUint32 advances the cursor past a stray optional-uint32 field
// without touching any getter's output parameter.
func (r *FieldReader) skipOptionalUint32() {
	if !r.need(1) {
		return
	}
	present := r.buf[r.pos]
	r.pos++
	if present == 0 {
		return
	}
	r.skipFixed(4)
}

// OptionalUint32 reads a present-flag plus value field, returning nil if absent or not set.
func (r *FieldReader) OptionalUint32(id uint8) (v *uint32) {
	if !r.seek(id, r.skipOptionalUint32) {
		return
	}
	if !r.need(1) {
		return
	}
	present := r.buf[r.pos]
	r.pos++
	if present == 0 {
		return
	}
	if !r.need(4) {
		return
	}
	val := binary.LittleEndian.Uint32(r.buf[r.pos:])
	r.pos += 4
	v = &val
	return
}
