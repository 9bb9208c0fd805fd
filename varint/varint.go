// Package varint implements the variable-width unsigned integer encoding
// used by stream ids: a standard 7-bits-per-byte little-endian-group layout
// with a continuation bit set on every byte but the last (the same bit
// layout encoding/binary.PutUvarint/Uvarint already produce). It is split
// into a 32-bit "varint" and a 64-bit "varlong" flavor because the id
// format uses both, and malformed-input detection differs between the two
// (a varint caps out at 5 bytes, a varlong at 10).
package varint

import "github.com/cockroachdb/errors"

// ErrMalformedID is returned when a varint/varlong cannot be decoded: the
// buffer ends before a terminating byte is seen, or more continuation bytes
// are present than the target width permits.
var ErrMalformedID = errors.New("varint: malformed id")

// maxVarintLen and maxVarlongLen bound the number of bytes a canonical
// encoder ever produces, and the number of bytes a tolerant decoder will
// ever consume, for each width.
const (
	maxVarintLen  = 5  // ceil(32/7)
	maxVarlongLen = 10 // ceil(64/7)
)

// WriteVarint appends the canonical encoding of v to dst and returns the
// extended slice.
func WriteVarint(dst []byte, v uint32) []byte {
	var scratch [maxVarintLen]byte
	n := putUvarint(scratch[:], uint64(v))
	return append(dst, scratch[:n]...)
}

// WriteVarlong appends the canonical encoding of v to dst and returns the
// extended slice.
func WriteVarlong(dst []byte, v uint64) []byte {
	var scratch [maxVarlongLen]byte
	n := putUvarint(scratch[:], v)
	return append(dst, scratch[:n]...)
}

// putUvarint is the textbook encoding/binary.PutUvarint algorithm, inlined
// so callers never need to import encoding/binary themselves just to share
// a scratch buffer shape.
func putUvarint(buf []byte, v uint64) int {
	i := 0
	for v >= 0x80 {
		buf[i] = byte(v) | 0x80
		v >>= 7
		i++
	}
	buf[i] = byte(v)
	return i + 1
}

// Cursor is a read-only position within an id's byte string. It is the
// shared primitive streamid.Walker advances record by record.
type Cursor struct {
	buf []byte
	pos int
}

// NewCursor positions a Cursor at the start of buf.
func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Pos returns the current byte offset within the underlying buffer.
func (c *Cursor) Pos() int { return c.pos }

// Len returns the number of unread bytes.
func (c *Cursor) Len() int { return len(c.buf) - c.pos }

// Done reports whether the cursor has reached the end of the buffer.
func (c *Cursor) Done() bool { return c.pos >= len(c.buf) }

// ReadByte consumes and returns the next raw byte.
func (c *Cursor) ReadByte() (byte, error) {
	if c.pos >= len(c.buf) {
		return 0, errors.Wrap(ErrMalformedID, "varint: truncated tag")
	}
	b := c.buf[c.pos]
	c.pos++
	return b, nil
}

// ReadBytes consumes and returns the next n raw bytes as a slice view
// (no copy) into the underlying buffer.
func (c *Cursor) ReadBytes(n int) ([]byte, error) {
	if n < 0 || c.pos+n > len(c.buf) {
		return nil, errors.Wrap(ErrMalformedID, "varint: truncated payload")
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

// ReadVarint decodes a 32-bit varint, tolerating overlong encodings on
// read (per spec: canonical on write, tolerant on read) while still
// rejecting encodings wider than a 32-bit field can ever require.
func (c *Cursor) ReadVarint() (uint32, error) {
	v, err := c.readUvarint(maxVarintLen)
	if err != nil {
		return 0, err
	}
	if v > 0xFFFFFFFF {
		return 0, errors.Wrap(ErrMalformedID, "varint: value exceeds 32 bits")
	}
	return uint32(v), nil
}

// ReadVarlong decodes a 64-bit varlong.
func (c *Cursor) ReadVarlong() (uint64, error) {
	return c.readUvarint(maxVarlongLen)
}

// readUvarint implements the tolerant decode shared by ReadVarint and
// ReadVarlong: it accepts overlong encodings (extra zero-valued high bytes
// with the continuation bit set) but fails with ErrMalformedID once maxLen
// bytes have been consumed and every one of them carried the continuation
// bit, or if the buffer runs out first.
func (c *Cursor) readUvarint(maxLen int) (uint64, error) {
	var v uint64
	var shift uint
	for i := 0; i < maxLen; i++ {
		if c.pos >= len(c.buf) {
			return 0, errors.Wrap(ErrMalformedID, "varint: truncated integer")
		}
		b := c.buf[c.pos]
		c.pos++
		if b < 0x80 {
			v |= uint64(b) << shift
			return v, nil
		}
		v |= uint64(b&0x7F) << shift
		shift += 7
	}
	return 0, errors.Wrap(ErrMalformedID, "varint: too many continuation bytes")
}
