package streamid

import (
	"lob/varint"

	"github.com/cockroachdb/errors"
)

// ErrMalformedID is returned when an id contains an unknown tag byte or a
// truncated varint/varlong. It is the same error value as
// varint.ErrMalformedID, so callers can errors.Is against either.
var ErrMalformedID = varint.ErrMalformedID

// Walker is a cursor over an id's bytes that yields one typed Record per
// Next call, the same shape as the teacher's wal.Reader.Next and
// blockReader.fetchDataFor: a single stateful stepper rather than a slice of
// pre-parsed records, so callers can stop early without paying to decode the
// rest of the id.
type Walker struct {
	cur *varint.Cursor
}

// NewWalker returns a Walker positioned at the start of id.
func NewWalker(id []byte) *Walker {
	return &Walker{cur: varint.NewCursor(id)}
}

// NewWalkerAt returns a Walker over an already-positioned cursor, so a
// caller stepping through several spliced id fragments (the reader stream's
// indirection splicing) can keep consuming the same cursor across calls
// rather than restarting from byte zero each time.
func NewWalkerAt(cur *varint.Cursor) *Walker {
	return &Walker{cur: cur}
}

// Next decodes and returns the next record. ok is false once the id is
// exhausted; err is non-nil on a malformed tag or truncated integer.
func (w *Walker) Next() (rec Record, ok bool, err error) {
	if w.cur.Done() {
		return Record{}, false, nil
	}
	tagByte, err := w.cur.ReadByte()
	if err != nil {
		return Record{}, false, err
	}
	switch Tag(tagByte) {
	case TagInline:
		length, err := w.cur.ReadVarint()
		if err != nil {
			return Record{}, false, err
		}
		payload, err := w.cur.ReadBytes(int(length))
		if err != nil {
			return Record{}, false, err
		}
		return Record{Tag: TagInline, Inline: payload, Len: uint64(length)}, true, nil
	case TagBlockRef:
		length, err := w.cur.ReadVarint()
		if err != nil {
			return Record{}, false, err
		}
		key, err := w.cur.ReadVarlong()
		if err != nil {
			return Record{}, false, err
		}
		return Record{Tag: TagBlockRef, Len: uint64(length), Key: key}, true, nil
	case TagIndirect:
		totalLen, err := w.cur.ReadVarlong()
		if err != nil {
			return Record{}, false, err
		}
		key, err := w.cur.ReadVarlong()
		if err != nil {
			return Record{}, false, err
		}
		return Record{Tag: TagIndirect, TotalLen: totalLen, Key: key}, true, nil
	default:
		return Record{}, false, errors.Wrapf(ErrMalformedID, "streamid: unknown tag %d", tagByte)
	}
}

// Length sums the declared lengths of id's top-level records. It never
// touches the block map: for indirect records only the locally-stored
// total_len is consulted.
func Length(id []byte) (uint64, error) {
	w := NewWalker(id)
	var total uint64
	for {
		rec, ok, err := w.Next()
		if err != nil {
			return 0, err
		}
		if !ok {
			return total, nil
		}
		total += rec.PayloadLen()
	}
}

// PrettyPrint renders id as a human-readable, non-stable diagnostic dump:
// one token per record plus a trailing total length. Intended for logs
// only.
func PrettyPrint(id []byte) string {
	w := NewWalker(id)
	var b []byte
	var total uint64
	for {
		rec, ok, err := w.Next()
		if err != nil {
			b = append(b, []byte("<malformed: "+err.Error()+">\n")...)
			break
		}
		if !ok {
			break
		}
		switch rec.Tag {
		case TagInline:
			b = appendLine(b, "inline len=", rec.Len)
		case TagBlockRef:
			b = appendLine(b, "block-ref len=", rec.Len)
			b = appendKey(b, rec.Key)
		case TagIndirect:
			b = appendLine(b, "indirect total_len=", rec.TotalLen)
			b = appendKey(b, rec.Key)
		}
		total += rec.PayloadLen()
	}
	b = appendLine(b, "length=", total)
	return string(b)
}

func appendLine(b []byte, prefix string, n uint64) []byte {
	b = append(b, prefix...)
	b = appendUint(b, n)
	b = append(b, '\n')
	return b
}

func appendKey(b []byte, key uint64) []byte {
	// overwrite the trailing newline from appendLine with " key=<k>\n"
	b = b[:len(b)-1]
	b = append(b, " key="...)
	b = appendUint(b, key)
	b = append(b, '\n')
	return b
}

func appendUint(b []byte, n uint64) []byte {
	if n == 0 {
		return append(b, '0')
	}
	var digits [20]byte
	i := len(digits)
	for n > 0 {
		i--
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	return append(b, digits[i:]...)
}
