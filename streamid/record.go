// Package streamid implements the stream-id wire format: a concatenation of
// tagged records (inline, block-ref, indirect) that together describe a
// payload of arbitrary length. It provides the id writer (Builder), the
// id reader/walker (Walker and the derived Length/MaxBlockKey/PrettyPrint
// operations), and the GC structural recursion (MaxBlockKey/Remove) over
// the block map.
//
// The format mirrors the block-entry layout the teacher's sstable package
// uses (a tag/length-prefixed record inside a flat byte buffer), generalized
// from two record kinds (key, value) to three (inline, block-ref, indirect).
package streamid

// Tag identifies which of the three record kinds follows.
type Tag byte

const (
	// TagInline marks a record whose payload bytes are embedded directly in
	// the id: varint len, then len raw bytes.
	TagInline Tag = 0
	// TagBlockRef marks a record whose payload lives in a single block of
	// the external map: varint len, varlong key.
	TagBlockRef Tag = 1
	// TagIndirect marks a record whose payload is itself a nested id,
	// stored as a block: varlong total_len, varlong key.
	TagIndirect Tag = 2
)

// Record is one decoded entry yielded by a Walker step.
type Record struct {
	Tag Tag

	// Inline holds the raw payload slice view when Tag == TagInline.
	Inline []byte

	// Len is the declared payload length for TagInline/TagBlockRef records.
	Len uint64

	// TotalLen is the declared nested-id payload length for TagIndirect
	// records.
	TotalLen uint64

	// Key is the block-map key for TagBlockRef/TagIndirect records.
	Key uint64
}

// PayloadLen returns the declared number of payload bytes this record
// contributes, regardless of its kind.
func (r Record) PayloadLen() uint64 {
	if r.Tag == TagIndirect {
		return r.TotalLen
	}
	return r.Len
}
