package streamid

import "lob/varint"

// Builder accumulates tagged records into a growable byte buffer, the same
// role the teacher's blockWriter plays for sstable data/index blocks: callers
// append one record at a time and read back the accumulated bytes at the
// end. There is no validation beyond what the varint codec itself enforces —
// callers (the writer pipeline) are trusted to pass consistent lengths and
// keys.
type Builder struct {
	buf []byte
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Len reports the number of bytes written into the id so far.
func (b *Builder) Len() int { return len(b.buf) }

// Bytes returns the accumulated id. The returned slice aliases the
// Builder's internal buffer and must be copied by the caller if the
// Builder is reused afterwards.
func (b *Builder) Bytes() []byte { return b.buf }

// Reset empties the builder so it can be reused.
func (b *Builder) Reset() { b.buf = b.buf[:0] }

// AppendInline writes a tag-0 record embedding payload directly in the id.
func (b *Builder) AppendInline(payload []byte) {
	b.buf = append(b.buf, byte(TagInline))
	b.buf = varint.WriteVarint(b.buf, uint32(len(payload)))
	b.buf = append(b.buf, payload...)
}

// AppendBlockRef writes a tag-1 record referencing length bytes stored in
// the block map under key.
func (b *Builder) AppendBlockRef(length int, key uint64) {
	b.buf = append(b.buf, byte(TagBlockRef))
	b.buf = varint.WriteVarint(b.buf, uint32(length))
	b.buf = varint.WriteVarlong(b.buf, key)
}

// AppendIndirect writes a tag-2 record pointing at a nested id of totalLen
// payload bytes, stored as a block under key.
func (b *Builder) AppendIndirect(totalLen uint64, key uint64) {
	b.buf = append(b.buf, byte(TagIndirect))
	b.buf = varint.WriteVarlong(b.buf, totalLen)
	b.buf = varint.WriteVarlong(b.buf, key)
}

// AppendID splices an already-built id's bytes in verbatim. Used both by
// the writer pipeline (to fold a nested id into its parent) and by Concat.
func (b *Builder) AppendID(id []byte) {
	b.buf = append(b.buf, id...)
}

// Concat returns a fresh id whose payload is the concatenation of id1's and
// id2's payloads. Per spec, any two well-formed top-level ids concatenate
// by simple byte concatenation — there is no need to re-parse either side.
func Concat(id1, id2 []byte) []byte {
	out := make([]byte, 0, len(id1)+len(id2))
	out = append(out, id1...)
	out = append(out, id2...)
	return out
}
