// Package memtable is the mutable, in-memory write buffer for the lsmmap
// block map engine: inserts land here first (after being durably logged to
// the WAL) and are periodically flushed to an sstable. Adapted from the
// teacher's lsm/memtable package, generalized from an arbitrary-[]byte-keyed
// KV store to the block map's own domain: keys are always the engine's
// strictly increasing uint64 block keys, and a value is tagged live or
// tombstoned with BlockValue rather than a generic op-code envelope.
package memtable

import (
	"encoding/binary"

	"lob/blockmap/lsmmap/skiplist"
)

// blockTag marks whether a stored value is a live block or a tombstone for
// a removed one — the one bit of metadata every block map entry carries
// alongside its payload, in both a memtable and the sstable flushed from it.
type blockTag byte

const (
	tagRemove blockTag = iota
	tagAppend
)

// BlockValue is a memtable/sstable entry's value together with its tag.
type BlockValue struct {
	val       []byte
	tombstone bool
}

func (bv *BlockValue) Value() []byte     { return bv.val }
func (bv *BlockValue) IsTombstone() bool { return bv.tombstone }

// EncodeValue prefixes val with its live/tombstone tag byte. Exported so
// the sstable writer can reuse the exact encoding a flushed memtable
// entry already carries, rather than re-deriving it.
func EncodeValue(val []byte, tombstone bool) []byte {
	tag := tagAppend
	if tombstone {
		tag = tagRemove
	}
	buf := make([]byte, len(val)+1)
	buf[0] = byte(tag)
	copy(buf[1:], val)
	return buf
}

// ParseBlockValue decodes a byte blob written by EncodeValue. Used by both
// Memtable.Get and the sstable reader, since a flushed sstable entry is the
// memtable's encoded bytes verbatim.
func ParseBlockValue(buf []byte) *BlockValue {
	val := append([]byte(nil), buf[1:]...)
	return &BlockValue{val: val, tombstone: blockTag(buf[0]) == tagRemove}
}

// keyBytes encodes a block key as 8-byte big-endian so the skiplist's
// byte-wise ordering matches numeric key ordering.
func keyBytes(k uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], k)
	return b[:]
}

// blockKeySize is the fixed width every memtable/sstable key occupies.
const blockKeySize = 8

type Memtable struct {
	sl        *skiplist.SkipList
	sizeUsed  int    // approximate space used by the memtable so far, in bytes
	sizeLimit int    // maximum allowed size of the memtable, in bytes
	logSeq    uint64 // sequence number of the WAL file this memtable's writes were logged to
}

func NewMemtable(sizeLimit int, logSeq uint64) *Memtable {
	return &Memtable{
		sl:        skiplist.NewSkipList(),
		sizeLimit: sizeLimit,
		logSeq:    logSeq,
	}
}

// HasRoomForWrite reports whether the memtable has space for one more
// block entry without exceeding sizeLimit.
func (m *Memtable) HasRoomForWrite(key uint64, val []byte) bool {
	sizeAvailable := m.sizeLimit - m.sizeUsed
	// blockKeySize for the key, +1 for the tag byte.
	return (blockKeySize + len(val) + 1) <= sizeAvailable
}

func (m *Memtable) Insert(key uint64, val []byte) {
	m.sl.Insert(keyBytes(key), EncodeValue(val, false))
	m.sizeUsed += blockKeySize + len(val) + 1
}

func (m *Memtable) InsertTombstone(key uint64) {
	m.sl.Insert(keyBytes(key), EncodeValue(nil, true))
	m.sizeUsed += blockKeySize + 1
}

func (m *Memtable) Get(key uint64) (*BlockValue, bool) {
	encoded, found := m.sl.Get(keyBytes(key))
	if !found {
		return nil, false
	}
	return ParseBlockValue(encoded), true
}

func (m *Memtable) Size() int {
	return m.sizeUsed
}

func (m *Memtable) Len() int {
	return m.sl.Len()
}

// Iterator walks the memtable's entries in ascending key order. Keys and
// values come back exactly as stored: an 8-byte big-endian key and a
// tag-prefixed value, ready for the sstable writer to persist as-is.
func (m *Memtable) Iterator() *skiplist.Iterator {
	return m.sl.Iterator()
}

func (m *Memtable) LogSeq() uint64 {
	return m.logSeq
}
