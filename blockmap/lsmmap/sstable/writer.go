// Package sstable persists a flushed memtable as an immutable, sorted,
// snappy-compressed file. Adapted from the teacher's lsm/sstable package.
//
// The retrieved snapshot of lsm/sstable mixed two incompatible iterations
// of the on-disk format: block_writer.go/block_reader.go implement a
// shared-prefix-compressed, multi-chunk index-block scheme, while
// writer.go/reader.go implement a simpler per-entry format with a
// different footer layout, and reader.go's binarySearch/sequentialSearch
// calls reference helpers (index.search with a direction flag,
// readKeyAt-with-prefix-reconstruction) that don't match
// block_reader.go's actual signatures. Rather than guess which iteration
// the rest of the engine depended on, this reconciles both into one
// consistent, single-chunk-per-file format, shaped around the block map's
// own domain rather than an arbitrary-key KV store: every entry in a
// flushed memtable is its fixed 8-byte block key followed by a varint
// length-prefixed tagged value (no key-length prefix — a block key is
// always 8 bytes), the whole buffer is snappy-compressed as a unit
// (keeping the compression dependency exercised on both the read and
// write path, unlike the original writer.go which only decompressed on
// read), and a fixed 12-byte footer records the compressed/uncompressed
// lengths and entry count. The scratchBuf idiom (grow a bytes.Buffer,
// borrow its spare capacity) and the bufio/File Sync-then-Close shutdown
// sequence are kept verbatim from the teacher.
package sstable

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"io"

	"github.com/golang/snappy"

	"lob/blockmap/lsmmap/memtable"
)

// footerSize is 4 bytes uncompressed length + 4 bytes compressed length +
// 4 bytes entry count.
const footerSize = 12

// blockKeySize is the fixed width of every block map key.
const blockKeySize = 8

// syncCloser is the subset of *os.File the writer needs.
type syncCloser interface {
	io.Closer
	Sync() error
}

// Writer accumulates a memtable's entries into one compressed chunk and
// writes it, followed by a footer, to a new sstable file.
type Writer struct {
	file syncCloser
	bw   *bufio.Writer
	buf  *bytes.Buffer // staging area for the uncompressed entry stream

	numEntries int
}

func NewWriter(file io.Writer) *Writer {
	w := &Writer{}
	w.file, _ = file.(syncCloser)
	w.bw = bufio.NewWriter(file)
	w.buf = bytes.NewBuffer(make([]byte, 0, 4096))
	return w
}

// scratchBuf hands back needed bytes of the staging buffer's spare
// capacity, growing it first if necessary.
func (w *Writer) scratchBuf(needed int) []byte {
	available := w.buf.Available()
	if needed > available {
		w.buf.Grow(needed)
	}
	buf := w.buf.AvailableBuffer()
	return buf[:needed]
}

// writeEntry appends one entry to the staging buffer: the fixed 8-byte
// block key, followed by a varint length-prefixed tagged value.
func (w *Writer) writeEntry(key, encodedVal []byte) error {
	valLen := len(encodedVal)
	needed := blockKeySize + binary.MaxVarintLen64 + valLen
	buf := w.scratchBuf(needed)

	copy(buf, key[:blockKeySize])
	n := blockKeySize
	n += binary.PutUvarint(buf[n:], uint64(valLen))
	copy(buf[n:], encodedVal)

	used := n + valLen
	if _, err := w.buf.Write(buf[:used]); err != nil {
		return err
	}
	w.numEntries++
	return nil
}

// ConvertMemtableToSST writes every entry of m, in key order, into this
// sstable file.
func (w *Writer) ConvertMemtableToSST(m *memtable.Memtable) error {
	iter := m.Iterator()
	for iter.HasNext() {
		key, val := iter.Next()
		if err := w.writeEntry(key, val); err != nil {
			return err
		}
	}
	return w.flushChunk()
}

// flushChunk compresses the staged entries and writes them plus the
// footer.
func (w *Writer) flushChunk() error {
	raw := w.buf.Bytes()
	compressed := snappy.Encode(nil, raw)
	if _, err := w.bw.Write(compressed); err != nil {
		return err
	}

	var footer [footerSize]byte
	binary.LittleEndian.PutUint32(footer[0:4], uint32(len(raw)))
	binary.LittleEndian.PutUint32(footer[4:8], uint32(len(compressed)))
	binary.LittleEndian.PutUint32(footer[8:12], uint32(w.numEntries))
	_, err := w.bw.Write(footer[:])
	return err
}

// Close flushes any buffered writes, forces them to stable storage, and
// closes the underlying file.
func (w *Writer) Close() error {
	if err := w.bw.Flush(); err != nil {
		return err
	}
	if err := w.file.Sync(); err != nil {
		return err
	}
	if err := w.file.Close(); err != nil {
		return err
	}
	w.bw = nil
	w.file = nil
	return nil
}
