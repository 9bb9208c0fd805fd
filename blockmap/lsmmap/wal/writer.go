// Package wal implements the write-ahead log the lsmmap engine durably
// records block appends and removals to before they land in a memtable.
// Adapted from the teacher's lsm/wal package: the fixed-size block, chunk
// header, and chunk-splitting logic are unchanged. The record framing
// itself is re-shaped for the block map's domain: a key is always the
// engine's 8-byte block key rather than an arbitrary-length byte string,
// so a record needs no key-length prefix at all, just the 8 raw key bytes
// followed by a one-byte live/tombstone tag and the value.
package wal

import (
	"bytes"
	"encoding/binary"
	"io"
)

const headerSize = 3

const (
	chunkTypeFull   = 1
	chunkTypeFirst  = 2
	chunkTypeMiddle = 3
	chunkTypeLast   = 4
)

const blockSize = 4 << 10 // 4 KiB

// keySize is the fixed width of a block map key within a WAL record.
const keySize = 8

// tag marks whether a record is a block append or a removal.
type tag byte

const (
	tagRemove tag = iota
	tagAppend
)

type block struct {
	buf    [blockSize]byte // scratch space for writing records in memory
	offset int             // current position within the block to write/read from
	len    int             // total size of the data block (can be <blockSize for last block)
}

type syncWriteCloser interface {
	io.WriteCloser
	Sync() error
}

// Writer assembles data blocks in memory before writing them to the WAL
// file.
type Writer struct {
	block *block
	file  syncWriteCloser
	buf   *bytes.Buffer // staging area for splitting the payload into block-sized chunks
}

func NewWriter(logFile syncWriteCloser) *Writer {
	return &Writer{
		block: &block{},
		file:  logFile,
		buf:   &bytes.Buffer{},
	}
}

// scratchBuf handles the dynamic resizing of the bytes.Buffer based on the
// length of the incoming payload.
func (w *Writer) scratchBuf(needed int) []byte {
	available := w.buf.Available()
	if needed > available {
		w.buf.Grow(needed)
	}
	buf := w.buf.AvailableBuffer()
	return buf[:needed]
}

// writeAndSync writes to the underlying WAL file and forces a sync of its
// contents to stable storage.
func (w *Writer) writeAndSync(p []byte) (err error) {
	if _, err = w.file.Write(p); err != nil {
		return err
	}
	if err = w.file.Sync(); err != nil {
		return err
	}
	return nil
}

// sealBlock zero-pads the current block and persists it.
func (w *Writer) sealBlock() error {
	b := w.block
	clear(b.buf[b.offset:])
	if err := w.writeAndSync(b.buf[b.offset:]); err != nil {
		return err
	}
	// Prepare the data block for the next write. The buffer itself stays
	// dirty (holding the previous block's contents), but only the newly
	// modified portion is synced on subsequent writes.
	b.offset = 0
	return nil
}

// record logs one fixed-width key, its tag, and val, splitting across
// blocks as needed.
func (w *Writer) record(key uint64, t tag, val []byte) error {
	valLen := len(val)
	maxLen := keySize + 1 + valLen
	scratch := w.scratchBuf(maxLen)
	binary.BigEndian.PutUint64(scratch, key)
	scratch[keySize] = byte(t)
	copy(scratch[keySize+1:], val)
	dataLen := maxLen
	scratch = scratch[:dataLen]

	for chunk := 0; len(scratch) > 0; chunk++ {
		b := w.block
		if b.offset+headerSize >= blockSize {
			if err := w.sealBlock(); err != nil {
				return err
			}
		}
		buf := b.buf[b.offset:]
		dataLen = copy(buf[headerSize:], scratch)
		binary.LittleEndian.PutUint16(buf, uint16(dataLen))
		scratch = scratch[dataLen:]
		b.offset += dataLen + headerSize

		if b.offset < blockSize {
			if chunk == 0 {
				buf[2] = chunkTypeFull
			} else {
				buf[2] = chunkTypeLast
			}
		} else {
			if chunk == 0 {
				buf[2] = chunkTypeFirst
			} else {
				buf[2] = chunkTypeMiddle
			}
		}

		if err := w.writeAndSync(buf[:dataLen+headerSize]); err != nil {
			return err
		}
	}
	return nil
}

// RecordAppend durably logs a block append (key, val) before it is applied
// to the memtable.
func (w *Writer) RecordAppend(key uint64, val []byte) error {
	return w.record(key, tagAppend, val)
}

// RecordRemove durably logs a block removal.
func (w *Writer) RecordRemove(key uint64) error {
	return w.record(key, tagRemove, nil)
}

func (w *Writer) Close() (err error) {
	if err = w.sealBlock(); err != nil {
		return err
	}
	err = w.file.Close()
	w.file = nil
	if err != nil {
		return err
	}
	return nil
}
