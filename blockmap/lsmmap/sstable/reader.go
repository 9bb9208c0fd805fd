package sstable

import (
	"encoding/binary"
	"fmt"
	"io"
	"io/fs"

	"github.com/cockroachdb/errors"
	"github.com/golang/snappy"

	"lob/blockmap/lsmmap/memtable"
)

// ErrKeyNotFound is returned by Get when the sstable has no entry for the
// requested key.
var ErrKeyNotFound = errors.New("sstable: key not found")

type statReaderAtCloser interface {
	Stat() (fs.FileInfo, error)
	io.ReaderAt
	io.Closer
}

// BlockEntry is one decoded (key, value) pair returned by Entries.
type BlockEntry struct {
	Key   uint64
	Value *memtable.BlockValue
}

// Reader provides lookups over one immutable sstable file. The whole
// decompressed chunk is cached after the first lookup, since block map
// values can be arbitrarily sized and repeatedly re-reading the footer for
// every Get would cost more disk I/O than keeping the (already bounded by
// the engine's flush threshold) chunk resident.
type Reader struct {
	file     statReaderAtCloser
	fileSize int64

	raw        []byte // decompressed entry stream, loaded lazily
	numEntries int
}

func NewReader(file io.Reader) (*Reader, error) {
	r := &Reader{}
	var ok bool
	r.file, ok = file.(statReaderAtCloser)
	if !ok {
		return nil, errors.New("sstable: reader requires a ReaderAt+Stat+Closer file")
	}
	info, err := r.file.Stat()
	if err != nil {
		return nil, err
	}
	r.fileSize = info.Size()
	return r, nil
}

// loadChunk reads the footer, fetches the compressed chunk, and
// decompresses it into r.raw. It is a no-op once already loaded.
func (r *Reader) loadChunk() error {
	if r.raw != nil {
		return nil
	}
	if r.fileSize < footerSize {
		return fmt.Errorf("sstable: file too small to contain a footer (%d bytes)", r.fileSize)
	}
	var footer [footerSize]byte
	if _, err := r.file.ReadAt(footer[:], r.fileSize-footerSize); err != nil {
		return err
	}
	rawLen := binary.LittleEndian.Uint32(footer[0:4])
	compLen := binary.LittleEndian.Uint32(footer[4:8])
	r.numEntries = int(binary.LittleEndian.Uint32(footer[8:12]))

	compressed := make([]byte, compLen)
	chunkOffset := r.fileSize - footerSize - int64(compLen)
	if _, err := r.file.ReadAt(compressed, chunkOffset); err != nil {
		return err
	}
	raw, err := snappy.Decode(make([]byte, 0, rawLen), compressed)
	if err != nil {
		return err
	}
	r.raw = raw
	return nil
}

// Get performs a linear scan of the decompressed entry stream for
// searchKey, mirroring the teacher's sequentialSearch. sstables in this
// engine are small (bounded by the memtable flush threshold) and are
// superseded by compaction, so a full scan per miss is an acceptable
// trade for the simplicity of a single compressed chunk.
func (r *Reader) Get(searchKey uint64) (*memtable.BlockValue, error) {
	if err := r.loadChunk(); err != nil {
		return nil, err
	}
	buf := r.raw
	offset := 0
	for offset < len(buf) {
		if offset+blockKeySize > len(buf) {
			break
		}
		key := binary.BigEndian.Uint64(buf[offset : offset+blockKeySize])
		offset += blockKeySize

		valLen, n := binary.Uvarint(buf[offset:])
		if n <= 0 {
			break
		}
		offset += n
		val := buf[offset : offset+int(valLen)]
		offset += int(valLen)

		if key == searchKey {
			return memtable.ParseBlockValue(val), nil
		}
	}
	return nil, ErrKeyNotFound
}

// Entries returns every (key, decoded value) pair in the sstable, in the
// order they were written (ascending key order, since the memtable
// iterator that fed ConvertMemtableToSST walks the skiplist bottom level).
// Used by the engine's compaction/GC pass.
func (r *Reader) Entries() ([]BlockEntry, error) {
	if err := r.loadChunk(); err != nil {
		return nil, err
	}
	var out []BlockEntry
	buf := r.raw
	offset := 0
	for offset < len(buf) {
		if offset+blockKeySize > len(buf) {
			break
		}
		key := binary.BigEndian.Uint64(buf[offset : offset+blockKeySize])
		offset += blockKeySize

		valLen, n := binary.Uvarint(buf[offset:])
		if n <= 0 {
			break
		}
		offset += n
		val := buf[offset : offset+int(valLen)]
		offset += int(valLen)

		out = append(out, BlockEntry{Key: key, Value: memtable.ParseBlockValue(val)})
	}
	return out, nil
}

func (r *Reader) Close() error {
	err := r.file.Close()
	r.file = nil
	return err
}
