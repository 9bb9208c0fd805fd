// Package lsmmap adapts the teacher's LSM storage engine (db + memtable +
// skiplist + wal + sstable) into a durable, disk-backed blockmap.Map: an
// ordered map keyed by a strictly increasing uint64 rather than an
// arbitrary []byte, with block removal implemented as the engine's existing
// tombstone mechanism rather than a new concept.
//
// Where the teacher's db.Open referenced a lsm/storage.Provider for file
// bookkeeping that wasn't present in the retrieved pack, this package
// manages sequence-numbered ".wal"/".sst" files in a directory directly —
// the same os.File + bufio + Sync pattern the wal and sstable packages
// already use, just without an extra layer of indirection around it.
package lsmmap

import (
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"

	"lob/blockmap"
	"lob/blockmap/lsmmap/memtable"
	"lob/blockmap/lsmmap/sstable"
	"lob/blockmap/lsmmap/wal"
)

const (
	memtableSizeLimit      = 4 << 20 // 4 MiB per memtable before rotation
	memtableFlushThreshold = 8 << 20 // 8 MiB of queued memtables before a flush
)

// Engine is a directory-backed blockmap.Map implemented as a small LSM
// engine: writes land in a WAL-backed memtable and are periodically
// flushed to immutable, snappy-compressed sstable files.
type Engine struct {
	dir string

	mutable *memtable.Memtable
	queue   []*memtable.Memtable

	walWriter *wal.Writer
	walFile   *os.File
	walSeq    uint64

	sstableSeqs []uint64 // oldest to newest

	nextSeq uint64 // next sequence number to assign to a new wal/sstable file

	hasLastKey bool
	lastKey    uint64
	nextKey    uint64
}

var _ blockmap.Map = (*Engine)(nil)

// Open opens (creating if necessary) a block map rooted at dir, replaying
// any WAL files left over from an unclean shutdown.
func Open(dir string) (*Engine, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrap(err, "lsmmap: create data directory")
	}
	e := &Engine{dir: dir}

	walSeqs, sstSeqs, err := e.scanDir()
	if err != nil {
		return nil, err
	}
	e.sstableSeqs = sstSeqs
	for _, seq := range append(append([]uint64{}, sstSeqs...), walSeqs...) {
		if seq >= e.nextSeq {
			e.nextSeq = seq + 1
		}
	}

	if err := e.computeKeyWatermark(); err != nil {
		return nil, err
	}

	for _, seq := range walSeqs {
		if err := e.replayWAL(seq); err != nil {
			return nil, err
		}
	}

	if err := e.createNewWAL(); err != nil {
		return nil, err
	}
	e.rotateMemtables()
	return e, nil
}

func (e *Engine) walPath(seq uint64) string  { return filepath.Join(e.dir, fmt.Sprintf("%06d.wal", seq)) }
func (e *Engine) sstPath(seq uint64) string  { return filepath.Join(e.dir, fmt.Sprintf("%06d.sst", seq)) }

func (e *Engine) scanDir() (walSeqs, sstSeqs []uint64, err error) {
	entries, err := os.ReadDir(e.dir)
	if err != nil {
		return nil, nil, errors.Wrap(err, "lsmmap: read data directory")
	}
	for _, ent := range entries {
		name := ent.Name()
		switch {
		case strings.HasSuffix(name, ".wal"):
			seq, perr := strconv.ParseUint(strings.TrimSuffix(name, ".wal"), 10, 64)
			if perr == nil {
				walSeqs = append(walSeqs, seq)
			}
		case strings.HasSuffix(name, ".sst"):
			seq, perr := strconv.ParseUint(strings.TrimSuffix(name, ".sst"), 10, 64)
			if perr == nil {
				sstSeqs = append(sstSeqs, seq)
			}
		}
	}
	sort.Slice(walSeqs, func(i, j int) bool { return walSeqs[i] < walSeqs[j] })
	sort.Slice(sstSeqs, func(i, j int) bool { return sstSeqs[i] < sstSeqs[j] })
	return walSeqs, sstSeqs, nil
}

// computeKeyWatermark scans every sstable (live or tombstoned entries
// alike) to find the highest key ever allocated, so that Append never
// reissues a key even across restarts. WAL replay folds its own records
// into this watermark as it goes.
func (e *Engine) computeKeyWatermark() error {
	for _, seq := range e.sstableSeqs {
		f, err := os.Open(e.sstPath(seq))
		if err != nil {
			return err
		}
		r, err := sstable.NewReader(f)
		if err != nil {
			f.Close()
			return err
		}
		entries, err := r.Entries()
		r.Close()
		if err != nil {
			return err
		}
		for _, ent := range entries {
			e.observeKey(ent.Key)
		}
	}
	return nil
}

func (e *Engine) observeKey(k uint64) {
	if !e.hasLastKey || k > e.lastKey {
		e.lastKey = k
		e.hasLastKey = true
	}
	if k+1 > e.nextKey {
		e.nextKey = k + 1
	}
}

func (e *Engine) rotateMemtables() *memtable.Memtable {
	e.mutable = memtable.NewMemtable(memtableSizeLimit, e.walSeq)
	e.queue = append(e.queue, e.mutable)
	return e.mutable
}

func (e *Engine) createNewWAL() error {
	seq := e.nextSeq
	e.nextSeq++
	f, err := os.OpenFile(e.walPath(seq), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.Wrap(err, "lsmmap: create wal file")
	}
	e.walFile = f
	e.walWriter = wal.NewWriter(f)
	e.walSeq = seq
	return nil
}

func (e *Engine) rotateWAL() error {
	if err := e.walWriter.Close(); err != nil {
		return errors.Wrap(err, "lsmmap: close wal file during rotation")
	}
	return e.createNewWAL()
}

func (e *Engine) replayWAL(seq uint64) error {
	f, err := os.Open(e.walPath(seq))
	if err != nil {
		return err
	}
	defer f.Close()

	r := wal.NewReader(f)
	e.walSeq = seq
	m := e.rotateMemtables()
	for {
		key, val, tombstone, rerr := r.Next()
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				break
			}
			return rerr
		}
		if !m.HasRoomForWrite(key, val) {
			m = e.rotateMemtables()
		}
		if tombstone {
			m.InsertTombstone(key)
		} else {
			m.Insert(key, val)
		}
		e.observeKey(key)
	}

	// flushQueue removes the WAL file(s) behind whatever it flushes, which
	// includes this replayed one.
	return e.flushQueue()
}

func (e *Engine) maybeFlush() error {
	var total int
	for _, m := range e.queue {
		total += m.Size()
	}
	if total > memtableFlushThreshold {
		return e.flushQueue()
	}
	return nil
}

// flushQueue writes every memtable currently queued (including the mutable
// one, which is rotated out first if it holds any data) to fresh sstable
// files, then deletes the WAL files those memtables were logged against —
// their contents are now durable in sstable form, so replaying them again
// on the next Open would only re-create what compaction already holds.
func (e *Engine) flushQueue() error {
	mutableHadData := e.mutable != nil && e.mutable.Len() > 0
	if mutableHadData {
		if err := e.rotateWAL(); err != nil {
			return err
		}
		e.rotateMemtables()
	}
	flushable := e.queue
	e.queue = nil
	if e.mutable != nil {
		// Keep the (still empty) mutable memtable live across this flush:
		// after a rotation it is the fresh one, otherwise the untouched one.
		e.queue = append(e.queue, e.mutable)
		for i, m := range flushable {
			if m == e.mutable {
				flushable = append(flushable[:i], flushable[i+1:]...)
				break
			}
		}
	}

	consumedWALSeqs := make(map[uint64]bool)
	for _, m := range flushable {
		if m.Len() == 0 {
			continue
		}
		seq := e.nextSeq
		e.nextSeq++
		f, err := os.OpenFile(e.sstPath(seq), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		if err != nil {
			return errors.Wrap(err, "lsmmap: create sstable file")
		}
		w := sstable.NewWriter(f)
		if err := w.ConvertMemtableToSST(m); err != nil {
			w.Close()
			return errors.Wrap(err, "lsmmap: flush memtable")
		}
		if err := w.Close(); err != nil {
			return errors.Wrap(err, "lsmmap: close sstable file")
		}
		e.sstableSeqs = append(e.sstableSeqs, seq)
		consumedWALSeqs[m.LogSeq()] = true
	}
	if e.mutable == nil {
		e.rotateMemtables()
	}
	delete(consumedWALSeqs, e.walSeq)
	for seq := range consumedWALSeqs {
		if err := os.Remove(e.walPath(seq)); err != nil && !os.IsNotExist(err) {
			log.Printf("lsmmap: failed to remove flushed wal file %d: %v", seq, err)
		}
	}
	return nil
}

// Append stores data under a freshly allocated, strictly increasing key.
func (e *Engine) Append(data []byte) (uint64, error) {
	key := e.nextKey

	if err := e.walWriter.RecordAppend(key, data); err != nil {
		return 0, errors.Wrap(err, "lsmmap: log append")
	}
	if !e.mutable.HasRoomForWrite(key, data) {
		if err := e.rotateWAL(); err != nil {
			return 0, err
		}
		e.rotateMemtables()
	}
	e.mutable.Insert(key, data)
	e.nextKey++
	e.lastKey = key
	e.hasLastKey = true

	if err := e.maybeFlush(); err != nil {
		return 0, err
	}
	return key, nil
}

// Get returns the bytes stored under key, or blockmap.ErrBlockNotFound.
func (e *Engine) Get(key uint64) ([]byte, error) {
	for i := len(e.queue) - 1; i >= 0; i-- {
		if ev, ok := e.queue[i].Get(key); ok {
			if ev.IsTombstone() {
				return nil, blockmap.ErrBlockNotFound
			}
			return append([]byte(nil), ev.Value()...), nil
		}
	}

	for i := len(e.sstableSeqs) - 1; i >= 0; i-- {
		f, err := os.Open(e.sstPath(e.sstableSeqs[i]))
		if err != nil {
			return nil, err
		}
		r, err := sstable.NewReader(f)
		if err != nil {
			f.Close()
			return nil, err
		}
		ev, err := r.Get(key)
		r.Close()
		if err != nil {
			if errors.Is(err, sstable.ErrKeyNotFound) {
				continue
			}
			return nil, err
		}
		if ev.IsTombstone() {
			return nil, blockmap.ErrBlockNotFound
		}
		return append([]byte(nil), ev.Value()...), nil
	}

	return nil, blockmap.ErrBlockNotFound
}

// Remove deletes the entry at key via a tombstone, the same durability
// path as Append.
func (e *Engine) Remove(key uint64) error {
	if err := e.walWriter.RecordRemove(key); err != nil {
		return errors.Wrap(err, "lsmmap: log remove")
	}
	if !e.mutable.HasRoomForWrite(key, nil) {
		if err := e.rotateWAL(); err != nil {
			return err
		}
		e.rotateMemtables()
	}
	e.mutable.InsertTombstone(key)
	return e.maybeFlush()
}

// LastKey returns the largest key ever allocated by Append.
func (e *Engine) LastKey() (uint64, bool) {
	return e.lastKey, e.hasLastKey
}

// IsEmpty reports whether Append has never been called.
func (e *Engine) IsEmpty() bool {
	return !e.hasLastKey
}

// Save flushes every buffered memtable to durable sstable files.
func (e *Engine) Save() error {
	return e.flushQueue()
}

// GC compacts every live sstable into one, dropping tombstoned entries
// (safe because the compaction pass covers the engine's entire history —
// there is no older sstable left that could still hold a stale value for a
// dropped key).
func (e *Engine) GC() error {
	if err := e.flushQueue(); err != nil {
		return err
	}
	if len(e.sstableSeqs) <= 1 {
		return nil
	}

	live := make(map[uint64][]byte)
	// Oldest to newest, so a later sstable's entry for a key overwrites an
	// earlier one — newest value (or tombstone) for each key wins.
	for _, seq := range e.sstableSeqs {
		f, err := os.Open(e.sstPath(seq))
		if err != nil {
			return err
		}
		r, err := sstable.NewReader(f)
		if err != nil {
			f.Close()
			return err
		}
		entries, err := r.Entries()
		r.Close()
		if err != nil {
			return err
		}
		for _, ent := range entries {
			if ent.Value.IsTombstone() {
				delete(live, ent.Key)
			} else {
				live[ent.Key] = ent.Value.Value()
			}
		}
	}

	keys := make([]uint64, 0, len(live))
	for k := range live {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	newSeq := e.nextSeq
	e.nextSeq++
	f, err := os.OpenFile(e.sstPath(newSeq), os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return errors.Wrap(err, "lsmmap: create compacted sstable")
	}
	w := sstable.NewWriter(f)

	// Stage all live entries into one oversized memtable and flush it in a
	// single pass, reusing ConvertMemtableToSST's entry encoding rather than
	// duplicating it here. GC runs far less often than Append/Remove, so the
	// extra copy through a memtable is an acceptable trade.
	staging := memtable.NewMemtable(len(live)*(64<<10), e.walSeq)
	for _, k := range keys {
		staging.Insert(k, live[k])
	}
	if err := w.ConvertMemtableToSST(staging); err != nil {
		w.Close()
		return errors.Wrap(err, "lsmmap: write compacted sstable")
	}
	if err := w.Close(); err != nil {
		return errors.Wrap(err, "lsmmap: close compacted sstable")
	}

	oldSeqs := e.sstableSeqs
	e.sstableSeqs = []uint64{newSeq}
	for _, seq := range oldSeqs {
		if err := os.Remove(e.sstPath(seq)); err != nil {
			log.Printf("lsmmap: failed to remove compacted sstable %d: %v", seq, err)
		}
	}
	return nil
}

// Clear removes every block and resets key allocation.
func (e *Engine) Clear() error {
	if e.walWriter != nil {
		if err := e.walWriter.Close(); err != nil {
			return err
		}
	}
	entries, err := os.ReadDir(e.dir)
	if err != nil {
		return err
	}
	for _, ent := range entries {
		if strings.HasSuffix(ent.Name(), ".wal") || strings.HasSuffix(ent.Name(), ".sst") {
			if err := os.Remove(filepath.Join(e.dir, ent.Name())); err != nil {
				return err
			}
		}
	}
	e.sstableSeqs = nil
	e.queue = nil
	e.hasLastKey = false
	e.lastKey = 0
	e.nextKey = 0
	if err := e.createNewWAL(); err != nil {
		return err
	}
	e.rotateMemtables()
	return nil
}

// Close flushes and releases the engine's resources.
func (e *Engine) Close() error {
	if err := e.flushQueue(); err != nil {
		return err
	}
	if e.walWriter != nil {
		return e.walWriter.Close()
	}
	return nil
}
