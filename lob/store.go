// Package lob is the LOB (Large Object) chunked stream store: it persists
// arbitrarily large byte streams inside a blockmap.Map by encoding them as a
// compact, self-describing stream id (see package streamid) and presenting
// them back as an ordinary io.Reader. Store is the public entry point,
// mirroring the teacher's db.DB as the single object a caller opens,
// configures, and drives.
package lob

import (
	"sync/atomic"

	"github.com/cockroachdb/errors"

	"lob/blockmap"
	"lob/streamid"
)

// Default block-size thresholds (spec.md §3).
const (
	DefaultMinBlockSize = 256
	DefaultMaxBlockSize = 262144
)

// ErrIO marks a failure reading from the caller's input stream or from the
// backing block map, as distinct from a malformed id (streamid.ErrMalformedID)
// or a missing block (blockmap.ErrBlockNotFound). Use errors.Is(err, ErrIO)
// to detect it; the underlying cause remains reachable via errors.Cause/As.
var ErrIO = errors.New("lob: io error")

// ioError wraps cause as an ErrIO, preserving it in the error chain.
func ioError(cause error, msg string) error {
	return errors.Mark(errors.Wrap(cause, msg), ErrIO)
}

// Store is a LOB stream store backed by a blockmap.Map. It is safe for
// concurrent use by multiple goroutines calling Put/GetInputStream/Remove
// concurrently (each Put/GetInputStream call owns its own state), but it
// does not coordinate concurrent mutation of the same id — see spec.md §5.
type Store struct {
	bm blockmap.Map

	minBlockSize atomic.Int64
	maxBlockSize atomic.Int64

	// nextBuffer is the single-slot chunk-buffer cache: a lock-free
	// compare-and-swap slot, not a pool. A losing take() degrades to a
	// fresh allocation, never to corruption (spec.md §4.5/§9).
	nextBuffer atomic.Pointer[[]byte]
}

// Config holds the block-size thresholds a Store is opened with. A zero
// field means "use the default" — MinBlockSize/MaxBlockSize behave like the
// teacher's own zero-value-means-default config fields rather than
// requiring every caller to spell out both defaults.
type Config struct {
	MinBlockSize int
	MaxBlockSize int
}

// New returns a Store backed by bm, with default block-size thresholds.
func New(bm blockmap.Map) *Store {
	return NewWithConfig(bm, Config{})
}

// NewWithConfig returns a Store backed by bm, applying cfg's thresholds
// (falling back to the defaults for any zero field).
func NewWithConfig(bm blockmap.Map, cfg Config) *Store {
	s := &Store{bm: bm}
	minSize, maxSize := cfg.MinBlockSize, cfg.MaxBlockSize
	if minSize == 0 {
		minSize = DefaultMinBlockSize
	}
	if maxSize == 0 {
		maxSize = DefaultMaxBlockSize
	}
	s.minBlockSize.Store(int64(minSize))
	s.maxBlockSize.Store(int64(maxSize))
	return s
}

func (s *Store) GetMinBlockSize() int { return int(s.minBlockSize.Load()) }
func (s *Store) SetMinBlockSize(n int) { s.minBlockSize.Store(int64(n)) }
func (s *Store) GetMaxBlockSize() int { return int(s.maxBlockSize.Load()) }
func (s *Store) SetMaxBlockSize(n int) { s.maxBlockSize.Store(int64(n)) }

// Length returns id's total payload length without any block-map reads.
func (s *Store) Length(id []byte) (uint64, error) {
	return streamid.Length(id)
}

// MaxBlockKey returns the largest block-map key reachable from id, or -1 if
// id references no blocks.
func (s *Store) MaxBlockKey(id []byte) (int64, error) {
	return streamid.MaxBlockKey(id, s.bm)
}

// Remove deletes every block reachable from id.
func (s *Store) Remove(id []byte) error {
	return streamid.Remove(id, s.bm)
}

// ToString renders id as a non-stable diagnostic dump, for logs only.
func (s *Store) ToString(id []byte) string {
	return streamid.PrettyPrint(id)
}

// Save, GC, Clear, Close, IsEmpty and LastKey are forwarded verbatim to the
// backing block map (spec.md §4.4).
func (s *Store) Save() error             { return s.bm.Save() }
func (s *Store) GC() error               { return s.bm.GC() }
func (s *Store) Clear() error            { return s.bm.Clear() }
func (s *Store) Close() error            { return s.bm.Close() }
func (s *Store) IsEmpty() bool           { return s.bm.IsEmpty() }
func (s *Store) LastKey() (uint64, bool) { return s.bm.LastKey() }

// takeBuffer returns a buffer of exactly size bytes, reusing the cached one
// if present and correctly sized, otherwise allocating fresh.
func (s *Store) takeBuffer(size int) []byte {
	for {
		p := s.nextBuffer.Load()
		if p == nil {
			return make([]byte, size)
		}
		if !s.nextBuffer.CompareAndSwap(p, nil) {
			continue // another put() won the race; retry
		}
		if len(*p) == size {
			return *p
		}
		return make([]byte, size) // stale size from a reconfiguration
	}
}

// offerBuffer returns buf to the slot if it is empty, and drops it
// otherwise. Losing the race is not an error.
func (s *Store) offerBuffer(buf []byte) {
	s.nextBuffer.CompareAndSwap(nil, &buf)
}
