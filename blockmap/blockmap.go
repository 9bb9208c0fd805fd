// Package blockmap defines the narrow contract the LOB store expects from
// its backing ordered key→value map (spec.md §4.4/§6): a place to append
// payload blocks and get a fresh, strictly increasing key back; fetch a
// block by key; remove a block; and a handful of maintenance pass-throughs.
// The map itself — compaction, persistence format, concurrency control — is
// the external collaborator's business; this package only names the shape
// every implementation must have. blockmap/memmap and blockmap/lsmmap are
// two concrete implementations.
package blockmap

import "github.com/cockroachdb/errors"

// ErrBlockNotFound is returned by Get when key has no live entry.
var ErrBlockNotFound = errors.New("blockmap: block not found")

// Map is the external ordered key→value map contract the LOB store is
// built on top of.
type Map interface {
	// Append stores data under a freshly allocated key and returns that
	// key. Keys are strictly increasing for the lifetime of the map and
	// are never reused, even after Remove.
	Append(data []byte) (uint64, error)

	// Get returns the bytes stored under key, or ErrBlockNotFound.
	Get(key uint64) ([]byte, error)

	// Remove deletes the entry at key. It tolerates removing a key that
	// still has a live entry (callers never remove the same key twice).
	Remove(key uint64) error

	// LastKey returns the largest key ever allocated by Append, or false
	// if Append has never been called.
	LastKey() (uint64, bool)

	// IsEmpty reports whether Append has never been called (equivalently,
	// whether LastKey's second return would be false).
	IsEmpty() bool

	// Clear removes every block and resets key allocation.
	Clear() error

	// Save flushes any buffered state to durable storage.
	Save() error

	// GC performs maintenance (e.g. compaction) to reclaim space used by
	// removed blocks. It does not know which blocks an application still
	// considers live; that determination is the LOB store's job via
	// streamid.MaxBlockKey/Remove.
	GC() error

	// Close releases resources held by the map. The map must not be used
	// afterwards.
	Close() error
}
