// Package memmap provides an in-memory blockmap.Map, mostly useful for
// tests and small/ephemeral deployments — the uint64-keyed analogue of
// perkeep's pkg/sorted in-memory KeyValue (mem.go), which guards a plain Go
// map with a single mutex rather than reaching for a real embedded engine.
package memmap

import (
	"sync"

	"lob/blockmap"
)

// Map is a mutex-guarded, purely in-memory blockmap.Map.
type Map struct {
	mu      sync.Mutex
	blocks  map[uint64][]byte
	hasLast bool
	lastKey uint64
}

// New returns an empty Map.
func New() *Map {
	return &Map{blocks: make(map[uint64][]byte)}
}

var _ blockmap.Map = (*Map)(nil)

// Append stores data under a freshly allocated, strictly increasing key.
func (m *Map) Append(data []byte) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var key uint64
	if m.hasLast {
		key = m.lastKey + 1
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	m.blocks[key] = cp
	m.lastKey = key
	m.hasLast = true
	return key, nil
}

// Get returns the bytes stored under key, or blockmap.ErrBlockNotFound.
func (m *Map) Get(key uint64) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.blocks[key]
	if !ok {
		return nil, blockmap.ErrBlockNotFound
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

// Remove deletes the entry at key. Removing an already-absent key is a
// no-op, matching the "tolerate removing a key that exists" contract
// (there is nothing special to tolerate for a plain map delete).
func (m *Map) Remove(key uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.blocks, key)
	return nil
}

// LastKey returns the largest key ever allocated by Append.
func (m *Map) LastKey() (uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastKey, m.hasLast
}

// IsEmpty reports whether Append has never been called.
func (m *Map) IsEmpty() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.hasLast
}

// Clear removes every block and resets key allocation.
func (m *Map) Clear() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks = make(map[uint64][]byte)
	m.hasLast = false
	m.lastKey = 0
	return nil
}

// Save is a no-op: there is nothing buffered beyond the map itself.
func (m *Map) Save() error { return nil }

// GC is a no-op: an in-memory map has no compaction to perform.
func (m *Map) GC() error { return nil }

// Close releases the map's contents.
func (m *Map) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks = nil
	return nil
}
