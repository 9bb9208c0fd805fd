// Package skiplist implements the in-memory ordered structure backing a
// memtable. Adapted from the teacher's lsm/skiplist package; the node
// layout, search/insert/delete logic, and level-probability table are
// unchanged. The only functional change is the source of randomness:
// lsm/fastrand (a package not present in the retrieved pack) is replaced
// with math/rand/v2, matching darshanime-pebble's own choice of
// math/rand/v2 over a hand-rolled PRNG elsewhere in the corpus. An Iterator
// is added so a memtable can be drained in key order when flushing to an
// sstable.
package skiplist

import (
	"bytes"
	"math"
	"math/rand/v2"
)

const (
	MaxHeight = 16
	p         = 0.5
)

var probabilities [MaxHeight]uint32

type node struct {
	key   []byte
	val   []byte
	tower [MaxHeight]*node
}

type SkipList struct {
	head   *node // starting head node
	height int   // current height
	count  int   // number of entries, reported by Len
}

func init() {
	probability := 1.0

	for level := 0; level < MaxHeight; level++ {
		probabilities[level] = uint32(probability * float64(math.MaxUint32))
		probability *= p
	}
}

func randomHeight() int {
	seed := rand.Uint32()

	height := 1
	for height < MaxHeight && seed <= probabilities[height] {
		height++
	}

	return height
}

func NewSkipList() *SkipList {
	return &SkipList{
		head:   &node{},
		height: 1,
	}
}

func (sl *SkipList) search(key []byte) (*node, [MaxHeight]*node) {
	var next *node
	var journey [MaxHeight]*node

	prev := sl.head
	// top to bottom level
	for level := sl.height - 1; level >= 0; level-- {
		for next = prev.tower[level]; next != nil; next = prev.tower[level] {
			// key <= next.key
			if bytes.Compare(key, next.key) <= 0 {
				break
			}
			// key > next.key
			prev = next
		}
		journey[level] = prev
	}

	if next != nil && bytes.Equal(key, next.key) {
		return next, journey
	}
	return nil, journey
}

func (sl *SkipList) Get(key []byte) ([]byte, bool) {
	n, _ := sl.search(key)

	if n != nil {
		return n.val, true
	}
	return nil, false
}

func (sl *SkipList) Insert(key, val []byte) {
	n, journey := sl.search(key)

	// update value of existing key
	if n != nil {
		n.val = val
		return
	}

	height := randomHeight()
	newNode := &node{
		key: key,
		val: val,
	}

	// bottom to top level
	for level := 0; level < height; level++ {
		prev := journey[level]
		if prev == nil {
			// prev is nil if we extend the height of the tree
			// journey array won't have an entry for it.
			prev = sl.head
		}
		newNode.tower[level] = prev.tower[level]
		prev.tower[level] = newNode
	}

	// update current height of skiplist
	if height > sl.height {
		sl.height = height
	}
	sl.count++
}

func (sl *SkipList) shrink() {
	for level := sl.height - 1; level >= 0; level-- {
		if sl.head.tower[level] == nil {
			sl.height--
		} else {
			break
		}
	}
}

func (sl *SkipList) Delete(key []byte) bool {
	n, journey := sl.search(key)

	// no such key exists
	if n == nil {
		return false
	}

	// bottom to top level
	for level := 0; level < sl.height; level++ {
		prev := journey[level]

		if prev.tower[level] != n {
			break
		}

		prev.tower[level] = n.tower[level]
		n.tower[level] = nil
	}

	sl.count--
	// shrink height if the removed node was the only node residing on
	// that particular level of the skip list.
	sl.shrink()
	return true
}

// Len returns the number of entries currently in the skip list.
func (sl *SkipList) Len() int { return sl.count }

// Iterator walks a SkipList's bottom level in ascending key order.
type Iterator struct {
	next *node
	key  []byte
	val  []byte
}

// Iterator returns an Iterator positioned before the first entry.
func (sl *SkipList) Iterator() *Iterator {
	return &Iterator{next: sl.head.tower[0]}
}

// HasNext reports whether another entry remains.
func (it *Iterator) HasNext() bool {
	return it.next != nil
}

// Next advances the iterator and returns the current key/value pair.
func (it *Iterator) Next() ([]byte, []byte) {
	it.key, it.val = it.next.key, it.next.val
	it.next = it.next.tower[0]
	return it.key, it.val
}
