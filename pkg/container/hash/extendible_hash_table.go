// Package hash implements an extendible hash table: an associative map
// whose directory doubles and whose buckets split as they fill. The
// buffer pool uses it as the page table mapping page ids to frame ids.
package hash

import (
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"
)

// Hasher maps a key to the 64-bit hash the directory indexes on.
type Hasher[K comparable] func(K) uint64

// DefaultHasher hashes the key's formatted value with xxhash. Callers
// with a natural byte encoding for their keys should supply their own
// Hasher instead.
func DefaultHasher[K comparable]() Hasher[K] {
	return func(key K) uint64 {
		d := xxhash.New()
		fmt.Fprintf(d, "%v", key)
		return d.Sum64()
	}
}

type entry[K comparable, V any] struct {
	key   K
	value V
}

// bucket holds at most size entries, all of whose hashes agree on the
// low depth bits.
type bucket[K comparable, V any] struct {
	entries []entry[K, V]
	size    int
	depth   int
}

func newBucket[K comparable, V any](size, depth int) *bucket[K, V] {
	return &bucket[K, V]{
		entries: make([]entry[K, V], 0, size),
		size:    size,
		depth:   depth,
	}
}

func (b *bucket[K, V]) isFull() bool {
	return len(b.entries) == b.size
}

func (b *bucket[K, V]) find(key K) (V, bool) {
	for _, e := range b.entries {
		if e.key == key {
			return e.value, true
		}
	}
	var zero V
	return zero, false
}

func (b *bucket[K, V]) remove(key K) bool {
	for i, e := range b.entries {
		if e.key == key {
			b.entries = append(b.entries[:i], b.entries[i+1:]...)
			return true
		}
	}
	return false
}

// insert upserts the key. It returns false only when the bucket is full
// and the key is not already present.
func (b *bucket[K, V]) insert(key K, value V) bool {
	for i := range b.entries {
		if b.entries[i].key == key {
			b.entries[i].value = value
			return true
		}
	}
	if b.isFull() {
		return false
	}
	b.entries = append(b.entries, entry[K, V]{key: key, value: value})
	return true
}

// ExtendibleHashTable maps keys to values through a directory of
// 2^globalDepth slots, each pointing at a bucket with a local depth of
// at most globalDepth. Every directory slot whose index agrees with a
// bucket's signature on the low localDepth bits references that bucket.
//
// All operations serialize on a single per-table mutex.
type ExtendibleHashTable[K comparable, V any] struct {
	mutex       sync.Mutex
	bucketSize  int
	globalDepth int
	numBuckets  int
	dir         []*bucket[K, V]
	hasher      Hasher[K]
}

// NewExtendibleHashTable creates a table with the given bucket capacity,
// starting at global depth 1 with two buckets.
func NewExtendibleHashTable[K comparable, V any](bucketSize int) *ExtendibleHashTable[K, V] {
	return NewExtendibleHashTableWithHasher[K, V](bucketSize, DefaultHasher[K]())
}

// NewExtendibleHashTableWithHasher creates a table using the supplied
// hash function.
func NewExtendibleHashTableWithHasher[K comparable, V any](bucketSize int, hasher Hasher[K]) *ExtendibleHashTable[K, V] {
	if bucketSize <= 0 {
		panic(fmt.Sprintf("invalid bucket size %d", bucketSize))
	}
	return &ExtendibleHashTable[K, V]{
		bucketSize:  bucketSize,
		globalDepth: 1,
		numBuckets:  2,
		dir: []*bucket[K, V]{
			newBucket[K, V](bucketSize, 1),
			newBucket[K, V](bucketSize, 1),
		},
		hasher: hasher,
	}
}

// indexOf masks the key's hash down to the directory's addressable bits.
func (t *ExtendibleHashTable[K, V]) indexOf(key K) uint64 {
	mask := uint64(1)<<t.globalDepth - 1
	return t.hasher(key) & mask
}

// Find returns the value stored under key.
func (t *ExtendibleHashTable[K, V]) Find(key K) (V, bool) {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.dir[t.indexOf(key)].find(key)
}

// Insert stores the value under key, overwriting any previous value.
// Inserting into a full bucket splits it, doubling the directory when
// the bucket's local depth has reached the global depth.
func (t *ExtendibleHashTable[K, V]) Insert(key K, value V) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	for {
		b := t.dir[t.indexOf(key)]
		if b.insert(key, value) {
			return
		}

		// The bucket is full and does not hold the key. Make room
		// and retry; the loop is bounded by directory growth.
		if b.depth == t.globalDepth {
			t.doubleDirectory()
		}
		t.splitBucket(b)
	}
}

// Remove deletes the key, reporting whether it was present.
func (t *ExtendibleHashTable[K, V]) Remove(key K) bool {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.dir[t.indexOf(key)].remove(key)
}

// GetGlobalDepth returns the directory's global depth.
func (t *ExtendibleHashTable[K, V]) GetGlobalDepth() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.globalDepth
}

// GetLocalDepth returns the local depth of the bucket the directory
// slot points at.
func (t *ExtendibleHashTable[K, V]) GetLocalDepth(dirIndex int) int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.dir[dirIndex].depth
}

// GetNumBuckets returns the number of distinct buckets.
func (t *ExtendibleHashTable[K, V]) GetNumBuckets() int {
	t.mutex.Lock()
	defer t.mutex.Unlock()
	return t.numBuckets
}

// doubleDirectory copies the low half of the directory into the new
// high half and increments the global depth.
func (t *ExtendibleHashTable[K, V]) doubleDirectory() {
	prev := len(t.dir)
	t.dir = append(t.dir, make([]*bucket[K, V], prev)...)
	copy(t.dir[prev:], t.dir[:prev])
	t.globalDepth++
}

// splitBucket allocates a sibling at depth+1 and redistributes the
// bucket's entries by the newly significant hash bit. Directory slots
// whose bit is set move to the sibling.
func (t *ExtendibleHashTable[K, V]) splitBucket(b *bucket[K, V]) {
	oldDepth := b.depth
	bit := uint64(1) << oldDepth

	sibling := newBucket[K, V](t.bucketSize, oldDepth+1)
	kept := b.entries[:0]
	for _, e := range b.entries {
		if t.hasher(e.key)&bit != 0 {
			sibling.entries = append(sibling.entries, e)
		} else {
			kept = append(kept, e)
		}
	}
	b.entries = kept
	b.depth = oldDepth + 1

	for i := range t.dir {
		if t.dir[i] == b && uint64(i)&bit != 0 {
			t.dir[i] = sibling
		}
	}
	t.numBuckets++
}
