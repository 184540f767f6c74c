package btree

import (
	"encoding/binary"
	"fmt"
	"sort"

	"storecore/pkg/primitives"
)

// leafNode is the decoded form of a leaf page. Mutations happen on the
// decoded node; encode writes the result back into the page buffer
// before the page is unpinned dirty.
type leafNode[K any] struct {
	pageID  primitives.PageID
	parent  primitives.PageID
	next    primitives.PageID
	maxSize int
	keys    []K
	values  []primitives.RecordID
}

// newLeafNode returns an empty leaf with no parent and no successor.
func newLeafNode[K any](pageID primitives.PageID, maxSize int) *leafNode[K] {
	return &leafNode[K]{
		pageID:  pageID,
		parent:  primitives.InvalidPageID,
		next:    primitives.InvalidPageID,
		maxSize: maxSize,
		keys:    make([]K, 0, maxSize+1),
		values:  make([]primitives.RecordID, 0, maxSize+1),
	}
}

func decodeLeaf[K any](data []byte, pageID primitives.PageID, codec KeyCodec[K]) *leafNode[K] {
	size := readInt32(data, offSize)
	n := &leafNode[K]{
		pageID:  pageID,
		parent:  readPageID(data, offParent),
		next:    readPageID(data, offNext),
		maxSize: readInt32(data, offMaxSize),
		keys:    make([]K, 0, size+1),
		values:  make([]primitives.RecordID, 0, size+1),
	}

	ks := codec.Size()
	entrySize := ks + recordIDSize
	for i := 0; i < size; i++ {
		off := headerSize + i*entrySize
		n.keys = append(n.keys, codec.Decode(data[off:off+ks]))
		n.values = append(n.values, primitives.RecordID{
			PageID: readPageID(data, off+ks),
			Slot:   primitives.SlotID(binary.BigEndian.Uint16(data[off+ks+4 : off+ks+6])),
		})
	}
	return n
}

func (n *leafNode[K]) encode(data []byte, codec KeyCodec[K]) {
	if len(n.keys) > n.maxSize {
		panic(fmt.Sprintf("leaf %d overflows: %d entries, max %d", n.pageID, len(n.keys), n.maxSize))
	}

	encodeHeader(data, pageTypeLeaf, len(n.keys), n.maxSize, n.parent, n.next)

	ks := codec.Size()
	entrySize := ks + recordIDSize
	for i, key := range n.keys {
		off := headerSize + i*entrySize
		codec.Encode(data[off:off+ks], key)
		writePageID(data, off+ks, n.values[i].PageID)
		binary.BigEndian.PutUint16(data[off+ks+4:off+ks+6], uint16(n.values[i].Slot))
	}
}

// lowerBound returns the first index whose key is >= key.
func (n *leafNode[K]) lowerBound(key K, cmp Comparator[K]) int {
	return sort.Search(len(n.keys), func(i int) bool {
		return cmp(n.keys[i], key) >= 0
	})
}

// lookup returns the index of key, or -1.
func (n *leafNode[K]) lookup(key K, cmp Comparator[K]) int {
	i := n.lowerBound(key, cmp)
	if i < len(n.keys) && cmp(n.keys[i], key) == 0 {
		return i
	}
	return -1
}

func (n *leafNode[K]) insertAt(i int, key K, value primitives.RecordID) {
	n.keys = append(n.keys, key)
	copy(n.keys[i+1:], n.keys[i:])
	n.keys[i] = key

	n.values = append(n.values, value)
	copy(n.values[i+1:], n.values[i:])
	n.values[i] = value
}

func (n *leafNode[K]) removeAt(i int) {
	n.keys = append(n.keys[:i], n.keys[i+1:]...)
	n.values = append(n.values[:i], n.values[i+1:]...)
}

func (n *leafNode[K]) size() int {
	return len(n.keys)
}

// underflows reports whether the node has fallen under the minimum fill
// for non-root leaves.
func (n *leafNode[K]) underflows() bool {
	return len(n.keys) <= n.maxSize/2
}
