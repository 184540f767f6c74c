package btree

import (
	"fmt"

	"storecore/pkg/primitives"
)

// internalNode is the decoded form of an internal page. size counts
// children; keys[0] is unused padding so that separator i sits to the
// left of child i for every i >= 1.
type internalNode[K any] struct {
	pageID   primitives.PageID
	parent   primitives.PageID
	maxSize  int
	keys     []K
	children []primitives.PageID
}

// newInternalNode returns an empty internal node.
func newInternalNode[K any](pageID primitives.PageID, maxSize int) *internalNode[K] {
	return &internalNode[K]{
		pageID:   pageID,
		parent:   primitives.InvalidPageID,
		maxSize:  maxSize,
		keys:     make([]K, 0, maxSize+1),
		children: make([]primitives.PageID, 0, maxSize+1),
	}
}

func decodeInternal[K any](data []byte, pageID primitives.PageID, codec KeyCodec[K]) *internalNode[K] {
	size := readInt32(data, offSize)
	n := &internalNode[K]{
		pageID:   pageID,
		parent:   readPageID(data, offParent),
		maxSize:  readInt32(data, offMaxSize),
		keys:     make([]K, 0, size+1),
		children: make([]primitives.PageID, 0, size+1),
	}

	ks := codec.Size()
	entrySize := ks + 4
	for i := 0; i < size; i++ {
		off := headerSize + i*entrySize
		n.keys = append(n.keys, codec.Decode(data[off:off+ks]))
		n.children = append(n.children, readPageID(data, off+ks))
	}
	return n
}

func (n *internalNode[K]) encode(data []byte, codec KeyCodec[K]) {
	if len(n.children) > n.maxSize {
		panic(fmt.Sprintf("internal %d overflows: %d children, max %d", n.pageID, len(n.children), n.maxSize))
	}

	encodeHeader(data, pageTypeInternal, len(n.children), n.maxSize, n.parent, primitives.InvalidPageID)

	ks := codec.Size()
	entrySize := ks + 4
	for i := range n.children {
		off := headerSize + i*entrySize
		codec.Encode(data[off:off+ks], n.keys[i])
		writePageID(data, off+ks, n.children[i])
	}
}

// childIndexFor returns the index of the child subtree that covers key:
// the largest i with separator(i) <= key, where separator(0) is
// implicitly minus infinity.
func (n *internalNode[K]) childIndexFor(key K, cmp Comparator[K]) int {
	lo, hi := 1, len(n.children)
	for lo < hi {
		mid := (lo + hi) / 2
		if cmp(n.keys[mid], key) > 0 {
			hi = mid
		} else {
			lo = mid + 1
		}
	}
	return lo - 1
}

// indexOfChild returns the position of the child page id, or -1.
func (n *internalNode[K]) indexOfChild(child primitives.PageID) int {
	for i, c := range n.children {
		if c == child {
			return i
		}
	}
	return -1
}

// insertAt places (key, child) at position i. Position 0 is reserved
// for the leftmost child and never receives a separator.
func (n *internalNode[K]) insertAt(i int, key K, child primitives.PageID) {
	n.keys = append(n.keys, key)
	copy(n.keys[i+1:], n.keys[i:])
	n.keys[i] = key

	n.children = append(n.children, child)
	copy(n.children[i+1:], n.children[i:])
	n.children[i] = child
}

func (n *internalNode[K]) removeAt(i int) {
	n.keys = append(n.keys[:i], n.keys[i+1:]...)
	n.children = append(n.children[:i], n.children[i+1:]...)
}

func (n *internalNode[K]) size() int {
	return len(n.children)
}

// underflows reports whether the node has fewer children than the
// minimum fill for non-root internal nodes.
func (n *internalNode[K]) underflows() bool {
	return len(n.children) <= n.maxSize/2
}
