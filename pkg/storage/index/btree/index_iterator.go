package btree

import (
	"fmt"

	"storecore/pkg/buffer"
	"storecore/pkg/primitives"
)

// IndexIterator walks leaf pairs in ascending key order by following
// the leaf chain. The current leaf stays pinned until the iterator
// advances off it or is closed; the end sentinel holds no pin.
type IndexIterator[K any] struct {
	tree   *BPlusTree[K]
	guard  *buffer.PageGuard
	leaf   *leafNode[K]
	pageID primitives.PageID
	slot   int
}

// Begin positions an iterator at the first pair of the index.
func (t *BPlusTree[K]) Begin() (*IndexIterator[K], error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.rootPageID == primitives.InvalidPageID {
		return t.End(), nil
	}

	g, leaf, err := t.findLeftmostLeaf()
	if err != nil {
		return nil, err
	}
	return &IndexIterator[K]{tree: t, guard: g, leaf: leaf, pageID: leaf.pageID}, nil
}

// BeginFrom positions an iterator at the first pair whose key is >= key.
func (t *BPlusTree[K]) BeginFrom(key K) (*IndexIterator[K], error) {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	if t.rootPageID == primitives.InvalidPageID {
		return t.End(), nil
	}

	g, leaf, err := t.findLeaf(key)
	if err != nil {
		return nil, err
	}

	it := &IndexIterator[K]{tree: t, guard: g, leaf: leaf, pageID: leaf.pageID}
	it.slot = leaf.lowerBound(key, t.cmp)
	if it.slot >= leaf.size() {
		if err := it.advanceLeaf(); err != nil {
			return nil, err
		}
	}
	return it, nil
}

// End returns the past-the-end sentinel.
func (t *BPlusTree[K]) End() *IndexIterator[K] {
	return &IndexIterator[K]{tree: t, pageID: primitives.InvalidPageID}
}

// IsEnd reports whether the iterator has moved past the last pair.
func (it *IndexIterator[K]) IsEnd() bool {
	return it.pageID == primitives.InvalidPageID
}

// Key returns the key at the current position.
func (it *IndexIterator[K]) Key() K {
	if it.IsEnd() {
		panic("dereferencing end iterator")
	}
	return it.leaf.keys[it.slot]
}

// Value returns the record id at the current position.
func (it *IndexIterator[K]) Value() primitives.RecordID {
	if it.IsEnd() {
		panic("dereferencing end iterator")
	}
	return it.leaf.values[it.slot]
}

// Next advances to the following pair, moving to the next leaf in the
// chain when the current one is exhausted.
func (it *IndexIterator[K]) Next() error {
	if it.IsEnd() {
		return fmt.Errorf("advancing end iterator")
	}

	it.slot++
	if it.slot < it.leaf.size() {
		return nil
	}
	return it.advanceLeaf()
}

// advanceLeaf unpins the current leaf and pins its successor, becoming
// the end sentinel when the chain runs out.
func (it *IndexIterator[K]) advanceLeaf() error {
	for {
		next := it.leaf.next
		it.guard.Drop()
		it.guard = nil
		it.leaf = nil

		if next == primitives.InvalidPageID {
			it.pageID = primitives.InvalidPageID
			it.slot = 0
			return nil
		}

		g, err := it.tree.bpm.FetchPageGuarded(next)
		if err != nil {
			it.pageID = primitives.InvalidPageID
			return fmt.Errorf("failed to fetch leaf %d: %w", next, err)
		}

		it.guard = g
		it.leaf = decodeLeaf(g.Data(), next, it.tree.codec)
		it.pageID = next
		it.slot = 0

		if it.leaf.size() > 0 {
			return nil
		}
	}
}

// Close releases the iterator's pin early. Safe to call repeatedly and
// on the end sentinel.
func (it *IndexIterator[K]) Close() {
	if it.guard != nil {
		it.guard.Drop()
		it.guard = nil
	}
	it.leaf = nil
	it.pageID = primitives.InvalidPageID
}
