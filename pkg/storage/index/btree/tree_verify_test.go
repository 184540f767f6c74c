package btree

import (
	"testing"

	"github.com/stretchr/testify/require"

	"storecore/pkg/primitives"
)

// verifyTree walks the whole structure and checks the tree invariants:
// sorted keys, separator bounds, parent back-references, minimum fill,
// equal leaf depth, and a leaf chain that enumerates keys in ascending
// order.
func verifyTree(t *testing.T, tree *BPlusTree[int64]) {
	t.Helper()
	tree.mutex.Lock()
	defer tree.mutex.Unlock()

	if tree.rootPageID == primitives.InvalidPageID {
		return
	}

	v := &treeVerifier{t: t, tree: tree, leafDepth: -1}
	v.walk(tree.rootPageID, primitives.InvalidPageID, 0, nil, nil)
	v.checkLeafChain()
}

type treeVerifier struct {
	t         *testing.T
	tree      *BPlusTree[int64]
	leafDepth int
	leafOrder []primitives.PageID
}

// walk recursively checks the subtree at pid. lower and upper bound the
// keys the subtree may contain: lower inclusive, upper exclusive, nil
// for unbounded.
func (v *treeVerifier) walk(pid, parent primitives.PageID, depth int, lower, upper *int64) {
	v.t.Helper()
	tree := v.tree

	g, err := tree.bpm.FetchPageGuarded(pid)
	require.NoError(v.t, err)
	data := g.Data()

	checkKey := func(k int64) {
		if lower != nil {
			require.GreaterOrEqual(v.t, k, *lower, "page %d: key below separator", pid)
		}
		if upper != nil {
			require.Less(v.t, k, *upper, "page %d: key at or above separator", pid)
		}
	}

	if isLeafData(data) {
		leaf := decodeLeaf(data, pid, tree.codec)
		g.Drop()

		require.Equal(v.t, parent, leaf.parent, "leaf %d parent mismatch", pid)
		if v.leafDepth == -1 {
			v.leafDepth = depth
		}
		require.Equal(v.t, v.leafDepth, depth, "leaf %d at unequal depth", pid)

		if pid != tree.rootPageID {
			require.Greater(v.t, leaf.size(), 0, "leaf %d empty", pid)
			require.GreaterOrEqual(v.t, leaf.size(), leaf.maxSize/2, "leaf %d under-full", pid)
		}

		for i, k := range leaf.keys {
			checkKey(k)
			if i > 0 {
				require.Less(v.t, leaf.keys[i-1], k, "leaf %d keys not strictly increasing", pid)
			}
		}

		v.leafOrder = append(v.leafOrder, pid)
		return
	}

	node := decodeInternal(data, pid, tree.codec)
	g.Drop()

	require.Equal(v.t, parent, node.parent, "internal %d parent mismatch", pid)
	require.GreaterOrEqual(v.t, node.size(), 2, "internal %d has fewer than two children", pid)
	if pid != tree.rootPageID {
		require.GreaterOrEqual(v.t, node.size(), node.maxSize/2, "internal %d under-full", pid)
	}

	for i := 1; i < node.size(); i++ {
		checkKey(node.keys[i])
		if i > 1 {
			require.Less(v.t, node.keys[i-1], node.keys[i], "internal %d separators not strictly increasing", pid)
		}
	}

	for i, child := range node.children {
		childLower, childUpper := lower, upper
		if i > 0 {
			childLower = &node.keys[i]
		}
		if i+1 < node.size() {
			childUpper = &node.keys[i+1]
		}
		v.walk(child, pid, depth+1, childLower, childUpper)
	}
}

// checkLeafChain follows next pointers from the leftmost leaf and
// compares against the left-to-right order discovered by the walk.
func (v *treeVerifier) checkLeafChain() {
	v.t.Helper()
	tree := v.tree

	require.NotEmpty(v.t, v.leafOrder)
	cur := v.leafOrder[0]
	for i, want := range v.leafOrder {
		require.Equal(v.t, want, cur, "leaf chain diverges at position %d", i)

		g, err := tree.bpm.FetchPageGuarded(cur)
		require.NoError(v.t, err)
		leaf := decodeLeaf(g.Data(), cur, tree.codec)
		g.Drop()
		cur = leaf.next
	}
	require.Equal(v.t, primitives.InvalidPageID, cur, "leaf chain does not terminate")
}
