package btree

import (
	"encoding/binary"
	"fmt"

	"storecore/pkg/primitives"
	"storecore/pkg/storage/page"
)

// Node pages share a fixed header, then pack fixed-size entries:
//
//	offset 0   page type (1 byte: internal or leaf)
//	offset 4   size (int32): entry count for leaves, child count for internals
//	offset 8   max size (int32)
//	offset 12  parent page id (int32, InvalidPageID at the root)
//	offset 16  next page id (int32, leaves only; internals store InvalidPageID)
//	offset 20  entries
//
// Leaf entries are key + record id (page id, slot). Internal entries are
// key + child page id; the key of entry 0 is unused, so the value at
// index 0 is the leftmost child and separator keys live at indices >= 1.
const (
	pageTypeInternal byte = 0x01
	pageTypeLeaf     byte = 0x02

	offPageType = 0
	offSize     = 4
	offMaxSize  = 8
	offParent   = 12
	offNext     = 16
	headerSize  = 20

	// recordIDSize is the encoded size of a leaf value: page id plus
	// slot number.
	recordIDSize = 6
)

// isLeafData inspects a raw node page's type tag.
func isLeafData(data []byte) bool {
	return data[offPageType] == pageTypeLeaf
}

func readPageID(data []byte, off int) primitives.PageID {
	return primitives.PageID(int32(binary.BigEndian.Uint32(data[off : off+4])))
}

func writePageID(data []byte, off int, id primitives.PageID) {
	binary.BigEndian.PutUint32(data[off:off+4], uint32(id))
}

func readInt32(data []byte, off int) int {
	return int(int32(binary.BigEndian.Uint32(data[off : off+4])))
}

func writeInt32(data []byte, off int, v int) {
	binary.BigEndian.PutUint32(data[off:off+4], uint32(v))
}

// nodeParent reads the parent pointer out of a raw node page.
func nodeParent(data []byte) primitives.PageID {
	return readPageID(data, offParent)
}

// setNodeParent patches the parent pointer in a raw node page. Callers
// use this to reassign children moved by a split or merge without
// decoding the whole node.
func setNodeParent(data []byte, parent primitives.PageID) {
	writePageID(data, offParent, parent)
}

func encodeHeader(data []byte, pageType byte, size, maxSize int, parent, next primitives.PageID) {
	clear(data[:headerSize])
	data[offPageType] = pageType
	writeInt32(data, offSize, size)
	writeInt32(data, offMaxSize, maxSize)
	writePageID(data, offParent, parent)
	writePageID(data, offNext, next)
}

// validateTreeSizes checks that nodes of the configured fan-out fit in a
// page.
func validateTreeSizes(keySize, leafMaxSize, internalMaxSize int) error {
	if leafMaxSize < 2 || internalMaxSize < 3 {
		return fmt.Errorf("tree fan-out too small: leaf=%d internal=%d", leafMaxSize, internalMaxSize)
	}
	if need := headerSize + leafMaxSize*(keySize+recordIDSize); need > page.Size {
		return fmt.Errorf("leaf node of %d entries needs %d bytes, page is %d", leafMaxSize, need, page.Size)
	}
	if need := headerSize + internalMaxSize*(keySize+4); need > page.Size {
		return fmt.Errorf("internal node of %d entries needs %d bytes, page is %d", internalMaxSize, need, page.Size)
	}
	return nil
}
