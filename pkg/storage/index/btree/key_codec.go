// Package btree implements a disk-resident B+ tree index. Nodes live in
// pages borrowed from the buffer pool; every node access pins the page
// and unpins it dirty when the node was modified.
package btree

import "encoding/binary"

// Comparator defines a total order over keys: negative when a sorts
// before b, zero when equal, positive when after.
type Comparator[K any] func(a, b K) int

// KeyCodec converts keys to and from their fixed-size on-page encoding.
type KeyCodec[K any] interface {
	// Size returns the encoded size of a key in bytes.
	Size() int

	// Encode writes the key into buf, which is Size() bytes long.
	Encode(buf []byte, key K)

	// Decode reads a key back out of buf.
	Decode(buf []byte) K
}

// Int64KeyCodec encodes int64 keys as 8 big-endian two's-complement
// bytes. Byte order matches numeric order only for non-negative keys;
// the tree orders keys with the paired CompareInt64, never by bytes.
type Int64KeyCodec struct{}

func (Int64KeyCodec) Size() int { return 8 }

func (Int64KeyCodec) Encode(buf []byte, key int64) {
	binary.BigEndian.PutUint64(buf, uint64(key))
}

func (Int64KeyCodec) Decode(buf []byte) int64 {
	return int64(binary.BigEndian.Uint64(buf))
}

// CompareInt64 is the comparator paired with Int64KeyCodec.
func CompareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
