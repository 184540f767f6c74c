package btree

import (
	"bytes"

	"storecore/pkg/primitives"
	"storecore/pkg/storage/page"
)

// HeaderPageID is the well-known page holding the index directory: a
// map from index name to root page id. It is fetched when a tree is
// opened and updated on every root change.
const HeaderPageID primitives.PageID = 0

const (
	headerNameLength = 32
	headerRecordSize = headerNameLength + 4
	headerCountOff   = 0
	headerRecordsOff = 4

	maxHeaderRecords = (page.Size - headerRecordsOff) / headerRecordSize
)

// headerView interprets the header page's raw bytes. A zero page decodes
// as an empty directory, so the header needs no explicit initialization.
type headerView struct {
	data []byte
}

func (h headerView) recordCount() int {
	return readInt32(h.data, headerCountOff)
}

func (h headerView) recordName(i int) []byte {
	off := headerRecordsOff + i*headerRecordSize
	return h.data[off : off+headerNameLength]
}

func (h headerView) recordRoot(i int) primitives.PageID {
	off := headerRecordsOff + i*headerRecordSize
	return readPageID(h.data, off+headerNameLength)
}

func (h headerView) setRecordRoot(i int, root primitives.PageID) {
	off := headerRecordsOff + i*headerRecordSize
	writePageID(h.data, off+headerNameLength, root)
}

// encodeName pads or truncates an index name to the fixed record width.
func encodeName(name string) []byte {
	buf := make([]byte, headerNameLength)
	copy(buf, name)
	return buf
}

// find returns the record index for the name, or -1.
func (h headerView) find(name string) int {
	want := encodeName(name)
	count := h.recordCount()
	for i := 0; i < count; i++ {
		if bytes.Equal(h.recordName(i), want) {
			return i
		}
	}
	return -1
}

// getRoot looks up the root page id recorded for the index name.
func (h headerView) getRoot(name string) (primitives.PageID, bool) {
	i := h.find(name)
	if i < 0 {
		return primitives.InvalidPageID, false
	}
	return h.recordRoot(i), true
}

// insertRecord appends a record. It returns false if the name already
// exists or the directory is full.
func (h headerView) insertRecord(name string, root primitives.PageID) bool {
	if h.find(name) >= 0 {
		return false
	}
	count := h.recordCount()
	if count >= maxHeaderRecords {
		return false
	}

	off := headerRecordsOff + count*headerRecordSize
	copy(h.data[off:off+headerNameLength], encodeName(name))
	writePageID(h.data, off+headerNameLength, root)
	writeInt32(h.data, headerCountOff, count+1)
	return true
}

// updateRecord overwrites the root recorded for the name. It returns
// false if the name is absent.
func (h headerView) updateRecord(name string, root primitives.PageID) bool {
	i := h.find(name)
	if i < 0 {
		return false
	}
	h.setRecordRoot(i, root)
	return true
}
