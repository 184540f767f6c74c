package disk

import (
	"fmt"
	"sync"

	"storecore/pkg/primitives"
	"storecore/pkg/storage/page"
)

// MemoryDiskManager keeps pages in a map instead of a file. It backs the
// test suites and any caller that wants a throwaway database.
type MemoryDiskManager struct {
	mutex    sync.Mutex
	pages    map[primitives.PageID][]byte
	nextPage primitives.PageID
	closed   bool

	// WriteCount and ReadCount track physical I/O for tests.
	WriteCount int
	ReadCount  int
}

// NewMemoryDiskManager creates an empty in-memory device. As with the
// file-backed device, page 0 is reserved for the header page and is
// never handed out by the allocator.
func NewMemoryDiskManager() *MemoryDiskManager {
	return &MemoryDiskManager{
		pages:    make(map[primitives.PageID][]byte),
		nextPage: 1,
	}
}

// ReadPage copies the stored page into buf, or zero-fills buf if the
// page was never written.
func (dm *MemoryDiskManager) ReadPage(id primitives.PageID, buf []byte) error {
	if err := validatePageArgs(id, buf); err != nil {
		return err
	}

	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	if dm.closed {
		return fmt.Errorf("disk manager is closed")
	}

	dm.ReadCount++
	if stored, ok := dm.pages[id]; ok {
		copy(buf, stored)
	} else {
		clear(buf)
	}
	return nil
}

// WritePage stores a copy of buf under the page id.
func (dm *MemoryDiskManager) WritePage(id primitives.PageID, buf []byte) error {
	if err := validatePageArgs(id, buf); err != nil {
		return err
	}

	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	if dm.closed {
		return fmt.Errorf("disk manager is closed")
	}

	dm.WriteCount++
	stored := make([]byte, page.Size)
	copy(stored, buf)
	dm.pages[id] = stored
	return nil
}

// AllocatePage returns the next unused page id.
func (dm *MemoryDiskManager) AllocatePage() primitives.PageID {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	id := dm.nextPage
	dm.nextPage++
	return id
}

// Close marks the device closed; subsequent I/O fails.
func (dm *MemoryDiskManager) Close() error {
	dm.mutex.Lock()
	defer dm.mutex.Unlock()

	dm.closed = true
	return nil
}
