package buffer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/cespare/xxhash/v2"

	"storecore/pkg/container/hash"
	"storecore/pkg/log"
	"storecore/pkg/primitives"
	"storecore/pkg/storage/disk"
	"storecore/pkg/storage/page"
)

// ErrNoFreeFrames is returned by NewPage and FetchPage when every frame
// is pinned and nothing can be evicted.
var ErrNoFreeFrames = errors.New("all frames are pinned")

// pageTableBucketSize is the bucket capacity of the extendible hash
// directory backing the page table.
const pageTableBucketSize = 4

// BufferPoolManager caches disk pages in a fixed array of frames. It
// owns the free list, the page table mapping page ids to frames, the
// LRU-K replacer, and the disk manager handle.
//
// A single pool-wide mutex protects the frame metadata, the page table,
// the free list, and all replacer calls; it is held across disk I/O, so
// I/O serializes. Per-page latches protect the byte buffers during reset
// and I/O. Lock order is always pool mutex then page latch, never the
// reverse.
type BufferPoolManager struct {
	mutex     sync.Mutex
	poolSize  int
	pages     []page.Page
	pageTable *hash.ExtendibleHashTable[primitives.PageID, primitives.FrameID]
	replacer  *LRUKReplacer
	freeList  []primitives.FrameID
	disk      disk.DiskManager

	// logManager is retained for future recovery integration; the pool
	// never calls into it beyond Close.
	logManager *log.LogManager
}

// pageIDHasher feeds the page id's bytes to xxhash for the page table.
func pageIDHasher(id primitives.PageID) uint64 {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(id))
	return xxhash.Sum64(b[:])
}

// NewBufferPoolManager creates a pool of poolSize frames over the given
// disk manager, using LRU-K replacement with the given k. logManager
// may be nil.
func NewBufferPoolManager(poolSize int, dm disk.DiskManager, replacerK int, logManager *log.LogManager) *BufferPoolManager {
	bpm := &BufferPoolManager{
		poolSize:   poolSize,
		pages:      make([]page.Page, poolSize),
		pageTable:  hash.NewExtendibleHashTableWithHasher[primitives.PageID, primitives.FrameID](pageTableBucketSize, pageIDHasher),
		replacer:   NewLRUKReplacer(poolSize, replacerK),
		freeList:   make([]primitives.FrameID, 0, poolSize),
		disk:       dm,
		logManager: logManager,
	}

	for i := 0; i < poolSize; i++ {
		bpm.pages[i].ResetMetadata()
		bpm.freeList = append(bpm.freeList, primitives.FrameID(i))
	}
	return bpm
}

// NewPage allocates a fresh page id, installs it in a frame pinned once,
// and returns the page with zeroed contents. Returns ErrNoFreeFrames if
// every frame is pinned.
func (bpm *BufferPoolManager) NewPage() (*page.Page, error) {
	bpm.mutex.Lock()
	defer bpm.mutex.Unlock()

	frameID, ok := bpm.acquireFrame()
	if !ok {
		return nil, ErrNoFreeFrames
	}

	pageID := bpm.disk.AllocatePage()
	p := &bpm.pages[frameID]

	p.WLatch()
	p.ResetMetadata()
	p.ResetMemory()
	p.SetID(pageID)
	p.SetPinCount(1)
	p.WUnlatch()

	bpm.install(pageID, frameID)
	return p, nil
}

// FetchPage returns the requested page pinned once more, reading it
// from disk if it is not resident. Returns ErrNoFreeFrames if the page
// must be loaded and every frame is pinned.
func (bpm *BufferPoolManager) FetchPage(pageID primitives.PageID) (*page.Page, error) {
	if pageID < 0 {
		return nil, fmt.Errorf("invalid page id %d", pageID)
	}

	bpm.mutex.Lock()
	defer bpm.mutex.Unlock()

	if frameID, ok := bpm.pageTable.Find(pageID); ok {
		p := &bpm.pages[frameID]
		p.WLatch()
		p.IncPin()
		p.WUnlatch()
		bpm.replacer.RecordAccess(frameID)
		bpm.replacer.SetEvictable(frameID, false)
		return p, nil
	}

	frameID, ok := bpm.acquireFrame()
	if !ok {
		return nil, ErrNoFreeFrames
	}

	p := &bpm.pages[frameID]
	p.WLatch()
	p.ResetMetadata()
	p.ResetMemory()
	if err := bpm.disk.ReadPage(pageID, p.Data()); err != nil {
		panic(fmt.Sprintf("disk read failed for page %d: %v", pageID, err))
	}
	p.SetID(pageID)
	p.SetPinCount(1)
	p.WUnlatch()

	bpm.install(pageID, frameID)
	return p, nil
}

// UnpinPage drops one pin from the page, ORing is_dirty into its dirty
// flag. The frame becomes evictable when the pin count reaches zero.
// Returns false if the page is not resident or was not pinned.
func (bpm *BufferPoolManager) UnpinPage(pageID primitives.PageID, isDirty bool) bool {
	bpm.mutex.Lock()
	defer bpm.mutex.Unlock()

	frameID, ok := bpm.pageTable.Find(pageID)
	if !ok {
		return false
	}

	p := &bpm.pages[frameID]
	p.WLatch()
	defer p.WUnlatch()

	if p.PinCount() <= 0 {
		return false
	}

	if isDirty {
		p.SetDirty(true)
	}

	p.DecPin()
	if p.PinCount() == 0 {
		bpm.replacer.SetEvictable(frameID, true)
	}
	return true
}

// FlushPage writes the page to disk regardless of its dirty flag and
// clears the flag. Returns false if the page is not resident.
func (bpm *BufferPoolManager) FlushPage(pageID primitives.PageID) bool {
	bpm.mutex.Lock()
	defer bpm.mutex.Unlock()

	frameID, ok := bpm.pageTable.Find(pageID)
	if !ok {
		return false
	}

	p := &bpm.pages[frameID]
	p.WLatch()
	bpm.flushLocked(p)
	p.WUnlatch()
	return true
}

// FlushAllPages flushes every resident page.
func (bpm *BufferPoolManager) FlushAllPages() {
	bpm.mutex.Lock()
	defer bpm.mutex.Unlock()

	for i := range bpm.pages {
		p := &bpm.pages[i]
		p.WLatch()
		if p.ID() != primitives.InvalidPageID {
			bpm.flushLocked(p)
		}
		p.WUnlatch()
	}
}

// DeletePage evicts the page from the pool, flushing it first if dirty,
// and returns its frame to the free list. Returns true if the page is
// not resident, false if it is pinned.
func (bpm *BufferPoolManager) DeletePage(pageID primitives.PageID) bool {
	bpm.mutex.Lock()
	defer bpm.mutex.Unlock()

	frameID, ok := bpm.pageTable.Find(pageID)
	if !ok {
		return true
	}

	p := &bpm.pages[frameID]
	p.WLatch()

	if p.PinCount() > 0 {
		p.WUnlatch()
		return false
	}

	if p.IsDirty() {
		bpm.flushLocked(p)
	}
	p.ResetMetadata()
	p.ResetMemory()
	p.WUnlatch()

	bpm.pageTable.Remove(pageID)
	bpm.replacer.Remove(frameID)
	bpm.freeList = append(bpm.freeList, frameID)
	return true
}

// FreeFrameCount returns the number of frames on the free list.
func (bpm *BufferPoolManager) FreeFrameCount() int {
	bpm.mutex.Lock()
	defer bpm.mutex.Unlock()
	return len(bpm.freeList)
}

// PoolSize returns the number of frames in the pool.
func (bpm *BufferPoolManager) PoolSize() int {
	return bpm.poolSize
}

// Close flushes every resident page and closes the log manager if one
// was supplied. The disk manager stays open; it belongs to the caller.
func (bpm *BufferPoolManager) Close() error {
	bpm.FlushAllPages()
	if bpm.logManager != nil {
		if err := bpm.logManager.Close(); err != nil {
			return fmt.Errorf("failed to close log manager: %w", err)
		}
	}
	return nil
}

// acquireFrame pops a free frame, or evicts a victim and writes back
// its contents if dirty. Requires the pool mutex.
func (bpm *BufferPoolManager) acquireFrame() (primitives.FrameID, bool) {
	if len(bpm.freeList) > 0 {
		frameID := bpm.freeList[0]
		bpm.freeList = bpm.freeList[1:]
		return frameID, true
	}

	frameID, ok := bpm.replacer.Evict()
	if !ok {
		return primitives.InvalidFrameID, false
	}

	victim := &bpm.pages[frameID]
	bpm.pageTable.Remove(victim.ID())

	victim.WLatch()
	if victim.IsDirty() {
		bpm.flushLocked(victim)
	}
	victim.WUnlatch()

	return frameID, true
}

// install publishes the page-to-frame mapping and primes the replacer:
// the admission counts as an access and the frame starts non-evictable.
// Requires the pool mutex.
func (bpm *BufferPoolManager) install(pageID primitives.PageID, frameID primitives.FrameID) {
	bpm.pageTable.Insert(pageID, frameID)
	bpm.replacer.RecordAccess(frameID)
	bpm.replacer.SetEvictable(frameID, false)
}

// flushLocked writes the page to disk and clears its dirty flag. The
// caller holds the pool mutex and the page's write latch. Disk write
// failures are fatal.
func (bpm *BufferPoolManager) flushLocked(p *page.Page) {
	if err := bpm.disk.WritePage(p.ID(), p.Data()); err != nil {
		panic(fmt.Sprintf("disk write failed for page %d: %v", p.ID(), err))
	}
	p.SetDirty(false)
}
