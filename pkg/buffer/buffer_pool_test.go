package buffer

import (
	"bytes"
	"errors"
	"testing"

	"storecore/pkg/primitives"
	"storecore/pkg/storage/disk"
	"storecore/pkg/storage/page"
)

func newTestPool(t *testing.T, poolSize, k int) (*BufferPoolManager, *disk.MemoryDiskManager) {
	t.Helper()
	dm := disk.NewMemoryDiskManager()
	return NewBufferPoolManager(poolSize, dm, k, nil), dm
}

// residentCount counts frames currently backing a page.
func residentCount(bpm *BufferPoolManager) int {
	n := 0
	for i := range bpm.pages {
		if bpm.pages[i].ID() != primitives.InvalidPageID {
			n++
		}
	}
	return n
}

func TestBufferPool_NewPage(t *testing.T) {
	bpm, _ := newTestPool(t, 3, 2)

	p, err := bpm.NewPage()
	if err != nil {
		t.Fatalf("NewPage failed: %v", err)
	}

	if p.ID() == primitives.InvalidPageID {
		t.Error("New page has no identity")
	}
	if p.PinCount() != 1 {
		t.Errorf("Expected pin count 1, got %d", p.PinCount())
	}
	if p.IsDirty() {
		t.Error("New page should be clean")
	}
	for _, b := range p.Data() {
		if b != 0 {
			t.Fatal("New page buffer not zeroed")
		}
	}
}

func TestBufferPool_NewPageExhaustsFrames(t *testing.T) {
	bpm, _ := newTestPool(t, 3, 2)

	for i := 0; i < 3; i++ {
		if _, err := bpm.NewPage(); err != nil {
			t.Fatalf("NewPage %d failed: %v", i, err)
		}
	}

	// Every frame is pinned.
	if _, err := bpm.NewPage(); !errors.Is(err, ErrNoFreeFrames) {
		t.Errorf("Expected ErrNoFreeFrames, got %v", err)
	}
}

// With one unpinned page, NewPage must evict exactly that page; a later
// fetch reloads it from disk.
func TestBufferPool_EvictionPicksUnpinnedFrame(t *testing.T) {
	bpm, _ := newTestPool(t, 3, 2)

	p0, _ := bpm.NewPage()
	id0 := p0.ID()
	bpm.NewPage()
	bpm.NewPage()

	if !bpm.UnpinPage(id0, false) {
		t.Fatal("UnpinPage failed")
	}

	p3, err := bpm.NewPage()
	if err != nil {
		t.Fatalf("NewPage after unpin failed: %v", err)
	}

	// id0 was the only evictable page, so its frame was reused.
	if got := residentCount(bpm); got != 3 {
		t.Errorf("Expected 3 resident pages, got %d", got)
	}

	// Make room and reload id0 from disk.
	bpm.UnpinPage(p3.ID(), false)
	reloaded, err := bpm.FetchPage(id0)
	if err != nil {
		t.Fatalf("FetchPage(%d) failed: %v", id0, err)
	}
	if reloaded.ID() != id0 {
		t.Errorf("Expected page %d, got %d", id0, reloaded.ID())
	}
}

func TestBufferPool_FetchPageHitDoesNotTouchDisk(t *testing.T) {
	bpm, dm := newTestPool(t, 3, 2)

	p, _ := bpm.NewPage()
	id := p.ID()

	before := dm.ReadCount
	again, err := bpm.FetchPage(id)
	if err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}
	if dm.ReadCount != before {
		t.Error("Fetch of resident page should not read disk")
	}
	if again.PinCount() != 2 {
		t.Errorf("Expected pin count 2, got %d", again.PinCount())
	}
}

func TestBufferPool_UnpinPage(t *testing.T) {
	bpm, _ := newTestPool(t, 3, 2)

	p, _ := bpm.NewPage()
	id := p.ID()

	if bpm.UnpinPage(999, false) {
		t.Error("Unpin of unknown page should return false")
	}

	if !bpm.UnpinPage(id, true) {
		t.Error("Unpin of pinned page should return true")
	}
	if !p.IsDirty() {
		t.Error("Dirty flag should be ORed in")
	}

	// Pin already zero.
	if bpm.UnpinPage(id, false) {
		t.Error("Unpin of unpinned page should return false")
	}

	// A later clean unpin must not clear the dirty flag.
	bpm.FetchPage(id)
	bpm.UnpinPage(id, false)
	if !p.IsDirty() {
		t.Error("Clean unpin cleared the dirty flag")
	}
}

func TestBufferPool_FlushPage(t *testing.T) {
	bpm, dm := newTestPool(t, 3, 2)

	p, _ := bpm.NewPage()
	id := p.ID()
	copy(p.Data(), []byte("flushed bytes"))
	bpm.UnpinPage(id, true)

	if bpm.FlushPage(999) {
		t.Error("Flush of unknown page should return false")
	}

	if !bpm.FlushPage(id) {
		t.Fatal("FlushPage failed")
	}
	if p.IsDirty() {
		t.Error("FlushPage should clear the dirty flag")
	}

	buf := make([]byte, page.Size)
	if err := dm.ReadPage(id, buf); err != nil {
		t.Fatalf("ReadPage failed: %v", err)
	}
	if !bytes.HasPrefix(buf, []byte("flushed bytes")) {
		t.Error("Flushed contents not on disk")
	}

	// Flushing a clean page writes it again (unconditional).
	writes := dm.WriteCount
	bpm.FlushPage(id)
	if dm.WriteCount != writes+1 {
		t.Error("FlushPage should write even when clean")
	}
}

func TestBufferPool_FlushAllPages(t *testing.T) {
	bpm, dm := newTestPool(t, 3, 2)

	for i := 0; i < 3; i++ {
		p, _ := bpm.NewPage()
		copy(p.Data(), []byte{byte(i + 1)})
		bpm.UnpinPage(p.ID(), true)
	}

	bpm.FlushAllPages()
	if dm.WriteCount < 3 {
		t.Errorf("Expected at least 3 writes, got %d", dm.WriteCount)
	}
	for i := range bpm.pages {
		if bpm.pages[i].IsDirty() {
			t.Errorf("Frame %d still dirty after FlushAllPages", i)
		}
	}
}

func TestBufferPool_DeletePage(t *testing.T) {
	bpm, _ := newTestPool(t, 3, 2)

	p, _ := bpm.NewPage()
	id := p.ID()

	// Pinned pages cannot be deleted.
	if bpm.DeletePage(id) {
		t.Error("Delete of pinned page should return false")
	}

	bpm.UnpinPage(id, true)
	if !bpm.DeletePage(id) {
		t.Error("Delete of unpinned page should return true")
	}

	// Non-resident delete succeeds trivially.
	if !bpm.DeletePage(id) {
		t.Error("Delete of non-resident page should return true")
	}

	if bpm.FreeFrameCount() != 3 {
		t.Errorf("Expected 3 free frames, got %d", bpm.FreeFrameCount())
	}
}

// Dirty page eviction: the victim's contents must be written back and
// observed by a later fetch.
func TestBufferPool_DirtyEvictionRoundTrip(t *testing.T) {
	bpm, _ := newTestPool(t, 3, 2)

	p, _ := bpm.NewPage()
	id := p.ID()
	copy(p.Data(), []byte("dirty page contents"))
	bpm.UnpinPage(id, true)

	// Fill and pin every frame so id's frame gets recycled.
	held := make([]primitives.PageID, 0, 3)
	for i := 0; i < 3; i++ {
		np, err := bpm.NewPage()
		if err != nil {
			t.Fatalf("NewPage %d failed: %v", i, err)
		}
		held = append(held, np.ID())
	}

	bpm.UnpinPage(held[0], false)

	reloaded, err := bpm.FetchPage(id)
	if err != nil {
		t.Fatalf("FetchPage failed: %v", err)
	}
	if !bytes.HasPrefix(reloaded.Data(), []byte("dirty page contents")) {
		t.Error("Evicted dirty page lost its contents")
	}
}

// After any sequence of operations, every frame is either free or
// resident, never both.
func TestBufferPool_FrameAccounting(t *testing.T) {
	bpm, _ := newTestPool(t, 4, 2)

	ids := make([]primitives.PageID, 0, 8)
	for i := 0; i < 4; i++ {
		p, _ := bpm.NewPage()
		ids = append(ids, p.ID())
	}
	for _, id := range ids {
		bpm.UnpinPage(id, false)
	}
	bpm.DeletePage(ids[0])
	bpm.FetchPage(ids[1])
	bpm.UnpinPage(ids[1], false)

	if got := bpm.FreeFrameCount() + residentCount(bpm); got != 4 {
		t.Errorf("free + resident = %d, want pool size 4", got)
	}
}

func TestBufferPool_PageGuard(t *testing.T) {
	bpm, _ := newTestPool(t, 3, 2)

	g, err := bpm.NewPageGuarded()
	if err != nil {
		t.Fatalf("NewPageGuarded failed: %v", err)
	}
	id := g.ID()
	copy(g.Data(), []byte("guarded"))
	g.MarkDirty()
	g.Drop()

	// Drop unpins exactly once.
	g.Drop()

	fg, err := bpm.FetchPageGuarded(id)
	if err != nil {
		t.Fatalf("FetchPageGuarded failed: %v", err)
	}
	defer fg.Drop()

	if !bytes.HasPrefix(fg.Data(), []byte("guarded")) {
		t.Error("Guarded write lost")
	}
	if fg.page.PinCount() != 1 {
		t.Errorf("Expected pin count 1, got %d", fg.page.PinCount())
	}
}
