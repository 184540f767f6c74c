package buffer

import (
	"storecore/pkg/primitives"
	"storecore/pkg/storage/page"
)

// PageGuard represents a pinned page. Dropping the guard unpins the
// page exactly once with the dirty flag accumulated through MarkDirty,
// which turns forgotten unpins from a leak at runtime into a scope-time
// property of the caller.
type PageGuard struct {
	bpm     *BufferPoolManager
	page    *page.Page
	pageID  primitives.PageID
	dirty   bool
	dropped bool
}

// NewPageGuarded allocates a fresh page and wraps it in a guard.
func (bpm *BufferPoolManager) NewPageGuarded() (*PageGuard, error) {
	p, err := bpm.NewPage()
	if err != nil {
		return nil, err
	}
	return &PageGuard{bpm: bpm, page: p, pageID: p.ID()}, nil
}

// FetchPageGuarded fetches the page and wraps it in a guard.
func (bpm *BufferPoolManager) FetchPageGuarded(pageID primitives.PageID) (*PageGuard, error) {
	p, err := bpm.FetchPage(pageID)
	if err != nil {
		return nil, err
	}
	return &PageGuard{bpm: bpm, page: p, pageID: pageID}, nil
}

// ID returns the guarded page's id.
func (g *PageGuard) ID() primitives.PageID {
	return g.pageID
}

// Data returns the guarded page's byte buffer.
func (g *PageGuard) Data() []byte {
	return g.page.Data()
}

// MarkDirty records that the caller modified the page; the unpin at
// Drop will carry the dirty flag.
func (g *PageGuard) MarkDirty() {
	g.dirty = true
}

// Drop unpins the page. Further calls are no-ops, so Drop is safe to
// defer and to call early on the paths that finish with a page sooner.
func (g *PageGuard) Drop() {
	if g.dropped {
		return
	}
	g.dropped = true
	g.bpm.UnpinPage(g.pageID, g.dirty)
}
