// Package buffer implements the memory management core of the storage
// engine: the LRU-K replacement policy, the buffer pool manager that
// caches disk pages in a fixed set of frames, and the page guard that
// enforces the pin/unpin discipline.
package buffer

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"storecore/pkg/primitives"
)

// frameEntry tracks one frame's access history: the up-to-k most recent
// access timestamps, newest first, plus the evictable flag.
type frameEntry struct {
	frameID   primitives.FrameID
	history   []primitives.Timestamp
	evictable bool
}

// oldest returns the oldest recorded access. With a full history this is
// the k-th most recent access, whose age is the frame's backward
// k-distance.
func (e *frameEntry) oldest() primitives.Timestamp {
	return e.history[len(e.history)-1]
}

// LRUKReplacer selects eviction victims under the LRU-K rule: the
// evictable frame whose backward k-distance (age of its k-th most recent
// access) is largest. Frames with fewer than k recorded accesses have
// infinite backward k-distance and are preferred as victims; among those,
// the frame with the oldest recorded access wins (classical LRU).
//
// All operations serialize on a single replacer-wide mutex.
type LRUKReplacer struct {
	mutex     sync.Mutex
	k         int
	numFrames int
	entries   map[primitives.FrameID]*frameEntry

	// ordered holds the evictable entries sorted best-victim-first.
	// An entry's history must not change while it is in this slice;
	// every mutation removes the entry and reinserts it.
	ordered []*frameEntry

	lastStamp primitives.Timestamp
}

// NewLRUKReplacer creates a replacer for at most numFrames frames with
// the given look-back size k.
func NewLRUKReplacer(numFrames, k int) *LRUKReplacer {
	if numFrames <= 0 || k <= 0 {
		panic(fmt.Sprintf("invalid replacer configuration: numFrames=%d k=%d", numFrames, k))
	}
	return &LRUKReplacer{
		k:         k,
		numFrames: numFrames,
		entries:   make(map[primitives.FrameID]*frameEntry),
	}
}

// RecordAccess appends the current timestamp to the frame's history,
// creating the history on first access. Evictability is unchanged.
func (r *LRUKReplacer) RecordAccess(frameID primitives.FrameID) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.validateFrameID(frameID)

	entry, exists := r.entries[frameID]
	if !exists {
		entry = &frameEntry{frameID: frameID}
		r.entries[frameID] = entry
	}

	if entry.evictable {
		r.removeFromOrdered(entry)
	}

	ts := r.nextTimestamp()
	if len(entry.history) == r.k {
		entry.history = entry.history[:r.k-1]
	}
	entry.history = append([]primitives.Timestamp{ts}, entry.history...)

	if entry.evictable {
		r.insertOrdered(entry)
	}
}

// SetEvictable toggles whether the frame may be chosen as a victim.
// Calling it on a frame the replacer has never seen is a caller error.
func (r *LRUKReplacer) SetEvictable(frameID primitives.FrameID, evictable bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	r.validateFrameID(frameID)

	entry, exists := r.entries[frameID]
	if !exists {
		panic(fmt.Sprintf("SetEvictable on unknown frame %d", frameID))
	}

	if entry.evictable == evictable {
		return
	}

	if entry.evictable {
		r.removeFromOrdered(entry)
	}
	entry.evictable = evictable
	if evictable {
		r.insertOrdered(entry)
	}
}

// Evict removes and returns the best victim, discarding its access
// history. The second return is false when no evictable frames exist.
func (r *LRUKReplacer) Evict() (primitives.FrameID, bool) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	if len(r.ordered) == 0 {
		return primitives.InvalidFrameID, false
	}

	victim := r.ordered[0]
	r.ordered = r.ordered[1:]
	delete(r.entries, victim.frameID)
	return victim.frameID, true
}

// Remove forcibly removes an evictable frame and its history. Removing
// an unknown frame is a no-op; removing a non-evictable frame is a
// caller error.
func (r *LRUKReplacer) Remove(frameID primitives.FrameID) {
	r.mutex.Lock()
	defer r.mutex.Unlock()

	entry, exists := r.entries[frameID]
	if !exists {
		return
	}

	if !entry.evictable {
		panic(fmt.Sprintf("Remove on non-evictable frame %d", frameID))
	}

	r.removeFromOrdered(entry)
	delete(r.entries, frameID)
}

// Size returns the number of evictable frames.
func (r *LRUKReplacer) Size() int {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	return len(r.ordered)
}

// victimBefore reports whether a is a strictly better victim than b.
// Frames with fewer than k accesses (infinite backward k-distance) beat
// frames with full histories; within the same class the older oldest
// access wins. Timestamps are unique, so this is a strict total order.
func (r *LRUKReplacer) victimBefore(a, b *frameEntry) bool {
	aFull := len(a.history) == r.k
	bFull := len(b.history) == r.k
	if aFull != bFull {
		return bFull
	}
	return a.oldest() < b.oldest()
}

// insertOrdered places the entry at its sort position, best victim first.
func (r *LRUKReplacer) insertOrdered(entry *frameEntry) {
	i := sort.Search(len(r.ordered), func(i int) bool {
		return r.victimBefore(entry, r.ordered[i])
	})
	r.ordered = append(r.ordered, nil)
	copy(r.ordered[i+1:], r.ordered[i:])
	r.ordered[i] = entry
}

func (r *LRUKReplacer) removeFromOrdered(entry *frameEntry) {
	for i, e := range r.ordered {
		if e == entry {
			r.ordered = append(r.ordered[:i], r.ordered[i+1:]...)
			return
		}
	}
}

// nextTimestamp returns a strictly increasing nanosecond timestamp.
func (r *LRUKReplacer) nextTimestamp() primitives.Timestamp {
	ts := primitives.Timestamp(time.Now().UnixNano())
	if ts <= r.lastStamp {
		ts = r.lastStamp + 1
	}
	r.lastStamp = ts
	return ts
}

func (r *LRUKReplacer) validateFrameID(frameID primitives.FrameID) {
	if frameID < 0 || int(frameID) >= r.numFrames {
		panic(fmt.Sprintf("frame id %d out of range [0, %d)", frameID, r.numFrames))
	}
}
