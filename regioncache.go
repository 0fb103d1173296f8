// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package gc

import (
	"sync/atomic"

	"code.hybscloud.com/spin"
)

// regionCache is a small bounded MPMC ring of recently-released Regions,
// all of the same size, kept by an Allocator so that shrink() followed by
// a later grow() does not round-trip through mmap/munmap for a region it
// only just gave back. The ring algorithm — turn-tagged slots indexed by
// a masked head/tail cursor — is the teacher package's bounded_pool.go
// MPMC ring, adapted from a generic buffer pool to a fixed-capacity
// cache of Region recycle slots.
//
// A miss on acquire is not an error: the caller falls back to
// vmReserveCommit. A full cache on release is not an error either: the
// caller falls back to vmRelease. The cache is purely an optimization,
// never a correctness dependency — unlike the teacher's BoundedPool,
// which blocks its caller until a slot is free, this ring is always
// nonblocking in both directions.
type regionCache struct {
	slots    []regionSlot
	entries  []atomic.Uint64
	capacity uint32
	mask     uint32

	head, tail atomic.Uint32
}

type regionSlot struct {
	region Region
}

const (
	regionCacheEmpty    = 1 << 62
	regionCacheTurnMask = regionCacheEmpty>>32 - 1
)

// newRegionCache builds a cache with room for capacity regions, rounded
// up to the next power of two as the teacher's ring requires for its
// mask-based indexing.
func newRegionCache(capacity int) *regionCache {
	if capacity < 1 {
		capacity = 1
	}
	capacity--
	capacity |= capacity >> 1
	capacity |= capacity >> 2
	capacity |= capacity >> 4
	capacity |= capacity >> 8
	capacity |= capacity >> 16
	capacity++

	rc := &regionCache{
		slots:    make([]regionSlot, capacity),
		entries:  make([]atomic.Uint64, capacity),
		capacity: uint32(capacity),
		mask:     uint32(capacity - 1),
	}
	for i := range rc.entries {
		rc.entries[i].Store(rc.empty(0))
	}
	return rc
}

// acquire pops a cached region if one is available.
func (rc *regionCache) acquire() (Region, bool) {
	sw := spin.Wait{}
	for {
		h, t := rc.head.Load(), rc.tail.Load()
		idx := h & rc.mask
		e := rc.entries[idx].Load()

		if h != rc.head.Load() {
			sw.Once()
			continue
		}
		if h == t {
			return Region{}, false
		}

		nextTurn := (h/rc.capacity + 1) & regionCacheTurnMask
		if e == rc.empty(nextTurn) {
			rc.head.CompareAndSwap(h, h+1)
			sw.Once()
			continue
		}

		region := rc.slots[idx].region
		ok := rc.entries[idx].CompareAndSwap(e, rc.empty(nextTurn))
		rc.head.CompareAndSwap(h, h+1)
		if ok {
			return region, true
		}
		sw.Once()
	}
}

// release pushes r into the cache, reporting false if the cache is
// currently full (caller should vmRelease instead).
func (rc *regionCache) release(r Region) bool {
	sw := spin.Wait{}
	for {
		h, t := rc.head.Load(), rc.tail.Load()
		if t != rc.tail.Load() {
			sw.Once()
			continue
		}
		if t == h+rc.capacity {
			return false
		}

		idx := t & rc.mask
		turn := (t / rc.capacity) & regionCacheTurnMask
		rc.slots[idx].region = r
		ok := rc.entries[idx].CompareAndSwap(rc.empty(turn), rc.full(turn))
		rc.tail.CompareAndSwap(t, t+1)
		if ok {
			return true
		}
		sw.Once()
	}
}

func (rc *regionCache) empty(turn uint32) uint64 {
	return regionCacheEmpty | uint64(turn&regionCacheTurnMask)
}

func (rc *regionCache) full(turn uint32) uint64 {
	return uint64(turn & regionCacheTurnMask)
}

// drain releases every cached region back to the OS; called when an
// allocator is torn down.
func (rc *regionCache) drain() {
	for {
		r, ok := rc.acquire()
		if !ok {
			return
		}
		_ = vmRelease(r)
	}
}
