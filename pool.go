// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package gc

import (
	"sort"
	"sync"
	"unsafe"
)

// pool is one virtual-memory region laid out by a blueprint: an arena of
// fixed-size slots plus their companion bitmaps, free list, and optional
// gray stack (design §3, §4.3, §4.4). It is the "source of truth" for
// one region and registers itself with the owning Collector as a
// *source*, and as a *traversable source* when its identity carries
// pointers.
type pool struct {
	region   Region
	identity *Identity
	store    arena

	initialized bitmap
	reachable   bitmap
	free        freeList
	gray        grayStack

	weakMu  sync.Mutex
	weakTbl []*weakRecord // sorted by object address
}

// newPool commits a fresh region sized by bp and builds a pool over it,
// per design §4.3's pool construction.
func newPool(id *Identity, bp blueprint) (*pool, error) {
	region, err := vmReserveCommit(bp.totalLen, true)
	if err != nil {
		return nil, err
	}
	return newPoolFromRegion(id, bp, region)
}

// newPoolFromRegion builds a pool over an already-committed region —
// either freshly reserved by newPool, or handed back by an allocator's
// regionCache — carving it into header and slot spans: set the guard
// pages no-access (the region is mapped read-write, so header and slot
// spans are left as they are), zero both bitmaps, thread the free list
// through every slot. A cached region still holds the previous pool's
// bitmaps and slot contents, since retire does not clear them; rebuilding
// both here keeps this path identical whichever source the region came
// from.
func newPoolFromRegion(id *Identity, bp blueprint, region Region) (*pool, error) {
	if bp.guardPages {
		if err := vmSetProtection(region, 0, bp.headGuardLen, ProtNone); err != nil {
			_ = vmRelease(region)
			return nil, err
		}
		tailGuardOff := bp.slotsOff - bp.tailGuardLen
		if bp.tailGuardLen > 0 {
			if err := vmSetProtection(region, tailGuardOff, bp.tailGuardLen, ProtNone); err != nil {
				_ = vmRelease(region)
				return nil, err
			}
		}
		endGuardOff := bp.slotsOff + bp.slotsLen
		if bp.endGuardLen > 0 {
			if err := vmSetProtection(region, endGuardOff, bp.endGuardLen, ProtNone); err != nil {
				_ = vmRelease(region)
				return nil, err
			}
		}
	}

	base := region.Ptr()
	initMap := newBitmapAt(addBytes(base, bp.initMapOff), bp.capacity)
	reachMap := newBitmapAt(addBytes(base, bp.reachMapOff), bp.capacity)
	initMap.clearAll()
	reachMap.clearAll()

	var gray grayStack
	if bp.traversable {
		gray = newGrayStackAt(addBytes(base, bp.grayOff), bp.capacity)
	}

	slotsBase := addBytes(base, bp.slotsOff)
	store := newArena(slotsBase, bp.unit, bp.capacity)

	p := &pool{
		region:      region,
		identity:    id,
		store:       store,
		initialized: initMap,
		reachable:   reachMap,
		gray:        gray,
		free:        newFreeList(store),
	}
	return p, nil
}

// destroy finalizes every still-initialized slot, nulls out any
// outstanding weak records, and releases the region (design §4.3's pool
// destruction).
func (p *pool) destroy() {
	_ = vmRelease(p.retire())
}

// retire runs the finalization half of destruction — running finalizers
// on any still-initialized slot and clearing outstanding weak records —
// without releasing the underlying region, so a caller (the allocator's
// shrink path) can hand the region to a regionCache instead of the OS.
// The pool itself must not be used again after retire returns.
func (p *pool) retire() Region {
	if p.identity.finalize != nil {
		p.initialized.forEachSet(p.store.capacity, func(i uintptr) {
			p.identity.finalize(p.store.slot(i))
		})
	}
	p.weakMu.Lock()
	for _, rec := range p.weakTbl {
		rec.clear()
	}
	p.weakMu.Unlock()
	return p.region
}

// allocate pops a free slot and marks it initialized, or returns nil if
// the pool is full (design §4.4).
func (p *pool) allocate() unsafe.Pointer {
	slot := p.free.pop()
	if slot == nil {
		return nil
	}
	i, _ := p.store.index(slot)
	p.initialized.set(i)
	return slot
}

// discarded reverses a just-performed allocate: clears initialized and
// pushes the slot back onto the free list. Precondition: addr was
// allocated while the caller held the collector's mutator lock, so no
// concurrent sweep could have observed it (design §4.4).
func (p *pool) discarded(addr unsafe.Pointer) {
	i, ok := p.store.index(addr)
	if !ok {
		return
	}
	p.initialized.reset(i)
	p.free.push(addr)
}

// location returns the address used to order pools and to identify this
// pool as a source (design §4.3).
func (p *pool) location() unsafe.Pointer { return p.store.location() }

// from reports whether ptr lies within this pool's slot arena.
func (p *pool) from(ptr unsafe.Pointer) bool { return p.store.contains(ptr) }

// baseOf returns the start of the slot containing ptr.
func (p *pool) baseOf(ptr unsafe.Pointer) unsafe.Pointer {
	i, ok := p.store.index(ptr)
	if !ok {
		return nil
	}
	return p.store.slot(i)
}

// mark sets the reachable bit for ptr's slot and, if the pool is
// traversable, pushes it onto the gray stack the first time it is seen
// (design §4.4).
func (p *pool) mark(ptr unsafe.Pointer) {
	base := p.baseOf(ptr)
	i, ok := p.store.index(base)
	if !ok || !p.initialized.test(i) {
		return
	}
	if p.reachable.test(i) {
		return
	}
	p.reachable.set(i)
	if p.gray.present() {
		p.gray.push(base)
	}
}

// traverse drains the gray stack, invoking the identity's Traverse
// callback for each popped slot. Returns true if any work was done
// (design §4.4), letting the collector's fixpoint loop (design §4.7
// step 4) detect when marking has converged.
func (p *pool) traverse(data unsafe.Pointer, cb EnumerateFunc) bool {
	if !p.gray.present() || p.identity.traverse == nil {
		return false
	}
	did := false
	for p.gray.hasPending() {
		obj := p.gray.pop()
		p.identity.traverse(obj, data, cb)
		did = true
	}
	return did
}

// sweep reclaims every slot that is initialized but was not marked
// reachable this cycle: it calls the finalizer if any, nulls any weak
// record observing the slot, and returns the slot to the free list.
// Afterward initialized becomes a copy of reachable and reachable is
// cleared, restoring the invariant of testable property 3.
func (p *pool) sweep() {
	andNotForEachSet(p.initialized, p.reachable, p.store.capacity, func(i uintptr) {
		addr := p.store.slot(i)
		if p.identity.finalize != nil {
			p.identity.finalize(addr)
		}
		if rec := p.lookupWeakRecord(addr); rec != nil {
			p.clearWeakRecord(rec)
		}
		p.free.push(addr)
	})
	p.initialized.copyFrom(p.reachable)
	p.reachable.clearAll()
}

// fetch finds or creates the weak record for addr, matching design
// §4.4's fetch operation. A new record is an ordinary Go heap
// allocation, so fetch never waits on a collection cycle; see weakptr.go
// for the full find-or-insert protocol.
func (p *pool) fetch(addr unsafe.Pointer) *weakRecord {
	p.weakMu.Lock()
	defer p.weakMu.Unlock()

	idx := sort.Search(len(p.weakTbl), func(i int) bool {
		return uintptr(p.weakTbl[i].addr()) >= uintptr(addr)
	})
	if idx < len(p.weakTbl) && p.weakTbl[idx].addr() == addr {
		return p.weakTbl[idx]
	}
	rec := newWeakRecord(addr)
	p.weakTbl = append(p.weakTbl, nil)
	copy(p.weakTbl[idx+1:], p.weakTbl[idx:])
	p.weakTbl[idx] = rec
	return rec
}

// lookupWeakRecord returns the existing weak record for addr without
// creating one, or nil.
func (p *pool) lookupWeakRecord(addr unsafe.Pointer) *weakRecord {
	p.weakMu.Lock()
	defer p.weakMu.Unlock()
	idx := sort.Search(len(p.weakTbl), func(i int) bool {
		return uintptr(p.weakTbl[i].addr()) >= uintptr(addr)
	})
	if idx < len(p.weakTbl) && p.weakTbl[idx].addr() == addr {
		return p.weakTbl[idx]
	}
	return nil
}

// clearWeakRecord sets a swept record's address to nil and, per the
// stale-list rule (design §4.9, §9 open question), either frees it
// immediately if the refcount already hit zero or defers to the global
// stale list otherwise. It is always removed from this pool's table: a
// dead target address must become available for reuse by a future slot.
func (p *pool) clearWeakRecord(rec *weakRecord) {
	p.weakMu.Lock()
	idx := sort.Search(len(p.weakTbl), func(i int) bool {
		return uintptr(p.weakTbl[i].addr()) >= uintptr(rec.addr())
	})
	if idx < len(p.weakTbl) && p.weakTbl[idx] == rec {
		p.weakTbl = append(p.weakTbl[:idx], p.weakTbl[idx+1:]...)
	}
	p.weakMu.Unlock()

	if rec.clear() {
		// count was already zero: free immediately.
		return
	}
	staleList.add(rec)
}

func (p *pool) used() uintptr      { return p.store.capacity - p.free.available() }
func (p *pool) available() uintptr { return p.free.available() }
func (p *pool) pending() int       { return p.gray.pending() }
func (p *pool) empty() bool        { return p.free.available() == p.store.capacity }
func (p *pool) full() bool         { return p.free.full() }
func (p *pool) hasPending() bool   { return p.gray.hasPending() }
