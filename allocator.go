// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package gc

import (
	"sort"
	"sync"
	"unsafe"
)

// Allocator is the per-identity partition of design §4.5: every pool
// built for one Identity's (unit, capacity) blueprint lives in exactly
// one of three lists, ordered by location() so lookups and shrink
// decisions are deterministic. current always points at the pool most
// recently used to satisfy an allocation.
type Allocator struct {
	mu        sync.Mutex
	identity  *Identity
	collector *Collector
	bp        blueprint

	empty   []*pool
	partial []*pool
	full    []*pool
	current *pool

	cache *regionCache
}

// newAllocator computes the blueprint for id under c's configuration and
// returns an Allocator with no pools yet; the first allocate() call grows
// one lazily.
func newAllocator(id *Identity, c *Collector) *Allocator {
	bp := computeBlueprint(id, c.cfg, c.pageSize)
	return &Allocator{
		identity:  id,
		collector: c,
		bp:        bp,
		cache:     newRegionCache(4),
	}
}

// allocate services one allocation request, retrying once after a
// collection cycle if every existing pool is full and no new pool can be
// grown (design §4.5, §4.6's "allocator retries through wait()").
func (a *Allocator) allocate(m *MutatorLock) (unsafe.Pointer, error) {
	addr, err := a.tryAllocate()
	if err == nil {
		return addr, nil
	}
	if err != ErrPoolExhausted {
		return nil, err
	}

	if werr := m.wait(); werr != nil {
		return nil, werr
	}

	addr, err = a.tryAllocate()
	if err == nil {
		return addr, nil
	}
	return nil, ErrOutOfMemory
}

// tryAllocate attempts to satisfy one allocation from the current pool,
// promoting it to the full list and pulling from partial/empty, or
// growing a new pool, before giving up with ErrPoolExhausted (design
// §4.5's allocate algorithm).
func (a *Allocator) tryAllocate() (unsafe.Pointer, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current == nil || a.current.full() {
		if a.current != nil {
			a.full = insertSortedPool(a.full, a.current)
		}
		a.current = a.takeNonFullLocked()
	}
	if a.current == nil {
		p, err := a.growLocked()
		if err != nil {
			return nil, ErrPoolExhausted
		}
		a.current = p
	}

	addr := a.current.allocate()
	if addr == nil {
		return nil, ErrPoolExhausted
	}
	return addr, nil
}

// takeNonFullLocked removes and returns a pool from empty, then partial,
// matching the invariant that current sits "at the front of empty if one
// exists, else partial, else full" (design §4.5). Returns nil if both
// lists are empty.
func (a *Allocator) takeNonFullLocked() *pool {
	if len(a.empty) > 0 {
		p := a.empty[0]
		a.empty = a.empty[1:]
		return p
	}
	if len(a.partial) > 0 {
		p := a.partial[0]
		a.partial = a.partial[1:]
		return p
	}
	return nil
}

// growLocked builds a new pool, preferring a cached region over a fresh
// mmap (design §4.1's guidance to minimize syscalls; grounded on the
// teacher's bounded_pool.go buffer cache, adapted in regioncache.go).
func (a *Allocator) growLocked() (*pool, error) {
	p, err := a.buildPoolLocked()
	if err != nil {
		return nil, err
	}
	a.collector.registerSource(a.identity, p)
	return p, nil
}

func (a *Allocator) buildPoolLocked() (*pool, error) {
	if cached, ok := a.cache.acquire(); ok {
		p, err := newPoolFromRegion(a.identity, a.bp, cached)
		if err == nil {
			return p, nil
		}
		// The cached region turned out unusable (e.g. a protection
		// syscall failed); fall through and try a fresh one.
	}
	return newPool(a.identity, a.bp)
}

// discarded routes a just-failed construction back to the owning pool
// and, if that pool was previously full, moves it into partial (design
// §4.4/§4.5).
func (a *Allocator) discarded(addr unsafe.Pointer) {
	a.mu.Lock()
	defer a.mu.Unlock()

	p := a.findOwningPoolLocked(addr)
	if p == nil {
		return
	}
	wasFull := p.full()
	p.discarded(addr)
	if wasFull && p != a.current {
		a.full = removePool(a.full, p)
		a.partial = insertSortedPool(a.partial, p)
	}
}

func (a *Allocator) findOwningPoolLocked(addr unsafe.Pointer) *pool {
	if a.current != nil && a.current.from(addr) {
		return a.current
	}
	for _, p := range a.partial {
		if p.from(addr) {
			return p
		}
	}
	for _, p := range a.full {
		if p.from(addr) {
			return p
		}
	}
	for _, p := range a.empty {
		if p.from(addr) {
			return p
		}
	}
	return nil
}

// repartition re-sorts every pool this allocator owns into empty,
// partial, and full by its actual post-sweep occupancy (design §4.7's
// shrink phase: "partition pools across the three lists by actual
// state"). Called by the collector's worker after every sweep, while no
// mutator can be racing it.
func (a *Allocator) repartition() {
	a.mu.Lock()
	defer a.mu.Unlock()

	all := make([]*pool, 0, len(a.empty)+len(a.partial)+len(a.full)+1)
	all = append(all, a.empty...)
	all = append(all, a.partial...)
	all = append(all, a.full...)
	if a.current != nil {
		all = append(all, a.current)
	}

	a.empty = a.empty[:0]
	a.partial = a.partial[:0]
	a.full = a.full[:0]
	a.current = nil

	for _, p := range all {
		switch {
		case p.empty():
			a.empty = insertSortedPool(a.empty, p)
		case p.full():
			a.full = insertSortedPool(a.full, p)
		default:
			a.partial = insertSortedPool(a.partial, p)
		}
	}
	a.current = a.takeNonFullLocked()
}

// shrink releases empty pools back to the region cache (or the OS) until
// either goal releases have happened or only one empty pool remains,
// matching design §4.7's "keep at least one pool's capacity worth of
// free space" rule. A goal of zero or less means shrink opportunistically:
// release every empty pool but the last.
func (a *Allocator) shrink(goal int) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	released := 0
	for len(a.empty) > 1 {
		if goal > 0 && released >= goal {
			break
		}
		p := a.empty[len(a.empty)-1]
		a.empty = a.empty[:len(a.empty)-1]
		a.releasePoolLocked(p)
		released++
	}
	return released
}

// releasePoolLocked retires p (there should be no initialized slots left,
// since p is empty) and either returns its region to the cache for reuse
// or releases it to the OS if the cache is full.
func (a *Allocator) releasePoolLocked(p *pool) {
	a.collector.unregisterSource(p)
	region := p.retire()
	if !a.cache.release(region) {
		_ = vmRelease(region)
	}
}

// teardown destroys every pool this allocator owns and drains its region
// cache, releasing all backing memory to the OS (design §9's teardown
// order: "allocators drop all pools, pools drop vmem"). Called once from
// Collector.Close(); the allocator must not be used afterward.
func (a *Allocator) teardown() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.current != nil {
		a.full = append(a.full, a.current)
		a.current = nil
	}
	for _, list := range [][]*pool{a.empty, a.partial, a.full} {
		for _, p := range list {
			a.collector.unregisterSource(p)
			p.destroy()
		}
	}
	a.empty, a.partial, a.full = nil, nil, nil
	a.cache.drain()
}

// insertSortedPool inserts p into a location()-sorted slice, preserving
// the invariant pool lookups rely on.
func insertSortedPool(list []*pool, p *pool) []*pool {
	key := uintptr(p.location())
	idx := sort.Search(len(list), func(i int) bool {
		return uintptr(list[i].location()) >= key
	})
	list = append(list, nil)
	copy(list[idx+1:], list[idx:])
	list[idx] = p
	return list
}

// removePool deletes p from a location()-sorted slice.
func removePool(list []*pool, p *pool) []*pool {
	key := uintptr(p.location())
	idx := sort.Search(len(list), func(i int) bool {
		return uintptr(list[i].location()) >= key
	})
	if idx < len(list) && list[idx] == p {
		return append(list[:idx], list[idx+1:]...)
	}
	return list
}
