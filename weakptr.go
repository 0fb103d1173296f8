// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package gc

import (
	"sort"
	"sync"
	"sync/atomic"
	"unsafe"
)

// weakRecord is the shared cell a Weak pointer's handle indirects
// through (design §3). address == nil means the target was reclaimed;
// next != nil means the target was merged into another object and the
// chain must be followed transitively. next is install-once: once set
// non-nil it never changes again (design §9's resolution of the
// multiple soft_ptr stale-list ambiguity).
//
// Go's sync/atomic gives sequential consistency, a strictly stronger
// guarantee than the release/acquire ordering design §4.9 asks for, so
// plain atomic.Pointer/atomic.Int64 operations satisfy it.
type weakRecord struct {
	address atomic.Pointer[byte]
	next    atomic.Pointer[weakRecord]
	count   atomic.Int64
}

func newWeakRecord(addr unsafe.Pointer) *weakRecord {
	rec := &weakRecord{}
	rec.address.Store((*byte)(addr))
	return rec
}

// addr returns the target's current address, or nil if reclaimed.
func (r *weakRecord) addr() unsafe.Pointer {
	return unsafe.Pointer(r.address.Load())
}

// bump increments the reference count; called whenever a new Weak is
// constructed from this record.
func (r *weakRecord) bump() { r.count.Add(1) }

// release decrements the reference count and reports whether it reached
// zero.
func (r *weakRecord) release() bool { return r.count.Add(-1) == 0 }

// follow returns the record this one has been merged into, or nil.
func (r *weakRecord) follow() *weakRecord { return r.next.Load() }

// installNext sets next once. Installing twice, or installing onto a
// record whose next is already set to something else, is a programmer
// error (design §9: "install-once chain, immutable after first non-null
// store").
func (r *weakRecord) installNext(other *weakRecord) {
	if !r.next.CompareAndSwap(nil, other) {
		if r.next.Load() != other {
			panic("gc: weak record next installed twice with different targets")
		}
	}
}

// clear nulls the address (called by pool.sweep when the slot is
// reclaimed) and reports whether the refcount was already zero at that
// moment — if so the caller frees the record immediately instead of
// appending it to the stale list (design §9's open-question
// resolution).
func (r *weakRecord) clear() bool {
	r.address.Store(nil)
	return r.count.Load() == 0
}

// staleRegistry is the process-wide sorted stale list of design §3:
// records whose target has been reclaimed but which are still
// referenced by at least one live Weak. It exists solely so Destroy can
// find and drop a stale record once its last reference goes away.
type staleRegistry struct {
	mu   sync.Mutex
	recs []*weakRecord // sorted by record identity
}

var staleList staleRegistry

func (s *staleRegistry) add(rec *weakRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := uintptr(unsafe.Pointer(rec))
	idx := sort.Search(len(s.recs), func(i int) bool {
		return uintptr(unsafe.Pointer(s.recs[i])) >= key
	})
	s.recs = append(s.recs, nil)
	copy(s.recs[idx+1:], s.recs[idx:])
	s.recs[idx] = rec
}

func (s *staleRegistry) remove(rec *weakRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := uintptr(unsafe.Pointer(rec))
	idx := sort.Search(len(s.recs), func(i int) bool {
		return uintptr(unsafe.Pointer(s.recs[i])) >= key
	})
	if idx < len(s.recs) && s.recs[idx] == rec {
		s.recs = append(s.recs[:idx], s.recs[idx+1:]...)
	}
}

func (s *staleRegistry) contains(rec *weakRecord) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := uintptr(unsafe.Pointer(rec))
	idx := sort.Search(len(s.recs), func(i int) bool {
		return uintptr(unsafe.Pointer(s.recs[i])) >= key
	})
	return idx < len(s.recs) && s.recs[idx] == rec
}

// Weak is a non-owning handle to a collector-managed object (design
// §4.9). It survives the target being swept: Strong derefs to nil
// instead of dangling.
type Weak[T any] struct {
	rec *weakRecord
	id  *Identity
}

// newWeak wraps rec, bumping its refcount. rec may be nil, representing
// a null Weak.
func newWeak[T any](rec *weakRecord, id *Identity) Weak[T] {
	if rec != nil {
		rec.bump()
	}
	return Weak[T]{rec: rec, id: id}
}

// WeakFromStrong finds or inserts the per-pool weak record for s's
// address and wraps it.
func WeakFromStrong[T any](c *Collector, s Strong[T]) Weak[T] {
	if s.addr == nil {
		return Weak[T]{}
	}
	src := c.findSource(s.addr)
	if src == nil {
		return Weak[T]{}
	}
	rec := src.pool.fetch(s.addr)
	return newWeak[T](rec, s.identity)
}

// resolve walks the install-once next chain to the live record, per
// design §4.9's copy/refresh semantics, returning nil if the chain ends
// in a reclaimed address.
func (w Weak[T]) resolve() *weakRecord {
	rec := w.rec
	for rec != nil {
		if n := rec.follow(); n != nil {
			rec = n
			continue
		}
		break
	}
	return rec
}

// Strong upgrades the weak pointer to a Strong, or a null Strong if the
// target has been reclaimed (design §4.9's "deref to strong").
func (w Weak[T]) Strong() Strong[T] {
	rec := w.resolve()
	if rec == nil {
		return Strong[T]{}
	}
	addr := rec.addr()
	if addr == nil {
		return Strong[T]{}
	}
	return Strong[T]{addr: addr, identity: w.id}
}

// Clone copies w, following the next chain and bumping the resulting
// record's refcount, or returning a null Weak if already null (design
// §4.9's copy semantics).
func (w Weak[T]) Clone() Weak[T] {
	rec := w.resolve()
	if rec == nil {
		return Weak[T]{id: w.id}
	}
	rec.bump()
	return Weak[T]{rec: rec, id: w.id}
}

// Refresh re-chases the next chain; used by remapping callbacks when a
// pool merges identical immutable objects (design §4.9).
func (w Weak[T]) Refresh() Weak[T] { return w.Clone() }

// IsNil reports whether w holds no record.
func (w Weak[T]) IsNil() bool { return w.rec == nil }

// Destroy releases w's reference. If the refcount reaches zero and the
// record was already stale (its target had been reclaimed by a prior
// sweep), the record is dropped from the global stale list; otherwise it
// is left alone in its pool's table until that pool's next sweep clears
// it (design §4.9).
func (w Weak[T]) Destroy() {
	if w.rec == nil {
		return
	}
	if w.rec.release() {
		if w.rec.addr() == nil && staleList.contains(w.rec) {
			staleList.remove(w.rec)
		}
	}
}
