// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package gc

import (
	"reflect"
	"sync"
	"unsafe"
)

// IdentityFlags summarizes the traits of a type for fast checks (design
// §3).
type IdentityFlags uint8

const (
	FlagMovable IdentityFlags = 1 << iota
	FlagHasFinalizer
	FlagContainsPointers
	FlagHasRelocator
	FlagReadonly
)

// FinalizeFunc runs when a slot is reclaimed while still initialized.
type FinalizeFunc func(obj unsafe.Pointer)

// EnumerateFunc is the sink TraverseFunc reports each out-pointer to.
type EnumerateFunc func(data unsafe.Pointer, ptr unsafe.Pointer)

// TraverseFunc reports every out-pointer held by obj to cb(data, ptr).
type TraverseFunc func(obj unsafe.Pointer, data unsafe.Pointer, cb EnumerateFunc)

// RelocateFunc copies obj to a new address, fixing up internal
// self-references. Reserved: the mark+sweep path never calls it (design
// §4.2, Non-goals — compaction is a future extension).
type RelocateFunc func(dst, src unsafe.Pointer)

// EqualFunc implements value equality between two live objects of the
// same identity.
type EqualFunc func(a, b unsafe.Pointer) bool

// Traits is the trait-style mapping a type provides when registering an
// Identity (design §6's "Types declare these via a trait-style
// mapping"). Defaults described in spec.md §6 apply to zero-valued
// fields: trivially destructible types omit Finalize; pointer-free types
// omit Traverse/Relocate; non-readonly types omit Equal.
type Traits struct {
	Size, Align  uintptr
	ReadOnly     bool
	Finalize     FinalizeFunc
	Traverse     TraverseFunc
	Relocate     RelocateFunc
	Equal        EqualFunc
}

// Identity is the process-wide, per-type descriptor of design §3: size,
// alignment, callbacks, and flags, plus a pointer to the allocator that
// services it. Identities are built by NewIdentity, recorded for a type
// with RegisterIdentityFor, and bound to an allocator lazily on first
// allocation.
type Identity struct {
	size  uintptr
	align uintptr
	unit  uintptr
	flags IdentityFlags

	finalize FinalizeFunc
	traverse TraverseFunc
	relocate RelocateFunc
	equal    EqualFunc

	allocOnce sync.Once
	alloc     *Allocator
	coll      *Collector
}

// NewIdentity builds an Identity from the given traits, checking the
// invariants of design §3: if ContainsPointers, both Traverse and
// Relocate must be non-nil; if not trivially destructible (Finalize !=
// nil is how this package spells that), Finalize must be consistent with
// FlagHasFinalizer. It panics on a violated invariant — this is a
// construction-time programmer error, not a runtime condition a mutator
// can recover from.
func NewIdentity(t Traits) *Identity {
	containsPointers := t.Traverse != nil
	if containsPointers && t.Relocate == nil {
		panic("gc: identity advertises pointers but has no relocate callback")
	}
	if t.Relocate != nil && t.Traverse == nil {
		panic("gc: identity advertises a relocate callback without traverse")
	}

	unit := t.Size
	if unit < nodeSize {
		unit = nodeSize
	}
	if t.Align > 0 {
		unit = alignUp(unit, t.Align)
	}

	var flags IdentityFlags
	if containsPointers {
		flags |= FlagContainsPointers | FlagHasRelocator
	}
	if t.Finalize != nil {
		flags |= FlagHasFinalizer
	}
	if t.ReadOnly {
		flags |= FlagReadonly
	}

	id := &Identity{
		size:     t.Size,
		align:    t.Align,
		unit:     unit,
		flags:    flags,
		finalize: t.Finalize,
		traverse: t.Traverse,
		relocate: t.Relocate,
		equal:    t.Equal,
	}
	return id
}

// identityRegistry maps a runtime type to the Identity registered for
// it, so IdentityOf[T] can recover the Identity NewIdentity produced for
// T without the caller threading it through by hand (design §6:
// "identity_of<T>() -> &identity").
var (
	identityRegistryMu sync.RWMutex
	identityRegistry   = map[reflect.Type]*Identity{}
)

// RegisterIdentityFor records id as the Identity for T, so later callers
// can use IdentityOf[T] to fetch it. Call once per type, typically from
// an init function in the code that defines T.
func RegisterIdentityFor[T any](id *Identity) *Identity {
	var zero T
	rt := reflect.TypeOf(zero)
	identityRegistryMu.Lock()
	identityRegistry[rt] = id
	identityRegistryMu.Unlock()
	return id
}

// IdentityOf returns the Identity registered for T. It panics if T was
// never registered: unlike allocation failures, an unregistered type is
// a linkage error the mutator cannot recover from at the call site.
func IdentityOf[T any]() *Identity {
	var zero T
	rt := reflect.TypeOf(zero)
	identityRegistryMu.RLock()
	id, ok := identityRegistry[rt]
	identityRegistryMu.RUnlock()
	if !ok {
		panic("gc: no identity registered for " + rt.String())
	}
	return id
}

// bind lazily attaches id to the given collector's allocator set on
// first use (design §3: "lifetime: created lazily on first use").
func (id *Identity) bind(c *Collector) {
	id.allocOnce.Do(func() {
		id.coll = c
		id.alloc = c.newAllocatorFor(id)
	})
}

// Size returns the identity's logical object size (pre-rounding).
func (id *Identity) Size() uintptr { return id.size }

// Unit returns the rounded slot size the allocator actually uses.
func (id *Identity) Unit() uintptr { return id.unit }

// Flags returns the identity's trait summary.
func (id *Identity) Flags() IdentityFlags { return id.flags }

// ContainsPointers reports whether traversal/relocation callbacks are
// present.
func (id *Identity) ContainsPointers() bool { return id.flags&FlagContainsPointers != 0 }

// HasFinalizer reports whether a finalizer runs on reclaim.
func (id *Identity) HasFinalizer() bool { return id.flags&FlagHasFinalizer != 0 }

// Equal delegates to the identity's equality callback. Absent callback
// means false (design §4.2).
func (id *Identity) Equal(a, b unsafe.Pointer) bool {
	if id.equal == nil {
		return false
	}
	return id.equal(a, b)
}

// Allocate dispatches through the bound allocator, guarded by the
// mutator lock (design §4.2: "allocate() which the collector lock must
// guard"). The caller must already hold a MutatorLock.
func (id *Identity) Allocate(m *MutatorLock, c *Collector) (unsafe.Pointer, error) {
	m.mustHold(c)
	id.bind(c)
	return id.alloc.allocate(m)
}

// AllocateNoThrow is the non-throwing variant: it returns nil on any
// allocation failure instead of an error, matching the iobuf-style "nothrow" naming the
// teacher package uses for its non-blocking Pool mode.
func (id *Identity) AllocateNoThrow(m *MutatorLock, c *Collector) unsafe.Pointer {
	p, err := id.Allocate(m, c)
	if err != nil {
		return nil
	}
	return p
}

// Discarded tells the allocator a just-allocated slot never became a
// live object (construction failed before the object was usable). It is
// a no-op unless the identity has a finalizer — otherwise the slot is
// reclaimed normally on the next sweep (design §4.2).
func (id *Identity) Discarded(addr unsafe.Pointer) {
	if id.alloc == nil || !id.HasFinalizer() {
		return
	}
	id.alloc.discarded(addr)
}

// fetchIdentity returns the Identity owning addr, or nil if addr is not managed
// by c (design §4.2's identity::fetch).
func fetchIdentity(c *Collector, addr unsafe.Pointer) *Identity {
	src := c.findSource(addr)
	if src == nil {
		return nil
	}
	return src.identity
}
