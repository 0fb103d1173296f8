// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package gc

import "unsafe"

// Strong is an owning handle to a collector-managed object of type T
// (design §4.8): a (base_address, identity) pair. A zero-valued Strong
// is the null handle.
type Strong[T any] struct {
	addr     unsafe.Pointer
	identity *Identity
}

// IsNil reports whether s is the null handle.
func (s Strong[T]) IsNil() bool { return s.addr == nil }

// Ptr returns the object's address. Valid only while some Strong or
// mutator-held reference to the object is alive.
func (s Strong[T]) Ptr() unsafe.Pointer { return s.addr }

// Get returns a *T view of the object, or ErrTypeMismatch if the
// identity recorded for addr is not T's (design §4.8, §4.11).
func (s Strong[T]) Get() (*T, error) {
	if s.addr == nil {
		return nil, nil
	}
	if s.identity != IdentityOf[T]() {
		return nil, ErrTypeMismatch
	}
	return (*T)(s.addr), nil
}

// Equal implements design §4.8's equality: same address, or same
// identity with identity.Equal(a, b) true.
func (s Strong[T]) Equal(other Strong[T]) bool {
	if s.addr == other.addr {
		return true
	}
	if s.identity == nil || s.identity != other.identity {
		return false
	}
	return s.identity.Equal(s.addr, other.addr)
}

// StrongFromPtr builds a Strong from a raw address by asking the
// collector which source, if any, claims it (design §4.8's "construct
// from raw-pointer"). Returns ErrNotCollectorOwned if no source claims
// the address.
func StrongFromPtr[T any](c *Collector, raw unsafe.Pointer) (Strong[T], error) {
	src := c.findSource(raw)
	if src == nil {
		return Strong[T]{}, ErrNotCollectorOwned
	}
	base := src.pool.baseOf(raw)
	return Strong[T]{addr: base, identity: src.identity}, nil
}

// StrongFromPtrNoThrow is the non-throwing variant: a null Strong
// instead of an error when the address is not collector-owned.
func StrongFromPtrNoThrow[T any](c *Collector, raw unsafe.Pointer) Strong[T] {
	s, err := StrongFromPtr[T](c, raw)
	if err != nil {
		return Strong[T]{}
	}
	return s
}

// AllocateStrong performs identity.allocate() followed by in-place
// construction via init (design §4.8's allocate<T>(args...)). If init
// panics, the slot is reported back to the identity as discarded before
// the panic is re-raised, the Go idiom for the original's "on
// construction failure the caller must call identity.discarded(),
// handled through RAII."
func AllocateStrong[T any](m *MutatorLock, c *Collector, init func(obj *T)) (s Strong[T], err error) {
	id := IdentityOf[T]()
	addr, aerr := id.Allocate(m, c)
	if aerr != nil {
		return Strong[T]{}, aerr
	}

	committed := false
	defer func() {
		if !committed {
			id.Discarded(addr)
		}
		if r := recover(); r != nil {
			panic(r)
		}
	}()

	obj := (*T)(addr)
	if init != nil {
		init(obj)
	}
	committed = true
	return Strong[T]{addr: addr, identity: id}, nil
}
