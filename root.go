// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package gc

import "unsafe"

// Root is the RAII-style handle of design §4.10: constructing it
// registers (address, traverse_cb, root_cb) with the collector, and
// Close unregisters it. Go has no destructors, so Close takes the
// io.Closer shape instead of the original's destructor — the idiomatic
// translation noted in SPEC_FULL.md's module list. A Root is move-only
// in spirit: copying the struct would let two owners both call Close,
// so callers should pass it by pointer, matching the original's
// non-copyable RAII value.
type Root struct {
	c      *Collector
	m      *MutatorLock
	addr   unsafe.Pointer
	closed bool
}

// NewRoot registers addr as a root under the mutator lock m and returns
// the handle that will unregister it on Close. traverse reports addr's
// out-pointers during mark (nil if addr holds none worth traversing);
// cb is the reserved static-type remap shim (design §4.10), nil unless a
// relocation pass is in use.
func NewRoot(m *MutatorLock, c *Collector, addr unsafe.Pointer, traverse RootTraverseFunc, cb RootCB) *Root {
	c.RegisterRoot(m, addr, traverse, cb)
	return &Root{c: c, m: m, addr: addr}
}

// Close unregisters the root. Safe to call more than once; only the
// first call has an effect.
func (r *Root) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	r.c.UnregisterRoot(r.m, r.addr)
	return nil
}
