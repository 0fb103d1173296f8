// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package gc

import "unsafe"

// grayStack is the bounded LIFO buffer of base-slot pointers pending
// traversal (design §3). It is nil — not merely empty — when the pool's
// identity has no traversal callback, matching "optional (null when the
// pool's identity has no traversal callback)"; pool.mark and pool.traverse
// both check for this before touching it.
type grayStack struct {
	buf []unsafe.Pointer
	top int
}

// newGrayStackAt views capacity words of memory starting at p as a gray
// stack's backing buffer. Pass a nil p when the type is not traversable;
// the resulting grayStack is the spec's "no gray stack" sentinel.
func newGrayStackAt(p unsafe.Pointer, capacity uintptr) grayStack {
	if p == nil || capacity == 0 {
		return grayStack{}
	}
	return grayStack{buf: unsafe.Slice((*unsafe.Pointer)(p), capacity)}
}

func (g *grayStack) present() bool { return g.buf != nil }

// push appends a base-slot pointer. The buffer is sized to the arena's
// capacity, so this never overflows (design §3).
func (g *grayStack) push(p unsafe.Pointer) {
	g.buf[g.top] = p
	g.top++
}

// pop truncates the stack and returns the removed pointer, or nil if
// empty.
func (g *grayStack) pop() unsafe.Pointer {
	if g.top == 0 {
		return nil
	}
	g.top--
	return g.buf[g.top]
}

// pending returns the current count of untraversed entries.
func (g *grayStack) pending() int { return g.top }

// hasPending reports whether any entries remain.
func (g *grayStack) hasPending() bool { return g.top > 0 }

// grayStackFootprint is the number of bytes a gray stack of capacity
// entries occupies.
func grayStackFootprint(capacity uintptr) uintptr {
	return capacity * unsafe.Sizeof(unsafe.Pointer(nil))
}
