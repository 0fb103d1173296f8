// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package gc

import "unsafe"

// freeListNode is threaded directly through free slot memory: the first
// word of a free slot holds the address of the next free slot (design
// §3, "intrusive singly-linked LIFO stack threaded through the free
// slots themselves"). This is why a slot's unit is never smaller than a
// pointer (identity.go and blueprint.go round up to nodeSize).
type freeListNode struct {
	next unsafe.Pointer
}

// freeList is the LIFO of unallocated slots for one pool. Push/pop are
// O(1); space mirrors the list length so Available() never has to walk
// the chain (design §3, testable property 4).
type freeList struct {
	head  unsafe.Pointer
	space uintptr
}

// newFreeList threads every slot of a into the free list, front to back,
// per design §4.3's pool construction step. The resulting list pops in
// back-to-front order, which is fine: nothing in the spec requires
// allocation order to match arena order.
func newFreeList(a arena) freeList {
	var fl freeList
	for i := uintptr(0); i < a.capacity; i++ {
		fl.push(a.slot(i))
	}
	return fl
}

// pop removes and returns the slot at the top of the stack. The caller
// must check Full() first; pop on an empty list returns nil.
func (fl *freeList) pop() unsafe.Pointer {
	if fl.head == nil {
		return nil
	}
	n := (*freeListNode)(fl.head)
	slot := fl.head
	fl.head = n.next
	fl.space--
	return slot
}

// push returns slot to the top of the stack.
func (fl *freeList) push(slot unsafe.Pointer) {
	n := (*freeListNode)(slot)
	n.next = fl.head
	fl.head = slot
	fl.space++
}

// available returns the number of free slots.
func (fl *freeList) available() uintptr { return fl.space }

// full reports whether there is no free memory left to allocate.
func (fl *freeList) full() bool { return fl.head == nil }

// nodeSize is the minimum unit size for pool allocations: one pointer.
const nodeSize = unsafe.Sizeof(uintptr(0))
