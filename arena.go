// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package gc

import "unsafe"

// arena is the immutable (front, back, unit, capacity) tuple of design
// §3: the addressable slot grid inside one pool's region.
type arena struct {
	front, back unsafe.Pointer
	unit        uintptr
	capacity    uintptr
}

func newArena(front unsafe.Pointer, unit, capacity uintptr) arena {
	return arena{
		front:    front,
		back:     addBytes(front, unit*capacity),
		unit:     unit,
		capacity: capacity,
	}
}

// slot returns the address of slot i.
func (a arena) slot(i uintptr) unsafe.Pointer {
	return addBytes(a.front, i*a.unit)
}

// index returns the slot index containing p and whether p lies within
// the arena at all (contains(p) in design §3).
func (a arena) index(p unsafe.Pointer) (uintptr, bool) {
	if !a.contains(p) {
		return 0, false
	}
	return subBytes(p, a.front) / a.unit, true
}

// contains reports front <= p < back.
func (a arena) contains(p unsafe.Pointer) bool {
	return withinRange(p, a.front, a.back)
}

// location is the address used to compare pools for sorting (design
// §4.3's "pool ordering uses the region's base address").
func (a arena) location() unsafe.Pointer { return a.front }
