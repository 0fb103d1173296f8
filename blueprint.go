// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package gc

import "code.synafis.dev/gc/internal"

// blueprint is the pre-computed layout for constructing pools of a given
// (identity, unit) pair (design §4.3). It is computed once per allocator
// and reused for every pool that allocator grows.
type blueprint struct {
	unit       uintptr
	capacity   uintptr
	traversable bool
	guardPages bool

	pageSize uintptr

	// Byte offsets within the region, in layout order.
	headGuardLen  uintptr
	initMapOff    uintptr
	initMapLen    uintptr
	reachMapOff   uintptr
	reachMapLen   uintptr
	grayOff       uintptr
	grayLen       uintptr
	headerPad     uintptr
	tailGuardLen  uintptr // guard after header, before slots
	slotsOff      uintptr
	slotsLen      uintptr
	endGuardLen   uintptr
	totalLen      uintptr
}

// computeBlueprint implements design §4.3's three steps: round the unit
// up to a pointer-and-alignment multiple, choose a capacity so slot
// memory is a whole number of pages between MinPool and MaxPool pages,
// then lay out guard/header/slot offsets.
func computeBlueprint(id *Identity, cfg Config, pageSize uintptr) blueprint {
	unit := id.unit
	if unit < nodeSize {
		unit = nodeSize
	}
	if id.align > 1 {
		unit = alignUp(unit, id.align)
	}

	// Round MinPool slots up to whole pages and fill those pages, then
	// cap at MaxPool pages' worth of slots (design §4.3 step 2). MinPool
	// wins over the cap; no LCM of unit and pageSize is computed.
	capacity := cfg.MinPool
	slotBytes := capacity * unit
	pagesForSlots := ceilDiv(slotBytes, pageSize)
	slotBytes = pagesForSlots * pageSize
	capacity = slotBytes / unit
	if capacity == 0 {
		capacity = 1
	}
	maxSlots := (cfg.MaxPool * pageSize) / unit
	if maxSlots > 0 && capacity > maxSlots {
		capacity = maxSlots
	}
	if capacity < cfg.MinPool {
		capacity = cfg.MinPool
	}

	bp := blueprint{
		unit:        unit,
		capacity:    capacity,
		traversable: id.ContainsPointers(),
		guardPages:  cfg.GuardPages,
		pageSize:    pageSize,
	}
	bp.layout()
	return bp
}

// layout fills in the offset fields per design §4.3 step 3:
//
//	[guard?] [bitmaps] [gray_stack?] [pad to page] [guard?] [slots] [guard?]
func (bp *blueprint) layout() {
	off := uintptr(0)
	if bp.guardPages {
		bp.headGuardLen = bp.pageSize
		off += bp.headGuardLen
	}

	bp.initMapOff = off
	bp.initMapLen = bitmapFootprint(bp.capacity)
	off += bp.initMapLen

	bp.reachMapOff = off
	bp.reachMapLen = bitmapFootprint(bp.capacity)
	off += bp.reachMapLen

	if bp.traversable {
		bp.grayOff = off
		bp.grayLen = grayStackFootprint(bp.capacity)
		off += bp.grayLen
	}

	// Without guard pages there is no page boundary between the
	// worker-written bitmaps/gray stack and the mutator-written slot
	// arena; align to a cache line instead so the two don't share one
	// (teacher's internal.CacheLineSize, also used by its
	// CacheLineAlignedMem helper). With guard pages the page-size pad
	// below already gives a much wider separation.
	padTo := uintptr(internal.CacheLineSize)
	if bp.guardPages {
		padTo = bp.pageSize
	}
	paddedOff := alignUp(off, padTo)
	bp.headerPad = paddedOff - off
	off = paddedOff

	if bp.guardPages {
		bp.tailGuardLen = bp.pageSize
		off += bp.tailGuardLen
	}

	bp.slotsOff = off
	bp.slotsLen = alignUp(bp.unit*bp.capacity, bp.pageSize)
	off += bp.slotsLen

	if bp.guardPages {
		bp.endGuardLen = bp.pageSize
		off += bp.endGuardLen
	}

	bp.totalLen = off
}
