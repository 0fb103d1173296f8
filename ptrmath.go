// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package gc

import "unsafe"

// Pointer arithmetic helpers (design §4.2). The collector treats
// allocated memory as opaque byte ranges outside the Go heap, so offsets
// are tracked as uintptr and converted to unsafe.Pointer only at the
// point of use, the same pattern the teacher package uses in
// AlignedMem/CacheLineAlignedMem to carve aligned sub-slices out of a
// raw allocation.

// addBytes returns p advanced by n bytes.
func addBytes(p unsafe.Pointer, n uintptr) unsafe.Pointer {
	return unsafe.Pointer(uintptr(p) + n)
}

// subBytes returns the byte distance from b to a (a - b).
func subBytes(a, b unsafe.Pointer) uintptr {
	return uintptr(a) - uintptr(b)
}

// withinRange reports whether front <= p < back.
func withinRange(p, front, back unsafe.Pointer) bool {
	up, ufront, uback := uintptr(p), uintptr(front), uintptr(back)
	return up >= ufront && up < uback
}

// alignUp rounds n up to the nearest multiple of align. align must be a
// power of two.
func alignUp(n, align uintptr) uintptr {
	return (n + align - 1) &^ (align - 1)
}

// ceilDiv computes ceil(n / d) for unsigned operands.
func ceilDiv(n, d uintptr) uintptr {
	return (n + d - 1) / d
}
