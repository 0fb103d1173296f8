// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build !unix

package gc

import (
	"sync"
	"unsafe"
)

// vmemGeneric backs vmBackend on platforms without mmap(2). It satisfies
// the same contract (stable address for the region's lifetime, page
// rounding) using plain heap allocations; protection changes are
// accepted but not enforced, so guard pages do not fault on these
// platforms (design §4.1 notes guard pages require per-page protection,
// which this fallback cannot provide).
//
// retained pins the backing slices so Go's own collector never reclaims
// memory this package is tracking solely by uintptr.
type vmemGeneric struct {
	pageSize uintptr
	mu       sync.Mutex
	retained map[uintptr][]byte
}

func newVMemUnix() *vmemGeneric {
	return &vmemGeneric{pageSize: 4096, retained: make(map[uintptr][]byte)}
}

func (v *vmemGeneric) PageSize() uintptr { return v.pageSize }

func (v *vmemGeneric) ReserveCommit(size uintptr, writable bool) (Region, error) {
	b := make([]byte, size)
	addr := uintptr(unsafe.Pointer(unsafe.SliceData(b)))
	v.mu.Lock()
	v.retained[addr] = b
	v.mu.Unlock()
	return Region{Addr: addr, Len: size}, nil
}

func (v *vmemGeneric) Release(r Region) error {
	v.mu.Lock()
	delete(v.retained, r.Addr)
	v.mu.Unlock()
	return nil
}

func (v *vmemGeneric) SetProtection(Region, uintptr, uintptr, Protection) error { return nil }
