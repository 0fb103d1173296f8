// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package gc

import "unsafe"

// Protection describes the access allowed on a sub-range of a Region
// (design §4.1).
type Protection int

const (
	// ProtNone revokes all access; used for guard pages.
	ProtNone Protection = iota
	// ProtRead allows read-only access.
	ProtRead
	// ProtReadWrite allows reading and writing.
	ProtReadWrite
)

// Region is a page-aligned block of virtual memory reserved and
// committed as one unit. Its address is stable for its lifetime (design
// §4.1): once returned by vmReserveCommit, Addr never changes until
// vmRelease is called on the same Region.
type Region struct {
	Addr uintptr
	Len  uintptr
}

// Ptr returns the base address of the region as an unsafe.Pointer.
func (r Region) Ptr() unsafe.Pointer { return unsafe.Pointer(r.Addr) }

// End returns the address one byte past the end of the region.
func (r Region) End() unsafe.Pointer { return addBytes(r.Ptr(), r.Len) }

// vmBackend abstracts the OS-specific half of §4.1 so the pool/blueprint
// code never imports golang.org/x/sys/unix directly. vmemUnix (in
// vmem_unix.go) is the production implementation; tests may substitute a
// fake to exercise pool bookkeeping without touching the real address
// space.
type vmBackend interface {
	PageSize() uintptr
	ReserveCommit(size uintptr, writable bool) (Region, error)
	Release(r Region) error
	SetProtection(r Region, offset, length uintptr, prot Protection) error
}

// defaultVM is the backend used by blueprint/pool construction: vmemUnix
// on unix build targets, vmemGeneric (plain heap-backed) everywhere else.
var defaultVM vmBackend = newVMemUnix()

// PageSize returns the OS page size used to round region sizes. It is
// the Go-facing equivalent of design §4.1's vmem::page_size().
func PageSize() uintptr { return defaultVM.PageSize() }

// vmReserveCommit rounds size up to a multiple of the page size and asks
// the backend for a committed region. Allocation failure is a
// recoverable error (design §4.1), never a panic.
func vmReserveCommit(size uintptr, writable bool) (Region, error) {
	page := defaultVM.PageSize()
	size = alignUp(size, page)
	return defaultVM.ReserveCommit(size, writable)
}

// vmRelease returns a region's pages to the OS.
func vmRelease(r Region) error {
	return defaultVM.Release(r)
}

// vmSetProtection changes the protection of a page-aligned sub-range of
// r. offset and length must each be multiples of the page size.
func vmSetProtection(r Region, offset, length uintptr, prot Protection) error {
	return defaultVM.SetProtection(r, offset, length, prot)
}
