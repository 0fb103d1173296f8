// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build unix

package gc

import (
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// vmemUnix implements vmBackend on top of mmap(2)/mprotect(2)/munmap(2)
// via golang.org/x/sys/unix, the non-cgo route the wider example pack
// reaches for whenever it touches raw pages (see the gopher-os and
// goos-e kernel memory managers referenced in SPEC_FULL.md's domain
// stack section).
type vmemUnix struct {
	pageSize uintptr
}

func newVMemUnix() *vmemUnix {
	return &vmemUnix{pageSize: uintptr(unix.Getpagesize())}
}

func (v *vmemUnix) PageSize() uintptr { return v.pageSize }

func (v *vmemUnix) ReserveCommit(size uintptr, writable bool) (Region, error) {
	prot := unix.PROT_READ
	if writable {
		prot |= unix.PROT_WRITE
	}
	b, err := unix.Mmap(-1, 0, int(size), prot, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return Region{}, fmt.Errorf("%w: mmap %d bytes: %v", ErrOutOfMemory, size, err)
	}
	return Region{Addr: uintptr(unsafe.Pointer(unsafe.SliceData(b))), Len: size}, nil
}

func (v *vmemUnix) Release(r Region) error {
	if r.Len == 0 {
		return nil
	}
	b := unsafe.Slice((*byte)(r.Ptr()), r.Len)
	return unix.Munmap(b)
}

func (v *vmemUnix) SetProtection(r Region, offset, length uintptr, prot Protection) error {
	if length == 0 {
		return nil
	}
	var p int
	switch prot {
	case ProtNone:
		p = unix.PROT_NONE
	case ProtRead:
		p = unix.PROT_READ
	case ProtReadWrite:
		p = unix.PROT_READ | unix.PROT_WRITE
	}
	b := unsafe.Slice((*byte)(addBytes(r.Ptr(), offset)), length)
	return unix.Mprotect(b, p)
}
