// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package gc

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

type identityTestLeaf struct {
	V int64
}

type identityTestParent struct {
	Next unsafe.Pointer
}

func TestNewIdentityRoundsUnitToPointerSize(t *testing.T) {
	id := NewIdentity(Traits{Size: 1, Align: 1})
	require.Equal(t, nodeSize, id.Unit())
	require.False(t, id.ContainsPointers())
	require.False(t, id.HasFinalizer())
}

func TestNewIdentityAlignsUnit(t *testing.T) {
	id := NewIdentity(Traits{Size: 24, Align: 16})
	require.Equal(t, uintptr(32), id.Unit())
}

func TestNewIdentityFlags(t *testing.T) {
	id := NewIdentity(Traits{
		Size:     8,
		Align:    8,
		Finalize: func(unsafe.Pointer) {},
		Traverse: func(unsafe.Pointer, unsafe.Pointer, EnumerateFunc) {},
		Relocate: func(dst, src unsafe.Pointer) {},
		ReadOnly: true,
	})
	require.True(t, id.ContainsPointers())
	require.True(t, id.HasFinalizer())
	require.NotZero(t, id.Flags()&FlagReadonly)
}

func TestNewIdentityPanicsOnDanglingTraverse(t *testing.T) {
	require.Panics(t, func() {
		NewIdentity(Traits{Size: 8, Traverse: func(unsafe.Pointer, unsafe.Pointer, EnumerateFunc) {}})
	})
}

func TestNewIdentityPanicsOnDanglingRelocate(t *testing.T) {
	require.Panics(t, func() {
		NewIdentity(Traits{Size: 8, Relocate: func(dst, src unsafe.Pointer) {}})
	})
}

func TestRegisterAndLookupIdentity(t *testing.T) {
	id := NewIdentity(Traits{Size: unsafe.Sizeof(identityTestLeaf{}), Align: unsafe.Alignof(identityTestLeaf{})})
	RegisterIdentityFor[identityTestLeaf](id)
	require.Same(t, id, IdentityOf[identityTestLeaf]())
}

func TestIdentityOfPanicsWhenUnregistered(t *testing.T) {
	type identityTestNeverRegistered struct{ X int }
	require.Panics(t, func() {
		IdentityOf[identityTestNeverRegistered]()
	})
}

func TestIdentityEqualWithoutCallback(t *testing.T) {
	id := NewIdentity(Traits{Size: 8})
	var a, b int64
	require.False(t, id.Equal(unsafe.Pointer(&a), unsafe.Pointer(&b)))
}

func TestIdentityEqualDelegates(t *testing.T) {
	id := NewIdentity(Traits{Size: 8, Equal: func(a, b unsafe.Pointer) bool {
		return *(*int64)(a) == *(*int64)(b)
	}})
	x, y := int64(7), int64(7)
	require.True(t, id.Equal(unsafe.Pointer(&x), unsafe.Pointer(&y)))
}

func TestIdentityDiscardedNoopBeforeBind(t *testing.T) {
	id := NewIdentity(Traits{Size: 8})
	require.NotPanics(t, func() {
		id.Discarded(unsafe.Pointer(&struct{ x int }{}))
	})
}
