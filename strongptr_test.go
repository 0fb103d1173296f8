// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package gc

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

type strongTestNode struct {
	V int64
}

func init() {
	RegisterIdentityFor[strongTestNode](NewIdentity(Traits{
		Size:  unsafe.Sizeof(strongTestNode{}),
		Align: unsafe.Alignof(strongTestNode{}),
	}))
}

func TestStrongNilHandle(t *testing.T) {
	var s Strong[strongTestNode]
	require.True(t, s.IsNil())
	require.Nil(t, s.Ptr())
	obj, err := s.Get()
	require.NoError(t, err)
	require.Nil(t, obj)
}

func TestAllocateStrongAndGet(t *testing.T) {
	c := NewCollector(DefaultConfig(), nil)
	c.Initialize()
	defer c.Close()

	m := NewMutatorLock(c)
	defer m.Unlock()

	s, err := AllocateStrong[strongTestNode](m, c, func(obj *strongTestNode) { obj.V = 42 })
	require.NoError(t, err)
	require.False(t, s.IsNil())

	obj, err := s.Get()
	require.NoError(t, err)
	require.EqualValues(t, 42, obj.V)
}

func TestStrongFromPtrRoundTrip(t *testing.T) {
	c := NewCollector(DefaultConfig(), nil)
	c.Initialize()
	defer c.Close()

	m := NewMutatorLock(c)
	defer m.Unlock()

	s, err := AllocateStrong[strongTestNode](m, c, func(obj *strongTestNode) { obj.V = 7 })
	require.NoError(t, err)

	s2, err := StrongFromPtr[strongTestNode](c, s.Ptr())
	require.NoError(t, err)
	require.True(t, s.Equal(s2))
}

func TestStrongFromPtrNotCollectorOwned(t *testing.T) {
	c := NewCollector(DefaultConfig(), nil)
	c.Initialize()
	defer c.Close()

	var stack strongTestNode
	_, err := StrongFromPtr[strongTestNode](c, unsafe.Pointer(&stack))
	require.ErrorIs(t, err, ErrNotCollectorOwned)

	require.True(t, StrongFromPtrNoThrow[strongTestNode](c, unsafe.Pointer(&stack)).IsNil())
}

func TestAllocateStrongDiscardsOnInitPanic(t *testing.T) {
	c := NewCollector(DefaultConfig(), nil)
	c.Initialize()
	defer c.Close()

	m := NewMutatorLock(c)
	defer m.Unlock()

	require.Panics(t, func() {
		_, _ = AllocateStrong[strongTestNode](m, c, func(obj *strongTestNode) {
			panic("construction failed")
		})
	})

	s, err := AllocateStrong[strongTestNode](m, c, func(obj *strongTestNode) { obj.V = 1 })
	require.NoError(t, err)
	require.False(t, s.IsNil())
}
