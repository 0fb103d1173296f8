// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package gc

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

type weakTestNode struct {
	V int64
}

func init() {
	RegisterIdentityFor[weakTestNode](NewIdentity(Traits{
		Size:  unsafe.Sizeof(weakTestNode{}),
		Align: unsafe.Alignof(weakTestNode{}),
	}))
}

func TestWeakFromNilStrongIsNil(t *testing.T) {
	c := NewCollector(DefaultConfig(), nil)
	c.Initialize()
	defer c.Close()

	var s Strong[weakTestNode]
	w := WeakFromStrong(c, s)
	require.True(t, w.IsNil())
	require.True(t, w.Strong().IsNil())
}

func TestWeakUpgradesWhileStrongAlive(t *testing.T) {
	c := NewCollector(DefaultConfig(), nil)
	c.Initialize()
	defer c.Close()

	m := NewMutatorLock(c)
	defer m.Unlock()

	s, err := AllocateStrong[weakTestNode](m, c, func(obj *weakTestNode) { obj.V = 9 })
	require.NoError(t, err)

	w := WeakFromStrong(c, s)
	require.False(t, w.IsNil())

	up := w.Strong()
	require.False(t, up.IsNil())
	require.True(t, up.Equal(s))
}

func TestWeakNullsAfterCollection(t *testing.T) {
	c := NewCollector(DefaultConfig(), nil)
	c.Initialize()
	defer c.Close()

	m := NewMutatorLock(c)

	s, err := AllocateStrong[weakTestNode](m, c, nil)
	require.NoError(t, err)
	w := WeakFromStrong(c, s)
	s = Strong[weakTestNode]{} // drop the only strong reference
	_ = s

	m.Unlock()
	require.NoError(t, c.Collect(m, true))

	require.True(t, w.Strong().IsNil())
	require.True(t, w.Clone().Strong().IsNil())
}

func TestWeakCloneBumpsAndDestroyReleases(t *testing.T) {
	c := NewCollector(DefaultConfig(), nil)
	c.Initialize()
	defer c.Close()

	m := NewMutatorLock(c)
	defer m.Unlock()

	s, err := AllocateStrong[weakTestNode](m, c, nil)
	require.NoError(t, err)
	w := WeakFromStrong(c, s)
	w2 := w.Clone()

	require.False(t, w.IsNil())
	require.False(t, w2.IsNil())
	w.Destroy()
	w2.Destroy()
}
