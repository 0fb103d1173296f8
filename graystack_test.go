// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package gc

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func newTestGrayStack(capacity uintptr) grayStack {
	buf := make([]unsafe.Pointer, capacity)
	if capacity == 0 {
		return grayStack{}
	}
	return newGrayStackAt(unsafe.Pointer(&buf[0]), capacity)
}

func TestGrayStackNilSentinel(t *testing.T) {
	var g grayStack
	require.False(t, g.present())
	require.False(t, g.hasPending())
	require.Nil(t, g.pop())
}

func TestGrayStackPushPopLIFO(t *testing.T) {
	g := newTestGrayStack(4)
	require.True(t, g.present())

	var ptrs [3]byte
	g.push(unsafe.Pointer(&ptrs[0]))
	g.push(unsafe.Pointer(&ptrs[1]))
	g.push(unsafe.Pointer(&ptrs[2]))
	require.Equal(t, 3, g.pending())
	require.True(t, g.hasPending())

	require.Equal(t, unsafe.Pointer(&ptrs[2]), g.pop())
	require.Equal(t, unsafe.Pointer(&ptrs[1]), g.pop())
	require.Equal(t, unsafe.Pointer(&ptrs[0]), g.pop())
	require.False(t, g.hasPending())
	require.Nil(t, g.pop())
}

func TestGrayStackFootprint(t *testing.T) {
	require.Equal(t, 8*unsafe.Sizeof(unsafe.Pointer(nil)), grayStackFootprint(8))
}
