// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package gc

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func TestAddSubBytesRoundTrip(t *testing.T) {
	var buf [64]byte
	base := unsafe.Pointer(&buf[0])
	advanced := addBytes(base, 40)
	require.Equal(t, uintptr(40), subBytes(advanced, base))
}

func TestWithinRange(t *testing.T) {
	var buf [16]byte
	front := unsafe.Pointer(&buf[0])
	back := addBytes(front, 16)
	require.True(t, withinRange(front, front, back))
	require.True(t, withinRange(addBytes(front, 15), front, back))
	require.False(t, withinRange(back, front, back))
}

func TestAlignUp(t *testing.T) {
	require.Equal(t, uintptr(0), alignUp(0, 8))
	require.Equal(t, uintptr(8), alignUp(1, 8))
	require.Equal(t, uintptr(8), alignUp(8, 8))
	require.Equal(t, uintptr(16), alignUp(9, 8))
}

func TestCeilDiv(t *testing.T) {
	require.Equal(t, uintptr(1), ceilDiv(1, 8))
	require.Equal(t, uintptr(1), ceilDiv(8, 8))
	require.Equal(t, uintptr(2), ceilDiv(9, 8))
	require.Equal(t, uintptr(0), ceilDiv(0, 8))
}
