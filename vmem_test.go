// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package gc

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVmReserveCommitRoundsToPageSize(t *testing.T) {
	r, err := vmReserveCommit(1, true)
	require.NoError(t, err)
	defer vmRelease(r)
	require.Equal(t, PageSize(), r.Len)
	require.NotZero(t, r.Addr)
}

func TestVmReserveCommitReadWrite(t *testing.T) {
	r, err := vmReserveCommit(PageSize(), true)
	require.NoError(t, err)
	defer vmRelease(r)

	b := (*byte)(r.Ptr())
	*b = 0xAB
	require.Equal(t, byte(0xAB), *b)
}

func TestRegionEndIsAddrPlusLen(t *testing.T) {
	r, err := vmReserveCommit(PageSize(), true)
	require.NoError(t, err)
	defer vmRelease(r)
	require.Equal(t, addBytes(r.Ptr(), r.Len), r.End())
}
