// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package gc

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegionCacheRoundsCapacityToPowerOfTwo(t *testing.T) {
	rc := newRegionCache(3)
	require.Equal(t, uint32(4), rc.capacity)
}

func TestRegionCacheAcquireOnEmptyMisses(t *testing.T) {
	rc := newRegionCache(2)
	_, ok := rc.acquire()
	require.False(t, ok)
}

func TestRegionCacheReleaseThenAcquire(t *testing.T) {
	rc := newRegionCache(2)
	r := Region{Addr: 0x1000, Len: 4096}
	require.True(t, rc.release(r))

	got, ok := rc.acquire()
	require.True(t, ok)
	require.Equal(t, r, got)

	_, ok = rc.acquire()
	require.False(t, ok)
}

func TestRegionCacheFillsThenRejects(t *testing.T) {
	rc := newRegionCache(2) // rounds to 2
	require.True(t, rc.release(Region{Addr: 1, Len: 4096}))
	require.True(t, rc.release(Region{Addr: 2, Len: 4096}))
	require.False(t, rc.release(Region{Addr: 3, Len: 4096}))
}

func TestRegionCacheConcurrentAcquireRelease(t *testing.T) {
	rc := newRegionCache(8)
	for i := 0; i < 8; i++ {
		require.True(t, rc.release(Region{Addr: uintptr(i + 1), Len: 4096}))
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	seen := make(map[uintptr]int)
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				r, ok := rc.acquire()
				if !ok {
					return
				}
				mu.Lock()
				seen[r.Addr]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, seen, 8)
	for _, n := range seen {
		require.Equal(t, 1, n)
	}
}

func TestRegionCacheDrainReleasesEverything(t *testing.T) {
	rc := newRegionCache(4)
	for i := 0; i < 4; i++ {
		require.True(t, rc.release(Region{}))
	}
	rc.drain() // each entry is a zero-value Region; vmRelease must tolerate Len==0
	_, ok := rc.acquire()
	require.False(t, ok)
}
