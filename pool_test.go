// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package gc

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"
)

func newTestPool(t *testing.T, id *Identity, cfg Config) *pool {
	t.Helper()
	bp := computeBlueprint(id, cfg, PageSize())
	p, err := newPool(id, bp)
	require.NoError(t, err)
	t.Cleanup(p.destroy)
	return p
}

func TestPoolAllocateDiscardedRoundTrip(t *testing.T) {
	id := NewIdentity(Traits{Size: 16, Align: 8})
	cfg := DefaultConfig()
	cfg.GuardPages = false
	p := newTestPool(t, id, cfg)

	require.True(t, p.empty())
	addr := p.allocate()
	require.NotNil(t, addr)
	require.False(t, p.empty())
	require.Equal(t, uintptr(1), p.used())

	p.discarded(addr)
	require.True(t, p.empty())
	require.Equal(t, uintptr(0), p.used())
}

func TestPoolFullWhenCapacityExhausted(t *testing.T) {
	id := NewIdentity(Traits{Size: 16, Align: 8})
	cfg := DefaultConfig()
	cfg.GuardPages = false
	cfg.MinPool = 4
	cfg.MaxPool = 4
	p := newTestPool(t, id, cfg)

	for !p.full() {
		require.NotNil(t, p.allocate())
	}
	require.Nil(t, p.allocate())
}

func TestPoolSweepReclaimsUnmarked(t *testing.T) {
	var finalized int
	id := NewIdentity(Traits{
		Size: 16, Align: 8,
		Finalize: func(unsafe.Pointer) { finalized++ },
	})
	cfg := DefaultConfig()
	cfg.GuardPages = false
	p := newTestPool(t, id, cfg)

	keep := p.allocate()
	drop := p.allocate()
	require.NotNil(t, keep)
	require.NotNil(t, drop)

	p.mark(keep)
	p.sweep()

	require.Equal(t, 1, finalized)
	require.Equal(t, uintptr(1), p.used())
}

func TestPoolMarkIgnoresUninitializedSlot(t *testing.T) {
	id := NewIdentity(Traits{Size: 16, Align: 8})
	cfg := DefaultConfig()
	cfg.GuardPages = false
	p := newTestPool(t, id, cfg)

	slot := p.store.slot(0)
	p.mark(slot) // never allocated; must be a no-op, not a crash
	require.False(t, p.reachable.test(0))
}

func TestPoolMarkIsIdempotent(t *testing.T) {
	id := NewIdentity(Traits{
		Size: 16, Align: 8,
		Traverse: func(unsafe.Pointer, unsafe.Pointer, EnumerateFunc) {},
		Relocate: func(dst, src unsafe.Pointer) {},
	})
	cfg := DefaultConfig()
	cfg.GuardPages = false
	p := newTestPool(t, id, cfg)

	addr := p.allocate()
	p.mark(addr)
	require.Equal(t, 1, p.pending())
	p.mark(addr) // already reachable; must not push twice
	require.Equal(t, 1, p.pending())
}

func TestPoolFromAndBaseOf(t *testing.T) {
	id := NewIdentity(Traits{Size: 16, Align: 8})
	cfg := DefaultConfig()
	cfg.GuardPages = false
	p := newTestPool(t, id, cfg)

	addr := p.allocate()
	mid := unsafe.Add(addr, 3)
	require.True(t, p.from(mid))
	require.Equal(t, addr, p.baseOf(mid))

	outside := unsafe.Pointer(uintptr(p.store.back) + 4096)
	require.False(t, p.from(outside))
}

func TestPoolWeakRecordLifecycle(t *testing.T) {
	id := NewIdentity(Traits{Size: 16, Align: 8})
	cfg := DefaultConfig()
	cfg.GuardPages = false
	p := newTestPool(t, id, cfg)

	addr := p.allocate()
	rec := p.fetch(addr)
	require.NotNil(t, rec)
	require.Same(t, rec, p.fetch(addr))
	require.Same(t, rec, p.lookupWeakRecord(addr))

	p.sweep() // addr never marked: reclaimed, record must clear
	require.Nil(t, p.lookupWeakRecord(addr))
	require.Nil(t, rec.addr())
}

func TestPoolDestroyRunsFinalizersForLiveSlots(t *testing.T) {
	var ran bool
	id := NewIdentity(Traits{
		Size: 16, Align: 8,
		Finalize: func(unsafe.Pointer) { ran = true },
	})
	cfg := DefaultConfig()
	cfg.GuardPages = false
	bp := computeBlueprint(id, cfg, PageSize())
	p, err := newPool(id, bp)
	require.NoError(t, err)

	require.NotNil(t, p.allocate())
	p.destroy()
	require.True(t, ran)
}
