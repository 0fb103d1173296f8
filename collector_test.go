// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package gc

import (
	"sync"
	"testing"
	"time"
	"unsafe"

	"github.com/stretchr/testify/require"
)

type collectorTestNode struct {
	Next      Strong[collectorTestNode]
	Finalized *bool
}

func init() {
	RegisterIdentityFor[collectorTestNode](NewIdentity(Traits{
		Size:  unsafe.Sizeof(collectorTestNode{}),
		Align: unsafe.Alignof(collectorTestNode{}),
		Finalize: func(obj unsafe.Pointer) {
			n := (*collectorTestNode)(obj)
			if n.Finalized != nil {
				*n.Finalized = true
			}
		},
		Traverse: func(obj, data unsafe.Pointer, cb EnumerateFunc) {
			n := (*collectorTestNode)(obj)
			if p := n.Next.Ptr(); p != nil {
				cb(data, p)
			}
		},
		Relocate: func(dst, src unsafe.Pointer) {
			*(*collectorTestNode)(dst) = *(*collectorTestNode)(src)
		},
	}))
}

// TestCollectorReclaimsUnrootedObjects mirrors the basic reclamation
// scenario: allocate several objects, root only some of them, collect,
// and check exactly the unrooted ones were finalized.
func TestCollectorReclaimsUnrootedObjects(t *testing.T) {
	c := NewCollector(DefaultConfig(), nil)
	c.Initialize()
	defer c.Close()

	m := NewMutatorLock(c)
	defer m.Unlock()

	const total, rooted = 16, 4
	finalized := make([]bool, total)
	var roots []*Root
	for i := 0; i < total; i++ {
		i := i
		n, err := AllocateStrong[collectorTestNode](m, c, func(obj *collectorTestNode) {
			obj.Finalized = &finalized[i]
		})
		require.NoError(t, err)
		if i >= total-rooted {
			roots = append(roots, NewRoot(m, c, n.Ptr(), nil, nil))
		}
	}
	defer func() {
		for _, r := range roots {
			_ = r.Close()
		}
	}()

	require.NoError(t, c.Collect(m, true))

	ran := 0
	for _, f := range finalized {
		if f {
			ran++
		}
	}
	require.Equal(t, total-rooted, ran)
}

// TestCollectorMarksTransitively mirrors the transitive-reachability
// scenario: a -> b -> c, root only a, collect, expect nothing finalized.
func TestCollectorMarksTransitively(t *testing.T) {
	c := NewCollector(DefaultConfig(), nil)
	c.Initialize()
	defer c.Close()

	m := NewMutatorLock(c)
	defer m.Unlock()

	var aFin, bFin, cFin bool
	cNode, err := AllocateStrong[collectorTestNode](m, c, func(obj *collectorTestNode) { obj.Finalized = &cFin })
	require.NoError(t, err)
	bNode, err := AllocateStrong[collectorTestNode](m, c, func(obj *collectorTestNode) {
		obj.Finalized = &bFin
		obj.Next = cNode
	})
	require.NoError(t, err)
	aNode, err := AllocateStrong[collectorTestNode](m, c, func(obj *collectorTestNode) {
		obj.Finalized = &aFin
		obj.Next = bNode
	})
	require.NoError(t, err)

	root := NewRoot(m, c, aNode.Ptr(), func(addr unsafe.Pointer, cb EnumerateFunc) {
		n := (*collectorTestNode)(addr)
		if p := n.Next.Ptr(); p != nil {
			cb(addr, p)
		}
	}, nil)
	defer root.Close()

	require.NoError(t, c.Collect(m, true))
	require.False(t, aFin)
	require.False(t, bFin)
	require.False(t, cFin)
}

// TestCollectorBackpressureNeverLivelocks drives T1 against one-page
// pools while T2 briefly holds the mutator lock, matching the
// back-pressure scenario's "must succeed or observe ErrOutOfMemory, never
// livelock" contract.
func TestCollectorBackpressureNeverLivelocks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MinPool = 1
	cfg.MaxPool = 1
	cfg.GuardPages = false
	c := NewCollector(cfg, nil)
	c.Initialize()
	defer c.Close()

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		m := NewMutatorLock(c)
		defer m.Unlock()
		for i := 0; i < 32; i++ {
			if _, err := AllocateStrong[collectorTestNode](m, c, nil); err != nil {
				require.ErrorIs(t, err, ErrOutOfMemory)
				return
			}
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 8; i++ {
			m := NewMutatorLock(c)
			time.Sleep(time.Millisecond)
			m.Unlock()
		}
	}()
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("collector livelocked under back-pressure")
	}
}

func TestCollectorCloseUnblocksWaiters(t *testing.T) {
	c := NewCollector(DefaultConfig(), nil)
	c.Initialize()

	m := NewMutatorLock(c)
	done := make(chan error, 1)
	go func() {
		done <- m.wait()
	}()

	require.NoError(t, c.Close())

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrShutdown)
	case <-time.After(5 * time.Second):
		t.Fatal("wait() never returned after Close")
	}
}

// TestCollectorCollectWhileLockHeldDoesNotDeadlock guards against
// Collect(m, true) hanging when the calling goroutine still holds its
// own MutatorLock: without releasing that reader slot for the wait, the
// worker would block forever on count != 0 while this goroutine blocks
// forever on cycleSeq never advancing.
func TestCollectorCollectWhileLockHeldDoesNotDeadlock(t *testing.T) {
	c := NewCollector(DefaultConfig(), nil)
	c.Initialize()
	defer c.Close()

	m := NewMutatorLock(c)
	defer m.Unlock()

	_, err := AllocateStrong[collectorTestNode](m, c, nil)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- c.Collect(m, true) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Collect never returned while the caller's MutatorLock was held")
	}
}

func TestCollectorSetPeriodDisablesIdleCycles(t *testing.T) {
	c := NewCollector(DefaultConfig(), nil)
	c.SetPeriod(0)
	c.Initialize()
	defer c.Close()

	m := NewMutatorLock(c)
	_, err := AllocateStrong[collectorTestNode](m, c, nil)
	require.NoError(t, err)
	m.Unlock()

	// No idle wake configured; an explicit Collect must still complete.
	require.NoError(t, c.Collect(m, true))
}
