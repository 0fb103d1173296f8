// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command gcdemo drives the collector core through the end-to-end
// scenarios named in spec.md §8 (S1-S6), as a harness-free substitute for
// original_source's test/gc/ unit tests.
package main

import (
	"fmt"
	"os"
	"runtime/debug"
	"sync"
	"time"
	"unsafe"

	"github.com/spf13/cobra"

	gc "code.synafis.dev/gc"
)

// Node is the toy "single pointer field" type every scenario in §8 uses.
type Node struct {
	Next      gc.Strong[Node]
	Finalized *bool
}

var nodeIdentity = gc.RegisterIdentityFor[Node](gc.NewIdentity(gc.Traits{
	Size:  unsafe.Sizeof(Node{}),
	Align: unsafe.Alignof(Node{}),
	Finalize: func(obj unsafe.Pointer) {
		n := (*Node)(obj)
		if n.Finalized != nil {
			*n.Finalized = true
		}
	},
	Traverse: func(obj, data unsafe.Pointer, cb gc.EnumerateFunc) {
		n := (*Node)(obj)
		if p := n.Next.Ptr(); p != nil {
			cb(data, p)
		}
	},
	Relocate: func(dst, src unsafe.Pointer) {
		*(*Node)(dst) = *(*Node)(src)
	},
}))

func main() {
	root := &cobra.Command{
		Use:   "gcdemo",
		Short: "Drive the gc collector core through scenarios S1-S6",
	}
	run := &cobra.Command{
		Use:       "run [s1|s2|s3|s4|s5|s6]",
		Short:     "Run one scenario",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"s1", "s2", "s3", "s4", "s5", "s6"},
		RunE: func(cmd *cobra.Command, args []string) error {
			switch args[0] {
			case "s1":
				return scenarioS1()
			case "s2":
				return scenarioS2()
			case "s3":
				return scenarioS3()
			case "s4":
				return scenarioS4()
			case "s5":
				return scenarioS5()
			case "s6":
				return scenarioS6()
			default:
				return fmt.Errorf("unknown scenario %q", args[0])
			}
		},
	}
	root.AddCommand(run)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newDemoCollector(cfg gc.Config) *gc.Collector {
	c := gc.NewCollector(cfg, gc.NewDevelopmentLogger())
	c.Initialize()
	return c
}

// scenarioS1 — basic reclamation: allocate 16 Nodes, drop all but 4,
// root those 4, collect, and report how many finalizers ran.
func scenarioS1() error {
	c := newDemoCollector(gc.DefaultConfig())
	defer c.Close()

	m := gc.NewMutatorLock(c)
	defer m.Unlock()

	finalized := make([]bool, 16)
	var roots []*gc.Root
	for i := 0; i < 16; i++ {
		i := i
		n, err := gc.AllocateStrong[Node](m, c, func(obj *Node) {
			obj.Finalized = &finalized[i]
		})
		if err != nil {
			return err
		}
		if i >= 12 {
			roots = append(roots, gc.NewRoot(m, c, n.Ptr(), nil, nil))
		}
	}
	defer func() {
		for _, r := range roots {
			_ = r.Close()
		}
	}()

	if err := c.Collect(m, true); err != nil {
		return err
	}

	ran := 0
	for _, f := range finalized {
		if f {
			ran++
		}
	}
	fmt.Printf("S1: %d/16 finalizers ran (expect 12)\n", ran)
	return nil
}

// scenarioS2 — transitive marking: a -> b -> c -> nil, root only a, drop
// direct references to b and c, collect, expect zero finalizers.
func scenarioS2() error {
	c := newDemoCollector(gc.DefaultConfig())
	defer c.Close()

	m := gc.NewMutatorLock(c)
	defer m.Unlock()

	var aFin, bFin, cFin bool
	cNode, err := gc.AllocateStrong[Node](m, c, func(obj *Node) { obj.Finalized = &cFin })
	if err != nil {
		return err
	}
	bNode, err := gc.AllocateStrong[Node](m, c, func(obj *Node) { obj.Finalized = &bFin; obj.Next = cNode })
	if err != nil {
		return err
	}
	aNode, err := gc.AllocateStrong[Node](m, c, func(obj *Node) { obj.Finalized = &aFin; obj.Next = bNode })
	if err != nil {
		return err
	}

	root := gc.NewRoot(m, c, aNode.Ptr(), func(addr unsafe.Pointer, cb gc.EnumerateFunc) {
		n := (*Node)(addr)
		if p := n.Next.Ptr(); p != nil {
			cb(addr, p)
		}
	}, nil)
	defer root.Close()

	if err := c.Collect(m, true); err != nil {
		return err
	}
	fmt.Printf("S2: finalized a=%v b=%v c=%v (expect all false)\n", aFin, bFin, cFin)
	return nil
}

// scenarioS3 — weak after sweep: allocate, weak-ref it, drop the strong,
// collect, expect the weak pointer upgrades to null.
func scenarioS3() error {
	c := newDemoCollector(gc.DefaultConfig())
	defer c.Close()

	m := gc.NewMutatorLock(c)
	defer m.Unlock()

	n, err := gc.AllocateStrong[Node](m, c, nil)
	if err != nil {
		return err
	}
	w := gc.WeakFromStrong(c, n)
	n = gc.Strong[Node]{} // drop the only strong reference

	if err := c.Collect(m, true); err != nil {
		return err
	}

	up := w.Strong()
	w2 := w.Clone()
	up2 := w2.Strong()
	fmt.Printf("S3: upgrade nil=%v, second weak upgrade nil=%v (expect both true)\n", up.IsNil(), up2.IsNil())
	_ = n
	return nil
}

// scenarioS4 — back-pressure: with a one-page max_pool, T1 allocates 64
// Nodes while T2 briefly holds the mutator lock; T1 must succeed or
// observe ErrOutOfMemory, never livelock. The allocator grows further
// pools as needed, so a small max_pool alone does not exhaust memory.
func scenarioS4() error {
	cfg := gc.DefaultConfig()
	cfg.MinPool = 1
	cfg.MaxPool = 1
	c := newDemoCollector(cfg)
	defer c.Close()

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		m := gc.NewMutatorLock(c)
		defer m.Unlock()
		for i := 0; i < 64; i++ {
			if _, err := gc.AllocateStrong[Node](m, c, nil); err != nil {
				fmt.Printf("S4: T1 stopped after %d allocations: %v\n", i, err)
				return
			}
		}
		fmt.Println("S4: T1 completed 64 allocations without livelock")
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 8; i++ {
			m := gc.NewMutatorLock(c)
			time.Sleep(time.Millisecond)
			m.Unlock()
		}
	}()
	wg.Wait()
	return nil
}

// scenarioS5 — reentrancy: hold the lock, nest a root registration and
// an allocation, report the lock's nesting depth, then unwind. The
// gate's reader count itself is not inspected.
func scenarioS5() error {
	c := newDemoCollector(gc.DefaultConfig())
	defer c.Close()

	m := gc.NewMutatorLock(c)
	n, err := gc.AllocateStrong[Node](m, c, nil)
	if err != nil {
		m.Unlock()
		return err
	}
	root := gc.NewRoot(m, c, n.Ptr(), nil, nil)
	fmt.Printf("S5: nested depth after root+allocate = %d (expect 1)\n", m.Depth())
	root.Close()
	m.Unlock()
	fmt.Println("S5: reentrant unwind completed cleanly")
	return nil
}

// scenarioS6 — guard-page violation: with guard pages enabled, touching
// the first byte of a pool's region must fault. debug.SetPanicOnFault
// turns that SIGSEGV into a recoverable Go panic instead of crashing the
// process, the idiomatic Go substitute for the original's signal-handler
// test harness.
func scenarioS6() (err error) {
	cfg := gc.DefaultConfig()
	cfg.GuardPages = true
	c := newDemoCollector(cfg)
	defer c.Close()

	m := gc.NewMutatorLock(c)
	defer m.Unlock()

	n, aerr := gc.AllocateStrong[Node](m, c, nil)
	if aerr != nil {
		return aerr
	}

	old := debug.SetPanicOnFault(true)
	defer debug.SetPanicOnFault(old)

	defer func() {
		if r := recover(); r != nil {
			fmt.Printf("S6: guard page faulted as expected: %v\n", r)
			err = nil
		}
	}()

	// Walk backward from the slot to the region's head guard page.
	// nodeIdentity's pool is laid out as one guard page, a one-page
	// header, a second guard page, then the slot arena; the first slot
	// handed out lies in the arena's first page, so three pages back
	// lands in the head guard.
	guard := (*byte)(unsafe.Add(n.Ptr(), -int(gc.PageSize())*3))
	_ = *guard
	fmt.Println("S6: no fault observed (unexpected on a guard-page build)")
	return nil
}
