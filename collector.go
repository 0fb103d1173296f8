// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package gc

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
	"unsafe"

	"go.uber.org/zap"
)

// source pairs a pool with the identity it serves, the value the
// collector's address index hands back so a raw pointer can be routed to
// the right pool and the right finalize/traverse callbacks (design §3's
// "sources: address-keyed mapping of pool -> pool").
type source struct {
	identity *Identity
	pool     *pool
}

// RemapFunc relocates a single out-pointer during a (reserved, currently
// unused) compaction pass.
type RemapFunc func(unsafe.Pointer) unsafe.Pointer

// RootTraverseFunc reports every out-pointer held by an unmanaged root to
// cb, the same contract as TraverseFunc but for objects that live outside
// any pool (design §4.7 step 4, §4.10).
type RootTraverseFunc func(addr unsafe.Pointer, cb EnumerateFunc)

// RootCB is the thin static-type shim design §4.10 describes: "(obj,
// data, remap_cb) -> obj.remap(data, remap_cb)". Reserved for the
// relocation pass; the mark+sweep worker never invokes it.
type RootCB func(obj, data unsafe.Pointer, remap RemapFunc)

type rootEntry struct {
	addr     unsafe.Pointer
	traverse RootTraverseFunc
	cb       RootCB
}

// Collector is the singleton of design §4.6/§4.7: a coarse reader/writer
// gate (one mutex, two condition variables) guarding mutator access
// against a worker goroutine that runs mark, sweep, and shrink in
// exclusive sections. The gate and the state it protects share one
// mutex, exactly as §4.6 specifies; the source/root indexes use their
// own finer mutexes since they are touched by concurrent allocators
// outside of any cycle.
type Collector struct {
	cfg      Config
	pageSize uintptr
	logger   *zap.Logger
	metrics  *metricsSet

	mu       sync.Mutex
	readers  sync.Cond
	writer   sync.Cond
	flag     bool
	count    int
	requests int
	period   time.Duration
	cycleSeq uint64

	alive      atomic.Bool
	startOnce  sync.Once
	workerDone chan struct{}

	srcMu       sync.Mutex
	sources     []*source
	traversable []*source

	allocatorsMu sync.Mutex
	allocators   []*Allocator

	rootsMu sync.Mutex
	roots   map[unsafe.Pointer]rootEntry
}

// NewCollector builds a Collector from cfg, defaulting to a no-op logger
// when logger is nil (design §1's ambient logging: "defaulting to
// zap.NewNop()"). The worker does not start until Initialize is called,
// matching §6's "initialize() starts the worker thread and must be
// called once."
func NewCollector(cfg Config, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		cfg:        cfg,
		pageSize:   PageSize(),
		logger:     logger,
		metrics:    newMetricsSet(),
		flag:       true,
		period:     cfg.GCPeriod,
		workerDone: make(chan struct{}),
		roots:      make(map[unsafe.Pointer]rootEntry),
	}
	c.alive.Store(true)
	c.readers.L = &c.mu
	c.writer.L = &c.mu
	return c
}

// Initialize starts the worker goroutine. Safe to call more than once;
// only the first call has an effect.
func (c *Collector) Initialize() {
	c.startOnce.Do(func() {
		go c.work()
	})
}

// SetPeriod changes the idle-wake interval; zero disables time-triggered
// cycles (design §6).
func (c *Collector) SetPeriod(d time.Duration) {
	c.mu.Lock()
	c.period = d
	c.mu.Unlock()
}

// Collect requests a cycle (design §4.6's collect()). If wait is true it
// blocks until that cycle (or a later one already in flight) completes.
// m is the calling goroutine's own MutatorLock, or nil if it holds none.
// When m is currently held, Collect gives up its reader slot for the
// duration of the wait and reacquires it afterward — the same downgrade
// gateWait performs for an allocator retry. Without this, a goroutine
// that calls Collect(m, true) while still counted as a reader would
// deadlock against work's "wait for count==0" step (design §4.7 step 2),
// since the worker can never see count drop to zero and this goroutine
// never sees a cycle complete. Returns ErrShutdown if the collector is
// torn down while waiting.
func (c *Collector) Collect(m *MutatorLock, wait bool) error {
	c.mu.Lock()
	seq := c.cycleSeq
	c.flag = false
	c.writer.Signal()
	if !wait {
		c.mu.Unlock()
		return nil
	}

	held := m != nil && m.depth > 0
	if held {
		c.count--
		if !c.flag && c.count == 0 {
			c.writer.Signal()
		}
	}
	for c.cycleSeq == seq && c.alive.Load() {
		c.readers.Wait()
	}
	alive := c.alive.Load()
	if held {
		c.count++
	}
	c.mu.Unlock()
	if !alive {
		return ErrShutdown
	}
	return nil
}

// gateLock is the outermost half of MutatorLock.Lock: wait for flag,
// then join as a reader (design §4.6's mutator lock()).
func (c *Collector) gateLock() {
	c.mu.Lock()
	for !c.flag {
		c.readers.Wait()
	}
	c.count++
	c.mu.Unlock()
}

// gateUnlock is the outermost half of MutatorLock.Unlock (design §4.6's
// mutator unlock()).
func (c *Collector) gateUnlock() {
	c.mu.Lock()
	c.count--
	if !c.flag && c.count == 0 {
		c.writer.Signal()
	}
	c.mu.Unlock()
}

// gateWait implements design §4.6's mutator wait(): downgrade this
// reader to a cycle request, wait for the cycle to finish, then
// reacquire readership. Returns ErrShutdown if the collector has been
// torn down while waiting (design §4.11's WaitAfterShutdown).
func (c *Collector) gateWait() error {
	c.mu.Lock()
	if !c.alive.Load() {
		c.mu.Unlock()
		return ErrShutdown
	}
	c.flag = false
	c.count--
	c.requests++
	c.writer.Signal()
	for !c.flag && c.alive.Load() {
		c.readers.Wait()
	}
	if !c.alive.Load() {
		c.count++
		c.mu.Unlock()
		return ErrShutdown
	}
	c.count++
	c.mu.Unlock()
	return nil
}

// Close implements design §4.7's termination: set alive false, wake the
// worker, join it, then restore flag=true and wake every waiter so it
// observes shutdown instead of blocking forever.
func (c *Collector) Close() error {
	c.mu.Lock()
	if !c.alive.Load() {
		c.mu.Unlock()
		return nil
	}
	c.alive.Store(false)
	c.writer.Signal()
	c.mu.Unlock()

	<-c.workerDone

	c.allocatorsMu.Lock()
	allocs := make([]*Allocator, len(c.allocators))
	copy(allocs, c.allocators)
	c.allocatorsMu.Unlock()
	for _, a := range allocs {
		a.teardown()
	}

	c.mu.Lock()
	c.flag = true
	c.mu.Unlock()
	c.readers.Broadcast()
	return nil
}

// work is the collector's dedicated goroutine, implementing design
// §4.7's numbered steps 1-8 verbatim.
func (c *Collector) work() {
	defer close(c.workerDone)
	for {
		c.mu.Lock()
		if !c.alive.Load() {
			c.mu.Unlock()
			return
		}

		c.waitForCycleOrTimeoutLocked()
		if !c.alive.Load() {
			c.mu.Unlock()
			return
		}

		for c.count != 0 {
			c.writer.Wait()
		}

		start := time.Now()
		c.markLocked()
		c.sweepLocked()
		released := c.shrinkLocked()
		c.cycleSeq++
		c.metrics.observeCycle(time.Since(start), released)
		c.logger.Debug("gc cycle complete",
			zap.Duration("pause", time.Since(start)),
			zap.Int("pools_released", released))

		c.flag = true
		c.mu.Unlock()
		c.readers.Broadcast()
	}
}

// waitForCycleOrTimeoutLocked implements step 1: wait on writer until
// !flag, or until period elapses, in which case the worker sets flag
// false itself. Must be called with c.mu held.
func (c *Collector) waitForCycleOrTimeoutLocked() {
	if c.period <= 0 {
		for c.flag && c.alive.Load() {
			c.writer.Wait()
		}
		return
	}

	timer := time.AfterFunc(c.period, func() {
		c.mu.Lock()
		if c.flag {
			c.flag = false
			c.writer.Signal()
		}
		c.mu.Unlock()
	})
	for c.flag && c.alive.Load() {
		c.writer.Wait()
	}
	timer.Stop()
}

// markLocked runs step 4: mark every root, direct for roots that already
// live inside a pool, through their traverse callback otherwise; then
// drain the traversable set to a fixpoint.
func (c *Collector) markLocked() {
	c.rootsMu.Lock()
	roots := make([]rootEntry, 0, len(c.roots))
	for _, re := range c.roots {
		roots = append(roots, re)
	}
	c.rootsMu.Unlock()

	for _, re := range roots {
		if src := c.findSource(re.addr); src != nil {
			src.pool.mark(re.addr)
			continue
		}
		if re.traverse != nil {
			re.traverse(re.addr, c.enumerate)
		}
	}

	for {
		did := false
		c.srcMu.Lock()
		trav := make([]*source, len(c.traversable))
		copy(trav, c.traversable)
		c.srcMu.Unlock()

		for _, src := range trav {
			if src.pool.traverse(nil, c.enumerate) {
				did = true
			}
		}
		if !did {
			break
		}
	}
}

// enumerate is the sink a root's or an object's traverse callback reports
// out-pointers to (design §4.7 step 4's "enumerate(data, ptr)").
func (c *Collector) enumerate(_ unsafe.Pointer, ptr unsafe.Pointer) {
	if src := c.findSource(ptr); src != nil {
		src.pool.mark(ptr)
	}
}

// sweepLocked runs step 5: sweep every pool.
func (c *Collector) sweepLocked() {
	c.srcMu.Lock()
	srcs := make([]*source, len(c.sources))
	copy(srcs, c.sources)
	c.srcMu.Unlock()

	reclaimed := 0
	for _, s := range srcs {
		before := s.pool.used()
		s.pool.sweep()
		reclaimed += int(before - s.pool.used())
	}
	c.metrics.addSlotsReclaimed(reclaimed)
}

// shrinkLocked runs step 6: repartition every allocator's pools by actual
// occupancy, then either distribute accumulated allocation-failure
// pressure across allocators or shrink each opportunistically. Returns
// the number of pools released.
func (c *Collector) shrinkLocked() int {
	c.allocatorsMu.Lock()
	allocs := make([]*Allocator, len(c.allocators))
	copy(allocs, c.allocators)
	c.allocatorsMu.Unlock()

	for _, a := range allocs {
		a.repartition()
	}

	released := 0
	if c.requests > 0 {
		demand := c.requests
		for demand > 0 {
			freedThisRound := 0
			for _, a := range allocs {
				if demand <= 0 {
					break
				}
				n := a.shrink(1)
				freedThisRound += n
				demand -= n
			}
			released += freedThisRound
			if freedThisRound == 0 {
				break
			}
		}
	} else {
		for _, a := range allocs {
			released += a.shrink(0)
		}
	}
	c.requests = 0
	c.metrics.addPoolsReleased(released)
	return released
}

// findSource classifies ptr by floor-searching the location()-sorted
// source index and checking containment, design §3's source index used
// "to classify a raw pointer."
func (c *Collector) findSource(ptr unsafe.Pointer) *source {
	c.srcMu.Lock()
	defer c.srcMu.Unlock()

	key := uintptr(ptr)
	idx := sort.Search(len(c.sources), func(i int) bool {
		return uintptr(c.sources[i].pool.location()) > key
	})
	if idx == 0 {
		return nil
	}
	cand := c.sources[idx-1]
	if cand.pool.from(ptr) {
		return cand
	}
	return nil
}

// registerSource inserts a newly grown pool into the source index (and
// the traversable subset, if its identity carries pointers), maintaining
// location()-sorted order.
func (c *Collector) registerSource(id *Identity, p *pool) *source {
	src := &source{identity: id, pool: p}
	c.srcMu.Lock()
	c.sources = insertSortedSource(c.sources, src)
	if id.ContainsPointers() {
		c.traversable = insertSortedSource(c.traversable, src)
	}
	c.srcMu.Unlock()
	return src
}

// unregisterSource removes p from both source indexes, used when an
// allocator releases an empty pool.
func (c *Collector) unregisterSource(p *pool) {
	c.srcMu.Lock()
	c.sources = removeSourceByPool(c.sources, p)
	c.traversable = removeSourceByPool(c.traversable, p)
	c.srcMu.Unlock()
}

// newAllocatorFor builds and registers a new Allocator for id, called
// lazily from Identity.bind on first use (design §3's "a pointer to its
// allocator (set once at first construction)").
func (c *Collector) newAllocatorFor(id *Identity) *Allocator {
	a := newAllocator(id, c)
	c.allocatorsMu.Lock()
	c.allocators = append(c.allocators, a)
	c.allocatorsMu.Unlock()
	return a
}

// RegisterRoot records addr as a root under the mutator lock m (design
// §4.10/§6: "register_root... requires the mutator lock").
func (c *Collector) RegisterRoot(m *MutatorLock, addr unsafe.Pointer, traverse RootTraverseFunc, cb RootCB) {
	m.mustHold(c)
	c.rootsMu.Lock()
	c.roots[addr] = rootEntry{addr: addr, traverse: traverse, cb: cb}
	c.rootsMu.Unlock()
}

// UnregisterRoot removes addr from the root index under the mutator lock
// m.
func (c *Collector) UnregisterRoot(m *MutatorLock, addr unsafe.Pointer) {
	m.mustHold(c)
	c.rootsMu.Lock()
	delete(c.roots, addr)
	c.rootsMu.Unlock()
}

func insertSortedSource(list []*source, src *source) []*source {
	key := uintptr(src.pool.location())
	idx := sort.Search(len(list), func(i int) bool {
		return uintptr(list[i].pool.location()) >= key
	})
	list = append(list, nil)
	copy(list[idx+1:], list[idx:])
	list[idx] = src
	return list
}

func removeSourceByPool(list []*source, p *pool) []*source {
	key := uintptr(p.location())
	idx := sort.Search(len(list), func(i int) bool {
		return uintptr(list[i].pool.location()) >= key
	})
	if idx < len(list) && list[idx].pool == p {
		return append(list[:idx], list[idx+1:]...)
	}
	return list
}
