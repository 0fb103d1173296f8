// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package gc

import (
	"runtime"
	"strconv"
	"strings"
)

// MutatorLock is the reentrant handle a mutator goroutine holds against
// collection cycles (design §4.6, §5, §9). Go has no portable
// thread-local storage the way the original C++ design assumes ("a
// thread-local of unsigned type"), so reentrancy here is tracked
// explicitly on a value the calling goroutine carries rather than
// recovered from goroutine identity — the one deliberate deviation from
// the source design, recorded in DESIGN.md's Open Questions.
//
// A MutatorLock must not be shared between goroutines; each goroutine
// that enters collector-guarded code acquires its own. With
// Config.DebugMutex set, Lock/Unlock additionally check that every call
// comes from the goroutine that acquired depth 1, panicking instead of
// letting two goroutines corrupt the same depth counter.
type MutatorLock struct {
	collector *Collector
	depth     int
	owner     int64
}

// NewMutatorLock acquires c's reader gate and returns a handle at
// nesting depth 1. Use Lock/Unlock for further nested acquisitions on
// the same handle.
func NewMutatorLock(c *Collector) *MutatorLock {
	m := &MutatorLock{collector: c}
	m.Lock()
	return m
}

// Lock increments the nesting depth, touching the collector's gate only
// on the outermost acquisition (design §4.6: "only the outermost nesting
// level touches the gate").
func (m *MutatorLock) Lock() {
	if m.collector.cfg.DebugMutex {
		m.checkOwner()
	}

	if m.depth == 0 {
		m.collector.gateLock()
	}
	m.depth++
}

// Unlock decrements the nesting depth, releasing the collector's gate
// only when it reaches zero.
func (m *MutatorLock) Unlock() {
	if m.depth == 0 {
		panic("gc: MutatorLock.Unlock without matching Lock")
	}
	if m.collector.cfg.DebugMutex && goroutineID() != m.owner {
		panic("gc: MutatorLock used from a different goroutine than its owner")
	}
	m.depth--
	if m.depth == 0 {
		m.collector.gateUnlock()
	}
}

// checkOwner records the calling goroutine as owner at depth 0, or
// panics if a nested Lock arrives from a goroutine other than the one
// that acquired depth 1 (design §6's DebugMutex: "panicking on misuse
// instead of silently corrupting state").
func (m *MutatorLock) checkOwner() {
	gid := goroutineID()
	if m.depth == 0 {
		m.owner = gid
		return
	}
	if gid != m.owner {
		panic("gc: MutatorLock used from a different goroutine than its owner")
	}
}

// goroutineID parses the numeric ID out of runtime.Stack's leading
// "goroutine N [running]:" line. There is no public API for this; every
// debug-only goroutine-identity check in the ecosystem (and this one)
// resorts to the same stack-header scrape.
func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	s := strings.TrimPrefix(string(buf[:n]), "goroutine ")
	if i := strings.IndexByte(s, ' '); i >= 0 {
		s = s[:i]
	}
	id, _ := strconv.ParseInt(s, 10, 64)
	return id
}

// Depth reports the current nesting level (design testable property 10).
func (m *MutatorLock) Depth() int { return m.depth }

// wait downgrades this reader to a cycle request: it gives up the
// gate's reader slot, waits for the worker to finish a cycle, then
// reacquires readership (design §4.6's wait()). Called internally by an
// allocator that just failed to find space.
func (m *MutatorLock) wait() error {
	return m.collector.gateWait()
}

// mustHold panics if m is nil, does not belong to c, or is not currently
// held,
// guarding Identity.Allocate's precondition that the caller already
// holds the collector lock (design §4.2).
func (m *MutatorLock) mustHold(c *Collector) {
	if m == nil || m.collector != c || m.depth == 0 {
		panic("gc: operation requires a held MutatorLock for this collector")
	}
}
