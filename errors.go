// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package gc

import (
	"errors"
	"fmt"

	"code.hybscloud.com/iox"
)

// Sentinel errors for the collector's error taxonomy (see design §7).
//
// ErrOutOfMemory and ErrPoolExhausted are recoverable: callers may retry
// after a collection cycle has had a chance to reclaim space.
// ErrNotCollectorOwned, ErrTypeMismatch and ErrShutdown are surfaced
// directly to the caller.
var (
	// ErrOutOfMemory is returned when virtual memory could not be reserved
	// for a new pool.
	ErrOutOfMemory = errors.New("gc: out of memory")

	// ErrPoolExhausted is returned internally when every pool belonging to
	// an allocator is full. Allocator.allocate retries once after waiting
	// on a collection cycle; a second exhaustion surfaces as
	// ErrOutOfMemory. It wraps iox.ErrWouldBlock, the teacher package's
	// own sentinel for "no slot available right now" in BoundedPool.Get,
	// so callers that already handle that sentinel from other hybscloud
	// packages can errors.Is against it here too.
	ErrPoolExhausted = fmt.Errorf("gc: pool exhausted: %w", iox.ErrWouldBlock)

	// ErrNotCollectorOwned is returned by StrongFromPtr when the supplied
	// address is not claimed by any registered pool.
	ErrNotCollectorOwned = errors.New("gc: address not collector-owned")

	// ErrTypeMismatch is returned by Strong.Get when the stored identity
	// does not match the requested type.
	ErrTypeMismatch = errors.New("gc: type mismatch")

	// ErrShutdown is returned to a mutator that was waiting on a
	// collection cycle when the collector singleton is torn down.
	ErrShutdown = errors.New("gc: collector destroyed")

	// ErrInvariant names a violated internal invariant (§3, §4.4, §4.5).
	// No function in this package returns it: pool operations ignore an
	// address that fails their checks, and MutatorLock misuse panics.
	ErrInvariant = errors.New("gc: invariant violated")
)
