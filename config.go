// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package gc

import "time"

// Config holds the build/runtime-recognized constants from design §6.
// Unlike the teacher package's bare package-level PageSize var, the
// collector's configuration is wider and is grouped into one value so it
// can be swapped per-Collector in tests without mutating package state.
type Config struct {
	// MinPool is the smallest number of slots a pool is built with.
	MinPool uintptr
	// MaxPool caps a pool's slot memory, in pages of page_size(); a
	// pool never holds more slots than fit in that many pages, unless
	// MinPool asks for more.
	MaxPool uintptr
	// GCPeriod is the default idle-wake interval for the worker. Zero
	// disables time-triggered cycles (the worker only wakes on an
	// explicit Collect or an allocation failure).
	GCPeriod time.Duration
	// GuardPages inserts no-access pages around a pool's header and
	// slot arena when true.
	GuardPages bool
	// DebugMutex wraps the mutator lock in a thread-identity check,
	// panicking on misuse instead of silently corrupting state.
	DebugMutex bool
}

// DefaultConfig returns the standard configuration to pass to
// NewCollector: an 8-slot minimum pool, a 64-page maximum,
// a 10ms idle-wake period, guard pages on, and debug checks off.
func DefaultConfig() Config {
	return Config{
		MinPool:    8,
		MaxPool:    64,
		GCPeriod:   10 * time.Millisecond,
		GuardPages: true,
		DebugMutex: false,
	}
}
