// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package gc implements a precise, stop-the-world, mark-sweep collector
// core: per-type allocators backed by virtual-memory pools of fixed-size
// slots, a singleton collector coordinating mutators against a worker
// goroutine, and a strong/weak pointer protocol tying the two together.
//
// A typical mutator:
//
//	coll := gc.NewCollector(gc.DefaultConfig(), nil)
//	coll.Initialize()
//	defer coll.Close()
//
//	type Node struct {
//		Next gc.Strong[Node]
//	}
//	gc.RegisterIdentityFor[Node](gc.NewIdentity(gc.Traits{
//		Size:  unsafe.Sizeof(Node{}),
//		Align: unsafe.Alignof(Node{}),
//		Traverse: func(obj, data unsafe.Pointer, cb gc.EnumerateFunc) {
//			n := (*Node)(obj)
//			cb(data, n.Next.Ptr())
//		},
//		Relocate: func(dst, src unsafe.Pointer) {
//			*(*Node)(dst) = *(*Node)(src)
//		},
//	}))
//
//	m := gc.NewMutatorLock(coll)
//	defer m.Unlock()
//	n, err := gc.AllocateStrong[Node](m, coll, nil)
//
// This package has no wire protocol, no persisted state, and no CLI of
// its own; cmd/gcdemo is a separate harness exercising it end-to-end.
package gc
