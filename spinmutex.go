// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package cosched

import (
	"runtime"
	"sync/atomic"
)

// spinMutex guards the tiny critical sections of the synchronization
// primitives. Holders never block, so a short spin beats parking the
// goroutine.
type spinMutex struct {
	v atomic.Uint32
}

func (m *spinMutex) Lock() {
	for i := 0; !m.v.CompareAndSwap(0, 1); i++ {
		if i&63 == 63 {
			runtime.Gosched()
		}
	}
}

func (m *spinMutex) Unlock() {
	m.v.Store(0)
}
