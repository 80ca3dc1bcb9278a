// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package cosched

import "sync"

// taskManager holds the thread-safe ingress queues of one scheduler: new
// task closures and coroutines ready to resume. The owning scheduler
// drains both in bulk with a slice swap, so producers pay one append under
// the mutex and the drain is a single lock regardless of batch size.
type taskManager struct {
	mu    sync.Mutex
	new   []func()
	ready []*coroutine
}

func (m *taskManager) addNew(fn func()) {
	m.mu.Lock()
	m.new = append(m.new, fn)
	m.mu.Unlock()
}

func (m *taskManager) addReady(co *coroutine) {
	m.mu.Lock()
	m.ready = append(m.ready, co)
	m.mu.Unlock()
}

// drain swaps the queues with the caller's spare buffers (passed in with
// length 0) and returns the batches. Buffer reuse keeps the steady state
// allocation-free.
func (m *taskManager) drain(newSpare []func(), readySpare []*coroutine) ([]func(), []*coroutine) {
	m.mu.Lock()
	newTasks, readyTasks := m.new, m.ready
	m.new, m.ready = newSpare, readySpare
	m.mu.Unlock()
	return newTasks, readyTasks
}
