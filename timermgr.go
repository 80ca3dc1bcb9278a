// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package cosched

import (
	"container/heap"
	"time"
)

// timerEntry is a stable handle into the timer store. index is maintained
// by the heap; -1 means the entry is no longer queued.
type timerEntry struct {
	when  time.Time
	co    *coroutine
	index int
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int           { return len(h) }
func (h timerHeap) Less(i, j int) bool { return h[i].when.Before(h[j].when) }

func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *timerHeap) Push(x any) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}

func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.index = -1
	*h = old[:n-1]
	return e
}

// timerManager is the per-scheduler deadline store: insert returns a
// stable handle, erase-by-handle is O(log n), and the sweep walks expired
// entries in deadline order. Timers are only ever added and swept on the
// owning scheduler's thread, so it needs no lock.
type timerManager struct {
	timers timerHeap
}

// add arms a timer for co, returning its handle.
func (m *timerManager) add(d time.Duration, co *coroutine) *timerEntry {
	e := &timerEntry{when: time.Now().Add(d), co: co}
	heap.Push(&m.timers, e)
	return e
}

// del erases a timer by handle. Erasing an already-expired (popped) handle
// is a no-op.
func (m *timerManager) del(e *timerEntry) {
	if e == nil || e.index < 0 {
		return
	}
	heap.Remove(&m.timers, e.index)
}

// noDeadline is the poll budget when the timer store is empty.
const noDeadline = 1 << 20 * time.Millisecond

// checkTimeout pops every expired entry into out, in deadline order.
func (m *timerManager) checkTimeout(now time.Time, out []*timerEntry) []*timerEntry {
	for len(m.timers) > 0 {
		e := m.timers[0]
		if e.when.After(now) {
			break
		}
		heap.Pop(&m.timers)
		out = append(out, e)
	}
	return out
}

// next returns the time to wait for the earliest pending deadline, or
// noDeadline when the store is empty.
func (m *timerManager) next(now time.Time) time.Duration {
	if len(m.timers) == 0 {
		return noDeadline
	}
	d := m.timers[0].when.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

func (m *timerManager) empty() bool { return len(m.timers) == 0 }
