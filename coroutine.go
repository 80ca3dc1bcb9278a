// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package cosched

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// Coroutine state, used by the wait record of the synchronization
// primitives. Transitions out of stWait happen at most once, via CAS; the
// winner of the wait->{ready|timeout} race alone resumes the task.
const (
	stWait uint32 = iota
	stReady
	stTimeout
)

// waitRecord is the shared state between the waker and the waitee of a
// suspending primitive.
type waitRecord struct {
	co    *coroutine
	state atomic.Uint32
}

func newWaitRecord(co *coroutine) *waitRecord {
	w := &waitRecord{co: co}
	w.state.Store(stWait)
	return w
}

// coroutine is a task control block. It is owned by exactly one scheduler
// for its whole lifetime; the id is dense and unique within that
// scheduler. The goroutine bound to it survives suspensions: control
// transfers via the resume channel (scheduler -> task) and the
// scheduler's park channel (task -> scheduler).
type coroutine struct {
	id  uint32
	gen uint32 // bumped on recycle; guards stale demultiplexer events

	// Before the first resume fn holds the task function; it is cleared on
	// start, and sched locates the owner for cross-thread wake-ups.
	fn    func()
	sched *Sched

	resume  chan struct{} // cap 1: the scheduler never stalls on the hand-off
	timer   *timerEntry   // pending timer, or nil
	waitx   *waitRecord   // wait record of the suspending primitive, or nil
	started bool
}

// copool backs the allocation of coroutine control blocks by dense id.
// Private to one scheduler thread; no locks.
type copool struct {
	tb   []*coroutine
	free []uint32
}

// pop returns a reusable control block, or allocates one with the next
// dense id (ids start at 1; 0 marks "none" in packed words).
func (p *copool) pop() *coroutine {
	if n := len(p.free); n > 0 {
		id := p.free[n-1]
		p.free = p.free[:n-1]
		co := p.tb[id-1]
		co.started = false
		co.timer = nil
		co.waitx = nil
		return co
	}
	co := &coroutine{
		id:     uint32(len(p.tb) + 1),
		resume: make(chan struct{}, 1),
	}
	p.tb = append(p.tb, co)
	return co
}

// push recycles a terminated control block. The generation bump
// invalidates any identity the demultiplexer may still hold.
func (p *copool) push(co *coroutine) {
	co.gen++
	co.fn = nil
	co.waitx = nil
	co.timer = nil
	p.free = append(p.free, co.id)
}

// byID resolves a control block by id, or nil.
func (p *copool) byID(id uint32) *coroutine {
	if id == 0 || int(id) > len(p.tb) {
		return nil
	}
	return p.tb[id-1]
}

// currentRegistry maps goroutine id -> running coroutine, so the public
// package-level operations can resolve the calling task without threading
// a handle through user code.
var currentRegistry sync.Map // uint64 -> *coroutine

// current returns the coroutine bound to the calling goroutine, or nil.
func current() *coroutine {
	if v, ok := currentRegistry.Load(goroutineID()); ok {
		return v.(*coroutine)
	}
	return nil
}

// mustCurrent is for operations whose contract forbids non-coroutine
// callers.
func mustCurrent() *coroutine {
	co := current()
	if co == nil {
		panic(ErrNotInCoroutine)
	}
	return co
}

// goroutineID returns the current goroutine's id, parsed from the stack
// header.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	var id uint64
	for i := len("goroutine "); i < n; i++ {
		if buf[i] < '0' || buf[i] > '9' {
			break
		}
		id = id*10 + uint64(buf[i]-'0')
	}
	return id
}
