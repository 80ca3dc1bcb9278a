// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux || darwin || freebsd || openbsd

package cosched

// Pool is a per-scheduler object cache: each scheduler owns a private
// free list, so Pop and Push touch only the calling coroutine's
// scheduler's slot and need no lock. Copies share state.
//
// Pop, Push, and Size must be called from a coroutine and panic
// otherwise.
type Pool struct {
	i *poolImpl
}

type poolImpl struct {
	pools   [][]any
	newFn   func() any
	destroy func(any)
	maxCap  int // per-scheduler soft cap; <= 0 means unbounded
}

// NewPool creates a pool. newFn (optional) supplies values when a
// scheduler's free list is empty; destroy (optional) disposes of values
// pushed past maxCap and on Clear. maxCap <= 0 leaves the free lists
// unbounded.
func NewPool(newFn func() any, destroy func(any), maxCap int) Pool {
	return Pool{i: &poolImpl{
		pools:   make([][]any, len(Schedulers())),
		newFn:   newFn,
		destroy: destroy,
		maxCap:  maxCap,
	}}
}

// Pop returns the most recently pushed value of the calling coroutine's
// scheduler, the newFn result if the free list is empty, or nil when no
// newFn was set.
func (p Pool) Pop() any {
	co := mustCurrent()
	i := p.i
	v := &i.pools[co.sched.ID()]
	if n := len(*v); n > 0 {
		e := (*v)[n-1]
		(*v)[n-1] = nil
		*v = (*v)[:n-1]
		return e
	}
	if i.newFn != nil {
		return i.newFn()
	}
	return nil
}

// Push returns a value to the calling coroutine's scheduler's free list.
// Past the soft cap, a configured destroy callback disposes of it
// instead. nil values are ignored.
func (p Pool) Push(e any) {
	if e == nil {
		return
	}
	co := mustCurrent()
	i := p.i
	v := &i.pools[co.sched.ID()]
	if i.maxCap <= 0 || len(*v) < i.maxCap || i.destroy == nil {
		*v = append(*v, e)
		return
	}
	i.destroy(e)
}

// Size returns the length of the calling coroutine's scheduler's free
// list.
func (p Pool) Size() int {
	co := mustCurrent()
	return len(p.i.pools[co.sched.ID()])
}

// Clear disposes of every free list, running the destruction on the
// scheduler that owns each list (one cleanup task per scheduler), and
// waits for all of them.
func (p Pool) Clear() {
	i := p.i
	scheds := Schedulers()
	wg := NewWaitGroup()
	wg.Add(len(scheds))
	for _, s := range scheds {
		s.Go(func() {
			v := &i.pools[SchedulerID()]
			if i.destroy != nil {
				for _, e := range *v {
					i.destroy(e)
				}
			}
			*v = nil
			wg.Done()
		})
	}
	wg.Wait()
}
