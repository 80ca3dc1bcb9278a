// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux || darwin || freebsd || openbsd

package cosched

import "time"

// Go submits fn to run as a coroutine on one of the schedulers, selected
// by round-robin dispatch. Safe to call from anywhere, including from
// inside a coroutine.
func Go(fn func()) {
	schedManager().Next().Go(fn)
}

// Sleep suspends the current coroutine for at least d. Called outside a
// coroutine, it falls back to time.Sleep.
func Sleep(d time.Duration) {
	co := current()
	if co == nil {
		time.Sleep(d)
		return
	}
	co.sched.sleep(co, d)
}

// Timeout reports whether the last resume of the current coroutine was
// triggered by timer expiry. Must be called from a coroutine.
func Timeout() bool {
	return mustCurrent().sched.timeout()
}

// SchedulerID returns the id of the scheduler running the current
// coroutine, or -1 outside a coroutine.
func SchedulerID() int {
	if co := current(); co != nil {
		return co.sched.ID()
	}
	return -1
}

// CoroutineID returns the fleet-unique id of the current coroutine, or -1
// outside a coroutine.
func CoroutineID() int {
	if co := current(); co != nil {
		return co.sched.coroutineID(co)
	}
	return -1
}

// InCoroutine reports whether the caller is running inside a coroutine.
func InCoroutine() bool { return current() != nil }

// Schedulers returns the scheduler fleet, creating it on first use.
func Schedulers() []*Sched {
	return schedManager().Scheds()
}

// NextSched returns the scheduler the round-robin dispatch would pick
// next, advancing the counter.
func NextSched() *Sched {
	return schedManager().Next()
}

// Stop signals every scheduler and waits for each to acknowledge
// shutdown. Idempotent. Tasks suspended at the time of the call are
// abandoned, as are tasks submitted afterwards.
func Stop() {
	if managerActive() {
		schedManager().stop()
	}
}
