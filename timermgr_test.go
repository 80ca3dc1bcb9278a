// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package cosched

import (
	"testing"
	"time"
)

func TestTimerManagerSweepOrder(t *testing.T) {
	var m timerManager
	now := time.Now()

	c1 := &coroutine{id: 1}
	c2 := &coroutine{id: 2}
	c3 := &coroutine{id: 3}

	// Inserted out of order; swept in deadline order.
	m.add(30*time.Millisecond, c3)
	m.add(10*time.Millisecond, c1)
	m.add(20*time.Millisecond, c2)

	expired := m.checkTimeout(now.Add(25*time.Millisecond), nil)
	if len(expired) != 2 {
		t.Fatalf("expired %d entries, want 2", len(expired))
	}
	if expired[0].co != c1 || expired[1].co != c2 {
		t.Fatalf("sweep order wrong: got co %d then %d", expired[0].co.id, expired[1].co.id)
	}

	if m.empty() {
		t.Fatal("third timer disappeared")
	}
	next := m.next(now.Add(25 * time.Millisecond))
	if next <= 0 || next > 5*time.Millisecond {
		t.Fatalf("next = %v, want (0, 5ms]", next)
	}
}

func TestTimerManagerEraseByHandle(t *testing.T) {
	var m timerManager
	now := time.Now()

	c1 := &coroutine{id: 1}
	c2 := &coroutine{id: 2}
	e1 := m.add(10*time.Millisecond, c1)
	m.add(20*time.Millisecond, c2)

	m.del(e1)
	if e1.index != -1 {
		t.Fatalf("erased handle still indexed at %d", e1.index)
	}

	expired := m.checkTimeout(now.Add(time.Hour), nil)
	if len(expired) != 1 || expired[0].co != c2 {
		t.Fatalf("sweep after erase returned %d entries", len(expired))
	}

	// Erasing an already-swept handle is a no-op.
	m.del(expired[0])
	m.del(nil)
}

func TestTimerManagerNextEmpty(t *testing.T) {
	var m timerManager
	if d := m.next(time.Now()); d != noDeadline {
		t.Fatalf("next on empty store = %v, want %v", d, noDeadline)
	}
	if !m.empty() {
		t.Fatal("fresh store not empty")
	}
}

func TestTimerManagerPastDeadline(t *testing.T) {
	var m timerManager
	m.add(0, &coroutine{id: 1})
	if d := m.next(time.Now().Add(time.Millisecond)); d != 0 {
		t.Fatalf("next for an overdue timer = %v, want 0", d)
	}
}
