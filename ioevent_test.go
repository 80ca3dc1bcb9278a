// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux || darwin || freebsd || openbsd

package cosched

import (
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

func socketpairNonblock(t *testing.T) [2]int {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("Socketpair: %v", err)
	}
	for _, fd := range fds {
		if err := SetNonblock(fd); err != nil {
			t.Fatalf("SetNonblock: %v", err)
		}
	}
	return fds
}

// Register-then-remove leaves no trace: add_ev_read; del_ev_read is a
// no-op on the socket context.
func TestIOEventRegisterRemoveRoundTrip(t *testing.T) {
	fds := socketpairNonblock(t)
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	wg := NewWaitGroup()
	wg.Add(1)
	Go(func() {
		defer wg.Done()
		co := current()
		s := co.sched

		if !s.addIOEvent(fds[0], EvRead, co) {
			t.Error("addIOEvent failed on a healthy socket")
			return
		}
		if !sockCtxOf(fds[0]).hasEvRead() {
			t.Error("registration not recorded")
		}
		s.delIOEvent(fds[0], EvRead)
		if sockCtxOf(fds[0]).hasEvent() {
			t.Error("registration left residue after removal")
		}
		// Removing again tolerates the absence.
		s.delIOEvent(fds[0], EvRead)
	})
	wg.Wait()
}

// The demultiplexer refuses fds it cannot monitor; the helper surfaces it
// as ErrRegistration.
func TestIOEventRegistrationError(t *testing.T) {
	wg := NewWaitGroup()
	wg.Add(1)
	Go(func() {
		defer wg.Done()
		ev := NewIOEvent(-1, EvRead)
		defer ev.Close()
		if err := ev.Wait(time.Millisecond); err != ErrRegistration {
			t.Errorf("Wait on fd -1: %v, want ErrRegistration", err)
		}
	})
	wg.Wait()
}

func TestIOEventWaitTimesOut(t *testing.T) {
	fds := socketpairNonblock(t)
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	wg := NewWaitGroup()
	wg.Add(1)
	Go(func() {
		defer wg.Done()
		ev := NewIOEvent(fds[0], EvRead)
		defer ev.Close()

		start := time.Now()
		err := ev.Wait(30 * time.Millisecond)
		if err != ErrTimeout {
			t.Errorf("Wait: %v, want ErrTimeout", err)
		}
		if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
			t.Errorf("Wait returned after %v", elapsed)
		}
	})
	wg.Wait()
}

func TestIOEventWaitReady(t *testing.T) {
	fds := socketpairNonblock(t)
	defer unix.Close(fds[0])
	defer unix.Close(fds[1])

	wg := NewWaitGroup()
	wg.Add(1)
	Go(func() {
		defer wg.Done()
		ev := NewIOEvent(fds[0], EvRead)
		defer ev.Close()
		if err := ev.Wait(2 * time.Second); err != nil {
			t.Errorf("Wait: %v", err)
		}
	})

	time.Sleep(10 * time.Millisecond)
	if _, err := unix.Write(fds[1], []byte("x")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	wg.Wait()
}

func TestNewIOEventOutsideCoroutinePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("NewIOEvent outside a coroutine did not panic")
		}
	}()
	NewIOEvent(0, EvRead)
}
