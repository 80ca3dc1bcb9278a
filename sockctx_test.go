// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux || darwin || freebsd || openbsd

package cosched

import "testing"

func TestSockCtxPackRoundTrip(t *testing.T) {
	co := &coroutine{id: 0xdeadbeef, gen: 0x1234}
	w := packEv(5, co)
	if evSched(w) != 5 {
		t.Fatalf("scheduler id %d, want 5", evSched(w))
	}
	if evGen(w) != 0x1234 {
		t.Fatalf("generation %#x, want 0x1234", evGen(w))
	}
	if evCoID(w) != 0xdeadbeef {
		t.Fatalf("coroutine id %#x, want 0xdeadbeef", evCoID(w))
	}
	if !evForSched(w, 5) || evForSched(w, 4) || evForSched(0, 0) {
		t.Fatal("evForSched misclassified")
	}
}

func TestSockCtxDirectionsIndependent(t *testing.T) {
	var c sockCtx
	r := &coroutine{id: 1}
	w := &coroutine{id: 2}

	c.addEvRead(0, r)
	c.addEvWrite(1, w)

	if !c.hasEvRead() || !c.hasEvWrite() || !c.hasEvent() {
		t.Fatal("registered directions not visible")
	}
	if !c.hasEvReadFor(0) || c.hasEvReadFor(1) {
		t.Fatal("reader attributed to the wrong scheduler")
	}
	if !c.hasEvWriteFor(1) || c.hasEvWriteFor(0) {
		t.Fatal("writer attributed to the wrong scheduler")
	}

	c.delEvRead()
	if c.hasEvRead() || !c.hasEvWrite() {
		t.Fatal("delEvRead touched the writer side")
	}

	c.delEvent()
	if c.hasEvent() {
		t.Fatal("delEvent left residue")
	}
}

func TestSockCtxTableStable(t *testing.T) {
	a := sockCtxOf(100)
	b := sockCtxOf(100)
	if a != b {
		t.Fatal("same fd resolved to different entries")
	}
	if sockCtxOf(101) == a {
		t.Fatal("distinct fds share an entry")
	}
	// Across block boundaries.
	if sockCtxOf(sockBlockSize+3) == sockCtxOf(3) {
		t.Fatal("fd aliasing across blocks")
	}
}
