// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux || darwin || freebsd || openbsd

package cosched

import (
	"errors"
	"sync"

	"golang.org/x/sys/unix"
)

// Standard errors.
var (
	// ErrTimeout is returned when a bounded wait elapsed before the
	// expected event. It matches unix.ETIMEDOUT under errors.Is, and
	// implements Timeout() bool for os.IsTimeout.
	ErrTimeout error = &timeoutError{}

	// ErrClosed marks an fd that was closed. The socket operations of this
	// package do not return it: a wait on an fd closed concurrently ends
	// with ErrTimeout once its deadline elapses.
	ErrClosed = errors.New("cosched: fd closed")

	// ErrNotInCoroutine is the value carried by the panics of the
	// operations whose contract forbids non-coroutine callers, when such an
	// operation is used outside a coroutine.
	ErrNotInCoroutine = errors.New("cosched: not called from a coroutine")

	// ErrRegistration is returned when the demultiplexer refused an fd.
	ErrRegistration = errors.New("cosched: event registration failed")
)

type timeoutError struct{}

func (*timeoutError) Error() string   { return "Timed out" }
func (*timeoutError) Timeout() bool   { return true }
func (*timeoutError) Temporary() bool { return true }

func (*timeoutError) Is(target error) bool {
	return target == unix.ETIMEDOUT
}

// strerrCache caches errno -> message translations. ETIMEDOUT keeps the
// short "Timed out" form.
var strerrCache sync.Map // unix.Errno -> string

// ErrorString translates an errno to a human-readable message.
func ErrorString(errno unix.Errno) string {
	if errno == unix.ETIMEDOUT {
		return "Timed out"
	}
	if v, ok := strerrCache.Load(errno); ok {
		return v.(string)
	}
	s := errno.Error()
	strerrCache.Store(errno, s)
	return s
}

// temporary reports whether a syscall error warrants a transparent retry.
func temporary(err error) bool {
	return err == unix.EINTR
}

// wouldBlock reports whether a syscall error means "suspend and retry when
// ready" rather than failure.
func wouldBlock(err error) bool {
	return err == unix.EAGAIN || err == unix.EWOULDBLOCK
}
