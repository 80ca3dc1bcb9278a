// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package cosched

import (
	"sync/atomic"
	"time"

	"github.com/joeycumines/go-catrate"
	"github.com/joeycumines/logiface"
)

// Logging is an infrastructure cross-cutting concern: the package holds a
// single logger, shared by every scheduler, configured at startup. The
// logiface builders are nil-safe, so an unset logger costs one atomic load
// per (discarded) log call.

var packageLogger atomic.Pointer[logiface.Logger[logiface.Event]]

// SetLogger sets the package-level structured logger. Pass nil to disable
// logging. Typed loggers convert via their Logger() method, e.g.
//
//	cosched.SetLogger(stumpy.L.New(stumpy.L.WithStumpy()).Logger())
func SetLogger(logger *logiface.Logger[logiface.Event]) {
	packageLogger.Store(logger)
}

func pkgLogger() *logiface.Logger[logiface.Event] {
	return packageLogger.Load()
}

// regErrLimiter rate limits demultiplexer registration error logs per
// (category, fd is deliberately NOT part of the key: a storm of failing
// fds is exactly the case that must not flood the log).
var regErrLimiter = catrate.NewLimiter(map[time.Duration]int{
	time.Second: 4,
	time.Minute: 60,
})

// logRegistrationError logs a demultiplexer registration failure, rate
// limited per operation category.
func logRegistrationError(category string, schedID int32, fd int, err error) {
	if _, ok := regErrLimiter.Allow(category); !ok {
		return
	}
	pkgLogger().Err().
		Err(err).
		Str("op", category).
		Int("sched", int(schedID)).
		Int("fd", fd).
		Log("event registration failed")
}

// logPollError logs a demultiplexer wait failure (other than EINTR), rate
// limited like registration errors.
func logPollError(schedID int32, err error) {
	if _, ok := regErrLimiter.Allow("wait"); !ok {
		return
	}
	pkgLogger().Err().
		Err(err).
		Int("sched", int(schedID)).
		Log("demultiplexer wait failed")
}
