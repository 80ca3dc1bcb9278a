// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

// Package cosched implements a cooperative M:N coroutine runtime: a small
// fleet of schedulers, each pinned to an OS thread and driving a
// platform-native readiness demultiplexer (epoll on Linux, kqueue on
// Darwin/BSD), multiplexes a large number of lightweight tasks.
//
// # Architecture
//
// Each [Sched] owns a private pool of coroutine control blocks (dense
// integer ids), a timer manager, a task manager (thread-safe new/ready
// queues), and a demultiplexer with a built-in wakeup fd. Tasks are
// goroutines bound one-to-one to control blocks; control transfers between
// a scheduler and its running task via a strict two-way handshake, so at
// most one task per scheduler executes at any instant and the ordering
// guarantees of a single-threaded loop hold.
//
// Tasks never migrate between schedulers. A task may only suspend at
// explicit suspension points: [Sleep], [Event.Wait],
// [Mutex.Lock], [IOEvent.Wait], and the socket operations ([Recv],
// [Send], [Connect], [Accept], ...). There is no preemption; a CPU-bound
// task that never suspends blocks its scheduler.
//
// # Scheduling
//
// [Go] submits a task to the fleet, selecting a scheduler by round-robin
// dispatch (see [SchedManager.Next]). Any goroutine may submit;
// the target scheduler's demultiplexer is signalled and the signal
// collapses, so bursts of submissions produce at most one wakeup.
//
// # Timeouts and cancellation
//
// Cancellation is expressed as timeout. Every suspension point accepting a
// deadline arms a timer on the owning scheduler; the wake path and the
// timer sweep race on a single compare-and-swap of the wait record, and
// the winner alone resumes the task. Closing a socket removes its
// demultiplexer registration; a coroutine still waiting on it is not woken
// by the close and resumes only when its deadline elapses.
//
// # Usage
//
//	cosched.Go(func() {
//		fd, _ := cosched.TCPSocket()
//		defer cosched.Close(fd, 0)
//		if err := cosched.Connect(fd, addr, 3*time.Second); err != nil {
//			return
//		}
//		n, err := cosched.Recv(fd, buf, time.Second)
//		...
//	})
//
// # Logging
//
// Structured logging uses logiface; see [SetLogger]. Verbose scheduling
// logs are enabled via [Config].SchedLog.
package cosched
