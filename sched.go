// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux || darwin || freebsd || openbsd

package cosched

import (
	"runtime"
	"sync/atomic"
	"time"
)

// Sched is one cooperative scheduler: a goroutine locked to an OS thread,
// looping over a private task set and driving one demultiplexer.
//
// Control alternates strictly between the scheduler goroutine and the
// goroutine of whichever task is resident: resume hands off via the
// task's resume channel, yield (and termination) hands back via park.
// Everything the scheduler owns without locks (copool, timer store, the
// timeout flag, the poll budget) is therefore accessed by exactly one
// goroutine at a time, with the handshake providing the happens-before
// edges.
type Sched struct {
	id       int32
	schedNum int

	demux  *demux
	tasks  taskManager
	timers timerManager
	pool   copool

	running *coroutine
	park    chan parkMsg

	waitBudget  time.Duration
	timeoutFlag bool

	stopFlag atomic.Bool
	done     chan struct{}
	cputime  atomic.Int64

	debug bool
}

type parkMsg struct {
	done bool
}

func newSched(id int32, schedNum int, debug bool) (*Sched, error) {
	d, err := newDemux(id)
	if err != nil {
		return nil, err
	}
	return &Sched{
		id:         id,
		schedNum:   schedNum,
		demux:      d,
		park:       make(chan parkMsg),
		waitBudget: noDeadline,
		done:       make(chan struct{}),
		debug:      debug,
	}, nil
}

// ID returns the scheduler's id (0..N-1).
func (s *Sched) ID() int { return int(s.id) }

// Go submits a task to run as a coroutine on this scheduler. Thread-safe.
func (s *Sched) Go(fn func()) {
	if fn == nil {
		return
	}
	s.tasks.addNew(fn)
	s.demux.signal()
}

// addReady enqueues a coroutine ready to resume. Thread-safe.
func (s *Sched) addReady(co *coroutine) {
	s.tasks.addReady(co)
	s.demux.signal()
}

// CPUTime returns the cumulative time this scheduler has spent running
// tasks, in nanoseconds.
func (s *Sched) CPUTime() int64 { return s.cputime.Load() }

// coroutineID maps a control block to its fleet-unique id.
func (s *Sched) coroutineID(co *coroutine) int {
	return s.schedNum*int(co.id-1) + int(s.id)
}

// timeout reports whether the last resume of the current task was
// triggered by timer expiry. Only meaningful from the running task.
func (s *Sched) timeout() bool { return s.timeoutFlag }

// yield returns control from the running task to the scheduler loop.
func (s *Sched) yield(co *coroutine) {
	s.park <- parkMsg{}
	<-co.resume
}

// sleep suspends the current task for at least d.
func (s *Sched) sleep(co *coroutine, d time.Duration) {
	s.addTimer(co, d)
	s.yield(co)
}

// addTimer arms a timer bound to co without yielding; the caller yields
// when ready and the sweep resumes it.
func (s *Sched) addTimer(co *coroutine, d time.Duration) {
	if d < 0 {
		d = 0
	}
	if s.waitBudget > d {
		s.waitBudget = d
	}
	co.timer = s.timers.add(d, co)
	if s.debug {
		pkgLogger().Debug().
			Int("sched", int(s.id)).
			Uint64("co", uint64(co.id)).
			Dur("timeout", d).
			Log("add timer")
	}
}

// addIOTimer is addTimer for waits whose wake path also cleans up a
// demultiplexer registration.
func (s *Sched) addIOTimer(co *coroutine, d time.Duration) {
	s.addTimer(co, d)
}

// addIOEvent installs interest in fd for the current task.
func (s *Sched) addIOEvent(fd int, dir IODir, co *coroutine) bool {
	if s.debug {
		pkgLogger().Debug().
			Int("sched", int(s.id)).
			Uint64("co", uint64(co.id)).
			Int("fd", fd).
			Int("dir", int(dir)).
			Log("add io event")
	}
	if dir == evRead {
		return s.demux.addEvRead(fd, co)
	}
	return s.demux.addEvWrite(fd, co)
}

// delIOEvent removes interest in one direction of fd.
func (s *Sched) delIOEvent(fd int, dir IODir) {
	if dir == evRead {
		s.demux.delEvRead(fd)
	} else {
		s.demux.delEvWrite(fd)
	}
}

// delIOEvents removes both directions of fd.
func (s *Sched) delIOEvents(fd int) {
	s.demux.delEvent(fd)
}

// resume transfers control to co until it parks again. Any pending timer
// is disarmed first; timedOut records why the task woke.
func (s *Sched) resume(co *coroutine, timedOut bool) {
	if co.timer != nil {
		s.timers.del(co.timer)
		co.timer = nil
	}
	s.timeoutFlag = timedOut
	s.running = co

	if s.debug {
		pkgLogger().Debug().
			Int("sched", int(s.id)).
			Uint64("co", uint64(co.id)).
			Bool("timeout", timedOut).
			Log("resume")
	}

	t0 := time.Now()
	if !co.started {
		co.started = true
		co.sched = s
		go s.taskMain(co)
	} else {
		co.resume <- struct{}{}
	}
	msg := <-s.park
	s.cputime.Add(time.Since(t0).Nanoseconds())
	s.running = nil

	if msg.done {
		if s.debug {
			pkgLogger().Debug().
				Int("sched", int(s.id)).
				Uint64("co", uint64(co.id)).
				Log("recycle")
		}
		s.pool.push(co)
	}
}

// taskMain runs on the task's own goroutine, for the task's whole
// lifetime across suspensions.
func (s *Sched) taskMain(co *coroutine) {
	gid := goroutineID()
	currentRegistry.Store(gid, co)
	defer func() {
		currentRegistry.Delete(gid)
		if r := recover(); r != nil {
			pkgLogger().Err().
				Int("sched", int(s.id)).
				Uint64("co", uint64(co.id)).
				Field("panic", r).
				Log("task panicked")
		}
		s.park <- parkMsg{done: true}
	}()
	fn := co.fn
	co.fn = nil
	fn()
}

// loop is the scheduler's thread function.
func (s *Sched) loop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	defer close(s.done)
	defer s.demux.close()

	var (
		newQ    []func()
		readyQ  []*coroutine
		expired []*timerEntry
	)

	for !s.stopFlag.Load() {
		// New and ready tasks, FIFO per drain pass.
		newQ, readyQ = s.tasks.drain(newQ[:0], readyQ[:0])
		for i, fn := range newQ {
			co := s.pool.pop()
			co.fn = fn
			s.resume(co, false)
			newQ[i] = nil
		}
		for i, co := range readyQ {
			s.resume(co, false)
			readyQ[i] = nil
		}

		// Readiness events.
		n, err := s.demux.wait(s.waitBudget)
		if err != nil {
			logPollError(s.id, err)
			continue
		}
		for i := 0; i < n; i++ {
			fd, readable, writable := s.demux.event(i)
			if s.demux.isWake(fd) {
				s.demux.handleWake()
				continue
			}
			ctx := sockCtxOf(fd)
			if readable {
				if w, ok := ctx.evReadFor(s.id); ok {
					s.resumeWaiter(w)
				}
			}
			if writable {
				if w, ok := ctx.evWriteFor(s.id); ok {
					s.resumeWaiter(w)
				}
			}
		}

		// Timer sweep; winners of the wait->timeout race resume here.
		expired = s.timers.checkTimeout(time.Now(), expired[:0])
		for i, e := range expired {
			co := e.co
			expired[i] = nil
			if co.waitx != nil && !co.waitx.state.CompareAndSwap(stWait, stTimeout) {
				continue // the wake path won; it resumes via the ready queue
			}
			co.timer = nil
			s.resume(co, true)
		}
		s.waitBudget = s.timers.next(time.Now())
	}
}

// resumeWaiter resumes the coroutine identified by a packed socket
// context word, skipping stale identities (terminated and recycled
// between registration and notification).
func (s *Sched) resumeWaiter(w uint64) {
	co := s.pool.byID(evCoID(w))
	if co == nil || uint16(co.gen) != evGen(w) || co == s.running {
		return
	}
	s.resume(co, false)
}

// start launches the scheduler thread.
func (s *Sched) start() {
	go s.loop()
}

// stop signals the loop and waits for it to acknowledge shutdown.
func (s *Sched) stop() {
	if s.stopFlag.CompareAndSwap(false, true) {
		s.demux.signal()
	}
	<-s.done
}
