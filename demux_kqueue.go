// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build darwin || freebsd || openbsd

package cosched

import (
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// demux wraps one kqueue instance per scheduler. Read and write are
// independent kevents keyed by fd; a self-pipe implements the wakeup.
type demux struct {
	schedID   int32
	kq        int
	wakeRead  int
	wakeWrite int
	signaled  atomic.Uint32
	events    [1024]unix.Kevent_t
}

func newDemux(schedID int32) (*demux, error) {
	kq, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	unix.CloseOnExec(kq)

	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		_ = unix.Close(kq)
		return nil, err
	}
	for _, fd := range fds {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			_ = unix.Close(kq)
			_ = unix.Close(fds[0])
			_ = unix.Close(fds[1])
			return nil, err
		}
	}

	d := &demux{schedID: schedID, kq: kq, wakeRead: fds[0], wakeWrite: fds[1]}
	kev := []unix.Kevent_t{{
		Ident:  uint64(fds[0]),
		Filter: unix.EVFILT_READ,
		Flags:  unix.EV_ADD | unix.EV_ENABLE,
	}}
	if _, err := unix.Kevent(kq, kev, nil, nil); err != nil {
		d.close()
		return nil, err
	}
	return d, nil
}

func (d *demux) close() {
	if d.kq >= 0 {
		_ = unix.Close(d.kq)
		d.kq = -1
	}
	if d.wakeRead >= 0 {
		_ = unix.Close(d.wakeRead)
		d.wakeRead = -1
	}
	if d.wakeWrite >= 0 {
		_ = unix.Close(d.wakeWrite)
		d.wakeWrite = -1
	}
}

func (d *demux) ctl(fd int, filter int16, flags uint16) error {
	kev := []unix.Kevent_t{{
		Ident:  uint64(fd),
		Filter: filter,
		Flags:  flags,
	}}
	_, err := unix.Kevent(d.kq, kev, nil, nil)
	return err
}

func (d *demux) addEvRead(fd int, co *coroutine) bool {
	if fd < 0 || fd >= maxSockFD {
		return false
	}
	ctx := sockCtxOf(fd)
	if ctx.hasEvRead() {
		return true
	}
	if err := d.ctl(fd, unix.EVFILT_READ, unix.EV_ADD|unix.EV_ENABLE); err != nil {
		logRegistrationError("kqueue_add_read", d.schedID, fd, err)
		return false
	}
	ctx.addEvRead(d.schedID, co)
	return true
}

func (d *demux) addEvWrite(fd int, co *coroutine) bool {
	if fd < 0 || fd >= maxSockFD {
		return false
	}
	ctx := sockCtxOf(fd)
	if ctx.hasEvWrite() {
		return true
	}
	if err := d.ctl(fd, unix.EVFILT_WRITE, unix.EV_ADD|unix.EV_ENABLE); err != nil {
		logRegistrationError("kqueue_add_write", d.schedID, fd, err)
		return false
	}
	ctx.addEvWrite(d.schedID, co)
	return true
}

func (d *demux) delEvRead(fd int) {
	if fd < 0 || fd >= maxSockFD {
		return
	}
	ctx := sockCtxOf(fd)
	if !ctx.hasEvRead() {
		return
	}
	ctx.delEvRead()
	if err := d.ctl(fd, unix.EVFILT_READ, unix.EV_DELETE); err != nil && err != unix.ENOENT {
		logRegistrationError("kqueue_del_read", d.schedID, fd, err)
	}
}

func (d *demux) delEvWrite(fd int) {
	if fd < 0 || fd >= maxSockFD {
		return
	}
	ctx := sockCtxOf(fd)
	if !ctx.hasEvWrite() {
		return
	}
	ctx.delEvWrite()
	if err := d.ctl(fd, unix.EVFILT_WRITE, unix.EV_DELETE); err != nil && err != unix.ENOENT {
		logRegistrationError("kqueue_del_write", d.schedID, fd, err)
	}
}

func (d *demux) delEvent(fd int) {
	if fd < 0 || fd >= maxSockFD {
		return
	}
	ctx := sockCtxOf(fd)
	if !ctx.hasEvent() {
		return
	}
	ctx.delEvent()
	_ = d.ctl(fd, unix.EVFILT_READ, unix.EV_DELETE)
	_ = d.ctl(fd, unix.EVFILT_WRITE, unix.EV_DELETE)
}

func (d *demux) wait(budget time.Duration) (int, error) {
	var ts *unix.Timespec
	if budget >= 0 {
		t := unix.NsecToTimespec(int64(budget))
		ts = &t
	}
	n, err := unix.Kevent(d.kq, nil, d.events[:], ts)
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}

func (d *demux) event(i int) (fd int, readable, writable bool) {
	ev := &d.events[i]
	fd = int(ev.Ident)
	readable = ev.Filter == unix.EVFILT_READ
	writable = ev.Filter == unix.EVFILT_WRITE
	return
}

func (d *demux) isWake(fd int) bool { return fd == d.wakeRead }

// signal wakes the owning scheduler out of wait. Collapsing: bursts
// produce at most one pipe write until the wake is consumed.
func (d *demux) signal() {
	if !d.signaled.CompareAndSwap(0, 1) {
		return
	}
	buf := [1]byte{'x'}
	_, _ = unix.Write(d.wakeWrite, buf[:])
}

func (d *demux) handleWake() {
	var buf [64]byte
	for {
		if _, err := unix.Read(d.wakeRead, buf[:]); err != nil {
			break
		}
	}
	d.signaled.Store(0)
}
