// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux

package cosched

import (
	"encoding/binary"
	"sync/atomic"
	"time"

	"golang.org/x/sys/unix"
)

// demux wraps one epoll instance per scheduler, in edge-triggered mode,
// plus an eventfd for cross-thread wakeups. A socket may have independent
// read and write waiters; a single kernel registration covers whichever
// directions this scheduler waits on, and the socket context table
// resolves events back to coroutines.
type demux struct {
	schedID  int32
	epfd     int
	wakeFD   int
	signaled atomic.Uint32
	events   [1024]unix.EpollEvent
}

func newDemux(schedID int32) (*demux, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	wakeFD, err := unix.Eventfd(0, unix.EFD_CLOEXEC|unix.EFD_NONBLOCK)
	if err != nil {
		_ = unix.Close(epfd)
		return nil, err
	}
	d := &demux{schedID: schedID, epfd: epfd, wakeFD: wakeFD}
	ev := unix.EpollEvent{Events: unix.EPOLLIN, Fd: int32(wakeFD)}
	if err := unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, wakeFD, &ev); err != nil {
		d.close()
		return nil, err
	}
	return d, nil
}

func (d *demux) close() {
	if d.epfd >= 0 {
		_ = unix.Close(d.epfd)
		d.epfd = -1
	}
	if d.wakeFD >= 0 {
		_ = unix.Close(d.wakeFD)
		d.wakeFD = -1
	}
}

// addEvRead installs read interest in fd for co. Reports false if the
// kernel refused the registration.
func (d *demux) addEvRead(fd int, co *coroutine) bool {
	if fd < 0 || fd >= maxSockFD {
		return false
	}
	ctx := sockCtxOf(fd)
	if ctx.hasEvRead() {
		return true // already registered
	}

	hasWrite := ctx.hasEvWriteFor(d.schedID)
	ev := unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLET, Fd: int32(fd)}
	op := unix.EPOLL_CTL_ADD
	if hasWrite {
		ev.Events |= unix.EPOLLOUT
		op = unix.EPOLL_CTL_MOD
	}

	if err := unix.EpollCtl(d.epfd, op, fd, &ev); err != nil {
		logRegistrationError("epoll_add_read", d.schedID, fd, err)
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

	hasRead := ctx.hasEvReadFor(d.schedID)
	ev := unix.EpollEvent{Events: unix.EPOLLOUT | unix.EPOLLET, Fd: int32(fd)}
	op := unix.EPOLL_CTL_ADD
	if hasRead {
		ev.Events |= unix.EPOLLIN
		op = unix.EPOLL_CTL_MOD
	}

	if err := unix.EpollCtl(d.epfd, op, fd, &ev); err != nil {
		logRegistrationError("epoll_add_write", d.schedID, fd, err)
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

	var err error
	if ctx.hasEvWriteFor(d.schedID) {
		ev := unix.EpollEvent{Events: unix.EPOLLOUT | unix.EPOLLET, Fd: int32(fd)}
		err = unix.EpollCtl(d.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
	} else {
		err = unix.EpollCtl(d.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	}
	if err != nil && err != unix.ENOENT {
		logRegistrationError("epoll_del_read", d.schedID, fd, err)
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

	var err error
	if ctx.hasEvReadFor(d.schedID) {
		ev := unix.EpollEvent{Events: unix.EPOLLIN | unix.EPOLLET, Fd: int32(fd)}
		err = unix.EpollCtl(d.epfd, unix.EPOLL_CTL_MOD, fd, &ev)
	} else {
		err = unix.EpollCtl(d.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	}
	if err != nil && err != unix.ENOENT {
		logRegistrationError("epoll_del_write", d.schedID, fd, err)
	}
}

// delEvent removes both directions and the kernel registration.
func (d *demux) delEvent(fd int) {
	if fd < 0 || fd >= maxSockFD {
		return
	}
	ctx := sockCtxOf(fd)
	if !ctx.hasEvent() {
		return
	}
	ctx.delEvent()
	if err := unix.EpollCtl(d.epfd, unix.EPOLL_CTL_DEL, fd, nil); err != nil && err != unix.ENOENT {
		logRegistrationError("epoll_del", d.schedID, fd, err)
	}
}

// wait blocks for readiness events up to the given budget. EINTR is
// swallowed (returns 0 events).
func (d *demux) wait(budget time.Duration) (int, error) {
	n, err := unix.EpollWait(d.epfd, d.events[:], budgetMS(budget))
	if err != nil {
		if err == unix.EINTR {
			return 0, nil
		}
		return 0, err
	}
	return n, nil
}

// event decodes the i-th readiness event.
func (d *demux) event(i int) (fd int, readable, writable bool) {
	ev := &d.events[i]
	fd = int(ev.Fd)
	readable = ev.Events&(unix.EPOLLIN|unix.EPOLLERR|unix.EPOLLHUP) != 0
	writable = ev.Events&(unix.EPOLLOUT|unix.EPOLLERR|unix.EPOLLHUP) != 0
	return
}

func (d *demux) isWake(fd int) bool { return fd == d.wakeFD }

// signal wakes the owning scheduler out of wait. Collapsing: bursts
// produce at most one eventfd write until the wake is consumed.
func (d *demux) signal() {
	if !d.signaled.CompareAndSwap(0, 1) {
		return
	}
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	_, _ = unix.Write(d.wakeFD, buf[:])
}

// handleWake drains the eventfd and re-arms the signal.
func (d *demux) handleWake() {
	var buf [8]byte
	for {
		if _, err := unix.Read(d.wakeFD, buf[:]); err != nil {
			break
		}
	}
	d.signaled.Store(0)
}

// budgetMS converts a poll budget to whole epoll milliseconds, truncating,
// except that a sub-millisecond deadline rounds up to 1ms so it does not
// spin.
func budgetMS(d time.Duration) int {
	if d < 0 {
		return -1
	}
	if d > 0 && d < time.Millisecond {
		return 1
	}
	ms := int64(d / time.Millisecond)
	const maxWait = 1 << 30
	if ms > maxWait {
		return maxWait
	}
	return int(ms)
}
