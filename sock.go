// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux || darwin || freebsd || openbsd

package cosched

import (
	"time"

	"golang.org/x/sys/unix"
)

// Socket operations on raw fds. Sockets are created non-blocking and
// close-on-exec; every would-block suspends the calling coroutine on its
// scheduler's demultiplexer instead of blocking the thread. EINTR is
// retried transparently. A negative timeout waits forever.
//
// The data-path operations (Accept, Connect, Recv*, Send*) must be called
// from a coroutine and panic otherwise.

// Socket creates a non-blocking, close-on-exec socket.
func Socket(domain, typ, proto int) (int, error) {
	return sysSocket(domain, typ, proto)
}

// TCPSocket creates a non-blocking TCP socket; domain defaults to
// unix.AF_INET.
func TCPSocket(domain ...int) (int, error) {
	d := unix.AF_INET
	if len(domain) > 0 {
		d = domain[0]
	}
	return sysSocket(d, unix.SOCK_STREAM, 0)
}

// UDPSocket creates a non-blocking UDP socket; domain defaults to
// unix.AF_INET.
func UDPSocket(domain ...int) (int, error) {
	d := unix.AF_INET
	if len(domain) > 0 {
		d = domain[0]
	}
	return sysSocket(d, unix.SOCK_DGRAM, 0)
}

// Bind binds fd to addr.
func Bind(fd int, addr unix.Sockaddr) error {
	return unix.Bind(fd, addr)
}

// Listen marks fd as a listening socket.
func Listen(fd int, backlog int) error {
	return unix.Listen(fd, backlog)
}

// Accept accepts a connection, suspending until one is pending. The
// returned fd is non-blocking and close-on-exec.
func Accept(fd int) (int, unix.Sockaddr, error) {
	mustCurrent()
	ev := NewIOEvent(fd, EvRead)
	defer ev.Close()
	for {
		nfd, sa, err := sysAccept(fd)
		if err == nil {
			return nfd, sa, nil
		}
		if wouldBlock(err) {
			if werr := ev.Wait(-1); werr != nil {
				return -1, nil, werr
			}
		} else if !temporary(err) {
			return -1, nil, err
		}
	}
}

// Connect connects fd to addr, suspending until the connection completes,
// fails, or the timeout elapses. Completion is verified via SO_ERROR.
func Connect(fd int, addr unix.Sockaddr, timeout time.Duration) error {
	mustCurrent()
	for {
		err := unix.Connect(fd, addr)
		if err == nil {
			return nil
		}
		if err == unix.EINPROGRESS {
			ev := NewIOEvent(fd, EvWrite)
			werr := ev.Wait(timeout)
			ev.Close()
			if werr != nil {
				return werr
			}
			soerr, gerr := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
			if gerr != nil {
				return gerr
			}
			if soerr == 0 {
				return nil
			}
			return unix.Errno(soerr)
		}
		if !temporary(err) {
			return err
		}
	}
}

// Recv reads up to len(buf) bytes. Returns 0, nil when the peer closed.
func Recv(fd int, buf []byte, timeout time.Duration) (int, error) {
	mustCurrent()
	ev := NewIOEvent(fd, EvRead)
	defer ev.Close()
	for {
		n, err := unix.Read(fd, buf)
		if err == nil {
			return n, nil
		}
		if wouldBlock(err) {
			if werr := ev.Wait(timeout); werr != nil {
				return -1, werr
			}
		} else if !temporary(err) {
			return -1, err
		}
	}
}

// RecvN reads exactly len(buf) bytes, looping on short reads, unless the
// peer closes (returns 0) or an error or timeout occurs. RecvN with an
// empty buffer returns 0 without touching the socket.
func RecvN(fd int, buf []byte, timeout time.Duration) (int, error) {
	mustCurrent()
	if len(buf) == 0 {
		return 0, nil
	}
	total := len(buf)
	ev := NewIOEvent(fd, EvRead)
	defer ev.Close()
	for {
		n, err := unix.Read(fd, buf)
		switch {
		case err == nil && n == len(buf):
			return total, nil
		case err == nil && n == 0:
			return 0, nil // peer closed
		case err == nil:
			buf = buf[n:]
		case wouldBlock(err):
			if werr := ev.Wait(timeout); werr != nil {
				return -1, werr
			}
		case !temporary(err):
			return -1, err
		}
	}
}

// RecvFrom reads one datagram, returning the source address.
func RecvFrom(fd int, buf []byte, timeout time.Duration) (int, unix.Sockaddr, error) {
	mustCurrent()
	ev := NewIOEvent(fd, EvRead)
	defer ev.Close()
	for {
		n, sa, err := unix.Recvfrom(fd, buf, 0)
		if err == nil {
			return n, sa, nil
		}
		if wouldBlock(err) {
			if werr := ev.Wait(timeout); werr != nil {
				return -1, nil, werr
			}
		} else if !temporary(err) {
			return -1, nil, err
		}
	}
}

// Send writes all of buf, looping on short writes.
func Send(fd int, buf []byte, timeout time.Duration) (int, error) {
	mustCurrent()
	total := len(buf)
	ev := NewIOEvent(fd, EvWrite)
	defer ev.Close()
	for {
		n, err := unix.Write(fd, buf)
		switch {
		case err == nil && n == len(buf):
			return total, nil
		case err == nil:
			buf = buf[n:]
		case wouldBlock(err):
			if werr := ev.Wait(timeout); werr != nil {
				return -1, werr
			}
		case !temporary(err):
			return -1, err
		}
	}
}

// SendTo writes one datagram to addr.
func SendTo(fd int, buf []byte, addr unix.Sockaddr, timeout time.Duration) (int, error) {
	mustCurrent()
	ev := NewIOEvent(fd, EvWrite)
	defer ev.Close()
	for {
		err := unix.Sendto(fd, buf, 0, addr)
		if err == nil {
			return len(buf), nil
		}
		if wouldBlock(err) {
			if werr := ev.Wait(timeout); werr != nil {
				return -1, werr
			}
		} else if !temporary(err) {
			return -1, err
		}
	}
}

// Close closes fd, clearing its event registrations and socket context.
// Inside a coroutine a positive delay sleeps in the caller first (a
// graceful-close aid: give the peer a beat to drain). A coroutine still
// waiting on fd is not woken by the close: its wait ends when its timeout
// elapses, and a wait without a timeout does not end.
func Close(fd int, delay time.Duration) error {
	if fd < 0 {
		return nil
	}
	if co := current(); co != nil {
		co.sched.delIOEvents(fd)
		if delay > 0 {
			co.sched.sleep(co, delay)
		}
	} else if fd < maxSockFD {
		sockCtxOf(fd).delEvent()
	}
	return unix.Close(fd)
}

// Shutdown shuts down fd in the given direction: 'r' (read), 'w'
// (write), or 'b' (both), dropping the corresponding event registrations.
func Shutdown(fd int, how byte) error {
	if fd < 0 {
		return nil
	}
	co := current()
	tracked := fd < maxSockFD
	var dir int
	switch how {
	case 'r':
		if co != nil {
			co.sched.delIOEvent(fd, evRead)
		} else if tracked {
			sockCtxOf(fd).delEvRead()
		}
		dir = unix.SHUT_RD
	case 'w':
		if co != nil {
			co.sched.delIOEvent(fd, evWrite)
		} else if tracked {
			sockCtxOf(fd).delEvWrite()
		}
		dir = unix.SHUT_WR
	default:
		if co != nil {
			co.sched.delIOEvents(fd)
		} else if tracked {
			sockCtxOf(fd).delEvent()
		}
		dir = unix.SHUT_RDWR
	}
	return unix.Shutdown(fd, dir)
}

// ResetTCPSocket closes fd with an RST instead of the orderly shutdown
// (SO_LINGER with a zero timeout).
func ResetTCPSocket(fd int, delay time.Duration) error {
	_ = unix.SetsockoptLinger(fd, unix.SOL_SOCKET, unix.SO_LINGER, &unix.Linger{Onoff: 1, Linger: 0})
	return Close(fd, delay)
}
