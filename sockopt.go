// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux || darwin || freebsd || openbsd

package cosched

import "golang.org/x/sys/unix"

// SetNonblock marks fd non-blocking.
func SetNonblock(fd int) error {
	return unix.SetNonblock(fd, true)
}

// SetCloexec marks fd close-on-exec.
func SetCloexec(fd int) error {
	flags, err := unix.FcntlInt(uintptr(fd), unix.F_GETFD, 0)
	if err != nil {
		return err
	}
	_, err = unix.FcntlInt(uintptr(fd), unix.F_SETFD, flags|unix.FD_CLOEXEC)
	return err
}

// SetTCPNoDelay toggles TCP_NODELAY.
func SetTCPNoDelay(fd int, on bool) error {
	return unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, boolInt(on))
}

// SetTCPKeepAlive toggles SO_KEEPALIVE.
func SetTCPKeepAlive(fd int, on bool) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, boolInt(on))
}

// SetReuseAddr sets SO_REUSEADDR.
func SetReuseAddr(fd int) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1)
}

// SetSendBufferSize sets SO_SNDBUF.
func SetSendBufferSize(fd int, n int) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, n)
}

// SetRecvBufferSize sets SO_RCVBUF.
func SetRecvBufferSize(fd int, n int) error {
	return unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, n)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
