// Copyright 2026 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

//go:build linux || darwin || freebsd || openbsd

package cosched

import (
	"bytes"
	"os"
	"testing"
	"time"

	"golang.org/x/sys/unix"
)

var loopback = [4]byte{127, 0, 0, 1}

// listenTCP binds a listening socket on an ephemeral loopback port.
// Socket creation and listen do not suspend, so this is callable from the
// test goroutine directly.
func listenTCP(t *testing.T) (fd, port int) {
	t.Helper()
	fd, err := TCPSocket()
	if err != nil {
		t.Fatalf("TCPSocket: %v", err)
	}
	if err := SetReuseAddr(fd); err != nil {
		t.Fatalf("SetReuseAddr: %v", err)
	}
	if err := Bind(fd, &unix.SockaddrInet4{Addr: loopback}); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	if err := Listen(fd, 8); err != nil {
		t.Fatalf("Listen: %v", err)
	}
	sa, err := unix.Getsockname(fd)
	if err != nil {
		t.Fatalf("Getsockname: %v", err)
	}
	return fd, sa.(*unix.SockaddrInet4).Port
}

// TCP echo across the runtime: the server accepts and echoes 1024 bytes,
// the client sends and reads them all back, and both sockets leave no
// residue in the socket context table.
func TestTCPEcho(t *testing.T) {
	lfd, port := listenTCP(t)

	const size = 1024
	payload := bytes.Repeat([]byte{'x'}, size)

	wg := NewWaitGroup()
	wg.Add(2)

	var serverFD, clientFD int

	Go(func() {
		defer wg.Done()
		cfd, _, err := Accept(lfd)
		if err != nil {
			t.Errorf("Accept: %v", err)
			return
		}
		serverFD = cfd
		defer Close(cfd, 0)

		buf := make([]byte, size)
		n, err := RecvN(cfd, buf, 5*time.Second)
		if err != nil || n != size {
			t.Errorf("server RecvN: n=%d err=%v", n, err)
			return
		}
		if _, err := Send(cfd, buf, 5*time.Second); err != nil {
			t.Errorf("server Send: %v", err)
		}
	})

	Go(func() {
		defer wg.Done()
		fd, err := TCPSocket()
		if err != nil {
			t.Errorf("TCPSocket: %v", err)
			return
		}
		clientFD = fd
		defer Close(fd, 0)

		addr := &unix.SockaddrInet4{Addr: loopback, Port: port}
		if err := Connect(fd, addr, 3*time.Second); err != nil {
			t.Errorf("Connect: %v", err)
			return
		}
		if err := SetTCPNoDelay(fd, true); err != nil {
			t.Errorf("SetTCPNoDelay: %v", err)
		}
		if _, err := Send(fd, payload, 3*time.Second); err != nil {
			t.Errorf("client Send: %v", err)
			return
		}
		got := make([]byte, size)
		n, err := RecvN(fd, got, 3*time.Second)
		if err != nil || n != size {
			t.Errorf("client RecvN: n=%d err=%v", n, err)
			return
		}
		if !bytes.Equal(got, payload) {
			t.Error("echoed bytes differ from the payload")
		}
	})

	wg.Wait()
	Close(lfd, 0)

	// No fd leaks: the socket context entries are cleared.
	for _, fd := range []int{serverFD, clientFD, lfd} {
		if fd > 0 && sockCtxOf(fd).hasEvent() {
			t.Errorf("socket context for fd %d not cleared", fd)
		}
	}
}

func TestRecvTimeout(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("Socketpair: %v", err)
	}
	for _, fd := range fds {
		if err := SetNonblock(fd); err != nil {
			t.Fatalf("SetNonblock: %v", err)
		}
	}
	defer unix.Close(fds[1])

	wg := NewWaitGroup()
	wg.Add(1)
	Go(func() {
		defer wg.Done()
		defer Close(fds[0], 0)

		buf := make([]byte, 16)
		start := time.Now()
		n, err := Recv(fds[0], buf, 50*time.Millisecond)
		elapsed := time.Since(start)

		if n != -1 || err == nil {
			t.Errorf("Recv on a silent socket: n=%d err=%v", n, err)
			return
		}
		if !os.IsTimeout(err) {
			t.Errorf("timeout error does not satisfy os.IsTimeout: %v", err)
		}
		if elapsed < 50*time.Millisecond {
			t.Errorf("Recv returned after %v, before the deadline", elapsed)
		}
	})
	wg.Wait()
}

func TestRecvNZeroLength(t *testing.T) {
	wg := NewWaitGroup()
	wg.Add(1)
	Go(func() {
		defer wg.Done()
		// fd is never touched for a zero-length read.
		n, err := RecvN(-1, nil, time.Second)
		if n != 0 || err != nil {
			t.Errorf("RecvN(len=0): n=%d err=%v", n, err)
		}
	})
	wg.Wait()
}

func TestRecvPeerClosed(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("Socketpair: %v", err)
	}
	for _, fd := range fds {
		if err := SetNonblock(fd); err != nil {
			t.Fatalf("SetNonblock: %v", err)
		}
	}

	wg := NewWaitGroup()
	wg.Add(1)
	Go(func() {
		defer wg.Done()
		defer Close(fds[0], 0)

		buf := make([]byte, 16)
		n, err := Recv(fds[0], buf, time.Second)
		if n != 0 || err != nil {
			t.Errorf("Recv after peer close: n=%d err=%v, want 0, nil", n, err)
		}
	})

	time.Sleep(10 * time.Millisecond)
	unix.Close(fds[1])
	wg.Wait()
}

func TestUDPRoundTrip(t *testing.T) {
	afd, err := UDPSocket()
	if err != nil {
		t.Fatalf("UDPSocket: %v", err)
	}
	if err := Bind(afd, &unix.SockaddrInet4{Addr: loopback}); err != nil {
		t.Fatalf("Bind: %v", err)
	}
	sa, err := unix.Getsockname(afd)
	if err != nil {
		t.Fatalf("Getsockname: %v", err)
	}
	port := sa.(*unix.SockaddrInet4).Port

	wg := NewWaitGroup()
	wg.Add(2)

	Go(func() {
		defer wg.Done()
		defer Close(afd, 0)
		buf := make([]byte, 64)
		n, from, err := RecvFrom(afd, buf, 3*time.Second)
		if err != nil {
			t.Errorf("RecvFrom: %v", err)
			return
		}
		if _, err := SendTo(afd, buf[:n], from, 3*time.Second); err != nil {
			t.Errorf("SendTo: %v", err)
		}
	})

	Go(func() {
		defer wg.Done()
		fd, err := UDPSocket()
		if err != nil {
			t.Errorf("UDPSocket: %v", err)
			return
		}
		defer Close(fd, 0)
		addr := &unix.SockaddrInet4{Addr: loopback, Port: port}
		if _, err := SendTo(fd, []byte("ping"), addr, 3*time.Second); err != nil {
			t.Errorf("SendTo: %v", err)
			return
		}
		buf := make([]byte, 64)
		n, _, err := RecvFrom(fd, buf, 3*time.Second)
		if err != nil || string(buf[:n]) != "ping" {
			t.Errorf("RecvFrom: n=%d err=%v", n, err)
		}
	})

	wg.Wait()
}

func TestConnectRefused(t *testing.T) {
	// Bind to grab a port, then close so nothing listens on it.
	lfd, port := listenTCP(t)
	Close(lfd, 0)

	wg := NewWaitGroup()
	wg.Add(1)
	Go(func() {
		defer wg.Done()
		fd, err := TCPSocket()
		if err != nil {
			t.Errorf("TCPSocket: %v", err)
			return
		}
		defer Close(fd, 0)
		addr := &unix.SockaddrInet4{Addr: loopback, Port: port}
		if err := Connect(fd, addr, 2*time.Second); err == nil {
			t.Error("Connect to a dead port succeeded")
		}
	})
	wg.Wait()
}

func TestShutdownWrite(t *testing.T) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		t.Fatalf("Socketpair: %v", err)
	}
	for _, fd := range fds {
		if err := SetNonblock(fd); err != nil {
			t.Fatalf("SetNonblock: %v", err)
		}
	}

	wg := NewWaitGroup()
	wg.Add(1)
	Go(func() {
		defer wg.Done()
		defer Close(fds[0], 0)
		defer Close(fds[1], 0)

		if _, err := Send(fds[1], []byte("bye"), time.Second); err != nil {
			t.Errorf("Send: %v", err)
			return
		}
		if err := Shutdown(fds[1], 'w'); err != nil {
			t.Errorf("Shutdown: %v", err)
			return
		}
		buf := make([]byte, 16)
		n, err := Recv(fds[0], buf, time.Second)
		if err != nil || string(buf[:n]) != "bye" {
			t.Errorf("Recv: n=%d err=%v", n, err)
			return
		}
		// Write side closed: the reader now sees EOF.
		n, err = Recv(fds[0], buf, time.Second)
		if n != 0 || err != nil {
			t.Errorf("Recv after shutdown: n=%d err=%v, want 0, nil", n, err)
		}
	})
	wg.Wait()
}

// Close with a positive delay waits in the calling coroutine first.
func TestCloseDelay(t *testing.T) {
	fd, err := TCPSocket()
	if err != nil {
		t.Fatalf("TCPSocket: %v", err)
	}

	wg := NewWaitGroup()
	wg.Add(1)
	Go(func() {
		defer wg.Done()
		start := time.Now()
		if err := Close(fd, 30*time.Millisecond); err != nil {
			t.Errorf("Close: %v", err)
		}
		if elapsed := time.Since(start); elapsed < 30*time.Millisecond {
			t.Errorf("Close returned after %v, before the delay", elapsed)
		}
	})
	wg.Wait()
}
