package server

import (
	"context"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// monitorConnection cancels a running handler when the peer hangs up. It
// polls the socket without reading, so pipelined requests stay buffered in
// the kernel. Sources without a file descriptor just wait for ctx.
func monitorConnection(ctx context.Context, conn net.Conn, cancel context.CancelFunc, halfClose bool, done chan struct{}) {
	defer close(done)

	sc, ok := conn.(syscall.Conn)
	if !ok {
		<-ctx.Done()
		return
	}
	rawConn, err := sc.SyscallConn()
	if err != nil {
		<-ctx.Done()
		return
	}

	var fd int
	if err := rawConn.Control(func(fdPtr uintptr) {
		fd = int(fdPtr)
	}); err != nil {
		<-ctx.Done()
		return
	}

	events := int16(unix.POLLHUP | unix.POLLERR)
	if halfClose {
		events |= pollRDHUP
	}
	pollFds := []unix.PollFd{{Fd: int32(fd), Events: events}}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		n, err := unix.Poll(pollFds, 100)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			cancel()
			return
		}
		if n > 0 && pollFds[0].Revents&(events|unix.POLLNVAL) != 0 {
			cancel()
			return
		}
	}
}
