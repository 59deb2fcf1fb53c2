//go:build linux

package server

import "golang.org/x/sys/unix"

// pollRDHUP reports a peer that shut down its write side.
const pollRDHUP = unix.POLLRDHUP
