//go:build !linux

package server

// pollRDHUP is Linux-specific; elsewhere half-closes are not detected.
const pollRDHUP = 0
