//go:build linux

package transport

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// setSocketOptions configures the resolver's sockets on Linux: SO_REUSEADDR
// so a client can rebind its ephemeral port promptly across restarts, and
// TCP_NODELAY on the TCP fallback endpoint so the 2-byte length-prefixed
// DNS frame isn't held by Nagle's algorithm.
func setSocketOptions(fd uintptr) error {
	if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fmt.Errorf("failed to set SO_REUSEADDR: %w", err)
	}
	if err := unix.SetsockoptInt(int(fd), unix.IPPROTO_TCP, unix.TCP_NODELAY, 1); err != nil && err != unix.ENOPROTOOPT {
		return fmt.Errorf("failed to set TCP_NODELAY: %w", err)
	}
	return nil
}

func platformControl(_, _ string, c syscall.RawConn) error {
	var sockoptErr error
	err := c.Control(func(fd uintptr) {
		sockoptErr = setSocketOptions(fd)
	})
	if err != nil {
		return fmt.Errorf("raw conn control failed: %w", err)
	}
	return sockoptErr
}

// PlatformControl configures platform socket options for both the UDP
// listen socket and the TCP dial; a TCP-only option failing on the UDP
// socket (or vice versa) is tolerated since ENOPROTOOPT is not treated
// as fatal for the option it doesn't apply to.
func PlatformControl(network, address string, c syscall.RawConn) error {
	return platformControl(network, address, c)
}
