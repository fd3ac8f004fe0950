//go:build windows

package transport

import (
	"fmt"
	"syscall"

	"golang.org/x/sys/windows"
)

// setSocketOptions configures the resolver's UDP socket on Windows. Only
// SO_REUSEADDR is set; Windows has no TCP_NODELAY-equivalent concern for
// this client's infrequent, short-lived TCP fallback connections.
func setSocketOptions(fd uintptr) error {
	if err := windows.SetsockoptInt(windows.Handle(fd), windows.SOL_SOCKET, windows.SO_REUSEADDR, 1); err != nil {
		return fmt.Errorf("failed to set SO_REUSEADDR: %w", err)
	}
	return nil
}

func platformControl(network, address string, c syscall.RawConn) error {
	var sockoptErr error
	err := c.Control(func(fd uintptr) {
		sockoptErr = setSocketOptions(fd)
	})
	if err != nil {
		return fmt.Errorf("raw conn control failed: %w", err)
	}
	return sockoptErr
}

// PlatformControl configures platform socket options for the UDP listen
// socket and the TCP dial.
func PlatformControl(network, address string, c syscall.RawConn) error {
	return platformControl(network, address, c)
}
