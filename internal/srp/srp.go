// Package srp defines the SRP (service-registration) sibling module
// collaborator (out of scope per spec §1/§6, specified only by its
// interface here). Under the client's "auto server address" mode, the
// SRP client's currently selected server supplies the default DNS server
// address unless the caller has explicitly set one.
package srp

import "net/netip"

// ServerSource reports the server currently selected by the SRP client,
// if any.
type ServerSource interface {
	// SelectedServer returns the SRP client's current server address and
	// true, or false if no SRP server is currently selected.
	SelectedServer() (netip.AddrPort, bool)
}
