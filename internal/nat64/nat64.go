// Package nat64 defines the NAT64 prefix provider collaborator (out of
// scope per spec §1/§6, specified only by its interface here) and the
// RFC 6052 address synthesis the resolver performs once a prefix is
// available.
package nat64

import "net/netip"

// PrefixProvider supplies the NAT64 /96 prefix currently in effect, if
// any. A real implementation is typically backed by a border router's
// discovered prefix; this module only consumes it.
type PrefixProvider interface {
	// Prefix returns the current NAT64 prefix and true, or false if none
	// is configured.
	Prefix() (netip.Prefix, bool)
}

// StaticProvider is a PrefixProvider holding one fixed prefix, useful for
// tests and for callers that configure NAT64 out of band.
type StaticProvider struct {
	prefix netip.Prefix
	set    bool
}

// NewStaticProvider returns a PrefixProvider that always reports prefix.
func NewStaticProvider(prefix netip.Prefix) *StaticProvider {
	return &StaticProvider{prefix: prefix, set: true}
}

// Prefix implements PrefixProvider.
func (s *StaticProvider) Prefix() (netip.Prefix, bool) {
	if s == nil || !s.set {
		return netip.Prefix{}, false
	}
	return s.prefix, true
}

// Synthesize constructs an IPv6 address from an IPv4 address and a /96
// NAT64 prefix per RFC 6052 §2.2: the IPv4 address occupies the last 32
// bits of the 128-bit result.
func Synthesize(prefix netip.Prefix, v4 netip.Addr) (netip.Addr, bool) {
	if prefix.Bits() != 96 || !v4.Is4() {
		return netip.Addr{}, false
	}
	base := prefix.Addr().As16()
	v4b := v4.As4()
	copy(base[12:], v4b[:])
	return netip.AddrFrom16(base), true
}
