// Package profile implements ServerProfile (C8): a small per-server
// behavioral memory recording which recursive servers have been observed
// to reject multi-question messages, so the service-mode planner can
// avoid repeating a doomed composite query.
package profile

import (
	"net/netip"

	"github.com/openthread/dnsclient/internal/protocol"
)

// Profile is a bounded ring of servers known to answer only
// single-question messages. Capacity matches
// protocol.LimitedQueryServersArraySize; the oldest entry is displaced
// once full.
type Profile struct {
	servers [protocol.LimitedQueryServersArraySize]netip.Addr
	next    int
	count   int
}

// New returns an empty profile.
func New() *Profile {
	return &Profile{}
}

// RecordLimitedToSingleQuestion records addr as accepting only
// single-question messages. Called from exactly one place: the
// FormatError branch of response processing, per the original's
// RecordServerAsLimitedToSingleQuestion — never from unrelated failures
// like timeouts or NXDOMAIN.
func (p *Profile) RecordLimitedToSingleQuestion(addr netip.Addr) {
	if p.IsLimited(addr) {
		return
	}
	p.servers[p.next] = addr
	p.next = (p.next + 1) % len(p.servers)
	if p.count < len(p.servers) {
		p.count++
	}
}

// IsLimited reports whether addr has previously been recorded as
// single-question-only.
func (p *Profile) IsLimited(addr netip.Addr) bool {
	for i := 0; i < p.count; i++ {
		if p.servers[i] == addr {
			return true
		}
	}
	return false
}
