package dnsclient

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"sync/atomic"
	"testing"
	"time"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openthread/dnsclient/internal/dnserr"
	"github.com/openthread/dnsclient/internal/nat64"
	"github.com/openthread/dnsclient/internal/protocol"
	"github.com/openthread/dnsclient/internal/query"
)

// startTestServer spins up a miekg/dns server on an ephemeral IPv6
// loopback UDP port running handler, shut down automatically at test end.
// Mirrors the test-server pattern used elsewhere in the DNS library
// ecosystem for exercising a resolver against a real socket rather than a
// hand-rolled transport mock.
func startTestServer(t *testing.T, handler dns.HandlerFunc) netip.AddrPort {
	t.Helper()

	pc, err := net.ListenPacket("udp6", "[::1]:0")
	require.NoError(t, err)

	srv := &dns.Server{PacketConn: pc, Handler: handler}
	started := make(chan error, 1)
	go func() { started <- srv.ActivateAndServe() }()

	t.Cleanup(func() { _ = srv.Shutdown() })

	return netip.MustParseAddrPort(pc.LocalAddr().String())
}

func TestResolveAddress_HappyPath(t *testing.T) {
	addr := startTestServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		rr, err := dns.NewRR(r.Question[0].Name + " 120 IN AAAA 2001:db8::1")
		require.NoError(t, err)
		m.Answer = append(m.Answer, rr)
		_ = w.WriteMsg(m)
	})

	c, err := New(WithServerAddress(addr))
	require.NoError(t, err)
	require.NoError(t, c.Start())
	defer c.Stop()

	done := make(chan struct{})
	err = c.ResolveAddress(context.Background(), "host.example.", nil, func(resp *AddressResponse, err error) {
		defer close(done)
		require.NoError(t, err)
		assert.Equal(t, "host.example.", resp.HostName())
		got, ttl, aerr := resp.Address(0)
		require.NoError(t, aerr)
		assert.Equal(t, netip.MustParseAddr("2001:db8::1"), got)
		assert.EqualValues(t, 120, ttl)
		_, _, aerr = resp.Address(1)
		assert.Error(t, aerr)
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("callback never fired")
	}
}

func TestResolveAddress_Timeout(t *testing.T) {
	// A loopback port nobody is listening on: queries go unanswered and
	// the retransmission budget must exhaust into ResponseTimeout.
	pc, err := net.ListenPacket("udp6", "[::1]:0")
	require.NoError(t, err)
	unusedAddr := netip.MustParseAddrPort(pc.LocalAddr().String())
	require.NoError(t, pc.Close())

	c, err := New(
		WithServerAddress(unusedAddr),
		WithResponseTimeout(30*time.Millisecond),
		WithMaxTxAttempts(2),
	)
	require.NoError(t, err)
	require.NoError(t, c.Start())
	defer c.Stop()

	done := make(chan struct{})
	var gotErr error
	err = c.ResolveAddress(context.Background(), "silent.example.", nil, func(resp *AddressResponse, err error) {
		gotErr = err
		close(done)
	})
	require.NoError(t, err)

	select {
	case <-done:
		assert.True(t, dnserr.Is(gotErr, dnserr.KindResponseTimeout))
	case <-time.After(2 * time.Second):
		t.Fatal("callback never fired")
	}
}

func TestResolveService_CompositeDowngrade(t *testing.T) {
	addr := startTestServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		if len(r.Question) > 1 {
			m.Rcode = dns.RcodeFormatError
			_ = w.WriteMsg(m)
			return
		}
		q := r.Question[0]
		switch q.Qtype {
		case dns.TypeSRV:
			rr, err := dns.NewRR(q.Name + " 120 IN SRV 0 0 8080 host.example.")
			require.NoError(t, err)
			m.Answer = append(m.Answer, rr)
		case dns.TypeTXT:
			rr, err := dns.NewRR(q.Name + ` 120 IN TXT "a=1"`)
			require.NoError(t, err)
			m.Answer = append(m.Answer, rr)
		}
		_ = w.WriteMsg(m)
	})

	c, err := New(WithServerAddress(addr))
	require.NoError(t, err)
	require.NoError(t, c.Start())
	defer c.Stop()

	done := make(chan struct{})
	err = c.ResolveService(context.Background(), "inst", "_svc._tcp.example.", nil, func(resp *ServiceResponse, err error) {
		defer close(done)
		require.NoError(t, err)
		info, ierr := resp.ServiceInfo()
		require.NoError(t, ierr)
		assert.Equal(t, uint16(8080), info.Port)
		assert.Equal(t, "host.example", info.HostName)
		require.Len(t, info.TXT, 1)
		assert.Equal(t, "a=1", info.TXT[0])
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("callback never fired")
	}
}

func TestResolveAddress_NAT64Synthesis(t *testing.T) {
	addr := startTestServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		q := r.Question[0]
		rr, err := dns.NewRR(q.Name + " 60 IN A 192.0.2.5")
		require.NoError(t, err)
		switch q.Qtype {
		case dns.TypeAAAA:
			m.Extra = append(m.Extra, rr) // no AAAA answer: triggers NAT64Needed
		case dns.TypeA:
			m.Answer = append(m.Answer, rr)
		}
		_ = w.WriteMsg(m)
	})

	prefix := netip.MustParsePrefix("64:ff9b::/96")
	c, err := New(
		WithServerAddress(addr),
		WithNAT64(query.NAT64Allow, nat64.NewStaticProvider(prefix)),
	)
	require.NoError(t, err)
	require.NoError(t, c.Start())
	defer c.Stop()

	done := make(chan struct{})
	err = c.ResolveAddress(context.Background(), "v4only.example.", nil, func(resp *AddressResponse, err error) {
		defer close(done)
		require.NoError(t, err)
		got, ttl, aerr := resp.Address(0)
		require.NoError(t, aerr)
		assert.Equal(t, netip.MustParseAddr("64:ff9b::c000:205"), got)
		assert.EqualValues(t, 60, ttl)
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("callback never fired")
	}
}

func TestResolveServiceAndHostAddress_Followup(t *testing.T) {
	addr := startTestServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		// dns.Server rejects multi-question messages with FormatError, so the
		// client falls back to separate SRV and TXT queries; answer each
		// question on its own, never with an AAAA for the SRV target.
		for _, q := range r.Question {
			switch q.Qtype {
			case dns.TypeSRV:
				rr, err := dns.NewRR(q.Name + " 120 IN SRV 0 0 8080 host.example.")
				require.NoError(t, err)
				m.Answer = append(m.Answer, rr)
			case dns.TypeTXT:
				rr, err := dns.NewRR(q.Name + ` 120 IN TXT "a=1"`)
				require.NoError(t, err)
				m.Answer = append(m.Answer, rr)
			case dns.TypeAAAA:
				rr, err := dns.NewRR(q.Name + " 120 IN AAAA 2001:db8::9")
				require.NoError(t, err)
				m.Answer = append(m.Answer, rr)
			}
		}
		_ = w.WriteMsg(m)
	})

	c, err := New(WithServerAddress(addr))
	require.NoError(t, err)
	require.NoError(t, c.Start())
	defer c.Stop()

	done := make(chan struct{})
	err = c.ResolveServiceAndHostAddress(context.Background(), "inst", "_svc._tcp.example.", nil, func(resp *ServiceResponse, err error) {
		defer close(done)
		require.NoError(t, err)
		got, ttl, herr := resp.HostAddress()
		require.NoError(t, herr)
		assert.Equal(t, netip.MustParseAddr("2001:db8::9"), got)
		assert.EqualValues(t, 120, ttl)
	})
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("callback never fired")
	}
}

// TestResolveAddress_AliasRestartBound exercises the cross-message half of
// the alias bound: the server never has a terminal record, only ever
// redirecting to a fresh CNAME target, so every response drives
// restartWithAlias. Past MaxCNAMEAliasNameChanges restarts, the engine must
// give up with Parse rather than restart forever.
func TestResolveAddress_AliasRestartBound(t *testing.T) {
	var hop int32
	addr := startTestServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		n := atomic.AddInt32(&hop, 1)
		target := fmt.Sprintf("chain%d.example.", n)
		rr, err := dns.NewRR(r.Question[0].Name + " 60 IN CNAME " + target)
		require.NoError(t, err)
		m.Answer = append(m.Answer, rr)
		_ = w.WriteMsg(m)
	})

	c, err := New(WithServerAddress(addr))
	require.NoError(t, err)
	require.NoError(t, c.Start())
	defer c.Stop()

	done := make(chan struct{})
	var gotErr error
	err = c.ResolveAddress(context.Background(), "chain0.example.", nil, func(resp *AddressResponse, err error) {
		gotErr = err
		close(done)
	})
	require.NoError(t, err)

	select {
	case <-done:
		require.True(t, dnserr.Is(gotErr, dnserr.KindParse))
	case <-time.After(5 * time.Second):
		t.Fatal("callback never fired")
	}
	assert.GreaterOrEqual(t, int(atomic.LoadInt32(&hop)), protocol.MaxCNAMEAliasNameChanges)
}

func TestStart_AlreadyAndStopInvalidState(t *testing.T) {
	addr := startTestServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		_ = w.WriteMsg(m)
	})

	c, err := New(WithServerAddress(addr))
	require.NoError(t, err)
	require.NoError(t, c.Start())
	assert.True(t, dnserr.Is(c.Start(), dnserr.KindAlready))
	require.NoError(t, c.Stop())
	assert.True(t, dnserr.Is(c.Stop(), dnserr.KindInvalidState))
}
