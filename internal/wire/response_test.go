package wire

import (
	"strconv"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openthread/dnsclient/internal/dnserr"
	"github.com/openthread/dnsclient/internal/protocol"
)

func rr(t *testing.T, s string) dns.RR {
	t.Helper()
	r, err := dns.NewRR(s)
	require.NoError(t, err)
	return r
}

func TestNewResponse_AAAAHappyPath(t *testing.T) {
	msg := new(dns.Msg)
	msg.Response = true
	msg.Rcode = dns.RcodeSuccess
	msg.Answer = []dns.RR{rr(t, "host.example. 120 IN AAAA 2001:db8::1")}

	resp, derr := NewResponse(msg, "host.example.")
	require.Nil(t, derr)

	addr, ttl, derr := resp.GetAddress(0)
	require.Nil(t, derr)
	assert.Equal(t, "2001:db8::1", addr.String())
	assert.EqualValues(t, 120, ttl)

	_, _, derr = resp.GetAddress(1)
	require.NotNil(t, derr)
	assert.Equal(t, dnserr.KindNotFound, derr.Kind)
}

func TestNewResponse_CNAMEChase(t *testing.T) {
	msg := new(dns.Msg)
	msg.Response = true
	msg.Rcode = dns.RcodeSuccess
	msg.Answer = []dns.RR{
		rr(t, "alias.example. 300 IN CNAME target.example."),
		rr(t, "target.example. 120 IN AAAA 2001:db8::2"),
	}

	resp, derr := NewResponse(msg, "alias.example.")
	require.Nil(t, derr)
	assert.Equal(t, "alias.example.", resp.HostName())
	assert.Equal(t, "target.example.", resp.EffectiveName)

	addr, _, derr := resp.GetAddress(0)
	require.Nil(t, derr)
	assert.Equal(t, "2001:db8::2", addr.String())
}

func TestNewResponse_RcodeMapping(t *testing.T) {
	tests := []struct {
		name  string
		rcode int
		want  dnserr.Kind
	}{
		{"format error", dns.RcodeFormatError, dnserr.KindFailedResponse},
		{"server failure", dns.RcodeServerFailure, dnserr.KindFailedResponse},
		{"name error", dns.RcodeNameError, dnserr.KindNotFound},
		{"not implemented", dns.RcodeNotImplemented, dnserr.KindFailedResponse},
		{"refused", dns.RcodeRefused, dnserr.KindFailedResponse},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg := new(dns.Msg)
			msg.Response = true
			msg.Rcode = tt.rcode
			_, derr := NewResponse(msg, "host.example.")
			require.NotNil(t, derr)
			assert.Equal(t, tt.want, derr.Kind)
		})
	}
}

func TestNAT64Needed(t *testing.T) {
	msg := new(dns.Msg)
	msg.Response = true
	msg.Rcode = dns.RcodeSuccess
	msg.Extra = []dns.RR{rr(t, "host.example. 120 IN A 192.0.2.5")}

	resp, derr := NewResponse(msg, "host.example.")
	require.Nil(t, derr)
	assert.True(t, resp.NAT64Needed())

	addr, ttl, derr := resp.FirstIPv4()
	require.Nil(t, derr)
	assert.Equal(t, "192.0.2.5", addr.String())
	assert.EqualValues(t, 120, ttl)
}

func TestGetServiceInfo(t *testing.T) {
	msg := new(dns.Msg)
	msg.Response = true
	msg.Rcode = dns.RcodeSuccess
	msg.Answer = []dns.RR{
		rr(t, "myprinter._http._tcp.example. 120 IN SRV 0 0 8080 host.example."),
		rr(t, "myprinter._http._tcp.example. 120 IN TXT \"version=1.0\""),
	}
	msg.Extra = []dns.RR{rr(t, "host.example. 4500 IN AAAA 2001:db8::3")}

	resp, derr := NewResponse(msg, "_http._tcp.example.")
	require.Nil(t, derr)

	info, derr := resp.GetServiceInfo("myprinter")
	require.Nil(t, derr)
	assert.EqualValues(t, 8080, info.Port)
	assert.Equal(t, "host.example", info.HostName)
	assert.Equal(t, []string{"version=1.0"}, info.TXT)
	assert.Equal(t, "2001:db8::3", info.HostAddress.String())
}

func TestGetRecordInfo_DecompressesNames(t *testing.T) {
	msg := new(dns.Msg)
	msg.Response = true
	msg.Rcode = dns.RcodeSuccess
	msg.Answer = []dns.RR{rr(t, "example. 300 IN NS ns1.example.")}

	resp, derr := NewResponse(msg, "example.")
	require.Nil(t, derr)

	info, derr := resp.GetRecordInfo(0)
	require.Nil(t, derr)
	assert.Equal(t, dns.TypeNS, info.Type)
	assert.Equal(t, "ns1.example.", string(info.RData))
}

// chainOfCNAMEs builds n CNAME rewrites ending in a final AAAA record,
// i.e. a single response whose answer section chases n hops before
// terminating.
func chainOfCNAMEs(t *testing.T, n int) *dns.Msg {
	t.Helper()
	msg := new(dns.Msg)
	msg.Response = true
	msg.Rcode = dns.RcodeSuccess
	for i := 0; i < n; i++ {
		from := aliasHopName(i)
		to := aliasHopName(i + 1)
		msg.Answer = append(msg.Answer, rr(t, from+" 300 IN CNAME "+to))
	}
	msg.Answer = append(msg.Answer, rr(t, aliasHopName(n)+" 120 IN AAAA 2001:db8::9"))
	return msg
}

func aliasHopName(i int) string {
	return "alias" + strconv.Itoa(i) + ".example."
}

func TestNewResponse_AliasBound(t *testing.T) {
	// Exactly at the bound: MaxCNAMEAliasNameChanges hops, still resolves.
	msg := chainOfCNAMEs(t, protocol.MaxCNAMEAliasNameChanges)
	resp, derr := NewResponse(msg, "alias0.example.")
	require.Nil(t, derr)
	assert.Equal(t, protocol.MaxCNAMEAliasNameChanges, resp.AliasHops)

	// One hop past the bound: must fail Parse rather than chase forever.
	msg = chainOfCNAMEs(t, protocol.MaxCNAMEAliasNameChanges+1)
	_, derr = NewResponse(msg, "alias0.example.")
	require.NotNil(t, derr)
	assert.Equal(t, dnserr.KindParse, derr.Kind)
}
