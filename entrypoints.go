package dnsclient

import (
	"context"
	"strings"

	"github.com/miekg/dns"

	"github.com/openthread/dnsclient/internal/dnserr"
	"github.com/openthread/dnsclient/internal/protocol"
	"github.com/openthread/dnsclient/internal/query"
	"github.com/openthread/dnsclient/internal/wire"
)

// validateName checks a caller-supplied presentation-form name against
// the RFC 1035 §3.1 wire-format bounds, the only name validation §4.7's
// entrypoints perform before delegating to startQuery.
func validateName(name string) error {
	if name == "" {
		return dnserr.New("validateName", dnserr.KindInvalidArgs)
	}
	if len(dns.Fqdn(name)) > protocol.MaxNameLength {
		return dnserr.New("validateName", dnserr.KindInvalidArgs)
	}
	for _, label := range dns.SplitDomainName(name) {
		if len(label) > protocol.MaxLabelLength {
			return dnserr.New("validateName", dnserr.KindInvalidArgs)
		}
	}
	return nil
}

// ResolveAddress resolves hostName's AAAA address (kind Ip6Address). If
// NAT64 is allowed and the server's response has no AAAA but does have an
// A record, the query is transparently converted to an Ip4Address lookup
// and the result synthesized back into an AAAA, per §4.7 step 3.
func (c *Client) ResolveAddress(ctx context.Context, hostName string, cfg *query.Config, cb func(*AddressResponse, error)) error {
	if err := validateName(hostName); err != nil {
		return err
	}
	if cb == nil {
		return dnserr.New("resolveAddress", dnserr.KindInvalidArgs)
	}

	merged := query.Merge(cfg, c.defaults)
	return c.submit(ctx, func() error {
		q := &query.Query{
			Kind:      query.KindIP6Address,
			Name:      dns.Fqdn(hostName),
			Questions: []wire.Question{{Name: hostName, Type: dns.TypeAAAA}},
			Config:    merged,
		}
		q.Callback = func(resp *wire.Response, err error) {
			prefix, _ := c.nat64Prefix()
			cb(newAddressResponse(resp, q.Kind == query.KindIP4Address, prefix), err)
		}
		return c.startQuery(q)
	})
}

// ResolveIP4Address resolves hostName's A record and synthesizes it into
// an IPv6 address via the configured NAT64 prefix (kind Ip4Address,
// NAT64-build only). Fails InvalidState if no NAT64 prefix is available.
func (c *Client) ResolveIP4Address(ctx context.Context, hostName string, cfg *query.Config, cb func(*AddressResponse, error)) error {
	if err := validateName(hostName); err != nil {
		return err
	}
	if cb == nil {
		return dnserr.New("resolveIp4Address", dnserr.KindInvalidArgs)
	}
	prefix, ok := c.nat64Prefix()
	if !ok {
		return dnserr.New("resolveIp4Address", dnserr.KindInvalidState)
	}

	merged := query.Merge(cfg, c.defaults)
	return c.submit(ctx, func() error {
		q := &query.Query{
			Kind:      query.KindIP4Address,
			Name:      dns.Fqdn(hostName),
			Questions: []wire.Question{{Name: hostName, Type: dns.TypeA}},
			Config:    merged,
		}
		q.Callback = func(resp *wire.Response, err error) {
			cb(newAddressResponse(resp, true, prefix), err)
		}
		return c.startQuery(q)
	})
}

// Browse resolves every service instance advertising serviceName (kind
// Browse, a PTR query).
func (c *Client) Browse(ctx context.Context, serviceName string, cfg *query.Config, cb func(*BrowseResponse, error)) error {
	if err := validateName(serviceName); err != nil {
		return err
	}
	if cb == nil {
		return dnserr.New("browse", dnserr.KindInvalidArgs)
	}

	merged := query.Merge(cfg, c.defaults)
	return c.submit(ctx, func() error {
		q := &query.Query{
			Kind:      query.KindBrowse,
			Name:      dns.Fqdn(serviceName),
			Questions: []wire.Question{{Name: serviceName, Type: dns.TypePTR}},
			Config:    merged,
		}
		q.Callback = func(resp *wire.Response, err error) {
			cb(newBrowseResponse(resp), err)
		}
		return c.startQuery(q)
	})
}

// ResolveService resolves a service instance's SRV and TXT records, per
// the service-mode planner in §4.7.
func (c *Client) ResolveService(ctx context.Context, instanceLabel, serviceName string, cfg *query.Config, cb func(*ServiceResponse, error)) error {
	return c.resolveServiceImpl(ctx, instanceLabel, serviceName, false, cfg, cb)
}

// ResolveServiceAndHostAddress resolves a service instance's SRV and TXT
// records, then, if the response carries no AAAA for the SRV target,
// follows up with an Ip6Address query before finalizing, per §4.7 step 5.
func (c *Client) ResolveServiceAndHostAddress(ctx context.Context, instanceLabel, serviceName string, cfg *query.Config, cb func(*ServiceResponse, error)) error {
	return c.resolveServiceImpl(ctx, instanceLabel, serviceName, true, cfg, cb)
}

func (c *Client) resolveServiceImpl(ctx context.Context, instanceLabel, serviceName string, needHostAddr bool, cfg *query.Config, cb func(*ServiceResponse, error)) error {
	if err := validateName(serviceName); err != nil {
		return err
	}
	if instanceLabel == "" {
		return dnserr.New("resolveService", dnserr.KindInvalidArgs)
	}
	if cb == nil {
		return dnserr.New("resolveService", dnserr.KindInvalidArgs)
	}

	merged := query.Merge(cfg, c.defaults)
	ownerName := dns.Fqdn(instanceLabel + "." + serviceName)

	return c.submit(ctx, func() error {
		return c.planServiceQuery(merged, instanceLabel, serviceName, ownerName, needHostAddr, cb)
	})
}

// planServiceQuery implements §4.7's service-mode planner. It runs on the
// loop goroutine because deciding Srv/Txt separation consults the server
// profile, which is only ever read or written there.
func (c *Client) planServiceQuery(cfg query.Config, instanceLabel, serviceName, ownerName string, needHostAddr bool, cb func(*ServiceResponse, error)) error {
	wrap := func(q *query.Query) func(*wire.Response, error) {
		return func(resp *wire.Response, err error) {
			// The host-address follow-up is the chained response queried
			// under a different name; a TXT sibling shares resp's owner name.
			var followup *wire.Response
			if resp != nil {
				for n := resp.Next; n != nil; n = n.Next {
					if !strings.EqualFold(n.QueryName, resp.QueryName) {
						followup = n
						break
					}
				}
			}
			cb(newServiceResponse(resp, followup, instanceLabel, serviceName), err)
		}
	}

	limited := c.prof.IsLimited(cfg.ServerAddr.Addr())
	separate := cfg.ServiceMode == query.ServiceModeSrvTxtSeparate ||
		((cfg.ServiceMode == query.ServiceModeSrvTxt || cfg.ServiceMode == query.ServiceModeSrvTxtOptimize) && limited)

	switch {
	case cfg.ServiceMode == query.ServiceModeSrv:
		q := c.newServiceQuery(query.KindServiceSrv, ownerName, cfg, instanceLabel, needHostAddr)
		q.Callback = wrap(q)
		return c.startQuery(q)

	case cfg.ServiceMode == query.ServiceModeTxt:
		q := c.newServiceQuery(query.KindServiceTxt, ownerName, cfg, instanceLabel, needHostAddr)
		q.Callback = wrap(q)
		return c.startQuery(q)

	case separate:
		c.logger.Debugf("dnsclient: service query for %q downgraded to separate SRV+TXT (server %s limited)", ownerName, cfg.ServerAddr)
		srvQ := c.newServiceQuery(query.KindServiceSrv, ownerName, cfg, instanceLabel, needHostAddr)
		txtQ := c.newServiceQuery(query.KindServiceTxt, ownerName, cfg, instanceLabel, false)
		query.AttachSibling(srvQ, txtQ)
		srvQ.Callback = wrap(srvQ)
		return c.startSiblingGroup(srvQ, txtQ)

	default: // SrvTxt or SrvTxtOptimize, server not (yet) known to be limited
		q := &query.Query{
			Kind: query.KindServiceSrvTxt,
			Name: ownerName,
			Questions: []wire.Question{
				{Name: ownerName, Type: dns.TypeSRV},
				{Name: ownerName, Type: dns.TypeTXT},
			},
			Config:        cfg,
			InstanceLabel: instanceLabel,
		}
		q.ShouldResolveHostAddr = needHostAddr
		q.Callback = wrap(q)
		return c.startQuery(q)
	}
}

func (c *Client) newServiceQuery(kind query.Kind, ownerName string, cfg query.Config, instanceLabel string, needHostAddr bool) *query.Query {
	rrType := uint16(dns.TypeSRV)
	if kind == query.KindServiceTxt {
		rrType = dns.TypeTXT
	}
	q := &query.Query{
		Kind:                  kind,
		Name:                  ownerName,
		Questions:             []wire.Question{{Name: ownerName, Type: rrType}},
		Config:                cfg,
		InstanceLabel:         instanceLabel,
		ShouldResolveHostAddr: needHostAddr,
	}
	return q
}

// startSiblingGroup allocates and sends every member of a pre-linked
// sibling group (main first), freeing the whole group if any member fails
// to start.
func (c *Client) startSiblingGroup(main *query.Query, siblings ...*query.Query) error {
	if err := c.store.Allocate(main); err != nil {
		return err
	}
	for _, sib := range siblings {
		if err := c.store.Allocate(sib); err != nil {
			c.store.Free(main)
			return err
		}
	}
	if err := c.transmit(main); err != nil {
		c.store.Free(main)
		return err
	}
	main.TxCount = 1
	for _, sib := range siblings {
		if err := c.transmit(sib); err != nil {
			c.store.Free(main)
			return err
		}
		sib.TxCount = 1
	}
	return nil
}

// QueryRecord issues a raw query for rrType against firstLabel.nextLabels
// (or just nextLabels if firstLabel is empty), kind Record.
func (c *Client) QueryRecord(ctx context.Context, rrType uint16, firstLabel, nextLabels string, cfg *query.Config, cb func(*RecordResponse, error)) error {
	name := nextLabels
	if firstLabel != "" {
		name = firstLabel + "." + strings.TrimPrefix(nextLabels, ".")
	}
	if err := validateName(name); err != nil {
		return err
	}
	if cb == nil {
		return dnserr.New("queryRecord", dnserr.KindInvalidArgs)
	}

	merged := query.Merge(cfg, c.defaults)
	return c.submit(ctx, func() error {
		q := &query.Query{
			Kind:       query.KindRecord,
			RecordType: rrType,
			Name:       dns.Fqdn(name),
			Questions:  []wire.Question{{Name: name, Type: rrType}},
			Config:     merged,
		}
		q.Callback = func(resp *wire.Response, err error) {
			cb(newRecordResponse(resp), err)
		}
		return c.startQuery(q)
	})
}
