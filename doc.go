// Package dnsclient implements a stub DNS resolver client for constrained
// IPv6 stacks: unicast queries to one configured recursive server, with
// CNAME alias chasing, optional NAT64 address synthesis, SRV/TXT service
// resolution, and a UDP-primary/TCP-fallback transport.
//
// The client is modeled on OpenThread's DNS client: single-threaded
// cooperative scheduling (one owning goroutine drives every state
// transition), bounded retransmission, and a closed error taxonomy
// reported via Kind rather than distinct error types. Unlike the source it
// is modeled on, the public API may be called from any goroutine — calls
// hand off to the owning goroutine over a channel rather than requiring
// the caller to pump an event loop themselves.
//
// A Client must be started before issuing queries:
//
//	c, err := dnsclient.New(
//		dnsclient.WithServerAddress(netip.MustParseAddrPort("[2001:db8::53]:53")),
//	)
//	if err != nil {
//		log.Fatal(err)
//	}
//	if err := c.Start(); err != nil {
//		log.Fatal(err)
//	}
//	defer c.Stop()
//
//	err = c.ResolveAddress(ctx, "host.example.", nil, func(resp *dnsclient.AddressResponse, err error) {
//		if err != nil {
//			return
//		}
//		addr, ttl, _ := resp.Address(0)
//		fmt.Println(addr, ttl)
//	})
package dnsclient
