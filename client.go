package dnsclient

import (
	"context"
	"net/netip"
	"sync"
	"time"

	"github.com/miekg/dns"

	"github.com/openthread/dnsclient/internal/dnserr"
	"github.com/openthread/dnsclient/internal/profile"
	"github.com/openthread/dnsclient/internal/protocol"
	"github.com/openthread/dnsclient/internal/query"
	"github.com/openthread/dnsclient/internal/timer"
	"github.com/openthread/dnsclient/internal/transport"
	"github.com/openthread/dnsclient/internal/wire"
)

// Client is the QueryEngine (C7): it owns the query store, the
// retransmission timer, the transport mux, and the server profile, and
// drives all four from a single goroutine. Per §5, that goroutine is the
// only place engine state is mutated; the public methods below may be
// called from any goroutine because they hand work off to it over a
// channel rather than touching state directly.
type Client struct {
	opts     options
	defaults query.Config

	store   *query.Store
	tim     *timer.Driver
	prof    *profile.Profile
	mux     *transport.Mux
	logger  Logger

	mu      sync.Mutex
	started bool

	commands chan func()
	stopCh   chan struct{}
	loopDone chan struct{}
}

// New constructs a Client. The client is not usable for queries until
// Start succeeds.
func New(opts ...Option) (*Client, error) {
	o := DefaultConfig()
	for _, opt := range opts {
		if err := opt(&o); err != nil {
			return nil, dnserr.Wrap("newClient", dnserr.KindInvalidArgs, err)
		}
	}
	if o.autoServerFromSRP && !o.userSetServerAddr {
		if o.srpSource != nil {
			if addr, ok := o.srpSource.SelectedServer(); ok {
				o.defaults.ServerAddr = addr
			}
		}
	}
	if err := o.defaults.Validate(); err != nil {
		return nil, dnserr.Wrap("newClient", dnserr.KindInvalidArgs, err)
	}

	return &Client{
		opts:     o,
		defaults: o.defaults,
		store:    query.NewStore(),
		tim:      timer.New(),
		prof:     profile.New(),
		logger:   o.logger,
		commands: make(chan func()),
	}, nil
}

// Start binds the transport and begins the event loop. Starting an
// already-started client returns KindAlready.
func (c *Client) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return dnserr.New("start", dnserr.KindAlready)
	}

	mux := transport.NewMux(c.opts.tcpEnabled)
	if err := mux.Start(c.defaults.ServerAddr); err != nil {
		return dnserr.Wrap("start", dnserr.KindInvalidState, err)
	}

	c.mux = mux
	c.stopCh = make(chan struct{})
	c.loopDone = make(chan struct{})
	c.started = true
	go c.loop()
	return nil
}

// Stop tears down the transport, finalizes every live query with
// KindAborted, and stops the event loop. Stopping a client that was never
// started, or was already stopped, returns KindInvalidState.
func (c *Client) Stop() error {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return dnserr.New("stop", dnserr.KindInvalidState)
	}
	c.started = false
	stopCh := c.stopCh
	loopDone := c.loopDone
	c.mu.Unlock()

	close(stopCh)
	<-loopDone
	return nil
}

// loop is the single owning goroutine. Every read or mutation of the
// store, profile, timer, or in-flight query fields happens here, so none
// of those types need their own locking.
func (c *Client) loop() {
	defer close(c.loopDone)
	defer c.mux.Stop()

	for {
		select {
		case <-c.stopCh:
			c.abortAll()
			return
		case cmd := <-c.commands:
			cmd()
			c.rearmTimer()
		case <-c.tim.C():
			c.onTimerFire()
			c.rearmTimer()
		case recv := <-c.mux.Inbound():
			c.onReceive(recv)
			c.rearmTimer()
		case <-c.mux.TCPDisconnected():
			c.onTCPDisconnected()
			c.rearmTimer()
		}
	}
}

// submit hands op off to the loop goroutine and waits for its result,
// giving callers on any goroutine a synchronous error return (NoBufs,
// InvalidState) for the submission itself, per §4.7's "entrypoints ...
// return synchronously" contract.
func (c *Client) submit(ctx context.Context, op func() error) error {
	c.mu.Lock()
	started := c.started
	c.mu.Unlock()
	if !started {
		return dnserr.New("submit", dnserr.KindInvalidState)
	}

	result := make(chan error, 1)
	select {
	case c.commands <- func() { result <- op() }:
	case <-c.loopDone:
		return dnserr.New("submit", dnserr.KindInvalidState)
	case <-ctx.Done():
		return dnserr.Wrap("submit", dnserr.KindAborted, ctx.Err())
	}

	select {
	case err := <-result:
		return err
	case <-c.loopDone:
		return dnserr.New("submit", dnserr.KindAborted)
	}
}

// rearmTimer schedules the timer for the earliest pending retransmission
// across every live, unfinalized query, per §4.5.
func (c *Client) rearmTimer() {
	deadlines := make([]time.Time, 0, c.store.Len())
	for _, q := range c.store.All() {
		if !q.Finalized() {
			deadlines = append(deadlines, q.NextRetransmitAt)
		}
	}
	next := timer.NextDeadline(deadlines)
	if next.IsZero() {
		c.tim.Stop()
		return
	}
	d := time.Until(next)
	if d < 0 {
		d = 0
	}
	c.tim.Rearm(d)
}

// onTimerFire implements §4.5: retransmit any query past its deadline, up
// to MaxTxAttempts, else finalize it with ResponseTimeout.
func (c *Client) onTimerFire() {
	now := time.Now()
	for _, q := range c.store.All() {
		if q.Finalized() || q.NextRetransmitAt.IsZero() || now.Before(q.NextRetransmitAt) {
			continue
		}
		if q.TxCount < q.Config.MaxTxAttempts {
			if err := c.transmit(q); err != nil {
				c.finalizeQuery(q, err)
				continue
			}
			q.TxCount++
			c.logger.Debugf("dnsclient: retransmitting query id=%d name=%q attempt=%d/%d", q.ID, q.Name, q.TxCount, q.Config.MaxTxAttempts)
			continue
		}
		c.finalizeQuery(q, dnserr.New("onTimerFire", dnserr.KindResponseTimeout))
	}
}

// onTCPDisconnected implements §4.6's "disconnects propagate ResponseError
// to all TCP-pending queries": every live query whose last transmission
// went out over TCP is finalized immediately, rather than left to time out
// on its ordinary per-attempt retransmission deadline.
func (c *Client) onTCPDisconnected() {
	n := 0
	for _, q := range c.store.All() {
		if q.Finalized() || !q.UsingTCP {
			continue
		}
		c.finalizeQuery(q, dnserr.New("onReceive", dnserr.KindInvalidState))
		n++
	}
	if n > 0 {
		c.logger.Warnf("dnsclient: tcp connection lost, failed %d pending query(s)", n)
	}
}

// abortAll finalizes every live query group with KindAborted, called from
// the loop goroutine when Stop fires.
func (c *Client) abortAll() {
	visited := make(map[*query.Query]bool)
	for _, q := range c.store.All() {
		main := q.Main()
		if visited[main] {
			continue
		}
		visited[main] = true
		for _, member := range main.Group() {
			if !member.Finalized() {
				member.TermErr = dnserr.New("stop", dnserr.KindAborted)
				member.MarkFinalized()
			}
		}
		c.finalizeGroup(main)
	}
}

// transmit builds and sends the wire message for q's current Questions,
// choosing UDP or TCP per §4.6, and arms its next retransmission deadline.
func (c *Client) transmit(q *query.Query) error {
	msg := wire.BuildQuery(q.ID, q.Questions, q.Config.Recursion == query.RecursionDesired)
	packet, err := wire.Pack(msg)
	if err != nil {
		return dnserr.Wrap("transmit", dnserr.KindParse, err)
	}

	sender, err := c.senderFor(q, len(packet))
	if err != nil {
		return err
	}
	_, q.UsingTCP = sender.(*transport.TCPTransport)

	ctx, cancel := context.WithTimeout(context.Background(), q.Config.ResponseTimeout)
	defer cancel()
	if err := sender.Send(ctx, packet); err != nil {
		return dnserr.Wrap("transmit", dnserr.KindInvalidState, err)
	}

	q.NextRetransmitAt = time.Now().Add(q.Config.ResponseTimeout)
	return nil
}

// senderFor picks the transport for q's next transmission: TCP when
// explicitly configured or when the message is too large for UDP (§4.6's
// 512-byte bound), UDP otherwise. An oversized message with TCP disabled
// fails with NoBufs rather than being sent truncated.
func (c *Client) senderFor(q *query.Query, packetLen int) (transport.Sender, error) {
	needsTCP := q.Config.Transport == query.TransportTCP || packetLen > protocol.UDPQueryMaxSize
	if needsTCP {
		if c.mux.TCP == nil {
			return nil, dnserr.New("transmit", dnserr.KindNoBufs)
		}
		return c.mux.TCP, nil
	}
	return c.mux.UDP, nil
}

// startQuery allocates q an id, sends its first transmission, and tracks
// it in the store. On any failure the partial allocation is released.
func (c *Client) startQuery(q *query.Query) error {
	if err := c.store.Allocate(q); err != nil {
		return err
	}
	if err := c.transmit(q); err != nil {
		c.store.Free(q)
		return err
	}
	q.TxCount = 1
	return nil
}

// finalizeQuery marks q's individual outcome and, once its whole sibling
// group has either responded or terminated, finalizes the group.
func (c *Client) finalizeQuery(q *query.Query, err error) {
	q.TermErr = err
	q.MarkFinalized()
	main := q.Main()
	if main.CanFinalize() {
		c.finalizeGroup(main)
	}
}

// finalizeGroup invokes main's callback exactly once with the group's
// aggregate outcome, then frees the group from the store. Per §7: the
// first non-None error across the group wins, except that a KindNotFound
// from a TXT sibling never overrides a successful SRV/primary response,
// and a host-address follow-up's failure (other than KindAborted) leaves
// the service result standing with no host address.
func (c *Client) finalizeGroup(main *query.Query) {
	group := main.Group()

	// main's own response is always the primary one handed to the
	// callback; sibling responses (TXT, or a host-address follow-up) are
	// reachable only via Response.Next, never promoted over it.
	primary := main.SavedResponse
	if primary == nil {
		for _, m := range group {
			if m != main && m.SavedResponse != nil && m.Kind != query.KindServiceTxt {
				primary = m.SavedResponse
				break
			}
		}
	}

	var finalErr error
	for _, m := range group {
		if m.TermErr == nil {
			continue
		}
		if m.Kind == query.KindServiceTxt && dnserr.Is(m.TermErr, dnserr.KindNotFound) {
			continue
		}
		if m != main && m.Kind == query.KindIP6Address && !dnserr.Is(m.TermErr, dnserr.KindAborted) {
			continue
		}
		if finalErr == nil {
			finalErr = m.TermErr
		}
	}
	if finalErr == nil && primary == nil {
		finalErr = dnserr.New("finalize", dnserr.KindNotFound)
	}

	chainResponses(group, primary)

	cb := main.Callback
	c.store.Free(main)
	if cb != nil {
		cb(primary, finalErr)
	}
}

// chainResponses links every group member's SavedResponse onto primary via
// Response.Next (skipping primary itself and any member with no response),
// so callbacks can reach sibling data (e.g. a TXT sibling's records
// alongside a SRV primary) through one response handle.
func chainResponses(group []*query.Query, primary *wire.Response) {
	if primary == nil {
		return
	}
	tail := primary
	for _, m := range group {
		if m.SavedResponse == nil || m.SavedResponse == primary {
			continue
		}
		tail.Next = m.SavedResponse
		tail = m.SavedResponse
	}
}

// onReceive implements §4.7's onReceive: correlate by message id, parse,
// then route through alias-chase restart, NAT64 replacement, server-limit
// demotion, and sibling-group finalization.
func (c *Client) onReceive(recv transport.Received) {
	msg, err := wire.Unpack(recv.Packet)
	if err != nil {
		c.logger.Warnf("dnsclient: dropping malformed response: %v", err)
		return
	}

	q, ok := c.store.FindByID(msg.Id)
	if !ok {
		return
	}

	if msg.Truncated && recv.Proto == transport.ProtoUDP {
		c.retryOverTCP(q)
		return
	}

	if wire.IsFormatError(msg) && len(q.Questions) > 1 {
		c.prof.RecordLimitedToSingleQuestion(q.Config.ServerAddr.Addr())
		if q.Kind == query.KindServiceSrvTxt && q.Config.ServiceMode == query.ServiceModeSrvTxtOptimize {
			c.replaceWithSeparateSrvTxtQueries(q)
			return
		}
	}

	resp, derr := wire.NewResponse(msg, q.Name)
	if derr != nil {
		c.finalizeQuery(q, derr)
		return
	}

	if resp.AliasHops > 0 && aliasRestartEligible(q.Kind) && !resp.HasRecord(resp.EffectiveName, questionType(q)) {
		c.restartWithAlias(q, resp)
		return
	}

	if q.Kind == query.KindIP6Address && q.Config.NAT64 == query.NAT64Allow && resp.NAT64Needed() {
		if _, ok := c.nat64Prefix(); ok {
			c.replaceWithIP4Query(q)
			return
		}
	}

	q.SavedResponse = resp
	q.MarkFinalized()

	main := q.Main()
	if q.Kind.IsServiceQuery() && main.ShouldResolveHostAddr && !main.HostFollowupSpawned && main.SavedResponse != nil {
		// Only the main query's own response carries the SRV data a
		// follow-up decision needs; a TXT sibling arriving first must
		// wait for it.
		if c.spawnHostFollowup(main, main.SavedResponse) {
			return
		}
	}

	if main.CanFinalize() {
		c.finalizeGroup(main)
	}
}

// aliasRestartEligible scopes CNAME-restart to the single-name query kinds
// per §9's open question: it doesn't apply to browse/service queries,
// whose owner names are structurally different from a chased alias target.
func aliasRestartEligible(kind query.Kind) bool {
	switch kind {
	case query.KindIP6Address, query.KindIP4Address, query.KindRecord:
		return true
	default:
		return false
	}
}

// retryOverTCP re-sends q over the TCP fallback endpoint after a UDP
// response arrived with the TC (truncation) bit set, per §4.6: the server
// is expected to answer in full over the stream connection. Same id and
// retransmission budget reset, same shape as the other in-place query
// mutations this engine performs (restartWithAlias, replaceWithIP4Query).
func (c *Client) retryOverTCP(q *query.Query) {
	q.Config.Transport = query.TransportTCP
	q.TxCount = 1
	if err := c.transmit(q); err != nil {
		c.finalizeQuery(q, err)
	}
}

func questionType(q *query.Query) uint16 {
	if len(q.Questions) == 0 {
		return 0
	}
	return q.Questions[0].Type
}

// restartWithAlias re-sends q under its aliased name, keeping the same id
// and resetting its retransmission budget, up to MaxCNAMEAliasNameChanges
// restarts total across the query's lifetime.
func (c *Client) restartWithAlias(q *query.Query, resp *wire.Response) {
	main := q.Main()
	if main.AliasChanges >= protocol.MaxCNAMEAliasNameChanges {
		c.finalizeQuery(q, dnserr.New("onReceive", dnserr.KindParse))
		return
	}
	main.AliasChanges++
	c.logger.Debugf("dnsclient: alias restart id=%d %q -> %q", q.ID, q.Name, resp.EffectiveName)

	q.Name = resp.EffectiveName
	for i := range q.Questions {
		q.Questions[i].Name = resp.EffectiveName
	}
	q.TxCount = 1

	if err := c.transmit(q); err != nil {
		c.finalizeQuery(q, err)
	}
}

// replaceWithIP4Query converts q in place from an Ip6Address query to an
// Ip4Address query, per §4.7 step 3 (ReplaceWithIp4Query in the source this
// is modeled on): same id and callback, new question, retransmission
// budget reset. The response is later synthesized back into an AAAA at
// projection time by AddressResponse.
func (c *Client) replaceWithIP4Query(q *query.Query) {
	q.Kind = query.KindIP4Address
	q.Questions = []wire.Question{{Name: q.Name, Type: dns.TypeA}}
	q.TxCount = 1
	if err := c.transmit(q); err != nil {
		c.finalizeQuery(q, err)
	}
}

// replaceWithSeparateSrvTxtQueries demotes a composite SRV+TXT query to
// two independent sibling queries after a FormatError response, per §4.7's
// SrvTxtOptimize planner and §12's in-place-mutation supplement
// (ReplaceWithSeparateSrvTxtQueries): q keeps its id and becomes the SRV
// half, a new sibling query is allocated for TXT, and both are resent.
func (c *Client) replaceWithSeparateSrvTxtQueries(q *query.Query) {
	c.logger.Debugf("dnsclient: query id=%d downgraded to separate SRV+TXT after FormatError", q.ID)
	srvQuestion := q.Questions[0]
	q.Kind = query.KindServiceSrv
	q.Questions = []wire.Question{srvQuestion}
	q.TxCount = 1

	txtQuery := &query.Query{
		Kind:      query.KindServiceTxt,
		Name:      q.Name,
		Questions: []wire.Question{{Name: q.Name, Type: dns.TypeTXT}},
		Config:    q.Config,
		TxCount:   1,
	}
	query.AttachSibling(q, txtQuery)

	if err := c.store.Allocate(txtQuery); err != nil {
		c.finalizeQuery(q, err)
		return
	}
	if err := c.transmit(q); err != nil {
		c.finalizeQuery(q, err)
		return
	}
	if err := c.transmit(txtQuery); err != nil {
		c.finalizeQuery(txtQuery, err)
	}
}

// spawnHostFollowup starts the Ip6Address follow-up query
// resolveServiceAndHostAddress needs when the service response carried no
// AAAA for the SRV target, per §4.7 step 5. Returns true if a follow-up
// was spawned (deferring finalization), false if the service response
// already had everything needed.
func (c *Client) spawnHostFollowup(main *query.Query, resp *wire.Response) bool {
	// main was queried under its full instance.service owner name already
	// (see planServiceQuery), so its own EffectiveName needs no further
	// instance-label prefixing here.
	info, ierr := resp.GetServiceInfo("")
	if ierr != nil || info.HostAddress.IsValid() || info.HostName == "" {
		return false
	}

	main.HostFollowupSpawned = true
	followup := &query.Query{
		Kind:      query.KindIP6Address,
		Name:      dns.Fqdn(info.HostName),
		Questions: []wire.Question{{Name: info.HostName, Type: dns.TypeAAAA}},
		Config:    main.Config,
	}
	query.AttachSibling(main, followup)

	if err := c.store.Allocate(followup); err != nil {
		// §7: a follow-up failure surfaces as None on the overall
		// response with hostAddress unspecified, not as a hard error.
		followup.TermErr = nil
		followup.MarkFinalized()
		return true
	}
	if err := c.transmit(followup); err != nil {
		followup.TermErr = nil
		followup.MarkFinalized()
	}
	return true
}

// nat64Prefix reports the currently effective NAT64 prefix, if any.
func (c *Client) nat64Prefix() (netip.Prefix, bool) {
	if c.opts.nat64Provider == nil {
		return netip.Prefix{}, false
	}
	return c.opts.nat64Provider.Prefix()
}
