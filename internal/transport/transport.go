// Package transport implements TransportMux (C6): the UDP primary
// channel and the optional TCP fallback endpoint, both opaque to the
// query engine beyond their Send/Receive surface.
package transport

import (
	"context"
	"net/netip"
)

// Received pairs an inbound wire message with the transport it arrived
// on, since TCP responses can arrive interleaved with UDP ones once both
// are active.
type Received struct {
	Packet []byte
	Proto  Proto
}

// Proto names which transport carried a message.
type Proto int

const (
	ProtoUDP Proto = iota
	ProtoTCP
)

// Sender is the minimal surface the engine needs to push an outgoing
// message; both UDPTransport and TCPTransport implement it.
type Sender interface {
	Send(ctx context.Context, packet []byte) error
}

// Mux owns the UDP transport (always active once started) and an
// optional TCP transport (present only when TCP fallback is enabled). It
// fans both into a single inbound channel the engine's event loop
// selects on.
type Mux struct {
	server netip.AddrPort

	UDP *UDPTransport
	TCP *TCPTransport // nil when TCP fallback is disabled

	inbound chan Received
}

// NewMux constructs a Mux. tcpEnabled controls whether a TCP fallback
// endpoint is created; a UDP-only client leaves TCP nil, per §9's
// "isolated behind a feature flag" design note.
func NewMux(tcpEnabled bool) *Mux {
	m := &Mux{inbound: make(chan Received, 16)}
	if tcpEnabled {
		m.TCP = newTCPTransport()
	}
	return m
}

// Start binds the UDP socket and readies the TCP endpoint (without yet
// connecting it; TCP connects on demand) for server.
func (m *Mux) Start(server netip.AddrPort) error {
	m.server = server
	udp, err := newUDPTransport(server, m.inbound)
	if err != nil {
		return err
	}
	m.UDP = udp
	if m.TCP != nil {
		m.TCP.configure(server, m.inbound)
	}
	return nil
}

// Stop tears down both transports. Safe to call on a Mux whose Start
// never completed.
func (m *Mux) Stop() error {
	var firstErr error
	if m.UDP != nil {
		if err := m.UDP.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if m.TCP != nil {
		if err := m.TCP.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Inbound is the channel every received message (UDP or TCP) arrives on.
func (m *Mux) Inbound() <-chan Received {
	return m.inbound
}

// TCPDisconnected reports unexpected TCP connection drops, per §4.6.
// Returns nil when TCP fallback is disabled, which is always safe to
// select on (a nil channel just never becomes ready).
func (m *Mux) TCPDisconnected() <-chan struct{} {
	if m.TCP == nil {
		return nil
	}
	return m.TCP.Disconnected()
}
