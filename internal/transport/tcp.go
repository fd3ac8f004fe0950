package transport

import (
	"context"
	"encoding/binary"
	"net"
	"net/netip"
	"sync"

	"github.com/openthread/dnsclient/internal/dnserr"
	"github.com/openthread/dnsclient/internal/protocol"
)

// TCPState is the optional TCP fallback endpoint's connection state,
// carried over from the source this client is modeled on rather than
// collapsed into a boolean, per SPEC_FULL §12.
type TCPState int

const (
	TCPUninitialized TCPState = iota
	TCPConnecting
	TCPConnectedIdle
	TCPConnectedSending
)

// TCPTransport frames each DNS message with a 2-byte length prefix per
// RFC 1035 §4.2.2 and connects to the server lazily, on first use.
type TCPTransport struct {
	mu      sync.Mutex
	state   TCPState
	server  netip.AddrPort
	conn    net.Conn
	inbound chan<- Received
	done    chan struct{}

	// disconnected receives a value whenever the connection drops
	// unexpectedly (a write or read failure), as opposed to an explicit
	// Close. Buffered by one so the signal isn't lost if nothing is
	// selecting on it yet; further signals while one is pending are
	// coalesced, since the engine only needs to know a disconnect
	// happened, not how many times.
	disconnected chan struct{}
}

func newTCPTransport() *TCPTransport {
	return &TCPTransport{state: TCPUninitialized, disconnected: make(chan struct{}, 1)}
}

// Disconnected reports unexpected connection drops, per §4.6's "disconnects
// propagate ResponseError to all TCP-pending queries".
func (t *TCPTransport) Disconnected() <-chan struct{} {
	return t.disconnected
}

func (t *TCPTransport) configure(server netip.AddrPort, inbound chan<- Received) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.server = server
	t.inbound = inbound
}

// State returns the endpoint's current connection state.
func (t *TCPTransport) State() TCPState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Send connects on demand, then writes packet with its length prefix.
func (t *TCPTransport) Send(ctx context.Context, packet []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(packet) > 0xFFFF {
		return dnserr.New("sendTCP", dnserr.KindNoBufs)
	}

	if t.conn == nil {
		t.state = TCPConnecting
		var dialer net.Dialer
		dialer.Control = PlatformControl
		conn, err := dialer.DialContext(ctx, "tcp6", t.server.String())
		if err != nil {
			t.state = TCPUninitialized
			return dnserr.Wrap("sendTCP", dnserr.KindInvalidState, err)
		}
		t.conn = conn
		t.done = make(chan struct{})
		go t.receiveLoop(conn, t.done)
	}

	t.state = TCPConnectedSending
	var prefix [protocol.TCPLengthPrefixSize]byte
	binary.BigEndian.PutUint16(prefix[:], uint16(len(packet)))

	if _, err := t.conn.Write(prefix[:]); err != nil {
		t.failLocked(t.conn)
		return dnserr.Wrap("sendTCP", dnserr.KindInvalidState, err)
	}
	if _, err := t.conn.Write(packet); err != nil {
		t.failLocked(t.conn)
		return dnserr.Wrap("sendTCP", dnserr.KindInvalidState, err)
	}
	t.state = TCPConnectedIdle
	return nil
}

func (t *TCPTransport) receiveLoop(conn net.Conn, done chan struct{}) {
	var prefix [protocol.TCPLengthPrefixSize]byte
	for {
		if _, err := readFull(conn, prefix[:]); err != nil {
			t.mu.Lock()
			t.failLocked(conn)
			t.mu.Unlock()
			return
		}
		length := binary.BigEndian.Uint16(prefix[:])
		packet := make([]byte, length)
		if _, err := readFull(conn, packet); err != nil {
			t.mu.Lock()
			t.failLocked(conn)
			t.mu.Unlock()
			return
		}
		select {
		case t.inbound <- Received{Packet: packet, Proto: ProtoTCP}:
		case <-done:
			return
		}
	}
}

// failLocked tears conn down the same way an explicit Close would, but
// additionally signals disconnected — unlike Close, this path means the
// connection was lost out from under in-flight queries, not deliberately
// torn down. A no-op if conn is no longer the active connection (an
// explicit Close already raced it down).
func (t *TCPTransport) failLocked(conn net.Conn) {
	if t.conn != conn {
		return
	}
	close(t.done)
	_ = t.conn.Close()
	t.conn = nil
	t.state = TCPUninitialized
	select {
	case t.disconnected <- struct{}{}:
	default:
	}
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Close disconnects the endpoint, if connected.
func (t *TCPTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closeLocked()
}

func (t *TCPTransport) closeLocked() error {
	if t.conn == nil {
		return nil
	}
	close(t.done)
	err := t.conn.Close()
	t.conn = nil
	t.state = TCPUninitialized
	if err != nil {
		return dnserr.Wrap("closeTCP", dnserr.KindInvalidState, err)
	}
	return nil
}
