package transport

import (
	"context"
	"net"
	"net/netip"

	"golang.org/x/net/ipv6"

	"github.com/openthread/dnsclient/internal/dnserr"
)

// defaultHopLimit is the unicast hop limit set on the resolver's outbound
// UDP socket via golang.org/x/net/ipv6; it has no protocol significance
// here beyond being an explicit, intentional value rather than whatever
// the OS default happens to be.
const defaultHopLimit = 64

// UDPTransport is the primary transport: one ephemeral UDP socket
// talking to a single configured recursive server.
type UDPTransport struct {
	conn   net.PacketConn
	pc6    *ipv6.PacketConn
	server netip.AddrPort
	done   chan struct{}
}

func newUDPTransport(server netip.AddrPort, inbound chan<- Received) (*UDPTransport, error) {
	lc := net.ListenConfig{Control: PlatformControl}
	conn, err := lc.ListenPacket(context.Background(), "udp6", "[::]:0")
	if err != nil {
		return nil, dnserr.Wrap("startUDP", dnserr.KindInvalidState, err)
	}

	if err := conn.SetReadBuffer(udpReadBufferSize); err != nil {
		_ = conn.Close()
		return nil, dnserr.Wrap("startUDP", dnserr.KindInvalidState, err)
	}

	pc6 := ipv6.NewPacketConn(conn)
	_ = pc6.SetHopLimit(defaultHopLimit)

	t := &UDPTransport{conn: conn, pc6: pc6, server: server, done: make(chan struct{})}
	go t.receiveLoop(inbound)
	return t, nil
}

const udpReadBufferSize = 65536

// maxUDPDatagram bounds a single read; DNS-over-UDP responses this
// client accepts never exceed this, well above the 512-byte send bound
// in protocol.UDPQueryMaxSize.
const maxUDPDatagram = 4096

func (t *UDPTransport) receiveLoop(inbound chan<- Received) {
	bufPtr := GetBuffer()
	defer PutBuffer(bufPtr)
	buf := *bufPtr
	for {
		n, _, err := t.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-t.done:
				return
			default:
				continue
			}
		}
		packet := make([]byte, n)
		copy(packet, buf[:n])
		select {
		case inbound <- Received{Packet: packet, Proto: ProtoUDP}:
		case <-t.done:
			return
		}
	}
}

// Send writes packet to the configured server. Per protocol.UDPQueryMaxSize,
// the caller is responsible for ensuring packet fits a single datagram.
func (t *UDPTransport) Send(ctx context.Context, packet []byte) error {
	select {
	case <-ctx.Done():
		return dnserr.Wrap("sendUDP", dnserr.KindAborted, ctx.Err())
	default:
	}

	dest := net.UDPAddrFromAddrPort(t.server)
	n, err := t.conn.WriteTo(packet, dest)
	if err != nil {
		return dnserr.Wrap("sendUDP", dnserr.KindInvalidState, err)
	}
	if n != len(packet) {
		return dnserr.New("sendUDP", dnserr.KindNoBufs)
	}
	return nil
}

// Close unbinds the socket, ending the receive loop.
func (t *UDPTransport) Close() error {
	if t == nil || t.conn == nil {
		return nil
	}
	close(t.done)
	if err := t.conn.Close(); err != nil {
		return dnserr.Wrap("closeUDP", dnserr.KindInvalidState, err)
	}
	return nil
}
