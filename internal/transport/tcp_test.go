package transport

import (
	"context"
	"encoding/binary"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTCPTransport_SendFramesWithLengthPrefix(t *testing.T) {
	ln, err := net.Listen("tcp6", "[::1]:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	tr := newTCPTransport()
	tr.configure(netip.MustParseAddrPort(ln.Addr().String()), make(chan Received, 1))
	assert.Equal(t, TCPUninitialized, tr.State())

	require.NoError(t, tr.Send(context.Background(), []byte("hello")))
	assert.Equal(t, TCPConnectedIdle, tr.State())

	var conn net.Conn
	select {
	case conn = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted")
	}
	defer conn.Close()

	var prefix [2]byte
	_, err = readFull(conn, prefix[:])
	require.NoError(t, err)
	length := binary.BigEndian.Uint16(prefix[:])
	assert.EqualValues(t, 5, length)

	body := make([]byte, length)
	_, err = readFull(conn, body)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(body))
}

func TestTCPTransport_ReceiveLoopDeliversFramedMessage(t *testing.T) {
	ln, err := net.Listen("tcp6", "[::1]:0")
	require.NoError(t, err)
	defer ln.Close()

	inbound := make(chan Received, 1)
	tr := newTCPTransport()
	tr.configure(netip.MustParseAddrPort(ln.Addr().String()), inbound)

	serverDone := make(chan struct{})
	go func() {
		defer close(serverDone)
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		// drain the client's framed request
		var prefix [2]byte
		_, _ = readFull(conn, prefix[:])
		reqLen := binary.BigEndian.Uint16(prefix[:])
		_, _ = readFull(conn, make([]byte, reqLen))

		// write back a framed response
		resp := []byte("response")
		var respPrefix [2]byte
		binary.BigEndian.PutUint16(respPrefix[:], uint16(len(resp)))
		_, _ = conn.Write(respPrefix[:])
		_, _ = conn.Write(resp)
	}()

	require.NoError(t, tr.Send(context.Background(), []byte("request")))

	select {
	case got := <-inbound:
		assert.Equal(t, "response", string(got.Packet))
		assert.Equal(t, ProtoTCP, got.Proto)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for framed response")
	}

	<-serverDone
	tr.Close()
}
