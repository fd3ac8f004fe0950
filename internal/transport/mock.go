package transport

import (
	"context"
	"sync"
)

// MockSender is a Sender test double recording every packet it was asked
// to send, used to unit test the query engine without a real socket.
type MockSender struct {
	mu        sync.Mutex
	sendCalls [][]byte
	closed    bool
}

// NewMockSender returns an empty MockSender.
func NewMockSender() *MockSender {
	return &MockSender{}
}

// Send records packet for later inspection via SendCalls.
func (m *MockSender) Send(_ context.Context, packet []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendCalls = append(m.sendCalls, append([]byte(nil), packet...))
	return nil
}

// Close marks the sender closed; recorded calls remain inspectable.
func (m *MockSender) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// SendCalls returns a copy of every packet passed to Send, in order.
func (m *MockSender) SendCalls() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	calls := make([][]byte, len(m.sendCalls))
	copy(calls, m.sendCalls)
	return calls
}

// Closed reports whether Close has been called.
func (m *MockSender) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
