package radio

import (
	"context"
	"sync"
)

// SentPacket records one call made through Mock.Send, for test
// assertions.
type SentPacket struct {
	To, From uint32
	Channel  uint8
	Port     Port
	Payload  []byte
}

// Mock is an in-memory Driver used by tests and by cmd/meshtakd when no
// real mesh radio is attached (e.g. local development).
type Mock struct {
	mu   sync.Mutex
	Sent []SentPacket
}

// NewMock constructs an empty Mock driver.
func NewMock() *Mock {
	return &Mock{}
}

// Send records the packet and always succeeds.
func (m *Mock) Send(_ context.Context, to, from uint32, channel uint8, port Port, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(payload))
	copy(cp, payload)
	m.Sent = append(m.Sent, SentPacket{To: to, From: from, Channel: channel, Port: port, Payload: cp})
	return nil
}

// Packets returns a snapshot copy of every packet sent so far.
func (m *Mock) Packets() []SentPacket {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SentPacket, len(m.Sent))
	copy(out, m.Sent)
	return out
}
