package plc

import (
	"context"
	"sync"
)

// SimulatedAdapter is an in-memory register map implementing Adapter,
// standing in for a real vendor protocol stack. Used by cmd/simulator
// and by controller_test.go.
type SimulatedAdapter struct {
	mu        sync.Mutex
	registers map[string]int16
	connected bool

	// FailNextReads, if > 0, makes the next N ReadInt16 calls return
	// an error, to exercise the controller's backoff path in tests.
	FailNextReads int
}

// NewSimulatedAdapter returns a simulator with all registers at zero.
func NewSimulatedAdapter() *SimulatedAdapter {
	return &SimulatedAdapter{registers: make(map[string]int16)}
}

func (s *SimulatedAdapter) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = true
	return nil
}

func (s *SimulatedAdapter) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
}

func (s *SimulatedAdapter) ReadInt16(ctx context.Context, address string) (int16, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailNextReads > 0 {
		s.FailNextReads--
		return 0, false, ErrTransport
	}
	return s.registers[address], true, nil
}

func (s *SimulatedAdapter) WriteInt16(ctx context.Context, address string, value int16) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registers[address] = value
	return true, nil
}

// Set directly sets a register's value, for tests driving the
// trigger register from outside the controller's own write path.
func (s *SimulatedAdapter) Set(address string, value int16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.registers[address] = value
}

// Get reads a register's current value without going through the
// Adapter interface's error path.
func (s *SimulatedAdapter) Get(address string) int16 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.registers[address]
}
