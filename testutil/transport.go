package testutil

import (
	"context"
	"fmt"
	"sync"

	"github.com/c360/mavrouter/errors"
	"github.com/c360/mavrouter/transport"
)

// MockTransport is an in-memory transport.Transport. Bytes queued with Inject
// are returned by ReadBytes one chunk per call; everything written is kept for
// inspection. Thread-safe for concurrent use from multiple goroutines.
type MockTransport struct {
	mu       sync.Mutex
	cfg      transport.Config
	open     bool
	rx       [][]byte
	tx       [][]byte
	readErr  error
	writeErr error

	StartErr   error
	StartCalls int
	StopCalls  int
	lateReads  int
}

var _ transport.Transport = (*MockTransport)(nil)

// NewMockTransport creates a closed mock for cfg.
func NewMockTransport(cfg transport.Config) *MockTransport {
	return &MockTransport{cfg: cfg.Clone()}
}

// Start marks the transport open unless StartErr is set.
func (m *MockTransport) Start(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StartCalls++
	if m.StartErr != nil {
		return m.StartErr
	}
	m.open = true
	return nil
}

// Stop marks the transport closed.
func (m *MockTransport) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StopCalls++
	m.open = false
	return nil
}

// IsOpen reports whether Start succeeded and Stop has not been called since.
func (m *MockTransport) IsOpen() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.open
}

// ReadsAfterStop counts ReadBytes calls made after Stop.
func (m *MockTransport) ReadsAfterStop() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lateReads
}

// Inject queues bytes for ReadBytes.
func (m *MockTransport) Inject(data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	chunk := make([]byte, len(data))
	copy(chunk, data)
	m.rx = append(m.rx, chunk)
}

// FailReads makes every ReadBytes return err until called again with nil.
func (m *MockTransport) FailReads(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readErr = err
}

// FailWrites makes every WriteBytes return err until called again with nil.
func (m *MockTransport) FailWrites(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writeErr = err
}

// ReadBytes returns the next injected chunk.
func (m *MockTransport) ReadBytes() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		if m.StopCalls > 0 {
			m.lateReads++
		}
		return nil, errors.ErrNotOpen
	}
	if m.readErr != nil {
		return nil, m.readErr
	}
	if len(m.rx) == 0 {
		return nil, nil
	}
	chunk := m.rx[0]
	m.rx = m.rx[1:]
	return chunk, nil
}

// WriteBytes records p.
func (m *MockTransport) WriteBytes(p []byte) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.open {
		return 0, errors.ErrNotOpen
	}
	if m.writeErr != nil {
		return 0, m.writeErr
	}
	chunk := make([]byte, len(p))
	copy(chunk, p)
	m.tx = append(m.tx, chunk)
	return len(p), nil
}

// Written returns a copy of every chunk written so far.
func (m *MockTransport) Written() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([][]byte, len(m.tx))
	copy(out, m.tx)
	return out
}

// WriteCount returns how many writes succeeded.
func (m *MockTransport) WriteCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tx)
}

// ResetWritten forgets recorded writes.
func (m *MockTransport) ResetWritten() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tx = nil
}

// Kind returns the configured kind.
func (m *MockTransport) Kind() transport.Kind { return m.cfg.Kind }

// Config returns the configuration.
func (m *MockTransport) Config() transport.Config { return m.cfg.Clone() }

// TransportKey identifies a config: "udp:<local port>" or "serial:<device>".
func TransportKey(cfg transport.Config) string {
	switch {
	case cfg.UDP != nil:
		return fmt.Sprintf("udp:%d", cfg.UDP.LocalPort)
	case cfg.Serial != nil:
		return "serial:" + cfg.Serial.Device
	default:
		return "invalid"
	}
}

// MockFactory builds MockTransports and remembers them by TransportKey.
type MockFactory struct {
	mu       sync.Mutex
	built    map[string]*MockTransport
	startErr map[string]error
}

// NewMockFactory creates an empty factory.
func NewMockFactory() *MockFactory {
	return &MockFactory{
		built:    make(map[string]*MockTransport),
		startErr: make(map[string]error),
	}
}

// FailStart makes transports built for key fail to start with err.
func (f *MockFactory) FailStart(key string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startErr[key] = err
}

// New implements transport.Factory.
func (f *MockFactory) New(cfg transport.Config, _ ...transport.Option) (transport.Transport, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := TransportKey(cfg)
	m := NewMockTransport(cfg)
	m.StartErr = f.startErr[key]
	f.built[key] = m
	return m, nil
}

// Get returns the most recent transport built for key.
func (f *MockFactory) Get(key string) *MockTransport {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.built[key]
}

// UDPConfig returns a valid UDP config whose TransportKey is "udp:<port>".
func UDPConfig(port int) transport.Config {
	return transport.Config{Kind: transport.KindUDP, UDP: &transport.UDPConfig{
		LocalAddress: "127.0.0.1",
		LocalPort:    port,
	}}
}
