package serial

import (
	"fmt"
	"sync"

	"github.com/pushrod/servoctl/internal/debug"
)

// MockDriver is a test implementation that records every write.
// Used for development on PC or testing.
type MockDriver struct {
	mu      sync.Mutex
	ports   []PortDescriptor
	listErr error
	opened  map[string]*MockPort
	openErr error
}

// NewMockDriver returns a driver that reports the given ports and opens any path.
func NewMockDriver(ports ...PortDescriptor) *MockDriver {
	return &MockDriver{
		ports:  ports,
		opened: make(map[string]*MockPort),
	}
}

// FailList makes ListPorts return err.
func (m *MockDriver) FailList(err error) {
	m.mu.Lock()
	m.listErr = err
	m.mu.Unlock()
}

// FailOpen makes OpenPort return err.
func (m *MockDriver) FailOpen(err error) {
	m.mu.Lock()
	m.openErr = err
	m.mu.Unlock()
}

func (m *MockDriver) ListPorts() ([]PortDescriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]PortDescriptor, len(m.ports))
	copy(out, m.ports)
	return out, nil
}

func (m *MockDriver) OpenPort(path string, baudRate int) (Port, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.openErr != nil {
		return nil, m.openErr
	}
	debug.Trace("mock open %s baud=%d", path, baudRate)
	p := &MockPort{Path: path, BaudRate: baudRate}
	m.opened[path] = p
	return p, nil
}

// Port returns the most recent MockPort opened on path, or nil.
func (m *MockDriver) Port(path string) *MockPort {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.opened[path]
}

// MockPort stores written bytes and can be told to fail a given write.
type MockPort struct {
	Path     string
	BaudRate int

	mu      sync.Mutex
	writes  [][]byte
	closes  int
	failAt  int // 1-based write number that fails; 0 = never
	failErr error
}

// FailOnWrite makes the n-th write (1-based) and every later write return err.
func (p *MockPort) FailOnWrite(n int, err error) {
	p.mu.Lock()
	p.failAt = n
	p.failErr = err
	p.mu.Unlock()
}

func (p *MockPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closes > 0 {
		return 0, ErrDisconnected
	}
	if p.failAt > 0 && len(p.writes)+1 >= p.failAt {
		p.writes = append(p.writes, nil)
		return 0, p.failErr
	}
	p.writes = append(p.writes, append([]byte(nil), b...))
	debug.Trace("mock write %s %q", p.Path, b)
	return len(b), nil
}

func (p *MockPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closes++
	if p.closes > 1 {
		return fmt.Errorf("mock port %s closed %d times", p.Path, p.closes)
	}
	return nil
}

// Written returns the successfully written payloads as strings, in order.
func (p *MockPort) Written() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []string
	for _, w := range p.writes {
		if w != nil {
			out = append(out, string(w))
		}
	}
	return out
}

// Attempts returns the number of Write calls, failed ones included.
func (p *MockPort) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.writes)
}

// Closes returns how many times Close reached the port.
func (p *MockPort) Closes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closes
}
