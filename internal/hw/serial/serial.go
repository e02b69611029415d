package serial

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/pushrod/servoctl/internal/debug"
)

var (
	// ErrDisconnected is returned by Write after the transport was closed.
	ErrDisconnected = errors.New("serial link disconnected")
	// ErrIOFailure wraps any underlying transmission failure.
	ErrIOFailure = errors.New("serial I/O failure")
	// ErrPortBusy is returned when the opener already has an open transport.
	ErrPortBusy = errors.New("serial port already open")
	// ErrPortNotFound reports that auto-detection failed and the fallback
	// path is in use. It is not fatal.
	ErrPortNotFound = errors.New("device not detected, using fallback")
)

// DefaultBaudRate is the rate the actuator firmware listens on.
const DefaultBaudRate = 9600

// PortDescriptor identifies a serial device.
type PortDescriptor struct {
	Path        string `json:"path"`
	Description string `json:"description"`
}

func (p PortDescriptor) String() string {
	if p.Description == "" {
		return p.Path
	}
	return fmt.Sprintf("%s (%s)", p.Path, p.Description)
}

// Port is a raw byte-oriented serial connection.
type Port interface {
	io.Writer
	Close() error
}

// Lister enumerates the serial ports present on the host.
type Lister interface {
	ListPorts() ([]PortDescriptor, error)
}

// Driver defines the abstract interface for reaching serial devices.
// This allows plugging in the real go.bug.st implementation
// or a mock for development on a machine with no actuator attached.
type Driver interface {
	Lister
	OpenPort(path string, baudRate int) (Port, error)
}

// NewDriver creates a serial driver based on the chosen mode.
// If mock is true, returns a MockDriver (for dev/test).
func NewDriver(mock bool) Driver {
	if mock {
		debug.Info("Using MOCK serial driver (development mode)")
		return NewMockDriver()
	}
	return &SystemDriver{}
}

// Opener hands out transports and guarantees at most one open transport at
// a time, whatever its path. Closing the transport frees the slot.
type Opener struct {
	driver Driver

	mu     sync.Mutex
	holder string // path of the open transport, "" when free
}

func NewOpener(d Driver) *Opener {
	return &Opener{driver: d}
}

// Open opens path at baudRate. terminator, if not empty, is appended to every
// write as the deployment's framing.
func (o *Opener) Open(path string, baudRate int, terminator string) (*Transport, error) {
	if baudRate <= 0 {
		baudRate = DefaultBaudRate
	}

	if path == "" {
		return nil, errors.New("open: empty port path")
	}

	o.mu.Lock()
	if o.holder != "" {
		holder := o.holder
		o.mu.Unlock()
		return nil, fmt.Errorf("%w: %s is open, cannot open %s", ErrPortBusy, holder, path)
	}
	o.holder = path
	o.mu.Unlock()

	port, err := o.driver.OpenPort(path, baudRate)
	if err != nil {
		o.release()
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	debug.Info("Opened %s at %d baud", path, baudRate)

	return &Transport{
		path:       path,
		port:       port,
		terminator: []byte(terminator),
		release:    o.release,
	}, nil
}

func (o *Opener) release() {
	o.mu.Lock()
	o.holder = ""
	o.mu.Unlock()
}

// Transport is a singly-owned open serial link.
type Transport struct {
	path       string
	terminator []byte
	release    func()

	mu     sync.Mutex
	port   Port
	closed bool
}

// Path returns the device path the transport was opened on.
func (t *Transport) Path() string {
	return t.path
}

// Write sends p (plus the framing terminator) in a single write. A short
// write is reported as ErrIOFailure.
func (t *Transport) Write(p []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return ErrDisconnected
	}

	buf := p
	if len(t.terminator) > 0 {
		buf = make([]byte, 0, len(p)+len(t.terminator))
		buf = append(buf, p...)
		buf = append(buf, t.terminator...)
	}

	debug.Bytes(t.path, buf)
	n, err := t.port.Write(buf)
	if err != nil {
		if errors.Is(err, ErrDisconnected) {
			return err
		}
		return fmt.Errorf("%w: %s: %w", ErrIOFailure, t.path, err)
	}
	if n != len(buf) {
		return fmt.Errorf("%w: %s: short write %d/%d bytes", ErrIOFailure, t.path, n, len(buf))
	}
	return nil
}

// Close releases the port. Calling it more than once is a no-op.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil
	}
	t.closed = true
	if t.release != nil {
		t.release()
	}
	debug.Info("Closed %s", t.path)
	return t.port.Close()
}

// Closed reports whether Close has been called.
func (t *Transport) Closed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}
