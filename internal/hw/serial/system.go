package serial

import (
	"errors"
	"fmt"

	bugst "go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/pushrod/servoctl/internal/debug"
)

// SystemDriver is the real implementation backed by go.bug.st/serial.
type SystemDriver struct{}

// ListPorts returns every serial port the OS reports. The description is the
// USB product string when the OS provides one.
func (SystemDriver) ListPorts() ([]PortDescriptor, error) {
	details, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return nil, fmt.Errorf("enumerate serial ports: %w", err)
	}

	ports := make([]PortDescriptor, 0, len(details))
	for _, d := range details {
		desc := d.Product
		if desc == "" && d.IsUSB {
			desc = fmt.Sprintf("USB VID:PID=%s:%s", d.VID, d.PID)
		}
		ports = append(ports, PortDescriptor{Path: d.Name, Description: desc})
	}
	debug.Verbose("Enumerated %d serial ports", len(ports))
	return ports, nil
}

// OpenPort opens path in 8N1 mode at baudRate.
func (SystemDriver) OpenPort(path string, baudRate int) (Port, error) {
	mode := &bugst.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   bugst.NoParity,
		StopBits: bugst.OneStopBit,
	}
	p, err := bugst.Open(path, mode)
	if err != nil {
		return nil, err
	}
	return &systemPort{p: p}, nil
}

// systemPort maps the library's closed-port error onto ErrDisconnected.
type systemPort struct {
	p bugst.Port
}

func (s *systemPort) Write(b []byte) (int, error) {
	n, err := s.p.Write(b)
	if err != nil {
		var perr *bugst.PortError
		if errors.As(err, &perr) && perr.Code() == bugst.PortClosed {
			return n, ErrDisconnected
		}
	}
	return n, err
}

func (s *systemPort) Close() error {
	return s.p.Close()
}
