// Package session ties port resolution, the serial transport, the actuator
// controller and the sequencer together for the lifetime of one connection.
package session

import (
	"context"
	"errors"

	"github.com/pushrod/servoctl/internal/config"
	"github.com/pushrod/servoctl/internal/debug"
	"github.com/pushrod/servoctl/internal/hw/serial"
	"github.com/pushrod/servoctl/internal/logic/actuator"
	"github.com/pushrod/servoctl/internal/logic/command"
	"github.com/pushrod/servoctl/internal/logic/sequence"
	"github.com/pushrod/servoctl/internal/protocol"
)

// Connector opens sessions. It owns the Opener, so two sessions on the same
// path cannot coexist.
type Connector struct {
	cfg      *config.Config
	resolver *serial.Resolver
	opener   *serial.Opener
	sleep    sequence.SleepFunc
}

// NewConnector builds a connector over driver. sleep may be nil.
func NewConnector(cfg *config.Config, driver serial.Driver, sleep sequence.SleepFunc) *Connector {
	return &Connector{
		cfg:      cfg,
		resolver: serial.NewResolver(driver),
		opener:   serial.NewOpener(driver),
		sleep:    sleep,
	}
}

// Session owns exactly one open transport. Close it on every exit path.
type Session struct {
	Port     serial.PortDescriptor
	Detected bool // false when the fallback path is in use

	transport  *serial.Transport
	controller *actuator.Controller
	sequencer  *sequence.Sequencer
	dispatcher *command.Dispatcher
}

// Connect resolves the device (unless portPath is set), opens it and wires
// the controller and sequencer. A failed auto-detection is logged and the
// fallback path is tried; it only fails if the open itself fails.
func (c *Connector) Connect(portPath string) (*Session, error) {
	var port serial.PortDescriptor
	detected := true
	if portPath != "" {
		port = serial.PortDescriptor{Path: portPath}
		debug.Info("Using port %s from the command line", portPath)
	} else {
		var err error
		port, err = c.resolver.Resolve(c.cfg.Serial.PreferredSubstring, c.cfg.Serial.FallbackPath)
		if err != nil {
			if !errors.Is(err, serial.ErrPortNotFound) {
				return nil, err
			}
			detected = false
		}
	}

	tr, err := c.opener.Open(port.Path, c.cfg.Serial.BaudRate, c.cfg.Serial.Terminator)
	if err != nil {
		return nil, err
	}

	ctrl := actuator.NewController(tr, actuator.Config{
		Codec: protocol.NewCodec(
			c.cfg.Protocol.ScaleFactor,
			c.cfg.Protocol.MinDisplacement,
			c.cfg.Protocol.MaxDisplacement,
		),
		RetractLength: c.cfg.Motion.RetractLengthMm,
		MaxSpeed:      protocol.SpeedLevel(c.cfg.Motion.MaxSpeed),
	})
	seq := sequence.NewSequencer(ctrl, c.sleep)

	return &Session{
		Port:       port,
		Detected:   detected,
		transport:  tr,
		controller: ctrl,
		sequencer:  seq,
		dispatcher: command.NewDispatcher(ctrl, seq),
	}, nil
}

// Dispatch runs one front-end request.
func (s *Session) Dispatch(ctx context.Context, r command.Request) (command.Ack, error) {
	return s.dispatcher.Dispatch(ctx, r)
}

// Controller exposes the primitive motions.
func (s *Session) Controller() *actuator.Controller {
	return s.controller
}

// Sequencer exposes the timed programs.
func (s *Session) Sequencer() *sequence.Sequencer {
	return s.sequencer
}

// Closed reports whether the session's transport has been released.
func (s *Session) Closed() bool {
	return s.transport.Closed()
}

// Close releases the serial port. Safe to call more than once.
func (s *Session) Close() error {
	return s.transport.Close()
}
