package actuator

import (
	"sync"

	"github.com/pushrod/servoctl/internal/debug"
	"github.com/pushrod/servoctl/internal/protocol"
)

// Link is the write side of an open serial transport.
type Link interface {
	Write(p []byte) error
}

// Config holds the per-deployment motion parameters.
type Config struct {
	Codec         protocol.Codec
	RetractLength int                 // mm, used by Retract and the sequencer's return moves
	MaxSpeed      protocol.SpeedLevel // used by Retract and Extend; 0 means 6
}

// Controller issues primitive motions to the pushrod.
// It's an intermediate layer between the sequencer (timed programs) and the
// serial link. Transport errors are returned as-is; there is no retry here.
type Controller struct {
	link     Link
	codec    protocol.Codec
	retract  int
	maxSpeed protocol.SpeedLevel

	mu          sync.Mutex
	lastCommand *protocol.Command
	lastToken   protocol.Token
}

func NewController(link Link, cfg Config) *Controller {
	maxSpeed := cfg.MaxSpeed
	if maxSpeed == protocol.SpeedNone {
		maxSpeed = protocol.SpeedMax
	}
	return &Controller{
		link:     link,
		codec:    cfg.Codec,
		retract:  cfg.RetractLength,
		maxSpeed: maxSpeed,
	}
}

// Move drives the pushrod to displacement mm at speed. Speed 0 is a no-op
// and writes nothing.
func (c *Controller) Move(displacement int, speed protocol.SpeedLevel) error {
	if speed == protocol.SpeedNone {
		debug.Verbose("Move %dmm at speed 0: nothing to do", displacement)
		return nil
	}

	cmd := protocol.Command{Displacement: displacement, Speed: speed}
	tok, err := c.codec.Encode(cmd)
	if err != nil {
		return err
	}
	if err := c.write(tok); err != nil {
		return err
	}

	c.mu.Lock()
	c.lastCommand = &cmd
	c.lastToken = tok
	c.mu.Unlock()
	return nil
}

// Retract pulls the pushrod back to the configured retract length at full speed.
func (c *Controller) Retract() error {
	return c.Move(c.retract, c.maxSpeed)
}

// Extend pushes to displacement mm at full speed.
func (c *Controller) Extend(displacement int) error {
	return c.Move(displacement, c.maxSpeed)
}

// Reset re-homes the actuator. It bypasses the codec's range checks.
func (c *Controller) Reset() error {
	if err := c.write(protocol.ResetToken); err != nil {
		return err
	}
	c.mu.Lock()
	c.lastToken = protocol.ResetToken
	c.mu.Unlock()
	return nil
}

// RetractLength returns the configured retract displacement in mm.
func (c *Controller) RetractLength() int {
	return c.retract
}

// LastCommand returns the last motion command written, if any.
func (c *Controller) LastCommand() (protocol.Command, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.lastCommand == nil {
		return protocol.Command{}, false
	}
	return *c.lastCommand, true
}

// LastToken returns the last token written, reset included.
func (c *Controller) LastToken() protocol.Token {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastToken
}

func (c *Controller) write(tok protocol.Token) error {
	if err := c.link.Write(tok.Bytes()); err != nil {
		debug.Error(err)
		return err
	}
	debug.Live("sent %q", string(tok))
	return nil
}
