// Package command is the single typed entry point front ends use to drive
// the actuator. A front end fills a Request from its own widgets or flags
// and hands it to Dispatch; it never touches the serial link.
package command

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pushrod/servoctl/internal/debug"
	"github.com/pushrod/servoctl/internal/logic/sequence"
	"github.com/pushrod/servoctl/internal/protocol"
)

var (
	ErrUnknownKind    = errors.New("unknown command kind")
	ErrInvalidRequest = errors.New("invalid command request")
)

// Kind selects what a Request does.
type Kind int

const (
	KindUnknown Kind = iota
	KindMove
	KindExtend
	KindRetract
	KindReset
	KindOscillate
	KindExpose
	KindRepeatWithReset
)

var kindNames = map[Kind]string{
	KindMove:            "move",
	KindExtend:          "extend",
	KindRetract:         "retract",
	KindReset:           "reset",
	KindOscillate:       "oscillate",
	KindExpose:          "expose",
	KindRepeatWithReset: "repeat",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseKind maps a name such as "oscillate" to its Kind.
func ParseKind(s string) (Kind, error) {
	for k, name := range kindNames {
		if name == s {
			return k, nil
		}
	}
	return KindUnknown, fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	if _, ok := kindNames[k]; !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownKind, int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(b []byte) error {
	parsed, err := ParseKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Request carries every parameter a command may need. Fields a kind does not
// use are ignored. Duration is the oscillation period, the exposure time or
// the reset-to-move delay depending on Kind.
type Request struct {
	Kind         Kind
	Displacement int
	Speed        protocol.SpeedLevel
	Repeats      int
	Duration     time.Duration
}

// usesSpeed reports whether speed 0 turns the request into a no-op.
func (r Request) usesSpeed() bool {
	switch r.Kind {
	case KindMove, KindOscillate, KindExpose, KindRepeatWithReset:
		return true
	}
	return false
}

// Validate checks the request shape. Range checks on displacement and speed
// belong to the codec and surface when the command runs.
func (r Request) Validate() error {
	if _, ok := kindNames[r.Kind]; !ok {
		return fmt.Errorf("%w: %d", ErrUnknownKind, int(r.Kind))
	}
	if r.Repeats < 0 {
		return fmt.Errorf("%w: repeats must be >= 0, got %d", ErrInvalidRequest, r.Repeats)
	}
	if r.Duration < 0 {
		return fmt.Errorf("%w: duration must be >= 0, got %s", ErrInvalidRequest, r.Duration)
	}
	if r.Speed < 0 {
		return fmt.Errorf("%w: speed must be >= 0, got %d", ErrInvalidRequest, r.Speed)
	}
	return nil
}

func (r Request) String() string {
	switch r.Kind {
	case KindMove:
		return fmt.Sprintf("move %dmm speed %d", r.Displacement, r.Speed)
	case KindExtend:
		return fmt.Sprintf("extend %dmm", r.Displacement)
	case KindOscillate:
		return fmt.Sprintf("oscillate %dmm speed %d x%d every %s", r.Displacement, r.Speed, r.Repeats, r.Duration)
	case KindExpose:
		return fmt.Sprintf("expose %dmm speed %d for %s", r.Displacement, r.Speed, r.Duration)
	case KindRepeatWithReset:
		return fmt.Sprintf("repeat %dmm speed %d x%d delay %s", r.Displacement, r.Speed, r.Repeats, r.Duration)
	default:
		return r.Kind.String()
	}
}

// Ack is the acknowledgement returned to the front end.
type Ack struct {
	Kind      Kind           `json:"kind"`
	Skipped   bool           `json:"skipped"` // speed 0: nothing was sent
	LastToken protocol.Token `json:"last_token,omitempty"`
}

// Actuator is the primitive-motion surface Dispatch needs.
type Actuator interface {
	sequence.Actuator
	Extend(displacement int) error
	Retract() error
	LastToken() protocol.Token
}

// Dispatcher routes requests to the actuator and the sequencer.
type Dispatcher struct {
	act Actuator
	seq *sequence.Sequencer
}

func NewDispatcher(act Actuator, seq *sequence.Sequencer) *Dispatcher {
	return &Dispatcher{act: act, seq: seq}
}

// Dispatch validates and runs r. Cancelling ctx stops a running program
// before its next step.
func (d *Dispatcher) Dispatch(ctx context.Context, r Request) (Ack, error) {
	if err := r.Validate(); err != nil {
		return Ack{}, err
	}
	ack := Ack{Kind: r.Kind}
	if r.usesSpeed() && r.Speed == protocol.SpeedNone {
		debug.Info("%s: speed 0, nothing to do", r.Kind)
		ack.Skipped = true
		return ack, nil
	}

	debug.Info("Command: %s", r)
	var err error
	switch r.Kind {
	case KindMove:
		err = d.act.Move(r.Displacement, r.Speed)
	case KindExtend:
		err = d.act.Extend(r.Displacement)
	case KindRetract:
		err = d.act.Retract()
	case KindReset:
		err = d.act.Reset()
	case KindOscillate:
		err = d.seq.Oscillate(ctx, sequence.OscillateParams{
			Displacement: r.Displacement,
			Speed:        r.Speed,
			Repeats:      r.Repeats,
			Period:       r.Duration,
		})
	case KindExpose:
		err = d.seq.Expose(ctx, sequence.ExposeParams{
			Displacement: r.Displacement,
			Speed:        r.Speed,
			Duration:     r.Duration,
		})
	case KindRepeatWithReset:
		err = d.seq.RepeatWithReset(ctx, sequence.RepeatParams{
			Displacement: r.Displacement,
			Speed:        r.Speed,
			Repeats:      r.Repeats,
			Delay:        r.Duration,
		})
	}
	ack.LastToken = d.act.LastToken()
	if err != nil {
		return ack, fmt.Errorf("%s: %w", r.Kind, err)
	}
	return ack, nil
}
