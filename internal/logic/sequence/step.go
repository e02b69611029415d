package sequence

import (
	"fmt"
	"time"

	"github.com/pushrod/servoctl/internal/protocol"
)

// StepKind discriminates the three step types.
type StepKind int

const (
	StepMove StepKind = iota
	StepWait
	StepReset
)

func (k StepKind) String() string {
	switch k {
	case StepMove:
		return "move"
	case StepWait:
		return "wait"
	case StepReset:
		return "reset"
	default:
		return fmt.Sprintf("StepKind(%d)", int(k))
	}
}

// Step is one element of a Sequence. Command is set for moves, Duration for waits.
type Step struct {
	Kind     StepKind
	Command  protocol.Command
	Duration time.Duration
}

func Move(displacement int, speed protocol.SpeedLevel) Step {
	return Step{Kind: StepMove, Command: protocol.Command{Displacement: displacement, Speed: speed}}
}

func Wait(d time.Duration) Step {
	return Step{Kind: StepWait, Duration: d}
}

func Reset() Step {
	return Step{Kind: StepReset}
}

// writes reports whether the step puts a token on the wire.
// writes reports whether running s puts bytes on the link. A move at speed 0
// is a no-op in the controller and is not counted.
func (s Step) writes() bool {
	switch s.Kind {
	case StepReset:
		return true
	case StepMove:
		return s.Command.Speed != protocol.SpeedNone
	}
	return false
}

func (s Step) String() string {
	switch s.Kind {
	case StepMove:
		return s.Command.String()
	case StepWait:
		return "wait(" + s.Duration.String() + ")"
	default:
		return s.Kind.String()
	}
}

// Sequence is an ordered list of steps, executed one after another.
type Sequence []Step

// Program is a named sequence made of Iterations identical rounds.
type Program struct {
	Name       string
	Steps      Sequence
	Iterations int
}

// OscillateParams defines a back-and-forth program.
type OscillateParams struct {
	Displacement int                 // mm, extended position
	Speed        protocol.SpeedLevel // used for both directions
	Repeats      int                 // number of extend/retract rounds
	Period       time.Duration       // wait after each move
}

// ExposeParams defines a single extend, hold, retract cycle.
type ExposeParams struct {
	Displacement int
	Speed        protocol.SpeedLevel
	Duration     time.Duration // hold time at the extended position
}

// RepeatParams defines a re-homing repeat program.
type RepeatParams struct {
	Displacement int
	Speed        protocol.SpeedLevel
	Repeats      int
	Delay        time.Duration // wait between the reset and the move
}

// Oscillate builds: repeat N times { move(d), wait(T), move(retract), wait(T) }.
func Oscillate(p OscillateParams, retract int) Program {
	steps := make(Sequence, 0, 4*p.Repeats)
	for i := 0; i < p.Repeats; i++ {
		steps = append(steps,
			Move(p.Displacement, p.Speed),
			Wait(p.Period),
			Move(retract, p.Speed),
			Wait(p.Period),
		)
	}
	return Program{Name: "oscillate", Steps: steps, Iterations: p.Repeats}
}

// Expose builds: move(d), wait(duration), move(retract).
func Expose(p ExposeParams, retract int) Program {
	return Program{
		Name: "expose",
		Steps: Sequence{
			Move(p.Displacement, p.Speed),
			Wait(p.Duration),
			Move(retract, p.Speed),
		},
		Iterations: 1,
	}
}

// RepeatWithReset builds: repeat N times { reset, wait(delay), move(d) }.
func RepeatWithReset(p RepeatParams) Program {
	steps := make(Sequence, 0, 3*p.Repeats)
	for i := 0; i < p.Repeats; i++ {
		steps = append(steps,
			Reset(),
			Wait(p.Delay),
			Move(p.Displacement, p.Speed),
		)
	}
	return Program{Name: "repeat", Steps: steps, Iterations: p.Repeats}
}
