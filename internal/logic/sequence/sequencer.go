// Package sequence runs timed multi-step motion programs on one actuator.
//
// Steps execute strictly one after another in the caller's goroutine. A wait
// blocks the caller; nothing runs in the background. The context is checked
// before every step and interrupts a wait in progress, which is how a front
// end aborts a long oscillation without leaving the process mid-write.
package sequence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pushrod/servoctl/internal/debug"
	"github.com/pushrod/servoctl/internal/protocol"
)

var ErrInvalidProgram = errors.New("invalid program")

// Actuator is the subset of the actuator controller the sequencer drives.
type Actuator interface {
	Move(displacement int, speed protocol.SpeedLevel) error
	Reset() error
	RetractLength() int
}

// SleepFunc suspends the caller for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// ContextSleep is the default SleepFunc.
func ContextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// AbortedError reports the step that stopped a sequence. StepIndex counts
// only the steps that write to the link (moves and resets), so it is the
// zero-based number of the failed write. Position is the index in the full
// step list, waits included. Completed steps are not undone.
type AbortedError struct {
	StepIndex int
	Position  int
	Step      Step
	Cause     error
}

func (e *AbortedError) Error() string {
	return fmt.Sprintf("sequence aborted at step %d (%s): %v", e.StepIndex, e.Step, e.Cause)
}

func (e *AbortedError) Unwrap() error {
	return e.Cause
}

// Sequencer contains the high-level logic for timed programs
// (oscillate, expose, repeat with reset).
type Sequencer struct {
	act   Actuator
	sleep SleepFunc
}

// NewSequencer returns a sequencer driving act. A nil sleep uses ContextSleep.
func NewSequencer(act Actuator, sleep SleepFunc) *Sequencer {
	if sleep == nil {
		sleep = ContextSleep
	}
	return &Sequencer{act: act, sleep: sleep}
}

// Run executes steps in order and stops at the first failure or cancellation,
// returning an *AbortedError.
func (s *Sequencer) Run(ctx context.Context, steps Sequence) error {
	return s.RunProgram(ctx, Program{Name: "sequence", Steps: steps, Iterations: 1})
}

// RunProgram executes p, logging iteration progress.
func (s *Sequencer) RunProgram(ctx context.Context, p Program) error {
	perIteration := len(p.Steps)
	if p.Iterations > 1 {
		perIteration = len(p.Steps) / p.Iterations
	}

	debug.Section("Running " + p.Name)
	writes := 0
	for i, step := range p.Steps {
		if err := ctx.Err(); err != nil {
			return &AbortedError{StepIndex: writes, Position: i, Step: step, Cause: err}
		}
		if p.Iterations > 1 && perIteration > 0 && i%perIteration == 0 {
			debug.Progress(p.Name, i/perIteration+1, p.Iterations)
		}
		debug.Step(i+1, step.String())

		var err error
		switch step.Kind {
		case StepMove:
			err = s.act.Move(step.Command.Displacement, step.Command.Speed)
		case StepReset:
			err = s.act.Reset()
		case StepWait:
			debug.Wait(step.Duration)
			err = s.sleep(ctx, step.Duration)
		default:
			err = fmt.Errorf("%w: unknown step kind %v", ErrInvalidProgram, step.Kind)
		}
		if err != nil {
			return &AbortedError{StepIndex: writes, Position: i, Step: step, Cause: err}
		}
		if step.writes() {
			writes++
		}
	}
	debug.Live("%s complete (%d steps)", p.Name, len(p.Steps))
	return nil
}

// Oscillate extends and retracts p.Repeats times, waiting p.Period after each move.
func (s *Sequencer) Oscillate(ctx context.Context, p OscillateParams) error {
	if p.Repeats < 0 || p.Period < 0 {
		return fmt.Errorf("%w: repeats=%d period=%s", ErrInvalidProgram, p.Repeats, p.Period)
	}
	return s.RunProgram(ctx, Oscillate(p, s.act.RetractLength()))
}

// Expose extends, holds for p.Duration, then retracts.
func (s *Sequencer) Expose(ctx context.Context, p ExposeParams) error {
	if p.Duration < 0 {
		return fmt.Errorf("%w: duration=%s", ErrInvalidProgram, p.Duration)
	}
	debug.Info("Exposing for %s", p.Duration)
	return s.RunProgram(ctx, Expose(p, s.act.RetractLength()))
}

// RepeatWithReset re-homes before each of p.Repeats moves.
func (s *Sequencer) RepeatWithReset(ctx context.Context, p RepeatParams) error {
	if p.Repeats < 0 || p.Delay < 0 {
		return fmt.Errorf("%w: repeats=%d delay=%s", ErrInvalidProgram, p.Repeats, p.Delay)
	}
	return s.RunProgram(ctx, RepeatWithReset(p))
}
