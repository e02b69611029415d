package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/pushrod/servoctl/internal/config"
	"github.com/pushrod/servoctl/internal/debug"
	"github.com/pushrod/servoctl/internal/hw/serial"
	"github.com/pushrod/servoctl/internal/logic/command"
	"github.com/pushrod/servoctl/internal/logic/sequence"
	"github.com/pushrod/servoctl/internal/protocol"
	"github.com/pushrod/servoctl/internal/session"
	"github.com/pushrod/servoctl/internal/web"
)

// motionFlags are the per-command overrides. Unset flags take the
// configured defaults.
type motionFlags struct {
	displacement int
	speed        int
	repeats      int
	duration     time.Duration
	durationName string // "period", "duration" or "delay"
}

func (f *motionFlags) bindDisplacement(fs *pflag.FlagSet) {
	fs.IntVarP(&f.displacement, "displacement", "d", 0, "displacement in mm (default from config)")
}

func (f *motionFlags) bindSpeed(fs *pflag.FlagSet) {
	fs.IntVarP(&f.speed, "speed", "s", 0, "speed level 0-6, 0 does nothing (default from config)")
}

func (f *motionFlags) bindRepeats(fs *pflag.FlagSet) {
	fs.IntVarP(&f.repeats, "repeats", "n", 0, "number of iterations (default from config)")
}

func (f *motionFlags) bindDuration(fs *pflag.FlagSet, name, usage string) {
	f.durationName = name
	fs.DurationVar(&f.duration, name, 0, usage+" (default from config)")
}

// buildRequest fills a request for kind from the flags that were set and
// the configuration for the rest.
func buildRequest(kind command.Kind, fs *pflag.FlagSet, f *motionFlags, cfg *config.Config) command.Request {
	r := command.Request{
		Kind:         kind,
		Displacement: cfg.Motion.DefaultDisplacementMm,
		Speed:        protocol.SpeedLevel(cfg.Motion.DefaultSpeed),
		Repeats:      cfg.Motion.Repeats,
	}
	switch kind {
	case command.KindOscillate:
		r.Duration = cfg.Period()
	case command.KindExpose:
		r.Duration = cfg.Exposure()
	case command.KindRepeatWithReset:
		r.Duration = cfg.RepeatDelay()
	}

	if fs.Changed("displacement") {
		r.Displacement = f.displacement
	}
	if fs.Changed("speed") {
		r.Speed = protocol.SpeedLevel(f.speed)
	}
	if fs.Changed("repeats") {
		r.Repeats = f.repeats
	}
	if f.durationName != "" && fs.Changed(f.durationName) {
		r.Duration = f.duration
	}
	return r
}

// runRequest dispatches r on a fresh session and prints the outcome.
func (a *app) runRequest(ctx context.Context, out io.Writer, r command.Request) error {
	return a.withSession(func(s *session.Session) error {
		ack, err := s.Dispatch(ctx, r)
		var aborted *sequence.AbortedError
		if errors.As(err, &aborted) && errors.Is(err, context.Canceled) {
			printWarn(fmt.Sprintf("%s aborted before step %d", r.Kind, aborted.StepIndex+1))
			return nil
		}
		if err != nil {
			return err
		}
		printAck(out, r, ack)
		return nil
	})
}

func (a *app) requestCmd(use, short string, kind command.Kind, bind func(*motionFlags, *pflag.FlagSet)) *cobra.Command {
	f := &motionFlags{}
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			r := buildRequest(kind, cmd.Flags(), f, a.cfg)
			return a.runRequest(cmd.Context(), cmd.OutOrStdout(), r)
		},
	}
	if bind != nil {
		bind(f, cmd.Flags())
	}
	return cmd
}

func (a *app) moveCmd() *cobra.Command {
	return a.requestCmd("move", "move to a displacement at a speed", command.KindMove,
		func(f *motionFlags, fs *pflag.FlagSet) {
			f.bindDisplacement(fs)
			f.bindSpeed(fs)
		})
}

func (a *app) extendCmd() *cobra.Command {
	return a.requestCmd("extend", "move to a displacement at maximum speed", command.KindExtend,
		func(f *motionFlags, fs *pflag.FlagSet) {
			f.bindDisplacement(fs)
		})
}

func (a *app) retractCmd() *cobra.Command {
	return a.requestCmd("retract", "move to the retract position at maximum speed", command.KindRetract, nil)
}

func (a *app) resetCmd() *cobra.Command {
	return a.requestCmd("reset", "send the reset token", command.KindReset, nil)
}

func (a *app) oscillateCmd() *cobra.Command {
	return a.requestCmd("oscillate", "alternate between a displacement and the retract position", command.KindOscillate,
		func(f *motionFlags, fs *pflag.FlagSet) {
			f.bindDisplacement(fs)
			f.bindSpeed(fs)
			f.bindRepeats(fs)
			f.bindDuration(fs, "period", "wait after each move")
		})
}

func (a *app) exposeCmd() *cobra.Command {
	return a.requestCmd("expose", "hold a displacement for a duration, then retract", command.KindExpose,
		func(f *motionFlags, fs *pflag.FlagSet) {
			f.bindDisplacement(fs)
			f.bindSpeed(fs)
			f.bindDuration(fs, "duration", "hold time")
		})
}

func (a *app) repeatCmd() *cobra.Command {
	return a.requestCmd("repeat", "reset, wait, move; repeated", command.KindRepeatWithReset,
		func(f *motionFlags, fs *pflag.FlagSet) {
			f.bindDisplacement(fs)
			f.bindSpeed(fs)
			f.bindRepeats(fs)
			f.bindDuration(fs, "delay", "wait between reset and move")
		})
}

func (a *app) portsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "list serial ports and mark the one auto-detection would pick",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ports, err := serial.NewDriver(a.cfg.Defaults.MockSerial).ListPorts()
			if err != nil {
				return err
			}
			printPorts(cmd.OutOrStdout(), ports, a.cfg.Serial.PreferredSubstring)
			return nil
		},
	}
}

func (a *app) serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "start the web front end (port from --web, default 8080)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.serve(cmd.Context())
		},
	}
}

// serve holds one session open for the lifetime of the web server.
func (a *app) serve(ctx context.Context) error {
	port := a.webPort.port()
	if port == 0 {
		port = a.webPort.defaultPort
	}

	return a.withSession(func(s *session.Session) error {
		broadcaster := web.NewStatusBroadcaster()
		debug.SetOutput(io.MultiWriter(debug.Output(), web.BroadcastWriter(broadcaster)))

		srv := web.NewServer(fmt.Sprintf(":%d", port), broadcaster, s.Dispatch,
			s.Controller().LastToken, formDefaults(a.cfg, s.Port.Path))
		return srv.Run(ctx)
	})
}

// formDefaults maps the configuration onto the control page's sliders.
func formDefaults(cfg *config.Config, port string) web.FormConfig {
	return web.FormConfig{
		MinDisplacement:     cfg.Protocol.MinDisplacement,
		MaxDisplacement:     cfg.Protocol.MaxDisplacement,
		DefaultDisplacement: cfg.Motion.DefaultDisplacementMm,
		DefaultSpeed:        cfg.Motion.DefaultSpeed,
		Repeats:             cfg.Motion.Repeats,
		PeriodS:             cfg.Period().Seconds(),
		ExposureS:           cfg.Exposure().Seconds(),
		RepeatDelayS:        cfg.RepeatDelay().Seconds(),
		Port:                port,
	}
}

// describePort is the one-line form used by the ports listing.
func describePort(p serial.PortDescriptor) string {
	if p.Description == "" || strings.EqualFold(p.Description, p.Path) {
		return p.Path
	}
	return fmt.Sprintf("%s  %s", p.Path, p.Description)
}
