package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/pushrod/servoctl/internal/config"
	"github.com/pushrod/servoctl/internal/debug"
	"github.com/pushrod/servoctl/internal/hw/serial"
	"github.com/pushrod/servoctl/internal/session"
)

// app carries the root flags and the state built from them before a
// subcommand runs.
type app struct {
	cfgPath  string
	portPath string
	mock     bool
	webPort  *webPortFlag

	cfg     *config.Config
	logSink io.Closer
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	cancel()
	if err != nil {
		log.Fatalf("servoctl: %v", err)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{webPort: &webPortFlag{defaultPort: 8080}}

	root := &cobra.Command{
		Use:   "servoctl",
		Short: "drive a serial linear actuator",
		Long: "servoctl sends displacement/speed commands to an Arduino-driven linear actuator\n" +
			"and runs timed programs (oscillate, expose, repeat with reset).",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: a.setup,
		PersistentPostRun: a.teardown,
		RunE: func(cmd *cobra.Command, args []string) error {
			if a.webPort.port() > 0 {
				return a.serve(cmd.Context())
			}
			return cmd.Help()
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.cfgPath, "config", config.DefaultPath, "path to config file")
	pf.StringVar(&a.portPath, "port", "", "serial port path; skips auto-detection")
	pf.BoolVar(&a.mock, "mock", false, "use the mock serial driver")
	pf.Var(a.webPort, "web", "start the web front end on port; --web for 8080, --web=8980 for a custom port")
	pf.Lookup("web").NoOptDefVal = "8080"

	root.AddCommand(
		a.moveCmd(),
		a.extendCmd(),
		a.retractCmd(),
		a.resetCmd(),
		a.oscillateCmd(),
		a.exposeCmd(),
		a.repeatCmd(),
		a.portsCmd(),
		a.serveCmd(),
	)
	return root
}

// setup loads the configuration and initialises logging.
func (a *app) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(a.cfgPath, cmd.Flags().Changed("config"))
	if err != nil {
		return fmt.Errorf("load config failed: %w", err)
	}
	if a.mock {
		cfg.Defaults.MockSerial = true
	}
	a.cfg = cfg

	debug.Init(cfg.Defaults.DebugLevel)
	if cfg.Defaults.LogFile != "" {
		a.logSink = debug.AddFileSink(cfg.Defaults.LogFile)
	}
	debug.Section("Initialization")
	debug.Value("Config path", a.cfgPath)
	debug.Value("Debug level", cfg.Defaults.DebugLevel)
	debug.Value("Mock serial", cfg.Defaults.MockSerial)
	debug.PrintStruct("Serial config", cfg.Serial)
	debug.PrintStruct("Protocol config", cfg.Protocol)
	return nil
}

func (a *app) teardown(*cobra.Command, []string) {
	if a.logSink != nil {
		a.logSink.Close()
	}
}

// loadConfig reads path. A missing default file falls back to built-in
// defaults; a missing explicit file is an error.
func loadConfig(path string, explicit bool) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil && !explicit && errors.Is(err, fs.ErrNotExist) {
		return config.Default(), nil
	}
	return cfg, err
}

// withSession opens the actuator, runs fn and always closes the port.
func (a *app) withSession(fn func(*session.Session) error) error {
	driver := serial.NewDriver(a.cfg.Defaults.MockSerial)
	s, err := session.NewConnector(a.cfg, driver, nil).Connect(a.portPath)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.Close(); err != nil {
			log.Printf("closing serial port failed: %v", err)
		}
	}()
	if !s.Detected {
		printWarn(fmt.Sprintf("%s not found, using %s", a.cfg.Serial.PreferredSubstring, s.Port.Path))
	}
	return fn(s)
}

// webPortFlag implements pflag.Value for --web: 0 = disabled, --web → 8080, --web=8980 → 8980.
type webPortFlag struct {
	val         int
	defaultPort int
}

func (w *webPortFlag) String() string {
	return strconv.Itoa(w.val)
}

func (w *webPortFlag) Set(s string) error {
	if s == "" {
		w.val = w.defaultPort
		return nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return err
	}
	if v <= 0 || v > 65535 {
		return fmt.Errorf("port must be 1-65535, got %d", v)
	}
	w.val = v
	return nil
}

func (w *webPortFlag) Type() string { return "port" }

func (w *webPortFlag) port() int { return w.val }
