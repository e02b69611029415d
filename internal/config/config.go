package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// MaxConfigFileBytes bounds the size of a config file Load accepts.
const MaxConfigFileBytes = 64 << 10

// DefaultPath is where the CLI looks for a config when none is given.
var DefaultPath = filepath.Join("configs", "default.yaml")

// SerialConfig describes how to find and open the actuator's serial port.
type SerialConfig struct {
	PreferredSubstring string `yaml:"preferred_substring"` // matched against the port description, e.g. "Arduino"
	FallbackPath       string `yaml:"fallback_path"`       // used when detection fails, e.g. "COM6"
	BaudRate           int    `yaml:"baud_rate"`
	Terminator         string `yaml:"terminator"` // appended to every token; empty for the stock firmware
}

// ProtocolConfig pins the token encoding to the deployed firmware.
type ProtocolConfig struct {
	ScaleFactor     float64 `yaml:"scale_factor"` // degrees per mm; 1 sends raw mm
	MinDisplacement int     `yaml:"min_displacement"`
	MaxDisplacement int     `yaml:"max_displacement"`
}

// MotionConfig holds defaults for the front ends' sliders and programs.
type MotionConfig struct {
	RetractLengthMm       int `yaml:"retract_length_mm"`
	MaxSpeed              int `yaml:"max_speed"`
	DefaultSpeed          int `yaml:"default_speed"`
	DefaultDisplacementMm int `yaml:"default_displacement_mm"`
	Repeats               int `yaml:"repeats"`
	PeriodMs              int `yaml:"period_ms"`       // oscillation wait after each move
	ExposureMs            int `yaml:"exposure_ms"`     // expose hold time
	RepeatDelayMs         int `yaml:"repeat_delay_ms"` // reset-to-move delay
}

// DefaultsConfig contains generic runtime parameters.
type DefaultsConfig struct {
	DebugLevel int    `yaml:"debug_level"` // debug level 0-4 (0=off, 1=info, 2=live, 3=verbose, 4=trace)
	MockSerial bool   `yaml:"mock_serial"` // use the mock serial driver (true=dev/test)
	LogFile    string `yaml:"log_file"`    // optional rotating log file
}

// Config aggregates all application configuration.
type Config struct {
	Serial   SerialConfig   `yaml:"serial"`
	Protocol ProtocolConfig `yaml:"protocol"`
	Motion   MotionConfig   `yaml:"motion"`
	Defaults DefaultsConfig `yaml:"defaults"`
}

// Default returns the configuration used when no file is present. Load
// starts from it, so keys absent from the file keep these values and keys
// present in the file, zero included, replace them.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			PreferredSubstring: "Arduino",
			FallbackPath:       "COM6",
			BaudRate:           9600,
		},
		Protocol: ProtocolConfig{
			ScaleFactor:     1, // raw mm unless the firmware expects degrees
			MinDisplacement: 0,
			MaxDisplacement: 15, // slider range 0-15 mm
		},
		Motion: MotionConfig{
			RetractLengthMm:       2,
			MaxSpeed:              6,
			DefaultSpeed:          3,
			DefaultDisplacementMm: 2,
			Repeats:               3,
			PeriodMs:              5000,
			ExposureMs:            5000,
			RepeatDelayMs:         4000,
		},
		Defaults: DefaultsConfig{DebugLevel: 1},
	}
}

// ValidateConfigPath rejects paths that are empty, not .yaml, contain a
// traversal or do not live directly in a configs/ directory.
func ValidateConfigPath(path string) error {
	if path == "" {
		return errors.New("config path is empty")
	}
	for _, part := range strings.Split(filepath.ToSlash(path), "/") {
		if part == ".." {
			return fmt.Errorf("config path %q must not contain ..", path)
		}
	}
	if filepath.Ext(path) != ".yaml" {
		return fmt.Errorf("config path %q must end in .yaml", path)
	}
	if filepath.Base(filepath.Dir(filepath.Clean(path))) != "configs" {
		return fmt.Errorf("config path %q must be inside a configs/ directory", path)
	}
	return nil
}

// Load reads a YAML file and returns the configuration.
func Load(path string) (*Config, error) {
	if err := ValidateConfigPath(path); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	if info.Size() > MaxConfigFileBytes {
		return nil, fmt.Errorf("config file %s is %d bytes, max %d", path, info.Size(), MaxConfigFileBytes)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the ranges of all values.
func (c *Config) Validate() error {
	if c.Serial.FallbackPath == "" {
		return errors.New("serial.fallback_path must not be empty")
	}
	if c.Serial.BaudRate <= 0 {
		return fmt.Errorf("serial.baud_rate must be > 0, got %d", c.Serial.BaudRate)
	}
	if c.Protocol.ScaleFactor <= 0 {
		return fmt.Errorf("protocol.scale_factor must be > 0, got %g", c.Protocol.ScaleFactor)
	}
	if c.Protocol.MinDisplacement > c.Protocol.MaxDisplacement {
		return fmt.Errorf("protocol.min_displacement (%d) must be <= max_displacement (%d)",
			c.Protocol.MinDisplacement, c.Protocol.MaxDisplacement)
	}
	if !c.inRange(c.Motion.RetractLengthMm) {
		return fmt.Errorf("motion.retract_length_mm must be between %d and %d, got %d",
			c.Protocol.MinDisplacement, c.Protocol.MaxDisplacement, c.Motion.RetractLengthMm)
	}
	if !c.inRange(c.Motion.DefaultDisplacementMm) {
		return fmt.Errorf("motion.default_displacement_mm must be between %d and %d, got %d",
			c.Protocol.MinDisplacement, c.Protocol.MaxDisplacement, c.Motion.DefaultDisplacementMm)
	}
	if c.Motion.MaxSpeed < 1 || c.Motion.MaxSpeed > 6 {
		return fmt.Errorf("motion.max_speed must be between 1 and 6, got %d", c.Motion.MaxSpeed)
	}
	if c.Motion.DefaultSpeed < 0 || c.Motion.DefaultSpeed > 6 {
		return fmt.Errorf("motion.default_speed must be between 0 and 6, got %d", c.Motion.DefaultSpeed)
	}
	if c.Motion.Repeats < 0 {
		return fmt.Errorf("motion.repeats must be >= 0, got %d", c.Motion.Repeats)
	}
	if c.Motion.PeriodMs < 0 || c.Motion.ExposureMs < 0 || c.Motion.RepeatDelayMs < 0 {
		return errors.New("motion durations must be >= 0")
	}
	if c.Defaults.DebugLevel < 0 || c.Defaults.DebugLevel > 4 {
		return fmt.Errorf("defaults.debug_level must be between 0 and 4, got %d", c.Defaults.DebugLevel)
	}
	return nil
}

func (c *Config) inRange(mm int) bool {
	return mm >= c.Protocol.MinDisplacement && mm <= c.Protocol.MaxDisplacement
}

// Period returns the oscillation wait.
func (c *Config) Period() time.Duration {
	return time.Duration(c.Motion.PeriodMs) * time.Millisecond
}

// Exposure returns the expose hold time.
func (c *Config) Exposure() time.Duration {
	return time.Duration(c.Motion.ExposureMs) * time.Millisecond
}

// RepeatDelay returns the wait between reset and move in a repeat program.
func (c *Config) RepeatDelay() time.Duration {
	return time.Duration(c.Motion.RepeatDelayMs) * time.Millisecond
}
