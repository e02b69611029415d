package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// ---------- ValidateConfigPath ----------

func TestValidateConfigPath_Valid(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "default.yaml")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := ValidateConfigPath(path); err != nil {
		t.Errorf("expected valid path, got error: %v", err)
	}
	if err := ValidateConfigPath(DefaultPath); err != nil {
		t.Errorf("DefaultPath should be valid, got: %v", err)
	}
}

func TestValidateConfigPath_PathTraversal(t *testing.T) {
	cases := []string{
		"../../etc/passwd",
		"configs/../../../etc/shadow",
		"../configs/default.yaml",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for traversal path %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_WrongExtension(t *testing.T) {
	cases := []string{
		"configs/default.json",
		"configs/default.yml",
		"configs/default.txt",
		"configs/default",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for extension in %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_NotInConfigsDir(t *testing.T) {
	cases := []string{
		"other/default.yaml",
		"default.yaml",
		"/tmp/default.yaml",
	}
	for _, path := range cases {
		if err := ValidateConfigPath(path); err == nil {
			t.Errorf("expected error for path outside configs/ %q, got nil", path)
		}
	}
}

func TestValidateConfigPath_EmptyPath(t *testing.T) {
	if err := ValidateConfigPath(""); err == nil {
		t.Error("expected error for empty path, got nil")
	}
}

// ---------- Load ----------

// writeConfig creates a temporary configs/ dir with the given YAML content and returns the path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "test.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

const validYAML = `
serial:
  preferred_substring: "CH340"
  fallback_path: "/dev/ttyUSB0"
  baud_rate: 19200
  terminator: "\n"
protocol:
  scale_factor: 6
  min_displacement: 0
  max_displacement: 9
motion:
  retract_length_mm: 1
  max_speed: 5
  default_speed: 2
  default_displacement_mm: 4
  repeats: 7
  period_ms: 1500
  exposure_ms: 2500
  repeat_delay_ms: 3000
defaults:
  debug_level: 3
  mock_serial: true
  log_file: "servoctl.log"
`

func TestLoad_ValidFullConfig(t *testing.T) {
	path := writeConfig(t, validYAML)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Serial.PreferredSubstring != "CH340" {
		t.Errorf("serial.preferred_substring = %q, want CH340", cfg.Serial.PreferredSubstring)
	}
	if cfg.Serial.FallbackPath != "/dev/ttyUSB0" {
		t.Errorf("serial.fallback_path = %q, want /dev/ttyUSB0", cfg.Serial.FallbackPath)
	}
	if cfg.Serial.BaudRate != 19200 {
		t.Errorf("serial.baud_rate = %d, want 19200", cfg.Serial.BaudRate)
	}
	if cfg.Serial.Terminator != "\n" {
		t.Errorf("serial.terminator = %q, want newline", cfg.Serial.Terminator)
	}
	if cfg.Protocol.ScaleFactor != 6 {
		t.Errorf("protocol.scale_factor = %v, want 6", cfg.Protocol.ScaleFactor)
	}
	if cfg.Protocol.MaxDisplacement != 9 {
		t.Errorf("protocol.max_displacement = %d, want 9", cfg.Protocol.MaxDisplacement)
	}
	if cfg.Motion.RetractLengthMm != 1 {
		t.Errorf("motion.retract_length_mm = %d, want 1", cfg.Motion.RetractLengthMm)
	}
	if cfg.Motion.Repeats != 7 {
		t.Errorf("motion.repeats = %d, want 7", cfg.Motion.Repeats)
	}
	if cfg.Period() != 1500*time.Millisecond {
		t.Errorf("Period() = %s, want 1.5s", cfg.Period())
	}
	if cfg.Exposure() != 2500*time.Millisecond {
		t.Errorf("Exposure() = %s, want 2.5s", cfg.Exposure())
	}
	if cfg.RepeatDelay() != 3*time.Second {
		t.Errorf("RepeatDelay() = %s, want 3s", cfg.RepeatDelay())
	}
	if cfg.Defaults.DebugLevel != 3 || !cfg.Defaults.MockSerial || cfg.Defaults.LogFile != "servoctl.log" {
		t.Errorf("defaults = %+v", cfg.Defaults)
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	path := writeConfig(t, "defaults:\n  mock_serial: true\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Serial.PreferredSubstring != "Arduino" {
		t.Errorf("preferred_substring default = %q, want Arduino", cfg.Serial.PreferredSubstring)
	}
	if cfg.Serial.FallbackPath != "COM6" {
		t.Errorf("fallback_path default = %q, want COM6", cfg.Serial.FallbackPath)
	}
	if cfg.Serial.BaudRate != 9600 {
		t.Errorf("baud_rate default = %d, want 9600", cfg.Serial.BaudRate)
	}
	if cfg.Protocol.ScaleFactor != 1 {
		t.Errorf("scale_factor default = %v, want 1", cfg.Protocol.ScaleFactor)
	}
	if cfg.Protocol.MinDisplacement != 0 || cfg.Protocol.MaxDisplacement != 15 {
		t.Errorf("displacement range default = %d-%d, want 0-15",
			cfg.Protocol.MinDisplacement, cfg.Protocol.MaxDisplacement)
	}
	if cfg.Motion.RetractLengthMm != 2 {
		t.Errorf("retract_length_mm default = %d, want 2", cfg.Motion.RetractLengthMm)
	}
	if cfg.Motion.MaxSpeed != 6 {
		t.Errorf("max_speed default = %d, want 6", cfg.Motion.MaxSpeed)
	}
	if cfg.RepeatDelay() != 4*time.Second {
		t.Errorf("repeat delay default = %s, want 4s", cfg.RepeatDelay())
	}
	if cfg.Period() != 5*time.Second || cfg.Exposure() != 5*time.Second {
		t.Errorf("period/exposure default = %s/%s, want 5s/5s", cfg.Period(), cfg.Exposure())
	}
	if cfg.Defaults.DebugLevel != 1 {
		t.Errorf("debug_level = %d, want 1", cfg.Defaults.DebugLevel)
	}
}

func TestLoad_ExplicitZeroKept(t *testing.T) {
	path := writeConfig(t, `
motion:
  retract_length_mm: 0
  default_speed: 0
  repeats: 0
  period_ms: 0
defaults:
  debug_level: 0
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Motion.RetractLengthMm != 0 {
		t.Errorf("retract_length_mm = %d, want 0", cfg.Motion.RetractLengthMm)
	}
	if cfg.Motion.DefaultSpeed != 0 {
		t.Errorf("default_speed = %d, want 0", cfg.Motion.DefaultSpeed)
	}
	if cfg.Motion.Repeats != 0 {
		t.Errorf("repeats = %d, want 0", cfg.Motion.Repeats)
	}
	if cfg.Period() != 0 {
		t.Errorf("Period() = %s, want 0", cfg.Period())
	}
	if cfg.Defaults.DebugLevel != 0 {
		t.Errorf("debug_level = %d, want 0", cfg.Defaults.DebugLevel)
	}
	// Siblings of the explicit zeros keep their defaults.
	if cfg.Motion.MaxSpeed != 6 || cfg.Motion.RepeatDelayMs != 4000 {
		t.Errorf("max_speed/repeat_delay_ms = %d/%d, want 6/4000", cfg.Motion.MaxSpeed, cfg.Motion.RepeatDelayMs)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default() does not validate: %v", err)
	}
	if cfg.Defaults.DebugLevel != 1 {
		t.Errorf("debug_level = %d, want 1", cfg.Defaults.DebugLevel)
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	cases := []struct {
		name string
		yaml string
	}{
		{"negative_scale", "protocol:\n  scale_factor: -6\n"},
		{"zero_scale", "protocol:\n  scale_factor: 0\n"},
		{"zero_baud", "serial:\n  baud_rate: 0\n"},
		{"empty_fallback", "serial:\n  fallback_path: \"\"\n"},
		{"inverted_range", "protocol:\n  min_displacement: 10\n  max_displacement: 5\n"},
		{"retract_out_of_range", "motion:\n  retract_length_mm: 40\n"},
		{"default_displacement_out_of_range", "motion:\n  default_displacement_mm: 16\n"},
		{"max_speed_too_high", "motion:\n  max_speed: 7\n"},
		{"default_speed_too_high", "motion:\n  default_speed: 9\n"},
		{"negative_repeats", "motion:\n  repeats: -2\n"},
		{"negative_period", "motion:\n  period_ms: -1\n"},
		{"debug_level_too_high", "defaults:\n  debug_level: 5\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, tc.yaml)
			if _, err := Load(path); err == nil {
				t.Errorf("expected error for %s, got nil", tc.name)
			}
		})
	}
}

func TestLoad_FileTooLarge(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "big.yaml")
	data := make([]byte, MaxConfigFileBytes+1)
	for i := range data {
		data[i] = '#'
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for oversized config file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "{{{{invalid yaml!!!!")
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for invalid YAML, got nil")
	}
}

func TestLoad_EmptyFileUsesDefaults(t *testing.T) {
	path := writeConfig(t, "")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("empty config should load with defaults, got: %v", err)
	}
	if cfg.Serial.FallbackPath != "COM6" {
		t.Errorf("fallback_path = %q, want COM6", cfg.Serial.FallbackPath)
	}
}

func TestLoad_UnknownFields(t *testing.T) {
	yaml := `
protocol:
  scale_factor: 1
unknown_section:
  foo: bar
`
	path := writeConfig(t, yaml)
	_, err := Load(path)
	if err != nil {
		t.Errorf("unknown fields should be ignored, got error: %v", err)
	}
}

func TestLoad_FileNotFound(t *testing.T) {
	dir := t.TempDir()
	cfgDir := filepath.Join(dir, "configs")
	if err := os.Mkdir(cfgDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(cfgDir, "nonexistent.yaml")
	_, err := Load(path)
	if err == nil {
		t.Error("expected error for nonexistent file, got nil")
	}
}

func TestLoad_RejectsInvalidPath(t *testing.T) {
	_, err := Load("/etc/passwd")
	if err == nil || !strings.Contains(err.Error(), ".yaml") {
		t.Errorf("expected extension error, got %v", err)
	}
}

func TestLoad_RepositoryDefault(t *testing.T) {
	t.Chdir(filepath.Join("..", ".."))
	cfg, err := Load(DefaultPath)
	if err != nil {
		t.Fatalf("Load(%s): %v", DefaultPath, err)
	}
	if cfg.Protocol.ScaleFactor != 6 {
		t.Errorf("scale_factor = %v, want 6", cfg.Protocol.ScaleFactor)
	}
	if cfg.Serial.BaudRate != 9600 {
		t.Errorf("baud_rate = %d, want 9600", cfg.Serial.BaudRate)
	}
}
