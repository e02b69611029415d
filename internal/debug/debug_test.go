package debug

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func capture(t *testing.T, lvl int) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	Init(lvl)
	t.Cleanup(func() {
		SetOutput(os.Stdout)
		Init(LevelOff)
	})
	return &buf
}

func TestLevelGating(t *testing.T) {
	cases := []struct {
		level int
		want  []string
		skip  []string
	}{
		{LevelOff, nil, []string{"[INFO]", "[LIVE]", "[VERBOSE]", "[SERIAL]"}},
		{LevelInfo, []string{"[INFO] port", "[WARN] fallback"}, []string{"[LIVE]", "[VERBOSE]"}},
		{LevelLive, []string{"[LIVE] wait 5s", "[LIVE] oscillate 1/3"}, []string{"[VERBOSE]", "[SERIAL]"}},
		{LevelTrace, []string{"[VERBOSE]   scale = 6", "[SERIAL] COM6 write 35 34 64"}, nil},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("level_%d", tc.level), func(t *testing.T) {
			buf := capture(t, tc.level)

			Info("port %s", "COM6")
			Warn("fallback")
			Wait(5 * time.Second)
			Progress("oscillate", 1, 3)
			Value("scale", 6)
			Bytes("COM6", []byte("54d"))

			out := buf.String()
			for _, s := range tc.want {
				if !strings.Contains(out, s) {
					t.Errorf("level %d: missing %q in %q", tc.level, s, out)
				}
			}
			for _, s := range tc.skip {
				if strings.Contains(out, s) {
					t.Errorf("level %d: unexpected %q in %q", tc.level, s, out)
				}
			}
		})
	}
}

func TestIsEnabled(t *testing.T) {
	capture(t, LevelLive)
	if !IsEnabled(LevelInfo) || !IsEnabled(LevelLive) {
		t.Error("info and live should be enabled at level 2")
	}
	if IsEnabled(LevelVerbose) {
		t.Error("verbose should be disabled at level 2")
	}
	if Level() != LevelLive {
		t.Errorf("Level() = %d, want %d", Level(), LevelLive)
	}
}

func TestFmt(t *testing.T) {
	capture(t, LevelOff)
	if s := Fmt("%d", 1); s != "" {
		t.Errorf("Fmt at level 0 = %q, want empty", s)
	}
	Init(LevelInfo)
	if s := Fmt("%d", 1); s != "1" {
		t.Errorf("Fmt at level 1 = %q, want \"1\"", s)
	}
}

func TestAddFileSink(t *testing.T) {
	buf := capture(t, LevelInfo)
	path := filepath.Join(t.TempDir(), "servoctl.log")

	sink := AddFileSink(path)
	Info("to both")
	if err := sink.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if !strings.Contains(buf.String(), "to both") {
		t.Errorf("console output missing line: %q", buf.String())
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), "[servoctl] ") || !strings.Contains(string(data), "[INFO] to both") {
		t.Errorf("log file = %q", data)
	}
}
