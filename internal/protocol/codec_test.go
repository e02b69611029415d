package protocol

import (
	"errors"
	"strings"
	"testing"
)

func TestEncode_Unscaled(t *testing.T) {
	k := NewCodec(1, 0, 15)
	tok, err := k.Encode(Command{Displacement: 12, Speed: 3})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if tok != "12c" {
		t.Errorf("token = %q, want \"12c\"", tok)
	}
}

func TestEncode_Scaled(t *testing.T) {
	k := NewCodec(6, 0, 15)
	tok, err := k.Encode(Command{Displacement: 12, Speed: 3})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if tok != "72c" {
		t.Errorf("token = %q, want \"72c\"", tok)
	}
}

func TestEncode_ZeroScaleMeansUnscaled(t *testing.T) {
	k := Codec{MinDisplacement: 0, MaxDisplacement: 15}
	tok, err := k.Encode(Command{Displacement: 9, Speed: 6})
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if tok != "9f" {
		t.Errorf("token = %q, want \"9f\"", tok)
	}
}

func TestEncode_TruncatesTowardZero(t *testing.T) {
	cases := []struct {
		name  string
		scale float64
		disp  int
		want  Token
	}{
		{"positive", 1.5, 3, "4a"},
		{"negative", 1.5, -3, "-4a"},
		{"fraction_below_one", 0.4, 2, "0a"},
		{"float_error_below_integer", 0.29, 100, "29a"},
		{"float_error_negative", 0.29, -100, "-29a"},
		{"float_error_tenths", 0.1, 30, "3a"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			k := NewCodec(tc.scale, -100, 100)
			tok, err := k.Encode(Command{Displacement: tc.disp, Speed: 1})
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if tok != tc.want {
				t.Errorf("token = %q, want %q", tok, tc.want)
			}
		})
	}
}

func TestEncode_SpeedLettersAreBijective(t *testing.T) {
	k := NewCodec(1, 0, 15)
	seen := make(map[byte]SpeedLevel)
	for s := SpeedMin; s <= SpeedMax; s++ {
		tok, err := k.Encode(Command{Displacement: 5, Speed: s})
		if err != nil {
			t.Fatalf("speed %d: %v", s, err)
		}
		last := tok[len(tok)-1]
		if !strings.ContainsRune("abcdef", rune(last)) {
			t.Errorf("speed %d: last byte %q not in a-f", s, last)
		}
		if prev, dup := seen[last]; dup {
			t.Errorf("speed %d and %d share letter %q", prev, s, last)
		}
		seen[last] = s

		back, err := ParseSpeedLetter(last)
		if err != nil || back != s {
			t.Errorf("ParseSpeedLetter(%q) = %d, %v; want %d", last, back, err, s)
		}
	}
	if len(seen) != 6 {
		t.Errorf("distinct letters = %d, want 6", len(seen))
	}
}

func TestEncode_InvalidSpeed(t *testing.T) {
	k := NewCodec(1, 0, 15)
	for _, s := range []SpeedLevel{0, 7, -1, 100} {
		_, err := k.Encode(Command{Displacement: 5, Speed: s})
		if !errors.Is(err, ErrInvalidSpeed) {
			t.Errorf("speed %d: err = %v, want ErrInvalidSpeed", s, err)
		}
	}
}

func TestEncode_InvalidDisplacement(t *testing.T) {
	k := NewCodec(1, 0, 15)
	for _, d := range []int{-1, 16, 1000} {
		_, err := k.Encode(Command{Displacement: d, Speed: 3})
		if !errors.Is(err, ErrInvalidDisplacement) {
			t.Errorf("displacement %d: err = %v, want ErrInvalidDisplacement", d, err)
		}
	}
}

func TestEncode_BoundsInclusive(t *testing.T) {
	k := NewCodec(1, 0, 15)
	for _, d := range []int{0, 15} {
		if _, err := k.Encode(Command{Displacement: d, Speed: 1}); err != nil {
			t.Errorf("displacement %d: unexpected error %v", d, err)
		}
	}
}

func TestResetToken(t *testing.T) {
	if string(ResetToken.Bytes()) != "r" {
		t.Errorf("reset token = %q, want \"r\"", ResetToken)
	}
	if !ResetToken.IsReset() {
		t.Error("IsReset() = false for reset token")
	}
}

func TestDecode(t *testing.T) {
	raw, speed, reset, err := Decode("72c")
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if raw != 72 || speed != 3 || reset {
		t.Errorf("Decode(72c) = %d, %d, %v", raw, speed, reset)
	}

	_, _, reset, err = Decode(ResetToken)
	if err != nil || !reset {
		t.Errorf("Decode(r) reset = %v, err = %v", reset, err)
	}
}

func TestDecode_Invalid(t *testing.T) {
	for _, tok := range []Token{"", "c", "12", "12z", "x3a"} {
		if _, _, _, err := Decode(tok); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("Decode(%q) err = %v, want ErrInvalidToken", tok, err)
		}
	}
}

func TestRoundToInt(t *testing.T) {
	cases := []struct {
		in   float64
		want int
	}{
		{0, 0},
		{2.4, 2},
		{2.5, 3},
		{5.99, 6},
		{-1.5, -2},
	}
	for _, tc := range cases {
		if got := RoundToInt(tc.in); got != tc.want {
			t.Errorf("RoundToInt(%v) = %d, want %d", tc.in, got, tc.want)
		}
	}
}
