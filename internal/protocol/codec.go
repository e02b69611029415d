// Package protocol implements the ASCII token format understood by the
// actuator firmware: a decimal displacement immediately followed by a single
// speed letter ("12c"), or the single byte "r" for a reset.
package protocol

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

var (
	ErrInvalidSpeed        = errors.New("invalid speed level")
	ErrInvalidDisplacement = errors.New("invalid displacement")
	ErrInvalidToken        = errors.New("invalid token")
)

// SpeedLevel selects the actuator motion speed. Valid levels are 1 to 6.
// Level 0 means "no motion" and never reaches the codec.
type SpeedLevel int

const (
	SpeedNone SpeedLevel = 0
	SpeedMin  SpeedLevel = 1
	SpeedMax  SpeedLevel = 6
)

// speedLetters is the inverse of the firmware decode table.
const speedLetters = "abcdef"

// ResetToken is written to re-home the actuator.
const ResetToken Token = "r"

// Valid reports whether s is one of the six encodable levels.
func (s SpeedLevel) Valid() bool {
	return s >= SpeedMin && s <= SpeedMax
}

// Letter returns the wire letter for s.
func (s SpeedLevel) Letter() (byte, error) {
	if !s.Valid() {
		return 0, fmt.Errorf("%w: %d (must be %d-%d)", ErrInvalidSpeed, s, SpeedMin, SpeedMax)
	}
	return speedLetters[s-SpeedMin], nil
}

// ParseSpeedLetter maps a wire letter back to its level.
func ParseSpeedLetter(c byte) (SpeedLevel, error) {
	if c < 'a' || c > 'f' {
		return SpeedNone, fmt.Errorf("%w: letter %q", ErrInvalidSpeed, c)
	}
	return SpeedLevel(c-'a') + SpeedMin, nil
}

// Token is one command as written to the serial link.
type Token string

// Bytes returns the raw bytes of the token.
func (t Token) Bytes() []byte {
	return []byte(t)
}

// IsReset reports whether t is the reset token.
func (t Token) IsReset() bool {
	return t == ResetToken
}

// Command is a displacement and a speed. It is a value type and is not
// modified once built.
type Command struct {
	Displacement int
	Speed        SpeedLevel
}

func (c Command) String() string {
	return fmt.Sprintf("move(%dmm, speed %d)", c.Displacement, c.Speed)
}

// Codec encodes commands for one deployment. Scale is the firmware's
// degrees-per-millimeter factor (1 sends raw millimeters). Displacements
// outside [MinDisplacement, MaxDisplacement] are rejected.
type Codec struct {
	Scale           float64
	MinDisplacement int
	MaxDisplacement int
}

// NewCodec returns a codec. A zero scale is treated as 1.
func NewCodec(scale float64, minDisplacement, maxDisplacement int) Codec {
	if scale == 0 {
		scale = 1
	}
	return Codec{
		Scale:           scale,
		MinDisplacement: minDisplacement,
		MaxDisplacement: maxDisplacement,
	}
}

// Encode builds the wire token for c: the scaled displacement truncated
// toward zero (after snapping float error), immediately followed by the speed letter. No terminator is
// appended.
func (k Codec) Encode(c Command) (Token, error) {
	letter, err := c.Speed.Letter()
	if err != nil {
		return "", err
	}
	if c.Displacement < k.MinDisplacement || c.Displacement > k.MaxDisplacement {
		return "", fmt.Errorf("%w: %dmm (must be %d-%d)", ErrInvalidDisplacement,
			c.Displacement, k.MinDisplacement, k.MaxDisplacement)
	}
	scale := k.Scale
	if scale == 0 {
		scale = 1
	}
	raw := int64(math.Trunc(snap(scale * float64(c.Displacement))))
	return Token(strconv.FormatInt(raw, 10) + string(letter)), nil
}

// snap rounds v to 1e-9 so a product such as 0.29*100 = 28.999... lands on
// the integer it denotes before truncation.
func snap(v float64) float64 {
	return math.Round(v*1e9) / 1e9
}

// Decode parses a token back into its raw (already scaled) displacement and
// speed. The reset token decodes with reset set to true.
func Decode(t Token) (raw int, speed SpeedLevel, reset bool, err error) {
	if t.IsReset() {
		return 0, SpeedNone, true, nil
	}
	if len(t) < 2 {
		return 0, SpeedNone, false, fmt.Errorf("%w: %q", ErrInvalidToken, string(t))
	}
	speed, err = ParseSpeedLetter(t[len(t)-1])
	if err != nil {
		return 0, SpeedNone, false, fmt.Errorf("%w: %q: %v", ErrInvalidToken, string(t), err)
	}
	raw, err = strconv.Atoi(string(t[:len(t)-1]))
	if err != nil {
		return 0, SpeedNone, false, fmt.Errorf("%w: %q", ErrInvalidToken, string(t))
	}
	return raw, speed, false, nil
}

// RoundToInt rounds a continuous slider value to the nearest integer,
// half away from zero.
func RoundToInt(v float64) int {
	return int(math.Round(v))
}
