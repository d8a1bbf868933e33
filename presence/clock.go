package presence

import (
	"encoding/json"
	"fmt"
	"time"
)

// =============================================================================
// CLOCK TIME - Minutes since midnight
// =============================================================================

const (
	MinutesPerDay  = 24 * 60
	MinutesPerWeek = 7 * MinutesPerDay
)

// ClockTime is a time of day expressed as minutes since midnight, in [0, 1440).
// The wire format is a zero-padded 24-hour "HH:MM" string, so lexicographic
// order of the strings matches numeric order of the values.
type ClockTime int

// NewClockTime builds a ClockTime from hour and minute.
func NewClockTime(hour, minute int) ClockTime {
	return ClockTime(hour*60 + minute)
}

// ParseClockTime parses "HH:MM" (24-hour, zero-padded).
func ParseClockTime(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", s)
	if err != nil || len(s) != 5 {
		return 0, fmt.Errorf("invalid clock time %q (use HH:MM)", s)
	}
	return NewClockTime(t.Hour(), t.Minute()), nil
}

// MustParseClockTime is ParseClockTime for literals; it panics on bad input.
func MustParseClockTime(s string) ClockTime {
	c, err := ParseClockTime(s)
	if err != nil {
		panic(err)
	}
	return c
}

// ClockOf returns the wall-clock minute of t. Seconds are truncated.
func ClockOf(t time.Time) ClockTime {
	return NewClockTime(t.Hour(), t.Minute())
}

// Add shifts the clock by delta minutes, wrapping around midnight.
func (c ClockTime) Add(delta int) ClockTime {
	return ClockTime(mod(int(c)+delta, MinutesPerDay))
}

func (c ClockTime) Hour() int   { return int(c) / 60 }
func (c ClockTime) Minute() int { return int(c) % 60 }

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

func (c ClockTime) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.String())
}

func (c *ClockTime) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseClockTime(s)
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}

// mod is the non-negative remainder.
func mod(a, n int) int {
	r := a % n
	if r < 0 {
		r += n
	}
	return r
}

// =============================================================================
// DURATION FORMATTING
// =============================================================================

// FormatMinutes renders a minute count as "{hours}h {minutes}m" using floor
// division. Negative input renders as "0h 0m".
func FormatMinutes(minutes int) string {
	if minutes < 0 {
		minutes = 0
	}
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}
