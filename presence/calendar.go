package presence

import (
	"time"
)

// =============================================================================
// DAY - Calendar day in local wall-clock terms
// =============================================================================

// Day is a calendar date. Its Time is always midnight in the location of the
// timestamp it was derived from, so wall-clock comparisons stay naive.
type Day struct {
	Time time.Time
}

// NewDay builds a day in the local location.
func NewDay(year int, month time.Month, day int) Day {
	return Day{Time: time.Date(year, month, day, 0, 0, 0, 0, time.Local)}
}

// DayOf returns the calendar day containing t.
func DayOf(t time.Time) Day {
	return Day{Time: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())}
}

// ParseDay parses "2006-01-02" in the local location.
func ParseDay(s string) (Day, error) {
	t, err := time.ParseInLocation(DayLayout, s, time.Local)
	if err != nil {
		return Day{}, err
	}
	return Day{Time: t}, nil
}

const DayLayout = "2006-01-02"

// Bounds returns [start, end) of the day.
func (d Day) Bounds() (time.Time, time.Time) {
	return d.Time, d.Time.AddDate(0, 0, 1)
}

// Contains reports whether t falls on this calendar day (wall clock).
func (d Day) Contains(t time.Time) bool {
	return t.Year() == d.Time.Year() && t.Month() == d.Time.Month() && t.Day() == d.Time.Day()
}

// At places a clock time on this day.
func (d Day) At(c ClockTime) time.Time {
	return time.Date(d.Time.Year(), d.Time.Month(), d.Time.Day(), c.Hour(), c.Minute(), 0, 0, d.Time.Location())
}

func (d Day) AddDays(n int) Day     { return Day{Time: d.Time.AddDate(0, 0, n)} }
func (d Day) Weekday() time.Weekday { return d.Time.Weekday() }
func (d Day) Before(other Day) bool { return d.String() < other.String() }
func (d Day) Equal(other Day) bool  { return d.String() == other.String() }
func (d Day) String() string        { return d.Time.Format(DayLayout) }
func (d Day) IsZero() bool          { return d.Time.IsZero() }

// TrailingDays returns the n days ending at ref (inclusive), oldest first.
func TrailingDays(ref Day, n int) []Day {
	if n <= 0 {
		return nil
	}
	days := make([]Day, n)
	for i := 0; i < n; i++ {
		days[i] = ref.AddDays(i - (n - 1))
	}
	return days
}
