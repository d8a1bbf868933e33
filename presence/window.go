/*
window.go - Admission window matching

PURPOSE:
  Decides whether a scan time falls inside any shift of a schedule, either
  on the exact working window or on the grace buffer around it.

POLICY (AdmissionWindowPolicy):
  StartDay <= EndDay:  every weekday in [StartDay, EndDay], clock [Start, End]
  StartDay >  EndDay:  StartDay from Start to 23:59, EndDay from 00:00 to End;
                       weekdays strictly between the two are NOT evaluated
  Buffer:              BufferMinutes before Start and after End

WEEK MINUTES:
  Every window is an interval of "minutes since Sunday 00:00" and membership
  is tested modulo one week. A shift starting at 00:30 on Monday has a buffer
  starting at 23:30 on Sunday; a Saturday shift ending at 23:30 has a buffer
  running to 00:30 on Sunday. No clock value ever leaves [00:00, 23:59].

  A non-wrapping shift whose Start is after its End has no exact window.
  Its buffer is [Start-Buffer, End+Buffer] on each day, which is non-empty
  when the inversion is smaller than twice the buffer (10:00-09:30 with a
  60 minute buffer admits 09:00-10:30).

SEE ALSO:
  - daily.go: ReportingDayPolicy, the (different) day policy used by reports
*/
package presence

import "time"

// DefaultBufferMinutes is the grace period on each side of a shift.
const DefaultBufferMinutes = 60

// MatchResult is the outcome of matching one scan time against a schedule.
// The flags are OR-ed across every shift in the schedule.
type MatchResult struct {
	WithinShift  bool
	WithinBuffer bool

	// Shift is the first shift whose exact window matched, otherwise the
	// first whose buffer matched. Nil when nothing matched.
	Shift *Shift
}

// Admissible reports whether the scan may be accepted.
func (m MatchResult) Admissible() bool { return m.WithinShift || m.WithinBuffer }

// AdmissionWindowPolicy matches scans against shift windows.
type AdmissionWindowPolicy struct {
	BufferMinutes int
}

// NewAdmissionWindowPolicy returns the policy with DefaultBufferMinutes.
func NewAdmissionWindowPolicy() AdmissionWindowPolicy {
	return AdmissionWindowPolicy{BufferMinutes: DefaultBufferMinutes}
}

// Match evaluates now against every shift of schedule. A nil schedule
// matches nothing.
func (p AdmissionWindowPolicy) Match(schedule *Schedule, now time.Time) MatchResult {
	var result MatchResult
	if schedule == nil {
		return result
	}

	at := weekMinute(now)
	var bufferShift *Shift

	for i := range schedule.Shifts {
		shift := &schedule.Shifts[i]
		exact, buffered := p.windows(*shift)

		if containsAny(exact, at) {
			if !result.WithinShift {
				result.Shift = shift
			}
			result.WithinShift = true
		}
		if containsAny(buffered, at) {
			if bufferShift == nil {
				bufferShift = shift
			}
			result.WithinBuffer = true
		}
	}

	if result.Shift == nil {
		result.Shift = bufferShift
	}
	return result
}

// windows expands a shift into its exact and buffered week intervals.
func (p AdmissionWindowPolicy) windows(s Shift) (exact, buffered []weekWindow) {
	b := p.BufferMinutes
	if b < 0 {
		b = 0
	}
	start, end := int(s.Start), int(s.End)
	lastMinute := MinutesPerDay - 1

	if s.Wraps() {
		sd := int(s.StartDay) * MinutesPerDay
		ed := int(s.EndDay) * MinutesPerDay
		exact = []weekWindow{
			{from: sd + start, length: lastMinute - start},
			{from: ed, length: end},
		}
		buffered = []weekWindow{
			{from: sd + start - b, length: lastMinute - start + b},
			{from: ed, length: end + b},
		}
		return exact, buffered
	}

	for d := s.StartDay; d <= s.EndDay; d++ {
		base := int(d) * MinutesPerDay
		if end >= start {
			exact = append(exact, weekWindow{from: base + start, length: end - start})
		}
		// An inverted shift keeps whatever overlap its buffer edges leave;
		// a negative length matches nothing.
		buffered = append(buffered, weekWindow{from: base + start - b, length: end - start + 2*b})
	}
	return exact, buffered
}

// =============================================================================
// WEEK WINDOWS
// =============================================================================

// weekWindow is the closed interval [from, from+length] in week minutes,
// taken modulo MinutesPerWeek. from may be negative.
type weekWindow struct {
	from   int
	length int
}

func (w weekWindow) contains(minute int) bool {
	if w.length < 0 {
		return false
	}
	if w.length >= MinutesPerWeek {
		return true
	}
	return mod(minute-w.from, MinutesPerWeek) <= w.length
}

func containsAny(ws []weekWindow, minute int) bool {
	for _, w := range ws {
		if w.contains(minute) {
			return true
		}
	}
	return false
}

func weekMinute(t time.Time) int {
	return int(t.Weekday())*MinutesPerDay + int(ClockOf(t))
}
