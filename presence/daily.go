/*
daily.go - Daily presence status

PURPOSE:
  Derives one day's presence status and timing deltas from the schedule and
  that day's attendance and leave events. Nothing here is persisted.

DAY POLICY (ReportingDayPolicy):
  The shift for a day is the first shift whose StartDay equals the day's
  weekday. EndDay and week wrapping are NOT considered, so a Mon-Fri shift
  reports Mondays only. AdmissionWindowPolicy (window.go) applies the full
  range; keep the two separate.

STATUS:
  attendance + leave  -> Present
  attendance only     -> Still Inside or Forgot to Checkout
  leave only          -> Absent (early still counts, presence stays 0)
  neither             -> Absent

TIMING (whole minutes, never negative):
  late      = entry clock - shift start
  early     = shift end - exit clock          (whenever there is a leave)
  presence  = leave timestamp - entry timestamp (only with both)

CANONICAL EVENTS:
  Earliest attendance and latest leave of the day. The recorder keeps one of
  each, so this only matters for data written around it.
*/
package presence

import (
	"context"
	"time"
)

// =============================================================================
// STATUS
// =============================================================================

type Status string

const (
	StatusPresent     Status = "Present"
	StatusAbsent      Status = "Absent"
	StatusStillInside Status = "Still Inside or Forgot to Checkout"

	// StatusUnknown marks a scheduled day whose events could not be read.
	StatusUnknown Status = "Unknown"
)

// DailyStatus is the derived presence of one employee on one scheduled day.
type DailyStatus struct {
	Date   Day
	Status Status
	Shift  Shift

	Entry *time.Time
	Leave *time.Time

	LateMinutes     int
	EarlyMinutes    int
	PresenceMinutes int

	// Error describes why the day is Unknown.
	Error string
}

func (d DailyStatus) LateBy() string           { return FormatMinutes(d.LateMinutes) }
func (d DailyStatus) EarlyBy() string          { return FormatMinutes(d.EarlyMinutes) }
func (d DailyStatus) PresenceDuration() string { return FormatMinutes(d.PresenceMinutes) }

// =============================================================================
// REPORTING DAY POLICY
// =============================================================================

// ReportingDayPolicy picks the shift that a report attributes to a weekday.
type ReportingDayPolicy struct{}

// ShiftFor returns the first shift starting on weekday.
func (ReportingDayPolicy) ShiftFor(schedule *Schedule, weekday time.Weekday) (Shift, bool) {
	if schedule == nil {
		return Shift{}, false
	}
	for _, s := range schedule.Shifts {
		if s.StartDay == weekday {
			return s, true
		}
	}
	return Shift{}, false
}

// =============================================================================
// EVALUATION
// =============================================================================

// Evaluate computes the status of day from its events. It is pure: the same
// inputs always give the same DailyStatus.
func Evaluate(shift Shift, day Day, attendances, leaves []Event) DailyStatus {
	st := DailyStatus{Date: day, Shift: shift, Status: StatusAbsent}

	entry := earliest(attendances)
	exit := latest(leaves)

	if exit != nil {
		ts := exit.Timestamp
		st.Leave = &ts
		st.EarlyMinutes = max(0, int(shift.End)-int(ClockOf(exit.Timestamp)))
	}
	if entry == nil {
		return st
	}

	ts := entry.Timestamp
	st.Entry = &ts
	st.LateMinutes = max(0, int(ClockOf(entry.Timestamp))-int(shift.Start))

	if exit == nil {
		st.Status = StatusStillInside
		return st
	}

	st.Status = StatusPresent
	st.PresenceMinutes = max(0, int(exit.Timestamp.Sub(entry.Timestamp)/time.Minute))
	return st
}

func earliest(events []Event) *Event {
	var out *Event
	for i := range events {
		if out == nil || events[i].Timestamp.Before(out.Timestamp) {
			out = &events[i]
		}
	}
	return out
}

func latest(events []Event) *Event {
	var out *Event
	for i := range events {
		if out == nil || events[i].Timestamp.After(out.Timestamp) {
			out = &events[i]
		}
	}
	return out
}

// =============================================================================
// RESOLVER
// =============================================================================

// Resolver reads a day's events and evaluates them.
type Resolver struct {
	Events EventStore
	Policy ReportingDayPolicy
}

// NewResolver reads events from events using the start-day reporting policy.
func NewResolver(events EventStore) *Resolver {
	return &Resolver{Events: events}
}

// ResolveDay returns ErrNotScheduled when no shift starts on day's weekday.
//
// On a store failure the returned DailyStatus still carries the date and
// shift, with StatusUnknown, alongside the error.
func (r *Resolver) ResolveDay(ctx context.Context, rec EmployeeRecord, day Day) (DailyStatus, error) {
	shift, ok := r.Policy.ShiftFor(rec.Schedule, day.Weekday())
	if !ok {
		return DailyStatus{Date: day}, ErrNotScheduled
	}

	unknown := func(err error) (DailyStatus, error) {
		return DailyStatus{Date: day, Shift: shift, Status: StatusUnknown, Error: err.Error()}, err
	}

	id := rec.Employee.ID
	attendances, err := r.Events.FindEventsForDay(ctx, id, KindAttendance, day)
	if err != nil {
		return unknown(err)
	}
	leaves, err := r.Events.FindEventsForDay(ctx, id, KindLeave, day)
	if err != nil {
		return unknown(err)
	}

	return Evaluate(shift, day, attendances, leaves), nil
}
