/*
Package presence provides the attendance reconciliation engine.

PURPOSE:
  Reconciles badge-scan events against per-employee weekly schedules. The
  engine decides whether a device should grant access, records the resulting
  attendance or leave event, and derives daily and monthly presence status.

KEY CONCEPTS IN THIS FILE (types.go):
  - Employee / Department / Schedule: read-only records owned by administration
  - Shift: a recurring weekly window (day range + clock range)
  - Event: an immutable attendance or leave record, at most one per kind per day
  - EmployeeRecord: the fully resolved aggregate handed to the engine

DESIGN PRINCIPLES:
  1. Explicit stores: every component receives its store in the constructor
  2. Typed aggregates: schedule and department are fetched, never looked up by field name
  3. Naive local time: timestamps are wall-clock values, no timezone conversion

SEE ALSO:
  - clock.go: ClockTime (minutes since midnight)
  - window.go: AdmissionWindowPolicy (scan matching)
  - daily.go: ReportingDayPolicy and the daily resolver
  - monthly.go: trailing-window aggregation
*/
package presence

import (
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type EmployeeID string
type DepartmentID string
type ScheduleID string
type EventID string

// =============================================================================
// CREDENTIAL
// =============================================================================

// Credential is the (tag, PIN) pair presented by a scan device.
type Credential struct {
	Tag string
	PIN int
}

// =============================================================================
// ADMINISTRATIVE RECORDS
// =============================================================================

type Employee struct {
	ID           EmployeeID
	Tag          string
	PIN          int
	FirstName    string
	LastName     string
	Email        string
	Phone        string
	Status       string
	DepartmentID DepartmentID
	ScheduleID   ScheduleID
	CreatedAt    time.Time
}

func (e Employee) FullName() string {
	switch {
	case e.FirstName == "":
		return e.LastName
	case e.LastName == "":
		return e.FirstName
	}
	return e.FirstName + " " + e.LastName
}

type Department struct {
	ID   DepartmentID
	Name string
}

// Schedule is an ordered collection of shifts. The engine never mutates it.
type Schedule struct {
	ID     ScheduleID
	Name   string
	Shifts []Shift
}

// Shift is a recurring weekly work window.
//
// StartDay <= EndDay covers every weekday in the inclusive range, each
// constrained to [Start, End]. StartDay > EndDay wraps the week boundary:
// StartDay from Start to midnight, EndDay from midnight to End. Days strictly
// between a wrapped pair are not evaluated.
type Shift struct {
	StartDay time.Weekday
	EndDay   time.Weekday
	Start    ClockTime
	End      ClockTime
}

// Wraps reports whether the shift crosses the week boundary.
func (s Shift) Wraps() bool { return s.StartDay > s.EndDay }

// EmployeeRecord is an employee with its schedule and department resolved.
// Schedule and Department are nil when the referenced record does not exist.
type EmployeeRecord struct {
	Employee   Employee
	Schedule   *Schedule
	Department *Department
}

// Shifts returns the schedule's shifts, or nil when no schedule is attached.
func (r EmployeeRecord) Shifts() []Shift {
	if r.Schedule == nil {
		return nil
	}
	return r.Schedule.Shifts
}

// =============================================================================
// EVENTS
// =============================================================================

type EventKind string

const (
	KindAttendance EventKind = "attendance"
	KindLeave      EventKind = "leave"
)

func (k EventKind) Valid() bool { return k == KindAttendance || k == KindLeave }

// Event is an immutable attendance or leave record.
// INVARIANT: at most one event per (EmployeeID, Kind, Day()).
type Event struct {
	ID         EventID
	Kind       EventKind
	EmployeeID EmployeeID
	Credential Credential
	Timestamp  time.Time
}

// Day is the calendar day the event belongs to.
func (e Event) Day() Day { return DayOf(e.Timestamp) }
