/*
store.go - Persistence interfaces consumed by the engine

PURPOSE:
  Defines what the engine needs from storage and nothing more. The stores
  are passed explicitly into constructors; the engine never opens or closes
  a connection itself.

KEY INTERFACES:
  Directory:  employee lookup, returning fully resolved EmployeeRecords
  EventStore: per-day event lookup and atomic creation

UNIQUENESS CONTRACT:
  CreateEvent MUST reject a second event with the same (EmployeeID, Kind,
  calendar day) by returning an error that wraps ErrDuplicateEvent. The
  check and the insert must be a single atomic step (unique index, or a
  check-and-insert under a lock). Callers rely on this to close the
  read-then-write gap in the admission flow.

IMPLEMENTATIONS:
  - presence/store/memory.go: in-memory, for tests and development
  - store/sqlite/sqlite.go:   SQLite with a UNIQUE index on the day slot
*/
package presence

import "context"

// Directory resolves employees. Lookups that find nothing return an error
// wrapping ErrNotFound.
type Directory interface {
	FindEmployeeByCredential(ctx context.Context, tag string, pin int) (EmployeeRecord, error)
	FindEmployeeByTag(ctx context.Context, tag string) (EmployeeRecord, error)
	FindEmployeeByID(ctx context.Context, id EmployeeID) (EmployeeRecord, error)
}

// EventStore persists attendance and leave events.
type EventStore interface {
	// FindEventsForDay returns the employee's events of kind on day,
	// ordered by timestamp.
	FindEventsForDay(ctx context.Context, employeeID EmployeeID, kind EventKind, day Day) ([]Event, error)

	// ExistsForDay reports whether any event of kind exists on day.
	ExistsForDay(ctx context.Context, employeeID EmployeeID, kind EventKind, day Day) (bool, error)

	// CreateEvent inserts ev atomically w.r.t. the per-day uniqueness invariant.
	CreateEvent(ctx context.Context, ev Event) error
}

// Store is the full capability set the engine consumes.
type Store interface {
	Directory
	EventStore
}

// EventFilter narrows an event listing. Zero fields match everything.
type EventFilter struct {
	Kind       EventKind
	EmployeeID EmployeeID
	Day        Day
}

// Match reports whether ev passes the filter.
func (f EventFilter) Match(ev Event) bool {
	if f.Kind != "" && ev.Kind != f.Kind {
		return false
	}
	if f.EmployeeID != "" && ev.EmployeeID != f.EmployeeID {
		return false
	}
	if !f.Day.IsZero() && !f.Day.Contains(ev.Timestamp) {
		return false
	}
	return true
}
