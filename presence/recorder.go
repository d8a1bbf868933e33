/*
recorder.go - At-most-one-per-day event creation

PURPOSE:
  Creates attendance and leave events. It is the single write path used by
  both the admission flow and the manual ingestion endpoints.

INVARIANT:
  At most one event per (EmployeeID, Kind, calendar day).

  The recorder does not check-then-insert on its own: the store's
  CreateEvent is atomic w.r.t. the invariant. A losing writer gets a
  DuplicateEventError carrying the event that won, so a repeated call is
  harmless and never produces a second record.

  Events are never updated or deleted here. Corrections are administrative.
*/
package presence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

type Recorder struct {
	Events EventStore

	// NewID generates event IDs. Defaults to random UUIDs.
	NewID func() EventID
}

// NewRecorder writes to events with random UUID event IDs.
func NewRecorder(events EventStore) *Recorder {
	return &Recorder{Events: events}
}

// Record creates an event of kind for the employee at ts.
//
// Returns *DuplicateEventError (errors.Is ErrDuplicateEvent) when the slot
// for that calendar day is already taken.
func (r *Recorder) Record(ctx context.Context, kind EventKind, employeeID EmployeeID, cred Credential, ts time.Time) (Event, error) {
	if !kind.Valid() {
		return Event{}, &ValidationError{Field: "kind", Message: "must be attendance or leave"}
	}
	if employeeID == "" {
		return Event{}, &ValidationError{Field: "employee_id"}
	}

	ev := Event{
		ID:         r.nextID(),
		Kind:       kind,
		EmployeeID: employeeID,
		Credential: cred,
		Timestamp:  ts,
	}

	err := r.Events.CreateEvent(ctx, ev)
	if err == nil {
		return ev, nil
	}
	if !errors.Is(err, ErrDuplicateEvent) {
		return Event{}, err
	}

	dup := &DuplicateEventError{EmployeeID: employeeID, Kind: kind, Date: ev.Day()}
	existing, lookupErr := r.Events.FindEventsForDay(ctx, employeeID, kind, ev.Day())
	if lookupErr == nil && len(existing) > 0 {
		dup.Existing = &existing[0]
	}
	return Event{}, dup
}

func (r *Recorder) nextID() EventID {
	if r.NewID != nil {
		return r.NewID()
	}
	return EventID(uuid.NewString())
}
