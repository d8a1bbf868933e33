/*
validator.go - Scan admission

PURPOSE:
  Turns a (tag, PIN) scan into an admission decision and, when granted,
  the attendance or leave event it implies.

FLOW:
  1. Resolve the employee by exact tag + PIN. Unknown credential: deny, no reason.
  2. Match the scan time against the schedule (AdmissionWindowPolicy).
     Outside every shift and buffer: deny "outside scheduled shift or buffer".
  3. Inside a per-employee-per-day critical section:
       no attendance today           -> record attendance, grant
       attendance, no leave today    -> record leave, grant
       both                          -> deny "already has both records for today"

TWO-STATE TOGGLE:
  One entry and one exit per employee per day. Multiple in/out cycles are
  not supported; this is a product constraint.

CONCURRENCY:
  The existence checks and the create are two steps. The Locker serializes
  them per employee and day, and the store's unique slot rejects any writer
  that slips past (e.g. another process without a shared lock). A duplicate
  reported by the recorder is treated as "the slot is taken" and the toggle
  moves on, so racing scans still end in a consistent decision.
*/
package presence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// ADMISSION RESULT
// =============================================================================

type Action string

const (
	ActionAttendanceRecorded Action = "attendance_recorded"
	ActionLeaveRecorded      Action = "leave_recorded"
)

const (
	ReasonOutsideWindow   = "outside scheduled shift or buffer"
	ReasonAlreadyComplete = "already has both records for today"
)

// Admission is the device-facing decision. A denial is a normal result,
// never an error.
type Admission struct {
	Granted bool
	Action  Action
	Reason  string

	EmployeeID EmployeeID
	Event      *Event
	Match      MatchResult
}

func deny(reason string) Admission { return Admission{Reason: reason} }

// =============================================================================
// VALIDATOR
// =============================================================================

type Validator struct {
	Directory Directory
	Events    EventStore
	Recorder  *Recorder
	Window    AdmissionWindowPolicy
	Locker    Locker
	Logger    *zap.Logger
}

// NewValidator wires a validator over store with the default window policy
// and no cross-request lock. Set Locker to serialize admissions.
func NewValidator(store Store) *Validator {
	return &Validator{
		Directory: store,
		Events:    store,
		Recorder:  NewRecorder(store),
		Window:    NewAdmissionWindowPolicy(),
		Locker:    noopLocker{},
		Logger:    zap.NewNop(),
	}
}

// Admit decides whether the scan at now is accepted.
func (v *Validator) Admit(ctx context.Context, cred Credential, now time.Time) (Admission, error) {
	if cred.Tag == "" {
		return Admission{}, &ValidationError{Field: "rfid_tag"}
	}

	rec, err := v.Directory.FindEmployeeByCredential(ctx, cred.Tag, cred.PIN)
	if IsNotFound(err) {
		v.logger().Info("admission denied: unknown credential", zap.String("tag", cred.Tag))
		return Admission{}, nil
	}
	if err != nil {
		return Admission{}, err
	}
	id := rec.Employee.ID

	match := v.Window.Match(rec.Schedule, now)
	if !match.Admissible() {
		v.logger().Info("admission denied: outside window",
			zap.String("employee_id", string(id)), zap.Time("at", now))
		a := deny(ReasonOutsideWindow)
		a.EmployeeID = id
		return a, nil
	}

	locker := v.Locker
	if locker == nil {
		locker = noopLocker{}
	}
	unlock, err := locker.Lock(ctx, admissionKey(id, DayOf(now)))
	if err != nil {
		return Admission{}, fmt.Errorf("%w: %v", ErrLockUnavailable, err)
	}
	defer unlock()

	a, err := v.toggle(ctx, id, cred, now)
	if err != nil {
		v.logger().Error("admission failed", zap.String("employee_id", string(id)), zap.Error(err))
		return Admission{}, err
	}
	a.EmployeeID = id
	a.Match = match

	if a.Granted {
		v.logger().Info("admission granted",
			zap.String("employee_id", string(id)), zap.String("action", string(a.Action)))
	} else {
		v.logger().Info("admission denied", zap.String("employee_id", string(id)), zap.String("reason", a.Reason))
	}
	return a, nil
}

// toggle advances the in -> out state machine for the day containing now.
func (v *Validator) toggle(ctx context.Context, id EmployeeID, cred Credential, now time.Time) (Admission, error) {
	day := DayOf(now)

	steps := []struct {
		kind   EventKind
		action Action
	}{
		{KindAttendance, ActionAttendanceRecorded},
		{KindLeave, ActionLeaveRecorded},
	}

	for _, step := range steps {
		exists, err := v.Events.ExistsForDay(ctx, id, step.kind, day)
		if err != nil {
			return Admission{}, err
		}
		if exists {
			continue
		}

		ev, err := v.Recorder.Record(ctx, step.kind, id, cred, now)
		if errors.Is(err, ErrDuplicateEvent) {
			// Lost a race for this slot; it is taken now.
			continue
		}
		if err != nil {
			return Admission{}, err
		}
		return Admission{Granted: true, Action: step.action, Event: &ev}, nil
	}

	return deny(ReasonAlreadyComplete), nil
}

func (v *Validator) logger() *zap.Logger {
	if v.Logger == nil {
		return zap.NewNop()
	}
	return v.Logger
}
