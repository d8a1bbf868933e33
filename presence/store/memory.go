// Package store provides an in-memory presence store.
package store

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/warp/checkmate/presence"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	employees   map[presence.EmployeeID]presence.Employee
	byTag       map[string]presence.EmployeeID
	schedules   map[presence.ScheduleID]presence.Schedule
	departments map[presence.DepartmentID]presence.Department
	events      map[presence.EventID]presence.Event
	slots       map[slot]presence.EventID

	// FailEvents, when set, is returned by every event read. Tests use it to
	// simulate an unavailable store.
	FailEvents func(day presence.Day) error
}

// slot is the uniqueness key: one event per employee, kind and calendar day.
type slot struct {
	EmployeeID presence.EmployeeID
	Kind       presence.EventKind
	Day        string
}

func slotOf(ev presence.Event) slot {
	return slot{EmployeeID: ev.EmployeeID, Kind: ev.Kind, Day: ev.Day().String()}
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		employees:   make(map[presence.EmployeeID]presence.Employee),
		byTag:       make(map[string]presence.EmployeeID),
		schedules:   make(map[presence.ScheduleID]presence.Schedule),
		departments: make(map[presence.DepartmentID]presence.Department),
		events:      make(map[presence.EventID]presence.Event),
		slots:       make(map[slot]presence.EventID),
	}
}

// =============================================================================
// DIRECTORY
// =============================================================================

func (m *Memory) FindEmployeeByCredential(_ context.Context, tag string, pin int) (presence.EmployeeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byTag[tag]
	if !ok || m.employees[id].PIN != pin {
		return presence.EmployeeRecord{}, &presence.NotFoundError{Resource: "employee", Key: tag + "/" + strconv.Itoa(pin)}
	}
	return m.recordLocked(m.employees[id]), nil
}

func (m *Memory) FindEmployeeByTag(_ context.Context, tag string) (presence.EmployeeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byTag[tag]
	if !ok {
		return presence.EmployeeRecord{}, &presence.NotFoundError{Resource: "employee", Key: tag}
	}
	return m.recordLocked(m.employees[id]), nil
}

func (m *Memory) FindEmployeeByID(_ context.Context, id presence.EmployeeID) (presence.EmployeeRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	emp, ok := m.employees[id]
	if !ok {
		return presence.EmployeeRecord{}, &presence.NotFoundError{Resource: "employee", Key: string(id)}
	}
	return m.recordLocked(emp), nil
}

func (m *Memory) recordLocked(emp presence.Employee) presence.EmployeeRecord {
	rec := presence.EmployeeRecord{Employee: emp}
	if s, ok := m.schedules[emp.ScheduleID]; ok {
		s.Shifts = append([]presence.Shift(nil), s.Shifts...)
		rec.Schedule = &s
	}
	if d, ok := m.departments[emp.DepartmentID]; ok {
		rec.Department = &d
	}
	return rec
}

// =============================================================================
// EVENT STORE
// =============================================================================

func (m *Memory) FindEventsForDay(_ context.Context, employeeID presence.EmployeeID, kind presence.EventKind, day presence.Day) ([]presence.Event, error) {
	if m.FailEvents != nil {
		if err := m.FailEvents(day); err != nil {
			return nil, &presence.StoreError{Op: "find events", Err: err}
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLocked(presence.EventFilter{Kind: kind, EmployeeID: employeeID, Day: day}), nil
}

func (m *Memory) ExistsForDay(ctx context.Context, employeeID presence.EmployeeID, kind presence.EventKind, day presence.Day) (bool, error) {
	events, err := m.FindEventsForDay(ctx, employeeID, kind, day)
	return len(events) > 0, err
}

// CreateEvent checks the day slot and inserts under one write lock.
func (m *Memory) CreateEvent(_ context.Context, ev presence.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := slotOf(ev)
	if _, taken := m.slots[k]; taken {
		return &presence.DuplicateEventError{EmployeeID: ev.EmployeeID, Kind: ev.Kind, Date: ev.Day()}
	}
	m.events[ev.ID] = ev
	m.slots[k] = ev.ID
	return nil
}

// =============================================================================
// EVENT ADMINISTRATION
// =============================================================================

func (m *Memory) ListEvents(_ context.Context, f presence.EventFilter) ([]presence.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listLocked(f), nil
}

func (m *Memory) listLocked(f presence.EventFilter) []presence.Event {
	var out []presence.Event
	for _, ev := range m.events {
		if f.Match(ev) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out
}

func (m *Memory) GetEvent(_ context.Context, id presence.EventID) (presence.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ev, ok := m.events[id]
	if !ok {
		return presence.Event{}, &presence.NotFoundError{Resource: "event", Key: string(id)}
	}
	return ev, nil
}

// UpdateEventTimestamp moves an event in time. Moving it onto a day whose
// slot is already taken fails with a duplicate error.
func (m *Memory) UpdateEventTimestamp(_ context.Context, id presence.EventID, ts time.Time) (presence.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev, ok := m.events[id]
	if !ok {
		return presence.Event{}, &presence.NotFoundError{Resource: "event", Key: string(id)}
	}

	moved := ev
	moved.Timestamp = ts
	oldSlot, newSlot := slotOf(ev), slotOf(moved)
	if oldSlot != newSlot {
		if _, taken := m.slots[newSlot]; taken {
			return presence.Event{}, &presence.DuplicateEventError{EmployeeID: ev.EmployeeID, Kind: ev.Kind, Date: moved.Day()}
		}
		delete(m.slots, oldSlot)
		m.slots[newSlot] = id
	}
	m.events[id] = moved
	return moved, nil
}

func (m *Memory) DeleteEvent(_ context.Context, id presence.EventID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ev, ok := m.events[id]
	if !ok {
		return &presence.NotFoundError{Resource: "event", Key: string(id)}
	}
	delete(m.events, id)
	delete(m.slots, slotOf(ev))
	return nil
}

// =============================================================================
// RECORDS ADMINISTRATION
// =============================================================================

// SaveEmployee inserts or replaces an employee. Tags are unique.
func (m *Memory) SaveEmployee(_ context.Context, emp presence.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if owner, ok := m.byTag[emp.Tag]; ok && owner != emp.ID {
		return &presence.ValidationError{Field: "rfid_tag", Message: "already assigned to another employee"}
	}
	if prev, ok := m.employees[emp.ID]; ok {
		delete(m.byTag, prev.Tag)
	}
	m.employees[emp.ID] = emp
	m.byTag[emp.Tag] = emp.ID
	return nil
}

func (m *Memory) ListEmployees(_ context.Context) ([]presence.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]presence.Employee, 0, len(m.employees))
	for _, e := range m.employees {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SaveSchedule(_ context.Context, s presence.Schedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.Shifts = append([]presence.Shift(nil), s.Shifts...)
	m.schedules[s.ID] = s
	return nil
}

func (m *Memory) ListSchedules(_ context.Context) ([]presence.Schedule, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]presence.Schedule, 0, len(m.schedules))
	for _, s := range m.schedules {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SaveDepartment(_ context.Context, d presence.Department) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.departments[d.ID] = d
	return nil
}

func (m *Memory) ListDepartments(_ context.Context) ([]presence.Department, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]presence.Department, 0, len(m.departments))
	for _, d := range m.departments {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}
