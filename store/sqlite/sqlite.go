/*
Package sqlite provides a SQLite-backed implementation of the presence stores.

PURPOSE:
  Implements presence.Directory and presence.EventStore, plus the
  administrative operations (employees, schedules, departments, event
  corrections) used by the HTTP layer.

KEY TABLES:
  departments:  id, name
  schedules:    id, name, shifts_json (ordered shift list)
  employees:    credential (rfid_tag UNIQUE + pin), schedule and department links
  events:       attendance and leave records, one row per scan

DAY UNIQUENESS:
  idx_unique_event_day enforces at most one event per (employee, kind, day).
  The day column is the event's local calendar date, written by the store
  from the timestamp. CreateEvent is a single INSERT: a violation comes back
  as a constraint error and is translated to presence.ErrDuplicateEvent, so
  "check then insert" races cannot produce two rows.

TIMESTAMPS:
  Stored as RFC3339Nano text. Times are naive wall-clock values; the day
  column is derived from the wall clock, never converted to UTC.

CONCURRENCY:
  Uses sync.RWMutex for thread-safety on top of a single connection.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging):
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/checkmate.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  validator := presence.NewValidator(store)

SEE ALSO:
  - presence/store.go: Interface definitions
  - presence/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/warp/checkmate/presence"
)

// Store implements the presence storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: ":memory:" databases are per-connection.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS departments (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS schedules (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		shifts_json TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		rfid_tag TEXT NOT NULL UNIQUE,
		pin INTEGER NOT NULL,
		first_name TEXT NOT NULL,
		last_name TEXT NOT NULL,
		email TEXT,
		phone_number TEXT,
		status TEXT NOT NULL DEFAULT 'active',
		department_id TEXT,
		schedule_id TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_employees_credential
		ON employees(rfid_tag, pin);

	-- Attendance and leave events
	CREATE TABLE IF NOT EXISTS events (
		id TEXT PRIMARY KEY,
		kind TEXT NOT NULL CHECK (kind IN ('attendance', 'leave')),
		employee_id TEXT NOT NULL REFERENCES employees(id) ON DELETE CASCADE,
		rfid_tag TEXT NOT NULL,
		pin INTEGER NOT NULL,
		ts TEXT NOT NULL,
		day TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	-- CRITICAL: at most one attendance and one leave per employee per day
	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_event_day
		ON events(employee_id, kind, day);

	CREATE INDEX IF NOT EXISTS idx_events_day
		ON events(day, kind);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// DIRECTORY (presence.Directory interface)
// =============================================================================

const employeeColumns = `id, rfid_tag, pin, first_name, last_name, email, phone_number,
	status, department_id, schedule_id, created_at`

func (s *Store) FindEmployeeByCredential(ctx context.Context, tag string, pin int) (presence.EmployeeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT "+employeeColumns+" FROM employees WHERE rfid_tag = ? AND pin = ?", tag, pin)
	return s.resolveEmployee(ctx, row, tag+"/"+strconv.Itoa(pin))
}

func (s *Store) FindEmployeeByTag(ctx context.Context, tag string) (presence.EmployeeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT "+employeeColumns+" FROM employees WHERE rfid_tag = ?", tag)
	return s.resolveEmployee(ctx, row, tag)
}

func (s *Store) FindEmployeeByID(ctx context.Context, id presence.EmployeeID) (presence.EmployeeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT "+employeeColumns+" FROM employees WHERE id = ?", id)
	return s.resolveEmployee(ctx, row, string(id))
}

// resolveEmployee scans an employee row and fetches its schedule and
// department. Missing links leave the pointers nil.
func (s *Store) resolveEmployee(ctx context.Context, row *sql.Row, key string) (presence.EmployeeRecord, error) {
	emp, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return presence.EmployeeRecord{}, &presence.NotFoundError{Resource: "employee", Key: key}
	}
	if err != nil {
		return presence.EmployeeRecord{}, &presence.StoreError{Op: "find employee", Err: err}
	}

	rec := presence.EmployeeRecord{Employee: emp}

	if emp.ScheduleID != "" {
		sched, err := s.getSchedule(ctx, emp.ScheduleID)
		switch {
		case err == nil:
			rec.Schedule = &sched
		case !presence.IsNotFound(err):
			return presence.EmployeeRecord{}, err
		}
	}

	if emp.DepartmentID != "" {
		var dept presence.Department
		err := s.db.QueryRowContext(ctx,
			"SELECT id, name FROM departments WHERE id = ?", emp.DepartmentID,
		).Scan(&dept.ID, &dept.Name)
		switch {
		case err == nil:
			rec.Department = &dept
		case !errors.Is(err, sql.ErrNoRows):
			return presence.EmployeeRecord{}, &presence.StoreError{Op: "find department", Err: err}
		}
	}

	return rec, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEmployee(row rowScanner) (presence.Employee, error) {
	var (
		emp          presence.Employee
		email        sql.NullString
		phone        sql.NullString
		departmentID sql.NullString
		scheduleID   sql.NullString
		createdAt    string
	)
	err := row.Scan(&emp.ID, &emp.Tag, &emp.PIN, &emp.FirstName, &emp.LastName,
		&email, &phone, &emp.Status, &departmentID, &scheduleID, &createdAt)
	if err != nil {
		return emp, err
	}
	emp.Email = email.String
	emp.Phone = phone.String
	emp.DepartmentID = presence.DepartmentID(departmentID.String)
	emp.ScheduleID = presence.ScheduleID(scheduleID.String)
	emp.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return emp, nil
}

// =============================================================================
// EVENT STORE (presence.EventStore interface)
// =============================================================================

const eventColumns = "id, kind, employee_id, rfid_tag, pin, ts"

func (s *Store) FindEventsForDay(ctx context.Context, employeeID presence.EmployeeID, kind presence.EventKind, day presence.Day) ([]presence.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryEvents(ctx,
		"SELECT "+eventColumns+" FROM events WHERE employee_id = ? AND kind = ? AND day = ? ORDER BY ts ASC",
		employeeID, kind, day.String())
}

func (s *Store) ExistsForDay(ctx context.Context, employeeID presence.EmployeeID, kind presence.EventKind, day presence.Day) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM events WHERE employee_id = ? AND kind = ? AND day = ?",
		employeeID, kind, day.String(),
	).Scan(&count)
	if err != nil {
		return false, &presence.StoreError{Op: "check event", Err: err}
	}
	return count > 0, nil
}

// CreateEvent inserts ev. The unique day index makes this the atomic
// "create or detect duplicate" step.
func (s *Store) CreateEvent(ctx context.Context, ev presence.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO events (id, kind, employee_id, rfid_tag, pin, ts, day, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.ID,
		ev.Kind,
		ev.EmployeeID,
		ev.Credential.Tag,
		ev.Credential.PIN,
		ev.Timestamp.Format(time.RFC3339Nano),
		ev.Day().String(),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &presence.DuplicateEventError{EmployeeID: ev.EmployeeID, Kind: ev.Kind, Date: ev.Day()}
		}
		return &presence.StoreError{Op: "create event", Err: err}
	}
	return nil
}

func (s *Store) queryEvents(ctx context.Context, query string, args ...any) ([]presence.Event, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, &presence.StoreError{Op: "query events", Err: err}
	}
	defer rows.Close()

	var events []presence.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, &presence.StoreError{Op: "scan event", Err: err}
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, &presence.StoreError{Op: "query events", Err: err}
	}
	return events, nil
}

func scanEvent(row rowScanner) (presence.Event, error) {
	var (
		ev presence.Event
		ts string
	)
	if err := row.Scan(&ev.ID, &ev.Kind, &ev.EmployeeID, &ev.Credential.Tag, &ev.Credential.PIN, &ts); err != nil {
		return ev, err
	}
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return ev, fmt.Errorf("bad timestamp %q: %w", ts, err)
	}
	ev.Timestamp = t
	return ev, nil
}

// =============================================================================
// EVENT ADMINISTRATION
// =============================================================================

// ListEvents returns events matching f, ordered by timestamp.
func (s *Store) ListEvents(ctx context.Context, f presence.EventFilter) ([]presence.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := "SELECT " + eventColumns + " FROM events WHERE 1=1"
	var args []any
	if f.Kind != "" {
		query += " AND kind = ?"
		args = append(args, f.Kind)
	}
	if f.EmployeeID != "" {
		query += " AND employee_id = ?"
		args = append(args, f.EmployeeID)
	}
	if !f.Day.IsZero() {
		query += " AND day = ?"
		args = append(args, f.Day.String())
	}
	query += " ORDER BY ts ASC"

	return s.queryEvents(ctx, query, args...)
}

func (s *Store) GetEvent(ctx context.Context, id presence.EventID) (presence.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getEvent(ctx, id)
}

func (s *Store) getEvent(ctx context.Context, id presence.EventID) (presence.Event, error) {
	ev, err := scanEvent(s.db.QueryRowContext(ctx,
		"SELECT "+eventColumns+" FROM events WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return presence.Event{}, &presence.NotFoundError{Resource: "event", Key: string(id)}
	}
	if err != nil {
		return presence.Event{}, &presence.StoreError{Op: "get event", Err: err}
	}
	return ev, nil
}

// UpdateEventTimestamp is an administrative correction. The unique day
// index still applies: moving an event onto an occupied day fails.
func (s *Store) UpdateEventTimestamp(ctx context.Context, id presence.EventID, ts time.Time) (presence.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, err := s.getEvent(ctx, id)
	if err != nil {
		return presence.Event{}, err
	}
	ev.Timestamp = ts

	_, err = s.db.ExecContext(ctx,
		"UPDATE events SET ts = ?, day = ? WHERE id = ?",
		ts.Format(time.RFC3339Nano), ev.Day().String(), id)
	if err != nil {
		if isUniqueConstraintError(err) {
			return presence.Event{}, &presence.DuplicateEventError{EmployeeID: ev.EmployeeID, Kind: ev.Kind, Date: ev.Day()}
		}
		return presence.Event{}, &presence.StoreError{Op: "update event", Err: err}
	}
	return ev, nil
}

func (s *Store) DeleteEvent(ctx context.Context, id presence.EventID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, "DELETE FROM events WHERE id = ?", id)
	if err != nil {
		return &presence.StoreError{Op: "delete event", Err: err}
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &presence.NotFoundError{Resource: "event", Key: string(id)}
	}
	return nil
}

// =============================================================================
// EMPLOYEES
// =============================================================================

// SaveEmployee inserts or replaces an employee. A tag already held by
// another employee is rejected.
func (s *Store) SaveEmployee(ctx context.Context, emp presence.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if emp.Status == "" {
		emp.Status = "active"
	}
	if emp.CreatedAt.IsZero() {
		emp.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO employees (`+employeeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			rfid_tag = excluded.rfid_tag,
			pin = excluded.pin,
			first_name = excluded.first_name,
			last_name = excluded.last_name,
			email = excluded.email,
			phone_number = excluded.phone_number,
			status = excluded.status,
			department_id = excluded.department_id,
			schedule_id = excluded.schedule_id`,
		emp.ID, emp.Tag, emp.PIN, emp.FirstName, emp.LastName,
		nullString(emp.Email), nullString(emp.Phone), emp.Status,
		nullString(string(emp.DepartmentID)), nullString(string(emp.ScheduleID)),
		emp.CreatedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return &presence.ValidationError{Field: "rfid_tag", Message: "already assigned to another employee"}
		}
		return &presence.StoreError{Op: "save employee", Err: err}
	}
	return nil
}

// ListEmployees returns all employees ordered by ID.
func (s *Store) ListEmployees(ctx context.Context) ([]presence.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT "+employeeColumns+" FROM employees ORDER BY id")
	if err != nil {
		return nil, &presence.StoreError{Op: "list employees", Err: err}
	}
	defer rows.Close()

	var out []presence.Employee
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			return nil, &presence.StoreError{Op: "scan employee", Err: err}
		}
		out = append(out, emp)
	}
	return out, rows.Err()
}

// =============================================================================
// SCHEDULES
// =============================================================================

// shiftRow is the persisted form of a shift inside shifts_json.
type shiftRow struct {
	StartDay  int    `json:"start_day"`
	EndDay    int    `json:"end_day"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

func (s *Store) SaveSchedule(ctx context.Context, sched presence.Schedule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows := make([]shiftRow, len(sched.Shifts))
	for i, sh := range sched.Shifts {
		rows[i] = shiftRow{
			StartDay:  int(sh.StartDay),
			EndDay:    int(sh.EndDay),
			StartTime: sh.Start.String(),
			EndTime:   sh.End.String(),
		}
	}
	shiftsJSON, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("failed to encode shifts: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO schedules (id, name, shifts_json) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name, shifts_json = excluded.shifts_json`,
		sched.ID, sched.Name, string(shiftsJSON))
	if err != nil {
		return &presence.StoreError{Op: "save schedule", Err: err}
	}
	return nil
}

func (s *Store) getSchedule(ctx context.Context, id presence.ScheduleID) (presence.Schedule, error) {
	sched, err := scanSchedule(s.db.QueryRowContext(ctx,
		"SELECT id, name, shifts_json FROM schedules WHERE id = ?", id))
	if errors.Is(err, sql.ErrNoRows) {
		return presence.Schedule{}, &presence.NotFoundError{Resource: "schedule", Key: string(id)}
	}
	if err != nil {
		return presence.Schedule{}, &presence.StoreError{Op: "get schedule", Err: err}
	}
	return sched, nil
}

func (s *Store) ListSchedules(ctx context.Context) ([]presence.Schedule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name, shifts_json FROM schedules ORDER BY id")
	if err != nil {
		return nil, &presence.StoreError{Op: "list schedules", Err: err}
	}
	defer rows.Close()

	var out []presence.Schedule
	for rows.Next() {
		sched, err := scanSchedule(rows)
		if err != nil {
			return nil, &presence.StoreError{Op: "scan schedule", Err: err}
		}
		out = append(out, sched)
	}
	return out, rows.Err()
}

func scanSchedule(row rowScanner) (presence.Schedule, error) {
	var (
		sched      presence.Schedule
		shiftsJSON string
		rows       []shiftRow
	)
	if err := row.Scan(&sched.ID, &sched.Name, &shiftsJSON); err != nil {
		return sched, err
	}
	if err := json.Unmarshal([]byte(shiftsJSON), &rows); err != nil {
		return sched, fmt.Errorf("bad shifts for schedule %s: %w", sched.ID, err)
	}
	for _, r := range rows {
		start, err := presence.ParseClockTime(r.StartTime)
		if err != nil {
			return sched, err
		}
		end, err := presence.ParseClockTime(r.EndTime)
		if err != nil {
			return sched, err
		}
		sched.Shifts = append(sched.Shifts, presence.Shift{
			StartDay: time.Weekday(r.StartDay),
			EndDay:   time.Weekday(r.EndDay),
			Start:    start,
			End:      end,
		})
	}
	return sched, nil
}

// =============================================================================
// DEPARTMENTS
// =============================================================================

func (s *Store) SaveDepartment(ctx context.Context, d presence.Department) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO departments (id, name) VALUES (?, ?)
		ON CONFLICT(id) DO UPDATE SET name = excluded.name`,
		d.ID, d.Name)
	if err != nil {
		return &presence.StoreError{Op: "save department", Err: err}
	}
	return nil
}

func (s *Store) ListDepartments(ctx context.Context) ([]presence.Department, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, "SELECT id, name FROM departments ORDER BY id")
	if err != nil {
		return nil, &presence.StoreError{Op: "list departments", Err: err}
	}
	defer rows.Close()

	var out []presence.Department
	for rows.Next() {
		var d presence.Department
		if err := rows.Scan(&d.ID, &d.Name); err != nil {
			return nil, &presence.StoreError{Op: "scan department", Err: err}
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Reset clears all data. Used by tests and demo reloads.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range []string{"events", "employees", "schedules", "departments"} {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return &presence.StoreError{Op: "reset " + table, Err: err}
		}
	}
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
