/*
handlers.go - HTTP API handlers for the presence service

PURPOSE:
  Exposes the presence engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the engine (validator, recorder,
  resolver, aggregator).

ENDPOINTS:
  Devices:
    POST   /api/hardware_endpoint   Scan admission {rfid_tag, pin}
    GET    /api/hardware_endpoint   Minimal employee list for devices

  Reports:
    POST   /api/daily_rapport       Today's status for {employee_id}
    POST   /api/monthly_rapport     30-day summary for {employee_id}
    GET    /api/employees_today     Every employee with "not in yet" | "in" | "out"
    GET    /api/check-in-today      Today's attendances and leaves

  Events (manual override, no shift rules):
    GET|POST|PUT|DELETE /api/attendance
    GET|POST|PUT|DELETE /api/leaves

  Records:
    GET|POST /api/employees, GET /api/employees/{id}
    GET|POST /api/departments
    GET|POST /api/schedules

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Duplicate event for the day (manual endpoints only)
  - 503: Admission lock unavailable
  - 500: Internal errors
  A denied admission is a 200 with access=false.

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are public.

SEE ALSO:
  - dto.go: Request/response data structures
  - bind.go: Request decoding and validation
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/warp/checkmate/presence"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is everything the HTTP layer reads and writes: the engine's store
// plus administrative records and event corrections.
type Store interface {
	presence.Store

	ListEvents(ctx context.Context, f presence.EventFilter) ([]presence.Event, error)
	GetEvent(ctx context.Context, id presence.EventID) (presence.Event, error)
	UpdateEventTimestamp(ctx context.Context, id presence.EventID, ts time.Time) (presence.Event, error)
	DeleteEvent(ctx context.Context, id presence.EventID) error

	SaveEmployee(ctx context.Context, emp presence.Employee) error
	ListEmployees(ctx context.Context) ([]presence.Employee, error)
	SaveSchedule(ctx context.Context, s presence.Schedule) error
	ListSchedules(ctx context.Context) ([]presence.Schedule, error)
	SaveDepartment(ctx context.Context, d presence.Department) error
	ListDepartments(ctx context.Context) ([]presence.Department, error)
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store      Store
	Validator  *presence.Validator
	Recorder   *presence.Recorder
	Resolver   *presence.Resolver
	Aggregator *presence.Aggregator
	Logger     *zap.Logger

	// Now is the clock used for scans and "today". Tests pin it.
	Now func() time.Time
}

// NewHandler wires the engine over store with default policies.
func NewHandler(store Store, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	validator := presence.NewValidator(store)
	validator.Logger = logger

	resolver := presence.NewResolver(store)
	aggregator := presence.NewAggregator(resolver)
	aggregator.Logger = logger

	return &Handler{
		Store:      store,
		Validator:  validator,
		Recorder:   validator.Recorder,
		Resolver:   resolver,
		Aggregator: aggregator,
		Logger:     logger,
		Now:        time.Now,
	}
}

func (h *Handler) now() time.Time {
	if h.Now == nil {
		return time.Now()
	}
	return h.Now()
}

// =============================================================================
// DEVICE ENDPOINTS
// =============================================================================

// Admit processes a badge scan.
// POST /api/hardware_endpoint
func (h *Handler) Admit(w http.ResponseWriter, r *http.Request) {
	var req AdmissionRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeDomainError(w, "Invalid scan", err)
		return
	}

	a, err := h.Validator.Admit(r.Context(), presence.Credential{Tag: req.Tag, PIN: *req.PIN}, h.now())
	if err != nil {
		writeDomainError(w, "Failed to process scan", err)
		return
	}

	writeJSON(w, http.StatusOK, AdmissionResponse{
		Access:  a.Granted,
		Action:  string(a.Action),
		Message: a.Reason,
	})
}

// ListDeviceEmployees returns the credential list devices cache locally.
// GET /api/hardware_endpoint
func (h *Handler) ListDeviceEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Store.ListEmployees(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch employees", err)
		return
	}

	out := make([]DeviceEmployeeDTO, len(employees))
	for i, e := range employees {
		out[i] = DeviceEmployeeDTO{
			ID:        string(e.ID),
			FirstName: e.FirstName,
			LastName:  e.LastName,
			Tag:       e.Tag,
			PIN:       e.PIN,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// REPORT ENDPOINTS
// =============================================================================

// decodeReportRequest resolves the employee and reference day of a report.
func (h *Handler) decodeReportRequest(r *http.Request) (presence.EmployeeRecord, presence.Day, error) {
	var req ReportRequest
	if err := decodeAndValidate(r, &req); err != nil {
		return presence.EmployeeRecord{}, presence.Day{}, err
	}

	day := presence.DayOf(h.now())
	if req.Date != "" {
		d, err := presence.ParseDay(req.Date)
		if err != nil {
			return presence.EmployeeRecord{}, presence.Day{}, &presence.ValidationError{Field: "date", Message: err.Error()}
		}
		day = d
	}

	rec, err := h.Store.FindEmployeeByID(r.Context(), presence.EmployeeID(req.EmployeeID))
	if err != nil {
		return presence.EmployeeRecord{}, presence.Day{}, err
	}
	return rec, day, nil
}

// DailyReport returns one day's status for an employee.
// POST /api/daily_rapport
func (h *Handler) DailyReport(w http.ResponseWriter, r *http.Request) {
	rec, day, err := h.decodeReportRequest(r)
	if err != nil {
		writeDomainError(w, "Failed to generate daily rapport", err)
		return
	}

	st, err := h.Resolver.ResolveDay(r.Context(), rec, day)
	if errors.Is(err, presence.ErrNotScheduled) {
		writeJSON(w, http.StatusOK, MessageResponse{Message: "No scheduled work today"})
		return
	}
	if err != nil {
		writeDomainError(w, "Failed to generate daily rapport", err)
		return
	}

	writeJSON(w, http.StatusOK, DailyReportDTO{
		Employee:         toEmployeeSummary(rec),
		Schedule:         toShiftDTO(st.Shift),
		Date:             st.Date.String(),
		EntryTime:        st.Entry,
		LeaveTime:        st.Leave,
		EnteredLateBy:    st.LateBy(),
		LeftEarlyBy:      st.EarlyBy(),
		PresenceDuration: st.PresenceDuration(),
		Status:           string(st.Status),
	})
}

// MonthlyReport returns the trailing-window summary for an employee.
// POST /api/monthly_rapport
func (h *Handler) MonthlyReport(w http.ResponseWriter, r *http.Request) {
	rec, day, err := h.decodeReportRequest(r)
	if err != nil {
		writeDomainError(w, "Failed to generate monthly rapport", err)
		return
	}

	report, err := h.Aggregator.ResolveMonth(r.Context(), rec, day)
	if err != nil {
		// Only cancellation reaches here; the client is gone.
		h.Logger.Info("monthly report abandoned",
			zap.String("employee_id", string(rec.Employee.ID)), zap.Error(err))
		writeError(w, http.StatusServiceUnavailable, "Monthly rapport interrupted", err)
		return
	}

	days := make([]DailyEntryDTO, len(report.Days))
	for i, st := range report.Days {
		days[i] = toDailyEntry(st)
	}

	writeJSON(w, http.StatusOK, MonthlyReportDTO{
		Employee:            toEmployeeSummary(rec),
		From:                report.From.String(),
		To:                  report.To.String(),
		TotalDays:           report.TotalDays,
		PresentDays:         report.PresentDays,
		AbsentDays:          report.AbsentDays,
		StillInsideDays:     report.StillInsideDays,
		UnknownDays:         report.UnknownDays,
		TotalLate:           report.TotalLate(),
		TotalEarlyLeaves:    report.TotalEarlyLeaves(),
		MonthlyPresenceRate: report.FormattedPresenceRate(),
		DailyReports:        days,
	})
}

// EmployeesToday lists every employee with today's presence.
// GET /api/employees_today
func (h *Handler) EmployeesToday(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	today := presence.DayOf(h.now())

	employees, err := h.Store.ListEmployees(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch employee status", err)
		return
	}
	departments, err := h.Store.ListDepartments(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch employee status", err)
		return
	}
	events, err := h.Store.ListEvents(ctx, presence.EventFilter{Day: today})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch employee status", err)
		return
	}

	deptByID := make(map[presence.DepartmentID]presence.Department, len(departments))
	for _, d := range departments {
		deptByID[d.ID] = d
	}
	status := make(map[presence.EmployeeID]string)
	for _, ev := range events {
		switch {
		case ev.Kind == presence.KindLeave:
			status[ev.EmployeeID] = TodayOut
		case status[ev.EmployeeID] == "":
			status[ev.EmployeeID] = TodayIn
		}
	}

	out := make([]EmployeeTodayDTO, len(employees))
	for i, e := range employees {
		dto := EmployeeTodayDTO{EmployeeDTO: toEmployeeDTO(e), TodayStatus: TodayNotIn}
		if s, ok := status[e.ID]; ok {
			dto.TodayStatus = s
		}
		if d, ok := deptByID[e.DepartmentID]; ok {
			dto.Department = toDepartmentDTO(&d)
		}
		out[i] = dto
	}
	writeJSON(w, http.StatusOK, out)
}

// CheckInToday returns today's attendance and leave events.
// GET /api/check-in-today
func (h *Handler) CheckInToday(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	today := presence.DayOf(h.now())

	attendances, err := h.Store.ListEvents(ctx, presence.EventFilter{Kind: presence.KindAttendance, Day: today})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch check-ins", err)
		return
	}
	leaves, err := h.Store.ListEvents(ctx, presence.EventFilter{Kind: presence.KindLeave, Day: today})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch check-ins", err)
		return
	}

	writeJSON(w, http.StatusOK, CheckInTodayDTO{
		Attendances: toEventDTOs(attendances),
		Leaves:      toEventDTOs(leaves),
	})
}

// =============================================================================
// EVENT ENDPOINTS (manual override)
// =============================================================================

// eventHandlers serves the bare CRUD for one event kind.
type eventHandlers struct {
	h    *Handler
	kind presence.EventKind
}

func (h *Handler) events(kind presence.EventKind) eventHandlers {
	return eventHandlers{h: h, kind: kind}
}

// List returns all events of the kind, optionally for ?employee_id= and ?date=.
func (e eventHandlers) List(w http.ResponseWriter, r *http.Request) {
	f := presence.EventFilter{Kind: e.kind, EmployeeID: presence.EmployeeID(r.URL.Query().Get("employee_id"))}
	if s := r.URL.Query().Get("date"); s != "" {
		day, err := presence.ParseDay(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid date", err)
			return
		}
		f.Day = day
	}

	events, err := e.h.Store.ListEvents(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch "+string(e.kind)+" logs", err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTOs(events))
}

// Create records an event by tag, bypassing shift rules. The per-day
// uniqueness still holds: a second event for the day answers 409.
func (e eventHandlers) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateEventRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeDomainError(w, "Invalid "+string(e.kind)+" log", err)
		return
	}

	ctx := r.Context()
	rec, err := e.h.Store.FindEmployeeByTag(ctx, req.Tag)
	if err != nil {
		writeDomainError(w, "Failed to create "+string(e.kind)+" log", err)
		return
	}

	ts := e.h.now()
	if req.Timestamp != nil {
		ts = *req.Timestamp
	}

	ev, err := e.h.Recorder.Record(ctx, e.kind, rec.Employee.ID, presence.Credential{Tag: req.Tag, PIN: *req.PIN}, ts)
	if err != nil {
		writeDomainError(w, "Failed to create "+string(e.kind)+" log", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEventDTO(ev))
}

// Update corrects an event's timestamp.
func (e eventHandlers) Update(w http.ResponseWriter, r *http.Request) {
	var req UpdateEventRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeDomainError(w, "Invalid "+string(e.kind)+" update", err)
		return
	}

	ctx := r.Context()
	if _, err := e.lookup(ctx, presence.EventID(req.ID)); err != nil {
		writeDomainError(w, "Failed to update "+string(e.kind)+" log", err)
		return
	}

	ev, err := e.h.Store.UpdateEventTimestamp(ctx, presence.EventID(req.ID), *req.Timestamp)
	if err != nil {
		writeDomainError(w, "Failed to update "+string(e.kind)+" log", err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTO(ev))
}

// Delete removes an event.
func (e eventHandlers) Delete(w http.ResponseWriter, r *http.Request) {
	var req DeleteEventRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeDomainError(w, "Invalid "+string(e.kind)+" delete", err)
		return
	}

	ctx := r.Context()
	if _, err := e.lookup(ctx, presence.EventID(req.ID)); err != nil {
		writeDomainError(w, "Failed to delete "+string(e.kind)+" log", err)
		return
	}
	if err := e.h.Store.DeleteEvent(ctx, presence.EventID(req.ID)); err != nil {
		writeDomainError(w, "Failed to delete "+string(e.kind)+" log", err)
		return
	}
	writeJSON(w, http.StatusOK, MessageResponse{Message: string(e.kind) + " log deleted"})
}

// lookup fetches an event and checks it belongs to this endpoint's kind.
func (e eventHandlers) lookup(ctx context.Context, id presence.EventID) (presence.Event, error) {
	ev, err := e.h.Store.GetEvent(ctx, id)
	if err != nil {
		return presence.Event{}, err
	}
	if ev.Kind != e.kind {
		return presence.Event{}, &presence.NotFoundError{Resource: string(e.kind), Key: string(id)}
	}
	return ev, nil
}

// =============================================================================
// RECORD ENDPOINTS
// =============================================================================

// ListEmployees returns all employees.
// GET /api/employees
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Store.ListEmployees(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list employees", err)
		return
	}

	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeeDTO(e)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetEmployee returns a single employee.
// GET /api/employees/{id}
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	rec, err := h.Store.FindEmployeeByID(r.Context(), presence.EmployeeID(id))
	if err != nil {
		writeDomainError(w, "Failed to get employee", err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(rec.Employee))
}

// CreateEmployee creates or replaces an employee.
// POST /api/employees
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeDomainError(w, "Invalid employee", err)
		return
	}

	emp := presence.Employee{
		ID:           presence.EmployeeID(req.ID),
		Tag:          req.Tag,
		PIN:          *req.PIN,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Email:        req.Email,
		Phone:        req.Phone,
		Status:       req.Status,
		DepartmentID: presence.DepartmentID(req.DepartmentID),
		ScheduleID:   presence.ScheduleID(req.ScheduleID),
		CreatedAt:    h.now().UTC(),
	}
	if emp.ID == "" {
		emp.ID = presence.EmployeeID(uuid.NewString())
	}
	if emp.Status == "" {
		emp.Status = "active"
	}

	if err := h.Store.SaveEmployee(r.Context(), emp); err != nil {
		writeDomainError(w, "Failed to create employee", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(emp))
}

// ListDepartments returns all departments.
// GET /api/departments
func (h *Handler) ListDepartments(w http.ResponseWriter, r *http.Request) {
	departments, err := h.Store.ListDepartments(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list departments", err)
		return
	}

	out := make([]DepartmentDTO, len(departments))
	for i := range departments {
		out[i] = *toDepartmentDTO(&departments[i])
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateDepartment creates or renames a department.
// POST /api/departments
func (h *Handler) CreateDepartment(w http.ResponseWriter, r *http.Request) {
	var req CreateDepartmentRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeDomainError(w, "Invalid department", err)
		return
	}

	d := presence.Department{ID: presence.DepartmentID(req.ID), Name: req.Name}
	if d.ID == "" {
		d.ID = presence.DepartmentID(uuid.NewString())
	}
	if err := h.Store.SaveDepartment(r.Context(), d); err != nil {
		writeDomainError(w, "Failed to create department", err)
		return
	}
	writeJSON(w, http.StatusCreated, toDepartmentDTO(&d))
}

// ListSchedules returns all schedules.
// GET /api/schedules
func (h *Handler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := h.Store.ListSchedules(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list schedules", err)
		return
	}

	out := make([]ScheduleDTO, len(schedules))
	for i, s := range schedules {
		out[i] = toScheduleDTO(s)
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateSchedule creates or replaces a schedule.
// POST /api/schedules
func (h *Handler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req CreateScheduleRequest
	if err := decodeAndValidate(r, &req); err != nil {
		writeDomainError(w, "Invalid schedule", err)
		return
	}

	s := presence.Schedule{ID: presence.ScheduleID(req.ID), Name: req.Name}
	if s.ID == "" {
		s.ID = presence.ScheduleID(uuid.NewString())
	}
	for _, d := range req.Shifts {
		shift, err := toShift(d)
		if err != nil {
			writeDomainError(w, "Invalid schedule", err)
			return
		}
		s.Shifts = append(s.Shifts, shift)
	}

	if err := h.Store.SaveSchedule(r.Context(), s); err != nil {
		writeDomainError(w, "Failed to create schedule", err)
		return
	}
	writeJSON(w, http.StatusCreated, toScheduleDTO(s))
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps engine errors to HTTP status codes.
func writeDomainError(w http.ResponseWriter, message string, err error) {
	writeError(w, statusFor(err), message, err)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, presence.ErrValidation):
		return http.StatusBadRequest
	case presence.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, presence.ErrDuplicateEvent):
		return http.StatusConflict
	case errors.Is(err, presence.ErrLockUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
