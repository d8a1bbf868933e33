/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the presence engine's model from the wire contract used by scan devices
  and the dashboard.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

FIELD NAMES:
  Wire names (rfid_tag, entered_late_by_minutes, monthly_presence_rate, ...)
  are kept stable for existing devices and dashboards.

VALIDATION:
  Request types carry go-playground/validator tags; see bind.go.
  Pointer fields (pin, timestamp) distinguish "absent" from zero.

SEE ALSO:
  - handlers.go: Uses these types
  - bind.go: decodeAndValidate
*/
package api

import (
	"time"

	"github.com/warp/checkmate/presence"
)

// =============================================================================
// ADMISSION
// =============================================================================

// AdmissionRequest is a device scan.
type AdmissionRequest struct {
	Tag string `json:"rfid_tag" validate:"required"`
	PIN *int   `json:"pin" validate:"required"`
}

type AdmissionResponse struct {
	Access  bool   `json:"access"`
	Action  string `json:"action,omitempty"`
	Message string `json:"message,omitempty"`
}

// DeviceEmployeeDTO is the minimal employee view served to devices.
type DeviceEmployeeDTO struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Tag       string `json:"rfid_tag"`
	PIN       int    `json:"pin"`
}

// =============================================================================
// REPORTS
// =============================================================================

// ReportRequest selects an employee and, optionally, the reference date
// (defaults to today).
type ReportRequest struct {
	EmployeeID string `json:"employee_id" validate:"required"`
	Date       string `json:"date,omitempty" validate:"omitempty,datetime=2006-01-02"`
}

type EmployeeSummaryDTO struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Email      string         `json:"email,omitempty"`
	Department *DepartmentDTO `json:"department,omitempty"`
}

type DailyReportDTO struct {
	Employee         EmployeeSummaryDTO `json:"employee"`
	Schedule         ShiftDTO           `json:"schedule"`
	Date             string             `json:"date"`
	EntryTime        *time.Time         `json:"entry_time"`
	LeaveTime        *time.Time         `json:"leave_time"`
	EnteredLateBy    string             `json:"entered_late_by_minutes"`
	LeftEarlyBy      string             `json:"left_early_by_minutes"`
	PresenceDuration string             `json:"presence_duration"`
	Status           string             `json:"status"`
}

// MessageResponse is used for informational, non-error replies.
type MessageResponse struct {
	Message string `json:"message"`
}

type MonthlyReportDTO struct {
	Employee            EmployeeSummaryDTO `json:"employee"`
	From                string             `json:"from"`
	To                  string             `json:"to"`
	TotalDays           int                `json:"total_days"`
	PresentDays         int                `json:"present_days"`
	AbsentDays          int                `json:"absent_days"`
	StillInsideDays     int                `json:"still_inside_days"`
	UnknownDays         int                `json:"unknown_days"`
	TotalLate           string             `json:"total_late"`
	TotalEarlyLeaves    string             `json:"total_early_leaves"`
	MonthlyPresenceRate string             `json:"monthly_presence_rate"`
	DailyReports        []DailyEntryDTO    `json:"daily_reports"`
}

// DailyEntryDTO is one scheduled day inside a monthly report.
type DailyEntryDTO struct {
	Date             string     `json:"date"`
	Status           string     `json:"status"`
	EntryTime        *time.Time `json:"entry_time"`
	LeaveTime        *time.Time `json:"leave_time"`
	EnteredLateBy    string     `json:"entered_late_by"`
	LeftEarlyBy      string     `json:"left_early_by"`
	PresenceDuration string     `json:"presence_duration"`
	Error            string     `json:"error,omitempty"`
}

// =============================================================================
// EVENTS
// =============================================================================

type EventDTO struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	EmployeeID string    `json:"employee_id"`
	Tag        string    `json:"rfid_tag"`
	PIN        int       `json:"pin"`
	Timestamp  time.Time `json:"timestamp"`
}

// CreateEventRequest is the manual ingestion path. Timestamp defaults to now.
type CreateEventRequest struct {
	Tag       string     `json:"rfid_tag" validate:"required"`
	PIN       *int       `json:"pin" validate:"required"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
}

type UpdateEventRequest struct {
	ID        string     `json:"id" validate:"required"`
	Timestamp *time.Time `json:"timestamp" validate:"required"`
}

type DeleteEventRequest struct {
	ID string `json:"id" validate:"required"`
}

type CheckInTodayDTO struct {
	Attendances []EventDTO `json:"attendances"`
	Leaves      []EventDTO `json:"leaves"`
}

// =============================================================================
// ADMINISTRATIVE RECORDS
// =============================================================================

type EmployeeDTO struct {
	ID           string `json:"id"`
	Tag          string `json:"rfid_tag"`
	PIN          int    `json:"pin"`
	FirstName    string `json:"first_name"`
	LastName     string `json:"last_name"`
	Email        string `json:"email,omitempty"`
	Phone        string `json:"phone_number,omitempty"`
	Status       string `json:"status"`
	DepartmentID string `json:"department_id,omitempty"`
	ScheduleID   string `json:"schedule_id,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
}

// EmployeeTodayDTO adds today's presence: "not in yet", "in" or "out".
type EmployeeTodayDTO struct {
	EmployeeDTO
	Department  *DepartmentDTO `json:"department,omitempty"`
	TodayStatus string         `json:"today_status"`
}

const (
	TodayNotIn = "not in yet"
	TodayIn    = "in"
	TodayOut   = "out"
)

type CreateEmployeeRequest struct {
	ID           string `json:"id"`
	Tag          string `json:"rfid_tag" validate:"required"`
	PIN          *int   `json:"pin" validate:"required,min=0"`
	FirstName    string `json:"first_name" validate:"required"`
	LastName     string `json:"last_name" validate:"required"`
	Email        string `json:"email" validate:"omitempty,email"`
	Phone        string `json:"phone_number"`
	Status       string `json:"status" validate:"omitempty,oneof=active inactive"`
	DepartmentID string `json:"department_id"`
	ScheduleID   string `json:"schedule_id"`
}

type DepartmentDTO struct {
	ID   string `json:"id"`
	Name string `json:"department_name"`
}

type CreateDepartmentRequest struct {
	ID   string `json:"id"`
	Name string `json:"department_name" validate:"required"`
}

// ShiftDTO is the wire form of a shift: weekdays 0-6 (Sunday = 0) and
// zero-padded "HH:MM" clock times.
type ShiftDTO struct {
	StartDay  int    `json:"start_day" validate:"min=0,max=6"`
	EndDay    int    `json:"end_day" validate:"min=0,max=6"`
	StartTime string `json:"start_time" validate:"required,len=5"`
	EndTime   string `json:"end_time" validate:"required,len=5"`
}

type ScheduleDTO struct {
	ID     string     `json:"id"`
	Name   string     `json:"name"`
	Shifts []ShiftDTO `json:"shifts"`
}

type CreateScheduleRequest struct {
	ID     string     `json:"id"`
	Name   string     `json:"name" validate:"required"`
	Shifts []ShiftDTO `json:"shifts" validate:"required,min=1,dive"`
}

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toShiftDTO(s presence.Shift) ShiftDTO {
	return ShiftDTO{
		StartDay:  int(s.StartDay),
		EndDay:    int(s.EndDay),
		StartTime: s.Start.String(),
		EndTime:   s.End.String(),
	}
}

// toShift parses a validated ShiftDTO.
func toShift(d ShiftDTO) (presence.Shift, error) {
	start, err := presence.ParseClockTime(d.StartTime)
	if err != nil {
		return presence.Shift{}, &presence.ValidationError{Field: "start_time", Message: err.Error()}
	}
	end, err := presence.ParseClockTime(d.EndTime)
	if err != nil {
		return presence.Shift{}, &presence.ValidationError{Field: "end_time", Message: err.Error()}
	}
	return presence.Shift{
		StartDay: time.Weekday(d.StartDay),
		EndDay:   time.Weekday(d.EndDay),
		Start:    start,
		End:      end,
	}, nil
}

func toScheduleDTO(s presence.Schedule) ScheduleDTO {
	shifts := make([]ShiftDTO, len(s.Shifts))
	for i, sh := range s.Shifts {
		shifts[i] = toShiftDTO(sh)
	}
	return ScheduleDTO{ID: string(s.ID), Name: s.Name, Shifts: shifts}
}

func toEmployeeDTO(e presence.Employee) EmployeeDTO {
	dto := EmployeeDTO{
		ID:           string(e.ID),
		Tag:          e.Tag,
		PIN:          e.PIN,
		FirstName:    e.FirstName,
		LastName:     e.LastName,
		Email:        e.Email,
		Phone:        e.Phone,
		Status:       e.Status,
		DepartmentID: string(e.DepartmentID),
		ScheduleID:   string(e.ScheduleID),
	}
	if !e.CreatedAt.IsZero() {
		dto.CreatedAt = e.CreatedAt.Format(time.RFC3339)
	}
	return dto
}

func toDepartmentDTO(d *presence.Department) *DepartmentDTO {
	if d == nil {
		return nil
	}
	return &DepartmentDTO{ID: string(d.ID), Name: d.Name}
}

func toEmployeeSummary(rec presence.EmployeeRecord) EmployeeSummaryDTO {
	return EmployeeSummaryDTO{
		ID:         string(rec.Employee.ID),
		Name:       rec.Employee.FullName(),
		Email:      rec.Employee.Email,
		Department: toDepartmentDTO(rec.Department),
	}
}

func toEventDTO(ev presence.Event) EventDTO {
	return EventDTO{
		ID:         string(ev.ID),
		Kind:       string(ev.Kind),
		EmployeeID: string(ev.EmployeeID),
		Tag:        ev.Credential.Tag,
		PIN:        ev.Credential.PIN,
		Timestamp:  ev.Timestamp,
	}
}

func toEventDTOs(events []presence.Event) []EventDTO {
	out := make([]EventDTO, len(events))
	for i, ev := range events {
		out[i] = toEventDTO(ev)
	}
	return out
}

func toDailyEntry(st presence.DailyStatus) DailyEntryDTO {
	return DailyEntryDTO{
		Date:             st.Date.String(),
		Status:           string(st.Status),
		EntryTime:        st.Entry,
		LeaveTime:        st.Leave,
		EnteredLateBy:    st.LateBy(),
		LeftEarlyBy:      st.EarlyBy(),
		PresenceDuration: st.PresenceDuration(),
		Error:            st.Error,
	}
}
