/*
seed.go - YAML seed loading for demos and development

PURPOSE:
  Populates the store with departments, schedules and employees from a YAML
  document, either at startup (-seed flag / SEED_FILE) or through
  POST /api/seed.

FORMAT:
  departments:
    - id: eng
      department_name: Engineering
  schedules:
    - id: office
      name: Office hours
      shifts:
        - {start_day: 1, end_day: 5, start_time: "09:00", end_time: "17:00"}
  employees:
    - id: emp-1
      rfid_tag: "A1B2C3"
      pin: 1234
      first_name: Ada
      last_name: Lovelace
      department_id: eng
      schedule_id: office

HOW SEEDING WORKS:
  1. Parse and validate the whole document (nothing is written on error)
  2. Save departments, then schedules, then employees
  Records are upserted by ID, so loading the same file twice is harmless.

NOTE:
  Only use /api/seed in development/demo environments.

SEE ALSO:
  - handlers.go: record endpoints using the same validation rules
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/warp/checkmate/presence"
)

// =============================================================================
// SEED DOCUMENT
// =============================================================================

type Seed struct {
	Departments []SeedDepartment `yaml:"departments" validate:"dive"`
	Schedules   []SeedSchedule   `yaml:"schedules" validate:"dive"`
	Employees   []SeedEmployee   `yaml:"employees" validate:"dive"`
}

type SeedDepartment struct {
	ID   string `yaml:"id" validate:"required"`
	Name string `yaml:"department_name" validate:"required"`
}

type SeedSchedule struct {
	ID     string      `yaml:"id" validate:"required"`
	Name   string      `yaml:"name" validate:"required"`
	Shifts []SeedShift `yaml:"shifts" validate:"required,min=1,dive"`
}

type SeedShift struct {
	StartDay  int    `yaml:"start_day" validate:"min=0,max=6"`
	EndDay    int    `yaml:"end_day" validate:"min=0,max=6"`
	StartTime string `yaml:"start_time" validate:"required,len=5"`
	EndTime   string `yaml:"end_time" validate:"required,len=5"`
}

type SeedEmployee struct {
	ID           string `yaml:"id" validate:"required"`
	Tag          string `yaml:"rfid_tag" validate:"required"`
	PIN          int    `yaml:"pin" validate:"min=0"`
	FirstName    string `yaml:"first_name" validate:"required"`
	LastName     string `yaml:"last_name" validate:"required"`
	Email        string `yaml:"email" validate:"omitempty,email"`
	Phone        string `yaml:"phone_number"`
	Status       string `yaml:"status" validate:"omitempty,oneof=active inactive"`
	DepartmentID string `yaml:"department_id"`
	ScheduleID   string `yaml:"schedule_id"`
}

// SeedSummary counts what a seed wrote.
type SeedSummary struct {
	Departments int `json:"departments"`
	Schedules   int `json:"schedules"`
	Employees   int `json:"employees"`
}

// ParseSeed decodes and validates a YAML seed document.
func ParseSeed(r io.Reader) (Seed, error) {
	var seed Seed
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&seed); err != nil && !errors.Is(err, io.EOF) {
		return Seed{}, &presence.ValidationError{Field: "seed", Message: err.Error()}
	}
	if err := validate.Struct(seed); err != nil {
		return Seed{}, &presence.ValidationError{Field: "seed", Message: err.Error()}
	}
	// Shift clock values must parse before anything is written.
	for _, s := range seed.Schedules {
		for _, sh := range s.Shifts {
			if _, err := toShift(ShiftDTO(sh)); err != nil {
				return Seed{}, fmt.Errorf("schedule %s: %w", s.ID, err)
			}
		}
	}
	return seed, nil
}

// LoadSeedFile parses path and applies it to store.
func LoadSeedFile(ctx context.Context, store Store, path string) (SeedSummary, error) {
	f, err := os.Open(path)
	if err != nil {
		return SeedSummary{}, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()

	seed, err := ParseSeed(f)
	if err != nil {
		return SeedSummary{}, err
	}
	return ApplySeed(ctx, store, seed)
}

// ApplySeed upserts every record of seed.
func ApplySeed(ctx context.Context, store Store, seed Seed) (SeedSummary, error) {
	var sum SeedSummary

	for _, d := range seed.Departments {
		if err := store.SaveDepartment(ctx, presence.Department{ID: presence.DepartmentID(d.ID), Name: d.Name}); err != nil {
			return sum, fmt.Errorf("department %s: %w", d.ID, err)
		}
		sum.Departments++
	}

	for _, s := range seed.Schedules {
		sched := presence.Schedule{ID: presence.ScheduleID(s.ID), Name: s.Name}
		for _, sh := range s.Shifts {
			shift, err := toShift(ShiftDTO(sh))
			if err != nil {
				return sum, fmt.Errorf("schedule %s: %w", s.ID, err)
			}
			sched.Shifts = append(sched.Shifts, shift)
		}
		if err := store.SaveSchedule(ctx, sched); err != nil {
			return sum, fmt.Errorf("schedule %s: %w", s.ID, err)
		}
		sum.Schedules++
	}

	for _, e := range seed.Employees {
		emp := presence.Employee{
			ID:           presence.EmployeeID(e.ID),
			Tag:          e.Tag,
			PIN:          e.PIN,
			FirstName:    e.FirstName,
			LastName:     e.LastName,
			Email:        e.Email,
			Phone:        e.Phone,
			Status:       e.Status,
			DepartmentID: presence.DepartmentID(e.DepartmentID),
			ScheduleID:   presence.ScheduleID(e.ScheduleID),
		}
		if emp.Status == "" {
			emp.Status = "active"
		}
		if err := store.SaveEmployee(ctx, emp); err != nil {
			return sum, fmt.Errorf("employee %s: %w", e.ID, err)
		}
		sum.Employees++
	}

	return sum, nil
}

// LoadSeed applies a YAML seed from the request body.
// POST /api/seed
func (h *Handler) LoadSeed(w http.ResponseWriter, r *http.Request) {
	seed, err := ParseSeed(r.Body)
	if err != nil {
		writeDomainError(w, "Invalid seed", err)
		return
	}

	sum, err := ApplySeed(r.Context(), h.Store, seed)
	if err != nil {
		writeDomainError(w, "Failed to load seed", err)
		return
	}

	h.Logger.Info("seed loaded",
		zap.Int("departments", sum.Departments),
		zap.Int("schedules", sum.Schedules),
		zap.Int("employees", sum.Employees))
	writeJSON(w, http.StatusOK, sum)
}
