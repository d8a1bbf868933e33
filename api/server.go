/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Structured request logging (zap)
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the dashboard

ROUTE GROUPS:
  /api/hardware_endpoint  Scan devices
  /api/*_rapport          Reports
  /api/attendance         Attendance log CRUD
  /api/leaves             Leave log CRUD
  /api/employees*         Employee records and today's presence
  /api/departments        Department records
  /api/schedules          Schedule records
  /api/seed               YAML seed loader (dev only)

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/warp/checkmate/presence"
)

// RouterOptions configures cross-cutting middleware.
type RouterOptions struct {
	CORSOrigins []string
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(requestLogger(h.Logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
	}))

	attendance := h.events(presence.KindAttendance)
	leaves := h.events(presence.KindLeave)

	r.Route("/api", func(r chi.Router) {
		// Device routes
		r.Route("/hardware_endpoint", func(r chi.Router) {
			r.Get("/", h.ListDeviceEmployees)
			r.Post("/", h.Admit)
		})

		// Report routes
		r.Post("/daily_rapport", h.DailyReport)
		r.Post("/monthly_rapport", h.MonthlyReport)
		r.Get("/employees_today", h.EmployeesToday)
		r.Get("/check-in-today", h.CheckInToday)

		// Event routes
		r.Route("/attendance", func(r chi.Router) {
			r.Get("/", attendance.List)
			r.Post("/", attendance.Create)
			r.Put("/", attendance.Update)
			r.Delete("/", attendance.Delete)
		})
		r.Route("/leaves", func(r chi.Router) {
			r.Get("/", leaves.List)
			r.Post("/", leaves.Create)
			r.Put("/", leaves.Update)
			r.Delete("/", leaves.Delete)
		})

		// Record routes
		r.Route("/employees", func(r chi.Router) {
			r.Get("/", h.ListEmployees)
			r.Post("/", h.CreateEmployee)
			r.Get("/{id}", h.GetEmployee)
		})
		r.Route("/departments", func(r chi.Router) {
			r.Get("/", h.ListDepartments)
			r.Post("/", h.CreateDepartment)
		})
		r.Route("/schedules", func(r chi.Router) {
			r.Get("/", h.ListSchedules)
			r.Post("/", h.CreateSchedule)
		})

		r.Post("/seed", h.LoadSeed)
	})

	return r
}

// requestLogger logs one line per request with zap.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			defer func() {
				logger.Info("http request",
					zap.String("request_id", middleware.GetReqID(r.Context())),
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("duration", time.Since(start)),
				)
			}()

			next.ServeHTTP(ww, r)
		})
	}
}
