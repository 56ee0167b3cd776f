package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v3"
	"github.com/go-chi/jwtauth/v5"

	"github.com/cmlabs-hris/hris-payroll-engine/internal/domain/user"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/handler/http/middleware"
	"github.com/cmlabs-hris/hris-payroll-engine/internal/pkg/jwt"
)

type RouterDeps struct {
	Logger      *slog.Logger
	CORSOrigins []string
	JWTService  jwt.Service
	Actors      middleware.ActorResolver
	// Metrics serves /metrics when set.
	Metrics http.Handler

	Attendance   AttendanceHandler
	Rules        RuleHandler
	Payroll      PayrollHandler
	Notification NotificationHandler
}

func NewRouter(deps RouterDeps) *chi.Mux {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	origins := deps.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:3000"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link"},
		MaxAge:           300,
	}))

	r.Use(chiMiddleware.RequestID)
	r.Use(httplog.RequestLogger(logger, &httplog.Options{
		Level:  slog.LevelInfo,
		Schema: httplog.SchemaECS,
	}))

	r.Use(chiMiddleware.CleanPath)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/"))

	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		// EventSource cannot send headers, so the stream authenticates with
		// a short-lived token in the query string.
		r.Get("/notifications/stream", deps.Notification.Stream)

		// Requires authentication
		r.Group(func(r chi.Router) {
			r.Use(jwtauth.Verifier(deps.JWTService.JWTAuth()))
			r.Use(middleware.AuthRequired)
			r.Use(middleware.ResolveActor(deps.Actors))

			r.Get("/notifications/sse-token", deps.Notification.GetSSEToken)

			r.Route("/attendance", func(r chi.Router) {
				r.With(middleware.RequireCapability(user.CapabilityAttendancePunch)).
					Post("/punches", deps.Attendance.RecordPunch)

				r.Route("/records", func(r chi.Router) {
					r.Get("/", deps.Attendance.ListRecords)
					r.With(middleware.RequireCapability(user.CapabilityAttendanceEvaluate)).
						Post("/evaluate", deps.Attendance.Evaluate)
				})

				r.Route("/exceptions", func(r chi.Router) {
					r.Get("/", deps.Attendance.ListExceptions)
					r.With(middleware.RequireCapability(user.CapabilityAttendanceResolve)).
						Post("/resolve", deps.Attendance.ResolveException)
				})

				r.Route("/rules", func(r chi.Router) {
					r.Use(middleware.RequireAnyCapability(user.CapabilityAttendanceRules, user.CapabilityAttendanceViewAll))
					r.Get("/", deps.Rules.List)
					r.Get("/{id}", deps.Rules.Get)

					r.Group(func(r chi.Router) {
						r.Use(middleware.RequireCapability(user.CapabilityAttendanceRules))
						r.Post("/", deps.Rules.Create)
						r.Post("/{id}/activate", deps.Rules.Activate)
						r.Post("/{id}/deactivate", deps.Rules.Deactivate)
					})
				})
			})

			r.Route("/payroll", func(r chi.Router) {
				r.Route("/runs", func(r chi.Router) {
					r.Use(middleware.RequireCapability(user.CapabilityPayrollView))
					r.Post("/", deps.Payroll.CreateRun)
					r.Get("/", deps.Payroll.ListRuns)

					r.Route("/{id}", func(r chi.Router) {
						r.Get("/", deps.Payroll.GetRun)
						r.Get("/payslips", deps.Payroll.ListPayslips)
						r.Get("/payslips/{payslipID}", deps.Payroll.GetPayslip)
						r.Get("/audit", deps.Payroll.ListAudit)
						r.Post("/{event}", deps.Payroll.Transition)
					})
				})

				r.Route("/configs", func(r chi.Router) {
					r.Use(middleware.RequireAnyCapability(
						user.CapabilityPayrollConfigManage,
						user.CapabilityPayrollConfigApprove,
						user.CapabilityPayrollView,
					))
					r.Post("/", deps.Payroll.CreateConfig)
					r.Get("/", deps.Payroll.ListConfigs)
					r.Get("/{id}", deps.Payroll.GetConfig)
					r.Put("/{id}", deps.Payroll.UpdateConfig)
					r.Post("/{id}/status", deps.Payroll.UpdateConfigStatus)
				})
			})
		})
	})
	return r
}
