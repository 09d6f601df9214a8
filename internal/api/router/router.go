// Package router wires the HTTP surface of the backend.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/kinebilan/kinebilan-backend/internal/appointments"
	"github.com/kinebilan/kinebilan-backend/internal/auth"
	"github.com/kinebilan/kinebilan-backend/internal/devices"
	httpmiddleware "github.com/kinebilan/kinebilan-backend/internal/http/middleware"
	"github.com/kinebilan/kinebilan-backend/internal/notifications"
	"github.com/kinebilan/kinebilan-backend/internal/patients"
	"github.com/kinebilan/kinebilan-backend/internal/reports"
	"github.com/kinebilan/kinebilan-backend/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger               *logging.Logger
	AuthHandler          *auth.Handler
	PatientsHandler      *patients.Handler
	AppointmentsHandler  *appointments.Handler
	NotificationsHandler *notifications.Handler
	DevicesHandler       *devices.Handler
	ReportsHandler       *reports.Handler
	AdminHandler         *AdminHandler
	MetricsHandler       http.Handler
	AdminJWTSecret       string
	CORSAllowedOrigins   []string
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	if len(cfg.CORSAllowedOrigins) > 0 {
		r.Use(httpmiddleware.CORS(cfg.CORSAllowedOrigins))
	}
	if cfg.Logger != nil {
		r.Use(httpmiddleware.RequestLogger(cfg.Logger))
	}

	// Public endpoints.
	r.Group(func(public chi.Router) {
		public.Get("/health", healthCheck)
		if cfg.MetricsHandler != nil {
			public.Handle("/metrics", cfg.MetricsHandler)
		}
	})

	// Practice API. Login and refresh stay outside the JWT guard,
	// everything else requires a valid access token.
	r.Route("/api/v1", func(v1 chi.Router) {
		if h := cfg.AuthHandler; h != nil {
			h.PublicRoutes(v1)
		}

		v1.Group(func(api chi.Router) {
			api.Use(httpmiddleware.AdminJWT(cfg.AdminJWTSecret))

			if h := cfg.AuthHandler; h != nil {
				h.Routes(api)
			}

			if cfg.PatientsHandler != nil || cfg.AppointmentsHandler != nil ||
				cfg.NotificationsHandler != nil || cfg.DevicesHandler != nil {
				api.Route("/patients", func(r chi.Router) {
					if h := cfg.PatientsHandler; h != nil {
						r.Get("/", h.List)
						r.Post("/", h.Create)
						r.Get("/{id}", h.Get)
						r.Put("/{id}", h.Update)
						r.Delete("/{id}", h.Delete)
					}
					if h := cfg.AppointmentsHandler; h != nil {
						r.Get("/{id}/appointments", h.ListByPatient)
					}
					if h := cfg.NotificationsHandler; h != nil {
						r.Get("/{id}/notifications", h.ListByPatient)
					}
					if h := cfg.DevicesHandler; h != nil {
						r.Get("/{id}/devices", h.ListByPatient)
					}
				})
			}

			if cfg.AppointmentsHandler != nil || cfg.AdminHandler != nil {
				api.Route("/appointments", func(r chi.Router) {
					if h := cfg.AppointmentsHandler; h != nil {
						r.Get("/", h.List)
						r.Post("/", h.Create)
						r.Get("/{id}", h.Get)
						r.Put("/{id}", h.Update)
						r.Put("/{id}/bilan", h.MarkBilan)
						r.Delete("/{id}", h.Delete)
					}
					if h := cfg.AdminHandler; h != nil {
						r.Post("/check-bilans", h.CheckBilans)
					}
				})
			}

			if h := cfg.NotificationsHandler; h != nil {
				h.Routes(api)
			}
			if h := cfg.DevicesHandler; h != nil {
				h.Routes(api)
			}
			if h := cfg.ReportsHandler; h != nil {
				h.Routes(api)
			}
			if h := cfg.AdminHandler; h != nil {
				h.Routes(api)
			}
		})
	})

	return r
}

func healthCheck(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}
