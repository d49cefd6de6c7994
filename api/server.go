/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the caregiver app

ROUTE GROUPS:
  /api/reminders/*      Reminder lifecycle and occurrences
  /api/occurrences/*    Acknowledge and snooze
  /api/availabilities/* Caregiver availability
  /api/caregivers/*     Per-caregiver views
  /api/seniors/*        Care circles and gaps
  /api/users/*          Per-user reminders and notification inbox
  /api/notifications/*  Notification state
  /api/admin/*          Manual sweeps

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/reminders", func(r chi.Router) {
			r.Post("/", h.CreateReminder)
			r.Get("/{id}", h.GetReminder)
			r.Put("/{id}", h.UpdateReminder)
			r.Delete("/{id}", h.DeleteReminder)
			r.Post("/{id}/expand", h.ExpandReminder)
			r.Get("/{id}/occurrences", h.ListOccurrences)
			r.Get("/{id}/adherence", h.GetAdherence)
		})

		r.Route("/occurrences", func(r chi.Router) {
			r.Post("/{id}/acknowledge", h.AcknowledgeOccurrence)
			r.Post("/{id}/snooze", h.SnoozeOccurrence)
		})

		r.Route("/availabilities", func(r chi.Router) {
			r.Post("/", h.CreateAvailability)
			r.Put("/{id}", h.UpdateAvailability)
			r.Delete("/{id}", h.DeleteAvailability)
		})

		r.Get("/caregivers/{id}/availabilities", h.ListCaregiverAvailability)

		r.Route("/seniors", func(r chi.Router) {
			r.Post("/", h.SaveSenior)
			r.Get("/{id}", h.GetSenior)
			r.Post("/{id}/caregivers", h.LinkCaregiver)
			r.Delete("/{id}/caregivers/{caregiverID}", h.UnlinkCaregiver)
			r.Get("/{id}/gaps", h.GetGaps)
		})

		r.Get("/users/{id}/reminders", h.ListUserReminders)
		r.Get("/users/{id}/notifications", h.ListNotifications)
		r.Post("/notifications/{id}/read", h.MarkNotificationRead)

		r.Route("/admin", func(r chi.Router) {
			r.Post("/sweep", h.TriggerSweep)
			r.Post("/missed", h.TriggerMissedSweep)
			r.Post("/refresh", h.TriggerRefresh)
		})
	})

	return r
}
