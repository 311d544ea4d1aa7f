package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter mounts the health, metrics, websocket and REST endpoints
func NewRouter(h *APIHandler, corsOrigins []string) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: corsOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", ActorHeader},
		MaxAge:         300,
	}))
	r.Use(Metrics)

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())
	if h.hub != nil {
		r.Get("/ws", h.hub.ServeWS)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		r.Route("/sensors", func(r chi.Router) {
			r.Get("/", h.ListSensors)
			r.Get("/areas", h.ListAreas)
			r.Get("/{id}", h.GetSensor)
			r.Get("/{id}/history", h.SensorHistory)
			r.Get("/{id}/readings", h.SensorReadings)
		})

		r.Route("/grievances", func(r chi.Router) {
			r.Get("/", h.ListGrievances)
			r.Post("/", h.CreateGrievance)
			r.Get("/{id}", h.GetGrievance)
			r.Patch("/{id}", h.UpdateGrievance)
			r.Post("/{id}/assign", h.AssignGrievance)
			r.Post("/{id}/status", h.TransitionGrievance)
			r.Post("/{id}/comments", h.CommentGrievance)
		})

		r.Get("/assets", h.ListAssets)
		r.Get("/alerts", h.ListAlerts)

		r.Route("/dashboard", func(r chi.Router) {
			r.Get("/stats", h.DashboardStats)
			r.Get("/activities", h.DashboardActivities)
			r.Get("/alerts", h.DashboardAlerts)
			r.Get("/distribution", h.DashboardDistribution)
			r.Get("/summary", h.DashboardSummary)
		})

		r.Route("/simulator", func(r chi.Router) {
			r.Get("/", h.SimulatorStatus)
			r.Post("/pause", h.PauseSimulator)
			r.Post("/resume", h.ResumeSimulator)
		})

		r.Post("/admin/reset", h.Reset)
	})

	return r
}
