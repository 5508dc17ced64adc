package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	"participium/pkg/lifecycle"
	"participium/pkg/middleware"
)

type RouterConfig struct {
	JWTSecret   []byte
	CORSOrigins []string
	// RateLimit is requests per minute per IP; zero disables limiting.
	RateLimit int
}

func NewRouter(log zerolog.Logger, cfg RouterConfig, h *ReportHTTP, health http.HandlerFunc) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.LoggerMiddleware(log))
	r.Use(middleware.Recoverer(log))
	r.Use(middleware.MetricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Trace-Id"},
		ExposedHeaders:   []string{"X-Trace-Id"},
		AllowCredentials: true,
	}))
	if cfg.RateLimit > 0 {
		r.Use(httprate.LimitByIP(cfg.RateLimit, time.Minute))
	}
	r.Use(middleware.AuthMiddleware(cfg.JWTSecret))

	if health != nil {
		r.Get("/health", health)
	}
	r.Handle("/metrics", middleware.GetMetricsHandler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/categories", h.Categories())

		r.Route("/reports", func(r chi.Router) {
			r.Get("/", h.List())
			r.Post("/", h.Create())
			r.Get("/assigned", h.MapView(lifecycle.StatusAssigned))
			r.Get("/suspended", h.MapView(lifecycle.StatusSuspended))
			r.Get("/office", h.OfficeQueue())
			r.Get("/stats", h.Stats())

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.Get())
				r.Patch("/review", h.Review())
				r.Patch("/start", h.Start())
				r.Patch("/finish", h.Finish())
				r.Patch("/suspend", h.Suspend())
				r.Patch("/resume", h.Resume())
				r.Patch("/assign_external", h.AssignExternal())
				r.Patch("/external/start", h.ExternalStart())
				r.Patch("/external/finish", h.ExternalFinish())
				r.Patch("/external/suspend", h.ExternalSuspend())
				r.Patch("/external/resume", h.ExternalResume())
			})
		})

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", h.Conversations())
			r.Get("/{id}/messages", h.Messages())
			r.Post("/{id}/messages", h.SendMessage())
			r.Get("/{id}/stream", h.Stream())
		})
	})

	return r
}
