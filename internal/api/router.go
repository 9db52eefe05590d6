package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(s.requestMetrics)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/metrics", promhttp.Handler().(http.HandlerFunc))
	r.Get("/api/health", s.handleHealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Post("/schools", s.handleUploadSchools)
		r.Get("/schools", s.handleListSchools)
		r.Get("/geographic", s.handleGeographicData)

		r.With(s.limitScans).Post("/scan", s.handleStartScan)
		r.Get("/scan/{sessionId}", s.handleGetSession)

		r.Get("/tenders", s.handleListTenders)
	})

	return r
}
