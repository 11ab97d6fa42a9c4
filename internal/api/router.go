// Package api exposes the job queue over HTTP
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/trobanga/enzflow/internal/api/handler"
	mw "github.com/trobanga/enzflow/internal/api/middleware"
	"github.com/trobanga/enzflow/internal/api/response"
	"github.com/trobanga/enzflow/internal/lib"
)

// NewRouter builds the chi router with the middleware stack and all routes
func NewRouter(h *handler.Handlers, logger *lib.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.RequestID)
	r.Use(mw.Logger(logger))
	r.Use(mw.Recovery(logger))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "No such endpoint", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Group(func(r chi.Router) {
			r.Use(mw.Owner)

			r.Post("/uploads", h.Upload)

			r.Get("/jobs", h.ListJobs)
			r.Route("/jobs/{jobID}", func(r chi.Router) {
				r.Get("/", h.GetJob)
				r.Delete("/", h.Delete)
				r.Get("/progress", h.Progress)
				r.Post("/reset", h.Reset)
				r.Get("/pathways", h.Pathways)
				r.Get("/artifacts/{kind}", h.Artifact)
			})
		})
	})

	return r
}
