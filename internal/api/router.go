package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates a chi router with all debug routes mounted.
// events, if non-nil, is mounted at GET /api/events for SSE consumers.
func NewRouter(h *Handler, events http.Handler, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(RequestLogger(logger))
	// A handler panic must not take down the LSP session sharing the process.
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.Healthz)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", h.Status)
		r.Get("/validations", h.ListValidations)
		r.Get("/validations/{id}", h.GetValidation)
		r.Post("/validate", h.ValidateNow)
		if events != nil {
			r.Get("/events", events.ServeHTTP)
		}
	})

	return r
}
