package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates and configures the HTTP router with all routes and middleware.
func NewRouter(h *Handlers, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestIDResponse)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(logger))
	r.Use(Recovery(logger))
	r.Use(middleware.Compress(5))
	r.Use(ContentTypeJSON)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Content-Length"},
		ExposedHeaders:   []string{"Content-Disposition", "X-Request-ID"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/health", h.Health)

	r.Get("/", h.LandingPage)
	r.Get("/conformance", h.Conformance)

	// Catalog listings
	r.Get("/datasets", h.Datasets)
	r.Get("/datasets/{dataset}", h.Dataset)
	r.Get("/indices", h.Indices)
	r.Get("/indices/{index}", h.Index)

	// Pipeline
	r.Group(func(r chi.Router) {
		r.Use(RequestTimeout(h.cfg.Server.RequestTimeout))
		r.Post("/composite", h.Composite)
		r.Post("/evaluate", h.Evaluate)
		r.Post("/series", h.Series)
	})

	r.Post("/regions/shapefile", h.RegionFromShapefile)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		WriteNotFound(w, "endpoint not found")
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		WriteError(w, http.StatusMethodNotAllowed, "MethodNotAllowed", "method not allowed")
	})

	return r
}
