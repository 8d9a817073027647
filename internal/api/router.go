/**
 * @description
 * This file sets up the HTTP router for the settlement engine's ops API using
 * the go-chi/chi router. It applies middleware for logging, CORS, and
 * internal-key authentication, and maps the routes to their handlers.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new Chi router and registers the engine's routes.
func NewRouter(h *Handler, internalAPIKey string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "X-Internal-API-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("Settlement engine is healthy"))
	})

	// Server-to-server routes gated by the shared internal key.
	r.Group(func(r chi.Router) {
		r.Use(InternalAuthMiddleware(internalAPIKey))

		r.Get("/plans", h.handleListPlans)
		r.Post("/intents", h.handleCreateIntent)
		r.Get("/transfers/{txHash}", h.handleGetTransfer)

		r.Route("/scheduler", func(r chi.Router) {
			r.Get("/status", h.handleSchedulerStatus)
			r.Post("/run", h.handleForceRun)
			r.Post("/start", h.handleStartScheduler)
			r.Post("/stop", h.handleStopScheduler)
		})
	})

	return r
}
