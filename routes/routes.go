package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/openassist/llm-orchestrator/app"
	"github.com/openassist/llm-orchestrator/handlers"
	appmw "github.com/openassist/llm-orchestrator/middleware"
)

// SetupRoutes configures all application routes and middleware
func SetupRoutes(deps *app.Dependencies) http.Handler {
	r := chi.NewRouter()

	// Core middleware
	r.Use(appmw.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(120 * time.Second))

	// CORS middleware
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:*", "https://*"},
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	healthHandler := handlers.NewHealthHandler(deps.Registry, deps.DB, deps.Logger)
	orchestrateHandler := handlers.NewOrchestrateHandler(deps.Orchestrator, deps.Logger)
	providerHandler := handlers.NewProviderHandler(deps.Registry, deps.Logger)
	statsHandler := handlers.NewStatsHandler(deps.Tracker, deps.Orchestrator, deps.Logger)

	// Health check endpoints
	r.Get("/healthz", healthHandler.HandleHealth)
	r.Get("/readyz", healthHandler.HandleReadiness)

	// Prometheus metrics
	if deps.Config.Observability.MetricsEnabled {
		r.Handle(deps.Config.Observability.MetricsPath, promhttp.Handler())
	}

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/orchestrate", orchestrateHandler.HandleSubmit)
		r.Delete("/requests/{id}", orchestrateHandler.HandleCancel)
		r.Get("/providers", providerHandler.HandleList)
		r.Get("/stats", statsHandler.HandleStats)
	})

	// 404 handler
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"not_found","message":"Route not found"}`))
	})

	return r
}
