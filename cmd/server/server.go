package server

import (
	"log"
	"net/http"

	"github.com/aonescu/driftguard/internal/controller"
	"github.com/aonescu/driftguard/internal/state"
)

type APIServer struct {
	store      state.GuardStore
	controller *controller.Controller
	mux        *http.ServeMux
}

func NewAPIServer(store state.GuardStore, ctrl *controller.Controller) *APIServer {
	api := &APIServer{
		store:      store,
		controller: ctrl,
		mux:        http.NewServeMux(),
	}
	api.registerRoutes()
	return api
}

func (api *APIServer) registerRoutes() {
	// Guard CRUD; create/update fires an immediate reconciliation
	api.mux.HandleFunc("/api/v1/guards", api.handleGuards)
	api.mux.HandleFunc("/api/v1/guards/status", api.handleGuardStatus)

	// Drift queries
	api.mux.HandleFunc("/api/v1/drifted", api.handleDrifted)
	api.mux.HandleFunc("/api/v1/report", api.handleReport)

	// Reconciliation history (PostgreSQL only)
	api.mux.HandleFunc("/api/v1/history", api.handleHistory)

	// Health check
	api.mux.HandleFunc("/health", api.handleHealth)
	api.mux.HandleFunc("/ready", api.handleReady)

	// Metrics/stats
	api.mux.HandleFunc("/api/v1/stats", api.handleStats)
}

func (api *APIServer) Start(addr string) error {
	log.Printf("Starting API server on %s", addr)

	// Add CORS middleware
	handler := api.corsMiddleware(api.loggingMiddleware(api.mux))

	return http.ListenAndServe(addr, handler)
}

// Handler exposes the middleware-wrapped mux, used by the HTTP tests.
func (api *APIServer) Handler() http.Handler {
	return api.corsMiddleware(api.loggingMiddleware(api.mux))
}
