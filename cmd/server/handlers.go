package server

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/aonescu/driftguard/internal/db"
	"github.com/aonescu/driftguard/internal/formatting"
	"github.com/aonescu/driftguard/internal/types"
)

// GET  /api/v1/guards
// POST /api/v1/guards (also PUT) — upsert a guard and trigger reconciliation
// DELETE /api/v1/guards?name=app-cfg-guard&namespace=default
func (api *APIServer) handleGuards(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		api.respondJSON(w, api.store.List())

	case http.MethodPost, http.MethodPut:
		var guard types.Guard
		if err := json.NewDecoder(r.Body).Decode(&guard); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}

		// Identity is required to store anything at all; other spec problems
		// surface as state=Invalid on the first reconciliation.
		if guard.Name == "" || guard.Namespace == "" {
			http.Error(w, "name and namespace are required", http.StatusBadRequest)
			return
		}

		if err := api.store.Upsert(guard); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		api.controller.Trigger(guard)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(guard)

	case http.MethodDelete:
		name := r.URL.Query().Get("name")
		namespace := r.URL.Query().Get("namespace")
		if name == "" || namespace == "" {
			http.Error(w, "name and namespace are required", http.StatusBadRequest)
			return
		}

		if err := api.store.Delete(name, namespace); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// GET /api/v1/guards/status?name=app-cfg-guard&namespace=default
func (api *APIServer) handleGuardStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := r.URL.Query().Get("name")
	namespace := r.URL.Query().Get("namespace")
	if name == "" || namespace == "" {
		http.Error(w, "name and namespace are required", http.StatusBadRequest)
		return
	}

	status, exists := api.store.GetStatus(name, namespace)
	if !exists {
		http.Error(w, "Guard not reconciled yet", http.StatusNotFound)
		return
	}

	api.respondJSON(w, status)
}

// GET /api/v1/drifted
func (api *APIServer) handleDrifted(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	statuses := api.store.ListStatuses()
	drifted := make(map[string]types.GuardStatus)
	for _, key := range formatting.DriftedKeys(statuses) {
		drifted[key] = statuses[key]
	}

	api.respondJSON(w, drifted)
}

// GET /api/v1/report?name=app-cfg-guard&namespace=default
func (api *APIServer) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := r.URL.Query().Get("name")
	namespace := r.URL.Query().Get("namespace")

	guard, exists := api.store.Get(name, namespace)
	if !exists {
		http.Error(w, "Guard not found", http.StatusNotFound)
		return
	}
	guard.Normalize()

	status, exists := api.store.GetStatus(name, namespace)
	if !exists {
		http.Error(w, "Guard not reconciled yet", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(formatting.FormatDriftReport(guard, status)))
}

// GET /api/v1/history?name=app-cfg-guard&namespace=default&limit=20
func (api *APIServer) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	name := r.URL.Query().Get("name")
	namespace := r.URL.Query().Get("namespace")
	if name == "" || namespace == "" {
		http.Error(w, "name and namespace are required", http.StatusBadRequest)
		return
	}

	limit := 20
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil {
			limit = l
		}
	}

	if pgStore, ok := api.store.(*db.PostgresStore); ok {
		history, err := pgStore.GetHistory(name, namespace, limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		api.respondJSON(w, history)
	} else {
		http.Error(w, "History only available with PostgreSQL storage", http.StatusServiceUnavailable)
	}
}

// GET /health
func (api *APIServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	health := map[string]interface{}{
		"status": "healthy",
		"time":   time.Now(),
	}

	// Check database connection if using PostgreSQL
	if pgStore, ok := api.store.(*db.PostgresStore); ok {
		if err := pgStore.Ping(); err != nil {
			health["status"] = "unhealthy"
			health["database"] = "disconnected"
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			health["database"] = "connected"
		}
	}

	api.respondJSON(w, health)
}

// GET /ready
func (api *APIServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ready := map[string]interface{}{
		"ready":        true,
		"guards_known": len(api.store.List()),
	}
	api.respondJSON(w, ready)
}

// GET /api/v1/stats
func (api *APIServer) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	stats := formatting.GenerateSummary(api.store.ListStatuses())
	stats["total_guards"] = len(api.store.List())

	api.respondJSON(w, stats)
}

func (api *APIServer) respondJSON(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (api *APIServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		log.Printf("[%s] %s %s", r.Method, r.URL.Path, r.RemoteAddr)
		next.ServeHTTP(w, r)
		log.Printf("[%s] %s completed in %v", r.Method, r.URL.Path, time.Since(start))
	})
}

func (api *APIServer) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
