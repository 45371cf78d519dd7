package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	apimw "copier_bridge/internal/api/middleware"
	"copier_bridge/internal/metrics"
	"copier_bridge/internal/middleware"
)

// SetupRouter wires public, agent and dashboard routes
func (h *Handler) SetupRouter(limiter *middleware.RateLimiter) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.CORS)
	r.Use(middleware.RequestLogger(h.logger))

	// Public
	r.HandleFunc("/health", h.HandleHealth).Methods("GET")
	r.Handle("/metrics", metrics.Handler()).Methods("GET")
	r.HandleFunc("/api/auth/login", h.HandleLogin).Methods("POST", "OPTIONS")

	// Agent
	agent := r.PathPrefix("/api/agent").Subrouter()
	agent.Use(apimw.AgentKeyMiddleware(h.authService))
	if limiter != nil {
		agent.Use(limiter.Middleware())
	}

	agent.HandleFunc("/trades", h.HandleSubmitTrade).Methods("POST")
	agent.HandleFunc("/sync", h.HandleSync).Methods("POST")
	agent.HandleFunc("/accounts/changes", h.HandleAccountChanges).Methods("GET")
	agent.HandleFunc("/commands/pending", h.HandlePendingCommands).Methods("GET")
	agent.HandleFunc("/commands/{id}/ack", h.HandleAckCommand).Methods("POST")
	agent.HandleFunc("/state", h.HandleGetState).Methods("GET")
	agent.HandleFunc("/state", h.HandleSetState).Methods("PUT")
	agent.HandleFunc("/directory/resolve", h.HandleResolveDirectory).Methods("POST")

	// Dashboard
	api := r.PathPrefix("/api").Subrouter()
	api.Use(apimw.AuthMiddleware(h.authService))

	api.HandleFunc("/trades", h.HandleGetTrades).Methods("GET")
	api.HandleFunc("/accounts", h.HandleGetAccounts).Methods("GET")
	api.HandleFunc("/accounts/changes", h.HandleAccountChanges).Methods("GET")
	api.HandleFunc("/accounts/{id:[0-9]+}", h.HandlePatchAccount).Methods("PATCH")
	api.HandleFunc("/stats", h.HandleGetStats).Methods("GET")
	api.HandleFunc("/commands", h.HandleEnqueueCommand).Methods("POST")
	api.HandleFunc("/commands", h.HandleListCommands).Methods("GET")
	api.HandleFunc("/state", h.HandleGetState).Methods("GET")
	api.HandleFunc("/state", h.HandleSetState).Methods("PUT")
	api.HandleFunc("/directory/resolve", h.HandleResolveDirectory).Methods("POST")
	api.HandleFunc("/logs", h.HandleGetLogs).Methods("GET")

	return r
}

type HealthResponse struct {
	Status        string    `json:"status"`
	UptimeSeconds int64     `json:"uptime_seconds"`
	StartedAt     time.Time `json:"started_at"`
}

// HandleHealth reports liveness and process uptime
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	h.respondSuccess(w, "OK", HealthResponse{
		Status:        "healthy",
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		StartedAt:     h.startedAt.UTC(),
	})
}
