// Package httpapi exposes the monitoring and admin-facing HTTP surface
// (spec.md §6) alongside the WebSocket event transport: health checks,
// read-only game/replay listings, and operator endpoints for metrics,
// stats, and the self-healing dashboard.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"typerace/internal/config"
	"typerace/internal/controller"
	"typerace/internal/engine"
	"typerace/internal/logx"
	"typerace/internal/metrics"
	"typerace/internal/replay"
)

// Engine is the subset of *engine.Engine the HTTP surface reads from. It
// never mutates session state directly — creation and joins still flow
// through the same engine.CreateGame/JoinGame the WebSocket dispatcher
// uses, so both transports observe identical invariants.
type Engine interface {
	AllGames() []engine.GameSummary
	GetGameState(sessionID string) (engine.View, error)
	GetReplay(sessionID string) (replay.Replay, error)
	ActiveSessionCount() int
	CreateGame(playerID, playerName string, maxPlayers int, long bool) (string, engine.PlayerView, error)
	JoinGame(playerID, playerName, sessionID string) (string, engine.PlayerView, bool, error)
}

// Controller is the subset of *controller.Controller the dashboard reads.
type Controller interface {
	Snapshot() controller.DashboardSnapshot
}

// Server serves the admin/monitoring HTTP API.
type Server struct {
	engine     Engine
	controller Controller
	cfg        config.Config
	limiter    *ipRateLimiter
	mux        *http.ServeMux
	startedAt  time.Time
}

// NewServer builds the HTTP mux. Call ServeHTTP (or use the Server
// directly as an http.Handler) with an *http.Server.
func NewServer(eng Engine, ctrl Controller, cfg config.Config) *Server {
	s := &Server{
		engine:     eng,
		controller: ctrl,
		cfg:        cfg,
		limiter:    newIPRateLimiter(),
		mux:        http.NewServeMux(),
		startedAt:  time.Now(),
	}
	s.routes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.instrument("health", s.handleHealth))

	s.mux.HandleFunc("GET /api/game/games", s.instrument("games", s.rateLimit("games", s.handleListGames)))
	s.mux.HandleFunc("GET /api/game/games/{id}", s.instrument("game", s.rateLimit("game", s.handleGetGame)))
	s.mux.HandleFunc("POST /api/game/create", s.instrument("create", s.rateLimit("create", s.handleCreateGame)))
	s.mux.HandleFunc("POST /api/game/join", s.instrument("join", s.rateLimit("join", s.handleJoinGame)))
	s.mux.HandleFunc("GET /api/game/system/status", s.instrument("status", s.rateLimit("status", s.handleSystemStatus)))
	s.mux.HandleFunc("GET /api/game/replays", s.instrument("replays", s.rateLimit("replays", s.handleListReplays)))
	s.mux.HandleFunc("GET /api/game/replays/{id}", s.instrument("replay", s.rateLimit("replay", s.handleGetReplay)))

	s.mux.HandleFunc("GET /api/monitor/health", s.instrument("monitor_health", s.handleHealth))
	s.mux.HandleFunc("GET /api/monitor/metrics", s.instrument("monitor_metrics", s.requireAdminKey(s.handleMetrics)))
	s.mux.HandleFunc("GET /api/monitor/stats", s.instrument("monitor_stats", s.requireAdminKey(s.handleStats)))
	s.mux.HandleFunc("GET /api/monitor/dashboard", s.instrument("monitor_dashboard", s.requireAdminKey(s.handleDashboard)))
}

// instrument records the outcome of every admin HTTP request, mirroring
// the request/status label pair the rest of the fleet attaches to its
// promauto counters.
func (s *Server) instrument(route string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		metrics.HTTPRequestsCounter.WithLabelValues(route, statusClass(rec.status)).Inc()
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func statusClass(status int) string {
	switch {
	case status >= 500:
		return "5xx"
	case status >= 400:
		return "4xx"
	default:
		return "2xx"
	}
}

// requireAdminKey gates the endpoint behind the X-Admin-Key header
// matching cfg.AdminAPIKey when one is configured (production); when
// AdminAPIKey is empty the gate is a no-op, matching local/dev setups.
func (s *Server) requireAdminKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AdminAPIKey != "" && r.Header.Get("X-Admin-Key") != s.cfg.AdminAPIKey {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logx.Warnf("httpapi: failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// healthStatus derives the health verdict from the controller's trip
// latches: a memory trip is critical (the process is actively refusing
// new players), a CPU or game-count trip is a warning (degraded but
// still serving), and no trips (or no controller running at all) is ok.
func (s *Server) healthStatus() string {
	if s.controller == nil {
		return "ok"
	}
	snap := s.controller.Snapshot()
	switch {
	case snap.MemoryTripped:
		return "critical"
	case snap.CPUTripped, snap.GameCountTripped:
		return "warning"
	default:
		return "ok"
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.healthStatus()
	code := http.StatusOK
	if status == "critical" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, map[string]interface{}{
		"status":    status,
		"env":       s.cfg.Env,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
