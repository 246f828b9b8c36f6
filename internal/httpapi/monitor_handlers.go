package httpapi

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var metricsHandler = promhttp.Handler()

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	metricsHandler.ServeHTTP(w, r)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"activeSessions": s.engine.ActiveSessionCount(),
		"games":          len(s.engine.AllGames()),
		"uptime":         time.Since(s.startedAt).String(),
	})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if s.controller == nil {
		writeError(w, http.StatusServiceUnavailable, "self-healing controller is not running")
		return
	}
	writeJSON(w, http.StatusOK, s.controller.Snapshot())
}
