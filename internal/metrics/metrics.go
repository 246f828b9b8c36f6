// Package metrics contains the Prometheus metric definitions exported by
// the typing-race server.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Session and player metrics
var (
	ActiveSessionsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "typerace_active_sessions",
		Help: "Current number of live race sessions",
	}, []string{"state"})

	ConnectedPlayersGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "typerace_connected_players",
		Help: "Current number of connected player sockets",
	}, nil)

	SessionsCreatedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "typerace_sessions_created_total",
		Help: "Total number of sessions created",
	}, nil)

	SessionsFinishedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "typerace_sessions_finished_total",
		Help: "Total number of sessions that reached Finished",
	}, []string{"reason"})

	SessionsTerminatedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "typerace_sessions_terminated_total",
		Help: "Total number of sessions force-terminated by the controller",
	}, []string{"reason"})
)

// Fan-out / transport metrics
var (
	BroadcastsSentCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "typerace_broadcasts_sent_total",
		Help: "Total number of outbound events enqueued to connections",
	}, []string{"event_type"})

	BroadcastsDroppedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "typerace_broadcasts_dropped_total",
		Help: "Total number of outbound events dropped (throttled or backpressured)",
	}, []string{"event_type", "reason"})

	ConnectionWriteQueueDepthGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "typerace_connection_write_queue_depth",
		Help: "Current number of connections by write-queue occupancy bucket",
	}, []string{"bucket"})
)

// Self-healing controller metrics
var (
	MitigationActiveGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "typerace_mitigation_active",
		Help: "Whether a given mitigation flag is currently latched (1) or clear (0)",
	}, []string{"flag"})

	MemoryUsageGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "typerace_memory_usage_ratio",
		Help: "Fraction of process heap in use (0-1) as sampled by the controller",
	}, nil)

	DeferredQueueDepthGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "typerace_deferred_queue_depth",
		Help: "Current number of operations waiting in the controller's deferred queue",
	}, nil)

	GameCreationQueueDepthGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "typerace_game_creation_queue_depth",
		Help: "Current number of buffered create_game requests awaiting drain",
	}, nil)

	IdleGamesTerminatedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "typerace_idle_games_terminated_total",
		Help: "Total number of games force-terminated for being idle under memory pressure",
	}, nil)
)

// HTTP admin surface metrics
var (
	HTTPRequestsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "typerace_http_requests_total",
		Help: "Total number of admin HTTP API requests",
	}, []string{"route", "status"})

	HTTPRateLimitedCounter = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "typerace_http_rate_limited_total",
		Help: "Total number of admin HTTP API requests rejected by the rate limiter",
	}, []string{"route"})
)
