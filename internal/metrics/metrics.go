// Package metrics provides Prometheus instrumentation for the TalkNow
// signaling engine. It exposes gauges for connection, queue and session
// counts, counters for pipeline outcomes, and histograms for latency
// tracking.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal tracks the current number of active WebSocket connections.
	ConnectionsTotal = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "talknow_connections_total",
		Help: "Current number of active WebSocket connections",
	})

	// QueueSize tracks the current number of tickets in the matchmaking queue.
	QueueSize = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "talknow_queue_size",
		Help: "Current number of tickets in the matchmaking queue",
	})

	// ActiveSessions tracks the current number of active sessions.
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "talknow_active_sessions",
		Help: "Current number of active chat sessions",
	})

	// MessagesTotal counts chat messages through the pipeline, labeled by
	// outcome: "relayed", "warned", "blocked", "moderation_timeout",
	// "rate_limited", "no_session".
	MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "talknow_messages_total",
		Help: "Total chat messages through the pipeline by outcome",
	}, []string{"outcome"})

	// SignalsTotal counts relayed WebRTC signaling payloads by type.
	SignalsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "talknow_signals_total",
		Help: "Total relayed signaling payloads by type",
	}, []string{"type"}) // type = "offer", "answer", "ice-candidate"

	// MatchesTotal counts completed pairings.
	MatchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "talknow_matches_total",
		Help: "Total completed pairings",
	})

	// ModerationLatency records the moderation collaborator round trip.
	ModerationLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "talknow_moderation_latency_seconds",
		Help:    "Moderation check round-trip latency in seconds",
		Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
	})

	// TimeToMatch records the time from enqueue to pairing.
	TimeToMatch = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "talknow_time_to_match_seconds",
		Help:    "Time from ticket enqueue to pairing",
		Buckets: []float64{1, 2, 5, 10, 15, 20, 25, 30},
	})
)

func init() {
	prometheus.MustRegister(
		ConnectionsTotal,
		QueueSize,
		ActiveSessions,
		MessagesTotal,
		SignalsTotal,
		MatchesTotal,
		ModerationLatency,
		TimeToMatch,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
