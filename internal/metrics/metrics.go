// Package metrics provides Prometheus instrumentation for the anonymous
// chat engine: presence gauges, relay throughput counters, and matchmaking
// latency histograms.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SearchingUsers tracks the current number of users in the search queue.
	SearchingUsers = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "anonchat_searching_users",
		Help: "Current number of users in the search queue",
	})

	// ActiveSessions tracks the current number of active chat sessions.
	ActiveSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "anonchat_active_sessions",
		Help: "Current number of active chat sessions",
	})

	// SessionsTotal counts every session ever created.
	SessionsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "anonchat_sessions_total",
		Help: "Total number of chat sessions created",
	})

	// MessagesRelayed counts relayed content units, labeled by kind.
	MessagesRelayed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "anonchat_messages_relayed_total",
		Help: "Total number of content units relayed to a partner",
	}, []string{"kind"})

	// MessagesSuppressed counts content units intentionally not relayed
	// (unsupported kinds and blocked terms).
	MessagesSuppressed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "anonchat_messages_suppressed_total",
		Help: "Total number of content units suppressed instead of relayed",
	})

	// MatchDuration records the time from search start to match found.
	MatchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "anonchat_match_duration_seconds",
		Help:    "Time from search start to match found",
		Buckets: []float64{1, 2, 5, 10, 30, 60, 120, 300},
	})

	// SweepsTotal counts completed pin-notice sweeps.
	SweepsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "anonchat_pin_sweeps_total",
		Help: "Total number of pin-notice cleanup sweeps performed",
	})
)

func init() {
	prometheus.MustRegister(
		SearchingUsers,
		ActiveSessions,
		SessionsTotal,
		MessagesRelayed,
		MessagesSuppressed,
		MatchDuration,
		SweepsTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
