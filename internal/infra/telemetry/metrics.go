package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics collects the client-side counters. The orphan turn-completion
// counter exists because finalizing every active thread on a server is
// a guess about ambiguous server behavior; it has to stay observable.
type Metrics struct {
	rpcRequests           *prometheus.CounterVec
	notifications         *prometheus.CounterVec
	reconnectAttempts     *prometheus.CounterVec
	orphanTurnCompletions prometheus.Counter
	discoveryConfirmed    *prometheus.CounterVec
	rpcDuration           *prometheus.HistogramVec
}

func NewMetrics(registerer prometheus.Registerer) *Metrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registerer)

	return &Metrics{
		rpcRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deckd_rpc_requests_total",
				Help: "Total RPC requests by method and status",
			},
			[]string{"method", "status"},
		),
		notifications: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deckd_notifications_total",
				Help: "Total server notifications by method",
			},
			[]string{"method"},
		),
		reconnectAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deckd_reconnect_attempts_total",
				Help: "Saved-server reconnect attempts by outcome",
			},
			[]string{"outcome"},
		),
		orphanTurnCompletions: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "deckd_orphan_turn_completions_total",
				Help: "Turn-completed notifications that arrived without a thread id",
			},
		),
		discoveryConfirmed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "deckd_discovery_confirmed_total",
				Help: "Discovery candidates confirmed reachable by source",
			},
			[]string{"source"},
		),
		rpcDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "deckd_rpc_duration_seconds",
				Help:    "Duration of RPC requests in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method"},
		),
	}
}

func (m *Metrics) ObserveRPC(method, status string, seconds float64) {
	if m == nil {
		return
	}
	m.rpcRequests.WithLabelValues(method, status).Inc()
	m.rpcDuration.WithLabelValues(method).Observe(seconds)
}

func (m *Metrics) ObserveNotification(method string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(method).Inc()
}

func (m *Metrics) ObserveReconnect(outcome string) {
	if m == nil {
		return
	}
	m.reconnectAttempts.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveOrphanTurnCompletion() {
	if m == nil {
		return
	}
	m.orphanTurnCompletions.Inc()
}

func (m *Metrics) ObserveDiscoveryConfirmed(source string) {
	if m == nil {
		return
	}
	m.discoveryConfirmed.WithLabelValues(source).Inc()
}
