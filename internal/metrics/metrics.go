package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the Prometheus counters and gauges for the feed core.
type Metrics struct {
	ConnectAttempts *prometheus.CounterVec // labels: feed, endpoint
	CyclesExhausted *prometheus.CounterVec // labels: feed
	BreakerTrips    *prometheus.CounterVec // labels: feed
	MessagesRouted  *prometheus.CounterVec // labels: feed, transport={push,pull}
	ParseErrors     *prometheus.CounterVec // labels: feed
	ConnectionState *prometheus.GaugeVec   // labels: feed; value is the State enum
	PullActive      *prometheus.GaugeVec   // labels: feed; 1 while the fallback is polling
}

// New creates and registers all feed metrics with the default registry.
func New() *Metrics {
	m := build()
	prometheus.MustRegister(
		m.ConnectAttempts,
		m.CyclesExhausted,
		m.BreakerTrips,
		m.MessagesRouted,
		m.ParseErrors,
		m.ConnectionState,
		m.PullActive,
	)
	return m
}

// NewForTesting creates Metrics without registering them, avoiding
// "already registered" panics across tests.
func NewForTesting() *Metrics {
	return build()
}

func build() *Metrics {
	return &Metrics{
		ConnectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feed",
			Name:      "connect_attempts_total",
			Help:      "Push connection attempts by feed and endpoint.",
		}, []string{"feed", "endpoint"}),
		CyclesExhausted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feed",
			Name:      "cycles_exhausted_total",
			Help:      "Full endpoint cycles that failed without an open connection.",
		}, []string{"feed"}),
		BreakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feed",
			Name:      "breaker_trips_total",
			Help:      "Circuit breaker trips by feed.",
		}, []string{"feed"}),
		MessagesRouted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feed",
			Name:      "messages_routed_total",
			Help:      "Messages dispatched to consumers by feed and transport.",
		}, []string{"feed", "transport"}),
		ParseErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "feed",
			Name:      "parse_errors_total",
			Help:      "Malformed frames dropped by the router.",
		}, []string{"feed"}),
		ConnectionState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "feed",
			Name:      "connection_state",
			Help:      "Current connection state (0=idle 1=connecting 2=open 3=closing 4=closed 5=disabled).",
		}, []string{"feed"}),
		PullActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "feed",
			Name:      "pull_active",
			Help:      "1 while the pull fallback is delivering for a feed.",
		}, []string{"feed"}),
	}
}

// Handler returns the HTTP handler serving the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
