package adminsdk

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// requestsTotal counts admin API requests.
	// Labels: method, family, status (HTTP status code or "error")
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cfgadmin",
		Subsystem: "client",
		Name:      "requests_total",
		Help:      "Admin API requests by method, family and status",
	}, []string{"method", "family", "status"})

	// requestLatency measures round-trip time.
	// Labels: method, family
	requestLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "cfgadmin",
		Subsystem: "client",
		Name:      "request_duration_seconds",
		Help:      "Admin API round-trip latency in seconds",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"method", "family"})

	// conflictsTotal counts 412 responses.
	// Labels: family
	conflictsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "cfgadmin",
		Subsystem: "client",
		Name:      "conflicts_total",
		Help:      "Writes rejected with 412 Precondition Failed",
	}, []string{"family"})

	// sharedGets counts GETs answered by an identical in-flight request.
	sharedGets = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "cfgadmin",
		Subsystem: "client",
		Name:      "shared_gets_total",
		Help:      "GET requests de-duplicated against an in-flight request",
	})
)
