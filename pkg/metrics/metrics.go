// Package metrics wraps prometheus/client_golang counters/gauges/histograms for the
// tracker, executor, and cancellation flows, exposed via a /metrics HTTP handler in the
// demo entrypoint. New wiring of the teacher's direct prometheus/client_golang
// dependency — no single teacher file owns metrics, since the teacher's own services
// never instrument this stack, but it is carried forward per §4.8.5's requirement that
// ambient concerns survive the domain rewrite even where the teacher's own code doesn't
// happen to exercise every dependency it lists.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry bundles every metric this service emits.
type Registry struct {
	RequestsTracked      *prometheus.CounterVec
	StatusTransitions    *prometheus.CounterVec
	BidRounds            *prometheus.CounterVec
	RPCRetries           *prometheus.CounterVec
	CancellationDuration *prometheus.HistogramVec
}

// New registers and returns a fresh Registry against the default Prometheus registerer.
func New() *Registry {
	return &Registry{
		RequestsTracked: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hyperbridge_relayer",
			Name:      "requests_tracked_total",
			Help:      "Number of post-requests the tracker has begun streaming status for.",
		}, []string{"source", "destination"}),

		StatusTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hyperbridge_relayer",
			Name:      "status_transitions_total",
			Help:      "Number of status-stream transitions emitted, by resulting status.",
		}, []string{"status"}),

		BidRounds: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hyperbridge_relayer",
			Name:      "bid_rounds_total",
			Help:      "Number of bid-collection rounds run by the intent executor, by outcome.",
		}, []string{"outcome"}),

		RPCRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "hyperbridge_relayer",
			Name:      "rpc_retries_total",
			Help:      "Number of retried RPC calls, by component and target chain.",
		}, []string{"component", "chain"}),

		CancellationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "hyperbridge_relayer",
			Name:      "cancellation_stage_duration_seconds",
			Help:      "Wall-clock duration of each cancellation-flow stage.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12), // 1s .. 2048s (~34min)
		}, []string{"stage"}),
	}
}

// Handler returns the standard promhttp handler for the registered metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}
