// Package metrics provides Prometheus instrumentation for the connection
// pool registry.
//
// All collectors are package-level and registered once with the default
// registerer; the backend label distinguishes the two pool engines. Fresh
// Registry instances (tests construct many) share these collectors, which is
// why counts are labeled rather than per-instance.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PoolsCreated counts pool engines constructed, by backend.
	PoolsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "snappydata",
		Subsystem: "connpool",
		Name:      "pools_created_total",
		Help:      "Total number of pool engines created",
	}, []string{"backend"})

	// PoolsDestroyed counts pool engines torn down, by backend.
	PoolsDestroyed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "snappydata",
		Subsystem: "connpool",
		Name:      "pools_destroyed_total",
		Help:      "Total number of pool engines destroyed",
	}, []string{"backend"})

	// LivePools tracks currently live pool engines, by backend.
	LivePools = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "snappydata",
		Subsystem: "connpool",
		Name:      "live_pools",
		Help:      "Number of currently live pool engines",
	}, []string{"backend"})

	// LiveConsumers tracks consumer identifiers currently bound to a pool.
	LiveConsumers = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "snappydata",
		Subsystem: "connpool",
		Name:      "live_consumers",
		Help:      "Number of consumer identifiers currently bound to a pool",
	})

	// EngineBuildSeconds observes pool engine construction latency.
	EngineBuildSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "snappydata",
		Subsystem: "connpool",
		Name:      "engine_build_seconds",
		Help:      "Pool engine construction latency in seconds",
		Buckets:   prometheus.DefBuckets,
	}, []string{"backend"})
)

// RecordPoolCreated records a successful engine construction.
func RecordPoolCreated(backend string, elapsed time.Duration) {
	PoolsCreated.WithLabelValues(backend).Inc()
	LivePools.WithLabelValues(backend).Inc()
	EngineBuildSeconds.WithLabelValues(backend).Observe(elapsed.Seconds())
}

// RecordPoolDestroyed records an engine teardown.
func RecordPoolDestroyed(backend string) {
	PoolsDestroyed.WithLabelValues(backend).Inc()
	LivePools.WithLabelValues(backend).Dec()
}

// RecordConsumerBound records a consumer identifier attaching to a pool.
func RecordConsumerBound() {
	LiveConsumers.Inc()
}

// RecordConsumerReleased records a consumer identifier releasing its pool.
func RecordConsumerReleased() {
	LiveConsumers.Dec()
}
