package limits

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the plan-limit core.
type Metrics struct {
	CacheHits          prometheus.Counter
	CacheMisses        prometheus.Counter
	FetchFailures      *prometheus.CounterVec
	EmergencyFallbacks prometheus.Counter
}

// NewMetrics registers the limit-manager instruments with the given
// registerer. Pass prometheus.DefaultRegisterer in production.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		CacheHits: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "planguard_limits_cache_hits_total",
			Help: "Number of limits requests served from the snapshot cache.",
		}),
		CacheMisses: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "planguard_limits_cache_misses_total",
			Help: "Number of limits requests that required an authority fetch.",
		}),
		FetchFailures: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "planguard_limits_fetch_failures_total",
			Help: "Number of failed authority fetches by failure reason.",
		}, []string{"reason"}),
		EmergencyFallbacks: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "planguard_limits_emergency_fallbacks_total",
			Help: "Number of limits requests answered with the emergency snapshot.",
		}),
	}
}
