package handlers

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the API layer.
type Metrics struct {
	// Decisions counts enforcement outcomes by check and outcome
	// (allow/deny).
	Decisions *prometheus.CounterVec
}

// NewMetrics registers the API instruments with the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Decisions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "planguard_decisions_total",
			Help: "Number of enforcement decisions by check and outcome.",
		}, []string{"check", "outcome"}),
	}
}
