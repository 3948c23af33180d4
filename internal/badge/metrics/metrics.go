package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the badge vertical's Prometheus metrics.
type Metrics struct {
	Issued            *prometheus.CounterVec
	Revoked           prometheus.Counter
	ConsistencyAborts prometheus.Counter
}

// New creates and registers the badge metrics.
func New() *Metrics {
	return &Metrics{
		Issued: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "acclaim_badges_issued_total",
			Help: "Badges issued by certification level",
		}, []string{"level"}),
		Revoked: promauto.NewCounter(prometheus.CounterOpts{
			Name: "acclaim_badges_revoked_total",
			Help: "Badges explicitly revoked",
		}),
		ConsistencyAborts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "acclaim_badge_attribution_consistency_aborts_total",
			Help: "Attributions aborted because deactivation verification failed",
		}),
	}
}

func (m *Metrics) IncIssued(level string) {
	if m != nil {
		m.Issued.WithLabelValues(level).Inc()
	}
}

func (m *Metrics) IncRevoked() {
	if m != nil {
		m.Revoked.Inc()
	}
}

func (m *Metrics) IncConsistencyAbort() {
	if m != nil {
		m.ConsistencyAborts.Inc()
	}
}
