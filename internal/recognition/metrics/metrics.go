package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the recognition vertical's Prometheus metrics.
type Metrics struct {
	RequestsSubmitted prometheus.Counter
	Decisions         *prometheus.CounterVec
	BridgeFailures    prometheus.Counter
}

// New creates and registers the recognition metrics.
func New() *Metrics {
	return &Metrics{
		RequestsSubmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "acclaim_recognition_requests_submitted_total",
			Help: "Total recognition requests submitted",
		}),
		Decisions: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "acclaim_recognition_decisions_total",
			Help: "Final decisions by outcome",
		}, []string{"decision"}),
		BridgeFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "acclaim_process_bridge_failures_total",
			Help: "Process engine notifications that failed and were dropped",
		}),
	}
}

func (m *Metrics) IncSubmitted() {
	if m != nil {
		m.RequestsSubmitted.Inc()
	}
}

func (m *Metrics) IncDecision(decision string) {
	if m != nil {
		m.Decisions.WithLabelValues(decision).Inc()
	}
}

func (m *Metrics) IncBridgeFailure() {
	if m != nil {
		m.BridgeFailures.Inc()
	}
}
