package cdmon

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts CDmon API traffic. A nil *Metrics is valid and records nothing.
type Metrics struct {
	requests *prometheus.CounterVec
	retries  *prometheus.CounterVec
	changes  *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg when reg is
// not nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cdmon",
			Name:      "api_requests_total",
			Help:      "CDmon API requests by operation and outcome.",
		}, []string{"operation", "result"}),
		retries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cdmon",
			Name:      "api_retries_total",
			Help:      "CDmon API operations retried after a transient failure.",
		}, []string{"operation"}),
		changes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cdmon",
			Name:      "txt_record_changes_total",
			Help:      "TXT record changes applied, by action.",
		}, []string{"action"}),
	}
	if reg != nil {
		reg.MustRegister(m.requests, m.retries, m.changes)
	}
	return m
}

func (m *Metrics) request(op, result string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(op, result).Inc()
}

func (m *Metrics) retry(op string) {
	if m == nil {
		return
	}
	m.retries.WithLabelValues(op).Inc()
}

func (m *Metrics) change(action string) {
	if m == nil {
		return
	}
	m.changes.WithLabelValues(action).Inc()
}
