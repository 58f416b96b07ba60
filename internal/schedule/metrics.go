package schedule

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	resultOK      = "ok"
	resultError   = "error"
	resultSkipped = "skipped"
)

// Metrics holds the scheduler's Prometheus collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	pending      prometheus.Gauge
	fired        *prometheus.CounterVec
	cancelled    prometheus.Counter
	saveFailures prometheus.Counter
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		pending: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "tempbot",
			Subsystem: "schedule",
			Name:      "pending",
			Help:      "Scheduled actions waiting for their due time.",
		}),
		fired: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tempbot",
			Subsystem: "schedule",
			Name:      "fired_total",
			Help:      "Fire handler outcomes by result (ok, error, skipped).",
		}, []string{"result"}),
		cancelled: f.NewCounter(prometheus.CounterOpts{
			Namespace: "tempbot",
			Subsystem: "schedule",
			Name:      "cancelled_total",
			Help:      "Scheduled actions removed by an explicit cancel.",
		}),
		saveFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: "tempbot",
			Subsystem: "schedule",
			Name:      "save_failures_total",
			Help:      "Failed writes of the durable schedule record.",
		}),
	}
}

func (m *Metrics) setPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}

func (m *Metrics) fire(result string) {
	if m == nil {
		return
	}
	m.fired.WithLabelValues(result).Inc()
}

func (m *Metrics) cancel() {
	if m == nil {
		return
	}
	m.cancelled.Inc()
}

func (m *Metrics) saveFailed() {
	if m == nil {
		return
	}
	m.saveFailures.Inc()
}
