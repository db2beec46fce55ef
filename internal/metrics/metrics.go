package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// SaleMetrics counts checkout outcomes. A nil *SaleMetrics is valid and records nothing.
type SaleMetrics struct {
	Outcomes        *prometheus.CounterVec
	DurationMS      prometheus.Histogram
	Compensations   *prometheus.CounterVec
	PublishFailures prometheus.Counter
	LowStockAlerts  prometheus.Counter
}

// NewSaleMetrics builds the collectors and registers them on reg.
func NewSaleMetrics(reg prometheus.Registerer) *SaleMetrics {
	m := &SaleMetrics{
		Outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "libreria",
			Subsystem: "sales",
			Name:      "outcomes_total",
			Help:      "Checkout attempts by outcome and the workflow state reached.",
		}, []string{"outcome", "state"}),
		DurationMS: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "libreria",
			Subsystem: "sales",
			Name:      "duration_ms",
			Help:      "Checkout latency in milliseconds.",
			Buckets:   []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		}),
		Compensations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "libreria",
			Subsystem: "sales",
			Name:      "compensations_total",
			Help:      "Compensation runs by result.",
		}, []string{"result"}),
		PublishFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "libreria",
			Subsystem: "sales",
			Name:      "event_publish_failures_total",
			Help:      "SaleCompleted events that could not be published.",
		}),
		LowStockAlerts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "libreria",
			Subsystem: "inventory",
			Name:      "low_stock_alerts_total",
			Help:      "Low stock alerts raised after sales.",
		}),
	}
	reg.MustRegister(m.Outcomes, m.DurationMS, m.Compensations, m.PublishFailures, m.LowStockAlerts)
	return m
}

func (m *SaleMetrics) Observe(outcome, state string, started time.Time) {
	if m == nil {
		return
	}
	m.Outcomes.WithLabelValues(outcome, state).Inc()
	m.DurationMS.Observe(float64(time.Since(started).Milliseconds()))
}

func (m *SaleMetrics) Compensated(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	m.Compensations.WithLabelValues(result).Inc()
}

func (m *SaleMetrics) PublishFailed() {
	if m == nil {
		return
	}
	m.PublishFailures.Inc()
}

func (m *SaleMetrics) LowStock() {
	if m == nil {
		return
	}
	m.LowStockAlerts.Inc()
}
