// Package promadapters provides a Prometheus-backed implementation of the
// store's MetricsCollector, for deployments that scrape /metrics instead
// of running an OpenTelemetry pipeline.
package promadapters

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/bookhaven/book-lending-go/lending/postgresengine"
)

const (
	metricOperationDuration = "lending_store_operation_duration"
	metricOperationOutcomes = "lending_store_operations"
	metricLendingConflicts  = "lending_store_conflicts"

	labelOperation = "operation"
	labelStatus    = "status"
)

// MetricsCollector implements postgresengine.MetricsCollector on
// Prometheus instruments. Prometheus needs label names fixed at
// registration time, so the store's metrics are pre-registered here and
// unknown metric names are dropped.
type MetricsCollector struct {
	durations *prometheus.HistogramVec
	outcomes  *prometheus.CounterVec
	conflicts *prometheus.CounterVec
}

// NewMetricsCollector registers the store's metrics on the given
// registerer and returns the collector. Pass prometheus.DefaultRegisterer
// to expose them through promhttp.Handler.
func NewMetricsCollector(registerer prometheus.Registerer) *MetricsCollector {
	collector := &MetricsCollector{
		durations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    metricOperationDuration + "_seconds",
			Help:    "Duration of lending store operations in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{labelOperation, labelStatus}),
		outcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricOperationOutcomes + "_total",
			Help: "Lending store operations by outcome.",
		}, []string{labelOperation, labelStatus}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: metricLendingConflicts + "_total",
			Help: "Lending store operations rejected by a business rule.",
		}, []string{labelOperation}),
	}

	registerer.MustRegister(collector.durations, collector.outcomes, collector.conflicts)

	return collector
}

// RecordDuration records an operation duration.
func (m *MetricsCollector) RecordDuration(metricName string, duration time.Duration, labels map[string]string) {
	if metricName != metricOperationDuration {
		return
	}

	m.durations.
		WithLabelValues(labels[labelOperation], labels[labelStatus]).
		Observe(duration.Seconds())
}

// IncrementCounter increments an outcome or conflict counter.
func (m *MetricsCollector) IncrementCounter(metricName string, labels map[string]string) {
	switch metricName {
	case metricOperationOutcomes:
		m.outcomes.WithLabelValues(labels[labelOperation], labels[labelStatus]).Inc()
	case metricLendingConflicts:
		m.conflicts.WithLabelValues(labels[labelOperation]).Inc()
	}
}

// RecordValue is part of the MetricsCollector interface. The store emits
// no gauge values, so nothing is registered for them.
func (m *MetricsCollector) RecordValue(string, float64, map[string]string) {}

var _ postgresengine.MetricsCollector = (*MetricsCollector)(nil)
