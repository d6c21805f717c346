// Package metrics provides note store metrics for observability
package metrics

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"noteease/internal/notes"
)

// NoteMetrics contains Prometheus metrics for note store commands and live
// sessions. It implements notes.Recorder.
type NoteMetrics struct {
	registry *prometheus.Registry

	operationsTotal      *prometheus.CounterVec
	operationErrorsTotal *prometheus.CounterVec
	operationDuration    *prometheus.HistogramVec

	liveSessions prometheus.Gauge
}

var _ notes.Recorder = (*NoteMetrics)(nil)

// NewNoteMetrics creates and registers new note metrics
func NewNoteMetrics(registry *prometheus.Registry) (*NoteMetrics, error) {
	m := &NoteMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *NoteMetrics) initMetrics() {
	m.operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "noteease_operations_total",
			Help: "Total number of note store commands",
		},
		[]string{"operation", "status"}, // status: success, error
	)

	m.operationErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "noteease_operation_errors_total",
			Help: "Total number of failed note store commands",
		},
		[]string{"operation", "error_type"}, // error_type: storage, closed, other
	)

	m.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "noteease_operation_duration_seconds",
			Help: "Time taken by note store commands",
			// 0.5ms .. ~1s; local SQLite writes sit at the low end.
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
		},
		[]string{"operation"},
	)

	m.liveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "noteease_live_sessions",
			Help: "Number of open live note feeds",
		},
	)
}

// Describe implements the Collector interface
func (m *NoteMetrics) Describe(ch chan<- *prometheus.Desc) {
	m.operationsTotal.Describe(ch)
	m.operationErrorsTotal.Describe(ch)
	m.operationDuration.Describe(ch)
	m.liveSessions.Describe(ch)
}

// Collect implements the Collector interface
func (m *NoteMetrics) Collect(ch chan<- prometheus.Metric) {
	m.operationsTotal.Collect(ch)
	m.operationErrorsTotal.Collect(ch)
	m.operationDuration.Collect(ch)
	m.liveSessions.Collect(ch)
}

// RecordOperation records one finished store command.
func (m *NoteMetrics) RecordOperation(op string, d time.Duration, err error) {
	m.operationDuration.WithLabelValues(op).Observe(d.Seconds())
	if err == nil {
		m.operationsTotal.WithLabelValues(op, "success").Inc()
		return
	}
	m.operationsTotal.WithLabelValues(op, "error").Inc()
	m.operationErrorsTotal.WithLabelValues(op, errorType(err)).Inc()
}

// SessionOpened counts a new live feed.
func (m *NoteMetrics) SessionOpened() { m.liveSessions.Inc() }

// SessionClosed counts a finished live feed.
func (m *NoteMetrics) SessionClosed() { m.liveSessions.Dec() }

// Registry returns the registry the metrics were registered on.
func (m *NoteMetrics) Registry() *prometheus.Registry { return m.registry }

func errorType(err error) string {
	switch {
	case errors.Is(err, notes.ErrStorage):
		return "storage"
	case errors.Is(err, notes.ErrStoreClosed):
		return "closed"
	default:
		return "other"
	}
}
