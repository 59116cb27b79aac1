package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/i474232898/air-quality-features/internal/features"
)

var errEmptyName = errors.New("metric name is empty")

// PrometheusSink maps pipeline metrics onto Prometheus collectors:
// Count metrics become counters, Seconds metrics a histogram, anything else a gauge.
type PrometheusSink struct {
	gatherer  prometheus.Gatherer
	events    *prometheus.CounterVec
	durations *prometheus.HistogramVec
	values    *prometheus.GaugeVec
	lastEmit  *prometheus.GaugeVec
}

// NewPrometheusSink registers the collectors on a fresh registry.
func NewPrometheusSink(namespace string) *PrometheusSink {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &PrometheusSink{
		gatherer: reg,
		events: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pipeline_events_total",
				Help:      "Pipeline stage outcomes and other counted events",
			},
			[]string{"metric"},
		),
		durations: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "pipeline_duration_seconds",
				Help:      "Pipeline timings",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12), // 50ms to ~100s
			},
			[]string{"metric"},
		),
		values: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pipeline_value",
				Help:      "Last value of pipeline metrics without a counter or timing unit",
			},
			[]string{"metric", "unit"},
		),
		lastEmit: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "pipeline_last_emit_timestamp_seconds",
				Help:      "Unix time of the last data point per metric",
			},
			[]string{"metric"},
		),
	}
}

// Emit records one data point.
func (s *PrometheusSink) Emit(_ context.Context, m features.Metric) error {
	if m.Name == "" {
		return errEmptyName
	}
	switch m.Unit {
	case features.UnitCount:
		if m.Value < 0 {
			return errors.New("counter metric " + m.Name + " has negative value")
		}
		s.events.WithLabelValues(m.Name).Add(m.Value)
	case features.UnitSeconds:
		s.durations.WithLabelValues(m.Name).Observe(m.Value)
	default:
		s.values.WithLabelValues(m.Name, m.Unit).Set(m.Value)
	}

	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	s.lastEmit.WithLabelValues(m.Name).Set(float64(ts.Unix()))
	return nil
}

// Handler exposes the sink's registry in the Prometheus text format.
func (s *PrometheusSink) Handler() http.Handler {
	return promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})
}
