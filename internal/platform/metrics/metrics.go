// Package metrics exposes Prometheus counters for enrollment activity.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/p-n-ai/pai-learn/internal/enrollment"
)

// Metrics owns a registry and the collectors registered on it.
type Metrics struct {
	Registry *prometheus.Registry

	events       *prometheus.CounterVec
	eventErrors  prometheus.Counter
	reviewScores *prometheus.HistogramVec
}

// New creates a registry with the Go runtime and process collectors plus
// the enrollment counters.
func New() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "learn_enrollment_events_total",
				Help: "Enrollment events by type.",
			},
			[]string{"event_type"},
		),
		eventErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "learn_enrollment_event_errors_total",
				Help: "Enrollment events the event log failed to store.",
			},
		),
		reviewScores: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "learn_review_score_ratio",
				Help:    "Graded test score divided by the lesson approval score.",
				Buckets: []float64{0.25, 0.5, 0.75, 1, 1.25, 1.5, 2},
			},
			[]string{"outcome"},
		),
	}
	m.Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.events,
		m.eventErrors,
		m.reviewScores,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Events wraps next so every event passing through it is counted.
func (m *Metrics) Events(next enrollment.EventLogger) enrollment.EventLogger {
	return &countingLogger{next: next, m: m}
}

type countingLogger struct {
	next enrollment.EventLogger
	m    *Metrics
}

func (l *countingLogger) LogEvent(ctx context.Context, event enrollment.Event) error {
	l.m.events.WithLabelValues(event.EventType).Inc()
	if event.EventType == enrollment.EventTestPassed || event.EventType == enrollment.EventTestFailed {
		l.m.observeReview(event)
	}
	if err := l.next.LogEvent(ctx, event); err != nil {
		l.m.eventErrors.Inc()
		return err
	}
	return nil
}

func (m *Metrics) observeReview(event enrollment.Event) {
	score, ok1 := event.Data["score"].(int)
	approval, ok2 := event.Data["approval_score"].(int)
	if !ok1 || !ok2 || approval <= 0 {
		return
	}
	outcome := "failed"
	if event.EventType == enrollment.EventTestPassed {
		outcome = "passed"
	}
	m.reviewScores.WithLabelValues(outcome).Observe(float64(score) / float64(approval))
}
