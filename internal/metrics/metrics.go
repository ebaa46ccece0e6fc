// Package metrics exposes strategy engine and trigger counters to
// Prometheus.
//
// Collector satisfies automation.Metrics and trigger.Metrics. Each Collector
// owns its registry so tests and multiple instances never collide on the
// default registerer.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/novacloud-core/internal/automation"
)

const namespace = "novacloud"

// Collector records engine and trigger metrics.
type Collector struct {
	registry *prometheus.Registry

	firings        *prometheus.CounterVec
	firingsSkipped *prometheus.CounterVec
	firingDuration *prometheus.HistogramVec
	actions        *prometheus.CounterVec
	triggerEvents  *prometheus.CounterVec
	firingsDropped *prometheus.CounterVec
}

// New creates a collector with its own registry, including Go runtime and
// process collectors.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		firings: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "firings_total",
			Help:      "Strategy firings whose conditions held, by final status",
		}, []string{"status"}),
		firingsSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "firings_skipped_total",
			Help:      "Strategy evaluations that produced no execution record, by reason",
		}, []string{"reason"}),
		firingDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "firing_duration_seconds",
			Help:      "Time from record creation to finalization",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"status"}),
		actions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "actions_total",
			Help:      "Executed actions by kind and outcome",
		}, []string{"kind", "status"}),
		triggerEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trigger",
			Name:      "events_total",
			Help:      "Trigger events received, by source",
		}, []string{"kind"}),
		firingsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trigger",
			Name:      "firings_dropped_total",
			Help:      "Firings that returned an error and were dropped, by source",
		}, []string{"kind"}),
	}

	c.registry.MustRegister(
		c.firings,
		c.firingsSkipped,
		c.firingDuration,
		c.actions,
		c.triggerEvents,
		c.firingsDropped,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Registry returns the underlying Prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// ─── automation.Metrics ─────────────────────────────────────────────────

// FiringSkipped counts an evaluation that produced no record.
func (c *Collector) FiringSkipped(reason string) {
	c.firingsSkipped.WithLabelValues(reason).Inc()
}

// FiringFinished counts a finalized firing and observes its duration.
func (c *Collector) FiringFinished(status automation.ExecutionStatus, duration time.Duration) {
	c.firings.WithLabelValues(string(status)).Inc()
	c.firingDuration.WithLabelValues(string(status)).Observe(duration.Seconds())
}

// ActionFinished counts one action outcome.
func (c *Collector) ActionFinished(kind automation.ActionKind, status automation.ActionStatus) {
	c.actions.WithLabelValues(string(kind), string(status)).Inc()
}

// ─── trigger.Metrics ────────────────────────────────────────────────────

// TriggerReceived counts an inbound trigger event.
func (c *Collector) TriggerReceived(kind string) {
	c.triggerEvents.WithLabelValues(kind).Inc()
}

// FiringDropped counts a firing whose error was logged and dropped.
func (c *Collector) FiringDropped(kind string) {
	c.firingsDropped.WithLabelValues(kind).Inc()
}
