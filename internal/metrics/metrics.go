// Package metrics exposes movewatch counters in the Prometheus format.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/movewatch/movewatch/internal/watcher"
)

const namespace = "movewatch"

// Metrics holds the collectors on a private registry. It implements
// watcher.Metrics.
type Metrics struct {
	registry *prometheus.Registry

	notifications *prometheus.CounterVec
	dropped       *prometheus.CounterVec
	pending       prometheus.Gauge
	watches       prometheus.Gauge
	streamClients prometheus.Gauge
	journalErrors prometheus.Counter
}

var _ watcher.Metrics = (*Metrics)(nil)

// New creates the collectors and registers them, together with the Go and
// process collectors, on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	m := &Metrics{
		registry: reg,
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notifications delivered to handlers, by kind.",
		}, []string{"kind"}),
		dropped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_records_total",
			Help:      "Records or pending moves dropped without a notification, by reason.",
		}, []string{"reason"}),
		pending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_moves",
			Help:      "Moved-from records waiting for their moved-to half.",
		}),
		watches: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "watches",
			Help:      "Directories currently watched.",
		}),
		streamClients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "clients",
			Help:      "Connected notification stream clients.",
		}),
		journalErrors: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "journal",
			Name:      "write_errors_total",
			Help:      "Notifications that could not be written to the journal.",
		}),
	}

	// Pre-create label values so every kind is exported from the start.
	for _, t := range watcher.EventTypes {
		m.notifications.WithLabelValues(t.String())
	}
	for _, reason := range []string{watcher.DropCapacity, watcher.DropQueueOverflow, watcher.DropStopped} {
		m.dropped.WithLabelValues(reason)
	}

	return m
}

// Notified counts one delivered notification.
func (m *Metrics) Notified(t watcher.EventType) {
	m.notifications.WithLabelValues(t.String()).Inc()
}

// Dropped counts n records dropped for reason.
func (m *Metrics) Dropped(reason string, n int) {
	m.dropped.WithLabelValues(reason).Add(float64(n))
}

// Pending sets the pending-moves gauge.
func (m *Metrics) Pending(n int) {
	m.pending.Set(float64(n))
}

// Watches sets the watched-directories gauge.
func (m *Metrics) Watches(n int) {
	m.watches.Set(float64(n))
}

// SetStreamClients sets the stream-clients gauge.
func (m *Metrics) SetStreamClients(n int) {
	m.streamClients.Set(float64(n))
}

// JournalError counts a failed journal write.
func (m *Metrics) JournalError() {
	m.journalErrors.Inc()
}

// Registry returns the registry backing these metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
