// Package metrics exports relay activity as Prometheus metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lorrc/clinical-event-relay/internal/core/domain"
	"github.com/lorrc/clinical-event-relay/internal/core/ports"
)

const namespace = "relay"

// RelayMetrics implements ports.RelayMetrics on a dedicated registry.
type RelayMetrics struct {
	registry *prometheus.Registry

	connections     *prometheus.GaugeVec
	connectionsOpen *prometheus.CounterVec
	activeRooms     *prometheus.GaugeVec
	published       *prometheus.CounterVec
	publishFailures *prometheus.CounterVec
	popFailures     *prometheus.CounterVec
	delivered       *prometheus.CounterVec
	dropped         *prometheus.CounterVec
	sweepDuration   *prometheus.HistogramVec
}

var _ ports.RelayMetrics = (*RelayMetrics)(nil)

// New creates the relay collectors and registers them, together with the
// Go runtime and process collectors, on a fresh registry.
func New() *RelayMetrics {
	labels := []string{"namespace"}

	m := &RelayMetrics{
		registry: prometheus.NewRegistry(),
		connections: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections",
			Help:      "Open websocket connections.",
		}, labels),
		connectionsOpen: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_opened_total",
			Help:      "Websocket connections accepted.",
		}, labels),
		activeRooms: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_rooms",
			Help:      "Rooms with at least one member at the last sweep.",
		}, labels),
		published: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Events pushed onto room queues.",
		}, labels),
		publishFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_failures_total",
			Help:      "Pushes rejected by the queue store.",
		}, labels),
		popFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pop_failures_total",
			Help:      "Queue pops that failed during a sweep.",
		}, labels),
		delivered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Payloads queued on subscriber sockets.",
		}, labels),
		dropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dropped_total",
			Help:      "Payloads dropped because a socket send buffer was full.",
		}, labels),
		sweepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Time taken by one delivery sweep.",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		}, labels),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.connections,
		m.connectionsOpen,
		m.activeRooms,
		m.published,
		m.publishFailures,
		m.popFailures,
		m.delivered,
		m.dropped,
		m.sweepDuration,
	)

	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *RelayMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *RelayMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *RelayMetrics) ConnectionOpened(ns domain.Namespace) {
	m.connections.WithLabelValues(string(ns)).Inc()
	m.connectionsOpen.WithLabelValues(string(ns)).Inc()
}

func (m *RelayMetrics) ConnectionClosed(ns domain.Namespace) {
	m.connections.WithLabelValues(string(ns)).Dec()
}

func (m *RelayMetrics) ActiveRooms(ns domain.Namespace, count int) {
	m.activeRooms.WithLabelValues(string(ns)).Set(float64(count))
}

func (m *RelayMetrics) EventPublished(ns domain.Namespace) {
	m.published.WithLabelValues(string(ns)).Inc()
}

func (m *RelayMetrics) PublishFailed(ns domain.Namespace) {
	m.publishFailures.WithLabelValues(string(ns)).Inc()
}

func (m *RelayMetrics) PopFailed(ns domain.Namespace) {
	m.popFailures.WithLabelValues(string(ns)).Inc()
}

// Delivered counts one delivery per socket that accepted the payload.
func (m *RelayMetrics) Delivered(ns domain.Namespace, sockets int) {
	if sockets <= 0 {
		return
	}
	m.delivered.WithLabelValues(string(ns)).Add(float64(sockets))
}

func (m *RelayMetrics) Dropped(ns domain.Namespace) {
	m.dropped.WithLabelValues(string(ns)).Inc()
}

func (m *RelayMetrics) SweepCompleted(ns domain.Namespace, duration time.Duration) {
	m.sweepDuration.WithLabelValues(string(ns)).Observe(duration.Seconds())
}
