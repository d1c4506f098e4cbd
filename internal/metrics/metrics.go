// internal/metrics/metrics.go
// Package metrics exposes Prometheus counters for the dashboard pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sensor_dashboard"

// Metrics owns a private registry so tests can build as many as they like.
// All methods are safe on a nil receiver.
type Metrics struct {
	registry    *prometheus.Registry
	messages    *prometheus.CounterVec
	points      *prometheus.CounterVec
	evictions   *prometheus.CounterVec
	ledCommands *prometheus.CounterVec
	commits     *prometheus.CounterVec
	clients     prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		messages: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "messages_total",
			Help:      "Sensor frames received, by outcome.",
		}, []string{"result"}),
		points: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_total",
			Help:      "Points appended to a chart series.",
		}, []string{"channel"}),
		evictions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "evictions_total",
			Help:      "Points evicted from a full chart series.",
		}, []string{"channel"}),
		ledCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "led_commands_total",
			Help:      "LED commands emitted, by state.",
		}, []string{"state"}),
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "setting_commits_total",
			Help:      "Settings commits, by control and outcome.",
		}, []string{"control", "result"}),
		clients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_clients",
			Help:      "Connected browser clients.",
		}),
	}
	m.registry.MustRegister(
		m.messages, m.points, m.evictions, m.ledCommands, m.commits, m.clients,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry is exposed for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) MessageReceived(result string) {
	if m == nil {
		return
	}
	m.messages.WithLabelValues(result).Inc()
}

func (m *Metrics) PointAppended(channel string, evicted bool) {
	if m == nil {
		return
	}
	m.points.WithLabelValues(channel).Inc()
	if evicted {
		m.evictions.WithLabelValues(channel).Inc()
	}
}

func (m *Metrics) LEDCommand(state string) {
	if m == nil {
		return
	}
	m.ledCommands.WithLabelValues(state).Inc()
}

func (m *Metrics) Commit(control, result string) {
	if m == nil {
		return
	}
	m.commits.WithLabelValues(control, result).Inc()
}

func (m *Metrics) ClientConnected() {
	if m == nil {
		return
	}
	m.clients.Inc()
}

func (m *Metrics) ClientDisconnected() {
	if m == nil {
		return
	}
	m.clients.Dec()
}
