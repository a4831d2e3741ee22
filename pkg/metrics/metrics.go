// Package metrics exposes prometheus instrumentation for the control plane.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the collectors the control plane updates. A single
// instance is created in main and handed to the components that report.
type Metrics struct {
	registry *prometheus.Registry

	// OperationsTotal counts lifecycle operations by op and result.
	OperationsTotal *prometheus.CounterVec

	// ServersRunning tracks how many servers currently have a live interface.
	ServersRunning prometheus.Gauge

	// PeersActive tracks handshake-fresh peers per server.
	PeersActive *prometheus.GaugeVec

	// DriftEvents counts out-of-band modifications detected on rendered
	// config files.
	DriftEvents prometheus.Counter
}

// New creates and registers the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		OperationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "awgman",
			Name:      "lifecycle_operations_total",
			Help:      "Lifecycle operations by operation and result.",
		}, []string{"op", "result"}),
		ServersRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "awgman",
			Name:      "servers_running",
			Help:      "Servers with a live tunnel interface.",
		}),
		PeersActive: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "awgman",
			Name:      "peers_active",
			Help:      "Peers with a handshake inside the freshness threshold.",
		}, []string{"server"}),
		DriftEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "awgman",
			Name:      "config_drift_events_total",
			Help:      "Out-of-band edits detected on rendered config files.",
		}),
	}
	m.registry.MustRegister(m.OperationsTotal, m.ServersRunning, m.PeersActive, m.DriftEvents)
	return m
}

// Observe records one lifecycle operation outcome.
func (m *Metrics) Observe(op string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.OperationsTotal.WithLabelValues(op, result).Inc()
}

// Handler serves the registry in the prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
