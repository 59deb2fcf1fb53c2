package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	// Namespace prefixes every wireframe metric.
	Namespace = "wireframe"

	// StatusSuccess labels requests whose handler succeeded.
	StatusSuccess = "success"
	// StatusFailure labels requests whose handler failed.
	StatusFailure = "failure"
)

// ConnectionMetrics holds metrics related to TCP connections and request rates.
type ConnectionMetrics struct {
	// ActiveConnections tracks the current number of active TCP connections.
	ActiveConnections prometheus.Gauge

	// RequestsTotal tracks decoded requests by name and status.
	// Labels: request (framing-specific request name), status (success, failure)
	RequestsTotal *prometheus.CounterVec

	// PushesTotal tracks unsolicited messages written by connection pushers.
	PushesTotal prometheus.Counter

	// DisconnectsTotal tracks why connections ended.
	// Labels: reason (clean, truncated, overflow, decode, handler, timeout, reset, io, shutdown)
	DisconnectsTotal *prometheus.CounterVec
}

// NewConnectionMetrics creates connection metrics registered with the default registry.
func NewConnectionMetrics() *ConnectionMetrics {
	return NewConnectionMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewConnectionMetricsWithRegistry creates connection metrics registered with a custom registry.
// Useful for testing to avoid conflicts with the default registry.
func NewConnectionMetricsWithRegistry(reg prometheus.Registerer) *ConnectionMetrics {
	m := &ConnectionMetrics{
		ActiveConnections: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: Namespace,
				Subsystem: "server",
				Name:      "active_connections",
				Help:      "Current number of active TCP connections.",
			},
		),
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "server",
				Name:      "requests_total",
				Help:      "Total number of requests, broken down by request name and status.",
			},
			[]string{"request", "status"},
		),
		PushesTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "server",
				Name:      "pushes_total",
				Help:      "Total number of unsolicited messages written to connections.",
			},
		),
		DisconnectsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "server",
				Name:      "disconnects_total",
				Help:      "Total number of closed connections, broken down by reason.",
			},
			[]string{"reason"},
		),
	}

	reg.MustRegister(m.ActiveConnections, m.RequestsTotal, m.PushesTotal, m.DisconnectsTotal)
	return m
}

// ConnectionOpened increments the active connections gauge.
func (m *ConnectionMetrics) ConnectionOpened() {
	m.ActiveConnections.Inc()
}

// ConnectionClosed decrements the active connections gauge and records why
// the connection ended.
func (m *ConnectionMetrics) ConnectionClosed(reason string) {
	m.ActiveConnections.Dec()
	m.DisconnectsTotal.WithLabelValues(reason).Inc()
}

// RecordRequest records a handled request.
func (m *ConnectionMetrics) RecordRequest(name string, success bool) {
	status := StatusFailure
	if success {
		status = StatusSuccess
	}
	m.RequestsTotal.WithLabelValues(name, status).Inc()
}

// RecordPush records one unsolicited message.
func (m *ConnectionMetrics) RecordPush() {
	m.PushesTotal.Inc()
}
