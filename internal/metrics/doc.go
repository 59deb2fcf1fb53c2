// Package metrics provides Prometheus metrics for observability.
//
// This package exposes:
//   - Decoder metrics: reads, bytes read, decoded items and their size,
//     buffer compactions and errors by kind, labelled by framing
//   - Connection metrics: active connections, requests by status, pushes and
//     disconnect reasons
//
// Metrics are exposed via a dedicated HTTP server on /metrics in Prometheus
// format, next to /healthz liveness and /readyz readiness endpoints.
//
// Usage:
//
//	reg := prometheus.NewRegistry()
//	decoderMetrics := metrics.NewDecoderMetricsWithRegistry(reg)
//	stream := decoder.New(conn, strategy, 64*1024).WithMetrics(decoderMetrics, "kafka")
//
//	metricsServer := metrics.NewServerWithRegistry(":9090", reg)
//	metricsServer.Start()
package metrics
