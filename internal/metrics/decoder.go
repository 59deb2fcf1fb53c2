package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// DecoderMetrics holds metrics for buffered stream decoders.
// Every series carries a "framing" label naming the decoding strategy.
type DecoderMetrics struct {
	// ReadsTotal counts reads issued against byte sources.
	ReadsTotal *prometheus.CounterVec

	// BytesReadTotal counts bytes appended to decoder buffers.
	BytesReadTotal *prometheus.CounterVec

	// ItemsTotal counts successfully decoded items.
	ItemsTotal *prometheus.CounterVec

	// ItemBytes observes how many buffered bytes each decoded item retired.
	ItemBytes *prometheus.HistogramVec

	// CompactionsTotal counts moves of the live window to the buffer start.
	CompactionsTotal *prometheus.CounterVec

	// CompactedBytesTotal counts bytes moved by compactions.
	CompactedBytesTotal *prometheus.CounterVec

	// ErrorsTotal counts decoder failures.
	// Labels: framing, kind (overflow, closed, decode, canceled, io)
	ErrorsTotal *prometheus.CounterVec
}

// NewDecoderMetrics creates decoder metrics registered with the default registry.
func NewDecoderMetrics() *DecoderMetrics {
	return NewDecoderMetricsWithRegistry(prometheus.DefaultRegisterer)
}

// NewDecoderMetricsWithRegistry creates decoder metrics registered with reg.
// Useful for testing to avoid conflicts with the default registry.
func NewDecoderMetricsWithRegistry(reg prometheus.Registerer) *DecoderMetrics {
	m := &DecoderMetrics{
		ReadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "decoder",
				Name:      "reads_total",
				Help:      "Total number of reads issued against byte sources.",
			},
			[]string{"framing"},
		),
		BytesReadTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "decoder",
				Name:      "bytes_read_total",
				Help:      "Total number of bytes read into decoder buffers.",
			},
			[]string{"framing"},
		),
		ItemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "decoder",
				Name:      "items_total",
				Help:      "Total number of decoded items.",
			},
			[]string{"framing"},
		),
		ItemBytes: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: Namespace,
				Subsystem: "decoder",
				Name:      "item_bytes",
				Help:      "Bytes retired from the buffer per decoded item.",
				Buckets:   prometheus.ExponentialBuckets(16, 4, 10),
			},
			[]string{"framing"},
		),
		CompactionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "decoder",
				Name:      "compactions_total",
				Help:      "Total number of buffer compactions.",
			},
			[]string{"framing"},
		),
		CompactedBytesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "decoder",
				Name:      "compacted_bytes_total",
				Help:      "Total number of bytes moved by buffer compactions.",
			},
			[]string{"framing"},
		),
		ErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Subsystem: "decoder",
				Name:      "errors_total",
				Help:      "Total number of decoder errors, broken down by kind.",
			},
			[]string{"framing", "kind"},
		),
	}

	reg.MustRegister(
		m.ReadsTotal,
		m.BytesReadTotal,
		m.ItemsTotal,
		m.ItemBytes,
		m.CompactionsTotal,
		m.CompactedBytesTotal,
		m.ErrorsTotal,
	)

	return m
}

// RecordRead records one read that returned n bytes.
func (m *DecoderMetrics) RecordRead(framing string, n int) {
	m.ReadsTotal.WithLabelValues(framing).Inc()
	if n > 0 {
		m.BytesReadTotal.WithLabelValues(framing).Add(float64(n))
	}
}

// RecordItem records one decoded item that retired consumed bytes.
func (m *DecoderMetrics) RecordItem(framing string, consumed int) {
	m.ItemsTotal.WithLabelValues(framing).Inc()
	m.ItemBytes.WithLabelValues(framing).Observe(float64(consumed))
}

// RecordCompaction records one compaction that moved bytes.
func (m *DecoderMetrics) RecordCompaction(framing string, moved int) {
	m.CompactionsTotal.WithLabelValues(framing).Inc()
	m.CompactedBytesTotal.WithLabelValues(framing).Add(float64(moved))
}

// RecordError records one decoder error of the given kind.
func (m *DecoderMetrics) RecordError(framing, kind string) {
	m.ErrorsTotal.WithLabelValues(framing, kind).Inc()
}
