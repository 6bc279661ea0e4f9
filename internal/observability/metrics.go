// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"evm-tx-monitor/internal/domain"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "evm_tx_monitor"

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	registry *prometheus.Registry

	// Ingestion metrics
	NotificationsReceived prometheus.Counter
	TransactionsDecoded   prometheus.Counter
	DecodeErrors          *prometheus.CounterVec
	LookupsInFlight       prometheus.Gauge
	FetchErrors           *prometheus.CounterVec

	// Connection metrics
	ConnectionAttempts prometheus.Counter
	SessionsDropped    *prometheus.CounterVec
	ConnectionPhase    *prometheus.GaugeVec

	// Latency metrics
	RPCCallLatency *prometheus.HistogramVec

	// Store metrics
	StoreSize      prometheus.Gauge
	StoreEvictions prometheus.Counter

	// Archive metrics
	ArchiveRecordsWritten prometheus.Counter
	ArchiveRecordsDropped prometheus.Counter
	ArchiveFlushErrors    prometheus.Counter
	ArchiveFlushDuration  prometheus.Histogram
}

// NewMetrics creates a Metrics instance registered on its own registry.
// A fresh registry per instance lets tests build metrics repeatedly.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = DefaultNamespace
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		// Ingestion metrics
		NotificationsReceived: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "notifications_received_total",
			Help:      "Total number of subscription notifications received",
		}),
		TransactionsDecoded: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "transactions_decoded_total",
			Help:      "Total number of transactions decoded and forwarded",
		}),
		DecodeErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "decode_errors_total",
			Help:      "Total number of transactions dropped for malformed fields",
		}, []string{"field"}),
		LookupsInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "lookups_in_flight",
			Help:      "Number of notifications waiting for a lookup result",
		}),
		FetchErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "fetch_errors_total",
			Help:      "Total number of failed lookups by RPC method",
		}, []string{"method"}),

		// Connection metrics
		ConnectionAttempts: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "attempts_total",
			Help:      "Total number of connect-and-subscribe efforts",
		}),
		SessionsDropped: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "sessions_dropped_total",
			Help:      "Total number of failed efforts or lost sessions by error kind",
		}, []string{"kind"}),
		ConnectionPhase: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "connection",
			Name:      "phase",
			Help:      "1 for the current connection phase, 0 otherwise",
		}, []string{"phase"}),

		// Latency metrics
		RPCCallLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "rpc",
			Name:      "call_latency_seconds",
			Help:      "JSON-RPC request latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),

		// Store metrics
		StoreSize: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "size",
			Help:      "Current number of transactions retained for display",
		}),
		StoreEvictions: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "evictions_total",
			Help:      "Total number of transactions evicted by capacity",
		}),

		// Archive metrics
		ArchiveRecordsWritten: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "records_written_total",
			Help:      "Total number of transactions newly stored in the archive",
		}),
		ArchiveRecordsDropped: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "records_dropped_total",
			Help:      "Total number of transactions not archived (queue full or failed flush)",
		}),
		ArchiveFlushErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "flush_errors_total",
			Help:      "Total number of failed archive flushes",
		}),
		ArchiveFlushDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "flush_duration_seconds",
			Help:      "Archive batch flush duration in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
	}
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// SetPhase marks the given phase as current.
func (m *Metrics) SetPhase(phase domain.ConnectionPhase) {
	for _, p := range domain.ConnectionPhases {
		v := 0.0
		if p == phase {
			v = 1
		}
		m.ConnectionPhase.WithLabelValues(string(p)).Set(v)
	}
}

// RecordDecodeError records a dropped transaction by offending field.
func (m *Metrics) RecordDecodeError(field string) {
	m.DecodeErrors.WithLabelValues(field).Inc()
}

// RecordRPCLatency records RPC call latency.
func (m *Metrics) RecordRPCLatency(method string, seconds float64) {
	m.RPCCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordSessionDropped records a failed effort or lost session.
func (m *Metrics) RecordSessionDropped(kind string) {
	m.SessionsDropped.WithLabelValues(kind).Inc()
}
