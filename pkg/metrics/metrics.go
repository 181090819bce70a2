// Package metrics exposes the gateway's Prometheus metrics. A nil *Metrics is
// valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Outcome labels for utterances and provider calls.
const (
	OutcomeDone   = "done"
	OutcomeFailed = "failed"
	StatusOK      = "ok"
	StatusError   = "error"
)

// Metrics holds all Prometheus metrics for the gateway.
type Metrics struct {
	registry *prometheus.Registry

	ConnectionsActive prometheus.Gauge
	ConnectionsTotal  *prometheus.CounterVec

	UtterancesTotal *prometheus.CounterVec

	ProviderCallsTotal *prometheus.CounterVec
	ProviderLatency    *prometheus.HistogramVec

	AudioBytesTotal *prometheus.CounterVec

	SegmentsDropped prometheus.Counter
	BridgeDropped   prometheus.Counter
}

// New creates a Metrics instance with its own registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "voicegw"
	}
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		ConnectionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "connections_active",
			Help:      "Number of open WebSocket connections",
		}),
		ConnectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connections_total",
			Help:      "Total WebSocket connections by close status",
		}, []string{"status"}),
		UtterancesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "utterances_total",
			Help:      "Finalized utterances processed, by route and outcome",
		}, []string{"route", "outcome"}),
		ProviderCallsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_calls_total",
			Help:      "Provider calls by capability and status",
		}, []string{"capability", "status"}),
		ProviderLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_latency_seconds",
			Help:      "Provider call latency in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
		}, []string{"capability"}),
		AudioBytesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_total",
			Help:      "Audio bytes by direction (in, out, discarded)",
		}, []string{"direction"}),
		SegmentsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "segments_dropped_total",
			Help:      "Reply segments skipped because synthesis failed",
		}),
		BridgeDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bridge_dropped_total",
			Help:      "Finalized transcripts dropped after the connection closed",
		}),
	}

	registry.MustRegister(
		m.ConnectionsActive,
		m.ConnectionsTotal,
		m.UtterancesTotal,
		m.ProviderCallsTotal,
		m.ProviderLatency,
		m.AudioBytesTotal,
		m.SegmentsDropped,
		m.BridgeDropped,
	)
	return m
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ConnectionOpened records a new connection.
func (m *Metrics) ConnectionOpened() {
	if m == nil {
		return
	}
	m.ConnectionsActive.Inc()
}

// ConnectionClosed records a connection ending with the given status.
func (m *Metrics) ConnectionClosed(status string) {
	if m == nil {
		return
	}
	m.ConnectionsActive.Dec()
	m.ConnectionsTotal.WithLabelValues(status).Inc()
}

// Utterance records one orchestration pass.
func (m *Metrics) Utterance(route, outcome string) {
	if m == nil {
		return
	}
	m.UtterancesTotal.WithLabelValues(route, outcome).Inc()
}

// ProviderCall records a provider call and its latency.
func (m *Metrics) ProviderCall(capability string, err error, d time.Duration) {
	if m == nil {
		return
	}
	status := StatusOK
	if err != nil {
		status = StatusError
	}
	m.ProviderCallsTotal.WithLabelValues(capability, status).Inc()
	m.ProviderLatency.WithLabelValues(capability).Observe(d.Seconds())
}

// AudioBytes records audio volume for a direction.
func (m *Metrics) AudioBytes(direction string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.AudioBytesTotal.WithLabelValues(direction).Add(float64(n))
}

// SegmentDropped records a skipped reply segment.
func (m *Metrics) SegmentDropped() {
	if m == nil {
		return
	}
	m.SegmentsDropped.Inc()
}

// TranscriptDropped records a transcript that arrived after close.
func (m *Metrics) TranscriptDropped() {
	if m == nil {
		return
	}
	m.BridgeDropped.Inc()
}
