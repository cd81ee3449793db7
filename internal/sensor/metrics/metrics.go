// Package metrics exposes per-stream frame counters to Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sensorframe"

// Metrics owns a private registry so several servers can coexist in tests.
type Metrics struct {
	registry *prometheus.Registry

	frames      *prometheus.CounterVec
	overflows   *prometheus.CounterVec
	lostPackets *prometheus.CounterVec
	frameBytes  *prometheus.HistogramVec
}

// New creates and registers the collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		frames: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_total",
			Help:      "Finished frames by outcome (full, partial, dropped).",
		}, []string{"stream", "outcome"}),
		overflows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_overflows_total",
			Help:      "Chunks rejected because they did not fit the frame buffer.",
		}, []string{"stream"}),
		lostPackets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lost_packets_total",
			Help:      "Packets missing from the id sequence.",
		}, []string{"stream"}),
		frameBytes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "frame_bytes",
			Help:      "Committed (valid) size of finished frames.",
			Buckets:   prometheus.ExponentialBuckets(1024, 4, 10),
		}, []string{"stream"}),
	}
	m.registry.MustRegister(m.frames, m.overflows, m.lostPackets, m.frameBytes)
	return m
}

// ObserveFrame records one finished frame.
func (m *Metrics) ObserveFrame(stream, outcome string, size int) {
	m.frames.WithLabelValues(stream, outcome).Inc()
	m.frameBytes.WithLabelValues(stream).Observe(float64(size))
}

// AddOverflows records rejected chunks.
func (m *Metrics) AddOverflows(stream string, n uint64) {
	if n > 0 {
		m.overflows.WithLabelValues(stream).Add(float64(n))
	}
}

// AddLostPackets records packet id gaps.
func (m *Metrics) AddLostPackets(stream string, n uint64) {
	if n > 0 {
		m.lostPackets.WithLabelValues(stream).Add(float64(n))
	}
}

// Forget drops every series of a stream that has gone away.
func (m *Metrics) Forget(stream string) {
	labels := prometheus.Labels{"stream": stream}
	m.frames.DeletePartialMatch(labels)
	m.overflows.DeletePartialMatch(labels)
	m.lostPackets.DeletePartialMatch(labels)
	m.frameBytes.DeletePartialMatch(labels)
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
