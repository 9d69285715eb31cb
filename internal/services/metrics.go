package services

import (
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics counts frames, detections and live feed activity. Counters are plain
// atomics so hot paths stay lock-free; Prometheus reads them through gauge funcs.
type Metrics struct {
	totalFrames   atomic.Int64
	totalErrors   atomic.Int64
	totalLatency  atomic.Int64
	lastFrameTime atomic.Int64

	detections       atomic.Int64
	drowsyDetections atomic.Int64

	wsConnections atomic.Int64
	wsMessages    atomic.Int64
	wsErrors      atomic.Int64

	latency  prometheus.Histogram
	registry *prometheus.Registry
}

func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "drowsyguard_inference_latency_seconds",
			Help:    "Classifier round trip latency",
			Buckets: prometheus.DefBuckets,
		}),
	}
	m.register()
	return m
}

func (m *Metrics) register() {
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.latency,
	)

	gauges := []struct {
		name, help string
		fn         func() float64
	}{
		{"drowsyguard_frames_total", "Frames sent to the classifier", func() float64 { return float64(m.totalFrames.Load()) }},
		{"drowsyguard_classifier_errors_total", "Classifier failures", func() float64 { return float64(m.totalErrors.Load()) }},
		{"drowsyguard_detections_total", "Detections recorded in the ledger", func() float64 { return float64(m.detections.Load()) }},
		{"drowsyguard_drowsy_detections_total", "Recorded detections classified as drowsy", func() float64 { return float64(m.drowsyDetections.Load()) }},
		{"drowsyguard_last_frame_timestamp_seconds", "Unix time of the last classified frame", func() float64 { return float64(m.lastFrameTime.Load()) }},
		{"drowsyguard_ws_connections", "Open alert feed connections", func() float64 { return float64(m.wsConnections.Load()) }},
		{"drowsyguard_ws_messages_total", "Alert messages written to websocket clients", func() float64 { return float64(m.wsMessages.Load()) }},
		{"drowsyguard_ws_errors_total", "Websocket write or upgrade failures", func() float64 { return float64(m.wsErrors.Load()) }},
	}
	for _, g := range gauges {
		m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{Name: g.name, Help: g.help}, g.fn))
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) IncrementFrames() {
	m.totalFrames.Add(1)
	m.lastFrameTime.Store(time.Now().Unix())
}

func (m *Metrics) IncrementErrors() {
	m.totalErrors.Add(1)
}

func (m *Metrics) RecordLatency(duration time.Duration) {
	m.totalLatency.Add(duration.Milliseconds())
	m.latency.Observe(duration.Seconds())
}

// ObserveDetection is called by the ledger after each stored detection.
func (m *Metrics) ObserveDetection(drowsy bool) {
	m.detections.Add(1)
	if drowsy {
		m.drowsyDetections.Add(1)
	}
}

func (m *Metrics) GetTotalFrames() int64 {
	return m.totalFrames.Load()
}

func (m *Metrics) GetTotalErrors() int64 {
	return m.totalErrors.Load()
}

func (m *Metrics) GetAvgLatency() float64 {
	frames := m.totalFrames.Load()
	if frames == 0 {
		return 0
	}
	return float64(m.totalLatency.Load()) / float64(frames)
}

func (m *Metrics) GetDetections() (total, drowsy int64) {
	return m.detections.Load(), m.drowsyDetections.Load()
}

func (m *Metrics) IncrementWebSocketConnections() {
	m.wsConnections.Add(1)
}

func (m *Metrics) DecrementWebSocketConnections() {
	m.wsConnections.Add(-1)
}

func (m *Metrics) GetWebSocketConnections() int64 {
	return m.wsConnections.Load()
}

func (m *Metrics) IncrementWebSocketMessages() {
	m.wsMessages.Add(1)
}

func (m *Metrics) IncrementWebSocketErrors() {
	m.wsErrors.Add(1)
}

func (m *Metrics) GetWebSocketMetrics() map[string]int64 {
	return map[string]int64{
		"connections": m.wsConnections.Load(),
		"messages":    m.wsMessages.Load(),
		"errors":      m.wsErrors.Load(),
	}
}
