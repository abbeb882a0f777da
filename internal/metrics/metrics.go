// Package metrics provides Prometheus metrics for detection, rendering and
// the live polling loop.
//
// Metrics are registered on a caller-supplied registry so several servers
// (and tests) can live in one process.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels.
const (
	StatusOK        = "ok"
	StatusError     = "error"
	StatusCancelled = "cancelled"
)

// Recorder records server metrics. A nil *Recorder is valid and records
// nothing.
type Recorder struct {
	registry *prometheus.Registry

	detectionsTotal   *prometheus.CounterVec
	detectionDuration prometheus.Histogram
	partsDetected     *prometheus.CounterVec
	candidatesDropped prometheus.Counter
	rendersTotal      *prometheus.CounterVec
	renderDuration    prometheus.Histogram
	liveFramesTotal   *prometheus.CounterVec
	liveSessions      prometheus.Gauge
	historySize       prometheus.Gauge
	feedClients       prometheus.Gauge
}

// NewRecorder creates a Recorder with its collectors registered on a fresh
// registry.
func NewRecorder() *Recorder {
	return NewRecorderWith(prometheus.NewRegistry())
}

// NewRecorderWith creates a Recorder registering on reg.
func NewRecorderWith(reg *prometheus.Registry) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		registry: reg,
		detectionsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carvision_detections_total",
				Help: "Total number of synthesized detection results",
			},
			[]string{"source", "status"},
		),
		detectionDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "carvision_detection_duration_seconds",
				Help:    "Simulated processing time of detection results",
				Buckets: []float64{0.25, 0.5, 0.75, 1, 1.25, 1.5, 2},
			},
		),
		partsDetected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carvision_parts_detected_total",
				Help: "Total number of parts kept in detection results",
			},
			[]string{"part"},
		),
		candidatesDropped: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "carvision_candidates_dropped_total",
				Help: "Candidates discarded by the confidence threshold",
			},
		),
		rendersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carvision_renders_total",
				Help: "Total number of overlay renders",
			},
			[]string{"status"},
		),
		renderDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "carvision_render_duration_seconds",
				Help:    "Time taken to draw an overlay",
				Buckets: prometheus.DefBuckets,
			},
		),
		liveFramesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "carvision_live_frames_total",
				Help: "Live polling ticks by outcome",
			},
			[]string{"outcome"},
		),
		liveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "carvision_live_sessions_active",
				Help: "Number of running live polling sessions",
			},
		),
		historySize: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "carvision_history_results",
				Help: "Number of results currently retained in history",
			},
		),
		feedClients: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "carvision_feed_clients",
				Help: "Number of connected live feed websocket clients",
			},
		),
	}
}

// Registry returns the registry the collectors are registered on.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// RecordDetection records one synthesis attempt.
func (r *Recorder) RecordDetection(source, status string, processing time.Duration, parts []string, dropped int) {
	if r == nil {
		return
	}
	r.detectionsTotal.WithLabelValues(source, status).Inc()
	if status != StatusOK {
		return
	}
	r.detectionDuration.Observe(processing.Seconds())
	for _, p := range parts {
		r.partsDetected.WithLabelValues(p).Inc()
	}
	if dropped > 0 {
		r.candidatesDropped.Add(float64(dropped))
	}
}

// RecordRender records one overlay render.
func (r *Recorder) RecordRender(status string, duration time.Duration) {
	if r == nil {
		return
	}
	r.rendersTotal.WithLabelValues(status).Inc()
	r.renderDuration.Observe(duration.Seconds())
}

// RecordLiveFrame records the outcome of one live polling tick:
// "delivered", "stale" or "error".
func (r *Recorder) RecordLiveFrame(outcome string) {
	if r == nil {
		return
	}
	r.liveFramesTotal.WithLabelValues(outcome).Inc()
}

// LiveSessionStarted increments the active live session gauge.
func (r *Recorder) LiveSessionStarted() {
	if r == nil {
		return
	}
	r.liveSessions.Inc()
}

// LiveSessionStopped decrements the active live session gauge.
func (r *Recorder) LiveSessionStopped() {
	if r == nil {
		return
	}
	r.liveSessions.Dec()
}

// SetHistorySize records how many results history retains.
func (r *Recorder) SetHistorySize(n int) {
	if r == nil {
		return
	}
	r.historySize.Set(float64(n))
}

// SetFeedClients records how many websocket clients are connected.
func (r *Recorder) SetFeedClients(n int) {
	if r == nil {
		return
	}
	r.feedClients.Set(float64(n))
}
