package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/tauraamui/edgeview/pkg/edgeview/stats"
)

// Metrics mirrors stats snapshots into Prometheus collectors. Counters
// only ever move forward, a tracker reset is absorbed rather than
// reported as a decrease.
type Metrics struct {
	registry *prometheus.Registry

	FramesProcessed   *prometheus.CounterVec
	FramesDropped     *prometheus.CounterVec
	TransformFailures *prometheus.CounterVec
	FPS               *prometheus.GaugeVec
	ProcessingLatency *prometheus.HistogramVec
	PoolInUse         *prometheus.GaugeVec
	DeviceStreaming   *prometheus.GaugeVec

	mu   sync.Mutex
	last map[string]stats.Snapshot
}

func New() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)
	return &Metrics{
		registry: registry,
		FramesProcessed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edgeview_frames_processed_total",
				Help: "Frames which reached the display sink",
			},
			[]string{"device"},
		),
		FramesDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edgeview_frames_dropped_total",
				Help: "Frames dropped before reaching the display sink",
			},
			[]string{"device", "reason"},
		),
		TransformFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "edgeview_transform_failures_total",
				Help: "Frames the transform failed on",
			},
			[]string{"device"},
		),
		FPS: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "edgeview_fps",
				Help: "Frames per second over the last closed window",
			},
			[]string{"device"},
		),
		ProcessingLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "edgeview_processing_seconds",
				Help:    "Processing time of the last frame of each window",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"device"},
		),
		PoolInUse: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "edgeview_pool_buffers_in_use",
				Help: "Frame buffers currently held",
			},
			[]string{"device"},
		),
		DeviceStreaming: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "edgeview_device_streaming",
				Help: "Whether the capture session is streaming (0=no, 1=yes)",
			},
			[]string{"device"},
		),
		last: map[string]stats.Snapshot{},
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Observe folds one snapshot for device into the collectors.
func (m *Metrics) Observe(device string, s stats.Snapshot) {
	m.mu.Lock()
	prev, seen := m.last[device]
	m.last[device] = s
	m.mu.Unlock()

	if seen && s.Completed < prev.Completed {
		prev = stats.Snapshot{}
	}

	m.FramesProcessed.WithLabelValues(device).Add(float64(s.Completed - prev.Completed))
	for reason, n := range s.Drops {
		if p := prev.Drops[reason]; n >= p {
			m.FramesDropped.WithLabelValues(device, reason).Add(float64(n - p))
		}
	}
	if s.TransformFailures >= prev.TransformFailures {
		m.TransformFailures.WithLabelValues(device).Add(float64(s.TransformFailures - prev.TransformFailures))
	}
	m.FPS.WithLabelValues(device).Set(s.FPS)
	if s.LastProcessing > 0 {
		m.ProcessingLatency.WithLabelValues(device).Observe(s.LastProcessing.Seconds())
	}
}

func (m *Metrics) SetPoolInUse(device string, n int) {
	m.PoolInUse.WithLabelValues(device).Set(float64(n))
}

func (m *Metrics) SetStreaming(device string, streaming bool) {
	v := 0.0
	if streaming {
		v = 1
	}
	m.DeviceStreaming.WithLabelValues(device).Set(v)
}
