package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "climatemap"

// Metrics holds the Prometheus collectors for the frame pipeline.
type Metrics struct {
	FramesRendered prometheus.Counter
	RenderDuration prometheus.Histogram
	EmptyDays      prometheus.Counter
	Playing        prometheus.Gauge
	CurrentOffset  prometheus.Gauge

	// Delivery.
	StreamClients prometheus.Gauge
	FramesDropped *prometheus.CounterVec // labels: stage={dispatch,stream}
	SinkErrors    *prometheus.CounterVec // labels: sink={mqtt,kafka}

	// Dataset.
	ObservationsLoaded prometheus.Gauge
	RegionsLoaded      prometheus.Gauge
	ImportRowsSkipped  prometheus.Counter
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.FramesRendered,
		m.RenderDuration,
		m.EmptyDays,
		m.Playing,
		m.CurrentOffset,
		m.StreamClients,
		m.FramesDropped,
		m.SinkErrors,
		m.ObservationsLoaded,
		m.RegionsLoaded,
		m.ImportRowsSkipped,
	)
	return m
}

// NewMetricsForTesting creates unregistered Metrics so tests can build as
// many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		FramesRendered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_rendered_total",
			Help:      "Total frames produced by the render pipeline.",
		}),
		RenderDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "render_duration_seconds",
			Help:      "Duration of one resolve and reconcile pass.",
			Buckets:   []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1},
		}),
		EmptyDays: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "empty_days_total",
			Help:      "Frames rendered for a day without observations.",
		}),
		Playing: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "playback_playing",
			Help:      "1 while playback is running, 0 when stopped.",
		}),
		CurrentOffset: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "playback_offset",
			Help:      "Day offset of the last rendered frame.",
		}),
		StreamClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stream_clients",
			Help:      "Connected WebSocket clients.",
		}),
		FramesDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "frames_dropped_total",
			Help:      "Frames discarded because a consumer fell behind.",
		}, []string{"stage"}),
		SinkErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_errors_total",
			Help:      "Frame publish failures by sink.",
		}, []string{"sink"}),
		ObservationsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "observations_loaded",
			Help:      "Observations held in the in-memory index.",
		}),
		RegionsLoaded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "regions_loaded",
			Help:      "Region geometries loaded from GeoJSON.",
		}),
		ImportRowsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "import_rows_skipped_total",
			Help:      "CSV rows rejected during import.",
		}),
	}
}
