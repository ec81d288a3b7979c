package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "patchprep"

// Metrics holds the Prometheus counters, histograms, and gauges for patch extraction.
type Metrics struct {
	PointsProcessed  prometheus.Counter
	PatchesWritten   *prometheus.CounterVec // labels: phase={pre,post}
	SourcesSkipped   *prometheus.CounterVec // labels: phase={pre,post}
	PointsUncovered  *prometheus.CounterVec // labels: phase={pre,post}
	ExtractDuration  *prometheus.HistogramVec
	BatchRunning     prometheus.Gauge
	LinksTidied      *prometheus.CounterVec // labels: outcome={kept,too_few_bands,unreadable}
	LabelsPrepared   prometheus.Gauge

	PatchEventsDropped prometheus.Counter

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec   // labels: outcome={success,error,empty}
	GeocodeCache       *prometheus.CounterVec   // labels: result={hit,miss}
	GeocodeAPIDuration prometheus.Histogram
	GeocodeEnabled     prometheus.Gauge
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics(true)

	prometheus.MustRegister(
		m.PointsProcessed,
		m.PatchesWritten,
		m.SourcesSkipped,
		m.PointsUncovered,
		m.ExtractDuration,
		m.BatchRunning,
		m.LinksTidied,
		m.LabelsPrepared,
		m.PatchEventsDropped,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.GeocodeEnabled,
	)

	return m
}

// NewMetricsForTesting creates unregistered Metrics to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics(false)
}

func newMetrics(withHelp bool) *Metrics {
	help := func(s string) string {
		if withHelp {
			return s
		}
		return ""
	}

	return &Metrics{
		PointsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_processed_total",
			Help:      help("Labeled points whose pre and post extraction finished."),
		}),
		PatchesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "patches_written_total",
			Help:      help("Patch files written, by imagery phase."),
		}, []string{"phase"}),
		SourcesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sources_skipped_total",
			Help:      help("Matching sources skipped because they could not be opened, read, or written."),
		}, []string{"phase"}),
		PointsUncovered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_uncovered_total",
			Help:      help("Points with no covering source, by imagery phase."),
		}, []string{"phase"}),
		ExtractDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "extract_duration_seconds",
			Help:      help("Time to extract all patches for one point and phase."),
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"phase"}),
		BatchRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "batch_running",
			Help:      help("1 while a batch run is extracting patches, 0 otherwise."),
		}),
		LinksTidied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "links_tidied_total",
			Help:      help("Imagery links examined while tidying the catalog, by outcome."),
		}, []string{"outcome"}),
		LabelsPrepared: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "labels_prepared",
			Help:      help("Labeled points remaining after coverage filtering."),
		}),
		PatchEventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "patch_events_dropped_total",
			Help:      help("Patch events not published because the queue was full or the publisher closed."),
		}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_requests_total",
			Help:      help("Reverse geocoding API requests by outcome."),
		}, []string{"outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "geocode_cache_total",
			Help:      help("Geocoding cache lookups by result."),
		}, []string{"result"}),
		GeocodeAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "geocode_api_duration_seconds",
			Help:      help("Mapbox API request duration in seconds."),
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
		GeocodeEnabled: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "geocode_enabled",
			Help:      help("1 when country enrichment is enabled, 0 otherwise."),
		}),
	}
}
