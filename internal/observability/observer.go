package observability

import (
	"log/slog"

	"github.com/couchcryptid/storm-damage-patches/internal/domain"
)

// MetricsObserver records extraction progress as Prometheus metrics.
type MetricsObserver struct {
	metrics *Metrics
}

// NewMetricsObserver returns an observer backed by m.
func NewMetricsObserver(m *Metrics) *MetricsObserver {
	return &MetricsObserver{metrics: m}
}

func (o *MetricsObserver) Observe(ev domain.ProgressEvent) {
	phase := string(ev.Phase)
	switch ev.Kind {
	case domain.ProgressPatchWritten:
		o.metrics.PatchesWritten.WithLabelValues(phase).Inc()
	case domain.ProgressSourceSkipped:
		o.metrics.SourcesSkipped.WithLabelValues(phase).Inc()
	case domain.ProgressNoCoverage:
		o.metrics.PointsUncovered.WithLabelValues(phase).Inc()
	case domain.ProgressPointDone:
		o.metrics.ExtractDuration.WithLabelValues(phase).Observe(ev.Duration.Seconds())
	}
}

// LogObserver writes progress events to a structured logger at debug level.
type LogObserver struct {
	logger *slog.Logger
}

// NewLogObserver returns an observer that logs to logger.
func NewLogObserver(logger *slog.Logger) *LogObserver {
	return &LogObserver{logger: logger}
}

func (o *LogObserver) Observe(ev domain.ProgressEvent) {
	attrs := []any{
		"kind", ev.Kind,
		"event", ev.Event,
		"phase", ev.Phase,
		"point_index", ev.PointIndex,
	}
	if ev.SourceIndex >= 0 {
		attrs = append(attrs, "source_index", ev.SourceIndex)
	}
	if ev.Ref != "" {
		attrs = append(attrs, "source", ev.Ref)
	}
	if ev.Path != "" {
		attrs = append(attrs, "path", ev.Path)
	}

	switch ev.Kind {
	case domain.ProgressSourceSkipped:
		o.logger.Debug("extraction progress", append(attrs, "error", ev.Error)...)
	case domain.ProgressPointDone:
		o.logger.Debug("point done", append(attrs, "duration", ev.Duration)...)
	default:
		o.logger.Debug("extraction progress", attrs...)
	}
}

// MultiObserver fans each event out to every non-nil observer in order.
type MultiObserver []domain.Observer

func (m MultiObserver) Observe(ev domain.ProgressEvent) {
	for _, o := range m {
		if o != nil {
			o.Observe(ev)
		}
	}
}
