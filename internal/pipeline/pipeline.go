// Package pipeline drives a batch patch extraction run for one event.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/storm-damage-patches/internal/domain"
	"github.com/couchcryptid/storm-damage-patches/internal/extract"
	"github.com/couchcryptid/storm-damage-patches/internal/observability"
	"github.com/couchcryptid/storm-damage-patches/internal/spatial"
)

// SourceResolver returns the pre- and post-event imagery of an event.
type SourceResolver interface {
	Sources(ctx context.Context, event string, overwrite bool) (pre, post domain.SourceSet, err error)
}

// LabelProvider returns the labeled points of an event covered by its imagery.
type LabelProvider interface {
	Labels(ctx context.Context, event string, pre, post domain.SourceSet, overwrite bool) ([]domain.LabeledPoint, error)
}

// Options tune a Driver.
type Options struct {
	// Distance is the half-width of each patch in meters.
	Distance float64
	// Workers bounds how many points are processed concurrently.
	Workers int
	// OutputDir receives <event>/pre and <event>/post patch directories.
	OutputDir string
	// Overwrite rebuilds cached link catalogs and label sets.
	Overwrite bool
}

// Summary totals one run. Uncovered counts point and phase pairs with no
// covering source.
type Summary struct {
	RunID          string        `json:"run_id"`
	Event          string        `json:"event"`
	Points         int           `json:"points"`
	PatchesWritten int           `json:"patches_written"`
	SourcesSkipped int           `json:"sources_skipped"`
	Uncovered      int           `json:"uncovered"`
	Duration       time.Duration `json:"duration"`
}

// Driver resolves an event's inputs and extracts pre- and post-event patches
// for every labeled point.
type Driver struct {
	sources  SourceResolver
	labels   LabelProvider
	store    domain.RasterStore
	observer domain.Observer
	logger   *slog.Logger
	metrics  *observability.Metrics
	opts     Options
	ready    atomic.Bool

	mu     sync.Mutex
	status Status
}

// Status describes the run in progress, if any, and the last finished run.
type Status struct {
	Running bool     `json:"running"`
	Event   string   `json:"event,omitempty"`
	RunID   string   `json:"run_id,omitempty"`
	LastRun *Summary `json:"last_run,omitempty"`
}

// New creates a Driver. A nil observer discards progress events.
func New(sources SourceResolver, labels LabelProvider, store domain.RasterStore, observer domain.Observer, logger *slog.Logger, metrics *observability.Metrics, opts Options) *Driver {
	if observer == nil {
		observer = domain.NopObserver
	}
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Driver{
		sources:  sources,
		labels:   labels,
		store:    store,
		observer: observer,
		logger:   logger,
		metrics:  metrics,
		opts:     opts,
	}
}

// CheckReadiness returns nil once a run has resolved its inputs and started
// extracting, or an error describing why the service is not yet ready.
func (d *Driver) CheckReadiness(_ context.Context) error {
	if !d.ready.Load() {
		return errors.New("no extraction run has started yet")
	}
	return nil
}

// Status returns a snapshot of the driver's progress.
func (d *Driver) Status() Status {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

func (d *Driver) setRunning(event, runID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status.Running = true
	d.status.Event = event
	d.status.RunID = runID
}

func (d *Driver) setFinished(summary Summary) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.status = Status{LastRun: &summary}
}

// phaseRun is the per-phase state shared by all points of a run.
type phaseRun struct {
	scope     extract.Scope
	set       domain.SourceSet
	index     *spatial.TileIndex
	extractor *extract.Extractor
	dir       string
}

// counters are updated concurrently by workers.
type counters struct {
	points    atomic.Int64
	written   atomic.Int64
	skipped   atomic.Int64
	uncovered atomic.Int64
}

// Run processes every labeled point of event. Sources that fail are skipped
// and counted; the returned error is non-nil when inputs cannot be resolved,
// the label set is empty, an output directory cannot be created, or ctx is
// cancelled. The summary is valid in every case.
func (d *Driver) Run(ctx context.Context, event string) (Summary, error) {
	start := domain.Now()
	summary := Summary{RunID: uuid.NewString(), Event: event}
	logger := d.logger.With("event", event, "run_id", summary.RunID)

	d.metrics.BatchRunning.Set(1)
	defer d.metrics.BatchRunning.Set(0)
	d.setRunning(event, summary.RunID)
	defer func() { d.setFinished(summary) }()

	pre, post, err := d.sources.Sources(ctx, event, d.opts.Overwrite)
	if err != nil {
		return summary, fmt.Errorf("resolve sources: %w", err)
	}
	logger.Info("sources resolved", "pre", pre.Len(), "post", post.Len())

	labels, err := d.labels.Labels(ctx, event, pre, post, d.opts.Overwrite)
	if err != nil {
		return summary, fmt.Errorf("prepare labels: %w", err)
	}
	if len(labels) == 0 {
		return summary, fmt.Errorf("%w: event %s", domain.ErrEmptyLabelSet, event)
	}

	phases, err := d.preparePhases(summary.RunID, event, pre, post)
	if err != nil {
		return summary, err
	}

	d.ready.Store(true)
	logger.Info("batch started", "points", len(labels), "workers", d.opts.Workers, "distance_m", d.opts.Distance)

	var c counters
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.opts.Workers)
	for i, lp := range labels {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			return d.processPoint(gctx, phases, i, lp.Point, &c)
		})
	}
	err = g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	summary.Points = int(c.points.Load())
	summary.PatchesWritten = int(c.written.Load())
	summary.SourcesSkipped = int(c.skipped.Load())
	summary.Uncovered = int(c.uncovered.Load())
	summary.Duration = domain.Now().Sub(start)

	if err != nil {
		logger.Warn("batch stopped", "points", summary.Points, "error", err)
		return summary, err
	}
	logger.Info("batch finished",
		"points", summary.Points,
		"patches_written", summary.PatchesWritten,
		"sources_skipped", summary.SourcesSkipped,
		"uncovered", summary.Uncovered,
		"duration", summary.Duration,
	)
	return summary, nil
}

func (d *Driver) preparePhases(runID, event string, pre, post domain.SourceSet) ([]phaseRun, error) {
	phases := make([]phaseRun, 0, 2)
	for _, p := range []struct {
		phase domain.Phase
		set   domain.SourceSet
	}{{domain.PhasePre, pre}, {domain.PhasePost, post}} {
		dir := filepath.Join(d.opts.OutputDir, event, string(p.phase))
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s output dir: %w", p.phase, err)
		}
		if err := p.set.Validate(); err != nil {
			return nil, fmt.Errorf("%s sources: %w", p.phase, err)
		}
		idx, err := spatial.NewTileIndex(p.set.Bounds)
		if err != nil {
			return nil, fmt.Errorf("index %s sources: %w", p.phase, err)
		}
		scope := extract.Scope{RunID: runID, Event: event, Phase: p.phase}
		ex := extract.New(d.store, d.observer, d.logger).WithScope(scope)
		phases = append(phases, phaseRun{scope: scope, set: p.set, index: idx, extractor: ex, dir: dir})
	}
	return phases, nil
}

// processPoint extracts the pre- then post-event patches of one point.
func (d *Driver) processPoint(ctx context.Context, phases []phaseRun, i int, point domain.Point, c *counters) error {
	for _, ph := range phases {
		d.emit(ph.scope, domain.ProgressPointStarted, i, 0)
		begin := domain.Now()

		res, err := ph.extractor.ExtractWithIndex(ctx, ph.set, ph.index, point, i, d.opts.Distance, ph.dir)
		c.written.Add(int64(len(res.Written)))
		c.skipped.Add(int64(res.Skipped()))
		if len(res.Matched) == 0 && err == nil {
			c.uncovered.Add(1)
		}
		if err != nil {
			return err
		}

		d.emit(ph.scope, domain.ProgressPointDone, i, domain.Now().Sub(begin))
	}
	c.points.Add(1)
	d.metrics.PointsProcessed.Inc()
	return nil
}

func (d *Driver) emit(scope extract.Scope, kind domain.ProgressKind, pointIndex int, elapsed time.Duration) {
	ev := domain.NewProgressEvent(kind, pointIndex, -1)
	ev.RunID = scope.RunID
	ev.Event = scope.Event
	ev.Phase = scope.Phase
	ev.Duration = elapsed
	d.observer.Observe(ev)
}
