// Package extract crops a square patch around a labeled point out of every
// imagery source that covers it.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/couchcryptid/storm-damage-patches/internal/domain"
	"github.com/couchcryptid/storm-damage-patches/internal/spatial"
)

// Scope tags the progress events an Extractor emits.
type Scope struct {
	RunID string
	Event string
	Phase domain.Phase
}

// Result summarises one call to ExtractPatchesForPoint.
type Result struct {
	Matched  []int
	Written  []string
	Failures []*domain.SourceOpenError
}

// Skipped returns the number of matching sources that produced no patch.
func (r Result) Skipped() int {
	return len(r.Failures)
}

// Extractor cuts patches from a RasterStore.
type Extractor struct {
	store    domain.RasterStore
	observer domain.Observer
	logger   *slog.Logger
	scope    Scope
}

// New creates an Extractor. A nil observer discards progress events.
func New(store domain.RasterStore, observer domain.Observer, logger *slog.Logger) *Extractor {
	if observer == nil {
		observer = domain.NopObserver
	}
	return &Extractor{store: store, observer: observer, logger: logger}
}

// WithScope returns a copy of e whose progress events carry s.
func (e *Extractor) WithScope(s Scope) *Extractor {
	cp := *e
	cp.scope = s
	return &cp
}

// PatchFileName returns the output name for a point and a source index.
func PatchFileName(pointIndex, sourceIndex int) string {
	return fmt.Sprintf("%d-%d.tif", pointIndex, sourceIndex+1)
}

// ExtractPatchesForPoint writes one patch per source in set whose bounds
// strictly contain point. The region of interest is the square of half-width
// distance meters around point. outputDir must exist.
//
// A source that fails to open, window, read, or write is recorded in
// Result.Failures and skipped. The returned error is non-nil only when the
// region is degenerate (before any I/O) or ctx is cancelled.
func (e *Extractor) ExtractPatchesForPoint(ctx context.Context, set domain.SourceSet, point domain.Point, pointIndex int, distance float64, outputDir string) (Result, error) {
	if err := set.Validate(); err != nil {
		return Result{}, err
	}
	return e.extract(ctx, set, point, pointIndex, distance, outputDir, func(p domain.Point) []int {
		return domain.IndicesContainingPoint(set.Bounds, p)
	})
}

// ExtractWithIndex behaves like ExtractPatchesForPoint but looks up covering
// sources in idx, which must have been built from set.Bounds.
func (e *Extractor) ExtractWithIndex(ctx context.Context, set domain.SourceSet, idx *spatial.TileIndex, point domain.Point, pointIndex int, distance float64, outputDir string) (Result, error) {
	if idx.Len() != set.Len() {
		return Result{}, fmt.Errorf("tile index has %d entries for %d sources", idx.Len(), set.Len())
	}
	return e.extract(ctx, set, point, pointIndex, distance, outputDir, idx.Containing)
}

func (e *Extractor) extract(ctx context.Context, set domain.SourceSet, point domain.Point, pointIndex int, distance float64, outputDir string, lookup func(domain.Point) []int) (Result, error) {
	roi, err := domain.RegionOfInterest(point, distance)
	if err != nil {
		return Result{}, fmt.Errorf("point %d: %w", pointIndex, err)
	}

	result := Result{Matched: lookup(point)}
	if len(result.Matched) == 0 {
		e.emit(domain.ProgressNoCoverage, pointIndex, -1, "", "", nil)
		return result, nil
	}

	for _, i := range result.Matched {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		ref := set.Sources[i].Ref
		path := filepath.Join(outputDir, PatchFileName(pointIndex, i))

		if err := e.cropSource(ctx, ref, roi, path); err != nil {
			failure := &domain.SourceOpenError{Index: i, Ref: ref, Err: err}
			result.Failures = append(result.Failures, failure)
			e.logger.Warn("source skipped",
				"event", e.scope.Event,
				"phase", e.scope.Phase,
				"point_index", pointIndex,
				"source_index", i,
				"source", ref,
				"error", err,
			)
			e.emit(domain.ProgressSourceSkipped, pointIndex, i, ref, "", failure)
			continue
		}

		result.Written = append(result.Written, path)
		e.emit(domain.ProgressPatchWritten, pointIndex, i, ref, path, nil)
	}

	return result, nil
}

// cropSource reads the roi window from one source and writes it to path.
func (e *Extractor) cropSource(ctx context.Context, ref string, roi domain.BoundingBox, path string) error {
	src, err := e.store.Open(ctx, ref)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	defer func() {
		if cerr := src.Close(); cerr != nil {
			e.logger.Debug("close source failed", "source", ref, "error", cerr)
		}
	}()

	info := src.Info()
	window, err := domain.WindowForBounds(info.Transform, roi, info.Width, info.Height)
	if err != nil {
		return fmt.Errorf("compute window: %w", err)
	}

	patch, err := src.ReadWindow(window)
	if err != nil {
		return fmt.Errorf("read window: %w", err)
	}
	patch.Transform = info.Transform.ForWindow(window)
	patch.CRS = info.CRS

	if err := e.store.WritePatch(ctx, path, patch); err != nil {
		return fmt.Errorf("write patch: %w", err)
	}
	return nil
}

func (e *Extractor) emit(kind domain.ProgressKind, pointIndex, sourceIndex int, ref, path string, err error) {
	ev := domain.NewProgressEvent(kind, pointIndex, sourceIndex)
	ev.RunID = e.scope.RunID
	ev.Event = e.scope.Event
	ev.Phase = e.scope.Phase
	ev.Ref = ref
	ev.Path = path
	if err != nil {
		ev.Error = err.Error()
	}
	e.observer.Observe(ev)
}
