package catalog

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"maps"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/couchcryptid/storm-damage-patches/internal/config"
	"github.com/couchcryptid/storm-damage-patches/internal/domain"
	"github.com/couchcryptid/storm-damage-patches/internal/observability"
	"github.com/couchcryptid/storm-damage-patches/internal/spatial"
)

// LabelCatalog prepares the labeled building points of an event.
type LabelCatalog struct {
	cfg      *config.Config
	client   *http.Client
	geocoder domain.Geocoder
	metrics  *observability.Metrics
	logger   *slog.Logger
}

// NewLabelCatalog creates a LabelCatalog. geocoder may be nil, in which case
// labels are not enriched with a country.
func NewLabelCatalog(cfg *config.Config, geocoder domain.Geocoder, metrics *observability.Metrics, logger *slog.Logger) *LabelCatalog {
	return &LabelCatalog{
		cfg:      cfg,
		client:   &http.Client{Timeout: cfg.HTTPTimeout},
		geocoder: geocoder,
		metrics:  metrics,
		logger:   logger,
	}
}

// VectorLinks downloads the event's file list and returns its vector archive
// links.
func (c *LabelCatalog) VectorLinks(ctx context.Context, event string) ([]string, error) {
	links, err := fetchLines(ctx, c.client, c.cfg.FileListURL(event), ".zip")
	if err != nil {
		return nil, fmt.Errorf("vector links for %s: %w", event, err)
	}
	return links, nil
}

// FetchVectorData downloads and extracts every vector archive of the event
// and returns the directory holding the extractions. Archives whose
// extraction directory already exists are not fetched again.
func (c *LabelCatalog) FetchVectorData(ctx context.Context, event string) (string, error) {
	links, err := c.VectorLinks(ctx, event)
	if err != nil {
		return "", err
	}

	dir := c.vectorDir(event)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create vector data dir: %w", err)
	}
	for _, link := range links {
		if err := c.fetchArchive(ctx, dir, link); err != nil {
			return "", err
		}
	}
	return dir, nil
}

func (c *LabelCatalog) fetchArchive(ctx context.Context, dir, link string) error {
	name := lastSegment(link)
	dest := filepath.Join(dir, strings.TrimSuffix(name, ".zip"))
	if info, err := os.Stat(dest); err == nil && info.IsDir() {
		c.logger.Debug("vector data already extracted", "archive", name)
		return nil
	}

	archive := filepath.Join(dir, name)
	if !fileExists(archive) {
		if err := download(ctx, c.client, link, archive); err != nil {
			return err
		}
	}

	partial := dest + ".partial"
	_ = os.RemoveAll(partial)
	if err := Extract(archive, partial); err != nil {
		return fmt.Errorf("extract %s: %w", name, err)
	}
	if err := os.Rename(partial, dest); err != nil {
		return err
	}
	c.logger.Info("vector data extracted", "archive", name, "dir", dest)
	return os.Remove(archive)
}

func (c *LabelCatalog) vectorDir(event string) string {
	return filepath.Join(c.cfg.RawDir(), event+"-vector-data")
}

func (c *LabelCatalog) cachePath(event string) string {
	return filepath.Join(c.cfg.GeoJSONDir(), event+".geojson")
}

// Labels returns the event's labeled points covered by pre- or post-event
// imagery. The prepared set is persisted and reused unless overwrite is set.
func (c *LabelCatalog) Labels(ctx context.Context, event string, pre, post domain.SourceSet, overwrite bool) ([]domain.LabeledPoint, error) {
	path := c.cachePath(event)
	if !overwrite && fileExists(path) {
		points, err := Load(path)
		if err != nil {
			return nil, err
		}
		c.metrics.LabelsPrepared.Set(float64(len(points)))
		return points, nil
	}

	dir, err := c.FetchVectorData(ctx, event)
	if err != nil {
		return nil, err
	}

	combined, err := Combine(WalkFiles(dir, ".geojson"), c.logger)
	if err != nil {
		return nil, err
	}
	if len(combined) == 0 {
		return nil, fmt.Errorf("%w: no labeled points under %s", domain.ErrEmptyLabelSet, dir)
	}

	trimmed, err := Trim(combined, pre.Bounds, post.Bounds)
	if err != nil {
		return nil, err
	}
	enriched, err := c.Enrich(ctx, trimmed)
	if err != nil {
		return nil, err
	}

	if err := Save(path, enriched); err != nil {
		return nil, err
	}
	c.metrics.LabelsPrepared.Set(float64(len(enriched)))
	c.logger.Info("labels prepared", "event", event, "combined", len(combined), "kept", len(enriched), "path", path)
	return enriched, nil
}

// Enrich fills in the country of each point through the geocoder. It is a
// no-op without a geocoder.
func (c *LabelCatalog) Enrich(ctx context.Context, points []domain.LabeledPoint) ([]domain.LabeledPoint, error) {
	if c.geocoder == nil {
		return points, nil
	}
	out := make([]domain.LabeledPoint, len(points))
	for i, lp := range points {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = domain.EnrichWithCountry(ctx, lp, c.geocoder, c.logger)
	}
	return out, nil
}

// Extract unpacks a zip archive into dest. Entries that would land outside
// dest are rejected.
func Extract(archive, dest string) error {
	r, err := zip.OpenReader(archive)
	if err != nil {
		return err
	}
	defer r.Close()

	clean := filepath.Clean(dest)
	root := clean + string(os.PathSeparator)
	for _, f := range r.File {
		target := filepath.Join(dest, f.Name)
		if target != clean && !strings.HasPrefix(target, root) {
			return fmt.Errorf("illegal path in archive: %s", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := extractFile(f, target); err != nil {
			return err
		}
	}
	return nil
}

func extractFile(f *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()

	out, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, rc); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

// ReadPoints decodes a GeoJSON feature collection into labeled points.
// Features without point geometry are skipped and counted.
func ReadPoints(path string) (points []domain.LabeledPoint, skipped int, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, 0, err
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, 0, fmt.Errorf("decode %s: %w", path, err)
	}

	points = make([]domain.LabeledPoint, 0, len(fc.Features))
	for _, f := range fc.Features {
		pt, ok := f.Geometry.(orb.Point)
		if !ok {
			skipped++
			continue
		}
		lp := domain.NewLabeledPoint(domain.Point{X: pt.X(), Y: pt.Y()})
		maps.Copy(lp.Attributes, f.Properties)
		points = append(points, lp)
	}
	return points, skipped, nil
}

// Load reads a prepared label file.
func Load(path string) ([]domain.LabeledPoint, error) {
	points, _, err := ReadPoints(path)
	return points, err
}

// Save writes points as a GeoJSON feature collection.
func Save(path string, points []domain.LabeledPoint) error {
	fc := geojson.NewFeatureCollection()
	for _, lp := range points {
		f := geojson.NewFeature(orb.Point{lp.X, lp.Y})
		maps.Copy(f.Properties, lp.Attributes)
		fc.Append(f)
	}
	data, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode labels: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create labels dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write labels: %w", err)
	}
	return nil
}

type pointKey struct {
	x, y  float64
	label string
}

// Combine concatenates the points of every file in paths, in order, dropping
// repeats of the same location and label.
func Combine(paths iter.Seq2[string, error], logger *slog.Logger) ([]domain.LabeledPoint, error) {
	var out []domain.LabeledPoint
	seen := make(map[pointKey]struct{})
	for path, err := range paths {
		if err != nil {
			return nil, err
		}
		points, skipped, err := ReadPoints(path)
		if err != nil {
			return nil, err
		}
		if skipped > 0 {
			logger.Warn("skipping non-point features", "file", path, "count", skipped)
		}
		for _, lp := range points {
			k := pointKey{lp.X, lp.Y, lp.Label()}
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, lp)
		}
	}
	return out, nil
}

// Trim flags each point with whether pre- and post-event imagery covers it and
// keeps the points covered by either. Input points are not modified.
func Trim(points []domain.LabeledPoint, pre, post []domain.BoundingBox) ([]domain.LabeledPoint, error) {
	preIdx, err := spatial.NewTileIndex(pre)
	if err != nil {
		return nil, fmt.Errorf("index pre-event bounds: %w", err)
	}
	postIdx, err := spatial.NewTileIndex(post)
	if err != nil {
		return nil, fmt.Errorf("index post-event bounds: %w", err)
	}

	out := make([]domain.LabeledPoint, 0, len(points))
	for _, lp := range points {
		marked := domain.LabeledPoint{Point: lp.Point, Attributes: maps.Clone(lp.Attributes)}
		marked.SetCoverage(preIdx.AnyContains(lp.Point), postIdx.AnyContains(lp.Point))
		if marked.Covered() {
			out = append(out, marked)
		}
	}
	return out, nil
}
