package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/couchcryptid/storm-damage-patches/internal/config"
	"github.com/couchcryptid/storm-damage-patches/internal/domain"
	"github.com/couchcryptid/storm-damage-patches/internal/observability"
	"github.com/couchcryptid/storm-damage-patches/internal/spatial"
)

// Tidy outcomes, used as the metric label.
const (
	outcomeKept        = "kept"
	outcomeTooFewBands = "too_few_bands"
	outcomeUnreadable  = "unreadable"
)

// TidiedLink is an imagery link that opened successfully and carries enough
// bands, together with the bounds read while probing it.
type TidiedLink struct {
	Ref    string             `yaml:"ref"`
	Bands  int                `yaml:"bands"`
	Bounds domain.BoundingBox `yaml:"bounds"`
}

type tidiedList struct {
	Event     string       `yaml:"event"`
	Generated time.Time    `yaml:"generated"`
	Links     []TidiedLink `yaml:"links"`
}

// LinkCatalog resolves the imagery available for an event.
type LinkCatalog struct {
	cfg     *config.Config
	client  *http.Client
	store   domain.RasterStore
	metrics *observability.Metrics
	logger  *slog.Logger
}

// NewLinkCatalog creates a LinkCatalog that probes links through store.
func NewLinkCatalog(cfg *config.Config, store domain.RasterStore, metrics *observability.Metrics, logger *slog.Logger) *LinkCatalog {
	return &LinkCatalog{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.HTTPTimeout},
		store:   store,
		metrics: metrics,
		logger:  logger,
	}
}

// RawLinks downloads the event's file list and returns its GeoTIFF links.
func (c *LinkCatalog) RawLinks(ctx context.Context, event string) ([]string, error) {
	links, err := fetchLines(ctx, c.client, c.cfg.FileListURL(event), ".tif")
	if err != nil {
		return nil, fmt.Errorf("raw links for %s: %w", event, err)
	}
	return links, nil
}

// TidyLinks keeps the links that open and carry at least MinBands bands,
// preserving their order, and persists the result for the event. An existing
// tidied catalog is returned as is unless overwrite is set.
func (c *LinkCatalog) TidyLinks(ctx context.Context, event string, links []string, overwrite bool) ([]TidiedLink, error) {
	if len(links) == 0 {
		return nil, fmt.Errorf("%w: event %s", domain.ErrNoLinks, event)
	}

	path := c.cachePath(event)
	if !overwrite && fileExists(path) {
		return loadTidied(path)
	}

	probed := make([]*TidiedLink, len(links))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Workers)
	for i, ref := range links {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			probed[i] = c.probe(gctx, ref)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	tidied := make([]TidiedLink, 0, len(links))
	for _, l := range probed {
		if l != nil {
			tidied = append(tidied, *l)
		}
	}

	if err := saveTidied(path, tidiedList{Event: event, Generated: domain.Now().UTC(), Links: tidied}); err != nil {
		return nil, err
	}
	c.logger.Info("links tidied", "event", event, "raw", len(links), "kept", len(tidied), "path", path)
	return tidied, nil
}

// probe opens ref and returns it as a tidied link, or nil when it must be
// dropped.
func (c *LinkCatalog) probe(ctx context.Context, ref string) *TidiedLink {
	src, err := c.store.Open(ctx, ref)
	if err != nil {
		c.metrics.LinksTidied.WithLabelValues(outcomeUnreadable).Inc()
		c.logger.Warn("skipping unreadable link", "link", ref, "error", err)
		return nil
	}
	info := src.Info()
	if cerr := src.Close(); cerr != nil {
		c.logger.Debug("close source failed", "link", ref, "error", cerr)
	}

	if info.BandCount < c.cfg.MinBands {
		c.metrics.LinksTidied.WithLabelValues(outcomeTooFewBands).Inc()
		c.logger.Debug("skipping link with too few bands", "link", ref, "bands", info.BandCount)
		return nil
	}
	c.metrics.LinksTidied.WithLabelValues(outcomeKept).Inc()
	return &TidiedLink{Ref: ref, Bands: info.BandCount, Bounds: info.Bounds}
}

// TidiedLinks returns the event's tidied catalog, building it from the raw
// file list when it has not been persisted yet or overwrite is set.
func (c *LinkCatalog) TidiedLinks(ctx context.Context, event string, overwrite bool) ([]TidiedLink, error) {
	path := c.cachePath(event)
	if !overwrite && fileExists(path) {
		return loadTidied(path)
	}

	raw, err := c.RawLinks(ctx, event)
	if err != nil {
		return nil, err
	}
	return c.TidyLinks(ctx, event, raw, overwrite)
}

// Sources splits the event's tidied links into pre- and post-event source
// sets. Links matching neither phase are ignored.
func (c *LinkCatalog) Sources(ctx context.Context, event string, overwrite bool) (pre, post domain.SourceSet, err error) {
	links, err := c.TidiedLinks(ctx, event, overwrite)
	if err != nil {
		return pre, post, err
	}
	pre, post = splitByPhase(links, c.logger)
	return pre, post, nil
}

// UsefulForBox returns the pre- and post-event sources whose bounds overlap
// box.
func (c *LinkCatalog) UsefulForBox(ctx context.Context, event string, box domain.BoundingBox, overwrite bool) (pre, post domain.SourceSet, err error) {
	if err := box.Validate(); err != nil {
		return pre, post, err
	}
	allPre, allPost, err := c.Sources(ctx, event, overwrite)
	if err != nil {
		return pre, post, err
	}
	if pre, err = overlapping(allPre, box); err != nil {
		return pre, post, err
	}
	post, err = overlapping(allPost, box)
	return pre, post, err
}

func (c *LinkCatalog) cachePath(event string) string {
	return filepath.Join(c.cfg.TidiedListsDir(), event+".yaml")
}

func splitByPhase(links []TidiedLink, logger *slog.Logger) (pre, post domain.SourceSet) {
	for _, l := range links {
		phase, ok := domain.PhaseOf(l.Ref)
		if !ok {
			logger.Debug("link has no phase marker", "link", l.Ref)
			continue
		}
		src := domain.ImageSource{Ref: l.Ref}
		if phase == domain.PhasePre {
			pre.Add(src, l.Bounds)
		} else {
			post.Add(src, l.Bounds)
		}
	}
	return pre, post
}

func overlapping(set domain.SourceSet, box domain.BoundingBox) (domain.SourceSet, error) {
	var out domain.SourceSet
	if set.Len() == 0 {
		return out, nil
	}
	idx, err := spatial.NewTileIndex(set.Bounds)
	if err != nil {
		return out, err
	}
	hits, err := idx.Overlapping(box)
	if err != nil {
		return out, err
	}
	for _, i := range hits {
		out.Add(set.Sources[i], set.Bounds[i])
	}
	return out, nil
}

func loadTidied(path string) ([]TidiedLink, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read tidied links: %w", err)
	}
	var list tidiedList
	if err := yaml.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("decode tidied links %s: %w", path, err)
	}
	for _, l := range list.Links {
		if err := l.Bounds.Validate(); err != nil {
			return nil, fmt.Errorf("tidied link %s: %w", l.Ref, err)
		}
	}
	return list.Links, nil
}

func saveTidied(path string, list tidiedList) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create tidied links dir: %w", err)
	}
	data, err := yaml.Marshal(list)
	if err != nil {
		return fmt.Errorf("encode tidied links: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write tidied links: %w", err)
	}
	return nil
}
