// Package spatial provides an R-tree index over imagery tile bounds so that
// coverage lookups stay fast for catalogs with thousands of tiles.
package spatial

import (
	"fmt"
	"slices"

	"github.com/dhconnelly/rtreego"

	"github.com/couchcryptid/storm-damage-patches/internal/domain"
)

const (
	dimensions  = 2
	minChildren = 25
	maxChildren = 50

	// queryTolerance pads probe rectangles.
	queryTolerance = 1e-9
)

// tile wraps one source's bounds for R-tree indexing.
type tile struct {
	index  int
	bounds domain.BoundingBox
	rect   *rtreego.Rect
}

func (t *tile) Bounds() *rtreego.Rect {
	return t.rect
}

// TileIndex answers the same questions as domain.IndicesContainingPoint and
// domain.BoxesOverlap for a fixed list of boxes, without scanning all of them.
// It is safe for concurrent reads once built.
type TileIndex struct {
	tree  *rtreego.Rtree
	count int
}

// NewTileIndex indexes boxes by their position in the slice.
func NewTileIndex(boxes []domain.BoundingBox) (*TileIndex, error) {
	idx := &TileIndex{
		tree:  rtreego.NewTree(dimensions, minChildren, maxChildren),
		count: len(boxes),
	}
	for i, b := range boxes {
		rect, err := toRect(b)
		if err != nil {
			return nil, fmt.Errorf("index tile %d: %w", i, err)
		}
		idx.tree.Insert(&tile{index: i, bounds: b, rect: rect})
	}
	return idx, nil
}

// Len returns the number of indexed tiles.
func (idx *TileIndex) Len() int {
	return idx.count
}

// Containing returns the indices of tiles that strictly contain p, ascending.
func (idx *TileIndex) Containing(p domain.Point) []int {
	probe := rtreego.Point{p.X, p.Y}.ToRect(queryTolerance)
	out := []int{}
	for _, s := range idx.tree.SearchIntersect(probe) {
		t := s.(*tile)
		if domain.PointInBox(p, t.bounds) {
			out = append(out, t.index)
		}
	}
	slices.Sort(out)
	return out
}

// AnyContains reports whether any tile strictly contains p.
func (idx *TileIndex) AnyContains(p domain.Point) bool {
	probe := rtreego.Point{p.X, p.Y}.ToRect(queryTolerance)
	for _, s := range idx.tree.SearchIntersect(probe) {
		if domain.PointInBox(p, s.(*tile).bounds) {
			return true
		}
	}
	return false
}

// Overlapping returns the indices of tiles overlapping box, ascending. Tiles
// that only share an edge or corner with box count as overlapping.
func (idx *TileIndex) Overlapping(box domain.BoundingBox) ([]int, error) {
	if err := box.Validate(); err != nil {
		return nil, err
	}
	// The tree's intersection test is open, so pad the probe and let
	// BoxesOverlap decide.
	rect, err := toRect(domain.BoundingBox{
		Left:   box.Left - queryTolerance,
		Bottom: box.Bottom - queryTolerance,
		Right:  box.Right + queryTolerance,
		Top:    box.Top + queryTolerance,
	})
	if err != nil {
		return nil, err
	}
	out := []int{}
	for _, s := range idx.tree.SearchIntersect(rect) {
		t := s.(*tile)
		if domain.BoxesOverlap(t.bounds, box) {
			out = append(out, t.index)
		}
	}
	slices.Sort(out)
	return out, nil
}

func toRect(b domain.BoundingBox) (*rtreego.Rect, error) {
	if err := b.Validate(); err != nil {
		return nil, err
	}
	rect, err := rtreego.NewRect(rtreego.Point{b.Left, b.Bottom}, []float64{b.Width(), b.Height()})
	if err != nil {
		return nil, fmt.Errorf("invalid bounding box: %w", err)
	}
	return rect, nil
}
