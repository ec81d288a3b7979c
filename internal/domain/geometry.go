package domain

import "fmt"

// Point is a geographic coordinate: X is longitude, Y is latitude.
type Point struct {
	X float64 `json:"x" yaml:"x"`
	Y float64 `json:"y" yaml:"y"`
}

func (p Point) String() string {
	return fmt.Sprintf("(%.6f, %.6f)", p.X, p.Y)
}

// BoundingBox is an axis-aligned rectangle in geographic degrees.
type BoundingBox struct {
	Left   float64 `json:"left" yaml:"left"`
	Bottom float64 `json:"bottom" yaml:"bottom"`
	Right  float64 `json:"right" yaml:"right"`
	Top    float64 `json:"top" yaml:"top"`
}

// NewBoundingBox builds a box and rejects degenerate extents with ErrInvalidRegion.
func NewBoundingBox(left, bottom, right, top float64) (BoundingBox, error) {
	b := BoundingBox{Left: left, Bottom: bottom, Right: right, Top: top}
	if err := b.Validate(); err != nil {
		return BoundingBox{}, err
	}
	return b, nil
}

// Validate returns ErrInvalidRegion unless Left < Right and Bottom < Top.
// NaN extents fail both comparisons and are rejected too.
func (b BoundingBox) Validate() error {
	if !(b.Left < b.Right) || !(b.Bottom < b.Top) {
		return fmt.Errorf("%w: %s", ErrInvalidRegion, b)
	}
	return nil
}

// Width returns Right - Left.
func (b BoundingBox) Width() float64 { return b.Right - b.Left }

// Height returns Top - Bottom.
func (b BoundingBox) Height() float64 { return b.Top - b.Bottom }

// Center returns the midpoint of the box.
func (b BoundingBox) Center() Point {
	return Point{X: (b.Left + b.Right) / 2, Y: (b.Bottom + b.Top) / 2}
}

// Contains reports whether p lies strictly inside b. See PointInBox.
func (b BoundingBox) Contains(p Point) bool {
	return PointInBox(p, b)
}

func (b BoundingBox) String() string {
	return fmt.Sprintf("[%g %g %g %g]", b.Left, b.Bottom, b.Right, b.Top)
}
