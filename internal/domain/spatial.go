package domain

import (
	"fmt"
	"math"
)

// PointInBox reports whether p lies strictly inside box. Points on an edge or
// corner are not contained.
func PointInBox(p Point, box BoundingBox) bool {
	return box.Left < p.X && p.X < box.Right &&
		box.Bottom < p.Y && p.Y < box.Top
}

// IndicesContainingPoint returns the index of every box that contains p, in
// input order. It never returns nil.
func IndicesContainingPoint(boxes []BoundingBox, p Point) []int {
	indices := []int{}
	for i, box := range boxes {
		if PointInBox(p, box) {
			indices = append(indices, i)
		}
	}
	return indices
}

// AnyBoxContainsPoint reports whether at least one box contains p, stopping
// at the first match.
func AnyBoxContainsPoint(boxes []BoundingBox, p Point) bool {
	for _, box := range boxes {
		if PointInBox(p, box) {
			return true
		}
	}
	return false
}

// BoxesOverlap reports whether a and b share any area or edge. Boxes are
// treated as closed intervals.
func BoxesOverlap(a, b BoundingBox) bool {
	return !(a.Right < b.Left || b.Right < a.Left ||
		a.Top < b.Bottom || b.Top < a.Bottom)
}

// RegionOfInterest returns the square box centred on p whose half-width is
// distanceMeters converted to degrees. A non-positive or non-finite distance
// yields ErrInvalidRegion.
func RegionOfInterest(p Point, distanceMeters float64) (BoundingBox, error) {
	if math.IsInf(distanceMeters, 0) || math.IsNaN(distanceMeters) {
		return BoundingBox{}, fmt.Errorf("%w: distance %v", ErrInvalidRegion, distanceMeters)
	}
	d := MetersToDegrees(distanceMeters)
	return NewBoundingBox(p.X-d, p.Y-d, p.X+d, p.Y+d)
}
