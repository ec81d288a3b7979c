// Package domain models the geometry and raster types used to cut training
// patches out of hurricane imagery.
//
// # Coordinates
//
// All geometric comparisons happen in geographic degrees (WGS84 longitude and
// latitude). A Point is {X: lon, Y: lat}; a BoundingBox is
// {Left, Bottom, Right, Top}. Boxes are validated on construction: a box with
// non-positive width or height is rejected with ErrInvalidRegion.
//
// # Containment
//
// PointInBox uses strict inequalities on all four edges. A point lying exactly
// on a tile edge is not covered by that tile:
//
//	box {0, 0, 10, 10}
//	(5, 5)   → contained
//	(0, 5)   → not contained (left edge)
//	(10, 10) → not contained (corner)
//
// BoxesOverlap treats boxes as closed intervals, so boxes that only share an
// edge do overlap.
//
// # Distances
//
// Region-of-interest sizes are given in meters and converted to degrees with a
// spherical Earth of radius 6,371,000 m. The same offset is applied to both
// axes, so the region is square in degrees rather than in meters.
//
// # Raster windows
//
// GeoTransform uses GDAL ordering:
//
//	x = gt[0] + col*gt[1] + row*gt[2]
//	y = gt[3] + col*gt[4] + row*gt[5]
//
// WindowForBounds maps a geographic box to pixel offsets, rounding outward
// (floor on offsets, ceil on extents) and clipping to the raster. Rotated
// transforms are not supported.
//
// # Patch naming
//
// Each (point, source) pair yields one file named "<pointIndex>-<sourceIndex+1>.tif".
// Overlapping sources are never mosaicked.
package domain
