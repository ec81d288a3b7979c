package domain

import (
	"context"
	"fmt"
	"math"
)

// pixelEpsilon absorbs float noise when snapping geographic offsets to pixels.
const pixelEpsilon = 1e-6

// GeoTransform is an affine pixel-to-geographic mapping in GDAL order.
type GeoTransform [6]float64

// Apply returns the geographic coordinate of pixel (col, row).
func (gt GeoTransform) Apply(col, row float64) Point {
	return Point{
		X: gt[0] + col*gt[1] + row*gt[2],
		Y: gt[3] + col*gt[4] + row*gt[5],
	}
}

// ForWindow returns the transform whose origin is the top-left pixel of w.
func (gt GeoTransform) ForWindow(w Window) GeoTransform {
	origin := gt.Apply(float64(w.ColOff), float64(w.RowOff))
	return GeoTransform{origin.X, gt[1], gt[2], origin.Y, gt[4], gt[5]}
}

// Rotated reports whether the transform has non-zero rotation terms.
func (gt GeoTransform) Rotated() bool {
	return gt[2] != 0 || gt[4] != 0
}

// Window is a pixel rectangle within a raster.
type Window struct {
	ColOff int
	RowOff int
	Width  int
	Height int
}

// Empty reports whether the window covers no pixels.
func (w Window) Empty() bool {
	return w.Width <= 0 || w.Height <= 0
}

// WindowForBounds returns the pixel window of a sizeX by sizeY raster covering
// box. Offsets are floored, far edges are ceiled, and the result is clipped to
// the raster. A box outside the raster yields ErrEmptyWindow.
func WindowForBounds(gt GeoTransform, box BoundingBox, sizeX, sizeY int) (Window, error) {
	if err := box.Validate(); err != nil {
		return Window{}, err
	}
	if gt.Rotated() || gt[1] == 0 || gt[5] == 0 {
		return Window{}, fmt.Errorf("%w: %v", ErrUnsupportedTransform, [6]float64(gt))
	}

	c1 := (box.Left - gt[0]) / gt[1]
	c2 := (box.Right - gt[0]) / gt[1]
	r1 := (box.Top - gt[3]) / gt[5]
	r2 := (box.Bottom - gt[3]) / gt[5]

	colStart := int(math.Floor(math.Min(c1, c2) + pixelEpsilon))
	colStop := int(math.Ceil(math.Max(c1, c2) - pixelEpsilon))
	rowStart := int(math.Floor(math.Min(r1, r2) + pixelEpsilon))
	rowStop := int(math.Ceil(math.Max(r1, r2) - pixelEpsilon))

	colStart = max(colStart, 0)
	rowStart = max(rowStart, 0)
	colStop = min(colStop, sizeX)
	rowStop = min(rowStop, sizeY)

	w := Window{
		ColOff: colStart,
		RowOff: rowStart,
		Width:  colStop - colStart,
		Height: rowStop - rowStart,
	}
	if w.Empty() {
		return Window{}, fmt.Errorf("%w: box %s", ErrEmptyWindow, box)
	}
	return w, nil
}

// DataType names a raster pixel type, e.g. "Byte", "UInt16", "Float32".
type DataType string

// RasterInfo describes an opened raster. Bounds are in the raster's own CRS,
// which is assumed to be geographic.
type RasterInfo struct {
	Ref       string
	Bounds    BoundingBox
	CRS       string
	BandCount int
	Width     int
	Height    int
	DataType  DataType
	Transform GeoTransform
}

// Patch is a windowed crop of a raster. Pixels holds a typed slice
// ([]uint8, []uint16, ..., []float64) of Width*Height*BandCount values in
// pixel-interleaved order.
type Patch struct {
	Pixels    any
	Width     int
	Height    int
	BandCount int
	DataType  DataType
	CRS       string
	Transform GeoTransform
}

// RasterSource is an opened raster that supports windowed reads.
type RasterSource interface {
	Info() RasterInfo
	ReadWindow(w Window) (Patch, error)
	Close() error
}

// RasterStore opens imagery sources and persists patches.
type RasterStore interface {
	Open(ctx context.Context, ref string) (RasterSource, error)
	WritePatch(ctx context.Context, path string, patch Patch) error
}
