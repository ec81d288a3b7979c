package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRegion is returned for a bounding box with non-positive width or height.
	ErrInvalidRegion = errors.New("invalid region: box must have positive width and height")

	// ErrEmptyLabelSet is returned when an event resolves to no labeled points.
	ErrEmptyLabelSet = errors.New("label set is empty")

	// ErrNoLinks is returned when an event resolves to no imagery links.
	ErrNoLinks = errors.New("no imagery links")

	// ErrEmptyWindow is returned when a region does not intersect a raster.
	ErrEmptyWindow = errors.New("window does not intersect raster")

	// ErrUnsupportedTransform is returned for rotated or degenerate geotransforms.
	ErrUnsupportedTransform = errors.New("unsupported geotransform")

	// ErrUnsupportedDataType is returned for pixel types the raster store cannot buffer.
	ErrUnsupportedDataType = errors.New("unsupported pixel data type")
)

// SourceOpenError records a single imagery source that could not be opened,
// windowed, read, or written while extracting patches for one point.
type SourceOpenError struct {
	Index int
	Ref   string
	Err   error
}

func (e *SourceOpenError) Error() string {
	return fmt.Sprintf("source %d (%s): %v", e.Index, e.Ref, e.Err)
}

func (e *SourceOpenError) Unwrap() error {
	return e.Err
}
