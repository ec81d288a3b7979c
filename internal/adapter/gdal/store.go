// Package gdal implements domain.RasterStore on top of GDAL via godal.
package gdal

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/airbusgeo/godal"

	"github.com/couchcryptid/storm-damage-patches/internal/domain"
)

var registerOnce sync.Once

// Store opens rasters with GDAL and writes patches as GeoTIFF.
type Store struct {
	creationOptions []string
	logger          *slog.Logger
}

// NewStore registers the GDAL drivers (once per process) and returns a Store.
func NewStore(logger *slog.Logger) *Store {
	registerOnce.Do(godal.RegisterAll)
	return &Store{
		creationOptions: []string{"COMPRESS=LZW"},
		logger:          logger,
	}
}

// Open opens ref read-only. HTTP(S) references are read through /vsicurl/
// so only the requested windows are fetched.
func (s *Store) Open(ctx context.Context, ref string) (domain.RasterSource, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	ds, err := godal.Open(gdalPath(ref), godal.RasterOnly())
	if err != nil {
		return nil, fmt.Errorf("open raster %s: %w", ref, err)
	}

	info, err := describe(ref, ds)
	if err != nil {
		_ = ds.Close()
		return nil, err
	}
	return &source{ds: ds, info: info}, nil
}

// WritePatch writes patch to path as a GeoTIFF with the patch's CRS and
// geotransform.
func (s *Store) WritePatch(ctx context.Context, path string, patch domain.Patch) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	dt, ok := dataTypes[patch.DataType]
	if !ok {
		return fmt.Errorf("%w: %q", domain.ErrUnsupportedDataType, patch.DataType)
	}

	ds, err := godal.Create(godal.GTiff, path, patch.BandCount, dt, patch.Width, patch.Height,
		godal.CreationOption(s.creationOptions...))
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}

	if err := writeDataset(ds, patch); err != nil {
		_ = ds.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := ds.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}

	s.logger.Debug("patch written", "path", path, "width", patch.Width, "height", patch.Height, "bands", patch.BandCount)
	return nil
}

func writeDataset(ds *godal.Dataset, patch domain.Patch) error {
	if err := ds.SetGeoTransform([6]float64(patch.Transform)); err != nil {
		return fmt.Errorf("set geotransform: %w", err)
	}
	if patch.CRS != "" {
		if err := ds.SetProjection(patch.CRS); err != nil {
			return fmt.Errorf("set projection: %w", err)
		}
	}
	return ds.Write(0, 0, patch.Pixels, patch.Width, patch.Height)
}

// source is an open GDAL dataset.
type source struct {
	ds   *godal.Dataset
	info domain.RasterInfo
}

func (s *source) Info() domain.RasterInfo { return s.info }

// ReadWindow reads all bands of w into a pixel-interleaved buffer of the
// dataset's native type.
func (s *source) ReadWindow(w domain.Window) (domain.Patch, error) {
	if w.Empty() {
		return domain.Patch{}, domain.ErrEmptyWindow
	}
	if w.ColOff < 0 || w.RowOff < 0 || w.ColOff+w.Width > s.info.Width || w.RowOff+w.Height > s.info.Height {
		return domain.Patch{}, fmt.Errorf("window %+v outside %dx%d raster", w, s.info.Width, s.info.Height)
	}

	buf, err := newBuffer(s.info.DataType, w.Width*w.Height*s.info.BandCount)
	if err != nil {
		return domain.Patch{}, err
	}
	if err := s.ds.Read(w.ColOff, w.RowOff, buf, w.Width, w.Height); err != nil {
		return domain.Patch{}, fmt.Errorf("read %s: %w", s.info.Ref, err)
	}

	return domain.Patch{
		Pixels:    buf,
		Width:     w.Width,
		Height:    w.Height,
		BandCount: s.info.BandCount,
		DataType:  s.info.DataType,
		CRS:       s.info.CRS,
		Transform: s.info.Transform.ForWindow(w),
	}, nil
}

func (s *source) Close() error {
	return s.ds.Close()
}

func describe(ref string, ds *godal.Dataset) (domain.RasterInfo, error) {
	st := ds.Structure()

	gt, err := ds.GeoTransform()
	if err != nil {
		return domain.RasterInfo{}, fmt.Errorf("geotransform %s: %w", ref, err)
	}
	b, err := ds.Bounds()
	if err != nil {
		return domain.RasterInfo{}, fmt.Errorf("bounds %s: %w", ref, err)
	}

	return domain.RasterInfo{
		Ref:       ref,
		Bounds:    domain.BoundingBox{Left: b[0], Bottom: b[1], Right: b[2], Top: b[3]},
		CRS:       ds.Projection(),
		BandCount: st.NBands,
		Width:     st.SizeX,
		Height:    st.SizeY,
		DataType:  domain.DataType(st.DataType.String()),
		Transform: domain.GeoTransform(gt),
	}, nil
}

func gdalPath(ref string) string {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return "/vsicurl/" + ref
	}
	return ref
}

var dataTypes = map[domain.DataType]godal.DataType{
	"Byte":    godal.Byte,
	"UInt16":  godal.UInt16,
	"Int16":   godal.Int16,
	"UInt32":  godal.UInt32,
	"Int32":   godal.Int32,
	"Float32": godal.Float32,
	"Float64": godal.Float64,
}

// newBuffer allocates a typed slice matching dt.
func newBuffer(dt domain.DataType, n int) (any, error) {
	gdt, ok := dataTypes[dt]
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnsupportedDataType, dt)
	}
	switch gdt {
	case godal.Byte:
		return make([]byte, n), nil
	case godal.UInt16:
		return make([]uint16, n), nil
	case godal.Int16:
		return make([]int16, n), nil
	case godal.UInt32:
		return make([]uint32, n), nil
	case godal.Int32:
		return make([]int32, n), nil
	case godal.Float32:
		return make([]float32, n), nil
	default:
		return make([]float64, n), nil
	}
}
