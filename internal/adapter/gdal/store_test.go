package gdal

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/airbusgeo/godal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-damage-patches/internal/domain"
	"github.com/couchcryptid/storm-damage-patches/internal/extract"
)

const (
	testSize  = 200
	testBands = 3
)

// 200x200 pixels at 0.001 degrees covering [-0.1, -0.1, 0.1, 0.1].
var testGT = [6]float64{-0.1, 0.001, 0, 0.1, 0, -0.001}

func testStore() *Store {
	return NewStore(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func wgs84(t *testing.T) string {
	t.Helper()
	sr, err := godal.NewSpatialRefFromEPSG(4326)
	require.NoError(t, err)
	defer sr.Close()
	wkt, err := sr.WKT()
	require.NoError(t, err)
	return wkt
}

// writeTestRaster creates a Byte GeoTIFF whose pixel value at (col, row, band)
// is (col + row + band) mod 256.
func writeTestRaster(t *testing.T, path string, gt [6]float64) {
	t.Helper()
	ds, err := godal.Create(godal.GTiff, path, testBands, godal.Byte, testSize, testSize)
	require.NoError(t, err)
	require.NoError(t, ds.SetGeoTransform(gt))
	require.NoError(t, ds.SetProjection(wgs84(t)))

	buf := make([]byte, testSize*testSize*testBands)
	for row := range testSize {
		for col := range testSize {
			for b := range testBands {
				buf[(row*testSize+col)*testBands+b] = byte((col + row + b) % 256)
			}
		}
	}
	require.NoError(t, ds.Write(0, 0, buf, testSize, testSize))
	require.NoError(t, ds.Close())
}

func TestStore_Open(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tile.tif")
	writeTestRaster(t, path, testGT)

	src, err := testStore().Open(context.Background(), path)
	require.NoError(t, err)
	defer src.Close()

	info := src.Info()
	assert.Equal(t, path, info.Ref)
	assert.Equal(t, testBands, info.BandCount)
	assert.Equal(t, testSize, info.Width)
	assert.Equal(t, testSize, info.Height)
	assert.Equal(t, domain.DataType("Byte"), info.DataType)
	assert.Equal(t, domain.GeoTransform(testGT), info.Transform)
	assert.NotEmpty(t, info.CRS)
	assert.InDelta(t, -0.1, info.Bounds.Left, 1e-9)
	assert.InDelta(t, -0.1, info.Bounds.Bottom, 1e-9)
	assert.InDelta(t, 0.1, info.Bounds.Right, 1e-9)
	assert.InDelta(t, 0.1, info.Bounds.Top, 1e-9)
}

func TestStore_OpenMissingAndCorrupt(t *testing.T) {
	dir := t.TempDir()
	store := testStore()

	_, err := store.Open(context.Background(), filepath.Join(dir, "missing.tif"))
	require.Error(t, err)

	corrupt := filepath.Join(dir, "corrupt.tif")
	require.NoError(t, os.WriteFile(corrupt, []byte("not a tiff"), 0o644))
	_, err = store.Open(context.Background(), corrupt)
	require.Error(t, err)
}

func TestStore_OpenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testStore().Open(ctx, "anything.tif")
	require.ErrorIs(t, err, context.Canceled)
}

func TestSource_ReadWindow(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tile.tif")
	writeTestRaster(t, path, testGT)

	src, err := testStore().Open(context.Background(), path)
	require.NoError(t, err)
	defer src.Close()

	w := domain.Window{ColOff: 10, RowOff: 20, Width: 5, Height: 4}
	patch, err := src.ReadWindow(w)
	require.NoError(t, err)

	pixels, ok := patch.Pixels.([]byte)
	require.True(t, ok, "Byte rasters read into []byte")
	require.Len(t, pixels, 5*4*testBands)
	assert.Equal(t, byte(30), pixels[0])
	assert.Equal(t, byte(32), pixels[2])
	// last pixel: col 14, row 23, band 2
	assert.Equal(t, byte(39), pixels[len(pixels)-1])

	assert.InDelta(t, -0.09, patch.Transform[0], 1e-12)
	assert.InDelta(t, 0.08, patch.Transform[3], 1e-12)

	_, err = src.ReadWindow(domain.Window{ColOff: 190, RowOff: 0, Width: 20, Height: 1})
	require.Error(t, err)
	_, err = src.ReadWindow(domain.Window{})
	require.ErrorIs(t, err, domain.ErrEmptyWindow)
}

func TestStore_WritePatchRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tile.tif")
	writeTestRaster(t, path, testGT)
	store := testStore()

	src, err := store.Open(context.Background(), path)
	require.NoError(t, err)
	defer src.Close()

	w := domain.Window{ColOff: 100, RowOff: 100, Width: 8, Height: 6}
	patch, err := src.ReadWindow(w)
	require.NoError(t, err)

	out := filepath.Join(dir, "0-1.tif")
	require.NoError(t, store.WritePatch(context.Background(), out, patch))

	reopened, err := store.Open(context.Background(), out)
	require.NoError(t, err)
	defer reopened.Close()

	info := reopened.Info()
	assert.Equal(t, 8, info.Width)
	assert.Equal(t, 6, info.Height)
	assert.Equal(t, testBands, info.BandCount)
	assert.Equal(t, domain.DataType("Byte"), info.DataType)
	assert.Equal(t, src.Info().CRS, info.CRS)
	assert.InDelta(t, 0.0, info.Transform[0], 1e-12)
	assert.InDelta(t, 0.0, info.Transform[3], 1e-12)

	again, err := reopened.ReadWindow(domain.Window{Width: 8, Height: 6})
	require.NoError(t, err)
	assert.Equal(t, patch.Pixels, again.Pixels)
}

func TestStore_WritePatchUnsupportedType(t *testing.T) {
	err := testStore().WritePatch(context.Background(), filepath.Join(t.TempDir(), "x.tif"), domain.Patch{
		Pixels: []complex64{0}, Width: 1, Height: 1, BandCount: 1, DataType: "CFloat32",
	})
	require.ErrorIs(t, err, domain.ErrUnsupportedDataType)
}

func TestNewBuffer(t *testing.T) {
	tests := []struct {
		dt   domain.DataType
		want any
	}{
		{"Byte", make([]byte, 4)},
		{"UInt16", make([]uint16, 4)},
		{"Int16", make([]int16, 4)},
		{"UInt32", make([]uint32, 4)},
		{"Int32", make([]int32, 4)},
		{"Float32", make([]float32, 4)},
		{"Float64", make([]float64, 4)},
	}
	for _, tt := range tests {
		got, err := newBuffer(tt.dt, 4)
		require.NoError(t, err)
		assert.IsType(t, tt.want, got, string(tt.dt))
	}

	_, err := newBuffer("CInt16", 4)
	require.ErrorIs(t, err, domain.ErrUnsupportedDataType)
}

func TestGdalPath(t *testing.T) {
	assert.Equal(t, "/vsicurl/https://example.com/a.tif", gdalPath("https://example.com/a.tif"))
	assert.Equal(t, "/data/a.tif", gdalPath("/data/a.tif"))
}

// End to end through the extractor with real GeoTIFFs: one readable tile
// covering the origin and one corrupt tile whose bounds also cover it.
func TestExtractor_WithGeoTIFFs(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "good.tif")
	writeTestRaster(t, good, testGT)
	bad := filepath.Join(dir, "bad.tif")
	require.NoError(t, os.WriteFile(bad, []byte("garbage"), 0o644))

	var set domain.SourceSet
	set.Add(domain.ImageSource{Ref: bad}, domain.BoundingBox{Left: -0.1, Bottom: -0.1, Right: 0.1, Top: 0.1})
	set.Add(domain.ImageSource{Ref: good}, domain.BoundingBox{Left: -0.1, Bottom: -0.1, Right: 0.1, Top: 0.1})

	outDir := filepath.Join(dir, "pre")
	require.NoError(t, os.MkdirAll(outDir, 0o755))

	store := testStore()
	ex := extract.New(store, nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	res, err := ex.ExtractPatchesForPoint(context.Background(), set, domain.Point{}, 0, 20, outDir)
	require.NoError(t, err)

	require.Len(t, res.Failures, 1)
	assert.Equal(t, 0, res.Failures[0].Index)
	require.Equal(t, []string{filepath.Join(outDir, "0-2.tif")}, res.Written)

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	patch, err := store.Open(context.Background(), res.Written[0])
	require.NoError(t, err)
	defer patch.Close()

	src, err := store.Open(context.Background(), good)
	require.NoError(t, err)
	defer src.Close()

	assert.Positive(t, patch.Info().Width)
	assert.Positive(t, patch.Info().Height)
	assert.Equal(t, src.Info().CRS, patch.Info().CRS)
	assert.Equal(t, testBands, patch.Info().BandCount)
}
