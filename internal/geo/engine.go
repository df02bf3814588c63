package geo

import "context"

// Resampling algorithms the pipeline requests from the engine. Elevation
// mosaics need a non-nearest kernel; categorical rasters must stay nearest.
const (
	ResampleLanczos = "lanczos"
	ResampleNearest = "nearest"
)

// VRTOptions configures a virtual mosaic build.
type VRTOptions struct {
	ResampleAlg string
	Bounds      Extent
	NoData      float64
	HasNoData   bool
	XRes        float64
	YRes        float64
}

// WarpOptions configures a materialized reprojecting mosaic.
type WarpOptions struct {
	TargetEPSG int
	Bounds     Extent
	XRes       float64
	YRes       float64
	OutputType string // e.g. "Byte" for land-use class rasters
}

// RasterizeOptions configures burning a vector layer into an integer raster.
type RasterizeOptions struct {
	Attribute string
	Bounds    Extent
	Width     int
	Height    int
	NoData    float64
}

// MergeOptions configures merging several vector layers into one normalized
// temporary layer.
type MergeOptions struct {
	TargetEPSG int
	Bounds     Extent   // clip to this extent, in the target reference
	Columns    []string // attribute columns to keep
}

// TranslateOptions configures rewriting a raster with a new storage layout.
type TranslateOptions struct {
	OutputType string // "Byte" or "Float32"
	Predictor  int
	NoData     float64
	HasNoData  bool
}

// Engine is the external geospatial collaborator. All raster and vector
// manipulation is delegated here; the pipeline only sequences calls and
// manages the resulting files.
type Engine interface {
	// OpenRaster reads a raster's extent, CRS, grid, and no-data value.
	OpenRaster(ctx context.Context, path string) (*RasterInfo, error)
	// OpenVector reads a vector dataset's extent, CRS, and attribute columns.
	OpenVector(ctx context.Context, path string) (*VectorInfo, error)
	// BuildVRT builds a virtual mosaic over sources.
	BuildVRT(ctx context.Context, output string, sources []string, opts VRTOptions) error
	// Warp builds a materialized, reprojected mosaic over sources.
	Warp(ctx context.Context, output string, sources []string, opts WarpOptions) error
	// Rasterize burns a vector layer attribute into an integer raster. Zero is
	// reserved for "no feature".
	Rasterize(ctx context.Context, output, layer string, opts RasterizeOptions) error
	// MergeVectors merges source layers into one reprojected, clipped layer.
	MergeVectors(ctx context.Context, output string, sources []string, opts MergeOptions) error
	// ReprojectPoint transforms a single coordinate between references.
	ReprojectPoint(ctx context.Context, x, y float64, fromEPSG, toEPSG int) (float64, float64, error)
	// ReadNonZeroCells returns every nonzero cell of a single-band raster.
	ReadNonZeroCells(ctx context.Context, path string) ([]Cell, error)
	// RasterMax returns the maximum cell value of a single-band raster.
	RasterMax(ctx context.Context, path string) (float64, error)
	// Translate rewrites a raster with new type, compression, and no-data.
	Translate(ctx context.Context, output, source string, opts TranslateOptions) error
}
