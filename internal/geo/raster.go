package geo

// RasterInfo describes an opened raster: its location, spatial extent,
// coordinate reference, grid geometry, and no-data value. Immutable once
// read; derived rasters get a fresh RasterInfo with a new path.
type RasterInfo struct {
	Path      string
	Extent    Extent
	EPSG      int
	XRes      float64
	YRes      float64
	Width     int
	Height    int
	NoData    float64
	HasNoData bool
	Projected bool
	// UnitName is the CRS unit name as reported by the engine, e.g. "metre",
	// "kilometre", or "degree".
	UnitName string
}

// VectorInfo describes a vector dataset: its location, extent, coordinate
// reference, and non-geometry attribute columns. Read-only; the pipeline
// never mutates source vector files.
type VectorInfo struct {
	Path    string
	Extent  Extent
	EPSG    int
	Columns []string
}

// Cell is one nonzero raster cell, used to join stream rasters against flow
// tables. Value space is the stream identifier space.
type Cell struct {
	Row   int
	Col   int
	Value int64
}
