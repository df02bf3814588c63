// Package geo defines the types and collaborator interfaces the pipeline uses
// to talk to an external geospatial raster/vector engine. The pipeline never
// does raster math itself; it only reasons about extents, coordinate
// references, and file paths.
package geo

// Extent is an axis-aligned bounding box in the units of some coordinate
// reference system.
type Extent struct {
	MinX float64 `json:"minx"`
	MinY float64 `json:"miny"`
	MaxX float64 `json:"maxx"`
	MaxY float64 `json:"maxy"`
}

// Overlaps reports whether two extents overlap. Touching edges count as
// overlapping: each box's minimum bound may equal the other's maximum bound.
func (e Extent) Overlaps(other Extent) bool {
	return other.MinX <= e.MaxX && other.MaxX >= e.MinX &&
		other.MinY <= e.MaxY && other.MaxY >= e.MinY
}

// Intersect returns the intersection of two extents. Only meaningful when the
// extents overlap.
func (e Extent) Intersect(other Extent) Extent {
	return Extent{
		MinX: max(e.MinX, other.MinX),
		MinY: max(e.MinY, other.MinY),
		MaxX: min(e.MaxX, other.MaxX),
		MaxY: min(e.MaxY, other.MaxY),
	}
}

// Union returns the smallest extent covering both inputs.
func (e Extent) Union(other Extent) Extent {
	return Extent{
		MinX: min(e.MinX, other.MinX),
		MinY: min(e.MinY, other.MinY),
		MaxX: max(e.MaxX, other.MaxX),
		MaxY: max(e.MaxY, other.MaxY),
	}
}

// Buffer expands the extent by distance on every side.
func (e Extent) Buffer(distance float64) Extent {
	return Extent{
		MinX: e.MinX - distance,
		MinY: e.MinY - distance,
		MaxX: e.MaxX + distance,
		MaxY: e.MaxY + distance,
	}
}

// ClampGeographic clamps the extent to the valid geographic coordinate domain.
// Applied after buffering tiles whose buffer distance is in angular units.
func (e Extent) ClampGeographic() Extent {
	return Extent{
		MinX: max(e.MinX, -180),
		MinY: max(e.MinY, -90),
		MaxX: min(e.MaxX, 180),
		MaxY: min(e.MaxY, 90),
	}
}

// IsZero reports whether the extent is the zero value.
func (e Extent) IsZero() bool {
	return e == Extent{}
}
