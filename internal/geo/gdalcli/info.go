package gdalcli

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"git.home.luguber.info/inful/tilepipe/internal/geo"
)

// gdalinfo -json fields the pipeline cares about. Everything else in the
// report is ignored.
type rasterReport struct {
	Size         []int     `json:"size"`
	GeoTransform []float64 `json:"geoTransform"`
	Bands        []struct {
		NoDataValue *float64 `json:"noDataValue"`
	} `json:"bands"`
	CoordinateSystem struct {
		ProjJSON json.RawMessage `json:"projjson"`
	} `json:"coordinateSystem"`
}

// ogrinfo -json fields.
type vectorReport struct {
	Layers []struct {
		Fields []struct {
			Name string `json:"name"`
		} `json:"fields"`
		GeometryFields []struct {
			Extent           []float64 `json:"extent"`
			CoordinateSystem struct {
				ProjJSON json.RawMessage `json:"projjson"`
			} `json:"coordinateSystem"`
		} `json:"geometryFields"`
	} `json:"layers"`
}

// projRef is the subset of PROJJSON needed to classify a CRS: its type, its
// EPSG code, and its axis units.
type projRef struct {
	Type string `json:"type"`
	ID   struct {
		Authority string          `json:"authority"`
		Code      json.RawMessage `json:"code"`
	} `json:"id"`
	CoordinateSystem struct {
		Axis []struct {
			Unit json.RawMessage `json:"unit"`
		} `json:"axis"`
	} `json:"coordinate_system"`
	BaseCRS *projRef `json:"base_crs"`
}

// OpenRaster reads raster metadata with gdalinfo -json.
func (e *Engine) OpenRaster(ctx context.Context, path string) (*geo.RasterInfo, error) {
	out, err := e.run(ctx, "gdalinfo", "-json", path)
	if err != nil {
		return nil, err
	}
	var rep rasterReport
	if err := json.Unmarshal(out, &rep); err != nil {
		return nil, fmt.Errorf("parse gdalinfo output for %s: %w", path, err)
	}
	if len(rep.Size) != 2 || len(rep.GeoTransform) != 6 {
		return nil, fmt.Errorf("incomplete gdalinfo report for %s", path)
	}

	gt := rep.GeoTransform
	width, height := rep.Size[0], rep.Size[1]
	minX := gt[0]
	maxY := gt[3]
	maxX := minX + gt[1]*float64(width)
	minY := maxY + gt[5]*float64(height)

	info := &geo.RasterInfo{
		Path:   path,
		Extent: geo.Extent{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY},
		XRes:   math.Abs(gt[1]),
		YRes:   math.Abs(gt[5]),
		Width:  width,
		Height: height,
	}
	if len(rep.Bands) > 0 && rep.Bands[0].NoDataValue != nil {
		info.NoData = *rep.Bands[0].NoDataValue
		info.HasNoData = true
	}
	if err := applyCRS(info, rep.CoordinateSystem.ProjJSON); err != nil {
		return nil, fmt.Errorf("read CRS of %s: %w", path, err)
	}
	return info, nil
}

// OpenVector reads vector metadata with ogrinfo -json -so.
func (e *Engine) OpenVector(ctx context.Context, path string) (*geo.VectorInfo, error) {
	out, err := e.run(ctx, "ogrinfo", "-json", "-so", path)
	if err != nil {
		return nil, err
	}
	var rep vectorReport
	if err := json.Unmarshal(out, &rep); err != nil {
		return nil, fmt.Errorf("parse ogrinfo output for %s: %w", path, err)
	}
	if len(rep.Layers) == 0 {
		return nil, fmt.Errorf("no layers in %s", path)
	}
	layer := rep.Layers[0]

	info := &geo.VectorInfo{Path: path}
	for _, f := range layer.Fields {
		info.Columns = append(info.Columns, f.Name)
	}
	if len(layer.GeometryFields) > 0 {
		gf := layer.GeometryFields[0]
		if len(gf.Extent) == 4 {
			info.Extent = geo.Extent{MinX: gf.Extent[0], MinY: gf.Extent[1], MaxX: gf.Extent[2], MaxY: gf.Extent[3]}
		}
		var ref projRef
		if err := json.Unmarshal(gf.CoordinateSystem.ProjJSON, &ref); err == nil {
			info.EPSG = epsgCode(&ref)
		}
	}
	return info, nil
}

// ReadNonZeroCells streams the raster through gdal_translate's XYZ driver and
// keeps the nonzero cells. XYZ output is row-major scan order, so the cell
// index recovers row and column without reading the geotransform twice.
func (e *Engine) ReadNonZeroCells(ctx context.Context, path string) ([]geo.Cell, error) {
	info, err := e.OpenRaster(ctx, path)
	if err != nil {
		return nil, err
	}
	out, err := e.run(ctx, "gdal_translate", "-of", "XYZ", path, "/vsistdout/")
	if err != nil {
		return nil, err
	}

	var cells []geo.Cell
	idx := 0
	for _, line := range strings.Split(string(out), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 3 {
			continue
		}
		v, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return nil, fmt.Errorf("parse cell value in %s: %w", path, err)
		}
		if v != 0 {
			cells = append(cells, geo.Cell{
				Row:   idx / info.Width,
				Col:   idx % info.Width,
				Value: int64(v),
			})
		}
		idx++
	}
	return cells, nil
}

// RasterMax reads the band maximum from gdalinfo -stats.
func (e *Engine) RasterMax(ctx context.Context, path string) (float64, error) {
	out, err := e.run(ctx, "gdalinfo", "-json", "-stats", path)
	if err != nil {
		return 0, err
	}
	var rep struct {
		Bands []struct {
			Maximum *float64 `json:"maximum"`
		} `json:"bands"`
	}
	if err := json.Unmarshal(out, &rep); err != nil {
		return 0, fmt.Errorf("parse gdalinfo stats for %s: %w", path, err)
	}
	if len(rep.Bands) == 0 || rep.Bands[0].Maximum == nil {
		return 0, fmt.Errorf("no band statistics for %s", path)
	}
	return *rep.Bands[0].Maximum, nil
}

// applyCRS fills EPSG, Projected, and UnitName from a PROJJSON document.
func applyCRS(info *geo.RasterInfo, projjson json.RawMessage) error {
	if len(projjson) == 0 {
		return fmt.Errorf("no coordinate system")
	}
	var ref projRef
	if err := json.Unmarshal(projjson, &ref); err != nil {
		return err
	}
	info.EPSG = epsgCode(&ref)
	info.Projected = strings.Contains(strings.ToLower(ref.Type), "projected")
	info.UnitName = axisUnit(&ref)
	return nil
}

func epsgCode(ref *projRef) int {
	if ref.ID.Authority == "EPSG" {
		// Code may be a JSON number or string depending on the writer.
		var n int
		if err := json.Unmarshal(ref.ID.Code, &n); err == nil {
			return n
		}
		var s string
		if err := json.Unmarshal(ref.ID.Code, &s); err == nil {
			if n, err := strconv.Atoi(s); err == nil {
				return n
			}
		}
	}
	if ref.BaseCRS != nil {
		return epsgCode(ref.BaseCRS)
	}
	return 0
}

func axisUnit(ref *projRef) string {
	for _, axis := range ref.CoordinateSystem.Axis {
		if len(axis.Unit) == 0 {
			continue
		}
		// Unit is either a bare string ("metre") or an object with a name.
		var s string
		if err := json.Unmarshal(axis.Unit, &s); err == nil {
			return s
		}
		var obj struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(axis.Unit, &obj); err == nil && obj.Name != "" {
			return obj.Name
		}
	}
	if ref.BaseCRS != nil {
		return axisUnit(ref.BaseCRS)
	}
	return ""
}
