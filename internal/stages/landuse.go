package stages

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/tilepipe/internal/artifact"
	"git.home.luguber.info/inful/tilepipe/internal/config"
	"git.home.luguber.info/inful/tilepipe/internal/errors"
	"git.home.luguber.info/inful/tilepipe/internal/geo"
)

// BuildLandUse assembles a land-cover mosaic aligned to the tile's grid. When
// every intersecting cover file already shares the tile's coordinate reference
// the result is a lightweight virtual mosaic; otherwise the cover is warped
// into a real raster. Class values above the supported ceiling abort the run,
// since a roughness lookup past the table end corrupts the hydraulics.
func (r *Runner) BuildLandUse(ctx context.Context, dem string) (string, error) {
	info, err := r.Engine.OpenRaster(ctx, dem)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", dem, err)
	}

	output := filepath.Join(r.WS.LandUseDir(), artifact.Key(dem)+"__lu.vrt")
	warped := strings.TrimSuffix(output, ".vrt") + ".tif"
	for _, candidate := range []string{output, warped} {
		if r.upToDate(candidate, dem) {
			r.logger.Debug("Land use mosaic up to date", "output", candidate)
			return candidate, nil
		}
	}

	covers, err := r.landUseSources()
	if err != nil {
		return "", err
	}

	matching, coverEPSG, err := r.intersectingCovers(ctx, info, covers)
	if err != nil {
		return "", err
	}
	if len(matching) == 0 {
		r.logger.Warn("No land use files intersect tile", "tile", dem)
		return "", nil
	}

	for _, cover := range matching {
		max, err := r.Engine.RasterMax(ctx, cover)
		if err != nil {
			return "", fmt.Errorf("inspect %s: %w", cover, err)
		}
		if max > float64(config.MaxLandUseClass) {
			return "", errors.New(errors.CategoryValidation, errors.SeverityFatal,
				fmt.Sprintf("land use class %d in %s exceeds the supported maximum of %d",
					int64(max), cover, config.MaxLandUseClass))
		}
	}

	if coverEPSG == info.EPSG {
		opts := geo.VRTOptions{
			ResampleAlg: geo.ResampleNearest,
			Bounds:      info.Extent,
			XRes:        info.XRes,
			YRes:        info.YRes,
		}
		if err := r.Engine.BuildVRT(ctx, output, matching, opts); err != nil {
			return "", fmt.Errorf("land use mosaic for %s: %w", dem, err)
		}
		r.Ledger.Record(output, dem)
		return output, nil
	}

	opts := geo.WarpOptions{
		TargetEPSG: info.EPSG,
		Bounds:     info.Extent,
		XRes:       info.XRes,
		YRes:       info.YRes,
		OutputType: "Byte",
	}
	if err := r.Engine.Warp(ctx, warped, matching, opts); err != nil {
		return "", fmt.Errorf("land use warp for %s: %w", dem, err)
	}
	r.Ledger.Record(warped, dem)
	return warped, nil
}

// landUseSources lists the cover rasters configured for the run. The setting
// may name a single file or a directory of GeoTIFFs.
func (r *Runner) landUseSources() ([]string, error) {
	root := r.Settings.LandUseFolder
	st, err := os.Stat(root)
	if err != nil {
		return nil, errors.ConfigurationError(fmt.Sprintf("land use folder %s: %v", root, err))
	}
	if !st.IsDir() {
		return []string{root}, nil
	}
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, errors.ConfigurationError(fmt.Sprintf("land use folder %s: %v", root, err))
	}
	var covers []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ".tif") {
			covers = append(covers, filepath.Join(root, e.Name()))
		}
	}
	if len(covers) == 0 {
		return nil, errors.ConfigurationError(fmt.Sprintf("no land use rasters found in %s", root))
	}
	return covers, nil
}

// intersectingCovers opens every cover file, verifies they agree on one
// coordinate reference, and keeps those overlapping the tile. The tile extent
// is reprojected into the cover reference when the two differ.
func (r *Runner) intersectingCovers(ctx context.Context, tile *geo.RasterInfo, covers []string) ([]string, int, error) {
	coverEPSG := 0
	tileExtent := tile.Extent
	var matching []string
	for _, cover := range covers {
		ci, err := r.Engine.OpenRaster(ctx, cover)
		if err != nil {
			return nil, 0, fmt.Errorf("open %s: %w", cover, err)
		}
		if coverEPSG == 0 {
			coverEPSG = ci.EPSG
			if coverEPSG != 0 && tile.EPSG != 0 && coverEPSG != tile.EPSG {
				reprojected, err := reprojectExtent(ctx, r.Engine, tile.Extent, tile.EPSG, coverEPSG)
				if err != nil {
					return nil, 0, fmt.Errorf("reproject tile extent: %w", err)
				}
				tileExtent = reprojected
			}
		} else if ci.EPSG != coverEPSG {
			return nil, 0, errors.New(errors.CategoryValidation, errors.SeverityFatal,
				fmt.Sprintf("land use rasters mix coordinate references (%d and %d)", coverEPSG, ci.EPSG))
		}
		if ci.Extent.Overlaps(tileExtent) {
			matching = append(matching, cover)
		}
	}
	return matching, coverEPSG, nil
}

// reprojectExtent maps the four corners of an extent into another coordinate
// reference and returns their bounding box.
func reprojectExtent(ctx context.Context, engine geo.Engine, e geo.Extent, fromEPSG, toEPSG int) (geo.Extent, error) {
	corners := [][2]float64{
		{e.MinX, e.MinY},
		{e.MinX, e.MaxY},
		{e.MaxX, e.MinY},
		{e.MaxX, e.MaxY},
	}
	var out geo.Extent
	for i, c := range corners {
		x, y, err := engine.ReprojectPoint(ctx, c[0], c[1], fromEPSG, toEPSG)
		if err != nil {
			return geo.Extent{}, err
		}
		if i == 0 {
			out = geo.Extent{MinX: x, MinY: y, MaxX: x, MaxY: y}
			continue
		}
		if x < out.MinX {
			out.MinX = x
		}
		if x > out.MaxX {
			out.MaxX = x
		}
		if y < out.MinY {
			out.MinY = y
		}
		if y > out.MaxY {
			out.MaxY = y
		}
	}
	return out, nil
}
