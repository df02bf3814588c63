package stages

import (
	"context"
	"fmt"
	"path/filepath"

	"git.home.luguber.info/inful/tilepipe/internal/artifact"
	"git.home.luguber.info/inful/tilepipe/internal/geo"
)

// CropTile intersects a tile's extent with the global query extent and builds
// a virtual mosaic limited to that intersection.
func (r *Runner) CropTile(ctx context.Context, dem string) (string, error) {
	query, ok := r.Settings.QueryExtent()
	if !ok {
		return "", fmt.Errorf("crop requested without an extent")
	}

	info, err := r.Engine.OpenRaster(ctx, dem)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", dem, err)
	}

	output := filepath.Join(r.WS.CroppedDir(), artifact.Key(dem)+"_crop.tif")
	if r.upToDate(output, dem) {
		r.logger.Debug("Cropped tile up to date", "output", output)
		return output, nil
	}

	opts := geo.VRTOptions{
		ResampleAlg: geo.ResampleNearest,
		Bounds:      info.Extent.Intersect(query),
		NoData:      info.NoData,
		HasNoData:   info.HasNoData,
	}
	if err := r.Engine.BuildVRT(ctx, output, []string{dem}, opts); err != nil {
		return "", fmt.Errorf("crop %s: %w", dem, err)
	}
	r.Ledger.Record(output, dem)
	return output, nil
}
