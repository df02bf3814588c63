package stages

import (
	"context"
	"fmt"
	"path/filepath"

	"git.home.luguber.info/inful/tilepipe/internal/artifact"
	"git.home.luguber.info/inful/tilepipe/internal/geo"
	"git.home.luguber.info/inful/tilepipe/internal/tiles"
)

// BufferTile expands a tile's extent by the configured distance and builds a
// virtual mosaic over every source tile intersecting the expanded extent,
// resampled with a kernel suited to elevation data. allSources is the full
// discovered tile set the mosaic may draw from.
func (r *Runner) BufferTile(ctx context.Context, dem string, allSources []string) (string, error) {
	info, err := r.Engine.OpenRaster(ctx, dem)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", dem, err)
	}

	expanded := info.Extent.Buffer(r.Settings.BufferDistance)
	if !info.Projected {
		// Angular-unit buffers can push past the valid coordinate domain.
		expanded = expanded.ClampGeographic()
	}

	output := filepath.Join(r.WS.BufferedDir(), artifact.Key(dem)+"_buff.tif")
	if r.upToDate(output, dem) {
		r.logger.Debug("Buffered tile up to date", "output", output)
		return output, nil
	}

	sources := tiles.FilterByExtent(ctx, r.Engine, allSources, expanded)
	if len(sources) == 0 {
		r.logger.Warn("No source tiles intersect buffered extent", "tile", dem, "extent", expanded)
		return "", nil
	}

	opts := geo.VRTOptions{
		ResampleAlg: geo.ResampleLanczos,
		Bounds:      expanded,
		NoData:      info.NoData,
		HasNoData:   info.HasNoData,
	}
	if err := r.Engine.BuildVRT(ctx, output, sources, opts); err != nil {
		return "", fmt.Errorf("buffer %s: %w", dem, err)
	}
	r.Ledger.Record(output, dem)
	return output, nil
}
