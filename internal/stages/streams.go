package stages

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"git.home.luguber.info/inful/tilepipe/internal/artifact"
	"git.home.luguber.info/inful/tilepipe/internal/geo"
	"git.home.luguber.info/inful/tilepipe/internal/grouping"
)

// RasterizeStreams processes one tile-group: it merges the group's vector
// datasets into a single normalized temporary layer reprojected to the
// tiles' coordinate reference and clipped to their union extent, then
// rasterizes that layer once per tile at the tile's own grid. Zero is
// reserved for "no stream". The temporary layer is deleted after the whole
// group is rasterized.
func (r *Runner) RasterizeStreams(ctx context.Context, group grouping.Group) ([]string, error) {
	if len(group.Tiles) == 0 {
		return nil, nil
	}

	outputs := make([]string, 0, len(group.Tiles))
	pending := make([]*geo.RasterInfo, 0, len(group.Tiles))
	union := group.Tiles[0].Extent
	for _, tile := range group.Tiles {
		union = union.Union(tile.Extent)
		output := r.streamRasterPath(tile.Path)
		if r.upToDate(output, tile.Path) {
			r.logger.Debug("Stream raster up to date", "output", output)
			outputs = append(outputs, output)
			continue
		}
		pending = append(pending, tile)
	}
	if len(pending) == 0 {
		return outputs, nil
	}

	attribute := r.Resolved.StreamID(func() string {
		if len(group.Streams) == 0 || len(group.Streams[0].Columns) == 0 {
			return ""
		}
		first := group.Streams[0].Columns[0]
		r.logger.Warn("No stream id column configured, assuming first column", "column", first)
		return first
	})
	if attribute == "" {
		return outputs, fmt.Errorf("could not resolve a stream id column for %s", group.Streams[0].Path)
	}

	epsg := pending[0].EPSG
	sources := make([]string, len(group.Streams))
	for i, s := range group.Streams {
		sources[i] = s.Path
	}

	// Temp layers are never cache-checked: a crash mid-group can leave a
	// stale file behind, so it is overwritten unconditionally.
	merged := filepath.Join(r.WS.TmpDir(), "temp_streams_"+geo.CoordinateName(union)+".gpkg")
	mergeOpts := geo.MergeOptions{
		TargetEPSG: epsg,
		Bounds:     union,
		Columns:    []string{attribute},
	}
	if err := r.Engine.MergeVectors(ctx, merged, sources, mergeOpts); err != nil {
		return outputs, fmt.Errorf("merge stream layers: %w", err)
	}
	defer func() {
		if err := os.Remove(merged); err != nil && !os.IsNotExist(err) {
			r.logger.Warn("Could not remove temporary stream layer", "path", merged, "error", err)
		}
	}()

	for _, tile := range pending {
		output := r.streamRasterPath(tile.Path)
		opts := geo.RasterizeOptions{
			Attribute: attribute,
			Bounds:    tile.Extent,
			Width:     tile.Width,
			Height:    tile.Height,
			NoData:    0,
		}
		if err := r.Engine.Rasterize(ctx, output, merged, opts); err != nil {
			r.logger.Error("Stream rasterization failed", "tile", tile.Path, "error", err)
			continue
		}
		r.Ledger.Record(output, tile.Path)
		outputs = append(outputs, output)
	}
	return outputs, nil
}

func (r *Runner) streamRasterPath(dem string) string {
	return filepath.Join(r.WS.StreamRasterDir(), artifact.Key(dem)+"__strm.tif")
}
