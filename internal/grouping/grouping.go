// Package grouping associates each elevation tile with the stream-network
// datasets it spatially intersects, then groups tiles sharing an identical
// dataset set so a merged temporary layer can be built once per group.
package grouping

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"git.home.luguber.info/inful/tilepipe/internal/geo"
)

// Group is a set of tiles that all intersect exactly the same stream
// datasets.
type Group struct {
	Streams []*geo.VectorInfo
	Tiles   []*geo.RasterInfo
}

// GroupByStreams maps each tile to the datasets its extent overlaps,
// reprojecting the extent corners when the coordinate references differ.
// Tiles that intersect nothing are dropped with a warning; the remainder are
// grouped by identical intersecting set, order-independent.
func GroupByStreams(ctx context.Context, engine geo.Engine, tiles []*geo.RasterInfo, streams []*geo.VectorInfo) []Group {
	groups := make(map[string]*Group)
	var order []string

	for _, tile := range tiles {
		matched := intersectingStreams(ctx, engine, tile, streams)
		if len(matched) == 0 {
			slog.Warn("No stream datasets intersect tile, dropping", "tile", tile.Path)
			continue
		}
		key := groupKey(matched)
		g, ok := groups[key]
		if !ok {
			g = &Group{Streams: matched}
			groups[key] = g
			order = append(order, key)
		}
		g.Tiles = append(g.Tiles, tile)
	}

	out := make([]Group, 0, len(order))
	for _, key := range order {
		out = append(out, *groups[key])
	}
	return out
}

// intersectingStreams returns the datasets whose extent overlaps the tile's,
// in the input order.
func intersectingStreams(ctx context.Context, engine geo.Engine, tile *geo.RasterInfo, streams []*geo.VectorInfo) []*geo.VectorInfo {
	var matched []*geo.VectorInfo
	for _, stream := range streams {
		ext := tile.Extent
		if stream.EPSG != 0 && tile.EPSG != 0 && stream.EPSG != tile.EPSG {
			minX, minY, err := engine.ReprojectPoint(ctx, ext.MinX, ext.MinY, tile.EPSG, stream.EPSG)
			if err != nil {
				slog.Warn("Could not reproject tile corner", "tile", tile.Path, "stream", stream.Path, "error", err)
				continue
			}
			maxX, maxY, err := engine.ReprojectPoint(ctx, ext.MaxX, ext.MaxY, tile.EPSG, stream.EPSG)
			if err != nil {
				slog.Warn("Could not reproject tile corner", "tile", tile.Path, "stream", stream.Path, "error", err)
				continue
			}
			ext = geo.Extent{MinX: minX, MinY: minY, MaxX: maxX, MaxY: maxY}
		}
		if ext.Overlaps(stream.Extent) {
			matched = append(matched, stream)
		}
	}
	return matched
}

// groupKey is an order-independent identity for a set of datasets.
func groupKey(streams []*geo.VectorInfo) string {
	paths := make([]string, len(streams))
	for i, s := range streams {
		paths[i] = s.Path
	}
	sort.Strings(paths)
	return strings.Join(paths, "\x00")
}
