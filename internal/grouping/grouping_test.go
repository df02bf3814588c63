package grouping

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/tilepipe/internal/geo"
	"git.home.luguber.info/inful/tilepipe/internal/geo/geotest"
)

func TestGroupByStreams(t *testing.T) {
	dir := t.TempDir()
	engine := geotest.NewFakeEngine()

	west := &geo.VectorInfo{Path: filepath.Join(dir, "west.gpkg"), EPSG: 4326,
		Extent: geo.Extent{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}}
	east := &geo.VectorInfo{Path: filepath.Join(dir, "east.gpkg"), EPSG: 4326,
		Extent: geo.Extent{MinX: 10, MinY: 0, MaxX: 20, MaxY: 10}}

	// Two tiles inside west only, one straddling both, one outside all.
	t1 := &geo.RasterInfo{Path: filepath.Join(dir, "t1.tif"), EPSG: 4326,
		Extent: geo.Extent{MinX: 1, MinY: 1, MaxX: 3, MaxY: 3}}
	t2 := &geo.RasterInfo{Path: filepath.Join(dir, "t2.tif"), EPSG: 4326,
		Extent: geo.Extent{MinX: 4, MinY: 4, MaxX: 6, MaxY: 6}}
	straddle := &geo.RasterInfo{Path: filepath.Join(dir, "mid.tif"), EPSG: 4326,
		Extent: geo.Extent{MinX: 8, MinY: 1, MaxX: 12, MaxY: 3}}
	orphan := &geo.RasterInfo{Path: filepath.Join(dir, "far.tif"), EPSG: 4326,
		Extent: geo.Extent{MinX: 100, MinY: 100, MaxX: 110, MaxY: 110}}

	groups := GroupByStreams(context.Background(), engine,
		[]*geo.RasterInfo{t1, t2, straddle, orphan},
		[]*geo.VectorInfo{west, east})

	require.Len(t, groups, 2)

	// t1 and t2 share the {west} set and land in one group.
	assert.Equal(t, []*geo.RasterInfo{t1, t2}, groups[0].Tiles)
	assert.Equal(t, []*geo.VectorInfo{west}, groups[0].Streams)

	// The straddling tile needs both datasets.
	assert.Equal(t, []*geo.RasterInfo{straddle}, groups[1].Tiles)
	assert.Len(t, groups[1].Streams, 2)
}

func TestGroupKeyOrderIndependent(t *testing.T) {
	a := &geo.VectorInfo{Path: "/a.gpkg"}
	b := &geo.VectorInfo{Path: "/b.gpkg"}
	assert.Equal(t, groupKey([]*geo.VectorInfo{a, b}), groupKey([]*geo.VectorInfo{b, a}))
	assert.NotEqual(t, groupKey([]*geo.VectorInfo{a}), groupKey([]*geo.VectorInfo{a, b}))
}

func TestGroupByStreamsReprojects(t *testing.T) {
	dir := t.TempDir()
	engine := geotest.NewFakeEngine()

	// Fake engine reprojects as identity, so a differing EPSG still matches
	// when the raw extents overlap; the point is that the reprojection path
	// runs without error.
	stream := &geo.VectorInfo{Path: filepath.Join(dir, "s.gpkg"), EPSG: 3857,
		Extent: geo.Extent{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}}
	tile := &geo.RasterInfo{Path: filepath.Join(dir, "t.tif"), EPSG: 4326,
		Extent: geo.Extent{MinX: 1, MinY: 1, MaxX: 2, MaxY: 2}}

	groups := GroupByStreams(context.Background(), engine,
		[]*geo.RasterInfo{tile}, []*geo.VectorInfo{stream})
	require.Len(t, groups, 1)
	assert.Equal(t, []*geo.RasterInfo{tile}, groups[0].Tiles)
}
