package tiles

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pipeerrors "git.home.luguber.info/inful/tilepipe/internal/errors"
	"git.home.luguber.info/inful/tilepipe/internal/geo"
	"git.home.luguber.info/inful/tilepipe/internal/geo/geotest"
)

func touch(t *testing.T, path string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
	return path
}

func TestDiscoverWalksRecursively(t *testing.T) {
	dir := t.TempDir()
	a := touch(t, filepath.Join(dir, "a.tif"))
	b := touch(t, filepath.Join(dir, "nested", "b.TIF"))
	v := touch(t, filepath.Join(dir, "c.vrt"))
	touch(t, filepath.Join(dir, "notes.txt"))
	touch(t, filepath.Join(dir, "streams.gpkg"))

	got, err := Discover(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a, b, v}, got)
}

func TestDiscoverSingleFile(t *testing.T) {
	path := touch(t, filepath.Join(t.TempDir(), "only.tif"))
	got, err := Discover(path)
	require.NoError(t, err)
	assert.Equal(t, []string{path}, got)
}

func TestDiscoverMissingRoot(t *testing.T) {
	_, err := Discover(filepath.Join(t.TempDir(), "absent"))
	require.Error(t, err)
	assert.True(t, pipeerrors.IsCategory(err, pipeerrors.CategoryConfig))
}

func TestDiscoverVectors(t *testing.T) {
	dir := t.TempDir()
	shp := touch(t, filepath.Join(dir, "a.shp"))
	gpkg := touch(t, filepath.Join(dir, "b.gpkg"))
	pq := touch(t, filepath.Join(dir, "c.parquet"))
	touch(t, filepath.Join(dir, "d.tif"))
	touch(t, filepath.Join(dir, "sub", "ignored.shp"))

	got, err := DiscoverVectors(dir)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{shp, gpkg, pq}, got)
}

func TestFilterByExtent(t *testing.T) {
	dir := t.TempDir()
	engine := geotest.NewFakeEngine()

	in := filepath.Join(dir, "in.tif")
	edge := filepath.Join(dir, "edge.tif")
	out := filepath.Join(dir, "out.tif")
	engine.AddRaster(&geo.RasterInfo{Path: in, Extent: geo.Extent{MinX: 0, MinY: 0, MaxX: 5, MaxY: 5}})
	engine.AddRaster(&geo.RasterInfo{Path: edge, Extent: geo.Extent{MinX: 10, MinY: 10, MaxX: 20, MaxY: 20}})
	engine.AddRaster(&geo.RasterInfo{Path: out, Extent: geo.Extent{MinX: 10.0001, MinY: 10, MaxX: 20, MaxY: 20}})

	query := geo.Extent{MinX: 0, MinY: 0, MaxX: 10, MaxY: 10}
	got := FilterByExtent(context.Background(), engine, []string{in, edge, out, "unopenable.tif"}, query)
	assert.Equal(t, []string{in, edge}, got)
}
