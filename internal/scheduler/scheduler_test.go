package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/tilepipe/internal/config"
	"git.home.luguber.info/inful/tilepipe/internal/geo"
	"git.home.luguber.info/inful/tilepipe/internal/geo/geotest"
	"git.home.luguber.info/inful/tilepipe/internal/workspace"
)

type fixture struct {
	settings *config.Settings
	engine   *geotest.FakeEngine
	ws       *workspace.Workspace
	tiles    []*geo.RasterInfo
}

// newFixture lays out a two-tile run: both tiles overlap one stream network
// dataset, a land-use cover spans both, and both flow tables reference the
// stream identifiers burned into the fake rasters.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	engine := geotest.NewFakeEngine()

	demDir := filepath.Join(root, "dems")
	streamDir := filepath.Join(root, "streams")
	luDir := filepath.Join(root, "landuse")
	for _, d := range []string{demDir, streamDir, luDir} {
		require.NoError(t, os.MkdirAll(d, 0o755))
	}

	a := &geo.RasterInfo{
		Path:   filepath.Join(demDir, "N10W020.tif"),
		Extent: geo.Extent{MinX: -20, MinY: 10, MaxX: -19, MaxY: 11},
		EPSG:   4326, XRes: 0.01, YRes: 0.01, Width: 100, Height: 100, UnitName: "degree",
	}
	b := &geo.RasterInfo{
		Path:   filepath.Join(demDir, "N11W020.tif"),
		Extent: geo.Extent{MinX: -20, MinY: 11, MaxX: -19, MaxY: 12},
		EPSG:   4326, XRes: 0.01, YRes: 0.01, Width: 100, Height: 100, UnitName: "degree",
	}
	engine.AddRaster(a)
	engine.AddRaster(b)

	engine.AddVector(&geo.VectorInfo{
		Path:    filepath.Join(streamDir, "network.gpkg"),
		Extent:  geo.Extent{MinX: -21, MinY: 9, MaxX: -18, MaxY: 13},
		EPSG:    4326,
		Columns: []string{"LINKNO", "strmOrder"},
	})

	cover := &geo.RasterInfo{
		Path:   filepath.Join(luDir, "cover.tif"),
		Extent: geo.Extent{MinX: -25, MinY: 5, MaxX: -15, MaxY: 15},
		EPSG:   4326, XRes: 0.01, YRes: 0.01, Width: 1000, Height: 1000, UnitName: "degree",
	}
	engine.AddRaster(cover)
	engine.Maxima[cover.Path] = 80

	simFlow := filepath.Join(root, "flows.csv")
	require.NoError(t, os.WriteFile(simFlow, []byte("LINKNO,qout_max\n101,5.5\n202,7.0\n"), 0o644))
	floodFlow := filepath.Join(root, "flood.csv")
	require.NoError(t, os.WriteFile(floodFlow, []byte("LINKNO,rp100\n101,12.5\n202,8.8\n"), 0o644))

	settings := config.Defaults()
	settings.DataDir = filepath.Join(root, "work")
	settings.DEMFolder = demDir
	settings.StreamNetworkFolder = streamDir
	settings.LandUseFolder = luDir
	settings.SimulationFlowFile = simFlow
	settings.FloodFlowFile = floodFlow
	require.NoError(t, settings.Validate())

	ws := workspace.New(settings.DataDir)
	for _, tile := range []*geo.RasterInfo{a, b} {
		strm := filepath.Join(ws.StreamRasterDir(), tileKey(tile.Path)+"__strm.tif")
		engine.Cells[strm] = []geo.Cell{
			{Row: 0, Col: 0, Value: 101},
			{Row: 1, Col: 1, Value: 202},
		}
	}

	return &fixture{settings: settings, engine: engine, ws: ws, tiles: []*geo.RasterInfo{a, b}}
}

func tileKey(path string) string {
	base := filepath.Base(path)
	return base[:len(base)-len(filepath.Ext(base))]
}

func TestRunFullPipeline(t *testing.T) {
	fx := newFixture(t)
	s := New(fx.settings, fx.engine).WithWorkers(2)

	report, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "success", report.Outcome)
	assert.Equal(t, 2, report.Tiles)
	assert.Equal(t, 1, report.Groups)
	assert.Equal(t, 2, report.Bundles)
	assert.Equal(t, 2, report.ControlFiles)
	assert.NotEmpty(t, report.RunID)
	assert.Zero(t, report.FailedCount())

	stages := report.Stages()
	assert.Equal(t, 2, stages["streams"].Succeeded)
	assert.Equal(t, 2, stages["landuse"].Succeeded)
	assert.Equal(t, 2, stages["rowcol"].Succeeded)
	assert.Equal(t, 2, stages["floodflow"].Succeeded)
	assert.Equal(t, 2, stages["controlfile"].Succeeded)

	// One merged layer serves the whole group.
	assert.Len(t, fx.engine.CallsFor("MergeVectors"), 1)
	assert.Len(t, fx.engine.CallsFor("Rasterize"), 2)

	// Control files landed in the workspace.
	entries, err := os.ReadDir(fx.ws.ControlFileDir())
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	// Ledger persisted for the next run.
	_, err = os.Stat(fx.ws.LedgerPath())
	assert.NoError(t, err)
}

func TestRunIsIdempotent(t *testing.T) {
	fx := newFixture(t)
	s := New(fx.settings, fx.engine).WithWorkers(2)

	_, err := s.Run(context.Background())
	require.NoError(t, err)
	rasterizes := len(fx.engine.CallsFor("Rasterize"))
	vrts := len(fx.engine.CallsFor("BuildVRT"))

	report, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "success", report.Outcome)

	// The second run finds every artifact current and touches nothing.
	assert.Len(t, fx.engine.CallsFor("Rasterize"), rasterizes)
	assert.Len(t, fx.engine.CallsFor("BuildVRT"), vrts)
	assert.Len(t, fx.engine.CallsFor("MergeVectors"), 1)
}

func TestRunAbortsOnLandUseClassViolation(t *testing.T) {
	fx := newFixture(t)
	for path := range fx.engine.Maxima {
		fx.engine.Maxima[path] = 250
	}
	s := New(fx.settings, fx.engine).WithWorkers(2)

	report, err := s.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, "failed", report.Outcome)
}

func TestRunFailsWithoutStreams(t *testing.T) {
	fx := newFixture(t)
	fx.settings.StreamNetworkFolder = t.TempDir()
	s := New(fx.settings, fx.engine)

	_, err := s.Run(context.Background())
	require.Error(t, err)
}

func TestRunFailsWithoutTiles(t *testing.T) {
	fx := newFixture(t)
	fx.settings.DEMFolder = t.TempDir()
	s := New(fx.settings, fx.engine)

	_, err := s.Run(context.Background())
	require.Error(t, err)
}

func TestRunSkipsRowColWithoutArrayReader(t *testing.T) {
	fx := newFixture(t)
	nc := filepath.Join(filepath.Dir(fx.settings.SimulationFlowFile), "flows.nc")
	require.NoError(t, os.WriteFile(nc, []byte("netcdf"), 0o644))
	fx.settings.SimulationFlowFile = nc
	s := New(fx.settings, fx.engine).WithWorkers(2)

	// Without a scientific-array reader the index stage degrades to a
	// skip; the run itself still succeeds.
	report, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "success", report.Outcome)
	assert.Zero(t, report.FailedCount())
	assert.Equal(t, 2, report.Stages()["rowcol"].Skipped)
}

func TestRunOptimizeGatedOnCleanOutputs(t *testing.T) {
	fx := newFixture(t)
	fx.settings.SolverPath = "true"
	fx.settings.Bathymetry.Enabled = true

	// Bathymetry rasters left by an earlier run are optimization
	// candidates once the sweep is enabled.
	require.NoError(t, os.MkdirAll(fx.ws.BathymetryDir(), 0o755))
	for _, tile := range fx.tiles {
		p := filepath.Join(fx.ws.BathymetryDir(), tileKey(tile.Path)+"__ar_bathy.tif")
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	}

	report, err := New(fx.settings, fx.engine).WithWorkers(2).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "success", report.Outcome)
	assert.Empty(t, fx.engine.CallsFor("Translate"))

	fx.settings.CleanOutputs = true
	_, err = New(fx.settings, fx.engine).WithWorkers(2).Run(context.Background())
	require.NoError(t, err)
	assert.Len(t, fx.engine.CallsFor("Translate"), 2)
}

func TestRunWithBuffering(t *testing.T) {
	fx := newFixture(t)
	fx.settings.BufferFiles = true
	s := New(fx.settings, fx.engine).WithWorkers(2)

	report, err := s.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, report.Stages()["buffer"].Succeeded)

	entries, err := os.ReadDir(fx.ws.BufferedDir())
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}
