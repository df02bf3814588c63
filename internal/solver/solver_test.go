package solver

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/tilepipe/internal/config"
	"git.home.luguber.info/inful/tilepipe/internal/fingerprint"
	"git.home.luguber.info/inful/tilepipe/internal/geo/geotest"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name   string
		output string
		failed bool
	}{
		{"clean run", "reading inputs\nwriting vdt\ndone\n", false},
		{"plain error", "opening raster\nERROR 4: could not open file\n", true},
		{"lowercase error", "error: bad allocation\n", true},
		{"problems banner", "PROBLEMS were encountered\n", true},
		{"perimeter progress", "Wetted Perimeter error tolerance met\n", false},
		{"area progress", "Cross-Section Area error: 0.001\n", false},
		{"finder progress", "Low Spot Finder error: ok\n", false},
		{"empty output", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, failed := classify(tt.output)
			assert.Equal(t, tt.failed, failed)
		})
	}
}

func newTestRunner(t *testing.T) (*Runner, string) {
	t.Helper()
	root := t.TempDir()
	settings := config.Defaults()
	settings.DataDir = root
	ledger := fingerprint.NewLedger(filepath.Join(root, ".file_metadata.json"))
	return NewRunner(settings, ledger), root
}

func writeControl(t *testing.T, root string, lines ...string) string {
	t.Helper()
	path := filepath.Join(root, "tile__mifn.txt")
	content := ""
	for _, l := range lines {
		content += l + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRunSolverSkipsCurrentTable(t *testing.T) {
	r, root := newTestRunner(t)
	vdt := filepath.Join(root, "tile__vdt.txt")
	control := writeControl(t, root, "DEM_File\t/x/dem.tif", "Print_VDT_Database\t"+vdt)
	require.NoError(t, os.WriteFile(vdt, []byte("vdt"), 0o644))
	r.Ledger.Record(vdt, control)

	// The solver path points nowhere; a skip must never reach it.
	r.Settings.SolverPath = filepath.Join(root, "missing-solver")
	require.NoError(t, r.RunSolver(context.Background(), control))
}

func TestRunSolverRequiresTableCard(t *testing.T) {
	r, root := newTestRunner(t)
	control := writeControl(t, root, "DEM_File\t/x/dem.tif")
	require.Error(t, r.RunSolver(context.Background(), control))
}

func TestRunFloodSpreaderNoMapsRequested(t *testing.T) {
	r, root := newTestRunner(t)
	control := writeControl(t, root, "DEM_File\t/x/dem.tif")
	r.Settings.FloodSpreaderPath = filepath.Join(root, "missing-spreader")
	require.NoError(t, r.RunFloodSpreader(context.Background(), control))
}

func TestRunFloodSpreaderSkipsCurrentMaps(t *testing.T) {
	r, root := newTestRunner(t)
	flood := filepath.Join(root, "tile__flood.tif")
	depth := filepath.Join(root, "tile__depth.tif")
	control := writeControl(t, root, "OutFLD\t"+flood, "OutDEP\t"+depth)
	require.NoError(t, os.WriteFile(flood, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(depth, []byte("x"), 0o644))
	r.Ledger.Record(flood, control)
	r.Ledger.Record(depth, control)

	r.Settings.FloodSpreaderPath = filepath.Join(root, "missing-spreader")
	require.NoError(t, r.RunFloodSpreader(context.Background(), control))
}

func TestRunFloodSpreaderRemovesStaleMaps(t *testing.T) {
	r, root := newTestRunner(t)
	flood := filepath.Join(root, "tile__flood.tif")
	depth := filepath.Join(root, "tile__depth.tif")
	control := writeControl(t, root, "OutFLD\t"+flood, "OutDEP\t"+depth)

	// Only the flood map survives from an earlier run and its fingerprint
	// was never recorded, so the pass must rerun and clear it first.
	require.NoError(t, os.WriteFile(flood, []byte("stale"), 0o644))

	r.Settings.FloodSpreaderPath = filepath.Join(root, "missing-spreader")
	require.Error(t, r.RunFloodSpreader(context.Background(), control))

	_, err := os.Stat(flood)
	assert.True(t, os.IsNotExist(err))
}

func TestOptimizeOutputs(t *testing.T) {
	r, root := newTestRunner(t)
	engine := geotest.NewFakeEngine()

	flood := filepath.Join(root, "tile__flood.tif")
	wse := filepath.Join(root, "tile__wse.tif")
	require.NoError(t, os.WriteFile(flood, []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(wse, []byte("x"), 0o644))
	missing := filepath.Join(root, "never_made.tif")

	require.NoError(t, r.OptimizeOutputs(context.Background(), engine, []string{flood, wse, missing}))
	require.Len(t, engine.CallsFor("Translate"), 2)

	// Optimized files are fingerprinted and skipped next time.
	require.NoError(t, r.OptimizeOutputs(context.Background(), engine, []string{flood, wse}))
	assert.Len(t, engine.CallsFor("Translate"), 2)
}

func TestTranslateOptions(t *testing.T) {
	flood := translateOptions("/out/tile__flood.tif")
	assert.Equal(t, "Byte", flood.OutputType)
	assert.Equal(t, 2, flood.Predictor)
	assert.Equal(t, float64(0), flood.NoData)

	depth := translateOptions("/out/tile__depth.tif")
	assert.Equal(t, "Float32", depth.OutputType)
	assert.Equal(t, 3, depth.Predictor)

	wse := translateOptions("/out/tile__wse.tif")
	assert.Equal(t, float64(-9999), wse.NoData)

	bathy := translateOptions("/out/tile__ar_bathy.tif")
	assert.Equal(t, float64(-9999), bathy.NoData)
}
