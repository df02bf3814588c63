package workspace

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateIsIdempotent(t *testing.T) {
	w := New(filepath.Join(t.TempDir(), "work"))
	require.NoError(t, w.Create())
	require.NoError(t, w.Create())

	for _, d := range []string{
		w.BufferedDir(), w.CroppedDir(), w.StreamRasterDir(), w.LandUseDir(),
		w.RowColDir(), w.FlowFileDir(), w.VDTDir(), w.CurveDir(),
		w.ControlFileDir(), w.MetaDir(), w.BathymetryDir(), w.TmpDir(),
	} {
		st, err := os.Stat(d)
		require.NoError(t, err, d)
		assert.True(t, st.IsDir(), d)
	}

	entries, err := os.ReadDir(w.Root)
	require.NoError(t, err)
	var foundMarker bool
	for _, e := range entries {
		if !e.IsDir() {
			foundMarker = true
		}
	}
	assert.True(t, foundMarker, "marker file should exist in workspace root")
}
