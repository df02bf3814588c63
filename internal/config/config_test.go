package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pipeerrors "git.home.luguber.info/inful/tilepipe/internal/errors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
data_dir: ./work
dem_folder: ./dems
stream_network_folder: ./streams
`)
	s, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultBufferDistance, s.BufferDistance)
	assert.Equal(t, DefaultNumIterations, s.Solver.NumIterations)
	assert.Equal(t, DefaultQLimit, s.Solver.QLimit)
	assert.Equal(t, 1, s.Solver.UsePrevD4XS)
	assert.Equal(t, DefaultTwdFactor, s.Spreader.TwdFactor)
	assert.True(t, filepath.IsAbs(s.DataDir))
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := writeConfig(t, `
stream_network_folder: ./streams
dem_foldr: ./dems
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.True(t, pipeerrors.IsCategory(err, pipeerrors.CategoryConfig))
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.True(t, pipeerrors.IsCategory(err, pipeerrors.CategoryConfig))
	assert.True(t, pipeerrors.IsFatal(err))
}

func TestValidateExtent(t *testing.T) {
	s := Defaults()
	s.DataDir = t.TempDir()
	s.StreamNetworkFolder = "./streams"
	s.Extent = []float64{1, 2, 3}
	require.Error(t, s.Validate())

	s.Extent = []float64{3, 2, 1, 4}
	require.Error(t, s.Validate())

	s.Extent = []float64{1, 2, 3, 4}
	require.NoError(t, s.Validate())

	ext, ok := s.QueryExtent()
	require.True(t, ok)
	assert.Equal(t, 1.0, ext.MinX)
	assert.Equal(t, 4.0, ext.MaxY)
}

func TestValidateCropRequiresExtent(t *testing.T) {
	s := Defaults()
	s.DataDir = t.TempDir()
	s.StreamNetworkFolder = "./streams"
	s.Crop = true
	require.Error(t, s.Validate())
}

func TestValidateRequiresStreamFolder(t *testing.T) {
	s := Defaults()
	s.DataDir = t.TempDir()
	err := s.Validate()
	require.Error(t, err)
	assert.True(t, pipeerrors.IsCategory(err, pipeerrors.CategoryConfig))
}

func TestInit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, Init(path, false))
	// Refuses to clobber without force.
	require.Error(t, Init(path, false))
	require.NoError(t, Init(path, true))
}

func TestEnvExpansion(t *testing.T) {
	t.Setenv("TILEPIPE_TEST_STREAMS", "/data/streams")
	path := writeConfig(t, `
stream_network_folder: ${TILEPIPE_TEST_STREAMS}
`)
	s, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "/data/streams", s.StreamNetworkFolder)
}
