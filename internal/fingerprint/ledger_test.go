package fingerprint

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestRecordThenIsUpToDate(t *testing.T) {
	dir := t.TempDir()
	artifact := writeFile(t, dir, "tile__strm.tif", "raster")
	dep := writeFile(t, dir, "streams.gpkg", "vector")

	l := NewLedger(filepath.Join(dir, DefaultFileName))
	assert.False(t, l.IsUpToDate(artifact, dep))

	l.Record(artifact, dep)
	assert.True(t, l.IsUpToDate(artifact, dep))
}

func TestTouchingDependencyInvalidates(t *testing.T) {
	dir := t.TempDir()
	artifact := writeFile(t, dir, "out.tif", "raster")
	dep := writeFile(t, dir, "dep.tif", "raster")

	l := NewLedger(filepath.Join(dir, DefaultFileName))
	l.Record(artifact, dep)
	require.True(t, l.IsUpToDate(artifact, dep))

	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(dep, future, future))
	assert.False(t, l.IsUpToDate(artifact, dep))
}

func TestLiteralDependencyArguments(t *testing.T) {
	dir := t.TempDir()
	artifact := writeFile(t, dir, "out.tif", "raster")

	l := NewLedger(filepath.Join(dir, DefaultFileName))
	l.Record(artifact, "COMID")
	assert.True(t, l.IsUpToDate(artifact, "COMID"))
	assert.False(t, l.IsUpToDate(artifact, "LINKNO"))
}

func TestKeySurvivesRewrite(t *testing.T) {
	dir := t.TempDir()
	artifact := writeFile(t, dir, "out.tif", "raster")

	l := NewLedger(filepath.Join(dir, DefaultFileName))
	l.Record(artifact)

	// Rewriting the artifact changes its fingerprint but not its ledger key:
	// the stored value goes stale rather than orphaned.
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.Chtimes(artifact, future, future))
	assert.False(t, l.IsUpToDate(artifact))
	l.Record(artifact)
	assert.True(t, l.IsUpToDate(artifact))
	assert.Equal(t, 1, l.Len())
}

func TestLoadSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	artifact := writeFile(t, dir, "out.tif", "raster")
	ledgerPath := filepath.Join(dir, DefaultFileName)

	l := NewLedger(ledgerPath)
	l.Record(artifact)
	require.NoError(t, l.Save())

	reloaded := NewLedger(ledgerPath)
	require.NoError(t, reloaded.Load())
	assert.True(t, reloaded.IsUpToDate(artifact))
}

func TestLoadMissingAndCorrupt(t *testing.T) {
	dir := t.TempDir()

	missing := NewLedger(filepath.Join(dir, "absent.json"))
	assert.NoError(t, missing.Load())
	assert.Equal(t, 0, missing.Len())

	corruptPath := writeFile(t, dir, "corrupt.json", "{not json")
	corrupt := NewLedger(corruptPath)
	// Corrupt ledger reports the problem but the ledger stays usable.
	assert.Error(t, corrupt.Load())
	assert.Equal(t, 0, corrupt.Len())
}

func TestConcurrentRecordAndCheck(t *testing.T) {
	dir := t.TempDir()
	l := NewLedger(filepath.Join(dir, DefaultFileName))

	var paths []string
	for i := 0; i < 16; i++ {
		paths = append(paths, writeFile(t, dir, filepath.Base(t.Name())+string(rune('a'+i))+".tif", "x"))
	}

	var wg sync.WaitGroup
	for _, p := range paths {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				l.Record(p)
				l.IsUpToDate(p)
			}
		}(p)
	}
	wg.Wait()
	assert.Equal(t, len(paths), l.Len())
}
