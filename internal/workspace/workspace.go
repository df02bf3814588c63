// Package workspace lays out the working directory that receives every
// derived artifact, keyed by tile identity.
package workspace

import (
	"os"
	"path/filepath"

	pipeerrors "git.home.luguber.info/inful/tilepipe/internal/errors"
)

// markerFile warns humans away from hand-editing the working directory.
const markerFile = "This is the working folder. Please delete and modify with caution.txt"

// Workspace resolves artifact paths under the working root.
type Workspace struct {
	Root string
}

// New creates a Workspace rooted at dir.
func New(dir string) *Workspace {
	return &Workspace{Root: dir}
}

// Create builds the full directory tree. Idempotent.
func (w *Workspace) Create() error {
	dirs := []string{
		w.Root,
		w.DEMDir(), w.BufferedDir(), w.CroppedDir(),
		w.StreamRasterDir(), w.LandUseDir(),
		w.RowColDir(), w.FlowFileDir(),
		w.VDTDir(), w.CurveDir(),
		w.ControlFileDir(), w.MetaDir(),
		w.BathymetryDir(), w.TmpDir(),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return pipeerrors.Wrap(err, pipeerrors.CategoryFileSystem, pipeerrors.SeverityFatal, "create working directory").
				WithContext("dir", d)
		}
	}
	f, err := os.OpenFile(filepath.Join(w.Root, markerFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return pipeerrors.Wrap(err, pipeerrors.CategoryFileSystem, pipeerrors.SeverityFatal, "create workspace marker")
	}
	return f.Close()
}

func (w *Workspace) DEMDir() string          { return filepath.Join(w.Root, "dems") }
func (w *Workspace) BufferedDir() string     { return filepath.Join(w.Root, "dems", "buffered") }
func (w *Workspace) CroppedDir() string      { return filepath.Join(w.Root, "dems", "cropped") }
func (w *Workspace) StreamRasterDir() string { return filepath.Join(w.Root, "stream_files") }
func (w *Workspace) LandUseDir() string      { return filepath.Join(w.Root, "land_use") }
func (w *Workspace) RowColDir() string       { return filepath.Join(w.Root, "rapid_files") }
func (w *Workspace) FlowFileDir() string     { return filepath.Join(w.Root, "flow_files") }
func (w *Workspace) VDTDir() string          { return filepath.Join(w.Root, "vdts") }
func (w *Workspace) CurveDir() string        { return filepath.Join(w.Root, "curves") }
func (w *Workspace) ControlFileDir() string  { return filepath.Join(w.Root, "mifns") }
func (w *Workspace) MetaDir() string         { return filepath.Join(w.Root, "meta_files") }
func (w *Workspace) BathymetryDir() string   { return filepath.Join(w.Root, "bathymetry") }
func (w *Workspace) TmpDir() string          { return filepath.Join(w.Root, "tmp") }

// LedgerPath is where the fingerprint ledger lives.
func (w *Workspace) LedgerPath() string {
	return filepath.Join(w.Root, ".file_metadata.json")
}
