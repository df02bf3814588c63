// Package stages implements the per-tile pipeline stages: buffer, crop,
// stream rasterization, land-use mosaic, and the two flow-table joins. Every
// runner is idempotent and cache-aware; all raster and vector work is
// delegated to the geo.Engine collaborator.
package stages

import (
	"log/slog"
	"os"

	"git.home.luguber.info/inful/tilepipe/internal/config"
	"git.home.luguber.info/inful/tilepipe/internal/fingerprint"
	"git.home.luguber.info/inful/tilepipe/internal/geo"
	"git.home.luguber.info/inful/tilepipe/internal/tabular"
	"git.home.luguber.info/inful/tilepipe/internal/workspace"
)

// Runner holds the collaborators shared by every stage.
type Runner struct {
	Engine      geo.Engine
	Ledger      *fingerprint.Ledger
	WS          *workspace.Workspace
	Settings    *config.Settings
	Resolved    *Resolution
	ArrayReader tabular.ArrayReader

	logger *slog.Logger
}

// NewRunner creates a stage runner.
func NewRunner(engine geo.Engine, ledger *fingerprint.Ledger, ws *workspace.Workspace, settings *config.Settings) *Runner {
	return &Runner{
		Engine:   engine,
		Ledger:   ledger,
		WS:       ws,
		Settings: settings,
		Resolved: NewResolution(settings),
		logger:   slog.Default(),
	}
}

// WithLogger sets a custom logger.
func (r *Runner) WithLogger(logger *slog.Logger) *Runner {
	r.logger = logger
	return r
}

// WithArrayReader plugs in an optional scientific-array reader for the flow
// table formats the built-in delimited reader cannot handle.
func (r *Runner) WithArrayReader(reader tabular.ArrayReader) *Runner {
	r.ArrayReader = reader
	return r
}

// upToDate is the single skip test every stage applies before writing: the
// output exists, overwrite is not forced, and the recorded fingerprint still
// matches. The check and the subsequent write form one logical step per tile;
// no other worker writes the same output path.
func (r *Runner) upToDate(output string, deps ...string) bool {
	if r.Settings.Overwrite {
		return false
	}
	if _, err := os.Stat(output); err != nil {
		return false
	}
	return r.Ledger.IsUpToDate(output, deps...)
}
