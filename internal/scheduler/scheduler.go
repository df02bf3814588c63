// Package scheduler orchestrates the full pipeline: tile discovery, the
// per-tile preparation stages, control file generation, and the external
// executables. Tiles are processed by a bounded worker pool; one tile's
// failure never aborts the batch unless it is classified fatal.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"git.home.luguber.info/inful/tilepipe/internal/artifact"
	"git.home.luguber.info/inful/tilepipe/internal/config"
	"git.home.luguber.info/inful/tilepipe/internal/controlfile"
	pipeerrors "git.home.luguber.info/inful/tilepipe/internal/errors"
	"git.home.luguber.info/inful/tilepipe/internal/fingerprint"
	"git.home.luguber.info/inful/tilepipe/internal/geo"
	"git.home.luguber.info/inful/tilepipe/internal/grouping"
	"git.home.luguber.info/inful/tilepipe/internal/metrics"
	"git.home.luguber.info/inful/tilepipe/internal/solver"
	"git.home.luguber.info/inful/tilepipe/internal/stages"
	"git.home.luguber.info/inful/tilepipe/internal/tabular"
	"git.home.luguber.info/inful/tilepipe/internal/tiles"
	"git.home.luguber.info/inful/tilepipe/internal/workspace"
)

// Scheduler runs the pipeline end to end.
type Scheduler struct {
	Settings *config.Settings
	Engine   geo.Engine

	logger      *slog.Logger
	recorder    metrics.Recorder
	arrayReader tabular.ArrayReader
	workers     int
}

// New creates a scheduler.
func New(settings *config.Settings, engine geo.Engine) *Scheduler {
	return &Scheduler{
		Settings: settings,
		Engine:   engine,
		logger:   slog.Default(),
		recorder: metrics.NoopRecorder{},
	}
}

// WithLogger sets a custom logger.
func (s *Scheduler) WithLogger(logger *slog.Logger) *Scheduler {
	s.logger = logger
	return s
}

// WithRecorder sets a metrics recorder.
func (s *Scheduler) WithRecorder(rec metrics.Recorder) *Scheduler {
	s.recorder = rec
	return s
}

// WithArrayReader plugs in an optional scientific-array reader.
func (s *Scheduler) WithArrayReader(reader tabular.ArrayReader) *Scheduler {
	s.arrayReader = reader
	return s
}

// WithWorkers caps tile concurrency. Zero means min(tiles, GOMAXPROCS).
func (s *Scheduler) WithWorkers(n int) *Scheduler {
	s.workers = n
	return s
}

// Run executes the pipeline and returns a report. The returned error is
// non-nil only for run-level failures; per-tile failures are counted in the
// report and logged.
func (s *Scheduler) Run(ctx context.Context) (*RunReport, error) {
	report := newRunReport()
	logger := s.logger.With("run_id", report.RunID)
	logger.Info("Starting pipeline run")

	ws := workspace.New(s.Settings.DataDir)
	if err := ws.Create(); err != nil {
		return report.finish(s.recorder, err), err
	}

	ledger := fingerprint.NewLedger(ws.LedgerPath()).WithLogger(logger)
	if err := ledger.Load(); err != nil {
		logger.Warn("Fingerprint ledger unavailable, every stage will rebuild", "error", err)
	}

	dems, err := s.discoverTiles(ctx, ws)
	if err != nil {
		return report.finish(s.recorder, err), err
	}
	report.Tiles = len(dems)
	logger.Info("Discovered elevation tiles", "count", len(dems))

	workers := s.workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(dems) {
		workers = len(dems)
	}
	s.recorder.SetWorkerConcurrency(workers)

	runner := stages.NewRunner(s.Engine, ledger, ws, s.Settings).
		WithLogger(logger).
		WithArrayReader(s.arrayReader)

	dems, err = s.prepareTiles(ctx, report, runner, workers, dems)
	if err != nil {
		return report.finish(s.recorder, err), err
	}
	if len(dems) == 0 {
		err := pipeerrors.ConfigurationError("no tiles survived preprocessing")
		return report.finish(s.recorder, err), err
	}

	infos, byPath := s.openTiles(ctx, report, dems)
	streams, err := s.openStreams(ctx)
	if err != nil {
		return report.finish(s.recorder, err), err
	}

	groups := grouping.GroupByStreams(ctx, s.Engine, infos, streams)
	report.Groups = len(groups)
	logger.Info("Grouped tiles by stream coverage", "groups", len(groups))

	strmRasters, err := s.rasterizeStreams(ctx, report, runner, workers, groups)
	if err != nil {
		return report.finish(s.recorder, err), err
	}
	if len(strmRasters) != len(infos) {
		logger.Warn("Stream raster count differs from tile count",
			"tiles", len(infos), "stream_rasters", len(strmRasters))
	}

	var landUse, rowCol, floodFlow []string
	if s.Settings.LandUseFolder != "" {
		landUse, err = s.fanOutPaths(ctx, report, workers, "landuse", dems, runner.BuildLandUse)
		if err != nil {
			return report.finish(s.recorder, err), err
		}
	}
	if s.Settings.SimulationFlowFile != "" {
		rowCol, err = s.fanOutPaths(ctx, report, workers, "rowcol", strmRasters, runner.BuildRowColIndex)
		if err != nil {
			return report.finish(s.recorder, err), err
		}
	}
	if s.Settings.FloodFlowFile != "" {
		floodFlow, err = s.fanOutPaths(ctx, report, workers, "floodflow", strmRasters, runner.BuildFloodFlow)
		if err != nil {
			return report.finish(s.recorder, err), err
		}
	}

	bundles := artifact.Zip(dems, strmRasters, landUse, rowCol, floodFlow)
	report.Bundles = len(bundles)

	controlFiles, err := s.generateControlFiles(report, ws, runner, bundles, byPath)
	if err != nil {
		return report.finish(s.recorder, err), err
	}

	if err := s.runExecutables(ctx, report, ledger, workers, bundles, controlFiles); err != nil {
		return report.finish(s.recorder, err), err
	}

	if err := ledger.Save(); err != nil {
		logger.Warn("Could not persist fingerprint ledger", "error", err)
	}
	logger.Info("Pipeline run complete",
		"tiles", report.Tiles, "groups", report.Groups, "bundles", report.Bundles,
		"failed", report.FailedCount(), "duration", time.Since(report.Started))
	return report.finish(s.recorder, nil), nil
}

// discoverTiles enumerates the elevation tiles for the run. Without a
// configured tile folder the previously buffered or cropped outputs are
// reused, letting a run resume on its own derived inputs.
func (s *Scheduler) discoverTiles(ctx context.Context, ws *workspace.Workspace) ([]string, error) {
	roots := []string{s.Settings.DEMFolder}
	if s.Settings.DEMFolder == "" {
		s.logger.Warn("No tile folder configured, looking for previous outputs")
		roots = []string{ws.BufferedDir(), ws.CroppedDir(), ws.DEMDir()}
	}
	for _, root := range roots {
		found, err := tiles.Discover(root)
		if err != nil {
			if s.Settings.DEMFolder != "" {
				return nil, err
			}
			continue
		}
		if len(found) == 0 {
			continue
		}
		if extent, ok := s.Settings.QueryExtent(); ok {
			found = tiles.FilterByExtent(ctx, s.Engine, found, extent)
		}
		if len(found) == 0 {
			return nil, pipeerrors.ConfigurationError("no tiles intersect the configured extent")
		}
		return found, nil
	}
	return nil, pipeerrors.ConfigurationError("no elevation tiles found")
}

// prepareTiles applies the optional buffer or crop preprocessing. Tiles whose
// stage produced nothing are dropped from the run.
func (s *Scheduler) prepareTiles(ctx context.Context, report *RunReport, runner *stages.Runner, workers int, dems []string) ([]string, error) {
	var stage string
	var fn func(context.Context, string) (string, error)
	switch {
	case s.Settings.BufferFiles:
		stage = "buffer"
		all := dems
		fn = func(ctx context.Context, dem string) (string, error) {
			return runner.BufferTile(ctx, dem, all)
		}
	case s.Settings.Crop:
		stage = "crop"
		fn = runner.CropTile
	default:
		return dems, nil
	}
	return s.fanOutPaths(ctx, report, workers, stage, dems, fn)
}

// fanOutPaths runs one stage over every input under the worker limit and
// collects the non-empty outputs in input order. Fatal errors abort the whole
// fan-out; everything else fails only the owning tile.
func (s *Scheduler) fanOutPaths(ctx context.Context, report *RunReport, workers int, stage string, inputs []string, fn func(context.Context, string) (string, error)) ([]string, error) {
	started := time.Now()
	results := make([]string, len(inputs))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, input := range inputs {
		g.Go(func() error {
			out, err := fn(ctx, input)
			if err != nil {
				if pipeerrors.IsFatal(err) || ctx.Err() != nil {
					return err
				}
				if pipeerrors.IsWarning(err) {
					s.logger.Warn("Stage degraded to a skip for tile", "stage", stage, "input", input, "error", err)
					report.record(s.recorder, stage, metrics.ResultSkipped)
					return nil
				}
				s.logger.Error("Stage failed for tile", "stage", stage, "input", input, "error", err)
				report.record(s.recorder, stage, metrics.ResultFailed)
				return nil
			}
			if out == "" {
				report.record(s.recorder, stage, metrics.ResultSkipped)
				return nil
			}
			results[i] = out
			report.record(s.recorder, stage, metrics.ResultSuccess)
			return nil
		})
	}
	err := g.Wait()
	s.recorder.ObserveStageDuration(stage, time.Since(started))
	if err != nil {
		return nil, err
	}

	out := make([]string, 0, len(results))
	for _, r := range results {
		if r != "" {
			out = append(out, r)
		}
	}
	return out, nil
}

// openTiles opens every processed tile, dropping unreadable ones.
func (s *Scheduler) openTiles(ctx context.Context, report *RunReport, dems []string) ([]*geo.RasterInfo, map[string]*geo.RasterInfo) {
	infos := make([]*geo.RasterInfo, 0, len(dems))
	byPath := make(map[string]*geo.RasterInfo, len(dems))
	for _, dem := range dems {
		info, err := s.Engine.OpenRaster(ctx, dem)
		if err != nil {
			s.logger.Error("Could not open tile", "path", dem, "error", err)
			report.record(s.recorder, "open", metrics.ResultFailed)
			continue
		}
		infos = append(infos, info)
		byPath[dem] = info
	}
	return infos, byPath
}

func (s *Scheduler) openStreams(ctx context.Context) ([]*geo.VectorInfo, error) {
	paths, err := tiles.DiscoverVectors(s.Settings.StreamNetworkFolder)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, pipeerrors.ConfigurationError("no stream network datasets found").
			WithContext("folder", s.Settings.StreamNetworkFolder)
	}
	infos := make([]*geo.VectorInfo, 0, len(paths))
	for _, p := range paths {
		info, err := s.Engine.OpenVector(ctx, p)
		if err != nil {
			s.logger.Warn("Could not open stream dataset, skipping", "path", p, "error", err)
			continue
		}
		infos = append(infos, info)
	}
	if len(infos) == 0 {
		return nil, pipeerrors.ConfigurationError("no readable stream network datasets").
			WithContext("folder", s.Settings.StreamNetworkFolder)
	}
	return infos, nil
}

// rasterizeStreams runs the group stage, one group per worker slot. Groups
// are independent so they parallelize cleanly; tiles inside a group share the
// merged temp layer and run sequentially.
func (s *Scheduler) rasterizeStreams(ctx context.Context, report *RunReport, runner *stages.Runner, workers int, groups []grouping.Group) ([]string, error) {
	started := time.Now()
	var mu sync.Mutex
	var outputs []string

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, group := range groups {
		g.Go(func() error {
			outs, err := runner.RasterizeStreams(ctx, group)
			if err != nil {
				if pipeerrors.IsFatal(err) || ctx.Err() != nil {
					return err
				}
				s.logger.Error("Stream rasterization failed for group", "tiles", len(group.Tiles), "error", err)
				report.record(s.recorder, "streams", metrics.ResultFailed)
				return nil
			}
			mu.Lock()
			outputs = append(outputs, outs...)
			mu.Unlock()
			for range outs {
				report.record(s.recorder, "streams", metrics.ResultSuccess)
			}
			return nil
		})
	}
	err := g.Wait()
	s.recorder.ObserveStageDuration("streams", time.Since(started))
	if err != nil {
		return nil, err
	}
	return outputs, nil
}

// generateControlFiles writes one control file per bundle. Bundles whose tile
// cannot be described (unsupported units, unreadable raster) fail
// individually.
func (s *Scheduler) generateControlFiles(report *RunReport, ws *workspace.Workspace, runner *stages.Runner, bundles []artifact.Bundle, byPath map[string]*geo.RasterInfo) (map[string]string, error) {
	started := time.Now()
	gen := controlfile.NewGenerator(s.Settings, ws).WithLogger(s.logger)
	cols := controlfile.Columns{
		SimulationID: runner.Resolved.SimulationID(nil),
		Flow:         runner.Resolved.FlowColumns(),
		Base:         s.Settings.BaseFlowColumn,
	}

	controlFiles := make(map[string]string, len(bundles))
	for _, bundle := range bundles {
		info, ok := byPath[bundle.DEM]
		if !ok {
			report.record(s.recorder, "controlfile", metrics.ResultSkipped)
			continue
		}
		path, err := gen.Generate(info, bundle, cols)
		if err != nil {
			if pipeerrors.IsFatal(err) {
				return nil, err
			}
			s.logger.Error("Control file generation failed", "tile", bundle.DEM, "error", err)
			report.record(s.recorder, "controlfile", metrics.ResultFailed)
			continue
		}
		controlFiles[bundle.Key()] = path
		report.record(s.recorder, "controlfile", metrics.ResultSuccess)
	}
	s.recorder.ObserveStageDuration("controlfile", time.Since(started))
	report.ControlFiles = len(controlFiles)
	return controlFiles, nil
}

// runExecutables drives the solver and flood-spreading passes for every
// control file, then the output optimization sweep when clean_outputs asks
// for it.
func (s *Scheduler) runExecutables(ctx context.Context, report *RunReport, ledger *fingerprint.Ledger, workers int, bundles []artifact.Bundle, controlFiles map[string]string) error {
	if !s.Settings.RunSolver() && !s.Settings.RunFloodSpreader() {
		return nil
	}
	runner := solver.NewRunner(s.Settings, ledger).
		WithLogger(s.logger).
		WithRecorder(s.recorder)

	for _, pass := range []struct {
		stage   string
		enabled bool
		run     func(context.Context, artifact.Bundle, string) error
	}{
		{
			stage:   "solver",
			enabled: s.Settings.RunSolver(),
			run: func(ctx context.Context, _ artifact.Bundle, cf string) error {
				return runner.RunSolver(ctx, cf)
			},
		},
		{
			stage:   "spreader",
			enabled: s.Settings.RunFloodSpreader(),
			run: func(ctx context.Context, bundle artifact.Bundle, cf string) error {
				if bundle.FloodFlow == "" {
					s.logger.Warn("No flood flow file for tile, flood spreading skipped", "tile", bundle.DEM)
					return errSkip
				}
				return runner.RunFloodSpreader(ctx, cf)
			},
		},
	} {
		if !pass.enabled {
			continue
		}
		started := time.Now()
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(workers)
		for _, bundle := range bundles {
			cf, ok := controlFiles[bundle.Key()]
			if !ok {
				continue
			}
			g.Go(func() error {
				switch err := pass.run(gctx, bundle, cf); {
				case err == errSkip:
					report.record(s.recorder, pass.stage, metrics.ResultSkipped)
				case err != nil:
					if pipeerrors.IsFatal(err) || gctx.Err() != nil {
						return err
					}
					s.logger.Error("External pass failed for tile", "stage", pass.stage, "tile", bundle.DEM, "error", err)
					report.record(s.recorder, pass.stage, metrics.ResultFailed)
				default:
					report.record(s.recorder, pass.stage, metrics.ResultSuccess)
				}
				return nil
			})
		}
		err := g.Wait()
		s.recorder.ObserveStageDuration(pass.stage, time.Since(started))
		if err != nil {
			return err
		}
	}

	if s.Settings.CleanOutputs {
		return s.optimizeOutputs(ctx, runner, controlFiles)
	}
	return nil
}

// optimizeOutputs recompresses every raster the external passes produced.
func (s *Scheduler) optimizeOutputs(ctx context.Context, runner *solver.Runner, controlFiles map[string]string) error {
	outputCards := []string{"OutDEP", "OutFLD", "OutVEL", "OutWSE", "BATHY_Out_File", "FSOutBATHY"}
	var outputs []string
	for _, cf := range controlFiles {
		for _, card := range outputCards {
			path, found, err := controlfile.ReadCard(cf, card)
			if err != nil || !found || path == "" {
				continue
			}
			outputs = append(outputs, path)
		}
	}
	if len(outputs) == 0 {
		return nil
	}
	started := time.Now()
	err := runner.OptimizeOutputs(ctx, s.Engine, outputs)
	s.recorder.ObserveStageDuration("optimize", time.Since(started))
	return err
}

var errSkip = fmt.Errorf("skipped")
