package solver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"git.home.luguber.info/inful/tilepipe/internal/geo"
)

// OptimizeOutputs recompresses the rasters an external run produced. Flood
// extent maps are binary and shrink dramatically as single bytes; the
// continuous maps keep floating point samples with a predictor suited to
// smooth data. Already-optimized files are left alone.
func (r *Runner) OptimizeOutputs(ctx context.Context, engine geo.Engine, paths []string) error {
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		if !r.Settings.Overwrite && r.Ledger.IsUpToDate(path, path) {
			r.logger.Debug("Raster already optimized", "path", path)
			continue
		}
		if err := r.optimize(ctx, engine, path); err != nil {
			return err
		}
		r.Ledger.Record(path, path)
	}
	return nil
}

func (r *Runner) optimize(ctx context.Context, engine geo.Engine, path string) error {
	opts := translateOptions(path)
	tmp := strings.TrimSuffix(path, filepath.Ext(path)) + "_opt.tif"
	if err := engine.Translate(ctx, tmp, path, opts); err != nil {
		return fmt.Errorf("optimize %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	r.logger.Debug("Optimized raster", "path", path, "type", opts.OutputType)
	return nil
}

func translateOptions(path string) geo.TranslateOptions {
	name := strings.ToLower(filepath.Base(path))
	opts := geo.TranslateOptions{OutputType: "Float32", Predictor: 3, HasNoData: true}
	if strings.Contains(name, "flood") {
		opts.OutputType = "Byte"
		opts.Predictor = 2
	}
	if strings.Contains(name, "wse") || strings.Contains(name, "bathy") {
		opts.NoData = -9999
	}
	return opts
}
