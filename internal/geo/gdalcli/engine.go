// Package gdalcli implements geo.Engine by shelling out to the GDAL
// command-line utilities (gdalinfo, gdalbuildvrt, gdalwarp, gdal_rasterize,
// ogr2ogr, ogrinfo, gdaltransform, gdal_translate). The pipeline treats GDAL
// as a black-box collaborator; this adapter only builds argument lists and
// parses the JSON the info tools emit.
package gdalcli

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"

	"git.home.luguber.info/inful/tilepipe/internal/geo"
)

// Engine shells out to the GDAL utilities found on PATH.
type Engine struct {
	logger *slog.Logger
}

// New creates a GDAL CLI engine.
func New() *Engine {
	return &Engine{logger: slog.Default()}
}

// WithLogger sets a custom logger.
func (e *Engine) WithLogger(logger *slog.Logger) *Engine {
	e.logger = logger
	return e
}

// Available reports whether the GDAL utilities can be found on PATH.
func Available() bool {
	_, err := exec.LookPath("gdalinfo")
	return err == nil
}

func (e *Engine) run(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	e.logger.Debug("Running GDAL utility", "cmd", name, "args", strings.Join(args, " "))
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s failed: %w: %s", name, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// BuildVRT builds a virtual mosaic with gdalbuildvrt.
func (e *Engine) BuildVRT(ctx context.Context, output string, sources []string, opts geo.VRTOptions) error {
	args := []string{"-overwrite"}
	if opts.ResampleAlg != "" {
		args = append(args, "-r", opts.ResampleAlg)
	}
	if !opts.Bounds.IsZero() {
		args = append(args, "-te",
			formatFloat(opts.Bounds.MinX), formatFloat(opts.Bounds.MinY),
			formatFloat(opts.Bounds.MaxX), formatFloat(opts.Bounds.MaxY))
	}
	if opts.HasNoData {
		args = append(args, "-srcnodata", formatFloat(opts.NoData))
	}
	if opts.XRes != 0 && opts.YRes != 0 {
		args = append(args, "-resolution", "user", "-tr", formatFloat(opts.XRes), formatFloat(opts.YRes))
	}
	args = append(args, output)
	args = append(args, sources...)
	_, err := e.run(ctx, "gdalbuildvrt", args...)
	return err
}

// Warp builds a materialized reprojected mosaic with gdalwarp.
func (e *Engine) Warp(ctx context.Context, output string, sources []string, opts geo.WarpOptions) error {
	args := []string{"-overwrite", "-multi", "-co", "COMPRESS=DEFLATE", "-co", "PREDICTOR=2"}
	if opts.TargetEPSG != 0 {
		args = append(args, "-t_srs", epsg(opts.TargetEPSG))
	}
	if !opts.Bounds.IsZero() {
		args = append(args, "-te",
			formatFloat(opts.Bounds.MinX), formatFloat(opts.Bounds.MinY),
			formatFloat(opts.Bounds.MaxX), formatFloat(opts.Bounds.MaxY))
	}
	if opts.XRes != 0 && opts.YRes != 0 {
		args = append(args, "-tr", formatFloat(opts.XRes), formatFloat(opts.YRes))
	}
	if opts.OutputType != "" {
		args = append(args, "-ot", opts.OutputType)
	}
	args = append(args, sources...)
	args = append(args, output)
	_, err := e.run(ctx, "gdalwarp", args...)
	return err
}

// Rasterize burns a vector layer into an integer raster with gdal_rasterize.
// UInt32 output: stream identifiers are assumed non-negative.
func (e *Engine) Rasterize(ctx context.Context, output, layer string, opts geo.RasterizeOptions) error {
	args := []string{
		"-a", opts.Attribute,
		"-ot", "UInt32",
		"-of", "GTiff",
		"-co", "COMPRESS=DEFLATE", "-co", "PREDICTOR=2",
		"-a_nodata", formatFloat(opts.NoData),
		"-te",
		formatFloat(opts.Bounds.MinX), formatFloat(opts.Bounds.MinY),
		formatFloat(opts.Bounds.MaxX), formatFloat(opts.Bounds.MaxY),
		"-ts", strconv.Itoa(opts.Width), strconv.Itoa(opts.Height),
		layer, output,
	}
	_, err := e.run(ctx, "gdal_rasterize", args...)
	return err
}

// MergeVectors merges and reprojects vector layers into one output with
// ogr2ogr, appending sources after the first.
func (e *Engine) MergeVectors(ctx context.Context, output string, sources []string, opts geo.MergeOptions) error {
	for i, src := range sources {
		args := []string{"-f", "GPKG"}
		if i == 0 {
			args = append(args, "-overwrite")
		} else {
			args = append(args, "-append", "-update")
		}
		if opts.TargetEPSG != 0 {
			args = append(args, "-t_srs", epsg(opts.TargetEPSG))
		}
		if !opts.Bounds.IsZero() {
			args = append(args, "-spat",
				formatFloat(opts.Bounds.MinX), formatFloat(opts.Bounds.MinY),
				formatFloat(opts.Bounds.MaxX), formatFloat(opts.Bounds.MaxY))
		}
		if len(opts.Columns) > 0 {
			args = append(args, "-select", strings.Join(opts.Columns, ","))
		}
		args = append(args, output, src)
		if _, err := e.run(ctx, "ogr2ogr", args...); err != nil {
			return err
		}
	}
	return nil
}

// ReprojectPoint transforms one coordinate with gdaltransform.
func (e *Engine) ReprojectPoint(ctx context.Context, x, y float64, fromEPSG, toEPSG int) (float64, float64, error) {
	cmd := exec.CommandContext(ctx, "gdaltransform", "-s_srs", epsg(fromEPSG), "-t_srs", epsg(toEPSG), "-output_xy")
	cmd.Stdin = strings.NewReader(fmt.Sprintf("%s %s\n", formatFloat(x), formatFloat(y)))
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return 0, 0, fmt.Errorf("gdaltransform failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	fields := strings.Fields(stdout.String())
	if len(fields) < 2 {
		return 0, 0, fmt.Errorf("gdaltransform returned unexpected output: %q", stdout.String())
	}
	ox, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, 0, err
	}
	oy, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return 0, 0, err
	}
	return ox, oy, nil
}

// Translate rewrites a raster with gdal_translate.
func (e *Engine) Translate(ctx context.Context, output, source string, opts geo.TranslateOptions) error {
	args := []string{"-of", "GTiff", "-co", "COMPRESS=DEFLATE"}
	if opts.OutputType != "" {
		args = append(args, "-ot", opts.OutputType)
	}
	if opts.Predictor != 0 {
		args = append(args, "-co", fmt.Sprintf("PREDICTOR=%d", opts.Predictor))
	}
	if opts.HasNoData {
		args = append(args, "-a_nodata", formatFloat(opts.NoData))
	}
	args = append(args, source, output)
	_, err := e.run(ctx, "gdal_translate", args...)
	return err
}

func epsg(code int) string {
	return "EPSG:" + strconv.Itoa(code)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
