// Package controlfile serializes per-tile run instructions for the hydraulic
// solver and flood-spreading executables. The format is line oriented: one
// card name per line, tab-separated from its argument, with bare card names
// acting as boolean switches. Both executables ignore cards they do not know,
// so one file drives both.
package controlfile

import (
	"bufio"
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"git.home.luguber.info/inful/tilepipe/internal/artifact"
	"git.home.luguber.info/inful/tilepipe/internal/config"
	"git.home.luguber.info/inful/tilepipe/internal/geo"
	"git.home.luguber.info/inful/tilepipe/internal/workspace"
)

// Generator writes control files for artifact bundles.
type Generator struct {
	Settings *config.Settings
	WS       *workspace.Workspace

	logger *slog.Logger
}

// Columns carries the table columns resolved during the tabular stages.
type Columns struct {
	SimulationID string
	Flow         []string
	Base         string
}

// NewGenerator creates a control file generator.
func NewGenerator(settings *config.Settings, ws *workspace.Workspace) *Generator {
	return &Generator{Settings: settings, WS: ws, logger: slog.Default()}
}

// WithLogger sets a custom logger.
func (g *Generator) WithLogger(logger *slog.Logger) *Generator {
	g.logger = logger
	return g
}

// Generate writes the control file for one bundle and returns its path. The
// raster info must describe the bundle's elevation tile; its coordinate
// reference decides the spatial units card and its height bounds the
// row-window cards.
func (g *Generator) Generate(dem *geo.RasterInfo, bundle artifact.Bundle, cols Columns) (string, error) {
	units, err := geo.SpatialUnits(dem)
	if err != nil {
		return "", err
	}

	key := bundle.Key()
	w := newCardWriter()

	w.card("DEM_File", g.path(dem.Path, ".tif", ".vrt"))
	w.blank()
	w.comment("# AutoRoute Inputs")
	w.blank()

	if bundle.Stream != "" {
		w.card("Stream_File", g.path(bundle.Stream, ".tif", ".vrt"))
	}
	w.card("Spatial_Units", string(units))

	if bundle.RowColIndex != "" {
		// The solver consumes the derived row/col/id table, not the raw
		// simulation flow table; the bare flag tells it the file already
		// carries raster coordinates.
		w.card("Flow_RAPIDFile", g.path(bundle.RowColIndex, ".txt"))
		w.flag("RowCol_From_RAPIDFile")
		if cols.SimulationID == "" {
			g.logger.Warn("No simulation id column resolved; omitting its card", "bundle", key)
		} else {
			w.card("RAPID_Flow_ID", cols.SimulationID)
		}
		if len(cols.Flow) == 0 {
			g.logger.Warn("No flow columns resolved; omitting their card", "bundle", key)
		} else {
			w.card("RAPID_Flow_Param", strings.Join(cols.Flow, " "))
		}
		if g.Settings.Solver.SubtractBaseFlow {
			if cols.Base == "" {
				g.logger.Warn("Base flow subtraction requested without a base flow column", "bundle", key)
			} else {
				w.card("RAPID_BaseFlow_Param", cols.Base)
				w.flag("RAPID_Subtract_BaseFlow")
			}
		}
	}

	vdtDir := g.Settings.Solver.VDTFolder
	if vdtDir == "" {
		vdtDir = g.WS.VDTDir()
	}
	w.card("Print_VDT_Database", filepath.Join(vdtDir, key+"__vdt.txt"))
	w.card("Print_VDT_Database_NumIterations", itoa(g.Settings.Solver.NumIterations))
	w.card("Meta_File", filepath.Join(g.WS.MetaDir(), key+"__meta.txt"))

	sv := g.Settings.Solver
	if sv.ConvertCfsToCms {
		w.flag("CONVERT_Q_CFS_TO_CMS")
	}
	w.card("X_Section_Dist", ftoa(sv.XSectionDist))
	w.card("Q_Limit", ftoa(sv.QLimit))
	w.card("Gen_Dir_Dist", itoa(sv.DirectionDistance))
	w.card("Gen_Slope_Dist", itoa(sv.SlopeDistance))
	if sv.WeightAngles != 0 {
		w.card("Weight_Angles", ftoa(sv.WeightAngles))
	}
	if sv.UsePrevD4XS == 0 {
		w.card("Use_Prev_D_4_XS", "0")
	}
	w.card("ADJUST_FLOW_BY_FRACTION", ftoa(sv.AdjustFlow))
	if sv.StrLimitVal != 0 {
		w.card("Str_Limit_Val", ftoa(sv.StrLimitVal))
	}
	if sv.UpStrLimitVal > 0 {
		w.card("UP_Str_Limit_Val", ftoa(sv.UpStrLimitVal))
	}
	if sv.RowStart != 0 {
		w.card("Layer_Row_Start", itoa(sv.RowStart))
	}
	if sv.RowEnd > 0 && sv.RowEnd < dem.Height {
		w.card("Layer_Row_End", itoa(sv.RowEnd))
	}
	if sv.DegreeManip > 0 && sv.DegreeInterval > 0 {
		w.card("Degree_Manip", ftoa(sv.DegreeManip))
		w.card("Degree_Interval", ftoa(sv.DegreeInterval))
	}

	if bundle.LandUse != "" {
		w.card("LU_Raster_SameRes", g.path(bundle.LandUse, ".tif", ".vrt"))
		if g.Settings.ManningsTable == "" {
			g.logger.Warn("Land use raster without a roughness table; solver will use built-in values", "bundle", key)
		} else {
			w.card("LU_Manning_n", g.path(g.Settings.ManningsTable, ".txt", ".csv"))
		}
	} else {
		w.card("Man_n", ftoa(sv.ManningsN))
	}

	if sv.LowSpotIsMeters {
		w.card("Low_Spot_Dist_m", itoa(sv.LowSpotDistance))
	} else {
		w.card("Low_Spot_Range", itoa(sv.LowSpotDistance))
	}
	if sv.LowSpotUseBox {
		w.flag("Low_Spot_Range_Box")
		w.card("Low_Spot_Range_Box_Size", itoa(sv.BoxSize))
	}
	if sv.FindFlat {
		w.flag("Low_Spot_Find_Flat")
		if sv.FindFlatCutoff > 0 {
			w.card("Low_Spot_Range_FlowCutoff", ftoa(sv.FindFlatCutoff))
		}
	}

	if g.Settings.Bathymetry.Enabled {
		if err := g.writeBathymetry(w, key); err != nil {
			return "", err
		}
	}
	if sv.DAFlowParam != "" {
		w.card("RAPID_DA_or_Flow_Param", sv.DAFlowParam)
	}

	w.blank()
	w.comment("# FloodSpreader Inputs")
	w.blank()

	if bundle.FloodFlow != "" {
		w.card("Comid_Flow_File", g.path(bundle.FloodFlow, ".txt", ".csv"))
	}
	g.writeOutlierHandling(w)

	sp := g.Settings.Spreader
	if sp.TwdFactor != config.DefaultTwdFactor {
		w.card("TopWidthDistanceFactor", ftoa(sp.TwdFactor))
	}
	if sp.OnlyStreams {
		w.flag("FloodSpreader_JustStrmDepths")
	}
	if sp.UseARTopWidths {
		w.flag("FloodSpreader_Use_AR_TopWidth")
	}
	if sp.FloodLocal {
		w.flag("FloodLocalOnly")
	}

	if err := g.writeMap(w, "OutDEP", sp.DepthMap, key+"__depth.tif"); err != nil {
		return "", err
	}
	if err := g.writeMap(w, "OutFLD", sp.FloodMap, key+"__flood.tif"); err != nil {
		return "", err
	}
	if err := g.writeMap(w, "OutVEL", sp.VelocityMap, key+"__vel.tif"); err != nil {
		return "", err
	}
	if err := g.writeMap(w, "OutWSE", sp.WSEMap, key+"__wse.tif"); err != nil {
		return "", err
	}

	if g.Settings.Bathymetry.Enabled && g.Settings.Bathymetry.SpreaderOutput != "" {
		if err := os.MkdirAll(g.Settings.Bathymetry.SpreaderOutput, 0o755); err != nil {
			return "", fmt.Errorf("create flood-spreader bathymetry folder: %w", err)
		}
		w.card("FSOutBATHY", filepath.Join(g.Settings.Bathymetry.SpreaderOutput, key+"__fs_bathy.tif"))
		switch g.Settings.Bathymetry.SmoothMethod {
		case "Linear Interpolation":
			w.flag("Bathy_LinearInterpolation")
		case "Inverse-Distance Weighted":
			w.card("BathyTopWidthDistanceFactor", ftoa(g.Settings.Bathymetry.TopWidthFactor))
		case "":
		default:
			g.logger.Warn("Unknown bathymetry smoothing method", "method", g.Settings.Bathymetry.SmoothMethod)
		}
	}

	output := filepath.Join(g.WS.ControlFileDir(), key+"__mifn.txt")
	content := []byte(w.String())
	// An unchanged file keeps its modification time so downstream
	// metadata fingerprints stay valid across runs.
	if existing, err := os.ReadFile(output); err == nil && bytes.Equal(existing, content) {
		g.logger.Debug("Control file unchanged", "path", output)
		return output, nil
	}
	if err := os.WriteFile(output, content, 0o644); err != nil {
		return "", fmt.Errorf("write control file: %w", err)
	}
	return output, nil
}

func (g *Generator) writeBathymetry(w *cardWriter, key string) error {
	b := g.Settings.Bathymetry
	dir := b.OutputFolder
	if dir == "" {
		dir = g.WS.BathymetryDir()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create bathymetry folder: %w", err)
	}

	w.flag("Bathymetry")
	w.card("BATHY_Out_File", filepath.Join(dir, key+"__ar_bathy.tif"))
	w.card("Bathymetry_Alpha", ftoa(b.Alpha))

	method, known := bathymetryCode(b.Method)
	if !known {
		g.logger.Warn("Unknown bathymetry method", "method", string(b.Method))
	}
	w.card("Bathymetry_Method", itoa(method))
	switch method {
	case 1, 2, 3:
		w.card("Bathymetry_XMaxDepth", ftoa(b.XMaxDepth))
		w.card("Bathymetry_YShallow", ftoa(b.YShallow))
	case 4:
		// Trapezoidal channels have no shallow-bank parameter.
		w.card("Bathymetry_XMaxDepth", ftoa(b.XMaxDepth))
	}
	return nil
}

func bathymetryCode(m config.BathymetryMethod) (int, bool) {
	switch m {
	case config.BathyParabolic, "":
		return 0, true
	case config.BathyLeftBankQuadratic:
		return 1, true
	case config.BathyRightBankQuadratic:
		return 2, true
	case config.BathyDoubleQuadratic:
		return 3, true
	case config.BathyTrapezoidal:
		return 4, true
	}
	return 5, false
}

func (g *Generator) writeOutlierHandling(w *cardWriter) {
	sp := g.Settings.Spreader
	switch sp.OmitOutliers {
	case "":
	case "Flood Bad Cells":
		w.flag("Flood_BadCells")
	case "Use AutoRoute Depths":
		w.flag("FloodSpreader_Use_AR_Depths")
	case "Smooth Water Surface Elevation":
		w.flag("FloodSpreader_SmoothWSE")
		w.card("FloodSpreader_SmoothWSE_SearchDist", itoa(sp.WSESearchDist))
		w.card("FloodSpreader_SmoothWSE_FractStDev", ftoa(sp.WSEThreshold))
		if sp.WSERemoveThree {
			w.flag("FloodSpreader_SmoothWSE_RemoveHighThree")
		}
	case "Use AutoRoute Depths (StDev)":
		w.flag("FloodSpreader_Use_AR_Depths_StDev")
	case "Specify Depth":
		if sp.SpecifyDepth > 0 {
			w.card("FloodSpreader_SpecifyDepth", ftoa(sp.SpecifyDepth))
		} else {
			g.logger.Warn("Specify Depth selected without a positive depth, card omitted", "depth", sp.SpecifyDepth)
		}
	default:
		g.logger.Warn("Unknown outlier handling mode", "mode", sp.OmitOutliers)
	}
}

// writeMap emits an output-raster card when the map directory is configured
// and the target either does not exist yet or overwriting is forced.
func (g *Generator) writeMap(w *cardWriter, card, dir, name string) error {
	if dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create %s folder: %w", card, err)
	}
	target := filepath.Join(dir, name)
	if !g.Settings.Overwrite {
		if _, err := os.Stat(target); err == nil {
			g.logger.Debug("Output map already exists, card omitted", "card", card, "path", target)
			return nil
		}
	}
	w.card(card, target)
	return nil
}

// path normalizes a file path for the control file: wrapping quotes are
// stripped and the path is made absolute. A missing file or an unexpected
// extension gets a warning but is still written; the executables produce the
// clearer diagnostic.
func (g *Generator) path(p string, allowedExts ...string) string {
	p = strings.Trim(p, `"'`)
	if abs, err := filepath.Abs(p); err == nil {
		p = abs
	}
	if _, err := os.Stat(p); err != nil {
		g.logger.Warn("Referenced file does not exist", "path", p)
	}
	if len(allowedExts) > 0 {
		ext := strings.ToLower(filepath.Ext(p))
		ok := false
		for _, allowed := range allowedExts {
			if ext == allowed {
				ok = true
				break
			}
		}
		if !ok {
			g.logger.Warn("Unexpected file extension", "path", p, "expected", allowedExts)
		}
	}
	return p
}

// ReadCard scans a control file for a card and returns its argument. Flag
// cards return an empty string with found true.
func ReadCard(path, card string) (string, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", false, err
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		name, arg, _ := strings.Cut(line, "\t")
		if name == card {
			return strings.TrimSpace(arg), true, nil
		}
	}
	return "", false, sc.Err()
}

type cardWriter struct {
	lines []string
}

func newCardWriter() *cardWriter { return &cardWriter{} }

func (w *cardWriter) card(name, arg string) { w.lines = append(w.lines, name+"\t"+arg) }
func (w *cardWriter) flag(name string)      { w.lines = append(w.lines, name) }
func (w *cardWriter) blank()                { w.lines = append(w.lines, "") }
func (w *cardWriter) comment(s string)      { w.lines = append(w.lines, s) }

func (w *cardWriter) String() string { return strings.Join(w.lines, "\n") + "\n" }

func itoa(v int) string { return strconv.Itoa(v) }

func ftoa(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }
