// Package config loads and validates the pipeline settings file. The settings
// struct enumerates every option with a named, typed field; unknown keys in
// the file are a load-time configuration error rather than being silently
// ignored.
package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	pipeerrors "git.home.luguber.info/inful/tilepipe/internal/errors"
	"git.home.luguber.info/inful/tilepipe/internal/geo"
)

// Settings is the full pipeline configuration.
type Settings struct {
	// DataDir is the working directory that receives every derived artifact.
	// Defaults to the current directory.
	DataDir string `yaml:"data_dir"`

	// Inputs
	DEMFolder           string `yaml:"dem_folder"`
	StreamNetworkFolder string `yaml:"stream_network_folder"`
	LandUseFolder       string `yaml:"land_use_folder"`
	SimulationFlowFile  string `yaml:"simulation_flowfile"`
	FloodFlowFile       string `yaml:"flood_flowfile"`
	ManningsTable       string `yaml:"mannings_table"`

	// Column selection for the tabular joins. Empty ID columns fall back to
	// the first column of the table, with a warning.
	SimulationIDColumn    string   `yaml:"simulation_id_column"`
	SimulationFlowColumns []string `yaml:"simulation_flow_columns"`
	BaseFlowColumn        string   `yaml:"base_flow_column"`
	StreamIDColumn        string   `yaml:"stream_id_column"`

	// Preprocessing switches
	Extent         []float64 `yaml:"extent"` // minx, miny, maxx, maxy
	BufferFiles    bool      `yaml:"buffer_files"`
	BufferDistance float64   `yaml:"buffer_distance"`
	Crop           bool      `yaml:"crop"`
	Overwrite      bool      `yaml:"overwrite"`
	CleanOutputs   bool      `yaml:"clean_outputs"`

	// External executables. Empty path disables the corresponding stage.
	SolverPath        string `yaml:"solver"`
	FloodSpreaderPath string `yaml:"flood_spreader"`

	Solver     SolverSettings     `yaml:"solver_options"`
	Bathymetry BathymetrySettings `yaml:"bathymetry"`
	Spreader   SpreaderSettings   `yaml:"flood_spreader_options"`
}

// SolverSettings holds the hydraulic solver's tuning parameters. Options at
// their documented default are not emitted into the control file.
type SolverSettings struct {
	VDTFolder         string  `yaml:"vdt_folder"`
	NumIterations     int     `yaml:"num_iterations"` // default 15
	ConvertCfsToCms   bool    `yaml:"convert_cfs_to_cms"`
	XSectionDist      float64 `yaml:"x_distance"`         // default 1000
	QLimit            float64 `yaml:"q_limit"`            // default 1.1
	DirectionDistance int     `yaml:"direction_distance"` // default 1
	SlopeDistance     int     `yaml:"slope_distance"`     // default 1
	WeightAngles      float64 `yaml:"weight_angles"`      // 0 disables
	UsePrevD4XS       int     `yaml:"use_prev_d_4_xs"`    // 0 or 1, default 1
	AdjustFlow        float64 `yaml:"adjust_flow"`        // default 1
	StrLimitVal       float64 `yaml:"str_limit_val"`      // 0 disables
	UpStrLimitVal     float64 `yaml:"up_str_limit_val"`   // 0 disables
	RowStart          int     `yaml:"row_start"`          // 0 disables
	RowEnd            int     `yaml:"row_end"`            // 0 disables
	DegreeManip       float64 `yaml:"degree_manip"`       // 0 disables
	DegreeInterval    float64 `yaml:"degree_interval"`    // 0 disables
	ManningsN         float64 `yaml:"man_n"`              // default 0.01
	LowSpotDistance   int     `yaml:"low_spot_distance"`  // default 2
	LowSpotIsMeters   bool    `yaml:"low_spot_is_meters"`
	LowSpotUseBox     bool    `yaml:"low_spot_use_box"`
	BoxSize           int     `yaml:"box_size"` // default 1
	FindFlat          bool    `yaml:"find_flat"`
	FindFlatCutoff    float64 `yaml:"low_spot_find_flat_cutoff"` // 0 disables
	SubtractBaseFlow  bool    `yaml:"subtract_base_flow"`
	DAFlowParam       string  `yaml:"da_flow_param"`
}

// BathymetryMethod selects the channel-shape model burned into the
// bathymetry estimate. Methods are mutually exclusive.
type BathymetryMethod string

const (
	BathyParabolic          BathymetryMethod = "Parabolic"
	BathyLeftBankQuadratic  BathymetryMethod = "Left Bank Quadratic"
	BathyRightBankQuadratic BathymetryMethod = "Right Bank Quadratic"
	BathyDoubleQuadratic    BathymetryMethod = "Double Quadratic"
	BathyTrapezoidal        BathymetryMethod = "Trapezoidal"
)

// BathymetrySettings controls bathymetry estimation in both executables.
type BathymetrySettings struct {
	Enabled        bool             `yaml:"enabled"`
	OutputFolder   string           `yaml:"output_folder"` // default DATA_DIR/bathymetry
	Alpha          float64          `yaml:"alpha"`         // default 0.001
	Method         BathymetryMethod `yaml:"method"`
	XMaxDepth      float64          `yaml:"x_max_depth"` // default 0.2
	YShallow       float64          `yaml:"y_shallow"`   // default 0.2
	SpreaderOutput string           `yaml:"spreader_output_folder"`
	SmoothMethod   string           `yaml:"smooth_method"`    // "Linear Interpolation" or "Inverse-Distance Weighted"
	TopWidthFactor float64          `yaml:"top_width_factor"` // default 1
}

// SpreaderSettings controls the flood-spreading pass and its output rasters.
type SpreaderSettings struct {
	OmitOutliers   string  `yaml:"omit_outliers"`
	WSESearchDist  int     `yaml:"wse_search_dist"` // default 10
	WSEThreshold   float64 `yaml:"wse_threshold"`   // default 0.25
	WSERemoveThree bool    `yaml:"wse_remove_three"`
	SpecifyDepth   float64 `yaml:"specify_depth"`
	TwdFactor      float64 `yaml:"twd_factor"` // default 1.5
	OnlyStreams    bool    `yaml:"only_streams"`
	UseARTopWidths bool    `yaml:"use_ar_top_widths"`
	FloodLocal     bool    `yaml:"flood_local"`
	DepthMap       string  `yaml:"depth_map"`
	FloodMap       string  `yaml:"flood_map"`
	VelocityMap    string  `yaml:"velocity_map"`
	WSEMap         string  `yaml:"wse_map"`
}

// Load loads settings from the specified file, expanding environment
// variables and applying documented defaults. Unknown keys are a
// ConfigurationError.
func Load(configPath string) (*Settings, error) {
	// Load .env if present; missing file is fine.
	_ = godotenv.Load()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, pipeerrors.ConfigurationError("configuration file not found").
				WithContext("path", configPath)
		}
		return nil, pipeerrors.Wrap(err, pipeerrors.CategoryConfig, pipeerrors.SeverityFatal, "read configuration file")
	}

	expanded := os.ExpandEnv(string(data))
	dec := yaml.NewDecoder(bytes.NewReader([]byte(expanded)))
	dec.KnownFields(true)

	settings := Defaults()
	if err := dec.Decode(settings); err != nil {
		return nil, pipeerrors.Wrap(err, pipeerrors.CategoryConfig, pipeerrors.SeverityFatal, "parse configuration file").
			WithContext("path", configPath)
	}

	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return settings, nil
}

// Validate checks required settings and normalizes paths to absolute.
func (s *Settings) Validate() error {
	if s.DataDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return pipeerrors.Wrap(err, pipeerrors.CategoryConfig, pipeerrors.SeverityFatal, "resolve working directory")
		}
		s.DataDir = wd
	}
	if !filepath.IsAbs(s.DataDir) {
		abs, err := filepath.Abs(s.DataDir)
		if err != nil {
			return pipeerrors.Wrap(err, pipeerrors.CategoryConfig, pipeerrors.SeverityFatal, "resolve data_dir")
		}
		s.DataDir = abs
	}
	if s.StreamNetworkFolder == "" {
		return pipeerrors.ConfigurationError("stream_network_folder is required")
	}
	if len(s.Extent) != 0 && len(s.Extent) != 4 {
		return pipeerrors.ConfigurationError("extent must be [minx, miny, maxx, maxy]").
			WithContext("got", len(s.Extent))
	}
	if len(s.Extent) == 4 && (s.Extent[0] > s.Extent[2] || s.Extent[1] > s.Extent[3]) {
		return pipeerrors.ConfigurationError("extent minimum bounds exceed maximum bounds")
	}
	if s.Crop && len(s.Extent) != 4 {
		return pipeerrors.ConfigurationError("crop requires an extent")
	}
	if s.Solver.UsePrevD4XS != 0 && s.Solver.UsePrevD4XS != 1 {
		return pipeerrors.ConfigurationError("use_prev_d_4_xs must be 0 or 1")
	}
	return nil
}

// QueryExtent returns the configured spatial filter, if any.
func (s *Settings) QueryExtent() (geo.Extent, bool) {
	if len(s.Extent) != 4 {
		return geo.Extent{}, false
	}
	return geo.Extent{MinX: s.Extent[0], MinY: s.Extent[1], MaxX: s.Extent[2], MaxY: s.Extent[3]}, true
}

// RunSolver reports whether the solver stage is configured.
func (s *Settings) RunSolver() bool { return s.SolverPath != "" }

// RunFloodSpreader reports whether the flood-spreading stage is configured.
func (s *Settings) RunFloodSpreader() bool { return s.FloodSpreaderPath != "" }

// Init writes a starter configuration file.
func Init(path string, force bool) error {
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("configuration file already exists: %s (use --force to overwrite)", path)
	}
	return os.WriteFile(path, []byte(starterConfig), 0o644)
}

const starterConfig = `# tilepipe configuration
data_dir: ./working
dem_folder: ./dems
stream_network_folder: ./streams
# land_use_folder: ./land_use
# simulation_flowfile: ./flows.csv
# flood_flowfile: ./flood_flows.csv
# extent: [-85.0, 35.0, -84.0, 36.0]
buffer_files: false
crop: false
overwrite: false
# solver: /opt/autoroute/bin/autoroute
# flood_spreader: /opt/autoroute/bin/floodspreader
`
