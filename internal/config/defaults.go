package config

// Documented defaults. Options left at these values are omitted from the
// generated control file unless the solver requires them.
const (
	DefaultBufferDistance = 0.1
	DefaultNumIterations  = 15
	DefaultXSectionDist   = 1000.0
	DefaultQLimit         = 1.1
	DefaultDirectionDist  = 1
	DefaultSlopeDist      = 1
	DefaultAdjustFlow     = 1.0
	DefaultManningsN      = 0.01
	DefaultLowSpotDist    = 2
	DefaultBoxSize        = 1
	DefaultBathyAlpha     = 0.001
	DefaultBathyXMaxDepth = 0.2
	DefaultBathyYShallow  = 0.2
	DefaultBathyTwdFactor = 1.0
	DefaultWSESearchDist  = 10
	DefaultWSEThreshold   = 0.25
	DefaultTwdFactor      = 1.5

	// MaxLandUseClass is the largest land-use class value the solver accepts.
	MaxLandUseClass = 100
)

// Defaults returns a Settings populated with every documented default.
func Defaults() *Settings {
	return &Settings{
		BufferDistance: DefaultBufferDistance,
		Solver: SolverSettings{
			NumIterations:     DefaultNumIterations,
			XSectionDist:      DefaultXSectionDist,
			QLimit:            DefaultQLimit,
			DirectionDistance: DefaultDirectionDist,
			SlopeDistance:     DefaultSlopeDist,
			UsePrevD4XS:       1,
			AdjustFlow:        DefaultAdjustFlow,
			ManningsN:         DefaultManningsN,
			LowSpotDistance:   DefaultLowSpotDist,
			BoxSize:           DefaultBoxSize,
		},
		Bathymetry: BathymetrySettings{
			Alpha:          DefaultBathyAlpha,
			XMaxDepth:      DefaultBathyXMaxDepth,
			YShallow:       DefaultBathyYShallow,
			TopWidthFactor: DefaultBathyTwdFactor,
		},
		Spreader: SpreaderSettings{
			WSESearchDist: DefaultWSESearchDist,
			WSEThreshold:  DefaultWSEThreshold,
			TwdFactor:     DefaultTwdFactor,
		},
	}
}
