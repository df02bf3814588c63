// Package artifact defines the normalized per-tile identity shared by every
// stage output, and the join that re-associates outputs produced
// asynchronously and out of order into per-tile bundles.
package artifact

import (
	"path/filepath"
	"strings"
)

// stageSuffixes are the derived-file annotations stripped during key
// normalization. Double-underscore markers (__strm, __lu, ...) are handled
// separately: everything from the first "__" is part of the stage suffix.
var stageSuffixes = []string{"_buff", "_crop"}

// Key derives the normalized tile identity from any per-tile artifact path.
// All artifacts produced for the same logical tile share the same key,
// regardless of which stage produced them or in what order.
func Key(path string) string {
	base := filepath.Base(path)
	if i := strings.Index(base, "."); i >= 0 {
		base = base[:i]
	}
	if i := strings.Index(base, "__"); i >= 0 {
		base = base[:i]
	}
	for _, suffix := range stageSuffixes {
		base = strings.ReplaceAll(base, suffix, "")
	}
	return base
}

// Bundle joins one tile's outputs across all stages. Optional stages that
// produced nothing leave their field empty.
type Bundle struct {
	DEM         string
	Stream      string
	LandUse     string
	RowColIndex string
	FloodFlow   string
}

// Key returns the bundle's normalized tile identity.
func (b Bundle) Key() string { return Key(b.DEM) }

// Zip joins per-stage output lists into one bundle per tile. The elevation
// list is the driving set: every tile appears in the result even when some
// optional outputs are missing, and input order within each list is
// irrelevant. Empty strings in the stage lists are skipped, tolerating
// stages that produced nothing for a tile.
func Zip(dems, streams, landUse, rowCol, floodFlow []string) []Bundle {
	strmByKey := keyMap(streams)
	luByKey := keyMap(landUse)
	rcByKey := keyMap(rowCol)
	ffByKey := keyMap(floodFlow)

	bundles := make([]Bundle, 0, len(dems))
	for _, dem := range dems {
		if dem == "" {
			continue
		}
		key := Key(dem)
		bundles = append(bundles, Bundle{
			DEM:         dem,
			Stream:      strmByKey[key],
			LandUse:     luByKey[key],
			RowColIndex: rcByKey[key],
			FloodFlow:   ffByKey[key],
		})
	}
	return bundles
}

func keyMap(paths []string) map[string]string {
	m := make(map[string]string, len(paths))
	for _, p := range paths {
		if p == "" {
			continue
		}
		m[Key(p)] = p
	}
	return m
}
