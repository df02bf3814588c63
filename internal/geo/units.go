package geo

import (
	"strings"

	"git.home.luguber.info/inful/tilepipe/internal/errors"
)

// Unit is a spatial unit label in the form the external solver expects.
type Unit string

const (
	UnitMeter     Unit = "m"
	UnitKilometer Unit = "km"
	UnitDegree    Unit = "deg"
)

// SpatialUnits infers the solver unit label from a raster's coordinate
// reference. Projected meters map to "m", projected kilometers to "km",
// geographic degrees to "deg". Anything else is unsupported and fails the
// owning tile.
func SpatialUnits(info *RasterInfo) (Unit, error) {
	name := strings.ToLower(info.UnitName)
	if info.Projected {
		if strings.Contains(name, "met") {
			if strings.Contains(name, "k") {
				return UnitKilometer, nil
			}
			return UnitMeter, nil
		}
		return "", errors.UnsupportedUnitsError("unsupported projected units").
			WithContext("units", info.UnitName).
			WithContext("path", info.Path)
	}
	if strings.Contains(name, "degree") {
		return UnitDegree, nil
	}
	return "", errors.UnsupportedUnitsError("unsupported angular units").
		WithContext("units", info.UnitName).
		WithContext("path", info.Path)
}
