package geo

import (
	"fmt"
	"math"
	"strings"
)

// CoordinateName builds a filename stem from an extent, e.g.
// "N12_5W30__N13_5W29" for (-30,12.5,-29,13.5). Used for merged temporary
// layers whose identity is their coverage, not any single source file.
func CoordinateName(e Extent) string {
	return fmt.Sprintf("%s%s__%s%s",
		formatCoord(e.MinY, true), formatCoord(e.MinX, false),
		formatCoord(e.MaxY, true), formatCoord(e.MaxX, false))
}

func formatCoord(value float64, isLatitude bool) string {
	var direction string
	if isLatitude {
		direction = "N"
		if value < 0 {
			direction = "S"
		}
	} else {
		direction = "E"
		if value < 0 {
			direction = "W"
		}
	}
	rounded := math.Round(math.Abs(value)*1000) / 1000
	s := strings.ReplaceAll(trimFloat(rounded), ".", "_")
	return direction + s
}

func trimFloat(v float64) string {
	s := fmt.Sprintf("%.3f", v)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	return s
}
