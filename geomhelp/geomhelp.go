package geomhelp

import (
	"math"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/wkt"
	"github.com/muesli/reflow/truncate"
)

// https://en.wikipedia.org/wiki/Shoelace_formula
func Shoelace(pts [][2]float64) float64 {
	sum := 0.
	if len(pts) == 0 {
		return 0.
	}

	p0 := pts[len(pts)-1]
	for _, p1 := range pts {
		sum += p0[1]*p1[0] - p0[0]*p1[1]
		p0 = p1
	}
	return math.Abs(sum / 2)
}

// PolygonArea is the area of the exterior ring minus the area of the interiors
func PolygonArea(p [][][2]float64) float64 {
	if len(p) == 0 {
		return 0.
	}
	interior := 0.
	for _, i := range p[1:] {
		interior += Shoelace(i)
	}
	return Shoelace(p[0]) - interior
}

// WktMustEncode renders g as WKT for log messages, truncated to maxLen (0 means no truncation).
// Geometries that cannot be encoded are rendered by their type.
func WktMustEncode(g geom.Geometry, maxLen uint) (s string) {
	if g == nil {
		return "EMPTY"
	}
	defer func() {
		if r := recover(); r != nil {
			s = "unencodable geometry"
		}
	}()
	if maxLen == 0 {
		return wkt.MustEncode(g)
	}
	return truncate.StringWithTail(wkt.MustEncode(g), maxLen, "...")
}
