package avoid

import (
	"github.com/pdok/appendfeatures/geomhelp"

	"github.com/go-spatial/geom"
)

// sieve removes the polygons of a multipolygon (and their holes) with an area up to minArea.
// nil is returned when nothing is left.
func sieve(g geom.Geometry, minArea float64) geom.MultiPolygon {
	mp, ok := g.(geom.MultiPolygon)
	if !ok {
		return nil
	}
	return multiPolygonSieve(mp, minArea)
}

func multiPolygonSieve(mp geom.MultiPolygon, minArea float64) geom.MultiPolygon {
	var sievedMultiPolygon geom.MultiPolygon
	for _, p := range mp {
		if sievedPolygon := polygonSieve(p, minArea); sievedPolygon != nil {
			sievedMultiPolygon = append(sievedMultiPolygon, sievedPolygon)
		}
	}
	return sievedMultiPolygon
}

// polygonSieve will sieve a given POLYGON
func polygonSieve(p geom.Polygon, minArea float64) geom.Polygon {
	if geomhelp.PolygonArea(p) <= minArea {
		return nil
	}
	if len(p) == 1 {
		return p
	}
	sievedPolygon := geom.Polygon{p[0]}
	for _, interior := range p[1:] {
		if geomhelp.Shoelace(interior) > minArea {
			sievedPolygon = append(sievedPolygon, interior)
		}
	}
	return sievedPolygon
}
