// Package convert turns geometries into the geometry type a target layer can store.
// A layer's type is described by a Family (point, line, polygon or unknown) and its multiplicity.
package convert

import (
	"fmt"
	"strings"

	"github.com/go-spatial/geom"
)

type Family int

const (
	// Unknown accepts any geometry
	Unknown Family = iota
	Point
	Line
	Polygon
)

func (f Family) String() string {
	switch f {
	case Point:
		return "point"
	case Line:
		return "line"
	case Polygon:
		return "polygon"
	default:
		return "unknown"
	}
}

// Descriptor is the geometry family and multiplicity of a layer (or a geometry)
type Descriptor struct {
	Family Family
	Multi  bool
}

func (d Descriptor) String() string {
	if d.Multi {
		return "multi" + d.Family.String()
	}
	return d.Family.String()
}

// Describe returns the descriptor of a single geometry.
// Collections and unsupported types are Unknown (and multi).
func Describe(g geom.Geometry) Descriptor {
	switch Deref(g).(type) {
	case geom.Point:
		return Descriptor{Family: Point}
	case geom.MultiPoint:
		return Descriptor{Family: Point, Multi: true}
	case geom.LineString:
		return Descriptor{Family: Line}
	case geom.MultiLineString:
		return Descriptor{Family: Line, Multi: true}
	case geom.Polygon:
		return Descriptor{Family: Polygon}
	case geom.MultiPolygon:
		return Descriptor{Family: Polygon, Multi: true}
	default:
		return Descriptor{Family: Unknown, Multi: true}
	}
}

// Accepts reports whether a layer with this descriptor can store g as is.
// A nil geometry is always accepted.
func (d Descriptor) Accepts(g geom.Geometry) bool {
	g = Deref(g)
	if g == nil || d.Family == Unknown {
		return true
	}
	return Describe(g) == d
}

// Deref turns the pointer variants of the go-spatial types into values,
// so that the rest of this package only has to deal with one of them.
//
//nolint:cyclop
func Deref(g geom.Geometry) geom.Geometry {
	switch t := g.(type) {
	case *geom.Point:
		if t == nil {
			return nil
		}
		return *t
	case *geom.MultiPoint:
		if t == nil {
			return nil
		}
		return *t
	case *geom.LineString:
		if t == nil {
			return nil
		}
		return *t
	case *geom.MultiLineString:
		if t == nil {
			return nil
		}
		return *t
	case *geom.Polygon:
		if t == nil {
			return nil
		}
		return *t
	case *geom.MultiPolygon:
		if t == nil {
			return nil
		}
		return *t
	case *geom.Collection:
		if t == nil {
			return nil
		}
		return *t
	}
	return g
}

// IsEmpty is true for nil geometries and geometries without any coordinates
func IsEmpty(g geom.Geometry) bool {
	switch t := Deref(g).(type) {
	case nil:
		return true
	case geom.Point:
		return false
	case geom.MultiPoint:
		return len(t) == 0
	case geom.LineString:
		return len(t) == 0
	case geom.MultiLineString:
		for _, l := range t {
			if len(l) > 0 {
				return false
			}
		}
		return true
	case geom.Polygon:
		return len(t) == 0 || len(t[0]) == 0
	case geom.MultiPolygon:
		for _, p := range t {
			if len(p) > 0 && len(p[0]) > 0 {
				return false
			}
		}
		return true
	case geom.Collection:
		for _, m := range t {
			if !IsEmpty(m) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// ToType converts g into a geometry that a layer with descriptor d can store.
// It returns nil when that is not possible, e.g. a point into a polygon layer
// or a multipolygon with several parts into a single polygon layer.
// For an Unknown family g is returned untouched.
func ToType(g geom.Geometry, d Descriptor) geom.Geometry {
	g = Deref(g)
	if g == nil {
		return nil
	}
	switch d.Family {
	case Unknown:
		return g
	case Point:
		mp := toMultiPoint(g, d.Multi)
		if len(mp) == 0 {
			return nil
		}
		if d.Multi {
			return mp
		}
		if len(mp) != 1 {
			return nil
		}
		return geom.Point(mp[0])
	case Line:
		ml := toMultiLineString(g)
		if len(ml) == 0 {
			return nil
		}
		if d.Multi {
			return ml
		}
		if len(ml) != 1 {
			return nil
		}
		return geom.LineString(ml[0])
	case Polygon:
		mp := toMultiPolygon(g)
		if len(mp) == 0 {
			return nil
		}
		if d.Multi {
			return mp
		}
		if len(mp) != 1 {
			return nil
		}
		return geom.Polygon(mp[0])
	}
	return nil
}

// toMultiPoint only explodes lines and polygons into their vertices
// when the target is a multipoint layer. nil means not convertible.
func toMultiPoint(g geom.Geometry, multi bool) geom.MultiPoint {
	switch t := g.(type) {
	case geom.Point:
		return geom.MultiPoint{t}
	case geom.MultiPoint:
		return t
	case geom.LineString, geom.MultiLineString, geom.Polygon, geom.MultiPolygon:
		if !multi {
			return nil
		}
		return vertices(t)
	case geom.Collection:
		var mp geom.MultiPoint
		for _, m := range t {
			part := toMultiPoint(Deref(m), multi)
			if part == nil {
				return nil
			}
			mp = append(mp, part...)
		}
		return mp
	}
	return nil
}

func toMultiLineString(g geom.Geometry) geom.MultiLineString {
	switch t := g.(type) {
	case geom.Point:
		return nil
	case geom.MultiPoint:
		if len(t) < 2 {
			return nil
		}
		return geom.MultiLineString{cloneRing(t)}
	case geom.LineString:
		if len(t) < 2 {
			return nil
		}
		return geom.MultiLineString{t}
	case geom.MultiLineString:
		var ml geom.MultiLineString
		for _, l := range t {
			if len(l) >= 2 {
				ml = append(ml, l)
			}
		}
		return ml
	case geom.Polygon:
		return polygonRings(t)
	case geom.MultiPolygon:
		var ml geom.MultiLineString
		for _, p := range t {
			ml = append(ml, polygonRings(p)...)
		}
		return ml
	case geom.Collection:
		var ml geom.MultiLineString
		for _, m := range t {
			part := toMultiLineString(Deref(m))
			if part == nil {
				return nil
			}
			ml = append(ml, part...)
		}
		return ml
	}
	return nil
}

func toMultiPolygon(g geom.Geometry) geom.MultiPolygon {
	switch t := g.(type) {
	case geom.Point:
		return nil
	case geom.MultiPoint:
		ring := closedRing(t)
		if ring == nil {
			return nil
		}
		return geom.MultiPolygon{{ring}}
	case geom.LineString:
		ring := closedRing(t)
		if ring == nil {
			return nil
		}
		return geom.MultiPolygon{{ring}}
	case geom.MultiLineString:
		mp := make(geom.MultiPolygon, 0, len(t))
		for _, l := range t {
			ring := closedRing(l)
			if ring == nil {
				return nil
			}
			mp = append(mp, [][][2]float64{ring})
		}
		return mp
	case geom.Polygon:
		if len(t) == 0 {
			return nil
		}
		return geom.MultiPolygon{t}
	case geom.MultiPolygon:
		return t
	case geom.Collection:
		var mp geom.MultiPolygon
		for _, m := range t {
			part := toMultiPolygon(Deref(m))
			if part == nil {
				return nil
			}
			mp = append(mp, part...)
		}
		return mp
	}
	return nil
}

func polygonRings(p geom.Polygon) geom.MultiLineString {
	ml := make(geom.MultiLineString, 0, len(p))
	for _, ring := range p {
		if len(ring) < 2 {
			continue
		}
		ml = append(ml, closeRing(cloneRing(ring)))
	}
	return ml
}

func vertices(g geom.Geometry) geom.MultiPoint {
	var mp geom.MultiPoint
	switch t := g.(type) {
	case geom.LineString:
		mp = append(mp, t...)
	case geom.MultiLineString:
		for _, l := range t {
			mp = append(mp, l...)
		}
	case geom.Polygon:
		for _, ring := range t {
			mp = append(mp, ring...)
		}
	case geom.MultiPolygon:
		for _, p := range t {
			for _, ring := range p {
				mp = append(mp, ring...)
			}
		}
	}
	return mp
}

// closedRing returns a closed copy of the points when they span at least 3 distinct points
func closedRing(pts [][2]float64) [][2]float64 {
	if distinct(pts) < 3 {
		return nil
	}
	return closeRing(cloneRing(pts))
}

func closeRing(ring [][2]float64) [][2]float64 {
	if len(ring) > 0 && ring[0] != ring[len(ring)-1] {
		ring = append(ring, ring[0])
	}
	return ring
}

func cloneRing(pts [][2]float64) [][2]float64 {
	c := make([][2]float64, len(pts), len(pts)+1)
	copy(c, pts)
	return c
}

func distinct(pts [][2]float64) int {
	seen := make(map[[2]float64]struct{}, len(pts))
	for _, p := range pts {
		seen[p] = struct{}{}
	}
	return len(seen)
}

// ParseDescriptor parses the geometry type names as used in GeoPackages and PostGIS,
// e.g. POINT, MULTIPOLYGON, GEOMETRY
func ParseDescriptor(name string) (Descriptor, error) {
	switch strings.ToUpper(name) {
	case "GEOMETRY", "GEOMETRYCOLLECTION", "":
		return Descriptor{Family: Unknown}, nil
	case "POINT":
		return Descriptor{Family: Point}, nil
	case "MULTIPOINT":
		return Descriptor{Family: Point, Multi: true}, nil
	case "LINESTRING":
		return Descriptor{Family: Line}, nil
	case "MULTILINESTRING":
		return Descriptor{Family: Line, Multi: true}, nil
	case "POLYGON":
		return Descriptor{Family: Polygon}, nil
	case "MULTIPOLYGON":
		return Descriptor{Family: Polygon, Multi: true}, nil
	}
	return Descriptor{}, fmt.Errorf("unsupported geometry type: %s", name)
}
