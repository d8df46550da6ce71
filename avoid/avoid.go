// Package avoid trims new polygons so they do not overlap a set of reference geometries,
// e.g. the existing features of the layers they are appended to.
package avoid

import (
	"context"
	"log"

	"github.com/pdok/appendfeatures/convert"
	"github.com/pdok/appendfeatures/mathhelp"
	"github.com/pdok/appendfeatures/processing"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/wkb"
	sfgeom "github.com/peterstace/simplefeatures/geom"
)

type reference struct {
	geometry sfgeom.Geometry
	extent   *geom.Extent
}

// Policy subtracts its reference geometries from polygonal geometries.
// Other geometries pass unchanged.
type Policy struct {
	references []reference
	// polygons and holes with an area up to this value are removed after trimming, 0 disables it
	sliverArea float64
}

// NewPolicy prepares the reference geometries. Non-polygonal references are ignored,
// invalid ones are logged and skipped.
func NewPolicy(references []geom.Geometry, sliverArea float64) *Policy {
	p := Policy{sliverArea: sliverArea}
	for i, r := range references {
		r = convert.Deref(r)
		if convert.IsEmpty(r) || convert.Describe(r).Family != convert.Polygon {
			continue
		}
		extent, err := geom.NewExtentFromGeometry(r)
		if err != nil {
			log.Printf("    skipping reference geometry %d, no extent: %s", i, err)
			continue
		}
		sf, err := toSimpleFeature(r)
		if err != nil {
			log.Printf("    skipping invalid reference geometry %d: %s", i, err)
			continue
		}
		p.references = append(p.references, reference{geometry: sf, extent: extent})
	}
	return &p
}

// Len is the number of (polygonal) reference geometries
func (p *Policy) Len() int {
	return len(p.references)
}

// Avoid returns g minus the overlapping reference geometries, converted back to the target type.
// g is returned unchanged when it is not polygonal, does not overlap,
// or when trimming would leave nothing that fits the target.
func (p *Policy) Avoid(g geom.Geometry, target convert.Descriptor) geom.Geometry {
	if p == nil || len(p.references) == 0 || convert.IsEmpty(g) || convert.Describe(g).Family != convert.Polygon {
		return g
	}
	extent, err := geom.NewExtentFromGeometry(g)
	if err != nil {
		return g
	}
	var overlapping []sfgeom.Geometry
	for _, r := range p.references {
		if overlaps(extent, r.extent) {
			overlapping = append(overlapping, r.geometry)
		}
	}
	if len(overlapping) == 0 {
		return g
	}

	trimmed, err := toSimpleFeature(g)
	if err != nil {
		log.Printf("    cannot avoid intersections: %s", err)
		return g
	}
	for _, r := range overlapping {
		trimmed, err = sfgeom.Difference(trimmed, r)
		if err != nil {
			log.Printf("    cannot avoid intersections: %s", err)
			return g
		}
	}
	if trimmed.IsEmpty() {
		return g
	}

	result, err := wkb.DecodeBytes(trimmed.AsBinary())
	if err != nil {
		log.Printf("    cannot decode trimmed geometry: %s", err)
		return g
	}
	if p.sliverArea > 0 {
		if sieved := sieve(convert.ToType(result, convert.Descriptor{Family: convert.Polygon, Multi: true}), p.sliverArea); sieved != nil {
			result = sieved
		}
	}
	if converted := convert.ToType(result, target); converted != nil {
		return converted
	}
	return g
}

// Load reads all polygonal geometries of the sources to be used as references
func Load(ctx context.Context, sources ...processing.Source) ([]geom.Geometry, error) {
	var references []geom.Geometry
	for _, source := range sources {
		features, err := source.Features(ctx)
		if err != nil {
			return nil, err
		}
		for features.Next() {
			g := convert.Deref(features.Feature().Geometry())
			if !convert.IsEmpty(g) && convert.Describe(g).Family == convert.Polygon {
				references = append(references, g)
			}
		}
		err = features.Err()
		features.Close()
		if err != nil {
			return nil, err
		}
	}
	return references, nil
}

func overlaps(a, b *geom.Extent) bool {
	return mathhelp.Overlaps(a.MinX(), a.MaxX(), b.MinX(), b.MaxX()) &&
		mathhelp.Overlaps(a.MinY(), a.MaxY(), b.MinY(), b.MaxY())
}

func toSimpleFeature(g geom.Geometry) (sfgeom.Geometry, error) {
	b, err := wkb.EncodeBytes(g)
	if err != nil {
		return sfgeom.Geometry{}, err
	}
	return sfgeom.UnmarshalWKB(b)
}
