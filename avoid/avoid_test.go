package avoid

import (
	"context"
	"testing"

	"github.com/pdok/appendfeatures/convert"
	"github.com/pdok/appendfeatures/geomhelp"
	"github.com/pdok/appendfeatures/processing"

	"github.com/go-spatial/geom"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	polygonD      = convert.Descriptor{Family: convert.Polygon}
	multiPolygonD = convert.Descriptor{Family: convert.Polygon, Multi: true}
)

func rectangle(minX, minY, maxX, maxY float64) geom.Polygon {
	return geom.Polygon{{{minX, minY}, {minX, maxY}, {maxX, maxY}, {maxX, minY}, {minX, minY}}}
}

// area sums the area of all polygons in g
func area(g geom.Geometry) float64 {
	mp, ok := convert.ToType(g, multiPolygonD).(geom.MultiPolygon)
	if !ok {
		return 0
	}
	total := 0.
	for _, p := range mp {
		total += geomhelp.PolygonArea(p)
	}
	return total
}

func TestPolicyAvoid(t *testing.T) {
	square := rectangle(0, 0, 10, 10)

	tests := []struct {
		name       string
		references []geom.Geometry
		sliverArea float64
		g          geom.Geometry
		target     convert.Descriptor
		wantSame   bool
		wantType   convert.Descriptor
		wantArea   float64
	}{
		{
			name:     "no references",
			g:        square,
			target:   polygonD,
			wantSame: true,
		},
		{
			name:       "line is never trimmed",
			references: []geom.Geometry{rectangle(0, 0, 10, 10)},
			g:          geom.LineString{{0, 0}, {10, 10}},
			target:     convert.Descriptor{Family: convert.Line},
			wantSame:   true,
		},
		{
			name:       "no overlap",
			references: []geom.Geometry{rectangle(20, 20, 30, 30)},
			g:          square,
			target:     polygonD,
			wantSame:   true,
		},
		{
			name:       "half overlap",
			references: []geom.Geometry{rectangle(5, -5, 15, 15)},
			g:          square,
			target:     polygonD,
			wantType:   polygonD,
			wantArea:   50,
		},
		{
			name:       "overlap with two references",
			references: []geom.Geometry{rectangle(5, -5, 15, 15), rectangle(-5, 5, 15, 15)},
			g:          square,
			target:     polygonD,
			wantType:   polygonD,
			wantArea:   25,
		},
		{
			name:       "non polygonal references are ignored",
			references: []geom.Geometry{geom.Point{5, 5}, geom.LineString{{0, 0}, {10, 10}}},
			g:          square,
			target:     polygonD,
			wantSame:   true,
		},
		{
			name:       "completely covered is left alone",
			references: []geom.Geometry{rectangle(-1, -1, 11, 11)},
			g:          square,
			target:     polygonD,
			wantSame:   true,
		},
		{
			name:       "split does not fit a single polygon",
			references: []geom.Geometry{rectangle(4, -1, 6, 11)},
			g:          square,
			target:     polygonD,
			wantSame:   true,
		},
		{
			name:       "split fits a multipolygon",
			references: []geom.Geometry{rectangle(4, -1, 6, 11)},
			g:          geom.MultiPolygon{square},
			target:     multiPolygonD,
			wantType:   multiPolygonD,
			wantArea:   80,
		},
		{
			name:       "sliver is removed",
			references: []geom.Geometry{rectangle(0.1, -1, 5, 11)},
			sliverArea: 2,
			g:          square,
			target:     polygonD,
			wantType:   polygonD,
			wantArea:   50,
		},
		{
			name:       "sliver is kept without sliver area",
			references: []geom.Geometry{rectangle(0.1, -1, 5, 11)},
			g:          geom.MultiPolygon{square},
			target:     multiPolygonD,
			wantType:   multiPolygonD,
			wantArea:   51,
		},
		{
			name:       "unknown target",
			references: []geom.Geometry{rectangle(5, -5, 15, 15)},
			g:          square,
			target:     convert.Descriptor{},
			wantType:   polygonD,
			wantArea:   50,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := NewPolicy(tt.references, tt.sliverArea)
			got := policy.Avoid(tt.g, tt.target)
			if tt.wantSame {
				assert.Equal(t, tt.g, got)
				return
			}
			assert.Equal(t, tt.wantType, convert.Describe(got))
			assert.InDelta(t, tt.wantArea, area(got), 0.0001)
		})
	}
}

func TestNilPolicy(t *testing.T) {
	var policy *Policy
	square := rectangle(0, 0, 10, 10)
	assert.Equal(t, square, policy.Avoid(square, polygonD))
}

func TestNewPolicy(t *testing.T) {
	bowtie := geom.Polygon{{{0, 0}, {10, 10}, {10, 0}, {0, 10}}}

	tests := []struct {
		name       string
		references []geom.Geometry
		wantLen    int
	}{
		{
			name: "polygonal references are kept",
			references: []geom.Geometry{
				rectangle(0, 0, 1, 1),
				geom.Polygon{{{0, 0}, {0, 1}, {1, 1}}}, // implicitly closed
				geom.MultiPolygon{rectangle(0, 0, 1, 1), rectangle(2, 2, 3, 3)},
			},
			wantLen: 3,
		},
		{
			name:       "others are ignored",
			references: []geom.Geometry{geom.Point{1, 1}, geom.LineString{{0, 0}, {1, 1}}, nil, geom.Polygon{}},
			wantLen:    0,
		},
		{
			name:       "invalid reference is skipped",
			references: []geom.Geometry{rectangle(0, 0, 1, 1), bowtie},
			wantLen:    1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			policy := NewPolicy(tt.references, 0)
			require.NotNil(t, policy)
			assert.Equal(t, tt.wantLen, policy.Len())
		})
	}
}

func TestPolicyWithInvalidReferenceStillAvoids(t *testing.T) {
	bowtie := geom.Polygon{{{0, 0}, {10, 10}, {10, 0}, {0, 10}}}
	policy := NewPolicy([]geom.Geometry{bowtie, rectangle(5, -5, 15, 15)}, 0)

	got := policy.Avoid(rectangle(0, 0, 10, 10), polygonD)
	assert.Equal(t, polygonD, convert.Describe(got))
	assert.InDelta(t, 50, area(got), 0.0001)
}

func TestSieve(t *testing.T) {
	tests := []struct {
		geom    geom.MultiPolygon
		minArea float64
		want    geom.MultiPolygon
	}{
		// Lower single polygon resolution
		0: {geom: geom.MultiPolygon{rectangle(0, 0, 10, 10)}, minArea: 1, want: geom.MultiPolygon{rectangle(0, 0, 10, 10)}},
		// Higher single polygon resolution
		1: {geom: geom.MultiPolygon{rectangle(0, 0, 10, 10)}, minArea: 101, want: nil},
		// Nil input
		2: {geom: nil, minArea: 1, want: nil},
		// single hit on multi polygon
		3: {geom: geom.MultiPolygon{rectangle(0, 0, 10, 10), rectangle(15, 15, 20, 20)}, minArea: 81, want: geom.MultiPolygon{rectangle(0, 0, 10, 10)}},
		// Filterout donut
		4: {geom: geom.MultiPolygon{{rectangle(0, 0, 10, 10)[0], rectangle(5, 5, 6, 6)[0]}}, minArea: 9, want: geom.MultiPolygon{rectangle(0, 0, 10, 10)}},
		// Donut stays
		5: {geom: geom.MultiPolygon{{rectangle(0, 0, 10, 10)[0], rectangle(5, 5, 8.5, 8.5)[0]}}, minArea: 3, want: geom.MultiPolygon{{rectangle(0, 0, 10, 10)[0], rectangle(5, 5, 8.5, 8.5)[0]}}},
	}

	for k, test := range tests {
		got := sieve(test.geom, test.minArea)
		assert.Equal(t, test.want, got, "test: %d", k)
	}
}

type referenceSource struct {
	geometries []geom.Geometry
}

func (s referenceSource) Fields() []processing.Field {
	return nil
}

func (s referenceSource) FeatureCount(context.Context) (int, error) {
	return len(s.geometries), nil
}

func (s referenceSource) Features(context.Context) (processing.FeatureIterator, error) {
	return &referenceIterator{geometries: s.geometries, i: -1}, nil
}

type referenceIterator struct {
	geometries []geom.Geometry
	i          int
}

func (it *referenceIterator) Next() bool {
	it.i++
	return it.i < len(it.geometries)
}

func (it *referenceIterator) Feature() processing.Feature {
	return referenceFeature{it.geometries[it.i]}
}

func (it *referenceIterator) Err() error {
	return nil
}

func (it *referenceIterator) Close() error {
	return nil
}

type referenceFeature struct {
	g geom.Geometry
}

func (f referenceFeature) Columns() []interface{} {
	return nil
}

func (f referenceFeature) Geometry() geom.Geometry {
	return f.g
}

func TestLoad(t *testing.T) {
	parcels := referenceSource{geometries: []geom.Geometry{rectangle(0, 0, 1, 1), nil, geom.Point{3, 3}}}
	buildings := referenceSource{geometries: []geom.Geometry{geom.MultiPolygon{rectangle(5, 5, 6, 6)}}}

	references, err := Load(context.Background(), parcels, buildings)
	require.NoError(t, err)
	assert.Equal(t, []geom.Geometry{rectangle(0, 0, 1, 1), geom.MultiPolygon{rectangle(5, 5, 6, 6)}}, references)
}
