package processing

import (
	"context"
	"errors"
	"fmt"

	"github.com/pdok/appendfeatures/convert"

	"github.com/go-spatial/geom"
)

type fakeFeature struct {
	columns  []interface{}
	geometry geom.Geometry
}

func (f fakeFeature) Columns() []interface{} {
	return f.columns
}

func (f fakeFeature) Geometry() geom.Geometry {
	return f.geometry
}

type fakeSource struct {
	fields   []Field
	features []Feature
	count    int
	// afterNext is called with the 1-based number of the feature that was just read
	afterNext func(n int)
	err       error
}

func (s *fakeSource) Fields() []Field {
	return s.fields
}

func (s *fakeSource) FeatureCount(context.Context) (int, error) {
	return s.count, nil
}

func (s *fakeSource) Features(context.Context) (FeatureIterator, error) {
	return &fakeIterator{source: s, i: -1}, nil
}

type fakeIterator struct {
	source *fakeSource
	i      int
	closed bool
}

func (it *fakeIterator) Next() bool {
	if it.i+1 >= len(it.source.features) {
		return false
	}
	it.i++
	if it.source.afterNext != nil {
		it.source.afterNext(it.i + 1)
	}
	return true
}

func (it *fakeIterator) Feature() Feature {
	return it.source.features[it.i]
}

func (it *fakeIterator) Err() error {
	return it.source.err
}

func (it *fakeIterator) Close() error {
	it.closed = true
	return nil
}

type fakeRecord struct {
	attrs    map[int]interface{}
	geometry geom.Geometry
}

func (r fakeRecord) Columns() []interface{} {
	return nil
}

func (r fakeRecord) Geometry() geom.Geometry {
	return r.geometry
}

var errNotNull = errors.New("NOT NULL constraint failed")

// fakeTarget stores its features in memory and enforces NOT NULL on fields without a default
type fakeTarget struct {
	fields     []Field
	descriptor convert.Descriptor
	stored     []fakeRecord

	begins    int
	commits   int
	rollbacks int

	beginErr  error
	commitErr error
}

func (t *fakeTarget) Name() string {
	return "target"
}

func (t *fakeTarget) Fields() []Field {
	return t.fields
}

func (t *fakeTarget) GeometryDescriptor() convert.Descriptor {
	return t.descriptor
}

func (t *fakeTarget) NewFeature(attrs map[int]interface{}, g geom.Geometry) (Feature, error) {
	if !t.descriptor.Accepts(g) {
		return nil, fmt.Errorf("cannot store a %s", convert.Describe(g))
	}
	return fakeRecord{attrs: attrs, geometry: g}, nil
}

func (t *fakeTarget) Begin(context.Context) (EditSession, error) {
	t.begins++
	if t.beginErr != nil {
		return nil, t.beginErr
	}
	return &fakeSession{target: t}, nil
}

type fakeSession struct {
	target  *fakeTarget
	pending []fakeRecord
}

func (s *fakeSession) AddFeatures(_ context.Context, features []Feature) error {
	for _, f := range features {
		r := f.(fakeRecord)
		for i, field := range s.target.fields {
			if _, set := r.attrs[i]; field.NotNull && !field.PrimaryKey && field.Default == nil && !set {
				return fmt.Errorf("%w: %s", errNotNull, field.Name)
			}
		}
		s.pending = append(s.pending, r)
	}
	return nil
}

func (s *fakeSession) Commit() error {
	s.target.commits++
	if s.target.commitErr != nil {
		return s.target.commitErr
	}
	s.target.stored = append(s.target.stored, s.pending...)
	return nil
}

func (s *fakeSession) Rollback() error {
	s.target.rollbacks++
	s.pending = nil
	return nil
}

type fakeFeedback struct {
	progress []int
	infos    []string
}

func (f *fakeFeedback) SetProgress(percent int) {
	f.progress = append(f.progress, percent)
}

func (f *fakeFeedback) PushInfo(msg string) {
	f.infos = append(f.infos, msg)
}

type fakeAvoider struct {
	calls int
}

// Avoid shifts every geometry it sees, so tests can tell it was applied
func (a *fakeAvoider) Avoid(g geom.Geometry, _ convert.Descriptor) geom.Geometry {
	a.calls++
	if p, ok := g.(geom.Polygon); ok {
		shifted := make(geom.Polygon, len(p))
		for i, ring := range p {
			shifted[i] = make([][2]float64, len(ring))
			for j, pt := range ring {
				shifted[i][j] = [2]float64{pt[0] + 100, pt[1]}
			}
		}
		return shifted
	}
	return g
}
