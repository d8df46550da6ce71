package processing

import (
	"context"
	"errors"

	"github.com/pdok/appendfeatures/convert"

	"github.com/go-spatial/geom"
)

var ErrLayerNotFound = errors.New("layer not found")

// Field describes one attribute column of a layer.
// The geometry column is not a Field.
type Field struct {
	Name       string
	Type       string
	NotNull    bool
	PrimaryKey bool
	Default    *string
}

type Feature interface {
	Columns() []interface{}
	Geometry() geom.Geometry
}

// FeatureIterator is a forward-only cursor over the features of a Source
type FeatureIterator interface {
	Next() bool
	Feature() Feature
	Err() error
	Close() error
}

type Source interface {
	Fields() []Field
	// FeatureCount returns the number of features, or a value < 1 if unknown
	FeatureCount(ctx context.Context) (int, error)
	Features(ctx context.Context) (FeatureIterator, error)
}

type Target interface {
	Name() string
	Fields() []Field
	GeometryDescriptor() convert.Descriptor
	// NewFeature builds a record for this target from attributes keyed by target field index
	NewFeature(attrs map[int]interface{}, g geom.Geometry) (Feature, error)
	Begin(ctx context.Context) (EditSession, error)
}

// EditSession brackets the writes to a Target. Either Commit or Rollback ends it.
type EditSession interface {
	AddFeatures(ctx context.Context, features []Feature) error
	Commit() error
	Rollback() error
}

// IntersectionAvoider trims geometries against a set of reference geometries
type IntersectionAvoider interface {
	Avoid(g geom.Geometry, target convert.Descriptor) geom.Geometry
}

// Feedback receives the progress (0-100) and informational messages of a run
type Feedback interface {
	SetProgress(percent int)
	PushInfo(msg string)
}
