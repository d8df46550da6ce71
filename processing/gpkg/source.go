package gpkg

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pdok/appendfeatures/processing"

	"github.com/go-spatial/geom/encoding/gpkg"
)

type SourceGeopackage struct {
	Table  Table
	handle *gpkg.Handle
}

// Init opens the GeoPackage and reads the metadata of the layer.
// An empty layer selects the only feature table.
func (source *SourceGeopackage) Init(ctx context.Context, file string, layer string) error {
	handle, err := openGeopackage(file)
	if err != nil {
		return err
	}
	table, err := loadTable(ctx, handle, layer)
	if err != nil {
		handle.Close()
		return err
	}
	source.handle = handle
	source.Table = table
	return nil
}

func (source SourceGeopackage) Close() {
	source.handle.Close()
}

func (source SourceGeopackage) Fields() []processing.Field {
	return source.Table.fields()
}

func (source SourceGeopackage) FeatureCount(ctx context.Context) (int, error) {
	var count int
	row := source.handle.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+quote(source.Table.Name)+`;`)
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("error counting the features of %s: %w", source.Table.Name, err)
	}
	return count, nil
}

// Features reads the features of the table in rowid order
func (source SourceGeopackage) Features(ctx context.Context) (processing.FeatureIterator, error) {
	rows, err := source.handle.QueryContext(ctx, source.Table.selectSQL())
	if err != nil {
		return nil, fmt.Errorf("error reading the features of %s: %w", source.Table.Name, err)
	}
	return &featureIterator{rows: rows, numAttributes: len(source.Table.attributeColumns())}, nil
}

type featureIterator struct {
	rows          *sql.Rows
	numAttributes int
	feature       *featureGPKG
	err           error
}

func (it *featureIterator) Next() bool {
	if it.err != nil || !it.rows.Next() {
		return false
	}
	f, err := it.scan()
	if err != nil {
		it.err = err
		return false
	}
	it.feature = f
	return true
}

// scan reads the attribute values followed by the geometry of the current row
func (it *featureIterator) scan() (*featureGPKG, error) {
	vals := make([]interface{}, it.numAttributes+1)
	valPtrs := make([]interface{}, len(vals))
	for i := range vals {
		valPtrs[i] = &vals[i]
	}
	if err := it.rows.Scan(valPtrs...); err != nil {
		return nil, fmt.Errorf("err reading row values: %w", err)
	}

	var f featureGPKG
	f.columns = make([]interface{}, it.numAttributes)
	for i := 0; i < it.numAttributes; i++ {
		v, err := normalizeValue(vals[i])
		if err != nil {
			return nil, err
		}
		f.columns[i] = v
	}

	switch raw := vals[it.numAttributes].(type) {
	case nil:
	case []byte:
		sb, err := gpkg.DecodeGeometry(raw)
		if err != nil {
			return nil, fmt.Errorf("error decoding the geometry: %w", err)
		}
		f.geometry = sb.Geometry
	default:
		return nil, fmt.Errorf("%w: geometry %T", errUnexpectedType, raw)
	}
	return &f, nil
}

func (it *featureIterator) Feature() processing.Feature {
	return it.feature
}

func (it *featureIterator) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.rows.Err()
}

func (it *featureIterator) Close() error {
	return it.rows.Close()
}
