package postgis

import (
	"context"
	"fmt"

	"github.com/pdok/appendfeatures/processing"

	"github.com/jackc/pgx/v5"
)

type Source struct {
	Table Table
	conn  *pgx.Conn
}

// NewSource connects to the database and reads the metadata of the layer ("schema.table" or "table")
func NewSource(ctx context.Context, connString string, layer string) (*Source, error) {
	conn, err := connect(ctx, connString)
	if err != nil {
		return nil, err
	}
	table, err := loadTable(ctx, conn, layer)
	if err != nil {
		conn.Close(ctx)
		return nil, err
	}
	return &Source{Table: table, conn: conn}, nil
}

func (source *Source) Close() {
	source.conn.Close(context.Background())
}

func (source *Source) Fields() []processing.Field {
	return source.Table.fields()
}

func (source *Source) FeatureCount(ctx context.Context) (int, error) {
	var count int
	err := source.conn.QueryRow(ctx, `SELECT count(*) FROM `+source.Table.identifier()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("error counting the features of %s: %w", source.Table.identifier(), err)
	}
	return count, nil
}

func (source *Source) Features(ctx context.Context) (processing.FeatureIterator, error) {
	rows, err := source.conn.Query(ctx, source.Table.selectSQL())
	if err != nil {
		return nil, fmt.Errorf("error reading the features of %s: %w", source.Table.identifier(), err)
	}
	return &featureIterator{rows: rows}, nil
}

type featureIterator struct {
	rows    pgx.Rows
	feature *feature
	err     error
}

func (it *featureIterator) Next() bool {
	if it.err != nil || !it.rows.Next() {
		return false
	}
	values, err := it.rows.Values()
	if err != nil {
		it.err = err
		return false
	}
	last := len(values) - 1
	g, err := decodeGeometry(values[last])
	if err != nil {
		it.err = fmt.Errorf("error decoding the geometry: %w", err)
		return false
	}
	it.feature = &feature{columns: values[:last], geometry: g}
	return true
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
	it.rows.Close()
	return nil
}
