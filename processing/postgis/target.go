package postgis

import (
	"context"
	"fmt"

	"github.com/pdok/appendfeatures/convert"
	"github.com/pdok/appendfeatures/processing"

	"github.com/go-spatial/geom"
	"github.com/jackc/pgx/v5"
)

type Target struct {
	Table Table
	conn  *pgx.Conn
}

// NewTarget connects to the database and reads the metadata of the layer the features will be appended to
func NewTarget(ctx context.Context, connString string, layer string) (*Target, error) {
	conn, err := connect(ctx, connString)
	if err != nil {
		return nil, err
	}
	table, err := loadTable(ctx, conn, layer)
	if err != nil {
		conn.Close(ctx)
		return nil, err
	}
	return &Target{Table: table, conn: conn}, nil
}

func (target *Target) Close() {
	target.conn.Close(context.Background())
}

func (target *Target) Name() string {
	return target.Table.Schema + "." + target.Table.Name
}

func (target *Target) Fields() []processing.Field {
	return target.Table.fields()
}

func (target *Target) GeometryDescriptor() convert.Descriptor {
	return target.Table.descriptor()
}

// NewFeature creates a feature for this table. Primary key columns are left to the database,
// as are the defaults of the columns without a value.
func (target *Target) NewFeature(attrs map[int]interface{}, g geom.Geometry) (processing.Feature, error) {
	descriptor := target.GeometryDescriptor()
	if !descriptor.Accepts(g) {
		return nil, fmt.Errorf("a %s cannot be stored in %s (%s)", convert.Describe(g), target.Name(), descriptor)
	}
	fields := target.Fields()
	f := feature{
		columns:  make([]interface{}, len(fields)),
		set:      make([]bool, len(fields)),
		geometry: convert.Deref(g),
	}
	for idx, v := range attrs {
		if idx < 0 || idx >= len(fields) {
			return nil, fmt.Errorf("no field with index %d in %s", idx, target.Name())
		}
		if fields[idx].PrimaryKey {
			continue
		}
		f.columns[idx] = v
		f.set[idx] = true
	}
	return &f, nil
}

func (target *Target) Begin(ctx context.Context) (processing.EditSession, error) {
	tx, err := target.conn.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("could not start a transaction: %w", err)
	}
	return &editSession{ctx: ctx, table: target.Table, tx: tx}, nil
}

type editSession struct {
	// the context the session was started with, used to end it
	ctx   context.Context
	table Table
	tx    pgx.Tx
}

// AddFeatures sends all inserts in one batch
func (s *editSession) AddFeatures(ctx context.Context, features []processing.Feature) error {
	batch := &pgx.Batch{}
	for i, f := range features {
		pf, ok := f.(*feature)
		if !ok {
			return fmt.Errorf("feature %d was not created by this target: %T", i, f)
		}
		args := make([]any, 0, len(pf.columns)+1)
		for j, v := range pf.columns {
			if pf.set[j] {
				args = append(args, v)
			}
		}
		b, err := encodeGeometry(pf.geometry)
		if err != nil {
			return fmt.Errorf("could not encode the geometry of feature %d: %w", i, err)
		}
		args = append(args, b)
		batch.Queue(s.table.insertSQL(pf.set), args...)
	}
	if batch.Len() == 0 {
		return nil
	}

	results := s.tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("could not insert feature %d into %s: %w", i, s.table.identifier(), err)
		}
	}
	return results.Close()
}

func (s *editSession) Commit() error {
	return s.tx.Commit(s.ctx)
}

func (s *editSession) Rollback() error {
	return s.tx.Rollback(s.ctx)
}
