package gpkg

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"strings"

	"github.com/pdok/appendfeatures/convert"
	"github.com/pdok/appendfeatures/processing"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/gpkg"
)

type TargetGeopackage struct {
	Table  Table
	handle *gpkg.Handle
}

// Init opens the GeoPackage and reads the metadata of the layer the features will be appended to
func (target *TargetGeopackage) Init(ctx context.Context, file string, layer string) error {
	handle, err := openGeopackage(file)
	if err != nil {
		return err
	}
	table, err := loadTable(ctx, handle, layer)
	if err != nil {
		handle.Close()
		return err
	}
	target.handle = handle
	target.Table = table
	return nil
}

func (target TargetGeopackage) Close() {
	target.handle.Close()
}

func (target TargetGeopackage) Name() string {
	return target.Table.Name
}

func (target TargetGeopackage) Fields() []processing.Field {
	return target.Table.fields()
}

func (target TargetGeopackage) GeometryDescriptor() convert.Descriptor {
	return target.Table.descriptor()
}

// NewFeature creates a feature for this table. Primary key columns are never set,
// sqlite assigns them on insert. Columns without a value get their default.
func (target TargetGeopackage) NewFeature(attrs map[int]interface{}, g geom.Geometry) (processing.Feature, error) {
	descriptor := target.GeometryDescriptor()
	if !descriptor.Accepts(g) {
		return nil, fmt.Errorf("a %s cannot be stored in %s (%s)", convert.Describe(g), target.Table.Name, descriptor)
	}
	fields := target.Fields()
	f := featureGPKG{
		columns:  make([]interface{}, len(fields)),
		set:      make([]bool, len(fields)),
		geometry: convert.Deref(g),
	}
	for idx, v := range attrs {
		if idx < 0 || idx >= len(fields) {
			return nil, fmt.Errorf("no field with index %d in %s", idx, target.Table.Name)
		}
		if fields[idx].PrimaryKey {
			continue
		}
		f.columns[idx] = v
		f.set[idx] = true
	}
	return &f, nil
}

func (target TargetGeopackage) Begin(ctx context.Context) (processing.EditSession, error) {
	tx, err := target.handle.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("could not start a transaction: %w", err)
	}
	return &editSession{target: target, tx: tx, stmts: make(map[string]*sql.Stmt)}, nil
}

type editSession struct {
	target TargetGeopackage
	tx     *sql.Tx
	// one prepared statement per combination of columns set
	stmts map[string]*sql.Stmt
	ext   *geom.Extent
}

func (s *editSession) AddFeatures(ctx context.Context, features []processing.Feature) error {
	for i, feature := range features {
		f, ok := feature.(*featureGPKG)
		if !ok {
			return fmt.Errorf("feature %d was not created by this target: %T", i, feature)
		}
		stmt, err := s.statement(ctx, f.set)
		if err != nil {
			return err
		}

		data := make([]interface{}, 0, len(f.columns)+1)
		for j, v := range f.columns {
			if f.set[j] {
				data = append(data, v)
			}
		}
		if f.geometry == nil {
			data = append(data, nil)
		} else {
			sb, err := gpkg.NewBinary(int32(s.target.Table.srs.ID), f.geometry)
			if err != nil {
				return fmt.Errorf("could not create a binary geometry: %w", err)
			}
			data = append(data, sb)
		}

		if _, err = stmt.ExecContext(ctx, data...); err != nil {
			return fmt.Errorf("could not insert feature %d into %s: %w", i, s.target.Table.Name, err)
		}
		s.addToExtent(f.geometry)
	}
	return nil
}

func (s *editSession) statement(ctx context.Context, set []bool) (*sql.Stmt, error) {
	var key strings.Builder
	for _, isSet := range set {
		if isSet {
			key.WriteByte('1')
		} else {
			key.WriteByte('0')
		}
	}
	if stmt, ok := s.stmts[key.String()]; ok {
		return stmt, nil
	}
	stmt, err := s.tx.PrepareContext(ctx, s.target.Table.insertSQL(set))
	if err != nil {
		return nil, fmt.Errorf("could not prepare a statement: %w", err)
	}
	s.stmts[key.String()] = stmt
	return stmt, nil
}

func (s *editSession) addToExtent(g geom.Geometry) {
	if g == nil {
		return
	}
	if s.ext == nil {
		ext, err := geom.NewExtentFromGeometry(g)
		if err != nil {
			log.Println("Failed to create new extent:", err)
			return
		}
		s.ext = ext
		return
	}
	if err := s.ext.AddGeometry(g); err != nil {
		log.Println("Failed to grow extent:", err)
	}
}

func (s *editSession) closeStatements() {
	for _, stmt := range s.stmts {
		stmt.Close()
	}
}

// Commit commits the transaction and grows the extent of the table in gpkg_contents
func (s *editSession) Commit() error {
	s.closeStatements()
	if err := s.tx.Commit(); err != nil {
		return err
	}
	if s.ext == nil {
		return nil
	}
	if err := s.target.handle.UpdateGeometryExtent(s.target.Table.Name, s.ext); err != nil {
		log.Println("Failed to update extent:", err)
	}
	return nil
}

func (s *editSession) Rollback() error {
	s.closeStatements()
	return s.tx.Rollback()
}
