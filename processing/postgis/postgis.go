// Package postgis reads features from and appends features to PostGIS tables
package postgis

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/pdok/appendfeatures/convert"
	"github.com/pdok/appendfeatures/mapslicehelp"
	"github.com/pdok/appendfeatures/processing"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/wkb"
	"github.com/jackc/pgx/v5"
)

const defaultSchema = "public"

type column struct {
	name       string
	dataType   string
	notNull    bool
	dfltValue  *string
	primaryKey bool
}

// Table is the metadata of a PostGIS table with (at least) one geometry column
type Table struct {
	Schema    string
	Name      string
	columns   []column
	gcolumn   string
	gtypeName string
	srid      int
}

type feature struct {
	columns  []interface{}
	set      []bool
	geometry geom.Geometry
}

func (f feature) Columns() []interface{} {
	return f.columns
}

func (f feature) Geometry() geom.Geometry {
	return f.geometry
}

// querier is implemented by both *pgx.Conn and pgx.Tx
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// splitLayer splits "schema.table" into its parts, the schema defaults to public
func splitLayer(layer string) (schema, table string) {
	if i := strings.Index(layer, "."); i >= 0 {
		return layer[:i], layer[i+1:]
	}
	return defaultSchema, layer
}

func connect(ctx context.Context, connString string) (*pgx.Conn, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("error connecting to PostGIS: %w", err)
	}
	return conn, nil
}

func loadTable(ctx context.Context, q querier, layer string) (Table, error) {
	if layer == "" {
		return Table{}, fmt.Errorf("%w: a layer name is required for PostGIS", processing.ErrLayerNotFound)
	}
	t := Table{}
	t.Schema, t.Name = splitLayer(layer)

	err := q.QueryRow(ctx, `SELECT f_geometry_column, type, srid FROM geometry_columns
		WHERE f_table_schema = $1 AND f_table_name = $2 ORDER BY f_geometry_column LIMIT 1`,
		t.Schema, t.Name).Scan(&t.gcolumn, &t.gtypeName, &t.srid)
	if errors.Is(err, pgx.ErrNoRows) {
		return t, fmt.Errorf("%w: %s.%s", processing.ErrLayerNotFound, t.Schema, t.Name)
	}
	if err != nil {
		return t, fmt.Errorf("error reading the geometry column of %s.%s: %w", t.Schema, t.Name, err)
	}

	primaryKeys, err := getPrimaryKeys(ctx, q, t)
	if err != nil {
		return t, err
	}
	t.columns, err = getTableColumns(ctx, q, t, primaryKeys)
	if err != nil {
		return t, err
	}
	t.logUnsupportedGeometryType()
	return t, nil
}

func getPrimaryKeys(ctx context.Context, q querier, t Table) (map[string]any, error) {
	rows, err := q.Query(ctx, `SELECT a.attname FROM pg_index i
		JOIN pg_attribute a ON a.attrelid = i.indrelid AND a.attnum = ANY(i.indkey)
		WHERE i.indrelid = $1::regclass AND i.indisprimary`, t.identifier())
	if err != nil {
		return nil, fmt.Errorf("error reading the primary key of %s: %w", t.identifier(), err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("error reading the primary key of %s: %w", t.identifier(), err)
	}
	return mapslicehelp.AsKeys(names), nil
}

func getTableColumns(ctx context.Context, q querier, t Table, primaryKeys map[string]any) ([]column, error) {
	rows, err := q.Query(ctx, `SELECT column_name, data_type, is_nullable, column_default
		FROM information_schema.columns WHERE table_schema = $1 AND table_name = $2
		ORDER BY ordinal_position`, t.Schema, t.Name)
	if err != nil {
		return nil, fmt.Errorf("error reading the columns of %s: %w", t.identifier(), err)
	}
	defer rows.Close()

	var columns []column
	for rows.Next() {
		var c column
		var nullable string
		if err = rows.Scan(&c.name, &c.dataType, &nullable, &c.dfltValue); err != nil {
			return nil, fmt.Errorf("error getting the column information: %w", err)
		}
		c.notNull = nullable == "NO"
		_, c.primaryKey = primaryKeys[c.name]
		columns = append(columns, c)
	}
	return columns, rows.Err()
}

func (t Table) identifier() string {
	return pgx.Identifier{t.Schema, t.Name}.Sanitize()
}

func (t Table) attributeColumns() []column {
	columns := make([]column, 0, len(t.columns))
	for _, c := range t.columns {
		if c.name != t.gcolumn {
			columns = append(columns, c)
		}
	}
	return columns
}

func (t Table) fields() []processing.Field {
	columns := t.attributeColumns()
	fields := make([]processing.Field, len(columns))
	for i, c := range columns {
		fields[i] = processing.Field{
			Name:       c.name,
			Type:       c.dataType,
			NotNull:    c.notNull,
			PrimaryKey: c.primaryKey,
			Default:    c.dfltValue,
		}
	}
	return fields
}

// logUnsupportedGeometryType warns when the geometry type of the table cannot be checked before inserting,
// e.g. POLYGONZ or CIRCULARSTRING. Such a table is treated as GEOMETRY.
func (t Table) logUnsupportedGeometryType() {
	if _, err := convert.ParseDescriptor(t.gtypeName); err != nil {
		log.Printf("    %s: %s, geometries are inserted unchecked", t.identifier(), err)
	}
}

func (t Table) descriptor() convert.Descriptor {
	d, err := convert.ParseDescriptor(t.gtypeName)
	if err != nil {
		return convert.Descriptor{Family: convert.Unknown}
	}
	return d
}

// selectSQL selects the attribute columns in table order followed by the geometry as WKB
func (t Table) selectSQL() string {
	var csql []string
	for _, c := range t.attributeColumns() {
		csql = append(csql, pgx.Identifier{c.name}.Sanitize())
	}
	csql = append(csql, `ST_AsBinary(`+pgx.Identifier{t.gcolumn}.Sanitize()+`)`)
	return `SELECT ` + strings.Join(csql, `, `) + ` FROM ` + t.identifier()
}

// insertSQL builds the INSERT statement for the attribute columns that are set and the geometry column
func (t Table) insertSQL(set []bool) string {
	var csql, vsql []string
	n := 0
	for i, c := range t.attributeColumns() {
		if i < len(set) && set[i] {
			n++
			csql = append(csql, pgx.Identifier{c.name}.Sanitize())
			vsql = append(vsql, `$`+strconv.Itoa(n))
		}
	}
	n++
	csql = append(csql, pgx.Identifier{t.gcolumn}.Sanitize())
	vsql = append(vsql, `ST_SetSRID(ST_GeomFromWKB($`+strconv.Itoa(n)+`), `+strconv.Itoa(t.srid)+`)`)
	return `INSERT INTO ` + t.identifier() + ` (` + strings.Join(csql, `, `) + `) VALUES (` + strings.Join(vsql, `, `) + `)`
}

func encodeGeometry(g geom.Geometry) ([]byte, error) {
	if g == nil {
		return nil, nil
	}
	return wkb.EncodeBytes(g)
}

func decodeGeometry(v interface{}) (geom.Geometry, error) {
	switch raw := v.(type) {
	case nil:
		return nil, nil
	case []byte:
		return wkb.DecodeBytes(raw)
	default:
		return nil, fmt.Errorf("unexpected type for the geometry: %T", raw)
	}
}
