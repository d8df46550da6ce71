// Package gpkg reads features from and appends features to GeoPackage feature tables
package gpkg

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/pdok/appendfeatures/convert"
	"github.com/pdok/appendfeatures/processing"

	"github.com/go-spatial/geom"
	"github.com/go-spatial/geom/encoding/gpkg"
	_ "github.com/mattn/go-sqlite3" // sqlite driver for gpkg.Handle
)

type featureGPKG struct {
	columns  []interface{}
	set      []bool
	geometry geom.Geometry
}

func (f featureGPKG) Columns() []interface{} {
	return f.columns
}

func (f featureGPKG) Geometry() geom.Geometry {
	return f.geometry
}

type column struct {
	cid       int
	name      string
	ctype     string
	notnull   int
	dfltValue *string
	pk        int
}

type Table struct {
	Name      string
	columns   []column
	gcolumn   string
	gtypeName string
	srs       gpkg.SpatialReferenceSystem
}

// attributeColumns are all columns except the geometry column, in table order
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
			Type:       c.ctype,
			NotNull:    c.notnull == 1,
			PrimaryKey: c.pk > 0,
			Default:    c.dfltValue,
		}
	}
	return fields
}

// logUnsupportedGeometryType warns when the geometry type of the table cannot be checked before inserting,
// e.g. POLYGONZ or CURVEPOLYGON. Such a table is treated as GEOMETRY.
func (t Table) logUnsupportedGeometryType() {
	if _, err := convert.ParseDescriptor(t.gtypeName); err != nil {
		log.Printf("    %s: %s, geometries are inserted unchecked", t.Name, err)
	}
}

func (t Table) descriptor() convert.Descriptor {
	d, err := convert.ParseDescriptor(t.gtypeName)
	if err != nil {
		return convert.Descriptor{Family: convert.Unknown}
	}
	return d
}

func openGeopackage(file string) (*gpkg.Handle, error) {
	handle, err := gpkg.Open(file)
	if err != nil {
		return nil, fmt.Errorf("error opening GeoPackage %s: %w", file, err)
	}
	return handle, nil
}

// getTableInfo collects all feature tables of the GeoPackage
func getTableInfo(ctx context.Context, h *gpkg.Handle) ([]Table, error) {
	query := `SELECT table_name, column_name, geometry_type_name, srs_id FROM gpkg_geometry_columns;`
	rows, err := h.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error reading the feature tables: %w", err)
	}
	defer rows.Close()

	var tables []Table
	var srsIDs []int
	for rows.Next() {
		var t Table
		var srsID int
		if err = rows.Scan(&t.Name, &t.gcolumn, &t.gtypeName, &srsID); err != nil {
			return nil, fmt.Errorf("error reading the table information: %w", err)
		}
		tables = append(tables, t)
		srsIDs = append(srsIDs, srsID)
	}
	if err = rows.Err(); err != nil {
		return nil, err
	}

	for i := range tables {
		tables[i].columns, err = getTableColumns(ctx, h, tables[i].Name)
		if err != nil {
			return nil, err
		}
		tables[i].srs, err = getSpatialReferenceSystem(ctx, h, srsIDs[i])
		if err != nil {
			return nil, err
		}
	}
	return tables, nil
}

// findTable picks the table by name, or the only feature table when name is empty
func findTable(tables []Table, name string) (Table, error) {
	if name == "" {
		if len(tables) == 1 {
			return tables[0], nil
		}
		names := make([]string, len(tables))
		for i, t := range tables {
			names[i] = t.Name
		}
		return Table{}, fmt.Errorf("%w: a layer name is required when there is not exactly one feature table (found: %s)",
			processing.ErrLayerNotFound, strings.Join(names, ", "))
	}
	for _, t := range tables {
		if t.Name == name {
			return t, nil
		}
	}
	return Table{}, fmt.Errorf("%w: %s", processing.ErrLayerNotFound, name)
}

func loadTable(ctx context.Context, h *gpkg.Handle, layer string) (Table, error) {
	tables, err := getTableInfo(ctx, h)
	if err != nil {
		return Table{}, err
	}
	t, err := findTable(tables, layer)
	if err != nil {
		return t, err
	}
	t.logUnsupportedGeometryType()
	return t, nil
}

// getSpatialReferenceSystem extracts this based on the given SRS id
func getSpatialReferenceSystem(ctx context.Context, h *gpkg.Handle, id int) (gpkg.SpatialReferenceSystem, error) {
	var srs gpkg.SpatialReferenceSystem
	query := `SELECT srs_name, srs_id, organization, organization_coordsys_id, definition, description FROM gpkg_spatial_ref_sys WHERE srs_id = ?;`

	row := h.QueryRowContext(ctx, query, id)
	var description *string
	err := row.Scan(&srs.Name, &srs.ID, &srs.Organization, &srs.OrganizationCoordsysID, &srs.Definition, &description)
	if err != nil {
		return srs, fmt.Errorf("error reading spatial reference system %d: %w", id, err)
	}
	if description != nil {
		srs.Description = *description
	}
	return srs, nil
}

// getTableColumns collects the column information of a given table
func getTableColumns(ctx context.Context, h *gpkg.Handle, table string) ([]column, error) {
	query := `PRAGMA table_info('%v');`
	rows, err := h.QueryContext(ctx, fmt.Sprintf(query, strings.ReplaceAll(table, `'`, `''`)))
	if err != nil {
		return nil, fmt.Errorf("error reading the columns of %s: %w", table, err)
	}
	defer rows.Close()

	var columns []column
	for rows.Next() {
		var column column
		err := rows.Scan(&column.cid, &column.name, &column.ctype, &column.notnull, &column.dfltValue, &column.pk)
		if err != nil {
			return nil, fmt.Errorf("error getting the column information: %w", err)
		}
		columns = append(columns, column)
	}
	return columns, rows.Err()
}

// selectSQL builds a SELECT statement with the attribute columns in table order
// followed by the geometry column
func (t Table) selectSQL() string {
	var csql []string
	for _, c := range t.attributeColumns() {
		csql = append(csql, quote(c.name))
	}
	csql = append(csql, quote(t.gcolumn))
	return `SELECT ` + strings.Join(csql, `,`) + ` FROM ` + quote(t.Name) + `;`
}

// insertSQL builds the INSERT statement for the attribute columns that are set and the geometry column.
// Columns that are not set get their default value.
func (t Table) insertSQL(set []bool) string {
	var csql, vsql []string
	for i, c := range t.attributeColumns() {
		if i < len(set) && set[i] {
			csql = append(csql, quote(c.name))
			vsql = append(vsql, `?`)
		}
	}
	csql = append(csql, quote(t.gcolumn))
	vsql = append(vsql, `?`)
	return `INSERT INTO ` + quote(t.Name) + `(` + strings.Join(csql, `,`) + `) VALUES(` + strings.Join(vsql, `,`) + `)`
}

func quote(identifier string) string {
	return `"` + strings.ReplaceAll(identifier, `"`, `""`) + `"`
}

var errUnexpectedType = errors.New("unexpected type for sqlite column data")

// normalizeValue copies the values the sqlite driver returns
func normalizeValue(v interface{}) (interface{}, error) {
	switch v := v.(type) {
	case []uint8:
		asBytes := make([]byte, len(v))
		copy(asBytes, v)
		return string(asBytes), nil
	case int64, float64, time.Time, string, bool, nil:
		return v, nil
	default:
		return nil, fmt.Errorf("%w: %T", errUnexpectedType, v)
	}
}
