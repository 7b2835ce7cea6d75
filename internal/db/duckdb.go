// Package db mirrors loaded features into an in-memory DuckDB table so a
// session can be inspected with SQL.
package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/pkg/errors"

	"github.com/joeblew999/plat-visor/internal/layer"
	"github.com/joeblew999/plat-visor/internal/logger"
	"github.com/joeblew999/plat-visor/internal/surface"
)

// Open returns a private in-memory DuckDB database. Extensions load first;
// after that the database cannot touch files or the network and its
// configuration is locked.
func Open() (*sql.DB, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, errors.Wrap(err, "open duckdb")
	}
	// a single connection keeps the in-memory catalog shared
	db.SetMaxOpenConns(1)

	// Load extensions
	for _, ext := range []string{"spatial"} {
		if _, err := db.Exec(fmt.Sprintf("INSTALL %s; LOAD %s;", ext, ext)); err != nil {
			logger.L().Debug("duckdb_extension_unavailable", "extension", ext, "err", err)
		}
	}
	for _, stmt := range []string{
		"SET enable_external_access = false",
		"SET lock_configuration = true",
	} {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, errors.Wrapf(err, "duckdb %q", stmt)
		}
	}
	return db, nil
}

const schema = `CREATE TABLE IF NOT EXISTS features (
	layer_key  VARCHAR NOT NULL,
	feature_id VARCHAR NOT NULL,
	properties VARCHAR,
	geometry   VARCHAR,
	PRIMARY KEY (layer_key, feature_id)
)`

// ErrReadOnly is returned by Query for statements that could modify the table.
var ErrReadOnly = errors.New("only SELECT, WITH, SHOW, DESCRIBE and SUMMARIZE statements are allowed")

// FeatureTable is the features table: one row per loaded feature with its
// properties as JSON text and its geometry as WKT in the map CRS.
type FeatureTable struct {
	db *sql.DB
}

// NewFeatureTable creates the features table in db.
func NewFeatureTable(ctx context.Context, db *sql.DB) (*FeatureTable, error) {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, errors.Wrap(err, "create features table")
	}
	return &FeatureTable{db: db}, nil
}

// DB returns the underlying database.
func (t *FeatureTable) DB() *sql.DB {
	return t.db
}

// Insert stores or replaces one feature of a layer.
func (t *FeatureTable) Insert(ctx context.Context, layerKey string, f *surface.Feature) error {
	props := make(map[string]any, len(f.Properties))
	for k, v := range f.Properties {
		if k == layer.MetadataKey || k == surface.GeometryProperty {
			continue
		}
		props[k] = v
	}
	data, err := json.Marshal(props)
	if err != nil {
		return errors.Wrapf(err, "encode properties of %s/%s", layerKey, f.ID)
	}

	var geom sql.NullString
	if f.Geometry != nil {
		geom = sql.NullString{String: wkt.MarshalString(f.Geometry), Valid: true}
	}

	_, err = t.db.ExecContext(ctx,
		"INSERT OR REPLACE INTO features (layer_key, feature_id, properties, geometry) VALUES (?, ?, ?, ?)",
		layerKey, f.ID, string(data), geom)
	return errors.Wrapf(err, "insert feature %s/%s", layerKey, f.ID)
}

// DeleteLayer drops every row of a layer and returns how many were removed.
func (t *FeatureTable) DeleteLayer(ctx context.Context, layerKey string) (int64, error) {
	res, err := t.db.ExecContext(ctx, "DELETE FROM features WHERE layer_key = ?", layerKey)
	if err != nil {
		return 0, errors.Wrapf(err, "delete features of %s", layerKey)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Counts returns the number of rows per layer key.
func (t *FeatureTable) Counts(ctx context.Context) (map[string]int, error) {
	rows, err := t.db.QueryContext(ctx, "SELECT layer_key, count(*) FROM features GROUP BY layer_key")
	if err != nil {
		return nil, errors.Wrap(err, "count features")
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			key string
			n   int
		)
		if err := rows.Scan(&key, &n); err != nil {
			return nil, errors.Wrap(err, "scan feature count")
		}
		counts[key] = n
	}
	return counts, errors.Wrap(rows.Err(), "count features")
}

// Rows is the result of an ad-hoc query.
type Rows struct {
	Columns []string
	Rows    []map[string]any
}

// Query runs a read-only statement and returns every row.
func (t *FeatureTable) Query(ctx context.Context, query string) (Rows, error) {
	if !readOnly(query) {
		return Rows{}, ErrReadOnly
	}
	rows, err := t.db.QueryContext(ctx, query)
	if err != nil {
		return Rows{}, errors.Wrap(err, "query")
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return Rows{}, errors.Wrap(err, "query columns")
	}

	out := Rows{Columns: columns, Rows: []map[string]any{}}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return Rows{}, errors.Wrap(err, "scan row")
		}
		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		out.Rows = append(out.Rows, row)
	}
	return out, errors.Wrap(rows.Err(), "query")
}

// Tables lists the tables of the database.
func (t *FeatureTable) Tables(ctx context.Context) ([]string, error) {
	res, err := t.Query(ctx, "SHOW TABLES")
	if err != nil {
		return nil, err
	}
	tables := make([]string, 0, len(res.Rows))
	for _, row := range res.Rows {
		if name, ok := row["name"].(string); ok {
			tables = append(tables, name)
		}
	}
	return tables, nil
}

func readOnly(query string) bool {
	q := strings.TrimSpace(query)
	if strings.Contains(strings.TrimSuffix(q, ";"), ";") {
		return false
	}
	words := strings.Fields(q)
	if len(words) == 0 {
		return false
	}
	switch strings.ToUpper(words[0]) {
	case "SELECT", "WITH", "SHOW", "DESCRIBE", "SUMMARIZE":
		return true
	}
	return false
}
