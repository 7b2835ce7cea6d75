package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"
	"github.com/pkg/errors"

	"github.com/joeblew999/plat-visor/internal/db"
)

// DBHandler exposes the session feature table.
type DBHandler struct {
	table *db.FeatureTable
}

// NewDBHandler creates a new database handler. A nil table answers 503.
func NewDBHandler(table *db.FeatureTable) *DBHandler {
	return &DBHandler{table: table}
}

// RegisterRoutes registers database routes with Huma.
func (h *DBHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/tables", h.ListTables, huma.OperationTags("db"))
	huma.Post(api, "/api/v1/query", h.Query, huma.OperationTags("db"))
}

// TablesBody lists the tables and the mirrored features per layer.
type TablesBody struct {
	Tables   []string       `json:"tables" doc:"List of table names"`
	Features map[string]int `json:"features" doc:"Rows in the features table per layer key"`
}

// ListTables returns all DuckDB tables.
func (h *DBHandler) ListTables(ctx context.Context, input *struct{}) (*struct{ Body TablesBody }, error) {
	if h.table == nil {
		return nil, huma.Error503ServiceUnavailable("Feature table not enabled")
	}

	tables, err := h.table.Tables(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to list tables", err)
	}
	counts, err := h.table.Counts(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("Failed to count features", err)
	}
	return &struct{ Body TablesBody }{Body: TablesBody{Tables: tables, Features: counts}}, nil
}

// QueryInput is the input for SQL queries.
type QueryInput struct {
	Body struct {
		Query string `json:"query" required:"true" doc:"Read-only SQL query to execute" example:"SELECT layer_key, count(*) FROM features GROUP BY 1"`
	}
}

// QueryBody is the response for SQL queries.
type QueryBody struct {
	Columns []string         `json:"columns" doc:"Column names"`
	Rows    []map[string]any `json:"rows" doc:"Query results"`
	Count   int              `json:"count" doc:"Number of rows returned"`
}

// Query executes a read-only SQL query against the feature table.
func (h *DBHandler) Query(ctx context.Context, input *QueryInput) (*struct{ Body QueryBody }, error) {
	if h.table == nil {
		return nil, huma.Error503ServiceUnavailable("Feature table not enabled")
	}

	res, err := h.table.Query(ctx, input.Body.Query)
	if errors.Is(err, db.ErrReadOnly) {
		return nil, huma.Error403Forbidden(err.Error())
	}
	if err != nil {
		return nil, huma.Error400BadRequest("Query failed: " + err.Error())
	}
	return &struct{ Body QueryBody }{Body: QueryBody{
		Columns: res.Columns,
		Rows:    res.Rows,
		Count:   len(res.Rows),
	}}, nil
}
