package flockql

import (
	"time"

	"github.com/flockql/flockql/internal/engine/duckdb"
)

// Column describes one output column as the query declared or inferred
// it; the type is the engine's type name (for example BIGINT, DOUBLE,
// VARCHAR), not necessarily a unified-schema type, since queries may
// compute new columns.
type Column struct {
	Name string
	Type string
}

// Table is the complete materialized result of one query. Nulls appear
// as nil values, never coerced to defaults, and the result is never
// truncated or sampled: bounding result size is the query's job, via
// LIMIT and filters. The caller owns the table exclusively once
// returned.
type Table struct {
	Columns []Column
	Rows    [][]any
	Stats   Stats
}

// Stats describes how the result was produced.
type Stats struct {
	ScannedFiles int
	ScannedBytes int64
	Duration     time.Duration
}

// materializer assembles the final table from the executor's output
// batches in arrival order.
type materializer struct {
	table Table
}

func (m *materializer) Bind(columns []duckdb.Column) error {
	m.table.Columns = make([]Column, 0, len(columns))
	for _, column := range columns {
		m.table.Columns = append(m.table.Columns, Column{Name: column.Name, Type: column.DatabaseType})
	}
	return nil
}

func (m *materializer) Append(rows [][]any) error {
	m.table.Rows = append(m.table.Rows, rows...)
	return nil
}

func (m *materializer) finish(stats duckdb.Stats) *Table {
	m.table.Stats = Stats{
		ScannedFiles: stats.ScannedFiles,
		ScannedBytes: stats.ScannedBytes,
		Duration:     stats.Duration,
	}
	if m.table.Rows == nil {
		m.table.Rows = [][]any{}
	}
	return &m.table
}
