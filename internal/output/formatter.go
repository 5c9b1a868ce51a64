// Package output renders result tables for the command line.
//
// Supported formats: an aligned text table, CSV with a header row, and
// JSON Lines (one object per row).
package output

import (
	"fmt"
	"io"
	"time"

	"github.com/flockql/flockql"
)

// Formatter writes a result table in one specific format.
type Formatter interface {
	Format(table *flockql.Table) error
}

// New returns the formatter for a format name.
func New(format string, w io.Writer) (Formatter, error) {
	switch format {
	case "table":
		return NewTableFormatter(w), nil
	case "csv":
		return NewCSVFormatter(w), nil
	case "jsonl":
		return NewJSONLFormatter(w), nil
	default:
		return nil, fmt.Errorf("unknown output format %q (want table, csv, or jsonl)", format)
	}
}

// renderValue renders one cell. null stands in for SQL NULL so it stays
// distinguishable from an empty string.
func renderValue(value any) string {
	switch typed := value.(type) {
	case nil:
		return "null"
	case string:
		return typed
	case time.Time:
		return typed.UTC().Format(time.RFC3339Nano)
	default:
		return fmt.Sprintf("%v", typed)
	}
}
