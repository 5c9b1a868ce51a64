package output

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/flockql/flockql"
)

// JSONLFormatter writes one JSON object per row, keyed by column name.
// Nulls stay JSON null.
type JSONLFormatter struct {
	writer io.Writer
}

func NewJSONLFormatter(w io.Writer) *JSONLFormatter {
	return &JSONLFormatter{writer: w}
}

func (j *JSONLFormatter) Format(table *flockql.Table) error {
	encoder := json.NewEncoder(j.writer)
	for _, row := range table.Rows {
		object := make(map[string]any, len(table.Columns))
		for i, column := range table.Columns {
			if i < len(row) {
				object[column.Name] = row[i]
			}
		}
		if err := encoder.Encode(object); err != nil {
			return fmt.Errorf("encode JSON row: %w", err)
		}
	}
	return nil
}
