package output

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/flockql/flockql"
)

// CSVFormatter writes a header row followed by one record per result
// row. Nulls render as empty fields.
type CSVFormatter struct {
	writer io.Writer
}

func NewCSVFormatter(w io.Writer) *CSVFormatter {
	return &CSVFormatter{writer: w}
}

func (c *CSVFormatter) Format(table *flockql.Table) error {
	out := csv.NewWriter(c.writer)

	header := make([]string, 0, len(table.Columns))
	for _, column := range table.Columns {
		header = append(header, column.Name)
	}
	if err := out.Write(header); err != nil {
		return fmt.Errorf("write CSV header: %w", err)
	}

	for _, row := range table.Rows {
		record := make([]string, 0, len(row))
		for _, value := range row {
			if value == nil {
				record = append(record, "")
				continue
			}
			record = append(record, renderValue(value))
		}
		if err := out.Write(record); err != nil {
			return fmt.Errorf("write CSV record: %w", err)
		}
	}

	out.Flush()
	if err := out.Error(); err != nil {
		return fmt.Errorf("flush CSV writer: %w", err)
	}
	return nil
}
