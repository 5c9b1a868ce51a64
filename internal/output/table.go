package output

import (
	"io"

	"github.com/olekukonko/tablewriter"

	"github.com/flockql/flockql"
)

// TableFormatter renders an aligned text table.
type TableFormatter struct {
	writer io.Writer
}

func NewTableFormatter(w io.Writer) *TableFormatter {
	return &TableFormatter{writer: w}
}

func (t *TableFormatter) Format(table *flockql.Table) error {
	out := tablewriter.NewWriter(t.writer)

	header := make([]string, 0, len(table.Columns))
	for _, column := range table.Columns {
		header = append(header, column.Name)
	}
	out.SetHeader(header)
	out.SetAutoFormatHeaders(false)

	for _, row := range table.Rows {
		cells := make([]string, 0, len(row))
		for _, value := range row {
			cells = append(cells, renderValue(value))
		}
		out.Append(cells)
	}
	out.Render()
	return nil
}
