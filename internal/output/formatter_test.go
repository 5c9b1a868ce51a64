package output

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/flockql/flockql"
)

func sampleTable() *flockql.Table {
	return &flockql.Table{
		Columns: []flockql.Column{{Name: "a", Type: "BIGINT"}, {Name: "b", Type: "VARCHAR"}},
		Rows: [][]any{
			{int64(1), "x"},
			{int64(2), nil},
		},
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := New("yaml", &bytes.Buffer{}); err == nil {
		t.Fatalf("New(yaml) error = nil")
	}
}

func TestCSVFormatterRendersNullsAsEmptyFields(t *testing.T) {
	var buf bytes.Buffer
	formatter := NewCSVFormatter(&buf)
	if err := formatter.Format(sampleTable()); err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want 3", len(lines))
	}
	if lines[0] != "a,b" {
		t.Fatalf("header = %q", lines[0])
	}
	if lines[2] != "2," {
		t.Fatalf("null row = %q, want \"2,\"", lines[2])
	}
}

func TestJSONLFormatterKeepsNulls(t *testing.T) {
	var buf bytes.Buffer
	formatter := NewJSONLFormatter(&buf)
	if err := formatter.Format(sampleTable()); err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("lines = %d, want 2", len(lines))
	}
	var second map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	value, present := second["b"]
	if !present || value != nil {
		t.Fatalf("b = %v (present=%v), want explicit null", value, present)
	}
}

func TestTableFormatterIncludesHeaderAndValues(t *testing.T) {
	var buf bytes.Buffer
	formatter := NewTableFormatter(&buf)
	if err := formatter.Format(sampleTable()); err != nil {
		t.Fatalf("Format() error = %v", err)
	}

	rendered := buf.String()
	for _, want := range []string{"a", "b", "1", "x", "null"} {
		if !strings.Contains(rendered, want) {
			t.Fatalf("rendered table missing %q:\n%s", want, rendered)
		}
	}
}
