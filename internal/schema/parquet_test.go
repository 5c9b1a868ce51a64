package schema

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/parquet-go/parquet-go"
)

type sensorRow struct {
	ID    int64    `parquet:"id"`
	Score float64  `parquet:"score"`
	Name  string   `parquet:"name"`
	OK    bool     `parquet:"ok"`
	Note  *string  `parquet:"note,optional"`
}

func TestReadFileSchemaMapsSemanticTypes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sensors.parquet")
	writeParquet(t, path, []sensorRow{{ID: 1, Score: 0.5, Name: "a", OK: true}})

	fileSchema, err := ReadFileSchema(path)
	if err != nil {
		t.Fatalf("ReadFileSchema() error = %v", err)
	}

	want := map[string]Type{
		"id":    TypeInteger,
		"score": TypeFloat,
		"name":  TypeText,
		"ok":    TypeBoolean,
		"note":  TypeText,
	}
	if len(fileSchema.Fields) != len(want) {
		t.Fatalf("fields = %d, want %d", len(fileSchema.Fields), len(want))
	}
	for _, field := range fileSchema.Fields {
		if want[field.Name] != field.Type {
			t.Fatalf("field %q type = %v, want %v", field.Name, field.Type, want[field.Name])
		}
		if field.Name == "note" && !field.Optional {
			t.Fatalf("field note optional = false")
		}
	}
}

func TestReadFileSchemaRejectsNonParquet(t *testing.T) {
	path := filepath.Join(t.TempDir(), "not.parquet")
	if err := os.WriteFile(path, []byte("plain text"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	if _, err := ReadFileSchema(path); err == nil {
		t.Fatalf("ReadFileSchema() error = nil")
	}
}

func writeParquet[T any](t *testing.T, path string, rows []T) {
	t.Helper()
	file, err := os.Create(path)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	writer := parquet.NewGenericWriter[T](file)
	if _, err := writer.Write(rows); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if err := file.Close(); err != nil {
		t.Fatalf("file close error = %v", err)
	}
}
