package flockql

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/parquet-go/parquet-go"

	"github.com/flockql/flockql/internal/govern"
)

type rowAB struct {
	A int64 `parquet:"a"`
	B int64 `parquet:"b"`
}

type rowABC struct {
	A int64 `parquet:"a"`
	B int64 `parquet:"b"`
	C int64 `parquet:"c"`
}

type rowAC struct {
	A int64 `parquet:"a"`
	C int64 `parquet:"c"`
}

type textRow struct {
	A string `parquet:"a"`
}

func TestRunUnifiesHeterogeneousFiles(t *testing.T) {
	dir := t.TempDir()
	writeParquet(t, filepath.Join(dir, "one.parquet"), []rowAB{{A: 1, B: 10}, {A: 2, B: 20}})
	writeParquet(t, filepath.Join(dir, "two.parquet"), []rowABC{{A: 3, B: 30, C: 300}})
	writeParquet(t, filepath.Join(dir, "three.parquet"), []rowAC{{A: 4, C: 400}})

	table, err := New([]string{filepath.Join(dir, "*.parquet")}, "SELECT a, b, c FROM files ORDER BY a").Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(table.Columns) != 3 {
		t.Fatalf("columns = %+v", table.Columns)
	}
	if table.Columns[0].Name != "a" || table.Columns[1].Name != "b" || table.Columns[2].Name != "c" {
		t.Fatalf("column names = %+v", table.Columns)
	}
	if len(table.Rows) != 4 {
		t.Fatalf("rows = %d, want 4", len(table.Rows))
	}
	if table.Rows[0][2] != nil {
		t.Fatalf("c should be null for file one rows: %#v", table.Rows[0])
	}
	if table.Rows[3][1] != nil {
		t.Fatalf("b should be null for file three rows: %#v", table.Rows[3])
	}
	if table.Stats.ScannedFiles != 3 {
		t.Fatalf("ScannedFiles = %d, want 3", table.Stats.ScannedFiles)
	}
}

func TestRunZeroMatchesIsNotFoundNeverEmptyTable(t *testing.T) {
	dir := t.TempDir()

	table, err := Execute(context.Background(), []string{filepath.Join(dir, "*.parquet")}, "SELECT 1")
	if table != nil {
		t.Fatalf("table = %+v, want nil on failure", table)
	}
	if !IsKind(err, KindNotFound) {
		t.Fatalf("err = %v, want not_found", err)
	}
	var failure *Failure
	if !errors.As(err, &failure) || failure.Stage != StageResolving {
		t.Fatalf("stage = %v, want resolving", err)
	}
}

func TestRunIncompatibleTypesIsSchemaConflict(t *testing.T) {
	dir := t.TempDir()
	writeParquet(t, filepath.Join(dir, "numbers.parquet"), []rowAB{{A: 1, B: 1}})
	writeParquet(t, filepath.Join(dir, "text.parquet"), []textRow{{A: "one"}})

	_, err := Execute(context.Background(), []string{filepath.Join(dir, "*.parquet")}, "SELECT a FROM files")
	if !IsKind(err, KindSchemaConflict) {
		t.Fatalf("err = %v, want schema_conflict", err)
	}
}

func TestRunInvalidLimitReportedBeforeFileAccess(t *testing.T) {
	// The pattern points nowhere; invalid_limit must win because limits
	// are validated before any file I/O.
	q := New([]string{filepath.Join(t.TempDir(), "missing", "*.parquet")}, "SELECT 1").
		WithMemoryLimit("0%")

	_, err := q.Run(context.Background())
	if !IsKind(err, KindInvalidLimit) {
		t.Fatalf("err = %v, want invalid_limit", err)
	}
	var failure *Failure
	if !errors.As(err, &failure) || failure.Stage != StageGoverning {
		t.Fatalf("stage = %v, want governing", err)
	}
}

func TestRunSerialModeForcesOneWorker(t *testing.T) {
	dir := t.TempDir()
	writeParquet(t, filepath.Join(dir, "one.parquet"), []rowAB{{A: 1, B: 1}})

	q := New([]string{filepath.Join(dir, "one.parquet")}, "SELECT a FROM files").WithParallel(false)
	q.governor = &govern.Governor{
		NumCPU:      func() int { return 64 },
		TotalMemory: func() (uint64, error) { return 16 << 30, nil },
	}

	if _, err := q.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	derived, err := q.governor.Derive(false, "75%")
	if err != nil {
		t.Fatalf("Derive() error = %v", err)
	}
	if derived.MaxWorkers != 1 {
		t.Fatalf("workers = %d, want 1", derived.MaxWorkers)
	}
}

func TestRunMemoryCeilingAbortsWithoutPartialResult(t *testing.T) {
	dir := t.TempDir()
	rows := make([]rowAB, 2000)
	for i := range rows {
		rows[i] = rowAB{A: int64(i), B: int64(i % 7)}
	}
	writeParquet(t, filepath.Join(dir, "big.parquet"), rows)

	accountant := NewAccountant()
	table, err := New([]string{filepath.Join(dir, "big.parquet")}, "SELECT a, b FROM files").
		WithMemoryLimit("1KiB").
		WithAccountant(accountant).
		Run(context.Background())
	if table != nil {
		t.Fatalf("table = %+v, want nil on failure", table)
	}
	if !IsKind(err, KindResourceExhausted) {
		t.Fatalf("err = %v, want resource_exhausted", err)
	}
	if got := accountant.Committed(); got != 0 {
		t.Fatalf("Committed() = %d, want 0 after abort", got)
	}
}

func TestRunCancelledContext(t *testing.T) {
	dir := t.TempDir()
	writeParquet(t, filepath.Join(dir, "one.parquet"), []rowAB{{A: 1, B: 1}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Execute(ctx, []string{filepath.Join(dir, "one.parquet")}, "SELECT a FROM files")
	if !IsKind(err, KindCancelled) {
		t.Fatalf("err = %v, want cancelled", err)
	}
}

func TestRunIsDeterministicForOrderedQueries(t *testing.T) {
	dir := t.TempDir()
	writeParquet(t, filepath.Join(dir, "one.parquet"), []rowAB{{A: 2, B: 20}, {A: 1, B: 10}})
	writeParquet(t, filepath.Join(dir, "two.parquet"), []rowABC{{A: 3, B: 30, C: 3}})

	run := func() *Table {
		table, err := Execute(context.Background(), []string{filepath.Join(dir, "*.parquet")}, "SELECT a, b FROM files ORDER BY a")
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		return table
	}
	first := run()
	second := run()
	if !reflect.DeepEqual(first.Rows, second.Rows) {
		t.Fatalf("identical requests disagree:\n%v\n%v", first.Rows, second.Rows)
	}
}

func TestRunReadsCompressedInputs(t *testing.T) {
	dir := t.TempDir()
	plain := filepath.Join(dir, "plain.parquet")
	writeParquet(t, plain, []rowAB{{A: 1, B: 10}})

	body, err := os.ReadFile(plain)
	if err != nil {
		t.Fatalf("ReadFile() error = %v", err)
	}
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(body); err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	compressed := filepath.Join(dir, "packed.parquet.gz")
	if err := os.WriteFile(compressed, buf.Bytes(), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	table, err := Execute(context.Background(), []string{compressed}, "SELECT a, b FROM files")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(table.Rows) != 1 || table.Rows[0][0] != int64(1) {
		t.Fatalf("rows = %v", table.Rows)
	}
}

func TestRunRowLimitBoundsResult(t *testing.T) {
	dir := t.TempDir()
	writeParquet(t, filepath.Join(dir, "one.parquet"), []rowAB{{A: 1, B: 1}, {A: 2, B: 2}, {A: 3, B: 3}})

	table, err := New([]string{filepath.Join(dir, "one.parquet")}, "SELECT a FROM files ORDER BY a").
		WithRowLimit(2).
		Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(table.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(table.Rows))
	}
}

func TestRunQueryErrorPreservesDiagnostic(t *testing.T) {
	dir := t.TempDir()
	writeParquet(t, filepath.Join(dir, "one.parquet"), []rowAB{{A: 1, B: 1}})

	_, err := Execute(context.Background(), []string{filepath.Join(dir, "one.parquet")}, "SELECT missing_column FROM files")
	if !IsKind(err, KindQueryError) {
		t.Fatalf("err = %v, want query_error", err)
	}
	var failure *Failure
	if !errors.As(err, &failure) || failure.Message == "" {
		t.Fatalf("engine diagnostic missing: %v", err)
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
