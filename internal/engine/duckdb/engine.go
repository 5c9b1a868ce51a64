// Package duckdb binds a resolved file set to the embedded DuckDB
// engine as one logical relation and executes the caller's SQL under
// the request's execution limits.
package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/flockql/flockql/internal/fault"
	"github.com/flockql/flockql/internal/govern"
	"github.com/flockql/flockql/internal/resolve"
	"github.com/flockql/flockql/internal/schema"
)

// batchSize is the scan batch length and therefore the granularity of
// cancellation and memory checkpoints.
const batchSize = 1024

// Column describes one output column as the engine declared it.
type Column struct {
	Name         string
	DatabaseType string
}

// Sink consumes execution output in arrival order. Bind is called once
// before the first Append.
type Sink interface {
	Bind(columns []Column) error
	Append(rows [][]any) error
}

// Request is one execution. Projections align one-to-one with
// Files.Files and map each file into the unified schema.
type Request struct {
	SQL         string
	Table       string
	RowLimit    int
	Files       resolve.FileSet
	Projections []schema.Projection
	Limits      govern.Limits
	Accountant  *govern.Accountant
}

// Stats summarizes a completed execution.
type Stats struct {
	Rows          int
	ScannedFiles  int
	ScannedBytes  int64
	ReservedBytes int64
	Duration      time.Duration
}

type Engine struct {
	Logger *slog.Logger
}

func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{Logger: logger}
}

// Execute runs the request's SQL over the bound relation and streams
// result batches into sink. Between batches it polls the context and
// reserves the batch's estimated bytes against the shared accountant;
// a ceiling breach aborts the query instead of letting the process be
// killed by the operating system. Engine diagnostics are preserved
// verbatim in query-error failures and are never reinterpreted here.
func (e *Engine) Execute(ctx context.Context, request Request, sink Sink) (Stats, error) {
	sqlText := stripTrailingSemicolons(request.SQL)
	if sqlText == "" {
		return Stats{}, fault.New(fault.KindQueryError, "sql text is required")
	}
	if len(request.Files.Files) == 0 {
		return Stats{}, fault.New(fault.KindNotFound, "no files bound to relation")
	}
	if len(request.Projections) != len(request.Files.Files) {
		return Stats{}, fmt.Errorf("projection count %d does not match file count %d", len(request.Projections), len(request.Files.Files))
	}
	if request.Limits.MaxWorkers < 1 || request.Limits.MemoryCeilingBytes <= 0 {
		return Stats{}, fault.New(fault.KindInvalidLimit, "execution limits are not set")
	}

	start := time.Now()

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return Stats{}, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	if err := e.configure(ctx, db, request.Limits); err != nil {
		return Stats{}, err
	}
	if err := e.bindRelation(ctx, db, request); err != nil {
		return Stats{}, err
	}

	if request.RowLimit > 0 {
		sqlText = fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", sqlText, request.RowLimit)
	}

	stats := Stats{ScannedFiles: len(request.Files.Files), ScannedBytes: request.Files.TotalBytes()}
	reserved, rowCount, err := e.scan(ctx, db, sqlText, request, sink)
	stats.ReservedBytes = reserved
	stats.Rows = rowCount
	stats.Duration = time.Since(start)
	if err != nil {
		return stats, err
	}

	e.Logger.Debug("query executed",
		slog.Int("rows", stats.Rows),
		slog.Int("scanned_files", stats.ScannedFiles),
		slog.Int64("scanned_bytes", stats.ScannedBytes),
		slog.Duration("duration", stats.Duration),
	)
	return stats, nil
}

// configure applies the execution limits to the engine itself. DuckDB's
// own memory_limit is a second guard under the cooperative accounting
// done in scan.
func (e *Engine) configure(ctx context.Context, db *sql.DB, limits govern.Limits) error {
	if _, err := db.ExecContext(ctx, fmt.Sprintf("SET threads TO %d", limits.MaxWorkers)); err != nil {
		return classifyEngineErr(ctx, fmt.Errorf("set threads: %w", err))
	}
	ceilingMiB := limits.MemoryCeilingBytes / (1 << 20)
	if ceilingMiB < 1 {
		ceilingMiB = 1
	}
	if _, err := db.ExecContext(ctx, fmt.Sprintf("SET memory_limit = '%dMiB'", ceilingMiB)); err != nil {
		return classifyEngineErr(ctx, fmt.Errorf("set memory limit: %w", err))
	}
	return nil
}

// bindRelation creates one view over all files, each file projected
// into the unified schema: widening casts where the native type
// differs, typed nulls where the file lacks a column.
func (e *Engine) bindRelation(ctx context.Context, db *sql.DB, request Request) error {
	selects := make([]string, 0, len(request.Files.Files))
	for i, file := range request.Files.Files {
		selects = append(selects, selectForFile(file, request.Projections[i]))
	}
	viewSQL := fmt.Sprintf("CREATE OR REPLACE VIEW %s AS %s", quoteIdent(request.Table), strings.Join(selects, " UNION ALL "))
	if _, err := db.ExecContext(ctx, viewSQL); err != nil {
		if ctx.Err() != nil {
			return classifyEngineErr(ctx, err)
		}
		return fault.Wrap(fault.KindQueryError, err, "bind relation %q", request.Table)
	}
	return nil
}

func (e *Engine) scan(ctx context.Context, db *sql.DB, sqlText string, request Request, sink Sink) (reserved int64, rowCount int, err error) {
	defer func() {
		if request.Accountant != nil && reserved > 0 {
			request.Accountant.Release(reserved)
		}
	}()

	rows, err := db.QueryContext(ctx, sqlText)
	if err != nil {
		return reserved, 0, classifyEngineErr(ctx, err)
	}
	defer func() { _ = rows.Close() }()

	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return reserved, 0, fault.Wrap(fault.KindQueryError, err, "describe result columns")
	}
	columns := make([]Column, 0, len(columnTypes))
	for _, columnType := range columnTypes {
		columns = append(columns, Column{Name: columnType.Name(), DatabaseType: columnType.DatabaseTypeName()})
	}
	if err := sink.Bind(columns); err != nil {
		return reserved, 0, err
	}

	batch := make([][]any, 0, batchSize)
	var batchBytes int64
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := checkpoint(ctx, request, &reserved, batchBytes); err != nil {
			return err
		}
		if err := sink.Append(batch); err != nil {
			return err
		}
		rowCount += len(batch)
		batch = make([][]any, 0, batchSize)
		batchBytes = 0
		return nil
	}

	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return reserved, rowCount, fault.Wrap(fault.KindQueryError, err, "scan row")
		}
		normalized := normalizeValues(values)
		batch = append(batch, normalized)
		batchBytes += estimateRowBytes(normalized)
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return reserved, rowCount, err
			}
		}
	}
	if err := rows.Err(); err != nil {
		return reserved, rowCount, classifyEngineErr(ctx, err)
	}
	if err := flush(); err != nil {
		return reserved, rowCount, err
	}
	return reserved, rowCount, nil
}

// checkpoint is the safe point between batches: cancellation is
// observed here, and the batch's estimated bytes are committed against
// the request ceiling and the shared accountant.
func checkpoint(ctx context.Context, request Request, reserved *int64, batchBytes int64) error {
	if err := ctx.Err(); err != nil {
		return fault.Wrap(fault.KindCancelled, err, "query cancelled")
	}
	if *reserved+batchBytes > request.Limits.MemoryCeilingBytes {
		return fault.New(fault.KindResourceExhausted,
			"result buffering needs more than the configured ceiling of %d bytes", request.Limits.MemoryCeilingBytes)
	}
	if request.Accountant != nil {
		request.Accountant.Reserve(batchBytes)
	}
	*reserved += batchBytes
	return nil
}

func classifyEngineErr(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return fault.Wrap(fault.KindCancelled, ctx.Err(), "query cancelled")
	}
	// The engine enforces its own memory_limit under the cooperative
	// accounting; an allocation failure there is still a ceiling breach.
	if strings.Contains(strings.ToLower(err.Error()), "out of memory") {
		return fault.Wrap(fault.KindResourceExhausted, err, "engine memory limit exceeded")
	}
	// The engine diagnostic travels verbatim; callers see exactly what
	// DuckDB reported.
	return &fault.Failure{Kind: fault.KindQueryError, Message: err.Error(), Err: err}
}

func selectForFile(file resolve.File, projection schema.Projection) string {
	exprs := make([]string, 0, len(projection.Rules))
	for _, rule := range projection.Rules {
		exprs = append(exprs, columnExpr(rule))
	}
	return fmt.Sprintf("SELECT %s FROM read_parquet(%s)", strings.Join(exprs, ", "), quoteString(file.LocalPath))
}

func columnExpr(rule schema.Rule) string {
	name := quoteIdent(rule.Column.Name)
	switch {
	case rule.Source == nil && rule.Column.Type == schema.TypeNested:
		return fmt.Sprintf("NULL AS %s", name)
	case rule.Source == nil:
		return fmt.Sprintf("CAST(NULL AS %s) AS %s", rule.Column.Type.SQL(), name)
	case rule.Column.Type == schema.TypeNested || rule.Source.Type == rule.Column.Type:
		return name
	default:
		return fmt.Sprintf("CAST(%s AS %s) AS %s", name, rule.Column.Type.SQL(), name)
	}
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func estimateRowBytes(values []any) int64 {
	// Interface header plus payload estimate per value; close enough
	// for a cooperative ceiling.
	var total int64
	for _, value := range values {
		total += 16
		switch typed := value.(type) {
		case string:
			total += int64(len(typed))
		case []byte:
			total += int64(len(typed))
		case time.Time:
			total += 24
		default:
			total += 8
		}
	}
	return total
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
