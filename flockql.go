// Package flockql runs a single SQL statement over an arbitrary
// collection of columnar files and returns one unified tabular result.
// Path patterns are expanded into a concrete file set, the files'
// schemas are reconciled into one logical schema, and the query
// executes on embedded DuckDB under explicit parallelism and
// memory-budget limits.
//
//	table, err := flockql.New(
//		[]string{"events/2024-*.parquet", "s3://lake/events/2025/*.parquet"},
//		"SELECT region, count(*) AS n FROM files GROUP BY region ORDER BY n DESC",
//	).WithMemoryLimit("2GiB").Run(ctx)
//
// Every call is independent: nothing is shared across invocations
// except read access to the underlying files and the optional shared
// memory accountant.
package flockql

import (
	"context"
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/flockql/flockql/internal/engine/duckdb"
	"github.com/flockql/flockql/internal/fault"
	"github.com/flockql/flockql/internal/govern"
	"github.com/flockql/flockql/internal/observability"
	"github.com/flockql/flockql/internal/resolve"
	"github.com/flockql/flockql/internal/schema"
	"github.com/flockql/flockql/internal/spool"
	"github.com/flockql/flockql/internal/storage"
)

// Accountant is the process-wide counter of bytes committed to query
// execution. Callers running concurrent queries should create one and
// pass it to every query so the requests account against each other.
type Accountant = govern.Accountant

// ObjectStore serves s3:// patterns.
type ObjectStore = storage.ObjectStore

// NewAccountant returns an accountant whose committed total is mirrored
// into the process metrics.
func NewAccountant() *Accountant {
	return &Accountant{Gauge: observability.SetReservedBytes}
}

// Query is one request in preparation. Zero values mean the defaults:
// parallel execution, a memory ceiling of 75% of system memory, and the
// file set bound under the relation name "files".
type Query struct {
	patterns    []string
	sql         string
	parallel    bool
	memoryLimit string
	table       string
	rowLimit    int
	workerCap   int
	logger      *slog.Logger
	accountant  *Accountant
	governor    *govern.Governor
	store       ObjectStore
	bucket      string
}

// New prepares a query over the files selected by patterns.
func New(patterns []string, sql string) *Query {
	return &Query{
		patterns:    patterns,
		sql:         sql,
		parallel:    true,
		memoryLimit: "75%",
		table:       "files",
	}
}

// WithParallel toggles parallel execution. Serial execution always runs
// on exactly one worker regardless of host core count.
func (q *Query) WithParallel(parallel bool) *Query {
	q.parallel = parallel
	return q
}

// WithMemoryLimit sets the memory budget: a percentage of total system
// memory ("75%") or an absolute byte quantity ("512MB", "2GiB").
func (q *Query) WithMemoryLimit(limit string) *Query {
	q.memoryLimit = limit
	return q
}

// WithTable sets the SQL name the file set is bound under.
func (q *Query) WithTable(table string) *Query {
	q.table = table
	return q
}

// WithRowLimit bounds the result to n rows by wrapping the query in a
// LIMIT. Zero means unlimited.
func (q *Query) WithRowLimit(n int) *Query {
	q.rowLimit = n
	return q
}

// WithWorkerCap overrides the ceiling applied to parallel worker
// derivation.
func (q *Query) WithWorkerCap(n int) *Query {
	q.workerCap = n
	return q
}

func (q *Query) WithLogger(logger *slog.Logger) *Query {
	q.logger = logger
	return q
}

// WithAccountant shares a memory accountant across queries.
func (q *Query) WithAccountant(accountant *Accountant) *Query {
	q.accountant = accountant
	return q
}

// WithStore enables s3://bucket/... patterns against the given store.
func (q *Query) WithStore(store ObjectStore, bucket string) *Query {
	q.store = store
	q.bucket = bucket
	return q
}

// Execute runs sql over the files selected by patterns with the
// defaults: parallel execution and a 75% memory budget.
func Execute(ctx context.Context, patterns []string, sql string) (*Table, error) {
	return New(patterns, sql).Run(ctx)
}

// Run executes the query. It blocks until the request either succeeds
// with a complete table or fails with a single classified Failure;
// there is no partial result and no automatic retry. Cancel ctx to
// interrupt execution at the next batch boundary.
func (q *Query) Run(ctx context.Context) (*Table, error) {
	start := time.Now()
	table, stats, err := q.run(ctx)
	if err != nil {
		observability.ObserveQuery(string(failureKind(err)), time.Since(start), stats.ScannedBytes, stats.ScannedFiles)
		return nil, err
	}
	observability.ObserveQuery("ok", time.Since(start), stats.ScannedBytes, stats.ScannedFiles)
	return table, nil
}

func (q *Query) run(ctx context.Context) (*Table, duckdb.Stats, error) {
	logger := q.logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	// Limits are derived before resolution so a malformed specification
	// is reported without touching the file system.
	governor := q.governor
	if governor == nil {
		governor = &govern.Governor{WorkerCap: q.workerCap}
	}
	limits, err := governor.Derive(q.parallel, q.memoryLimit)
	if err != nil {
		return nil, duckdb.Stats{}, fault.At(fault.StageGoverning, err)
	}
	logger.Debug("limits derived",
		slog.Int("max_workers", limits.MaxWorkers),
		slog.String("memory_ceiling", humanize.IBytes(uint64(limits.MemoryCeilingBytes))),
	)

	requestSpool, err := spool.New()
	if err != nil {
		return nil, duckdb.Stats{}, fault.At(fault.StageResolving, err)
	}
	defer func() { _ = requestSpool.Close() }()

	resolver := &resolve.Resolver{Spool: requestSpool, Store: q.store, Bucket: q.bucket}
	fileSet, err := resolver.Resolve(ctx, q.patterns)
	if err != nil {
		return nil, duckdb.Stats{}, fault.At(fault.StageResolving, err)
	}
	logger.Debug("patterns resolved",
		slog.Int("files", len(fileSet.Files)),
		slog.String("bytes", humanize.IBytes(uint64(fileSet.TotalBytes()))),
	)

	fileSchemas := make([]schema.FileSchema, 0, len(fileSet.Files))
	for _, file := range fileSet.Files {
		fileSchema, err := schema.ReadFileSchema(file.LocalPath)
		if err != nil {
			return nil, duckdb.Stats{}, fault.At(fault.StageUnifying,
				fault.Wrap(fault.KindQueryError, err, "inspect schema of %q", file.Path))
		}
		fileSchema.Path = file.Path
		fileSchemas = append(fileSchemas, fileSchema)
	}
	unified, projections, err := schema.Unify(fileSchemas)
	if err != nil {
		return nil, duckdb.Stats{}, fault.At(fault.StageUnifying, err)
	}
	logger.Debug("schemas unified", slog.Int("columns", len(unified.Columns)))

	accountant := q.accountant
	if accountant == nil {
		accountant = NewAccountant()
	}

	sink := &materializer{}
	stats, err := duckdb.NewEngine(logger).Execute(ctx, duckdb.Request{
		SQL:         q.sql,
		Table:       q.table,
		RowLimit:    q.rowLimit,
		Files:       fileSet,
		Projections: projections,
		Limits:      limits,
		Accountant:  accountant,
	}, sink)
	if err != nil {
		return nil, stats, fault.At(fault.StageExecuting, err)
	}

	return sink.finish(stats), stats, nil
}

func failureKind(err error) Kind {
	failure := fault.At(fault.StageExecuting, err)
	return failure.Kind
}
