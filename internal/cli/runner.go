// Package cli implements the flockql command: one SQL statement over
// the files matched by the positional path patterns.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/flockql/flockql"
	"github.com/flockql/flockql/internal/config"
	"github.com/flockql/flockql/internal/output"
	"github.com/flockql/flockql/internal/storage/s3"
)

type Options struct {
	Config config.Config
	Logger *slog.Logger
	Stdout io.Writer
	Stderr io.Writer

	// Store overrides the config-built object store; used by tests.
	Store flockql.ObjectStore
}

// Run parses args and executes the query. Exit codes: 0 on success, 1
// on a classified failure, 2 on usage errors.
func Run(ctx context.Context, args []string, defaults Options) int {
	stdout := defaults.Stdout
	if stdout == nil {
		stdout = io.Discard
	}
	stderr := defaults.Stderr
	if stderr == nil {
		stderr = io.Discard
	}

	fs := flag.NewFlagSet("flockql", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() { writeUsage(stderr, fs) }

	cfg := defaults.Config
	sqlText := fs.String("q", "", "SQL statement to run over the bound relation")
	format := fs.String("f", "table", "output format: table, csv, jsonl")
	parallel := fs.Bool("parallel", cfg.Query.Parallel, "execute with multiple workers")
	memoryLimit := fs.String("memory-limit", cfg.Query.MemoryLimit, "memory budget: percentage of system memory (\"75%\") or bytes (\"2GiB\")")
	table := fs.String("table", cfg.Query.Table, "SQL name the file set is bound under")
	rowLimit := fs.Int("limit", 0, "limit result rows (0 = unlimited)")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	patterns := fs.Args()
	if len(patterns) == 0 {
		_, _ = fmt.Fprintln(stderr, "at least one path pattern is required")
		writeUsage(stderr, fs)
		return 2
	}
	if strings.TrimSpace(*sqlText) == "" {
		_, _ = fmt.Fprintln(stderr, "-q is required")
		writeUsage(stderr, fs)
		return 2
	}

	formatter, err := output.New(*format, stdout)
	if err != nil {
		_, _ = fmt.Fprintln(stderr, err)
		return 2
	}

	query := flockql.New(patterns, *sqlText).
		WithParallel(*parallel).
		WithMemoryLimit(*memoryLimit).
		WithTable(*table).
		WithRowLimit(*rowLimit).
		WithWorkerCap(cfg.Query.WorkerCap).
		WithLogger(defaults.Logger)

	store := defaults.Store
	if store == nil && cfg.ObjectStore.Enabled() && hasRemotePattern(patterns) {
		s3Store, err := s3.New(s3.Config{
			Endpoint:        cfg.ObjectStore.Endpoint,
			Region:          cfg.ObjectStore.Region,
			Bucket:          cfg.ObjectStore.Bucket,
			AccessKeyID:     cfg.ObjectStore.AccessKeyID,
			SecretAccessKey: cfg.ObjectStore.SecretAccessKey,
			UseSSL:          cfg.ObjectStore.UseSSL,
			Prefix:          cfg.ObjectStore.Prefix,
		})
		if err != nil {
			_, _ = fmt.Fprintf(stderr, "object store: %v\n", err)
			return 1
		}
		store = s3Store
	}
	if store != nil {
		query = query.WithStore(store, cfg.ObjectStore.Bucket)
	}

	result, err := query.Run(ctx)
	if err != nil {
		var failure *flockql.Failure
		if errors.As(err, &failure) {
			_, _ = fmt.Fprintf(stderr, "%s (%s): %s\n", failure.Kind, failure.Stage, failure.Message)
		} else {
			_, _ = fmt.Fprintln(stderr, err)
		}
		return 1
	}

	if err := formatter.Format(result); err != nil {
		_, _ = fmt.Fprintf(stderr, "render result: %v\n", err)
		return 1
	}
	return 0
}

func hasRemotePattern(patterns []string) bool {
	for _, pattern := range patterns {
		if strings.HasPrefix(pattern, "s3://") {
			return true
		}
	}
	return false
}

func writeUsage(w io.Writer, fs *flag.FlagSet) {
	_, _ = fmt.Fprintln(w, "usage: flockql -q <sql> [flags] <pattern> [pattern...]")
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "examples:")
	_, _ = fmt.Fprintln(w, `  flockql -q "SELECT count(*) FROM files" data/*.parquet`)
	_, _ = fmt.Fprintln(w, `  flockql -q "SELECT a, b FROM files ORDER BY a" -f csv one.parquet two.parquet`)
	_, _ = fmt.Fprintln(w, `  flockql -q "SELECT * FROM files" -memory-limit 2GiB -parallel=false "s3://lake/events/*.parquet"`)
	_, _ = fmt.Fprintln(w, "")
	_, _ = fmt.Fprintln(w, "flags:")
	fs.PrintDefaults()
}
