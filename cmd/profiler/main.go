package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"dataprofiler/internal/metrics"
	"dataprofiler/internal/metrics/datadog"
	"dataprofiler/internal/pattern"
	"dataprofiler/internal/profile"
	"dataprofiler/internal/profiler"
	"dataprofiler/internal/source"
	"dataprofiler/internal/source/csvfile"
	"dataprofiler/internal/source/htmltable"
	"dataprofiler/internal/source/sqldb"
	"dataprofiler/internal/storage"

	// register all backends with the storage factory.
	// the store kind is chosen at runtime but support for all of them is built in.
	_ "dataprofiler/internal/storage/all"

	// register database/sql drivers for the db source kinds.
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/microsoft/go-mssqldb"
	_ "modernc.org/sqlite"
)

// main is the entry point for the profiler binary. It opens the data source,
// profiles the selected columns with a worker pool, and writes the results to
// the profile store (or stdout when no store is configured).
func main() {
	var (
		sourceKind string
		sourceName string
		path       string
		dsn        string
		schema     string
		table      string
		columnsFlg string

		csvComma     string
		csvCharset   string
		noHeader     bool
		htmlSelector string

		sampleSize int
		topK       int
		bins       int
		workers    int

		storeKind  string
		storeDSN   string
		storeTable string
		saveErrors bool

		metricsBackendFlg string
	)

	flag.StringVar(&sourceKind, "source", "csv", "data source kind (csv, html, postgres, sqlite, mssql)")
	flag.StringVar(&sourceName, "source-name", "", "source label used in attribute keys (defaults to the source kind)")
	flag.StringVar(&path, "path", "", "input file path (csv/html sources)")
	flag.StringVar(&dsn, "dsn", "", "database DSN (db sources; overrides env DATABASE_DSN)")
	flag.StringVar(&schema, "schema", "", "schema of the table to profile (db sources)")
	flag.StringVar(&table, "table", "", "table to profile (db sources)")
	flag.StringVar(&columnsFlg, "columns", "", "comma-separated columns to profile (empty = all)")

	flag.StringVar(&csvComma, "csv-comma", ",", "CSV field delimiter")
	flag.StringVar(&csvCharset, "csv-charset", "", "CSV input charset (utf-8, latin1, windows-1252)")
	flag.BoolVar(&noHeader, "no-header", false, "treat the first CSV record as data")
	flag.StringVar(&htmlSelector, "html-selector", "", "CSS selector for the HTML table to profile")

	flag.IntVar(&sampleSize, "sample", 0, "value sample size for type/pattern detection (0 = default)")
	flag.IntVar(&topK, "topk", 0, "most-frequent values reported per string attribute (0 = default)")
	flag.IntVar(&bins, "bins", 0, "numeric histogram bin count (0 = default)")
	flag.IntVar(&workers, "workers", 4, "concurrent profiling workers")

	flag.StringVar(&storeKind, "store-kind", "", "profile store backend (postgres, sqlite, mssql; overrides env STORE_KIND; empty = print JSON)")
	flag.StringVar(&storeDSN, "store-dsn", "", "profile store DSN (overrides env STORE_DSN)")
	flag.StringVar(&storeTable, "store-table", "", "profile store table (empty = attribute_profiles)")
	flag.BoolVar(&saveErrors, "save-errors", true, "persist error records for failed attributes")

	flag.StringVar(&metricsBackendFlg, "metrics-backend", "", "metrics backend to use (datadog, none)")
	verbose := flag.Bool("v", false, "enable verbose logs")

	flag.Parse()

	// Decide metrics backend: flag → env → default.
	backendName := metricsBackendFlg
	if backendName == "" {
		backendName = os.Getenv("METRICS_BACKEND")
	}
	switch backendName {
	case "datadog":
		// The Datadog backend buffers metrics, submits periodically, and
		// submits one final time at shutdown (Close()).
		extraTags := datadog.ParseTagsCSV(os.Getenv("METRICS_TAGS"))

		b, err := datadog.NewBackend(context.Background(), datadog.Options{
			JobName: "profiler",
			Tags:    extraTags,
		})
		if err != nil {
			log.Printf("metrics: failed to init datadog backend: %v; using nop", err)
		} else {
			log.Printf("metrics: backend=%v tags=%v", backendName, extraTags)
			metrics.SetBackend(b)
			defer func() {
				if err := b.Close(); err != nil {
					log.Printf("metrics: datadog close/flush error: %v", err)
				}
			}()
		}

	case "", "none":
		// metrics disabled; nop backend remains
		if *verbose {
			log.Printf("metrics: disabled (backend=%q)", backendName)
		}

	default:
		log.Printf("metrics: unknown backend %q; metrics disabled", backendName)
	}

	ctx := context.Background()
	start := time.Now()

	if sourceName == "" {
		sourceName = sourceKind
	}

	acc, err := openSource(ctx, sourceKind, path, dsn, schema, table, csvComma, csvCharset, noHeader, htmlSelector)
	if err != nil {
		fatalf("open source: %v", err)
	}
	defer func() { _ = acc.Close() }()

	cols, err := acc.Columns(ctx)
	if err != nil {
		fatalf("list columns: %v", err)
	}
	cols, err = selectColumns(cols, columnsFlg)
	if err != nil {
		fatalf("%v", err)
	}

	eng := profiler.New(profiler.Options{
		SampleSize:    sampleSize,
		TopK:          topK,
		HistogramBins: bins,
		Pattern:       pattern.Config{SampleSize: sampleSize},
	})

	jobs := make([]profiler.Job, 0, len(cols))
	for _, c := range cols {
		jobs = append(jobs, profiler.Job{
			Ref: profile.Ref{
				Source:       sourceName,
				Schema:       schema,
				Table:        table,
				Column:       c.Name,
				DeclaredType: c.DeclaredType,
			},
			Accessor: acc,
		})
	}

	if *verbose {
		log.Printf("profiling: source=%s columns=%d workers=%d", sourceKind, len(jobs), workers)
	}

	runner := &profiler.Runner{Engine: eng, Workers: workers, Logger: log.Default()}
	profiles, errRecords := runner.Run(ctx, jobs)

	out := profiles
	if saveErrors {
		out = append(out, errRecords...)
	}

	kind := storeKind
	if kind == "" {
		kind = os.Getenv("STORE_KIND")
	}
	if kind == "" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(out); err != nil {
			fatalf("encode profiles: %v", err)
		}
	} else {
		dsn := storeDSN
		if dsn == "" {
			dsn = os.Getenv("STORE_DSN")
		}
		st, err := storage.New(ctx, storage.Config{Kind: kind, DSN: dsn, Table: storeTable})
		if err != nil {
			fatalf("open store: %v", err)
		}
		defer st.Close()

		if err := st.EnsureTable(ctx); err != nil {
			fatalf("ensure table: %v", err)
		}
		if err := st.Upsert(ctx, out); err != nil {
			fatalf("save profiles: %v", err)
		}
		if *verbose {
			log.Printf("saved %d profiles (%d errors) to %s", len(profiles), len(errRecords), kind)
		}
	}

	if len(errRecords) > 0 {
		log.Printf("%d of %d attributes failed", len(errRecords), len(jobs))
	}
	if *verbose {
		log.Printf("completed in %s", time.Since(start).Truncate(time.Millisecond))
	}
}

// openSource builds the accessor for the selected source kind.
func openSource(ctx context.Context, kind, path, dsn, schema, table, comma, charset string, noHeader bool, selector string) (source.Accessor, error) {
	switch kind {
	case "csv":
		if path == "" {
			return nil, fmt.Errorf("csv source requires -path")
		}
		var delim rune
		if comma != "" {
			delim = []rune(comma)[0]
		}
		return csvfile.Open(path, csvfile.Options{
			Comma:    delim,
			NoHeader: noHeader,
			Charset:  charset,
		})

	case "html":
		if path == "" {
			return nil, fmt.Errorf("html source requires -path")
		}
		return htmltable.Open(path, htmltable.Options{Selector: selector})

	case "postgres", "sqlite", "mssql":
		if table == "" {
			return nil, fmt.Errorf("%s source requires -table", kind)
		}
		if dsn == "" {
			dsn = os.Getenv("DATABASE_DSN")
		}
		if dsn == "" {
			return nil, fmt.Errorf("%s source requires -dsn or env DATABASE_DSN", kind)
		}

		var driver string
		var dialect sqldb.Dialect
		switch kind {
		case "postgres":
			driver, dialect = "pgx", sqldb.DialectPostgres
		case "sqlite":
			driver, dialect = "sqlite", sqldb.DialectSQLite
		case "mssql":
			driver, dialect = "sqlserver", sqldb.DialectMSSQL
		}
		return sqldb.Open(ctx, driver, dsn, sqldb.Options{
			Schema:  schema,
			Table:   table,
			Dialect: dialect,
		})

	default:
		return nil, fmt.Errorf("unsupported source kind=%q", kind)
	}
}

// selectColumns filters cols down to the comma-separated list, preserving
// the list's order. An empty list keeps every column.
func selectColumns(cols []source.Column, list string) ([]source.Column, error) {
	list = strings.TrimSpace(list)
	if list == "" {
		return cols, nil
	}

	byName := make(map[string]source.Column, len(cols))
	for _, c := range cols {
		byName[c.Name] = c
	}

	var out []source.Column
	for _, name := range strings.Split(list, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		c, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("column %q not found in source", name)
		}
		out = append(out, c)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("no columns selected")
	}
	return out, nil
}

func fatalf(format string, a ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", a...)
	os.Exit(1)
}
