// Package source defines the data-accessor abstraction the profiling engine
// consumes, plus shared helpers for its implementations (CSV files, SQL
// databases, HTML tables).
//
// The engine does not own the accessor: it asks for counts and aggregates at
// the accessor level and streams column values only when an order statistic
// genuinely needs them. Implementations decide whether those operations are
// pushed down (SQL) or computed over loaded vectors (flat files).
package source

import (
	"context"
	"fmt"
)

// AggOp selects an accessor-level aggregate.
type AggOp string

const (
	AggMin  AggOp = "min"
	AggMax  AggOp = "max"
	AggMean AggOp = "mean"
)

// Column describes one attribute exposed by an accessor, with the declared
// source type when the backend knows it ("" otherwise).
type Column struct {
	Name         string
	DeclaredType string
}

// Accessor is read-only access to one tabular dataset.
//
// Error contract: every failure must come back as a distinguishable error
// value, wrapped with enough context to identify the column; accessors never
// panic past this boundary. Values are rendered as strings (the profiling
// engine re-parses them by detected type); NULL is reported via the null
// flag in Scan and by exclusion from Sample.
//
// Concurrency: implementations must support concurrent read-only calls or
// serialize internally; the batch runner fans out attribute jobs against a
// single accessor.
type Accessor interface {
	// Columns lists the dataset's attributes in source order.
	Columns(ctx context.Context) ([]Column, error)

	// RowCount returns the total number of rows.
	RowCount(ctx context.Context) (int64, error)

	// NullCount returns how many rows hold NULL in the column.
	NullCount(ctx context.Context, column string) (int64, error)

	// DistinctCount returns the number of distinct non-null values.
	DistinctCount(ctx context.Context, column string) (int64, error)

	// Sample returns up to n non-null raw values. The selection must be
	// deterministic for an unchanged source (no random sampling).
	Sample(ctx context.Context, column string, n int) ([]string, error)

	// Aggregate computes min/max/mean over non-null values, rendered as a
	// string scalar (numeric aggregates in strconv format, time aggregates
	// in the source's own representation). Returns ("", nil) when the
	// column has no non-null values.
	Aggregate(ctx context.Context, column string, op AggOp) (string, error)

	// Scan streams every value of the column in row order. fn receives the
	// raw value and a null flag; a non-nil error from fn stops the scan
	// and is returned as-is.
	Scan(ctx context.Context, column string, fn func(value string, null bool) error) error

	// Close releases underlying resources. Call once.
	Close() error
}

// ErrNoColumn is returned (wrapped) when a requested column does not exist.
// Implementations wrap it so callers can errors.Is on it.
var ErrNoColumn = fmt.Errorf("source: no such column")
