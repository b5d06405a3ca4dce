// Package sqldb implements source.Accessor over a database/sql connection,
// pushing counts and scalar aggregates down to the database so profiling
// never materializes a large table client-side for metrics the server can
// compute itself.
//
// It works against any database/sql driver; the Dialect option covers the
// one syntax split that matters here (LIMIT vs TOP for bounded samples).
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"dataprofiler/internal/source"
)

// Dialect selects row-limiting syntax.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectSQLite   Dialect = "sqlite"
	DialectMSSQL    Dialect = "mssql"
)

// Options configure the accessor.
type Options struct {
	// Schema qualifies Table when non-empty.
	Schema string

	// Table is required.
	Table string

	// Dialect defaults to DialectPostgres.
	Dialect Dialect
}

// Accessor answers profiling queries with SQL pushdown. It is safe for
// concurrent use; database/sql pools connections underneath.
type Accessor struct {
	db      *sql.DB
	ownsDB  bool
	table   string // quoted, schema-qualified
	dialect Dialect
}

var _ source.Accessor = (*Accessor)(nil)

// Open opens driverName/dsn and wraps it. The accessor owns the handle and
// closes it on Close.
func Open(ctx context.Context, driverName, dsn string, opt Options) (*Accessor, error) {
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("sqldb: open: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqldb: ping: %w", err)
	}
	a, err := New(db, opt)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	a.ownsDB = true
	return a, nil
}

// New wraps an existing handle. The caller keeps ownership; Close is a no-op.
func New(db *sql.DB, opt Options) (*Accessor, error) {
	if opt.Table == "" {
		return nil, fmt.Errorf("sqldb: missing table")
	}
	d := opt.Dialect
	if d == "" {
		d = DialectPostgres
	}

	table := quoteIdent(opt.Table)
	if opt.Schema != "" {
		table = quoteIdent(opt.Schema) + "." + table
	}
	return &Accessor{db: db, table: table, dialect: d}, nil
}

// quoteIdent double-quotes an identifier. All three supported engines accept
// standard double-quoted identifiers (MSSQL via QUOTED_IDENTIFIER, on by
// default for modern drivers).
func quoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Columns implements source.Accessor using a zero-row select so the driver
// reports names and declared types without transferring data.
func (a *Accessor) Columns(ctx context.Context) ([]source.Column, error) {
	rows, err := a.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s WHERE 1=0", a.table))
	if err != nil {
		return nil, fmt.Errorf("sqldb: columns: %w", err)
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("sqldb: column types: %w", err)
	}
	out := make([]source.Column, 0, len(types))
	for _, ct := range types {
		out = append(out, source.Column{
			Name:         ct.Name(),
			DeclaredType: ct.DatabaseTypeName(),
		})
	}
	return out, rows.Err()
}

// RowCount implements source.Accessor.
func (a *Accessor) RowCount(ctx context.Context) (int64, error) {
	var n int64
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s", a.table)
	if err := a.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqldb: row count: %w", err)
	}
	return n, nil
}

// NullCount implements source.Accessor. COUNT(col) skips NULLs, so the
// difference from COUNT(*) is the null count in one round-trip.
func (a *Accessor) NullCount(ctx context.Context, column string) (int64, error) {
	var n int64
	q := fmt.Sprintf("SELECT COUNT(*) - COUNT(%s) FROM %s", quoteIdent(column), a.table)
	if err := a.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqldb: null count %s: %w", column, err)
	}
	return n, nil
}

// DistinctCount implements source.Accessor.
func (a *Accessor) DistinctCount(ctx context.Context, column string) (int64, error) {
	var n int64
	q := fmt.Sprintf("SELECT COUNT(DISTINCT %s) FROM %s", quoteIdent(column), a.table)
	if err := a.db.QueryRowContext(ctx, q).Scan(&n); err != nil {
		return 0, fmt.Errorf("sqldb: distinct count %s: %w", column, err)
	}
	return n, nil
}

// Sample implements source.Accessor. The selection is the engine's natural
// order with a bound, which is stable enough for an unchanged table and
// avoids expensive random sampling on large relations.
func (a *Accessor) Sample(ctx context.Context, column string, n int) ([]string, error) {
	col := quoteIdent(column)
	var q string
	if a.dialect == DialectMSSQL {
		q = fmt.Sprintf("SELECT TOP %d %s FROM %s WHERE %s IS NOT NULL", n, col, a.table, col)
	} else {
		q = fmt.Sprintf("SELECT %s FROM %s WHERE %s IS NOT NULL LIMIT %d", col, a.table, col, n)
	}

	rows, err := a.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("sqldb: sample %s: %w", column, err)
	}
	defer rows.Close()

	out := make([]string, 0, n)
	for rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			return nil, fmt.Errorf("sqldb: sample %s: %w", column, err)
		}
		s, null := renderValue(v)
		if !null {
			out = append(out, s)
		}
	}
	return out, rows.Err()
}

// Aggregate implements source.Accessor via MIN/MAX/AVG pushdown.
func (a *Accessor) Aggregate(ctx context.Context, column string, op source.AggOp) (string, error) {
	var fn string
	switch op {
	case source.AggMin:
		fn = "MIN"
	case source.AggMax:
		fn = "MAX"
	case source.AggMean:
		fn = "AVG"
	default:
		return "", fmt.Errorf("sqldb: unsupported aggregate %q", op)
	}

	// AVG truncates on integer columns in several engines; cast keeps the
	// mean exact.
	col := quoteIdent(column)
	expr := fmt.Sprintf("%s(%s)", fn, col)
	if op == source.AggMean {
		expr = fmt.Sprintf("AVG(CAST(%s AS FLOAT))", col)
	}

	var v any
	q := fmt.Sprintf("SELECT %s FROM %s", expr, a.table)
	if err := a.db.QueryRowContext(ctx, q).Scan(&v); err != nil {
		return "", fmt.Errorf("sqldb: aggregate %s(%s): %w", fn, column, err)
	}
	s, null := renderValue(v)
	if null {
		return "", nil
	}
	return s, nil
}

// Scan implements source.Accessor, streaming the full column in the
// engine's natural row order.
func (a *Accessor) Scan(ctx context.Context, column string, fn func(value string, null bool) error) error {
	q := fmt.Sprintf("SELECT %s FROM %s", quoteIdent(column), a.table)
	rows, err := a.db.QueryContext(ctx, q)
	if err != nil {
		return fmt.Errorf("sqldb: scan %s: %w", column, err)
	}
	defer rows.Close()

	for rows.Next() {
		var v any
		if err := rows.Scan(&v); err != nil {
			return fmt.Errorf("sqldb: scan %s: %w", column, err)
		}
		s, null := renderValue(v)
		if err := fn(s, null); err != nil {
			return err
		}
	}
	return rows.Err()
}

// Close implements source.Accessor.
func (a *Accessor) Close() error {
	if !a.ownsDB {
		return nil
	}
	return a.db.Close()
}

// renderValue converts a driver value to the accessor's string form.
// Times use RFC 3339 so the engine's layout list can re-parse them.
func renderValue(v any) (s string, null bool) {
	switch t := v.(type) {
	case nil:
		return "", true
	case string:
		return t, false
	case []byte:
		return string(t), false
	case int64:
		return strconv.FormatInt(t, 10), false
	case float64:
		return strconv.FormatFloat(t, 'g', -1, 64), false
	case bool:
		if t {
			return "true", false
		}
		return "false", false
	case time.Time:
		return t.Format("2006-01-02T15:04:05Z07:00"), false
	default:
		return fmt.Sprint(t), false
	}
}
