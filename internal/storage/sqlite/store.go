// Package sqlite implements storage.Store for SQLite via modernc.org/sqlite
// (pure Go, no cgo), which also makes it the storage backend of choice for
// tests (":memory:") and single-file local runs.
//
// SQLite has no timestamptz type; profiled_at is stored as an RFC 3339
// string for reliable round-trips and easy debugging. Booleans are stored
// as INTEGER 0/1.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"dataprofiler/internal/profile"
	"dataprofiler/internal/storage"
)

type store struct {
	db    *sql.DB
	table string
}

func init() {
	storage.Register("sqlite", New)
}

// New creates a SQLite-backed store from cfg.DSN (a file path or ":memory:").
func New(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: ping: %w", err)
	}
	return &store{db: db, table: quoteIdent(cfg.Table)}, nil
}

func (s *store) Close() { _ = s.db.Close() }

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// EnsureTable implements storage.Store.
func (s *store) EnsureTable(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	attribute_key       TEXT PRIMARY KEY,
	profiled_at         TEXT NOT NULL,
	cluster_id          INTEGER,
	data_type           TEXT NOT NULL,
	total_records       INTEGER NOT NULL,
	null_count          INTEGER NOT NULL,
	null_percentage     REAL NOT NULL,
	distinct_count      INTEGER NOT NULL,
	distinct_percentage REAL NOT NULL,
	is_unique           INTEGER NOT NULL,
	is_ssn_candidate    INTEGER NOT NULL,
	is_dob_candidate    INTEGER NOT NULL,
	error               TEXT NOT NULL DEFAULT '',
	metrics             TEXT NOT NULL DEFAULT '{}'
)`, s.table)

	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("sqlite: ensure table: %w", err)
	}
	return nil
}

// Upsert implements storage.Store. Like the Postgres backend, the conflict
// update resets cluster_id: fresh metrics invalidate the old assignment.
func (s *store) Upsert(ctx context.Context, profiles []profile.Profile) error {
	if len(profiles) == 0 {
		return nil
	}

	stmt := fmt.Sprintf(`INSERT INTO %s (
	attribute_key, profiled_at, cluster_id, data_type,
	total_records, null_count, null_percentage,
	distinct_count, distinct_percentage, is_unique,
	is_ssn_candidate, is_dob_candidate, error, metrics
) VALUES (?, ?, NULL, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(attribute_key) DO UPDATE SET
	profiled_at = excluded.profiled_at,
	cluster_id = NULL,
	data_type = excluded.data_type,
	total_records = excluded.total_records,
	null_count = excluded.null_count,
	null_percentage = excluded.null_percentage,
	distinct_count = excluded.distinct_count,
	distinct_percentage = excluded.distinct_percentage,
	is_unique = excluded.is_unique,
	is_ssn_candidate = excluded.is_ssn_candidate,
	is_dob_candidate = excluded.is_dob_candidate,
	error = excluded.error,
	metrics = excluded.metrics`, s.table)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	for i := range profiles {
		p := &profiles[i]
		metrics, err := storage.EncodeMetrics(p)
		if err != nil {
			return err
		}
		ssn, dob := storage.PatternFlags(p)

		if _, err := tx.ExecContext(ctx, stmt,
			p.AttributeKey, p.ProfiledAt.UTC().Format(time.RFC3339Nano),
			string(p.DataType),
			p.TotalRecords, p.NullCount, p.NullPercentage,
			p.DistinctCount, p.DistinctPercentage, boolInt(p.IsUnique),
			boolInt(ssn), boolInt(dob), p.Error, string(metrics),
		); err != nil {
			return fmt.Errorf("sqlite: upsert %s: %w", p.AttributeKey, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

// ListCurrent implements storage.Store.
func (s *store) ListCurrent(ctx context.Context) ([]profile.Profile, error) {
	query := fmt.Sprintf(`SELECT
	attribute_key, profiled_at, cluster_id, data_type,
	total_records, null_count, null_percentage,
	distinct_count, distinct_percentage, is_unique,
	error, metrics
FROM %s ORDER BY attribute_key`, s.table)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list: %w", err)
	}
	defer rows.Close()

	var out []profile.Profile
	for rows.Next() {
		var (
			p         profile.Profile
			profiled  string
			clusterID sql.NullInt64
			dataType  string
			isUnique  int64
			metrics   string
		)
		if err := rows.Scan(
			&p.AttributeKey, &profiled, &clusterID, &dataType,
			&p.TotalRecords, &p.NullCount, &p.NullPercentage,
			&p.DistinctCount, &p.DistinctPercentage, &isUnique,
			&p.Error, &metrics,
		); err != nil {
			return nil, fmt.Errorf("sqlite: scan: %w", err)
		}

		ts, err := time.Parse(time.RFC3339Nano, profiled)
		if err != nil {
			return nil, fmt.Errorf("sqlite: parse profiled_at for %s: %w", p.AttributeKey, err)
		}
		p.ProfiledAt = ts
		if clusterID.Valid {
			id := int(clusterID.Int64)
			p.ClusterID = &id
		}
		p.DataType = profile.DataType(dataType)
		p.IsUnique = isUnique != 0
		if err := storage.DecodeMetrics([]byte(metrics), &p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: list: %w", err)
	}
	return out, nil
}

// UpdateClusterAssignments implements storage.Store.
func (s *store) UpdateClusterAssignments(ctx context.Context, assignments map[string]int) error {
	if len(assignments) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer tx.Rollback()

	stmt := fmt.Sprintf("UPDATE %s SET cluster_id = ? WHERE attribute_key = ?", s.table)
	for key, id := range assignments {
		if _, err := tx.ExecContext(ctx, stmt, id, key); err != nil {
			return fmt.Errorf("sqlite: update cluster for %s: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
