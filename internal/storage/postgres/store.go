// Package postgres implements storage.Store for PostgreSQL using pgx.
//
// Upserts use INSERT ... ON CONFLICT (attribute_key) DO UPDATE, which gives
// the overwrite-per-key semantics atomically. Cluster assignments are
// written inside one transaction so readers never observe a half-updated
// clustering run.
package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"dataprofiler/internal/profile"
	"dataprofiler/internal/storage"
)

type store struct {
	pool  *pgxpool.Pool
	table string
}

func init() {
	storage.Register("postgres", New)
}

// New creates a Postgres-backed store from cfg.DSN.
func New(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return &store{pool: pool, table: quoteIdent(cfg.Table)}, nil
}

func (s *store) Close() { s.pool.Close() }

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// EnsureTable implements storage.Store.
func (s *store) EnsureTable(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	attribute_key       text PRIMARY KEY,
	profiled_at         timestamptz NOT NULL,
	cluster_id          integer,
	data_type           text NOT NULL,
	total_records       bigint NOT NULL,
	null_count          bigint NOT NULL,
	null_percentage     double precision NOT NULL,
	distinct_count      bigint NOT NULL,
	distinct_percentage double precision NOT NULL,
	is_unique           boolean NOT NULL,
	is_ssn_candidate    boolean NOT NULL,
	is_dob_candidate    boolean NOT NULL,
	error               text NOT NULL DEFAULT '',
	metrics             jsonb NOT NULL DEFAULT '{}'
)`, s.table)

	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("postgres: ensure table: %w", err)
	}
	return nil
}

// Upsert implements storage.Store. All rows go in one transaction:
// a batch persists fully or not at all.
//
// The ON CONFLICT update deliberately resets cluster_id to NULL: a
// re-profiled attribute has new metrics, so its previous cluster
// assignment no longer describes it.
func (s *store) Upsert(ctx context.Context, profiles []profile.Profile) error {
	if len(profiles) == 0 {
		return nil
	}

	sql := fmt.Sprintf(`INSERT INTO %s (
	attribute_key, profiled_at, cluster_id, data_type,
	total_records, null_count, null_percentage,
	distinct_count, distinct_percentage, is_unique,
	is_ssn_candidate, is_dob_candidate, error, metrics
) VALUES ($1,$2,NULL,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
ON CONFLICT (attribute_key) DO UPDATE SET
	profiled_at = EXCLUDED.profiled_at,
	cluster_id = NULL,
	data_type = EXCLUDED.data_type,
	total_records = EXCLUDED.total_records,
	null_count = EXCLUDED.null_count,
	null_percentage = EXCLUDED.null_percentage,
	distinct_count = EXCLUDED.distinct_count,
	distinct_percentage = EXCLUDED.distinct_percentage,
	is_unique = EXCLUDED.is_unique,
	is_ssn_candidate = EXCLUDED.is_ssn_candidate,
	is_dob_candidate = EXCLUDED.is_dob_candidate,
	error = EXCLUDED.error,
	metrics = EXCLUDED.metrics`, s.table)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	for i := range profiles {
		p := &profiles[i]
		metrics, err := storage.EncodeMetrics(p)
		if err != nil {
			return err
		}
		ssn, dob := storage.PatternFlags(p)

		if _, err := tx.Exec(ctx, sql,
			p.AttributeKey, p.ProfiledAt, string(p.DataType),
			p.TotalRecords, p.NullCount, p.NullPercentage,
			p.DistinctCount, p.DistinctPercentage, p.IsUnique,
			ssn, dob, p.Error, metrics,
		); err != nil {
			return fmt.Errorf("postgres: upsert %s: %w", p.AttributeKey, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit: %w", err)
	}
	return nil
}

// ListCurrent implements storage.Store.
func (s *store) ListCurrent(ctx context.Context) ([]profile.Profile, error) {
	sql := fmt.Sprintf(`SELECT
	attribute_key, profiled_at, cluster_id, data_type,
	total_records, null_count, null_percentage,
	distinct_count, distinct_percentage, is_unique,
	error, metrics
FROM %s ORDER BY attribute_key`, s.table)

	rows, err := s.pool.Query(ctx, sql)
	if err != nil {
		return nil, fmt.Errorf("postgres: list: %w", err)
	}
	defer rows.Close()

	var out []profile.Profile
	for rows.Next() {
		var (
			p         profile.Profile
			profiled  time.Time
			clusterID *int
			dataType  string
			metrics   []byte
		)
		if err := rows.Scan(
			&p.AttributeKey, &profiled, &clusterID, &dataType,
			&p.TotalRecords, &p.NullCount, &p.NullPercentage,
			&p.DistinctCount, &p.DistinctPercentage, &p.IsUnique,
			&p.Error, &metrics,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan: %w", err)
		}
		p.ProfiledAt = profiled
		p.ClusterID = clusterID
		p.DataType = profile.DataType(dataType)
		if err := storage.DecodeMetrics(metrics, &p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list: %w", err)
	}
	return out, nil
}

// UpdateClusterAssignments implements storage.Store.
func (s *store) UpdateClusterAssignments(ctx context.Context, assignments map[string]int) error {
	if len(assignments) == 0 {
		return nil
	}

	sql := fmt.Sprintf("UPDATE %s SET cluster_id = $1 WHERE attribute_key = $2", s.table)

	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for key, id := range assignments {
			if _, err := tx.Exec(ctx, sql, id, key); err != nil {
				return fmt.Errorf("postgres: update cluster for %s: %w", key, err)
			}
		}
		return nil
	})
}
