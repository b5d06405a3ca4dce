// Package mssql implements storage.Store for SQL Server.
//
// SQL Server has no ON CONFLICT; overwrite semantics are implemented as
// DELETE + INSERT per key inside one transaction, which is simpler than a
// MERGE statement and atomic from the caller's point of view. The primary
// key column is bounded NVARCHAR because SQL Server cannot index MAX types.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/microsoft/go-mssqldb"

	"dataprofiler/internal/profile"
	"dataprofiler/internal/storage"
)

type store struct {
	db    *sql.DB
	table string
}

func init() {
	storage.Register("mssql", New)
}

// New creates a SQL Server-backed store from cfg.DSN.
func New(ctx context.Context, cfg storage.Config) (storage.Store, error) {
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("mssql: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("mssql: ping: %w", err)
	}
	return &store{db: db, table: quoteIdent(cfg.Table)}, nil
}

func (s *store) Close() { _ = s.db.Close() }

func quoteIdent(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}

// EnsureTable implements storage.Store.
func (s *store) EnsureTable(ctx context.Context) error {
	ddl := fmt.Sprintf(`IF OBJECT_ID(N'%s', N'U') IS NULL
CREATE TABLE %s (
	attribute_key       NVARCHAR(450) NOT NULL PRIMARY KEY,
	profiled_at         DATETIMEOFFSET NOT NULL,
	cluster_id          INT NULL,
	data_type           NVARCHAR(16) NOT NULL,
	total_records       BIGINT NOT NULL,
	null_count          BIGINT NOT NULL,
	null_percentage     FLOAT NOT NULL,
	distinct_count      BIGINT NOT NULL,
	distinct_percentage FLOAT NOT NULL,
	is_unique           BIT NOT NULL,
	is_ssn_candidate    BIT NOT NULL,
	is_dob_candidate    BIT NOT NULL,
	error               NVARCHAR(MAX) NOT NULL,
	metrics             NVARCHAR(MAX) NOT NULL
)`, strings.Trim(s.table, "[]"), s.table)

	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("mssql: ensure table: %w", err)
	}
	return nil
}

// Upsert implements storage.Store via DELETE + INSERT in one transaction.
// The fresh row carries cluster_id NULL, consistent with the other
// backends: new metrics invalidate the old assignment.
func (s *store) Upsert(ctx context.Context, profiles []profile.Profile) error {
	if len(profiles) == 0 {
		return nil
	}

	del := fmt.Sprintf("DELETE FROM %s WHERE attribute_key = @p1", s.table)
	ins := fmt.Sprintf(`INSERT INTO %s (
	attribute_key, profiled_at, cluster_id, data_type,
	total_records, null_count, null_percentage,
	distinct_count, distinct_percentage, is_unique,
	is_ssn_candidate, is_dob_candidate, error, metrics
) VALUES (@p1, @p2, NULL, @p3, @p4, @p5, @p6, @p7, @p8, @p9, @p10, @p11, @p12, @p13)`, s.table)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("mssql: begin: %w", err)
	}
	defer tx.Rollback()

	for i := range profiles {
		p := &profiles[i]
		metrics, err := storage.EncodeMetrics(p)
		if err != nil {
			return err
		}
		ssn, dob := storage.PatternFlags(p)

		if _, err := tx.ExecContext(ctx, del, p.AttributeKey); err != nil {
			return fmt.Errorf("mssql: delete %s: %w", p.AttributeKey, err)
		}
		if _, err := tx.ExecContext(ctx, ins,
			p.AttributeKey, p.ProfiledAt, string(p.DataType),
			p.TotalRecords, p.NullCount, p.NullPercentage,
			p.DistinctCount, p.DistinctPercentage, p.IsUnique,
			ssn, dob, p.Error, string(metrics),
		); err != nil {
			return fmt.Errorf("mssql: insert %s: %w", p.AttributeKey, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("mssql: commit: %w", err)
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
		return nil, fmt.Errorf("mssql: list: %w", err)
	}
	defer rows.Close()

	var out []profile.Profile
	for rows.Next() {
		var (
			p         profile.Profile
			profiled  time.Time
			clusterID sql.NullInt64
			dataType  string
			metrics   string
		)
		if err := rows.Scan(
			&p.AttributeKey, &profiled, &clusterID, &dataType,
			&p.TotalRecords, &p.NullCount, &p.NullPercentage,
			&p.DistinctCount, &p.DistinctPercentage, &p.IsUnique,
			&p.Error, &metrics,
		); err != nil {
			return nil, fmt.Errorf("mssql: scan: %w", err)
		}
		p.ProfiledAt = profiled
		if clusterID.Valid {
			id := int(clusterID.Int64)
			p.ClusterID = &id
		}
		p.DataType = profile.DataType(dataType)
		if err := storage.DecodeMetrics([]byte(metrics), &p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("mssql: list: %w", err)
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
		return fmt.Errorf("mssql: begin: %w", err)
	}
	defer tx.Rollback()

	stmt := fmt.Sprintf("UPDATE %s SET cluster_id = @p1 WHERE attribute_key = @p2", s.table)
	for key, id := range assignments {
		if _, err := tx.ExecContext(ctx, stmt, id, key); err != nil {
			return fmt.Errorf("mssql: update cluster for %s: %w", key, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("mssql: commit: %w", err)
	}
	return nil
}
