// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/searchpulse/geo-analyzer/internal/analysis"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PoolIface is the slice of pgxpool.Pool the stores use. pgxmock implements
// it for tests.
type PoolIface interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PoolConfig controls the shared Postgres connection pool. The analysis
// and scratch stores run on one pool.
type PoolConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

// NewPool connects a pgx pool from the given config.
func NewPool(ctx context.Context, cfg PoolConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return pool, nil
}

// AnalysisStore mirrors analysis status records into Postgres.
type AnalysisStore struct {
	pool  PoolIface
	table string
}

// NewAnalysisStoreWithPool constructs a store from an existing pool.
func NewAnalysisStoreWithPool(pool PoolIface, table string) (*AnalysisStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "analyses"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &AnalysisStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *AnalysisStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const analysisColumns = `task_id, email, url, status, email_status, report_directory, error, email_error, retry_count, created_at, updated_at`

// CreateRecord upserts the record keyed by task id. Re-admissions of the
// same identity land on the same row, so create is an upsert by design of
// the deterministic id.
func (s *AnalysisStore) CreateRecord(ctx context.Context, rec analysis.TaskStatus) error {
	if rec.TaskID == "" {
		return fmt.Errorf("task id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (%s)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
ON CONFLICT (task_id) DO UPDATE SET
	status = EXCLUDED.status,
	email_status = EXCLUDED.email_status,
	report_directory = EXCLUDED.report_directory,
	error = EXCLUDED.error,
	email_error = EXCLUDED.email_error,
	retry_count = EXCLUDED.retry_count,
	created_at = EXCLUDED.created_at,
	updated_at = EXCLUDED.updated_at`, s.table, analysisColumns)
	if _, err := s.pool.Exec(ctx, query, args(rec)...); err != nil {
		return fmt.Errorf("upsert analysis: %w", err)
	}
	return nil
}

// UpdateRecord overwrites the mutable columns of an existing record.
func (s *AnalysisStore) UpdateRecord(ctx context.Context, rec analysis.TaskStatus) error {
	if rec.TaskID == "" {
		return fmt.Errorf("task id is required")
	}
	query := fmt.Sprintf(`
UPDATE %s SET
	status = $2,
	email_status = $3,
	report_directory = $4,
	error = $5,
	email_error = $6,
	retry_count = $7,
	updated_at = $8
WHERE task_id = $1`, s.table)
	tag, err := s.pool.Exec(ctx, query,
		rec.TaskID, string(rec.Status), string(rec.EmailStatus), rec.ReportDirectory,
		rec.Error, rec.EmailError, rec.RetryCount, rec.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update analysis: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return analysis.ErrNotFound
	}
	return nil
}

// GetRecord loads one record by task id.
func (s *AnalysisStore) GetRecord(ctx context.Context, taskID string) (analysis.TaskStatus, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE task_id = $1`, analysisColumns, s.table)
	rec, err := scanRecord(s.pool.QueryRow(ctx, query, taskID))
	if errors.Is(err, pgx.ErrNoRows) {
		return analysis.TaskStatus{}, analysis.ErrNotFound
	}
	if err != nil {
		return analysis.TaskStatus{}, fmt.Errorf("get analysis: %w", err)
	}
	return rec, nil
}

// ListByEmail returns every record submitted by the given address, newest
// first.
func (s *AnalysisStore) ListByEmail(ctx context.Context, email string) ([]analysis.TaskStatus, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE email = $1 ORDER BY created_at DESC`, analysisColumns, s.table)
	rows, err := s.pool.Query(ctx, query, email)
	if err != nil {
		return nil, fmt.Errorf("list analyses by email: %w", err)
	}
	return collect(rows)
}

// ListCreatedSince returns records created at or after the cutoff, used by
// reconciliation.
func (s *AnalysisStore) ListCreatedSince(ctx context.Context, cutoff time.Time) ([]analysis.TaskStatus, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE created_at >= $1 ORDER BY created_at ASC`, analysisColumns, s.table)
	rows, err := s.pool.Query(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("list analyses since: %w", err)
	}
	return collect(rows)
}

func args(rec analysis.TaskStatus) []any {
	return []any{
		rec.TaskID, rec.Email, rec.URL, string(rec.Status), string(rec.EmailStatus),
		rec.ReportDirectory, rec.Error, rec.EmailError, rec.RetryCount,
		rec.CreatedAt, rec.UpdatedAt,
	}
}

func scanRecord(row pgx.Row) (analysis.TaskStatus, error) {
	var rec analysis.TaskStatus
	var status, emailStatus string
	err := row.Scan(
		&rec.TaskID, &rec.Email, &rec.URL, &status, &emailStatus,
		&rec.ReportDirectory, &rec.Error, &rec.EmailError, &rec.RetryCount,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return analysis.TaskStatus{}, err
	}
	rec.Status = analysis.Status(status)
	rec.EmailStatus = analysis.EmailStatus(emailStatus)
	return rec, nil
}

func collect(rows pgx.Rows) ([]analysis.TaskStatus, error) {
	defer rows.Close()
	var out []analysis.TaskStatus
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan analysis row: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analysis rows: %w", err)
	}
	return out, nil
}
