// Package postgres persists analysis report summaries in Postgres.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/cookie-crawler/internal/jobs"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// ReportStoreConfig controls the Postgres connection pool used for report rows.
type ReportStoreConfig struct {
	DSN             string
	Table           string
	MaxConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// ReportStore writes one row per analysis.
type ReportStore struct {
	pool  execCloser
	table string
}

// NewReportStore connects using cfg.
func NewReportStore(ctx context.Context, cfg ReportStoreConfig) (*ReportStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	store, err := NewReportStoreWithPool(pool, cfg.Table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// NewReportStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewReportStoreWithPool(pool execCloser, table string) (*ReportStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "cookie_reports"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &ReportStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool resources.
func (s *ReportStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// SaveReport upserts a report row keyed by run_id.
func (s *ReportStore) SaveReport(ctx context.Context, record jobs.ReportRecord) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("report store is not configured")
	}
	if record.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	categoriesJSON, err := json.Marshal(nonNilCounts(record.ByCategory))
	if err != nil {
		return fmt.Errorf("marshal categories: %w", err)
	}
	techniques := append([]string{}, record.Fingerprinting...)
	sort.Strings(techniques)

	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id,
	job_id,
	seed_url,
	started_at,
	finished_at,
	pages,
	cookies,
	by_category,
	fingerprinting,
	warnings,
	report_uri
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11
)
ON CONFLICT (run_id) DO UPDATE SET report_uri = EXCLUDED.report_uri`, s.table)

	args := []any{
		record.RunID,
		record.JobID,
		record.SeedURL,
		record.StartedAt,
		record.FinishedAt,
		record.Pages,
		record.Cookies,
		categoriesJSON,
		techniques,
		record.Warnings,
		record.ReportURI,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

func nonNilCounts(in map[string]int) map[string]int {
	if in == nil {
		return map[string]int{}
	}
	return in
}
