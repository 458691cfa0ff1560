package reference

import (
	"context"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JakeFAU/cookie-crawler/internal/classify"
	"github.com/JakeFAU/cookie-crawler/internal/cookie"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

type queryCloser interface {
	Query(context.Context, string, ...any) (pgx.Rows, error)
	Close()
}

// PostgresSource reads reference rows from a table with columns
// name_pattern, vendor, category, description, expiry, privacy_policy_url,
// domain, and is_wildcard.
type PostgresSource struct {
	pool  queryCloser
	table string
}

// NewPostgresSource connects to dsn.
func NewPostgresSource(ctx context.Context, dsn, table string) (*PostgresSource, error) {
	if dsn == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	src, err := NewPostgresSourceWithPool(pool, table)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return src, nil
}

// NewPostgresSourceWithPool wraps an existing pool (primarily for testing).
func NewPostgresSourceWithPool(pool queryCloser, table string) (*PostgresSource, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if table == "" {
		table = "cookie_reference"
	}
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &PostgresSource{pool: pool, table: table}, nil
}

// Close releases the pool.
func (s *PostgresSource) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Entries returns every row ordered by id so table precedence is stable.
func (s *PostgresSource) Entries(ctx context.Context) ([]cookie.ReferenceEntry, error) {
	query := fmt.Sprintf(`
SELECT name_pattern, vendor, category, description, expiry, privacy_policy_url, domain, is_wildcard
FROM %s
ORDER BY id`, s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query reference rows: %w", err)
	}
	defer rows.Close()

	var entries []cookie.ReferenceEntry
	for rows.Next() {
		var (
			entry    cookie.ReferenceEntry
			category string
		)
		if err := rows.Scan(
			&entry.NamePattern,
			&entry.Vendor,
			&category,
			&entry.Description,
			&entry.Expiry,
			&entry.PrivacyPolicyURL,
			&entry.Domain,
			&entry.IsWildcard,
		); err != nil {
			return nil, fmt.Errorf("scan reference row: %w", err)
		}
		if category != "" {
			entry.Category = classify.MapCategory(category)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reference rows: %w", err)
	}
	return entries, nil
}
