// Package sqlite keeps a local history of analyses in a SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/JakeFAU/cookie-crawler/internal/jobs"
)

// DefaultPath is the history database under the XDG data home.
func DefaultPath() string {
	return filepath.Join(xdg.DataHome, "cookie-crawler", "history.db")
}

// History stores one row per analysis run.
type History struct {
	db *sql.DB
}

// Open opens or creates the database at path. Empty path uses DefaultPath.
func Open(ctx context.Context, path string) (*History, error) {
	if path == "" {
		path = DefaultPath()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create history directory: %w", err)
	}
	db, err := sql.Open("sqlite", path+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("open history: %w", err)
	}
	// One writer; the CLI and a server may share the file.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	h := &History{db: db}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if err := h.createTables(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return h, nil
}

// Close closes the database.
func (h *History) Close() error {
	return h.db.Close()
}

func (h *History) createTables(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS runs (
		run_id TEXT PRIMARY KEY,
		job_id TEXT,
		seed_url TEXT NOT NULL,
		started_at DATETIME NOT NULL,
		finished_at DATETIME NOT NULL,
		pages INTEGER NOT NULL,
		cookies INTEGER NOT NULL,
		by_category TEXT NOT NULL,
		fingerprinting TEXT NOT NULL,
		warnings INTEGER NOT NULL,
		report_uri TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_runs_seed ON runs(seed_url);
	CREATE INDEX IF NOT EXISTS idx_runs_finished ON runs(finished_at);
	`
	_, err := h.db.ExecContext(ctx, schema)
	return err
}

// SaveReport implements jobs.ReportStore.
func (h *History) SaveReport(ctx context.Context, record jobs.ReportRecord) error {
	if record.RunID == "" {
		return fmt.Errorf("run id is required")
	}
	categories, err := json.Marshal(record.ByCategory)
	if err != nil {
		return fmt.Errorf("marshal categories: %w", err)
	}
	techniques := record.Fingerprinting
	if techniques == nil {
		techniques = []string{}
	}
	fingerprinting, err := json.Marshal(techniques)
	if err != nil {
		return fmt.Errorf("marshal fingerprinting: %w", err)
	}
	const query = `
	INSERT INTO runs (run_id, job_id, seed_url, started_at, finished_at, pages, cookies, by_category, fingerprinting, warnings, report_uri)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(run_id) DO UPDATE SET report_uri = excluded.report_uri`
	if _, err := h.db.ExecContext(ctx, query,
		record.RunID,
		record.JobID,
		record.SeedURL,
		record.StartedAt.UTC(),
		record.FinishedAt.UTC(),
		record.Pages,
		record.Cookies,
		string(categories),
		string(fingerprinting),
		record.Warnings,
		record.ReportURI,
	); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// List returns the most recent runs first. seed filters by exact seed URL
// when non-empty; limit <= 0 means 20.
func (h *History) List(ctx context.Context, seed string, limit int) ([]jobs.ReportRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `
	SELECT run_id, job_id, seed_url, started_at, finished_at, pages, cookies, by_category, fingerprinting, warnings, report_uri
	FROM runs`
	args := []any{}
	if seed != "" {
		query += " WHERE seed_url = ?"
		args = append(args, seed)
	}
	query += " ORDER BY finished_at DESC, run_id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []jobs.ReportRecord
	for rows.Next() {
		var (
			rec            jobs.ReportRecord
			jobID, uri     sql.NullString
			categories     string
			fingerprinting string
		)
		if err := rows.Scan(
			&rec.RunID,
			&jobID,
			&rec.SeedURL,
			&rec.StartedAt,
			&rec.FinishedAt,
			&rec.Pages,
			&rec.Cookies,
			&categories,
			&fingerprinting,
			&rec.Warnings,
			&uri,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		rec.JobID = jobID.String
		rec.ReportURI = uri.String
		if err := json.Unmarshal([]byte(categories), &rec.ByCategory); err != nil {
			return nil, fmt.Errorf("decode categories for %s: %w", rec.RunID, err)
		}
		if err := json.Unmarshal([]byte(fingerprinting), &rec.Fingerprinting); err != nil {
			return nil, fmt.Errorf("decode fingerprinting for %s: %w", rec.RunID, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return out, nil
}
