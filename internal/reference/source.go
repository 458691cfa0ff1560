package reference

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/JakeFAU/cookie-crawler/internal/classify"
	"github.com/JakeFAU/cookie-crawler/internal/cookie"
)

// Source yields reference rows from some backing store.
type Source interface {
	Entries(ctx context.Context) ([]cookie.ReferenceEntry, error)
}

// FileSource reads a CSV export from disk.
type FileSource struct {
	Path string
}

// Entries parses the file at Path.
func (s FileSource) Entries(_ context.Context) ([]cookie.ReferenceEntry, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("open reference csv: %w", err)
	}
	defer func() { _ = f.Close() }()
	entries, err := ParseCSV(f)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.Path, err)
	}
	return entries, nil
}

// HTTPSource fetches a CSV export on every call.
type HTTPSource struct {
	URL    string
	Client *http.Client
}

// Entries downloads and parses the CSV at URL.
func (s HTTPSource) Entries(ctx context.Context) ([]cookie.ReferenceEntry, error) {
	body, err := fetch(ctx, s.Client, s.URL)
	if err != nil {
		return nil, err
	}
	entries, err := parseBytes(body)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", s.URL, err)
	}
	return entries, nil
}

// Load builds a reference table from src. Malformed rows are skipped and kept
// as table warnings; only an unreadable source is an error.
func Load(ctx context.Context, src Source) (*classify.ReferenceTable, error) {
	if src == nil {
		table, _ := classify.NewReferenceTable(nil)
		return table, nil
	}
	entries, err := src.Entries(ctx)
	if err != nil {
		return nil, err
	}
	table, _ := classify.NewReferenceTable(entries)
	return table, nil
}
