package reference

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/cookie-crawler/internal/cookie"
)

// DefaultUpdateURL is the upstream Open Cookie Database export.
const DefaultUpdateURL = "https://raw.githubusercontent.com/jkwakman/Open-Cookie-Database/master/open-cookie-database.csv"

const maxDownloadBytes = 32 << 20

// Hasher digests downloaded snapshots and the copy already on disk.
type Hasher interface {
	Hash(data []byte) (string, error)
	HashFile(path string) (string, error)
}

// Updater replaces the local CSV with a fresh upstream copy.
type Updater struct {
	client *http.Client
	hasher Hasher
	logger *zap.Logger
}

// UpdateResult describes a completed update.
type UpdateResult struct {
	Path     string
	Rows     int
	Checksum string
	Bytes    int
	// Unchanged is set when dest already held the downloaded bytes.
	Unchanged bool
}

// NewUpdater constructs an Updater. A nil client uses a 60s-timeout default.
func NewUpdater(client *http.Client, hasher Hasher, logger *zap.Logger) *Updater {
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Updater{client: client, hasher: hasher, logger: logger.Named("reference")}
}

// Update downloads url, checks that it parses with at least one row, and
// atomically replaces dest. dest is untouched on any failure.
func (u *Updater) Update(ctx context.Context, url, dest string) (UpdateResult, error) {
	if url == "" {
		url = DefaultUpdateURL
	}
	body, err := fetch(ctx, u.client, url)
	if err != nil {
		return UpdateResult{}, err
	}
	entries, err := parseBytes(body)
	if err != nil {
		return UpdateResult{}, fmt.Errorf("validate download: %w", err)
	}
	if len(entries) == 0 {
		return UpdateResult{}, fmt.Errorf("validate download: no rows")
	}
	result := UpdateResult{Path: dest, Rows: len(entries), Bytes: len(body)}
	if u.hasher != nil {
		sum, err := u.hasher.Hash(body)
		if err != nil {
			return UpdateResult{}, fmt.Errorf("hash download: %w", err)
		}
		result.Checksum = sum
		current, err := u.hasher.HashFile(dest)
		if err != nil {
			return UpdateResult{}, fmt.Errorf("hash current database: %w", err)
		}
		result.Unchanged = current == sum
	}
	if result.Unchanged {
		u.logger.Info("reference database already current", zap.String("path", dest), zap.String("sha256", result.Checksum))
		return result, nil
	}
	if err := writeAtomic(dest, body); err != nil {
		return UpdateResult{}, err
	}
	u.logger.Info("reference database updated",
		zap.String("path", dest),
		zap.Int("rows", result.Rows),
		zap.String("sha256", result.Checksum),
	)
	return result, nil
}

func fetch(ctx context.Context, client *http.Client, url string) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s: unexpected status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", url, err)
	}
	return body, nil
}

func parseBytes(body []byte) ([]cookie.ReferenceEntry, error) {
	return ParseCSV(bytes.NewReader(body))
}

func writeAtomic(dest string, data []byte) error {
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".reference-*.csv")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("replace %s: %w", dest, err)
	}
	return nil
}
