// Package local writes rendered reports to the local filesystem.
package local

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/xdg"
)

// Config captures the parameters for the local report directory.
type Config struct {
	// BaseDir is the root directory for reports. Empty uses DefaultDir.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// DefaultDir is the per-user report directory under the XDG data home.
func DefaultDir() string {
	return filepath.Join(xdg.DataHome, "cookie-crawler", "reports")
}

// BlobStore writes reports beneath a base directory.
type BlobStore struct {
	baseDir string
}

// New creates the base directory if needed and checks that it is writable.
func New(cfg Config) (*BlobStore, error) {
	baseDir := strings.TrimSpace(cfg.BaseDir)
	if baseDir == "" {
		baseDir = DefaultDir()
	}

	info, err := os.Stat(baseDir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(baseDir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create report directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat report directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("report path %s is not a directory", baseDir)
	}

	marker, err := os.CreateTemp(baseDir, ".writable-*")
	if err != nil {
		return nil, fmt.Errorf("report directory is not writable: %w", err)
	}
	_ = marker.Close()
	if err := os.Remove(marker.Name()); err != nil {
		return nil, fmt.Errorf("clean up marker file: %w", err)
	}
	return &BlobStore{baseDir: baseDir}, nil
}

// BaseDir returns the resolved report directory.
func (s *BlobStore) BaseDir() string {
	return s.baseDir
}

// PutObject writes data to baseDir/path via a temp file and rename, and
// returns a file:// URI.
func (s *BlobStore) PutObject(_ context.Context, path string, _ string, data io.Reader) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("path is required")
	}

	fullPath := filepath.Clean(filepath.Join(s.baseDir, path))
	if !strings.HasPrefix(fullPath, filepath.Clean(s.baseDir)+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the report directory", path)
	}
	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create parent directories: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".report-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	if _, err := io.Copy(tmp, data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("close report: %w", err)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("move report into place: %w", err)
	}
	return "file://" + fullPath, nil
}
