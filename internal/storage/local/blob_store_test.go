package local_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cookie-crawler/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("creates missing directory", func(t *testing.T) {
		t.Parallel()
		dir := filepath.Join(t.TempDir(), "reports")
		store, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		assert.Equal(t, dir, store.BaseDir())
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("rejects a file", func(t *testing.T) {
		t.Parallel()
		file := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: file})
		assert.Error(t, err)
	})

	t.Run("leaves no marker file behind", func(t *testing.T) {
		t.Parallel()
		dir := t.TempDir()
		_, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}

func TestDefaultDirUnderDataHome(t *testing.T) {
	t.Parallel()

	assert.True(t, strings.HasSuffix(local.DefaultDir(), filepath.Join("cookie-crawler", "reports")))
}

func TestPutObject(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)
	ctx := context.Background()

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{name: "flat", path: "run-1.json"},
		{name: "nested", path: "2026/05/run-2.md"},
		{name: "empty", path: " ", wantErr: true},
		{name: "traversal", path: "../escape.txt", wantErr: true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			uri, err := store.PutObject(ctx, tc.path, "text/plain", strings.NewReader("report body"))
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			full := filepath.Join(dir, tc.path)
			assert.Equal(t, "file://"+full, uri)
			// #nosec G304 -- test reads from the controlled temp directory.
			got, err := os.ReadFile(full)
			require.NoError(t, err)
			assert.Equal(t, "report body", string(got))
		})
	}
}

func TestPutObjectOverwrites(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)

	_, err = store.PutObject(context.Background(), "run.txt", "", strings.NewReader("first"))
	require.NoError(t, err)
	_, err = store.PutObject(context.Background(), "run.txt", "", strings.NewReader("second"))
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(dir, "run.txt"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(got))
}
