package reference

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cookie-crawler/internal/cookie"
)

func TestLoadFromFileReportsMalformedRows(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "db.csv")
	require.NoError(t, os.WriteFile(path, []byte(upstreamCSV), 0o600))

	table, err := Load(context.Background(), FileSource{Path: path})
	require.NoError(t, err)
	assert.Equal(t, 3, table.Len())
	warnings := table.Warnings()
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "row 3")

	entry, method, ok := table.Lookup("_gac_123")
	require.True(t, ok)
	assert.Equal(t, cookie.MethodWildcard, method)
	assert.Equal(t, cookie.CategoryTargeting, entry.Category)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(context.Background(), FileSource{Path: filepath.Join(t.TempDir(), "missing.csv")})
	require.Error(t, err)
}

func TestLoadNilSourceIsEmpty(t *testing.T) {
	t.Parallel()

	table, err := Load(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, table.Len())
}

func TestLoadFromHTTP(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(simplifiedCSV))
	}))
	defer srv.Close()

	table, err := Load(context.Background(), HTTPSource{URL: srv.URL, Client: srv.Client()})
	require.NoError(t, err)
	assert.Equal(t, 2, table.Len())
}
