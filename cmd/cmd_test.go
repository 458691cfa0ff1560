package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/cookie-crawler/internal/config"
	"github.com/JakeFAU/cookie-crawler/internal/jobs"
)

const referenceCSV = "Cookie Name,Category,Platform,Description,Expiration,Wildcard match\n" +
	"session,Strictly Necessary,Example,Login state,Session,0\n"

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(io.Discard)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	body := fmt.Sprintf(`crawler:
  backend: http
  max_pages: 3
  nav_timeout_seconds: 5
history:
  path: %s
`, filepath.Join(dir, "history.db"))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func siteServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", http.NotFound)
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "session", Value: "abc", Path: "/"})
		http.SetCookie(w, &http.Cookie{Name: "_ga", Value: "GA1.2.3", Path: "/", MaxAge: 3600 * 24 * 365})
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(`<html><body><a href="/about">About</a></body></html>`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestAnalyzeWritesReportAndHistory(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)
	dbPath := filepath.Join(dir, "db.csv")
	require.NoError(t, os.WriteFile(dbPath, []byte(referenceCSV), 0o600))
	reportPath := filepath.Join(dir, "report.json")
	srv := siteServer(t)

	_, err := execute(t, "--config", cfgPath, "analyze", srv.URL,
		"--database", dbPath, "--format", "json", "--output", reportPath, "--no-consent")
	require.NoError(t, err)

	body, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	var report map[string]any
	require.NoError(t, json.Unmarshal(body, &report))
	assert.Equal(t, srv.URL, report["seedUrl"])
	assert.Contains(t, string(body), `"session"`)
	assert.Contains(t, string(body), `"_ga"`)

	out, err := execute(t, "--config", cfgPath, "history", "--json")
	require.NoError(t, err)
	var records []jobs.ReportRecord
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 1)
	assert.Equal(t, srv.URL, records[0].SeedURL)
	assert.Equal(t, 2, records[0].Cookies)

	out, err = execute(t, "--config", cfgPath, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "Analysis History")
	assert.Contains(t, out, srv.URL)
}

func TestAnalyzeToStdout(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)
	srv := siteServer(t)

	out, err := execute(t, "--config", cfgPath, "analyze", srv.URL, "--format", "markdown", "--pages", "1")
	require.NoError(t, err)
	assert.Contains(t, out, "# Cookie Report")
	assert.Contains(t, out, "_ga")
}

func TestAnalyzeRejectsBadInput(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "missing url", args: []string{"analyze"}, want: "accepts 1 arg"},
		{name: "zero pages", args: []string{"analyze", "example.com", "--pages", "0"}, want: "--pages"},
		{name: "bad format", args: []string{"analyze", "example.com", "--format", "pdf"}, want: "output.format"},
		{name: "bad backend", args: []string{"analyze", "example.com", "--backend", "lynx"}, want: "crawler.backend"},
		{name: "bad seed", args: []string{"analyze", "ftp://example.com"}, want: "invalid seed url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := execute(t, append([]string{"--config", cfgPath}, tt.args...)...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestAnalyzeOptionsApply(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load("")
	require.NoError(t, err)

	opts := &analyzeOptions{}
	cmd := newAnalyzeCmdWithOptions(opts)
	require.NoError(t, cmd.ParseFlags([]string{
		"--pages", "9", "--database", "db.csv", "--backend", "rod",
		"--concurrent", "--no-consent", "--show-browser", "--no-fingerprinting",
		"--ignore-robots", "--rules", "rules.yaml", "--format", "md",
	}))

	got, err := opts.apply(cmd, cfg)
	require.NoError(t, err)
	assert.Equal(t, 9, got.Crawler.MaxPages)
	assert.Equal(t, "db.csv", got.Reference.Path)
	assert.Equal(t, config.BackendRod, got.Crawler.Backend)
	assert.True(t, got.Crawler.UseConcurrency)
	assert.False(t, got.Crawler.ConsentInteraction)
	assert.False(t, got.Crawler.Headless)
	assert.False(t, got.Crawler.DetectFingerprinting)
	assert.False(t, got.Crawler.RespectRobots)
	assert.Equal(t, "rules.yaml", got.Rules.Path)
	assert.Equal(t, "md", got.Output.Format)
}

func TestUpdateDB(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(referenceCSV))
	}))
	t.Cleanup(srv.Close)
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)
	dest := filepath.Join(dir, "open-cookie-database.csv")

	out, err := execute(t, "--config", cfgPath, "update-db", "--url", srv.URL, "--dest", dest)
	require.NoError(t, err)
	assert.Contains(t, out, "1 rows")
	data, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, referenceCSV, string(data))
}

func TestUpdateDBKeepsFileOnBadDownload(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)
	dest := filepath.Join(dir, "db.csv")
	require.NoError(t, os.WriteFile(dest, []byte("old"), 0o600))

	_, err := execute(t, "--config", cfgPath, "update-db", "--url", srv.URL, "--dest", dest)
	require.Error(t, err)
	data, readErr := os.ReadFile(dest)
	require.NoError(t, readErr)
	assert.Equal(t, "old", string(data))
}

func TestHistoryEmpty(t *testing.T) {
	t.Parallel()

	cfgPath := writeConfig(t, t.TempDir())
	out, err := execute(t, "--config", cfgPath, "history")
	require.NoError(t, err)
	assert.Contains(t, out, "No analyses recorded yet.")
}

func TestRootRejectsMissingConfig(t *testing.T) {
	t.Parallel()

	_, err := execute(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"), "history")
	require.ErrorContains(t, err, "load config")
}
