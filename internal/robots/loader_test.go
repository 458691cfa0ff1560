package robots

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

func serverURL(t *testing.T, srv *httptest.Server) *url.URL {
	t.Helper()
	u, err := url.Parse(srv.URL + "/some/page")
	require.NoError(t, err)
	return u
}

func TestLoaderParsesAndCaches(t *testing.T) {
	t.Parallel()

	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "/robots.txt", r.URL.Path)
		assert.Equal(t, "cookie-crawler-test", r.Header.Get("User-Agent"))
		_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\n"))
	}))
	defer srv.Close()

	loader := NewLoader(srv.Client(), "cookie-crawler-test", zap.NewNop())
	data, err := loader.Load(context.Background(), serverURL(t, srv))
	require.NoError(t, err)
	require.NotNil(t, data)
	assert.False(t, data.TestAgent("/private/x", "cookie-crawler-test"))
	assert.True(t, data.TestAgent("/public", "cookie-crawler-test"))

	_, err = loader.Load(context.Background(), serverURL(t, srv))
	require.NoError(t, err)
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}

func TestLoaderMissingRobots(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	data, err := NewLoader(srv.Client(), "", nil).Load(context.Background(), serverURL(t, srv))
	require.NoError(t, err)
	assert.Nil(t, data)
}

func TestLoaderServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := NewLoader(srv.Client(), "", nil).Load(context.Background(), serverURL(t, srv))
	require.ErrorIs(t, err, ErrServerError)
}

func TestLoaderUnreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	u := serverURL(t, srv)
	srv.Close()

	_, err := NewLoader(nil, "", nil).Load(context.Background(), u)
	require.Error(t, err)
}

func TestLoaderCrawlDelay(t *testing.T) {
	t.Parallel()

	data, err := robotstxt.FromString("User-agent: slowbot\nCrawl-delay: 5\n\nUser-agent: *\nCrawl-delay: 2\n")
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, NewLoader(nil, "cookie-crawler", nil).CrawlDelay(data))
	assert.Equal(t, 5*time.Second, NewLoader(nil, "slowbot", nil).CrawlDelay(data))
	assert.Zero(t, NewLoader(nil, "", nil).CrawlDelay(nil))
}
