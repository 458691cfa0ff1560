// Package robots fetches and caches robots.txt rules per host.
package robots

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
)

const maxRobotsBytes = 1 << 20

// ErrServerError is returned when the host answers robots.txt with a 5xx.
var ErrServerError = errors.New("robots.txt server error")

// Loader retrieves robots.txt over HTTP.
type Loader struct {
	client    *http.Client
	cache     sync.Map
	userAgent string
	logger    *zap.Logger
}

// NewLoader builds a loader. A nil client gets a 10 second timeout.
func NewLoader(client *http.Client, userAgent string, logger *zap.Logger) *Loader {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		client:    client,
		userAgent: userAgent,
		logger:    logger.Named("robots"),
	}
}

// Load returns the rules for u's host. It returns (nil, nil) when the host has
// no robots.txt (any 4xx), and ErrServerError for 5xx responses.
func (l *Loader) Load(ctx context.Context, u *url.URL) (*robotstxt.RobotsData, error) {
	hostKey := strings.ToLower(u.Scheme + "://" + u.Host)
	if data, ok := l.cache.Load(hostKey); ok {
		cached, assertOK := data.(*robotstxt.RobotsData)
		if !assertOK {
			return nil, fmt.Errorf("robots cache type mismatch: %T", data)
		}
		return cached, nil
	}

	robotsURL := url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/robots.txt"}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("new robots request: %w", err)
	}
	if l.userAgent != "" {
		req.Header.Set("User-Agent", l.userAgent)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			l.logger.Debug("failed to close robots response body", zap.Error(cerr))
		}
	}()

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return nil, fmt.Errorf("%w: status %d", ErrServerError, resp.StatusCode)
	case resp.StatusCode >= http.StatusBadRequest:
		l.logger.Debug("no robots.txt published", zap.String("host", u.Host), zap.Int("status", resp.StatusCode))
		return nil, nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		return nil, fmt.Errorf("read robots body: %w", err)
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("parse robots: %w", err)
	}
	l.cache.Store(hostKey, data)
	return data, nil
}

// CrawlDelay is the Crawl-delay data asks of this loader's user agent.
func (l *Loader) CrawlDelay(data *robotstxt.RobotsData) time.Duration {
	if data == nil {
		return 0
	}
	agent := l.userAgent
	if agent == "" {
		agent = "*"
	}
	if group := data.FindGroup(agent); group != nil {
		return group.CrawlDelay
	}
	return 0
}
