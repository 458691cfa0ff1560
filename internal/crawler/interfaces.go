package crawler

import (
	"context"
	"net/url"
	"time"

	"github.com/JakeFAU/cookie-crawler/internal/cookie"
)

// Browser is the page-fetch capability a backend provides.
type Browser interface {
	// OpenPage navigates to rawURL and returns a handle ready for extraction.
	OpenPage(ctx context.Context, rawURL string) (Page, error)
	// FetchRobotsRules returns the robots rules for the seed's host. A nil
	// result with a nil error means the host publishes no usable rules.
	FetchRobotsRules(ctx context.Context, seed *url.URL) (RobotsRules, error)
	// InteractWithConsentBanner tries to dismiss a consent banner on page. It is
	// best-effort and reports whether it clicked anything.
	InteractWithConsentBanner(ctx context.Context, page Page) bool
}

// Page is an opened page owned by the caller until Close.
type Page interface {
	URL() string
	Extract(ctx context.Context) (PageData, error)
	Close()
}

// PageData is what a backend extracts from one page.
type PageData struct {
	FinalURL string
	Cookies  []cookie.RawCookie
	Storage  []cookie.StorageEntry
	Links    []string
	// Warnings are backend notes about the page, surfaced in the crawl result.
	Warnings []string
}

// RobotsRules answers allow/disallow questions. *robotstxt.RobotsData satisfies it.
type RobotsRules interface {
	TestAgent(path, agent string) bool
}

// RetryPolicy decides whether a failed fetch is attempted again.
type RetryPolicy interface {
	ShouldRetry(err error, attempt int) bool
	Backoff(attempt int) time.Duration
}
