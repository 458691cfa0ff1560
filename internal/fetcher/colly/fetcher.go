// Package collyfetcher implements crawler.Browser over plain HTTP with gocolly.
// It runs no JavaScript, so it only sees cookies delivered in Set-Cookie headers.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/cookie-crawler/internal/consent"
	"github.com/JakeFAU/cookie-crawler/internal/cookie"
	"github.com/JakeFAU/cookie-crawler/internal/crawler"
	"github.com/JakeFAU/cookie-crawler/internal/extract"
	"github.com/JakeFAU/cookie-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/cookie-crawler/internal/robots"
)

// Config controls collector behavior.
type Config struct {
	UserAgent string
	Timeout   time.Duration
	Headers   http.Header
}

// Browser implements crawler.Browser using the Colly collector.
type Browser struct {
	cfg           Config
	baseCollector *colly.Collector
	robots        *robots.Loader
	rate          *ratelimit.Limiter
	logger        *zap.Logger
	now           func() time.Time
}

type collectorHooks interface {
	OnRequest(colly.RequestCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// New builds a Browser. Clones of the base collector share its cookie jar, so
// cookies persist across pages like a browser session.
func New(cfg Config, rate *ratelimit.Limiter, logger *zap.Logger) *Browser {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	c.AllowURLRevisit = true
	// Statuses are judged by crawler.CheckStatus like the browser backends.
	c.ParseHTTPErrorResponse = true

	transport := newHTTPTransport()
	c.WithTransport(transport)

	robotsClient := &http.Client{
		Timeout:   10 * time.Second,
		Transport: newRobotsTransport(transport),
	}

	return &Browser{
		cfg:           cfg,
		baseCollector: c,
		robots:        robots.NewLoader(robotsClient, cfg.UserAgent, logger),
		rate:          rate,
		logger:        logger.Named("colly"),
		now:           time.Now,
	}
}

// FetchRobotsRules implements crawler.Browser.
func (b *Browser) FetchRobotsRules(ctx context.Context, seed *url.URL) (crawler.RobotsRules, error) {
	data, err := b.robots.Load(ctx, seed)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	b.rate.CrawlDelay(seed.String(), b.robots.CrawlDelay(data))
	return data, nil
}

// OpenPage performs a GET and buffers the response.
func (b *Browser) OpenPage(ctx context.Context, rawURL string) (crawler.Page, error) {
	if err := b.rate.Wait(ctx, rawURL); err != nil {
		return nil, err
	}
	p := &page{requested: rawURL, now: b.now}
	var fetchErr error
	collector := b.buildCollector(p, &fetchErr)
	if err := runCollector(ctx, collector, rawURL, &fetchErr); err != nil {
		return nil, err
	}
	if err := crawler.CheckStatus(p.URL(), p.status); err != nil {
		return nil, err
	}
	return p, nil
}

// InteractWithConsentBanner cannot click without a browser. It only logs a
// statically detected banner and reports false.
func (b *Browser) InteractWithConsentBanner(_ context.Context, cp crawler.Page) bool {
	p, ok := cp.(*page)
	if !ok {
		return false
	}
	if sel, found := consent.Detect(string(p.body)); found {
		b.logger.Debug("consent banner present but not clickable over http",
			zap.String("url", p.URL()), zap.String("selector", sel))
	}
	return false
}

func (b *Browser) buildCollector(p *page, fetchErr *error) *colly.Collector {
	collector := b.baseCollector.Clone()
	if b.cfg.UserAgent != "" {
		collector.UserAgent = b.cfg.UserAgent
	}
	timeout := b.cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collector.SetRequestTimeout(timeout)
	b.configureCollectorHooks(collector, p, fetchErr)
	return collector
}

func (b *Browser) configureCollectorHooks(hooks collectorHooks, p *page, fetchErr *error) {
	hooks.OnRequest(func(r *colly.Request) {
		for key, values := range b.cfg.Headers {
			for _, v := range values {
				r.Headers.Add(key, v)
			}
		}
	})

	hooks.OnResponse(func(r *colly.Response) {
		p.final = r.Request.URL.String()
		p.status = r.StatusCode
		p.body = append([]byte(nil), r.Body...)
		if r.Headers != nil {
			p.contentType = r.Headers.Get("Content-Type")
			p.setCookies = append([]string(nil), r.Headers.Values("Set-Cookie")...)
		}
	})

	hooks.OnError(func(r *colly.Response, err error) {
		if r != nil && r.StatusCode > 0 {
			status := &crawler.StatusError{Code: r.StatusCode, Err: err}
			if r.Request != nil && r.Request.URL != nil {
				status.URL = r.Request.URL.String()
			}
			err = status
		}
		*fetchErr = err
	})
}

func runCollector(ctx context.Context, collector *colly.Collector, url string, fetchErr *error) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if *fetchErr != nil {
			return fmt.Errorf("colly response failed: %w", *fetchErr)
		}
		return nil
	}
}

type page struct {
	requested   string
	final       string
	status      int
	body        []byte
	contentType string
	setCookies  []string
	now         func() time.Time
	closeOnce   sync.Once
}

func (p *page) URL() string {
	if p.final != "" {
		return p.final
	}
	return p.requested
}

// Extract turns the buffered response into page data.
func (p *page) Extract(context.Context) (crawler.PageData, error) {
	var links []string
	if isHTML(p.contentType) {
		var err error
		if links, err = extract.Links(p.body); err != nil {
			return crawler.PageData{}, err
		}
	}
	host := ""
	if u, err := url.Parse(p.URL()); err == nil {
		host = u.Hostname()
	}
	data := crawler.PageData{
		FinalURL: p.URL(),
		Cookies:  parseSetCookies(p.setCookies, host, p.now()),
		Links:    links,
	}
	if isHTML(p.contentType) && extract.LooksScriptRendered(p.body) {
		data.Warnings = append(data.Warnings,
			fmt.Sprintf("page %s looks script-rendered; the http backend misses cookies set by JavaScript", p.requested))
	}
	return data, nil
}

// Close releases the buffered body.
func (p *page) Close() {
	p.closeOnce.Do(func() {
		p.body = nil
	})
}

// parseSetCookies converts Set-Cookie header values. Host-only cookies take the
// response host as their domain. Lines that delete a cookie are dropped.
func parseSetCookies(values []string, host string, now time.Time) []cookie.RawCookie {
	out := make([]cookie.RawCookie, 0, len(values))
	for _, line := range values {
		c, err := http.ParseSetCookie(line)
		if err != nil || deletes(c, now) {
			continue
		}
		raw := cookie.RawCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Secure:   c.Secure,
			HTTPOnly: c.HttpOnly,
			SameSite: sameSite(c.SameSite),
		}
		if raw.Domain == "" {
			raw.Domain = host
		}
		if raw.Path == "" {
			raw.Path = "/"
		}
		switch {
		case c.MaxAge > 0:
			exp := now.Add(time.Duration(c.MaxAge) * time.Second).UTC()
			raw.Expires = &exp
		case !c.Expires.IsZero():
			exp := c.Expires.UTC()
			raw.Expires = &exp
		}
		out = append(out, raw)
	}
	return out
}

// deletes reports whether c tells the client to remove the cookie: Max-Age of
// zero or less, or an Expires already in the past.
func deletes(c *http.Cookie, now time.Time) bool {
	if c.MaxAge < 0 {
		return true
	}
	return c.MaxAge == 0 && !c.Expires.IsZero() && !c.Expires.After(now)
}

func sameSite(mode http.SameSite) cookie.SameSite {
	switch mode {
	case http.SameSiteStrictMode:
		return cookie.SameSiteStrict
	case http.SameSiteLaxMode:
		return cookie.SameSiteLax
	case http.SameSiteNoneMode:
		return cookie.SameSiteNone
	default:
		return cookie.SameSiteUnset
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}

func isHTML(contentType string) bool {
	return contentType == "" || strings.Contains(strings.ToLower(contentType), "html")
}
