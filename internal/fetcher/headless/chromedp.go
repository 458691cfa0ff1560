// Package headless drives headless Chrome through chromedp.
package headless

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/cookie-crawler/internal/consent"
	"github.com/JakeFAU/cookie-crawler/internal/cookie"
	"github.com/JakeFAU/cookie-crawler/internal/crawler"
	"github.com/JakeFAU/cookie-crawler/internal/extract"
	"github.com/JakeFAU/cookie-crawler/internal/policy/ratelimit"
	"github.com/JakeFAU/cookie-crawler/internal/robots"
)

const defaultNavTimeout = 45 * time.Second

// Config controls the behavior of the chromedp browser.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	// ShowBrowser runs Chrome with a visible window.
	ShowBrowser bool
	Headers     http.Header
}

// Browser implements crawler.Browser with chromedp and headless Chrome.
type Browser struct {
	cfg         Config
	limiter     chan struct{}
	allocator   context.Context
	allocCancel context.CancelFunc
	robots      *robots.Loader
	rate        *ratelimit.Limiter
	logger      *zap.Logger
}

// NewChromedp creates a browser backed by chromedp. Every page launches its own
// Chrome from the shared allocator options, so each starts with an empty
// cookie jar and its observations belong to that page alone.
func NewChromedp(cfg Config, robotsLoader *robots.Loader, rate *ratelimit.Limiter, logger *zap.Logger) (*Browser, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if robotsLoader == nil {
		robotsLoader = robots.NewLoader(nil, cfg.UserAgent, logger)
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}

	headless := any("new")
	if cfg.ShowBrowser {
		headless = false
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Browser{
		cfg:         cfg,
		limiter:     limiter,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		robots:      robotsLoader,
		rate:        rate,
		logger:      logger.Named("chromedp"),
	}, nil
}

// Close shuts down Chrome.
func (b *Browser) Close() {
	b.allocCancel()
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

// OpenPage opens a tab and navigates it to rawURL.
func (b *Browser) OpenPage(ctx context.Context, rawURL string) (crawler.Page, error) {
	if err := b.acquire(ctx); err != nil {
		return nil, err
	}
	if err := b.rate.Wait(ctx, rawURL); err != nil {
		b.release()
		return nil, err
	}

	tabCtx, tabCancel := chromedp.NewContext(b.allocator)
	// The first Run allocates the tab and must not carry a deadline.
	if err := chromedp.Run(tabCtx); err != nil {
		tabCancel()
		b.release()
		return nil, fmt.Errorf("open tab: %w", err)
	}

	meta := newResponseMeta()
	chromedp.ListenTarget(tabCtx, meta.captureEvent)

	p := &page{browser: b, tab: tabCtx, cancel: tabCancel, requested: rawURL, meta: meta, readCookies: readAllCookies}
	err := p.run(ctx, b.navTimeout(),
		b.networkSetupAction(),
		chromedp.Navigate(rawURL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500*time.Millisecond),
		chromedp.Location(&p.final),
	)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("navigate %s: %w", rawURL, err)
	}
	status, _, _ := meta.snapshotWithFallbacks(rawURL, p.final)
	if err := crawler.CheckStatus(p.URL(), status); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// InteractWithConsentBanner clicks the first reject control it can find.
func (b *Browser) InteractWithConsentBanner(ctx context.Context, cp crawler.Page) bool {
	p, ok := cp.(*page)
	if !ok {
		return false
	}
	var clicked bool
	if err := p.run(ctx, b.navTimeout(), chromedp.Evaluate(consent.ClickScript(), &clicked)); err != nil {
		b.logger.Debug("consent script failed", zap.String("url", p.URL()), zap.Error(err))
		return false
	}
	if clicked {
		_ = p.run(ctx, b.navTimeout(), chromedp.Sleep(consent.SettleDelay))
	}
	return clicked
}

func (b *Browser) networkSetupAction() chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if b.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(b.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(b.cfg.Headers) > 0 {
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(b.cfg.Headers)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

func (b *Browser) acquire(ctx context.Context) error {
	if b.limiter == nil {
		return nil
	}
	select {
	case b.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (b *Browser) release() {
	if b.limiter == nil {
		return
	}
	select {
	case <-b.limiter:
	default:
	}
}

func (b *Browser) navTimeout() time.Duration {
	if b.cfg.NavigationTimeout > 0 {
		return b.cfg.NavigationTimeout
	}
	return defaultNavTimeout
}

type page struct {
	browser   *Browser
	tab       context.Context
	cancel    context.CancelFunc
	requested string
	final     string
	meta      *responseMeta
	// readCookies returns every cookie in the page's browser, including
	// third-party cookies set by embedded ad and analytics resources.
	readCookies cookieReader
	closeOnce   sync.Once
}

type cookieReader func(ctx context.Context) ([]*network.Cookie, error)

func readAllCookies(ctx context.Context) ([]*network.Cookie, error) {
	return storage.GetCookies().Do(ctx)
}

// collectCookies reads the browser's cookie store into dst.
func collectCookies(read cookieReader, dst *[]cookie.RawCookie) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		all, err := read(ctx)
		if err != nil {
			return fmt.Errorf("get cookies: %w", err)
		}
		*dst = convertCookies(all)
		return nil
	})
}

func (p *page) URL() string {
	if p.final != "" {
		return p.final
	}
	return p.requested
}

// run executes actions on the tab, bounded by timeout and by the caller's ctx.
func (p *page) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(p.tab, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return errors.Join(err, ctxErr)
		}
		return fmt.Errorf("chromedp run: %w", err)
	}
	return nil
}

// Extract collects cookies, web storage, and links from the tab.
func (p *page) Extract(ctx context.Context) (crawler.PageData, error) {
	var (
		html    string
		dump    extract.StorageDump
		cookies []cookie.RawCookie
	)
	err := p.run(ctx, p.browser.navTimeout(),
		chromedp.Location(&p.final),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.Evaluate(extract.StorageScript, &dump),
		collectCookies(p.readCookies, &cookies),
	)
	if err != nil {
		return crawler.PageData{}, err
	}

	links, err := extract.Links([]byte(html))
	if err != nil {
		return crawler.PageData{}, err
	}
	return crawler.PageData{
		FinalURL: p.URL(),
		Cookies:  cookies,
		Storage:  dump.Entries(p.URL()),
		Links:    links,
	}, nil
}

// Close closes the tab and frees its parallelism slot.
func (p *page) Close() {
	p.closeOnce.Do(func() {
		p.cancel()
		p.browser.release()
	})
}

func convertCookies(in []*network.Cookie) []cookie.RawCookie {
	out := make([]cookie.RawCookie, 0, len(in))
	for _, c := range in {
		if c == nil {
			continue
		}
		out = append(out, cookie.RawCookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  expiry(c.Session, c.Expires),
			Secure:   c.Secure,
			HTTPOnly: c.HTTPOnly,
			SameSite: cookie.ParseSameSite(c.SameSite.String()),
		})
	}
	return out
}

// expiry converts CDP epoch seconds; session cookies report -1.
func expiry(session bool, epochSeconds float64) *time.Time {
	if session || epochSeconds <= 0 {
		return nil
	}
	sec := int64(epochSeconds)
	nsec := int64((epochSeconds - float64(sec)) * float64(time.Second))
	t := time.Unix(sec, nsec).UTC()
	return &t
}

type responseMeta struct {
	mu      sync.RWMutex
	status  int
	headers http.Header
	url     string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{
		headers: http.Header{},
	}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	headers := http.Header{}
	for key, value := range event.Response.Headers {
		switch v := value.(type) {
		case string:
			headers.Add(key, v)
		case []string:
			for _, entry := range v {
				headers.Add(key, entry)
			}
		case []interface{}:
			for _, entry := range v {
				headers.Add(key, fmt.Sprint(entry))
			}
		default:
			headers.Add(key, fmt.Sprint(v))
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	// The top-level document arrives first; iframes must not overwrite it.
	if m.status != 0 {
		return
	}
	m.status = int(event.Response.Status)
	m.headers = headers
	m.url = event.Response.URL
}

func (m *responseMeta) snapshot() (int, http.Header, string) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status, cloneHeader(m.headers), m.url
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, http.Header, string) {
	status, headers, respURL := m.snapshot()
	switch {
	case respURL != "":
	case finalURL != "":
		respURL = finalURL
	default:
		respURL = requestURL
	}

	if status == 0 {
		status = http.StatusOK
	}
	return status, headers, respURL
}

func cloneHeader(src http.Header) http.Header {
	if src == nil {
		return nil
	}
	dst := make(http.Header, len(src))
	for k, values := range src {
		for _, v := range values {
			dst.Add(k, v)
		}
	}
	return dst
}

func toNetworkHeaders(h http.Header) network.Headers {
	headers := network.Headers{}
	for key, values := range h {
		if len(values) == 0 {
			continue
		}
		if len(values) == 1 {
			headers[key] = values[0]
		} else {
			headers[key] = append([]string(nil), values...)
		}
	}
	return headers
}
